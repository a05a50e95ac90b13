package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/JaimeStill/kisaanseva/internal/schemes"
	"github.com/JaimeStill/kisaanseva/internal/staging"
)

// ErrUnavailable is returned when no data.gov.in resource could be read.
var ErrUnavailable = errors.New("data.gov.in unavailable")

const (
	minNameLength    = 5
	defaultMinistry  = "Government of India"
	defaultSourceURL = "https://www.india.gov.in/"
)

// DataGovConfig configures the data.gov.in resource API connector.
type DataGovConfig struct {
	URL       string
	APIKey    string
	Resources []string
	Limit     int
	Timeout   time.Duration
}

// DataGov reads scheme datasets from the data.gov.in resource API.
type DataGov struct {
	cfg    DataGovConfig
	client *http.Client
	logger *slog.Logger
}

// NewDataGov creates the data.gov.in connector.
func NewDataGov(cfg DataGovConfig, logger *slog.Logger) *DataGov {
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	if cfg.Limit < 1 {
		cfg.Limit = 100
	}
	return &DataGov{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With("module", "ingest", "source", staging.SourceDataGov),
	}
}

func (d *DataGov) Name() string { return staging.SourceDataGov }

// Fetch reads every configured resource. A resource that fails is logged and
// skipped; ErrUnavailable is returned only when all of them fail.
func (d *DataGov) Fetch(ctx context.Context) ([]staging.CreateCommand, error) {
	var (
		cmds   []staging.CreateCommand
		failed int
		last   error
	)
	for _, resource := range d.cfg.Resources {
		records, err := d.resource(ctx, resource)
		if err != nil {
			failed++
			last = err
			d.logger.Warn("resource fetch failed", "resource", resource, "error", err)
			continue
		}

		mapped := 0
		for _, raw := range records {
			if cmd, ok := mapRecord(resource, raw); ok {
				cmds = append(cmds, cmd)
				mapped++
			}
		}
		d.logger.Info("resource fetched", "resource", resource, "records", len(records), "mapped", mapped)
	}

	if failed > 0 && failed == len(d.cfg.Resources) {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, last)
	}
	return cmds, nil
}

func (d *DataGov) resource(ctx context.Context, id string) ([]json.RawMessage, error) {
	params := url.Values{}
	params.Set("api-key", d.cfg.APIKey)
	params.Set("format", "json")
	params.Set("limit", fmt.Sprint(d.cfg.Limit))

	endpoint := d.cfg.URL + "/" + url.PathEscape(id) + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		// url.Error repeats the query string, which carries the api key.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return nil, fmt.Errorf("request resource: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("resource returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var body struct {
		Records []json.RawMessage `json:"records"`
		Data    []json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode resource: %w", err)
	}
	if body.Records != nil {
		return body.Records, nil
	}
	return body.Data, nil
}

// mapRecord shapes one dataset row as a staging command. Datasets name their
// columns inconsistently, so each field is read from the first known column
// that holds a value. Rows without a usable name are dropped.
func mapRecord(resource string, raw json.RawMessage) (staging.CreateCommand, bool) {
	var rec map[string]any
	if err := json.Unmarshal(raw, &rec); err != nil {
		return staging.CreateCommand{}, false
	}

	name := field(rec, "scheme_name", "Scheme_Name", "schemeName", "name", "Name", "title")
	if len([]rune(name)) < minNameLength {
		return staging.CreateCommand{}, false
	}

	ministry := field(rec, "ministry", "Ministry", "department", "Department")
	if ministry == "" {
		ministry = defaultMinistry
	}

	content := schemes.Content{
		ItemType:      "scheme",
		NameEn:        name,
		Ministry:      &ministry,
		DescriptionEn: optional(field(rec, "description", "Description", "scheme_description", "Scheme_Description", "objective", "Objective")),
		BenefitType:   optional(benefitType(field(rec, "benefit_type", "schemeType"))),
		BenefitAmount: optional(field(rec, "benefit_amount", "financial_assistance")),
		HowToApply:    optional(field(rec, "how_to_apply", "procedure")),
		Rules:         []schemes.Rule{},
	}

	sourceURL := defaultSourceURL
	if link := field(rec, "url", "URL", "website", "Website", "link"); webURL(link) {
		content.ApplyURL = &link
		sourceURL = link
	}
	content.SourceURL = &sourceURL

	return staging.CreateCommand{
		Content:   content,
		Source:    staging.SourceDataGov,
		SourceRef: resource + ":" + strings.ToLower(name),
		RawData:   raw,
	}, true
}

func field(rec map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := rec[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return fmt.Sprint(v)
		}
	}
	return ""
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func benefitType(v string) string {
	switch strings.ToLower(v) {
	case "cash", "direct benefit transfer", "dbt":
		return "cash"
	case "insurance":
		return "insurance"
	case "equipment", "machinery":
		return "equipment"
	}
	return "subsidy"
}

func webURL(s string) bool {
	u, err := url.ParseRequestURI(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
