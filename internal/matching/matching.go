// Package matching is the client for the external eligibility matching
// service. The service owns the rule evaluation; this package only moves
// scheme content and farmer records across the wire.
package matching

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/kisaanseva/internal/farmers"
)

// ErrUnavailable is returned when no matching service is configured or the
// service cannot be reached.
var ErrUnavailable = errors.New("matching service unavailable")

// Eligibility verdict statuses.
const (
	StatusEligible    = "eligible"
	StatusPartial     = "partial"
	StatusNotEligible = "not_eligible"
)

// Rule is one eligibility criterion of a published item.
type Rule struct {
	RuleType    string `json:"rule_type"`
	RuleValue   string `json:"rule_value"`
	IsMandatory bool   `json:"is_mandatory"`
}

// Content is the published item the service matches farmers against.
type Content struct {
	SchemeID    uuid.UUID `json:"scheme_id"`
	ItemType    string    `json:"item_type"`
	Name        string    `json:"name_en"`
	TargetState string    `json:"target_state,omitempty"`
	Rules       []Rule    `json:"eligibility_rules"`
}

// Verdict is the service's eligibility decision for one published item.
type Verdict struct {
	SchemeID       uuid.UUID `json:"scheme_id"`
	Status         string    `json:"status"`
	Score          float64   `json:"score"`
	MatchedRules   []string  `json:"matched_rules"`
	UnmatchedRules []string  `json:"unmatched_rules"`
}

// Client matches farmers to published items.
type Client interface {
	// MatchFarmers returns the ids of farmers eligible for content.
	MatchFarmers(ctx context.Context, content Content) ([]string, error)
	// Evaluate returns verdicts for every published item for farmer.
	Evaluate(ctx context.Context, farmer *farmers.Farmer) ([]Verdict, error)
}

type httpClient struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// New creates a matching client for baseURL. An empty baseURL yields a
// client that always reports ErrUnavailable.
func New(baseURL string, timeout time.Duration, logger *slog.Logger) Client {
	logger = logger.With("module", "matching")
	if baseURL == "" {
		logger.Warn("matching service not configured")
		return unavailable{}
	}
	return &httpClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (c *httpClient) MatchFarmers(ctx context.Context, content Content) ([]string, error) {
	var resp struct {
		FarmerIDs []string `json:"farmer_ids"`
	}
	if err := c.post(ctx, "/match", content, &resp); err != nil {
		return nil, err
	}
	c.logger.Info("farmers matched", "scheme_id", content.SchemeID, "count", len(resp.FarmerIDs))
	return resp.FarmerIDs, nil
}

func (c *httpClient) Evaluate(ctx context.Context, farmer *farmers.Farmer) ([]Verdict, error) {
	var resp struct {
		Verdicts []Verdict `json:"verdicts"`
	}
	if err := c.post(ctx, "/evaluate", farmer, &resp); err != nil {
		return nil, err
	}
	return resp.Verdicts, nil
}

func (c *httpClient) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s returned %d: %s", ErrUnavailable, path, resp.StatusCode, string(detail))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

type unavailable struct{}

func (unavailable) MatchFarmers(context.Context, Content) ([]string, error) {
	return nil, ErrUnavailable
}

func (unavailable) Evaluate(context.Context, *farmers.Farmer) ([]Verdict, error) {
	return nil, ErrUnavailable
}
