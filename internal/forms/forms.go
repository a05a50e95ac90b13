// Package forms renders pre-filled scheme application forms as PDF and keeps
// them in blob storage under the session that produced them.
package forms

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/JaimeStill/kisaanseva/internal/farmers"
	"github.com/JaimeStill/kisaanseva/internal/schemes"
	"github.com/JaimeStill/kisaanseva/pkg/formatting"
	"github.com/JaimeStill/kisaanseva/pkg/storage"
)

const contentType = "application/pdf"

// ErrNotFound indicates the requested form does not exist for the session.
var ErrNotFound = errors.New("form not found")

// Request describes a form to render.
type Request struct {
	Farmer    *farmers.Farmer
	Scheme    *schemes.Scheme
	AgentName string
	SessionID uuid.UUID
	At        time.Time
}

// Generated describes a rendered and stored form.
type Generated struct {
	FileKey   string `json:"file_key"`
	FileName  string `json:"file_name"`
	Reference string `json:"reference"`
	Pages     int    `json:"pages"`
	Size      int    `json:"size"`
}

// Generator renders forms into storage.
type Generator struct {
	store  storage.System
	logger *slog.Logger
}

// New creates a Generator that writes into store.
func New(store storage.System, logger *slog.Logger) *Generator {
	api.DisableConfigDir()
	return &Generator{
		store:  store,
		logger: logger.With("module", "forms"),
	}
}

// Key is the storage key of a form produced in a session.
func Key(farmerID string, sessionID uuid.UUID, fileName string) string {
	return path.Join("forms", farmerID, sessionID.String(), fileName)
}

// FileName builds {farmer_id}_{scheme_slug}_{YYYYMMDD}.pdf.
func FileName(farmerID, schemeName string, at time.Time) string {
	slug := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			return r
		case r == ' ' || r == '_':
			return '_'
		}
		return -1
	}, strings.TrimSpace(schemeName))
	if slug == "" {
		slug = "scheme"
	}
	if len(slug) > 30 {
		slug = slug[:30]
	}
	return fmt.Sprintf("%s_%s_%s.pdf", farmerID, slug, at.Format("20060102"))
}

// Generate renders the form, verifies the output, and uploads it.
func (g *Generator) Generate(ctx context.Context, req Request) (*Generated, error) {
	ref, err := reference()
	if err != nil {
		return nil, err
	}

	desc, err := json.Marshal(layout(req, ref))
	if err != nil {
		return nil, fmt.Errorf("marshal layout: %w", err)
	}

	var buf bytes.Buffer
	if err := api.Create(nil, bytes.NewReader(desc), &buf, nil); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}

	data := buf.Bytes()
	pages, err := api.PageCount(bytes.NewReader(data), nil)
	if err != nil {
		return nil, fmt.Errorf("verify pdf: %w", err)
	}

	name := FileName(req.Farmer.FarmerID, req.Scheme.NameEn, req.At)
	key := Key(req.Farmer.FarmerID, req.SessionID, name)
	obj := storage.Object{
		Key:         key,
		ContentType: contentType,
		FileName:    name,
		Metadata: map[string]string{
			"farmer_id":  req.Farmer.FarmerID,
			"session_id": req.SessionID.String(),
			"scheme_id":  req.Scheme.ID.String(),
			"reference":  ref,
		},
	}
	if err := g.store.Upload(ctx, obj, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("store form: %w", err)
	}

	g.logger.Info("form generated",
		"farmer_id", req.Farmer.FarmerID,
		"scheme_id", req.Scheme.ID,
		"file_name", name,
		"pages", pages,
		"size", formatting.ByteSize(len(data)),
	)

	return &Generated{
		FileKey:   key,
		FileName:  name,
		Reference: ref,
		Pages:     pages,
		Size:      len(data),
	}, nil
}

// Open returns the stored form. Missing forms yield ErrNotFound.
func (g *Generator) Open(ctx context.Context, key string) (*storage.Blob, error) {
	blob, err := g.store.Download(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	return blob, err
}

func reference() (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("application reference: %w", err)
	}
	return "KS-" + strings.ToUpper(hex.EncodeToString(b)), nil
}

// Remove deletes a stored form. Missing forms are not an error.
func (g *Generator) Remove(ctx context.Context, key string) error {
	if err := g.store.Delete(ctx, key); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("remove form: %w", err)
	}
	return nil
}
