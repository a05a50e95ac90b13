// Package audit records who did what to which subject. Events are kept in
// Postgres for the audit API and mirrored to the audit event stream.
package audit

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/kisaanseva/pkg/query"
)

// Subject types recorded by the service.
const (
	SubjectSession    = "session"
	SubjectStagedItem = "staged_item"
	SubjectScheme     = "scheme"
)

// Event is a single audit trail entry.
type Event struct {
	ID          uuid.UUID      `json:"id"`
	OccurredAt  time.Time      `json:"occurred_at"`
	Actor       string         `json:"actor"`
	Action      string         `json:"action"`
	SubjectType string         `json:"subject_type"`
	SubjectID   string         `json:"subject_id"`
	Details     map[string]any `json:"details,omitempty"`
}

// Recorder accepts audit events. Recording never fails the caller.
type Recorder interface {
	Record(ctx context.Context, e Event)
}

// ErrInvalidFilter is returned for malformed filter query parameters.
var ErrInvalidFilter = errors.New("invalid audit filter")

// Filters narrows audit queries. Since and Until bound OccurredAt to
// [Since, Until).
type Filters struct {
	SubjectType *string    `json:"subject_type,omitempty"`
	SubjectID   *string    `json:"subject_id,omitempty"`
	Actor       *string    `json:"actor,omitempty"`
	Action      *string    `json:"action,omitempty"`
	Since       *time.Time `json:"since,omitempty"`
	Until       *time.Time `json:"until,omitempty"`
}

// FiltersFromQuery extracts audit filters from URL query parameters. since
// and until are RFC 3339 timestamps.
func FiltersFromQuery(values url.Values) (Filters, error) {
	var f Filters

	if v := values.Get("subject_type"); v != "" {
		f.SubjectType = &v
	}
	if v := values.Get("subject_id"); v != "" {
		f.SubjectID = &v
	}
	if v := values.Get("actor"); v != "" {
		f.Actor = &v
	}
	if v := values.Get("action"); v != "" {
		f.Action = &v
	}

	for key, dst := range map[string]**time.Time{"since": &f.Since, "until": &f.Until} {
		v := values.Get(key)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return Filters{}, fmt.Errorf("%w: %s must be RFC 3339", ErrInvalidFilter, key)
		}
		*dst = &t
	}

	return f, nil
}

// Apply adds filter conditions to a query builder.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("SubjectType", f.SubjectType).
		WhereEquals("SubjectID", f.SubjectID).
		WhereEquals("Actor", f.Actor).
		WhereEquals("Action", f.Action).
		WhereRange("OccurredAt", f.Since, f.Until)
}

func (f Filters) matches(e Event) bool {
	if f.SubjectType != nil && *f.SubjectType != e.SubjectType {
		return false
	}
	if f.SubjectID != nil && *f.SubjectID != e.SubjectID {
		return false
	}
	if f.Actor != nil && *f.Actor != e.Actor {
		return false
	}
	if f.Action != nil && *f.Action != e.Action {
		return false
	}
	if f.Since != nil && e.OccurredAt.Before(*f.Since) {
		return false
	}
	if f.Until != nil && !e.OccurredAt.Before(*f.Until) {
		return false
	}
	return true
}
