// Package gateway guards every read of a farmer's private record behind an
// active access session. Authorization fails closed: any doubt about the
// session yields ErrUnauthorized and no data.
package gateway

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/kisaanseva/internal/farmers"
	"github.com/JaimeStill/kisaanseva/internal/forms"
	"github.com/JaimeStill/kisaanseva/internal/schemes"
)

// Actions recorded on the session for gateway reads.
const (
	ActionViewFarmer   = "view_farmer"
	ActionGenerateForm = "generate_form"
	ActionDownloadForm = "download_form"
)

var (
	ErrUnauthorized   = errors.New("active session required")
	ErrInvalidRequest = errors.New("invalid gateway request")
)

// MapHTTPStatus maps gateway errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, schemes.ErrNotFound),
		errors.Is(err, forms.ErrNotFound),
		errors.Is(err, farmers.ErrNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// Scope identifies what an authorized caller may read. It carries no
// farmer data.
type Scope struct {
	SessionID uuid.UUID `json:"session_id"`
	FarmerID  string    `json:"farmer_id"`
	AgentID   uuid.UUID `json:"agent_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SchemeMatch is a published record with the farmer's eligibility verdict.
type SchemeMatch struct {
	*schemes.Scheme
	Eligibility    string   `json:"eligibility_status"`
	Score          float64  `json:"match_score"`
	MatchedRules   []string `json:"matched_rules"`
	UnmatchedRules []string `json:"unmatched_rules"`
}

// FarmerView is the full record released inside an active session.
type FarmerView struct {
	farmers.Farmer
	Schemes []SchemeMatch `json:"schemes"`
}

// FormCommand selects the scheme to render a form for.
type FormCommand struct {
	SchemeID uuid.UUID `json:"scheme_id"`
}

// FormResult describes a form generated in a session.
type FormResult struct {
	FileKey     string `json:"file_key"`
	FileName    string `json:"file_name"`
	DownloadURL string `json:"download_url,omitempty"`
	Message     string `json:"message"`
}
