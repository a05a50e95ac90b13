// Package sessions implements consent-gated agent access to a farmer's
// record. A session is requested by an agent, confirmed by the farmer with a
// one-time password, and then grants time-bounded access until it is ended,
// revoked, or times out.
package sessions

import (
	"time"

	"github.com/google/uuid"
)

// Session is an agent's access grant to one farmer.
// SessionID stays zero until the farmer's consent is verified.
type Session struct {
	ID                 uuid.UUID  `json:"-"`
	ChallengeRef       string     `json:"challenge_ref,omitempty"`
	SessionID          uuid.UUID  `json:"session_id,omitzero"`
	FarmerID           string     `json:"farmer_id"`
	FarmerName         string     `json:"farmer_name,omitempty"`
	AgentID            uuid.UUID  `json:"agent_id"`
	AgentName          string     `json:"agent_name,omitempty"`
	CenterName         string     `json:"center_name,omitempty"`
	Purpose            string     `json:"purpose"`
	Status             Status     `json:"status"`
	OTPHash            string     `json:"-"`
	OTPAttempts        int        `json:"otp_attempts"`
	RequestedAt        time.Time  `json:"requested_at"`
	ChallengeExpiresAt time.Time  `json:"challenge_expires_at"`
	OTPVerifiedAt      *time.Time `json:"otp_verified_at,omitempty"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	ExpiresAt          *time.Time `json:"expires_at,omitempty"`
	EndedAt            *time.Time `json:"ended_at,omitempty"`
	EndReason          EndReason  `json:"end_reason,omitempty"`
	Actions            []Action   `json:"actions_taken"`
	Forms              []Form     `json:"forms_downloaded"`
}

// Action is a data access performed within a session.
type Action struct {
	Action string    `json:"action"`
	At     time.Time `json:"at"`
	Detail string    `json:"detail,omitempty"`
}

// Form is an application form generated within a session.
type Form struct {
	FileKey  string    `json:"file_key"`
	FileName string    `json:"file_name"`
	SchemeID string    `json:"scheme_id"`
	At       time.Time `json:"at"`
}

// Overdue reports whether an open session has passed its ceiling at now.
func (s *Session) Overdue(now time.Time) bool {
	switch s.Status {
	case StatusRequested, StatusAwaitingConsent:
		return !now.Before(s.ChallengeExpiresAt)
	case StatusActive:
		return s.ExpiresAt == nil || !now.Before(*s.ExpiresAt)
	}
	return false
}

// Remaining returns the whole seconds of access left at now.
func (s *Session) Remaining(now time.Time) int {
	if s.Status != StatusActive || s.ExpiresAt == nil {
		return 0
	}
	return max(int(s.ExpiresAt.Sub(now).Seconds()), 0)
}

// apply moves the session through event and stamps the fields the new
// state owns.
func (s *Session) apply(event Event, now time.Time) error {
	from := s.Status
	to, err := Transition(from, event)
	if err != nil {
		return err
	}

	s.Status = to
	if to.Terminal() {
		s.EndedAt = &now
		s.EndReason = reasonFor(from, event)
	}
	return nil
}

// activate mints the session id and starts the fixed access window.
func (s *Session) activate(now time.Time, ttl time.Duration) error {
	if err := s.apply(EventVerified, now); err != nil {
		return err
	}
	expires := now.Add(ttl)
	s.SessionID = uuid.New()
	s.OTPVerifiedAt = &now
	s.StartedAt = &now
	s.ExpiresAt = &expires
	return nil
}

// settle applies the timeout transition when the session is overdue.
func (s *Session) settle(now time.Time) bool {
	if !s.Status.Open() || !s.Overdue(now) {
		return false
	}
	return s.apply(EventTimeout, now) == nil
}

// RequestCommand asks for access to a farmer's record.
type RequestCommand struct {
	FarmerID string `json:"farmer_id"`
	Purpose  string `json:"purpose"`
}

// VerifyCommand submits the farmer's one-time password.
type VerifyCommand struct {
	FarmerID string `json:"farmer_id"`
	OTP      string `json:"otp"`
}

// Challenge is returned when an OTP has been dispatched.
type Challenge struct {
	Message      string    `json:"message"`
	FarmerID     string    `json:"farmer_id"`
	ChallengeRef string    `json:"challenge_ref"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Verification is returned when consent has been verified.
type Verification struct {
	SessionID  uuid.UUID `json:"session_id"`
	Verified   bool      `json:"verified"`
	FarmerID   string    `json:"farmer_id"`
	FarmerName string    `json:"farmer_name"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Detail is a session with its remaining access time.
type Detail struct {
	Session
	TimeRemainingSeconds int `json:"time_remaining_seconds"`
}

// Closure is the result of ending or revoking a session.
type Closure struct {
	Message string `json:"message"`
	Status  Status `json:"status"`
}

// LogEntry is one row of an agent's activity or a farmer's access log.
type LogEntry struct {
	ID              uuid.UUID  `json:"id"`
	SessionID       uuid.UUID  `json:"session_id,omitzero"`
	FarmerID        string     `json:"farmer_id"`
	FarmerName      string     `json:"farmer_name"`
	AgentName       string     `json:"agent_name"`
	CenterName      string     `json:"center_name"`
	Purpose         string     `json:"purpose"`
	RequestedAt     time.Time  `json:"requested_at"`
	SessionStart    *time.Time `json:"session_start"`
	SessionEnd      *time.Time `json:"session_end"`
	Status          Status     `json:"status"`
	EndReason       EndReason  `json:"end_reason,omitempty"`
	DurationSeconds *int       `json:"duration_seconds"`
	FormsCount      int        `json:"forms_count"`
}

// Entry projects the session as an access log row.
func (s *Session) Entry() LogEntry {
	e := LogEntry{
		ID:           s.ID,
		SessionID:    s.SessionID,
		FarmerID:     s.FarmerID,
		FarmerName:   s.FarmerName,
		AgentName:    s.AgentName,
		CenterName:   s.CenterName,
		Purpose:      s.Purpose,
		RequestedAt:  s.RequestedAt,
		SessionStart: s.StartedAt,
		SessionEnd:   s.EndedAt,
		Status:       s.Status,
		EndReason:    s.EndReason,
		FormsCount:   len(s.Forms),
	}
	if s.StartedAt != nil && s.EndedAt != nil {
		d := int(s.EndedAt.Sub(*s.StartedAt).Seconds())
		e.DurationSeconds = &d
	}
	return e
}

// Selector identifies the session a store operation targets.
// Zero fields are ignored; an empty Statuses matches any status.
type Selector struct {
	ID        uuid.UUID
	SessionID uuid.UUID
	AgentID   uuid.UUID
	FarmerID  string
	Statuses  []Status
}

// LogFilters scopes an access log listing to an agent or a farmer.
type LogFilters struct {
	AgentID  uuid.UUID
	FarmerID string
}

// Policy bounds the session protocol.
type Policy struct {
	SessionTTL     time.Duration
	ChallengeTTL   time.Duration
	MaxOTPAttempts int
	OTPLength      int
	OTPRateLimit   int
	OTPRateWindow  time.Duration
	OTPSecret      []byte
}
