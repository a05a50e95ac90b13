package sessions

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/JaimeStill/kisaanseva/pkg/query"
	"github.com/JaimeStill/kisaanseva/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "agent_sessions", "s").
	Join("farmers", "f", "f.farmer_id = s.farmer_id").
	Join("agents", "a", "a.id = s.agent_id").
	Project("id", "ID").
	Project("challenge_ref", "ChallengeRef").
	Project("session_id", "SessionID").
	Project("farmer_id", "FarmerID").
	ProjectFrom("f", "name", "FarmerName").
	Project("agent_id", "AgentID").
	ProjectFrom("a", "name", "AgentName").
	ProjectFrom("a", "center_name", "CenterName").
	Project("purpose", "Purpose").
	Project("status", "Status").
	Project("otp_hash", "OTPHash").
	Project("otp_attempts", "OTPAttempts").
	Project("requested_at", "RequestedAt").
	Project("challenge_expires_at", "ChallengeExpiresAt").
	Project("otp_verified_at", "OTPVerifiedAt").
	Project("started_at", "StartedAt").
	Project("expires_at", "ExpiresAt").
	Project("ended_at", "EndedAt").
	Project("end_reason", "EndReason").
	Project("actions_taken", "Actions").
	Project("forms_downloaded", "Forms")

var defaultSort = query.SortField{Field: "RequestedAt", Descending: true}

func scanSession(s repository.Scanner) (Session, error) {
	var (
		ss        Session
		sessionID uuid.NullUUID
		reason    sql.NullString
		actions   []byte
		forms     []byte
	)
	err := s.Scan(
		&ss.ID,
		&ss.ChallengeRef,
		&sessionID,
		&ss.FarmerID,
		&ss.FarmerName,
		&ss.AgentID,
		&ss.AgentName,
		&ss.CenterName,
		&ss.Purpose,
		&ss.Status,
		&ss.OTPHash,
		&ss.OTPAttempts,
		&ss.RequestedAt,
		&ss.ChallengeExpiresAt,
		&ss.OTPVerifiedAt,
		&ss.StartedAt,
		&ss.ExpiresAt,
		&ss.EndedAt,
		&reason,
		&actions,
		&forms,
	)
	if err != nil {
		return ss, err
	}

	ss.SessionID = sessionID.UUID
	ss.EndReason = EndReason(reason.String)

	if err := json.Unmarshal(actions, &ss.Actions); err != nil {
		return ss, fmt.Errorf("decode actions: %w", err)
	}
	if err := json.Unmarshal(forms, &ss.Forms); err != nil {
		return ss, fmt.Errorf("decode forms: %w", err)
	}
	return ss, nil
}

// apply adds the selector's non-zero fields as conditions.
func (sel Selector) apply(b *query.Builder) *query.Builder {
	if sel.ID != uuid.Nil {
		b.WhereEquals("ID", sel.ID)
	}
	if sel.SessionID != uuid.Nil {
		b.WhereEquals("SessionID", sel.SessionID)
	}
	if sel.AgentID != uuid.Nil {
		b.WhereEquals("AgentID", sel.AgentID)
	}
	if sel.FarmerID != "" {
		b.WhereEquals("FarmerID", sel.FarmerID)
	}
	if len(sel.Statuses) > 0 {
		values := make([]any, len(sel.Statuses))
		for i, st := range sel.Statuses {
			values[i] = string(st)
		}
		b.WhereIn("Status", values)
	}
	return b
}

func (sel Selector) matches(s *Session) bool {
	if sel.ID != uuid.Nil && sel.ID != s.ID {
		return false
	}
	if sel.SessionID != uuid.Nil && sel.SessionID != s.SessionID {
		return false
	}
	if sel.AgentID != uuid.Nil && sel.AgentID != s.AgentID {
		return false
	}
	if sel.FarmerID != "" && sel.FarmerID != s.FarmerID {
		return false
	}
	if len(sel.Statuses) > 0 {
		for _, st := range sel.Statuses {
			if st == s.Status {
				return true
			}
		}
		return false
	}
	return true
}

func (f LogFilters) apply(b *query.Builder) *query.Builder {
	if f.AgentID != uuid.Nil {
		b.WhereEquals("AgentID", f.AgentID)
	}
	if f.FarmerID != "" {
		b.WhereEquals("FarmerID", f.FarmerID)
	}
	return b
}

func (f LogFilters) matches(s *Session) bool {
	return Selector{AgentID: f.AgentID, FarmerID: f.FarmerID}.matches(s)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullUUID(id uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: id, Valid: id != uuid.Nil}
}

func encodeList[T any](items []T) ([]byte, error) {
	if items == nil {
		items = []T{}
	}
	return json.Marshal(items)
}
