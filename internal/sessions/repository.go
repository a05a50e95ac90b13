package sessions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/kisaanseva/internal/audit"
	"github.com/JaimeStill/kisaanseva/internal/farmers"
	"github.com/JaimeStill/kisaanseva/internal/identity"
	"github.com/JaimeStill/kisaanseva/pkg/metrics"
	"github.com/JaimeStill/kisaanseva/pkg/pagination"
	"github.com/JaimeStill/kisaanseva/pkg/ratelimit"
)

// Option configures the session manager.
type Option func(*repo)

// WithClock replaces the wall clock used for every timestamp and ceiling.
func WithClock(now func() time.Time) Option {
	return func(r *repo) {
		r.now = now
	}
}

type repo struct {
	store      Store
	farmers    Farmers
	agents     Agents
	sender     Sender
	limiter    ratelimit.Limiter
	recorder   audit.Recorder
	policy     Policy
	now        func() time.Time
	logger     *slog.Logger
	pagination pagination.Config
}

// New creates the access session manager.
func New(
	store Store,
	farmers Farmers,
	agents Agents,
	sender Sender,
	limiter ratelimit.Limiter,
	recorder audit.Recorder,
	policy Policy,
	logger *slog.Logger,
	pagination pagination.Config,
	opts ...Option,
) System {
	r := &repo{
		store:      store,
		farmers:    farmers,
		agents:     agents,
		sender:     sender,
		limiter:    limiter,
		recorder:   recorder,
		policy:     policy,
		now:        time.Now,
		logger:     logger.With("system", "sessions"),
		pagination: pagination,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *repo) Handler() *Handler {
	return NewHandler(r, r.logger, r.pagination)
}

func (r *repo) RequestAccess(ctx context.Context, agentID uuid.UUID, cmd RequestCommand) (*Challenge, error) {
	query := strings.TrimSpace(cmd.FarmerID)
	purpose := strings.TrimSpace(cmd.Purpose)
	if query == "" || purpose == "" {
		return nil, fmt.Errorf("%w: farmer_id and purpose are required", ErrInvalidRequest)
	}

	agent, err := r.agents.FindAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if !agent.IsActive {
		return nil, identity.ErrAgentInactive
	}

	farmer, err := r.farmers.Resolve(ctx, query)
	if err != nil {
		if errors.Is(err, farmers.ErrNotFound) {
			return nil, ErrFarmerNotFound
		}
		return nil, fmt.Errorf("resolve farmer: %w", err)
	}

	code, err := generateOTP(r.policy.OTPLength)
	if err != nil {
		return nil, err
	}

	now := r.now()
	s := &Session{
		ID:                 uuid.New(),
		ChallengeRef:       uuid.NewString(),
		FarmerID:           farmer.FarmerID,
		FarmerName:         farmer.Name,
		AgentID:            agent.ID,
		AgentName:          agent.Name,
		CenterName:         agent.CenterName,
		Purpose:            purpose,
		Status:             StatusRequested,
		RequestedAt:        now,
		ChallengeExpiresAt: now.Add(r.policy.ChallengeTTL),
	}
	s.OTPHash = hashOTP(r.policy.OTPSecret, s.ChallengeRef, code)

	if err := r.store.Open(ctx, s, now); err != nil {
		return nil, err
	}
	metrics.SessionTransitions.WithLabelValues("requested").Inc()

	// The budget is charged only once the session is open so that requests
	// refused as conflicts do not consume it.
	decision, err := r.limiter.Allow(ctx, "otp:"+farmer.Phone, r.policy.OTPRateLimit, r.policy.OTPRateWindow)
	if err != nil {
		r.transition(context.WithoutCancel(ctx), s.ID, EventDispatchFailed)
		return nil, fmt.Errorf("otp rate limit: %w", err)
	}
	if !decision.Allowed {
		r.logger.Warn("otp rate limited", "farmer_id", farmer.FarmerID, "reset_at", decision.ResetAt)
		r.transition(context.WithoutCancel(ctx), s.ID, EventDispatchFailed)
		return nil, &RateLimitError{ResetAt: decision.ResetAt, now: r.now()}
	}

	message := consentMessage(agent.Name, agent.CenterName, purpose, code, r.policy.ChallengeTTL)
	if err := r.sender.Send(ctx, farmer.Phone, message); err != nil {
		r.logger.Error("otp dispatch failed", "farmer_id", s.FarmerID, "error", err)
		r.transition(context.WithoutCancel(ctx), s.ID, EventDispatchFailed)
		return nil, fmt.Errorf("%w: %v", ErrOtpDelivery, err)
	}

	if _, err := r.store.Update(ctx, Selector{ID: s.ID}, func(s *Session) error {
		return s.apply(EventDispatched, r.now())
	}); err != nil {
		return nil, err
	}
	metrics.SessionTransitions.WithLabelValues(string(EventDispatched)).Inc()

	r.logger.Info("access requested",
		"farmer_id", s.FarmerID,
		"agent_id", agent.ID,
		"challenge_ref", s.ChallengeRef,
	)
	r.audit(ctx, agent.ID.String(), "session.requested", s, map[string]any{"purpose": purpose})

	return &Challenge{
		Message:      "OTP sent to the farmer's registered phone",
		FarmerID:     s.FarmerID,
		ChallengeRef: s.ChallengeRef,
		ExpiresAt:    s.ChallengeExpiresAt,
	}, nil
}

func (r *repo) VerifyAccess(ctx context.Context, agentID uuid.UUID, cmd VerifyCommand) (*Verification, error) {
	farmerID := strings.TrimSpace(cmd.FarmerID)
	if farmerID == "" {
		return nil, fmt.Errorf("%w: farmer_id is required", ErrInvalidRequest)
	}

	sel := Selector{
		AgentID:  agentID,
		FarmerID: farmerID,
		Statuses: []Status{StatusAwaitingConsent},
	}

	var event Event
	s, err := r.store.Update(ctx, sel, func(s *Session) error {
		now := r.now()
		if s.settle(now) {
			event = EventTimeout
			return ErrInvalidOtp
		}

		s.OTPAttempts++
		if !verifyOTP(r.policy.OTPSecret, s, strings.TrimSpace(cmd.OTP)) {
			event = EventRejectedOTP
			if s.OTPAttempts >= r.policy.MaxOTPAttempts {
				event = EventAttemptsExhausted
			}
			if err := s.apply(event, now); err != nil {
				return err
			}
			return ErrInvalidOtp
		}

		event = EventVerified
		return s.activate(now, r.policy.SessionTTL)
	})

	switch {
	case errors.Is(err, ErrNotFound):
		metrics.OTPVerifications.WithLabelValues("no_challenge").Inc()
		return nil, ErrInvalidOtp
	case s == nil:
		return nil, err
	}

	metrics.OTPVerifications.WithLabelValues(string(event)).Inc()
	if event != EventRejectedOTP {
		metrics.SessionTransitions.WithLabelValues(string(event)).Inc()
	}

	if err != nil {
		if event == EventAttemptsExhausted {
			r.logger.Warn("otp attempts exhausted", "farmer_id", s.FarmerID, "agent_id", agentID)
			r.audit(ctx, agentID.String(), "session.attempts_exhausted", s, nil)
		}
		return nil, err
	}

	r.logger.Info("access granted",
		"farmer_id", s.FarmerID,
		"agent_id", agentID,
		"session_id", s.SessionID,
	)
	r.audit(ctx, agentID.String(), "session.verified", s, nil)

	return &Verification{
		SessionID:  s.SessionID,
		Verified:   true,
		FarmerID:   s.FarmerID,
		FarmerName: s.FarmerName,
		ExpiresAt:  *s.ExpiresAt,
	}, nil
}

func (r *repo) Find(ctx context.Context, agentID, sessionID uuid.UUID) (*Detail, error) {
	if sessionID == uuid.Nil {
		return nil, ErrNotFound
	}
	s, err := r.current(ctx, Selector{SessionID: sessionID, AgentID: agentID})
	if err != nil {
		return nil, err
	}
	return &Detail{
		Session:              *s,
		TimeRemainingSeconds: s.Remaining(r.now()),
	}, nil
}

func (r *repo) End(ctx context.Context, agentID, sessionID uuid.UUID) (*Closure, error) {
	closure, err := r.close(ctx, Selector{SessionID: sessionID, AgentID: agentID}, EventEnd)
	if err != nil {
		return nil, err
	}
	r.logger.Info("session end requested", "session_id", sessionID, "status", closure.Status)
	return closure, nil
}

func (r *repo) Revoke(ctx context.Context, farmerID string, sessionID uuid.UUID) (*Closure, error) {
	closure, err := r.close(ctx, Selector{SessionID: sessionID, FarmerID: farmerID}, EventRevoke)
	if err != nil {
		return nil, err
	}
	r.logger.Info("session revoke requested", "session_id", sessionID, "status", closure.Status)
	return closure, nil
}

func (r *repo) Authorize(ctx context.Context, sessionID uuid.UUID) (*Session, error) {
	if sessionID == uuid.Nil {
		return nil, ErrNotFound
	}
	s, err := r.current(ctx, Selector{SessionID: sessionID})
	if err != nil {
		return nil, err
	}
	if s.Status != StatusActive {
		return nil, ErrInactive
	}
	return s, nil
}

func (r *repo) RecordAction(ctx context.Context, sessionID uuid.UUID, action, detail string) error {
	if sessionID == uuid.Nil {
		return ErrInactive
	}
	sel := Selector{SessionID: sessionID, Statuses: []Status{StatusActive}}
	_, err := r.store.Update(ctx, sel, func(s *Session) error {
		s.Actions = append(s.Actions, Action{Action: action, At: r.now(), Detail: detail})
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return ErrInactive
	}
	return err
}

func (r *repo) RecordForm(ctx context.Context, sessionID uuid.UUID, form Form) error {
	if sessionID == uuid.Nil {
		return ErrInactive
	}
	if form.At.IsZero() {
		form.At = r.now()
	}
	sel := Selector{SessionID: sessionID, Statuses: []Status{StatusActive}}
	s, err := r.store.Update(ctx, sel, func(s *Session) error {
		s.Forms = append(s.Forms, form)
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return ErrInactive
	}
	if err != nil {
		return err
	}
	r.audit(ctx, s.AgentID.String(), "session.form_generated", s, map[string]any{
		"file_key":  form.FileKey,
		"scheme_id": form.SchemeID,
	})
	return nil
}

func (r *repo) Activity(
	ctx context.Context,
	agentID uuid.UUID,
	page pagination.PageRequest,
) (*pagination.PageResult[LogEntry], error) {
	return r.log(ctx, LogFilters{AgentID: agentID}, page)
}

func (r *repo) AccessLog(
	ctx context.Context,
	farmerID string,
	page pagination.PageRequest,
) (*pagination.PageResult[LogEntry], error) {
	return r.log(ctx, LogFilters{FarmerID: farmerID}, page)
}

func (r *repo) Sweep(ctx context.Context) (int, error) {
	n, err := r.store.ExpireOverdue(ctx, r.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.SweepExpirations.Add(float64(n))
		r.logger.Info("expired overdue sessions", "count", n)
	}
	return n, nil
}

// current reads the selected session, expiring it first when it is overdue.
func (r *repo) current(ctx context.Context, sel Selector) (*Session, error) {
	s, err := r.store.Get(ctx, sel)
	if err != nil {
		return nil, err
	}
	if !s.Status.Open() || !s.Overdue(r.now()) {
		return s, nil
	}

	s, err = r.store.Update(ctx, Selector{ID: s.ID}, func(s *Session) error {
		if s.settle(r.now()) {
			metrics.SessionTransitions.WithLabelValues(string(EventTimeout)).Inc()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.logger.Info("session expired on access", "session_id", s.SessionID, "farmer_id", s.FarmerID)
	return s, nil
}

// close applies event to an active session. Overdue sessions expire instead
// and sessions already closed are returned unchanged.
// A zero SessionID would select any session, so it is never found.
func (r *repo) close(ctx context.Context, sel Selector, event Event) (*Closure, error) {
	if sel.SessionID == uuid.Nil {
		return nil, ErrNotFound
	}

	var applied Event
	s, err := r.store.Update(ctx, sel, func(s *Session) error {
		now := r.now()
		if s.settle(now) {
			applied = EventTimeout
			return nil
		}
		if s.Status != StatusActive {
			return nil
		}
		applied = event
		return s.apply(event, now)
	})
	if err != nil {
		return nil, err
	}

	message := "Session already closed"
	switch applied {
	case EventTimeout:
		message = "Session had already expired"
	case EventEnd:
		message = "Session ended"
	case EventRevoke:
		message = "Session revoked"
	}

	if applied != "" {
		metrics.SessionTransitions.WithLabelValues(string(applied)).Inc()
		actor := s.AgentID.String()
		if event == EventRevoke {
			actor = s.FarmerID
		}
		r.audit(ctx, actor, "session."+string(applied), s, map[string]any{
			"actions": len(s.Actions),
			"forms":   len(s.Forms),
		})
	}

	return &Closure{Message: message, Status: s.Status}, nil
}

func (r *repo) transition(ctx context.Context, id uuid.UUID, event Event) {
	_, err := r.store.Update(ctx, Selector{ID: id}, func(s *Session) error {
		return s.apply(event, r.now())
	})
	if err != nil {
		r.logger.Error("session transition failed", "id", id, "event", event, "error", err)
		return
	}
	metrics.SessionTransitions.WithLabelValues(string(event)).Inc()
}

func (r *repo) log(
	ctx context.Context,
	filters LogFilters,
	page pagination.PageRequest,
) (*pagination.PageResult[LogEntry], error) {
	page.Normalize(r.pagination)

	result, err := r.store.List(ctx, filters, page)
	if err != nil {
		return nil, err
	}

	now := r.now()
	entries := make([]LogEntry, len(result.Items))
	for i, s := range result.Items {
		s.settle(now)
		entries[i] = s.Entry()
	}

	out := pagination.NewPageResult(entries, result.Total, result.Page, result.PageSize)
	return &out, nil
}

func (r *repo) audit(ctx context.Context, actor, action string, s *Session, details map[string]any) {
	if details == nil {
		details = map[string]any{}
	}
	details["farmer_id"] = s.FarmerID
	if s.SessionID != uuid.Nil {
		details["session_id"] = s.SessionID.String()
	}
	r.recorder.Record(ctx, audit.Event{
		Actor:       actor,
		Action:      action,
		SubjectType: audit.SubjectSession,
		SubjectID:   s.ID.String(),
		Details:     details,
	})
}
