package sessions_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JaimeStill/kisaanseva/internal/audit"
	"github.com/JaimeStill/kisaanseva/internal/farmers"
	"github.com/JaimeStill/kisaanseva/internal/identity"
	"github.com/JaimeStill/kisaanseva/internal/sessions"
	"github.com/JaimeStill/kisaanseva/pkg/events"
	"github.com/JaimeStill/kisaanseva/pkg/pagination"
	"github.com/JaimeStill/kisaanseva/pkg/ratelimit"
)

const (
	rajesh = "KSXR7BM2QAL"
	meena  = "KS4NJP8XWQT"
)

var (
	agentSunil   = uuid.MustParse("0b6d1c1e-5f4a-4c8e-9f55-3c1b7f1e2a01")
	agentPriya   = uuid.MustParse("0b6d1c1e-5f4a-4c8e-9f55-3c1b7f1e2a02")
	agentRetired = uuid.MustParse("0b6d1c1e-5f4a-4c8e-9f55-3c1b7f1e2a03")
)

var otpPattern = regexp.MustCompile(`OTP: (\d+)\.`)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type sender struct {
	mu       sync.Mutex
	messages map[string][]string
	fail     error
}

func (s *sender) Send(_ context.Context, phone, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	if s.messages == nil {
		s.messages = make(map[string][]string)
	}
	s.messages[phone] = append(s.messages[phone], message)
	return nil
}

func (s *sender) lastOTP(t *testing.T, phone string) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[phone]
	require.NotEmpty(t, msgs, "no message sent to %s", phone)
	m := otpPattern.FindStringSubmatch(msgs[len(msgs)-1])
	require.Len(t, m, 2)
	return m[1]
}

type harness struct {
	sys    sessions.System
	clock  *clock
	sender *sender
	audit  audit.System
}

func policy() sessions.Policy {
	return sessions.Policy{
		SessionTTL:     30 * time.Minute,
		ChallengeTTL:   5 * time.Minute,
		MaxOTPAttempts: 5,
		OTPLength:      6,
		OTPRateLimit:   5,
		OTPRateWindow:  time.Hour,
		OTPSecret:      []byte("test-otp-secret"),
	}
}

func newHarness(t *testing.T, p sessions.Policy, extraAgents ...identity.Agent) *harness {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pg := pagination.Config{DefaultPageSize: 20, MaxPageSize: 100}
	c := &clock{t: time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)}
	snd := &sender{}

	directory := farmers.NewMemoryStore(
		farmers.Farmer{FarmerID: rajesh, Name: "Rajesh Kumar", Phone: "9876543210", District: "Indore", State: "Madhya Pradesh"},
		farmers.Farmer{FarmerID: meena, Name: "Meena Devi", Phone: "9123456780", District: "Dewas", State: "Madhya Pradesh"},
	)

	agents := append([]identity.Agent{
		{ID: agentSunil, Name: "Sunil Verma", CenterName: "Jan Suvidha Kendra", IsActive: true},
		{ID: agentPriya, Name: "Priya Sharma", CenterName: "CSC Dewas", IsActive: true},
		{ID: agentRetired, Name: "Ramesh Gupta", CenterName: "CSC Ujjain", IsActive: false},
	}, extraAgents...)

	trail := audit.New(audit.NewMemoryStore(), events.NewLogPublisher(logger), "audit", logger, pg)

	sys := sessions.New(
		sessions.NewMemoryStore(),
		directory,
		identity.NewMemoryAgentStore(agents...),
		snd,
		ratelimit.NewMemory(c.Now),
		trail,
		p,
		logger,
		pg,
		sessions.WithClock(c.Now),
	)

	return &harness{sys: sys, clock: c, sender: snd, audit: trail}
}

// open runs the consent flow to an active session.
func (h *harness) open(t *testing.T, agentID uuid.UUID, farmerID, phone string) *sessions.Verification {
	t.Helper()
	ctx := context.Background()

	_, err := h.sys.RequestAccess(ctx, agentID, sessions.RequestCommand{FarmerID: farmerID, Purpose: "PM-KISAN registration"})
	require.NoError(t, err)

	v, err := h.sys.VerifyAccess(ctx, agentID, sessions.VerifyCommand{FarmerID: farmerID, OTP: h.sender.lastOTP(t, phone)})
	require.NoError(t, err)
	return v
}

func wrongOTP(correct string) string {
	b := []byte(correct)
	b[0] = '0' + (b[0]-'0'+1)%10
	return string(b)
}

func TestTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    sessions.Status
		event   sessions.Event
		want    sessions.Status
		wantErr bool
	}{
		{"dispatch", sessions.StatusRequested, sessions.EventDispatched, sessions.StatusAwaitingConsent, false},
		{"dispatch failure", sessions.StatusRequested, sessions.EventDispatchFailed, sessions.StatusExpired, false},
		{"verify", sessions.StatusAwaitingConsent, sessions.EventVerified, sessions.StatusActive, false},
		{"wrong otp", sessions.StatusAwaitingConsent, sessions.EventRejectedOTP, sessions.StatusAwaitingConsent, false},
		{"attempts exhausted", sessions.StatusAwaitingConsent, sessions.EventAttemptsExhausted, sessions.StatusExpired, false},
		{"challenge timeout", sessions.StatusAwaitingConsent, sessions.EventTimeout, sessions.StatusExpired, false},
		{"superseded", sessions.StatusAwaitingConsent, sessions.EventSuperseded, sessions.StatusExpired, false},
		{"end", sessions.StatusActive, sessions.EventEnd, sessions.StatusEnded, false},
		{"revoke", sessions.StatusActive, sessions.EventRevoke, sessions.StatusEnded, false},
		{"session timeout", sessions.StatusActive, sessions.EventTimeout, sessions.StatusExpired, false},
		{"verify active", sessions.StatusActive, sessions.EventVerified, sessions.StatusActive, true},
		{"end awaiting", sessions.StatusAwaitingConsent, sessions.EventEnd, sessions.StatusAwaitingConsent, true},
		{"verify requested", sessions.StatusRequested, sessions.EventVerified, sessions.StatusRequested, true},
		{"end ended", sessions.StatusEnded, sessions.EventEnd, sessions.StatusEnded, true},
		{"revive expired", sessions.StatusExpired, sessions.EventVerified, sessions.StatusExpired, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := sessions.Transition(tt.from, tt.event)
			if tt.wantErr {
				assert.ErrorIs(t, err, sessions.ErrInvalidState)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestScenarioAccessEndToEnd(t *testing.T) {
	h := newHarness(t, policy())
	ctx := context.Background()

	challenge, err := h.sys.RequestAccess(ctx, agentSunil, sessions.RequestCommand{
		FarmerID: rajesh,
		Purpose:  "PM-KISAN registration",
	})
	require.NoError(t, err)
	assert.Equal(t, rajesh, challenge.FarmerID)
	assert.NotEmpty(t, challenge.ChallengeRef)
	assert.Equal(t, h.clock.Now().Add(5*time.Minute), challenge.ExpiresAt)

	msg := h.sender.messages["9876543210"][0]
	assert.Contains(t, msg, "Agent Sunil Verma at Jan Suvidha Kendra")
	assert.Contains(t, msg, "for: PM-KISAN registration")

	otp := h.sender.lastOTP(t, "9876543210")
	assert.Len(t, otp, 6)

	v, err := h.sys.VerifyAccess(ctx, agentSunil, sessions.VerifyCommand{FarmerID: rajesh, OTP: otp})
	require.NoError(t, err)
	assert.True(t, v.Verified)
	assert.NotEqual(t, uuid.Nil, v.SessionID)
	assert.NotEqual(t, challenge.ChallengeRef, v.SessionID.String())
	assert.Equal(t, "Rajesh Kumar", v.FarmerName)

	s, err := h.sys.Authorize(ctx, v.SessionID)
	require.NoError(t, err)
	assert.Equal(t, sessions.StatusActive, s.Status)
	require.NoError(t, h.sys.RecordAction(ctx, v.SessionID, "view_schemes", ""))

	h.clock.Advance(10 * time.Minute)

	detail, err := h.sys.Find(ctx, agentSunil, v.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 20*60, detail.TimeRemainingSeconds)
	assert.Len(t, detail.Actions, 1)

	closure, err := h.sys.End(ctx, agentSunil, v.SessionID)
	require.NoError(t, err)
	assert.Equal(t, sessions.StatusEnded, closure.Status)

	log, err := h.sys.AccessLog(ctx, rajesh, pagination.PageRequest{})
	require.NoError(t, err)
	require.Equal(t, 1, log.Total)
	entry := log.Items[0]
	assert.Equal(t, sessions.StatusEnded, entry.Status)
	require.NotNil(t, entry.SessionEnd)
	require.NotNil(t, entry.DurationSeconds)
	assert.Equal(t, 600, *entry.DurationSeconds)
	assert.Equal(t, "Sunil Verma", entry.AgentName)

	_, err = h.sys.Authorize(ctx, v.SessionID)
	assert.ErrorIs(t, err, sessions.ErrInactive)

	trail, err := h.audit.List(ctx, pagination.PageRequest{}, audit.Filters{})
	require.NoError(t, err)
	assert.Equal(t, 3, trail.Total)
}

func TestEndIsIdempotent(t *testing.T) {
	h := newHarness(t, policy())
	ctx := context.Background()
	v := h.open(t, agentSunil, rajesh, "9876543210")

	first, err := h.sys.End(ctx, agentSunil, v.SessionID)
	require.NoError(t, err)
	second, err := h.sys.End(ctx, agentSunil, v.SessionID)
	require.NoError(t, err)

	assert.Equal(t, sessions.StatusEnded, first.Status)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, "Session already closed", second.Message)
}

func TestScenarioConflictWithAnotherAgent(t *testing.T) {
	h := newHarness(t, policy())
	ctx := context.Background()
	h.open(t, agentSunil, rajesh, "9876543210")

	_, err := h.sys.RequestAccess(ctx, agentPriya, sessions.RequestCommand{FarmerID: rajesh, Purpose: "KCC loan"})
	assert.ErrorIs(t, err, sessions.ErrConflict)

	t.Run("pending challenge also blocks", func(t *testing.T) {
		_, err := h.sys.RequestAccess(ctx, agentPriya, sessions.RequestCommand{FarmerID: meena, Purpose: "PMFBY"})
		require.NoError(t, err)

		_, err = h.sys.RequestAccess(ctx, agentSunil, sessions.RequestCommand{FarmerID: meena, Purpose: "PMFBY"})
		assert.ErrorIs(t, err, sessions.ErrConflict)
	})

	t.Run("own active session blocks", func(t *testing.T) {
		_, err := h.sys.RequestAccess(ctx, agentSunil, sessions.RequestCommand{FarmerID: rajesh, Purpose: "again"})
		assert.ErrorIs(t, err, sessions.ErrConflict)
	})
}

func TestScenarioAttemptsExhausted(t *testing.T) {
	h := newHarness(t, policy())
	ctx := context.Background()

	_, err := h.sys.RequestAccess(ctx, agentSunil, sessions.RequestCommand{FarmerID: rajesh, Purpose: "PM-KISAN registration"})
	require.NoError(t, err)
	otp := h.sender.lastOTP(t, "9876543210")

	for i := range 5 {
		_, err := h.sys.VerifyAccess(ctx, agentSunil, sessions.VerifyCommand{FarmerID: rajesh, OTP: wrongOTP(otp)})
		require.ErrorIs(t, err, sessions.ErrInvalidOtp, "attempt %d", i+1)
	}

	_, err = h.sys.VerifyAccess(ctx, agentSunil, sessions.VerifyCommand{FarmerID: rajesh, OTP: otp})
	assert.ErrorIs(t, err, sessions.ErrInvalidOtp)

	log, err := h.sys.AccessLog(ctx, rajesh, pagination.PageRequest{})
	require.NoError(t, err)
	require.Equal(t, 1, log.Total)
	assert.Equal(t, sessions.StatusExpired, log.Items[0].Status)
	assert.Equal(t, sessions.ReasonAttemptsExhausted, log.Items[0].EndReason)

	_, err = h.sys.RequestAccess(ctx, agentSunil, sessions.RequestCommand{FarmerID: rajesh, Purpose: "PM-KISAN registration"})
	require.NoError(t, err)
	v, err := h.sys.VerifyAccess(ctx, agentSunil, sessions.VerifyCommand{FarmerID: rajesh, OTP: h.sender.lastOTP(t, "9876543210")})
	require.NoError(t, err)
	assert.True(t, v.Verified)
}

func TestWrongOTPWithinBoundCanRecover(t *testing.T) {
	h := newHarness(t, policy())
	ctx := context.Background()

	_, err := h.sys.RequestAccess(ctx, agentSunil, sessions.RequestCommand{FarmerID: rajesh, Purpose: "soil card"})
	require.NoError(t, err)
	otp := h.sender.lastOTP(t, "9876543210")

	for range 4 {
		_, err := h.sys.VerifyAccess(ctx, agentSunil, sessions.VerifyCommand{FarmerID: rajesh, OTP: wrongOTP(otp)})
		require.ErrorIs(t, err, sessions.ErrInvalidOtp)
	}

	v, err := h.sys.VerifyAccess(ctx, agentSunil, sessions.VerifyCommand{FarmerID: rajesh, OTP: otp})
	require.NoError(t, err)

	detail, err := h.sys.Find(ctx, agentSunil, v.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 5, detail.OTPAttempts)
}

func TestChallengeExpires(t *testing.T) {
	h := newHarness(t, policy())
	ctx := context.Background()

	_, err := h.sys.RequestAccess(ctx, agentSunil, sessions.RequestCommand{FarmerID: rajesh, Purpose: "PM-KISAN registration"})
	require.NoError(t, err)
	otp := h.sender.lastOTP(t, "9876543210")

	h.clock.Advance(5 * time.Minute)

	_, err = h.sys.VerifyAccess(ctx, agentSunil, sessions.VerifyCommand{FarmerID: rajesh, OTP: otp})
	assert.ErrorIs(t, err, sessions.ErrInvalidOtp)

	_, err = h.sys.RequestAccess(ctx, agentPriya, sessions.RequestCommand{FarmerID: rajesh, Purpose: "KCC loan"})
	assert.NoError(t, err, "expired challenge must release the farmer")
}

func TestSessionTimeout(t *testing.T) {
	h := newHarness(t, policy())
	ctx := context.Background()
	v := h.open(t, agentSunil, rajesh, "9876543210")

	h.clock.Advance(29 * time.Minute)
	_, err := h.sys.Authorize(ctx, v.SessionID)
	require.NoError(t, err, "access is not renewed by reads")

	h.clock.Advance(time.Minute)
	_, err = h.sys.Authorize(ctx, v.SessionID)
	assert.ErrorIs(t, err, sessions.ErrInactive)

	detail, err := h.sys.Find(ctx, agentSunil, v.SessionID)
	require.NoError(t, err)
	assert.Equal(t, sessions.StatusExpired, detail.Status)
	assert.Equal(t, sessions.ReasonTimeout, detail.EndReason)
	assert.Zero(t, detail.TimeRemainingSeconds)

	closure, err := h.sys.End(ctx, agentSunil, v.SessionID)
	require.NoError(t, err)
	assert.Equal(t, sessions.StatusExpired, closure.Status)
}

func TestSweep(t *testing.T) {
	h := newHarness(t, policy())
	ctx := context.Background()

	v := h.open(t, agentSunil, rajesh, "9876543210")
	_, err := h.sys.RequestAccess(ctx, agentPriya, sessions.RequestCommand{FarmerID: meena, Purpose: "PMFBY"})
	require.NoError(t, err)

	n, err := h.sys.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	h.clock.Advance(31 * time.Minute)

	n, err = h.sys.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = h.sys.Authorize(ctx, v.SessionID)
	assert.ErrorIs(t, err, sessions.ErrInactive)
}

func TestSameAgentRequestSupersedesChallenge(t *testing.T) {
	h := newHarness(t, policy())
	ctx := context.Background()

	_, err := h.sys.RequestAccess(ctx, agentSunil, sessions.RequestCommand{FarmerID: rajesh, Purpose: "PM-KISAN registration"})
	require.NoError(t, err)
	stale := h.sender.lastOTP(t, "9876543210")

	_, err = h.sys.RequestAccess(ctx, agentSunil, sessions.RequestCommand{FarmerID: rajesh, Purpose: "PM-KISAN registration"})
	require.NoError(t, err)
	fresh := h.sender.lastOTP(t, "9876543210")

	if stale != fresh {
		_, err = h.sys.VerifyAccess(ctx, agentSunil, sessions.VerifyCommand{FarmerID: rajesh, OTP: stale})
		require.ErrorIs(t, err, sessions.ErrInvalidOtp)
	}

	_, err = h.sys.VerifyAccess(ctx, agentSunil, sessions.VerifyCommand{FarmerID: rajesh, OTP: fresh})
	require.NoError(t, err)

	log, err := h.sys.Activity(ctx, agentSunil, pagination.PageRequest{})
	require.NoError(t, err)
	require.Equal(t, 2, log.Total)

	statuses := []sessions.Status{log.Items[0].Status, log.Items[1].Status}
	assert.ElementsMatch(t, []sessions.Status{sessions.StatusActive, sessions.StatusExpired}, statuses)
}

func TestRequestAccessErrors(t *testing.T) {
	h := newHarness(t, policy())
	ctx := context.Background()

	tests := []struct {
		name    string
		agent   uuid.UUID
		cmd     sessions.RequestCommand
		wantErr error
	}{
		{"unknown farmer", agentSunil, sessions.RequestCommand{FarmerID: "KS000000000", Purpose: "x"}, sessions.ErrFarmerNotFound},
		{"missing purpose", agentSunil, sessions.RequestCommand{FarmerID: rajesh, Purpose: "  "}, sessions.ErrInvalidRequest},
		{"missing farmer", agentSunil, sessions.RequestCommand{Purpose: "x"}, sessions.ErrInvalidRequest},
		{"inactive agent", agentRetired, sessions.RequestCommand{FarmerID: rajesh, Purpose: "x"}, identity.ErrAgentInactive},
		{"unknown agent", uuid.New(), sessions.RequestCommand{FarmerID: rajesh, Purpose: "x"}, identity.ErrAgentNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.sys.RequestAccess(ctx, tt.agent, tt.cmd)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRequestAccessByPhone(t *testing.T) {
	h := newHarness(t, policy())

	challenge, err := h.sys.RequestAccess(context.Background(), agentSunil, sessions.RequestCommand{
		FarmerID: "9123456780",
		Purpose:  "PMFBY",
	})
	require.NoError(t, err)
	assert.Equal(t, meena, challenge.FarmerID)
}

func TestOTPRateLimit(t *testing.T) {
	h := newHarness(t, policy())
	ctx := context.Background()
	cmd := sessions.RequestCommand{FarmerID: rajesh, Purpose: "PM-KISAN registration"}

	for i := range 5 {
		_, err := h.sys.RequestAccess(ctx, agentSunil, cmd)
		require.NoError(t, err, "request %d", i+1)
	}

	_, err := h.sys.RequestAccess(ctx, agentSunil, cmd)
	assert.ErrorIs(t, err, sessions.ErrRateLimited)

	var limited *sessions.RateLimitError
	require.ErrorAs(t, err, &limited)
	assert.Positive(t, limited.RetryAfter())
	assert.LessOrEqual(t, limited.RetryAfter(), time.Hour)

	h.clock.Advance(time.Hour)
	_, err = h.sys.RequestAccess(ctx, agentSunil, cmd)
	assert.NoError(t, err)
}

func TestConflictsDoNotSpendOTPBudget(t *testing.T) {
	h := newHarness(t, policy())
	ctx := context.Background()
	v := h.open(t, agentSunil, rajesh, "9876543210")

	for range 10 {
		_, err := h.sys.RequestAccess(ctx, agentPriya, sessions.RequestCommand{FarmerID: rajesh, Purpose: "KCC loan"})
		require.ErrorIs(t, err, sessions.ErrConflict)
	}

	_, err := h.sys.End(ctx, agentSunil, v.SessionID)
	require.NoError(t, err)

	_, err = h.sys.RequestAccess(ctx, agentPriya, sessions.RequestCommand{FarmerID: rajesh, Purpose: "KCC loan"})
	assert.NoError(t, err)
}

func TestRateLimitedRequestReleasesFarmer(t *testing.T) {
	p := policy()
	p.OTPRateLimit = 1
	h := newHarness(t, p)
	ctx := context.Background()
	cmd := sessions.RequestCommand{FarmerID: rajesh, Purpose: "PM-KISAN registration"}

	_, err := h.sys.RequestAccess(ctx, agentSunil, cmd)
	require.NoError(t, err)

	_, err = h.sys.RequestAccess(ctx, agentSunil, cmd)
	require.ErrorIs(t, err, sessions.ErrRateLimited)

	log, err := h.sys.AccessLog(ctx, rajesh, pagination.PageRequest{})
	require.NoError(t, err)
	reasons := make([]sessions.EndReason, 0, len(log.Items))
	for _, e := range log.Items {
		reasons = append(reasons, e.EndReason)
	}
	assert.Contains(t, reasons, sessions.ReasonDispatchFailed)

	_, err = h.sys.RequestAccess(ctx, agentPriya, cmd)
	assert.ErrorIs(t, err, sessions.ErrRateLimited, "farmer is not held by the refused request")
}

func TestNilSessionIDSelectsNothing(t *testing.T) {
	h := newHarness(t, policy())
	ctx := context.Background()
	h.open(t, agentSunil, rajesh, "9876543210")

	_, err := h.sys.Find(ctx, agentSunil, uuid.Nil)
	assert.ErrorIs(t, err, sessions.ErrNotFound)

	_, err = h.sys.Authorize(ctx, uuid.Nil)
	assert.ErrorIs(t, err, sessions.ErrNotFound)

	_, err = h.sys.End(ctx, agentSunil, uuid.Nil)
	assert.ErrorIs(t, err, sessions.ErrNotFound)

	_, err = h.sys.Revoke(ctx, rajesh, uuid.Nil)
	assert.ErrorIs(t, err, sessions.ErrNotFound)

	assert.ErrorIs(t, h.sys.RecordAction(ctx, uuid.Nil, "view", ""), sessions.ErrInactive)
	assert.ErrorIs(t, h.sys.RecordForm(ctx, uuid.Nil, sessions.Form{}), sessions.ErrInactive)

	log, err := h.sys.Activity(ctx, agentSunil, pagination.PageRequest{})
	require.NoError(t, err)
	require.Equal(t, 1, log.Total)
	assert.Equal(t, sessions.StatusActive, log.Items[0].Status)
	assert.Zero(t, log.Items[0].FormsCount)
}

func TestDispatchFailureReleasesFarmer(t *testing.T) {
	h := newHarness(t, policy())
	ctx := context.Background()
	cmd := sessions.RequestCommand{FarmerID: rajesh, Purpose: "PM-KISAN registration"}

	h.sender.fail = errors.New("gateway unavailable")
	_, err := h.sys.RequestAccess(ctx, agentSunil, cmd)
	require.ErrorIs(t, err, sessions.ErrOtpDelivery)
	assert.NotErrorIs(t, err, sessions.ErrInvalidOtp)

	log, err := h.sys.AccessLog(ctx, rajesh, pagination.PageRequest{})
	require.NoError(t, err)
	require.Equal(t, 1, log.Total)
	assert.Equal(t, sessions.ReasonDispatchFailed, log.Items[0].EndReason)

	h.sender.fail = nil
	_, err = h.sys.RequestAccess(ctx, agentPriya, cmd)
	assert.NoError(t, err)
}

func TestFindIsScopedToAgent(t *testing.T) {
	h := newHarness(t, policy())
	v := h.open(t, agentSunil, rajesh, "9876543210")

	_, err := h.sys.Find(context.Background(), agentPriya, v.SessionID)
	assert.ErrorIs(t, err, sessions.ErrNotFound)

	_, err = h.sys.End(context.Background(), agentPriya, v.SessionID)
	assert.ErrorIs(t, err, sessions.ErrNotFound)
}

func TestRevoke(t *testing.T) {
	h := newHarness(t, policy())
	ctx := context.Background()
	v := h.open(t, agentSunil, rajesh, "9876543210")

	_, err := h.sys.Revoke(ctx, meena, v.SessionID)
	assert.ErrorIs(t, err, sessions.ErrNotFound)

	closure, err := h.sys.Revoke(ctx, rajesh, v.SessionID)
	require.NoError(t, err)
	assert.Equal(t, sessions.StatusEnded, closure.Status)

	_, err = h.sys.Authorize(ctx, v.SessionID)
	assert.ErrorIs(t, err, sessions.ErrInactive)

	detail, err := h.sys.Find(ctx, agentSunil, v.SessionID)
	require.NoError(t, err)
	assert.Equal(t, sessions.ReasonRevoked, detail.EndReason)
}

func TestRecordForm(t *testing.T) {
	h := newHarness(t, policy())
	ctx := context.Background()
	v := h.open(t, agentSunil, rajesh, "9876543210")

	err := h.sys.RecordForm(ctx, v.SessionID, sessions.Form{
		FileKey:  "forms/KSXR7BM2QAL/x/KSXR7BM2QAL_pm-kisan_20260601.pdf",
		FileName: "KSXR7BM2QAL_pm-kisan_20260601.pdf",
		SchemeID: "pm-kisan",
	})
	require.NoError(t, err)

	log, err := h.sys.Activity(ctx, agentSunil, pagination.PageRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, log.Items[0].FormsCount)

	_, err = h.sys.End(ctx, agentSunil, v.SessionID)
	require.NoError(t, err)
	assert.ErrorIs(t, h.sys.RecordForm(ctx, v.SessionID, sessions.Form{}), sessions.ErrInactive)
	assert.ErrorIs(t, h.sys.RecordAction(ctx, v.SessionID, "view", ""), sessions.ErrInactive)
}

func TestConcurrentRequestsYieldOneOpenSession(t *testing.T) {
	p := policy()
	p.OTPRateLimit = 100

	const n = 12
	extra := make([]identity.Agent, n)
	for i := range extra {
		extra[i] = identity.Agent{ID: uuid.New(), Name: "Agent", CenterName: "CSC", IsActive: true}
	}
	h := newHarness(t, p, extra...)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok        int
		conflicts int
	)
	for _, a := range extra {
		wg.Go(func() {
			_, err := h.sys.RequestAccess(context.Background(), a.ID, sessions.RequestCommand{FarmerID: rajesh, Purpose: "x"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, sessions.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, conflicts)
}

func TestConcurrentVerifyActivatesOnce(t *testing.T) {
	h := newHarness(t, policy())
	ctx := context.Background()

	_, err := h.sys.RequestAccess(ctx, agentSunil, sessions.RequestCommand{FarmerID: rajesh, Purpose: "x"})
	require.NoError(t, err)
	otp := h.sender.lastOTP(t, "9876543210")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted []uuid.UUID
	)
	for range 8 {
		wg.Go(func() {
			v, err := h.sys.VerifyAccess(ctx, agentSunil, sessions.VerifyCommand{FarmerID: rajesh, OTP: otp})
			if err != nil {
				assert.ErrorIs(t, err, sessions.ErrInvalidOtp)
				return
			}
			mu.Lock()
			granted = append(granted, v.SessionID)
			mu.Unlock()
		})
	}
	wg.Wait()

	assert.Len(t, granted, 1)
}
