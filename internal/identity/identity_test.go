package identity_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/JaimeStill/kisaanseva/internal/identity"
)

const secret = "0123456789abcdef0123456789abcdef"

var (
	now     = time.Date(2026, 6, 1, 9, 30, 0, 0, time.UTC)
	agentID = uuid.MustParse("3f2b8c1e-6a4d-4e9b-9c7a-1d2e3f4a5b6c")
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newAgent(t *testing.T, active bool) identity.Agent {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("khet-2026"), bcrypt.MinCost)
	require.NoError(t, err)
	return identity.Agent{
		ID:           agentID,
		Name:         "Ravi Kumar",
		Phone:        "9876543210",
		CenterName:   "CSC Hoskote",
		CenterCode:   "KA-BLR-014",
		CenterType:   "CSC",
		IsActive:     active,
		PasswordHash: string(hash),
	}
}

type clock struct {
	t time.Time
}

func (c *clock) now() time.Time { return c.t }

func newSystem(t *testing.T, c *clock, agents ...identity.Agent) identity.System {
	t.Helper()
	signer := identity.NewSigner(secret, "kisaanseva", 30*time.Minute, 24*time.Hour, c.now)
	return identity.New(
		identity.NewMemoryAgentStore(agents...),
		signer,
		identity.NewMemoryRefreshStore(c.now),
		nil,
		discard(),
	)
}

func TestSignerRoundTrip(t *testing.T) {
	signer := identity.NewSigner(secret, "kisaanseva", time.Hour, 24*time.Hour, func() time.Time { return now })

	agent := identity.Agent{ID: agentID, Name: "Ravi Kumar", CenterName: "CSC Hoskote"}
	token, expires, err := signer.IssueAccess(agent.Principal())
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), expires)

	p, err := signer.ParseAccess(token)
	require.NoError(t, err)
	assert.Equal(t, identity.RoleAgent, p.Role)
	assert.Equal(t, agentID, p.AgentID)
	assert.Equal(t, "CSC Hoskote", p.Center)
}

func TestSignerFarmerPrincipal(t *testing.T) {
	signer := identity.NewSigner(secret, "kisaanseva", time.Hour, 24*time.Hour, func() time.Time { return now })

	token, _, err := signer.IssueAccess(identity.Principal{Subject: "KSXR7BM2QAL", Role: identity.RoleFarmer})
	require.NoError(t, err)

	p, err := signer.ParseAccess(token)
	require.NoError(t, err)
	assert.Equal(t, "KSXR7BM2QAL", p.FarmerID)
	assert.Equal(t, uuid.Nil, p.AgentID)
}

func TestSignerRejects(t *testing.T) {
	c := &clock{t: now}
	signer := identity.NewSigner(secret, "kisaanseva", time.Hour, 24*time.Hour, c.now)
	agent := identity.Agent{ID: agentID}

	access, _, err := signer.IssueAccess(agent.Principal())
	require.NoError(t, err)
	refresh, _, err := signer.IssueRefresh(agent.Principal(), "tok-1")
	require.NoError(t, err)

	t.Run("refresh used as access", func(t *testing.T) {
		_, err := signer.ParseAccess(refresh)
		assert.ErrorIs(t, err, identity.ErrInvalidToken)
	})

	t.Run("access used as refresh", func(t *testing.T) {
		_, err := signer.ParseRefresh(access)
		assert.ErrorIs(t, err, identity.ErrInvalidToken)
	})

	t.Run("other issuer", func(t *testing.T) {
		other := identity.NewSigner(secret, "elsewhere", time.Hour, time.Hour, c.now)
		_, err := other.ParseAccess(access)
		assert.ErrorIs(t, err, identity.ErrInvalidToken)
	})

	t.Run("other secret", func(t *testing.T) {
		other := identity.NewSigner("fedcba9876543210fedcba9876543210", "kisaanseva", time.Hour, time.Hour, c.now)
		_, err := other.ParseAccess(access)
		assert.ErrorIs(t, err, identity.ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		later := identity.NewSigner(secret, "kisaanseva", time.Hour, time.Hour, func() time.Time {
			return now.Add(2 * time.Hour)
		})
		_, err := later.ParseAccess(access)
		assert.ErrorIs(t, err, identity.ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := signer.ParseAccess("not.a.token")
		assert.ErrorIs(t, err, identity.ErrInvalidToken)
	})
}

func TestMemoryRefreshStore(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: now}
	store := identity.NewMemoryRefreshStore(c.now)

	require.NoError(t, store.Save(ctx, "agent-1", "tok-1", time.Hour))
	require.NoError(t, store.Save(ctx, "agent-1", "tok-2", time.Hour))

	ok, err := store.Consume(ctx, "agent-1", "tok-1")
	require.NoError(t, err)
	assert.False(t, ok, "replaced token must not be consumable")

	ok, err = store.Consume(ctx, "agent-1", "tok-2")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Consume(ctx, "agent-1", "tok-2")
	require.NoError(t, err)
	assert.False(t, ok, "token must be single use")

	require.NoError(t, store.Save(ctx, "agent-2", "tok-3", time.Minute))
	c.t = now.Add(2 * time.Minute)
	ok, err = store.Consume(ctx, "agent-2", "tok-3")
	require.NoError(t, err)
	assert.False(t, ok, "expired token must not be consumable")

	require.NoError(t, store.Save(ctx, "agent-3", "tok-4", time.Hour))
	require.NoError(t, store.Revoke(ctx, "agent-3"))
	ok, err = store.Consume(ctx, "agent-3", "tok-4")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: now}

	t.Run("success", func(t *testing.T) {
		sys := newSystem(t, c, newAgent(t, true))

		pair, err := sys.Login(ctx, identity.LoginCommand{Phone: "9876543210", Password: "khet-2026"})
		require.NoError(t, err)
		assert.Equal(t, "bearer", pair.TokenType)
		assert.Equal(t, "Ravi Kumar", pair.AgentName)
		assert.Equal(t, "CSC Hoskote", pair.CenterName)
		assert.Equal(t, now.Add(30*time.Minute), pair.ExpiresAt)

		p, err := sys.Authenticate(ctx, pair.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, agentID, p.AgentID)
	})

	tests := []struct {
		name    string
		active  bool
		cmd     identity.LoginCommand
		wantErr error
	}{
		{"missing password", true, identity.LoginCommand{Phone: "9876543210"}, identity.ErrInvalidCredentials},
		{"unknown phone", true, identity.LoginCommand{Phone: "9000000000", Password: "khet-2026"}, identity.ErrInvalidCredentials},
		{"wrong password", true, identity.LoginCommand{Phone: "9876543210", Password: "wrong"}, identity.ErrInvalidCredentials},
		{"inactive agent", false, identity.LoginCommand{Phone: "9876543210", Password: "khet-2026"}, identity.ErrAgentInactive},
		{"inactive agent wrong password", false, identity.LoginCommand{Phone: "9876543210", Password: "wrong"}, identity.ErrInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sys := newSystem(t, c, newAgent(t, tt.active))
			_, err := sys.Login(ctx, tt.cmd)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRefreshRotates(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: now}
	sys := newSystem(t, c, newAgent(t, true))

	pair, err := sys.Login(ctx, identity.LoginCommand{Phone: "9876543210", Password: "khet-2026"})
	require.NoError(t, err)

	rotated, err := sys.Refresh(ctx, identity.RefreshCommand{RefreshToken: pair.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)
	assert.Equal(t, "Ravi Kumar", rotated.AgentName)

	_, err = sys.Refresh(ctx, identity.RefreshCommand{RefreshToken: pair.RefreshToken})
	assert.ErrorIs(t, err, identity.ErrInvalidToken, "old refresh token must be rejected after rotation")

	_, err = sys.Refresh(ctx, identity.RefreshCommand{RefreshToken: rotated.AccessToken})
	assert.ErrorIs(t, err, identity.ErrInvalidToken)
}

func TestLogoutRevokesRefresh(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: now}
	sys := newSystem(t, c, newAgent(t, true))

	pair, err := sys.Login(ctx, identity.LoginCommand{Phone: "9876543210", Password: "khet-2026"})
	require.NoError(t, err)

	p, err := sys.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)
	require.NoError(t, sys.Logout(ctx, p))

	_, err = sys.Refresh(ctx, identity.RefreshCommand{RefreshToken: pair.RefreshToken})
	assert.ErrorIs(t, err, identity.ErrInvalidToken)

	assert.ErrorIs(t, sys.Logout(ctx, nil), identity.ErrMissingToken)
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	sys := newSystem(t, &clock{t: now})

	_, err := sys.Authenticate(ctx, "")
	assert.ErrorIs(t, err, identity.ErrMissingToken)

	_, err = sys.Authenticate(ctx, "bogus")
	assert.ErrorIs(t, err, identity.ErrInvalidToken)
}

type staticAuth struct {
	p   *identity.Principal
	err error
}

func (a staticAuth) Authenticate(_ context.Context, raw string) (*identity.Principal, error) {
	if raw == "" {
		return nil, identity.ErrMissingToken
	}
	return a.p, a.err
}

func TestGuard(t *testing.T) {
	agent := &identity.Principal{Subject: agentID.String(), Role: identity.RoleAgent, AgentID: agentID}

	tests := []struct {
		name       string
		auth       staticAuth
		header     string
		roles      []identity.Role
		wantStatus int
	}{
		{"no header", staticAuth{p: agent}, "", nil, http.StatusUnauthorized},
		{"wrong scheme", staticAuth{p: agent}, "Basic abc", nil, http.StatusUnauthorized},
		{"invalid token", staticAuth{err: identity.ErrInvalidToken}, "Bearer abc", nil, http.StatusUnauthorized},
		{"any role", staticAuth{p: agent}, "Bearer abc", nil, http.StatusOK},
		{"matching role", staticAuth{p: agent}, "bearer abc", []identity.Role{identity.RoleAgent}, http.StatusOK},
		{"wrong role", staticAuth{p: agent}, "Bearer abc", []identity.Role{identity.RoleFarmer}, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got *identity.Principal
			h := identity.Guard(tt.auth, discard(), tt.roles...)(func(w http.ResponseWriter, r *http.Request) {
				got, _ = identity.FromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				require.NotNil(t, got)
				assert.Equal(t, agentID, got.AgentID)
			}
		})
	}
}

func TestMapHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{identity.ErrInvalidCredentials, http.StatusUnauthorized},
		{identity.ErrInvalidToken, http.StatusUnauthorized},
		{identity.ErrMissingToken, http.StatusUnauthorized},
		{identity.ErrAgentInactive, http.StatusForbidden},
		{identity.ErrForbidden, http.StatusForbidden},
		{identity.ErrAgentNotFound, http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, identity.MapHTTPStatus(tt.err))
		})
	}
}

func TestFromContext(t *testing.T) {
	_, ok := identity.FromContext(context.Background())
	assert.False(t, ok)

	ctx := identity.WithPrincipal(context.Background(), &identity.Principal{Role: identity.RoleFarmer, FarmerID: "KSXR7BM2QAL"})
	p, ok := identity.FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "KSXR7BM2QAL", p.FarmerID)
}
