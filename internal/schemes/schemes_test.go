package schemes_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JaimeStill/kisaanseva/internal/schemes"
	"github.com/JaimeStill/kisaanseva/pkg/pagination"
	"github.com/JaimeStill/kisaanseva/pkg/routes"
)

var pageCfg = pagination.Config{DefaultPageSize: 20, MaxPageSize: 100}

func ptr(s string) *string { return &s }

func publish(t *testing.T, store schemes.Store, name, state string, at time.Time) *schemes.Scheme {
	t.Helper()
	c := schemes.Content{
		ItemType: "scheme",
		NameEn:   name,
		Ministry: ptr("Ministry of Agriculture"),
		Rules:    []schemes.Rule{{RuleType: "state", RuleValue: state, IsMandatory: true}},
	}
	if state != "" {
		c.TargetState = ptr(state)
	}
	s, err := store.Publish(context.Background(), nil, schemes.Publication{
		StagedItemID: uuid.New(),
		Source:       "manual",
		Content:      c,
		PublishedAt:  at,
	})
	require.NoError(t, err)
	return s
}

func TestContentNormalize(t *testing.T) {
	c := schemes.Content{
		ItemType:    " subsidy ",
		NameEn:      "  Seed Subsidy ",
		ApplyURL:    ptr("   "),
		TargetState: ptr(" Madhya Pradesh "),
	}
	c.Normalize()

	assert.Equal(t, "subsidy", c.ItemType)
	assert.Equal(t, "Seed Subsidy", c.NameEn)
	assert.Nil(t, c.ApplyURL)
	require.NotNil(t, c.TargetState)
	assert.Equal(t, "Madhya Pradesh", *c.TargetState)
	assert.NotNil(t, c.Rules)
}

func TestPublishOncePerStagedItem(t *testing.T) {
	store := schemes.NewMemoryStore()
	pub := schemes.Publication{
		StagedItemID: uuid.New(),
		Source:       "crawler",
		Content:      schemes.Content{ItemType: "scheme", NameEn: "PM-KISAN"},
		PublishedAt:  time.Now(),
	}

	first, err := store.Publish(context.Background(), nil, pub)
	require.NoError(t, err)
	assert.True(t, first.IsActive)
	assert.Equal(t, schemes.FanoutPending, first.Fanout.Status)

	_, err = store.Publish(context.Background(), nil, pub)
	assert.ErrorIs(t, err, schemes.ErrAlreadyPublished)
	assert.Equal(t, http.StatusConflict, schemes.MapHTTPStatus(err))
}

func TestBrowseFiltersAndSearch(t *testing.T) {
	store := schemes.NewMemoryStore()
	now := time.Now()
	publish(t, store, "PM-KISAN", "", now)
	publish(t, store, "MP Kisan Kalyan", "Madhya Pradesh", now.Add(time.Minute))
	publish(t, store, "Rythu Bandhu", "Telangana", now.Add(2*time.Minute))

	sys := schemes.New(store, slog.New(slog.NewTextHandler(io.Discard, nil)), pageCfg)

	all, err := sys.Browse(context.Background(), pagination.PageRequest{}, schemes.Filters{})
	require.NoError(t, err)
	assert.Equal(t, 3, all.Total)
	assert.Equal(t, "Rythu Bandhu", all.Items[0].NameEn, "newest first")

	mp, err := sys.Browse(context.Background(), pagination.PageRequest{}, schemes.Filters{State: ptr("Madhya Pradesh")})
	require.NoError(t, err)
	require.Len(t, mp.Items, 1)
	assert.Equal(t, "MP Kisan Kalyan", mp.Items[0].NameEn)

	found, err := sys.Browse(context.Background(), pagination.PageRequest{Search: ptr("kisan")}, schemes.Filters{})
	require.NoError(t, err)
	assert.Equal(t, 2, found.Total)
}

func TestLookupSkipsUnknown(t *testing.T) {
	store := schemes.NewMemoryStore()
	known := publish(t, store, "PM-KISAN", "", time.Now())
	sys := schemes.New(store, slog.New(slog.NewTextHandler(io.Discard, nil)), pageCfg)

	got, err := sys.Lookup(context.Background(), []uuid.UUID{known.ID, uuid.New(), known.ID})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, "PM-KISAN", got[known.ID].NameEn)
}

func TestFanoutBookkeeping(t *testing.T) {
	store := schemes.NewMemoryStore()
	now := time.Now()
	old := publish(t, store, "Old", "", now.Add(-time.Hour))
	fresh := publish(t, store, "Fresh", "", now)
	ctx := context.Background()

	pending, err := store.PendingFanout(ctx, now.Add(-time.Minute), 3, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, old.ID, pending[0].ID)

	require.NoError(t, store.RecordFanout(ctx, old.ID, schemes.Outcome{
		Status: schemes.FanoutFailed, Matched: 120, Notified: 100, Failed: 20, Error: "publish failed", At: now,
	}))
	got, err := store.Find(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Fanout.Attempts)
	assert.Equal(t, 20, got.Fanout.Failed)

	require.NoError(t, store.RecordFanout(ctx, fresh.ID, schemes.Outcome{Status: schemes.FanoutComplete, At: now}))
	pending, err = store.PendingFanout(ctx, now, 3, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1, "completed records are not retried")
	assert.Equal(t, old.ID, pending[0].ID)

	pending, err = store.PendingFanout(ctx, now, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, pending, "attempt cap reached")

	assert.ErrorIs(t, store.RecordFanout(ctx, uuid.New(), schemes.Outcome{}), schemes.ErrNotFound)
}

func TestFanoutDeliveries(t *testing.T) {
	store := schemes.NewMemoryStore()
	ctx := context.Background()
	s := publish(t, store, "PM-KISAN", "", time.Now())

	none, err := store.Delivered(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, none)

	require.NoError(t, store.RecordDelivered(ctx, s.ID, []string{"KS02", "KS01"}, time.Now()))
	require.NoError(t, store.RecordDelivered(ctx, s.ID, []string{"KS01", "KS03"}, time.Now()))

	got, err := store.Delivered(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"KS01", "KS02", "KS03"}, got)

	assert.ErrorIs(t, store.RecordDelivered(ctx, uuid.New(), []string{"KS01"}, time.Now()), schemes.ErrNotFound)
}

func TestHandler(t *testing.T) {
	store := schemes.NewMemoryStore()
	s := publish(t, store, "PM-KISAN", "", time.Now())
	sys := schemes.New(store, slog.New(slog.NewTextHandler(io.Discard, nil)), pageCfg)

	mux := http.NewServeMux()
	routes.Register(mux, sys.Handler().Routes())

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"list", "/schemes?item_type=scheme", http.StatusOK},
		{"find", "/schemes/" + s.ID.String(), http.StatusOK},
		{"unknown", "/schemes/" + uuid.NewString(), http.StatusNotFound},
		{"malformed", "/schemes/not-a-uuid", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.status, rec.Code)
		})
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/schemes", nil))
	var page pagination.PageResult[schemes.Scheme]
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, "PM-KISAN", page.Items[0].NameEn)
}
