package staging_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JaimeStill/kisaanseva/internal/audit"
	"github.com/JaimeStill/kisaanseva/internal/fanout"
	"github.com/JaimeStill/kisaanseva/internal/identity"
	"github.com/JaimeStill/kisaanseva/internal/matching"
	"github.com/JaimeStill/kisaanseva/internal/notifications"
	"github.com/JaimeStill/kisaanseva/internal/schemes"
	"github.com/JaimeStill/kisaanseva/internal/staging"
	"github.com/JaimeStill/kisaanseva/pkg/pagination"
	"github.com/JaimeStill/kisaanseva/pkg/repository"
	"github.com/JaimeStill/kisaanseva/pkg/routes"
)

var now = time.Date(2026, 6, 1, 9, 30, 0, 0, time.UTC)

type matcher struct {
	ids []string
	err error
}

func (m *matcher) MatchFarmers(context.Context, matching.Content) ([]string, error) {
	return m.ids, m.err
}

type notifier struct {
	mu    sync.Mutex
	calls int
}

func (n *notifier) Notify(_ context.Context, ids []string, _ notifications.Notice) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	return len(ids), nil
}

type recorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recorder) Record(_ context.Context, e audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Action)
	}
	return out
}

// failingCatalog rejects every publication.
type failingCatalog struct {
	schemes.Store
}

func (failingCatalog) Publish(context.Context, repository.Querier, schemes.Publication) (*schemes.Scheme, error) {
	return nil, errors.New("catalog unavailable")
}

type harness struct {
	sys      staging.System
	catalog  schemes.Store
	matcher  *matcher
	notifier *notifier
	audit    *recorder
}

func newHarness(t *testing.T, catalog schemes.Store) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	h := &harness{
		catalog:  catalog,
		matcher:  &matcher{ids: []string{"KSXR7BM2QAL", "KS4NJP8XWQT"}},
		notifier: &notifier{},
		audit:    &recorder{},
	}
	dispatcher := fanout.NewDispatcher(h.matcher, h.notifier, catalog, fanout.Config{
		BatchSize:     100,
		Concurrency:   2,
		Timeout:       time.Minute,
		RetryInterval: time.Minute,
		MaxAttempts:   3,
	}, logger)

	h.sys = staging.New(
		staging.NewMemoryStore(catalog),
		dispatcher,
		h.audit,
		logger,
		pagination.Config{DefaultPageSize: 20, MaxPageSize: 100},
		staging.WithClock(func() time.Time { return now }),
	)
	return h
}

func ptr[T any](v T) *T { return &v }

func subsidy() staging.CreateCommand {
	return staging.CreateCommand{
		Content: schemes.Content{
			ItemType:        "subsidy",
			NameEn:          " Drip Irrigation Subsidy ",
			Ministry:        ptr("Ministry of Agriculture"),
			SubsidyCategory: ptr("irrigation"),
			ApplyURL:        ptr("https://pmksy.gov.in"),
			HowToApply:      ptr("   "),
			TargetState:     ptr("Madhya Pradesh"),
			Rules: []schemes.Rule{
				{RuleType: "state", RuleValue: "Madhya Pradesh", IsMandatory: true},
				{RuleType: "irrigation", RuleValue: "drip"},
			},
		},
	}
}

func TestCreate(t *testing.T) {
	h := newHarness(t, schemes.NewMemoryStore())
	ctx := context.Background()

	item, err := h.sys.Create(ctx, "Sunil Verma", subsidy())
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, item.ID)
	assert.Equal(t, "Drip Irrigation Subsidy", item.NameEn)
	assert.Nil(t, item.HowToApply)
	assert.Equal(t, staging.SourceManual, item.Source)
	assert.Equal(t, staging.StatusPending, item.Status)
	assert.Equal(t, 1, item.Version)
	assert.Equal(t, now, item.CreatedAt)

	count, err := h.sys.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, []string{"staging.created"}, h.audit.actions())
}

func TestCreateKeepsRawDataForCrawledSources(t *testing.T) {
	h := newHarness(t, schemes.NewMemoryStore())
	ctx := context.Background()

	crawled := subsidy()
	crawled.Source = staging.SourceMyScheme
	crawled.RawData = []byte(`{"slug":"pmksy"}`)
	item, err := h.sys.Create(ctx, "crawler", crawled)
	require.NoError(t, err)
	assert.JSONEq(t, `{"slug":"pmksy"}`, string(item.RawData))

	manual := subsidy()
	manual.RawData = []byte(`{"slug":"pmksy"}`)
	item, err = h.sys.Create(ctx, "Sunil Verma", manual)
	require.NoError(t, err)
	assert.Nil(t, item.RawData)
}

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*staging.CreateCommand)
	}{
		{"missing name", func(c *staging.CreateCommand) { c.NameEn = "  " }},
		{"unknown item type", func(c *staging.CreateCommand) { c.ItemType = "loan" }},
		{"unknown rule type", func(c *staging.CreateCommand) {
			c.Rules = append(c.Rules, schemes.Rule{RuleType: "caste", RuleValue: "any"})
		}},
		{"bad apply url", func(c *staging.CreateCommand) { c.ApplyURL = ptr("not a url") }},
		{"unknown source", func(c *staging.CreateCommand) { c.Source = "twitter" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, schemes.NewMemoryStore())
			cmd := subsidy()
			tt.mutate(&cmd)

			_, err := h.sys.Create(context.Background(), "Sunil Verma", cmd)
			assert.ErrorIs(t, err, staging.ErrInvalidItem)
			assert.Equal(t, http.StatusBadRequest, staging.MapHTTPStatus(err))
		})
	}
}

func TestCreateRefusesDuplicateSourceRecord(t *testing.T) {
	h := newHarness(t, schemes.NewMemoryStore())
	ctx := context.Background()

	cmd := subsidy()
	cmd.Source = staging.SourceDataGov
	cmd.SourceRef = "9ef84268:drip irrigation subsidy"

	item, err := h.sys.Create(ctx, "ingest:data_gov", cmd)
	require.NoError(t, err)
	require.NotNil(t, item.SourceRef)
	assert.Equal(t, "9ef84268:drip irrigation subsidy", *item.SourceRef)

	_, err = h.sys.Create(ctx, "ingest:data_gov", cmd)
	assert.ErrorIs(t, err, staging.ErrDuplicate)
	assert.Equal(t, http.StatusConflict, staging.MapHTTPStatus(err))

	cmd.Source = staging.SourceRSSFeed
	_, err = h.sys.Create(ctx, "ingest:rss_feed", cmd)
	assert.NoError(t, err, "references are scoped to their source")

	manual := subsidy()
	manual.SourceRef = "ignored"
	first, err := h.sys.Create(ctx, "Sunil Verma", manual)
	require.NoError(t, err)
	assert.Nil(t, first.SourceRef)
	_, err = h.sys.Create(ctx, "Sunil Verma", manual)
	assert.NoError(t, err)
}

func TestUpdate(t *testing.T) {
	h := newHarness(t, schemes.NewMemoryStore())
	ctx := context.Background()

	item, err := h.sys.Create(ctx, "Sunil Verma", subsidy())
	require.NoError(t, err)

	updated, err := h.sys.Update(ctx, "Sunil Verma", item.ID, staging.UpdateCommand{
		BenefitAmount: ptr("Up to 55% of cost"),
		Rules:         &[]schemes.Rule{{RuleType: "state", RuleValue: "Rajasthan", IsMandatory: true}},
		Version:       ptr(1),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, "Up to 55% of cost", *updated.BenefitAmount)
	assert.Equal(t, "Drip Irrigation Subsidy", updated.NameEn)
	require.Len(t, updated.Rules, 1)
	assert.Equal(t, "Rajasthan", updated.Rules[0].RuleValue)
}

func TestUpdateClearsOptionalFields(t *testing.T) {
	h := newHarness(t, schemes.NewMemoryStore())
	ctx := context.Background()

	item, err := h.sys.Create(ctx, "Sunil Verma", subsidy())
	require.NoError(t, err)
	require.NotNil(t, item.Ministry)
	require.NotNil(t, item.TargetState)

	updated, err := h.sys.Update(ctx, "Sunil Verma", item.ID, staging.UpdateCommand{
		Ministry:    ptr(""),
		TargetState: ptr("  "),
		Rules:       &[]schemes.Rule{},
	})
	require.NoError(t, err)

	assert.Nil(t, updated.Ministry)
	assert.Nil(t, updated.TargetState)
	assert.Empty(t, updated.Rules)
	assert.Equal(t, "irrigation", *updated.SubsidyCategory, "omitted fields are kept")

	_, err = h.sys.Update(ctx, "Sunil Verma", item.ID, staging.UpdateCommand{NameEn: ptr("")})
	assert.ErrorIs(t, err, staging.ErrInvalidItem)
}

func TestUpdateVersionConflict(t *testing.T) {
	h := newHarness(t, schemes.NewMemoryStore())
	ctx := context.Background()

	item, err := h.sys.Create(ctx, "Sunil Verma", subsidy())
	require.NoError(t, err)
	_, err = h.sys.Update(ctx, "Sunil Verma", item.ID, staging.UpdateCommand{NameHi: ptr("ड्रिप सिंचाई"), Version: ptr(1)})
	require.NoError(t, err)

	_, err = h.sys.Update(ctx, "Sunil Verma", item.ID, staging.UpdateCommand{NameEn: ptr("Stale"), Version: ptr(1)})
	assert.ErrorIs(t, err, staging.ErrVersionConflict)
	assert.Equal(t, http.StatusPreconditionFailed, staging.MapHTTPStatus(err))

	got, err := h.sys.Find(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "Drip Irrigation Subsidy", got.NameEn)
	assert.Equal(t, 2, got.Version)
}

func TestUpdateRejectsInvalidPatch(t *testing.T) {
	h := newHarness(t, schemes.NewMemoryStore())
	ctx := context.Background()

	item, err := h.sys.Create(ctx, "Sunil Verma", subsidy())
	require.NoError(t, err)

	_, err = h.sys.Update(ctx, "Sunil Verma", item.ID, staging.UpdateCommand{ItemType: ptr("grant")})
	assert.ErrorIs(t, err, staging.ErrInvalidItem)

	got, err := h.sys.Find(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "subsidy", got.ItemType)
	assert.Equal(t, 1, got.Version)
}

func TestApprovePublishesAndFansOut(t *testing.T) {
	h := newHarness(t, schemes.NewMemoryStore())
	ctx := context.Background()

	item, err := h.sys.Create(ctx, "Sunil Verma", subsidy())
	require.NoError(t, err)

	result, err := h.sys.Approve(ctx, "Sunil Verma", item.ID, staging.ReviewCommand{ReviewNotes: "verified on portal"})
	require.NoError(t, err)

	assert.Equal(t, staging.StatusApproved, result.Item.Status)
	assert.Equal(t, "Sunil Verma", *result.Item.ReviewedBy)
	assert.Equal(t, "verified on portal", *result.Item.ReviewNotes)
	assert.Equal(t, now, *result.Item.ReviewedAt)
	assert.Equal(t, fanout.Stats{Matched: 2, Notified: 2}, result.MatchingStats)
	assert.Contains(t, result.Message, "2 farmers notified")

	assert.Equal(t, item.ID, result.Scheme.StagedItemID)
	assert.Equal(t, "Drip Irrigation Subsidy", result.Scheme.NameEn)
	assert.True(t, result.Scheme.IsActive)

	published, err := h.catalog.Find(ctx, result.Scheme.ID)
	require.NoError(t, err)
	assert.Equal(t, schemes.FanoutComplete, published.Fanout.Status)
	assert.Len(t, published.Rules, 2)

	count, err := h.sys.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Equal(t, []string{"staging.created", "staging.approved", "scheme.published"}, h.audit.actions())
}

func TestApproveTwice(t *testing.T) {
	h := newHarness(t, schemes.NewMemoryStore())
	ctx := context.Background()

	item, err := h.sys.Create(ctx, "Sunil Verma", subsidy())
	require.NoError(t, err)
	_, err = h.sys.Approve(ctx, "Sunil Verma", item.ID, staging.ReviewCommand{})
	require.NoError(t, err)

	_, err = h.sys.Approve(ctx, "Sunil Verma", item.ID, staging.ReviewCommand{})
	assert.ErrorIs(t, err, staging.ErrInvalidState)
	assert.Equal(t, http.StatusConflict, staging.MapHTTPStatus(err))

	page, err := h.catalog.List(ctx, pagination.PageRequest{Page: 1, PageSize: 20}, schemes.Filters{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, 1, h.notifier.calls)
}

func TestConcurrentReviewsHaveOneWinner(t *testing.T) {
	h := newHarness(t, schemes.NewMemoryStore())
	ctx := context.Background()

	item, err := h.sys.Create(ctx, "Sunil Verma", subsidy())
	require.NoError(t, err)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		approved int
		rejected int
		invalid  int
	)
	for i := range 10 {
		wg.Go(func() {
			var err error
			if i%2 == 0 {
				_, err = h.sys.Approve(ctx, "reviewer", item.ID, staging.ReviewCommand{})
			} else {
				_, err = h.sys.Reject(ctx, "reviewer", item.ID, staging.ReviewCommand{})
			}
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil && i%2 == 0:
				approved++
			case err == nil:
				rejected++
			case errors.Is(err, staging.ErrInvalidState):
				invalid++
			}
		})
	}
	wg.Wait()

	assert.Equal(t, 1, approved+rejected)
	assert.Equal(t, 9, invalid)

	page, err := h.catalog.List(ctx, pagination.PageRequest{Page: 1, PageSize: 20}, schemes.Filters{})
	require.NoError(t, err)
	assert.Equal(t, approved, page.Total)
}

func TestApproveRollsBackWhenPublishFails(t *testing.T) {
	h := newHarness(t, failingCatalog{Store: schemes.NewMemoryStore()})
	ctx := context.Background()

	item, err := h.sys.Create(ctx, "Sunil Verma", subsidy())
	require.NoError(t, err)

	_, err = h.sys.Approve(ctx, "Sunil Verma", item.ID, staging.ReviewCommand{})
	require.Error(t, err)

	got, err := h.sys.Find(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, staging.StatusPending, got.Status)
	assert.Nil(t, got.ReviewedBy)
	assert.Zero(t, h.notifier.calls)
}

func TestApproveSurvivesMatchingFailure(t *testing.T) {
	h := newHarness(t, schemes.NewMemoryStore())
	h.matcher.ids = nil
	h.matcher.err = matching.ErrUnavailable
	ctx := context.Background()

	item, err := h.sys.Create(ctx, "Sunil Verma", subsidy())
	require.NoError(t, err)

	result, err := h.sys.Approve(ctx, "Sunil Verma", item.ID, staging.ReviewCommand{})
	require.NoError(t, err)
	assert.Equal(t, fanout.Stats{}, result.MatchingStats)

	published, err := h.catalog.Find(ctx, result.Scheme.ID)
	require.NoError(t, err)
	assert.True(t, published.IsActive)
	assert.Equal(t, schemes.FanoutFailed, published.Fanout.Status)
}

func TestRejectIsTerminal(t *testing.T) {
	h := newHarness(t, schemes.NewMemoryStore())
	ctx := context.Background()

	item, err := h.sys.Create(ctx, "Sunil Verma", subsidy())
	require.NoError(t, err)

	result, err := h.sys.Reject(ctx, "Sunil Verma", item.ID, staging.ReviewCommand{ReviewedBy: "Moderator", ReviewNotes: "duplicate"})
	require.NoError(t, err)
	assert.Equal(t, staging.StatusRejected, result.Item.Status)
	assert.Equal(t, "Moderator", *result.Item.ReviewedBy)

	_, err = h.sys.Approve(ctx, "Sunil Verma", item.ID, staging.ReviewCommand{})
	assert.ErrorIs(t, err, staging.ErrInvalidState)
	_, err = h.sys.Update(ctx, "Sunil Verma", item.ID, staging.UpdateCommand{NameEn: ptr("Edited")})
	assert.ErrorIs(t, err, staging.ErrInvalidState)

	assert.Zero(t, h.notifier.calls)
}

func TestReviewUnknownItem(t *testing.T) {
	h := newHarness(t, schemes.NewMemoryStore())

	_, err := h.sys.Approve(context.Background(), "Sunil Verma", uuid.New(), staging.ReviewCommand{})
	assert.ErrorIs(t, err, staging.ErrNotFound)
	_, err = h.sys.Reject(context.Background(), "Sunil Verma", uuid.New(), staging.ReviewCommand{})
	assert.ErrorIs(t, err, staging.ErrNotFound)
}

func TestListFilters(t *testing.T) {
	h := newHarness(t, schemes.NewMemoryStore())
	ctx := context.Background()

	first, err := h.sys.Create(ctx, "Sunil Verma", subsidy())
	require.NoError(t, err)

	scheme := subsidy()
	scheme.ItemType = "scheme"
	scheme.NameEn = "PM Kisan Samman Nidhi"
	scheme.SubsidyCategory = nil
	scheme.Source = staging.SourceDataGov
	_, err = h.sys.Create(ctx, "crawler", scheme)
	require.NoError(t, err)

	_, err = h.sys.Reject(ctx, "Sunil Verma", first.ID, staging.ReviewCommand{})
	require.NoError(t, err)

	page := pagination.PageRequest{Page: 1, PageSize: 20}

	all, err := h.sys.List(ctx, page, staging.Filters{})
	require.NoError(t, err)
	assert.Equal(t, 2, all.Total)
	assert.Equal(t, "PM Kisan Samman Nidhi", all.Items[0].NameEn)

	pending, err := h.sys.List(ctx, page, staging.Filters{Status: ptr("pending")})
	require.NoError(t, err)
	require.Equal(t, 1, pending.Total)
	assert.Equal(t, staging.SourceDataGov, pending.Items[0].Source)

	search := "drip"
	found, err := h.sys.List(ctx, pagination.PageRequest{Page: 1, PageSize: 20, Search: &search}, staging.Filters{})
	require.NoError(t, err)
	require.Equal(t, 1, found.Total)
	assert.Equal(t, first.ID, found.Items[0].ID)
}

func serve(h *harness, p *identity.Principal) *http.ServeMux {
	mux := http.NewServeMux()
	group := h.sys.Handler().Routes()
	group.Guard = func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			next(w, r.WithContext(identity.WithPrincipal(r.Context(), p)))
		}
	}
	routes.Register(mux, group)
	return mux
}

func TestHandler(t *testing.T) {
	h := newHarness(t, schemes.NewMemoryStore())
	mux := serve(h, &identity.Principal{Subject: uuid.NewString(), Role: identity.RoleAgent, Name: "Sunil Verma"})

	do := func(method, target, body string) *httptest.ResponseRecorder {
		var r *http.Request
		if body == "" {
			r = httptest.NewRequest(method, target, nil)
		} else {
			r = httptest.NewRequest(method, target, strings.NewReader(body))
			r.Header.Set("Content-Type", "application/json")
		}
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, r)
		return w
	}

	w := do("POST", "/staging", `{"item_type":"scheme","name_en":"PM-KISAN","eligibility_rules":[{"rule_type":"land_max","rule_value":"2"}]}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	page, err := h.sys.List(context.Background(), pagination.PageRequest{Page: 1, PageSize: 20}, staging.Filters{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	id := page.Items[0].ID.String()

	tests := []struct {
		name   string
		method string
		target string
		body   string
		status int
		want   string
	}{
		{"missing name", "POST", "/staging", `{"item_type":"scheme"}`, http.StatusBadRequest, "invalid staged item"},
		{"unknown field", "POST", "/staging", `{"item_type":"scheme","name_en":"x","bogus":1}`, http.StatusBadRequest, ""},
		{"pending count", "GET", "/staging/pending-count", "", http.StatusOK, `"pending_count":1`},
		{"list", "GET", "/staging?status=pending", "", http.StatusOK, `"total":1`},
		{"find", "GET", "/staging/" + id, "", http.StatusOK, `"name_en":"PM-KISAN"`},
		{"find bad id", "GET", "/staging/nope", "", http.StatusBadRequest, ""},
		{"find missing", "GET", "/staging/" + uuid.NewString(), "", http.StatusNotFound, "staged item not found"},
		{"update", "PATCH", "/staging/" + id, `{"ministry":"Agriculture","version":1}`, http.StatusOK, `"version":2`},
		{"update stale", "PATCH", "/staging/" + id, `{"ministry":"Finance","version":1}`, http.StatusPreconditionFailed, ""},
		{"approve", "POST", "/staging/" + id + "/approve", "", http.StatusOK, `"reviewed_by":"Sunil Verma"`},
		{"approve again", "POST", "/staging/" + id + "/approve", `{"review_notes":"again"}`, http.StatusConflict, ""},
		{"reject approved", "POST", "/staging/" + id + "/reject", "", http.StatusConflict, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(tt.method, tt.target, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			if tt.want != "" {
				assert.Contains(t, w.Body.String(), tt.want)
			}
		})
	}
}
