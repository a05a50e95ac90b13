package schemes

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/kisaanseva/pkg/pagination"
	"github.com/JaimeStill/kisaanseva/pkg/query"
	"github.com/JaimeStill/kisaanseva/pkg/repository"
)

// Store persists the published catalog.
type Store interface {
	// Publish inserts the published copy of a staged item using q, which is
	// the caller's transaction for pg stores. A second publish of the same
	// staged item fails with ErrAlreadyPublished.
	Publish(ctx context.Context, q repository.Querier, p Publication) (*Scheme, error)
	Find(ctx context.Context, id uuid.UUID) (*Scheme, error)
	List(ctx context.Context, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Scheme], error)
	// PendingFanout returns records published before cutoff whose fan-out
	// has not completed and has fewer than maxAttempts runs.
	PendingFanout(ctx context.Context, cutoff time.Time, maxAttempts, limit int) ([]Scheme, error)
	RecordFanout(ctx context.Context, id uuid.UUID, o Outcome) error
	// Delivered lists the farmers already notified for the record.
	Delivered(ctx context.Context, id uuid.UUID) ([]string, error)
	// RecordDelivered marks farmerIDs as notified for the record. Farmers
	// already marked are ignored.
	RecordDelivered(ctx context.Context, id uuid.UUID, farmerIDs []string, at time.Time) error
}

type pgStore struct {
	db *sql.DB
}

// NewStore returns a Store over the published_items table.
func NewStore(db *sql.DB) Store {
	return &pgStore{db: db}
}

func (s *pgStore) Publish(ctx context.Context, q repository.Querier, p Publication) (*Scheme, error) {
	if q == nil {
		q = s.db
	}
	c := p.Content
	rules, err := json.Marshal(c.Rules)
	if err != nil {
		return nil, fmt.Errorf("marshal eligibility rules: %w", err)
	}

	insert := `
		INSERT INTO public.published_items AS p (
			id, staged_item_id, item_type, name_en, name_hi, ministry,
			description_en, description_hi, benefit_type, benefit_amount,
			subsidy_category, apply_url, how_to_apply, target_state, source_url,
			eligibility_rules, source, is_active, published_at,
			fanout_status, fanout_attempts, matched_count, notified_count, failed_count
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, true, $18, $19, 0, 0, 0, 0)
		RETURNING ` + projection.Columns()

	args := []any{
		uuid.New(), p.StagedItemID, c.ItemType, c.NameEn, c.NameHi, c.Ministry,
		c.DescriptionEn, c.DescriptionHi, c.BenefitType, c.BenefitAmount,
		c.SubsidyCategory, c.ApplyURL, c.HowToApply, c.TargetState, c.SourceURL,
		rules, p.Source, p.PublishedAt, FanoutPending,
	}

	sc, err := repository.QueryOne(ctx, q, insert, args, scanScheme)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrAlreadyPublished)
	}
	return &sc, nil
}

func (s *pgStore) Find(ctx context.Context, id uuid.UUID) (*Scheme, error) {
	q, args := query.NewBuilder(projection).BuildSingle("ID", id)
	sc, err := repository.QueryOne(ctx, s.db, q, args, scanScheme)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrNotFound)
	}
	return &sc, nil
}

func (s *pgStore) List(
	ctx context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Scheme], error) {
	qb := query.
		NewBuilder(projection, defaultSort).
		WhereEquals("IsActive", true).
		WhereSearch(page.Search, "NameEn", "NameHi", "Ministry")
	qb = filters.Apply(qb).OrderByFields(page.Sort)

	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := s.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count schemes: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	items, err := repository.QueryMany(ctx, s.db, pageSQL, pageArgs, scanScheme)
	if err != nil {
		return nil, fmt.Errorf("query schemes: %w", err)
	}

	result := pagination.NewPageResult(items, total, page.Page, page.PageSize)
	return &result, nil
}

func (s *pgStore) PendingFanout(ctx context.Context, cutoff time.Time, maxAttempts, limit int) ([]Scheme, error) {
	q := fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s <> $1 AND %s < $2 AND %s <= $3 ORDER BY %s LIMIT %d",
		projection.Columns(),
		projection.From(),
		projection.Column("FanoutStatus"),
		projection.Column("FanoutAttempts"),
		projection.Column("PublishedAt"),
		projection.Column("PublishedAt"),
		limit,
	)
	items, err := repository.QueryMany(ctx, s.db, q, []any{FanoutComplete, maxAttempts, cutoff}, scanScheme)
	if err != nil {
		return nil, fmt.Errorf("query pending fanout: %w", err)
	}
	return items, nil
}

func (s *pgStore) RecordFanout(ctx context.Context, id uuid.UUID, o Outcome) error {
	q := `
		UPDATE public.published_items
		SET fanout_status = $2,
			fanout_attempts = fanout_attempts + 1,
			matched_count = $3,
			notified_count = $4,
			failed_count = $5,
			fanout_error = NULLIF($6, ''),
			fanout_updated_at = $7
		WHERE id = $1`

	err := repository.ExecExpectOne(ctx, s.db, q, id, o.Status, o.Matched, o.Notified, o.Failed, o.Error, o.At)
	if err != nil {
		return repository.MapError(err, ErrNotFound, ErrNotFound)
	}
	return nil
}

func (s *pgStore) Delivered(ctx context.Context, id uuid.UUID) ([]string, error) {
	q := `SELECT farmer_id FROM public.fanout_deliveries WHERE scheme_id = $1`
	ids, err := repository.QueryMany(ctx, s.db, q, []any{id}, func(sc repository.Scanner) (string, error) {
		var farmerID string
		err := sc.Scan(&farmerID)
		return farmerID, err
	})
	if err != nil {
		return nil, fmt.Errorf("query fanout deliveries: %w", err)
	}
	return ids, nil
}

func (s *pgStore) RecordDelivered(ctx context.Context, id uuid.UUID, farmerIDs []string, at time.Time) error {
	if len(farmerIDs) == 0 {
		return nil
	}
	q := `
		INSERT INTO public.fanout_deliveries (scheme_id, farmer_id, delivered_at)
		SELECT $1, f, $3 FROM unnest($2::text[]) AS f
		ON CONFLICT DO NOTHING`

	if _, err := s.db.ExecContext(ctx, q, id, farmerIDs, at); err != nil {
		if repository.ForeignKeyViolation(err) {
			return ErrNotFound
		}
		return fmt.Errorf("record fanout deliveries: %w", err)
	}
	return nil
}

type memoryStore struct {
	mu        sync.RWMutex
	schemes   []Scheme
	delivered map[uuid.UUID]map[string]time.Time
}

// NewMemoryStore returns an in-process Store. Publish ignores the querier.
func NewMemoryStore() Store {
	return &memoryStore{delivered: make(map[uuid.UUID]map[string]time.Time)}
}

func (m *memoryStore) Publish(_ context.Context, _ repository.Querier, p Publication) (*Scheme, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.schemes {
		if s.StagedItemID == p.StagedItemID {
			return nil, ErrAlreadyPublished
		}
	}

	sc := Scheme{
		ID:           uuid.New(),
		StagedItemID: p.StagedItemID,
		Content:      p.Content,
		Source:       p.Source,
		IsActive:     true,
		PublishedAt:  p.PublishedAt,
		Fanout:       Fanout{Status: FanoutPending},
	}
	sc.Rules = slices.Clone(p.Content.Rules)
	m.schemes = append(m.schemes, sc)
	return &sc, nil
}

func (m *memoryStore) Find(_ context.Context, id uuid.UUID) (*Scheme, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, s := range m.schemes {
		if s.ID == id {
			return &s, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memoryStore) List(
	_ context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Scheme], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make([]Scheme, 0)
	for _, s := range slices.Backward(m.schemes) {
		if !s.IsActive || !filters.matches(&s) {
			continue
		}
		if page.Search != nil && !containsFold(s, *page.Search) {
			continue
		}
		matched = append(matched, s)
	}

	result := pagination.NewPageResult(
		pagination.Window(matched, page), len(matched), page.Page, page.PageSize,
	)
	return &result, nil
}

func (m *memoryStore) PendingFanout(_ context.Context, cutoff time.Time, maxAttempts, limit int) ([]Scheme, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pending := make([]Scheme, 0)
	for _, s := range m.schemes {
		if len(pending) == limit {
			break
		}
		if s.Fanout.Status != FanoutComplete && s.Fanout.Attempts < maxAttempts && !s.PublishedAt.After(cutoff) {
			pending = append(pending, s)
		}
	}
	return pending, nil
}

func (m *memoryStore) RecordFanout(_ context.Context, id uuid.UUID, o Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.schemes {
		if m.schemes[i].ID != id {
			continue
		}
		at := o.At
		f := &m.schemes[i].Fanout
		f.Status = o.Status
		f.Attempts++
		f.Matched = o.Matched
		f.Notified = o.Notified
		f.Failed = o.Failed
		f.Error = o.Error
		f.UpdatedAt = &at
		return nil
	}
	return ErrNotFound
}

func (m *memoryStore) Delivered(_ context.Context, id uuid.UUID) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.delivered[id]))
	for farmerID := range m.delivered[id] {
		ids = append(ids, farmerID)
	}
	slices.Sort(ids)
	return ids, nil
}

func (m *memoryStore) RecordDelivered(_ context.Context, id uuid.UUID, farmerIDs []string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !slices.ContainsFunc(m.schemes, func(s Scheme) bool { return s.ID == id }) {
		return ErrNotFound
	}
	set, ok := m.delivered[id]
	if !ok {
		set = make(map[string]time.Time, len(farmerIDs))
		m.delivered[id] = set
	}
	for _, f := range farmerIDs {
		if _, seen := set[f]; !seen {
			set[f] = at
		}
	}
	return nil
}

func containsFold(s Scheme, search string) bool {
	search = strings.ToLower(search)
	fields := []string{s.NameEn}
	if s.NameHi != nil {
		fields = append(fields, *s.NameHi)
	}
	if s.Ministry != nil {
		fields = append(fields, *s.Ministry)
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), search) {
			return true
		}
	}
	return false
}
