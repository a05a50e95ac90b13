package staging

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/JaimeStill/kisaanseva/internal/schemes"
	"github.com/JaimeStill/kisaanseva/pkg/pagination"
	"github.com/JaimeStill/kisaanseva/pkg/query"
	"github.com/JaimeStill/kisaanseva/pkg/repository"
)

// Store persists staged items. Status transitions are guarded at the store so
// concurrent reviewers cannot both move the same item out of pending.
type Store interface {
	Create(ctx context.Context, item *Item) error
	Find(ctx context.Context, id uuid.UUID) (*Item, error)
	List(ctx context.Context, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Item], error)
	PendingCount(ctx context.Context) (int, error)
	// Update applies fn to the locked item and writes the result back when
	// fn succeeds.
	Update(ctx context.Context, id uuid.UUID, fn func(*Item) error) (*Item, error)
	// Approve moves a pending item to approved and publishes it in one
	// unit. When publishing fails the item stays pending.
	Approve(ctx context.Context, id uuid.UUID, review Review) (*Item, *schemes.Scheme, error)
	// Reject moves a pending item to rejected.
	Reject(ctx context.Context, id uuid.UUID, review Review) (*Item, error)
}

type pgStore struct {
	db      *sql.DB
	catalog schemes.Store
}

// NewStore returns a Store over the staged_items table that publishes into
// catalog within the approval transaction.
func NewStore(db *sql.DB, catalog schemes.Store) Store {
	return &pgStore{db: db, catalog: catalog}
}

func (s *pgStore) Create(ctx context.Context, i *Item) error {
	rules, err := encodeRules(i)
	if err != nil {
		return err
	}

	q := `
		INSERT INTO public.staged_items (
			id, item_type, name_en, name_hi, ministry, description_en, description_hi,
			benefit_type, benefit_amount, subsidy_category, apply_url, how_to_apply,
			target_state, source_url, eligibility_rules, source, source_ref, raw_data,
			status, version, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`

	err = repository.ExecExpectOne(ctx, s.db, q,
		i.ID, i.ItemType, i.NameEn, i.NameHi, i.Ministry, i.DescriptionEn, i.DescriptionHi,
		i.BenefitType, i.BenefitAmount, i.SubsidyCategory, i.ApplyURL, i.HowToApply,
		i.TargetState, i.SourceURL, rules, i.Source, i.SourceRef, rawData(i),
		i.Status, i.Version, i.CreatedAt, i.UpdatedAt,
	)
	return repository.MapError(err, ErrNotFound, ErrDuplicate)
}

func (s *pgStore) Find(ctx context.Context, id uuid.UUID) (*Item, error) {
	return find(ctx, s.db, id)
}

func find(ctx context.Context, q repository.Querier, id uuid.UUID) (*Item, error) {
	sqlQ, args := query.NewBuilder(projection).BuildSingle("ID", id)
	i, err := repository.QueryOne(ctx, q, sqlQ, args, scanItem)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrNotFound)
	}
	return &i, nil
}

func (s *pgStore) List(
	ctx context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Item], error) {
	qb := query.
		NewBuilder(projection, defaultSort).
		WhereSearch(page.Search, "NameEn", "NameHi", "Ministry")
	qb = filters.Apply(qb).OrderByFields(page.Sort)

	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := s.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count staged items: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	items, err := repository.QueryMany(ctx, s.db, pageSQL, pageArgs, scanItem)
	if err != nil {
		return nil, fmt.Errorf("query staged items: %w", err)
	}

	result := pagination.NewPageResult(items, total, page.Page, page.PageSize)
	return &result, nil
}

func (s *pgStore) PendingCount(ctx context.Context) (int, error) {
	q, args := query.
		NewBuilder(projection).
		WhereEquals("Status", StatusPending).
		BuildCount()

	var n int
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending items: %w", err)
	}
	return n, nil
}

func (s *pgStore) Update(ctx context.Context, id uuid.UUID, fn func(*Item) error) (*Item, error) {
	return repository.WithTx(ctx, s.db, func(tx *sql.Tx) (*Item, error) {
		lockQ, lockArgs := query.
			NewBuilder(projection).
			WhereEquals("ID", id).
			ForUpdate().
			BuildSingleOrNull()

		i, err := repository.QueryOne(ctx, tx, lockQ, lockArgs, scanItem)
		if err != nil {
			return nil, repository.MapError(err, ErrNotFound, ErrNotFound)
		}

		if err := fn(&i); err != nil {
			return nil, err
		}

		rules, err := encodeRules(&i)
		if err != nil {
			return nil, err
		}

		q := `
			UPDATE public.staged_items
			SET item_type = $2, name_en = $3, name_hi = $4, ministry = $5,
				description_en = $6, description_hi = $7, benefit_type = $8,
				benefit_amount = $9, subsidy_category = $10, apply_url = $11,
				how_to_apply = $12, target_state = $13, source_url = $14,
				eligibility_rules = $15, version = $16, updated_at = $17
			WHERE id = $1`

		err = repository.ExecExpectOne(ctx, tx, q,
			i.ID, i.ItemType, i.NameEn, i.NameHi, i.Ministry,
			i.DescriptionEn, i.DescriptionHi, i.BenefitType,
			i.BenefitAmount, i.SubsidyCategory, i.ApplyURL,
			i.HowToApply, i.TargetState, i.SourceURL,
			rules, i.Version, i.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("update staged item: %w", err)
		}
		return &i, nil
	})
}

type approval struct {
	item   *Item
	scheme *schemes.Scheme
}

func (s *pgStore) Approve(ctx context.Context, id uuid.UUID, review Review) (*Item, *schemes.Scheme, error) {
	res, err := repository.WithTx(ctx, s.db, func(tx *sql.Tx) (approval, error) {
		item, err := review.apply(ctx, tx, id, StatusApproved)
		if err != nil {
			return approval{}, err
		}

		sc, err := s.catalog.Publish(ctx, tx, item.publication(review.At))
		if err != nil {
			return approval{}, fmt.Errorf("publish staged item: %w", err)
		}
		return approval{item: item, scheme: sc}, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return res.item, res.scheme, nil
}

func (s *pgStore) Reject(ctx context.Context, id uuid.UUID, review Review) (*Item, error) {
	return repository.WithTx(ctx, s.db, func(tx *sql.Tx) (*Item, error) {
		return review.apply(ctx, tx, id, StatusRejected)
	})
}

// apply performs the guarded pending -> to transition and returns the
// updated row.
func (r Review) apply(ctx context.Context, tx *sql.Tx, id uuid.UUID, to Status) (*Item, error) {
	q := `
		UPDATE public.staged_items
		SET status = $2, reviewed_by = $3, review_notes = $4, reviewed_at = $5,
			updated_at = $5, version = version + 1
		WHERE id = $1 AND status = 'pending'`

	err := repository.ExecExpectOne(ctx, tx, q, id, to, r.Reviewer, r.Notes, r.At)
	if errors.Is(err, sql.ErrNoRows) {
		if _, findErr := find(ctx, tx, id); findErr != nil {
			return nil, findErr
		}
		return nil, ErrInvalidState
	}
	if err != nil {
		return nil, fmt.Errorf("review staged item: %w", err)
	}
	return find(ctx, tx, id)
}

type memoryStore struct {
	mu      sync.Mutex
	items   []*Item
	catalog schemes.Store
}

// NewMemoryStore returns an in-process Store that publishes into catalog
// while holding its lock.
func NewMemoryStore(catalog schemes.Store) Store {
	return &memoryStore{catalog: catalog}
}

func clone(i *Item) *Item {
	c := *i
	c.Rules = slices.Clone(i.Rules)
	c.RawData = slices.Clone(i.RawData)
	return &c
}

func (m *memoryStore) find(id uuid.UUID) (*Item, bool) {
	for _, i := range m.items {
		if i.ID == id {
			return i, true
		}
	}
	return nil, false
}

func (m *memoryStore) Create(_ context.Context, i *Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i.SourceRef != nil {
		for _, existing := range m.items {
			if existing.Source == i.Source && existing.SourceRef != nil && *existing.SourceRef == *i.SourceRef {
				return ErrDuplicate
			}
		}
	}
	m.items = append(m.items, clone(i))
	return nil
}

func (m *memoryStore) Find(_ context.Context, id uuid.UUID) (*Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.find(id)
	if !ok {
		return nil, ErrNotFound
	}
	return clone(i), nil
}

func (m *memoryStore) List(
	_ context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Item], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	matched := make([]Item, 0)
	for _, i := range slices.Backward(m.items) {
		if !filters.matches(i) {
			continue
		}
		if page.Search != nil && !containsFold(i, *page.Search) {
			continue
		}
		matched = append(matched, *clone(i))
	}

	result := pagination.NewPageResult(
		pagination.Window(matched, page), len(matched), page.Page, page.PageSize,
	)
	return &result, nil
}

func (m *memoryStore) PendingCount(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, i := range m.items {
		if i.Status == StatusPending {
			n++
		}
	}
	return n, nil
}

func (m *memoryStore) Update(_ context.Context, id uuid.UUID, fn func(*Item) error) (*Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i, ok := m.find(id)
	if !ok {
		return nil, ErrNotFound
	}
	next := clone(i)
	if err := fn(next); err != nil {
		return nil, err
	}
	*i = *next
	return clone(i), nil
}

func (m *memoryStore) transition(id uuid.UUID, to Status, r Review) (*Item, error) {
	i, ok := m.find(id)
	if !ok {
		return nil, ErrNotFound
	}
	if i.Status != StatusPending {
		return nil, ErrInvalidState
	}
	next := clone(i)
	next.Status = to
	next.ReviewedBy = &r.Reviewer
	next.ReviewNotes = r.Notes
	next.ReviewedAt = &r.At
	next.UpdatedAt = r.At
	next.Version++
	return next, nil
}

func (m *memoryStore) Approve(ctx context.Context, id uuid.UUID, review Review) (*Item, *schemes.Scheme, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := m.transition(id, StatusApproved, review)
	if err != nil {
		return nil, nil, err
	}
	sc, err := m.catalog.Publish(ctx, nil, next.publication(review.At))
	if err != nil {
		return nil, nil, fmt.Errorf("publish staged item: %w", err)
	}

	i, _ := m.find(id)
	*i = *next
	return clone(i), sc, nil
}

func (m *memoryStore) Reject(_ context.Context, id uuid.UUID, review Review) (*Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := m.transition(id, StatusRejected, review)
	if err != nil {
		return nil, err
	}
	i, _ := m.find(id)
	*i = *next
	return clone(i), nil
}

func containsFold(i *Item, search string) bool {
	search = strings.ToLower(search)
	fields := []string{i.NameEn}
	if i.NameHi != nil {
		fields = append(fields, *i.NameHi)
	}
	if i.Ministry != nil {
		fields = append(fields, *i.Ministry)
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), search) {
			return true
		}
	}
	return false
}
