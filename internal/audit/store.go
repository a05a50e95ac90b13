package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/JaimeStill/kisaanseva/pkg/pagination"
	"github.com/JaimeStill/kisaanseva/pkg/query"
	"github.com/JaimeStill/kisaanseva/pkg/repository"
)

// Store persists audit events.
type Store interface {
	Insert(ctx context.Context, e Event) error
	List(ctx context.Context, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Event], error)
}

type pgStore struct {
	db *sql.DB
}

// NewStore returns a Store over the audit_events table.
func NewStore(db *sql.DB) Store {
	return &pgStore{db: db}
}

func (s *pgStore) Insert(ctx context.Context, e Event) error {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return fmt.Errorf("marshal details: %w", err)
	}

	q := `
		INSERT INTO audit_events(id, occurred_at, actor, action, subject_type, subject_id, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	return repository.ExecExpectOne(ctx, s.db, q,
		e.ID, e.OccurredAt, e.Actor, e.Action, e.SubjectType, e.SubjectID, details,
	)
}

func (s *pgStore) List(
	ctx context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Event], error) {
	qb := filters.Apply(query.NewBuilder(projection, defaultSort))

	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := s.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count audit events: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	events, err := repository.QueryMany(ctx, s.db, pageSQL, pageArgs, scanEvent)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}

	result := pagination.NewPageResult(events, total, page.Page, page.PageSize)
	return &result, nil
}

type memoryStore struct {
	mu     sync.RWMutex
	events []Event
}

// NewMemoryStore returns an in-process Store.
func NewMemoryStore() Store {
	return &memoryStore{}
}

func (m *memoryStore) Insert(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *memoryStore) List(
	_ context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Event], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make([]Event, 0)
	for _, e := range slices.Backward(m.events) {
		if filters.matches(e) {
			matched = append(matched, e)
		}
	}

	result := pagination.NewPageResult(
		pagination.Window(matched, page), len(matched), page.Page, page.PageSize,
	)
	return &result, nil
}
