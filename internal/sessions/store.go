package sessions

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/kisaanseva/pkg/pagination"
	"github.com/JaimeStill/kisaanseva/pkg/query"
	"github.com/JaimeStill/kisaanseva/pkg/repository"
)

// Store persists access sessions. Implementations guarantee that at most one
// session per farmer is in an open status.
type Store interface {
	// Open expires the farmer's overdue open sessions, supersedes the same
	// agent's pending challenge for the farmer, and inserts s. It returns
	// ErrConflict when another open session holds the farmer.
	Open(ctx context.Context, s *Session, now time.Time) error
	Get(ctx context.Context, sel Selector) (*Session, error)
	// Update locks the selected session, applies fn, and persists the result.
	// Mutations made by fn are persisted even when fn returns an error, and
	// that error is returned alongside the session.
	Update(ctx context.Context, sel Selector, fn func(*Session) error) (*Session, error)
	List(ctx context.Context, filters LogFilters, page pagination.PageRequest) (*pagination.PageResult[Session], error)
	// ExpireOverdue expires every open session past its ceiling at now.
	ExpireOverdue(ctx context.Context, now time.Time) (int, error)
}

const expireOverdueClause = `
	status = 'expired',
	ended_at = $1,
	end_reason = CASE WHEN status = 'active' THEN 'timeout' ELSE 'challenge_timeout' END
	WHERE ((status IN ('requested', 'awaiting_consent') AND challenge_expires_at <= $1)
		OR (status = 'active' AND expires_at <= $1))`

type pgStore struct {
	db *sql.DB
}

// NewStore returns a Store over the agent_sessions table.
func NewStore(db *sql.DB) Store {
	return &pgStore{db: db}
}

func (p *pgStore) Open(ctx context.Context, s *Session, now time.Time) error {
	expire := `UPDATE agent_sessions SET` + expireOverdueClause + ` AND farmer_id = $2`

	supersede := `
		UPDATE agent_sessions
		SET status = 'expired', ended_at = $1, end_reason = 'superseded'
		WHERE farmer_id = $2 AND agent_id = $3
			AND status IN ('requested', 'awaiting_consent')`

	insert := `
		INSERT INTO agent_sessions(
			id, challenge_ref, farmer_id, agent_id, purpose, status,
			otp_hash, otp_attempts, requested_at, challenge_expires_at,
			actions_taken, forms_downloaded
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9, '[]', '[]')`

	err := repository.Run(ctx, p.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, expire, now, s.FarmerID); err != nil {
			return fmt.Errorf("expire overdue sessions: %w", err)
		}
		if _, err := tx.ExecContext(ctx, supersede, now, s.FarmerID, s.AgentID); err != nil {
			return fmt.Errorf("supersede pending challenge: %w", err)
		}
		_, err := tx.ExecContext(ctx, insert,
			s.ID, s.ChallengeRef, s.FarmerID, s.AgentID, s.Purpose, string(s.Status),
			s.OTPHash, s.RequestedAt, s.ChallengeExpiresAt,
		)
		return err
	})

	if _, ok := repository.UniqueViolation(err); ok {
		return ErrConflict
	}
	return err
}

func (p *pgStore) Get(ctx context.Context, sel Selector) (*Session, error) {
	q, args := sel.apply(query.NewBuilder(projection, defaultSort)).BuildSingleOrNull()
	s, err := repository.QueryOne(ctx, p.db, q, args, scanSession)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrConflict)
	}
	return &s, nil
}

func (p *pgStore) Update(ctx context.Context, sel Selector, fn func(*Session) error) (*Session, error) {
	q, args := sel.apply(query.NewBuilder(projection, defaultSort)).ForUpdate().BuildSingleOrNull()

	write := `
		UPDATE agent_sessions
		SET session_id = $2, status = $3, otp_attempts = $4, otp_verified_at = $5,
			started_at = $6, expires_at = $7, ended_at = $8, end_reason = $9,
			actions_taken = $10, forms_downloaded = $11
		WHERE id = $1`

	var fnErr error
	s, err := repository.WithTx(ctx, p.db, func(tx *sql.Tx) (Session, error) {
		s, err := repository.QueryOne(ctx, tx, q, args, scanSession)
		if err != nil {
			return s, err
		}

		fnErr = fn(&s)

		actions, err := encodeList(s.Actions)
		if err != nil {
			return s, err
		}
		forms, err := encodeList(s.Forms)
		if err != nil {
			return s, err
		}

		err = repository.ExecExpectOne(ctx, tx, write,
			s.ID, nullUUID(s.SessionID), string(s.Status), s.OTPAttempts, s.OTPVerifiedAt,
			s.StartedAt, s.ExpiresAt, s.EndedAt, nullString(string(s.EndReason)),
			actions, forms,
		)
		return s, err
	})
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrConflict)
	}
	return &s, fnErr
}

func (p *pgStore) List(
	ctx context.Context,
	filters LogFilters,
	page pagination.PageRequest,
) (*pagination.PageResult[Session], error) {
	qb := filters.apply(query.NewBuilder(projection, defaultSort))

	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count sessions: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	sessions, err := repository.QueryMany(ctx, p.db, pageSQL, pageArgs, scanSession)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}

	result := pagination.NewPageResult(sessions, total, page.Page, page.PageSize)
	return &result, nil
}

func (p *pgStore) ExpireOverdue(ctx context.Context, now time.Time) (int, error) {
	n, err := repository.ExecCount(ctx, p.db, `UPDATE agent_sessions SET`+expireOverdueClause, now)
	if err != nil {
		return 0, fmt.Errorf("expire overdue sessions: %w", err)
	}
	return n, nil
}

type memoryStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
}

// NewMemoryStore returns an in-process Store. A single mutex serializes
// every operation, which preserves the one-open-session-per-farmer invariant.
func NewMemoryStore() Store {
	return &memoryStore{sessions: make(map[uuid.UUID]*Session)}
}

func (m *memoryStore) Open(_ context.Context, s *Session, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.sessions {
		if existing.FarmerID != s.FarmerID || !existing.Status.Open() {
			continue
		}
		if existing.settle(now) {
			continue
		}
		if existing.AgentID == s.AgentID && existing.Status != StatusActive {
			existing.apply(EventSuperseded, now)
		}
	}

	for _, existing := range m.sessions {
		if existing.FarmerID == s.FarmerID && existing.Status.Open() {
			return ErrConflict
		}
	}

	stored := clone(s)
	m.sessions[s.ID] = stored
	return nil
}

func (m *memoryStore) Get(_ context.Context, sel Selector) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.find(sel)
	if s == nil {
		return nil, ErrNotFound
	}
	return clone(s), nil
}

func (m *memoryStore) Update(_ context.Context, sel Selector, fn func(*Session) error) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.find(sel)
	if s == nil {
		return nil, ErrNotFound
	}

	working := clone(s)
	fnErr := fn(working)
	m.sessions[working.ID] = clone(working)
	return working, fnErr
}

func (m *memoryStore) List(
	_ context.Context,
	filters LogFilters,
	page pagination.PageRequest,
) (*pagination.PageResult[Session], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	matched := make([]Session, 0)
	for _, s := range m.sessions {
		if filters.matches(s) {
			matched = append(matched, *clone(s))
		}
	}
	slices.SortFunc(matched, func(a, b Session) int {
		return b.RequestedAt.Compare(a.RequestedAt)
	})

	result := pagination.NewPageResult(
		pagination.Window(matched, page), len(matched), page.Page, page.PageSize,
	)
	return &result, nil
}

func (m *memoryStore) ExpireOverdue(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, s := range m.sessions {
		if s.settle(now) {
			n++
		}
	}
	return n, nil
}

// find returns the most recently requested session matching sel.
func (m *memoryStore) find(sel Selector) *Session {
	var found *Session
	for _, s := range m.sessions {
		if !sel.matches(s) {
			continue
		}
		if found == nil || s.RequestedAt.After(found.RequestedAt) {
			found = s
		}
	}
	return found
}

func clone(s *Session) *Session {
	c := *s
	c.Actions = slices.Clone(s.Actions)
	c.Forms = slices.Clone(s.Forms)
	return &c
}
