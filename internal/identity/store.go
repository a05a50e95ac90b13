package identity

import (
	"context"
	"database/sql"
	"sync"

	"github.com/google/uuid"

	"github.com/JaimeStill/kisaanseva/pkg/query"
	"github.com/JaimeStill/kisaanseva/pkg/repository"
)

// AgentStore reads agent accounts.
type AgentStore interface {
	FindAgent(ctx context.Context, id uuid.UUID) (*Agent, error)
	FindAgentByPhone(ctx context.Context, phone string) (*Agent, error)
}

type pgAgents struct {
	db *sql.DB
}

// NewAgentStore returns an AgentStore over the agents table.
func NewAgentStore(db *sql.DB) AgentStore {
	return &pgAgents{db: db}
}

func (s *pgAgents) FindAgent(ctx context.Context, id uuid.UUID) (*Agent, error) {
	q, args := query.NewBuilder(projection).BuildSingle("ID", id)
	a, err := repository.QueryOne(ctx, s.db, q, args, scanAgent)
	if err != nil {
		return nil, repository.MapError(err, ErrAgentNotFound, ErrAgentNotFound)
	}
	return &a, nil
}

func (s *pgAgents) FindAgentByPhone(ctx context.Context, phone string) (*Agent, error) {
	q, args := query.NewBuilder(projection).BuildSingle("Phone", phone)
	a, err := repository.QueryOne(ctx, s.db, q, args, scanAgent)
	if err != nil {
		return nil, repository.MapError(err, ErrAgentNotFound, ErrAgentNotFound)
	}
	return &a, nil
}

type memoryAgents struct {
	mu     sync.RWMutex
	agents map[uuid.UUID]Agent
}

// NewMemoryAgentStore returns an in-process AgentStore seeded with agents.
func NewMemoryAgentStore(agents ...Agent) AgentStore {
	m := &memoryAgents{agents: make(map[uuid.UUID]Agent, len(agents))}
	for _, a := range agents {
		m.agents[a.ID] = a
	}
	return m
}

func (m *memoryAgents) FindAgent(_ context.Context, id uuid.UUID) (*Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agents[id]
	if !ok {
		return nil, ErrAgentNotFound
	}
	return &a, nil
}

func (m *memoryAgents) FindAgentByPhone(_ context.Context, phone string) (*Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.agents {
		if a.Phone == phone {
			return &a, nil
		}
	}
	return nil, ErrAgentNotFound
}
