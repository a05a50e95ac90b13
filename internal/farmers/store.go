package farmers

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/JaimeStill/kisaanseva/pkg/query"
	"github.com/JaimeStill/kisaanseva/pkg/repository"
)

// Store reads farmer records.
type Store interface {
	// Resolve finds a farmer by farmer_id or phone number.
	Resolve(ctx context.Context, q string) (*Farmer, error)
	// Record returns the full record with active crops and documents.
	Record(ctx context.Context, farmerID string) (*Farmer, error)
}

type pgStore struct {
	db *sql.DB
}

// NewStore returns a Store over the farmers tables.
func NewStore(db *sql.DB) Store {
	return &pgStore{db: db}
}

func (s *pgStore) Resolve(ctx context.Context, q string) (*Farmer, error) {
	sqlQ, args := query.
		NewBuilder(projection).
		WhereAny(q, "FarmerID", "Phone").
		BuildSingleOrNull()

	f, err := repository.QueryOne(ctx, s.db, sqlQ, args, scanFarmer)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrNotFound)
	}
	return &f, nil
}

func (s *pgStore) Record(ctx context.Context, farmerID string) (*Farmer, error) {
	q, args := query.NewBuilder(projection).BuildSingle("FarmerID", farmerID)
	f, err := repository.QueryOne(ctx, s.db, q, args, scanFarmer)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrNotFound)
	}

	cropsQ, cropsArgs := query.
		NewBuilder(cropProjection, query.SortField{Field: "CropName"}).
		WhereEquals("FarmerID", farmerID).
		WhereEquals("IsActive", true).
		Build()
	f.Crops, err = repository.QueryMany(ctx, s.db, cropsQ, cropsArgs, scanCrop)
	if err != nil {
		return nil, fmt.Errorf("query crops: %w", err)
	}

	docsQ, docsArgs := query.
		NewBuilder(documentProjection, query.SortField{Field: "UploadedAt", Descending: true}).
		WhereEquals("FarmerID", farmerID).
		Build()
	f.Documents, err = repository.QueryMany(ctx, s.db, docsQ, docsArgs, scanDocument)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}

	return &f, nil
}

type memoryStore struct {
	mu      sync.RWMutex
	farmers map[string]Farmer
}

// NewMemoryStore returns an in-process Store seeded with farmers.
func NewMemoryStore(farmers ...Farmer) Store {
	m := &memoryStore{farmers: make(map[string]Farmer, len(farmers))}
	for _, f := range farmers {
		m.farmers[f.FarmerID] = f
	}
	return m
}

func (m *memoryStore) Resolve(_ context.Context, q string) (*Farmer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if f, ok := m.farmers[q]; ok {
		f.Crops, f.Documents = nil, nil
		return &f, nil
	}
	for _, f := range m.farmers {
		if f.Phone == q {
			f.Crops, f.Documents = nil, nil
			return &f, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memoryStore) Record(_ context.Context, farmerID string) (*Farmer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.farmers[farmerID]
	if !ok {
		return nil, ErrNotFound
	}
	if f.Crops == nil {
		f.Crops = []Crop{}
	}
	if f.Documents == nil {
		f.Documents = []Document{}
	}
	return &f, nil
}
