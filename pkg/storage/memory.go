package storage

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/JaimeStill/kisaanseva/pkg/lifecycle"
)

type entry struct {
	obj      Object
	data     []byte
	modified time.Time
}

type memory struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewMemory returns an in-process System.
func NewMemory() System {
	return &memory{entries: make(map[string]entry)}
}

func (m *memory) Start(*lifecycle.Coordinator) error { return nil }

func (m *memory) Upload(ctx context.Context, obj Object, body io.Reader) error {
	if err := ValidateKey(obj.Key); err != nil {
		return err
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	obj.Metadata = clone(obj.Metadata)

	m.mu.Lock()
	m.entries[obj.Key] = entry{obj: obj, data: data, modified: time.Now().UTC()}
	m.mu.Unlock()
	return nil
}

func (m *memory) Download(_ context.Context, key string) (*Blob, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	return &Blob{
		Body:          io.NopCloser(bytes.NewReader(e.data)),
		ContentType:   e.obj.ContentType,
		ContentLength: int64(len(e.data)),
		FileName:      e.obj.FileName,
		Metadata:      clone(e.obj.Metadata),
		LastModified:  e.modified,
	}, nil
}

func (m *memory) Delete(_ context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[key]; !ok {
		return ErrNotFound
	}
	delete(m.entries, key)
	return nil
}
