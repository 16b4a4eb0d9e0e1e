// Package memory implements an in-process record Table for tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"metastore/internal/record/core"
)

type entry struct {
	metadata *string
}

// Store implements core.Table backed by process memory.
type Store struct {
	mu      sync.RWMutex
	records map[string]entry
}

var _ core.Table = (*Store)(nil)

// New returns an empty in-memory table.
func New() *Store { return &Store{records: make(map[string]entry)} }

// Driver returns the record driver identifier.
func (s *Store) Driver() core.Driver { return core.DriverMemory }

// Close is a no-op.
func (s *Store) Close() error { return nil }

// Create inserts a record under a generated id.
func (s *Store) Create(ctx context.Context) (*core.Handle, error) {
	return s.CreateWithID(ctx, core.NewID())
}

// CreateWithID inserts a record with absent metadata.
func (s *Store) CreateWithID(_ context.Context, id string) (*core.Handle, error) {
	if err := core.ValidateID(id); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[id]; exists {
		return nil, fmt.Errorf("%w: %s", core.ErrExists, id)
	}
	s.records[id] = entry{}
	return s.handle(id), nil
}

// Open returns a handle on an existing record.
func (s *Store) Open(_ context.Context, id string) (*core.Handle, error) {
	s.mu.RLock()
	_, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}
	return s.handle(id), nil
}

// List returns every record id in lexical order.
func (s *Store) List(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Drop removes the record returning true if it existed.
func (s *Store) Drop(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[id]
	if ok {
		delete(s.records, id)
	}
	return ok, nil
}

func (s *Store) handle(id string) *core.Handle {
	return core.NewHandle(id, row{store: s, id: id})
}

type row struct {
	store *Store
	id    string
}

func (r row) LoadMetadata(context.Context) (string, bool, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	e, ok := r.store.records[r.id]
	if !ok {
		return "", false, fmt.Errorf("%w: %s", core.ErrNotFound, r.id)
	}
	if e.metadata == nil {
		return "", false, nil
	}
	return *e.metadata, true, nil
}

func (r row) SaveMetadata(_ context.Context, raw string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.records[r.id]; !ok {
		return fmt.Errorf("%w: %s", core.ErrNotFound, r.id)
	}
	r.store.records[r.id] = entry{metadata: &raw}
	return nil
}
