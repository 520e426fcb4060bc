// Package memory provides an in-memory ExecutionStore. Records are lost
// when the process restarts. A size bound evicts the oldest records first.
package memory

import (
	"container/list"
	"context"
	"sync"

	"github.com/rhuss/codexec/pkg/storage"
)

type entry struct {
	rec      *storage.Record
	tenantID string
}

// Store is an in-memory ExecutionStore with optional eviction.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   *list.List // front = newest
	maxSize int        // 0 = unlimited
}

var _ storage.ExecutionStore = (*Store)(nil)

// New creates a store holding at most maxSize records; 0 means unbounded.
func New(maxSize int) *Store {
	return &Store{
		entries: make(map[string]*entry),
		order:   list.New(),
		maxSize: maxSize,
	}
}

// Save implements storage.ExecutionStore.
func (s *Store) Save(ctx context.Context, rec *storage.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[rec.ID]; exists {
		return storage.ErrConflict
	}
	if s.maxSize > 0 && len(s.entries) >= s.maxSize {
		s.evictOldest()
	}

	cp := *rec
	s.entries[rec.ID] = &entry{
		rec:      &cp,
		tenantID: storage.GetTenant(ctx),
	}
	s.order.PushFront(rec.ID)
	return nil
}

// Get implements storage.ExecutionStore.
func (s *Store) Get(ctx context.Context, id string) (*storage.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok || !visible(ctx, e) {
		return nil, storage.ErrNotFound
	}
	cp := *e.rec
	return &cp, nil
}

// List implements storage.ExecutionStore. Records come back in insertion
// order, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]*storage.Record, error) {
	limit = storage.ClampLimit(limit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*storage.Record, 0, min(limit, len(s.entries)))
	for el := s.order.Front(); el != nil && len(out) < limit; el = el.Next() {
		e := s.entries[el.Value.(string)]
		if !visible(ctx, e) {
			continue
		}
		cp := *e.rec
		out = append(out, &cp)
	}
	return out, nil
}

// HealthCheck always returns nil for the in-memory store.
func (s *Store) HealthCheck(context.Context) error {
	return nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func visible(ctx context.Context, e *entry) bool {
	tenant := storage.GetTenant(ctx)
	return tenant == "" || e.tenantID == tenant
}

// evictOldest must be called with s.mu held.
func (s *Store) evictOldest() {
	back := s.order.Back()
	if back == nil {
		return
	}
	s.order.Remove(back)
	delete(s.entries, back.Value.(string))
}
