// ABOUTME: Mock Store implementation for testing
// ABOUTME: In-memory journal with the same ordering and limits as SQLiteStore

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockStore is an in-memory journal for tests and for running without a
// database file.
type MockStore struct {
	mu     sync.RWMutex
	events []Event
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{}
}

// AppendEvent stores a copy of e. ID and CreatedAt are generated if unset.
func (m *MockStore) AppendEvent(ctx context.Context, e *Event) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Make a copy to avoid external modification
	stored := *e
	if e.Detail != nil {
		stored.Detail = make(map[string]any, len(e.Detail))
		for k, v := range e.Detail {
			stored.Detail[k] = v
		}
	}
	m.events = append(m.events, stored)
	return nil
}

// Record implements Journal.
func (m *MockStore) Record(ctx context.Context, kind EventKind, detail map[string]any) {
	_ = m.AppendEvent(ctx, &Event{Kind: kind, Detail: detail})
}

// ListEvents returns the most recent events, newest first. Events with the
// same timestamp keep reverse insertion order.
func (m *MockStore) ListEvents(ctx context.Context, limit int) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Event, len(m.events))
	for i := range m.events {
		out[len(out)-1-i] = m.events[i]
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if n := normalizeLimit(limit); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// Kinds returns the kinds of all recorded events in insertion order.
func (m *MockStore) Kinds() []EventKind {
	m.mu.RLock()
	defer m.mu.RUnlock()

	kinds := make([]EventKind, len(m.events))
	for i, e := range m.events {
		kinds[i] = e.Kind
	}
	return kinds
}
