package store

import (
	"context"
	"sync"

	"parbuild/internal/session"
	"parbuild/internal/worker"
)

// Memory is an in-process store. Records are cloned on the way in and
// out so callers never share mutable state with the store.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
	workers  map[string]*worker.Worker
}

var (
	_ session.Store = (*Memory)(nil)
	_ worker.Store  = (*Memory)(nil)
)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[string]*session.Session),
		workers:  make(map[string]*worker.Worker),
	}
}

// SaveSession inserts or replaces the record for s.ID.
func (m *Memory) SaveSession(ctx context.Context, s *session.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s.Clone()
	return nil
}

// DeleteSession removes the record for id. Deleting an absent id is a
// no-op.
func (m *Memory) DeleteSession(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// ListSessions returns every stored session in unspecified order.
func (m *Memory) ListSessions(ctx context.Context) ([]*session.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*session.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Clone())
	}
	return out, nil
}

// SaveWorker inserts or replaces the record for w.ID.
func (m *Memory) SaveWorker(ctx context.Context, w *worker.Worker) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workers[w.ID] = w.Clone()
	return nil
}

// DeleteWorker removes the record for id. Deleting an absent id is a
// no-op.
func (m *Memory) DeleteWorker(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.workers, id)
	return nil
}

// ListWorkers returns every stored worker in unspecified order.
func (m *Memory) ListWorkers(ctx context.Context) ([]*worker.Worker, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*worker.Worker, 0, len(m.workers))
	for _, w := range m.workers {
		out = append(out, w.Clone())
	}
	return out, nil
}
