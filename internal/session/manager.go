package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"parbuild/internal/event"
	"parbuild/internal/filelock"
	"parbuild/internal/logging"
)

// Store is the durable persistence surface the manager writes through to.
// Implementations live in internal/store.
type Store interface {
	// SaveSession persists a session record, overwriting any previous state.
	SaveSession(ctx context.Context, s *Session) error

	// DeleteSession removes a session record.
	DeleteSession(ctx context.Context, id string) error

	// ListSessions returns every persisted session record.
	ListSessions(ctx context.Context) ([]*Session, error)
}

// Option configures a Manager.
type Option func(*Manager)

// WithBus sets the event bus for lifecycle and lock events.
func WithBus(bus *event.Bus) Option {
	return func(m *Manager) { m.bus = bus }
}

// WithLogger sets the structured logger. Defaults to a no-op logger.
func WithLogger(logger *logging.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// Manager owns all session records and the file lock table. In-memory state
// is canonical; every mutation is written through to the durable store after
// the manager's lock is released.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	locks    *filelock.Table
	store    Store
	bus      *event.Bus
	logger   *logging.Logger
}

// NewManager creates a Manager, loading any persisted sessions from the
// store. Lock state is not durable: sessions reload with empty lock sets
// and re-claim what they need.
func NewManager(ctx context.Context, store Store, opts ...Option) (*Manager, error) {
	m := &Manager{
		sessions: make(map[string]*Session),
		store:    store,
		logger:   logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.locks = filelock.NewTable(m.bus)

	persisted, err := store.ListSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	for _, s := range persisted {
		s.LockedFiles = nil
		m.sessions[s.ID] = s
	}
	if len(persisted) > 0 {
		m.logger.Info("sessions restored", "count", len(persisted))
	}
	return m, nil
}

// Create registers a new session in Created status. It always succeeds.
func (m *Manager) Create(ctx context.Context, name string, totalTasks int, metadata map[string]string) (*Session, error) {
	s := &Session{
		ID:         uuid.NewString(),
		Name:       name,
		Status:     StatusCreated,
		CreatedAt:  time.Now(),
		TotalTasks: totalTasks,
		Metadata:   cloneMetadata(metadata),
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	snapshot := s.Clone()
	m.mu.Unlock()

	if err := m.store.SaveSession(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("persist session %s: %w", s.ID, err)
	}
	m.publish(event.NewSessionCreatedEvent(s.ID, name, totalTasks))
	m.logger.Info("session created", "session_id", s.ID, "name", name, "total_tasks", totalTasks)
	return snapshot, nil
}

// Start transitions a Created or Paused session to Running. The optional
// workerID records which worker drives the session. The start time is
// recorded on the first transition only.
func (m *Manager) Start(ctx context.Context, id, workerID string) error {
	return m.transition(ctx, id, StatusRunning, workerID, StatusCreated, StatusPaused)
}

// Pause suspends a Running session.
func (m *Manager) Pause(ctx context.Context, id string) error {
	return m.transition(ctx, id, StatusPaused, "", StatusRunning)
}

// Resume returns a Paused session to Running.
func (m *Manager) Resume(ctx context.Context, id, workerID string) error {
	return m.transition(ctx, id, StatusRunning, workerID, StatusPaused)
}

// Complete marks the session Completed. Valid from any non-terminal status.
func (m *Manager) Complete(ctx context.Context, id string) error {
	return m.terminate(ctx, id, StatusCompleted)
}

// Fail marks the session Failed. Valid from any non-terminal status.
func (m *Manager) Fail(ctx context.Context, id string) error {
	return m.terminate(ctx, id, StatusFailed)
}

// Cancel marks the session Cancelled. Valid from any non-terminal status.
// In-flight tasks are not interrupted; their completions become no-ops.
func (m *Manager) Cancel(ctx context.Context, id string) error {
	return m.terminate(ctx, id, StatusCancelled)
}

// transition moves the session to a non-terminal target status if the
// current status is one of the allowed sources.
func (m *Manager) transition(ctx context.Context, id string, to Status, workerID string, from ...Status) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if s.Status.IsTerminal() {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrAlreadyTerminal, id, s.Status)
	}
	allowed := false
	for _, f := range from {
		if s.Status == f {
			allowed = true
			break
		}
	}
	if !allowed {
		m.mu.Unlock()
		return fmt.Errorf("%w: cannot move %s from %s to %s", ErrInvalidTransition, id, s.Status, to)
	}

	prev := s.Status
	s.Status = to
	if to == StatusRunning && s.StartedAt == nil {
		now := time.Now()
		s.StartedAt = &now
	}
	if workerID != "" {
		s.AssignedWorkerID = workerID
	}
	snapshot := s.Clone()
	m.mu.Unlock()

	if err := m.store.SaveSession(ctx, snapshot); err != nil {
		return fmt.Errorf("persist session %s: %w", id, err)
	}
	m.publish(event.NewSessionStatusChangedEvent(id, prev.String(), to.String()))
	m.logger.Info("session status changed", "session_id", id, "from", prev, "to", to)
	return nil
}

// terminate moves the session to a terminal status, stamps the completion
// time, and releases every file lock the session still holds.
func (m *Manager) terminate(ctx context.Context, id string, to Status) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if s.Status.IsTerminal() {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrAlreadyTerminal, id, s.Status)
	}

	prev := s.Status
	s.Status = to
	now := time.Now()
	s.CompletedAt = &now
	s.LockedFiles = nil
	snapshot := s.Clone()
	m.mu.Unlock()

	// A finished session must not block others; drop its claims now rather
	// than waiting for cleanup.
	m.locks.ReleaseAll(id)

	if err := m.store.SaveSession(ctx, snapshot); err != nil {
		return fmt.Errorf("persist session %s: %w", id, err)
	}
	m.publish(event.NewSessionStatusChangedEvent(id, prev.String(), to.String()))
	m.logger.Info("session ended", "session_id", id, "status", to)
	return nil
}

// UpdateProgress sets absolute task counters. Nil fields are unchanged.
// The update fails with ErrInvalidProgress if any counter would go negative
// or the counters would sum past the session's total.
func (m *Manager) UpdateProgress(ctx context.Context, id string, upd ProgressUpdate) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if s.Status.IsTerminal() {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrAlreadyTerminal, id, s.Status)
	}

	completed, failed, inProgress := s.CompletedTasks, s.FailedTasks, s.InProgressTasks
	if upd.Completed != nil {
		completed = *upd.Completed
	}
	if upd.Failed != nil {
		failed = *upd.Failed
	}
	if upd.InProgress != nil {
		inProgress = *upd.InProgress
	}
	if completed < 0 || failed < 0 || inProgress < 0 || completed+failed+inProgress > s.TotalTasks {
		m.mu.Unlock()
		return fmt.Errorf("%w: completed=%d failed=%d in_progress=%d total=%d",
			ErrInvalidProgress, completed, failed, inProgress, s.TotalTasks)
	}

	s.CompletedTasks, s.FailedTasks, s.InProgressTasks = completed, failed, inProgress
	snapshot := s.Clone()
	m.mu.Unlock()

	if err := m.store.SaveSession(ctx, snapshot); err != nil {
		return fmt.Errorf("persist session %s: %w", id, err)
	}
	return nil
}

// RecordTaskStarted bumps the in-progress counter when a task is handed to
// a worker. Starting more tasks than the total allows is rejected.
func (m *Manager) RecordTaskStarted(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if s.Status.IsTerminal() {
		m.mu.Unlock()
		m.logger.Debug("task start observed for ended session", "session_id", id)
		return nil
	}
	if s.CompletedTasks+s.FailedTasks+s.InProgressTasks+1 > s.TotalTasks {
		m.mu.Unlock()
		return fmt.Errorf("%w: all %d tasks already accounted for", ErrInvalidProgress, s.TotalTasks)
	}
	s.InProgressTasks++
	snapshot := s.Clone()
	m.mu.Unlock()

	if err := m.store.SaveSession(ctx, snapshot); err != nil {
		return fmt.Errorf("persist session %s: %w", id, err)
	}
	return nil
}

// RecordTaskResult moves one task from in-progress to completed or failed.
// Results arriving for a terminal session are observed but change nothing;
// the worker finished work nobody is waiting for.
func (m *Manager) RecordTaskResult(ctx context.Context, id string, success bool) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if s.Status.IsTerminal() {
		m.mu.Unlock()
		m.logger.Debug("task result observed for ended session", "session_id", id, "success", success)
		return nil
	}
	if s.InProgressTasks > 0 {
		s.InProgressTasks--
	}
	if success {
		s.CompletedTasks++
	} else {
		s.FailedTasks++
	}
	snapshot := s.Clone()
	m.mu.Unlock()

	if err := m.store.SaveSession(ctx, snapshot); err != nil {
		return fmt.Errorf("persist session %s: %w", id, err)
	}
	return nil
}

// RecordTaskRequeued returns one in-progress task to pending accounting,
// used when a worker goes offline and its task re-enters the queue.
func (m *Manager) RecordTaskRequeued(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if s.Status.IsTerminal() || s.InProgressTasks == 0 {
		m.mu.Unlock()
		return nil
	}
	s.InProgressTasks--
	snapshot := s.Clone()
	m.mu.Unlock()

	if err := m.store.SaveSession(ctx, snapshot); err != nil {
		return fmt.Errorf("persist session %s: %w", id, err)
	}
	return nil
}

// LockFiles claims exclusive ownership of every path for the session.
// The claim is all-or-nothing: if any path is held by another session the
// call fails with a *filelock.ConflictError and nothing is claimed.
func (m *Manager) LockFiles(ctx context.Context, id string, paths []string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if s.Status.IsTerminal() {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrAlreadyTerminal, id, s.Status)
	}

	if err := m.locks.ClaimAll(id, paths); err != nil {
		m.mu.Unlock()
		return err
	}
	s.LockedFiles = m.locks.SessionPaths(id)
	snapshot := s.Clone()
	m.mu.Unlock()

	if err := m.store.SaveSession(ctx, snapshot); err != nil {
		return fmt.Errorf("persist session %s: %w", id, err)
	}
	return nil
}

// UnlockFiles releases the session's hold on each path. Paths the session
// does not hold are skipped silently.
func (m *Manager) UnlockFiles(ctx context.Context, id string, paths []string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	for _, p := range paths {
		// Releasing a path we do not hold is a no-op, not an error.
		if err := m.locks.Release(id, p); err != nil {
			m.logger.Debug("unlock skipped", "session_id", id, "path", p, "reason", err)
		}
	}
	s.LockedFiles = m.locks.SessionPaths(id)
	snapshot := s.Clone()
	m.mu.Unlock()

	if err := m.store.SaveSession(ctx, snapshot); err != nil {
		return fmt.Errorf("persist session %s: %w", id, err)
	}
	return nil
}

// MarkFilesModified records paths the session has touched. The modified
// set only grows; marking is independent of lock state.
func (m *Manager) MarkFilesModified(ctx context.Context, id string, paths []string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if s.Status.IsTerminal() {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrAlreadyTerminal, id, s.Status)
	}

	s.ModifiedFiles = mergeSorted(s.ModifiedFiles, paths)
	snapshot := s.Clone()
	m.mu.Unlock()

	if err := m.store.SaveSession(ctx, snapshot); err != nil {
		return fmt.Errorf("persist session %s: %w", id, err)
	}
	return nil
}

// Get returns a copy of the session, or ErrNotFound.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.Clone(), nil
}

// Active returns copies of every session in Created, Running, or Paused
// status, ordered by creation time.
func (m *Manager) Active() []*Session {
	return m.list(func(s *Session) bool { return s.Status.IsActive() })
}

// List returns copies of sessions, optionally filtered by status. A nil
// filter returns everything. Results are ordered by creation time.
func (m *Manager) List(filter *Status) []*Session {
	return m.list(func(s *Session) bool {
		return filter == nil || s.Status == *filter
	})
}

func (m *Manager) list(keep func(*Session) bool) []*Session {
	m.mu.RLock()
	var out []*Session
	for _, s := range m.sessions {
		if keep(s) {
			out = append(out, s.Clone())
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// CleanupOldSessions deletes terminal sessions whose completion time is
// older than maxAge, releasing any residual locks first. Returns the number
// of sessions removed.
func (m *Manager) CleanupOldSessions(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)

	m.mu.Lock()
	var expired []string
	for id, s := range m.sessions {
		if s.Status.IsTerminal() && s.CompletedAt != nil && s.CompletedAt.Before(cutoff) {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	removed := 0
	for _, id := range expired {
		m.locks.ReleaseAll(id)
		if err := m.store.DeleteSession(ctx, id); err != nil {
			m.logger.Warn("cleanup failed to delete session", "session_id", id, "error", err)
			continue
		}
		m.publish(event.NewSessionRemovedEvent(id))
		removed++
	}
	if removed > 0 {
		m.logger.Info("old sessions cleaned up", "count", removed, "max_age", maxAge)
	}
	return removed, nil
}

// Locks exposes the lock table for read-only inspection.
func (m *Manager) Locks() *filelock.Table {
	return m.locks
}

func (m *Manager) publish(e event.Event) {
	if m.bus != nil {
		m.bus.Publish(e)
	}
}

// mergeSorted merges new paths into a sorted unique slice.
func mergeSorted(existing, add []string) []string {
	seen := make(map[string]bool, len(existing)+len(add))
	merged := make([]string, 0, len(existing)+len(add))
	for _, p := range existing {
		if !seen[p] {
			seen[p] = true
			merged = append(merged, p)
		}
	}
	for _, p := range add {
		if !seen[p] {
			seen[p] = true
			merged = append(merged, p)
		}
	}
	sort.Strings(merged)
	return merged
}
