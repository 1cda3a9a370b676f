package filelock

import (
	"sort"
	"sync"
	"time"

	"parbuild/internal/event"
)

// Table is the in-memory file lock table. It maps each claimed path to the
// session holding it, and keeps a per-session set of held paths so a whole
// session can be released in one call.
type Table struct {
	mu       sync.RWMutex
	holders  map[string]Claim           // path -> claim (reverse index)
	sessions map[string]map[string]bool // session id -> set of held paths
	bus      *event.Bus
}

// NewTable creates an empty lock table. The bus may be nil, in which case
// no events are published.
func NewTable(bus *event.Bus) *Table {
	return &Table{
		holders:  make(map[string]Claim),
		sessions: make(map[string]map[string]bool),
		bus:      bus,
	}
}

// Claim takes an exclusive hold on a single path for the session.
// Claiming a path the session already holds is a no-op. If another session
// holds the path, a *ConflictError is returned.
func (t *Table) Claim(sessionID, path string) error {
	t.mu.Lock()
	claimed, err := t.claimLocked(sessionID, path)
	t.mu.Unlock()

	if err != nil {
		return err
	}
	if claimed {
		t.publish(event.NewFileClaimEvent(sessionID, path))
	}
	return nil
}

// claimLocked claims one path under the write lock. Returns true if a new
// claim was recorded, false for the re-entrant no-op case.
func (t *Table) claimLocked(sessionID, path string) (bool, error) {
	if existing, ok := t.holders[path]; ok {
		if existing.SessionID == sessionID {
			return false, nil
		}
		return false, &ConflictError{Path: path, Holder: existing.SessionID}
	}

	t.holders[path] = Claim{SessionID: sessionID, Path: path, ClaimedAt: time.Now()}
	set := t.sessions[sessionID]
	if set == nil {
		set = make(map[string]bool)
		t.sessions[sessionID] = set
	}
	set[path] = true
	return true, nil
}

// ClaimAll atomically claims every path for the session. If any path is
// held by another session, nothing is claimed and the *ConflictError for
// the first conflicting path is returned. Paths the session already holds
// are left untouched either way.
func (t *Table) ClaimAll(sessionID string, paths []string) error {
	t.mu.Lock()

	var newPaths []string
	for _, p := range paths {
		claimed, err := t.claimLocked(sessionID, p)
		if err != nil {
			// Roll back claims made in this batch.
			for _, rb := range newPaths {
				t.releaseLocked(sessionID, rb)
			}
			t.mu.Unlock()
			return err
		}
		if claimed {
			newPaths = append(newPaths, p)
		}
	}
	t.mu.Unlock()

	for _, p := range newPaths {
		t.publish(event.NewFileClaimEvent(sessionID, p))
	}
	return nil
}

// Release drops the session's hold on a path. Returns ErrNotClaimed if no
// session holds the path, or ErrNotHolder if a different session does.
func (t *Table) Release(sessionID, path string) error {
	t.mu.Lock()
	existing, ok := t.holders[path]
	if !ok {
		t.mu.Unlock()
		return ErrNotClaimed
	}
	if existing.SessionID != sessionID {
		t.mu.Unlock()
		return ErrNotHolder
	}
	t.releaseLocked(sessionID, path)
	t.mu.Unlock()

	t.publish(event.NewFileReleaseEvent(sessionID, path))
	return nil
}

// releaseLocked removes one claim under the write lock. The caller must
// have verified ownership.
func (t *Table) releaseLocked(sessionID, path string) {
	delete(t.holders, path)
	if set := t.sessions[sessionID]; set != nil {
		delete(set, path)
		if len(set) == 0 {
			delete(t.sessions, sessionID)
		}
	}
}

// ReleaseAll drops every path the session holds and returns the released
// paths in sorted order. A session with no claims yields an empty result.
func (t *Table) ReleaseAll(sessionID string) []string {
	t.mu.Lock()
	set := t.sessions[sessionID]
	released := make([]string, 0, len(set))
	for p := range set {
		released = append(released, p)
	}
	sort.Strings(released)
	for _, p := range released {
		t.releaseLocked(sessionID, p)
	}
	t.mu.Unlock()

	for _, p := range released {
		t.publish(event.NewFileReleaseEvent(sessionID, p))
	}
	return released
}

// Holder returns the session currently holding the path, or ("", false)
// if the path is unclaimed.
func (t *Table) Holder(path string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	claim, ok := t.holders[path]
	if !ok {
		return "", false
	}
	return claim.SessionID, true
}

// SessionPaths returns all paths held by the session, sorted.
func (t *Table) SessionPaths(sessionID string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	set := t.sessions[sessionID]
	paths := make([]string, 0, len(set))
	for p := range set {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Len returns the total number of claimed paths across all sessions.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.holders)
}

func (t *Table) publish(e event.Event) {
	if t.bus != nil {
		t.bus.Publish(e)
	}
}
