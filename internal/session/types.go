package session

import (
	"errors"
	"time"
)

// Sentinel errors returned by manager operations.
var (
	// ErrNotFound is returned when no session exists with the given id.
	ErrNotFound = errors.New("session not found")

	// ErrInvalidTransition is returned when a lifecycle call is not valid
	// from the session's current status.
	ErrInvalidTransition = errors.New("invalid session status transition")

	// ErrAlreadyTerminal is returned when mutating a session that has
	// reached Completed, Failed, or Cancelled.
	ErrAlreadyTerminal = errors.New("session is already terminal")

	// ErrInvalidProgress is returned when a progress update would make the
	// task counters inconsistent (negative, or summing past the total).
	ErrInvalidProgress = errors.New("progress update violates task counters")
)

// Status is the lifecycle state of a session.
type Status string

const (
	// StatusCreated means the session exists but has not started running.
	StatusCreated Status = "created"

	// StatusRunning means the session is actively executing tasks.
	StatusRunning Status = "running"

	// StatusPaused means execution is suspended and may be resumed.
	StatusPaused Status = "paused"

	// StatusCompleted means all work finished successfully. Terminal.
	StatusCompleted Status = "completed"

	// StatusFailed means the session ended with failures. Terminal.
	StatusFailed Status = "failed"

	// StatusCancelled means the session was cancelled by the driver. Terminal.
	StatusCancelled Status = "cancelled"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// IsTerminal reports whether the status permits no further mutation.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// IsActive reports whether the session counts toward active work.
func (s Status) IsActive() bool {
	return s == StatusCreated || s == StatusRunning || s == StatusPaused
}

// Session is a coordinated unit of work with sub-tasks, tracked for
// progress and file-locking purposes.
type Session struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	TotalTasks      int `json:"total_tasks"`
	CompletedTasks  int `json:"completed_tasks"`
	FailedTasks     int `json:"failed_tasks"`
	InProgressTasks int `json:"in_progress_tasks"`

	// LockedFiles is the set of paths this session exclusively holds.
	// Kept sorted. Mirrors the lock table; cleared when the session ends.
	LockedFiles []string `json:"locked_files,omitempty"`

	// ModifiedFiles accumulates every path the session has touched. It
	// never shrinks until the session record is deleted.
	ModifiedFiles []string `json:"modified_files,omitempty"`

	// AssignedWorkerID is an id-based back-reference to the worker driving
	// this session, if any. Relation only; the worker record is owned by
	// the worker coordinator.
	AssignedWorkerID string `json:"assigned_worker_id,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

// Progress returns the completion percentage, 0 when the session has no tasks.
func (s *Session) Progress() float64 {
	if s.TotalTasks == 0 {
		return 0
	}
	return float64(s.CompletedTasks) / float64(s.TotalTasks) * 100
}

// Clone returns a deep copy safe to hand outside the manager's lock.
func (s *Session) Clone() *Session {
	cp := *s
	if s.StartedAt != nil {
		t := *s.StartedAt
		cp.StartedAt = &t
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		cp.CompletedAt = &t
	}
	cp.LockedFiles = append([]string(nil), s.LockedFiles...)
	cp.ModifiedFiles = append([]string(nil), s.ModifiedFiles...)
	if s.Metadata != nil {
		cp.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// cloneMetadata copies a caller-supplied metadata map so later mutations
// by the caller cannot race with reads under the manager lock.
func cloneMetadata(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

// ProgressUpdate carries absolute counter values for UpdateProgress.
// Nil fields leave the corresponding counter unchanged.
type ProgressUpdate struct {
	Completed  *int
	Failed     *int
	InProgress *int
}
