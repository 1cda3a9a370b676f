package worker

import (
	"errors"
	"time"
)

// Sentinel errors returned by coordinator operations.
var (
	// ErrNotFound is returned when no worker exists with the given id.
	ErrNotFound = errors.New("worker not found")

	// ErrStateMismatch is returned when a task completion does not match
	// the worker's current assignment. This is a logic error in the caller.
	ErrStateMismatch = errors.New("completion does not match current assignment")
)

// Status is the execution state of a worker.
type Status string

const (
	// StatusIdle means the worker is registered and ready for a task.
	StatusIdle Status = "idle"

	// StatusBusy means the worker is executing a task.
	StatusBusy Status = "busy"

	// StatusOffline means the worker missed its heartbeat window. A fresh
	// heartbeat revives it to idle.
	StatusOffline Status = "offline"

	// StatusError means the worker reported an unrecoverable fault.
	StatusError Status = "error"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// Worker is an execution slot that can run one task at a time.
type Worker struct {
	ID     string `json:"id"`
	Status Status `json:"status"`

	// SessionID and CurrentTaskID identify the in-flight task, set iff
	// the worker is busy. SessionID is an id-based relation; the session
	// record itself is owned by the session manager.
	SessionID     string `json:"session_id,omitempty"`
	CurrentTaskID string `json:"current_task_id,omitempty"`

	TasksCompleted int `json:"tasks_completed"`
	TasksFailed    int `json:"tasks_failed"`

	RegisteredAt  time.Time  `json:"registered_at"`
	LastHeartbeat *time.Time `json:"last_heartbeat,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

// Clone returns a deep copy safe to hand outside the coordinator's lock.
func (w *Worker) Clone() *Worker {
	cp := *w
	if w.LastHeartbeat != nil {
		t := *w.LastHeartbeat
		cp.LastHeartbeat = &t
	}
	if w.Metadata != nil {
		cp.Metadata = make(map[string]string, len(w.Metadata))
		for k, v := range w.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// cloneMetadata copies a caller-supplied metadata map so later mutations
// by the caller cannot race with reads under the coordinator lock.
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

// QueuedTask is an opaque unit of work awaiting a worker.
type QueuedTask struct {
	TaskID     string    `json:"task_id"`
	SessionID  string    `json:"session_id"`
	Payload    []byte    `json:"payload,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// LoadDistribution is a point-in-time view of pool load.
type LoadDistribution struct {
	Idle    int `json:"idle"`
	Busy    int `json:"busy"`
	Offline int `json:"offline"`
	Errored int `json:"errored"`
	Queued  int `json:"queued"`

	// Utilization is busy / (idle + busy), 0 when no workers are available.
	Utilization float64 `json:"utilization"`
}

// WorkerStats carries per-worker completion counters.
type WorkerStats struct {
	WorkerID       string `json:"worker_id"`
	Status         Status `json:"status"`
	TasksCompleted int    `json:"tasks_completed"`
	TasksFailed    int    `json:"tasks_failed"`
}

// Statistics summarizes pool throughput and backlog.
type Statistics struct {
	Workers    []WorkerStats `json:"workers"`
	QueueDepth int           `json:"queue_depth"`
}
