// Package status builds consolidated point-in-time views over the session
// manager and worker coordinator. Read-only; the aggregator never mutates
// either component.
package status

import (
	"time"

	"parbuild/internal/session"
	"parbuild/internal/worker"
)

// SessionStatus is the per-session slice of a snapshot.
type SessionStatus struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Status          session.Status `json:"status"`
	Progress        float64        `json:"progress"`
	TotalTasks      int            `json:"total_tasks"`
	CompletedTasks  int            `json:"completed_tasks"`
	FailedTasks     int            `json:"failed_tasks"`
	InProgressTasks int            `json:"in_progress_tasks"`
	LockedFiles     int            `json:"locked_files"`
	ModifiedFiles   int            `json:"modified_files"`
	WorkerID        string         `json:"worker_id,omitempty"`
}

// WorkerStatus is the per-worker slice of a snapshot.
type WorkerStatus struct {
	ID             string        `json:"id"`
	Status         worker.Status `json:"status"`
	SessionID      string        `json:"session_id,omitempty"`
	CurrentTaskID  string        `json:"current_task_id,omitempty"`
	TasksCompleted int           `json:"tasks_completed"`
	TasksFailed    int           `json:"tasks_failed"`
}

// Snapshot is one consistent view across both components.
type Snapshot struct {
	TakenAt time.Time `json:"taken_at"`

	ActiveSessions int             `json:"active_sessions"`
	TotalSessions  int             `json:"total_sessions"`
	Sessions       []SessionStatus `json:"sessions"`

	Workers     []WorkerStatus          `json:"workers"`
	Load        worker.LoadDistribution `json:"load"`
	QueueDepth  int                     `json:"queue_depth"`
	LockedFiles int                     `json:"locked_files"`
}

// Aggregator reads across the session manager and worker coordinator.
type Aggregator struct {
	sessions *session.Manager
	workers  *worker.Coordinator
}

// NewAggregator returns an Aggregator over the two components.
func NewAggregator(sessions *session.Manager, workers *worker.Coordinator) *Aggregator {
	return &Aggregator{sessions: sessions, workers: workers}
}

// Snapshot returns the current state of every session and worker plus
// pool load. Each component is read once; the two reads are not atomic
// with respect to each other, which is fine for reporting.
func (a *Aggregator) Snapshot() *Snapshot {
	snap := &Snapshot{TakenAt: time.Now()}

	for _, s := range a.sessions.List(nil) {
		snap.TotalSessions++
		if s.Status.IsActive() {
			snap.ActiveSessions++
		}
		snap.Sessions = append(snap.Sessions, SessionStatus{
			ID:              s.ID,
			Name:            s.Name,
			Status:          s.Status,
			Progress:        s.Progress(),
			TotalTasks:      s.TotalTasks,
			CompletedTasks:  s.CompletedTasks,
			FailedTasks:     s.FailedTasks,
			InProgressTasks: s.InProgressTasks,
			LockedFiles:     len(s.LockedFiles),
			ModifiedFiles:   len(s.ModifiedFiles),
			WorkerID:        s.AssignedWorkerID,
		})
	}

	for _, w := range a.workers.List(nil) {
		snap.Workers = append(snap.Workers, WorkerStatus{
			ID:             w.ID,
			Status:         w.Status,
			SessionID:      w.SessionID,
			CurrentTaskID:  w.CurrentTaskID,
			TasksCompleted: w.TasksCompleted,
			TasksFailed:    w.TasksFailed,
		})
	}

	snap.Load = a.workers.LoadDistribution()
	snap.QueueDepth = snap.Load.Queued
	snap.LockedFiles = a.sessions.Locks().Len()
	return snap
}
