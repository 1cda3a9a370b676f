package event

import "time"

// Event is implemented by every event published on the bus.
type Event interface {
	// EventType returns the "category.action" identifier for the event.
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// baseEvent carries the fields shared by all events. Concrete event types
// embed it to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{eventType: eventType, timestamp: time.Now()}
}

// -----------------------------------------------------------------------------
// Session events
// -----------------------------------------------------------------------------

// SessionCreatedEvent is emitted when a new session is created.
type SessionCreatedEvent struct {
	baseEvent
	SessionID  string
	Name       string
	TotalTasks int
}

// NewSessionCreatedEvent creates a SessionCreatedEvent.
func NewSessionCreatedEvent(sessionID, name string, totalTasks int) SessionCreatedEvent {
	return SessionCreatedEvent{
		baseEvent:  newBaseEvent("session.created"),
		SessionID:  sessionID,
		Name:       name,
		TotalTasks: totalTasks,
	}
}

// SessionStatusChangedEvent is emitted on every session lifecycle transition.
type SessionStatusChangedEvent struct {
	baseEvent
	SessionID string
	From      string
	To        string
}

// NewSessionStatusChangedEvent creates a SessionStatusChangedEvent.
func NewSessionStatusChangedEvent(sessionID, from, to string) SessionStatusChangedEvent {
	return SessionStatusChangedEvent{
		baseEvent: newBaseEvent("session.status_changed"),
		SessionID: sessionID,
		From:      from,
		To:        to,
	}
}

// SessionRemovedEvent is emitted when cleanup deletes a terminal session.
type SessionRemovedEvent struct {
	baseEvent
	SessionID string
}

// NewSessionRemovedEvent creates a SessionRemovedEvent.
func NewSessionRemovedEvent(sessionID string) SessionRemovedEvent {
	return SessionRemovedEvent{
		baseEvent: newBaseEvent("session.removed"),
		SessionID: sessionID,
	}
}

// -----------------------------------------------------------------------------
// File claim events
// -----------------------------------------------------------------------------

// FileClaimEvent is emitted when a session claims exclusive ownership of a path.
type FileClaimEvent struct {
	baseEvent
	SessionID string
	Path      string
}

// NewFileClaimEvent creates a FileClaimEvent.
func NewFileClaimEvent(sessionID, path string) FileClaimEvent {
	return FileClaimEvent{
		baseEvent: newBaseEvent("file.claimed"),
		SessionID: sessionID,
		Path:      path,
	}
}

// FileReleaseEvent is emitted when a session releases a claimed path.
type FileReleaseEvent struct {
	baseEvent
	SessionID string
	Path      string
}

// NewFileReleaseEvent creates a FileReleaseEvent.
func NewFileReleaseEvent(sessionID, path string) FileReleaseEvent {
	return FileReleaseEvent{
		baseEvent: newBaseEvent("file.released"),
		SessionID: sessionID,
		Path:      path,
	}
}

// -----------------------------------------------------------------------------
// Worker events
// -----------------------------------------------------------------------------

// WorkerRegisteredEvent is emitted when a worker joins the pool.
type WorkerRegisteredEvent struct {
	baseEvent
	WorkerID string
}

// NewWorkerRegisteredEvent creates a WorkerRegisteredEvent.
func NewWorkerRegisteredEvent(workerID string) WorkerRegisteredEvent {
	return WorkerRegisteredEvent{
		baseEvent: newBaseEvent("worker.registered"),
		WorkerID:  workerID,
	}
}

// WorkerUnregisteredEvent is emitted when a worker leaves the pool.
type WorkerUnregisteredEvent struct {
	baseEvent
	WorkerID string
}

// NewWorkerUnregisteredEvent creates a WorkerUnregisteredEvent.
func NewWorkerUnregisteredEvent(workerID string) WorkerUnregisteredEvent {
	return WorkerUnregisteredEvent{
		baseEvent: newBaseEvent("worker.unregistered"),
		WorkerID:  workerID,
	}
}

// WorkerOfflineEvent is emitted when health monitoring marks a worker offline.
type WorkerOfflineEvent struct {
	baseEvent
	WorkerID      string
	RequeuedTask  string // task id returned to the queue, empty if none
	LastHeartbeat time.Time
}

// NewWorkerOfflineEvent creates a WorkerOfflineEvent.
func NewWorkerOfflineEvent(workerID, requeuedTask string, lastHeartbeat time.Time) WorkerOfflineEvent {
	return WorkerOfflineEvent{
		baseEvent:     newBaseEvent("worker.offline"),
		WorkerID:      workerID,
		RequeuedTask:  requeuedTask,
		LastHeartbeat: lastHeartbeat,
	}
}

// -----------------------------------------------------------------------------
// Task events
// -----------------------------------------------------------------------------

// TaskAssignedEvent is emitted when a task is handed to an idle worker.
type TaskAssignedEvent struct {
	baseEvent
	TaskID    string
	SessionID string
	WorkerID  string
}

// NewTaskAssignedEvent creates a TaskAssignedEvent.
func NewTaskAssignedEvent(taskID, sessionID, workerID string) TaskAssignedEvent {
	return TaskAssignedEvent{
		baseEvent: newBaseEvent("task.assigned"),
		TaskID:    taskID,
		SessionID: sessionID,
		WorkerID:  workerID,
	}
}

// TaskQueuedEvent is emitted when no worker is idle and a task enters the queue.
type TaskQueuedEvent struct {
	baseEvent
	TaskID    string
	SessionID string
	Depth     int // queue depth after the append
}

// NewTaskQueuedEvent creates a TaskQueuedEvent.
func NewTaskQueuedEvent(taskID, sessionID string, depth int) TaskQueuedEvent {
	return TaskQueuedEvent{
		baseEvent: newBaseEvent("task.queued"),
		TaskID:    taskID,
		SessionID: sessionID,
		Depth:     depth,
	}
}

// TaskCompletedEvent is emitted when a worker reports a task result.
type TaskCompletedEvent struct {
	baseEvent
	TaskID    string
	SessionID string
	WorkerID  string
	Success   bool
}

// NewTaskCompletedEvent creates a TaskCompletedEvent.
func NewTaskCompletedEvent(taskID, sessionID, workerID string, success bool) TaskCompletedEvent {
	return TaskCompletedEvent{
		baseEvent: newBaseEvent("task.completed"),
		TaskID:    taskID,
		SessionID: sessionID,
		WorkerID:  workerID,
		Success:   success,
	}
}

// TaskRequeuedEvent is emitted when an in-flight task is returned to the
// queue because its worker went offline or was unregistered.
type TaskRequeuedEvent struct {
	baseEvent
	TaskID    string
	SessionID string
	WorkerID  string
}

// NewTaskRequeuedEvent creates a TaskRequeuedEvent.
func NewTaskRequeuedEvent(taskID, sessionID, workerID string) TaskRequeuedEvent {
	return TaskRequeuedEvent{
		baseEvent: newBaseEvent("task.requeued"),
		TaskID:    taskID,
		SessionID: sessionID,
		WorkerID:  workerID,
	}
}

// -----------------------------------------------------------------------------
// Queue and scaling events
// -----------------------------------------------------------------------------

// QueueDepthChangedEvent is emitted whenever the pending queue length or the
// pool's busy/idle split changes. The scaling monitor evaluates its policy
// against these snapshots.
type QueueDepthChangedEvent struct {
	baseEvent
	Queued  int
	Idle    int
	Busy    int
	Offline int
}

// NewQueueDepthChangedEvent creates a QueueDepthChangedEvent.
func NewQueueDepthChangedEvent(queued, idle, busy, offline int) QueueDepthChangedEvent {
	return QueueDepthChangedEvent{
		baseEvent: newBaseEvent("queue.depth_changed"),
		Queued:    queued,
		Idle:      idle,
		Busy:      busy,
		Offline:   offline,
	}
}

// ScalingDecisionEvent is emitted when the scaling policy recommends a
// worker count change.
type ScalingDecisionEvent struct {
	baseEvent
	Action         string
	Delta          int
	Reason         string
	CurrentWorkers int
}

// NewScalingDecisionEvent creates a ScalingDecisionEvent.
func NewScalingDecisionEvent(action string, delta int, reason string, current int) ScalingDecisionEvent {
	return ScalingDecisionEvent{
		baseEvent:      newBaseEvent("scaling.decision"),
		Action:         action,
		Delta:          delta,
		Reason:         reason,
		CurrentWorkers: current,
	}
}
