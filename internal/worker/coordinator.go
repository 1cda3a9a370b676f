package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"parbuild/internal/event"
	"parbuild/internal/logging"
)

// Store is the durable persistence surface the coordinator writes through
// to. Implementations live in internal/store. Only worker records are
// durable; the pending queue is in-memory and rebuilt by the driver after
// a restart.
type Store interface {
	// SaveWorker persists a worker record, overwriting any previous state.
	SaveWorker(ctx context.Context, w *Worker) error

	// DeleteWorker removes a worker record.
	DeleteWorker(ctx context.Context, id string) error

	// ListWorkers returns every persisted worker record.
	ListWorkers(ctx context.Context) ([]*Worker, error)
}

// SessionHook receives cross-component task accounting calls. The session
// manager implements this surface through an adapter; the coordinator never
// touches session state directly.
type SessionHook interface {
	// TaskStarted is called when a task is handed to a worker.
	TaskStarted(ctx context.Context, sessionID string) error

	// TaskFinished is called when a worker reports a task result.
	TaskFinished(ctx context.Context, sessionID string, success bool) error

	// TaskRequeued is called when an in-flight task returns to the queue.
	TaskRequeued(ctx context.Context, sessionID string) error
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithBus sets the event bus for worker, task, and queue-depth events.
func WithBus(bus *event.Bus) Option {
	return func(c *Coordinator) { c.bus = bus }
}

// WithLogger sets the structured logger. Defaults to a no-op logger.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// WithSessionHook wires session progress accounting.
func WithSessionHook(hook SessionHook) Option {
	return func(c *Coordinator) { c.hook = hook }
}

// WithRequeueAtBack appends interrupted tasks to the back of the queue
// instead of the default front insertion.
func WithRequeueAtBack() Option {
	return func(c *Coordinator) { c.requeueAtBack = true }
}

// Coordinator owns the worker pool and the pending task queue. All methods
// are safe for concurrent use; no method blocks waiting on a worker.
type Coordinator struct {
	mu      sync.RWMutex
	workers map[string]*Worker
	order   []string // worker ids in registration order
	queue   pendingQueue

	// inflight holds the full task assigned to each busy worker, keyed by
	// worker id, so a requeue returns the task with its payload intact.
	inflight map[string]QueuedTask

	store         Store
	bus           *event.Bus
	logger        *logging.Logger
	hook          SessionHook
	requeueAtBack bool
}

// NewCoordinator creates a Coordinator, reloading persisted workers from
// the store. Reloaded workers are marked offline until a fresh heartbeat
// proves them alive; any in-flight assignment recorded before the restart
// is discarded (the driver resubmits unfinished tasks).
func NewCoordinator(ctx context.Context, store Store, opts ...Option) (*Coordinator, error) {
	c := &Coordinator{
		workers:  make(map[string]*Worker),
		inflight: make(map[string]QueuedTask),
		store:    store,
		logger:   logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}

	persisted, err := store.ListWorkers(ctx)
	if err != nil {
		return nil, fmt.Errorf("load workers: %w", err)
	}
	for _, w := range persisted {
		w.Status = StatusOffline
		w.SessionID = ""
		w.CurrentTaskID = ""
		c.workers[w.ID] = w
		c.order = append(c.order, w.ID)
		if err := store.SaveWorker(ctx, w); err != nil {
			return nil, fmt.Errorf("persist reloaded worker %s: %w", w.ID, err)
		}
	}
	if len(persisted) > 0 {
		c.logger.Info("workers restored as offline", "count", len(persisted))
	}
	return c, nil
}

// Register adds a new idle worker to the pool and returns a copy of its
// record. If tasks are already queued, the first one is assigned to the
// new worker immediately.
func (c *Coordinator) Register(ctx context.Context, metadata map[string]string) (*Worker, error) {
	w := &Worker{
		ID:           uuid.NewString(),
		Status:       StatusIdle,
		RegisteredAt: time.Now(),
		Metadata:     cloneMetadata(metadata),
	}

	c.mu.Lock()
	c.workers[w.ID] = w
	c.order = append(c.order, w.ID)
	next, hasNext := c.drainLocked(w)
	snapshot := w.Clone()
	depth := c.depthEventLocked()
	c.mu.Unlock()

	if err := c.store.SaveWorker(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("persist worker %s: %w", w.ID, err)
	}
	c.publish(event.NewWorkerRegisteredEvent(w.ID))
	if hasNext {
		c.notifyStarted(ctx, next.SessionID)
		c.publish(event.NewTaskAssignedEvent(next.TaskID, next.SessionID, w.ID))
	}
	c.publish(depth)
	c.logger.Info("worker registered", "worker_id", w.ID)
	return snapshot, nil
}

// Unregister removes a worker from the pool. A busy worker's in-flight
// task is requeued first so it is not lost; busy workers are otherwise
// removed like any other.
func (c *Coordinator) Unregister(ctx context.Context, id string) error {
	c.mu.Lock()
	w, ok := c.workers[id]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	requeued, hadTask := c.requeueInFlightLocked(w)
	delete(c.workers, id)
	for i, wid := range c.order {
		if wid == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	var assigned []assignment
	if hadTask {
		assigned = c.drainQueueLocked()
	}
	depth := c.depthEventLocked()
	c.mu.Unlock()

	if hadTask {
		c.notifyRequeued(ctx, requeued.SessionID)
		c.publish(event.NewTaskRequeuedEvent(requeued.TaskID, requeued.SessionID, id))
	}
	for _, a := range assigned {
		c.notifyStarted(ctx, a.task.SessionID)
		if err := c.store.SaveWorker(ctx, a.worker); err != nil {
			return fmt.Errorf("persist worker %s: %w", a.worker.ID, err)
		}
		c.publish(event.NewTaskAssignedEvent(a.task.TaskID, a.task.SessionID, a.worker.ID))
	}
	if err := c.store.DeleteWorker(ctx, id); err != nil {
		return fmt.Errorf("delete worker %s: %w", id, err)
	}
	c.publish(event.NewWorkerUnregisteredEvent(id))
	c.publish(depth)
	c.logger.Info("worker unregistered", "worker_id", id, "requeued_task", requeued.TaskID)
	return nil
}

// AssignTask submits the task and returns the id of the worker it landed
// on. The task joins the back of the pending FIFO queue and the queue is
// drained onto idle workers, so earlier queued work is always handed out
// first. When the new task stays queued an empty id is returned;
// queueing is the normal backpressure signal, not an error.
func (c *Coordinator) AssignTask(ctx context.Context, taskID string, payload []byte, sessionID string) (string, error) {
	task := QueuedTask{
		TaskID:     taskID,
		SessionID:  sessionID,
		Payload:    payload,
		EnqueuedAt: time.Now(),
	}

	c.mu.Lock()
	c.queue.pushBack(task)
	assigned := c.drainQueueLocked()
	remaining := c.queue.depth()
	depth := c.depthEventLocked()
	c.mu.Unlock()

	workerID := ""
	for _, a := range assigned {
		c.notifyStarted(ctx, a.task.SessionID)
		if err := c.store.SaveWorker(ctx, a.worker); err != nil {
			return "", fmt.Errorf("persist worker %s: %w", a.worker.ID, err)
		}
		c.publish(event.NewTaskAssignedEvent(a.task.TaskID, a.task.SessionID, a.worker.ID))
		if a.task.TaskID == taskID {
			workerID = a.worker.ID
		}
	}
	if workerID == "" {
		c.publish(event.NewTaskQueuedEvent(taskID, sessionID, remaining))
		c.logger.Debug("task queued", "task_id", taskID, "session_id", sessionID)
	} else {
		c.logger.Debug("task assigned", "task_id", taskID, "session_id", sessionID, "worker_id", workerID)
	}
	c.publish(depth)
	return workerID, nil
}

// CompleteTask records a task result from a worker, returns the worker to
// idle, and immediately drains the next queued task onto it so the worker
// never sits idle while work is waiting. Fails with ErrStateMismatch when
// the worker is not currently assigned the given task.
func (c *Coordinator) CompleteTask(ctx context.Context, workerID, taskID string, success bool) error {
	c.mu.Lock()
	w, ok := c.workers[workerID]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, workerID)
	}
	if w.Status != StatusBusy || w.CurrentTaskID != taskID {
		c.mu.Unlock()
		return fmt.Errorf("%w: worker %s is %s with task %q, got completion for %q",
			ErrStateMismatch, workerID, w.Status, w.CurrentTaskID, taskID)
	}

	finishedSession := w.SessionID
	if success {
		w.TasksCompleted++
	} else {
		w.TasksFailed++
	}
	w.Status = StatusIdle
	w.SessionID = ""
	w.CurrentTaskID = ""
	delete(c.inflight, workerID)

	next, hasNext := c.drainLocked(w)
	snapshot := w.Clone()
	depth := c.depthEventLocked()
	c.mu.Unlock()

	c.notifyFinished(ctx, finishedSession, success)
	if hasNext {
		c.notifyStarted(ctx, next.SessionID)
	}

	if err := c.store.SaveWorker(ctx, snapshot); err != nil {
		return fmt.Errorf("persist worker %s: %w", workerID, err)
	}
	c.publish(event.NewTaskCompletedEvent(taskID, finishedSession, workerID, success))
	if hasNext {
		c.publish(event.NewTaskAssignedEvent(next.TaskID, next.SessionID, workerID))
	}
	c.publish(depth)
	c.logger.Debug("task completed", "task_id", taskID, "worker_id", workerID, "success", success)
	return nil
}

// Heartbeat records a liveness signal. An offline worker is revived to
// idle and immediately offered queued work.
func (c *Coordinator) Heartbeat(ctx context.Context, workerID string) error {
	c.mu.Lock()
	w, ok := c.workers[workerID]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, workerID)
	}

	now := time.Now()
	w.LastHeartbeat = &now
	revived := false
	var next QueuedTask
	hasNext := false
	if w.Status == StatusOffline {
		w.Status = StatusIdle
		revived = true
		next, hasNext = c.drainLocked(w)
	}
	snapshot := w.Clone()
	depth := c.depthEventLocked()
	c.mu.Unlock()

	if hasNext {
		c.notifyStarted(ctx, next.SessionID)
	}
	if err := c.store.SaveWorker(ctx, snapshot); err != nil {
		return fmt.Errorf("persist worker %s: %w", workerID, err)
	}
	if revived {
		c.publish(depth)
		c.logger.Info("offline worker revived by heartbeat", "worker_id", workerID)
	}
	if hasNext {
		c.publish(event.NewTaskAssignedEvent(next.TaskID, next.SessionID, workerID))
	}
	return nil
}

// CheckHealth transitions every worker whose heartbeat is older than the
// timeout to offline and requeues its in-flight task. Workers that never
// heartbeated get the same window measured from registration. Idempotent;
// intended to run on a fixed interval. Returns the ids taken offline.
func (c *Coordinator) CheckHealth(ctx context.Context, timeout time.Duration) []string {
	now := time.Now()

	type offlined struct {
		snapshot *Worker
		requeued QueuedTask
		hadTask  bool
		lastSeen time.Time
	}

	c.mu.Lock()
	var gone []offlined
	for _, id := range c.order {
		w := c.workers[id]
		if w.Status == StatusOffline {
			continue
		}
		lastSeen := w.RegisteredAt
		if w.LastHeartbeat != nil {
			lastSeen = *w.LastHeartbeat
		}
		if now.Sub(lastSeen) <= timeout {
			continue
		}

		requeued, hadTask := c.requeueInFlightLocked(w)
		w.Status = StatusOffline
		gone = append(gone, offlined{
			snapshot: w.Clone(),
			requeued: requeued,
			hadTask:  hadTask,
			lastSeen: lastSeen,
		})
	}
	// Requeued tasks go straight onto workers that are still healthy and
	// idle instead of waiting for the next completion.
	var assigned []assignment
	if len(gone) > 0 {
		assigned = c.drainQueueLocked()
	}
	depth := c.depthEventLocked()
	c.mu.Unlock()

	ids := make([]string, 0, len(gone))
	for _, g := range gone {
		ids = append(ids, g.snapshot.ID)
		if g.hadTask {
			c.notifyRequeued(ctx, g.requeued.SessionID)
			c.publish(event.NewTaskRequeuedEvent(g.requeued.TaskID, g.requeued.SessionID, g.snapshot.ID))
		}
		if err := c.store.SaveWorker(ctx, g.snapshot); err != nil {
			c.logger.Warn("failed to persist offline worker", "worker_id", g.snapshot.ID, "error", err)
		}
		c.publish(event.NewWorkerOfflineEvent(g.snapshot.ID, g.requeued.TaskID, g.lastSeen))
		c.logger.Warn("worker missed heartbeat window",
			"worker_id", g.snapshot.ID, "last_seen", g.lastSeen, "timeout", timeout)
	}
	for _, a := range assigned {
		c.notifyStarted(ctx, a.task.SessionID)
		if err := c.store.SaveWorker(ctx, a.worker); err != nil {
			c.logger.Warn("failed to persist worker", "worker_id", a.worker.ID, "error", err)
		}
		c.publish(event.NewTaskAssignedEvent(a.task.TaskID, a.task.SessionID, a.worker.ID))
	}
	if len(gone) > 0 {
		c.publish(depth)
	}
	return ids
}

// ScaleTo grows or shrinks the pool toward the target count. Growing
// registers fresh workers; shrinking unregisters idle workers only and
// stops early if nothing else can be removed, so busy workers are never
// force-removed. Returns the ids added and removed.
func (c *Coordinator) ScaleTo(ctx context.Context, target int) (added, removed []string, err error) {
	if target < 0 {
		target = 0
	}

	c.mu.RLock()
	current := len(c.workers)
	var idle []string
	for _, id := range c.order {
		if c.workers[id].Status == StatusIdle {
			idle = append(idle, id)
		}
	}
	c.mu.RUnlock()

	for current < target {
		w, regErr := c.Register(ctx, map[string]string{"origin": "scaling"})
		if regErr != nil {
			return added, removed, regErr
		}
		added = append(added, w.ID)
		current++
	}

	for _, id := range idle {
		if current <= target {
			break
		}
		// The worker may have picked up a task since the snapshot; skip
		// it rather than interrupt work.
		c.mu.RLock()
		w, ok := c.workers[id]
		stillIdle := ok && w.Status == StatusIdle
		c.mu.RUnlock()
		if !stillIdle {
			continue
		}
		if unregErr := c.Unregister(ctx, id); unregErr != nil {
			return added, removed, unregErr
		}
		removed = append(removed, id)
		current--
	}

	if len(added) > 0 || len(removed) > 0 {
		c.logger.Info("pool scaled", "target", target, "added", len(added), "removed", len(removed))
	}
	return added, removed, nil
}

// Get returns a copy of the worker record, or ErrNotFound.
func (c *Coordinator) Get(id string) (*Worker, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	w, ok := c.workers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return w.Clone(), nil
}

// List returns copies of workers in registration order, optionally
// filtered by status. A nil filter returns everything.
func (c *Coordinator) List(filter *Status) []*Worker {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []*Worker
	for _, id := range c.order {
		w := c.workers[id]
		if filter == nil || w.Status == *filter {
			out = append(out, w.Clone())
		}
	}
	return out
}

// LoadDistribution returns current pool load counts and utilization.
func (c *Coordinator) LoadDistribution() LoadDistribution {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadLocked()
}

func (c *Coordinator) loadLocked() LoadDistribution {
	var d LoadDistribution
	for _, w := range c.workers {
		switch w.Status {
		case StatusIdle:
			d.Idle++
		case StatusBusy:
			d.Busy++
		case StatusOffline:
			d.Offline++
		case StatusError:
			d.Errored++
		}
	}
	d.Queued = c.queue.depth()
	if d.Idle+d.Busy > 0 {
		d.Utilization = float64(d.Busy) / float64(d.Idle+d.Busy)
	}
	return d
}

// Statistics returns per-worker completion counters and the queue depth.
func (c *Coordinator) Statistics() Statistics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := Statistics{QueueDepth: c.queue.depth()}
	for _, id := range c.order {
		w := c.workers[id]
		stats.Workers = append(stats.Workers, WorkerStats{
			WorkerID:       w.ID,
			Status:         w.Status,
			TasksCompleted: w.TasksCompleted,
			TasksFailed:    w.TasksFailed,
		})
	}
	return stats
}

// PendingTasks returns a copy of the queue contents in order.
func (c *Coordinator) PendingTasks() []QueuedTask {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.queue.snapshot()
}

// firstIdleLocked returns the earliest-registered idle worker, or nil.
func (c *Coordinator) firstIdleLocked() *Worker {
	for _, id := range c.order {
		if w := c.workers[id]; w.Status == StatusIdle {
			return w
		}
	}
	return nil
}

// assignLocked marks the worker busy with the task and records the
// assignment for requeue.
func (c *Coordinator) assignLocked(w *Worker, task QueuedTask) {
	w.Status = StatusBusy
	w.SessionID = task.SessionID
	w.CurrentTaskID = task.TaskID
	c.inflight[w.ID] = task
}

// assignment pairs a worker snapshot with the task drained onto it, for
// persistence and events after the lock is released.
type assignment struct {
	worker *Worker
	task   QueuedTask
}

// drainQueueLocked hands queued tasks to idle workers in registration
// order until one side runs out.
func (c *Coordinator) drainQueueLocked() []assignment {
	var out []assignment
	for {
		w := c.firstIdleLocked()
		if w == nil {
			return out
		}
		task, ok := c.queue.popFront()
		if !ok {
			return out
		}
		c.assignLocked(w, task)
		out = append(out, assignment{worker: w.Clone(), task: task})
	}
}

// drainLocked pops the next queued task onto the idle worker, if any.
func (c *Coordinator) drainLocked(w *Worker) (QueuedTask, bool) {
	if w.Status != StatusIdle {
		return QueuedTask{}, false
	}
	task, ok := c.queue.popFront()
	if !ok {
		return QueuedTask{}, false
	}
	c.assignLocked(w, task)
	return task, true
}

// requeueInFlightLocked returns a busy worker's current task, payload
// included, to the queue and clears the assignment. Front insertion by
// default so the interrupted task keeps its place.
func (c *Coordinator) requeueInFlightLocked(w *Worker) (QueuedTask, bool) {
	if w.Status != StatusBusy {
		return QueuedTask{}, false
	}
	task := c.inflight[w.ID]
	task.EnqueuedAt = time.Now()
	delete(c.inflight, w.ID)
	if c.requeueAtBack {
		c.queue.pushBack(task)
	} else {
		c.queue.pushFront(task)
	}
	w.Status = StatusIdle
	w.SessionID = ""
	w.CurrentTaskID = ""
	return task, true
}

func (c *Coordinator) depthEventLocked() event.QueueDepthChangedEvent {
	d := c.loadLocked()
	return event.NewQueueDepthChangedEvent(d.Queued, d.Idle, d.Busy, d.Offline)
}

func (c *Coordinator) notifyStarted(ctx context.Context, sessionID string) {
	if c.hook == nil {
		return
	}
	if err := c.hook.TaskStarted(ctx, sessionID); err != nil {
		c.logger.Warn("session hook TaskStarted failed", "session_id", sessionID, "error", err)
	}
}

func (c *Coordinator) notifyFinished(ctx context.Context, sessionID string, success bool) {
	if c.hook == nil {
		return
	}
	if err := c.hook.TaskFinished(ctx, sessionID, success); err != nil {
		c.logger.Warn("session hook TaskFinished failed", "session_id", sessionID, "error", err)
	}
}

func (c *Coordinator) notifyRequeued(ctx context.Context, sessionID string) {
	if c.hook == nil {
		return
	}
	if err := c.hook.TaskRequeued(ctx, sessionID); err != nil {
		c.logger.Warn("session hook TaskRequeued failed", "session_id", sessionID, "error", err)
	}
}

func (c *Coordinator) publish(e event.Event) {
	if c.bus != nil {
		c.bus.Publish(e)
	}
}
