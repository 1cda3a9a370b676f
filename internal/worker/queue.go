package worker

// pendingQueue is a FIFO of tasks waiting for a worker. Requeued tasks
// re-enter at the front so work that was already in progress keeps its
// place ahead of newly queued tasks. Not safe for concurrent use; callers
// hold the coordinator's lock.
type pendingQueue struct {
	tasks []QueuedTask
}

// pushBack appends a newly assigned task.
func (q *pendingQueue) pushBack(t QueuedTask) {
	q.tasks = append(q.tasks, t)
}

// pushFront reinserts an interrupted task at the head of the queue.
func (q *pendingQueue) pushFront(t QueuedTask) {
	q.tasks = append([]QueuedTask{t}, q.tasks...)
}

// popFront removes and returns the next task, or (zero, false) when empty.
func (q *pendingQueue) popFront() (QueuedTask, bool) {
	if len(q.tasks) == 0 {
		return QueuedTask{}, false
	}
	t := q.tasks[0]
	q.tasks = q.tasks[1:]
	return t, true
}

// depth returns the number of waiting tasks.
func (q *pendingQueue) depth() int {
	return len(q.tasks)
}

// snapshot returns a copy of the queue contents in order.
func (q *pendingQueue) snapshot() []QueuedTask {
	out := make([]QueuedTask, len(q.tasks))
	copy(out, q.tasks)
	return out
}
