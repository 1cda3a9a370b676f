// Package worker implements the worker coordinator: pool membership, task
// assignment, heartbeat-based health monitoring, and load statistics.
//
// A [Worker] is an execution slot that runs one opaque task at a time. The
// [Coordinator] owns all worker records and the pending task queue. Task
// assignment is deliberately simple: the earliest-registered idle worker
// wins, and when none is idle the task joins a FIFO queue that is drained
// the moment a worker frees up. Most of the throughput benefit comes from
// never letting a worker sit idle while work is queued, not from placement
// heuristics.
//
// Tasks interrupted by a worker going offline or unregistering are returned
// to the front of the queue by default, preserving their
// already-in-progress position ahead of newly queued work. The
// [WithRequeueAtBack] option changes this to plain FIFO append.
//
// Cross-component effects (progress accounting on the owning session) go
// through the [SessionHook] interface; the coordinator never reaches into
// session state directly.
package worker
