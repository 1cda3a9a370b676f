// Package event defines the event types and pub-sub bus used to decouple
// the coordinator's components.
//
// The Session Manager, Worker Coordinator, and File Lock Table publish
// events describing state changes; the scaling monitor, loggers, and other
// status consumers subscribe without the publishers knowing about them.
//
// Events follow a "category.action" naming convention, e.g.
// "session.status_changed", "task.queued", "queue.depth_changed".
//
// The bus is synchronous: Publish calls every matching handler inline.
// Handlers should return quickly and must not call back into a publisher
// while it holds its own lock; publishers on their side publish only after
// releasing internal locks.
package event
