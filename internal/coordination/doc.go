// Package coordination wires the session manager, worker coordinator,
// scaling monitor, and workspace watcher into a single [Hub] with one
// lifecycle.
//
// The hub owns the cross-component plumbing: worker task events feed
// session progress accounting, queue depth events drive the scaling
// policy, and filesystem writes under registered workspaces land in the
// owning session's modified set. Callers construct a Hub from a store and
// an event bus, Start it, and use the component accessors.
package coordination
