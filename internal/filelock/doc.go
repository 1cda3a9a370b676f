// Package filelock tracks exclusive file-path claims across build sessions.
//
// When sessions run in parallel, two of them must never hold the same file
// at the same time. The package maintains an in-memory [Table] with a
// reverse index (path -> holder session) for fast conflict detection and a
// per-session path set for bulk release on cleanup.
//
// # Atomicity
//
// [Table.ClaimAll] is the core operation: it evaluates every requested path
// and commits all-or-nothing inside one critical section. If any path is
// held by another session the whole claim fails with a [*ConflictError]
// naming the path and its holder, and no partial state is left behind.
//
// # Usage
//
//	table := filelock.NewTable(bus)
//
//	if err := table.ClaimAll("sess-1", []string{"src/a.go", "src/b.go"}); err != nil {
//	    var conflict *filelock.ConflictError
//	    if errors.As(err, &conflict) {
//	        // conflict.Path is held by conflict.Holder
//	    }
//	}
//
//	table.ReleaseAll("sess-1")
//
// # Thread safety
//
// All Table methods are safe for concurrent use via an internal mutex.
// Claim and release events are published to the event bus after the lock
// is dropped.
package filelock
