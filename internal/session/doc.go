// Package session implements the session manager: lifecycle transitions,
// progress accounting, and exclusive file-claim arbitration for build
// sessions.
//
// A [Session] is a coordinated unit of work made of many tasks. The
// [Manager] owns all session records and the file lock table; workers and
// callers never touch either directly. Every mutation is validated against
// the session's current status, applied under the manager's lock, and then
// written through to the durable store.
//
// Status transitions are monotonic except for the Running/Paused pair.
// Once a session reaches Completed, Failed, or Cancelled it is immutable;
// further mutation attempts fail with [ErrAlreadyTerminal]. Task results
// that arrive after termination are observed and logged but change nothing.
package session
