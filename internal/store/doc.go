// Package store provides the durable state store implementations for
// session and worker records.
//
// The store interfaces themselves are declared by their consumers
// (session.Store, worker.Store); this package and its sqlite subpackage
// satisfy both. [Memory] is the embedded backend used in tests and
// single-process runs; internal/store/sqlite persists across restarts.
package store
