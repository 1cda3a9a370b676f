// Package watch tracks filesystem modifications under session workspace
// roots and records touched paths against the owning session.
//
// A [Tracker] watches each registered workspace with fsnotify, debounces
// the event stream (editors fire several events per save), and reports the
// batched relative paths through a [Recorder], normally the session
// manager's MarkFilesModified.
package watch
