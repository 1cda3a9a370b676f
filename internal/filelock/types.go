package filelock

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotClaimed is returned when releasing a path that no session holds.
var ErrNotClaimed = errors.New("path is not claimed")

// ErrNotHolder is returned when a session releases a path held by another session.
var ErrNotHolder = errors.New("session does not hold this path")

// ConflictError reports a claim attempt on a path already held by another
// session. It carries enough detail for the caller to identify the blocker.
type ConflictError struct {
	Path   string // the contested path
	Holder string // session id currently holding it
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("file conflict: %s is held by session %s", e.Path, e.Holder)
}

// Claim records one session's exclusive hold on a path.
type Claim struct {
	SessionID string
	Path      string
	ClaimedAt time.Time
}
