package queue

import (
	"errors"
	"fmt"
)

// ErrDuplicatePath rejects an enqueue whose path is already pending or
// active. Callers log and skip; the path becomes enqueueable again once the
// earlier entry reaches a terminal status.
var ErrDuplicatePath = errors.New("path already queued")

// PersistenceError reports a snapshot save or load failure. It is reported
// to the operator but never aborts shutdown or startup.
type PersistenceError struct {
	Op   string // "persist" or "restore"
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("queue %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
