// Package process launches scripts as child processes and tracks them in a
// concurrency-safe registry keyed by an operator-facing handle.
package process

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// ErrNotFound is returned when a handle is not tracked by the registry.
var ErrNotFound = errors.New("process not tracked")

// ID is the operator-facing handle of a launched script. It is the OS PID
// observed at launch time.
type ID int

func (id ID) String() string { return strconv.Itoa(int(id)) }

// ParseID parses the textual form produced by ID.String.
func ParseID(s string) (ID, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid process id %q", s)
	}
	return ID(n), nil
}

// Handle is a reference to a spawned OS process. Only the Registry holds
// handles.
type Handle interface {
	PID() int
	// Terminate requests termination (SIGTERM) and does not wait for exit.
	Terminate() error
	// Alive reports whether the process is still running.
	Alive() bool
	// Exited is closed once the process has been reaped. Implementations
	// that cannot observe exit return nil.
	Exited() <-chan struct{}
	// ExitCode is valid after Exited is closed; -1 when killed by a signal.
	ExitCode() int
}

// Launcher starts processes.
type Launcher interface {
	Spawn(ctx context.Context, executable string, args []string) (Handle, error)
}

// SpawnError reports a script that could not be started.
type SpawnError struct {
	Script string
	Err    error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("start %s: %v", e.Script, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }
