package process

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"sync"
	"syscall"
)

// ExecLauncher spawns real OS processes with os/exec. Children inherit no
// stdio and are not bound to the request context: they outlive the update
// that started them.
type ExecLauncher struct {
	// Dir is the working directory for children. Empty inherits ours.
	Dir string
}

func (l ExecLauncher) Spawn(ctx context.Context, executable string, args []string) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cmd := exec.Command(executable, args...)
	cmd.Dir = l.Dir
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	h := &execHandle{cmd: cmd, done: make(chan struct{}), exitCode: -1}
	go h.reap()
	return h, nil
}

type execHandle struct {
	cmd  *exec.Cmd
	done chan struct{}

	mu       sync.Mutex
	exitCode int
}

// reap waits for the child so it does not linger as a zombie.
func (h *execHandle) reap() {
	_ = h.cmd.Wait()
	h.mu.Lock()
	if h.cmd.ProcessState != nil {
		h.exitCode = h.cmd.ProcessState.ExitCode()
	}
	h.mu.Unlock()
	close(h.done)
}

func (h *execHandle) PID() int { return h.cmd.Process.Pid }

func (h *execHandle) Terminate() error {
	select {
	case <-h.done:
		return os.ErrProcessDone
	default:
	}
	return h.cmd.Process.Signal(syscall.SIGTERM)
}

func (h *execHandle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
	}
	// Signal 0 checks existence without delivering anything.
	err := h.cmd.Process.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

func (h *execHandle) Exited() <-chan struct{} { return h.done }

func (h *execHandle) ExitCode() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitCode
}
