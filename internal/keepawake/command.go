package keepawake

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"sync"

	apperrors "github.com/spreads/client/internal/errors"
)

// Command acquires an inhibitor by running the platform's inhibit tool.
// The child watches this process's PID, so it exits with us even if we
// crash before Release.
type Command struct {
	GOOS string
	PID  int
	Why  string

	lookPath func(string) (string, error)
}

// NewCommand returns the adapter for the running OS.
func NewCommand(why string) *Command {
	return &Command{
		GOOS:     runtime.GOOS,
		PID:      os.Getpid(),
		Why:      why,
		lookPath: exec.LookPath,
	}
}

// argv returns the inhibitor command line for c.GOOS.
func (c *Command) argv() ([]string, error) {
	pid := strconv.Itoa(c.PID)
	switch c.GOOS {
	case "darwin":
		// -i: idle sleep only; -w: exit with pid.
		return []string{"caffeinate", "-i", "-w", pid}, nil
	case "linux":
		return []string{
			"systemd-inhibit",
			"--what=idle:sleep",
			"--who=spreadsctl",
			"--why=" + c.Why,
			"--mode=block",
			"tail", "--pid=" + pid, "-f", "/dev/null",
		}, nil
	default:
		return nil, apperrors.New(apperrors.CodeKeepAwakeUnsupported,
			fmt.Sprintf("keep-awake is not supported on %s", c.GOOS))
	}
}

// Acquire starts the inhibitor process.
func (c *Command) Acquire(ctx context.Context) (Handle, error) {
	argv, err := c.argv()
	if err != nil {
		return nil, err
	}
	lookPath := c.lookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	if _, err := lookPath(argv[0]); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeKeepAwakeUnsupported, argv[0]+" not found", err)
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	if err := cmd.Start(); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeKeepAwakeAcquireFailed, "start "+argv[0], err)
	}

	h := &processHandle{cmd: cmd, done: make(chan struct{})}
	go func() {
		err := cmd.Wait()
		h.mu.Lock()
		h.err = err
		h.mu.Unlock()
		close(h.done)
	}()
	return h, nil
}

type processHandle struct {
	cmd  *exec.Cmd
	done chan struct{}

	mu  sync.Mutex
	err error
}

func (h *processHandle) Done() <-chan struct{} { return h.done }

func (h *processHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Release kills the inhibitor and waits for it to exit.
func (h *processHandle) Release(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	default:
	}
	if err := h.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
