package ptyexpect

import (
	"context"
	"fmt"
	"os"
	"syscall"
	"time"
)

// Channel is a duplex byte stream bound to the master side of a
// pseudo-terminal whose slave side is the controlling terminal of a child
// process. A Channel owns that child exclusively.
type Channel interface {
	// Write sends raw bytes to the child's terminal.
	Write(p []byte) (int, error)
	// ReadAvailable reads whatever output arrives within timeout. It returns
	// ErrReadTimeout if nothing arrived, io.EOF once the child side of the
	// terminal is gone, and ErrChannelClosed after Close. A timeout <= 0
	// blocks until data, EOF or Close.
	ReadAvailable(p []byte, timeout time.Duration) (int, error)
	// Close releases the terminal and terminates and reaps the child. With
	// force the child is killed immediately, otherwise it is given a grace
	// period before escalating. Close is idempotent.
	Close(force bool) error
	Resize(cols, rows int) error
	Signal(sig os.Signal) error
	Pid() int
	State() ProcessState
	// Wait blocks until the child exits and returns an *ExitError for a
	// non-zero status or a signal.
	Wait(ctx context.Context) error
}

const DefaultGracePeriod = 500 * time.Millisecond

// Terminal size used when SpawnOpts leaves Cols or Rows unset.
const (
	DefaultCols = 80
	DefaultRows = 24
)

type SpawnOpts struct {
	Prog string
	Args []string
	// Env is passed to the child as is; nil inherits the current environment.
	Env  []string
	Dir  string
	// Cols and Rows size the terminal; zero means DefaultCols/DefaultRows.
	Cols int
	Rows int
	// GracePeriod bounds each wait step of a non-forced Close.
	GracePeriod time.Duration
}

func (o SpawnOpts) size() (cols, rows int) {
	cols, rows = o.Cols, o.Rows
	if cols <= 0 {
		cols = DefaultCols
	}
	if rows <= 0 {
		rows = DefaultRows
	}
	return cols, rows
}

type ProcessStatus int

const (
	StatusUnknown ProcessStatus = iota
	StatusRunning
	StatusExited
	StatusSignaled
)

func (s ProcessStatus) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusExited:
		return "exited"
	case StatusSignaled:
		return "signaled"
	default:
		return "unknown"
	}
}

// ProcessState is the liveness of a child process. ExitCode is meaningful
// for StatusExited and Signal for StatusSignaled.
type ProcessState struct {
	Status   ProcessStatus
	ExitCode int
	Signal   syscall.Signal
}

func (s ProcessState) String() string {
	switch s.Status {
	case StatusExited:
		return fmt.Sprintf("exited(%d)", s.ExitCode)
	case StatusSignaled:
		return fmt.Sprintf("signaled(%v)", s.Signal)
	default:
		return s.Status.String()
	}
}

// Alive reports whether the process is still running.
func (s ProcessState) Alive() bool { return s.Status == StatusRunning }
