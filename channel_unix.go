//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package ptyexpect

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

type unixChannel struct {
	cmd    *exec.Cmd
	master *os.File
	grace  time.Duration

	mu     sync.Mutex
	closed bool
	state  ProcessState

	exited    chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// Spawn starts opts.Prog with a new pseudo-terminal as its controlling
// terminal and returns the master side. Cancelling ctx kills the child.
func Spawn(ctx context.Context, opts SpawnOpts) (ch Channel, err error) {
	if opts.Prog == "" {
		return nil, &SpawnError{Prog: opts.Prog, Err: ErrEmptyProgram}
	}
	m, s, err := openPTY()
	if err != nil {
		return nil, &SpawnError{Prog: opts.Prog, Err: fmt.Errorf("open pty: %w", err)}
	}
	defer func() {
		if err != nil {
			_ = m.Close()
			_ = s.Close()
		}
	}()

	cols, rows := opts.size()
	ws := &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)}
	if err = pty.Setsize(s, ws); err != nil {
		return nil, &SpawnError{Prog: opts.Prog, Err: fmt.Errorf("set window size: %w", err)}
	}

	cmd := exec.CommandContext(ctx, opts.Prog, opts.Args...)
	cmd.Env = opts.Env
	if opts.Dir != "" {
		cmd.Dir = opts.Dir
	}
	cmd.Stdin, cmd.Stdout, cmd.Stderr = s, s, s
	// The child leads a new session with the slave (its fd 0) as
	// controlling terminal, so its process group can be signalled as a whole.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true, Setctty: true, Ctty: 0}

	if err = cmd.Start(); err != nil {
		return nil, &SpawnError{Prog: opts.Prog, Err: err}
	}
	_ = s.Close()

	grace := opts.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	c := &unixChannel{
		cmd:    cmd,
		master: m,
		grace:  grace,
		state:  ProcessState{Status: StatusRunning},
		exited: make(chan struct{}),
	}
	go c.reap()
	return c, nil
}

func (c *unixChannel) reap() {
	err := c.cmd.Wait()
	st := processStateOf(c.cmd.ProcessState, err)
	c.mu.Lock()
	c.state = st
	c.mu.Unlock()
	close(c.exited)
}

func processStateOf(ps *os.ProcessState, err error) ProcessState {
	if ps == nil {
		return ProcessState{Status: StatusUnknown}
	}
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return ProcessState{Status: StatusSignaled, ExitCode: -1, Signal: ws.Signal()}
	}
	return ProcessState{Status: StatusExited, ExitCode: ps.ExitCode()}
}

func (c *unixChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *unixChannel) Write(p []byte) (int, error) {
	if c.isClosed() {
		return 0, ErrChannelClosed
	}
	n, err := c.master.Write(p)
	if errors.Is(err, os.ErrClosed) {
		return n, ErrChannelClosed
	}
	return n, err
}

func (c *unixChannel) ReadAvailable(p []byte, timeout time.Duration) (int, error) {
	if c.isClosed() {
		return 0, ErrChannelClosed
	}
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	// Masters that are not pollable fall back to blocking reads; Close still
	// unblocks them once the child's side of the terminal goes away.
	if err := c.master.SetReadDeadline(deadline); err != nil && !errors.Is(err, os.ErrNoDeadline) {
		if errors.Is(err, os.ErrClosed) {
			return 0, ErrChannelClosed
		}
		return 0, err
	}
	n, err := c.master.Read(p)
	switch {
	case err == nil:
		return n, nil
	case errors.Is(err, os.ErrDeadlineExceeded):
		return n, ErrReadTimeout
	case errors.Is(err, os.ErrClosed):
		return n, ErrChannelClosed
	case errors.Is(err, io.EOF), errors.Is(err, syscall.EIO):
		// Linux reports a hung up terminal as EIO.
		return n, io.EOF
	}
	return n, err
}

func (c *unixChannel) Resize(cols, rows int) error {
	if c.isClosed() {
		return ErrChannelClosed
	}
	rc, err := c.master.SyscallConn()
	if err != nil {
		return err
	}
	var ioctlErr error
	if err := rc.Control(func(fd uintptr) {
		ioctlErr = setWinsize(int(fd), cols, rows)
	}); err != nil {
		return err
	}
	return ioctlErr
}

// Signal delivers sig to the child's process group.
func (c *unixChannel) Signal(sig os.Signal) error {
	select {
	case <-c.exited:
		return nil
	default:
	}
	s, ok := sig.(syscall.Signal)
	if !ok {
		return c.cmd.Process.Signal(sig)
	}
	pid := c.cmd.Process.Pid
	if err := unix.Kill(-pid, s); err != nil && !errors.Is(err, unix.ESRCH) {
		return c.cmd.Process.Signal(sig)
	}
	return nil
}

func (c *unixChannel) Pid() int { return c.cmd.Process.Pid }

func (c *unixChannel) State() ProcessState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Wait blocks until the child exits or ctx is done.
func (c *unixChannel) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.exited:
	}
	st := c.State()
	switch {
	case st.Status == StatusSignaled:
		return &ExitError{ExitCode: -1, Signal: st.Signal}
	case st.Status == StatusExited && st.ExitCode != 0:
		return &ExitError{ExitCode: st.ExitCode}
	}
	return nil
}

func (c *unixChannel) Close(force bool) error {
	c.closeOnce.Do(func() {
		c.closeErr = c.close(force)
	})
	return c.closeErr
}

func (c *unixChannel) close(force bool) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	if force {
		_ = c.Signal(unix.SIGKILL)
	}
	var errs []error
	if err := c.master.Close(); err != nil {
		errs = append(errs, err)
	}
	if !force && !c.waitExited(c.grace) {
		_ = c.Signal(unix.SIGTERM)
		if !c.waitExited(c.grace) {
			_ = c.Signal(unix.SIGKILL)
		}
	}
	<-c.exited

	if len(errs) != 0 {
		return fmt.Errorf("ptyexpect: close: %w", errors.Join(errs...))
	}
	return nil
}

func (c *unixChannel) waitExited(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-c.exited:
		return true
	case <-t.C:
		return false
	}
}

func setWinsize(fd int, cols, rows int) error {
	ws := &unix.Winsize{Col: uint16(cols), Row: uint16(rows)}
	return unix.IoctlSetWinsize(fd, unix.TIOCSWINSZ, ws)
}

// newMaster wraps a master descriptor in non-blocking mode so the runtime
// poller can apply read deadlines to it.
func newMaster(fd int) (*os.File, error) {
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, fmt.Errorf("set non-blocking: %w", err)
	}
	return os.NewFile(uintptr(fd), "pty-master"), nil
}
