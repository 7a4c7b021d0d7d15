//go:build windows

package ptyexpect

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
	"unicode/utf16"
	"unsafe"

	"golang.org/x/sys/windows"
)

const windowsReadChunk = 4096

type windowsChannel struct {
	con     *conPty
	pid     int
	process windows.Handle
	thread  windows.Handle
	job     windows.Handle
	grace   time.Duration

	// chunks carries output from pump to ReadAvailable; pipes cannot take
	// read deadlines.
	chunks  chan []byte
	readMu  sync.Mutex
	pending []byte

	mu     sync.Mutex
	closed bool
	killed bool
	state  ProcessState

	done      chan struct{}
	exited    chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func buildCommandLine(prog string, args []string) string {
	var b strings.Builder
	b.WriteString(windows.EscapeArg(prog))
	for _, a := range args {
		b.WriteByte(' ')
		b.WriteString(windows.EscapeArg(a))
	}
	return b.String()
}

func buildEnvBlock(env []string) []uint16 {
	if len(env) == 0 {
		return nil
	}
	clean := make([]string, 0, len(env))
	for _, s := range env {
		if !strings.ContainsRune(s, 0) {
			clean = append(clean, s)
		}
	}
	return utf16.Encode([]rune(strings.Join(clean, "\x00") + "\x00\x00"))
}

// Spawn starts opts.Prog attached to a new pseudo console. The child is put
// in a job object so that its descendants die with it. Cancelling ctx
// terminates the child.
func Spawn(ctx context.Context, opts SpawnOpts) (ch Channel, err error) {
	if opts.Prog == "" {
		return nil, &SpawnError{Prog: opts.Prog, Err: ErrEmptyProgram}
	}
	progPath, err := exec.LookPath(opts.Prog)
	if err != nil {
		return nil, &SpawnError{Prog: opts.Prog, Err: err}
	}

	con, err := newConPty(opts.size())
	if err != nil {
		return nil, &SpawnError{Prog: opts.Prog, Err: fmt.Errorf("open pseudo console: %w", err)}
	}
	defer func() {
		if err != nil {
			_ = con.close()
		}
	}()

	cmdline, err := windows.UTF16PtrFromString(buildCommandLine(progPath, opts.Args))
	if err != nil {
		return nil, &SpawnError{Prog: opts.Prog, Err: err}
	}
	var dir *uint16
	if opts.Dir != "" {
		if dir, err = windows.UTF16PtrFromString(opts.Dir); err != nil {
			return nil, &SpawnError{Prog: opts.Prog, Err: err}
		}
	}
	env := opts.Env
	if env == nil {
		env = os.Environ()
	}
	var envp *uint16
	if block := buildEnvBlock(env); len(block) > 0 {
		envp = &block[0]
	}

	job, err := windows.CreateJobObject(nil, nil)
	if err != nil {
		return nil, &SpawnError{Prog: opts.Prog, Err: fmt.Errorf("create job object: %w", err)}
	}
	limits := windows.JOBOBJECT_EXTENDED_LIMIT_INFORMATION{
		BasicLimitInformation: windows.JOBOBJECT_BASIC_LIMIT_INFORMATION{
			LimitFlags: windows.JOB_OBJECT_LIMIT_KILL_ON_JOB_CLOSE,
		},
	}
	if _, err = windows.SetInformationJobObject(job, windows.JobObjectExtendedLimitInformation,
		uintptr(unsafe.Pointer(&limits)), uint32(unsafe.Sizeof(limits))); err != nil {
		windows.CloseHandle(job)
		return nil, &SpawnError{Prog: opts.Prog, Err: fmt.Errorf("set job limits: %w", err)}
	}

	si := new(windows.StartupInfoEx)
	si.Cb = uint32(unsafe.Sizeof(*si))
	si.Flags = windows.STARTF_USESTDHANDLES
	si.ProcThreadAttributeList = con.attrList.List()
	pi := new(windows.ProcessInformation)
	flags := uint32(windows.CREATE_UNICODE_ENVIRONMENT | windows.EXTENDED_STARTUPINFO_PRESENT | windows.CREATE_NEW_PROCESS_GROUP)
	if err = windows.CreateProcess(nil, cmdline, nil, nil, false, flags, envp, dir, &si.StartupInfo, pi); err != nil {
		windows.CloseHandle(job)
		return nil, &SpawnError{Prog: opts.Prog, Err: err}
	}
	if err = windows.AssignProcessToJobObject(job, pi.Process); err != nil {
		_ = windows.TerminateProcess(pi.Process, 1)
		windows.CloseHandle(pi.Thread)
		windows.CloseHandle(pi.Process)
		windows.CloseHandle(job)
		return nil, &SpawnError{Prog: opts.Prog, Err: fmt.Errorf("assign job object: %w", err)}
	}

	grace := opts.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	c := &windowsChannel{
		con:     con,
		pid:     int(pi.ProcessId),
		process: pi.Process,
		thread:  pi.Thread,
		job:     job,
		grace:   grace,
		chunks:  make(chan []byte, 64),
		state:   ProcessState{Status: StatusRunning},
		done:    make(chan struct{}),
		exited:  make(chan struct{}),
	}
	go c.pump()
	go c.reap()
	go func() {
		select {
		case <-ctx.Done():
			c.terminate()
		case <-c.exited:
		}
	}()
	return c, nil
}

func (c *windowsChannel) pump() {
	defer close(c.chunks)
	for {
		b := make([]byte, windowsReadChunk)
		n, err := c.con.out.Read(b)
		if n > 0 {
			// Output is dropped after Close but the pipe is still drained,
			// since closing the pseudo console waits for that.
			select {
			case c.chunks <- b[:n]:
			case <-c.done:
			}
		}
		if err != nil {
			return
		}
	}
}

func (c *windowsChannel) reap() {
	_, _ = windows.WaitForSingleObject(c.process, windows.INFINITE)
	var code uint32
	st := ProcessState{Status: StatusUnknown}
	if windows.GetExitCodeProcess(c.process, &code) == nil {
		st = ProcessState{Status: StatusExited, ExitCode: int(code)}
	}
	c.mu.Lock()
	if c.killed {
		st = ProcessState{Status: StatusSignaled, ExitCode: -1, Signal: syscall.SIGKILL}
	}
	c.state = st
	c.mu.Unlock()
	close(c.exited)
	// Lets pump see EOF after the remaining output.
	c.con.hangup()
}

func (c *windowsChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *windowsChannel) Write(p []byte) (int, error) {
	if c.isClosed() {
		return 0, ErrChannelClosed
	}
	n, err := c.con.in.Write(p)
	if errors.Is(err, os.ErrClosed) {
		return n, ErrChannelClosed
	}
	return n, err
}

func (c *windowsChannel) ReadAvailable(p []byte, timeout time.Duration) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()
	if c.isClosed() {
		return 0, ErrChannelClosed
	}
	if len(c.pending) > 0 {
		n := copy(p, c.pending)
		c.pending = c.pending[n:]
		return n, nil
	}

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}
	select {
	case b, ok := <-c.chunks:
		if !ok {
			return 0, io.EOF
		}
		n := copy(p, b)
		c.pending = b[n:]
		return n, nil
	case <-c.done:
		return 0, ErrChannelClosed
	case <-timer:
		return 0, ErrReadTimeout
	}
}

func (c *windowsChannel) Resize(cols, rows int) error {
	if c.isClosed() {
		return ErrChannelClosed
	}
	return c.con.resize(cols, rows)
}

// Signal supports os.Kill only; Windows has no signals to deliver.
func (c *windowsChannel) Signal(sig os.Signal) error {
	if sig != os.Kill {
		return fmt.Errorf("ptyexpect: signal %v is not supported on windows", sig)
	}
	c.terminate()
	return nil
}

func (c *windowsChannel) terminate() {
	select {
	case <-c.exited:
		return
	default:
	}
	c.mu.Lock()
	c.killed = true
	c.mu.Unlock()
	_ = windows.TerminateProcess(c.process, 1)
}

func (c *windowsChannel) Pid() int { return c.pid }

func (c *windowsChannel) State() ProcessState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *windowsChannel) Wait(ctx context.Context) error {
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

func (c *windowsChannel) Close(force bool) error {
	c.closeOnce.Do(func() {
		c.closeErr = c.close(force)
	})
	return c.closeErr
}

func (c *windowsChannel) close(force bool) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	close(c.done)

	if force {
		c.terminate()
	} else {
		c.con.hangup()
		t := time.NewTimer(c.grace)
		select {
		case <-c.exited:
		case <-t.C:
			c.terminate()
		}
		t.Stop()
	}
	<-c.exited

	windows.CloseHandle(c.job)
	windows.CloseHandle(c.thread)
	windows.CloseHandle(c.process)
	if err := c.con.close(); err != nil {
		return fmt.Errorf("ptyexpect: close: %w", err)
	}
	return nil
}
