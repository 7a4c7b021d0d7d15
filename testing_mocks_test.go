package ptyexpect

import (
	"bytes"
	"context"
	"io"
	"os"
	"sync"
	"syscall"
	"time"
)

// fakeChannel is an in-memory Channel. Output queued with emit is returned
// by ReadAvailable; hangup simulates the child closing its terminal.
type fakeChannel struct {
	out  chan []byte
	done chan struct{}

	mu         sync.Mutex
	written    bytes.Buffer
	closed     bool
	closeCalls int
	forced     bool
	size       [2]int
	respond    func(in []byte) string
	closeErr   error
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		out:  make(chan []byte, 64),
		done: make(chan struct{}),
	}
}

func (f *fakeChannel) emit(s string) { f.out <- []byte(s) }

func (f *fakeChannel) hangup() { close(f.out) }

func (f *fakeChannel) Write(p []byte) (int, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return 0, ErrChannelClosed
	}
	f.written.Write(p)
	respond := f.respond
	f.mu.Unlock()
	if respond != nil {
		if reply := respond(p); reply != "" {
			f.emit(reply)
		}
	}
	return len(p), nil
}

func (f *fakeChannel) ReadAvailable(p []byte, timeout time.Duration) (int, error) {
	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}
	select {
	case <-f.done:
		return 0, ErrChannelClosed
	case b, ok := <-f.out:
		if !ok {
			return 0, io.EOF
		}
		return copy(p, b), nil
	case <-timer:
		return 0, ErrReadTimeout
	}
}

func (f *fakeChannel) Close(force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	if !f.closed {
		f.closed = true
		f.forced = force
		close(f.done)
	}
	return f.closeErr
}

func (f *fakeChannel) Resize(cols, rows int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.size = [2]int{cols, rows}
	return nil
}

func (f *fakeChannel) Signal(os.Signal) error { return nil }

func (f *fakeChannel) Pid() int { return 4242 }

func (f *fakeChannel) State() ProcessState {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case !f.closed:
		return ProcessState{Status: StatusRunning}
	case f.forced:
		return ProcessState{Status: StatusSignaled, ExitCode: -1, Signal: syscall.SIGKILL}
	default:
		return ProcessState{Status: StatusExited}
	}
}

func (f *fakeChannel) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.done:
		return nil
	}
}

func (f *fakeChannel) Written() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.written.String()
}

// syncBuffer is a bytes.Buffer safe for the reader goroutine to write while
// a test reads it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
