package ptyexpect

import (
	"errors"
	"fmt"
	"strings"
	"syscall"
	"time"
)

var (
	ErrChannelClosed = errors.New("ptyexpect: channel closed")
	ErrReadTimeout   = errors.New("ptyexpect: read timeout")
	ErrTimeout       = errors.New("ptyexpect: timeout")
	ErrEOF           = errors.New("ptyexpect: end of output")
	ErrEmptyProgram  = errors.New("ptyexpect: empty program")
)

// SpawnError reports that the child program could not be started.
type SpawnError struct {
	Prog string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("ptyexpect: spawn %s: %v", e.Prog, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// TimeoutError is returned by Expect when no pattern matched before the
// deadline. It matches ErrTimeout with errors.Is.
type TimeoutError struct {
	Patterns []string
	Timeout  time.Duration
	// Output is the unconsumed output at the time of the failure.
	Output string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("ptyexpect: timed out after %v waiting for %s; unconsumed output: %q",
		e.Timeout, describePatterns(e.Patterns), e.Output)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// EOFError is returned by Expect when the child closed its terminal before
// any pattern matched. It matches ErrEOF with errors.Is.
type EOFError struct {
	Patterns []string
	Output   string
}

func (e *EOFError) Error() string {
	return fmt.Sprintf("ptyexpect: end of output while waiting for %s; unconsumed output: %q",
		describePatterns(e.Patterns), e.Output)
}

func (e *EOFError) Is(target error) bool { return target == ErrEOF }

// ContractViolationError signals misuse of the harness, such as moving the
// buffer cursor backwards or calling Expect concurrently on one Session.
type ContractViolationError struct {
	Op     string
	Detail string
}

func (e *ContractViolationError) Error() string {
	return fmt.Sprintf("ptyexpect: contract violation in %s: %s", e.Op, e.Detail)
}

type ExitError struct {
	ExitCode int
	Signal   syscall.Signal
}

func (e *ExitError) Error() string {
	if e.Signal != 0 {
		return fmt.Sprintf("process terminated by signal %v", e.Signal)
	}
	return fmt.Sprintf("process exited with status %d", e.ExitCode)
}

func describePatterns(patterns []string) string {
	quoted := make([]string, len(patterns))
	for i, p := range patterns {
		quoted[i] = fmt.Sprintf("[%d] %s", i, p)
	}
	return "{" + strings.Join(quoted, ", ") + "}"
}
