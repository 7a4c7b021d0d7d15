package ptyexpect

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultTimeout        = 30 * time.Second
	DefaultLineTerminator = "\n"

	readChunkSize          = 4096
	readTimeout            = 100 * time.Millisecond
	readerLoopCloseTimeout = time.Second
)

var errReaderLoopTimeout = errors.New("ptyexpect: timeout waiting for reader loop to exit")

// Config describes the program a Session drives and how it is driven.
type Config struct {
	Command string
	Args    []string
	// Env is the complete child environment; nil inherits the current one.
	Env  []string
	Dir  string
	Cols int
	Rows int

	// Timeout is used by Expect calls given a non-positive timeout.
	Timeout time.Duration
	// PollInterval bounds how long Expect sleeps between scans.
	PollInterval time.Duration
	// GracePeriod bounds each escalation step of a non-forced Close.
	GracePeriod time.Duration
	// LineTerminator is appended by SendLine.
	LineTerminator string

	// Logfile receives a verbatim copy of every byte read from the child.
	Logfile io.Writer
	Logger  *zerolog.Logger
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = DefaultGracePeriod
	}
	if c.LineTerminator == "" {
		c.LineTerminator = DefaultLineTerminator
	}
	return c
}

type sessionState int32

const (
	sessionCreated sessionState = iota
	sessionOpen
	sessionClosed
)

// Session drives one child process over one pseudo-terminal. Send methods
// may be called from any goroutine; Expect must not be called concurrently
// on the same Session.
type Session struct {
	cfg    Config
	ch     Channel
	buf    *OutputBuffer
	engine *Engine
	log    zerolog.Logger

	state      atomic.Int32
	expecting  atomic.Bool
	writeMu    sync.Mutex
	readerDone chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// Open spawns cfg.Command on a new pseudo-terminal and starts draining its
// output. The Session is registered for CloseAll until it is closed.
func Open(ctx context.Context, cfg Config) (*Session, error) {
	cfg = cfg.withDefaults()
	ch, err := Spawn(ctx, SpawnOpts{
		Prog:        cfg.Command,
		Args:        cfg.Args,
		Env:         cfg.Env,
		Dir:         cfg.Dir,
		Cols:        cfg.Cols,
		Rows:        cfg.Rows,
		GracePeriod: cfg.GracePeriod,
	})
	if err != nil {
		return nil, err
	}
	s := newSession(ch, cfg)
	s.log.Debug().Str("command", cfg.Command).Strs("args", cfg.Args).Int("pid", ch.Pid()).Msg("session opened")
	return s, nil
}

// newSession wraps an already spawned channel.
func newSession(ch Channel, cfg Config) *Session {
	cfg = cfg.withDefaults()
	s := &Session{
		cfg:        cfg,
		ch:         ch,
		buf:        NewOutputBuffer(),
		readerDone: make(chan struct{}),
	}
	if cfg.Logger != nil {
		s.log = cfg.Logger.With().Int("pid", ch.Pid()).Logger()
	} else {
		s.log = zerolog.Nop()
	}
	s.engine = NewEngine(s.buf, cfg.PollInterval)
	s.state.Store(int32(sessionOpen))
	sessions.add(s)
	go s.readLoop()
	return s
}

func (s *Session) readLoop() {
	defer close(s.readerDone)
	p := make([]byte, readChunkSize)
	for {
		n, err := s.ch.ReadAvailable(p, readTimeout)
		if n > 0 {
			s.buf.Append(p[:n])
			if s.cfg.Logfile != nil {
				if _, werr := s.cfg.Logfile.Write(p[:n]); werr != nil {
					s.log.Warn().Err(werr).Msg("logfile write failed")
				}
			}
		}
		switch {
		case err == nil, errors.Is(err, ErrReadTimeout):
			continue
		case errors.Is(err, io.EOF):
			s.log.Debug().Msg("child closed its terminal")
		case errors.Is(err, ErrChannelClosed):
		default:
			s.log.Debug().Err(err).Msg("read failed")
		}
		s.buf.MarkEOF()
		return
	}
}

func (s *Session) checkOpen() error {
	if sessionState(s.state.Load()) != sessionOpen {
		return ErrChannelClosed
	}
	return nil
}

// Send writes text to the child without a line terminator.
func (s *Session) Send(text string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.ch.Write([]byte(text)); err != nil {
		return fmt.Errorf("ptyexpect: send: %w", err)
	}
	s.log.Debug().Str("text", text).Msg("sent")
	return nil
}

// SendLine writes text followed by the configured line terminator.
func (s *Session) SendLine(text string) error {
	return s.Send(text + s.cfg.LineTerminator)
}

// SendControl sends the control character for key, e.g. 'c' for ^C.
func (s *Session) SendControl(key byte) error {
	switch {
	case key >= 'a' && key <= 'z':
		key -= 'a' - 'A'
	case key == '?':
		return s.Send("\x7f")
	}
	if key < '@' || key > '_' {
		return fmt.Errorf("ptyexpect: no control character for %q", key)
	}
	return s.Send(string([]byte{key - '@'}))
}

// SendEOF sends the terminal's end-of-file character (^D).
func (s *Session) SendEOF() error {
	return s.SendControl('d')
}

// Expect waits up to timeout for one of patterns to match output not
// consumed by a previous Expect. The first pattern in list order that
// matches wins. A non-positive timeout uses Config.Timeout.
func (s *Session) Expect(timeout time.Duration, patterns ...Pattern) (*MatchResult, error) {
	return s.ExpectContext(context.Background(), timeout, patterns...)
}

// ExpectExact is Expect with literal patterns.
func (s *Session) ExpectExact(timeout time.Duration, literals ...string) (*MatchResult, error) {
	return s.Expect(timeout, ExactAll(literals...)...)
}

// ExpectContext is Expect bounded additionally by ctx. A timeout only ends
// this call; the child keeps running.
func (s *Session) ExpectContext(ctx context.Context, timeout time.Duration, patterns ...Pattern) (*MatchResult, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if !s.expecting.CompareAndSwap(false, true) {
		return nil, &ContractViolationError{Op: "Expect", Detail: "concurrent Expect calls on one Session"}
	}
	defer s.expecting.Store(false)

	if timeout <= 0 {
		timeout = s.cfg.Timeout
	}
	res, err := s.engine.Expect(ctx, time.Now().Add(timeout), patterns)
	if err != nil {
		s.log.Debug().Err(err).Msg("expect failed")
		return nil, err
	}
	s.log.Debug().Int("index", res.Index).Str("pattern", res.Pattern.String()).Int("through", res.ConsumedThrough).Msg("matched")
	return res, nil
}

// Output returns everything the child has written so far.
func (s *Session) Output() string { return s.buf.String() }

// Unconsumed returns the output no Expect has consumed yet.
func (s *Session) Unconsumed() string { return string(s.buf.UnconsumedTail()) }

func (s *Session) Pid() int { return s.ch.Pid() }

func (s *Session) State() ProcessState { return s.ch.State() }

// Wait blocks until the child exits on its own or ctx is done.
func (s *Session) Wait(ctx context.Context) error { return s.ch.Wait(ctx) }

func (s *Session) Resize(cols, rows int) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.ch.Resize(cols, rows)
}

func (s *Session) Closed() bool { return sessionState(s.state.Load()) == sessionClosed }

// Close terminates and reaps the child and stops the reader. With force the
// child is killed at once. Only the first call has an effect; later calls
// return its result.
func (s *Session) Close(force bool) error {
	s.closeOnce.Do(func() {
		s.state.Store(int32(sessionClosed))
		var errs []error
		if err := s.ch.Close(force); err != nil {
			errs = append(errs, err)
		}
		select {
		case <-s.readerDone:
		case <-time.After(readerLoopCloseTimeout):
			errs = append(errs, errReaderLoopTimeout)
		}
		sessions.remove(s)
		s.log.Debug().Bool("force", force).Str("state", s.ch.State().String()).Msg("session closed")
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}
