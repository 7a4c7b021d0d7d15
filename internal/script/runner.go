package script

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/KennethanCeyer/ptyexpect"
)

// StepError reports the step at which a run stopped.
type StepError struct {
	Step    int // 1-based
	Action  string
	Message string
	// Patterns are the expected patterns of a failed expect step.
	Patterns []string
	// Output is the unconsumed output when the step failed.
	Output string
	Err    error
}

func (e *StepError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "step %d (%s)", e.Step, e.Action)
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

func (e *StepError) Unwrap() error { return e.Err }

// Runner executes definitions. Base supplies the Session settings a
// definition does not set itself.
type Runner struct {
	Base ptyexpect.Config
	Log  zerolog.Logger
	// Handoff, when set, is given the Session after every step has passed
	// and before it is closed. An error from it fails the run.
	Handoff func(ctx context.Context, s *ptyexpect.Session) error
}

// Result summarises a run that got as far as starting the program.
type Result struct {
	Steps   int
	Elapsed time.Duration
	State   ptyexpect.ProcessState
}

// Run spawns the definition's shell with pluginDir as its last argument and
// executes the steps in order, stopping at the first failure. The child is
// closed before Run returns; it is killed outright when ctx is done.
func (r *Runner) Run(ctx context.Context, def *Definition, pluginDir string) (res Result, err error) {
	start := time.Now()
	cfg := def.SessionConfig(pluginDir, r.Base)
	if cfg.Logger == nil {
		cfg.Logger = &r.Log
	}
	if def.Logfile != "" {
		f, err := os.Create(def.Logfile)
		if err != nil {
			return res, fmt.Errorf("open logfile: %w", err)
		}
		defer f.Close()
		cfg.Logfile = f
	}

	s, err := ptyexpect.Open(ctx, cfg)
	if err != nil {
		return res, err
	}
	log := r.Log.With().Int("pid", s.Pid()).Logger()
	log.Info().Str("command", cfg.Command).Strs("args", cfg.Args).Msg("started")
	defer func() {
		force := ctx.Err() != nil
		if cerr := s.Close(force); cerr != nil {
			log.Warn().Err(cerr).Msg("close failed")
		}
		res.State = s.State()
		res.Elapsed = time.Since(start)
		log.Info().Stringer("state", res.State).Dur("elapsed", res.Elapsed).Msg("finished")
	}()

	for i, step := range def.Steps {
		if err := ctx.Err(); err != nil {
			return res, &StepError{Step: i + 1, Action: step.Action(), Message: step.Message, Output: s.Unconsumed(), Err: err}
		}
		if err := r.runStep(ctx, s, def, step); err != nil {
			se := &StepError{Step: i + 1, Action: step.Action(), Message: step.Message, Output: s.Unconsumed(), Err: err}
			if step.Expect != nil {
				for _, p := range step.Expect {
					if pat, perr := p.Pattern(); perr == nil {
						se.Patterns = append(se.Patterns, pat.String())
					}
				}
			}
			log.Debug().Err(err).Int("step", i+1).Msg("step failed")
			return res, se
		}
		res.Steps++
	}
	if r.Handoff != nil {
		log.Debug().Msg("handing off")
		if err := r.Handoff(ctx, s); err != nil {
			return res, fmt.Errorf("handoff: %w", err)
		}
	}
	return res, nil
}

func (r *Runner) runStep(ctx context.Context, s *ptyexpect.Session, def *Definition, step Step) error {
	switch {
	case step.Send != nil:
		return s.Send(*step.Send)
	case step.SendLine != nil:
		return s.SendLine(*step.SendLine)
	case step.SendControl != "":
		return s.SendControl(step.SendControl[0])
	case step.SendEOF:
		return s.SendEOF()
	}

	patterns, err := compile(step.Expect)
	if err != nil {
		return err
	}
	timeout := step.Timeout
	if timeout <= 0 {
		timeout = def.Timeout
	}
	m, err := s.ExpectContext(ctx, timeout, patterns...)
	if err != nil {
		return err
	}
	if step.Want != nil && m.Index != *step.Want {
		return &WrongMatchError{Got: m.Index, Want: *step.Want, Pattern: m.Pattern.String()}
	}
	return nil
}

// WrongMatchError reports that an expect step matched a pattern other than
// the wanted one.
type WrongMatchError struct {
	Got, Want int
	Pattern   string
}

func (e *WrongMatchError) Error() string {
	return fmt.Sprintf("matched pattern %d (%s), want pattern %d", e.Got, e.Pattern, e.Want)
}

// IsFailure reports whether err is an expectation failure rather than a
// problem starting or driving the program.
func IsFailure(err error) bool {
	var wrong *WrongMatchError
	return errors.Is(err, ptyexpect.ErrTimeout) || errors.Is(err, ptyexpect.ErrEOF) || errors.As(err, &wrong)
}
