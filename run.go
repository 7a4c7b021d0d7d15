package ptyexpect

import (
	"context"
	"time"
)

// Run runs cfg.Command on a pseudo-terminal until it exits and returns
// everything it printed. A child that exits non-zero yields an *ExitError
// together with its output. Config.Timeout does not apply; only ctx bounds
// the run, and when ctx is done the child is killed and ctx.Err() returned
// with the output collected so far.
func Run(ctx context.Context, cfg Config) (string, error) {
	s, err := Open(ctx, cfg)
	if err != nil {
		return "", err
	}
	defer s.Close(true)

	if _, err := s.engine.Expect(ctx, time.Time{}, []Pattern{EOF}); err != nil {
		return s.Output(), err
	}
	if err := s.Wait(ctx); err != nil {
		return s.Output(), err
	}
	return s.Output(), nil
}
