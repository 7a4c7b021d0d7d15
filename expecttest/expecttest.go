// Package expecttest adapts ptyexpect sessions to Go tests: sessions are
// closed by t.Cleanup, and failed expectations stop the test with the
// unconsumed output in the failure message.
package expecttest

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/KennethanCeyer/ptyexpect"
)

// Open starts cfg.Command on a pseudo-terminal and registers a forced Close
// with t.Cleanup, so the child is reaped however the test ends. Without a
// Logger in cfg, debug logs go to the test log.
func Open(t testing.TB, cfg ptyexpect.Config) *ptyexpect.Session {
	t.Helper()
	if cfg.Logger == nil {
		logger := zerolog.New(zerolog.NewConsoleWriter(zerolog.ConsoleTestWriter(t))).
			Level(zerolog.DebugLevel).
			With().Timestamp().Logger()
		cfg.Logger = &logger
	}
	s, err := ptyexpect.Open(context.Background(), cfg)
	require.NoError(t, err, "open %s", cfg.Command)
	t.Cleanup(func() {
		if err := s.Close(true); err != nil {
			t.Logf("close %s: %v", cfg.Command, err)
		}
	})
	return s
}

// Expect fails the test unless one of patterns matches within timeout.
func Expect(t testing.TB, s *ptyexpect.Session, timeout time.Duration, patterns ...ptyexpect.Pattern) *ptyexpect.MatchResult {
	t.Helper()
	res, err := s.Expect(timeout, patterns...)
	require.NoError(t, err)
	return res
}

func ExpectExact(t testing.TB, s *ptyexpect.Session, timeout time.Duration, literals ...string) *ptyexpect.MatchResult {
	t.Helper()
	return Expect(t, s, timeout, ptyexpect.ExactAll(literals...)...)
}

// ExpectIndex fails the test unless the pattern at index want is the one
// that matches.
func ExpectIndex(t testing.TB, s *ptyexpect.Session, want int, timeout time.Duration, patterns ...ptyexpect.Pattern) *ptyexpect.MatchResult {
	t.Helper()
	require.Less(t, want, len(patterns), "want index out of range")
	res := Expect(t, s, timeout, patterns...)
	require.Equalf(t, want, res.Index, "matched %s instead of %s; before: %q",
		res.Pattern, patterns[want], res.Before)
	return res
}

func SendLine(t testing.TB, s *ptyexpect.Session, line string) {
	t.Helper()
	require.NoError(t, s.SendLine(line))
}
