//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package ptyexpect

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func interactPipe(t *testing.T) (*os.File, *os.File) {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = r.Close()
		_ = w.Close()
	})
	return r, w
}

func TestSession_Interact(t *testing.T) {
	t.Run("until child exits", func(t *testing.T) {
		s := openShell(t, Config{})
		in, keys := interactPipe(t)
		_, err := keys.WriteString("circalc 1\nexit\n")
		require.NoError(t, err)

		var screen syncBuffer
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, s.Interact(ctx, in, &screen, DefaultEscape))

		assert.Contains(t, screen.String(), "area = 3.14 , circumference = 6.28")
		assert.Empty(t, s.Unconsumed())
		_, err = s.ExpectExact(time.Second, "anything")
		assert.ErrorIs(t, err, ErrEOF)
	})

	t.Run("escape returns control", func(t *testing.T) {
		s := openShell(t, Config{})
		in, keys := interactPipe(t)
		_, err := keys.WriteString("circalc 2\n\x1d")
		require.NoError(t, err)

		var screen syncBuffer
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, s.Interact(ctx, in, &screen, DefaultEscape))
		assert.NotContains(t, screen.String(), "\x1d")

		assert.False(t, s.Closed())
		if !assert.Eventually(t, func() bool {
			return strings.Contains(screen.String()+s.Unconsumed(), "area = 12.57")
		}, 5*time.Second, 10*time.Millisecond) {
			t.Logf("screen: %q", screen.String())
		}
		require.NoError(t, s.SendLine("print back"))
		_, err = s.ExpectExact(5*time.Second, "back\r\n")
		assert.NoError(t, err)
	})

	t.Run("context", func(t *testing.T) {
		s := openHelper(t, Config{}, "silent")
		in, _ := interactPipe(t)
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		err := s.Interact(ctx, in, &syncBuffer{}, DefaultEscape)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.True(t, s.State().Alive())
	})

	t.Run("closed session", func(t *testing.T) {
		s := openHelper(t, Config{}, "silent")
		require.NoError(t, s.Close(true))
		in, _ := interactPipe(t)
		assert.ErrorIs(t, s.Interact(context.Background(), in, &syncBuffer{}, DefaultEscape), ErrChannelClosed)
	})
}

func TestSession_InteractDuringExpect(t *testing.T) {
	s, _ := newFakeSession(t, Config{})
	go func() { _, _ = s.ExpectExact(time.Second, "never") }()
	require.Eventually(t, s.expecting.Load, time.Second, time.Millisecond)

	in, _ := interactPipe(t)
	err := s.Interact(context.Background(), in, &syncBuffer{}, DefaultEscape)
	var cv *ContractViolationError
	require.True(t, errors.As(err, &cv), "want *ContractViolationError, got %v", err)
	assert.Equal(t, "Interact", cv.Op)
}
