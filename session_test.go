package ptyexpect

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakeSession(t *testing.T, cfg Config) (*Session, *fakeChannel) {
	t.Helper()
	ch := newFakeChannel()
	s := newSession(ch, cfg)
	t.Cleanup(func() { _ = s.Close(true) })
	return s, ch
}

func TestSession_SendLine(t *testing.T) {
	t.Run("default terminator", func(t *testing.T) {
		s, ch := newFakeSession(t, Config{})
		require.NoError(t, s.SendLine("circalc 1"))
		assert.Equal(t, "circalc 1\n", ch.Written())
	})

	t.Run("custom terminator", func(t *testing.T) {
		s, ch := newFakeSession(t, Config{LineTerminator: "\r"})
		require.NoError(t, s.SendLine("circalc"))
		require.NoError(t, s.Send("raw"))
		assert.Equal(t, "circalc\rraw", ch.Written())
	})
}

func TestSession_SendControl(t *testing.T) {
	tests := []struct {
		key     byte
		want    string
		wantErr bool
	}{
		{'c', "\x03", false},
		{'C', "\x03", false},
		{'d', "\x04", false},
		{'[', "\x1b", false},
		{'?', "\x7f", false},
		{'@', "\x00", false},
		{'1', "", true},
	}
	for _, tt := range tests {
		t.Run(string(tt.key), func(t *testing.T) {
			s, ch := newFakeSession(t, Config{})
			err := s.SendControl(tt.key)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ch.Written())
		})
	}
}

func TestSession_SendEOF(t *testing.T) {
	s, ch := newFakeSession(t, Config{})
	require.NoError(t, s.SendEOF())
	assert.Equal(t, "\x04", ch.Written())
}

func TestSession_ExpectExchange(t *testing.T) {
	s, ch := newFakeSession(t, Config{})
	ch.respond = func(in []byte) string {
		switch string(in) {
		case "circalc\n":
			return "circalc\r\nYou have to provide the raduis as an argument.\r\nesh> "
		case "circalc 1\n":
			return "circalc 1\r\narea = 3.14 , circumference = 6.28 \r\nesh> "
		}
		return ""
	}

	require.NoError(t, s.SendLine("circalc"))
	res, err := s.ExpectExact(time.Second, "You have to provide the raduis as an argument.")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Index)
	assert.Equal(t, "circalc\r\n", res.Before)

	require.NoError(t, s.SendLine("circalc 1"))
	res, err = s.ExpectExact(time.Second, "Invalid raduis", "area = 3.14 , circumference = 6.28")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Index)
	assert.Contains(t, res.Before, "esh> circalc 1")
}

func TestSession_TimeoutKeepsSessionOpen(t *testing.T) {
	s, ch := newFakeSession(t, Config{})
	_, err := s.ExpectExact(50*time.Millisecond, "never")
	require.ErrorIs(t, err, ErrTimeout)

	assert.False(t, s.Closed())
	assert.True(t, s.State().Alive())
	require.NoError(t, s.Send("still here"))
	assert.Equal(t, "still here", ch.Written())
}

func TestSession_DefaultTimeout(t *testing.T) {
	s, _ := newFakeSession(t, Config{Timeout: 60 * time.Millisecond})
	start := time.Now()
	_, err := s.Expect(0, Exact("never"))
	require.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestSession_EOF(t *testing.T) {
	s, ch := newFakeSession(t, Config{})
	ch.emit("goodbye\r\n")
	ch.hangup()

	res, err := s.ExpectExact(time.Second, "goodbye")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Index)

	_, err = s.ExpectExact(time.Second, "more")
	assert.ErrorIs(t, err, ErrEOF)

	res, err = s.Expect(time.Second, Exact("more"), EOF)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Index)
}

func TestSession_ConcurrentExpect(t *testing.T) {
	s, ch := newFakeSession(t, Config{})

	var wg sync.WaitGroup
	var firstErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, firstErr = s.ExpectExact(5*time.Second, "release")
	}()
	require.Eventually(t, s.expecting.Load, time.Second, time.Millisecond)

	_, err := s.ExpectExact(time.Second, "release")
	var cv *ContractViolationError
	require.True(t, errors.As(err, &cv), "want *ContractViolationError, got %v", err)
	assert.Equal(t, "Expect", cv.Op)

	ch.emit("release")
	wg.Wait()
	assert.NoError(t, firstErr)
}

func TestSession_Logfile(t *testing.T) {
	var transcript syncBuffer
	s, ch := newFakeSession(t, Config{Logfile: &transcript})
	ch.emit("raw \x1b[1mbytes\x1b[0m\r\n")

	_, err := s.ExpectExact(time.Second, "bytes")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return transcript.String() == "raw \x1b[1mbytes\x1b[0m\r\n"
	}, time.Second, time.Millisecond)
}

func TestSession_Logger(t *testing.T) {
	var logs syncBuffer
	logger := zerolog.New(&logs).Level(zerolog.DebugLevel)
	s, ch := newFakeSession(t, Config{Logger: &logger})
	ch.emit("ready")

	_, err := s.ExpectExact(time.Second, "ready")
	require.NoError(t, err)
	require.NoError(t, s.Close(false))

	assert.Contains(t, logs.String(), `"message":"matched"`)
	assert.Contains(t, logs.String(), `"pid":4242`)
	assert.Contains(t, logs.String(), `"message":"session closed"`)
}

func TestSession_Close(t *testing.T) {
	s, ch := newFakeSession(t, Config{})
	ch.closeErr = errors.New("close failed")

	err := s.Close(false)
	require.EqualError(t, err, "close failed")
	assert.True(t, s.Closed())
	assert.False(t, ch.forced)

	t.Run("idempotent", func(t *testing.T) {
		assert.Equal(t, err, s.Close(true))
		assert.Equal(t, 1, ch.closeCalls)
		assert.False(t, ch.forced, "second Close must not change how the child was stopped")
	})

	t.Run("operations after close", func(t *testing.T) {
		assert.ErrorIs(t, s.Send("x"), ErrChannelClosed)
		assert.ErrorIs(t, s.SendLine("x"), ErrChannelClosed)
		assert.ErrorIs(t, s.Resize(80, 24), ErrChannelClosed)
		_, err := s.ExpectExact(time.Second, "x")
		assert.ErrorIs(t, err, ErrChannelClosed)
	})

	t.Run("reader stopped", func(t *testing.T) {
		select {
		case <-s.readerDone:
		default:
			t.Fatal("reader loop still running after Close")
		}
	})
}

func TestSession_CloseWakesPendingExpect(t *testing.T) {
	s, _ := newFakeSession(t, Config{})
	errCh := make(chan error, 1)
	go func() {
		_, err := s.ExpectExact(5*time.Second, "never")
		errCh <- err
	}()
	require.Eventually(t, s.expecting.Load, time.Second, time.Millisecond)
	require.NoError(t, s.Close(true))

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrEOF)
	case <-time.After(2 * time.Second):
		t.Fatal("Expect did not return after Close")
	}
}

func TestSession_ResizeFakeChannel(t *testing.T) {
	s, ch := newFakeSession(t, Config{})
	require.NoError(t, s.Resize(120, 40))
	assert.Equal(t, [2]int{120, 40}, ch.size)
}

func TestConfig_Defaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
	assert.Equal(t, DefaultPollInterval, cfg.PollInterval)
	assert.Equal(t, DefaultGracePeriod, cfg.GracePeriod)
	assert.Equal(t, "\n", cfg.LineTerminator)

	custom := Config{Timeout: time.Second, PollInterval: time.Millisecond, LineTerminator: "\r\n"}.withDefaults()
	assert.Equal(t, time.Second, custom.Timeout)
	assert.Equal(t, time.Millisecond, custom.PollInterval)
	assert.Equal(t, "\r\n", custom.LineTerminator)
}
