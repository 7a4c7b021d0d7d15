//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package main

import (
	"bytes"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KennethanCeyer/ptyexpect/internal/testshell"
)

// helperArgs builds ptyrun arguments that start the test binary as the
// helper command args.
func helperArgs(flags []string, args ...string) []string {
	prog, progArgs := testshell.Command(args...)
	out := append([]string{"-env", testshell.EnvMode + "=" + testshell.ModeValue}, flags...)
	out = append(out, prog)
	return append(out, progArgs...)
}

func stdinPipe(t *testing.T) *os.File {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = r.Close()
		_ = w.Close()
	})
	return r
}

func TestRun(t *testing.T) {
	t.Setenv("PTYEXPECT_LOG_FORMAT", "json")

	t.Run("PrintsOutput", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		code := run(helperArgs(nil, "echo", "hello"), stdinPipe(t), &stdout, &stderr)
		assert.Equal(t, 0, code, stderr.String())
		assert.Equal(t, "hello\r\n", stdout.String())
	})

	t.Run("PropagatesExitStatus", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		code := run(helperArgs(nil, "exit", "7"), stdinPipe(t), &stdout, &stderr)
		assert.Equal(t, 7, code)
	})

	t.Run("Timeout", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		start := time.Now()
		code := run(helperArgs([]string{"-timeout", "200ms"}, "silent"), stdinPipe(t), &stdout, &stderr)
		assert.Equal(t, exitError, code)
		assert.Less(t, time.Since(start), 5*time.Second)
		assert.Contains(t, stderr.String(), `"message":"run failed"`)
		assert.Contains(t, stderr.String(), "deadline exceeded")
	})

	t.Run("Interact", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		code := run(helperArgs([]string{"-interact"}, "echo", "attached"), stdinPipe(t), &stdout, &stderr)
		assert.Equal(t, 0, code, stderr.String())
		assert.Contains(t, stdout.String(), "attached")
	})

	t.Run("SpawnError", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		code := run([]string{"a-program-that-does-not-exist-12345"}, stdinPipe(t), &stdout, &stderr)
		assert.Equal(t, exitError, code)
		assert.Contains(t, stderr.String(), "a-program-that-does-not-exist-12345")
	})

	t.Run("Usage", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		assert.Equal(t, exitUsage, run(nil, stdinPipe(t), &stdout, &stderr))
		assert.Contains(t, stderr.String(), errUsage.Error())
	})

	t.Run("BadEnvironment", func(t *testing.T) {
		t.Setenv("PTYEXPECT_LOG_FORMAT", "xml")
		var stdout, stderr bytes.Buffer
		assert.Equal(t, exitUsage, run(helperArgs(nil, "echo", "x"), stdinPipe(t), &stdout, &stderr))
	})
}
