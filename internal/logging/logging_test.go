package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSON(t *testing.T) {
	var out bytes.Buffer
	logger, err := New(&out, Options{Level: "debug", Format: "json"})
	require.NoError(t, err)

	logger.Debug().Str("step", "sendline").Msg("running")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &entry))
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "sendline", entry["step"])
	assert.Equal(t, "running", entry["message"])
	assert.Contains(t, entry, "time")
}

func TestNew_Console(t *testing.T) {
	var out bytes.Buffer
	logger, err := New(&out, Options{})
	require.NoError(t, err)

	logger.Debug().Msg("hidden")
	logger.Info().Str("definition", "circalc.yaml").Msg("loaded")

	assert.NotContains(t, out.String(), "hidden")
	assert.Contains(t, out.String(), "loaded")
	assert.Contains(t, out.String(), "definition=circalc.yaml")
	assert.NotContains(t, out.String(), "\x1b[", "colour must be off when not writing to a terminal")
}

func TestNew_Level(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"", zerolog.InfoLevel},
		{"trace", zerolog.TraceLevel},
		{"WARN", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			logger, err := New(&bytes.Buffer{}, Options{Level: tt.in, Format: "json"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, logger.GetLevel())
		})
	}
}

func TestNew_Invalid(t *testing.T) {
	_, err := New(&bytes.Buffer{}, Options{Level: "loud"})
	assert.ErrorContains(t, err, `invalid log level "loud"`)

	_, err = New(&bytes.Buffer{}, Options{Format: "xml"})
	assert.ErrorContains(t, err, `invalid log format "xml"`)
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, IsTerminal(&bytes.Buffer{}))

	f, err := os.Create(filepath.Join(t.TempDir(), "log"))
	require.NoError(t, err)
	defer f.Close()
	assert.False(t, IsTerminal(f))
}
