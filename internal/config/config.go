package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const Prefix = "PTYEXPECT"

// Settings are read from PTYEXPECT_ followed by the field name split into
// words, e.g. PTYEXPECT_POLL_INTERVAL. Unprefixed names are never consulted.
type Settings struct {
	Timeout      time.Duration `split_words:"true" default:"30s" desc:"default time limit of each expect step"`
	PollInterval time.Duration `split_words:"true" default:"10ms" desc:"longest sleep between output scans"`
	GracePeriod  time.Duration `split_words:"true" default:"500ms" desc:"wait between hangup, SIGTERM and SIGKILL on close"`

	LogLevel  string `split_words:"true" default:"info" desc:"trace, debug, info, warn or error"`
	LogFormat string `split_words:"true" default:"console" desc:"console or json"`
	NoColor   bool   `split_words:"true" default:"false" desc:"disable coloured output"`
}

// Load reads Settings from PTYEXPECT_* environment variables. The
// conventional NO_COLOR variable is honoured as well.
func Load() (Settings, error) {
	var s Settings
	if err := envconfig.Process(Prefix, &s); err != nil {
		return Settings{}, fmt.Errorf("failed to load config: %w", err)
	}
	if os.Getenv("NO_COLOR") != "" {
		s.NoColor = true
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func (s Settings) Validate() error {
	for name, d := range map[string]time.Duration{
		"TIMEOUT":       s.Timeout,
		"POLL_INTERVAL": s.PollInterval,
		"GRACE_PERIOD":  s.GracePeriod,
	} {
		if d <= 0 {
			return fmt.Errorf("invalid config: %s_%s must be positive, got %v", Prefix, name, d)
		}
	}
	switch s.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("invalid config: %s_LOG_FORMAT must be console or json, got %q", Prefix, s.LogFormat)
	}
	return nil
}

// Usage writes the table of recognised environment variables to w.
func Usage(w io.Writer) error {
	return envconfig.Usagef(Prefix, &Settings{}, w, envconfig.DefaultTableFormat)
}
