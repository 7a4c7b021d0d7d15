// Command expectrun runs a YAML test definition against an interactive
// program on a pseudo-terminal and reports PASS or FAIL.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/KennethanCeyer/ptyexpect"
	"github.com/KennethanCeyer/ptyexpect/internal/config"
	"github.com/KennethanCeyer/ptyexpect/internal/logging"
	"github.com/KennethanCeyer/ptyexpect/internal/script"
)

const (
	exitPass  = 0
	exitFail  = 1
	exitUsage = 2
)

type runOpts struct {
	definition string
	pluginDir  string
	timeout    time.Duration
	verbose    bool
	interact   bool
}

var errUsage = errors.New("usage: expectrun [-timeout d] [-v] [-interact] <definition.yaml> <plugin-dir>")

func parseRunOpts(args []string, stderr io.Writer) (*runOpts, error) {
	fs := flag.NewFlagSet("expectrun", flag.ContinueOnError)
	fs.SetOutput(stderr)
	opts := &runOpts{}
	fs.DurationVar(&opts.timeout, "timeout", 0, "default time limit of each expect step (overrides PTYEXPECT_TIMEOUT)")
	fs.BoolVar(&opts.verbose, "v", false, "log every step")
	fs.BoolVar(&opts.interact, "interact", false, "attach this terminal to the program after the last step passes (^] detaches)")
	fs.Usage = func() {
		out := fs.Output()
		fmt.Fprintln(out, errUsage)
		fmt.Fprintln(out, "\nFlags:")
		fs.PrintDefaults()
		fmt.Fprintln(out, "\nEnvironment:")
		_ = config.Usage(out)
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() != 2 {
		return nil, errUsage
	}
	if opts.timeout < 0 {
		return nil, fmt.Errorf("invalid -timeout %v", opts.timeout)
	}
	opts.definition, opts.pluginDir = fs.Arg(0), fs.Arg(1)
	return opts, nil
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin *os.File, stdout, stderr io.Writer) int {
	opts, err := parseRunOpts(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return exitPass
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	settings, err := config.Load()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	if opts.timeout > 0 {
		settings.Timeout = opts.timeout
	}
	if opts.verbose {
		settings.LogLevel = zerolog.LevelDebugValue
	}
	logger, err := logging.New(stderr, logging.Options{
		Level:   settings.LogLevel,
		Format:  settings.LogFormat,
		NoColor: settings.NoColor,
	})
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	def, err := script.Load(opts.definition)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer func() {
		if err := ptyexpect.CloseAll(); err != nil {
			logger.Warn().Err(err).Msg("closing leftover sessions")
		}
	}()

	runner := &script.Runner{
		Base: ptyexpect.Config{
			Timeout:      settings.Timeout,
			PollInterval: settings.PollInterval,
			GracePeriod:  settings.GracePeriod,
		},
		Log: logger.With().Str("definition", filepath.Base(opts.definition)).Logger(),
	}
	if opts.interact {
		runner.Handoff = func(ctx context.Context, s *ptyexpect.Session) error {
			return s.Interact(ctx, stdin, stdout, ptyexpect.DefaultEscape)
		}
	}
	res, err := runner.Run(ctx, def, opts.pluginDir)

	color := !settings.NoColor && logging.IsTerminal(stdout)
	report(stdout, color, opts.definition, res, err)
	if err != nil {
		return exitFail
	}
	return exitPass
}

// report prints the outcome of a run: one PASS line, or a FAIL line followed
// by what was expected and what the program printed instead.
func report(w io.Writer, color bool, name string, res script.Result, err error) {
	if err == nil {
		fmt.Fprintf(w, "%s %s (%d steps, %v)\n",
			ptyexpect.Colorize(color, "PASS", ptyexpect.SGRBold, ptyexpect.SGRGreen),
			name, res.Steps, res.Elapsed.Round(time.Millisecond))
		return
	}

	fmt.Fprintf(w, "%s %s: %v\n", ptyexpect.Colorize(color, "FAIL", ptyexpect.SGRBold, ptyexpect.SGRRed), name, err)
	var se *script.StepError
	if !errors.As(err, &se) {
		return
	}
	if len(se.Patterns) > 0 {
		fmt.Fprintf(w, "  %s %s\n", ptyexpect.Colorize(color, "expected:", ptyexpect.SGRCyan), strings.Join(se.Patterns, " | "))
	}
	output := se.Output
	if !color {
		output = ptyexpect.StripANSI(output)
	}
	fmt.Fprintf(w, "  %s %q\n", ptyexpect.Colorize(color, "output:", ptyexpect.SGRCyan), output)
	if res.State.Status != ptyexpect.StatusUnknown {
		fmt.Fprintf(w, "  %s %v\n", ptyexpect.Colorize(color, "child:", ptyexpect.SGRCyan), res.State)
	}
}
