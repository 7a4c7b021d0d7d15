// Command ptyrun runs a program on a pseudo-terminal. By default it waits
// for the program to exit and prints what it wrote; with -interact the
// current terminal is attached to it until it exits or ^] is pressed.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/KennethanCeyer/ptyexpect"
	"github.com/KennethanCeyer/ptyexpect/internal/config"
	"github.com/KennethanCeyer/ptyexpect/internal/logging"
)

const (
	exitError = 1
	exitUsage = 2
)

var errUsage = errors.New("usage: ptyrun [-cols n] [-rows n] [-dir d] [-env K=V]... [-timeout d] [-interact] [-v] <prog> [args...]")

// envList collects repeated -env flags.
type envList []string

func (e *envList) String() string { return strings.Join(*e, ",") }

func (e *envList) Set(v string) error {
	if !strings.Contains(v, "=") {
		return fmt.Errorf("%q is not of the form KEY=VALUE", v)
	}
	*e = append(*e, v)
	return nil
}

type runOpts struct {
	cfg      ptyexpect.Config
	timeout  time.Duration
	interact bool
	verbose  bool
}

func parseRunOpts(args []string, stderr io.Writer) (*runOpts, error) {
	fs := flag.NewFlagSet("ptyrun", flag.ContinueOnError)
	fs.SetOutput(stderr)
	opts := &runOpts{}
	var env envList
	fs.IntVar(&opts.cfg.Cols, "cols", 0, "terminal width (default 80)")
	fs.IntVar(&opts.cfg.Rows, "rows", 0, "terminal height (default 24)")
	fs.StringVar(&opts.cfg.Dir, "dir", "", "working directory of the program")
	fs.Var(&env, "env", "extra `KEY=VALUE` for the program's environment (repeatable)")
	fs.DurationVar(&opts.timeout, "timeout", 0, "kill the program after this long (0 waits forever)")
	fs.BoolVar(&opts.interact, "interact", false, "attach this terminal to the program")
	fs.BoolVar(&opts.verbose, "v", false, "debug logging")
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
	if fs.NArg() == 0 {
		return nil, errUsage
	}
	if opts.cfg.Cols < 0 || opts.cfg.Rows < 0 {
		return nil, fmt.Errorf("invalid size %dx%d", opts.cfg.Cols, opts.cfg.Rows)
	}
	if opts.timeout < 0 {
		return nil, fmt.Errorf("invalid -timeout %v", opts.timeout)
	}
	opts.cfg.Command, opts.cfg.Args = fs.Arg(0), fs.Args()[1:]
	if len(env) > 0 {
		opts.cfg.Env = append(os.Environ(), env...)
	}
	return opts, nil
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin *os.File, stdout, stderr io.Writer) int {
	opts, err := parseRunOpts(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
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
	opts.cfg.PollInterval = settings.PollInterval
	opts.cfg.GracePeriod = settings.GracePeriod
	opts.cfg.Logger = &logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	if opts.interact {
		err = interact(ctx, opts.cfg, stdin, stdout)
	} else {
		var out string
		out, err = ptyexpect.Run(ctx, opts.cfg)
		_, _ = io.WriteString(stdout, out)
	}
	return exitCode(logger, err)
}

// interact attaches stdin and stdout to the program until it closes its
// terminal or the user detaches with ^], which hangs the program up.
func interact(ctx context.Context, cfg ptyexpect.Config, stdin *os.File, stdout io.Writer) error {
	s, err := ptyexpect.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close(true)

	if err := s.Interact(ctx, stdin, stdout, ptyexpect.DefaultEscape); err != nil {
		return err
	}
	res, err := s.ExpectContext(ctx, time.Millisecond, ptyexpect.EOF, ptyexpect.TIMEOUT)
	if err != nil {
		return err
	}
	if res.Pattern == ptyexpect.TIMEOUT {
		return s.Close(false)
	}
	return s.Wait(ctx)
}

// exitCode maps the outcome of the program to ptyrun's exit status: the
// program's own status, 128+n for a program killed by signal n, 1 for other
// failures.
func exitCode(logger zerolog.Logger, err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ptyexpect.ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Signal != 0 {
			return 128 + int(exitErr.Signal)
		}
		return exitErr.ExitCode
	}
	logger.Error().Err(err).Msg("run failed")
	return exitError
}
