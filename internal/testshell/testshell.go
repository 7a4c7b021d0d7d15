// Package testshell is the child program used by the pty tests. Test
// binaries re-exec themselves with GO_TEST_MODE=helper and hand their
// arguments to Main, which behaves like a tiny interactive shell with a
// circalc builtin, or like one of a few single-purpose commands.
package testshell

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"
)

const (
	EnvMode   = "GO_TEST_MODE"
	ModeValue = "helper"

	Prompt = "esh> "
	pi     = 3.1416
)

// IsHelper reports whether the current process was started as a helper.
func IsHelper() bool { return os.Getenv(EnvMode) == ModeValue }

// Command returns the program and arguments that start the current test
// binary as a helper running args.
func Command(args ...string) (string, []string) {
	return os.Args[0], append([]string{"-test.run=^$", "--"}, args...)
}

// Env returns the environment a helper must be started with.
func Env(extra ...string) []string {
	env := append(os.Environ(), EnvMode+"="+ModeValue)
	return append(env, extra...)
}

// Main runs the helper named by the arguments after "--" and exits.
func Main() {
	args := os.Args[1:]
	for i, arg := range args {
		if arg == "--" {
			args = args[i+1:]
			break
		}
	}
	os.Exit(Run(args, os.Stdin, os.Stdout, os.Stderr))
}

// Run executes the helper command args[0] and returns its exit status.
func Run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "Helper process requires a command.")
		return 1
	}
	switch args[0] {
	case "esh":
		return shell(stdin, stdout, stderr)
	case "echo":
		for _, arg := range args[1:] {
			fmt.Fprintln(stdout, arg)
		}
		return 0
	case "silent":
		// Produces nothing and waits to be killed.
		time.Sleep(time.Hour)
		return 0
	case "ignore-term":
		signal.Ignore(syscall.SIGHUP, syscall.SIGTERM, syscall.SIGINT)
		fmt.Fprintln(stdout, "ignoring signals")
		time.Sleep(time.Hour)
		return 0
	case "size":
		// Reports the terminal size after each line read, so a test can
		// observe a resize.
		f, ok := stdin.(*os.File)
		if !ok {
			fmt.Fprintln(stderr, "size command requires a terminal.")
			return 1
		}
		in := bufio.NewReader(f)
		for {
			if _, err := in.ReadString('\n'); err != nil {
				return 0
			}
			cols, rows, err := term.GetSize(int(f.Fd()))
			if err != nil {
				fmt.Fprintf(stderr, "Failed to get terminal size: %v\n", err)
				return 1
			}
			fmt.Fprintf(stdout, "size=%dx%d\n", cols, rows)
		}
	case "delay":
		if len(args) < 3 {
			fmt.Fprintln(stderr, "delay command requires a duration and a message.")
			return 1
		}
		d, err := time.ParseDuration(args[1])
		if err != nil {
			fmt.Fprintf(stderr, "Invalid duration: %v\n", err)
			return 1
		}
		time.Sleep(d)
		fmt.Fprintln(stdout, strings.Join(args[2:], " "))
		return 0
	case "pwd":
		wd, err := os.Getwd()
		if err != nil {
			fmt.Fprintf(stderr, "Failed to get working directory: %v\n", err)
			return 1
		}
		fmt.Fprintln(stdout, wd)
		return 0
	case "env":
		if len(args) < 2 {
			fmt.Fprintln(stderr, "env command requires an environment variable name.")
			return 1
		}
		fmt.Fprintln(stdout, os.Getenv(args[1]))
		return 0
	case "exit":
		if len(args) < 2 {
			fmt.Fprintln(stderr, "exit command requires an exit code.")
			return 1
		}
		return atoi(args[1])
	default:
		fmt.Fprintf(stderr, "Unknown helper command: %s\n", args[0])
		return 1
	}
}

// shell reads commands line by line, printing a prompt before each one.
// Builtins: circalc, print, sleep, exit.
func shell(stdin io.Reader, stdout, stderr io.Writer) int {
	in := bufio.NewReader(stdin)
	fmt.Fprintln(stdout, "Plugin 'circalc' initialized...")
	for {
		fmt.Fprint(stdout, Prompt)
		line, err := in.ReadString('\n')
		fields := strings.Fields(strings.TrimRight(line, "\r\n"))
		if len(fields) > 0 {
			switch fields[0] {
			case "circalc":
				Circalc(fields[1:], stdout, stderr)
			case "print":
				fmt.Fprintln(stdout, strings.Join(fields[1:], " "))
			case "sleep":
				if len(fields) > 1 {
					if d, perr := time.ParseDuration(fields[1]); perr == nil {
						time.Sleep(d)
					}
				}
			case "exit":
				code := 0
				if len(fields) > 1 {
					code = atoi(fields[1])
				}
				return code
			default:
				fmt.Fprintf(stderr, "%s: command not found\n", fields[0])
			}
		}
		if err != nil {
			return 0
		}
	}
}

// Circalc prints the area and circumference of a circle with the integer
// radius given as the first argument.
func Circalc(args []string, stdout, stderr io.Writer) {
	if len(args) == 0 {
		fmt.Fprint(stderr, "You have to provide the raduis as an argument.\n")
		return
	}
	r := atoi(args[0])
	if r < 0 || r >= 100000 {
		fmt.Fprint(stderr, "Invalid raduis. Use a number betweent 0 - 100000\n")
		return
	}
	fr := float64(r)
	fmt.Fprintf(stdout, "area = %.2f , circumference = %.2f \n", fr*pi*fr, 2*pi*fr)
}

// atoi parses a leading optionally signed decimal number, yielding 0 when
// there is none.
func atoi(s string) int {
	s = strings.TrimLeft(s, " \t")
	neg := false
	if s != "" && (s[0] == '-' || s[0] == '+') {
		neg = s[0] == '-'
		s = s[1:]
	}
	n := 0
	for i := 0; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
		n = n*10 + int(s[i]-'0')
	}
	if neg {
		return -n
	}
	return n
}
