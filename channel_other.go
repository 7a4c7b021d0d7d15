//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly || windows)

package ptyexpect

import (
	"context"
	"errors"
	"runtime"
)

func Spawn(ctx context.Context, opts SpawnOpts) (Channel, error) {
	if opts.Prog == "" {
		return nil, &SpawnError{Prog: opts.Prog, Err: ErrEmptyProgram}
	}
	return nil, &SpawnError{Prog: opts.Prog, Err: errors.New("pseudo-terminals are not supported on " + runtime.GOOS)}
}
