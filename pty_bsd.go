//go:build freebsd || netbsd || openbsd || dragonfly

package ptyexpect

import (
	"os"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

func openPTY() (*os.File, *os.File, error) {
	p, tty, err := pty.Open()
	if err != nil {
		return nil, nil, err
	}
	// Fd leaves p in blocking mode, so the descriptor is duplicated and
	// rewrapped rather than used in place.
	fd, err := unix.Dup(int(p.Fd()))
	_ = p.Close()
	if err != nil {
		_ = tty.Close()
		return nil, nil, err
	}
	unix.CloseOnExec(fd)
	master, err := newMaster(fd)
	if err != nil {
		_ = unix.Close(fd)
		_ = tty.Close()
		return nil, nil, err
	}
	return master, tty, nil
}
