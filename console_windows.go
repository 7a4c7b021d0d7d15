//go:build windows

package ptyexpect

import (
	"os"
	"time"

	"golang.org/x/sys/windows"
)

// enableVT makes the console interpret the escape sequences the child
// writes.
func enableVT(f *os.File) {
	h := windows.Handle(f.Fd())
	var mode uint32
	if windows.GetConsoleMode(h, &mode) == nil {
		_ = windows.SetConsoleMode(h, mode|windows.ENABLE_VIRTUAL_TERMINAL_PROCESSING|windows.DISABLE_NEWLINE_AUTO_RETURN)
	}
}

// Windows consoles have no resize signal, so the size is polled.
func watchResize() (resized <-chan struct{}, stop func()) {
	out := make(chan struct{}, 1)
	quit := make(chan struct{})
	go func() {
		t := time.NewTicker(200 * time.Millisecond)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				select {
				case out <- struct{}{}:
				default:
				}
			case <-quit:
				return
			}
		}
	}()
	return out, func() { close(quit) }
}
