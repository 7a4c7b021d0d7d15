//go:build unix

package ptyexpect

import (
	"os"
	"os/signal"
	"syscall"
)

func enableVT(*os.File) {}

// watchResize delivers a value whenever the terminal is resized. stop must be
// called to release the signal handler.
func watchResize() (resized <-chan struct{}, stop func()) {
	sig := make(chan os.Signal, 1)
	out := make(chan struct{}, 1)
	quit := make(chan struct{})
	signal.Notify(sig, syscall.SIGWINCH)
	go func() {
		for {
			select {
			case <-sig:
				select {
				case out <- struct{}{}:
				default:
				}
			case <-quit:
				return
			}
		}
	}()
	return out, func() {
		signal.Stop(sig)
		close(quit)
	}
}
