package ptyexpect

import (
	"os"
	"testing"

	"github.com/KennethanCeyer/ptyexpect/internal/testshell"
)

// TestMain turns the test binary into the child program when it is started
// by one of the pty tests.
func TestMain(m *testing.M) {
	if testshell.IsHelper() {
		testshell.Main()
		return
	}
	os.Exit(m.Run())
}
