package ptyexpect

import (
	"io"
	"os"

	"golang.org/x/term"
)

// console is the user's terminal while Interact runs. Any of its files may
// be a pipe, in which case it is used as a plain byte stream.
type console struct {
	in  *os.File
	out io.Writer
	raw *term.State
}

func newConsole(in *os.File, out io.Writer) *console {
	c := &console{in: in, out: out}
	if f, ok := out.(*os.File); ok {
		enableVT(f)
	}
	return c
}

func (c *console) inTTY() bool { return term.IsTerminal(int(c.in.Fd())) }

// makeRaw puts the input terminal in raw mode so keys, including control
// characters, reach the child unprocessed.
func (c *console) makeRaw() error {
	if !c.inTTY() {
		return nil
	}
	st, err := term.MakeRaw(int(c.in.Fd()))
	if err != nil {
		return err
	}
	c.raw = st
	return nil
}

func (c *console) restore() error {
	if c.raw == nil {
		return nil
	}
	err := term.Restore(int(c.in.Fd()), c.raw)
	if err == nil {
		c.raw = nil
	}
	return err
}

// size reports the size of the output terminal, or of the input terminal
// when output is not one.
func (c *console) size() (cols, rows int, ok bool) {
	for _, w := range []any{c.out, c.in} {
		f, isFile := w.(*os.File)
		if !isFile || !term.IsTerminal(int(f.Fd())) {
			continue
		}
		if cols, rows, err := term.GetSize(int(f.Fd())); err == nil {
			return cols, rows, true
		}
	}
	return 0, 0, false
}
