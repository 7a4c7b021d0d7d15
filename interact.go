package ptyexpect

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
)

// DefaultEscape is ^], the key that ends Interact.
const DefaultEscape byte = 0x1d

// Interact connects a terminal to the child: bytes read from in are sent to
// it and its output is copied to out, starting with output no Expect has
// consumed. Everything copied counts as consumed. When in is a terminal it
// is switched to raw mode and its size is propagated to the child.
//
// Interact returns nil when the child closes its terminal or when escape is
// read from in (0 disables the escape key), and ctx.Err() when ctx is done.
// The Session stays open either way. The goroutine reading in stops at its
// next read after Interact returns, discarding what that read returned.
func (s *Session) Interact(ctx context.Context, in *os.File, out io.Writer, escape byte) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if !s.expecting.CompareAndSwap(false, true) {
		return &ContractViolationError{Op: "Interact", Detail: "Interact while Expect is in progress"}
	}
	defer s.expecting.Store(false)

	con := newConsole(in, out)
	if err := con.makeRaw(); err != nil {
		return fmt.Errorf("ptyexpect: interact: %w", err)
	}
	defer func() { _ = con.restore() }()

	syncSize := func() {
		if cols, rows, ok := con.size(); ok {
			if err := s.Resize(cols, rows); err != nil {
				s.log.Debug().Err(err).Msg("resize failed")
			}
		}
	}
	syncSize()
	resized, stopResize := watchResize()
	defer stopResize()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	escaped := make(chan struct{})
	go s.forwardInput(ctx, in, escape, escaped)

	s.log.Debug().Msg("interact started")
	defer s.log.Debug().Msg("interact finished")
	for {
		changed := s.buf.Changed()
		tail, offset, eof := s.buf.snapshot()
		if len(tail) > 0 {
			if _, err := out.Write(tail); err != nil {
				return fmt.Errorf("ptyexpect: interact: %w", err)
			}
			if err := s.buf.AdvanceCursor(offset + len(tail)); err != nil {
				return err
			}
		}
		if eof {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-escaped:
			return nil
		case <-resized:
			syncSize()
		case <-changed:
		}
	}
}

func (s *Session) forwardInput(ctx context.Context, in io.Reader, escape byte, escaped chan<- struct{}) {
	p := make([]byte, readChunkSize)
	for {
		n, err := in.Read(p)
		if ctx.Err() != nil {
			return
		}
		chunk := p[:n]
		if i := bytes.IndexByte(chunk, escape); escape != 0 && i >= 0 {
			if i > 0 {
				_ = s.Send(string(chunk[:i]))
			}
			close(escaped)
			return
		}
		if n > 0 {
			if serr := s.Send(string(chunk)); serr != nil {
				return
			}
		}
		if err != nil {
			return
		}
	}
}
