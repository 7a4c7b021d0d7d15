package ptyexpect

import (
	"fmt"
	"sync"
)

// OutputBuffer accumulates everything a child wrote, in order, plus a cursor
// marking how much of it earlier matches have consumed. The cursor never
// moves backwards.
type OutputBuffer struct {
	mu      sync.Mutex
	data    []byte
	cursor  int
	eof     bool
	changed chan struct{}
}

func NewOutputBuffer() *OutputBuffer {
	return &OutputBuffer{changed: make(chan struct{})}
}

// Append adds p to the end of the buffer and wakes anyone waiting on Changed.
func (b *OutputBuffer) Append(p []byte) {
	if len(p) == 0 {
		return
	}
	b.mu.Lock()
	b.data = append(b.data, p...)
	b.broadcastLocked()
	b.mu.Unlock()
}

// MarkEOF records that no more output will arrive.
func (b *OutputBuffer) MarkEOF() {
	b.mu.Lock()
	if !b.eof {
		b.eof = true
		b.broadcastLocked()
	}
	b.mu.Unlock()
}

func (b *OutputBuffer) EOF() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.eof
}

// Changed returns a channel closed at the next Append or MarkEOF.
func (b *OutputBuffer) Changed() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.changed
}

// UnconsumedTail returns the bytes from the cursor to the end. The slice
// shares storage with the buffer and must not be modified.
func (b *OutputBuffer) UnconsumedTail() []byte {
	tail, _, _ := b.snapshot()
	return tail
}

// snapshot returns the tail, its absolute offset and the EOF flag as one
// consistent view.
func (b *OutputBuffer) snapshot() (tail []byte, offset int, eof bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.data)
	return b.data[b.cursor:n:n], b.cursor, b.eof
}

// AdvanceCursor moves the cursor to offset, which must lie between the
// current cursor and the end of the buffer.
func (b *OutputBuffer) AdvanceCursor(offset int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case offset < b.cursor:
		return &ContractViolationError{
			Op:     "AdvanceCursor",
			Detail: fmt.Sprintf("offset %d is before cursor %d", offset, b.cursor),
		}
	case offset > len(b.data):
		return &ContractViolationError{
			Op:     "AdvanceCursor",
			Detail: fmt.Sprintf("offset %d is past end of buffer %d", offset, len(b.data)),
		}
	}
	b.cursor = offset
	return nil
}

func (b *OutputBuffer) Cursor() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cursor
}

func (b *OutputBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// String returns a copy of everything received so far, consumed or not.
func (b *OutputBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.data)
}

func (b *OutputBuffer) broadcastLocked() {
	close(b.changed)
	b.changed = make(chan struct{})
}
