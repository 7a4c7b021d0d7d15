package ptyexpect

import (
	"errors"
	"sync"
)

// sessions tracks every Session that has been opened but not closed, so a
// process can release all of its children on the way out.
var sessions = &registry{open: make(map[*Session]struct{})}

type registry struct {
	mu   sync.Mutex
	open map[*Session]struct{}
}

func (r *registry) add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.open[s] = struct{}{}
}

func (r *registry) remove(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.open, s)
}

func (r *registry) snapshot() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.open))
	for s := range r.open {
		out = append(out, s)
	}
	return out
}

// CloseAll force-closes every Session that is still open. It is the last
// resort for exit paths that skipped a deferred Close, and is safe to call
// at any time, including concurrently with Close.
func CloseAll() error {
	var errs []error
	for _, s := range sessions.snapshot() {
		if err := s.Close(true); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OpenSessions reports how many Sessions have not been closed yet.
func OpenSessions() int {
	sessions.mu.Lock()
	defer sessions.mu.Unlock()
	return len(sessions.open)
}
