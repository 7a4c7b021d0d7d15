package ptyexpect

import (
	"context"
	"time"
)

const DefaultPollInterval = 10 * time.Millisecond

// MatchResult describes a successful Expect.
type MatchResult struct {
	// Index is the position of the matching pattern in the list passed to
	// Expect.
	Index   int
	Pattern Pattern
	// Before is the output between the previous cursor and the match.
	Before string
	// Text is the matched output; empty for EOF and TIMEOUT.
	Text string
	// Groups holds regexp submatches, Groups[0] being the whole match.
	Groups []string
	// Start is the absolute offset of the match in the session output.
	Start int
	// ConsumedThrough is the absolute offset the cursor was advanced to.
	ConsumedThrough int
}

// Engine matches ordered pattern lists against an OutputBuffer. It is not
// safe for concurrent Expect calls on the same buffer.
type Engine struct {
	buf          *OutputBuffer
	pollInterval time.Duration
}

func NewEngine(buf *OutputBuffer, pollInterval time.Duration) *Engine {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Engine{buf: buf, pollInterval: pollInterval}
}

// Expect blocks until one of patterns matches the unconsumed output, the
// buffer reaches EOF, the deadline passes, or ctx is done. Patterns are tried
// in list order against the whole tail and the lowest index that matches
// anywhere wins, even if a later pattern matches earlier in the text. A zero
// deadline waits for ctx alone.
func (e *Engine) Expect(ctx context.Context, deadline time.Time, patterns []Pattern) (*MatchResult, error) {
	if len(patterns) == 0 {
		return nil, &ContractViolationError{Op: "Expect", Detail: "empty pattern list"}
	}
	start := time.Now()

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		changed := e.buf.Changed()
		tail, offset, eof := e.buf.snapshot()

		if res := scan(tail, offset, patterns); res != nil {
			if err := e.buf.AdvanceCursor(res.ConsumedThrough); err != nil {
				return nil, err
			}
			return res, nil
		}

		if eof {
			if i := indexOfPattern(patterns, EOF); i >= 0 {
				end := offset + len(tail)
				if err := e.buf.AdvanceCursor(end); err != nil {
					return nil, err
				}
				return &MatchResult{Index: i, Pattern: EOF, Before: string(tail), Start: end, ConsumedThrough: end}, nil
			}
			return nil, &EOFError{Patterns: patternStrings(patterns), Output: string(tail)}
		}

		wait := e.pollInterval
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				if i := indexOfPattern(patterns, TIMEOUT); i >= 0 {
					return &MatchResult{Index: i, Pattern: TIMEOUT, Before: string(tail), Start: offset, ConsumedThrough: offset}, nil
				}
				return nil, &TimeoutError{
					Patterns: patternStrings(patterns),
					Timeout:  deadline.Sub(start).Round(time.Millisecond),
					Output:   string(tail),
				}
			}
			if remaining < wait {
				wait = remaining
			}
		}

		if timer == nil {
			timer = time.NewTimer(wait)
		} else {
			timer.Reset(wait)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-changed:
		case <-timer.C:
		}
	}
}

func scan(tail []byte, offset int, patterns []Pattern) *MatchResult {
	for i, p := range patterns {
		loc := p.Match(tail)
		if loc == nil {
			continue
		}
		res := &MatchResult{
			Index:           i,
			Pattern:         p,
			Before:          string(tail[:loc[0]]),
			Text:            string(tail[loc[0]:loc[1]]),
			Start:           offset + loc[0],
			ConsumedThrough: offset + loc[1],
		}
		if len(loc) > 2 {
			res.Groups = make([]string, len(loc)/2)
			for g := range res.Groups {
				if loc[2*g] >= 0 {
					res.Groups[g] = string(tail[loc[2*g]:loc[2*g+1]])
				}
			}
		}
		return res
	}
	return nil
}
