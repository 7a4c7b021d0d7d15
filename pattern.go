package ptyexpect

import (
	"bytes"
	"fmt"
	"regexp"
)

// Pattern is one alternative handed to Expect. Match reports the location of
// the leftmost match in tail as [start, end, group pairs...], or nil.
// Patterns hold no mutable state.
type Pattern interface {
	Match(tail []byte) []int
	String() string
}

var (
	// EOF matches when the child closes its terminal before any other
	// pattern in the list matched.
	EOF Pattern = eofPattern{}
	// TIMEOUT matches when the deadline passes before any other pattern in
	// the list matched.
	TIMEOUT Pattern = timeoutPattern{}
)

type exactPattern string

// Exact matches a literal string.
func Exact(s string) Pattern { return exactPattern(s) }

func (p exactPattern) Match(tail []byte) []int {
	i := bytes.Index(tail, []byte(p))
	if i < 0 {
		return nil
	}
	return []int{i, i + len(p)}
}

func (p exactPattern) String() string { return fmt.Sprintf("exact %q", string(p)) }

type regexpPattern struct{ re *regexp.Regexp }

// Regexp compiles expr into a Pattern.
func Regexp(expr string) (Pattern, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("ptyexpect: compile pattern: %w", err)
	}
	return regexpPattern{re: re}, nil
}

// MustRegexp is like Regexp but panics if expr does not compile.
func MustRegexp(expr string) Pattern {
	p, err := Regexp(expr)
	if err != nil {
		panic(err)
	}
	return p
}

func RegexpOf(re *regexp.Regexp) Pattern { return regexpPattern{re: re} }

func (p regexpPattern) Match(tail []byte) []int { return p.re.FindSubmatchIndex(tail) }

func (p regexpPattern) String() string { return fmt.Sprintf("regexp %q", p.re.String()) }

type eofPattern struct{}

func (eofPattern) Match([]byte) []int { return nil }
func (eofPattern) String() string     { return "EOF" }

type timeoutPattern struct{}

func (timeoutPattern) Match([]byte) []int { return nil }
func (timeoutPattern) String() string     { return "TIMEOUT" }

// ExactAll converts literals into Exact patterns, keeping their order.
func ExactAll(literals ...string) []Pattern {
	patterns := make([]Pattern, len(literals))
	for i, s := range literals {
		patterns[i] = Exact(s)
	}
	return patterns
}

func patternStrings(patterns []Pattern) []string {
	out := make([]string, len(patterns))
	for i, p := range patterns {
		out[i] = p.String()
	}
	return out
}

func indexOfPattern(patterns []Pattern, target Pattern) int {
	for i, p := range patterns {
		if p == target {
			return i
		}
	}
	return -1
}
