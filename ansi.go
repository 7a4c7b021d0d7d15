package ptyexpect

import (
	"regexp"
	"strconv"
	"strings"
)

// SGR attribute codes used when reporting results on a terminal.
const (
	SGRReset = 0
	SGRBold  = 1
	SGRRed   = 31
	SGRGreen = 32
	SGRCyan  = 36
)

func CSI(seq string) string { return "\x1b[" + seq }

func SGR(codes ...int) string {
	if len(codes) == 0 {
		return CSI("0m")
	}
	s := make([]string, len(codes))
	for i, c := range codes {
		s[i] = strconv.Itoa(c)
	}
	return CSI(strings.Join(s, ";") + "m")
}

// Colorize wraps text in the given attributes followed by a reset. When
// enabled is false text is returned unchanged.
func Colorize(enabled bool, text string, codes ...int) string {
	if !enabled || len(codes) == 0 {
		return text
	}
	return SGR(codes...) + text + SGR()
}

// CSI sequences, OSC sequences terminated by BEL or ST, and two byte escapes.
var ansiSeq = regexp.MustCompile(`\x1b(?:\[[0-?]*[ -/]*[@-~]|\][^\x07\x1b]*(?:\x07|\x1b\\)|[0-Z\\-_])`)

// StripANSI removes terminal escape sequences from s, leaving the text a
// user would see.
func StripANSI(s string) string {
	if !strings.Contains(s, "\x1b") {
		return s
	}
	return ansiSeq.ReplaceAllString(s, "")
}
