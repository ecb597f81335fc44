package cmd

import (
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/duration"
)

var helpText = map[string]string{
	"quiet":      "Only output errors",
	"raw":        "Print raw output without styling",
	"timeout":    "Time budget for the call; e.g. 30s, 5m",
	"project":    "Cloud project ID to onboard into",
	"last":       "Show the most recent call",
	"copy":       "Copy the call output to the clipboard",
	"older-than": "Delete calls older than this; e.g. 24h, 7d",
}

func newDurationFlag(val time.Duration, p *time.Duration) *durationFlag {
	*p = val
	return (*durationFlag)(p)
}

// durationFlag parses human durations, including day and week units.
type durationFlag time.Duration

func (d *durationFlag) Set(s string) error {
	v, err := duration.Parse(s)
	*d = durationFlag(v)
	return err //nolint:wrapcheck
}

func (d *durationFlag) String() string {
	return time.Duration(*d).String()
}

func (*durationFlag) Type() string {
	return "duration"
}

type flagParseError struct {
	err error
}

func newFlagParseError(err error) flagParseError {
	return flagParseError{err: err}
}

func (f flagParseError) Error() string {
	return f.err.Error()
}

// ReasonFormat returns a printf format with one %s verb for the flag name.
func (f flagParseError) ReasonFormat() string {
	switch {
	case strings.HasPrefix(f.err.Error(), "unknown flag"):
		return "Flag %s is missing."
	case strings.HasPrefix(f.err.Error(), "flag needs an argument"):
		return "Flag %s needs an argument."
	case strings.HasPrefix(f.err.Error(), "invalid argument"):
		return "Flag %s have an invalid argument."
	default:
		return "Flag %s is invalid."
	}
}

var invalidFlagRegex = regexp.MustCompile(`for "([^"]+)" flag`)

// Flag extracts the offending flag name from the wrapped pflag error.
func (f flagParseError) Flag() string {
	msg := f.err.Error()
	if m := invalidFlagRegex.FindStringSubmatch(msg); len(m) == 2 {
		return m[1]
	}
	if idx := strings.LastIndex(msg, " in "); idx >= 0 {
		return msg[idx+len(" in "):]
	}
	if idx := strings.LastIndex(msg, ": "); idx >= 0 {
		return msg[idx+2:]
	}
	return ""
}
