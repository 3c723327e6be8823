// Package parse extracts structured content from free-text model responses.
//
// Two modes exist. Line mode turns a response into a fixed number of
// entries, padding with sentinel strings. JSON mode finds one JSON object in
// the response (whole, fenced, or embedded in prose) and checks the required
// top-level keys. Parse failures are reported as *ParseError, never as
// gateway failures. Numeric ranges are not validated here.
package parse

import (
	"fmt"
	"strings"

	"skeptic/internal/logging"
)

// Sentinel strings written in place of questions a model did not provide.
const (
	NoContentSentinel = "[Model failed to provide content]"
	shortPrefix       = "[Model provided fewer than "
	failedPrefix      = "[Failed to generate question from model "
)

// ShortSentinel marks slot i (1-based) that the model left empty.
func ShortSentinel(want, i int) string {
	return fmt.Sprintf("%s%d questions, placeholder %d]", shortPrefix, want, i)
}

// FailedSentinel marks a slot for a model whose call failed outright.
func FailedSentinel(model string) string {
	return failedPrefix + model + "]"
}

// IsSentinel reports whether s is one of the strings above.
func IsSentinel(s string) bool {
	return s == NoContentSentinel ||
		strings.HasPrefix(s, shortPrefix) ||
		strings.HasPrefix(s, failedPrefix)
}

// Lines splits content into exactly n trimmed non-blank lines. Missing
// entries are padded with ShortSentinel; extra lines are dropped. Blank
// content yields n copies of NoContentSentinel.
func Lines(content string, n int) []string {
	out := make([]string, 0, n)
	if strings.TrimSpace(content) == "" {
		for i := 0; i < n; i++ {
			out = append(out, NoContentSentinel)
		}
		return out
	}

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) == n {
			return out
		}
	}
	if len(out) < n {
		logging.Parse("line mode: %d of %d lines present, padding", len(out), n)
	}
	for i := len(out); i < n; i++ {
		out = append(out, ShortSentinel(n, i+1))
	}
	return out
}

// Filled returns n copies of the failed-call sentinel for model.
func Filled(model string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = FailedSentinel(model)
	}
	return out
}
