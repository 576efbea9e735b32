// Package validate runs the external validator in two tiers: a detached
// full-workspace scan (advisory) and a synchronous pass over the session's
// modified files (enforcing, the only path that can veto a session stop).
package validate

import (
	"regexp"
	"strconv"
)

// Outcome is the three-way classification of one validator invocation.
type Outcome int

const (
	OutcomeClean Outcome = iota
	OutcomeErrors
	OutcomeCrashed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeClean:
		return "clean"
	case OutcomeErrors:
		return "errors"
	case OutcomeCrashed:
		return "crashed"
	default:
		return "unknown"
	}
}

// Classification is the result of ClassifyValidatorOutput.
type Classification struct {
	Outcome    Outcome
	ErrorCount int
}

// The validator's report contract: grep-style error lines "path:line: message"
// and a trailing summary marker "N error(s) found" (or "No errors found").
// These patterns are heuristic by nature, so they live here in one place,
// pinned by unit tests, instead of being buried in control flow.
var (
	summaryMarkerRe = regexp.MustCompile(`(?m)^\s*(\d+)\s+errors?\s+found\b`)
	noErrorsRe      = regexp.MustCompile(`(?mi)^\s*no errors\s+found\b`)
	errorLineRe     = regexp.MustCompile(`(?m)^([^\s:][^:\n]*):(\d+):\s*(.+)$`)

	stackLineRes = []*regexp.Regexp{
		regexp.MustCompile(`(?m)^panic: `),
		regexp.MustCompile(`(?m)^goroutine \d+ \[`),
		regexp.MustCompile(`(?m)^Traceback \(most recent call last\)`),
		regexp.MustCompile(`(?m)^\s+at .+\(.+\)$`),
		regexp.MustCompile(`(?m)^\s+File ".+", line \d+`),
	}
)

// ClassifyValidatorOutput maps an exit code plus captured output onto
// clean / errors(n) / crashed. The rules, in order:
//
//  1. A summary marker is authoritative: "0 errors found" is clean,
//     "N errors found" is errors(N), regardless of exit code.
//  2. Without a marker, exit 0 is clean unless error lines are present.
//  3. Without a marker and a non-zero exit, stack-trace-like lines mean the
//     validator crashed; otherwise the run still counts as errors. Either
//     way the count is at least 1: a crashed or unparseable run must never
//     be indistinguishable from a clean workspace.
func ClassifyValidatorOutput(exitCode int, stdout string) Classification {
	if count, ok := summaryMarkerCount(stdout); ok {
		if count == 0 {
			return Classification{Outcome: OutcomeClean}
		}
		return Classification{Outcome: OutcomeErrors, ErrorCount: count}
	}

	errorLines := len(errorLineRe.FindAllString(stdout, -1))
	if exitCode == 0 {
		if errorLines > 0 {
			return Classification{Outcome: OutcomeErrors, ErrorCount: errorLines}
		}
		return Classification{Outcome: OutcomeClean}
	}

	count := errorLines
	if count < 1 {
		count = 1
	}
	if hasStackTraceLines(stdout) {
		return Classification{Outcome: OutcomeCrashed, ErrorCount: count}
	}
	return Classification{Outcome: OutcomeErrors, ErrorCount: count}
}

// ParseReport extracts per-file error counts from grep-style report lines.
// The returned total is the number of matched lines, which can be lower
// than a marker-reported count when output was truncated.
func ParseReport(stdout string) (map[string]int, int) {
	matches := errorLineRe.FindAllStringSubmatch(stdout, -1)
	if len(matches) == 0 {
		return nil, 0
	}
	perFile := make(map[string]int, len(matches))
	for _, m := range matches {
		perFile[m[1]]++
	}
	return perFile, len(matches)
}

func summaryMarkerCount(stdout string) (int, bool) {
	if m := summaryMarkerRe.FindStringSubmatch(stdout); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n, true
		}
	}
	if noErrorsRe.MatchString(stdout) {
		return 0, true
	}
	return 0, false
}

func hasStackTraceLines(stdout string) bool {
	for _, re := range stackLineRes {
		if re.MatchString(stdout) {
			return true
		}
	}
	return false
}
