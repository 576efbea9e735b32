// Package gitinfo captures a degradation-friendly snapshot of the workspace
// repository for session summaries. Every git failure downgrades the
// affected fields to sentinels; nothing here ever aborts the hook flow.
package gitinfo

import (
	"errors"
	"os/exec"
	"strconv"
	"strings"

	"github.com/dotcommander/postflight/internal/models"
)

// Runner executes a git command and returns its output.
// This abstraction allows mocking in tests.
type Runner func(workDir string, args ...string) (string, error)

// Collector collects git repository state for one workspace.
type Collector struct {
	WorkDir string
	Runner  Runner // if nil, uses the real git subprocess
}

// defaultRunner runs git as a real subprocess.
func defaultRunner(workDir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = workDir
	out, err := cmd.Output()
	return string(out), err
}

// Collect returns the git status snapshot plus the repository root.
// A non-repository workspace yields the all-sentinel snapshot: branch and
// root "unknown", every count zero.
func (c *Collector) Collect() (models.GitStatus, string) {
	runner := c.Runner
	if runner == nil {
		runner = defaultRunner
	}

	status := models.GitStatus{Branch: models.UnknownBranch}
	root := models.UnknownBranch

	// Branch lookup doubles as the "is this a git repo?" check (exit 128).
	branch, err := runner(c.WorkDir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return status, root
	}
	if b := strings.TrimSpace(branch); b != "" {
		status.Branch = b
	}

	if out, err := runner(c.WorkDir, "rev-parse", "--show-toplevel"); err == nil {
		if r := strings.TrimSpace(out); r != "" {
			root = r
		}
	}

	if out, err := runner(c.WorkDir, "status", "--porcelain"); err == nil {
		status.PorcelainLines = splitPorcelain(out)
		status.StagedCount, status.ModifiedCount, status.UntrackedCount = countPorcelain(status.PorcelainLines)
	}

	// No upstream (or detached HEAD) leaves ahead/behind at zero.
	if out, err := runner(c.WorkDir, "rev-list", "--left-right", "--count", "@{upstream}...HEAD"); err == nil {
		status.Behind, status.Ahead = parseAheadBehind(out)
	}

	return status, root
}

// IsRepository reports whether the collector's workdir is inside a git
// work tree. Exit code 128 is git's "not a repository".
func (c *Collector) IsRepository() bool {
	runner := c.Runner
	if runner == nil {
		runner = defaultRunner
	}
	_, err := runner(c.WorkDir, "rev-parse", "--abbrev-ref", "HEAD")
	return err == nil || !isExitCode128(err)
}

// isExitCode128 reports whether err is an *exec.ExitError with exit code 128.
func isExitCode128(err error) bool {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode() == 128
	}
	return false
}

// splitPorcelain splits `git status --porcelain` output into its lines,
// discarding empties.
func splitPorcelain(output string) []string {
	lines := strings.Split(output, "\n")
	result := make([]string, 0, len(lines))
	for _, l := range lines {
		if l != "" {
			result = append(result, l)
		}
	}
	return result
}

// countPorcelain tallies porcelain v1 XY status codes.
// Column X is the index state, column Y the work tree; "??" is untracked.
func countPorcelain(lines []string) (staged, modified, untracked int) {
	for _, l := range lines {
		if len(l) < 2 {
			continue
		}
		x, y := l[0], l[1]
		if x == '?' && y == '?' {
			untracked++
			continue
		}
		if x != ' ' && x != '?' {
			staged++
		}
		if y != ' ' && y != '?' {
			modified++
		}
	}
	return staged, modified, untracked
}

// parseAheadBehind parses `rev-list --left-right --count upstream...HEAD`
// output: "<behind>\t<ahead>".
func parseAheadBehind(output string) (behind, ahead int) {
	fields := strings.Fields(strings.TrimSpace(output))
	if len(fields) != 2 {
		return 0, 0
	}
	behind, _ = strconv.Atoi(fields[0])
	ahead, _ = strconv.Atoi(fields[1])
	return behind, ahead
}
