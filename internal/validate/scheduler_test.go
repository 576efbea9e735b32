package validate

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/dotcommander/postflight/internal/app"
	"github.com/dotcommander/postflight/internal/evlog"
	"github.com/dotcommander/postflight/internal/models"
	"github.com/dotcommander/postflight/internal/summary"
)

type fakeRunner struct {
	res      RunResult
	err      error
	called   bool
	gotPaths []string
}

func (f *fakeRunner) Run(_ context.Context, paths []string) (RunResult, error) {
	f.called = true
	f.gotPaths = paths
	return f.res, f.err
}

func newTestScheduler(t *testing.T, fake *fakeRunner) (*Scheduler, string) {
	t.Helper()
	workDir := t.TempDir()
	stateDir := t.TempDir()
	s := &Scheduler{
		Settings: app.ValidatorSettings{
			Command:     "linkcheck",
			Extensions:  []string{".md"},
			ExcludeDirs: []string{"node_modules", ".git", "vendor"},
		},
		WorkDir:    workDir,
		ReportsDir: filepath.Join(stateDir, "reports"),
		Events:     evlog.New(filepath.Join(stateDir, "events.jsonl"), "corr-1", "hash12", "sess-1"),
		runner:     fake,
	}
	return s, stateDir
}

func readEventNames(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec models.EventLogRecord
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		names = append(names, rec.EventName)
	}
	require.NoError(t, scanner.Err())
	return names
}

func TestTier2BlocksOnModifiedFileErrors(t *testing.T) {
	fake := &fakeRunner{res: RunResult{
		ExitCode: 1,
		Output:   "README.md:3: broken link\nREADME.md:9: bad anchor\ndocs/other.md:2: dead target\n3 errors found\n",
	}}
	s, _ := newTestScheduler(t, fake)

	vr, dec, err := s.RunTier2(context.Background(), "sess-1", "hash12", []string{"README.md", "notes.txt"})
	require.NoError(t, err)

	// Only the .md file reaches the validator.
	require.Equal(t, []string{"README.md"}, fake.gotPaths)

	require.True(t, vr.Ran)
	require.Equal(t, 3, vr.ErrorCount)

	// The veto counts errors in exactly the modified set, not the whole
	// report: docs/other.md was not modified this session.
	require.NotNil(t, dec)
	require.Equal(t, 2, dec.ErrorCount)
	require.Contains(t, dec.Reason, "2 validation error(s)")
	require.Contains(t, dec.SystemMessage, "2")
	require.Contains(t, dec.RawOutput, "README.md:3")

	// Raw report lands on disk and the result references it.
	require.Contains(t, vr.RawReportRef, "tier2")
	data, err := os.ReadFile(vr.RawReportRef)
	require.NoError(t, err)
	require.Equal(t, fake.res.Output, string(data))
}

func TestTier2MatchesRelativeReportPathsAgainstAbsoluteModifiedPaths(t *testing.T) {
	fake := &fakeRunner{res: RunResult{
		ExitCode: 1,
		Output:   "README.md:1: broken\n1 error found\n",
	}}
	s, _ := newTestScheduler(t, fake)

	modified := []string{filepath.Join(s.WorkDir, "README.md")}
	_, dec, err := s.RunTier2(context.Background(), "sess-1", "hash12", modified)
	require.NoError(t, err)
	require.NotNil(t, dec)
	require.Equal(t, 1, dec.ErrorCount)
}

func TestTier2CleanRunAllowsStop(t *testing.T) {
	fake := &fakeRunner{res: RunResult{ExitCode: 0, Output: "0 errors found\n"}}
	s, _ := newTestScheduler(t, fake)

	vr, dec, err := s.RunTier2(context.Background(), "sess-1", "hash12", []string{"README.md"})
	require.NoError(t, err)
	require.Nil(t, dec)
	require.True(t, vr.Ran)
	require.Equal(t, 0, vr.ErrorCount)
}

func TestTier2SkipsWhenNoEligibleFiles(t *testing.T) {
	fake := &fakeRunner{}
	s, _ := newTestScheduler(t, fake)

	vr, dec, err := s.RunTier2(context.Background(), "sess-1", "hash12", []string{"main.go", "img.png"})
	require.NoError(t, err)
	require.Nil(t, dec)
	require.False(t, vr.Ran)
	require.False(t, fake.called)
}

func TestTier2CrashNeverVetoes(t *testing.T) {
	fake := &fakeRunner{res: RunResult{
		ExitCode: 2,
		Output:   "panic: boom\ngoroutine 7 [running]:\n",
	}}
	s, _ := newTestScheduler(t, fake)

	vr, dec, err := s.RunTier2(context.Background(), "sess-1", "hash12", []string{"README.md"})
	require.NoError(t, err)
	require.Nil(t, dec, "a crashed validator is an environment anomaly, not a veto")
	require.Equal(t, 1, vr.ErrorCount, "the crash still surfaces as a non-zero count")
}

func TestTier2MarkerOnlyReportStillBlocks(t *testing.T) {
	fake := &fakeRunner{res: RunResult{ExitCode: 1, Output: "2 errors found\n"}}
	s, _ := newTestScheduler(t, fake)

	_, dec, err := s.RunTier2(context.Background(), "sess-1", "hash12", []string{"README.md"})
	require.NoError(t, err)
	require.NotNil(t, dec)
	require.Equal(t, 2, dec.ErrorCount)
}

func TestTier2LaunchFailurePropagates(t *testing.T) {
	fake := &fakeRunner{err: errors.New("launch validator: not found")}
	s, _ := newTestScheduler(t, fake)

	_, dec, err := s.RunTier2(context.Background(), "sess-1", "hash12", []string{"README.md"})
	require.Error(t, err)
	require.Nil(t, dec)
}

func TestTier1ScanWritesReportAndSummaryStub(t *testing.T) {
	fake := &fakeRunner{res: RunResult{
		ExitCode: 1,
		Output:   "README.md:1: broken\n1 error found\n",
	}}
	s, stateDir := newTestScheduler(t, fake)

	writeTree(t, s.WorkDir, []string{"README.md", "docs/a.md", "node_modules/skip.md"})
	summaryPath := filepath.Join(stateDir, "summaries", summary.FileName("sess-1", "hash12"))
	require.NoError(t, os.MkdirAll(filepath.Dir(summaryPath), 0o750))

	vr, err := s.RunTier1Scan(context.Background(), "sess-1", "hash12", summaryPath)
	require.NoError(t, err)

	// Discovery excluded node_modules and passed the rest, sorted.
	require.Equal(t, []string{
		filepath.Join(s.WorkDir, "README.md"),
		filepath.Join(s.WorkDir, "docs", "a.md"),
	}, fake.gotPaths)

	require.Equal(t, 1, vr.ErrorCount)
	require.Contains(t, vr.RawReportRef, "tier1")

	// No summary existed, so the scan left a stub carrying its result.
	stub, err := summary.ReadFile(summaryPath)
	require.NoError(t, err)
	require.Equal(t, "sess-1", stub.SessionID)
	require.Equal(t, 1, stub.Validation.ErrorCount)
	require.Equal(t, models.UnknownBranch, stub.GitStatus.Branch)

	names := readEventNames(t, filepath.Join(stateDir, "events.jsonl"))
	require.Contains(t, names, models.EventValidationTier1Complete)
}

func TestTier1ScanUpdatesExistingSummaryInPlace(t *testing.T) {
	fake := &fakeRunner{res: RunResult{ExitCode: 0, Output: "0 errors found\n"}}
	s, stateDir := newTestScheduler(t, fake)

	writeTree(t, s.WorkDir, []string{"README.md"})

	summaryPath := filepath.Join(stateDir, "summaries", summary.FileName("sess-1", "hash12"))
	require.NoError(t, os.MkdirAll(filepath.Dir(summaryPath), 0o750))
	existing := models.SessionSummary{
		SessionID:      "sess-1",
		LastUserPrompt: "fix the docs",
		Validation:     models.ValidationResult{Ran: true, ErrorCount: 7},
	}
	require.NoError(t, summary.WriteFile(summaryPath, existing))

	_, err := s.RunTier1Scan(context.Background(), "sess-1", "hash12", summaryPath)
	require.NoError(t, err)

	got, err := summary.ReadFile(summaryPath)
	require.NoError(t, err)
	require.Equal(t, "fix the docs", got.LastUserPrompt, "non-validation fields survive the rewrite")
	require.Equal(t, 0, got.Validation.ErrorCount, "the scan result replaces the validation field unconditionally")
	require.True(t, got.Validation.Ran)
}

func TestSumForPaths(t *testing.T) {
	perFile := map[string]int{
		"README.md":      2,
		"docs/other.md":  1,
		"/w/abs/deep.md": 4,
	}

	total, files := sumForPaths(perFile, []string{"/w/README.md", "/w/abs/deep.md", "/w/clean.md"}, "/w")
	require.Equal(t, 6, total)
	require.Equal(t, []string{"/w/README.md", "/w/abs/deep.md"}, files)

	total, files = sumForPaths(nil, []string{"/w/README.md"}, "/w")
	require.Equal(t, 0, total)
	require.Nil(t, files)
}

func TestTruncateRunes(t *testing.T) {
	out, truncated := truncateRunes(strings.Repeat("é", 10), 4)
	require.True(t, truncated)
	require.Equal(t, "éééé", out)

	out, truncated = truncateRunes("short", 100)
	require.False(t, truncated)
	require.Equal(t, "short", out)
}

func TestTruncateRunesProperties(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		raw := rapid.String().Draw(rt, "raw")
		max := rapid.IntRange(1, 64).Draw(rt, "max")

		out, truncated := truncateRunes(raw, max)
		require.True(t, utf8.ValidString(out))
		if truncated {
			require.Equal(t, max, len([]rune(out)))
			require.Greater(t, len([]rune(raw)), max)
		} else {
			require.Equal(t, raw, out)
		}
	})
}
