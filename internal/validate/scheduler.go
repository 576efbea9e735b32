package validate

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dotcommander/postflight/internal/app"
	"github.com/dotcommander/postflight/internal/evlog"
	"github.com/dotcommander/postflight/internal/models"
	"github.com/dotcommander/postflight/internal/summary"
)

// commandRunner lets tests substitute the external validator.
type commandRunner interface {
	Run(ctx context.Context, paths []string) (RunResult, error)
}

// Scheduler owns both validation tiers for one workspace.
type Scheduler struct {
	Settings   app.ValidatorSettings
	WorkDir    string
	ReportsDir string
	Events     *evlog.Logger

	runner commandRunner
}

// NewScheduler wires a Scheduler to the real validator binary.
func NewScheduler(settings app.ValidatorSettings, workDir, reportsDir string, events *evlog.Logger) *Scheduler {
	return &Scheduler{
		Settings:   settings,
		WorkDir:    workDir,
		ReportsDir: reportsDir,
		Events:     events,
		runner: &Runner{
			Command: settings.Command,
			Dir:     workDir,
			Timeout: settings.Timeout,
		},
	}
}

// BlockDecision is the veto produced when modified files carry errors.
// Surfacing it to the host is the hook layer's job.
type BlockDecision struct {
	Reason        string
	SystemMessage string
	RawOutput     string
	ErrorCount    int
}

type runOutcome struct {
	validation models.ValidationResult
	class      Classification
	raw        string
	exitCode   int
}

// Validate invokes the external validator over paths and derives a
// ValidationResult. It fails only when the validator cannot be launched at
// all; a non-zero exit carrying a report is a normal "errors found" result.
func (s *Scheduler) Validate(ctx context.Context, paths []string) (models.ValidationResult, error) {
	out, err := s.run(ctx, paths)
	if err != nil {
		return models.ValidationResult{}, err
	}
	return out.validation, nil
}

func (s *Scheduler) run(ctx context.Context, paths []string) (runOutcome, error) {
	res, err := s.runner.Run(ctx, paths)
	if err != nil {
		return runOutcome{}, err
	}

	class := ClassifyValidatorOutput(res.ExitCode, res.Output)
	perFile, _ := ParseReport(res.Output)
	if class.Outcome == OutcomeCrashed {
		slog.Default().Warn("validator crashed",
			"exit_code", res.ExitCode,
			"synthesized_error_count", class.ErrorCount)
	}

	return runOutcome{
		validation: models.ValidationResult{
			Ran:                true,
			ErrorCount:         class.ErrorCount,
			PerFileErrorCounts: perFile,
		},
		class:    class,
		raw:      res.Output,
		exitCode: res.ExitCode,
	}, nil
}

// RunTier1Scan discovers every eligible file under the workspace, validates
// the full set, writes the raw report, and unconditionally rewrites the
// validation field of the session's summary. This executes inside the
// detached scan process, never inside the hook itself.
func (s *Scheduler) RunTier1Scan(ctx context.Context, sessionID, workspaceHash, summaryPath string) (models.ValidationResult, error) {
	files, err := Discover(s.WorkDir, s.Settings.Extensions, s.Settings.ExcludeDirs)
	if err != nil {
		return models.ValidationResult{}, fmt.Errorf("discover workspace files: %w", err)
	}

	out, err := s.run(ctx, files)
	if err != nil {
		return models.ValidationResult{}, err
	}
	vr := out.validation
	vr.RawReportRef = s.writeReport("tier1", sessionID, workspaceHash, out.raw)

	if err := s.updateSummaryValidation(summaryPath, sessionID, vr); err != nil {
		slog.Default().Warn("tier1 summary update failed", "path", summaryPath, "error", err)
	}

	s.Events.Emit(models.ComponentValidation, models.EventValidationTier1Complete, map[string]any{
		"files_scanned": len(files),
		"error_count":   vr.ErrorCount,
		"outcome":       out.class.Outcome.String(),
		"report":        vr.RawReportRef,
	})
	return vr, nil
}

// RunTier2 validates only the modified files carrying a validated extension.
// A nil BlockDecision means the stop is allowed. The blocking count sums
// reported errors across exactly the modified set; a validator crash is an
// environment anomaly and never vetoes.
func (s *Scheduler) RunTier2(ctx context.Context, sessionID, workspaceHash string, modified []string) (models.ValidationResult, *BlockDecision, error) {
	eligible := filterByExtension(modified, s.Settings.Extensions)
	if len(eligible) == 0 {
		return models.ValidationResult{}, nil, nil
	}

	out, err := s.run(ctx, eligible)
	if err != nil {
		return models.ValidationResult{}, nil, err
	}
	vr := out.validation
	vr.RawReportRef = s.writeReport("tier2", sessionID, workspaceHash, out.raw)

	if out.class.Outcome == OutcomeCrashed {
		return vr, nil, nil
	}

	blocked, blockedFiles := sumForPaths(vr.PerFileErrorCounts, eligible, s.WorkDir)
	if blocked == 0 && vr.ErrorCount > 0 && len(vr.PerFileErrorCounts) == 0 {
		// Marker-only report: the run was already restricted to the
		// modified set, so the marker count belongs to it entirely.
		blocked = vr.ErrorCount
		blockedFiles = eligible
	}
	if blocked == 0 {
		return vr, nil, nil
	}

	excerpt, _ := truncateRunes(strings.TrimSpace(out.raw), 2000)
	dec := &BlockDecision{
		Reason: fmt.Sprintf("%d validation error(s) in %d modified file(s):\n%s",
			blocked, len(blockedFiles), excerpt),
		SystemMessage: fmt.Sprintf("postflight blocked session stop: %d validation error(s) in modified files", blocked),
		RawOutput:     out.raw,
		ErrorCount:    blocked,
	}
	return vr, dec, nil
}

func (s *Scheduler) updateSummaryValidation(summaryPath, sessionID string, vr models.ValidationResult) error {
	existing, err := summary.ReadFile(summaryPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		// The scan outran the hook's own persist (or the stop was vetoed
		// and no summary was written). Leave a stub carrying the scan
		// result; a later persist for this session replaces it whole.
		existing = models.SessionSummary{
			SessionID:        sessionID,
			WorkspacePath:    s.WorkDir,
			WorkingDirectory: s.WorkDir,
			Timestamp:        time.Now().UTC(),
			GitStatus:        models.GitStatus{Branch: models.UnknownBranch},
			AvailableActions: []models.ActionDescriptor{},
		}
	}
	existing.Validation = vr
	return summary.WriteFile(summaryPath, existing)
}

func (s *Scheduler) writeReport(tier, sessionID, workspaceHash, raw string) string {
	if s.ReportsDir == "" {
		return ""
	}
	if err := os.MkdirAll(s.ReportsDir, 0o750); err != nil {
		slog.Default().Warn("report dir create failed", "dir", s.ReportsDir, "error", err)
		return ""
	}
	name := fmt.Sprintf("report_%s_%s_%s.txt", app.SanitizeSessionID(sessionID), workspaceHash, tier)
	path := filepath.Join(s.ReportsDir, name)
	if err := os.WriteFile(path, []byte(raw), 0o640); err != nil {
		slog.Default().Warn("report write failed", "path", path, "error", err)
		return ""
	}
	return path
}

// sumForPaths totals per-file error counts over exactly the given paths.
// Report paths may be workspace-relative while modified paths are absolute
// (or the reverse), so both sides are canonicalized before comparing.
func sumForPaths(perFile map[string]int, paths []string, workDir string) (int, []string) {
	if len(perFile) == 0 {
		return 0, nil
	}
	canon := make(map[string]int, len(perFile))
	for p, n := range perFile {
		canon[canonicalPath(workDir, p)] += n
	}

	total := 0
	var withErrors []string
	for _, p := range paths {
		if n := canon[canonicalPath(workDir, p)]; n > 0 {
			total += n
			withErrors = append(withErrors, p)
		}
	}
	return total, withErrors
}

func canonicalPath(workDir, p string) string {
	if !filepath.IsAbs(p) && workDir != "" {
		p = filepath.Join(workDir, p)
	}
	return filepath.Clean(p)
}

func truncateRunes(raw string, max int) (string, bool) {
	if max <= 0 {
		return raw, false
	}
	runes := []rune(raw)
	if len(runes) <= max {
		return raw, false
	}
	return string(runes[:max]), true
}
