package commands

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dotcommander/postflight/internal/app"
	"github.com/dotcommander/postflight/internal/commands/hookcmd"
	"github.com/dotcommander/postflight/internal/evlog"
	"github.com/dotcommander/postflight/internal/gitinfo"
	"github.com/dotcommander/postflight/internal/guard"
	"github.com/dotcommander/postflight/internal/models"
	"github.com/dotcommander/postflight/internal/sessions"
	"github.com/dotcommander/postflight/internal/statestore"
	"github.com/dotcommander/postflight/internal/summary"
	"github.com/dotcommander/postflight/internal/transcript"
	"github.com/dotcommander/postflight/internal/validate"
	"github.com/dotcommander/postflight/internal/worker"
)

// maxHookStdinBytes caps stdin reads. Hook payloads are small JSON objects;
// 1 MB is generous headroom that prevents unbounded allocation.
const maxHookStdinBytes = 1 << 20

// NewHookCmd creates the hook parent command.
func NewHookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hook",
		Short: "Hook handlers and installers for Claude Code",
		Args:  cobra.NoArgs,
	}

	cmd.AddCommand(hookcmd.NewInstallCmd())
	cmd.AddCommand(hookcmd.NewUninstallCmd())
	cmd.AddCommand(hookcmd.NewStatusCmd())

	// Hook handler subcommands — called by the host, not operators directly.
	// Hidden from help output to reduce command surface noise.
	for _, sub := range []*cobra.Command{
		newHookStopCmd(),
		newHookSessionStartCmd(),
		newHookScanCmd(),
	} {
		sub.Hidden = true
		cmd.AddCommand(sub)
	}

	return cmd
}

// hookInput is the JSON Claude Code sends on stdin to hooks. Every field is
// optional; a missing field is unset, never an error.
type hookInput struct {
	SessionID         string         `json:"session_id"`
	TranscriptPath    string         `json:"transcript_path"`
	CWD               string         `json:"cwd"`
	StopHookActive    bool           `json:"stop_hook_active"`
	HookEventName     string         `json:"hook_event_name"`
	ModifiedFilePaths []string       `json:"modified_file_paths"`
	Raw               map[string]any `json:"-"`
}

// hookBlockOutput is the veto response. Emitted on stdout only when the stop
// is blocked; an allowed stop produces no stdout at all.
type hookBlockOutput struct {
	Decision      string `json:"decision"`
	Reason        string `json:"reason"`
	SystemMessage string `json:"systemMessage,omitempty"`
}

func readHookStdin() hookInput {
	data, err := io.ReadAll(io.LimitReader(os.Stdin, maxHookStdinBytes))
	if err != nil {
		return hookInput{}
	}
	var input hookInput
	if err := json.Unmarshal(data, &input); err != nil {
		slog.Default().Warn("hook stdin unmarshal failed", "error", err, "bytes", len(data))
	}
	// Intentional double-unmarshal: struct tags handle known fields while
	// the Raw map preserves unknown fields for diagnostics/debugging.
	// Hook payloads are <1 KB so the cost is negligible.
	var raw map[string]any
	_ = json.Unmarshal(data, &raw)
	input.Raw = raw
	return input
}

// hookContext is the resolved per-invocation state shared by the handlers.
type hookContext struct {
	Input         hookInput
	CWD           string
	CorrelationID string
	StateDir      string
	WorkspaceHash string
	Events        *evlog.Logger
	Store         statestore.Store
}

// resolveHookContext reads stdin and prepares the state dir and event logger.
// Failure to prepare state means the hook cannot do anything useful; callers
// log and exit clean.
func resolveHookContext() (hookContext, error) {
	input := readHookStdin()
	cwd := input.CWD
	if cwd == "" {
		cwd, _ = os.Getwd()
	}

	stateDir, err := app.EnsureStateDir()
	if err != nil {
		return hookContext{}, err
	}

	correlationID := uuid.NewString()
	hash := app.WorkspaceHash(cwd)
	return hookContext{
		Input:         input,
		CWD:           cwd,
		CorrelationID: correlationID,
		StateDir:      stateDir,
		WorkspaceHash: hash,
		Events:        evlog.New(app.EventLogPath(stateDir), correlationID, hash, input.SessionID),
		Store:         statestore.NewFileStore(stateDir),
	}, nil
}

// newHookStopCmd creates the Stop hook handler: guard, two-tier validation,
// summary, worker handoff. Exit code is always 0 — the only blocking channel
// is the veto JSON on stdout.
func newHookStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "stop",
		Short:         "Stop hook — orchestrates the session-stop pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Hooks must never block Claude Code — every failure below
			// degrades to an allow with a diagnostic.
			hctx, err := resolveHookContext()
			if err != nil {
				slog.Default().Error("stop hook state dir unavailable", "error", err)
				return nil
			}

			hctx.Events.Emit(models.ComponentHook, models.EventHookStarted, map[string]any{
				"hook_event": hctx.Input.HookEventName,
				"cwd":        hctx.CWD,
			})

			g := guard.New(hctx.Store, app.EffectiveGuardSettings().StalenessWindow, hctx.Events)
			if dec := g.Evaluate(hctx.Input.StopHookActive); dec.ShortCircuit {
				hctx.Events.Emit(models.ComponentGuard, models.EventHookSkippedLoopPrevention, map[string]any{
					"reason": dec.Reason,
				})
				return nil
			}

			tinfo, terr := transcript.Read(hctx.Input.TranscriptPath)
			if terr != nil {
				slog.Default().Warn("transcript unreadable", "path", hctx.Input.TranscriptPath, "error", terr)
			}

			// Tier 1 runs in a detached process so the full-workspace scan
			// cannot eat into the hook's timeout budget.
			spawnDetachedScan(hctx)

			// Tier 2 runs synchronously: only the session's modified files,
			// and only its verdict may veto the stop.
			modified := hctx.Input.ModifiedFilePaths
			if len(modified) == 0 {
				modified = tinfo.ModifiedFiles
			}
			validation, blocked := runTier2(hctx, modified)
			if blocked != nil {
				hctx.Events.Emit(models.ComponentValidation, models.EventValidationTier2Blocked, map[string]any{
					"error_count": blocked.ErrorCount,
					"files":       len(modified),
				})
				out := hookBlockOutput{
					Decision:      models.HookDecisionBlock,
					Reason:        blocked.Reason,
					SystemMessage: blocked.SystemMessage,
				}
				return json.NewEncoder(os.Stdout).Encode(out)
			}

			writeSummaryAndEnsureWorker(hctx, tinfo, validation, len(modified))

			hctx.Events.Emit(models.ComponentHook, models.EventHookCompleted, nil)
			return nil
		},
	}
}

// runTier2 validates the modified set. Any infrastructure failure degrades to
// "no veto": a broken validator must not wedge the host.
func runTier2(hctx hookContext, modified []string) (models.ValidationResult, *validate.BlockDecision) {
	if len(modified) == 0 {
		return models.ValidationResult{}, nil
	}

	settings := app.EffectiveValidatorSettings()
	sched := validate.NewScheduler(settings, hctx.CWD, app.ReportsDir(hctx.StateDir), hctx.Events)

	ctx, cancel := context.WithTimeout(context.Background(), settings.Timeout+5*time.Second)
	defer cancel()

	vr, blocked, err := sched.RunTier2(ctx, hctx.Input.SessionID, hctx.WorkspaceHash, modified)
	if err != nil {
		slog.Default().Warn("tier2 validation unavailable", "error", err)
		return models.ValidationResult{}, nil
	}
	if blocked == nil && vr.Ran {
		hctx.Events.Emit(models.ComponentValidation, models.EventValidationTier2Clear, map[string]any{
			"error_count": vr.ErrorCount,
			"files":       len(modified),
		})
	}
	return vr, blocked
}

// writeSummaryAndEnsureWorker persists the session summary and hands off to
// the worker. Each step degrades independently.
func writeSummaryAndEnsureWorker(hctx hookContext, tinfo transcript.Info, validation models.ValidationResult, modifiedCount int) {
	collector := &gitinfo.Collector{WorkDir: hctx.CWD}
	git, repoRoot := collector.Collect()

	sessStore := sessions.NewStore(app.SessionsDir(hctx.StateDir))
	s := summary.Build(summary.BuildInput{
		CorrelationID:       hctx.CorrelationID,
		SessionID:           hctx.Input.SessionID,
		WorkspacePath:       hctx.CWD,
		RepositoryRoot:      repoRoot,
		WorkingDirectory:    hctx.CWD,
		LastUserPrompt:      tinfo.LastUserPrompt,
		LastResponseExcerpt: tinfo.LastResponseExcerpt,
		DurationSeconds:     sessStore.DurationSeconds(hctx.Input.SessionID, time.Now()),
		Git:                 git,
		Validation:          validation,
		ModifiedFileCount:   modifiedCount,
	}, time.Now())

	path, err := summary.Persist(app.SummariesDir(hctx.StateDir), s)
	if err != nil {
		slog.Default().Error("summary persist failed", "error", err)
	} else {
		hctx.Events.Emit(models.ComponentSummary, models.EventSummaryWritten, map[string]any{
			"path": path,
		})
	}

	sup := worker.NewSupervisor(hctx.Store, hctx.Events)
	res, err := sup.EnsureRunning()
	if err != nil {
		slog.Default().Error("worker ensure failed", "error", err)
		return
	}
	hctx.Events.Emit(models.ComponentSupervisor, models.EventWorkerEnsured, map[string]any{
		"started": res.Started,
		"pid":     res.PID,
	})
}

// spawnDetachedScan re-executes the binary as "hook scan" in its own session
// with /dev/null stdio. The scan's lifetime is independent of the hook's, and
// nothing it prints can contaminate the hook's stdout protocol.
func spawnDetachedScan(hctx hookContext) {
	exe, err := os.Executable()
	if err != nil {
		slog.Default().Warn("scan spawn skipped, executable unknown", "error", err)
		return
	}

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		slog.Default().Warn("scan spawn skipped", "error", err)
		return
	}
	defer func() { _ = devNull.Close() }()

	cmd := exec.Command(exe, "hook", "scan", //nolint:gosec // G204: re-exec of our own binary
		"--state-dir", hctx.StateDir,
		"--session-id", hctx.Input.SessionID,
		"--cwd", hctx.CWD,
		"--correlation-id", hctx.CorrelationID,
	)
	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = devNull
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		slog.Default().Warn("scan spawn failed", "error", err)
		return
	}
	pid := cmd.Process.Pid
	_ = cmd.Process.Release()

	hctx.Events.Emit(models.ComponentValidation, models.EventValidationTier1Started, map[string]any{
		"pid": pid,
	})
}

// newHookSessionStartCmd creates the SessionStart observer. It records the
// wall-clock start so the stop summary can report a duration. Nothing here
// gates the host: failures log and exit clean.
func newHookSessionStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "session-start",
		Short:         "SessionStart hook — records the session start time",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			hctx, err := resolveHookContext()
			if err != nil {
				slog.Default().Error("session-start hook state dir unavailable", "error", err)
				return nil
			}
			if hctx.Input.SessionID == "" {
				return nil
			}

			sessStore := sessions.NewStore(app.SessionsDir(hctx.StateDir))
			if err := sessStore.RecordStart(hctx.Input.SessionID, hctx.CWD, time.Now()); err != nil {
				slog.Default().Error("session start record failed", "error", err)
				return nil
			}
			hctx.Events.Emit(models.ComponentSession, models.EventSessionStarted, map[string]any{
				"cwd": hctx.CWD,
			})
			return nil
		},
	}
}

// newHookScanCmd is the Tier 1 background scan entry point. It runs in the
// process spawned by the stop handler, validates the whole workspace, and
// rewrites the validation field of the session's summary.
func newHookScanCmd() *cobra.Command {
	var (
		sessionID     string
		cwd           string
		correlationID string
	)

	cmd := &cobra.Command{
		Use:           "scan",
		Short:         "Background full-workspace validation scan",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			stateDir, err := app.EnsureStateDir()
			if err != nil {
				slog.Default().Error("scan state dir unavailable", "error", err)
				return nil
			}
			if cwd == "" {
				cwd, _ = os.Getwd()
			}
			if correlationID == "" {
				correlationID = uuid.NewString()
			}

			hash := app.WorkspaceHash(cwd)
			events := evlog.New(app.EventLogPath(stateDir), correlationID, hash, sessionID)
			settings := app.EffectiveValidatorSettings()
			sched := validate.NewScheduler(settings, cwd, app.ReportsDir(stateDir), events)

			summaryPath := filepath.Join(app.SummariesDir(stateDir), summary.FileName(sessionID, hash))

			ctx, cancel := context.WithTimeout(context.Background(), settings.Timeout+30*time.Second)
			defer cancel()

			if _, err := sched.RunTier1Scan(ctx, sessionID, hash, summaryPath); err != nil {
				// The scan is advisory; a failure costs a summary field.
				slog.Default().Warn("tier1 scan failed", "error", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session-id", "", "Session the scan belongs to")
	cmd.Flags().StringVar(&cwd, "cwd", "", "Workspace to scan")
	cmd.Flags().StringVar(&correlationID, "correlation-id", "", "Correlation id inherited from the stop hook")

	return cmd
}
