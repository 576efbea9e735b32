package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// StateDir resolves the orchestrator state directory.
// Order of precedence:
// 1) CLI override (e.g. --state-dir)
// 2) Environment variable: POSTFLIGHT_STATE_DIR
// 3) config.yaml: state_dir
// 4) Default: ~/.config/postflight/state
// The directory is not created here; callers use EnsureStateDir.
func StateDir() (string, error) {
	dir, _, err := ResolveStateDirDetailed()
	return dir, err
}

// ResolveStateDirDetailed returns the state dir along with the source of that decision.
func ResolveStateDirDetailed() (dir string, source string, err error) {
	if override := getStateDirOverride(); override != "" {
		return override, "cli(--state-dir)", nil
	}

	if envDir := os.Getenv("POSTFLIGHT_STATE_DIR"); envDir != "" {
		return envDir, "env(POSTFLIGHT_STATE_DIR)", nil
	}

	cfg, err := LoadSettings()
	if err != nil {
		return "", "", fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.StateDir != "" {
		return cfg.StateDir, "config(state_dir)", nil
	}

	configDir, err := ConfigDir()
	if err != nil {
		return "", "", fmt.Errorf("failed to determine config directory: %w", err)
	}
	return filepath.Join(configDir, "state"), "default(~/.config/postflight/state)", nil
}

// EnsureStateDir creates the state directory tree and returns its root.
// Safe to call on every invocation; the hook path depends on it existing.
func EnsureStateDir() (string, error) {
	root, err := StateDir()
	if err != nil {
		return "", err
	}
	for _, sub := range []string{
		root,
		filepath.Join(root, "sessions"),
		filepath.Join(root, "summaries"),
		filepath.Join(root, "summaries", "archive"),
		filepath.Join(root, "reports"),
	} {
		if err := os.MkdirAll(sub, 0750); err != nil {
			return "", fmt.Errorf("failed to create state directory: %w", err)
		}
	}
	return root, nil
}

// Well-known paths inside the state dir. Only filename conventions live
// here; the packages that own each artifact do the reading and writing.

// EventLogPath is the append-only lifecycle event stream.
func EventLogPath(stateDir string) string {
	return filepath.Join(stateDir, "events.jsonl")
}

// SummariesDir holds pending session summaries awaiting the worker.
func SummariesDir(stateDir string) string {
	return filepath.Join(stateDir, "summaries")
}

// SummaryArchiveDir holds summaries the worker has already dispatched.
func SummaryArchiveDir(stateDir string) string {
	return filepath.Join(stateDir, "summaries", "archive")
}

// SessionsDir holds session-start observer records.
func SessionsDir(stateDir string) string {
	return filepath.Join(stateDir, "sessions")
}

// ReportsDir holds raw validator reports.
func ReportsDir(stateDir string) string {
	return filepath.Join(stateDir, "reports")
}
