package app

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
)

// ConfigDir returns ~/.config/postflight/ on all platforms.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "postflight"), nil
}

// EnsureConfigDir creates the config directory and default config.yaml if missing.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return err
	}

	configFile := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		return os.WriteFile(configFile, []byte(defaultConfig), 0600)
	}
	return nil
}

const defaultConfig = `# postflight configuration
# Run: postflight --help

# Optional: override the SQLite history database location.
# Can also be set via POSTFLIGHT_DB_PATH or --db-path.
# db_path: ~/.config/postflight/postflight.db

# Optional: override the state directory (markers, pid files, summaries).
# Can also be set via POSTFLIGHT_STATE_DIR or --state-dir.
# state_dir: ~/.config/postflight/state

# Loop-prevention marker staleness window in seconds (default 600).
# marker_staleness_seconds: 600

# External validator invoked by the two validation tiers.
# validator_command: linkcheck
# validator_extensions: [".md"]
# validator_timeout_seconds: 120
# validator_exclude_dirs: [node_modules, .git, vendor, dist, build, .cache, target]

# Command the notification worker runs per session summary; the summary
# path is appended as the final argument. Empty disables dispatch.
# notify_command: ""

# Worker sweep interval and graceful stop timeout, in seconds.
# worker_poll_seconds: 15
# worker_graceful_stop_seconds: 5

# Retention windows for worker pruning, in days.
# summary_retention_days: 14
# session_retention_days: 7
# report_retention_days: 7
`

// WorkspaceHash derives the short identity hash used to scope on-disk
// artifacts to one workspace. Summary and report filenames embed it so
// concurrently open workspaces never collide in a shared state dir.
func WorkspaceHash(workspacePath string) string {
	abs, err := filepath.Abs(workspacePath)
	if err != nil {
		abs = workspacePath
	}
	sum := sha256.Sum256([]byte(abs))
	return hex.EncodeToString(sum[:])[:12]
}

// SanitizeSessionID maps an arbitrary session identifier onto a string safe
// to embed in filenames: [a-zA-Z0-9_-] passes through, everything else
// becomes "_", capped at 64 bytes. Empty input yields "session".
func SanitizeSessionID(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := b.String()
	if len(out) > 64 {
		out = out[:64]
	}
	if out == "" {
		return "session"
	}
	return out
}
