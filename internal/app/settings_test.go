package app

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadSettings_PrefersUserConfigOverLocal(t *testing.T) {
	resetSettingsStateForTest()
	t.Cleanup(resetSettingsStateForTest)

	home := t.TempDir()
	t.Setenv("HOME", home)

	workdir := t.TempDir()
	oldwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(workdir))
	t.Cleanup(func() { _ = os.Chdir(oldwd) })

	userConfigPath := filepath.Join(home, ".config", "postflight", "config.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(userConfigPath), 0o755))
	require.NoError(t, os.WriteFile(userConfigPath, []byte("db_path: /tmp/from-user.db\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(workdir, "config.yaml"), []byte("db_path: /tmp/from-local.db\n"), 0o600))

	s, err := LoadSettings()
	require.NoError(t, err)
	require.Equal(t, "/tmp/from-user.db", s.DBPath)
}

func TestLoadSettings_FallsBackToLocalConfig(t *testing.T) {
	resetSettingsStateForTest()
	t.Cleanup(resetSettingsStateForTest)

	home := t.TempDir()
	t.Setenv("HOME", home)

	workdir := t.TempDir()
	oldwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(workdir))
	t.Cleanup(func() { _ = os.Chdir(oldwd) })

	require.NoError(t, os.WriteFile(filepath.Join(workdir, "config.yaml"), []byte("db_path: /tmp/from-local.db\n"), 0o600))

	s, err := LoadSettings()
	require.NoError(t, err)
	require.Equal(t, "/tmp/from-local.db", s.DBPath)
}

func TestLoadSettings_InvalidYAMLReturnsError(t *testing.T) {
	resetSettingsStateForTest()
	t.Cleanup(resetSettingsStateForTest)

	home := t.TempDir()
	t.Setenv("HOME", home)

	userConfigPath := filepath.Join(home, ".config", "postflight", "config.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(userConfigPath), 0o755))
	require.NoError(t, os.WriteFile(userConfigPath, []byte("db_path: ["), 0o600))

	_, err := LoadSettings()
	require.Error(t, err)
}

func TestLoadSettingsFile_ReadsValidatorFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := strings.Join([]string{
		"validator_command: lychee --no-progress",
		"validator_extensions: [\".md\", \".markdown\"]",
		"validator_timeout_seconds: 45",
		"validator_exclude_dirs: [node_modules, .direnv]",
		"",
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	s, err := loadSettingsFile(path)
	require.NoError(t, err)
	require.Equal(t, "lychee --no-progress", s.ValidatorCommand)
	require.Equal(t, []string{".md", ".markdown"}, s.ValidatorExtensions)
	require.Equal(t, 45, s.ValidatorTimeoutSeconds)
	require.Equal(t, []string{"node_modules", ".direnv"}, s.ValidatorExcludeDirs)
}

func TestEffectiveGuardSettings_DefaultsAndClamp(t *testing.T) {
	resetSettingsStateForTest()
	t.Cleanup(resetSettingsStateForTest)

	home := t.TempDir()
	t.Setenv("HOME", home)

	// No config file: defaults
	cfg := EffectiveGuardSettings()
	require.Equal(t, 600*time.Second, cfg.StalenessWindow)

	// Out-of-range config values should be clamped
	userConfigPath := filepath.Join(home, ".config", "postflight", "config.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(userConfigPath), 0o755))
	require.NoError(t, os.WriteFile(userConfigPath, []byte("marker_staleness_seconds: 999999\n"), 0o600))

	resetSettingsStateForTest()
	cfg = EffectiveGuardSettings()
	require.Equal(t, 24*time.Hour, cfg.StalenessWindow)

	require.NoError(t, os.WriteFile(userConfigPath, []byte("marker_staleness_seconds: 1\n"), 0o600))
	resetSettingsStateForTest()
	cfg = EffectiveGuardSettings()
	require.Equal(t, 10*time.Second, cfg.StalenessWindow)
}

func TestEffectiveValidatorSettings_DefaultsAndOverrides(t *testing.T) {
	resetSettingsStateForTest()
	t.Cleanup(resetSettingsStateForTest)

	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg := EffectiveValidatorSettings()
	require.Equal(t, "linkcheck", cfg.Command)
	require.Equal(t, []string{".md"}, cfg.Extensions)
	require.Equal(t, 120*time.Second, cfg.Timeout)
	require.Contains(t, cfg.ExcludeDirs, "node_modules")
	require.Contains(t, cfg.ExcludeDirs, ".git")

	userConfigPath := filepath.Join(home, ".config", "postflight", "config.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(userConfigPath), 0o755))
	require.NoError(t, os.WriteFile(userConfigPath, []byte(strings.Join([]string{
		"validator_command: mdcheck",
		"validator_timeout_seconds: 1",
		"",
	}, "\n")), 0o600))

	resetSettingsStateForTest()
	cfg = EffectiveValidatorSettings()
	require.Equal(t, "mdcheck", cfg.Command)
	require.Equal(t, 5*time.Second, cfg.Timeout) // clamped low bound
}

func TestEffectiveWorkerSettings_DefaultsAndClamp(t *testing.T) {
	resetSettingsStateForTest()
	t.Cleanup(resetSettingsStateForTest)

	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg := EffectiveWorkerSettings()
	require.Equal(t, 15*time.Second, cfg.PollInterval)
	require.Equal(t, 5*time.Second, cfg.GracefulStopTimeout)
	require.Empty(t, cfg.NotifyCommand)
	require.Equal(t, 14, cfg.SummaryRetentionDays)
	require.Equal(t, 7, cfg.SessionRetentionDays)
	require.Equal(t, 7, cfg.ReportRetentionDays)

	userConfigPath := filepath.Join(home, ".config", "postflight", "config.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(userConfigPath), 0o755))
	require.NoError(t, os.WriteFile(userConfigPath, []byte(strings.Join([]string{
		"notify_command: notify-send postflight",
		"worker_poll_seconds: 99999",
		"worker_graceful_stop_seconds: 99999",
		"summary_retention_days: 9999",
		"",
	}, "\n")), 0o600))

	resetSettingsStateForTest()
	cfg = EffectiveWorkerSettings()
	require.Equal(t, "notify-send postflight", cfg.NotifyCommand)
	require.Equal(t, 10*time.Minute, cfg.PollInterval)
	require.Equal(t, time.Minute, cfg.GracefulStopTimeout)
	require.Equal(t, 365, cfg.SummaryRetentionDays)
}

func TestResolveStateDirDetailed_Precedence(t *testing.T) {
	resetSettingsStateForTest()
	t.Cleanup(resetSettingsStateForTest)

	home := t.TempDir()
	t.Setenv("HOME", home)

	// Default
	dir, source, err := ResolveStateDirDetailed()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".config", "postflight", "state"), dir)
	require.Equal(t, "default(~/.config/postflight/state)", source)

	// Env beats default
	envDir := filepath.Join(home, "env-state")
	t.Setenv("POSTFLIGHT_STATE_DIR", envDir)
	dir, source, err = ResolveStateDirDetailed()
	require.NoError(t, err)
	require.Equal(t, envDir, dir)
	require.Equal(t, "env(POSTFLIGHT_STATE_DIR)", source)

	// CLI override beats env
	cliDir := filepath.Join(home, "cli-state")
	SetStateDirOverride(cliDir)
	dir, source, err = ResolveStateDirDetailed()
	require.NoError(t, err)
	require.Equal(t, cliDir, dir)
	require.Equal(t, "cli(--state-dir)", source)
}

func TestEnsureStateDir_CreatesTree(t *testing.T) {
	resetSettingsStateForTest()
	t.Cleanup(resetSettingsStateForTest)

	base := t.TempDir()
	SetStateDirOverride(filepath.Join(base, "state"))

	root, err := EnsureStateDir()
	require.NoError(t, err)
	require.DirExists(t, root)
	require.DirExists(t, SummariesDir(root))
	require.DirExists(t, SummaryArchiveDir(root))
	require.DirExists(t, SessionsDir(root))
	require.DirExists(t, ReportsDir(root))
}
