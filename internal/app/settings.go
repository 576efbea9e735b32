package app

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings represents configuration loaded from config.yaml.
// Field names match snake_case YAML keys.
type Settings struct {
	DBPath   string `yaml:"db_path"`
	StateDir string `yaml:"state_dir"`

	MarkerStalenessSeconds int `yaml:"marker_staleness_seconds"`

	ValidatorCommand        string   `yaml:"validator_command"`
	ValidatorExtensions     []string `yaml:"validator_extensions"`
	ValidatorTimeoutSeconds int      `yaml:"validator_timeout_seconds"`
	ValidatorExcludeDirs    []string `yaml:"validator_exclude_dirs"`

	NotifyCommand             string `yaml:"notify_command"`
	NotifyTimeoutSeconds      int    `yaml:"notify_timeout_seconds"`
	WorkerPollSeconds         int    `yaml:"worker_poll_seconds"`
	WorkerGracefulStopSeconds int    `yaml:"worker_graceful_stop_seconds"`

	SummaryRetentionDays int `yaml:"summary_retention_days"`
	SessionRetentionDays int `yaml:"session_retention_days"`
	ReportRetentionDays  int `yaml:"report_retention_days"`
}

// GuardSettings are effective runtime values used by the loop-prevention guard.
type GuardSettings struct {
	StalenessWindow time.Duration `json:"staleness_window"`
}

// ValidatorSettings are effective runtime values for both validation tiers.
type ValidatorSettings struct {
	Command     string        `json:"command"`
	Extensions  []string      `json:"extensions"`
	Timeout     time.Duration `json:"timeout"`
	ExcludeDirs []string      `json:"exclude_dirs"`
}

// WorkerSettings are effective runtime values for the notification worker.
type WorkerSettings struct {
	PollInterval         time.Duration `json:"poll_interval"`
	GracefulStopTimeout  time.Duration `json:"graceful_stop_timeout"`
	NotifyCommand        string        `json:"notify_command,omitempty"`
	NotifyTimeout        time.Duration `json:"notify_timeout"`
	SummaryRetentionDays int           `json:"summary_retention_days"`
	SessionRetentionDays int           `json:"session_retention_days"`
	ReportRetentionDays  int           `json:"report_retention_days"`
}

const (
	defaultMarkerStalenessSeconds = 600
	defaultValidatorCommand       = "linkcheck"
	defaultValidatorTimeout       = 120 * time.Second
	defaultNotifyTimeout          = 30 * time.Second
	defaultWorkerPoll             = 15 * time.Second
	defaultWorkerGracefulStop     = 5 * time.Second
	defaultSummaryRetentionDays   = 14
	defaultSessionRetentionDays   = 7
	defaultReportRetentionDays    = 7
)

func defaultValidatorExtensions() []string {
	return []string{".md"}
}

func defaultValidatorExcludeDirs() []string {
	return []string{"node_modules", ".git", "vendor", "dist", "build", ".cache", "target"}
}

// EffectiveGuardSettings returns validated guard settings with defaults.
// Invalid or missing config values fall back to the 600s window.
func EffectiveGuardSettings() GuardSettings {
	cfg := GuardSettings{StalenessWindow: defaultMarkerStalenessSeconds * time.Second}

	s, err := LoadSettings()
	if err != nil {
		return cfg
	}

	if s.MarkerStalenessSeconds > 0 {
		cfg.StalenessWindow = time.Duration(s.MarkerStalenessSeconds) * time.Second
	}

	if cfg.StalenessWindow < 10*time.Second {
		cfg.StalenessWindow = 10 * time.Second
	}
	if cfg.StalenessWindow > 24*time.Hour {
		cfg.StalenessWindow = 24 * time.Hour
	}
	return cfg
}

// EffectiveValidatorSettings returns validated validator settings with defaults.
func EffectiveValidatorSettings() ValidatorSettings {
	cfg := ValidatorSettings{
		Command:     defaultValidatorCommand,
		Extensions:  defaultValidatorExtensions(),
		Timeout:     defaultValidatorTimeout,
		ExcludeDirs: defaultValidatorExcludeDirs(),
	}

	s, err := LoadSettings()
	if err != nil {
		return cfg
	}

	if s.ValidatorCommand != "" {
		cfg.Command = s.ValidatorCommand
	}
	if len(s.ValidatorExtensions) > 0 {
		cfg.Extensions = s.ValidatorExtensions
	}
	if s.ValidatorTimeoutSeconds > 0 {
		cfg.Timeout = time.Duration(s.ValidatorTimeoutSeconds) * time.Second
	}
	if len(s.ValidatorExcludeDirs) > 0 {
		cfg.ExcludeDirs = s.ValidatorExcludeDirs
	}

	if cfg.Timeout < 5*time.Second {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Timeout > 10*time.Minute {
		cfg.Timeout = 10 * time.Minute
	}
	return cfg
}

// EffectiveWorkerSettings returns validated worker settings with defaults.
func EffectiveWorkerSettings() WorkerSettings {
	cfg := WorkerSettings{
		PollInterval:         defaultWorkerPoll,
		GracefulStopTimeout:  defaultWorkerGracefulStop,
		NotifyTimeout:        defaultNotifyTimeout,
		SummaryRetentionDays: defaultSummaryRetentionDays,
		SessionRetentionDays: defaultSessionRetentionDays,
		ReportRetentionDays:  defaultReportRetentionDays,
	}

	s, err := LoadSettings()
	if err != nil {
		return cfg
	}

	cfg.NotifyCommand = s.NotifyCommand
	if s.NotifyTimeoutSeconds > 0 {
		cfg.NotifyTimeout = time.Duration(s.NotifyTimeoutSeconds) * time.Second
	}
	if s.WorkerPollSeconds > 0 {
		cfg.PollInterval = time.Duration(s.WorkerPollSeconds) * time.Second
	}
	if s.WorkerGracefulStopSeconds > 0 {
		cfg.GracefulStopTimeout = time.Duration(s.WorkerGracefulStopSeconds) * time.Second
	}
	if s.SummaryRetentionDays > 0 {
		cfg.SummaryRetentionDays = s.SummaryRetentionDays
	}
	if s.SessionRetentionDays > 0 {
		cfg.SessionRetentionDays = s.SessionRetentionDays
	}
	if s.ReportRetentionDays > 0 {
		cfg.ReportRetentionDays = s.ReportRetentionDays
	}

	if cfg.PollInterval < time.Second {
		cfg.PollInterval = time.Second
	}
	if cfg.PollInterval > 10*time.Minute {
		cfg.PollInterval = 10 * time.Minute
	}
	if cfg.GracefulStopTimeout < time.Second {
		cfg.GracefulStopTimeout = time.Second
	}
	if cfg.GracefulStopTimeout > time.Minute {
		cfg.GracefulStopTimeout = time.Minute
	}
	if cfg.NotifyTimeout < time.Second {
		cfg.NotifyTimeout = time.Second
	}
	if cfg.NotifyTimeout > 5*time.Minute {
		cfg.NotifyTimeout = 5 * time.Minute
	}
	if cfg.SummaryRetentionDays > 365 {
		cfg.SummaryRetentionDays = 365
	}
	if cfg.SessionRetentionDays > 365 {
		cfg.SessionRetentionDays = 365
	}
	if cfg.ReportRetentionDays > 365 {
		cfg.ReportRetentionDays = 365
	}
	return cfg
}

// settingsOnce, settings, settingsErr implement the sync.Once lazy-load singleton for config.
// The override vars implement mutex-protected process-wide overrides for CLI flags.
// These globals are required by the sync.Once pattern and the RWMutex pattern; they cannot be avoided.
//
//nolint:gochecknoglobals // sync.Once singleton + RWMutex overrides are intentional process-wide state
var (
	settingsOnce sync.Once
	settings     Settings
	settingsErr  error

	overrideMu       sync.RWMutex
	dbPathOverride   string
	stateDirOverride string
)

// SetDBPathOverride sets a process-wide database path override.
// Intended for CLI flag support (e.g. --db-path).
func SetDBPathOverride(path string) {
	overrideMu.Lock()
	dbPathOverride = path
	overrideMu.Unlock()
}

func getDBPathOverride() string {
	overrideMu.RLock()
	v := dbPathOverride
	overrideMu.RUnlock()
	return v
}

// SetStateDirOverride sets a process-wide state directory override.
// Intended for CLI flag support (e.g. --state-dir).
func SetStateDirOverride(dir string) {
	overrideMu.Lock()
	stateDirOverride = dir
	overrideMu.Unlock()
}

func getStateDirOverride() string {
	overrideMu.RLock()
	v := stateDirOverride
	overrideMu.RUnlock()
	return v
}

// LoadSettings loads configuration once using the documented lookup order.
// Lookup order (first found wins):
// 1) ~/.config/postflight/config.yaml
// 2) /etc/postflight/config.yaml
// 3) ./config.yaml (lowest priority; allows repo-local overrides if desired)
// Environment variables are handled separately.
func LoadSettings() (Settings, error) {
	settingsOnce.Do(func() {
		settings = Settings{}

		// 1) User config (~/.config/postflight/config.yaml)
		dir, err := ConfigDir()
		if err != nil {
			settingsErr = err
			return
		}
		if s, err := loadSettingsFile(filepath.Join(dir, "config.yaml")); err == nil {
			settings = s
			return
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			settingsErr = err
			return
		}

		// 2) /etc
		if s, err := loadSettingsFile(filepath.Join(string(os.PathSeparator), "etc", "postflight", "config.yaml")); err == nil {
			settings = s
			return
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			settingsErr = err
			return
		}

		// 3) Local ./config.yaml (lowest priority)
		if s, err := loadSettingsFile("config.yaml"); err == nil {
			settings = s
			return
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			settingsErr = err
			return
		}
	})

	return settings, settingsErr
}

func loadSettingsFile(path string) (Settings, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, err
	}

	var s Settings
	if err := yaml.Unmarshal(b, &s); err != nil {
		return Settings{}, err
	}
	return s, nil
}
