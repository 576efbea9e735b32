package commands

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/shlex"
	"github.com/spf13/cobra"

	"github.com/dotcommander/postflight/internal/app"
	"github.com/dotcommander/postflight/internal/commands/hookcmd"
	"github.com/dotcommander/postflight/internal/output"
	"github.com/dotcommander/postflight/internal/store"
)

type doctorCheck struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
	Hint   string `json:"hint,omitempty"`
}

// NewDoctorCmd creates the environment diagnostic command.
func NewDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose configuration, state dir, database, validator, and hooks",
		RunE: func(cmd *cobra.Command, args []string) error {
			checks := []doctorCheck{
				checkConfigDir(),
				checkStateDir(),
				checkDatabase(),
				checkValidator(),
				checkNotifier(),
				checkHooks(),
			}

			healthy := true
			for _, c := range checks {
				if !c.OK {
					healthy = false
					break
				}
			}

			type resp struct {
				Healthy bool          `json:"healthy"`
				Checks  []doctorCheck `json:"checks"`
			}
			return output.PrintSuccess(resp{Healthy: healthy, Checks: checks})
		},
	}
}

func checkConfigDir() doctorCheck {
	c := doctorCheck{Name: "config"}
	dir, err := app.ConfigDir()
	if err != nil {
		c.Detail = err.Error()
		return c
	}
	if err := app.EnsureConfigDir(); err != nil {
		c.Detail = err.Error()
		c.Hint = "check permissions on " + dir
		return c
	}
	c.OK = true
	c.Detail = filepath.Join(dir, "config.yaml")
	return c
}

func checkStateDir() doctorCheck {
	c := doctorCheck{Name: "state_dir"}
	dir, err := app.EnsureStateDir()
	if err != nil {
		c.Detail = err.Error()
		c.Hint = "set POSTFLIGHT_STATE_DIR or --state-dir to a writable location"
		return c
	}

	probe := filepath.Join(dir, ".doctor-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		c.Detail = err.Error()
		c.Hint = "state dir exists but is not writable"
		return c
	}
	_ = os.Remove(probe)

	c.OK = true
	c.Detail = dir
	return c
}

func checkDatabase() doctorCheck {
	c := doctorCheck{Name: "history_db"}
	dbPath, err := app.GetDBPath()
	if err != nil {
		c.Detail = err.Error()
		return c
	}

	db, err := store.InitDBWithPath(dbPath)
	if err != nil {
		c.Detail = err.Error()
		c.Hint = "set POSTFLIGHT_DB_PATH or --db-path to a writable location"
		return c
	}
	defer func() { _ = db.Close() }()

	var one int
	if err := db.QueryRow(`SELECT 1`).Scan(&one); err != nil {
		c.Detail = err.Error()
		return c
	}

	c.OK = true
	c.Detail = dbPath
	return c
}

func checkValidator() doctorCheck {
	c := doctorCheck{Name: "validator"}
	settings := app.EffectiveValidatorSettings()

	argv, err := shlex.Split(settings.Command)
	if err != nil || len(argv) == 0 {
		c.Detail = "validator_command unparsable: " + settings.Command
		c.Hint = "fix validator_command in config.yaml"
		return c
	}

	path, err := exec.LookPath(argv[0])
	if err != nil {
		c.Detail = argv[0] + " not found in PATH"
		c.Hint = "install the validator or change validator_command; both tiers degrade to no-op without it"
		return c
	}

	c.OK = true
	c.Detail = path
	return c
}

func checkNotifier() doctorCheck {
	c := doctorCheck{Name: "notifier"}
	settings := app.EffectiveWorkerSettings()

	if strings.TrimSpace(settings.NotifyCommand) == "" {
		// Not configured is a valid state, not a failure.
		c.OK = true
		c.Detail = "notify_command not set; summary dispatch disabled"
		return c
	}

	argv, err := shlex.Split(settings.NotifyCommand)
	if err != nil || len(argv) == 0 {
		c.Detail = "notify_command unparsable: " + settings.NotifyCommand
		c.Hint = "fix notify_command in config.yaml"
		return c
	}
	if _, err := exec.LookPath(argv[0]); err != nil {
		c.Detail = argv[0] + " not found in PATH"
		c.Hint = "install the notify command; pending summaries accumulate until it works"
		return c
	}

	c.OK = true
	c.Detail = settings.NotifyCommand
	return c
}

func checkHooks() doctorCheck {
	c := doctorCheck{Name: "hooks"}
	state := hookcmd.CurrentInstallState()
	if !state.Stop && !state.SessionStart {
		c.Detail = "no postflight hooks registered in " + state.Path
		c.Hint = "run 'postflight hook install'"
		return c
	}

	c.OK = true
	var parts []string
	if state.Stop {
		parts = append(parts, "Stop")
	}
	if state.SessionStart {
		parts = append(parts, "SessionStart")
	}
	c.Detail = strings.Join(parts, ", ") + " registered in " + state.Path
	if !state.Stop {
		c.OK = false
		c.Hint = "Stop hook missing; run 'postflight hook install'"
	}
	return c
}
