package commands

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dotcommander/postflight/internal/app"
	"github.com/dotcommander/postflight/internal/commands/hookcmd"
	"github.com/dotcommander/postflight/internal/models"
	"github.com/dotcommander/postflight/internal/output"
	"github.com/dotcommander/postflight/internal/store"
)

// NewStatusCmd creates the status command: resolved paths, effective
// settings, worker state, hook install state, and history counts.
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show resolved paths, settings, worker state, and history counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			type pathInfo struct {
				Path   string `json:"path"`
				Source string `json:"source"`
			}
			type resp struct {
				StateDir  pathInfo              `json:"state_dir"`
				DBPath    pathInfo              `json:"db_path"`
				Guard     app.GuardSettings     `json:"guard"`
				Validator app.ValidatorSettings `json:"validator"`
				Worker    app.WorkerSettings    `json:"worker_settings"`
				WorkerNow models.WorkerStatus   `json:"worker"`
				Hooks     hookcmd.InstallState  `json:"hooks"`
				History   *store.StatusCounts   `json:"history,omitempty"`
			}

			stateDir, stateSource, err := app.ResolveStateDirDetailed()
			if err != nil {
				return cmdErr(err)
			}
			dbPath, dbSource, err := app.ResolveDBPathDetailed()
			if err != nil {
				return cmdErr(err)
			}

			r := resp{
				StateDir:  pathInfo{Path: stateDir, Source: stateSource},
				DBPath:    pathInfo{Path: dbPath, Source: dbSource},
				Guard:     app.EffectiveGuardSettings(),
				Validator: app.EffectiveValidatorSettings(),
				Worker:    app.EffectiveWorkerSettings(),
				Hooks:     hookcmd.CurrentInstallState(),
			}

			if sup, supErr := workerSupervisor(); supErr == nil {
				r.WorkerNow = sup.Status()
			}

			// History counts degrade: a missing DB just omits the section.
			if db, closeDB, dbErr := openDB(); dbErr == nil {
				defer closeDB()
				counts, countErr := store.GetStatusCounts(db)
				if countErr != nil {
					slog.Warn("history counts unavailable", "error", countErr.Error())
				} else {
					r.History = counts
				}
			} else {
				slog.Warn("history db unavailable", "error", dbErr.Error())
			}

			return output.PrintSuccess(r)
		},
	}
}
