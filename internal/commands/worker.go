package commands

import (
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dotcommander/postflight/internal/app"
	"github.com/dotcommander/postflight/internal/evlog"
	"github.com/dotcommander/postflight/internal/output"
	"github.com/dotcommander/postflight/internal/statestore"
	"github.com/dotcommander/postflight/internal/worker"
)

// NewWorkerCmd creates the worker management command.
func NewWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Manage the singleton notification worker",
		Args:  cobra.NoArgs,
	}

	cmd.AddCommand(newWorkerEnsureCmd())
	cmd.AddCommand(newWorkerStopCmd())
	cmd.AddCommand(newWorkerRestartCmd())
	cmd.AddCommand(newWorkerStatusCmd())

	run := newWorkerRunCmd()
	run.Hidden = true
	cmd.AddCommand(run)

	return cmd
}

// workerSupervisor prepares the state dir and returns a supervisor bound to it.
func workerSupervisor() (*worker.Supervisor, error) {
	stateDir, err := app.EnsureStateDir()
	if err != nil {
		return nil, err
	}
	events := evlog.New(app.EventLogPath(stateDir), uuid.NewString(), "", "")
	return worker.NewSupervisor(statestore.NewFileStore(stateDir), events), nil
}

func newWorkerEnsureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ensure",
		Short: "Start the worker unless a healthy one is already running",
		RunE: func(cmd *cobra.Command, args []string) error {
			sup, err := workerSupervisor()
			if err != nil {
				return cmdErr(err)
			}
			res, err := sup.EnsureRunning()
			if err != nil {
				return cmdErr(err)
			}
			return output.PrintSuccess(res)
		},
	}
}

func newWorkerStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the worker (graceful, then forced)",
		RunE: func(cmd *cobra.Command, args []string) error {
			sup, err := workerSupervisor()
			if err != nil {
				return cmdErr(err)
			}
			if err := sup.Stop(app.EffectiveWorkerSettings().GracefulStopTimeout); err != nil {
				return cmdErr(err)
			}
			type resp struct {
				Stopped bool `json:"stopped"`
			}
			return output.PrintSuccess(resp{Stopped: true})
		},
	}
}

func newWorkerRestartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Stop and start the worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			sup, err := workerSupervisor()
			if err != nil {
				return cmdErr(err)
			}
			res, err := sup.Restart(app.EffectiveWorkerSettings().GracefulStopTimeout)
			if err != nil {
				return cmdErr(err)
			}
			return output.PrintSuccess(res)
		},
	}
}

func newWorkerStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether the worker is running",
		RunE: func(cmd *cobra.Command, args []string) error {
			sup, err := workerSupervisor()
			if err != nil {
				return cmdErr(err)
			}
			return output.PrintSuccess(sup.Status())
		},
	}
}

// newWorkerRunCmd is the worker process entry point, spawned by the
// supervisor. Operators normally use "worker ensure" instead.
func newWorkerRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "run",
		Short:         "Run the worker loop in the foreground",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			stateDir, err := app.EnsureStateDir()
			if err != nil {
				return cmdErr(err)
			}

			settings := app.EffectiveWorkerSettings()
			events := evlog.New(app.EventLogPath(stateDir), uuid.NewString(), "", "")
			runner := worker.NewRunner(stateDir, settings, events)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, os.Interrupt)
			defer stop()

			if err := runner.Run(ctx); err != nil {
				if errors.Is(err, worker.ErrAlreadyRunning) {
					// Losing the singleton race is a normal outcome.
					slog.Info("another worker holds the lock, exiting")
					return nil
				}
				return cmdErr(err)
			}
			return nil
		},
	}
}
