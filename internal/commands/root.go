package commands

import (
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dotcommander/postflight/internal/app"
	"github.com/dotcommander/postflight/internal/output"
)

// Execute runs the CLI application.
func Execute(version string) error {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	root := &cobra.Command{
		Use:           "postflight",
		Short:         "Session-stop orchestrator for Claude Code (guard, validate, summarize, notify)",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			showVersion, _ := cmd.Flags().GetBool("version")
			if showVersion {
				type resp struct {
					Version string `json:"version"`
				}
				return output.PrintSuccess(resp{Version: version})
			}
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := app.EnsureConfigDir(); err != nil {
				return err
			}

			// Wire --db-path / --state-dir into the app-level resolvers.
			if dbPath, err := cmd.Flags().GetString("db-path"); err == nil && dbPath != "" {
				app.SetDBPathOverride(dbPath)
			}
			if stateDir, err := cmd.Flags().GetString("state-dir"); err == nil && stateDir != "" {
				app.SetStateDirOverride(stateDir)
			}

			return nil
		},
	}

	root.PersistentFlags().String("db-path", "", "Override history database path")
	root.PersistentFlags().String("state-dir", "", "Override state directory")
	root.Flags().BoolP("version", "v", false, "version for postflight")

	root.AddCommand(NewHookCmd())
	root.AddCommand(NewWorkerCmd())
	root.AddCommand(NewEventsCmd())
	root.AddCommand(NewSummariesCmd())
	root.AddCommand(NewStatusCmd())
	root.AddCommand(NewDoctorCmd())
	root.AddCommand(NewSchemaCmd(root))

	err := root.Execute()
	if err != nil {
		var pe printedError
		if !errors.As(err, &pe) {
			slog.Error("command failed", "error", err.Error())
		}
	}
	return err
}
