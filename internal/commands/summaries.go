package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dotcommander/postflight/internal/app"
	"github.com/dotcommander/postflight/internal/models"
	"github.com/dotcommander/postflight/internal/output"
	"github.com/dotcommander/postflight/internal/summary"
)

// NewSummariesCmd creates the summary inspection command.
func NewSummariesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summaries",
		Short: "Inspect session summaries",
		Args:  cobra.NoArgs,
	}

	cmd.AddCommand(newSummariesListCmd())
	cmd.AddCommand(newSummariesShowCmd())
	return cmd
}

type summaryListing struct {
	Path      string `json:"path"`
	SessionID string `json:"session_id,omitempty"`
	State     string `json:"state"`
}

func listSummaryDir(dir, state string) []summaryListing {
	paths, err := summary.List(dir)
	if err != nil {
		return nil
	}
	out := make([]summaryListing, 0, len(paths))
	for _, p := range paths {
		item := summaryListing{Path: p, State: state}
		if s, err := summary.ReadFile(p); err == nil {
			item.SessionID = s.SessionID
		}
		out = append(out, item)
	}
	return out
}

func newSummariesListCmd() *cobra.Command {
	var archived bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending (and optionally archived) summaries",
		RunE: func(cmd *cobra.Command, args []string) error {
			stateDir, err := app.EnsureStateDir()
			if err != nil {
				return cmdErr(err)
			}

			items := listSummaryDir(app.SummariesDir(stateDir), "pending")
			if archived {
				items = append(items, listSummaryDir(app.SummaryArchiveDir(stateDir), "archived")...)
			}

			type resp struct {
				Summaries []summaryListing `json:"summaries"`
				Count     int              `json:"count"`
			}
			return output.PrintSuccess(resp{Summaries: items, Count: len(items)})
		},
	}

	cmd.Flags().BoolVar(&archived, "archived", false, "Include dispatched summaries from the archive")
	return cmd
}

// newSummariesShowCmd prints one summary, located by session id (searching
// pending first, then the archive) or by an explicit file path.
func newSummariesShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <session-id|path>",
		Short: "Show a session summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := args[0]

			if strings.ContainsRune(target, os.PathSeparator) {
				s, err := summary.ReadFile(target)
				if err != nil {
					return cmdErr(err)
				}
				return output.PrintSuccess(s)
			}

			stateDir, err := app.EnsureStateDir()
			if err != nil {
				return cmdErr(err)
			}

			s, path, err := findSummaryBySession(stateDir, target)
			if err != nil {
				return cmdErr(err)
			}

			type resp struct {
				Path    string                `json:"path"`
				Summary models.SessionSummary `json:"summary"`
			}
			return output.PrintSuccess(resp{Path: path, Summary: s})
		},
	}
	return cmd
}

func findSummaryBySession(stateDir, sessionID string) (models.SessionSummary, string, error) {
	prefix := "summary_" + app.SanitizeSessionID(sessionID) + "_"
	for _, dir := range []string{app.SummariesDir(stateDir), app.SummaryArchiveDir(stateDir)} {
		paths, err := summary.List(dir)
		if err != nil {
			continue
		}
		for _, p := range paths {
			if !strings.HasPrefix(filepath.Base(p), prefix) {
				continue
			}
			s, err := summary.ReadFile(p)
			if err != nil {
				return models.SessionSummary{}, "", err
			}
			return s, p, nil
		}
	}
	return models.SessionSummary{}, "", fmt.Errorf("no summary found for session %q", sessionID)
}
