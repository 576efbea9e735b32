package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/dotcommander/postflight/internal/models"
	"github.com/dotcommander/postflight/internal/output"
	"github.com/dotcommander/postflight/internal/store"
)

// NewEventsCmd creates the history query command.
func NewEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Query ingested lifecycle events",
		Args:  cobra.NoArgs,
	}

	cmd.AddCommand(newEventsListCmd())
	cmd.AddCommand(newEventsTailCmd())
	return cmd
}

func newEventsListCmd() *cobra.Command {
	var (
		sessionID string
		component string
		eventName string
		sinceID   int64
		limit     int
		desc      bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List ingested events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(db *DB) error {
				events, err := store.ListEvents(db, store.ListEventsParams{
					SessionID: sessionID,
					Component: component,
					EventName: eventName,
					SinceID:   sinceID,
					Limit:     limit,
					Desc:      desc,
				})
				if err != nil {
					return err
				}

				type resp struct {
					Events []*models.HistoryEvent `json:"events"`
					Count  int                    `json:"count"`
				}
				return output.PrintSuccess(resp{Events: events, Count: len(events)})
			})
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Filter by session id")
	cmd.Flags().StringVar(&component, "component", "", "Filter by component (hook, guard, validation, summary, supervisor, worker)")
	cmd.Flags().StringVar(&eventName, "event", "", "Filter by event name (e.g. validation.tier2_blocked)")
	cmd.Flags().Int64Var(&sinceID, "since-id", 0, "Only events with id greater than this")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum events to return")
	cmd.Flags().BoolVar(&desc, "desc", false, "Newest first")

	return cmd
}

// newEventsTailCmd polls the history DB and prints new events as they are
// ingested. The worker ingests on its own cadence, so the tail lags the JSONL
// stream by up to one sweep.
func newEventsTailCmd() *cobra.Command {
	var (
		sessionID string
		interval  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Follow ingested events (Ctrl-C to stop)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(db *DB) error {
				// Start from the current tail, not the beginning of history.
				var sinceID int64
				if latest, err := store.ListEvents(db, store.ListEventsParams{
					SessionID: sessionID, Desc: true, Limit: 1,
				}); err == nil && len(latest) > 0 {
					sinceID = latest[0].ID
				}

				ticker := time.NewTicker(interval)
				defer ticker.Stop()

				for {
					select {
					case <-cmd.Context().Done():
						return nil
					case <-ticker.C:
						events, err := store.ListEvents(db, store.ListEventsParams{
							SessionID: sessionID,
							SinceID:   sinceID,
							Limit:     1000,
						})
						if err != nil {
							return err
						}
						for _, e := range events {
							if err := output.Print(e); err != nil {
								return err
							}
							sinceID = e.ID
						}
					}
				}
			})
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Filter by session id")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "Poll interval")

	return cmd
}
