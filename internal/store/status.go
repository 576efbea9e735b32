package store

import (
	"database/sql"
	"fmt"
)

// StatusCounts holds summary counts over the history database, shown by the
// status command.
type StatusCounts struct {
	Events             int `json:"events"`
	Sessions           int `json:"sessions"`
	Notifications      int `json:"notifications"`
	FailedDispatches   int `json:"failed_dispatches"`
	IngestStreams      int `json:"ingest_streams"`
	BlockedValidations int `json:"blocked_validations"`
}

// GetStatusCounts retrieves all status counts in a single query with retry.
func GetStatusCounts(db *sql.DB) (*StatusCounts, error) {
	counts := &StatusCounts{}
	err := RetryWithBackoff(func() error {
		return db.QueryRow(`
			SELECT
				(SELECT COUNT(*) FROM events),
				(SELECT COUNT(DISTINCT session_id) FROM events WHERE session_id IS NOT NULL),
				(SELECT COUNT(*) FROM notifications),
				(SELECT COUNT(*) FROM notifications WHERE ok = 0),
				(SELECT COUNT(*) FROM ingest_state),
				(SELECT COUNT(*) FROM events WHERE event_name = 'validation.tier2_blocked')
		`).Scan(
			&counts.Events,
			&counts.Sessions,
			&counts.Notifications,
			&counts.FailedDispatches,
			&counts.IngestStreams,
			&counts.BlockedValidations,
		)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get status counts: %w", err)
	}
	return counts, nil
}
