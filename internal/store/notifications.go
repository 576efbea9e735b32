package store

import (
	"database/sql"
	"fmt"

	"github.com/dotcommander/postflight/internal/models"
)

// RecordNotification appends one dispatch attempt to the ledger and returns
// the new row id. Failed attempts are recorded too; the ledger answers "was
// this summary delivered, and if not, why".
func RecordNotification(db *sql.DB, n models.Notification) (int64, error) {
	var id int64
	err := Transact(db, func(tx *sql.Tx) error {
		var errVal any
		if n.Error != "" {
			errVal = n.Error
		}
		res, err := tx.Exec(`
			INSERT INTO notifications (session_id, summary_path, ok, error, dispatched_at)
			VALUES (?, ?, ?, ?, ?)
		`, n.SessionID, n.SummaryPath, boolToInt(n.OK), errVal, n.DispatchedAt.UTC())
		if err != nil {
			return fmt.Errorf("insert notification: %w", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// ListNotifications returns the most recent dispatch attempts, newest first.
// An empty sessionID lists across all sessions.
func ListNotifications(db *sql.DB, sessionID string, limit int) ([]*models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, session_id, summary_path, ok, error, dispatched_at
		FROM notifications
	`
	args := make([]interface{}, 0, 2)
	if sessionID != "" {
		query += " WHERE session_id = ?"
		args = append(args, sessionID)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	var out []*models.Notification
	err := RetryWithBackoff(func() error {
		rows, err := db.Query(query, args...)
		if err != nil {
			return fmt.Errorf("failed to list notifications: %w", err)
		}
		defer func() { _ = rows.Close() }()

		out = make([]*models.Notification, 0)
		for rows.Next() {
			var n models.Notification
			var ok int
			var errText sql.NullString
			if err := rows.Scan(&n.ID, &n.SessionID, &n.SummaryPath, &ok, &errText, &n.DispatchedAt); err != nil {
				return fmt.Errorf("failed to scan notification: %w", err)
			}
			n.OK = ok != 0
			if errText.Valid {
				n.Error = errText.String
			}
			out = append(out, &n)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
