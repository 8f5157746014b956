package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/xkilldash9x/barrier-cli/api/schemas"
)

// UpsertSchedule inserts or replaces the schedule entry and records the run
// time on the request in the same transaction.
func (s *Store) UpsertSchedule(ctx context.Context, entry schemas.ScheduleEntry) error {
	runAt := entry.RunAt.UTC()
	return s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE scan_requests SET scheduled_time = $2 WHERE id = $1;`, entry.ScanRequestID, runAt)
		if err != nil {
			return fmt.Errorf("failed to set scheduled time: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("scan request %s: %w", entry.ScanRequestID, schemas.ErrNotFound)
		}

		upsert := `
            INSERT INTO scan_schedule (scan_request_id, run_at)
            VALUES ($1, $2)
            ON CONFLICT (scan_request_id) DO UPDATE SET
                run_at = EXCLUDED.run_at;
        `
		if _, err := tx.Exec(ctx, upsert, entry.ScanRequestID, runAt); err != nil {
			return fmt.Errorf("failed to upsert schedule entry: %w", err)
		}
		return nil
	})
}

// DueSchedules returns entries whose run time is at or before now, oldest first.
func (s *Store) DueSchedules(ctx context.Context, now time.Time) ([]schemas.DueScan, error) {
	query := `
        SELECT s.scan_request_id, s.run_at, r.urls, r.device
        FROM scan_schedule s
        JOIN scan_requests r ON r.id = s.scan_request_id
        WHERE s.run_at <= $1
        ORDER BY s.run_at ASC;
    `
	rows, err := s.pool.Query(ctx, query, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query due schedules: %w", err)
	}
	defer rows.Close()

	var due []schemas.DueScan
	for rows.Next() {
		var d schemas.DueScan
		if err := rows.Scan(&d.ScanRequestID, &d.RunAt, &d.URLs, &d.Device); err != nil {
			return nil, fmt.Errorf("failed to scan schedule row: %w", err)
		}
		due = append(due, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return due, nil
}

// DetachSchedule deletes the entry and clears the request's scheduled time.
func (s *Store) DetachSchedule(ctx context.Context, scanRequestID string) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM scan_schedule WHERE scan_request_id = $1;`, scanRequestID)
		if err != nil {
			return fmt.Errorf("failed to delete schedule entry: %w", err)
		}
		if _, err := tx.Exec(ctx, `UPDATE scan_requests SET scheduled_time = NULL WHERE id = $1;`, scanRequestID); err != nil {
			return fmt.Errorf("failed to clear scheduled time: %w", err)
		}
		if tag.RowsAffected() == 0 {
			s.log.Warn("Detached a scan that had no schedule entry", zap.String("scan_request_id", scanRequestID))
		}
		return nil
	})
}
