package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/xkilldash9x/barrier-cli/api/schemas"
)

const scanRequestColumns = `id, name, url, guidance, depth, device, steps, urls, status, username, project_id,
        date_created, date_last_ran, scheduled_time, weighted_score`

// CreateScanRequest inserts a new pending scan request and returns its id.
func (s *Store) CreateScanRequest(ctx context.Context, req *schemas.ScanRequest) (string, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Status == "" {
		req.Status = schemas.StatusPending
	}
	if req.DateCreated.IsZero() {
		req.DateCreated = time.Now().UTC()
	}

	steps, err := marshalJSONB(req.Steps, "[]")
	if err != nil {
		return "", fmt.Errorf("failed to encode steps: %w", err)
	}

	query := `
        INSERT INTO scan_requests (id, name, url, guidance, depth, device, steps, urls, status, username, project_id, date_created)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12);
    `
	_, err = s.pool.Exec(ctx, query,
		req.ID, req.Name, req.URL, nonNil(req.Guidance), req.Depth, req.Device,
		steps, nonNil(req.URLs), string(req.Status), req.Username, req.ProjectID,
		req.DateCreated.UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert scan request: %w", err)
	}

	s.log.Debug("Scan request created", zap.String("scan_request_id", req.ID), zap.Int("urls", len(req.URLs)))
	return req.ID, nil
}

// GetScanRequest loads one scan request. It returns schemas.ErrNotFound when no row matches.
func (s *Store) GetScanRequest(ctx context.Context, id string) (*schemas.ScanRequest, error) {
	query := `SELECT ` + scanRequestColumns + ` FROM scan_requests WHERE id = $1;`
	rows, err := s.pool.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query scan request: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("error during row iteration: %w", err)
		}
		return nil, fmt.Errorf("scan request %s: %w", id, schemas.ErrNotFound)
	}
	req, err := scanRequestFromRow(rows)
	if err != nil {
		return nil, err
	}
	return req, nil
}

// ListScanRequests returns requests newest first. Empty filter fields match everything.
func (s *Store) ListScanRequests(ctx context.Context, filter schemas.ScanFilter) ([]schemas.ScanRequest, error) {
	query := `
        SELECT ` + scanRequestColumns + `
        FROM scan_requests
        WHERE ($1 = '' OR username = $1) AND ($2 = '' OR project_id = $2)
        ORDER BY date_created DESC;
    `
	rows, err := s.pool.Query(ctx, query, filter.Username, filter.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query scan requests: %w", err)
	}
	defer rows.Close()

	var requests []schemas.ScanRequest
	for rows.Next() {
		req, err := scanRequestFromRow(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return requests, nil
}

// EditScanRequest updates the editable fields. Steps are only replaced when in.Steps is non-nil.
func (s *Store) EditScanRequest(ctx context.Context, in schemas.EditScanInput) (int64, error) {
	var (
		query string
		args  []interface{}
	)
	if in.Steps == nil {
		query = `
            UPDATE scan_requests SET name = $2, device = $3, depth = $4, guidance = $5
            WHERE id = $1;
        `
		args = []interface{}{in.ID, in.Name, in.Device, in.Depth, nonNil(in.Guidance)}
	} else {
		steps, err := marshalJSONB(in.Steps, "[]")
		if err != nil {
			return 0, fmt.Errorf("failed to encode steps: %w", err)
		}
		query = `
            UPDATE scan_requests SET name = $2, device = $3, depth = $4, guidance = $5, steps = $6
            WHERE id = $1;
        `
		args = []interface{}{in.ID, in.Name, in.Device, in.Depth, nonNil(in.Guidance), steps}
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to update scan request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return 0, fmt.Errorf("scan request %s: %w", in.ID, schemas.ErrNotFound)
	}
	return tag.RowsAffected(), nil
}

// DeleteScanRequests removes the requests with their results and schedule entries.
// It returns how many requests were deleted.
func (s *Store) DeleteScanRequests(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	var deleted int64
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM scan_schedule WHERE scan_request_id = ANY($1);`, ids); err != nil {
			return fmt.Errorf("failed to delete schedule entries: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM scan_results WHERE scan_request_id = ANY($1);`, ids); err != nil {
			return fmt.Errorf("failed to delete scan results: %w", err)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM scan_requests WHERE id = ANY($1);`, ids)
		if err != nil {
			return fmt.Errorf("failed to delete scan requests: %w", err)
		}
		deleted = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// GetURLs returns the discovered URL set of a request.
func (s *Store) GetURLs(ctx context.Context, id string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT urls FROM scan_requests WHERE id = $1;`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query urls: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("error during row iteration: %w", err)
		}
		return nil, fmt.Errorf("scan request %s: %w", id, schemas.ErrNotFound)
	}
	var urls []string
	if err := rows.Scan(&urls); err != nil {
		return nil, fmt.Errorf("failed to scan urls: %w", err)
	}
	return urls, nil
}

// CompleteScanRequest marks the request Complete with its score and last-run time.
func (s *Store) CompleteScanRequest(ctx context.Context, id string, score float64, ranAt time.Time) error {
	query := `
        UPDATE scan_requests SET status = $2, weighted_score = $3, date_last_ran = $4
        WHERE id = $1;
    `
	tag, err := s.pool.Exec(ctx, query, id, string(schemas.StatusComplete), score, ranAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to complete scan request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("scan request %s: %w", id, schemas.ErrNotFound)
	}
	return nil
}

func scanRequestFromRow(rows pgx.Rows) (*schemas.ScanRequest, error) {
	var (
		req    schemas.ScanRequest
		steps  []byte
		status string
	)
	err := rows.Scan(
		&req.ID, &req.Name, &req.URL, &req.Guidance, &req.Depth, &req.Device,
		&steps, &req.URLs, &status, &req.Username, &req.ProjectID,
		&req.DateCreated, &req.DateLastRan, &req.ScheduledTime, &req.WeightedScore,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan scan request row: %w", err)
	}
	if err := unmarshalJSONB(steps, &req.Steps); err != nil {
		return nil, fmt.Errorf("failed to decode steps of scan request %s: %w", req.ID, err)
	}
	req.Status = schemas.ScanStatus(status)
	return &req, nil
}

// nonNil keeps NOT NULL array columns from receiving a SQL NULL.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
