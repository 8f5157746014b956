package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/xkilldash9x/barrier-cli/api/schemas"
)

// SaveResult persists a single per-URL result as soon as it is produced.
func (s *Store) SaveResult(ctx context.Context, res *schemas.PerUrlResult) (string, error) {
	if res.ID == "" {
		res.ID = uuid.NewString()
	}

	columns := make([][]byte, 0, 6)
	for _, v := range []interface{}{res.Violations, res.Passes, res.Incomplete, res.Inapplicable} {
		b, err := marshalJSONB(v, "[]")
		if err != nil {
			return "", fmt.Errorf("failed to encode findings for %s: %w", res.URL, err)
		}
		columns = append(columns, b)
	}
	for _, v := range []interface{}{res.TestEngine, res.TestEnvironment} {
		b, err := marshalJSONB(v, "{}")
		if err != nil {
			return "", fmt.Errorf("failed to encode environment for %s: %w", res.URL, err)
		}
		columns = append(columns, b)
	}

	query := `
        INSERT INTO scan_results (id, scan_request_id, url, score, violations, passes, incomplete, inapplicable, test_engine, test_environment, timestamp)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);
    `
	_, err := s.pool.Exec(ctx, query,
		res.ID, res.ScanRequestID, res.URL, res.Score,
		columns[0], columns[1], columns[2], columns[3], columns[4], columns[5],
		res.Timestamp.UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert scan result: %w", err)
	}
	return res.ID, nil
}

// GetResults returns every stored result of a request in analysis order.
func (s *Store) GetResults(ctx context.Context, scanRequestID string) ([]schemas.PerUrlResult, error) {
	query := `
        SELECT id, url, score, violations, passes, incomplete, inapplicable, test_engine, test_environment, timestamp
        FROM scan_results
        WHERE scan_request_id = $1
        ORDER BY timestamp ASC;
    `
	rows, err := s.pool.Query(ctx, query, scanRequestID)
	if err != nil {
		return nil, fmt.Errorf("failed to query scan results: %w", err)
	}
	defer rows.Close()

	var results []schemas.PerUrlResult
	for rows.Next() {
		var (
			r                                                      schemas.PerUrlResult
			violations, passes, incomplete, inapplicable, eng, env []byte
		)
		if err := rows.Scan(&r.ID, &r.URL, &r.Score, &violations, &passes, &incomplete, &inapplicable, &eng, &env, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}

		decode := []struct {
			raw []byte
			dst interface{}
		}{
			{violations, &r.Violations},
			{passes, &r.Passes},
			{incomplete, &r.Incomplete},
			{inapplicable, &r.Inapplicable},
			{eng, &r.TestEngine},
			{env, &r.TestEnvironment},
		}
		for _, d := range decode {
			if err := unmarshalJSONB(d.raw, d.dst); err != nil {
				return nil, fmt.Errorf("failed to decode result %s: %w", r.ID, err)
			}
		}
		r.ScanRequestID = scanRequestID
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return results, nil
}
