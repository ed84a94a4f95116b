package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mcpscout/mcpscout/internal/types"
)

// CreateRun inserts a new discovery run record.
func (s *SQLiteStorage) CreateRun(ctx context.Context, run *types.DiscoveryRun) error {
	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	if run.Status == "" {
		run.Status = types.RunRunning
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	stats, err := marshalJSON(run.Stats)
	if err != nil {
		return err
	}
	errs, err := marshalJSON(run.Errors)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO discovery_runs (id, config_json, status, phase, stats, errors, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.ConfigJSON, run.Status, run.Phase, stats, errs,
		run.StartedAt.UTC(), nullableTime(run.FinishedAt))
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// UpdateRun persists run progress. Called after every phase so a
// long-running execution can be inspected mid-flight.
func (s *SQLiteStorage) UpdateRun(ctx context.Context, run *types.DiscoveryRun) error {
	stats, err := marshalJSON(run.Stats)
	if err != nil {
		return err
	}
	errs, err := marshalJSON(run.Errors)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE discovery_runs
		SET status = ?, phase = ?, stats = ?, errors = ?, finished_at = ?
		WHERE id = ?
	`, run.Status, run.Phase, stats, errs, nullableTime(run.FinishedAt), run.ID)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return types.ErrNotFound
	}
	return nil
}

// GetRun returns the run with the given id.
func (s *SQLiteStorage) GetRun(ctx context.Context, id string) (*types.DiscoveryRun, error) {
	row := s.db.QueryRowContext(ctx, runSelect+` WHERE id = ?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, types.ErrNotFound
	}
	return run, err
}

// ListRuns returns runs newest first.
func (s *SQLiteStorage) ListRuns(ctx context.Context, limit int) ([]*types.DiscoveryRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, runSelect+` ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*types.DiscoveryRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

const runSelect = `
	SELECT id, config_json, status, phase, stats, errors, started_at, finished_at
	FROM discovery_runs`

func scanRun(row rowScanner) (*types.DiscoveryRun, error) {
	var run types.DiscoveryRun
	var stats, errs string
	var started sql.NullTime
	var finished sql.NullTime

	err := row.Scan(&run.ID, &run.ConfigJSON, &run.Status, &run.Phase, &stats, &errs, &started, &finished)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	if err := unmarshalJSON(stats, &run.Stats); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(errs, &run.Errors); err != nil {
		return nil, err
	}
	if started.Valid {
		run.StartedAt = started.Time.UTC()
	}
	run.FinishedAt = scanNullableTime(finished)
	return &run, nil
}
