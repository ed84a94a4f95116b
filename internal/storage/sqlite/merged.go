package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mcpscout/mcpscout/internal/types"
)

// UpsertMergedRecord inserts or updates a unified catalog record by its
// composite-key id, making merge runs idempotent.
func (s *SQLiteStorage) UpsertMergedRecord(ctx context.Context, rec *types.MergedRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("merged record id is required")
	}
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid merged record: %w", err)
	}

	caps, err := marshalJSON(rec.Capabilities)
	if err != nil {
		return err
	}
	reasons, err := marshalJSON(rec.MatchReasons)
	if err != nil {
		return err
	}

	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO merged_records (
			id, repo_full_name, directory_id, name, description,
			capabilities, popularity, confidence, verified,
			health_score, health_status, health_trend, reliability,
			match_score, match_reasons, data_sources, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			repo_full_name = excluded.repo_full_name,
			directory_id = excluded.directory_id,
			name = excluded.name,
			description = excluded.description,
			capabilities = excluded.capabilities,
			popularity = excluded.popularity,
			confidence = excluded.confidence,
			verified = excluded.verified,
			match_score = excluded.match_score,
			match_reasons = excluded.match_reasons,
			data_sources = excluded.data_sources,
			updated_at = excluded.updated_at
	`, rec.ID, nullString(rec.RepoFullName), nullString(rec.DirectoryID),
		rec.Name, rec.Description, caps, rec.Popularity, rec.Confidence, rec.Verified,
		rec.HealthScore, string(statusOrUnknown(rec.HealthStatus)), string(trendOrStable(rec.HealthTrend)),
		rec.Reliability, rec.MatchScore, reasons, rec.DataSources, rec.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert merged record: %w", err)
	}
	return nil
}

// GetMergedRecord returns the merged record with the given id.
func (s *SQLiteStorage) GetMergedRecord(ctx context.Context, id string) (*types.MergedRecord, error) {
	row := s.db.QueryRowContext(ctx, mergedSelect+` WHERE id = ?`, id)
	rec, err := scanMergedRecord(row)
	if err == sql.ErrNoRows {
		return nil, types.ErrNotFound
	}
	return rec, err
}

// ListMergedRecords returns merged records ordered by confidence
// descending. A non-positive limit returns everything.
func (s *SQLiteStorage) ListMergedRecords(ctx context.Context, limit int) ([]*types.MergedRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.queryMergedRecords(ctx, mergedSelect+` ORDER BY confidence DESC LIMIT ?`, limit)
}

// GetHighConfidenceRecords returns records in the high confidence band.
func (s *SQLiteStorage) GetHighConfidenceRecords(ctx context.Context, limit int) ([]*types.MergedRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.queryMergedRecords(ctx,
		mergedSelect+` WHERE confidence >= 80 ORDER BY confidence DESC, popularity DESC LIMIT ?`, limit)
}

// UpdateRecordHealth writes the monitor's latest health computation back to
// the record without touching fusion-owned fields.
func (s *SQLiteStorage) UpdateRecordHealth(ctx context.Context, id string, score float64, status types.HealthStatus, trend types.Trend, reliability float64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE merged_records
		SET health_score = ?, health_status = ?, health_trend = ?, reliability = ?, updated_at = ?
		WHERE id = ?
	`, score, status, trend, reliability, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update record health: %w", err)
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

const mergedSelect = `
	SELECT id, repo_full_name, directory_id, name, description,
	       capabilities, popularity, confidence, verified,
	       health_score, health_status, health_trend, reliability,
	       match_score, match_reasons, data_sources, updated_at
	FROM merged_records`

func (s *SQLiteStorage) queryMergedRecords(ctx context.Context, query string, args ...interface{}) ([]*types.MergedRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query merged records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var recs []*types.MergedRecord
	for rows.Next() {
		rec, err := scanMergedRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func scanMergedRecord(row rowScanner) (*types.MergedRecord, error) {
	var rec types.MergedRecord
	var repo, dir sql.NullString
	var caps, reasons string
	var updated sql.NullTime

	err := row.Scan(&rec.ID, &repo, &dir, &rec.Name, &rec.Description,
		&caps, &rec.Popularity, &rec.Confidence, &rec.Verified,
		&rec.HealthScore, &rec.HealthStatus, &rec.HealthTrend, &rec.Reliability,
		&rec.MatchScore, &reasons, &rec.DataSources, &updated)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan merged record: %w", err)
	}

	rec.RepoFullName = repo.String
	rec.DirectoryID = dir.String
	if err := unmarshalJSON(caps, &rec.Capabilities); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(reasons, &rec.MatchReasons); err != nil {
		return nil, err
	}
	if updated.Valid {
		rec.UpdatedAt = updated.Time.UTC()
	}
	return &rec, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func statusOrUnknown(s types.HealthStatus) types.HealthStatus {
	if s == "" {
		return types.HealthUnknown
	}
	return s
}

func trendOrStable(t types.Trend) types.Trend {
	if t == "" {
		return types.TrendStable
	}
	return t
}
