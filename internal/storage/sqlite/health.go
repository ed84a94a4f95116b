package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mcpscout/mcpscout/internal/types"
)

// AppendMeasurement appends a health observation. Measurements are
// append-only; there is deliberately no update or delete path.
func (s *SQLiteStorage) AppendMeasurement(ctx context.Context, m *types.HealthMeasurement) error {
	if m.RecordID == "" {
		return fmt.Errorf("measurement record_id is required")
	}

	factors, err := marshalJSON(m.Factors)
	if err != nil {
		return err
	}

	if m.MeasuredAt.IsZero() {
		m.MeasuredAt = time.Now().UTC()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO health_measurements (record_id, score, status, source, factors, measured_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, m.RecordID, m.Score, m.Status, m.Source, factors, m.MeasuredAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to append measurement: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get measurement id: %w", err)
	}
	m.ID = id
	return nil
}

// GetMeasurements returns the most recent measurements for a record,
// newest first.
func (s *SQLiteStorage) GetMeasurements(ctx context.Context, recordID string, limit int) ([]*types.HealthMeasurement, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, record_id, score, status, source, factors, measured_at
		FROM health_measurements
		WHERE record_id = ?
		ORDER BY measured_at DESC, id DESC
		LIMIT ?
	`, recordID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get measurements: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ms []*types.HealthMeasurement
	for rows.Next() {
		var m types.HealthMeasurement
		var factors string
		var measured sql.NullTime
		if err := rows.Scan(&m.ID, &m.RecordID, &m.Score, &m.Status, &m.Source, &factors, &measured); err != nil {
			return nil, fmt.Errorf("failed to scan measurement: %w", err)
		}
		if err := unmarshalJSON(factors, &m.Factors); err != nil {
			return nil, err
		}
		if measured.Valid {
			m.MeasuredAt = measured.Time.UTC()
		}
		ms = append(ms, &m)
	}
	return ms, rows.Err()
}

// CreateAlert stores a health alert. Deduplication against the cooldown
// window is the monitor's job via GetLatestAlert.
func (s *SQLiteStorage) CreateAlert(ctx context.Context, alert *types.HealthAlert) error {
	if alert.ID == "" {
		return fmt.Errorf("alert id is required")
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO health_alerts (id, record_id, severity, message, acknowledged, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, alert.ID, alert.RecordID, alert.Severity, alert.Message, alert.Acknowledged, alert.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	return nil
}

// GetLatestAlert returns the newest alert for (record, severity), or
// types.ErrNotFound if none exists.
func (s *SQLiteStorage) GetLatestAlert(ctx context.Context, recordID string, severity types.AlertSeverity) (*types.HealthAlert, error) {
	var a types.HealthAlert
	var created sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, record_id, severity, message, acknowledged, created_at
		FROM health_alerts
		WHERE record_id = ? AND severity = ?
		ORDER BY created_at DESC
		LIMIT 1
	`, recordID, severity).Scan(&a.ID, &a.RecordID, &a.Severity, &a.Message, &a.Acknowledged, &created)
	if err == sql.ErrNoRows {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest alert: %w", err)
	}
	if created.Valid {
		a.CreatedAt = created.Time.UTC()
	}
	return &a, nil
}

// ListAlerts returns alerts newest first.
func (s *SQLiteStorage) ListAlerts(ctx context.Context, unacknowledgedOnly bool, limit int) ([]*types.HealthAlert, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, record_id, severity, message, acknowledged, created_at
		FROM health_alerts`
	if unacknowledgedOnly {
		query += ` WHERE acknowledged = 0`
	}
	query += ` ORDER BY created_at DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var alerts []*types.HealthAlert
	for rows.Next() {
		var a types.HealthAlert
		var created sql.NullTime
		if err := rows.Scan(&a.ID, &a.RecordID, &a.Severity, &a.Message, &a.Acknowledged, &created); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		if created.Valid {
			a.CreatedAt = created.Time.UTC()
		}
		alerts = append(alerts, &a)
	}
	return alerts, rows.Err()
}

// AcknowledgeAlert marks an alert acknowledged.
func (s *SQLiteStorage) AcknowledgeAlert(ctx context.Context, alertID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE health_alerts SET acknowledged = 1 WHERE id = ?
	`, alertID)
	if err != nil {
		return fmt.Errorf("failed to acknowledge alert: %w", err)
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
