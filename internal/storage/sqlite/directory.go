package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mcpscout/mcpscout/internal/types"
)

// UpsertDirectoryServer inserts or updates a directory server by external id.
// Servers are never hard-deleted; sync marks them inactive instead.
func (s *SQLiteStorage) UpsertDirectoryServer(ctx context.Context, srv *types.DirectoryServer) error {
	if srv.ExternalID == "" {
		return fmt.Errorf("directory server external_id is required")
	}

	caps, err := marshalJSON(srv.Capabilities)
	if err != nil {
		return err
	}

	if srv.SyncedAt.IsZero() {
		srv.SyncedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO directory_servers (
			external_id, name, description, category, language,
			capabilities, repository_url, verified, active,
			health_score, health_trend, downloads, stars,
			install_hint, upstream_at, synced_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(external_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			category = excluded.category,
			language = excluded.language,
			capabilities = excluded.capabilities,
			repository_url = excluded.repository_url,
			verified = excluded.verified,
			active = excluded.active,
			health_score = excluded.health_score,
			health_trend = excluded.health_trend,
			downloads = excluded.downloads,
			stars = excluded.stars,
			install_hint = excluded.install_hint,
			upstream_at = excluded.upstream_at,
			synced_at = excluded.synced_at
	`, srv.ExternalID, srv.Name, srv.Description, srv.Category, srv.Language,
		caps, srv.RepositoryURL, srv.Verified, srv.Active,
		srv.HealthScore, srv.HealthTrend, srv.Downloads, srv.Stars,
		srv.InstallHint, nullableTime(srv.UpstreamAt), srv.SyncedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert directory server: %w", err)
	}
	return nil
}

// GetDirectoryServer returns the directory server with the given external id.
func (s *SQLiteStorage) GetDirectoryServer(ctx context.Context, externalID string) (*types.DirectoryServer, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT external_id, name, description, category, language,
		       capabilities, repository_url, verified, active,
		       health_score, health_trend, downloads, stars,
		       install_hint, upstream_at, synced_at
		FROM directory_servers WHERE external_id = ?
	`, externalID)

	srv, err := scanDirectoryServer(row)
	if err == sql.ErrNoRows {
		return nil, types.ErrNotFound
	}
	return srv, err
}

// ListDirectoryServers returns directory servers, optionally only active ones.
func (s *SQLiteStorage) ListDirectoryServers(ctx context.Context, activeOnly bool) ([]*types.DirectoryServer, error) {
	query := `
		SELECT external_id, name, description, category, language,
		       capabilities, repository_url, verified, active,
		       health_score, health_trend, downloads, stars,
		       install_hint, upstream_at, synced_at
		FROM directory_servers`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY external_id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list directory servers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var servers []*types.DirectoryServer
	for rows.Next() {
		srv, err := scanDirectoryServer(rows)
		if err != nil {
			return nil, err
		}
		servers = append(servers, srv)
	}
	return servers, rows.Err()
}

// UpsertCategory inserts or updates a directory category.
func (s *SQLiteStorage) UpsertCategory(ctx context.Context, id, name string, count int) error {
	if id == "" {
		return fmt.Errorf("category id is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO directory_categories (id, name, server_count)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			server_count = excluded.server_count
	`, id, name, count)
	if err != nil {
		return fmt.Errorf("failed to upsert category: %w", err)
	}
	return nil
}

func scanDirectoryServer(row rowScanner) (*types.DirectoryServer, error) {
	var srv types.DirectoryServer
	var caps string
	var upstream, synced sql.NullTime

	err := row.Scan(&srv.ExternalID, &srv.Name, &srv.Description, &srv.Category,
		&srv.Language, &caps, &srv.RepositoryURL, &srv.Verified, &srv.Active,
		&srv.HealthScore, &srv.HealthTrend, &srv.Downloads, &srv.Stars,
		&srv.InstallHint, &upstream, &synced)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan directory server: %w", err)
	}

	if err := unmarshalJSON(caps, &srv.Capabilities); err != nil {
		return nil, err
	}
	srv.UpstreamAt = scanNullableTime(upstream)
	if synced.Valid {
		srv.SyncedAt = synced.Time.UTC()
	}
	return &srv, nil
}

// GetMeta returns a bookkeeping value, or types.ErrNotFound.
func (s *SQLiteStorage) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", types.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get meta %s: %w", key, err)
	}
	return value, nil
}

// SetMeta stores a bookkeeping value.
func (s *SQLiteStorage) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set meta %s: %w", key, err)
	}
	return nil
}
