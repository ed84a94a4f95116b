package sqlite

import (
	"context"
	"fmt"
)

// CatalogStatistics aggregates live catalog counts for run reports.
type CatalogStatistics struct {
	TotalRepositories    int            `json:"total_repositories"`
	TotalCandidates      int            `json:"total_candidates"`
	TotalDirectoryActive int            `json:"total_directory_active"`
	TotalMergedRecords   int            `json:"total_merged_records"`
	TotalAlertsOpen      int            `json:"total_alerts_open"`
	ByBand               map[string]int `json:"by_band"`
	ByLanguage           map[string]int `json:"by_language"`
	ByCategory           map[string]int `json:"by_category"`
	BySource             map[string]int `json:"by_source"`
}

// GetStatistics computes aggregate catalog statistics.
func (s *SQLiteStorage) GetStatistics(ctx context.Context) (*CatalogStatistics, error) {
	stats := &CatalogStatistics{
		ByBand:     make(map[string]int),
		ByLanguage: make(map[string]int),
		ByCategory: make(map[string]int),
		BySource:   make(map[string]int),
	}

	counts := []struct {
		query string
		dest  *int
	}{
		{`SELECT COUNT(*) FROM repositories`, &stats.TotalRepositories},
		{`SELECT COUNT(*) FROM detections WHERE is_candidate = 1`, &stats.TotalCandidates},
		{`SELECT COUNT(*) FROM directory_servers WHERE active = 1`, &stats.TotalDirectoryActive},
		{`SELECT COUNT(*) FROM merged_records`, &stats.TotalMergedRecords},
		{`SELECT COUNT(*) FROM health_alerts WHERE acknowledged = 0`, &stats.TotalAlertsOpen},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("failed to compute statistics: %w", err)
		}
	}

	groups := []struct {
		query string
		dest  map[string]int
	}{
		{`SELECT band, COUNT(*) FROM detections GROUP BY band`, stats.ByBand},
		{`SELECT language, COUNT(*) FROM repositories WHERE language != '' GROUP BY language`, stats.ByLanguage},
		{`SELECT category, COUNT(*) FROM directory_servers WHERE category != '' GROUP BY category`, stats.ByCategory},
		{`SELECT data_sources, COUNT(*) FROM merged_records GROUP BY data_sources`, stats.BySource},
	}
	for _, g := range groups {
		if err := s.groupCount(ctx, g.query, g.dest); err != nil {
			return nil, err
		}
	}

	return stats, nil
}

func (s *SQLiteStorage) groupCount(ctx context.Context, query string, dest map[string]int) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to compute group counts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return fmt.Errorf("failed to scan group count: %w", err)
		}
		dest[key] = count
	}
	return rows.Err()
}
