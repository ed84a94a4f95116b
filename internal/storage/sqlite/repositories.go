package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mcpscout/mcpscout/internal/types"
)

// UpsertRepository inserts or updates a repository by its full name.
// Re-discovery updates metadata but preserves the original discovery
// timestamp and search pattern.
func (s *SQLiteStorage) UpsertRepository(ctx context.Context, repo *types.Repository) error {
	if err := repo.Validate(); err != nil {
		return fmt.Errorf("invalid repository: %w", err)
	}

	topics, err := marshalJSON(repo.Topics)
	if err != nil {
		return err
	}

	if repo.DiscoveredAt.IsZero() {
		repo.DiscoveredAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO repositories (
			full_name, description, html_url, clone_url, language,
			stars, forks, watchers, size_kb, topics, license,
			created_at, updated_at, pushed_at, archived, fork,
			discovered_at, search_pattern
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(full_name) DO UPDATE SET
			description = excluded.description,
			html_url = excluded.html_url,
			clone_url = excluded.clone_url,
			language = excluded.language,
			stars = excluded.stars,
			forks = excluded.forks,
			watchers = excluded.watchers,
			size_kb = excluded.size_kb,
			topics = excluded.topics,
			license = excluded.license,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			pushed_at = excluded.pushed_at,
			archived = excluded.archived,
			fork = excluded.fork
	`, repo.FullName, repo.Description, repo.HTMLURL, repo.CloneURL, repo.Language,
		repo.Stars, repo.Forks, repo.Watchers, repo.SizeKB, topics, repo.License,
		repo.CreatedAt.UTC(), repo.UpdatedAt.UTC(), nullableTime(repo.PushedAt),
		repo.Archived, repo.Fork, repo.DiscoveredAt.UTC(), repo.SearchPattern)
	if err != nil {
		return fmt.Errorf("failed to upsert repository: %w", err)
	}
	return nil
}

// GetRepository returns the repository with the given full name, or
// types.ErrNotFound if it has never been discovered.
func (s *SQLiteStorage) GetRepository(ctx context.Context, fullName string) (*types.Repository, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT full_name, description, html_url, clone_url, language,
		       stars, forks, watchers, size_kb, topics, license,
		       created_at, updated_at, pushed_at, archived, fork,
		       discovered_at, search_pattern
		FROM repositories WHERE full_name = ?
	`, fullName)

	repo, err := scanRepository(row)
	if err == sql.ErrNoRows {
		return nil, types.ErrNotFound
	}
	return repo, err
}

// ListRepositories returns repositories ordered by stars descending.
func (s *SQLiteStorage) ListRepositories(ctx context.Context, limit int) ([]*types.Repository, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT full_name, description, html_url, clone_url, language,
		       stars, forks, watchers, size_kb, topics, license,
		       created_at, updated_at, pushed_at, archived, fork,
		       discovered_at, search_pattern
		FROM repositories ORDER BY stars DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list repositories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var repos []*types.Repository
	for rows.Next() {
		repo, err := scanRepository(rows)
		if err != nil {
			return nil, err
		}
		repos = append(repos, repo)
	}
	return repos, rows.Err()
}

// CountRepositories returns the total number of discovered repositories.
func (s *SQLiteStorage) CountRepositories(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM repositories`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count repositories: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRepository(row rowScanner) (*types.Repository, error) {
	var repo types.Repository
	var topics string
	var created, updated, discovered sql.NullTime
	var pushed sql.NullTime

	err := row.Scan(&repo.FullName, &repo.Description, &repo.HTMLURL, &repo.CloneURL,
		&repo.Language, &repo.Stars, &repo.Forks, &repo.Watchers, &repo.SizeKB,
		&topics, &repo.License, &created, &updated, &pushed,
		&repo.Archived, &repo.Fork, &discovered, &repo.SearchPattern)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan repository: %w", err)
	}

	if err := unmarshalJSON(topics, &repo.Topics); err != nil {
		return nil, err
	}
	if created.Valid {
		repo.CreatedAt = created.Time.UTC()
	}
	if updated.Valid {
		repo.UpdatedAt = updated.Time.UTC()
	}
	repo.PushedAt = scanNullableTime(pushed)
	if discovered.Valid {
		repo.DiscoveredAt = discovered.Time.UTC()
	}
	return &repo, nil
}

// SaveProfile overwrites the analysis profile for a repository.
func (s *SQLiteStorage) SaveProfile(ctx context.Context, profile *types.AnalysisProfile) error {
	deps, err := marshalJSON(profile.Dependencies)
	if err != nil {
		return err
	}
	caps, err := marshalJSON(profile.Capabilities)
	if err != nil {
		return err
	}
	indicators, err := marshalJSON(profile.Indicators)
	if err != nil {
		return err
	}
	entries, err := marshalJSON(profile.EntryPoints)
	if err != nil {
		return err
	}

	if profile.AnalyzedAt.IsZero() {
		profile.AnalyzedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO analysis_profiles (
			repo_full_name, language, framework, install_method,
			dependencies, capabilities, indicators, seed_confidence,
			has_readme, has_docs, has_examples, has_install_guide,
			package_name, package_version, entry_points,
			has_bin_entry, has_config_example, analyzed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(repo_full_name) DO UPDATE SET
			language = excluded.language,
			framework = excluded.framework,
			install_method = excluded.install_method,
			dependencies = excluded.dependencies,
			capabilities = excluded.capabilities,
			indicators = excluded.indicators,
			seed_confidence = excluded.seed_confidence,
			has_readme = excluded.has_readme,
			has_docs = excluded.has_docs,
			has_examples = excluded.has_examples,
			has_install_guide = excluded.has_install_guide,
			package_name = excluded.package_name,
			package_version = excluded.package_version,
			entry_points = excluded.entry_points,
			has_bin_entry = excluded.has_bin_entry,
			has_config_example = excluded.has_config_example,
			analyzed_at = excluded.analyzed_at
	`, profile.RepoFullName, profile.Language, profile.Framework, profile.InstallMethod,
		deps, caps, indicators, profile.SeedConfidence,
		profile.HasReadme, profile.HasDocs, profile.HasExamples, profile.HasInstallGuide,
		profile.PackageName, profile.PackageVersion, entries,
		profile.HasBinEntry, profile.HasConfigExample, profile.AnalyzedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

// GetProfile returns the analysis profile for a repository.
func (s *SQLiteStorage) GetProfile(ctx context.Context, repoFullName string) (*types.AnalysisProfile, error) {
	var p types.AnalysisProfile
	var deps, caps, indicators, entries string
	var analyzed sql.NullTime

	err := s.db.QueryRowContext(ctx, `
		SELECT repo_full_name, language, framework, install_method,
		       dependencies, capabilities, indicators, seed_confidence,
		       has_readme, has_docs, has_examples, has_install_guide,
		       package_name, package_version, entry_points,
		       has_bin_entry, has_config_example, analyzed_at
		FROM analysis_profiles WHERE repo_full_name = ?
	`, repoFullName).Scan(&p.RepoFullName, &p.Language, &p.Framework, &p.InstallMethod,
		&deps, &caps, &indicators, &p.SeedConfidence,
		&p.HasReadme, &p.HasDocs, &p.HasExamples, &p.HasInstallGuide,
		&p.PackageName, &p.PackageVersion, &entries,
		&p.HasBinEntry, &p.HasConfigExample, &analyzed)
	if err == sql.ErrNoRows {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	if err := unmarshalJSON(deps, &p.Dependencies); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(caps, &p.Capabilities); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(indicators, &p.Indicators); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(entries, &p.EntryPoints); err != nil {
		return nil, err
	}
	if analyzed.Valid {
		p.AnalyzedAt = analyzed.Time.UTC()
	}
	return &p, nil
}

// SaveDetection overwrites the detection result for a repository.
func (s *SQLiteStorage) SaveDetection(ctx context.Context, det *types.Detection) error {
	if det.Confidence < 0 || det.Confidence > 100 {
		return fmt.Errorf("detection confidence out of bounds: %f", det.Confidence)
	}

	positive, err := marshalJSON(det.Positive)
	if err != nil {
		return err
	}
	negative, err := marshalJSON(det.Negative)
	if err != nil {
		return err
	}
	edges, err := marshalJSON(det.EdgeCases)
	if err != nil {
		return err
	}

	if det.DetectedAt.IsZero() {
		det.DetectedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO detections (
			repo_full_name, confidence, band, is_candidate,
			positive, negative, edge_cases, label, detected_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(repo_full_name) DO UPDATE SET
			confidence = excluded.confidence,
			band = excluded.band,
			is_candidate = excluded.is_candidate,
			positive = excluded.positive,
			negative = excluded.negative,
			edge_cases = excluded.edge_cases,
			label = excluded.label,
			detected_at = excluded.detected_at
	`, det.RepoFullName, det.Confidence, det.Band, det.IsCandidate,
		positive, negative, edges, det.Label, det.DetectedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save detection: %w", err)
	}
	return nil
}

// GetDetection returns the detection for a repository.
func (s *SQLiteStorage) GetDetection(ctx context.Context, repoFullName string) (*types.Detection, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT repo_full_name, confidence, band, is_candidate,
		       positive, negative, edge_cases, label, detected_at
		FROM detections WHERE repo_full_name = ?
	`, repoFullName)

	det, err := scanDetection(row)
	if err == sql.ErrNoRows {
		return nil, types.ErrNotFound
	}
	return det, err
}

// ListCandidates returns detections at or above minConfidence, highest first.
func (s *SQLiteStorage) ListCandidates(ctx context.Context, minConfidence float64) ([]*types.Detection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT repo_full_name, confidence, band, is_candidate,
		       positive, negative, edge_cases, label, detected_at
		FROM detections
		WHERE confidence >= ?
		ORDER BY confidence DESC
	`, minConfidence)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var dets []*types.Detection
	for rows.Next() {
		det, err := scanDetection(rows)
		if err != nil {
			return nil, err
		}
		dets = append(dets, det)
	}
	return dets, rows.Err()
}

func scanDetection(row rowScanner) (*types.Detection, error) {
	var det types.Detection
	var positive, negative, edges string
	var detected sql.NullTime

	err := row.Scan(&det.RepoFullName, &det.Confidence, &det.Band, &det.IsCandidate,
		&positive, &negative, &edges, &det.Label, &detected)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan detection: %w", err)
	}

	if err := unmarshalJSON(positive, &det.Positive); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(negative, &det.Negative); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(edges, &det.EdgeCases); err != nil {
		return nil, err
	}
	if detected.Valid {
		det.DetectedAt = detected.Time.UTC()
	}
	return &det, nil
}
