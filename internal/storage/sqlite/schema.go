package sqlite

const schema = `
-- Repositories discovered by the scanner
CREATE TABLE IF NOT EXISTS repositories (
    full_name TEXT PRIMARY KEY,
    description TEXT NOT NULL DEFAULT '',
    html_url TEXT NOT NULL DEFAULT '',
    clone_url TEXT NOT NULL DEFAULT '',
    language TEXT NOT NULL DEFAULT '',
    stars INTEGER NOT NULL DEFAULT 0,
    forks INTEGER NOT NULL DEFAULT 0,
    watchers INTEGER NOT NULL DEFAULT 0,
    size_kb INTEGER NOT NULL DEFAULT 0,
    topics TEXT NOT NULL DEFAULT '[]',
    license TEXT NOT NULL DEFAULT '',
    created_at DATETIME,
    updated_at DATETIME,
    pushed_at DATETIME,
    archived INTEGER NOT NULL DEFAULT 0,
    fork INTEGER NOT NULL DEFAULT 0,
    discovered_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    search_pattern TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_repositories_language ON repositories(language);
CREATE INDEX IF NOT EXISTS idx_repositories_stars ON repositories(stars);

-- Analysis profiles, one per repository, overwritten on re-analysis
CREATE TABLE IF NOT EXISTS analysis_profiles (
    repo_full_name TEXT PRIMARY KEY,
    language TEXT NOT NULL DEFAULT '',
    framework TEXT NOT NULL DEFAULT '',
    install_method TEXT NOT NULL DEFAULT '',
    dependencies TEXT NOT NULL DEFAULT '[]',
    capabilities TEXT NOT NULL DEFAULT '[]',
    indicators TEXT NOT NULL DEFAULT '[]',
    seed_confidence REAL NOT NULL DEFAULT 0,
    has_readme INTEGER NOT NULL DEFAULT 0,
    has_docs INTEGER NOT NULL DEFAULT 0,
    has_examples INTEGER NOT NULL DEFAULT 0,
    has_install_guide INTEGER NOT NULL DEFAULT 0,
    package_name TEXT NOT NULL DEFAULT '',
    package_version TEXT NOT NULL DEFAULT '',
    entry_points TEXT NOT NULL DEFAULT '[]',
    has_bin_entry INTEGER NOT NULL DEFAULT 0,
    has_config_example INTEGER NOT NULL DEFAULT 0,
    analyzed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (repo_full_name) REFERENCES repositories(full_name) ON DELETE CASCADE
);

-- Detections, one per profile, recomputed when rules or profile change
CREATE TABLE IF NOT EXISTS detections (
    repo_full_name TEXT PRIMARY KEY,
    confidence REAL NOT NULL DEFAULT 0 CHECK(confidence >= 0 AND confidence <= 100),
    band TEXT NOT NULL DEFAULT 'none',
    is_candidate INTEGER NOT NULL DEFAULT 0,
    positive TEXT NOT NULL DEFAULT '[]',
    negative TEXT NOT NULL DEFAULT '[]',
    edge_cases TEXT NOT NULL DEFAULT '[]',
    label TEXT NOT NULL DEFAULT 'not_mcp_server',
    detected_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (repo_full_name) REFERENCES repositories(full_name) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_detections_confidence ON detections(confidence);
CREATE INDEX IF NOT EXISTS idx_detections_candidate ON detections(is_candidate);

-- Servers pulled from the external curated directory
CREATE TABLE IF NOT EXISTS directory_servers (
    external_id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    category TEXT NOT NULL DEFAULT '',
    language TEXT NOT NULL DEFAULT '',
    capabilities TEXT NOT NULL DEFAULT '[]',
    repository_url TEXT NOT NULL DEFAULT '',
    verified INTEGER NOT NULL DEFAULT 0,
    active INTEGER NOT NULL DEFAULT 1,
    health_score REAL NOT NULL DEFAULT 0,
    health_trend TEXT NOT NULL DEFAULT 'stable',
    downloads INTEGER NOT NULL DEFAULT 0,
    stars INTEGER NOT NULL DEFAULT 0,
    install_hint TEXT NOT NULL DEFAULT '',
    upstream_at DATETIME,
    synced_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_directory_servers_active ON directory_servers(active);
CREATE INDEX IF NOT EXISTS idx_directory_servers_category ON directory_servers(category);

-- Directory categories
CREATE TABLE IF NOT EXISTS directory_categories (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    server_count INTEGER NOT NULL DEFAULT 0
);

-- Unified catalog records produced by fusion
CREATE TABLE IF NOT EXISTS merged_records (
    id TEXT PRIMARY KEY,
    repo_full_name TEXT,
    directory_id TEXT,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    capabilities TEXT NOT NULL DEFAULT '[]',
    popularity INTEGER NOT NULL DEFAULT 0,
    confidence REAL NOT NULL DEFAULT 0,
    verified INTEGER NOT NULL DEFAULT 0,
    health_score REAL NOT NULL DEFAULT 0,
    health_status TEXT NOT NULL DEFAULT 'unknown',
    health_trend TEXT NOT NULL DEFAULT 'stable',
    reliability REAL NOT NULL DEFAULT 0,
    match_score REAL NOT NULL DEFAULT 0,
    match_reasons TEXT NOT NULL DEFAULT '[]',
    data_sources TEXT NOT NULL,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_merged_records_confidence ON merged_records(confidence);
CREATE INDEX IF NOT EXISTS idx_merged_records_sources ON merged_records(data_sources);

-- Health measurements, append-only; trend analysis needs full history
CREATE TABLE IF NOT EXISTS health_measurements (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    record_id TEXT NOT NULL,
    score REAL NOT NULL,
    status TEXT NOT NULL,
    source TEXT NOT NULL,
    factors TEXT NOT NULL DEFAULT '[]',
    measured_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_health_measurements_record ON health_measurements(record_id, measured_at);

-- Health alerts, deduplicated by the monitor within a cooldown window
CREATE TABLE IF NOT EXISTS health_alerts (
    id TEXT PRIMARY KEY,
    record_id TEXT NOT NULL,
    severity TEXT NOT NULL,
    message TEXT NOT NULL DEFAULT '',
    acknowledged INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_health_alerts_record ON health_alerts(record_id, severity, created_at);

-- Discovery runs
CREATE TABLE IF NOT EXISTS discovery_runs (
    id TEXT PRIMARY KEY,
    config_json TEXT NOT NULL DEFAULT '{}',
    status TEXT NOT NULL DEFAULT 'running',
    phase TEXT NOT NULL DEFAULT '',
    stats TEXT NOT NULL DEFAULT '{}',
    errors TEXT NOT NULL DEFAULT '[]',
    started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    finished_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_discovery_runs_started ON discovery_runs(started_at);

-- Key/value bookkeeping (sync timestamps etc.)
CREATE TABLE IF NOT EXISTS meta (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL DEFAULT ''
);
`
