package types

import (
	"fmt"
	"strings"
	"time"
)

// Repository represents a code project discovered by the scanner.
// Repositories are upserted by FullName and never deleted, so re-running
// discovery against the same source set is idempotent.
type Repository struct {
	FullName      string     `json:"full_name"` // "owner/name", unique key
	Description   string     `json:"description,omitempty"`
	HTMLURL       string     `json:"html_url,omitempty"`
	CloneURL      string     `json:"clone_url,omitempty"`
	Language      string     `json:"language,omitempty"`
	Stars         int        `json:"stars"`
	Forks         int        `json:"forks"`
	Watchers      int        `json:"watchers"`
	SizeKB        int        `json:"size_kb"`
	Topics        []string   `json:"topics,omitempty"`
	License       string     `json:"license,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	PushedAt      *time.Time `json:"pushed_at,omitempty"`
	Archived      bool       `json:"archived"`
	Fork          bool       `json:"fork"`
	DiscoveredAt  time.Time  `json:"discovered_at"`
	SearchPattern string     `json:"search_pattern,omitempty"` // query pattern that first found it
}

// Owner returns the owner half of the repository's full name.
func (r *Repository) Owner() string {
	if i := strings.Index(r.FullName, "/"); i >= 0 {
		return r.FullName[:i]
	}
	return ""
}

// Name returns the name half of the repository's full name.
func (r *Repository) Name() string {
	if i := strings.Index(r.FullName, "/"); i >= 0 {
		return r.FullName[i+1:]
	}
	return r.FullName
}

// Validate checks that the repository has a usable identity.
func (r *Repository) Validate() error {
	if r.FullName == "" {
		return fmt.Errorf("full_name is required")
	}
	if !strings.Contains(r.FullName, "/") {
		return fmt.Errorf("full_name must be owner/name (got %q)", r.FullName)
	}
	return nil
}

// Capability is one entry in the fixed capability vocabulary.
type Capability string

const (
	CapFilesystem Capability = "filesystem"
	CapDatabase   Capability = "database"
	CapAPI        Capability = "api"
	CapAI         Capability = "ai"
	CapTools      Capability = "tools"
	CapData       Capability = "data"
	CapWeb        Capability = "web"
	CapGit        Capability = "git"
	CapTime       Capability = "time"
	CapMath       Capability = "math"
	CapSearch     Capability = "search"
	CapMonitoring Capability = "monitoring"
)

// AllCapabilities is the fixed vocabulary in canonical order.
var AllCapabilities = []Capability{
	CapFilesystem, CapDatabase, CapAPI, CapAI, CapTools, CapData,
	CapWeb, CapGit, CapTime, CapMath, CapSearch, CapMonitoring,
}

// IsValid checks whether the capability is part of the vocabulary.
func (c Capability) IsValid() bool {
	for _, v := range AllCapabilities {
		if c == v {
			return true
		}
	}
	return false
}

// AnalysisProfile is the normalized output of content analysis for one
// repository. The analyzer extracts; it never judges. SeedConfidence is the
// explicit hand-off to the detector: an accumulator of per-match weights,
// not a final score.
type AnalysisProfile struct {
	RepoFullName   string       `json:"repo_full_name"`
	Language       string       `json:"language,omitempty"`
	Framework      string       `json:"framework,omitempty"`
	InstallMethod  string       `json:"install_method,omitempty"`
	Dependencies   []string     `json:"dependencies,omitempty"`
	Capabilities   []Capability `json:"capabilities,omitempty"`
	Indicators     []string     `json:"indicators,omitempty"` // raw matched strings, in match order
	SeedConfidence float64      `json:"seed_confidence"`

	// Documentation quality flags
	HasReadme       bool `json:"has_readme"`
	HasDocs         bool `json:"has_docs"`
	HasExamples     bool `json:"has_examples"`
	HasInstallGuide bool `json:"has_install_guide"`

	// Package metadata pulled from whichever manifest parsed
	PackageName    string   `json:"package_name,omitempty"`
	PackageVersion string   `json:"package_version,omitempty"`
	EntryPoints    []string `json:"entry_points,omitempty"`

	// Structural hints from the directory listing
	HasBinEntry      bool `json:"has_bin_entry"`
	HasConfigExample bool `json:"has_config_example"`

	AnalyzedAt time.Time `json:"analyzed_at"`
}

// HasCapability reports whether the profile already carries cap.
func (p *AnalysisProfile) HasCapability(cap Capability) bool {
	for _, c := range p.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// AddCapability appends cap if it is not already present, preserving the
// order capabilities were first seen in.
func (p *AnalysisProfile) AddCapability(cap Capability) {
	if !p.HasCapability(cap) {
		p.Capabilities = append(p.Capabilities, cap)
	}
}

// ConfidenceBand buckets a confidence score.
type ConfidenceBand string

const (
	BandNone    ConfidenceBand = "none"
	BandMinimal ConfidenceBand = "minimal"
	BandLow     ConfidenceBand = "low"
	BandMedium  ConfidenceBand = "medium"
	BandHigh    ConfidenceBand = "high"
)

// Classification is the discrete label assigned by the detector.
type Classification string

const (
	ClassDefinite Classification = "definite_mcp_server"
	ClassLikely   Classification = "likely_mcp_server"
	ClassPossible Classification = "possible_mcp_server"
	ClassUnlikely Classification = "unlikely_mcp_server"
	ClassNot      Classification = "not_mcp_server"
)

// EdgeCase tags a repository shape the detector treats specially.
type EdgeCase string

const (
	EdgeMonorepo      EdgeCase = "monorepo"
	EdgeExample       EdgeCase = "example"
	EdgeDocumentation EdgeCase = "documentation"
)

// Indicator is one weighted signal that adjusted a detection's confidence.
type Indicator struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
	Reason string  `json:"reason"`
}

// Detection is the detector's judgment over an analysis profile.
// Confidence is always clamped to [0,100]; Band and Label are pure
// functions of Confidence against the active thresholds.
type Detection struct {
	RepoFullName string         `json:"repo_full_name"`
	Confidence   float64        `json:"confidence"`
	Band         ConfidenceBand `json:"band"`
	IsCandidate  bool           `json:"is_candidate"`
	Positive     []Indicator    `json:"positive,omitempty"`
	Negative     []Indicator    `json:"negative,omitempty"`
	EdgeCases    []EdgeCase     `json:"edge_cases,omitempty"`
	Label        Classification `json:"label"`
	DetectedAt   time.Time      `json:"detected_at"`
}

// DirectoryServer is an entity sourced from the external curated directory.
// Upserted by ExternalID on every sync; deactivated, never deleted.
type DirectoryServer struct {
	ExternalID    string       `json:"external_id"` // unique key
	Name          string       `json:"name"`
	Description   string       `json:"description,omitempty"`
	Category      string       `json:"category,omitempty"`
	Language      string       `json:"language,omitempty"`
	Capabilities  []Capability `json:"capabilities,omitempty"`
	RepositoryURL string       `json:"repository_url,omitempty"`
	Verified      bool         `json:"verified"`
	Active        bool         `json:"active"`
	HealthScore   float64      `json:"health_score"`
	HealthTrend   Trend        `json:"health_trend"`
	Downloads     int          `json:"downloads"`
	Stars         int          `json:"stars"`
	InstallHint   string       `json:"install_hint,omitempty"`
	UpstreamAt    *time.Time   `json:"upstream_at,omitempty"` // last update reported by the directory
	SyncedAt      time.Time    `json:"synced_at"`
}

// DataSourceTag records provenance on a merged record.
type DataSourceTag string

const (
	SourceScanner   DataSourceTag = "scanner"
	SourceDirectory DataSourceTag = "directory"
	SourceBoth      DataSourceTag = "scanner,directory"
)

// MergedRecord is the unified catalog entity produced by fusion.
type MergedRecord struct {
	ID            string        `json:"id"` // composite natural key, see fusion
	RepoFullName  string        `json:"repo_full_name,omitempty"`
	DirectoryID   string        `json:"directory_id,omitempty"`
	Name          string        `json:"name"`
	Description   string        `json:"description,omitempty"`
	Capabilities  []Capability  `json:"capabilities,omitempty"`
	Popularity    int           `json:"popularity"`
	Confidence    float64       `json:"confidence"`
	Verified      bool          `json:"verified"`
	HealthScore   float64       `json:"health_score"`
	HealthStatus  HealthStatus  `json:"health_status,omitempty"`
	HealthTrend   Trend         `json:"health_trend,omitempty"`
	Reliability   float64       `json:"reliability"`
	MatchScore    float64       `json:"match_score"`
	MatchReasons  []string      `json:"match_reasons,omitempty"`
	DataSources   DataSourceTag `json:"data_sources"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Validate enforces the provenance invariant: the tag must agree with which
// source links are populated.
func (m *MergedRecord) Validate() error {
	switch m.DataSources {
	case SourceScanner:
		if m.RepoFullName == "" {
			return fmt.Errorf("scanner-sourced record missing repo link")
		}
	case SourceDirectory:
		if m.DirectoryID == "" {
			return fmt.Errorf("directory-sourced record missing directory link")
		}
	case SourceBoth:
		if m.RepoFullName == "" || m.DirectoryID == "" {
			return fmt.Errorf("fused record must link both sources")
		}
	default:
		return fmt.Errorf("invalid data source tag: %s", m.DataSources)
	}
	return nil
}

// HealthStatus is the instantaneous health bucket of a record.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthWarning  HealthStatus = "warning"
	HealthCritical HealthStatus = "critical"
	HealthUnknown  HealthStatus = "unknown"
)

// Trend is the direction of a record's health over the trend window.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
)

// MeasurementSource tags where a health observation came from.
type MeasurementSource string

const (
	MeasureDirectory MeasurementSource = "directory"
	MeasureEstimated MeasurementSource = "estimated"
)

// HealthMeasurement is one append-only health observation. Trend analysis
// depends on the full history, so measurements are never updated or deleted.
type HealthMeasurement struct {
	ID         int64             `json:"id"`
	RecordID   string            `json:"record_id"`
	Score      float64           `json:"score"`
	Status     HealthStatus      `json:"status"`
	Source     MeasurementSource `json:"source"`
	Factors    []string          `json:"factors,omitempty"`
	MeasuredAt time.Time         `json:"measured_at"`
}

// AlertSeverity ranks health alerts.
type AlertSeverity string

const (
	SeverityCritical AlertSeverity = "critical"
	SeverityWarning  AlertSeverity = "warning"
	SeverityInfo     AlertSeverity = "info"
)

// HealthAlert is raised when a record crosses a severity threshold or shows
// a declining trend. Deduplicated per (record, severity) within a cooldown.
type HealthAlert struct {
	ID           string        `json:"id"`
	RecordID     string        `json:"record_id"`
	Severity     AlertSeverity `json:"severity"`
	Message      string        `json:"message"`
	Acknowledged bool          `json:"acknowledged"`
	CreatedAt    time.Time     `json:"created_at"`
}

// RunStatus is the lifecycle state of a discovery run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// RunStats carries the per-phase counters of a discovery run. Counts are
// kept separately so partial success stays visible when items fail.
type RunStats struct {
	Discovered   int `json:"discovered"`
	Analyzed     int `json:"analyzed"`
	Detected     int `json:"detected"`
	Stored       int `json:"stored"`
	Synced       int `json:"synced"`
	Merged       int `json:"merged"`
	HealthChecks int `json:"health_checks"`
	Failed       int `json:"failed"`
}

// DiscoveryRun records one end-to-end orchestrator execution.
type DiscoveryRun struct {
	ID         string     `json:"id"`
	ConfigJSON string     `json:"config_json,omitempty"` // snapshot of the run configuration
	Status     RunStatus  `json:"status"`
	Phase      string     `json:"phase,omitempty"` // last phase reached
	Stats      RunStats   `json:"stats"`
	Errors     []string   `json:"errors,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
