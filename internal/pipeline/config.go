package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mcpscout/mcpscout/internal/fusion"
	"github.com/mcpscout/mcpscout/internal/health"
)

// Preset names a bundled pipeline configuration.
type Preset string

const (
	PresetQuick    Preset = "quick"
	PresetStandard Preset = "standard"
	PresetDeep     Preset = "deep"
)

// Config is the resolved pipeline configuration.
type Config struct {
	Preset Preset

	// Scanner settings
	GitHubToken    string
	GitHubBaseURL  string
	RequestsPerSec float64
	RetryBaseDelay time.Duration
	MaxResults     int
	// MinStars filters searches to repositories at or above this
	// popularity; zero disables the filter.
	MinStars     int
	FetchDetails bool

	// Classification settings
	Strict bool
	// MinConfidence is the detection floor for entering the unified
	// catalog.
	MinConfidence float64

	// Fusion settings
	MatchThreshold float64

	// Directory settings
	DirectoryBaseURL string
	DirectoryAPIKey  string
	DirectoryOffline bool
	SyncInterval     time.Duration

	// Health settings
	HealthInterval       time.Duration
	AlertCooldown        time.Duration
	TrendWindow          int
	ReliabilityWindow    int
	SmoothingAlpha       float64
	ReliabilityThreshold float64

	// Execution settings
	Concurrency int
	// BatchSize splits analysis into sequential batches; batch N+1 does
	// not start until batch N's workers finish.
	BatchSize int
	// ItemSpacing is the minimum gap between successive per-repository
	// detail fetches, on top of the scanner's own rate limiting.
	ItemSpacing time.Duration

	// ResumeRunID picks up an interrupted run instead of starting fresh.
	ResumeRunID string
}

// DefaultConfig is the standard preset.
func DefaultConfig() *Config {
	return PresetConfig(PresetStandard)
}

// PresetConfig returns the configuration bundle for a preset. Unknown
// presets fall back to standard.
func PresetConfig(preset Preset) *Config {
	cfg := &Config{
		Preset:               PresetStandard,
		RequestsPerSec:       1.5,
		MaxResults:           50,
		FetchDetails:         true,
		MinConfidence:        10,
		MatchThreshold:       fusion.DefaultMatchThreshold,
		SyncInterval:         6 * time.Hour,
		HealthInterval:       time.Hour,
		AlertCooldown:        24 * time.Hour,
		TrendWindow:          20,
		ReliabilityWindow:    100,
		SmoothingAlpha:       health.DefaultSmoothingAlpha,
		ReliabilityThreshold: 0.5,
		Concurrency:          4,
		BatchSize:            10,
		ItemSpacing:          200 * time.Millisecond,
	}

	switch preset {
	case PresetQuick:
		cfg.Preset = PresetQuick
		cfg.MaxResults = 20
		cfg.MinStars = 10
		cfg.FetchDetails = false
		cfg.Concurrency = 2
	case PresetDeep:
		cfg.Preset = PresetDeep
		cfg.MaxResults = 150
		cfg.Concurrency = 8
		cfg.BatchSize = 25
		cfg.Strict = true
		cfg.MinConfidence = 20
	}
	return cfg
}

// ConfigFile is the structure of .mcpscout/config.yaml.
type ConfigFile struct {
	Preset string `yaml:"preset"`

	GitHub struct {
		Token          string  `yaml:"token"`
		BaseURL        string  `yaml:"base_url"`
		RequestsPerSec float64 `yaml:"requests_per_sec"`
		MaxResults     int     `yaml:"max_results"`
		MinStars       int     `yaml:"min_stars"`
	} `yaml:"github"`

	Detection struct {
		Strict        bool    `yaml:"strict"`
		MinConfidence float64 `yaml:"min_confidence"`
	} `yaml:"detection"`

	Fusion struct {
		MatchThreshold float64 `yaml:"match_threshold"`
	} `yaml:"fusion"`

	Directory struct {
		BaseURL      string `yaml:"base_url"`
		APIKey       string `yaml:"api_key"`
		Offline      bool   `yaml:"offline"`
		SyncInterval string `yaml:"sync_interval"` // duration string like "6h"
	} `yaml:"directory"`

	Health struct {
		CheckInterval        string  `yaml:"check_interval"`
		AlertCooldown        string  `yaml:"alert_cooldown"`
		TrendWindow          int     `yaml:"trend_window"`
		ReliabilityWindow    int     `yaml:"reliability_window"`
		SmoothingAlpha       float64 `yaml:"smoothing_alpha"`
		ReliabilityThreshold float64 `yaml:"reliability_threshold"`
	} `yaml:"health"`

	Concurrency int `yaml:"concurrency"`
	BatchSize   int `yaml:"batch_size"`
}

// LoadConfigFile loads .mcpscout/config.yaml under root, returning the
// default configuration when the file does not exist.
func LoadConfigFile(root string) (*Config, error) {
	path := filepath.Join(root, ".mcpscout", "config.yaml")

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var file ConfigFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return file.ToConfig()
}

// ToConfig resolves the file against its preset: the preset sets the
// baseline and explicit file values override it.
func (cf *ConfigFile) ToConfig() (*Config, error) {
	cfg := PresetConfig(Preset(cf.Preset))

	if cf.GitHub.Token != "" {
		cfg.GitHubToken = cf.GitHub.Token
	}
	if cf.GitHub.BaseURL != "" {
		cfg.GitHubBaseURL = cf.GitHub.BaseURL
	}
	if cf.GitHub.RequestsPerSec > 0 {
		cfg.RequestsPerSec = cf.GitHub.RequestsPerSec
	}
	if cf.GitHub.MaxResults > 0 {
		cfg.MaxResults = cf.GitHub.MaxResults
	}
	if cf.GitHub.MinStars > 0 {
		cfg.MinStars = cf.GitHub.MinStars
	}

	if cf.Detection.Strict {
		cfg.Strict = true
	}
	if cf.Detection.MinConfidence > 0 {
		cfg.MinConfidence = cf.Detection.MinConfidence
	}

	if cf.Fusion.MatchThreshold > 0 {
		cfg.MatchThreshold = cf.Fusion.MatchThreshold
	}

	if cf.Directory.BaseURL != "" {
		cfg.DirectoryBaseURL = cf.Directory.BaseURL
	}
	if cf.Directory.APIKey != "" {
		cfg.DirectoryAPIKey = cf.Directory.APIKey
	}
	if cf.Directory.Offline {
		cfg.DirectoryOffline = true
	}
	if cf.Directory.SyncInterval != "" {
		d, err := time.ParseDuration(cf.Directory.SyncInterval)
		if err != nil {
			return nil, fmt.Errorf("invalid sync_interval: %w", err)
		}
		cfg.SyncInterval = d
	}

	if cf.Health.CheckInterval != "" {
		d, err := time.ParseDuration(cf.Health.CheckInterval)
		if err != nil {
			return nil, fmt.Errorf("invalid check_interval: %w", err)
		}
		cfg.HealthInterval = d
	}
	if cf.Health.AlertCooldown != "" {
		d, err := time.ParseDuration(cf.Health.AlertCooldown)
		if err != nil {
			return nil, fmt.Errorf("invalid alert_cooldown: %w", err)
		}
		cfg.AlertCooldown = d
	}
	if cf.Health.TrendWindow > 0 {
		cfg.TrendWindow = cf.Health.TrendWindow
	}
	if cf.Health.ReliabilityWindow > 0 {
		cfg.ReliabilityWindow = cf.Health.ReliabilityWindow
	}
	if cf.Health.SmoothingAlpha > 0 {
		cfg.SmoothingAlpha = cf.Health.SmoothingAlpha
	}
	if cf.Health.ReliabilityThreshold > 0 {
		cfg.ReliabilityThreshold = cf.Health.ReliabilityThreshold
	}

	if cf.Concurrency > 0 {
		cfg.Concurrency = cf.Concurrency
	}
	if cf.BatchSize > 0 {
		cfg.BatchSize = cf.BatchSize
	}

	return cfg, nil
}
