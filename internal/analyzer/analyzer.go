// Package analyzer turns fetched repository content into a normalized
// capability and metadata profile. The analyzer extracts and seeds a
// confidence accumulator; the detector owns all judgment.
package analyzer

import (
	"regexp"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/mcpscout/mcpscout/internal/types"
)

// Seed weights per match kind. Dependency matches outweigh name and
// description matches, which outweigh generic mentions.
const (
	weightDependency = 15.0
	weightNameDesc   = 10.0
	weightMention    = 5.0
)

// Config carries the injectable indicator tables so keyword sets stay
// swappable and testable in isolation.
type Config struct {
	// Keywords matched case-insensitively as substrings.
	Keywords []string
	// DependencyKeywords matched against manifest dependency names.
	DependencyKeywords []string
	Logger             hclog.Logger
}

// DefaultConfig returns the standard keyword tables.
func DefaultConfig() *Config {
	return &Config{
		Keywords: []string{
			"mcp",
			"model context protocol",
			"mcp server",
			"mcp-server",
			"claude",
			"anthropic",
			"tool server",
		},
		DependencyKeywords: []string{
			"@modelcontextprotocol/sdk",
			"@modelcontextprotocol/server",
			"mcp",
			"fastmcp",
			"mcp-go",
			"mark3labs/mcp-go",
		},
	}
}

// capabilityPatterns maps each vocabulary tag to the regex that detects it
// in readme or entry-point text.
var capabilityPatterns = map[types.Capability]*regexp.Regexp{
	types.CapFilesystem: regexp.MustCompile(`(?i)\b(file ?system|read/write files|file operations|directory access)\b`),
	types.CapDatabase:   regexp.MustCompile(`(?i)\b(database|postgres(ql)?|mysql|sqlite|mongodb|redis|sql quer)\w*`),
	types.CapAPI:        regexp.MustCompile(`(?i)\b(rest api|api integration|api client|webhook|graphql)\b`),
	types.CapAI:         regexp.MustCompile(`(?i)\b(llm|openai|anthropic|claude|embedding|language model)\b`),
	types.CapTools:      regexp.MustCompile(`(?i)\b(tool call(s|ing)?|function calling|tool use|exposes tools)\b`),
	types.CapData:       regexp.MustCompile(`(?i)\b(data processing|etl|csv|data pipeline|spreadsheet)\b`),
	types.CapWeb:        regexp.MustCompile(`(?i)\b(web scraping|browser automation|fetch pages|crawl|headless)\b`),
	types.CapGit:        regexp.MustCompile(`(?i)\b(git|github|gitlab|version control|pull request)\b`),
	types.CapTime:       regexp.MustCompile(`(?i)\b(timezone|calendar|schedul(e|ing)|reminder|cron)\b`),
	types.CapMath:       regexp.MustCompile(`(?i)\b(calculat(e|or|ion)|arithmetic|statistics|equation)\b`),
	types.CapSearch:     regexp.MustCompile(`(?i)\b(search|full.?text|lookup|query engine|indexing)\b`),
	types.CapMonitoring: regexp.MustCompile(`(?i)\b(monitor(ing)?|metrics|observability|alerting|uptime)\b`),
}

// installMethods maps detected language to its package-manager convention.
var installMethods = map[string]string{
	"JavaScript": "npm",
	"TypeScript": "npm",
	"Python":     "pip",
	"Go":         "go install",
	"Rust":       "cargo",
}

// serverFileHints are directory-listing names suggesting server or config
// files.
var serverFileHints = []string{
	"server", "mcp", "config", ".env.example", "claude_desktop_config",
}

// Analyzer extracts a normalized profile from fetched repository content.
type Analyzer struct {
	cfg     *Config
	parsers []ManifestParser
	logger  hclog.Logger
}

// New creates an analyzer with the given indicator tables.
func New(cfg *Config) *Analyzer {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Analyzer{
		cfg:     cfg,
		parsers: defaultParsers(),
		logger:  logger.Named("analyzer"),
	}
}

// Analyze builds the analysis profile for a repository from its fetched
// files and top-level listing. Parse failures degrade to partial data and
// are logged as warnings, never returned.
func (a *Analyzer) Analyze(repo *types.Repository, files map[string]string, listing []string) *types.AnalysisProfile {
	profile := &types.AnalysisProfile{
		RepoFullName: repo.FullName,
		Language:     repo.Language,
		AnalyzedAt:   time.Now().UTC(),
	}

	a.analyzeManifests(profile, files)
	a.analyzeReadme(profile, files["README.md"])
	a.analyzeEntryPoints(profile, files)
	a.analyzeListing(profile, listing)

	if profile.Language == "" {
		profile.Language = repo.Language
	}
	profile.InstallMethod = installMethods[profile.Language]
	if profile.InstallMethod == "" {
		profile.InstallMethod = "manual"
	}

	return profile
}

func (a *Analyzer) analyzeManifests(profile *types.AnalysisProfile, files map[string]string) {
	for _, parser := range a.parsers {
		content, ok := files[parser.File()]
		if !ok {
			continue
		}

		manifest, err := parser.Parse(content)
		if err != nil {
			a.logger.Warn("manifest parse failed, continuing with partial data",
				"repo", profile.RepoFullName, "file", parser.File(), "error", err)
			// The serialized form still counts for keyword matching below
			manifest = &Manifest{}
		}

		if manifest.Name != "" && profile.PackageName == "" {
			profile.PackageName = manifest.Name
			profile.PackageVersion = manifest.Version
		}
		if manifest.Language != "" {
			profile.Language = manifest.Language
		}
		profile.Dependencies = append(profile.Dependencies, manifest.Dependencies...)
		profile.EntryPoints = append(profile.EntryPoints, manifest.EntryPoints...)
		if manifest.HasBinEntry {
			profile.HasBinEntry = true
		}

		// Dependency names carry the strongest extraction signal
		for _, dep := range manifest.Dependencies {
			for _, kw := range a.cfg.DependencyKeywords {
				if strings.EqualFold(dep, kw) || strings.Contains(strings.ToLower(dep), strings.ToLower(kw)) {
					a.addIndicator(profile, "dependency:"+dep, weightDependency)
					break
				}
			}
		}

		nameDesc := strings.ToLower(manifest.Name + " " + manifest.Description)
		lowerContent := strings.ToLower(content)
		for _, kw := range a.cfg.Keywords {
			kwLower := strings.ToLower(kw)
			switch {
			case strings.Contains(nameDesc, kwLower):
				a.addIndicator(profile, "manifest-name:"+kw, weightNameDesc)
			case strings.Contains(lowerContent, kwLower):
				a.addIndicator(profile, "manifest-mention:"+kw, weightMention)
			}
		}
	}
}

func (a *Analyzer) analyzeReadme(profile *types.AnalysisProfile, readme string) {
	if readme == "" {
		return
	}
	profile.HasReadme = true

	doc := parseReadme(readme)
	profile.HasInstallGuide = doc.HasSection("install", "installation", "getting started", "setup", "usage")
	profile.HasExamples = doc.HasSection("example", "examples") || doc.MentionsAnywhere("example")
	profile.HasDocs = doc.HasSection("documentation", "docs", "api reference")

	lower := strings.ToLower(readme)
	for _, kw := range a.cfg.Keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			a.addIndicator(profile, "readme:"+kw, weightMention)
		}
	}

	a.matchCapabilities(profile, readme)
}

func (a *Analyzer) analyzeEntryPoints(profile *types.AnalysisProfile, files map[string]string) {
	for _, path := range []string{"index.js", "server.js", "server.py", "main.go", "src/index.ts"} {
		content, ok := files[path]
		if !ok {
			continue
		}
		lower := strings.ToLower(content)
		for _, kw := range a.cfg.Keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				a.addIndicator(profile, "source:"+kw+":"+path, weightMention)
			}
		}
		a.matchCapabilities(profile, content)
	}
}

func (a *Analyzer) analyzeListing(profile *types.AnalysisProfile, listing []string) {
	for _, name := range listing {
		lower := strings.ToLower(name)
		for _, hint := range serverFileHints {
			if strings.Contains(lower, hint) {
				a.addIndicator(profile, "file:"+name, weightMention)
				break
			}
		}
		if strings.Contains(lower, "config") && (strings.Contains(lower, "example") || strings.Contains(lower, "sample")) {
			profile.HasConfigExample = true
		}
		if lower == ".env.example" || lower == "claude_desktop_config.json" {
			profile.HasConfigExample = true
		}
		if lower == "docs" || lower == "doc" {
			profile.HasDocs = true
		}
		if lower == "examples" || lower == "example" {
			profile.HasExamples = true
		}
	}
}

func (a *Analyzer) matchCapabilities(profile *types.AnalysisProfile, text string) {
	for _, cap := range types.AllCapabilities {
		if capabilityPatterns[cap].MatchString(text) {
			profile.AddCapability(cap)
		}
	}
}

// addIndicator records a raw matched indicator once and bumps the seed
// accumulator. Repeats of the same indicator do not stack.
func (a *Analyzer) addIndicator(profile *types.AnalysisProfile, indicator string, weight float64) {
	for _, existing := range profile.Indicators {
		if existing == indicator {
			return
		}
	}
	profile.Indicators = append(profile.Indicators, indicator)
	profile.SeedConfidence += weight
}
