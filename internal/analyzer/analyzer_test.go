package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mcpscout/mcpscout/internal/types"
)

func testRepo() *types.Repository {
	return &types.Repository{
		FullName: "acme/mcp-weather",
		Language: "TypeScript",
	}
}

func TestAnalyzeSeedsFromDependencies(t *testing.T) {
	a := New(nil)

	files := map[string]string{
		"package.json": `{
			"name": "mcp-weather",
			"version": "1.2.0",
			"description": "Weather MCP server",
			"dependencies": {"@modelcontextprotocol/sdk": "^1.0.0"}
		}`,
	}

	profile := a.Analyze(testRepo(), files, nil)

	assert.Equal(t, "mcp-weather", profile.PackageName)
	assert.Equal(t, "v1.2.0", profile.PackageVersion)
	assert.Contains(t, profile.Dependencies, "@modelcontextprotocol/sdk")
	assert.Contains(t, profile.Indicators, "dependency:@modelcontextprotocol/sdk")
	// dependency weight > name/description weight
	assert.GreaterOrEqual(t, profile.SeedConfidence, weightDependency+weightNameDesc)
}

func TestAnalyzeNeverAssignsFinalConfidence(t *testing.T) {
	a := New(nil)

	profile := a.Analyze(testRepo(), map[string]string{}, nil)

	// No content, no seed; the analyzer only ever accumulates from matches
	assert.Zero(t, profile.SeedConfidence)
	assert.Empty(t, profile.Indicators)
}

func TestAnalyzeReadmeFlagsAndCapabilities(t *testing.T) {
	a := New(nil)

	files := map[string]string{
		"README.md": `# Weather MCP Server

A model context protocol server for weather data.

## Installation

npm install mcp-weather

## Examples

Query the REST API integration for forecasts, backed by a PostgreSQL database.
`,
	}

	profile := a.Analyze(testRepo(), files, nil)

	assert.True(t, profile.HasReadme)
	assert.True(t, profile.HasInstallGuide)
	assert.True(t, profile.HasExamples)
	assert.True(t, profile.HasCapability(types.CapAPI))
	assert.True(t, profile.HasCapability(types.CapDatabase))
	assert.False(t, profile.HasCapability(types.CapGit))
	assert.Contains(t, profile.Indicators, "readme:model context protocol")
}

func TestAnalyzeIndicatorsDoNotStack(t *testing.T) {
	a := New(nil)

	// "mcp" appears in readme many times but seeds only once per indicator
	files := map[string]string{
		"README.md": "mcp mcp mcp mcp mcp",
	}
	profile := a.Analyze(testRepo(), files, nil)

	count := 0
	for _, ind := range profile.Indicators {
		if ind == "readme:mcp" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestAnalyzeListingHints(t *testing.T) {
	a := New(nil)

	profile := a.Analyze(testRepo(), nil, []string{
		"server.ts", "claude_desktop_config.json", "docs", "examples",
	})

	assert.True(t, profile.HasConfigExample)
	assert.True(t, profile.HasDocs)
	assert.True(t, profile.HasExamples)
	assert.Contains(t, profile.Indicators, "file:server.ts")
}

func TestAnalyzeInstallMethodFromLanguage(t *testing.T) {
	tests := []struct {
		language string
		want     string
	}{
		{"TypeScript", "npm"},
		{"JavaScript", "npm"},
		{"Python", "pip"},
		{"Go", "go install"},
		{"Rust", "cargo"},
		{"Haskell", "manual"},
	}

	a := New(nil)
	for _, tt := range tests {
		t.Run(tt.language, func(t *testing.T) {
			repo := &types.Repository{FullName: "a/b", Language: tt.language}
			profile := a.Analyze(repo, nil, nil)
			assert.Equal(t, tt.want, profile.InstallMethod)
		})
	}
}

func TestAnalyzeMalformedManifestDegradesToPartialData(t *testing.T) {
	a := New(nil)

	files := map[string]string{
		"package.json": `{not valid json`,
		"README.md":    "# Something\n\nAn mcp server for files.",
	}

	profile := a.Analyze(testRepo(), files, nil)

	// Readme analysis still ran
	assert.True(t, profile.HasReadme)
	assert.NotZero(t, profile.SeedConfidence)
	assert.Empty(t, profile.PackageName)
}

func TestManifestParserLanguageDetection(t *testing.T) {
	a := New(nil)

	files := map[string]string{
		"pyproject.toml": `
[project]
name = "mcp-files"
version = "0.3.1"
description = "File system MCP server"
dependencies = ["mcp>=1.0", "aiofiles"]
`,
	}
	repo := &types.Repository{FullName: "acme/mcp-files", Language: ""}
	profile := a.Analyze(repo, files, nil)

	assert.Equal(t, "Python", profile.Language)
	assert.Equal(t, "pip", profile.InstallMethod)
	assert.Equal(t, "mcp-files", profile.PackageName)
	assert.Equal(t, "v0.3.1", profile.PackageVersion)
	assert.Contains(t, profile.Dependencies, "mcp")
	assert.Contains(t, profile.Dependencies, "aiofiles")
}
