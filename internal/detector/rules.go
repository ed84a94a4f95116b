package detector

import "regexp"

// Pattern is one weighted indicator rule.
type Pattern struct {
	Name   string
	Regex  *regexp.Regexp
	Weight float64
	Reason string
}

// Rules carries every indicator table the detector consults. Tables are
// injected at construction so profiles stay swappable and testable.
type Rules struct {
	StrongPositive []Pattern
	MediumPositive []Pattern
	WeakPositive   []Pattern
	Negative       []Pattern

	// WeakCap bounds the aggregate weak-positive contribution so keyword
	// stuffing cannot dominate the score.
	WeakCap float64

	// Edge-case detection over name+description
	MonorepoPattern *regexp.Regexp
	ExamplePattern  *regexp.Regexp
	DocsPattern     *regexp.Regexp

	// OfficialNamespace matches the reserved official package namespace.
	OfficialNamespace *regexp.Regexp

	// Boost and penalty constants
	ExamplePenalty    float64
	DocsPenalty       float64
	StrongPairBoost   float64
	GoodDocsBoost     float64
	NoPositivePenalty float64
	OfficialBoost     float64
}

// DefaultRules returns the standard indicator tables.
func DefaultRules() *Rules {
	return &Rules{
		StrongPositive: []Pattern{
			{
				Name:   "mcp-server-phrase",
				Regex:  regexp.MustCompile(`(?i)\bmcp[- ]server\b`),
				Weight: 20,
				Reason: "explicit MCP server phrase",
			},
			{
				Name:   "model-context-protocol",
				Regex:  regexp.MustCompile(`(?i)\bmodel[- ]context[- ]protocol\b`),
				Weight: 20,
				Reason: "names the protocol in full",
			},
			{
				Name:   "official-sdk-dependency",
				Regex:  regexp.MustCompile(`(?i)@modelcontextprotocol/(sdk|server)`),
				Weight: 20,
				Reason: "depends on the official SDK",
			},
		},
		MediumPositive: []Pattern{
			{
				Name:   "claude-integration",
				Regex:  regexp.MustCompile(`(?i)\bclaude (desktop|integration|tool)\b`),
				Weight: 10,
				Reason: "mentions Claude integration",
			},
			{
				Name:   "tool-server",
				Regex:  regexp.MustCompile(`(?i)\btool server\b`),
				Weight: 10,
				Reason: "describes itself as a tool server",
			},
			{
				Name:   "fastmcp",
				Regex:  regexp.MustCompile(`(?i)\bfastmcp\b`),
				Weight: 10,
				Reason: "uses a known MCP framework",
			},
		},
		WeakPositive: []Pattern{
			{
				Name:   "mcp-mention",
				Regex:  regexp.MustCompile(`(?i)\bmcp\b`),
				Weight: 3,
				Reason: "mentions MCP",
			},
			{
				Name:   "anthropic-mention",
				Regex:  regexp.MustCompile(`(?i)\banthropic\b`),
				Weight: 3,
				Reason: "mentions Anthropic",
			},
			{
				Name:   "ai-tool-mention",
				Regex:  regexp.MustCompile(`(?i)\b(ai tool|llm tool|agent tool)\b`),
				Weight: 3,
				Reason: "mentions AI tooling",
			},
		},
		Negative: []Pattern{
			{
				Name:   "tutorial",
				Regex:  regexp.MustCompile(`(?i)\b(tutorial|course|learn(ing)? (to|how)|workshop)\b`),
				Weight: -15,
				Reason: "reads like a tutorial or course",
			},
			{
				Name:   "game",
				Regex:  regexp.MustCompile(`(?i)\b(game|minecraft|tic[- ]tac[- ]toe)\b`),
				Weight: -15,
				Reason: "reads like a game project",
			},
			{
				Name:   "homework",
				Regex:  regexp.MustCompile(`(?i)\b(homework|assignment|exercise|bootcamp|capstone)\b`),
				Weight: -15,
				Reason: "reads like coursework",
			},
			{
				Name:   "portfolio",
				Regex:  regexp.MustCompile(`(?i)\b(portfolio|my personal (site|website)|resume)\b`),
				Weight: -15,
				Reason: "reads like a portfolio",
			},
			{
				Name:   "test-repo",
				Regex:  regexp.MustCompile(`(?i)\b(test repo(sitory)?|playground|sandbox repo|scratch)\b`),
				Weight: -15,
				Reason: "reads like a throwaway test repository",
			},
		},
		WeakCap: 9,

		MonorepoPattern: regexp.MustCompile(`(?i)\b(monorepo|collection of (mcp )?servers|servers? (list|collection))\b`),
		ExamplePattern:  regexp.MustCompile(`(?i)\b(example|demo|sample|starter|template|boilerplate)\b`),
		DocsPattern:     regexp.MustCompile(`(?i)\b(documentation (repo|site)|docs only|awesome[- ]list|awesome[- ]mcp|curated list)\b`),

		OfficialNamespace: regexp.MustCompile(`^@modelcontextprotocol/[a-z0-9][a-z0-9._-]*$`),

		ExamplePenalty:    15,
		DocsPenalty:       25,
		StrongPairBoost:   15,
		GoodDocsBoost:     10,
		NoPositivePenalty: 20,
		OfficialBoost:     25,
	}
}

// Thresholds are the band boundaries. A confidence below Minimal is band
// "none"; everything else buckets at the highest boundary it clears.
type Thresholds struct {
	Minimal float64
	Low     float64
	Medium  float64
	High    float64
}

// NormalThresholds is the default profile.
func NormalThresholds() Thresholds {
	return Thresholds{Minimal: 10, Low: 30, Medium: 50, High: 75}
}

// StrictThresholds raises every boundary; used when false positives are
// costlier than false negatives.
func StrictThresholds() Thresholds {
	return Thresholds{Minimal: 20, Low: 40, Medium: 60, High: 85}
}
