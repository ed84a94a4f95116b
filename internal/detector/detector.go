// Package detector applies weighted indicator rules to an analysis profile
// and produces a bounded confidence score with a discrete classification.
// The analyzer extracts; this package judges.
package detector

import (
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/mcpscout/mcpscout/internal/types"
)

// Config holds detector construction options.
type Config struct {
	Rules      *Rules
	Thresholds Thresholds
	// Strict selects the strict threshold profile when Thresholds is zero.
	Strict bool
	Logger hclog.Logger
}

// Detector classifies analysis profiles.
type Detector struct {
	rules      *Rules
	thresholds Thresholds
	logger     hclog.Logger
}

// New creates a detector. A nil config selects the default rules and the
// normal threshold profile.
func New(cfg *Config) *Detector {
	if cfg == nil {
		cfg = &Config{}
	}
	rules := cfg.Rules
	if rules == nil {
		rules = DefaultRules()
	}
	thresholds := cfg.Thresholds
	if thresholds == (Thresholds{}) {
		if cfg.Strict {
			thresholds = StrictThresholds()
		} else {
			thresholds = NormalThresholds()
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Detector{rules: rules, thresholds: thresholds, logger: logger.Named("detector")}
}

// Classify scores a profile against the indicator tables. Confidence
// starts from the analyzer's seed and is adjusted by the pattern,
// file-signal, and characteristic passes, then edge cases and final
// boosts, and is always clamped to [0,100].
func (d *Detector) Classify(repo *types.Repository, profile *types.AnalysisProfile) *types.Detection {
	det := &types.Detection{
		RepoFullName: profile.RepoFullName,
		DetectedAt:   time.Now().UTC(),
	}

	confidence := profile.SeedConfidence

	combined := combinedText(repo, profile)
	confidence += d.patternPass(det, combined)
	confidence += d.fileSignalPass(det, profile)
	confidence += d.characteristicPass(det, repo, profile)
	confidence = d.applyEdgeCases(det, repo, confidence)
	confidence = d.applyFinalBoosts(det, profile, confidence)

	det.Confidence = clamp(confidence)
	det.Band = d.Band(det.Confidence)
	det.Label = d.labelFor(det.Band)
	det.IsCandidate = det.Confidence >= d.thresholds.Minimal
	return det
}

// combinedText is the haystack for the pattern pass: repository name and
// description, package name, and every raw indicator the analyzer matched.
func combinedText(repo *types.Repository, profile *types.AnalysisProfile) string {
	parts := []string{repo.FullName, repo.Description, profile.PackageName}
	parts = append(parts, profile.Indicators...)
	return strings.Join(parts, " ")
}

// patternPass scans the combined text against the three positive tiers and
// the negative list. Weak-positive matches are capped in aggregate.
func (d *Detector) patternPass(det *types.Detection, text string) float64 {
	var delta float64

	for _, p := range d.rules.StrongPositive {
		if p.Regex.MatchString(text) {
			det.Positive = append(det.Positive, types.Indicator{Name: "strong:" + p.Name, Weight: p.Weight, Reason: p.Reason})
			delta += p.Weight
		}
	}
	for _, p := range d.rules.MediumPositive {
		if p.Regex.MatchString(text) {
			det.Positive = append(det.Positive, types.Indicator{Name: "medium:" + p.Name, Weight: p.Weight, Reason: p.Reason})
			delta += p.Weight
		}
	}

	var weakSum float64
	for _, p := range d.rules.WeakPositive {
		if p.Regex.MatchString(text) {
			weight := p.Weight
			if weakSum+weight > d.rules.WeakCap {
				weight = d.rules.WeakCap - weakSum
			}
			if weight <= 0 {
				break
			}
			weakSum += weight
			det.Positive = append(det.Positive, types.Indicator{Name: "weak:" + p.Name, Weight: weight, Reason: p.Reason})
			delta += weight
		}
	}

	for _, p := range d.rules.Negative {
		if p.Regex.MatchString(text) {
			det.Negative = append(det.Negative, types.Indicator{Name: "negative:" + p.Name, Weight: p.Weight, Reason: p.Reason})
			delta += p.Weight
		}
	}

	return delta
}

// genericWebDeps are dependencies that mark a plain web application when no
// protocol SDK is present.
var genericWebDeps = map[string]bool{
	"react": true, "vue": true, "next": true, "nuxt": true,
	"express": true, "django": true, "flask": true, "rails": true,
}

// fileSignalPass rewards manifest and entry-point content that looks like a
// protocol server and penalizes manifests that look like a generic web app.
func (d *Detector) fileSignalPass(det *types.Detection, profile *types.AnalysisProfile) float64 {
	var delta float64

	hasSDK := false
	for _, dep := range profile.Dependencies {
		lower := strings.ToLower(dep)
		if strings.HasPrefix(lower, "@modelcontextprotocol/") || lower == "mcp" || lower == "fastmcp" ||
			strings.Contains(lower, "mark3labs/mcp-go") {
			hasSDK = true
		}
	}
	if hasSDK {
		det.Positive = append(det.Positive, types.Indicator{
			Name: "file:sdk-dependency", Weight: 15, Reason: "manifest declares a protocol SDK dependency"})
		delta += 15
	}

	entrySignals := 0
	for _, ind := range profile.Indicators {
		if strings.HasPrefix(ind, "source:") {
			entrySignals++
		}
	}
	if entrySignals > 0 {
		det.Positive = append(det.Positive, types.Indicator{
			Name: "file:entry-point", Weight: 5, Reason: fmt.Sprintf("%d entry-point signals", entrySignals)})
		delta += 5
	}

	if !hasSDK {
		webDeps := 0
		for _, dep := range profile.Dependencies {
			if genericWebDeps[strings.ToLower(dep)] {
				webDeps++
			}
		}
		if webDeps >= 2 {
			det.Negative = append(det.Negative, types.Indicator{
				Name: "file:generic-web-app", Weight: -10, Reason: "manifest looks like a generic web application"})
			delta -= 10
		}
	}

	return delta
}

// characteristicPass scores binary repository traits.
func (d *Detector) characteristicPass(det *types.Detection, repo *types.Repository, profile *types.AnalysisProfile) float64 {
	var delta float64

	add := func(positive bool, name string, weight float64, reason string) {
		ind := types.Indicator{Name: "trait:" + name, Weight: weight, Reason: reason}
		if positive {
			det.Positive = append(det.Positive, ind)
		} else {
			det.Negative = append(det.Negative, ind)
		}
		delta += weight
	}

	if profile.HasBinEntry {
		add(true, "bin-entry", 5, "package declares an executable entry")
	}
	if profile.HasConfigExample {
		add(true, "config-example", 5, "ships a configuration example")
	}
	if profile.HasInstallGuide {
		add(true, "install-guide", 5, "readme documents installation")
	}

	now := time.Now()
	lastTouched := repo.UpdatedAt
	if repo.PushedAt != nil && repo.PushedAt.After(lastTouched) {
		lastTouched = *repo.PushedAt
	}
	if !lastTouched.IsZero() {
		switch {
		case lastTouched.After(now.AddDate(0, -6, 0)):
			add(true, "recently-updated", 5, "updated within six months")
		case lastTouched.Before(now.AddDate(-2, 0, 0)):
			add(false, "stale", -15, "untouched for two or more years")
		}
	}

	if repo.Archived {
		add(false, "archived", -15, "repository is archived")
	}
	if repo.Fork {
		add(false, "fork", -5, "repository is a fork")
	}
	if repo.SizeKB > 0 && repo.SizeKB < 10 {
		add(false, "near-empty", -10, "repository is nearly empty")
	}
	if strings.TrimSpace(repo.Description) == "" {
		add(false, "no-description", -5, "repository has no description")
	}

	return delta
}

// applyEdgeCases tags special repository shapes and adjusts confidence.
// Monorepos are tagged without penalty; example repos are penalized only
// below the medium threshold; documentation repos always take the larger
// penalty.
func (d *Detector) applyEdgeCases(det *types.Detection, repo *types.Repository, confidence float64) float64 {
	nameDesc := repo.FullName + " " + repo.Description

	if d.rules.MonorepoPattern.MatchString(nameDesc) {
		det.EdgeCases = append(det.EdgeCases, types.EdgeMonorepo)
	}
	if d.rules.ExamplePattern.MatchString(nameDesc) {
		det.EdgeCases = append(det.EdgeCases, types.EdgeExample)
		if confidence <= d.thresholds.Medium {
			confidence -= d.rules.ExamplePenalty
		}
	}
	if d.rules.DocsPattern.MatchString(nameDesc) {
		det.EdgeCases = append(det.EdgeCases, types.EdgeDocumentation)
		confidence -= d.rules.DocsPenalty
	}
	return confidence
}

// applyFinalBoosts applies the closing adjustments after all passes summed.
func (d *Detector) applyFinalBoosts(det *types.Detection, profile *types.AnalysisProfile, confidence float64) float64 {
	strongCount := 0
	for _, ind := range det.Positive {
		if strings.HasPrefix(ind.Name, "strong:") {
			strongCount++
		}
	}
	if strongCount >= 2 {
		confidence += d.rules.StrongPairBoost
	}

	goodDocs := profile.HasReadme && profile.HasInstallGuide
	if goodDocs && len(det.Positive) > 0 {
		confidence += d.rules.GoodDocsBoost
	}

	// Generic popularity without a single positive signal is the classic
	// false-positive shape
	if len(det.Positive) == 0 && confidence > 0 {
		confidence -= d.rules.NoPositivePenalty
	}

	if d.rules.OfficialNamespace.MatchString(profile.PackageName) {
		det.Positive = append(det.Positive, types.Indicator{
			Name: "official-namespace", Weight: d.rules.OfficialBoost,
			Reason: "package name is in the official namespace"})
		confidence += d.rules.OfficialBoost
	}

	return confidence
}

// Band maps a confidence score to its band. Pure function of the score and
// the active thresholds.
func (d *Detector) Band(confidence float64) types.ConfidenceBand {
	switch {
	case confidence >= d.thresholds.High:
		return types.BandHigh
	case confidence >= d.thresholds.Medium:
		return types.BandMedium
	case confidence >= d.thresholds.Low:
		return types.BandLow
	case confidence >= d.thresholds.Minimal:
		return types.BandMinimal
	default:
		return types.BandNone
	}
}

func (d *Detector) labelFor(band types.ConfidenceBand) types.Classification {
	switch band {
	case types.BandHigh:
		return types.ClassDefinite
	case types.BandMedium:
		return types.ClassLikely
	case types.BandLow:
		return types.ClassPossible
	case types.BandMinimal:
		return types.ClassUnlikely
	default:
		return types.ClassNot
	}
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
