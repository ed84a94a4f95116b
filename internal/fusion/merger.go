// Package fusion joins scanner detections and directory servers into the
// unified catalog. Matching is greedy one-to-one over a weighted similarity
// score; every input ends up in exactly one merged record, matched or not.
package fusion

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/mcpscout/mcpscout/internal/storage"
	"github.com/mcpscout/mcpscout/internal/types"
)

// DefaultMatchThreshold is the minimum similarity for a cross-source link.
const DefaultMatchThreshold = 0.6

// MergerConfig holds merger construction options.
type MergerConfig struct {
	// MatchThreshold overrides the default minimum match score.
	MatchThreshold float64
	// MinConfidence filters which detections enter fusion; zero admits
	// every candidate.
	MinConfidence float64
	Logger        hclog.Logger
}

// MergeResult summarizes one fusion pass.
type MergeResult struct {
	Fused         int
	ScannerOnly   int
	DirectoryOnly int
	Failed        int
}

// candidate pairs a detection with its repository and profile.
type candidate struct {
	repo      *types.Repository
	detection *types.Detection
	profile   *types.AnalysisProfile
}

// Merger fuses the two source populations into merged records.
type Merger struct {
	store     storage.Storage
	threshold float64
	minConf   float64
	logger    hclog.Logger
}

// NewMerger creates a merger.
func NewMerger(store storage.Storage, cfg *MergerConfig) *Merger {
	if cfg == nil {
		cfg = &MergerConfig{}
	}
	threshold := cfg.MatchThreshold
	if threshold <= 0 {
		threshold = DefaultMatchThreshold
	}
	logger := cfg.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Merger{store: store, threshold: threshold, minConf: cfg.MinConfidence, logger: logger.Named("fusion")}
}

// pairing is one candidate/server match above the threshold.
type pairing struct {
	candIdx int
	srvIdx  int
	score   float64
	reasons []string
}

// Merge runs one full fusion pass: load both populations, match greedily,
// and upsert one merged record per input entity. Per-record failures are
// isolated; the pass keeps going.
func (m *Merger) Merge(ctx context.Context) (*MergeResult, error) {
	result := &MergeResult{}

	candidates, err := m.loadCandidates(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading candidates: %w", err)
	}
	servers, err := m.store.ListDirectoryServers(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("loading directory servers: %w", err)
	}

	matches := m.matchGreedy(candidates, servers)

	now := time.Now().UTC()
	matchedCand := make(map[int]bool)
	matchedSrv := make(map[int]bool)

	for _, p := range matches {
		matchedCand[p.candIdx] = true
		matchedSrv[p.srvIdx] = true
		rec := m.fusedRecord(candidates[p.candIdx], servers[p.srvIdx], p, now)
		if err := m.store.UpsertMergedRecord(ctx, rec); err != nil {
			m.logger.Warn("fused record upsert failed", "id", rec.ID, "error", err)
			result.Failed++
			continue
		}
		result.Fused++
	}

	for i, cand := range candidates {
		if matchedCand[i] {
			continue
		}
		rec := m.scannerRecord(cand, now)
		if err := m.store.UpsertMergedRecord(ctx, rec); err != nil {
			m.logger.Warn("scanner record upsert failed", "id", rec.ID, "error", err)
			result.Failed++
			continue
		}
		result.ScannerOnly++
	}

	for i, srv := range servers {
		if matchedSrv[i] {
			continue
		}
		rec := m.directoryRecord(srv, now)
		if err := m.store.UpsertMergedRecord(ctx, rec); err != nil {
			m.logger.Warn("directory record upsert failed", "id", rec.ID, "error", err)
			result.Failed++
			continue
		}
		result.DirectoryOnly++
	}

	m.logger.Info("fusion complete",
		"fused", result.Fused, "scanner_only", result.ScannerOnly,
		"directory_only", result.DirectoryOnly, "failed", result.Failed)
	return result, nil
}

// loadCandidates joins detections with their repositories and profiles.
// A detection whose repository vanished is skipped, not fatal.
func (m *Merger) loadCandidates(ctx context.Context) ([]*candidate, error) {
	detections, err := m.store.ListCandidates(ctx, m.minConf)
	if err != nil {
		return nil, err
	}
	out := make([]*candidate, 0, len(detections))
	for _, det := range detections {
		repo, err := m.store.GetRepository(ctx, det.RepoFullName)
		if err != nil {
			m.logger.Warn("candidate without repository", "repo", det.RepoFullName, "error", err)
			continue
		}
		profile, err := m.store.GetProfile(ctx, det.RepoFullName)
		if err != nil {
			profile = nil
		}
		out = append(out, &candidate{repo: repo, detection: det, profile: profile})
	}
	return out, nil
}

// matchGreedy scores every cross-source pair and assigns matches greedily
// by descending score, one server per repository and vice versa. Ties keep
// encounter order so the pass is deterministic.
func (m *Merger) matchGreedy(candidates []*candidate, servers []*types.DirectoryServer) []pairing {
	var pairs []pairing
	for ci, cand := range candidates {
		for si, srv := range servers {
			score, reasons := matchScore(cand, srv)
			if score >= m.threshold {
				pairs = append(pairs, pairing{candIdx: ci, srvIdx: si, score: score, reasons: reasons})
			}
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].score > pairs[j].score })

	usedCand := make(map[int]bool)
	usedSrv := make(map[int]bool)
	var out []pairing
	for _, p := range pairs {
		if usedCand[p.candIdx] || usedSrv[p.srvIdx] {
			continue
		}
		usedCand[p.candIdx] = true
		usedSrv[p.srvIdx] = true
		out = append(out, p)
	}
	return out
}

// fusedRecord builds the merged record for a matched pair. Directory
// verification and health lift the scanner's confidence.
func (m *Merger) fusedRecord(cand *candidate, srv *types.DirectoryServer, p pairing, now time.Time) *types.MergedRecord {
	confidence := cand.detection.Confidence
	if srv.Verified {
		confidence += 10
	}
	confidence += srv.HealthScore / 10
	if confidence > 100 {
		confidence = 100
	}

	// Display fields trust the directory only when it vouches for the
	// entry; an unverified listing never overrides the scanned repository.
	var name, description string
	if srv.Verified {
		name = displayField(srv.Name, cand.repo.Name())
		description = displayField(srv.Description, cand.repo.Description)
	} else {
		name = displayField(cand.repo.Name(), srv.Name)
		description = displayField(cand.repo.Description, srv.Description)
	}

	return &types.MergedRecord{
		ID:           FusedID(cand.repo.FullName, srv.ExternalID),
		RepoFullName: cand.repo.FullName,
		DirectoryID:  srv.ExternalID,
		Name:         name,
		Description:  description,
		Capabilities: unionCapabilities(profileCaps(cand.profile), srv.Capabilities),
		Popularity:   maxInt(cand.repo.Stars, srv.Stars),
		Confidence:   confidence,
		Verified:     srv.Verified,
		MatchScore:   p.score,
		MatchReasons: p.reasons,
		DataSources:  types.SourceBoth,
		UpdatedAt:    now,
	}
}

// scannerRecord builds the merged record for an unmatched detection.
func (m *Merger) scannerRecord(cand *candidate, now time.Time) *types.MergedRecord {
	return &types.MergedRecord{
		ID:           ScannerID(cand.repo.FullName),
		RepoFullName: cand.repo.FullName,
		Name:         cand.repo.Name(),
		Description:  cand.repo.Description,
		Capabilities: profileCaps(cand.profile),
		Popularity:   cand.repo.Stars,
		Confidence:   cand.detection.Confidence,
		DataSources:  types.SourceScanner,
		UpdatedAt:    now,
	}
}

// directoryRecord builds the merged record for an unmatched directory
// server. With no detection to lean on, confidence is estimated from the
// directory's own trust signals.
func (m *Merger) directoryRecord(srv *types.DirectoryServer, now time.Time) *types.MergedRecord {
	confidence := 50.0
	if srv.Verified {
		confidence += 30
	}
	if srv.HealthScore >= 80 {
		confidence += 15
	}
	if srv.Downloads > 1000 {
		confidence += 10
	}
	if srv.Stars > 100 {
		confidence += 5
	}
	if confidence > 100 {
		confidence = 100
	}

	return &types.MergedRecord{
		ID:           DirectoryID(srv.ExternalID),
		DirectoryID:  srv.ExternalID,
		Name:         srv.Name,
		Description:  srv.Description,
		Capabilities: srv.Capabilities,
		Popularity:   srv.Stars,
		Confidence:   confidence,
		Verified:     srv.Verified,
		DataSources:  types.SourceDirectory,
		UpdatedAt:    now,
	}
}

// FusedID is the merged-record id for a matched repository/server pair.
func FusedID(repoFullName, externalID string) string {
	return "repo:" + repoFullName + "|dir:" + externalID
}

// ScannerID is the merged-record id for a scanner-only record.
func ScannerID(repoFullName string) string { return "repo:" + repoFullName }

// DirectoryID is the merged-record id for a directory-only record. It is
// deliberately the same id the syncer records measurements under, so a
// directory server's health history survives fusion.
func DirectoryID(externalID string) string { return "dir:" + externalID }

// displayField resolves one display attribute: the preferred source wins
// when populated, otherwise whichever is non-empty.
func displayField(preferred, fallback string) string {
	if preferred != "" {
		return preferred
	}
	return fallback
}

func profileCaps(p *types.AnalysisProfile) []types.Capability {
	if p == nil {
		return nil
	}
	return p.Capabilities
}

func unionCapabilities(a, b []types.Capability) []types.Capability {
	seen := make(map[types.Capability]bool)
	var out []types.Capability
	for _, c := range a {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	for _, c := range b {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
