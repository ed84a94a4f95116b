package fusion

import (
	"regexp"
	"strings"

	"github.com/mcpscout/mcpscout/internal/types"
)

// Component weights of the match score. They sum to 1 so a perfect match
// scores exactly 1.0.
const (
	weightURL          = 0.4
	weightName         = 0.3
	weightDescription  = 0.2
	weightCapabilities = 0.1
)

var wordPattern = regexp.MustCompile(`[a-z0-9]+`)

// tokenize lowercases text and splits it into the word set used for
// Jaccard similarity. Short tokens carry no signal and are dropped.
func tokenize(text string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		if len(w) > 2 {
			set[w] = true
		}
	}
	return set
}

// textSimilarity compares two free-text fields. Equal normalized strings
// short-circuit to 1.0 before tokenization, so identical short names
// ("io", "db") still match even though their tokens fall below the
// length cutoff. Either side empty scores zero.
func textSimilarity(a, b string) float64 {
	a = strings.TrimSpace(strings.ToLower(a))
	b = strings.TrimSpace(strings.ToLower(b))
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	return jaccard(tokenize(a), tokenize(b))
}

// jaccard is intersection over union of two token sets. Two empty sets are
// not similar, they are unknown; that scores zero.
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if b[w] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// normalizeURL reduces a repository URL to a comparable host/path form:
// lowercase, no scheme, no www prefix, no .git suffix, no trailing slash.
func normalizeURL(raw string) string {
	u := strings.ToLower(strings.TrimSpace(raw))
	for _, prefix := range []string{"https://", "http://", "git://"} {
		u = strings.TrimPrefix(u, prefix)
	}
	u = strings.TrimPrefix(u, "www.")
	u = strings.TrimSuffix(u, "/")
	u = strings.TrimSuffix(u, ".git")
	return u
}

// capabilityOverlap is the Jaccard similarity of two capability sets.
func capabilityOverlap(a, b []types.Capability) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := make(map[types.Capability]bool, len(a))
	for _, c := range a {
		setA[c] = true
	}
	inter := 0
	setB := make(map[types.Capability]bool, len(b))
	for _, c := range b {
		if !setB[c] {
			setB[c] = true
			if setA[c] {
				inter++
			}
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}

// matchScore scores how likely a scanned repository and a directory server
// describe the same project. A normalized URL match is the strongest single
// signal; the remaining weight splits across name, description, and
// capability similarity.
func matchScore(repo *candidate, srv *types.DirectoryServer) (float64, []string) {
	var score float64
	var reasons []string

	if repo.repo.HTMLURL != "" && srv.RepositoryURL != "" &&
		normalizeURL(repo.repo.HTMLURL) == normalizeURL(srv.RepositoryURL) {
		score += weightURL
		reasons = append(reasons, "repository URL match")
	}

	if nameSim := textSimilarity(repo.repo.Name(), srv.Name); nameSim > 0 {
		score += weightName * nameSim
		reasons = append(reasons, "name similarity")
	}
	if descSim := textSimilarity(repo.repo.Description, srv.Description); descSim > 0 {
		score += weightDescription * descSim
		reasons = append(reasons, "description similarity")
	}

	var caps []types.Capability
	if repo.profile != nil {
		caps = repo.profile.Capabilities
	}
	if capSim := capabilityOverlap(caps, srv.Capabilities); capSim > 0 {
		score += weightCapabilities * capSim
		reasons = append(reasons, "capability overlap")
	}

	return score, reasons
}
