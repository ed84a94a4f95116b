package health

import (
	"math"

	"github.com/mcpscout/mcpscout/internal/types"
)

// Status thresholds for bucketing a health score.
const (
	healthyThreshold  = 70
	criticalThreshold = 40
)

// trendEpsilon is the relative change below which movement counts as noise.
const trendEpsilon = 0.10

// DefaultSmoothingAlpha is the exponential smoothing factor used when no
// override is configured.
const DefaultSmoothingAlpha = 0.5

// StatusForScore buckets a health score into its status.
func StatusForScore(score float64) types.HealthStatus {
	switch {
	case score >= healthyThreshold:
		return types.HealthHealthy
	case score >= criticalThreshold:
		return types.HealthWarning
	default:
		return types.HealthCritical
	}
}

// TrendOf classifies a score series (oldest first) with the default
// smoothing factor.
func TrendOf(scores []float64) types.Trend {
	return TrendWithAlpha(scores, DefaultSmoothingAlpha)
}

// TrendWithAlpha classifies a score series (oldest first) by comparing
// smoothed means of its older and newer halves. Fewer than two points, or
// relative movement under the epsilon, is stable. An alpha outside (0,1)
// falls back to the default.
func TrendWithAlpha(scores []float64, alpha float64) types.Trend {
	if alpha <= 0 || alpha >= 1 {
		alpha = DefaultSmoothingAlpha
	}
	if len(scores) < 2 {
		return types.TrendStable
	}
	mid := len(scores) / 2
	older := smoothedMean(scores[:mid], alpha)
	newer := smoothedMean(scores[mid:], alpha)

	if older == 0 {
		if newer > 0 {
			return types.TrendImproving
		}
		return types.TrendStable
	}
	change := (newer - older) / math.Abs(older)
	switch {
	case change > trendEpsilon:
		return types.TrendImproving
	case change < -trendEpsilon:
		return types.TrendDeclining
	default:
		return types.TrendStable
	}
}

// smoothedMean is an exponentially smoothed average favoring later values.
func smoothedMean(scores []float64, alpha float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	acc := scores[0]
	for _, s := range scores[1:] {
		acc = alpha*s + (1-alpha)*acc
	}
	return acc
}

// Reliability is the recency-weighted mean of normalized scores, newest
// first, each weighted 1/sqrt(rank). Recent behavior dominates but a long
// good history still counts.
func Reliability(measurements []*types.HealthMeasurement) float64 {
	if len(measurements) == 0 {
		return 0
	}
	var weighted, total float64
	for i, m := range measurements {
		w := 1 / math.Sqrt(float64(i+1))
		weighted += w * (m.Score / 100)
		total += w
	}
	return weighted / total
}
