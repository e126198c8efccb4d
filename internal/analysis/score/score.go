// Package score turns completed stage results into an overall score
// and a prioritized recommendation list. It is pure: no storage, no
// clock, no external calls.
package score

import (
	"math"

	"github.com/storyscope/storyscope/internal/domain"
)

// Weights holds the stage blend and the neutral midpoint substituted
// for a missing or failed stage. The stage weights sum to 1, so a
// report built entirely from neutral baselines scores exactly the
// midpoint. These are tunable policy, not invariants; the shipped
// defaults are 0.35 / 0.35 / 0.30 with a midpoint of 50.
type Weights struct {
	Engagement float64
	Structure  float64
	Market     float64
	Neutral    float64
}

// DefaultWeights returns the shipped scoring policy.
// Parameters: none.
// Returns:
//   - Weights: default stage weights and neutral midpoint.
func DefaultWeights() Weights {
	return Weights{
		Engagement: 0.35,
		Structure:  0.35,
		Market:     0.30,
		Neutral:    50,
	}
}

// Normalize converts a stage-native rollup onto the 0-100 scale used
// for the overall score. Engagement and market roll up as 0-10 chapter
// means; structure already rolls up on 0-100.
func Normalize(stage domain.Stage, rollup float64) float64 {
	if stage == domain.StageStructure {
		return rollup
	}
	return rollup * 10
}

// Aggregate computes the overall score and recommendations from the
// stage results that completed. Missing or failed stages contribute
// the neutral midpoint so a partial run still produces a usable report.
// Parameters:
//   - results: stored stage results, any subset of the three stages.
//   - w: scoring policy.
// Returns:
//   - int: overall score, 0-100, rounded half away from zero.
//   - domain.RecommendationList: ordered revision recommendations.
func Aggregate(results []domain.StageResult, w Weights) (int, domain.RecommendationList) {
	completed := make(map[domain.Stage]*domain.StageResult, len(results))
	for i := range results {
		if results[i].Status == domain.ReportStatusCompleted {
			completed[results[i].Stage] = &results[i]
		}
	}

	overall := w.Engagement*stageValue(completed, domain.StageEngagement, w.Neutral) +
		w.Structure*stageValue(completed, domain.StageStructure, w.Neutral) +
		w.Market*stageValue(completed, domain.StageMarket, w.Neutral)

	return int(math.Round(overall)), Recommendations(completed)
}

func stageValue(completed map[domain.Stage]*domain.StageResult, stage domain.Stage, neutral float64) float64 {
	result, ok := completed[stage]
	if !ok {
		return neutral
	}
	return Normalize(stage, result.Rollup)
}
