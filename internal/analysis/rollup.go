package analysis

import "github.com/storyscope/storyscope/internal/domain"

// majorIssuePenalty is subtracted from the structure rollup for every
// major issue flagged across the manuscript.
const majorIssuePenalty = 5.0

// Rollup computes the stage-level summary score from per-chapter
// results, on the stage's native scale:
//
//   - engagement: mean chapter score, 0-10
//   - market:     mean chapter score, 0-10
//   - structure:  mean chapter score scaled to 0-100, minus a penalty
//     per flagged major issue, clamped to [0, 100]
//
// Fallback results participate with their sentinel zero scores so a
// degraded stage rolls up low instead of being silently dropped.
func Rollup(stage domain.Stage, results []domain.ChapterResult) float64 {
	if len(results) == 0 {
		return 0
	}

	var sum float64
	majorIssues := 0
	for _, result := range results {
		sum += result.Score
		majorIssues += len(result.MajorIssues)
	}
	mean := sum / float64(len(results))

	if stage != domain.StageStructure {
		return mean
	}

	rollup := mean*10 - majorIssuePenalty*float64(majorIssues)
	if rollup < 0 {
		return 0
	}
	if rollup > 100 {
		return 100
	}
	return rollup
}
