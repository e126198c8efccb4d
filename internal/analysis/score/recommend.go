package score

import (
	"fmt"
	"strings"

	"github.com/storyscope/storyscope/internal/domain"
)

// Rule thresholds. Chapter scores are 0-10; the commercial threshold
// applies to the market rollup.
const (
	lowEngagementThreshold = 5.0
	majorIssueThreshold    = 5
	weakHookThreshold      = 5.0
	lowCommercialThreshold = 4.0
)

// Recommendations applies the revision rules to completed stage
// results. Rules are additive and fire independently; their order here
// fixes the output order. Each rule emits at most one entry, with all
// affected chapters coalesced into it.
func Recommendations(completed map[domain.Stage]*domain.StageResult) domain.RecommendationList {
	recommendations := domain.RecommendationList{}

	if engagement, ok := completed[domain.StageEngagement]; ok {
		var flagged []int
		for _, chapter := range engagement.Chapters {
			if chapter.Score < lowEngagementThreshold {
				flagged = append(flagged, chapter.Position)
			}
		}
		if len(flagged) > 0 {
			recommendations = append(recommendations, fmt.Sprintf(
				"Revise %s: reader engagement scored below %.0f.",
				chapterList(flagged), lowEngagementThreshold))
		}
	}

	if structure, ok := completed[domain.StageStructure]; ok {
		majorIssues := 0
		for _, chapter := range structure.Chapters {
			majorIssues += len(chapter.MajorIssues)
		}
		if majorIssues >= majorIssueThreshold {
			recommendations = append(recommendations, fmt.Sprintf(
				"Major structural revision recommended: %d major issues flagged across the manuscript.",
				majorIssues))
		}
	}

	if engagement, ok := completed[domain.StageEngagement]; ok {
		for _, chapter := range engagement.Chapters {
			if chapter.Position != 1 {
				continue
			}
			// A fallback chapter carries a sentinel hook score of 0,
			// not a measured weak hook, so it never fires this rule.
			// Its zero engagement score still fires the revise rule
			// above, which is how analysis failures stay visible.
			if !chapter.Fallback && chapter.HookScore < weakHookThreshold {
				recommendations = append(recommendations,
					"Strengthen the opening hook: the first chapter may not pull readers in.")
			}
			break
		}
	}

	if market, ok := completed[domain.StageMarket]; ok {
		if market.Rollup < lowCommercialThreshold {
			recommendations = append(recommendations,
				"Commercial appeal scored low: consider another revision pass before submitting to agents.")
		}
	}

	return recommendations
}

// chapterList formats chapter positions as "chapter 4",
// "chapters 2 and 5", or "chapters 2, 5, and 7".
func chapterList(positions []int) string {
	if len(positions) == 1 {
		return fmt.Sprintf("chapter %d", positions[0])
	}

	parts := make([]string, len(positions))
	for i, position := range positions {
		parts[i] = fmt.Sprintf("%d", position)
	}
	if len(parts) == 2 {
		return fmt.Sprintf("chapters %s and %s", parts[0], parts[1])
	}
	return fmt.Sprintf("chapters %s, and %s",
		strings.Join(parts[:len(parts)-1], ", "), parts[len(parts)-1])
}
