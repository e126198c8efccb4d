package analysis

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/storyscope/storyscope/internal/domain"
)

// chapterResponse mirrors the JSON contract established by the stage
// prompts. Unknown keys are ignored; a missing score is treated as a
// parse failure rather than a silent zero.
type chapterResponse struct {
	Score       *float64 `json:"score"`
	HookScore   float64  `json:"hook_score"`
	PacingNote  string   `json:"pacing_note"`
	MajorIssues []string `json:"major_issues"`
	MinorIssues []string `json:"minor_issues"`
	Comparables []string `json:"comparables"`
	Audience    string   `json:"audience"`
	Summary     string   `json:"summary"`
}

// parseChapterResult decodes a model response into a ChapterResult.
func parseChapterResult(stage domain.Stage, text string, chapter *domain.Chapter) (domain.ChapterResult, error) {
	var resp chapterResponse
	if err := json.Unmarshal([]byte(stripFences(text)), &resp); err != nil {
		return domain.ChapterResult{}, fmt.Errorf("decode stage response: %w", err)
	}
	if resp.Score == nil {
		return domain.ChapterResult{}, fmt.Errorf("stage response is missing the score field")
	}

	result := domain.ChapterResult{
		ChapterID: chapter.ID,
		Position:  chapter.Position,
		Score:     clampScore(*resp.Score),
		Summary:   strings.TrimSpace(resp.Summary),
	}

	switch stage {
	case domain.StageEngagement:
		result.HookScore = clampScore(resp.HookScore)
		result.PacingNote = strings.TrimSpace(resp.PacingNote)
	case domain.StageStructure:
		result.MajorIssues = nonNil(resp.MajorIssues)
		result.MinorIssues = nonNil(resp.MinorIssues)
	case domain.StageMarket:
		result.Comparables = nonNil(resp.Comparables)
		result.Audience = strings.TrimSpace(resp.Audience)
	}

	return result, nil
}

// stripFences tolerates models that wrap JSON in markdown fences
// despite the prompt contract.
func stripFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 10 {
		return 10
	}
	return score
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
