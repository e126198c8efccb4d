package prompts

import (
	"fmt"
	"strings"

	"github.com/storyscope/storyscope/internal/domain"
)

// AnalysisSystemPrompt defines the shared role and output rules for all
// analysis stages. Responses must be a single JSON object so the stage
// executors can parse them without post-processing.
const AnalysisSystemPrompt = `You are a professional manuscript development editor.
Analyze the chapter you are given and respond with a single JSON object only.
Do not wrap the JSON in markdown fences, do not add prose before or after it.
All scores are on a 0-10 scale where 0 is unpublishable and 10 is exceptional.`

// EngagementUserPrompt is the per-chapter template for the reader
// engagement stage.
const EngagementUserPrompt = `Evaluate reader engagement for the chapter below.

Required JSON keys:
- "score": number 0-10, overall reader engagement
- "hook_score": number 0-10, strength of the chapter opening
- "pacing_note": one sentence on pacing
- "summary": one or two sentences of engagement feedback

Book: %s (%s)
Synopsis: %s
Chapter %d: %s

---
%s`

// StructureUserPrompt is the per-chapter template for the structural
// editing stage.
const StructureUserPrompt = `Critique the structure of the chapter below.

Required JSON keys:
- "score": number 0-10, structural soundness
- "major_issues": array of strings, structural problems requiring rework
- "minor_issues": array of strings, smaller craft issues
- "summary": one or two sentences of structural feedback

Book: %s (%s)
Synopsis: %s
Chapter %d: %s

---
%s`

// MarketUserPrompt is the per-chapter template for the market
// positioning stage.
const MarketUserPrompt = `Assess the commercial positioning of the chapter below.

Required JSON keys:
- "score": number 0-10, commercial appeal for the stated genre
- "comparables": array of strings, up to three comparable published titles
- "audience": one phrase naming the target readership
- "summary": one or two sentences of market feedback

Book: %s (%s)
Synopsis: %s
Chapter %d: %s

---
%s`

// maxChapterChars bounds the chapter excerpt included in a prompt so a
// single long chapter cannot blow the model's context window.
const maxChapterChars = 24000

// ForStage renders the user prompt for one (stage, chapter) pair.
// Parameters:
//   - stage: pipeline stage the prompt is for.
//   - book: book metadata included as story context.
//   - chapter: chapter under analysis.
// Returns:
//   - string: rendered prompt.
func ForStage(stage domain.Stage, book *domain.Book, chapter *domain.Chapter) string {
	var template string
	switch stage {
	case domain.StageStructure:
		template = StructureUserPrompt
	case domain.StageMarket:
		template = MarketUserPrompt
	default:
		template = EngagementUserPrompt
	}

	content := chapter.Content
	if len(content) > maxChapterChars {
		content = content[:maxChapterChars]
	}

	title := chapter.Title
	if strings.TrimSpace(title) == "" {
		title = fmt.Sprintf("Chapter %d", chapter.Position)
	}

	return fmt.Sprintf(template,
		book.Title, book.Genre, book.Synopsis,
		chapter.Position, title, content)
}
