package domain

import "time"

// ChapterResult is the analysis outcome for one chapter within one
// stage. Every stage produces exactly one ChapterResult per chapter,
// substituting a fallback sentinel when the chapter's analysis failed,
// so result slices always align with the book's chapter list.
type ChapterResult struct {
	ChapterID string  `json:"chapter_id"`
	Position  int     `json:"position"`
	Score     float64 `json:"score"` // 0-10
	Summary   string  `json:"summary,omitempty"`
	Fallback  bool    `json:"fallback,omitempty"`

	// Engagement stage only.
	HookScore float64 `json:"hook_score,omitempty"`
	PacingNote string `json:"pacing_note,omitempty"`

	// Structure stage only.
	MajorIssues []string `json:"major_issues,omitempty"`
	MinorIssues []string `json:"minor_issues,omitempty"`

	// Market stage only.
	Comparables []string `json:"comparables,omitempty"`
	Audience    string   `json:"audience,omitempty"`
}

// StageResult is one completed or failed stage run. Its presence as a
// row distinguishes "ran" from "not yet run"; Chapters is serialized as
// a JSON column.
type StageResult struct {
	ID        string          `gorm:"type:text;primaryKey" json:"id"`
	ReportID  string          `gorm:"type:text;not null;uniqueIndex:idx_stage_results_report_stage" json:"report_id"`
	Stage     Stage           `gorm:"type:text;not null;uniqueIndex:idx_stage_results_report_stage" json:"stage"`
	Status    ReportStatus    `gorm:"default:pending" json:"status"`
	Rollup    float64         `json:"rollup"` // stage-native scale, see analysis/score
	Chapters  []ChapterResult `gorm:"type:text;serializer:json" json:"chapters"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// TableName returns the database table name for StageResult.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (StageResult) TableName() string {
	return "stage_results"
}

// FallbackChapterResult builds the stage-defined zero-value result used
// when a chapter's analysis fails for any reason.
func FallbackChapterResult(stage Stage, chapterID string, position int) ChapterResult {
	result := ChapterResult{
		ChapterID: chapterID,
		Position:  position,
		Score:     0,
		Summary:   "analysis unavailable for this chapter",
		Fallback:  true,
	}
	switch stage {
	case StageStructure:
		result.MajorIssues = []string{}
		result.MinorIssues = []string{}
	case StageMarket:
		result.Comparables = []string{}
	}
	return result
}
