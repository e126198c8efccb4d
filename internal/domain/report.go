package domain

import "time"

// ReportStatus represents the lifecycle state of a report or of one of
// its stages. Values include ReportStatusPending, ReportStatusProcessing,
// ReportStatusCompleted, and ReportStatusFailed.
type ReportStatus string

const (
	ReportStatusPending    ReportStatus = "pending"
	ReportStatusProcessing ReportStatus = "processing"
	ReportStatusCompleted  ReportStatus = "completed"
	ReportStatusFailed     ReportStatus = "failed"
)

// Terminal reports true for states that end a report's lifecycle.
func (s ReportStatus) Terminal() bool {
	return s == ReportStatusCompleted || s == ReportStatusFailed
}

// Stage identifies one analysis pass over a book's chapters.
type Stage string

const (
	StageEngagement Stage = "engagement"
	StageStructure  Stage = "structure"
	StageMarket     Stage = "market"
)

// StageOrder is the fixed execution order of the pipeline. A later
// stage may only see earlier results through the persisted report.
var StageOrder = []Stage{StageEngagement, StageStructure, StageMarket}

// NextStage returns the stage after s in pipeline order, or "" when s
// is the last stage.
func NextStage(s Stage) Stage {
	for i, stage := range StageOrder {
		if stage == s && i+1 < len(StageOrder) {
			return StageOrder[i+1]
		}
	}
	return ""
}

// ValidStage reports whether s names a known pipeline stage.
func ValidStage(s Stage) bool {
	for _, stage := range StageOrder {
		if stage == s {
			return true
		}
	}
	return false
}

// Report is one pipeline run over one book. Per-stage statuses live on
// the row so pollers get status and progress from a single read; stage
// payloads live in stage_results rows keyed by (report, stage), so a
// stage that has not run simply has no row.
type Report struct {
	ID               string             `gorm:"type:text;primaryKey" json:"id"`
	BookID           string             `gorm:"type:text;not null;index" json:"book_id"`
	Status           ReportStatus       `gorm:"default:pending" json:"status"`
	EngagementStatus ReportStatus       `gorm:"default:pending" json:"engagement_status"`
	StructureStatus  ReportStatus       `gorm:"default:pending" json:"structure_status"`
	MarketStatus     ReportStatus       `gorm:"default:pending" json:"market_status"`
	OverallScore     *int               `json:"overall_score,omitempty"`
	Recommendations  RecommendationList `gorm:"type:text;serializer:json" json:"recommendations,omitempty"`
	ErrorMessage     string             `json:"error_message,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
	CompletedAt      *time.Time         `json:"completed_at,omitempty"`
}

// RecommendationList holds the ordered, human-readable revision
// recommendations produced at finalization.
type RecommendationList []string

// TableName returns the database table name for Report.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (Report) TableName() string {
	return "reports"
}

// Active reports whether the report still owns its book, blocking a
// duplicate submission.
func (r *Report) Active() bool {
	return r.Status == ReportStatusPending || r.Status == ReportStatusProcessing
}

// StageStatus returns the recorded status for one stage.
func (r *Report) StageStatus(stage Stage) ReportStatus {
	switch stage {
	case StageEngagement:
		return r.EngagementStatus
	case StageStructure:
		return r.StructureStatus
	case StageMarket:
		return r.MarketStatus
	}
	return ""
}

// SetStageStatus records the status for one stage. Unknown stages are
// ignored; callers validate stage names at the API edge.
func (r *Report) SetStageStatus(stage Stage, status ReportStatus) {
	switch stage {
	case StageEngagement:
		r.EngagementStatus = status
	case StageStructure:
		r.StructureStatus = status
	case StageMarket:
		r.MarketStatus = status
	}
}

// Progress returns the polling progress percentage: completed stages
// over the total stage count, rounded down.
func (r *Report) Progress() int {
	completed := 0
	for _, stage := range StageOrder {
		if r.StageStatus(stage) == ReportStatusCompleted {
			completed++
		}
	}
	return completed * 100 / len(StageOrder)
}
