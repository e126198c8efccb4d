package repository

import (
	"context"
	"errors"

	"github.com/storyscope/storyscope/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReportRepository handles report and stage-result data operations.
type ReportRepository struct {
	db *gorm.DB
}

// NewReportRepository creates a new ReportRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *ReportRepository: repository instance bound to db.
func NewReportRepository(db *gorm.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// Create inserts a new report record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - report: report record to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *ReportRepository) Create(ctx context.Context, report *domain.Report) error {
	return r.db.WithContext(ctx).Create(report).Error
}

// Update saves all fields of an existing report row.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - report: report record with updated fields.
// Returns:
//   - error: non-nil if the update fails.
func (r *ReportRepository) Update(ctx context.Context, report *domain.Report) error {
	return r.db.WithContext(ctx).Save(report).Error
}

// GetByID retrieves a report by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: report ID.
// Returns:
//   - *domain.Report: report record if found.
//   - error: gorm.ErrRecordNotFound if the report does not exist.
func (r *ReportRepository) GetByID(ctx context.Context, id string) (*domain.Report, error) {
	var report domain.Report
	if err := r.db.WithContext(ctx).First(&report, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &report, nil
}

// FindActiveByBookID retrieves the pending or processing report for a
// book, backing the idempotent-submission check.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - bookID: book ID.
// Returns:
//   - *domain.Report: active report, or nil when none exists.
//   - error: non-nil if the query fails.
func (r *ReportRepository) FindActiveByBookID(ctx context.Context, bookID string) (*domain.Report, error) {
	var report domain.Report
	err := r.db.WithContext(ctx).
		Where("book_id = ? AND status IN ?", bookID,
			[]domain.ReportStatus{domain.ReportStatusPending, domain.ReportStatusProcessing}).
		Order("created_at DESC").
		First(&report).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// UpsertStageResult creates or replaces the stage result row keyed by
// (report, stage).
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - result: stage result to persist.
// Returns:
//   - error: non-nil if the upsert fails.
func (r *ReportRepository) UpsertStageResult(ctx context.Context, result *domain.StageResult) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "report_id"}, {Name: "stage"}},
		UpdateAll: true,
	}).Create(result).Error
}

// GetStageResult retrieves one stage's result for a report.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - reportID: report ID.
//   - stage: pipeline stage.
// Returns:
//   - *domain.StageResult: stage result, or nil when the stage has not run.
//   - error: non-nil if the query fails.
func (r *ReportRepository) GetStageResult(ctx context.Context, reportID string, stage domain.Stage) (*domain.StageResult, error) {
	var result domain.StageResult
	err := r.db.WithContext(ctx).
		First(&result, "report_id = ? AND stage = ?", reportID, stage).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// ListStageResults retrieves every stored stage result for a report.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - reportID: report ID.
// Returns:
//   - []domain.StageResult: stage results in pipeline order.
//   - error: non-nil if the query fails.
func (r *ReportRepository) ListStageResults(ctx context.Context, reportID string) ([]domain.StageResult, error) {
	var results []domain.StageResult
	if err := r.db.WithContext(ctx).
		Where("report_id = ?", reportID).
		Find(&results).Error; err != nil {
		return nil, err
	}

	ordered := make([]domain.StageResult, 0, len(results))
	for _, stage := range domain.StageOrder {
		for _, result := range results {
			if result.Stage == stage {
				ordered = append(ordered, result)
				break
			}
		}
	}
	return ordered, nil
}
