package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/storyscope/storyscope/internal/analysis"
	"github.com/storyscope/storyscope/internal/analysis/score"
	"github.com/storyscope/storyscope/internal/domain"
	"github.com/storyscope/storyscope/internal/logger"
	"github.com/storyscope/storyscope/internal/queue"
	"github.com/storyscope/storyscope/internal/repository"
	"github.com/storyscope/storyscope/internal/storage"
)

// ReportService orchestrates the analysis pipeline: it owns report
// lifecycle transitions, runs stages through the executor, and
// aggregates the final score. Stage scheduling itself lives in the
// worker; this service only enqueues the first stage on submission.
type ReportService struct {
	books    *repository.BookRepository
	reports  *repository.ReportRepository
	executor *analysis.Executor
	producer queue.Producer
	weights  score.Weights
	archive  storage.ObjectStorage // optional, nil disables archiving
	logger   *logger.Logger

	// Per-report locks serialize stage runs and finalization for the
	// same report. Entries are held for the report's lifetime; reports
	// are short-lived relative to process lifetime so the map is not
	// reaped.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewReportService creates a new report service.
func NewReportService(
	books *repository.BookRepository,
	reports *repository.ReportRepository,
	executor *analysis.Executor,
	producer queue.Producer,
	weights score.Weights,
	archive storage.ObjectStorage,
	log *logger.Logger,
) *ReportService {
	return &ReportService{
		books:    books,
		reports:  reports,
		executor: executor,
		producer: producer,
		weights:  weights,
		archive:  archive,
		logger:   log,
		locks:    map[string]*sync.Mutex{},
	}
}

// log returns a logger from context if available, otherwise returns the default logger
func (s *ReportService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

func (s *ReportService) reportLock(reportID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	lock, ok := s.locks[reportID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[reportID] = lock
	}
	return lock
}

// Submit requests analysis for a book. The call is idempotent: while a
// book has a pending or processing report, repeated submissions return
// that report instead of creating another.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - bookID: book to analyze.
// Returns:
//   - *domain.Report: the active report for the book.
//   - bool: true when this call created the report.
//   - error: ErrNotFound, ErrEmptyBook, or a storage/queue failure.
func (s *ReportService) Submit(ctx context.Context, bookID string) (*domain.Report, bool, error) {
	book, err := s.books.GetByID(ctx, bookID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, ErrNotFound
	}
	if err != nil {
		return nil, false, fmt.Errorf("load book: %w", err)
	}
	if len(book.Chapters) == 0 {
		return nil, false, ErrEmptyBook
	}

	existing, err := s.reports.FindActiveByBookID(ctx, bookID)
	if err != nil {
		return nil, false, fmt.Errorf("check active report: %w", err)
	}
	if existing != nil {
		s.log(ctx).WithFields(logger.Fields{
			logger.FieldBookID:   bookID,
			logger.FieldReportID: existing.ID,
		}).Info("Returning existing active report")
		return existing, false, nil
	}

	report := &domain.Report{
		ID:     uuid.New().String(),
		BookID: bookID,
		Status: domain.ReportStatusPending,
	}
	if err := s.reports.Create(ctx, report); err != nil {
		return nil, false, fmt.Errorf("create report: %w", err)
	}

	message := queue.StageMessage{
		ReportID:    report.ID,
		BookID:      bookID,
		Stage:       domain.StageOrder[0],
		RequestedAt: time.Now().UTC(),
	}
	if err := s.producer.Enqueue(ctx, message); err != nil {
		report.Status = domain.ReportStatusFailed
		report.ErrorMessage = "failed to schedule analysis"
		_ = s.reports.Update(ctx, report)
		return nil, false, fmt.Errorf("enqueue first stage: %w", err)
	}

	s.log(ctx).WithFields(logger.Fields{
		logger.FieldBookID:   bookID,
		logger.FieldReportID: report.ID,
		logger.FieldCount:    len(book.Chapters),
	}).Info("Report submitted")
	return report, true, nil
}

// RunStage executes one pipeline stage for a report and persists its
// result. Chapter-level analysis failures are absorbed by the executor
// as fallback results; only storage failures fail the report.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - reportID: report being processed.
//   - stage: stage to run.
// Returns:
//   - error: non-nil only on storage failures; the report is marked
//     failed before returning when possible.
func (s *ReportService) RunStage(ctx context.Context, reportID string, stage domain.Stage) error {
	if !domain.ValidStage(stage) {
		return fmt.Errorf("unknown stage %q", stage)
	}

	lock := s.reportLock(reportID)
	lock.Lock()
	defer lock.Unlock()

	ctx = logger.SetReportID(ctx, reportID)
	ctx = logger.SetStage(ctx, string(stage))

	report, err := s.reports.GetByID(ctx, reportID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load report: %w", err)
	}
	if report.Status.Terminal() {
		s.log(ctx).Info("Skipping stage for terminal report")
		return nil
	}

	book, err := s.books.GetByID(ctx, report.BookID)
	if err != nil {
		return s.failStage(ctx, report, stage, fmt.Errorf("load book: %w", err))
	}

	report.Status = domain.ReportStatusProcessing
	report.SetStageStatus(stage, domain.ReportStatusProcessing)
	if err := s.reports.Update(ctx, report); err != nil {
		return s.failStage(ctx, report, stage, fmt.Errorf("mark stage processing: %w", err))
	}

	started := time.Now()
	chapters, rollup := s.executor.RunStage(ctx, stage, book)

	result := &domain.StageResult{
		ID:       uuid.New().String(),
		ReportID: reportID,
		Stage:    stage,
		Status:   domain.ReportStatusCompleted,
		Rollup:   rollup,
		Chapters: chapters,
	}
	if err := s.reports.UpsertStageResult(ctx, result); err != nil {
		return s.failStage(ctx, report, stage, fmt.Errorf("store stage result: %w", err))
	}

	report.SetStageStatus(stage, domain.ReportStatusCompleted)
	if err := s.reports.Update(ctx, report); err != nil {
		return s.failStage(ctx, report, stage, fmt.Errorf("mark stage completed: %w", err))
	}

	fallbacks := 0
	for _, chapter := range chapters {
		if chapter.Fallback {
			fallbacks++
		}
	}
	s.log(ctx).WithFields(logger.Fields{
		logger.FieldDurationMs: time.Since(started).Milliseconds(),
		logger.FieldCount:      len(chapters),
		"fallback_chapters":    fallbacks,
		"rollup":               rollup,
	}).Info("Stage completed")
	return nil
}

// Finalize aggregates stage results into the overall score and
// recommendations and marks the report completed. Safe to call only
// after the last stage; the worker schedules it.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - reportID: report to finalize.
// Returns:
//   - error: non-nil on storage failures.
func (s *ReportService) Finalize(ctx context.Context, reportID string) error {
	lock := s.reportLock(reportID)
	lock.Lock()
	defer lock.Unlock()

	ctx = logger.SetReportID(ctx, reportID)

	report, err := s.reports.GetByID(ctx, reportID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load report: %w", err)
	}
	if report.Status.Terminal() {
		return nil
	}

	results, err := s.reports.ListStageResults(ctx, reportID)
	if err != nil {
		return s.failReport(ctx, report, fmt.Errorf("load stage results: %w", err))
	}

	overall, recommendations := score.Aggregate(results, s.weights)
	now := time.Now().UTC()
	report.Status = domain.ReportStatusCompleted
	report.OverallScore = &overall
	report.Recommendations = recommendations
	report.CompletedAt = &now
	if err := s.reports.Update(ctx, report); err != nil {
		return s.failReport(ctx, report, fmt.Errorf("mark report completed: %w", err))
	}

	s.log(ctx).WithFields(logger.Fields{
		"overall_score": overall,
		logger.FieldCount: len(recommendations),
	}).Info("Report completed")

	s.archiveReport(ctx, report, results)
	return nil
}

// failStage marks the failing stage failed along with the report so the
// status view does not report a stage stuck in processing.
func (s *ReportService) failStage(ctx context.Context, report *domain.Report, stage domain.Stage, cause error) error {
	report.SetStageStatus(stage, domain.ReportStatusFailed)
	return s.failReport(ctx, report, cause)
}

// failReport marks the report failed, best effort, and returns the
// original cause.
func (s *ReportService) failReport(ctx context.Context, report *domain.Report, cause error) error {
	report.Status = domain.ReportStatusFailed
	report.ErrorMessage = cause.Error()
	if updateErr := s.reports.Update(ctx, report); updateErr != nil {
		s.log(ctx).WithError(updateErr).Error("Failed to mark report failed")
	} else {
		s.log(ctx).WithError(cause).Error("Report failed")
	}
	return cause
}

// archiveReport uploads the finalized report as JSON. Archive failures
// are logged and swallowed; the report is already completed.
func (s *ReportService) archiveReport(ctx context.Context, report *domain.Report, results []domain.StageResult) {
	if s.archive == nil {
		return
	}

	document := struct {
		Report *domain.Report       `json:"report"`
		Stages []domain.StageResult `json:"stages"`
	}{Report: report, Stages: results}

	body, err := json.Marshal(document)
	if err != nil {
		s.log(ctx).WithError(err).Warn("Failed to encode report archive document")
		return
	}

	key := fmt.Sprintf("reports/%s/%s.json", report.BookID, report.ID)
	if err := s.archive.Upload(ctx, key, bytes.NewReader(body), int64(len(body)), "application/json"); err != nil {
		s.log(ctx).WithError(err).Warn("Failed to archive report")
		return
	}
	s.log(ctx).WithField("archive_key", key).Info("Report archived")
}

// StageStatusView is the per-stage slice of a status response.
type StageStatusView struct {
	Stage  domain.Stage        `json:"stage"`
	Status domain.ReportStatus `json:"status"`
}

// StatusView is the polling surface for a report.
type StatusView struct {
	ReportID     string              `json:"report_id"`
	BookID       string              `json:"book_id"`
	Status       domain.ReportStatus `json:"status"`
	Progress     int                 `json:"progress"`
	Stages       []StageStatusView   `json:"stages"`
	ErrorMessage string              `json:"error_message,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	CompletedAt  *time.Time          `json:"completed_at,omitempty"`
}

// GetStatus returns the lifecycle view of a report.
func (s *ReportService) GetStatus(ctx context.Context, reportID string) (*StatusView, error) {
	report, err := s.reports.GetByID(ctx, reportID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	view := &StatusView{
		ReportID:     report.ID,
		BookID:       report.BookID,
		Status:       report.Status,
		Progress:     report.Progress(),
		ErrorMessage: report.ErrorMessage,
		CreatedAt:    report.CreatedAt,
		CompletedAt:  report.CompletedAt,
	}
	for _, stage := range domain.StageOrder {
		view.Stages = append(view.Stages, StageStatusView{
			Stage:  stage,
			Status: report.StageStatus(stage),
		})
	}
	return view, nil
}

// ReportView is the full assembled report.
type ReportView struct {
	Report *domain.Report       `json:"report"`
	Book   *domain.Book         `json:"book,omitempty"`
	Stages []domain.StageResult `json:"stages"`
}

// GetReport returns the report with its stage results and book metadata.
func (s *ReportService) GetReport(ctx context.Context, reportID string) (*ReportView, error) {
	report, err := s.reports.GetByID(ctx, reportID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	results, err := s.reports.ListStageResults(ctx, reportID)
	if err != nil {
		return nil, fmt.Errorf("load stage results: %w", err)
	}

	view := &ReportView{Report: report, Stages: results}
	if book, bookErr := s.books.GetByID(ctx, report.BookID); bookErr == nil {
		book.Chapters = nil // metadata only
		view.Book = book
	}
	return view, nil
}
