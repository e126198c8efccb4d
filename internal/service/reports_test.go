package service

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/storyscope/storyscope/internal/analysis"
	"github.com/storyscope/storyscope/internal/analysis/score"
	"github.com/storyscope/storyscope/internal/domain"
	"github.com/storyscope/storyscope/internal/llm"
	"github.com/storyscope/storyscope/internal/logger"
	"github.com/storyscope/storyscope/internal/queue"
	"github.com/storyscope/storyscope/internal/repository"
	"github.com/storyscope/storyscope/internal/resilience/circuitbreaker"
)

// captureProducer records enqueued stage messages.
type captureProducer struct {
	messages []queue.StageMessage
}

func (p *captureProducer) Enqueue(_ context.Context, message queue.StageMessage) error {
	p.messages = append(p.messages, message)
	return nil
}

// scriptedGenerator returns a fixed response for every call.
type scriptedGenerator struct {
	response string
	err      error
}

func (g *scriptedGenerator) Generate(_ context.Context, _ llm.GenerateRequest) (string, error) {
	return g.response, g.err
}

type testEnv struct {
	db       *gorm.DB
	books    *repository.BookRepository
	reports  *repository.ReportRepository
	producer *captureProducer
	service  *ReportService
}

func newTestEnv(t *testing.T, gen analysis.Generator) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.Book{}, &domain.Chapter{}, &domain.Report{}, &domain.StageResult{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	books := repository.NewBookRepository(db)
	reports := repository.NewReportRepository(db)
	producer := &captureProducer{}
	breaker := circuitbreaker.New("test", circuitbreaker.DefaultConfig())
	executor := analysis.NewExecutor(gen, breaker, nil)

	svc := NewReportService(books, reports, executor, producer,
		score.DefaultWeights(), nil, logger.GetDefault())

	return &testEnv{db: db, books: books, reports: reports, producer: producer, service: svc}
}

func seedBook(t *testing.T, env *testEnv, chapters int) *domain.Book {
	t.Helper()
	book := &domain.Book{ID: "book-1", Title: "The Long Rain", Genre: "literary"}
	for i := 1; i <= chapters; i++ {
		book.Chapters = append(book.Chapters, domain.Chapter{
			ID:       fmt.Sprintf("ch-%d", i),
			BookID:   book.ID,
			Position: i,
			Content:  "It was raining again.",
		})
	}
	if err := env.books.Create(context.Background(), book); err != nil {
		t.Fatalf("seed book: %v", err)
	}
	return book
}

func engagementJSON() string {
	return `{"score": 7, "hook_score": 6, "pacing_note": "steady", "summary": "holds attention"}`
}

func TestSubmitCreatesReportAndEnqueuesFirstStage(t *testing.T) {
	env := newTestEnv(t, &scriptedGenerator{response: engagementJSON()})
	seedBook(t, env, 2)
	ctx := context.Background()

	report, created, err := env.service.Submit(ctx, "book-1")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !created {
		t.Fatal("expected a newly created report")
	}
	if report.Status != domain.ReportStatusPending {
		t.Errorf("status = %s, want pending", report.Status)
	}

	if len(env.producer.messages) != 1 {
		t.Fatalf("enqueued %d messages, want 1", len(env.producer.messages))
	}
	message := env.producer.messages[0]
	if message.Stage != domain.StageEngagement || message.ReportID != report.ID {
		t.Errorf("first message = %+v", message)
	}
}

func TestSubmitIsIdempotentWhileReportActive(t *testing.T) {
	env := newTestEnv(t, &scriptedGenerator{response: engagementJSON()})
	seedBook(t, env, 1)
	ctx := context.Background()

	first, _, err := env.service.Submit(ctx, "book-1")
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}

	second, created, err := env.service.Submit(ctx, "book-1")
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if created {
		t.Error("second submit should not create a report")
	}
	if second.ID != first.ID {
		t.Errorf("second submit returned report %s, want %s", second.ID, first.ID)
	}
	if len(env.producer.messages) != 1 {
		t.Errorf("enqueued %d messages, want 1", len(env.producer.messages))
	}
}

func TestSubmitAfterTerminalReportCreatesFreshOne(t *testing.T) {
	env := newTestEnv(t, &scriptedGenerator{response: engagementJSON()})
	seedBook(t, env, 1)
	ctx := context.Background()

	first, _, err := env.service.Submit(ctx, "book-1")
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	first.Status = domain.ReportStatusFailed
	if err := env.reports.Update(ctx, first); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	second, created, err := env.service.Submit(ctx, "book-1")
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if !created {
		t.Error("resubmit after a terminal report should create a new one")
	}
	if second.ID == first.ID {
		t.Error("resubmit returned the failed report")
	}
}

func TestGetStatusUnknownReport(t *testing.T) {
	env := newTestEnv(t, &scriptedGenerator{response: engagementJSON()})

	if _, err := env.service.GetStatus(context.Background(), "missing"); err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if _, err := env.service.GetReport(context.Background(), "missing"); err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSubmitValidation(t *testing.T) {
	env := newTestEnv(t, &scriptedGenerator{response: engagementJSON()})
	ctx := context.Background()

	if _, _, err := env.service.Submit(ctx, "missing"); err != ErrNotFound {
		t.Errorf("unknown book: err = %v, want ErrNotFound", err)
	}

	empty := &domain.Book{ID: "empty", Title: "No Chapters"}
	if err := env.books.Create(ctx, empty); err != nil {
		t.Fatalf("seed empty book: %v", err)
	}
	if _, _, err := env.service.Submit(ctx, "empty"); err != ErrEmptyBook {
		t.Errorf("empty book: err = %v, want ErrEmptyBook", err)
	}
}

func TestRunStagePersistsResultAndStatuses(t *testing.T) {
	env := newTestEnv(t, &scriptedGenerator{response: engagementJSON()})
	seedBook(t, env, 2)
	ctx := context.Background()

	report, _, err := env.service.Submit(ctx, "book-1")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if err := env.service.RunStage(ctx, report.ID, domain.StageEngagement); err != nil {
		t.Fatalf("run stage: %v", err)
	}

	stored, err := env.reports.GetByID(ctx, report.ID)
	if err != nil {
		t.Fatalf("load report: %v", err)
	}
	if stored.Status != domain.ReportStatusProcessing {
		t.Errorf("report status = %s, want processing", stored.Status)
	}
	if got := stored.StageStatus(domain.StageEngagement); got != domain.ReportStatusCompleted {
		t.Errorf("engagement status = %s, want completed", got)
	}
	if got := stored.Progress(); got != 33 {
		t.Errorf("progress = %d, want 33", got)
	}

	result, err := env.reports.GetStageResult(ctx, report.ID, domain.StageEngagement)
	if err != nil {
		t.Fatalf("load stage result: %v", err)
	}
	if result == nil {
		t.Fatal("stage result not stored")
	}
	if len(result.Chapters) != 2 {
		t.Errorf("stored %d chapter results, want 2", len(result.Chapters))
	}
	if result.Rollup != 7 {
		t.Errorf("rollup = %v, want 7", result.Rollup)
	}
}

func TestRunStageStorageFailureMarksStageFailed(t *testing.T) {
	env := newTestEnv(t, &scriptedGenerator{response: engagementJSON()})
	seedBook(t, env, 1)
	ctx := context.Background()

	report, _, err := env.service.Submit(ctx, "book-1")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	// Sabotage stage-result storage so persisting the result fails.
	if err := env.db.Migrator().DropTable(&domain.StageResult{}); err != nil {
		t.Fatalf("drop stage results: %v", err)
	}

	if err := env.service.RunStage(ctx, report.ID, domain.StageEngagement); err == nil {
		t.Fatal("expected a storage error")
	}

	stored, err := env.reports.GetByID(ctx, report.ID)
	if err != nil {
		t.Fatalf("load report: %v", err)
	}
	if stored.Status != domain.ReportStatusFailed {
		t.Errorf("report status = %s, want failed", stored.Status)
	}
	if got := stored.StageStatus(domain.StageEngagement); got != domain.ReportStatusFailed {
		t.Errorf("engagement status = %s, want failed", got)
	}
	if stored.ErrorMessage == "" {
		t.Error("error message not recorded")
	}
}

func TestRunStageSkipsTerminalReport(t *testing.T) {
	env := newTestEnv(t, &scriptedGenerator{response: engagementJSON()})
	seedBook(t, env, 1)
	ctx := context.Background()

	report, _, err := env.service.Submit(ctx, "book-1")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	report.Status = domain.ReportStatusFailed
	if err := env.reports.Update(ctx, report); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	if err := env.service.RunStage(ctx, report.ID, domain.StageEngagement); err != nil {
		t.Fatalf("run stage on terminal report: %v", err)
	}
	result, err := env.reports.GetStageResult(ctx, report.ID, domain.StageEngagement)
	if err != nil {
		t.Fatalf("load stage result: %v", err)
	}
	if result != nil {
		t.Error("terminal report should not gain stage results")
	}
}

func TestFinalizeAggregatesAndCompletes(t *testing.T) {
	env := newTestEnv(t, &scriptedGenerator{response: engagementJSON()})
	seedBook(t, env, 2)
	ctx := context.Background()

	report, _, err := env.service.Submit(ctx, "book-1")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	for _, stage := range domain.StageOrder {
		if err := env.service.RunStage(ctx, report.ID, stage); err != nil {
			t.Fatalf("run %s: %v", stage, err)
		}
	}

	if err := env.service.Finalize(ctx, report.ID); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	stored, err := env.reports.GetByID(ctx, report.ID)
	if err != nil {
		t.Fatalf("load report: %v", err)
	}
	if stored.Status != domain.ReportStatusCompleted {
		t.Fatalf("status = %s, want completed", stored.Status)
	}
	if stored.OverallScore == nil {
		t.Fatal("overall score not set")
	}
	// Every chapter scored 7: engagement and market normalize to 70,
	// structure rolls up to 70 with no major issues.
	if *stored.OverallScore != 70 {
		t.Errorf("overall = %d, want 70", *stored.OverallScore)
	}
	if stored.CompletedAt == nil {
		t.Error("completed_at not set")
	}
	if got := stored.Progress(); got != 100 {
		t.Errorf("progress = %d, want 100", got)
	}

	status, err := env.service.GetStatus(ctx, report.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Status != domain.ReportStatusCompleted || len(status.Stages) != 3 {
		t.Errorf("status view = %+v", status)
	}

	view, err := env.service.GetReport(ctx, report.ID)
	if err != nil {
		t.Fatalf("report view: %v", err)
	}
	if len(view.Stages) != 3 {
		t.Errorf("report view has %d stages, want 3", len(view.Stages))
	}
}
