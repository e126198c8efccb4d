package analysis

import (
	"context"

	"github.com/storyscope/storyscope/internal/domain"
	"github.com/storyscope/storyscope/internal/llm"
	"github.com/storyscope/storyscope/internal/logger"
	"github.com/storyscope/storyscope/internal/prompts"
	"github.com/storyscope/storyscope/internal/resilience/circuitbreaker"
)

// Generator is the generative-service surface the executors consume.
// *llm.Client satisfies it; tests substitute fakes.
type Generator interface {
	Generate(ctx context.Context, req llm.GenerateRequest) (string, error)
}

// Executor runs one analysis stage over all chapters of a book. Every
// generative call goes through the shared circuit breaker; a chapter
// whose call or parse fails gets the stage's fallback sentinel so the
// result slice always lines up with the chapter list.
type Executor struct {
	generator Generator
	breaker   *circuitbreaker.CircuitBreaker

	maxOutputTokens int
	temperature     float64
}

// Config holds executor tuning.
type Config struct {
	MaxOutputTokens int
	Temperature     float64
}

// NewExecutor creates a stage executor.
// Parameters:
//   - generator: text-generation client.
//   - breaker: shared breaker guarding the generative dependency.
//   - cfg: token budget and sampling temperature; nil uses defaults.
// Returns:
//   - *Executor: initialized executor.
func NewExecutor(generator Generator, breaker *circuitbreaker.CircuitBreaker, cfg *Config) *Executor {
	maxTokens := 600
	temperature := 0.3
	if cfg != nil {
		if cfg.MaxOutputTokens > 0 {
			maxTokens = cfg.MaxOutputTokens
		}
		if cfg.Temperature > 0 {
			temperature = cfg.Temperature
		}
	}
	return &Executor{
		generator:       generator,
		breaker:         breaker,
		maxOutputTokens: maxTokens,
		temperature:     temperature,
	}
}

// RunStage analyzes every chapter of book for one stage. Per-chapter
// failures are absorbed into fallback results and never returned as an
// error; the caller only sees infrastructure failures, which here means
// none (storage is the orchestrator's concern).
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - stage: pipeline stage to run.
//   - book: book with chapters loaded in position order.
// Returns:
//   - []domain.ChapterResult: exactly one result per chapter.
//   - float64: stage rollup on the stage's native scale.
func (e *Executor) RunStage(ctx context.Context, stage domain.Stage, book *domain.Book) ([]domain.ChapterResult, float64) {
	results := make([]domain.ChapterResult, 0, len(book.Chapters))

	for i := range book.Chapters {
		chapter := &book.Chapters[i]
		result := e.analyzeChapter(ctx, stage, book, chapter)
		results = append(results, result)
	}

	return results, Rollup(stage, results)
}

func (e *Executor) analyzeChapter(ctx context.Context, stage domain.Stage, book *domain.Book, chapter *domain.Chapter) domain.ChapterResult {
	prompt := prompts.ForStage(stage, book, chapter)

	var text string
	err := e.breaker.Execute(ctx, func(ctx context.Context) error {
		out, genErr := e.generator.Generate(ctx, llm.GenerateRequest{
			System:          prompts.AnalysisSystemPrompt,
			Prompt:          prompt,
			MaxOutputTokens: e.maxOutputTokens,
			Temperature:     e.temperature,
		})
		if genErr != nil {
			return genErr
		}
		text = out
		return nil
	})
	if err != nil {
		logger.FromContext(ctx).WithFields(logger.Fields{
			logger.FieldStage: string(stage),
			"chapter_id":      chapter.ID,
			"position":        chapter.Position,
			"circuit_open":    circuitbreaker.IsOpen(err),
		}).WithError(err).Warn("Chapter analysis failed, using fallback result")
		return domain.FallbackChapterResult(stage, chapter.ID, chapter.Position)
	}

	result, parseErr := parseChapterResult(stage, text, chapter)
	if parseErr != nil {
		logger.FromContext(ctx).WithFields(logger.Fields{
			logger.FieldStage: string(stage),
			"chapter_id":      chapter.ID,
			"position":        chapter.Position,
		}).WithError(parseErr).Warn("Chapter analysis response unparseable, using fallback result")
		return domain.FallbackChapterResult(stage, chapter.ID, chapter.Position)
	}
	return result
}
