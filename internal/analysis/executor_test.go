package analysis

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/storyscope/storyscope/internal/domain"
	"github.com/storyscope/storyscope/internal/llm"
	"github.com/storyscope/storyscope/internal/resilience/circuitbreaker"
)

// fakeGenerator scripts one response (or error) per call, in order.
type fakeGenerator struct {
	responses []string
	errs      []error
	calls     int
}

func (f *fakeGenerator) Generate(_ context.Context, _ llm.GenerateRequest) (string, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return "", errors.New("unscripted call")
}

func testBook(chapters int) *domain.Book {
	book := &domain.Book{ID: "b1", Title: "The Long Rain", Genre: "literary"}
	for i := 1; i <= chapters; i++ {
		book.Chapters = append(book.Chapters, domain.Chapter{
			ID:       fmt.Sprintf("c%d", i),
			BookID:   book.ID,
			Position: i,
			Title:    fmt.Sprintf("Chapter %d", i),
			Content:  "It was raining again.",
		})
	}
	return book
}

func newTestBreaker() *circuitbreaker.CircuitBreaker {
	return circuitbreaker.New("generative", circuitbreaker.DefaultConfig())
}

func TestRunStageOneResultPerChapter(t *testing.T) {
	gen := &fakeGenerator{responses: []string{
		`{"score": 8, "hook_score": 7, "pacing_note": "steady", "summary": "strong open"}`,
		`{"score": 4, "hook_score": 6, "pacing_note": "drags", "summary": "sags in the middle"}`,
	}}
	executor := NewExecutor(gen, newTestBreaker(), nil)

	results, rollup := executor.RunStage(context.Background(), domain.StageEngagement, testBook(2))

	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	for i, result := range results {
		if result.Position != i+1 {
			t.Errorf("result %d has position %d", i, result.Position)
		}
		if result.Fallback {
			t.Errorf("result %d unexpectedly fallback", i)
		}
	}
	if results[0].Score != 8 || results[1].Score != 4 {
		t.Errorf("scores = [%v, %v], want [8, 4]", results[0].Score, results[1].Score)
	}
	if rollup != 6 {
		t.Errorf("rollup = %v, want 6", rollup)
	}
}

func TestRunStageFailedChapterGetsFallback(t *testing.T) {
	gen := &fakeGenerator{
		responses: []string{
			`{"score": 9, "hook_score": 8, "summary": "ok"}`,
			"",
			`{"score": 7, "hook_score": 6, "summary": "ok"}`,
		},
		errs: []error{nil, errors.New("upstream 500"), nil},
	}
	executor := NewExecutor(gen, newTestBreaker(), nil)

	results, _ := executor.RunStage(context.Background(), domain.StageEngagement, testBook(3))

	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0].Fallback || results[2].Fallback {
		t.Errorf("healthy chapters marked fallback: %v, %v", results[0].Fallback, results[2].Fallback)
	}
	if !results[1].Fallback {
		t.Fatal("failed chapter not marked fallback")
	}
	if results[1].Score != 0 {
		t.Errorf("fallback score = %v, want 0", results[1].Score)
	}
	if results[1].ChapterID != "c2" || results[1].Position != 2 {
		t.Errorf("fallback misaligned: id=%s position=%d", results[1].ChapterID, results[1].Position)
	}
}

func TestRunStageUnparseableResponseGetsFallback(t *testing.T) {
	gen := &fakeGenerator{responses: []string{"I'd rate this chapter an 8 out of 10."}}
	executor := NewExecutor(gen, newTestBreaker(), nil)

	results, _ := executor.RunStage(context.Background(), domain.StageEngagement, testBook(1))
	if !results[0].Fallback {
		t.Fatal("unparseable response should yield a fallback result")
	}
}

func TestRunStageOpenBreakerSkipsRemainingCalls(t *testing.T) {
	boom := errors.New("connection refused")
	gen := &fakeGenerator{errs: []error{boom, boom, boom, boom, boom}}
	breaker := circuitbreaker.New("generative", circuitbreaker.Config{
		FailureThreshold: 3,
		SuccessThreshold: 1,
		OpenTimeout:      circuitbreaker.DefaultConfig().OpenTimeout,
	})
	executor := NewExecutor(gen, breaker, nil)

	results, rollup := executor.RunStage(context.Background(), domain.StageEngagement, testBook(5))

	if gen.calls != 3 {
		t.Errorf("generator called %d times, want 3 before the breaker opened", gen.calls)
	}
	if breaker.State() != circuitbreaker.StateOpen {
		t.Errorf("breaker state = %s, want open", breaker.State())
	}
	for i, result := range results {
		if !result.Fallback {
			t.Errorf("result %d not fallback", i)
		}
	}
	if rollup != 0 {
		t.Errorf("rollup = %v, want 0 for an all-fallback stage", rollup)
	}
}

func TestParseChapterResultStageFields(t *testing.T) {
	chapter := &domain.Chapter{ID: "c1", Position: 1}

	structure, err := parseChapterResult(domain.StageStructure,
		"```json\n{\"score\": 6.5, \"major_issues\": [\"no midpoint\"], \"minor_issues\": [], \"summary\": \"loose act two\"}\n```",
		chapter)
	if err != nil {
		t.Fatalf("structure parse: %v", err)
	}
	if structure.Score != 6.5 || len(structure.MajorIssues) != 1 {
		t.Errorf("structure = %+v", structure)
	}

	market, err := parseChapterResult(domain.StageMarket,
		`{"score": 12, "comparables": ["Station Eleven"], "audience": "adult literary", "summary": "sells"}`,
		chapter)
	if err != nil {
		t.Fatalf("market parse: %v", err)
	}
	if market.Score != 10 {
		t.Errorf("score not clamped: %v", market.Score)
	}
	if market.Audience != "adult literary" {
		t.Errorf("audience = %q", market.Audience)
	}

	if _, err := parseChapterResult(domain.StageEngagement, `{"summary": "no score"}`, chapter); err == nil {
		t.Error("missing score should be a parse failure")
	}
}

func TestRollupStructurePenalty(t *testing.T) {
	results := []domain.ChapterResult{
		{Score: 8, MajorIssues: []string{"a", "b", "c"}},
		{Score: 3, MajorIssues: []string{"d", "e", "f", "g", "h"}},
	}
	// mean 5.5 -> 55, minus 8 issues * 5 = 15.
	if got := Rollup(domain.StageStructure, results); got != 15 {
		t.Errorf("structure rollup = %v, want 15", got)
	}

	heavy := []domain.ChapterResult{{Score: 1, MajorIssues: []string{"a", "b", "c", "d", "e"}}}
	if got := Rollup(domain.StageStructure, heavy); got != 0 {
		t.Errorf("rollup not clamped at 0: %v", got)
	}

	if got := Rollup(domain.StageMarket, []domain.ChapterResult{{Score: 4}, {Score: 6}}); got != 5 {
		t.Errorf("market rollup = %v, want 5", got)
	}

	if got := Rollup(domain.StageEngagement, nil); got != 0 {
		t.Errorf("empty rollup = %v, want 0", got)
	}
}
