package queue

import (
	"context"
	"time"

	"github.com/storyscope/storyscope/internal/domain"
)

// StageMessage is one unit of pipeline work: run a single analysis
// stage for a report. Workers enqueue the successor stage themselves,
// so at most one message per report is in flight at a time.
type StageMessage struct {
	ReportID    string       `json:"report_id"`
	BookID      string       `json:"book_id"`
	Stage       domain.Stage `json:"stage"`
	Attempt     int          `json:"attempt"`
	RequestedAt time.Time    `json:"requested_at"`
}

// Producer sends stage jobs to a queue backend.
type Producer interface {
	Enqueue(ctx context.Context, message StageMessage) error
}

// Consumer receives stage jobs and executes handlers.
type Consumer interface {
	Consume(ctx context.Context, handler func(context.Context, StageMessage) error) error
}
