package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/storyscope/storyscope/internal/domain"
	"github.com/storyscope/storyscope/internal/logger"
	"github.com/storyscope/storyscope/internal/queue"
	"github.com/storyscope/storyscope/internal/service"
)

// ReportRunner is the slice of the report service the worker drives.
// *service.ReportService satisfies it.
type ReportRunner interface {
	RunStage(ctx context.Context, reportID string, stage domain.Stage) error
	Finalize(ctx context.Context, reportID string) error
}

// Processor consumes stage jobs and drives the pipeline: it runs the
// requested stage, then enqueues the successor stage, or finalizes the
// report after the last one. Stage order is sequential per report; the
// single in-flight message per report enforces it.
type Processor struct {
	consumer queue.Consumer
	producer queue.Producer
	reports  ReportRunner
	logger   *logger.Logger
}

func NewProcessor(
	consumer queue.Consumer,
	producer queue.Producer,
	reports ReportRunner,
	log *logger.Logger,
) *Processor {
	return &Processor{
		consumer: consumer,
		producer: producer,
		reports:  reports,
		logger:   log,
	}
}

// Start runs the consume loop until ctx is canceled. Transient consume
// errors back off and retry rather than killing the worker.
func (p *Processor) Start(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		err := p.consumer.Consume(ctx, p.processMessage)
		if err == nil || ctx.Err() != nil {
			return
		}
		p.logger.WithError(err).Error("Worker consume loop error, backing off")

		timer := time.NewTimer(2 * time.Second)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (p *Processor) processMessage(ctx context.Context, message queue.StageMessage) error {
	ctx = p.logger.WithContext(ctx)
	ctx = logger.SetReportID(ctx, message.ReportID)
	ctx = logger.SetStage(ctx, string(message.Stage))
	ctx = logger.SetComponent(ctx, "worker")

	err := p.reports.RunStage(ctx, message.ReportID, message.Stage)
	if errors.Is(err, service.ErrNotFound) {
		// Report row is gone; retrying cannot help.
		logger.FromContext(ctx).Warn("Dropping stage job for unknown report")
		return nil
	}
	if err != nil {
		return fmt.Errorf("run stage %s: %w", message.Stage, err)
	}

	next := domain.NextStage(message.Stage)
	if next == "" {
		if err := p.reports.Finalize(ctx, message.ReportID); err != nil {
			return fmt.Errorf("finalize report: %w", err)
		}
		return nil
	}

	successor := queue.StageMessage{
		ReportID:    message.ReportID,
		BookID:      message.BookID,
		Stage:       next,
		RequestedAt: time.Now().UTC(),
	}
	if err := p.producer.Enqueue(ctx, successor); err != nil {
		return fmt.Errorf("enqueue stage %s: %w", next, err)
	}
	return nil
}
