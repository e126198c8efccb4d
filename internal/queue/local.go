package queue

import (
	"context"
	"sync"
	"time"

	"github.com/storyscope/storyscope/internal/logger"
)

// LocalQueue is an in-process fallback used when Redis is not
// configured. Single binary deployments run the API and the worker off
// the same LocalQueue.
type LocalQueue struct {
	ch          chan StageMessage
	maxAttempts int

	dlqMu sync.Mutex
	dlq   []StageMessage
}

func NewLocalQueue(bufferSize, maxAttempts int) *LocalQueue {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &LocalQueue{
		ch:          make(chan StageMessage, bufferSize),
		maxAttempts: maxAttempts,
		dlq:         make([]StageMessage, 0),
	}
}

func (q *LocalQueue) Enqueue(ctx context.Context, message StageMessage) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case q.ch <- message:
		return nil
	}
}

func (q *LocalQueue) Consume(ctx context.Context, handler func(context.Context, StageMessage) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case message := <-q.ch:
			err := handler(ctx, message)
			if err == nil {
				continue
			}

			message.Attempt++
			if message.Attempt >= q.maxAttempts {
				q.dlqMu.Lock()
				q.dlq = append(q.dlq, message)
				q.dlqMu.Unlock()
				logger.FromContext(ctx).WithFields(logger.Fields{
					logger.FieldReportID: message.ReportID,
					logger.FieldStage:    string(message.Stage),
					"attempt":            message.Attempt,
				}).WithError(err).Error("Local queue moved stage job to DLQ")
				continue
			}

			delay := time.Duration(message.Attempt) * 500 * time.Millisecond
			go func(retryMessage StageMessage) {
				timer := time.NewTimer(delay)
				defer timer.Stop()
				select {
				case <-ctx.Done():
					return
				case <-timer.C:
					q.ch <- retryMessage
				}
			}(message)
		}
	}
}

// DLQSize reports how many stage jobs exhausted their attempts.
func (q *LocalQueue) DLQSize() int {
	q.dlqMu.Lock()
	defer q.dlqMu.Unlock()
	return len(q.dlq)
}
