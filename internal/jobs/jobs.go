package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"campus/internal/attendance"
	"campus/internal/metrics"
	"campus/internal/queue"
	"campus/internal/reporting"
)

// Completer applies the auto-completion rule.
type Completer interface {
	Sweep(ctx context.Context) (int, error)
	CompleteIfDue(ctx context.Context, meetingID string) (bool, error)
}

// RunSweep applies the auto-completion rule to all open meetings every
// interval until ctx is done. A non-positive interval disables the job.
func RunSweep(ctx context.Context, svc Completer, interval, timeout time.Duration) error {
	if interval <= 0 {
		slog.Info("sweep job disabled")
		return nil
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			tickCtx, cancel := context.WithTimeout(ctx, timeout)
			n, err := svc.Sweep(tickCtx)
			cancel()
			if err != nil {
				slog.Warn("sweep job error", "error", err, "completed", n)
				continue
			}
			if n > 0 {
				slog.Info("sweep job completed meetings", "count", n)
			}
		}
	}
}

// Consume handles queue messages until ctx is done or the queue closes.
func Consume(ctx context.Context, q queue.Queue, svc Completer, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	messages, err := q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("queue consume init: %w", err)
	}
	slog.Info("queue consumer started")
	for msg := range messages {
		msgCtx, cancel := context.WithTimeout(ctx, timeout)
		err := Handle(msgCtx, svc, msg)
		cancel()
		if err != nil {
			metrics.QueueMessages.WithLabelValues(msg.Type, "error").Inc()
			if attendance.IsTransient(err) {
				slog.Warn("queue message failed", "type", msg.Type, "meeting_id", msg.MeetingID, "error", err)
			} else {
				reporting.Error(nil, "queue message failed", err, "type", msg.Type, "meeting_id", msg.MeetingID)
			}
			continue
		}
		metrics.QueueMessages.WithLabelValues(msg.Type, "ok").Inc()
	}
	slog.Info("queue consumer stopped")
	return nil
}

// ErrUnknownMessage is returned by Handle for unsupported message types.
var ErrUnknownMessage = errors.New("unknown message type")

// Handle processes one message.
func Handle(ctx context.Context, svc Completer, msg queue.Message) error {
	switch msg.Type {
	case queue.TypeSweep:
		n, err := svc.Sweep(ctx)
		if err != nil {
			return err
		}
		slog.Info("queued sweep done", "completed", n)
		return nil
	case queue.TypeComplete:
		if msg.MeetingID == "" {
			return fmt.Errorf("%s message without meeting id", msg.Type)
		}
		changed, err := svc.CompleteIfDue(ctx, msg.MeetingID)
		if err != nil {
			return err
		}
		slog.Info("queued completion check done", "meeting_id", msg.MeetingID, "completed", changed)
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMessage, msg.Type)
	}
}
