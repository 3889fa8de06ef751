package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hackgods/calendar-proxy-scheduling/internal/appointment"
)

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type DueLister interface {
	DueForReminder(ctx context.Context) ([]appointment.Appointment, error)
}

type Scheduler struct {
	queue      Enqueuer
	due        DueLister
	logger     *zap.Logger
	maxRetries int
	timeout    time.Duration
}

func NewScheduler(queue Enqueuer, due DueLister, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		queue:      queue,
		due:        due,
		logger:     logger,
		maxRetries: 5,
		timeout:    30 * time.Second,
	}
}

// Scan queues a task for every appointment currently due a reminder and
// returns how many were newly queued. Appointments already queued are skipped.
func (s *Scheduler) Scan(ctx context.Context) (int, error) {
	due, err := s.due.DueForReminder(ctx)
	if err != nil {
		return 0, err
	}

	var (
		queued int
		errs   error
	)
	for _, a := range due {
		task, err := NewTask(a)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}

		_, err = s.queue.EnqueueContext(ctx, task, asynq.MaxRetry(s.maxRetries), asynq.Timeout(s.timeout))
		switch {
		case errors.Is(err, asynq.ErrTaskIDConflict), errors.Is(err, asynq.ErrDuplicateTask):
			s.logger.Debug("reminder already queued", zap.String("appointment_id", a.ID.String()))
		case err != nil:
			errs = multierr.Append(errs, fmt.Errorf("enqueue reminder %s: %w", a.ID, err))
		default:
			queued++
		}
	}

	return queued, errs
}
