package reminder

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

type ServerConfig struct {
	Concurrency   int
	RetryInterval time.Duration // upper bound for the retry backoff
}

// NewServer builds the asynq server that consumes the reminder queue.
func NewServer(opt asynq.RedisConnOpt, cfg ServerConfig, logger *zap.Logger) *asynq.Server {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 5 * time.Minute
	}

	return asynq.NewServer(opt, asynq.Config{
		Concurrency:    cfg.Concurrency,
		Queues:         map[string]int{QueueName: 1},
		RetryDelayFunc: retryDelay(cfg.RetryInterval),
		Logger:         logger.Sugar(),
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			logger.Warn("reminder task failed",
				zap.String("type", task.Type()),
				zap.Int("retried", retried),
				zap.Error(err),
			)
		}),
	})
}

// retryDelay doubles from one second and is capped at ceiling.
func retryDelay(ceiling time.Duration) asynq.RetryDelayFunc {
	return func(n int, _ error, _ *asynq.Task) time.Duration {
		if n > 30 {
			return ceiling
		}
		delay := time.Duration(1<<uint(n)) * time.Second
		if delay > ceiling {
			return ceiling
		}
		return delay
	}
}

func NewMux(h *Handler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeSendReminder, h)
	return mux
}
