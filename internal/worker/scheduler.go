package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/subscription-reconciler/internal/domain"
	"github.com/spec-kit/subscription-reconciler/internal/events"
	"github.com/spec-kit/subscription-reconciler/internal/service"
)

// Runner triggers a reconciliation.
type Runner interface {
	Run(ctx context.Context, input service.RunInput) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, input service.RunInput) error

func (f RunnerFunc) Run(ctx context.Context, input service.RunInput) error {
	return f(ctx, input)
}

// StartScheduler runs reconciliations every interval until ctx is done.
// Ticks that arrive while a run is still going are dropped by the ticker.
// The returned channel closes once the loop exits.
func StartScheduler(ctx context.Context, runner Runner, interval time.Duration, logger *zap.Logger) <-chan struct{} {
	done := make(chan struct{})
	if interval <= 0 || runner == nil {
		close(done)
		return done
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		logger.Info("in-process scheduler started", zap.Duration("interval", interval))
		for {
			select {
			case <-ctx.Done():
				logger.Info("in-process scheduler stopped")
				return
			case <-ticker.C:
				input := service.RunInput{Actor: events.Actor{Type: domain.SubjectTypeScheduler, SubjectID: "interval"}}
				if err := runner.Run(ctx, input); err != nil {
					logger.Warn("scheduled reconciliation failed", zap.Error(err))
				}
			}
		}
	}()
	return done
}
