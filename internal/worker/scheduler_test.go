package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/spec-kit/subscription-reconciler/internal/domain"
	"github.com/spec-kit/subscription-reconciler/internal/service"
)

func TestStartSchedulerRunsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var runs atomic.Int32
	done := StartScheduler(ctx, RunnerFunc(func(_ context.Context, input service.RunInput) error {
		assert.Equal(t, domain.SubjectTypeScheduler, input.Actor.Type)
		if runs.Add(1) == 2 {
			cancel()
		}
		return nil
	}), 5*time.Millisecond, nil)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.GreaterOrEqual(t, runs.Load(), int32(2))
}

func TestStartSchedulerDisabled(t *testing.T) {
	done := StartScheduler(context.Background(), RunnerFunc(func(context.Context, service.RunInput) error {
		t.Fatal("must not run")
		return nil
	}), 0, nil)

	select {
	case <-done:
	default:
		t.Fatal("disabled scheduler should be closed immediately")
	}
}
