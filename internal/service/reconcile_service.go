package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/subscription-reconciler/internal/domain"
	"github.com/spec-kit/subscription-reconciler/internal/events"
	"github.com/spec-kit/subscription-reconciler/internal/observability"
	"github.com/spec-kit/subscription-reconciler/internal/reconcile"
	"github.com/spec-kit/subscription-reconciler/internal/repository"
)

const (
	historyTimeout = 5 * time.Second
	notifyTimeout  = 10 * time.Second
)

// Engine runs a single reconciliation.
type Engine interface {
	Run(ctx context.Context, req reconcile.RunRequest) (*reconcile.Report, error)
}

// RunInput describes a trigger request.
type RunInput struct {
	DebugIdentityKey string
	Actor            events.Actor
}

// ReconcileDependencies bundles collaborators for the service.
type ReconcileDependencies struct {
	Engine     Engine
	Runs       repository.RunRepository
	Metrics    *observability.Metrics
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// ReconcileService wraps the engine with the run deadline, history and notifications.
type ReconcileService struct {
	engine     Engine
	runs       repository.RunRepository
	metrics    *observability.Metrics
	dispatcher events.Dispatcher
	logger     *zap.Logger
	runTimeout time.Duration
}

// NewReconcileService builds the service. runTimeout of zero means no deadline.
func NewReconcileService(runTimeout time.Duration, deps ReconcileDependencies) *ReconcileService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconcileService{
		engine:     deps.Engine,
		runs:       deps.Runs,
		metrics:    deps.Metrics,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		runTimeout: runTimeout,
	}
}

// Run executes one reconciliation. The report is never nil.
func (s *ReconcileService) Run(ctx context.Context, input RunInput) (*reconcile.Report, error) {
	runCtx := ctx
	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
	}

	req := reconcile.RunRequest{
		RunID:            uuid.NewString(),
		DebugIdentityKey: domain.NormalizeIdentityKey(input.DebugIdentityKey),
	}
	s.logger.Info("reconciliation triggered",
		zap.String("run_id", req.RunID),
		zap.String("actor", string(input.Actor.Type)),
		zap.Bool("debug", req.DebugIdentityKey != ""))

	report, err := s.engine.Run(runCtx, req)
	if report == nil {
		report = &reconcile.Report{RunID: req.RunID, Err: err}
	}

	s.metrics.RecordRun(report)
	// Bookkeeping must not be cut short by the caller's cancellation.
	afterCtx := context.WithoutCancel(ctx)
	s.recordHistory(afterCtx, report)
	s.publish(afterCtx, report, input.Actor)
	return report, err
}

func (s *ReconcileService) recordHistory(ctx context.Context, report *reconcile.Report) {
	if s.runs == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, historyTimeout)
	defer cancel()
	if err := s.runs.Record(ctx, report); err != nil {
		s.logger.Warn("failed to record run history", zap.String("run_id", report.RunID), zap.Error(err))
	}
}

// publish emits at most two events per run, bounded together by notifyTimeout.
func (s *ReconcileService) publish(ctx context.Context, report *reconcile.Report, actor events.Actor) {
	if s.dispatcher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()
	now := time.Now().UTC()

	var failed []events.FailedIdentity
	for _, o := range report.Outcomes {
		if o.Kind != domain.OutcomeWriteFailed || o.FailedStore != domain.StoreClaims {
			continue
		}
		failed = append(failed, events.FailedIdentity{
			IdentityID:  o.IdentityID,
			IdentityKey: o.IdentityKey,
			Error:       errText(o.Err),
		})
	}
	if len(failed) > 0 {
		_ = s.dispatcher.Publish(ctx, events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventClaimsWriteFailed,
			RunID:     report.RunID,
			Actor:     actor,
			Timestamp: now,
			Payload:   events.ClaimsWriteFailedPayload{Count: len(failed), Identities: failed},
		})
	}

	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventRunCompleted,
		RunID:     report.RunID,
		Actor:     actor,
		Timestamp: now,
		Payload: events.RunCompletedPayload{
			Result:          observability.RunResult(report),
			Success:         report.Success(),
			DryRun:          report.DryRun,
			TotalIdentities: report.Summary.Total,
			Updated:         report.Summary.Updated,
			Unchanged:       report.Summary.Unchanged,
			Failed:          report.Summary.Failed,
			Skipped:         report.Summary.Skipped,
			DurationMillis:  report.Duration().Milliseconds(),
			Error:           errText(report.Err),
		},
	})
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
