package reconcile

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/subscription-reconciler/internal/domain"
)

// Writer applies a changed entitlement to the primary store, then the claims store.
// Ordering is the consistency mechanism: claims are never written from a failed
// primary write, and a failed claims write never rolls the primary back.
type Writer struct {
	primary PrimaryStore
	claims  ClaimsStore
	timeout time.Duration
	logger  *zap.Logger
}

// NewWriter builds a Writer. timeout bounds each individual store call.
func NewWriter(primary PrimaryStore, claims ClaimsStore, timeout time.Duration, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{primary: primary, claims: claims, timeout: timeout, logger: logger}
}

// Apply writes target for identity and classifies the result.
// Writes are detached from ctx cancellation so an in-flight write always completes or times out.
func (w *Writer) Apply(ctx context.Context, identity domain.IdentityRecord, target domain.TargetState) domain.Outcome {
	outcome := domain.Outcome{IdentityID: identity.ID, IdentityKey: identity.Key()}
	writeCtx := context.WithoutCancel(ctx)

	if err := w.call(writeCtx, func(ctx context.Context) error {
		return w.primary.UpdateEntitlement(ctx, identity.ID, target)
	}); err != nil {
		w.logger.Warn("primary entitlement write failed",
			zap.String("identity_id", identity.ID),
			zap.Error(err))
		outcome.Kind = domain.OutcomeWriteFailed
		outcome.FailedStore = domain.StorePrimary
		outcome.Err = fmt.Errorf("primary write: %w", err)
		return outcome
	}

	if err := w.writeClaims(writeCtx, identity.ID, target); err != nil {
		w.logger.Warn("claims write failed after primary write",
			zap.String("identity_id", identity.ID),
			zap.String("subscription_status", target.SubscriptionStatus),
			zap.Error(err))
		outcome.Kind = domain.OutcomeWriteFailed
		outcome.FailedStore = domain.StoreClaims
		outcome.Err = fmt.Errorf("claims write: %w", err)
		return outcome
	}

	outcome.Kind = domain.OutcomeUpdated
	return outcome
}

// RepairClaims rewrites only the claims store for an identity whose primary
// record already matches the target.
func (w *Writer) RepairClaims(ctx context.Context, identity domain.IdentityRecord, target domain.TargetState) domain.Outcome {
	outcome := domain.Outcome{IdentityID: identity.ID, IdentityKey: identity.Key()}
	if err := w.writeClaims(context.WithoutCancel(ctx), identity.ID, target); err != nil {
		outcome.Kind = domain.OutcomeWriteFailed
		outcome.FailedStore = domain.StoreClaims
		outcome.Err = fmt.Errorf("claims repair: %w", err)
		return outcome
	}
	outcome.Kind = domain.OutcomeUpdated
	outcome.ClaimsRepaired = true
	return outcome
}

// CurrentClaims reads the stored claims under the write timeout.
func (w *Writer) CurrentClaims(ctx context.Context, identityID string) (*domain.Claims, error) {
	var claims *domain.Claims
	err := w.call(context.WithoutCancel(ctx), func(ctx context.Context) error {
		var err error
		claims, err = w.claims.GetClaims(ctx, identityID)
		return err
	})
	return claims, err
}

func (w *Writer) writeClaims(ctx context.Context, identityID string, target domain.TargetState) error {
	return w.call(ctx, func(ctx context.Context) error {
		return w.claims.SetClaims(ctx, identityID, domain.ClaimsFor(target))
	})
}

func (w *Writer) call(ctx context.Context, fn func(context.Context) error) error {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}
	return fn(ctx)
}
