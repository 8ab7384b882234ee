package reconcile

import (
	"context"

	"github.com/spec-kit/subscription-reconciler/internal/domain"
)

// PrimaryStore is the authoritative identity datastore.
type PrimaryStore interface {
	ListIdentities(ctx context.Context) ([]domain.IdentityRecord, error)
	UpdateEntitlement(ctx context.Context, identityID string, target domain.TargetState) error
}

// ClaimsStore is the session-claims cache read by request-time access control.
type ClaimsStore interface {
	SetClaims(ctx context.Context, identityID string, claims domain.Claims) error
	GetClaims(ctx context.Context, identityID string) (*domain.Claims, error)
}
