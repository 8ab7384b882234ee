package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/subscription-reconciler/internal/domain"
)

const (
	claimsFieldStatus      = "subscriptionStatus"
	claimsFieldEntitlement = "entitlementActive"
	claimsFieldSyncedAt    = "syncedAt"
)

// ClaimsRepository stores the session-claims projection in Redis hashes.
type ClaimsRepository interface {
	SetClaims(ctx context.Context, identityID string, claims domain.Claims) error
	GetClaims(ctx context.Context, identityID string) (*domain.Claims, error)
}

type claimsRepository struct {
	client redis.Cmdable
	prefix string
	now    func() time.Time
}

// NewClaimsRepository returns a Redis-backed implementation keyed by prefix+identityID.
func NewClaimsRepository(client redis.Cmdable, prefix string) ClaimsRepository {
	return &claimsRepository{client: client, prefix: prefix, now: time.Now}
}

func (r *claimsRepository) key(identityID string) string {
	return r.prefix + identityID
}

func (r *claimsRepository) SetClaims(ctx context.Context, identityID string, claims domain.Claims) error {
	fields := encodeClaims(claims, r.now())
	if err := r.client.HSet(ctx, r.key(identityID), fields).Err(); err != nil {
		return fmt.Errorf("hset claims %s: %w", identityID, err)
	}
	return nil
}

func (r *claimsRepository) GetClaims(ctx context.Context, identityID string) (*domain.Claims, error) {
	values, err := r.client.HGetAll(ctx, r.key(identityID)).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall claims %s: %w", identityID, err)
	}
	return decodeClaims(values), nil
}

func encodeClaims(claims domain.Claims, syncedAt time.Time) map[string]any {
	return map[string]any{
		claimsFieldStatus:      claims.SubscriptionStatus,
		claimsFieldEntitlement: strconv.FormatBool(claims.EntitlementActive),
		claimsFieldSyncedAt:    syncedAt.UTC().Format(time.RFC3339),
	}
}

// decodeClaims returns nil for a missing hash.
func decodeClaims(values map[string]string) *domain.Claims {
	if len(values) == 0 {
		return nil
	}
	active, _ := strconv.ParseBool(values[claimsFieldEntitlement])
	return &domain.Claims{
		SubscriptionStatus: values[claimsFieldStatus],
		EntitlementActive:  active,
	}
}
