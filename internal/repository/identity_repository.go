package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/subscription-reconciler/internal/domain"
)

// IdentityRepository is the Postgres-backed primary store for identity entitlement.
type IdentityRepository interface {
	ListIdentities(ctx context.Context) ([]domain.IdentityRecord, error)
	GetByEmail(ctx context.Context, email string) (*domain.IdentityRecord, error)
	UpdateEntitlement(ctx context.Context, identityID string, target domain.TargetState) error
}

type identityRepository struct {
	pool *pgxpool.Pool
}

// NewIdentityRepository returns a Postgres-backed implementation.
func NewIdentityRepository(pool *pgxpool.Pool) IdentityRepository {
	return &identityRepository{pool: pool}
}

type identityRow struct {
	ID                     string    `db:"id"`
	Email                  string    `db:"email"`
	Role                   string    `db:"role"`
	EntitlementActive      bool      `db:"entitlement_active"`
	SubscriptionStatus     *string   `db:"subscription_status"`
	ExternalCustomerID     *string   `db:"external_customer_id"`
	ExternalSubscriptionID *string   `db:"external_subscription_id"`
	UpdatedAt              time.Time `db:"updated_at"`
}

func (r identityRow) toDomain() domain.IdentityRecord {
	return domain.IdentityRecord{
		ID:                     r.ID,
		Email:                  r.Email,
		Role:                   parseRole(r.Role),
		EntitlementActive:      r.EntitlementActive,
		SubscriptionStatus:     deref(r.SubscriptionStatus),
		ExternalCustomerID:     deref(r.ExternalCustomerID),
		ExternalSubscriptionID: deref(r.ExternalSubscriptionID),
		UpdatedAt:              r.UpdatedAt,
	}
}

const identityColumns = `id::text AS id, email, role, entitlement_active, subscription_status,
        external_customer_id, external_subscription_id, updated_at`

func (r *identityRepository) ListIdentities(ctx context.Context) ([]domain.IdentityRecord, error) {
	const query = `SELECT ` + identityColumns + ` FROM users ORDER BY id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	collected, err := pgx.CollectRows(rows, pgx.RowToStructByName[identityRow])
	if err != nil {
		return nil, err
	}

	identities := make([]domain.IdentityRecord, 0, len(collected))
	for _, row := range collected {
		identities = append(identities, row.toDomain())
	}
	return identities, nil
}

func (r *identityRepository) GetByEmail(ctx context.Context, email string) (*domain.IdentityRecord, error) {
	const query = `SELECT ` + identityColumns + ` FROM users WHERE lower(email)=$1`

	rows, err := r.pool.Query(ctx, query, domain.NormalizeIdentityKey(email))
	if err != nil {
		return nil, err
	}
	row, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[identityRow])
	if err != nil {
		return nil, err
	}
	identity := row.toDomain()
	return &identity, nil
}

// UpdateEntitlement writes only the billing-derived fields. Last write wins.
func (r *identityRepository) UpdateEntitlement(ctx context.Context, identityID string, target domain.TargetState) error {
	const query = `
        UPDATE users
        SET entitlement_active=$1, subscription_status=$2, external_customer_id=$3,
            external_subscription_id=$4, updated_at=NOW()
        WHERE id=$5`

	id, err := parseIdentityID(identityID)
	if err != nil {
		return err
	}
	cmd, err := r.pool.Exec(ctx, query,
		target.EntitlementActive,
		target.SubscriptionStatus,
		nullable(target.ExternalCustomerID),
		nullable(target.ExternalSubscriptionID),
		id,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// parseIdentityID converts the text id handed out by ListIdentities back to the
// users primary key, so the update compares against the indexed column.
func parseIdentityID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid identity id %q", raw)
	}
	return id, nil
}

func parseRole(raw string) domain.Role {
	switch domain.Role(strings.ToLower(strings.TrimSpace(raw))) {
	case domain.RoleAdmin:
		return domain.RoleAdmin
	case domain.RoleStaff:
		return domain.RoleStaff
	default:
		return domain.RoleStudent
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
