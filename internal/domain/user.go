package domain

import (
	"strings"
	"time"
)

// Role represents the internal role of an identity.
type Role string

const (
	RoleStudent Role = "student"
	RoleStaff   Role = "staff"
	RoleAdmin   Role = "admin"
)

// IsInternal reports whether the role bypasses billing-gated entitlement.
func (r Role) IsInternal() bool {
	return r == RoleAdmin || r == RoleStaff
}

// IdentityRecord is the long-lived identity row owned by the primary datastore.
type IdentityRecord struct {
	ID                     string
	Email                  string
	Role                   Role
	EntitlementActive      bool
	SubscriptionStatus     string
	ExternalCustomerID     string
	ExternalSubscriptionID string
	UpdatedAt              time.Time
}

// Key returns the normalized identity key used to match billing records.
func (r IdentityRecord) Key() string {
	return NormalizeIdentityKey(r.Email)
}

// NormalizeIdentityKey case-folds and trims an email address.
func NormalizeIdentityKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
