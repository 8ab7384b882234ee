package domain

import "strings"

// SubscriptionStatus is the closed set of billing statuses understood by the engine.
type SubscriptionStatus string

const (
	StatusActive     SubscriptionStatus = "active"
	StatusTrialing   SubscriptionStatus = "trialing"
	StatusPastDue    SubscriptionStatus = "past_due"
	StatusCanceled   SubscriptionStatus = "canceled"
	StatusIncomplete SubscriptionStatus = "incomplete"
	StatusUnpaid     SubscriptionStatus = "unpaid"
	StatusOther      SubscriptionStatus = "other"
)

// Internal status values written for identities without a billing record.
const (
	SubscriptionStatusNone   = "none"
	SubscriptionStatusActive = string(StatusActive)
)

// ParseSubscriptionStatus maps a provider status string onto the closed enum.
// Anything unrecognised becomes StatusOther.
func ParseSubscriptionStatus(raw string) SubscriptionStatus {
	switch SubscriptionStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusActive:
		return StatusActive
	case StatusTrialing:
		return StatusTrialing
	case StatusPastDue:
		return StatusPastDue
	case StatusCanceled:
		return StatusCanceled
	case StatusIncomplete:
		return StatusIncomplete
	case StatusUnpaid:
		return StatusUnpaid
	default:
		return StatusOther
	}
}

// IsActiveLike reports whether the status counts as currently paying.
func (s SubscriptionStatus) IsActiveLike() bool {
	switch s {
	case StatusActive, StatusTrialing:
		return true
	default:
		return false
	}
}

// BillingRecord is a single subscription as reported by the billing provider.
// It is fetched fresh on every run and never persisted.
type BillingRecord struct {
	ExternalSubscriptionID string
	ExternalCustomerID     string
	IdentityKey            string
	Status                 SubscriptionStatus
	CancelAtPeriodEnd      bool
}

// CanonicalBillingEntry is the merged billing view for one identity key.
type CanonicalBillingEntry struct {
	IdentityKey            string
	ExternalSubscriptionID string
	ExternalCustomerID     string
	Status                 SubscriptionStatus
	CancelAtPeriodEnd      bool
	// Contributors counts the billing records folded into this entry.
	Contributors int
}

// CanonicalFromRecord seeds a canonical entry from a single record.
func CanonicalFromRecord(rec BillingRecord) CanonicalBillingEntry {
	return CanonicalBillingEntry{
		IdentityKey:            rec.IdentityKey,
		ExternalSubscriptionID: rec.ExternalSubscriptionID,
		ExternalCustomerID:     rec.ExternalCustomerID,
		Status:                 rec.Status,
		CancelAtPeriodEnd:      rec.CancelAtPeriodEnd,
		Contributors:           1,
	}
}
