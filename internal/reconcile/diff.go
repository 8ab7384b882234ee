package reconcile

import "github.com/spec-kit/subscription-reconciler/internal/domain"

// DiffResult reports whether an identity needs a write.
type DiffResult struct {
	Changed bool
	Fields  []string
}

// Diff compares exactly the fields that gate writes: entitlement flag,
// subscription status and external subscription id.
func Diff(current domain.IdentityRecord, target domain.TargetState) DiffResult {
	var fields []string
	if current.EntitlementActive != target.EntitlementActive {
		fields = append(fields, "entitlementActive")
	}
	if current.SubscriptionStatus != target.SubscriptionStatus {
		fields = append(fields, "subscriptionStatus")
	}
	if current.ExternalSubscriptionID != target.ExternalSubscriptionID {
		fields = append(fields, "externalSubscriptionId")
	}
	return DiffResult{Changed: len(fields) > 0, Fields: fields}
}

// ClaimsDrifted reports whether the stored claims disagree with the target.
// Missing claims count as drift.
func ClaimsDrifted(stored *domain.Claims, target domain.TargetState) bool {
	if stored == nil {
		return true
	}
	return *stored != domain.ClaimsFor(target)
}
