package reconcile

import "github.com/spec-kit/subscription-reconciler/internal/domain"

// ResolutionBranch names which rule produced a target state.
type ResolutionBranch string

const (
	BranchBilling      ResolutionBranch = "billing"
	BranchRoleOverride ResolutionBranch = "role_override"
	BranchNoBilling    ResolutionBranch = "no_billing"
)

// Resolve maps the canonical billing view and an identity's role to its target entitlement.
func Resolve(identity domain.IdentityRecord, canonical map[string]domain.CanonicalBillingEntry) domain.TargetState {
	target, _ := resolveWithBranch(identity, canonical)
	return target
}

func resolveWithBranch(identity domain.IdentityRecord, canonical map[string]domain.CanonicalBillingEntry) (domain.TargetState, ResolutionBranch) {
	if entry, ok := canonical[identity.Key()]; ok {
		return domain.TargetState{
			EntitlementActive:      entry.Status.IsActiveLike(),
			SubscriptionStatus:     string(entry.Status),
			ExternalCustomerID:     entry.ExternalCustomerID,
			ExternalSubscriptionID: entry.ExternalSubscriptionID,
		}, BranchBilling
	}

	// Internal roles are never gated by external billing.
	if identity.Role.IsInternal() {
		return domain.TargetState{
			EntitlementActive:  true,
			SubscriptionStatus: domain.SubscriptionStatusActive,
		}, BranchRoleOverride
	}

	return domain.TargetState{
		EntitlementActive:  false,
		SubscriptionStatus: domain.SubscriptionStatusNone,
	}, BranchNoBilling
}
