package domain

// TargetState is the entitlement an identity should hold after a run.
type TargetState struct {
	EntitlementActive      bool
	SubscriptionStatus     string
	ExternalCustomerID     string
	ExternalSubscriptionID string
}

// Claims is the denormalized projection kept in the session-claims store.
type Claims struct {
	SubscriptionStatus string
	EntitlementActive  bool
}

// ClaimsFor projects a target state onto the claims store fields.
func ClaimsFor(target TargetState) Claims {
	return Claims{
		SubscriptionStatus: target.SubscriptionStatus,
		EntitlementActive:  target.EntitlementActive,
	}
}

// OutcomeKind classifies what happened to an identity during a run.
type OutcomeKind string

const (
	OutcomeUnchanged   OutcomeKind = "unchanged"
	OutcomeUpdated     OutcomeKind = "updated"
	OutcomeWriteFailed OutcomeKind = "write_failed"
	OutcomeSkipped     OutcomeKind = "skipped"
)

// Store names a write target.
type Store string

const (
	StorePrimary Store = "primary"
	StoreClaims  Store = "claims"
)

// Outcome is the per-identity result of a run.
type Outcome struct {
	IdentityID  string
	IdentityKey string
	Kind        OutcomeKind
	FailedStore Store
	Err         error
	// ClaimsRepaired marks an update that only rewrote drifted claims.
	ClaimsRepaired bool
	DryRun         bool
}

// String renders the outcome the way it appears in logs and traces.
func (o Outcome) String() string {
	if o.Kind == OutcomeWriteFailed {
		return string(o.Kind) + "(" + string(o.FailedStore) + ")"
	}
	return string(o.Kind)
}
