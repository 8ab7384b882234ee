package reconcile

import "github.com/spec-kit/subscription-reconciler/internal/domain"

// MergeAction describes what the merger did with one billing record.
type MergeAction string

const (
	MergeInserted MergeAction = "inserted"
	MergeKept     MergeAction = "kept"
	MergeReplaced MergeAction = "replaced"
)

// MergeDecision is emitted for every record folded by Merge.
type MergeDecision struct {
	Record   domain.BillingRecord
	Action   MergeAction
	Previous domain.SubscriptionStatus
}

// Merge folds billing records, in source order, into one canonical entry per
// identity key. An active-like entry is never displaced; a non-active-like
// entry is displaced only by an active-like record; otherwise first seen wins.
// observe may be nil.
func Merge(records []domain.BillingRecord, observe func(MergeDecision)) map[string]domain.CanonicalBillingEntry {
	canonical := make(map[string]domain.CanonicalBillingEntry, len(records))

	for _, rec := range records {
		decision := MergeDecision{Record: rec}
		existing, found := canonical[rec.IdentityKey]

		switch {
		case !found:
			canonical[rec.IdentityKey] = domain.CanonicalFromRecord(rec)
			decision.Action = MergeInserted
		case existing.Status.IsActiveLike():
			existing.Contributors++
			canonical[rec.IdentityKey] = existing
			decision.Action = MergeKept
		case rec.Status.IsActiveLike():
			replacement := domain.CanonicalFromRecord(rec)
			replacement.Contributors = existing.Contributors + 1
			canonical[rec.IdentityKey] = replacement
			decision.Action = MergeReplaced
		default:
			existing.Contributors++
			canonical[rec.IdentityKey] = existing
			decision.Action = MergeKept
		}

		if found {
			decision.Previous = existing.Status
		}
		if observe != nil {
			observe(decision)
		}
	}

	return canonical
}
