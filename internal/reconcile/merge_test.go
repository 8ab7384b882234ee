package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/subscription-reconciler/internal/domain"
)

func TestMergeActiveWinsRegardlessOfOrder(t *testing.T) {
	active := record("sub_active", "a@x.com", domain.StatusActive)
	canceled := record("sub_canceled", "a@x.com", domain.StatusCanceled)

	for name, records := range map[string][]domain.BillingRecord{
		"active first":   {active, canceled},
		"canceled first": {canceled, active},
	} {
		t.Run(name, func(t *testing.T) {
			canonical := Merge(records, nil)
			require.Len(t, canonical, 1)
			entry := canonical["a@x.com"]
			assert.Equal(t, domain.StatusActive, entry.Status)
			assert.Equal(t, "sub_active", entry.ExternalSubscriptionID)
			assert.Equal(t, 2, entry.Contributors)
		})
	}
}

func TestMergeTieBreakRules(t *testing.T) {
	tests := []struct {
		name    string
		records []domain.BillingRecord
		wantSub string
	}{
		{
			name: "first active-like kept over later active",
			records: []domain.BillingRecord{
				record("sub_trial", "a@x.com", domain.StatusTrialing),
				record("sub_active", "a@x.com", domain.StatusActive),
			},
			wantSub: "sub_trial",
		},
		{
			name: "non active-like replaced by active-like",
			records: []domain.BillingRecord{
				record("sub_canceled", "a@x.com", domain.StatusCanceled),
				record("sub_trial", "a@x.com", domain.StatusTrialing),
			},
			wantSub: "sub_trial",
		},
		{
			name: "first seen wins among non active-like",
			records: []domain.BillingRecord{
				record("sub_past_due", "a@x.com", domain.StatusPastDue),
				record("sub_canceled", "a@x.com", domain.StatusCanceled),
				record("sub_unpaid", "a@x.com", domain.StatusUnpaid),
			},
			wantSub: "sub_past_due",
		},
		{
			name: "active-like kept against other status",
			records: []domain.BillingRecord{
				record("sub_active", "a@x.com", domain.StatusActive),
				record("sub_other", "a@x.com", domain.StatusOther),
			},
			wantSub: "sub_active",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			canonical := Merge(tt.records, nil)
			assert.Equal(t, tt.wantSub, canonical["a@x.com"].ExternalSubscriptionID)
		})
	}
}

func TestMergeKeysIdentitiesIndependently(t *testing.T) {
	canonical := Merge([]domain.BillingRecord{
		record("sub_1", "a@x.com", domain.StatusCanceled),
		record("sub_2", "b@x.com", domain.StatusActive),
	}, nil)

	require.Len(t, canonical, 2)
	assert.Equal(t, domain.StatusCanceled, canonical["a@x.com"].Status)
	assert.Equal(t, domain.StatusActive, canonical["b@x.com"].Status)
}

func TestMergeReportsDecisions(t *testing.T) {
	var actions []MergeAction
	Merge([]domain.BillingRecord{
		record("sub_1", "a@x.com", domain.StatusCanceled),
		record("sub_2", "a@x.com", domain.StatusTrialing),
		record("sub_3", "a@x.com", domain.StatusActive),
	}, func(d MergeDecision) {
		actions = append(actions, d.Action)
	})

	assert.Equal(t, []MergeAction{MergeInserted, MergeReplaced, MergeKept}, actions)
}
