package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/subscription-reconciler/internal/billing"
	"github.com/spec-kit/subscription-reconciler/internal/domain"
)

func testOptions() Options {
	return Options{Workers: 4, WriteTimeout: time.Second, ListTimeout: time.Second}
}

func TestRunIsIdempotent(t *testing.T) {
	log := &callLog{}
	primary := newMemPrimary(log,
		domain.IdentityRecord{ID: "u1", Email: "a@x.com", Role: domain.RoleStudent},
		domain.IdentityRecord{ID: "u2", Email: "b@x.com", Role: domain.RoleStudent, EntitlementActive: true, SubscriptionStatus: "active"},
		domain.IdentityRecord{ID: "u3", Email: "boss@x.com", Role: domain.RoleAdmin},
	)
	claims := newMemClaims(log)
	source := sourceOf(
		record("sub_a", "a@x.com", domain.StatusActive),
		record("sub_b", "b@x.com", domain.StatusCanceled),
	)
	engine := NewEngine(source, primary, claims, testOptions())

	first, err := engine.Run(context.Background(), RunRequest{})
	require.NoError(t, err)
	assert.True(t, first.Success())
	assert.Equal(t, 3, first.Summary.Total)
	assert.Equal(t, 3, first.Summary.Updated)
	writesAfterFirst := len(log.all())

	second, err := engine.Run(context.Background(), RunRequest{})
	require.NoError(t, err)
	assert.Equal(t, 0, second.Summary.Updated)
	assert.Equal(t, 3, second.Summary.Unchanged)
	assert.Equal(t, writesAfterFirst, len(log.all()), "second run over the same snapshot performs zero writes")

	assert.Equal(t, domain.IdentityRecord{
		ID:                     "u2",
		Email:                  "b@x.com",
		Role:                   domain.RoleStudent,
		SubscriptionStatus:     "canceled",
		ExternalCustomerID:     "cus_sub_b",
		ExternalSubscriptionID: "sub_b",
	}, primary.get("u2"))
	assert.True(t, primary.get("u3").EntitlementActive)
}

func TestRunSourceFetchErrorAbortsWithoutWrites(t *testing.T) {
	log := &callLog{}
	primary := newMemPrimary(log, domain.IdentityRecord{ID: "u1", Email: "a@x.com"})
	source := &staticSource{err: &billing.SourceFetchError{Page: 2, Cursor: "sub_099", Err: context.DeadlineExceeded}}
	engine := NewEngine(source, primary, newMemClaims(log), testOptions())

	report, err := engine.Run(context.Background(), RunRequest{})

	require.Error(t, err)
	assert.True(t, billing.IsSourceFetchError(err))
	require.NotNil(t, report)
	assert.False(t, report.Success())
	assert.Empty(t, log.all(), "no writes after a source failure")
	assert.Equal(t, 0, report.Summary.Total)
}

func TestRunInterruptedDuringFetchIsCancelled(t *testing.T) {
	log := &callLog{}
	primary := newMemPrimary(log, domain.IdentityRecord{ID: "u1", Email: "a@x.com"})

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	expired, cancelExpired := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancelExpired()

	tests := []struct {
		name  string
		ctx   context.Context
		cause error
	}{
		{"cancelled", cancelled, context.Canceled},
		{"run deadline", expired, context.DeadlineExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := &staticSource{err: &billing.SourceFetchError{Page: 3, Cursor: "sub_200", Err: tt.cause}}
			engine := NewEngine(source, primary, newMemClaims(log), testOptions())

			report, err := engine.Run(tt.ctx, RunRequest{})

			require.ErrorIs(t, err, ErrRunCancelled)
			assert.ErrorIs(t, err, tt.cause)
			assert.False(t, billing.IsSourceFetchError(err))
			assert.False(t, report.Success())
			assert.Empty(t, log.all())
		})
	}
}

func TestRunUnchangedIdentityNeverReachesWriter(t *testing.T) {
	log := &callLog{}
	primary := newMemPrimary(log, domain.IdentityRecord{
		ID:                     "u1",
		Email:                  "a@x.com",
		Role:                   domain.RoleStudent,
		EntitlementActive:      true,
		SubscriptionStatus:     "active",
		ExternalSubscriptionID: "sub_a",
	})
	engine := NewEngine(sourceOf(record("sub_a", "a@x.com", domain.StatusActive)), primary, newMemClaims(log), testOptions())

	report, err := engine.Run(context.Background(), RunRequest{})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Summary.Unchanged)
	assert.Empty(t, log.all())
}

func TestRunFailuresAreLocalToIdentity(t *testing.T) {
	log := &callLog{}
	primary := newMemPrimary(log,
		domain.IdentityRecord{ID: "u1", Email: "a@x.com"},
		domain.IdentityRecord{ID: "u2", Email: "b@x.com"},
		domain.IdentityRecord{ID: "u3", Email: "c@x.com"},
	)
	primary.failIDs["u1"] = errStoreDown
	claims := newMemClaims(log)
	claims.failIDs["u2"] = errStoreDown
	source := sourceOf(
		record("sub_a", "a@x.com", domain.StatusActive),
		record("sub_b", "b@x.com", domain.StatusActive),
		record("sub_c", "c@x.com", domain.StatusActive),
	)
	engine := NewEngine(source, primary, claims, testOptions())

	report, err := engine.Run(context.Background(), RunRequest{})
	require.NoError(t, err)
	assert.True(t, report.Success())

	assert.Equal(t, Summary{Total: 3, Updated: 1, Failed: 2, PrimaryFailed: 1, ClaimsFailed: 1}, report.Summary)
	assert.Equal(t, 0, log.count("claims:u1"))
}

func TestRunIdentityListingFailureIsFatal(t *testing.T) {
	log := &callLog{}
	primary := newMemPrimary(log)
	primary.listErr = errStoreDown
	engine := NewEngine(sourceOf(record("sub_a", "a@x.com", domain.StatusActive)), primary, newMemClaims(log), testOptions())

	report, err := engine.Run(context.Background(), RunRequest{})

	assert.ErrorIs(t, err, ErrIdentityListing)
	assert.ErrorIs(t, err, errStoreDown)
	assert.False(t, report.Success())
	assert.Empty(t, log.all())
}

func TestRunCancelledBeforeDispatchSkipsEverything(t *testing.T) {
	log := &callLog{}
	primary := newMemPrimary(log,
		domain.IdentityRecord{ID: "u1", Email: "a@x.com"},
		domain.IdentityRecord{ID: "u2", Email: "b@x.com"},
	)
	engine := NewEngine(sourceOf(), primary, newMemClaims(log), testOptions())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := engine.Run(ctx, RunRequest{})

	assert.ErrorIs(t, err, ErrRunCancelled)
	assert.Equal(t, 2, report.Summary.Skipped)
	assert.Empty(t, log.all())
}

func TestRunCancellationLetsInFlightWriteFinish(t *testing.T) {
	log := &callLog{}
	primary := newMemPrimary(log,
		domain.IdentityRecord{ID: "u1", Email: "a@x.com"},
		domain.IdentityRecord{ID: "u2", Email: "b@x.com"},
		domain.IdentityRecord{ID: "u3", Email: "c@x.com"},
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	primary.onUpdate = func(id string) {
		if id == "u1" {
			cancel()
		}
	}
	opts := testOptions()
	opts.Workers = 1
	engine := NewEngine(sourceOf(), primary, newMemClaims(log), opts)

	report, err := engine.Run(ctx, RunRequest{})

	assert.ErrorIs(t, err, ErrRunCancelled)
	assert.GreaterOrEqual(t, report.Summary.Skipped, 1)
	assert.Equal(t, 1, log.count("claims:u1"), "the write that was in flight completes both stores")
	for _, o := range report.Outcomes {
		if o.IdentityID == "u1" {
			assert.Equal(t, domain.OutcomeUpdated, o.Kind)
		}
		if o.IdentityID == "u3" {
			assert.Equal(t, domain.OutcomeSkipped, o.Kind)
		}
	}
}

func TestRunDebugTrace(t *testing.T) {
	log := &callLog{}
	primary := newMemPrimary(log,
		domain.IdentityRecord{ID: "u1", Email: "A@x.com", Role: domain.RoleStudent},
		domain.IdentityRecord{ID: "u2", Email: "b@x.com", Role: domain.RoleStudent},
	)
	source := sourceOf(
		record("sub_old", "a@x.com", domain.StatusCanceled),
		record("sub_new", "a@x.com", domain.StatusTrialing),
		record("sub_b", "b@x.com", domain.StatusActive),
	)
	engine := NewEngine(source, primary, newMemClaims(log), testOptions())

	report, err := engine.Run(context.Background(), RunRequest{DebugIdentityKey: "a@x.com"})
	require.NoError(t, err)

	stages := map[string]int{}
	for _, step := range report.Trace {
		stages[step.Stage]++
		assert.NotContains(t, step.Message, "b@x.com", "only the debug identity is traced")
	}
	assert.Equal(t, 1, stages[StageFetch])
	assert.Equal(t, 3, stages[StageMerge], "two record decisions plus the canonical result")
	assert.Equal(t, 1, stages[StageResolve])
	assert.Equal(t, 1, stages[StageDiff])
	assert.Equal(t, 1, stages[StageWrite])

	assert.Equal(t, 2, report.Summary.Updated, "tracing does not alter write behavior")
	assert.Equal(t, "trialing", primary.get("u1").SubscriptionStatus)
}

func TestRunTraceForUnknownIdentity(t *testing.T) {
	log := &callLog{}
	engine := NewEngine(sourceOf(), newMemPrimary(log), newMemClaims(log), testOptions())

	report, err := engine.Run(context.Background(), RunRequest{DebugIdentityKey: "ghost@x.com"})
	require.NoError(t, err)

	require.NotEmpty(t, report.Trace)
	last := report.Trace[len(report.Trace)-1]
	assert.Equal(t, StageResolve, last.Stage)
	assert.Contains(t, last.Message, "no internal identity")
}

func TestRunClaimsRepair(t *testing.T) {
	current := domain.IdentityRecord{
		ID:                     "u1",
		Email:                  "a@x.com",
		EntitlementActive:      true,
		SubscriptionStatus:     "active",
		ExternalSubscriptionID: "sub_a",
	}
	source := sourceOf(record("sub_a", "a@x.com", domain.StatusActive))

	t.Run("disabled keeps primary-only diff", func(t *testing.T) {
		log := &callLog{}
		engine := NewEngine(source, newMemPrimary(log, current), newMemClaims(log), testOptions())

		report, err := engine.Run(context.Background(), RunRequest{})
		require.NoError(t, err)
		assert.Equal(t, 1, report.Summary.Unchanged)
		assert.Empty(t, log.all())
	})

	t.Run("enabled rewrites drifted claims", func(t *testing.T) {
		log := &callLog{}
		claims := newMemClaims(log)
		claims.claims["u1"] = domain.Claims{SubscriptionStatus: "past_due"}
		opts := testOptions()
		opts.RepairClaims = true
		engine := NewEngine(source, newMemPrimary(log, current), claims, opts)

		report, err := engine.Run(context.Background(), RunRequest{})
		require.NoError(t, err)
		assert.Equal(t, 1, report.Summary.ClaimsRepaired)
		assert.Equal(t, 0, log.count("primary:"))
		assert.Equal(t, domain.Claims{SubscriptionStatus: "active", EntitlementActive: true}, claims.claims["u1"])

		again, err := engine.Run(context.Background(), RunRequest{})
		require.NoError(t, err)
		assert.Equal(t, 1, again.Summary.Unchanged)
		assert.Equal(t, 1, log.count("claims:u1"))
	})
}

func TestRunDryRunWritesNothing(t *testing.T) {
	log := &callLog{}
	primary := newMemPrimary(log, domain.IdentityRecord{ID: "u1", Email: "a@x.com"})
	opts := testOptions()
	opts.DryRun = true
	engine := NewEngine(sourceOf(record("sub_a", "a@x.com", domain.StatusActive)), primary, newMemClaims(log), opts)

	report, err := engine.Run(context.Background(), RunRequest{RunID: "run-1"})
	require.NoError(t, err)

	assert.Equal(t, "run-1", report.RunID)
	assert.True(t, report.DryRun)
	assert.Equal(t, 1, report.Summary.Updated)
	assert.Empty(t, log.all())
}

func TestRunReportsBillingCounts(t *testing.T) {
	log := &callLog{}
	source := &staticSource{result: &billing.FetchResult{
		Records:          []domain.BillingRecord{record("sub_a", "a@x.com", domain.StatusActive)},
		Pages:            3,
		SkippedMalformed: 2,
	}}
	engine := NewEngine(source, newMemPrimary(log), newMemClaims(log), testOptions())

	report, err := engine.Run(context.Background(), RunRequest{})
	require.NoError(t, err)

	assert.Equal(t, 3, report.BillingPages)
	assert.Equal(t, 1, report.BillingRecords)
	assert.Equal(t, 2, report.SkippedRecords)
	assert.NotEmpty(t, report.RunID)
	assert.False(t, errors.Is(report.Err, ErrRunCancelled))
}
