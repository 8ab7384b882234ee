package observability

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/spec-kit/subscription-reconciler/internal/billing"
	"github.com/spec-kit/subscription-reconciler/internal/domain"
	"github.com/spec-kit/subscription-reconciler/internal/reconcile"
)

func TestRecordRun(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	m.RecordRun(&reconcile.Report{
		StartedAt:      start,
		FinishedAt:     start.Add(2 * time.Second),
		BillingPages:   3,
		SkippedRecords: 1,
		Outcomes: []domain.Outcome{
			{Kind: domain.OutcomeUpdated},
			{Kind: domain.OutcomeUpdated},
			{Kind: domain.OutcomeWriteFailed, FailedStore: domain.StoreClaims},
		},
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("success")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.billingPages))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.malformed))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.outcomes.WithLabelValues("updated", "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outcomes.WithLabelValues("write_failed", "claims")))
	assert.Equal(t, float64(start.Add(2*time.Second).Unix()), testutil.ToFloat64(m.lastSuccess))
}

func TestRunResult(t *testing.T) {
	assert.Equal(t, "success", RunResult(&reconcile.Report{}))
	assert.Equal(t, "source_fetch_error", RunResult(&reconcile.Report{
		Err: &billing.SourceFetchError{Page: 2, Err: context.DeadlineExceeded},
	}))
	assert.Equal(t, "cancelled", RunResult(&reconcile.Report{
		Err: fmt.Errorf("%w: %w", reconcile.ErrRunCancelled, context.Canceled),
	}))
	assert.Equal(t, "cancelled", RunResult(&reconcile.Report{
		Err: fmt.Errorf("%w during billing fetch (%v): %w", reconcile.ErrRunCancelled,
			&billing.SourceFetchError{Page: 1, Err: context.Canceled}, context.Canceled),
	}))
	assert.Equal(t, "error", RunResult(&reconcile.Report{Err: reconcile.ErrIdentityListing}))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.RecordRequest("/", "GET", 200, time.Millisecond)
	m.RecordError("/", "GET", "INTERNAL_ERROR")
	m.RecordRun(&reconcile.Report{})
}
