package reconcile

import (
	"sync"
	"time"

	"github.com/spec-kit/subscription-reconciler/internal/domain"
)

// Summary counts per-identity outcomes for a run.
type Summary struct {
	Total          int
	Updated        int
	Unchanged      int
	Failed         int
	PrimaryFailed  int
	ClaimsFailed   int
	Skipped        int
	ClaimsRepaired int
}

// Report is everything a run produced.
type Report struct {
	RunID          string
	StartedAt      time.Time
	FinishedAt     time.Time
	DryRun         bool
	BillingPages   int
	BillingRecords int
	SkippedRecords int
	Summary        Summary
	Outcomes       []domain.Outcome
	Trace          []TraceStep
	Err            error
}

// Success reports whether the run completed without a fatal error.
// Per-identity write failures do not make a run unsuccessful.
func (r *Report) Success() bool {
	return r != nil && r.Err == nil
}

// Duration is the wall time of the run.
func (r *Report) Duration() time.Duration {
	if r == nil || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Summarize aggregates outcomes into counts.
func Summarize(outcomes []domain.Outcome) Summary {
	s := Summary{Total: len(outcomes)}
	for _, o := range outcomes {
		switch o.Kind {
		case domain.OutcomeUpdated:
			s.Updated++
			if o.ClaimsRepaired {
				s.ClaimsRepaired++
			}
		case domain.OutcomeUnchanged:
			s.Unchanged++
		case domain.OutcomeSkipped:
			s.Skipped++
		case domain.OutcomeWriteFailed:
			s.Failed++
			switch o.FailedStore {
			case domain.StorePrimary:
				s.PrimaryFailed++
			case domain.StoreClaims:
				s.ClaimsFailed++
			}
		}
	}
	return s
}

// collector gathers outcomes from concurrent workers.
type collector struct {
	mu       sync.Mutex
	outcomes []domain.Outcome
}

func newCollector(capacity int) *collector {
	return &collector{outcomes: make([]domain.Outcome, 0, capacity)}
}

func (c *collector) add(o domain.Outcome) {
	c.mu.Lock()
	c.outcomes = append(c.outcomes, o)
	c.mu.Unlock()
}

func (c *collector) snapshot() []domain.Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Outcome(nil), c.outcomes...)
}
