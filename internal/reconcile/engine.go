package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/subscription-reconciler/internal/billing"
	"github.com/spec-kit/subscription-reconciler/internal/domain"
)

// DefaultWorkers bounds concurrent per-identity writes when Options.Workers is unset.
const DefaultWorkers = 8

var (
	// ErrIdentityListing is returned when identities cannot be loaded; no writes happen.
	ErrIdentityListing = errors.New("list identities")
	// ErrRunCancelled is returned when cancellation stopped dispatch before every identity was processed.
	ErrRunCancelled = errors.New("reconciliation run cancelled")
)

// Options tunes an Engine.
type Options struct {
	Workers      int
	WriteTimeout time.Duration
	ListTimeout  time.Duration
	// RepairClaims compares the claims store for identities whose primary
	// record is unchanged and rewrites drifted claims.
	RepairClaims bool
	// DryRun resolves and diffs without writing.
	DryRun bool
	Logger *zap.Logger
}

// RunRequest parameterizes a single run.
type RunRequest struct {
	RunID            string
	DebugIdentityKey string
}

// Engine runs fetch → merge → resolve → diff → write → report.
type Engine struct {
	source  billing.Source
	primary PrimaryStore
	claims  ClaimsStore
	writer  *Writer
	opts    Options
	logger  *zap.Logger
	now     func() time.Time
}

// NewEngine wires the engine to its collaborators.
func NewEngine(source billing.Source, primary PrimaryStore, claims ClaimsStore, opts Options) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		source:  source,
		primary: primary,
		claims:  claims,
		writer:  NewWriter(primary, claims, opts.WriteTimeout, logger),
		opts:    opts,
		logger:  logger,
		now:     time.Now,
	}
}

// Run performs one reconciliation. The returned report is never nil; err is
// set for fatal conditions (source fetch, identity listing, cancellation) and
// mirrored in Report.Err.
func (e *Engine) Run(ctx context.Context, req RunRequest) (*Report, error) {
	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	report := &Report{RunID: runID, StartedAt: e.now(), DryRun: e.opts.DryRun}
	tracer := NewTracer(req.DebugIdentityKey)
	logger := e.logger.With(zap.String("run_id", runID))

	finish := func(err error) (*Report, error) {
		report.Err = err
		report.FinishedAt = e.now()
		report.Summary = Summarize(report.Outcomes)
		report.Trace = tracer.Steps()
		if err != nil {
			logger.Error("reconciliation run failed", zap.Error(err), zap.Any("summary", report.Summary))
		} else {
			logger.Info("reconciliation run completed",
				zap.Int("total", report.Summary.Total),
				zap.Int("updated", report.Summary.Updated),
				zap.Int("unchanged", report.Summary.Unchanged),
				zap.Int("failed", report.Summary.Failed),
				zap.Duration("duration", report.Duration()))
		}
		return report, err
	}

	fetched, err := e.source.FetchAllActiveSubscriptions(ctx)
	if err != nil {
		tracer.Record(StageFetch, "billing source fetch failed, run aborted: %v", err)
		// A fetch cut short by our own cancellation or deadline is a cancelled
		// run, not a provider failure.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return finish(fmt.Errorf("%w during billing fetch (%v): %w", ErrRunCancelled, err, ctxErr))
		}
		return finish(err)
	}
	report.BillingPages = fetched.Pages
	report.BillingRecords = len(fetched.Records)
	report.SkippedRecords = fetched.SkippedMalformed
	traceFetch(tracer, fetched)

	canonical := Merge(fetched.Records, func(d MergeDecision) {
		if !tracer.Matches(d.Record.IdentityKey) {
			return
		}
		tracer.RecordData(StageMerge, map[string]any{
			"subscriptionId": d.Record.ExternalSubscriptionID,
			"status":         string(d.Record.Status),
			"action":         string(d.Action),
		}, "record %s (%s): %s", d.Record.ExternalSubscriptionID, d.Record.Status, describeMerge(d))
	})
	if tracer != nil {
		if entry, ok := canonical[tracer.Key()]; ok {
			tracer.Record(StageMerge, "canonical entry: %s from subscription %s (%d contributing records)",
				entry.Status, entry.ExternalSubscriptionID, entry.Contributors)
		} else {
			tracer.Record(StageMerge, "no canonical billing entry for %s", tracer.Key())
		}
	}

	identities, err := e.listIdentities(ctx)
	if err != nil {
		return finish(fmt.Errorf("%w: %w", ErrIdentityListing, err))
	}
	if tracer != nil && !containsKey(identities, tracer.Key()) {
		tracer.Record(StageResolve, "no internal identity has key %s; nothing to resolve", tracer.Key())
	}

	results := newCollector(len(identities))
	var g errgroup.Group
	g.SetLimit(e.opts.Workers)

	cancelled := false
	for i, identity := range identities {
		if ctx.Err() != nil {
			cancelled = true
			for _, rest := range identities[i:] {
				results.add(domain.Outcome{IdentityID: rest.ID, IdentityKey: rest.Key(), Kind: domain.OutcomeSkipped})
			}
			break
		}
		g.Go(func() error {
			results.add(e.process(ctx, identity, canonical, tracer))
			return nil
		})
	}
	_ = g.Wait()

	report.Outcomes = results.snapshot()
	if cancelled {
		return finish(fmt.Errorf("%w: %w", ErrRunCancelled, ctx.Err()))
	}
	return finish(nil)
}

func (e *Engine) listIdentities(ctx context.Context) ([]domain.IdentityRecord, error) {
	if e.opts.ListTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.ListTimeout)
		defer cancel()
	}
	return e.primary.ListIdentities(ctx)
}

func (e *Engine) process(ctx context.Context, identity domain.IdentityRecord, canonical map[string]domain.CanonicalBillingEntry, tracer *Tracer) domain.Outcome {
	key := identity.Key()
	traced := tracer.Matches(key)

	target, branch := resolveWithBranch(identity, canonical)
	if traced {
		tracer.RecordData(StageResolve, map[string]any{
			"identityId":             identity.ID,
			"branch":                 string(branch),
			"entitlementActive":      target.EntitlementActive,
			"subscriptionStatus":     target.SubscriptionStatus,
			"externalSubscriptionId": target.ExternalSubscriptionID,
		}, "identity %s (role %s) resolved via %s to entitlementActive=%t status=%s",
			identity.ID, identity.Role, branch, target.EntitlementActive, target.SubscriptionStatus)
	}

	diff := Diff(identity, target)
	if !diff.Changed {
		if traced {
			tracer.Record(StageDiff, "identity %s unchanged", identity.ID)
		}
		if e.opts.RepairClaims {
			return e.repairClaims(ctx, identity, target, tracer, traced)
		}
		return domain.Outcome{IdentityID: identity.ID, IdentityKey: key, Kind: domain.OutcomeUnchanged}
	}
	if traced {
		tracer.RecordData(StageDiff, map[string]any{"fields": diff.Fields},
			"identity %s changed: %v", identity.ID, diff.Fields)
	}

	if e.opts.DryRun {
		if traced {
			tracer.Record(StageWrite, "dry run, writes skipped")
		}
		return domain.Outcome{IdentityID: identity.ID, IdentityKey: key, Kind: domain.OutcomeUpdated, DryRun: true}
	}

	outcome := e.writer.Apply(ctx, identity, target)
	if traced {
		traceWrite(tracer, outcome)
	}
	return outcome
}

func (e *Engine) repairClaims(ctx context.Context, identity domain.IdentityRecord, target domain.TargetState, tracer *Tracer, traced bool) domain.Outcome {
	unchanged := domain.Outcome{IdentityID: identity.ID, IdentityKey: identity.Key(), Kind: domain.OutcomeUnchanged}

	stored, err := e.writer.CurrentClaims(ctx, identity.ID)
	if err != nil {
		e.logger.Warn("claims read failed, drift check skipped", zap.String("identity_id", identity.ID), zap.Error(err))
		if traced {
			tracer.Record(StageDiff, "claims read failed: %v", err)
		}
		return unchanged
	}
	if !ClaimsDrifted(stored, target) {
		return unchanged
	}
	if traced {
		tracer.Record(StageDiff, "claims drifted from primary record, repairing")
	}
	if e.opts.DryRun {
		return domain.Outcome{IdentityID: identity.ID, IdentityKey: identity.Key(), Kind: domain.OutcomeUpdated, ClaimsRepaired: true, DryRun: true}
	}

	outcome := e.writer.RepairClaims(ctx, identity, target)
	if traced {
		traceWrite(tracer, outcome)
	}
	return outcome
}

func traceFetch(tracer *Tracer, fetched *billing.FetchResult) {
	if tracer == nil {
		return
	}
	var statuses []string
	for _, rec := range fetched.Records {
		if rec.IdentityKey == tracer.Key() {
			statuses = append(statuses, fmt.Sprintf("%s=%s", rec.ExternalSubscriptionID, rec.Status))
		}
	}
	tracer.RecordData(StageFetch, map[string]any{
		"pages":            fetched.Pages,
		"records":          len(fetched.Records),
		"skippedMalformed": fetched.SkippedMalformed,
	}, "fetched %d billing records across %d pages; %d match %s: %v",
		len(fetched.Records), fetched.Pages, len(statuses), tracer.Key(), statuses)
}

func traceWrite(tracer *Tracer, outcome domain.Outcome) {
	if outcome.Err != nil {
		tracer.Record(StageWrite, "%s: %v", outcome, outcome.Err)
		return
	}
	if outcome.ClaimsRepaired {
		tracer.Record(StageWrite, "claims rewritten")
		return
	}
	tracer.Record(StageWrite, "primary and claims stores updated")
}

func describeMerge(d MergeDecision) string {
	switch d.Action {
	case MergeInserted:
		return "first record for identity, inserted"
	case MergeReplaced:
		return fmt.Sprintf("active-like record replaced existing %s entry", d.Previous)
	default:
		if d.Previous.IsActiveLike() {
			return fmt.Sprintf("existing %s entry is active-like, kept", d.Previous)
		}
		return fmt.Sprintf("neither active-like, first seen %s entry kept", d.Previous)
	}
}

func containsKey(identities []domain.IdentityRecord, key string) bool {
	for _, identity := range identities {
		if identity.Key() == key {
			return true
		}
	}
	return false
}
