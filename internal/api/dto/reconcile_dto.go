package dto

import (
	"github.com/spec-kit/subscription-reconciler/internal/reconcile"
)

// RunResultResponse is the body returned by every trigger surface.
type RunResultResponse struct {
	Success         bool                  `json:"success"`
	RunID           string                `json:"runId"`
	DryRun          bool                  `json:"dryRun,omitempty"`
	TotalIdentities int                   `json:"totalIdentities"`
	Updated         int                   `json:"updated"`
	Unchanged       int                   `json:"unchanged"`
	Failed          int                   `json:"failed"`
	PrimaryFailed   int                   `json:"primaryFailed"`
	ClaimsFailed    int                   `json:"claimsFailed"`
	ClaimsRepaired  int                   `json:"claimsRepaired,omitempty"`
	Skipped         int                   `json:"skipped"`
	SkippedRecords  int                   `json:"skippedRecords"`
	DurationMillis  int64                 `json:"durationMs"`
	Error           string                `json:"error,omitempty"`
	DebugTrace      []reconcile.TraceStep `json:"debugTrace,omitempty"`
}

// NewRunResultResponse maps a report into the wire shape.
func NewRunResultResponse(report *reconcile.Report) RunResultResponse {
	if report == nil {
		return RunResultResponse{Error: "no report produced"}
	}
	resp := RunResultResponse{
		Success:         report.Success(),
		RunID:           report.RunID,
		DryRun:          report.DryRun,
		TotalIdentities: report.Summary.Total,
		Updated:         report.Summary.Updated,
		Unchanged:       report.Summary.Unchanged,
		Failed:          report.Summary.Failed,
		PrimaryFailed:   report.Summary.PrimaryFailed,
		ClaimsFailed:    report.Summary.ClaimsFailed,
		ClaimsRepaired:  report.Summary.ClaimsRepaired,
		Skipped:         report.Summary.Skipped,
		SkippedRecords:  report.SkippedRecords,
		DurationMillis:  report.Duration().Milliseconds(),
		DebugTrace:      report.Trace,
	}
	if report.Err != nil {
		resp.Error = report.Err.Error()
	}
	return resp
}
