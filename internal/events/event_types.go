package events

import (
	"time"

	"github.com/spec-kit/subscription-reconciler/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventRunCompleted      EventType = "run_completed"
	EventClaimsWriteFailed EventType = "claims_write_failed"
)

// Actor encapsulates who triggered the run that emitted an event.
type Actor struct {
	Type      domain.SubjectType `json:"type"`
	SubjectID string             `json:"subject_id,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	RunID     string      `json:"run_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// RunCompletedPayload payload.
type RunCompletedPayload struct {
	Result          string `json:"result"`
	Success         bool   `json:"success"`
	DryRun          bool   `json:"dry_run"`
	TotalIdentities int    `json:"total_identities"`
	Updated         int    `json:"updated"`
	Unchanged       int    `json:"unchanged"`
	Failed          int    `json:"failed"`
	Skipped         int    `json:"skipped"`
	DurationMillis  int64  `json:"duration_ms"`
	Error           string `json:"error,omitempty"`
}

// ClaimsWriteFailedPayload lists, once per run, the identities whose primary
// record was updated but whose claims were not. Those sessions stay stale until
// the next run.
type ClaimsWriteFailedPayload struct {
	Count      int              `json:"count"`
	Identities []FailedIdentity `json:"identities"`
}

// FailedIdentity is one claims-write failure.
type FailedIdentity struct {
	IdentityID  string `json:"identity_id"`
	IdentityKey string `json:"identity_key"`
	Error       string `json:"error"`
}
