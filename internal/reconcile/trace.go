package reconcile

import (
	"fmt"
	"sync"
	"time"

	"github.com/spec-kit/subscription-reconciler/internal/domain"
)

// Trace stages, in pipeline order.
const (
	StageFetch   = "fetch"
	StageMerge   = "merge"
	StageResolve = "resolve"
	StageDiff    = "diff"
	StageWrite   = "write"
)

// TraceStep is one human-readable decision made for the debug identity.
type TraceStep struct {
	At      time.Time      `json:"at"`
	Stage   string         `json:"stage"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// Tracer records decisions for a single identity key. A nil Tracer records nothing.
type Tracer struct {
	key   string
	mu    sync.Mutex
	steps []TraceStep
	now   func() time.Time
}

// NewTracer returns nil when identityKey is empty.
func NewTracer(identityKey string) *Tracer {
	key := domain.NormalizeIdentityKey(identityKey)
	if key == "" {
		return nil
	}
	return &Tracer{key: key, now: time.Now}
}

// Key returns the traced identity key.
func (t *Tracer) Key() string {
	if t == nil {
		return ""
	}
	return t.key
}

// Matches reports whether key is the traced identity.
func (t *Tracer) Matches(key string) bool {
	return t != nil && t.key == key
}

// Record appends a step.
func (t *Tracer) Record(stage, format string, args ...any) {
	t.RecordData(stage, nil, format, args...)
}

// RecordData appends a step with structured data.
func (t *Tracer) RecordData(stage string, data map[string]any, format string, args ...any) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.steps = append(t.steps, TraceStep{
		At:      t.now(),
		Stage:   stage,
		Message: fmt.Sprintf(format, args...),
		Data:    data,
	})
}

// Steps returns a copy of the recorded steps.
func (t *Tracer) Steps() []TraceStep {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]TraceStep(nil), t.steps...)
}
