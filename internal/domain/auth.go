package domain

// SubjectType differentiates the callers allowed to trigger a run.
type SubjectType string

const (
	SubjectTypeScheduler SubjectType = "SCHEDULER"
	SubjectTypeOperator  SubjectType = "OPERATOR"
)
