package healthrun

import "errors"

// TriggerKind says what started a fleet check.
type TriggerKind string

const (
	TriggerScheduled TriggerKind = "scheduled"
	TriggerManual    TriggerKind = "manual"
	TriggerOther     TriggerKind = "other"
)

func (t TriggerKind) Valid() bool {
	switch t {
	case TriggerScheduled, TriggerManual, TriggerOther:
		return true
	}
	return false
}

// Status is the run lifecycle. Transitions go forward only:
// running -> completed or running -> failed.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusRunning, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusFailed }

var (
	ErrValidation   = errors.New("validation failed")
	ErrInvalidState = errors.New("invalid state transition")
)

// Run is one fleet-wide health-check execution. RunID is the public
// token; ID is the storage row identifier and never leaves the repo layer.
// Timestamps are epoch milliseconds.
type Run struct {
	ID               int64
	RunID            string
	TriggerKind      TriggerKind
	TriggerSource    *string
	Status           Status
	TotalWorkers     int
	CompletedWorkers int
	PassedWorkers    int
	FailedWorkers    int
	OverallScore     *float64
	Analysis         *string
	Recommendation   *string
	StartedAt        int64
	CompletedAt      *int64
	TimeoutAt        *int64
}

// Finalized reports whether the run reached a terminal status.
func (r *Run) Finalized() bool { return r.Status.Terminal() }

// CheckInvariants validates the aggregate counters. Repos call it after
// every mutation; a violation is a programming error surfaced early.
func (r *Run) CheckInvariants() error {
	if r.CompletedWorkers > r.TotalWorkers {
		return ErrInvalidState
	}
	if r.PassedWorkers > r.CompletedWorkers {
		return ErrInvalidState
	}
	if r.PassedWorkers+r.FailedWorkers > r.TotalWorkers {
		return ErrInvalidState
	}
	if r.Status == StatusRunning && r.OverallScore != nil {
		return ErrInvalidState
	}
	return nil
}

// Filter narrows run listings. Nil fields match everything.
type Filter struct {
	TriggerKind *TriggerKind
	Status      *Status
}

// Update is a partial update restricted to the mutable fields of a run.
// Nil fields are left untouched.
type Update struct {
	Status           *Status
	CompletedWorkers *int
	PassedWorkers    *int
	FailedWorkers    *int
	OverallScore     *float64
	Analysis         *string
	Recommendation   *string
	CompletedAt      *int64
}
