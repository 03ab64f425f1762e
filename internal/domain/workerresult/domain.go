package workerresult

// Status is the per-worker probe lifecycle.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusTimedOut  Status = "timed_out"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusTimedOut:
		return true
	}
	return false
}

func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusTimedOut }

// Classification of a resolved probe outcome.
type Classification string

const (
	ClassHealthy   Classification = "healthy"
	ClassDegraded  Classification = "degraded"
	ClassUnhealthy Classification = "unhealthy"
)

// Result is one worker's outcome within a run. Append-only audit trail:
// rows are created pending, moved to a terminal status once, never deleted.
// Score stays nil while the result is pending. Timestamps are epoch ms.
type Result struct {
	ID             int64
	CheckID        string
	RunID          string
	WorkerName     string
	WorkerType     string
	Endpoint       *string
	Status         Status
	Classification *Classification
	Score          *float64
	CreatedAt      int64
	CompletedAt    *int64
}

// Completion is the only mutation a result admits: the one-shot
// transition from pending to a terminal status.
type Completion struct {
	Status         Status
	Classification *Classification
	Score          float64
	CompletedAt    int64
}
