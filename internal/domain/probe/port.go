package probe

import (
	"context"
	"time"
)

// Prober performs one bounded-time liveness check against a worker.
type Prober interface {
	Probe(ctx context.Context, endpoint string, timeout time.Duration) Outcome
}
