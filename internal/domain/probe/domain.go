package probe

import "github.com/forgefleet/fleetops/internal/domain/workerresult"

// Outcome of a single worker probe. A timeout is data, not a fault:
// it arrives as {StatusTimedOut, 0} so the orchestrator can always
// finalize the run.
type Outcome struct {
	Status         workerresult.Status
	Classification workerresult.Classification
	Score          float64
}
