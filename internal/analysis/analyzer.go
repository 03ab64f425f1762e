package analysis

import (
	"fmt"
	"strings"

	"github.com/forgefleet/fleetops/internal/domain/healthrun"
	"github.com/forgefleet/fleetops/internal/domain/workerresult"
)

// FleetStatus is the coarse classification of a finalized run.
type FleetStatus string

const (
	StatusHealthy  FleetStatus = "healthy"
	StatusDegraded FleetStatus = "degraded"
	StatusCritical FleetStatus = "critical"
)

const (
	healthyFloor  = 0.9
	degradedFloor = 0.6
)

// Report carries the derived analysis and recommendation text stored on
// a finalized run.
type Report struct {
	Status         FleetStatus
	Analysis       string
	Recommendation string
}

// Analyzer turns a finalized run and its results into human-readable
// analysis text.
type Analyzer struct{}

func New() *Analyzer { return &Analyzer{} }

func (a *Analyzer) Analyze(run *healthrun.Run, results []*workerresult.Result) Report {
	score := 0.0
	if run.OverallScore != nil {
		score = *run.OverallScore
	}

	status := StatusCritical
	switch {
	case score >= healthyFloor:
		status = StatusHealthy
	case score >= degradedFloor:
		status = StatusDegraded
	}

	var failing []string
	for _, res := range results {
		if res.Status == workerresult.StatusTimedOut {
			failing = append(failing, res.WorkerName+" (timed out)")
			continue
		}
		if res.Score != nil && *res.Score < degradedFloor {
			failing = append(failing, res.WorkerName)
		}
	}

	analysis := fmt.Sprintf("Fleet health %.2f across %d workers: %d completed, %d passed, %d failed.",
		score, run.TotalWorkers, run.CompletedWorkers, run.PassedWorkers, run.FailedWorkers)
	if len(failing) > 0 {
		analysis += " Underperforming: " + strings.Join(failing, ", ") + "."
	}

	var recommendation string
	switch status {
	case StatusHealthy:
		recommendation = "No action required."
	case StatusDegraded:
		recommendation = "Investigate underperforming workers and re-run the fleet check."
	case StatusCritical:
		recommendation = "Page the on-call operator; most of the fleet is unreachable or failing."
	}

	return Report{Status: status, Analysis: analysis, Recommendation: recommendation}
}
