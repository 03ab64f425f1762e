package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/forgefleet/fleetops/internal/analysis"
	"github.com/forgefleet/fleetops/internal/domain/healthrun"
	"github.com/forgefleet/fleetops/internal/domain/workerresult"
	"github.com/forgefleet/fleetops/internal/repository/postgres"
)

// scorePassThreshold separates passing from non-passing completed
// workers. A score exactly at the threshold does not pass.
const scorePassThreshold = 0.5

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Usecase owns all writes to runs and worker results. Other components
// read these entities but never mutate them.
type Usecase struct {
	Runs     healthrun.Repo
	Results  workerresult.Repo
	Tx       postgres.Transactor
	Analyzer *analysis.Analyzer
	Clock    Clock
}

func NewUsecase(runs healthrun.Repo, results workerresult.Repo, tx postgres.Transactor, an *analysis.Analyzer, clk Clock) *Usecase {
	if clk == nil {
		clk = SystemClock{}
	}
	return &Usecase{Runs: runs, Results: results, Tx: tx, Analyzer: an, Clock: clk}
}

type StartRunInput struct {
	Trigger         healthrun.TriggerKind
	Source          *string
	ExpectedWorkers int
	TimeoutAt       *int64
}

// StartRun creates a fleet check in running status with zero counters.
func (u *Usecase) StartRun(ctx context.Context, in StartRunInput) (*healthrun.Run, error) {
	if in.ExpectedWorkers < 0 {
		return nil, fmt.Errorf("expected workers must be >= 0: %w", healthrun.ErrValidation)
	}
	if !in.Trigger.Valid() {
		return nil, fmt.Errorf("unknown trigger kind %q: %w", in.Trigger, healthrun.ErrValidation)
	}

	run := &healthrun.Run{
		RunID:         uuid.NewString(),
		TriggerKind:   in.Trigger,
		TriggerSource: in.Source,
		Status:        healthrun.StatusRunning,
		TotalWorkers:  in.ExpectedWorkers,
		StartedAt:     u.Clock.Now().UnixMilli(),
		TimeoutAt:     in.TimeoutAt,
	}
	if err := u.Runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	return run, nil
}

// RecordWorkerResult registers a pending result for a dispatched probe.
// A missing or already-finalized run is a not-found failure; a run that
// already has its full complement of results rejects further ones.
func (u *Usecase) RecordWorkerResult(ctx context.Context, runID, workerName, workerType string, endpoint *string) (*workerresult.Result, error) {
	if workerName == "" {
		return nil, fmt.Errorf("worker name is required: %w", healthrun.ErrValidation)
	}

	run, err := u.Runs.GetByRunID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	if run.Finalized() {
		return nil, fmt.Errorf("run %s already finalized: %w", runID, postgres.ErrNotFound)
	}

	existing, err := u.Results.ListAllByRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	if len(existing) >= run.TotalWorkers {
		return nil, fmt.Errorf("run %s already has %d of %d results: %w",
			runID, len(existing), run.TotalWorkers, healthrun.ErrInvalidState)
	}

	res := &workerresult.Result{
		CheckID:    uuid.NewString(),
		RunID:      runID,
		WorkerName: workerName,
		WorkerType: workerType,
		Endpoint:   endpoint,
		Status:     workerresult.StatusPending,
		CreatedAt:  u.Clock.Now().UnixMilli(),
	}
	if err := u.Results.Create(ctx, res); err != nil {
		return nil, fmt.Errorf("create result: %w", err)
	}
	return res, nil
}

// CompleteWorkerResult moves a pending result to a terminal status in
// one conditional write. Re-completion of a terminal result is
// rejected, never overwritten; a late completion racing a finalize
// loses with an invalid-state error the caller may swallow as a no-op.
func (u *Usecase) CompleteWorkerResult(ctx context.Context, checkID string, status workerresult.Status, class *workerresult.Classification, score float64, completedAt int64) error {
	if !status.Terminal() {
		return fmt.Errorf("status %q is not terminal: %w", status, healthrun.ErrValidation)
	}
	if score < 0 || score > 1 {
		return fmt.Errorf("score %v out of [0,1]: %w", score, healthrun.ErrValidation)
	}

	err := u.Results.CompleteIfPending(ctx, checkID, workerresult.Completion{
		Status:         status,
		Classification: class,
		Score:          score,
		CompletedAt:    completedAt,
	})
	if err == nil {
		return nil
	}
	if !errors.Is(err, postgres.ErrNotFound) {
		return fmt.Errorf("complete result %s: %w", checkID, err)
	}

	// Zero rows matched: the result is either gone or already terminal.
	res, gerr := u.Results.GetByCheckID(ctx, checkID)
	if gerr != nil {
		return fmt.Errorf("get result %s: %w", checkID, gerr)
	}
	return fmt.Errorf("result %s already %s: %w", checkID, res.Status, healthrun.ErrInvalidState)
}

// FinalizeRun recomputes the aggregate counters from the full set of
// child results in one atomic read-modify-write. Results still pending
// are converted to timed_out with score 0 first; a worker that never
// reported counts as failed. Re-finalizing is an invalid-state failure
// and leaves the stored aggregates untouched.
func (u *Usecase) FinalizeRun(ctx context.Context, runID string) (*healthrun.Run, error) {
	var finalized *healthrun.Run

	err := u.Tx.WithTx(ctx, func(txCtx context.Context) error {
		run, err := u.Runs.GetByRunID(txCtx, runID)
		if err != nil {
			return fmt.Errorf("get run %s: %w", runID, err)
		}
		if run.Finalized() {
			return fmt.Errorf("run %s already %s: %w", runID, run.Status, healthrun.ErrInvalidState)
		}

		results, err := u.Results.ListAllByRun(txCtx, runID)
		if err != nil {
			return fmt.Errorf("list results: %w", err)
		}

		now := u.Clock.Now().UnixMilli()

		var completed, passed int
		var scoreSum float64
		for _, res := range results {
			if res.Status == workerresult.StatusPending {
				err := u.Results.CompleteIfPending(txCtx, res.CheckID, workerresult.Completion{
					Status:      workerresult.StatusTimedOut,
					Score:       0,
					CompletedAt: now,
				})
				switch {
				case err == nil:
					zero := 0.0
					res.Status = workerresult.StatusTimedOut
					res.Score = &zero
				case errors.Is(err, postgres.ErrNotFound):
					// A probe landed between the list and the write;
					// count the result as it is now stored.
					cur, gerr := u.Results.GetByCheckID(txCtx, res.CheckID)
					if gerr != nil {
						return fmt.Errorf("get result %s: %w", res.CheckID, gerr)
					}
					*res = *cur
				default:
					return fmt.Errorf("time out result %s: %w", res.CheckID, err)
				}
			}
			if res.Status == workerresult.StatusCompleted {
				completed++
				if res.Score != nil {
					scoreSum += *res.Score
					if *res.Score > scorePassThreshold {
						passed++
					}
				}
			}
		}
		failed := run.TotalWorkers - completed

		// An empty fleet is vacuously healthy, by rule.
		score := 1.0
		if run.TotalWorkers > 0 {
			score = scoreSum / float64(run.TotalWorkers)
		}

		run.Status = healthrun.StatusCompleted
		run.CompletedWorkers = completed
		run.PassedWorkers = passed
		run.FailedWorkers = failed
		run.OverallScore = &score
		run.CompletedAt = &now
		if err := run.CheckInvariants(); err != nil {
			return fmt.Errorf("run %s aggregates: %w", runID, err)
		}

		if u.Analyzer != nil {
			report := u.Analyzer.Analyze(run, results)
			run.Analysis = &report.Analysis
			run.Recommendation = &report.Recommendation
		}

		status := run.Status
		if err := u.Runs.Update(txCtx, runID, healthrun.Update{
			Status:           &status,
			CompletedWorkers: &run.CompletedWorkers,
			PassedWorkers:    &run.PassedWorkers,
			FailedWorkers:    &run.FailedWorkers,
			OverallScore:     run.OverallScore,
			Analysis:         run.Analysis,
			Recommendation:   run.Recommendation,
			CompletedAt:      run.CompletedAt,
		}); err != nil {
			return fmt.Errorf("update run: %w", err)
		}

		finalized = run
		return nil
	})
	if err != nil {
		return nil, err
	}
	return finalized, nil
}

// FailRun marks a run failed when the orchestration itself broke, as
// opposed to workers failing their checks.
func (u *Usecase) FailRun(ctx context.Context, runID string) error {
	run, err := u.Runs.GetByRunID(ctx, runID)
	if err != nil {
		return fmt.Errorf("get run %s: %w", runID, err)
	}
	if run.Finalized() {
		return fmt.Errorf("run %s already %s: %w", runID, run.Status, healthrun.ErrInvalidState)
	}

	failedStatus := healthrun.StatusFailed
	now := u.Clock.Now().UnixMilli()
	return u.Runs.Update(ctx, runID, healthrun.Update{
		Status:      &failedStatus,
		CompletedAt: &now,
	})
}
