package orchestrator

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/forgefleet/fleetops/internal/domain/fleet"
	"github.com/forgefleet/fleetops/internal/domain/healthrun"
	"github.com/forgefleet/fleetops/internal/domain/probe"
	"github.com/forgefleet/fleetops/internal/obs"
)

const defaultMaxConcurrent = 8

// FleetCheck drives one full fleet sweep: start a run, probe every
// configured worker, finalize. Probes that outlive the run deadline are
// not interrupted; their late completions lose to the finalize and are
// dropped.
type FleetCheck struct {
	uc            *Usecase
	prober        probe.Prober
	workers       []fleet.Worker
	probeTimeout  time.Duration
	runTimeout    time.Duration
	maxConcurrent int
	log           *zap.Logger
}

func NewFleetCheck(uc *Usecase, p probe.Prober, workers []fleet.Worker, probeTimeout, runTimeout time.Duration, maxConcurrent int, log *zap.Logger) *FleetCheck {
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}
	return &FleetCheck{
		uc:            uc,
		prober:        p,
		workers:       workers,
		probeTimeout:  probeTimeout,
		runTimeout:    runTimeout,
		maxConcurrent: maxConcurrent,
		log:           log,
	}
}

// Run performs one sweep and returns the finalized run.
func (f *FleetCheck) Run(ctx context.Context, trigger healthrun.TriggerKind, source string) (*healthrun.Run, error) {
	tr := otel.Tracer("orchestrator")
	ctx, span := tr.Start(ctx, "fleet.sweep", trace.WithAttributes(
		attribute.String("trigger", string(trigger)),
		attribute.Int("fleet.size", len(f.workers)),
	))
	defer span.End()

	var timeoutAt *int64
	if f.runTimeout > 0 {
		t := time.Now().Add(f.runTimeout).UnixMilli()
		timeoutAt = &t
	}

	run, err := f.uc.StartRun(ctx, StartRunInput{
		Trigger:         trigger,
		Source:          &source,
		ExpectedWorkers: len(f.workers),
		TimeoutAt:       timeoutAt,
	})
	if err != nil {
		return nil, err
	}
	log := obs.WithTrace(ctx, f.log).With(zap.String("run_id", run.RunID))
	log.Info("fleet sweep started", zap.Int("workers", len(f.workers)))

	if len(f.workers) == 0 {
		return f.uc.FinalizeRun(ctx, run.RunID)
	}

	g := new(errgroup.Group)
	g.SetLimit(f.maxConcurrent)
	for _, w := range f.workers {
		res, err := f.uc.RecordWorkerResult(ctx, run.RunID, w.Name, w.Type, &w.Endpoint)
		if err != nil {
			log.Error("record worker result", zap.String("worker", w.Name), zap.Error(err))
			continue
		}
		worker := w
		checkID := res.CheckID
		g.Go(func() error {
			f.probeWorker(ctx, log, checkID, worker)
			return nil
		})
	}

	f.await(ctx, g)

	finalized, err := f.uc.FinalizeRun(ctx, run.RunID)
	if err != nil {
		if failErr := f.uc.FailRun(ctx, run.RunID); failErr != nil && !errors.Is(failErr, healthrun.ErrInvalidState) {
			log.Error("mark run failed", zap.Error(failErr))
		}
		return nil, err
	}
	log.Info("fleet sweep finalized",
		zap.Float64p("overall_score", finalized.OverallScore),
		zap.Int("passed", finalized.PassedWorkers),
		zap.Int("failed", finalized.FailedWorkers))
	return finalized, nil
}

func (f *FleetCheck) probeWorker(ctx context.Context, log *zap.Logger, checkID string, w fleet.Worker) {
	out := f.prober.Probe(ctx, w.Endpoint, f.probeTimeout)
	class := out.Classification
	err := f.uc.CompleteWorkerResult(ctx, checkID, out.Status, &class, out.Score, time.Now().UnixMilli())
	switch {
	case err == nil:
	case errors.Is(err, healthrun.ErrInvalidState):
		// run was finalized while the probe was in flight
		log.Debug("late probe result dropped", zap.String("worker", w.Name))
	default:
		log.Error("complete worker result", zap.String("worker", w.Name), zap.Error(err))
	}
}

// await blocks until every probe goroutine returns or the run deadline
// passes, whichever comes first. Probes keep running past the deadline.
func (f *FleetCheck) await(ctx context.Context, g *errgroup.Group) {
	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	if f.runTimeout <= 0 {
		<-done
		return
	}
	timer := time.NewTimer(f.runTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
	case <-ctx.Done():
	}
}
