package orchestrator

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/forgefleet/fleetops/internal/obs"
	kafkarepo "github.com/forgefleet/fleetops/internal/repository/kafka"
)

var (
	mSweeps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetops_sweeps_total",
		Help: "Fleet sweeps executed, by trigger kind.",
	}, []string{"trigger"})
	mSweepErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleetops_sweep_errors_total",
		Help: "Fleet sweeps that failed to finalize.",
	})
	mSweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fleetops_sweep_duration_seconds",
		Help:    "Wall time of a full fleet sweep.",
		Buckets: prometheus.DefBuckets,
	})
)

// Runner consumes run requests and executes a fleet sweep per message.
type Runner struct {
	consumer *kafkarepo.Consumer
	check    *FleetCheck
	log      *zap.Logger
}

func NewRunner(consumer *kafkarepo.Consumer, check *FleetCheck, log *zap.Logger) *Runner {
	return &Runner{consumer: consumer, check: check, log: log}
}

func (r *Runner) Run(ctx context.Context) error {
	handler := kafkarepo.JSONHandler(func(ctx context.Context, _ []byte, msg *kafkarepo.RunRequested) error {
		return r.handle(ctx, msg)
	})
	return r.consumer.Consume(ctx, handler)
}

// handle never returns an error for a run that failed on its own
// terms; only transport-level problems should block the offset commit.
func (r *Runner) handle(ctx context.Context, msg *kafkarepo.RunRequested) error {
	log := obs.WithTrace(ctx, r.log).With(
		zap.String("trigger", string(msg.TriggerKind)),
		zap.String("source", msg.Source),
	)

	start := time.Now()
	run, err := r.check.Run(ctx, msg.TriggerKind, msg.Source)
	mSweepDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		mSweepErrors.Inc()
		log.Error("fleet sweep failed", zap.Error(err))
		return nil
	}
	mSweeps.WithLabelValues(string(msg.TriggerKind)).Inc()
	log.Info("fleet sweep done",
		zap.String("run_id", run.RunID),
		zap.Duration("took", time.Since(start)))
	return nil
}

func (r *Runner) Close() error { return r.consumer.Close() }
