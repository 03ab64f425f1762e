package scheduler

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

type Runner struct {
	Log      *zap.Logger
	UC       *Usecase
	Interval time.Duration

	mTicks   prometheus.Counter
	mErr     prometheus.Counter
	mTickDur prometheus.Histogram
}

func New(log *zap.Logger, uc *Usecase, interval time.Duration) *Runner {
	return &Runner{
		Log:      log,
		UC:       uc,
		Interval: interval,
		mTicks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fleetops_scheduler_ticks_total", Help: "Run requests published",
		}),
		mErr: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fleetops_scheduler_errors_total", Help: "Errors in scheduler loop",
		}),
		mTickDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name: "fleetops_scheduler_tick_duration_seconds", Help: "Scheduler tick duration",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (r *Runner) tick(ctx context.Context) {
	start := time.Now()
	if err := r.UC.Tick(ctx); err != nil {
		r.mErr.Inc()
		r.Log.Warn("tick error", zap.Error(err))
	} else {
		r.mTicks.Inc()
	}
	r.mTickDur.Observe(time.Since(start).Seconds())
}

func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	r.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}
