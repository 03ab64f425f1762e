package remediation

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/forgefleet/fleetops/internal/domain/remediation"
	"github.com/forgefleet/fleetops/internal/obs"
)

var mIssues = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "fleetops_remediation_issues_total",
	Help: "Remediation issues dispatched to the tracker.",
}, []string{"outcome"})

// Dispatcher is the fire-and-forget front of the issue tracker. A
// failed dispatch is logged once and dropped, never retried, and never
// fails the calling workflow.
type Dispatcher struct {
	tracker remediation.IssueTracker
	log     *zap.Logger
}

func NewDispatcher(tracker remediation.IssueTracker, log *zap.Logger) *Dispatcher {
	return &Dispatcher{tracker: tracker, log: log}
}

// Dispatch files one issue. The returned value reports whether the
// tracker accepted it; the caller decides nothing based on it beyond
// bookkeeping.
func (d *Dispatcher) Dispatch(ctx context.Context, issue remediation.IssueContext, note string) bool {
	if d.tracker == nil {
		return false
	}
	if err := d.tracker.CreateIssue(ctx, issue, note); err != nil {
		mIssues.WithLabelValues("error").Inc()
		obs.WithTrace(ctx, d.log).Warn("remediation dispatch failed",
			zap.String("error_code", issue.ErrorCode),
			zap.String("file_path", issue.FilePath),
			zap.Error(err))
		return false
	}
	mIssues.WithLabelValues("ok").Inc()
	return true
}
