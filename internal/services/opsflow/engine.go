package opsflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/forgefleet/fleetops/internal/domain/order"
	remdomain "github.com/forgefleet/fleetops/internal/domain/remediation"
	"github.com/forgefleet/fleetops/internal/obs"
	"github.com/forgefleet/fleetops/internal/services/remediation"
)

type Verdict string

const (
	VerdictPassed Verdict = "passed"
	VerdictFailed Verdict = "failed"
)

const (
	codeMergeConflict = "MERGE_CONFLICT"
	codeQABlocked     = "QA_BLOCKED"
)

// Engine drives the terminal operations of a delivery order: conflict
// surfacing, report generation and the final QA gate. The three entry
// points are independent; they share only the order-scoped records.
// Issue dispatch is best-effort and never changes a verdict.
type Engine struct {
	reports    *ReportBuilder
	dispatcher *remediation.Dispatcher
	followups  order.FollowupRepo
	oplogs     order.OperationLogRepo
	now        func() time.Time
	log        *zap.Logger
}

func NewEngine(reports *ReportBuilder, dispatcher *remediation.Dispatcher, followups order.FollowupRepo, oplogs order.OperationLogRepo, log *zap.Logger) *Engine {
	return &Engine{
		reports:    reports,
		dispatcher: dispatcher,
		followups:  followups,
		oplogs:     oplogs,
		now:        time.Now,
		log:        log,
	}
}

// AddFollowup records a remediation item against an order.
func (e *Engine) AddFollowup(ctx context.Context, f *order.Followup) error {
	if f.OrderID == "" {
		return fmt.Errorf("order id is required: %w", order.ErrValidation)
	}
	if !f.Type.Valid() {
		return fmt.Errorf("unknown followup type %q: %w", f.Type, order.ErrValidation)
	}
	if f.Impact < 0 {
		return fmt.Errorf("impact must be >= 0: %w", order.ErrValidation)
	}
	if f.Message == "" {
		return fmt.Errorf("message is required: %w", order.ErrValidation)
	}
	f.CreatedAt = e.now().UnixMilli()
	return e.followups.Create(ctx, f)
}

// ResolveConflicts surfaces a merge conflict as exactly one remediation
// issue, keyed on the first conflicting path. No merge is attempted.
func (e *Engine) ResolveConflicts(ctx context.Context, orderID, repo, branch string, files []string) error {
	if len(files) == 0 {
		return fmt.Errorf("at least one conflicting file is required: %w", order.ErrValidation)
	}

	primary := files[0]
	e.dispatcher.Dispatch(ctx, remdomain.IssueContext{
		ErrorCode: codeMergeConflict,
		FilePath:  primary,
		Message:   fmt.Sprintf("merge conflict in %s on branch %s (%d files)", repo, branch, len(files)),
		OrderID:   &orderID,
	}, "conflicting files: "+strings.Join(files, ", "))

	if err := e.appendLog(ctx, orderID, "conflict_resolution",
		fmt.Sprintf("surfaced %d conflicting files in %s@%s", len(files), repo, branch)); err != nil {
		return err
	}
	obs.WithTrace(ctx, e.log).Info("conflict surfaced",
		zap.String("order_id", orderID),
		zap.String("primary_file", primary),
		zap.Int("files", len(files)))
	return nil
}

// GenerateReport is pure and idempotent.
func (e *Engine) GenerateReport(ctx context.Context, orderID string) (*DeliveryReport, error) {
	return e.reports.Build(ctx, orderID)
}

type QAResult struct {
	Verdict      Verdict         `json:"verdict"`
	BlockedCount int             `json:"blockedCount"`
	Report       *DeliveryReport `json:"report"`
}

// FinalQA is the terminal gate: failed iff at least one blocked
// followup exists. The verdict is always definite, even when the
// remediation dispatch for a failing order goes nowhere.
func (e *Engine) FinalQA(ctx context.Context, orderID string) (*QAResult, error) {
	report, err := e.reports.Build(ctx, orderID)
	if err != nil {
		return nil, err
	}

	var blocked []*order.Followup
	for _, f := range report.Followups {
		if f.Type == order.FollowupBlocked {
			blocked = append(blocked, f)
		}
	}

	res := &QAResult{Verdict: VerdictPassed, Report: report}
	if len(blocked) > 0 {
		res.Verdict = VerdictFailed
		res.BlockedCount = len(blocked)
		e.dispatcher.Dispatch(ctx, remdomain.IssueContext{
			ErrorCode: codeQABlocked,
			FilePath:  blocked[0].FilePath,
			Message:   fmt.Sprintf("%d blocked followups remain", len(blocked)),
			OrderID:   &orderID,
		}, "final QA failed")
	}

	if err := e.appendLog(ctx, orderID, "final_qa", string(res.Verdict)); err != nil {
		return nil, err
	}
	obs.WithTrace(ctx, e.log).Info("final QA",
		zap.String("order_id", orderID),
		zap.String("verdict", string(res.Verdict)),
		zap.Int("blocked", res.BlockedCount))
	return res, nil
}

func (e *Engine) appendLog(ctx context.Context, orderID, action, detail string) error {
	err := e.oplogs.Append(ctx, &order.OperationLog{
		OrderID:   orderID,
		Action:    action,
		Detail:    detail,
		CreatedAt: e.now().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("append operation log: %w", err)
	}
	return nil
}
