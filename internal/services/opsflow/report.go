package opsflow

import (
	"context"
	"fmt"
	"time"

	"github.com/forgefleet/fleetops/internal/domain/order"
)

// DeliveryReport is the read-only snapshot of an order's remediation
// state. Followups come back sorted by ascending impact so the most
// severe items sort last.
type DeliveryReport struct {
	OrderID    string                `json:"orderId"`
	Followups  []*order.Followup     `json:"followups"`
	Operations []*order.OperationLog `json:"operations"`
	Summary    ReportSummary         `json:"summary"`
}

type ReportSummary struct {
	FollowupCount  int   `json:"followupCount"`
	BlockedCount   int   `json:"blockedCount"`
	AdvisoryCount  int   `json:"advisoryCount"`
	OperationCount int   `json:"operationCount"`
	GeneratedAt    int64 `json:"generatedAt"`
}

// ReportBuilder assembles delivery reports. Pure read, no side effects.
type ReportBuilder struct {
	followups order.FollowupRepo
	oplogs    order.OperationLogRepo
	now       func() time.Time
}

func NewReportBuilder(followups order.FollowupRepo, oplogs order.OperationLogRepo) *ReportBuilder {
	return &ReportBuilder{followups: followups, oplogs: oplogs, now: time.Now}
}

func (b *ReportBuilder) Build(ctx context.Context, orderID string) (*DeliveryReport, error) {
	fups, err := b.followups.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list followups: %w", err)
	}
	ops, err := b.oplogs.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list operation logs: %w", err)
	}

	var blocked, advisory int
	for _, f := range fups {
		switch f.Type {
		case order.FollowupBlocked:
			blocked++
		case order.FollowupAdvisory:
			advisory++
		}
	}

	if fups == nil {
		fups = []*order.Followup{}
	}
	if ops == nil {
		ops = []*order.OperationLog{}
	}
	return &DeliveryReport{
		OrderID:    orderID,
		Followups:  fups,
		Operations: ops,
		Summary: ReportSummary{
			FollowupCount:  len(fups),
			BlockedCount:   blocked,
			AdvisoryCount:  advisory,
			OperationCount: len(ops),
			GeneratedAt:    b.now().UnixMilli(),
		},
	}, nil
}
