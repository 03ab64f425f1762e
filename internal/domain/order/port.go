package order

import "context"

type FollowupRepo interface {
	Create(ctx context.Context, f *Followup) error
	// ListByOrder returns the order's followups sorted by ascending
	// impact, so the most severe items sort last.
	ListByOrder(ctx context.Context, orderID string) ([]*Followup, error)
}

type OperationLogRepo interface {
	Append(ctx context.Context, e *OperationLog) error
	ListByOrder(ctx context.Context, orderID string) ([]*OperationLog, error)
}
