package workerresult

import (
	"context"

	"github.com/forgefleet/fleetops/internal/domain/paging"
)

const DefaultListLimit = 100

type Repo interface {
	Create(ctx context.Context, r *Result) error
	GetByCheckID(ctx context.Context, checkID string) (*Result, error)
	// ListByRun pages a run's results, newest first.
	ListByRun(ctx context.Context, runID string, p paging.Page) ([]*Result, int, error)
	// ListAllByRun returns every child result; finalize recomputes
	// aggregates from the full set in one read.
	ListAllByRun(ctx context.Context, runID string) ([]*Result, error)
	// CompleteIfPending applies c in a single conditional write that
	// only matches a still-pending row. A row that is missing or
	// already terminal is a not-found failure, so a terminal result
	// can never be overwritten.
	CompleteIfPending(ctx context.Context, checkID string, c Completion) error
}
