package healthrun

import (
	"context"

	"github.com/forgefleet/fleetops/internal/domain/paging"
)

// DefaultListLimit applies when a caller omits a page limit.
const DefaultListLimit = 50

type Repo interface {
	Create(ctx context.Context, r *Run) error
	GetByRunID(ctx context.Context, runID string) (*Run, error)
	List(ctx context.Context, f Filter, p paging.Page) ([]*Run, int, error)
	Update(ctx context.Context, runID string, u Update) error
}
