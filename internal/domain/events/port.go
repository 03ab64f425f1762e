package events

import (
	"context"

	"github.com/forgefleet/fleetops/internal/domain/healthrun"
)

// RunEvents publishes fleet-check trigger events.
type RunEvents interface {
	PublishRunRequested(ctx context.Context, trigger healthrun.TriggerKind, source string) error
}
