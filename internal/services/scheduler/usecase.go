package scheduler

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/forgefleet/fleetops/internal/domain/events"
	"github.com/forgefleet/fleetops/internal/domain/healthrun"
	"github.com/forgefleet/fleetops/internal/obs/retry"
)

const sourceName = "scheduler"

// Usecase publishes one scheduled run request per tick. Publishing is
// retried with backoff so a Kafka hiccup does not silently drop a
// scheduled sweep.
type Usecase struct {
	Events events.RunEvents
	Retry  retry.Policy
}

func NewUC(ev events.RunEvents, policy retry.Policy) *Usecase {
	return &Usecase{Events: ev, Retry: policy}
}

func (u *Usecase) Tick(ctx context.Context) error {
	tr := otel.Tracer("scheduler.uc")
	ctxTick, span := tr.Start(ctx, "scheduler.tick",
		trace.WithAttributes(attribute.String("trigger", string(healthrun.TriggerScheduled))),
	)
	defer span.End()

	err := retry.Do(ctxTick, func() error {
		return u.Events.PublishRunRequested(ctxTick, healthrun.TriggerScheduled, sourceName)
	}, u.Retry)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("publish run request: %w", err)
	}
	return nil
}
