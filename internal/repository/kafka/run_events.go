package kafka

import (
	"context"
	"time"

	"github.com/forgefleet/fleetops/internal/domain/events"
	"github.com/forgefleet/fleetops/internal/domain/healthrun"
)

// RunRequested asks the orchestrator to execute one fleet-wide check.
type RunRequested struct {
	TriggerKind healthrun.TriggerKind `json:"trigger_kind"`
	Source      string                `json:"source"`
	RequestedAt int64                 `json:"requested_at"`
}

type RunEventsKafka struct {
	p *Producer
}

func NewRunEventsKafka(p *Producer) *RunEventsKafka { return &RunEventsKafka{p: p} }

var _ events.RunEvents = (*RunEventsKafka)(nil)

func (e *RunEventsKafka) PublishRunRequested(ctx context.Context, trigger healthrun.TriggerKind, source string) error {
	return e.p.PublishJSON(ctx, []byte(source), RunRequested{
		TriggerKind: trigger,
		Source:      source,
		RequestedAt: time.Now().UnixMilli(),
	})
}
