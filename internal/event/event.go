package event

import (
	"context"
	"errors"
	"sync"
	"time"
)

const (
	BatchStarted          = "batch.started"
	BatchCompleted        = "batch.completed"
	BatchCancelled        = "batch.cancelled"
	PlanCompleted         = "plan.completed"
	PlanCancelled         = "plan.cancelled"
	CheckpointRecorded    = "quality.checkpoint_recorded"
	CheckRecorded         = "quality.check_recorded"
	DistributionCreated   = "distribution.created"
	DistributionAdvanced  = "distribution.advanced"
	DeliveryCreated       = "delivery.created"
	DeliveryDeparted      = "delivery.departed"
	DeliveryDelivered     = "delivery.delivered"
	DeliveryFailed        = "delivery.failed"
	DeliveryCorrected     = "delivery.corrected"
	DriverStatsRecomputed = "driver.stats_recomputed"
)

// Event is a workflow notification emitted after the owning transaction commits.
type Event struct {
	Type       string      `json:"type"`
	EntityID   string      `json:"entity_id"`
	Payload    interface{} `json:"payload,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
}

func New(eventType, entityID string, payload interface{}) Event {
	return Event{Type: eventType, EntityID: entityID, Payload: payload, OccurredAt: time.Now()}
}

type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// MultiPublisher fans an event out to every publisher and joins their errors.
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(ctx context.Context, evt Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	Events []Event
}

func (r *Recorder) Publish(_ context.Context, evt Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, evt)
	return nil
}

// Types lists the recorded event types in publish order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.Events))
	for _, e := range r.Events {
		out = append(out, e.Type)
	}
	return out
}
