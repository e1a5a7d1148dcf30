// Package events publishes domain events about clinic records to an external
// sink (Kafka or SQS) or to the log.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event types.
const (
	ClientCreated       = "client.created"
	ClientStatusChanged = "client.status_changed"

	DeviceRegistered    = "device.registered"
	DeviceAssigned      = "device.assigned"
	DeviceUnassigned    = "device.unassigned"
	DeviceStatusChanged = "device.status_changed"

	FormCreated       = "form.created"
	FormStatusChanged = "form.status_changed"

	FormEntryCreated   = "form_entry.created"
	FormEntryCompleted = "form_entry.completed"
	FormEntryCancelled = "form_entry.cancelled"
)

// Event is the envelope written to every sink.
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	EntityType string          `json:"entityType"`
	EntityID   string          `json:"entityId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// Publisher delivers events to a sink.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Emitter builds events and hands them to a Publisher. Delivery errors are
// logged and never returned, so a broken sink cannot fail a request.
// A nil *Emitter drops everything.
type Emitter struct {
	pub    Publisher
	logger zerolog.Logger
	now    func() time.Time
}

func NewEmitter(pub Publisher, logger zerolog.Logger) *Emitter {
	return &Emitter{pub: pub, logger: logger, now: time.Now}
}

// Emit publishes an event about entityType/entityID with payload marshalled
// as JSON.
func (em *Emitter) Emit(ctx context.Context, eventType, entityType, entityID string, payload interface{}) {
	if em == nil || em.pub == nil {
		return
	}

	e := Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		EntityType: entityType,
		EntityID:   entityID,
		OccurredAt: em.now().UTC(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			em.logger.Error().Err(err).Str("event_type", eventType).Msg("marshal event payload")
			return
		}
		e.Payload = raw
	}

	if err := em.pub.Publish(ctx, e); err != nil {
		em.logger.Error().Err(err).
			Str("event_type", eventType).
			Str("entity_id", entityID).
			Msg("publish event")
	}
}

// LogPublisher writes events to the log. Used when no broker is configured.
type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.With().Str("component", "events").Logger()}
}

func (p *LogPublisher) Publish(_ context.Context, e Event) error {
	ev := p.logger.Info().
		Str("event_id", e.ID).
		Str("event_type", e.Type).
		Str("entity_type", e.EntityType).
		Str("entity_id", e.EntityID)
	if len(e.Payload) > 0 {
		ev = ev.RawJSON("payload", e.Payload)
	}
	ev.Msg("domain event")
	return nil
}

func (p *LogPublisher) Close() error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	Err    error
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Types lists the types of the recorded events in order.
func (r *Recorder) Types() []string {
	evs := r.Events()
	out := make([]string, len(evs))
	for i, e := range evs {
		out[i] = e.Type
	}
	return out
}
