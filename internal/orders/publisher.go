package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
)

// Sink is one topic's outbound queue (kafka.Producer in production).
type Sink interface {
	Publish(key, value []byte, headers ...kafkago.Header) error
}

// Publisher wraps order events in the v1 envelope and hands them to the
// per-topic sinks. Either sink may be nil, which drops that event type.
type Publisher struct {
	Placed  Sink
	Status  Sink
	Service string
	now     func() time.Time
}

func (p *Publisher) OrderPlaced(_ context.Context, o Order, traceID string) error {
	if p.Placed == nil {
		return nil
	}
	return p.publish(p.Placed, EventOrderPlaced, o.ID, traceID, PlacedPayload(o))
}

func (p *Publisher) StatusChanged(_ context.Context, orderID string, from, to Status, traceID string) error {
	if p.Status == nil {
		return nil
	}
	return p.publish(p.Status, EventOrderStatusChanged, orderID, traceID,
		OrderStatusChangedPayload{OrderID: orderID, From: from, To: to})
}

func (p *Publisher) publish(sink Sink, eventType, orderID, traceID string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	now := time.Now
	if p.now != nil {
		now = p.now
	}
	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    now().UTC(),
		Producer:      p.Service,
		TraceID:       traceID,
		CorrelationID: orderID,
		Payload:       raw,
	}
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s envelope: %w", eventType, err)
	}
	return sink.Publish(PartitionKey(orderID), value,
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
