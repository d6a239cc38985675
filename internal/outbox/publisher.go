// Package outbox delivers progression events to Kafka with Schema Registry framing and
// parks undeliverable events in a Postgres dead-letter table.
package outbox

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/progression/internal/events"
)

type messageWriter interface {
	WriteMessages(context.Context, string, ...kafka.Message) error
}

type schemaRegistrar interface {
	EnsureSchema(context.Context, string, string) (int, error)
}

// DeadLetterSink stores events that could not be delivered.
type DeadLetterSink interface {
	Write(ctx context.Context, entry DeadLetter) error
}

// Record is one serialized event addressed to a topic.
type Record struct {
	Topic     string
	EventType string
	Key       string
	Payload   json.RawMessage
}

// DeadLetter is a Record together with the delivery failure that parked it.
type DeadLetter struct {
	Record
	Reason string
}

// Publisher sends progression events to a single topic.
type Publisher struct {
	producer      messageWriter
	registry      schemaRegistrar
	topic         string
	deadLetters   DeadLetterSink
	logger        *log.Logger
	schemaIDCache sync.Map
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithDeadLetters parks failed deliveries in sink instead of dropping them.
func WithDeadLetters(sink DeadLetterSink) PublisherOption {
	return func(p *Publisher) {
		p.deadLetters = sink
	}
}

// WithLogger overrides the publisher logger.
func WithLogger(logger *log.Logger) PublisherOption {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPublisher constructs a Publisher writing to topic.
func NewPublisher(producer messageWriter, registry schemaRegistrar, topic string, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		producer: producer,
		registry: registry,
		topic:    topic,
		logger:   log.New(log.Writer(), "[outbox] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish serializes event and delivers it. When delivery fails and a dead-letter sink
// is configured, the event is parked there and Publish reports success.
func (p *Publisher) Publish(ctx context.Context, event events.Event) error {
	body, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", event.Type, err)
	}
	key := event.Key
	if key == "" {
		key = event.UserID
	}
	record := Record{Topic: p.topic, EventType: event.Type, Key: key, Payload: body}

	err = p.Deliver(ctx, record)
	if err == nil {
		return nil
	}
	failedCounter.WithLabelValues(event.Type).Inc()
	if p.deadLetters == nil {
		return err
	}
	if dlqErr := p.deadLetters.Write(ctx, DeadLetter{Record: record, Reason: err.Error()}); dlqErr != nil {
		return fmt.Errorf("%w (dead-letter write failed: %v)", err, dlqErr)
	}
	dlqCounter.WithLabelValues(record.Topic).Inc()
	p.logger.Printf("parked %s for user %s in dead-letter table: %v", event.Type, event.UserID, err)
	return nil
}

// Deliver frames record with its registered schema ID and writes it to Kafka.
func (p *Publisher) Deliver(ctx context.Context, record Record) error {
	start := time.Now()
	defer func() { deliveryDuration.Observe(time.Since(start).Seconds()) }()

	schema, ok := schemaCatalog[record.EventType]
	if !ok {
		return fmt.Errorf("no schema metadata for event_type=%s", record.EventType)
	}
	if err := validatePayload(record.EventType, record.Payload); err != nil {
		return err
	}
	subject := SubjectFor(record.Topic, record.EventType)

	var schemaID int
	cacheKey := subject + "::" + schema
	if cached, found := p.schemaIDCache.Load(cacheKey); found {
		schemaID = cached.(int)
	} else {
		id, err := p.registry.EnsureSchema(ctx, subject, schema)
		if err != nil {
			return err
		}
		p.schemaIDCache.Store(cacheKey, id)
		schemaID = id
	}

	msg := kafka.Message{
		Key:   []byte(record.Key),
		Value: encodeWireFormat(schemaID, record.Payload),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(record.EventType)},
		},
		Time: time.Now().UTC(),
	}
	if err := p.producer.WriteMessages(ctx, record.Topic, msg); err != nil {
		return err
	}
	deliveredCounter.WithLabelValues(record.EventType).Inc()
	return nil
}

// SubjectFor names the Schema Registry subject of one event type on topic.
func SubjectFor(topic, eventType string) string {
	return fmt.Sprintf("%s-%s-value", topic, eventType)
}

// encodeWireFormat applies Confluent framing for Schema Registry aware payloads.
func encodeWireFormat(schemaID int, payload []byte) []byte {
	frame := make([]byte, 5+len(payload))
	frame[0] = 0
	binary.BigEndian.PutUint32(frame[1:5], uint32(schemaID))
	copy(frame[5:], payload)
	return frame
}

// DecodeWireFormat strips Confluent framing and returns the schema ID and payload.
func DecodeWireFormat(frame []byte) (int, []byte, error) {
	if len(frame) < 5 || frame[0] != 0 {
		return 0, nil, fmt.Errorf("payload is not schema registry framed")
	}
	return int(binary.BigEndian.Uint32(frame[1:5])), frame[5:], nil
}
