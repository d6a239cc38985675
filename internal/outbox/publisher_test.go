package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"example.com/progression/internal/events"
)

func TestPublisherFramesAndHeadersEvents(t *testing.T) {
	producer := &stubProducer{}
	registry := &stubRegistry{id: 42}
	publisher := NewPublisher(producer, registry, "progression_events")

	before := testutil.ToFloat64(deliveredCounter.WithLabelValues(events.TypeLevelChanged))
	beforeHistogram := histogramSampleCount(t)

	payload := events.LevelChanged{UserID: "user-1", PreviousLevel: 1, Level: 2, XPTotal: 1000, OccurredAt: time.Now().UTC()}
	err := publisher.Publish(context.Background(), events.Event{Type: events.TypeLevelChanged, UserID: "user-1", Payload: payload})
	require.NoError(t, err)

	require.Len(t, producer.writes, 1)
	batch := producer.writes[0]
	require.Equal(t, "progression_events", batch.topic)
	require.Len(t, batch.messages, 1)

	msg := batch.messages[0]
	require.Equal(t, []byte("user-1"), msg.Key)
	require.Equal(t, []kafka.Header{{Key: "event_type", Value: []byte(events.TypeLevelChanged)}}, msg.Headers)

	schemaID, body, err := DecodeWireFormat(msg.Value)
	require.NoError(t, err)
	require.Equal(t, 42, schemaID)

	var decoded events.LevelChanged
	require.NoError(t, json.Unmarshal(body, &decoded))
	require.Equal(t, 2, decoded.Level)
	require.Equal(t, int64(1000), decoded.XPTotal)

	require.Equal(t, []schemaCall{{subject: "progression_events-profile.level_changed-value", schema: levelChangedSchema}}, registry.calls)
	require.InDelta(t, before+1, testutil.ToFloat64(deliveredCounter.WithLabelValues(events.TypeLevelChanged)), 0.0001)
	require.Equal(t, beforeHistogram+1, histogramSampleCount(t))
}

func TestPublisherCachesSchemaIDs(t *testing.T) {
	producer := &stubProducer{}
	registry := &stubRegistry{id: 7}
	publisher := NewPublisher(producer, registry, "progression_events")

	for i := 0; i < 3; i++ {
		err := publisher.Publish(context.Background(), events.Event{
			Type:    events.TypeGoalCompleted,
			UserID:  "user-1",
			Payload: events.GoalCompleted{UserID: "user-1", GoalID: "goal-1"},
		})
		require.NoError(t, err)
	}

	require.Len(t, producer.writes, 3)
	require.Len(t, registry.calls, 1)
}

func TestPublisherParksFailedDeliveries(t *testing.T) {
	producer := &stubProducer{err: errors.New("kafka write failed")}
	sink := &stubSink{}
	publisher := NewPublisher(producer, &stubRegistry{id: 3}, "progression_events", WithDeadLetters(sink))

	beforeFailed := testutil.ToFloat64(failedCounter.WithLabelValues(events.TypeRewardClaimed))
	beforeDLQ := testutil.ToFloat64(dlqCounter.WithLabelValues("progression_events"))

	err := publisher.Publish(context.Background(), events.Event{
		Type:    events.TypeRewardClaimed,
		UserID:  "user-9",
		Key:     "user-9",
		Payload: events.RewardClaimed{UserID: "user-9", InstanceID: "inst-1", XPReward: 150},
	})
	require.NoError(t, err)

	require.Len(t, sink.entries, 1)
	entry := sink.entries[0]
	require.Equal(t, events.TypeRewardClaimed, entry.EventType)
	require.Equal(t, "user-9", entry.Key)
	require.Contains(t, entry.Reason, "kafka write failed")
	require.JSONEq(t, `{"user_id":"user-9","instance_id":"inst-1","challenge_id":"","xp_reward":150,"claimed_at":"0001-01-01T00:00:00Z"}`, string(entry.Payload))

	require.InDelta(t, beforeFailed+1, testutil.ToFloat64(failedCounter.WithLabelValues(events.TypeRewardClaimed)), 0.0001)
	require.InDelta(t, beforeDLQ+1, testutil.ToFloat64(dlqCounter.WithLabelValues("progression_events")), 0.0001)
}

func TestPublisherReturnsErrorWithoutDeadLetters(t *testing.T) {
	producer := &stubProducer{err: errors.New("broker down")}
	publisher := NewPublisher(producer, &stubRegistry{id: 3}, "progression_events")

	err := publisher.Publish(context.Background(), events.Event{Type: events.TypeGoalCompleted, UserID: "user-1", Payload: events.GoalCompleted{}})
	require.ErrorContains(t, err, "broker down")
}

func TestPublisherRejectsUnknownEventTypes(t *testing.T) {
	producer := &stubProducer{}
	sink := &stubSink{}
	publisher := NewPublisher(producer, &stubRegistry{id: 3}, "progression_events", WithDeadLetters(sink))

	err := publisher.Publish(context.Background(), events.Event{Type: "profile.deleted", UserID: "user-1", Payload: map[string]string{}})
	require.NoError(t, err)
	require.Empty(t, producer.writes)
	require.Len(t, sink.entries, 1)
	require.Contains(t, sink.entries[0].Reason, "no schema metadata")
}

func TestPublisherParksPayloadsFailingSchema(t *testing.T) {
	producer := &stubProducer{}
	sink := &stubSink{}
	registry := &stubRegistry{id: 3}
	publisher := NewPublisher(producer, registry, "progression_events", WithDeadLetters(sink))

	err := publisher.Publish(context.Background(), events.Event{
		Type:    events.TypeLevelChanged,
		UserID:  "user-1",
		Payload: map[string]any{"user_id": "user-1", "rank": "gold"},
	})
	require.NoError(t, err)
	require.Empty(t, producer.writes)
	require.Empty(t, registry.calls)
	require.Len(t, sink.entries, 1)
	require.Contains(t, sink.entries[0].Reason, "rejected by schema")
}

func TestValidatePayloadChecksTypes(t *testing.T) {
	valid := `{"user_id":"user-1","achievement_id":"FIRST_RUN","name":"First Run","xp_awarded":250,"unlocked_at":"2025-03-10T12:00:00Z"}`
	require.NoError(t, validatePayload(events.TypeAchievementUnlocked, []byte(valid)))

	fractional := `{"user_id":"user-1","achievement_id":"FIRST_RUN","xp_awarded":2.5,"unlocked_at":"2025-03-10T12:00:00Z"}`
	require.ErrorContains(t, validatePayload(events.TypeAchievementUnlocked, []byte(fractional)), "rejected by schema")

	require.ErrorContains(t, validatePayload(events.TypeAchievementUnlocked, []byte(`{"user_id":`)), "decode")
	require.ErrorContains(t, validatePayload("profile.deleted", []byte(`{}`)), "no schema metadata")
}

func TestSchemaCatalogCompiles(t *testing.T) {
	require.Len(t, payloadSchemas, len(schemaCatalog))
	for eventType := range schemaCatalog {
		require.Contains(t, payloadSchemas, eventType)
	}
}

func TestSchemaRegistryRegistersMissingSubject(t *testing.T) {
	var registered string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			http.NotFound(w, r)
		case http.MethodPost:
			var body struct {
				SchemaType string `json:"schemaType"`
				Schema     string `json:"schema"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.Equal(t, "JSON", body.SchemaType)
			registered = r.URL.EscapedPath()
			_, _ = w.Write([]byte(`{"id":11}`))
		}
	}))
	defer server.Close()

	client := NewSchemaRegistryClient(server.URL + "/")
	id, err := client.EnsureSchema(context.Background(), "progression_events-goal.completed-value", goalCompletedSchema)
	require.NoError(t, err)
	require.Equal(t, 11, id)
	require.Equal(t, "/subjects/progression_events-goal.completed-value/versions", registered)
}

func TestSchemaRegistrySurfacesServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "registry unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := NewSchemaRegistryClient(server.URL).EnsureSchema(context.Background(), "subject", "{}")
	require.ErrorContains(t, err, "503")
}

func TestBackoffDelayCapsAtOneHour(t *testing.T) {
	manager := NewDLQManager(nil, nil, 0, time.Minute)
	require.Equal(t, time.Minute, manager.backoffDelay(1))
	require.Equal(t, 4*time.Minute, manager.backoffDelay(3))
	require.Equal(t, time.Hour, manager.backoffDelay(7))
	require.Equal(t, time.Hour, manager.backoffDelay(40))
	require.Equal(t, 5, manager.maxRetries)
}

func TestDecodeWireFormatRejectsUnframedPayload(t *testing.T) {
	_, _, err := DecodeWireFormat([]byte(`{"a":1}`))
	require.Error(t, err)
}

type stubProducer struct {
	mu     sync.Mutex
	err    error
	writes []writtenBatch
}

type writtenBatch struct {
	topic    string
	messages []kafka.Message
}

func (s *stubProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	copied := make([]kafka.Message, len(msgs))
	copy(copied, msgs)
	s.writes = append(s.writes, writtenBatch{topic: topic, messages: copied})
	return nil
}

func (s *stubProducer) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

type stubRegistry struct {
	mu    sync.Mutex
	id    int
	calls []schemaCall
}

type schemaCall struct {
	subject string
	schema  string
}

func (s *stubRegistry) EnsureSchema(ctx context.Context, subject string, schema string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, schemaCall{subject: subject, schema: schema})
	return s.id, nil
}

type stubSink struct {
	mu      sync.Mutex
	entries []DeadLetter
}

func (s *stubSink) Write(ctx context.Context, entry DeadLetter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func histogramSampleCount(t *testing.T) uint64 {
	t.Helper()

	metric := &dto.Metric{}
	require.NoError(t, deliveryDuration.Write(metric))
	return metric.GetHistogram().GetSampleCount()
}
