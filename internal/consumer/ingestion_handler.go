package consumer

import (
	"context"
	"encoding/json"
	"log"

	"example.com/progression/internal/domain"
	"example.com/progression/internal/events"
	"example.com/progression/internal/progression"
	"example.com/progression/internal/validation"
)

// Recorder persists an activity and runs the progression steps for it.
type Recorder interface {
	Record(ctx context.Context, activity domain.Activity, identity *domain.Identity) (progression.IngestReport, error)
}

// IngestionHandler turns activity.finalized messages into engine ingestions. Other
// event types are acknowledged and ignored.
type IngestionHandler struct {
	recorder Recorder
	logger   *log.Logger
}

// NewIngestionHandler constructs a handler that records through recorder.
func NewIngestionHandler(recorder Recorder, logger *log.Logger) *IngestionHandler {
	if logger == nil {
		logger = log.New(log.Writer(), "[consumer] ", log.LstdFlags|log.Lshortfile)
	}
	return &IngestionHandler{recorder: recorder, logger: logger}
}

// Handle decodes and validates msg, then records the activity. Step failures are
// returned joined; the ledger keeps their claims, so a redelivery does not rerun them.
func (h *IngestionHandler) Handle(ctx context.Context, msg Message) error {
	if msg.EventType != events.TypeActivityFinalized {
		ignoredCounter.WithLabelValues(msg.EventType).Inc()
		return nil
	}

	var payload events.ActivityFinalized
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return domain.ValidationError("decode activity.finalized: " + err.Error())
	}
	if err := validation.Struct(payload); err != nil {
		return err
	}

	report, err := h.recorder.Record(ctx, payload.Activity(), payload.Identity())
	if err != nil {
		return err
	}
	if len(report.Skipped) > 0 {
		h.logger.Printf("activity %s replayed, skipped steps %v", report.ActivityID, report.Skipped)
	}
	return report.Err()
}
