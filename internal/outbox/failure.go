package outbox

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DeadLetterStore parks undeliverable events in progression_event_dlq.
type DeadLetterStore struct {
	pool *pgxpool.Pool
}

var _ DeadLetterSink = (*DeadLetterStore)(nil)

// NewDeadLetterStore returns a store backed by pool.
func NewDeadLetterStore(pool *pgxpool.Pool) *DeadLetterStore {
	return &DeadLetterStore{pool: pool}
}

// Write inserts entry so that it is due for redelivery immediately.
func (s *DeadLetterStore) Write(ctx context.Context, entry DeadLetter) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO progression_event_dlq (topic, event_type, partition_key, payload, reason, next_retry_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())`,
		entry.Topic, entry.EventType, entry.Key, []byte(entry.Payload), entry.Reason,
	)
	return err
}
