package outbox

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type deliverer interface {
	Deliver(ctx context.Context, record Record) error
}

// DLQManager redelivers parked events and quarantines entries that keep failing.
type DLQManager struct {
	pool       *pgxpool.Pool
	delivery   deliverer
	maxRetries int
	baseDelay  time.Duration
	logger     *log.Logger
}

// NewDLQManager constructs a DLQManager. Non-positive limits fall back to five retries
// spaced from one minute.
func NewDLQManager(pool *pgxpool.Pool, delivery deliverer, maxRetries int, baseDelay time.Duration) *DLQManager {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	if baseDelay <= 0 {
		baseDelay = time.Minute
	}
	return &DLQManager{
		pool:       pool,
		delivery:   delivery,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		logger:     log.New(log.Writer(), "[dlq] ", log.LstdFlags),
	}
}

// RunOnce processes up to batchSize due entries and returns how many were redelivered.
func (m *DLQManager) RunOnce(ctx context.Context, batchSize int) (int, error) {
	entries, err := m.due(ctx, batchSize)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, entry := range entries {
		ok, procErr := m.handleEntry(ctx, entry)
		if procErr != nil {
			err = errors.Join(err, procErr)
			continue
		}
		if ok {
			delivered++
		}
	}
	updateBacklogGauge(ctx, m.pool)
	return delivered, err
}

func (m *DLQManager) due(ctx context.Context, batchSize int) ([]dlqEntry, error) {
	const query = `SELECT dlq_id, topic, event_type, partition_key, payload, reason, retry_count
                     FROM progression_event_dlq
                    WHERE quarantined_at IS NULL AND next_retry_at <= NOW()
                    ORDER BY created_at
                    LIMIT $1`

	rows, err := m.pool.Query(ctx, query, batchSize)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (dlqEntry, error) {
		var e dlqEntry
		err := row.Scan(&e.ID, &e.Topic, &e.EventType, &e.Key, &e.Payload, &e.Reason, &e.RetryCount)
		return e, err
	})
}

// handleEntry applies quarantine, redelivery or rescheduling to one entry.
func (m *DLQManager) handleEntry(ctx context.Context, entry dlqEntry) (bool, error) {
	if entry.RetryCount >= m.maxRetries {
		if _, err := m.pool.Exec(ctx,
			`UPDATE progression_event_dlq SET quarantined_at = NOW(), quarantine_reason = $1 WHERE dlq_id = $2`,
			"retry limit reached", entry.ID,
		); err != nil {
			return false, err
		}
		recordDLQQuarantined(entry)
		m.logger.Printf("quarantined %s entry %d after %d attempts", entry.EventType, entry.ID, entry.RetryCount)
		return false, nil
	}

	record := Record{Topic: entry.Topic, EventType: entry.EventType, Key: entry.Key, Payload: entry.Payload}
	if deliverErr := m.delivery.Deliver(ctx, record); deliverErr != nil {
		delay := m.backoffDelay(entry.RetryCount + 1)
		if _, err := m.pool.Exec(ctx,
			`UPDATE progression_event_dlq
                SET retry_count = retry_count + 1,
                    last_attempt_at = NOW(),
                    next_retry_at = NOW() + $1::interval,
                    reason = $2
              WHERE dlq_id = $3`,
			delay, deliverErr.Error(), entry.ID,
		); err != nil {
			return false, err
		}
		recordDLQRetry(entry)
		return false, nil
	}

	if _, err := m.pool.Exec(ctx, `DELETE FROM progression_event_dlq WHERE dlq_id = $1`, entry.ID); err != nil {
		return false, err
	}
	recordDLQRedelivered(entry)
	return true, nil
}

// backoffDelay doubles baseDelay per attempt, capped at one hour.
func (m *DLQManager) backoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 16 {
		return time.Hour
	}
	delay := time.Duration(1<<uint(attempt-1)) * m.baseDelay
	if delay > time.Hour {
		delay = time.Hour
	}
	return delay
}

type dlqEntry struct {
	ID         int64
	Topic      string
	EventType  string
	Key        string
	Payload    []byte
	Reason     string
	RetryCount int
}
