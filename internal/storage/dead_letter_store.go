package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/aioutlet/product-service/internal/catalog"
	"github.com/aioutlet/product-service/internal/events"
)

var _ events.DeadLetterStore = (*ProductStore)(nil)

// ParkedEvent is one dead-lettered event as read back for inspection.
type ParkedEvent struct {
	ID            int64     `json:"id"`
	Topic         string    `json:"topic"`
	EventID       string    `json:"eventId"`
	EventType     string    `json:"eventType"`
	CorrelationID string    `json:"correlationId"`
	Payload       []byte    `json:"payload"`
	Reason        string    `json:"reason"`
	CreatedAt     time.Time `json:"createdAt"`
}

// RecordDeadLetter implements events.DeadLetterStore. The raw payload is kept
// verbatim, malformed or not, so parked events can be replayed or inspected.
func (s *ProductStore) RecordDeadLetter(ctx context.Context, letter events.DeadLetter) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO dead_letter_log (topic, event_id, event_type, correlation_id, payload, reason)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		letter.Topic, letter.EventID, letter.EventType, letter.CorrelationID, letter.Payload, letter.Reason,
	)
	if err != nil {
		return fmt.Errorf("failed to record dead letter for topic %s: %w", letter.Topic, classifyError(err))
	}

	return nil
}

// ListDeadLetters returns parked events newest first with the total count.
func (s *ProductStore) ListDeadLetters(ctx context.Context, page catalog.Page) ([]ParkedEvent, int, error) {
	limit, offset := normalizePage(page)

	query := `
		SELECT id, topic, event_id, event_type, correlation_id, payload, reason, created_at,
			COUNT(*) OVER() AS total_count
		FROM dead_letter_log
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := s.conn.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list dead letters: %w", classifyError(err))
	}

	defer func() {
		_ = rows.Close()
	}()

	parked := []ParkedEvent{}
	total := 0

	for rows.Next() {
		var event ParkedEvent

		err := rows.Scan(
			&event.ID,
			&event.Topic,
			&event.EventID,
			&event.EventType,
			&event.CorrelationID,
			&event.Payload,
			&event.Reason,
			&event.CreatedAt,
			&total,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan dead letter row: %w", err)
		}

		event.CreatedAt = event.CreatedAt.UTC()
		parked = append(parked, event)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate dead letter rows: %w", err)
	}

	return parked, total, nil
}
