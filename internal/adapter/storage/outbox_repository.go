package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/rl1809/cart-checkout/internal/core/domain"
)

type outboxRepository struct {
	q queryer
}

func (r *outboxRepository) Append(ctx context.Context, event domain.OutboxEvent) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO outbox_events (id, aggregate_id, event_type, payload, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		event.ID, event.AggregateID, event.EventType, []byte(event.Payload), event.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

func (r *outboxRepository) Pending(ctx context.Context, limit int) ([]domain.OutboxEvent, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, aggregate_id, event_type, payload, created_at
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY created_at, id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending events: %w", err)
	}
	defer rows.Close()

	var events []domain.OutboxEvent
	for rows.Next() {
		var (
			e       domain.OutboxEvent
			payload []byte
		)
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.EventType, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		e.Payload = payload
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox events: %w", err)
	}
	return events, nil
}

func (r *outboxRepository) MarkPublished(ctx context.Context, id string, at time.Time) error {
	result, err := r.q.ExecContext(ctx, `
		UPDATE outbox_events SET published_at = ?
		WHERE id = ? AND published_at IS NULL`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("mark event published: %w", err)
	}
	return requireAffected(result, fmt.Errorf("pending event %s: %w", id, domain.ErrNotFound))
}
