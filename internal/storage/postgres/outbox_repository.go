package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/spraynsniff/storefront/internal/domain"
)

// Статусы строк outbox_messages.
const (
	outboxPending = "pending"
	outboxSent    = "sent"
	outboxFailed  = "failed"
)

const defaultPullLimit = 100

const (
	insertOutboxSQL = `
INSERT INTO outbox_messages (
    id, aggregate_type, aggregate_id, event_type, payload,
    status, attempt_count, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $7)`

	selectPendingSQL = `
SELECT id, aggregate_type, aggregate_id, event_type, payload
FROM outbox_messages
WHERE status = $1
ORDER BY created_at, id
LIMIT $2`

	backlogSQL = `
SELECT COUNT(*), MIN(created_at)
FROM outbox_messages
WHERE status = $1`

	markStatusSQL = `
UPDATE outbox_messages
SET status = $2, attempt_count = attempt_count + 1, updated_at = $3
WHERE id = $1`

	purgeSentSQL = `
DELETE FROM outbox_messages
WHERE status = $1 AND updated_at < $2`
)

// OutboxRepository хранит события корзин в outbox_messages до публикации в Kafka.
// Методы не принимают ctx: каждый запрос ограничен opTimeout.
type OutboxRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewOutboxRepository создаёт outbox поверх пула store.
func NewOutboxRepository(store *Store) *OutboxRepository {
	return &OutboxRepository{
		db:  store.DB(),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue сохраняет событие корзины как pending; пустой ID заменяется UUID.
func (r *OutboxRepository) Enqueue(msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	ctx, cancel := r.opContext()
	defer cancel()

	if _, err := r.db.ExecContext(ctx, insertOutboxSQL,
		msg.ID, msg.AggregateType, msg.AggregateID, msg.EventType, msg.Payload, outboxPending, r.now(),
	); err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("enqueue %s for cart %s: %w", msg.EventType, msg.AggregateID, err)
	}
	return msg, nil
}

// PullPending возвращает до limit pending-событий в порядке постановки.
func (r *OutboxRepository) PullPending(limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = defaultPullLimit
	}

	ctx, cancel := r.opContext()
	defer cancel()

	rows, err := r.db.QueryContext(ctx, selectPendingSQL, outboxPending, limit)
	if err != nil {
		return nil, fmt.Errorf("pull pending outbox messages: %w", err)
	}
	defer rows.Close()

	var out []domain.OutboxMessage
	for rows.Next() {
		var m domain.OutboxMessage
		if err := rows.Scan(&m.ID, &m.AggregateType, &m.AggregateID, &m.EventType, &m.Payload); err != nil {
			return nil, fmt.Errorf("scan outbox message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox messages: %w", err)
	}
	return out, nil
}

// Stats возвращает размер backlog для метрик воркера и health-проверки.
func (r *OutboxRepository) Stats() (domain.OutboxStats, error) {
	ctx, cancel := r.opContext()
	defer cancel()

	var (
		stats  domain.OutboxStats
		oldest sql.NullTime
	)
	if err := r.db.QueryRowContext(ctx, backlogSQL, outboxPending).Scan(&stats.PendingCount, &oldest); err != nil {
		return domain.OutboxStats{}, fmt.Errorf("outbox backlog: %w", err)
	}
	if oldest.Valid {
		stats.OldestPendingAt = oldest.Time.UTC()
	}
	return stats, nil
}

// MarkSent помечает событие опубликованным.
func (r *OutboxRepository) MarkSent(id string) error {
	return r.setStatus(id, outboxSent)
}

// MarkFailed помечает событие, для которого исчерпаны попытки публикации.
func (r *OutboxRepository) MarkFailed(id string) error {
	return r.setStatus(id, outboxFailed)
}

// PurgeSent удаляет опубликованные события, обновлённые раньше before.
// Failed-события остаются для разбора.
func (r *OutboxRepository) PurgeSent(before time.Time) (int, error) {
	ctx, cancel := r.opContext()
	defer cancel()

	res, err := r.db.ExecContext(ctx, purgeSentSQL, outboxSent, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge sent outbox messages: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge sent outbox messages: %w", err)
	}
	return int(n), nil
}

func (r *OutboxRepository) setStatus(id, status string) error {
	ctx, cancel := r.opContext()
	defer cancel()

	res, err := r.db.ExecContext(ctx, markStatusSQL, id, status, r.now())
	if err != nil {
		return fmt.Errorf("mark outbox %s as %s: %w", id, status, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark outbox %s as %s: %w", id, status, err)
	}
	if n == 0 {
		return domain.ErrOutboxPublish
	}
	return nil
}

func (r *OutboxRepository) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), opTimeout)
}

var _ domain.OutboxRepository = (*OutboxRepository)(nil)
