package domain

import (
	"context"
	"encoding/json"
	"time"
)

// CartSnapshotRepository хранит полный снапшот позиций корзины под одним ключом.
type CartSnapshotRepository interface {
	// Load возвращает сохранённые позиции или ErrSnapshotNotFound.
	// Неразборчивые данные возвращаются как ErrSnapshotCorrupt.
	Load(ctx context.Context, cartID string) ([]CartLine, error)
	// Save целиком перезаписывает снапшот корзины.
	Save(ctx context.Context, cartID string, lines []CartLine) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
	// PurgeSent удаляет опубликованные события, обновлённые раньше before.
	PurgeSent(before time.Time) (int, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// DeadLetter — тело сообщения в DLQ: исходное событие плюс причина отказа.
type DeadLetter struct {
	OutboxID       string          `json:"outbox_id"`
	AggregateType  string          `json:"aggregate_type"`
	AggregateID    string          `json:"aggregate_id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	PublishError   string          `json:"publish_error"`
	DLQPublishedAt time.Time       `json:"dlq_published_at"`
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
