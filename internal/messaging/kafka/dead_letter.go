package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spraynsniff/storefront/internal/domain"
)

// ErrNotDeadLetter — сообщение в DLQ не является outbox-конвертом.
var ErrNotDeadLetter = errors.New("message is not an outbox dead letter")

// ParseDeadLetter разбирает сообщение из DLQ: конверт outbox с domain.DeadLetter в payload.
// Пустые поля записи дополняются из конверта.
func ParseDeadLetter(value []byte) (domain.DeadLetter, error) {
	env, err := ParseEnvelope(value)
	if err != nil || len(env.Payload) == 0 {
		return domain.DeadLetter{}, ErrNotDeadLetter
	}

	var dl domain.DeadLetter
	if err := json.Unmarshal(env.Payload, &dl); err != nil {
		return domain.DeadLetter{}, fmt.Errorf("decode dead letter: %w", err)
	}
	if len(dl.Payload) == 0 {
		return domain.DeadLetter{}, errors.New("dead letter does not contain original event payload")
	}

	if dl.OutboxID == "" {
		dl.OutboxID = env.ID
	}
	if dl.AggregateType == "" {
		dl.AggregateType = env.AggregateType
	}
	if dl.AggregateID == "" {
		dl.AggregateID = env.AggregateID
	}
	if dl.EventType == "" {
		dl.EventType = env.EventType
	}
	return dl, nil
}

// ReplayEnvelope восстанавливает исходный конверт события для повторной публикации.
func ReplayEnvelope(dl domain.DeadLetter) Envelope {
	return Envelope{
		ID:            dl.OutboxID,
		AggregateType: dl.AggregateType,
		AggregateID:   dl.AggregateID,
		EventType:     dl.EventType,
		Payload:       dl.Payload,
		PublishedAt:   time.Now().UTC(),
	}
}
