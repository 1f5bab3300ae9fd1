package kafka

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spraynsniff/storefront/internal/domain"
)

func TestParseDeadLetter(t *testing.T) {
	record, err := json.Marshal(domain.DeadLetter{
		OutboxID:     "evt-1",
		Payload:      json.RawMessage(`{"cart_id":"device-1","count":2}`),
		PublishError: "broker down",
	})
	require.NoError(t, err)

	value, err := json.Marshal(Envelope{
		ID:            "evt-1",
		AggregateType: "cart",
		AggregateID:   "device-1",
		EventType:     "cart.line_added",
		Payload:       record,
	})
	require.NoError(t, err)

	dl, err := ParseDeadLetter(value)
	require.NoError(t, err)
	require.Equal(t, "evt-1", dl.OutboxID)
	require.Equal(t, "cart", dl.AggregateType)
	require.Equal(t, "device-1", dl.AggregateID)
	require.Equal(t, "cart.line_added", dl.EventType)
	require.Equal(t, "broker down", dl.PublishError)

	env := ReplayEnvelope(dl)
	require.Equal(t, "device-1", env.AggregateID)
	require.JSONEq(t, `{"cart_id":"device-1","count":2}`, string(env.Payload))
	require.False(t, env.PublishedAt.IsZero())
}

func TestParseDeadLetter_Rejects(t *testing.T) {
	_, err := ParseDeadLetter([]byte(`not json`))
	require.True(t, errors.Is(err, ErrNotDeadLetter))

	_, err = ParseDeadLetter([]byte(`{"foo":"bar"}`))
	require.True(t, errors.Is(err, ErrNotDeadLetter))

	_, err = ParseDeadLetter([]byte(`{"id":"x","payload":"not-an-object"}`))
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrNotDeadLetter))

	_, err = ParseDeadLetter([]byte(`{"id":"x","payload":{"outbox_id":"x"}}`))
	require.Error(t, err)
}
