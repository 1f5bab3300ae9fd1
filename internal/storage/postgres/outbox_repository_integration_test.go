package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spraynsniff/storefront/internal/domain"
)

func cartEvent(cartID, eventType string) domain.OutboxMessage {
	return domain.OutboxMessage{
		AggregateType: "cart",
		AggregateID:   cartID,
		EventType:     eventType,
		Payload:       []byte(`{"cart_id":"` + cartID + `"}`),
	}
}

func TestOutboxRepository_CartEventLifecycle(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOutboxRepository(store)

	added, err := repo.Enqueue(cartEvent("device-1", "cart.line_added"))
	require.NoError(t, err)
	require.NotEmpty(t, added.ID)

	fixed := cartEvent("device-2", "cart.cleared")
	fixed.ID = "outbox-fixed-id"
	cleared, err := repo.Enqueue(fixed)
	require.NoError(t, err)
	require.Equal(t, "outbox-fixed-id", cleared.ID)

	pending, err := repo.PullPending(0)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, added.ID, pending[0].ID)
	require.JSONEq(t, `{"cart_id":"device-1"}`, string(pending[0].Payload))

	limited, err := repo.PullPending(1)
	require.NoError(t, err)
	require.Len(t, limited, 1)

	stats, err := repo.Stats()
	require.NoError(t, err)
	require.Equal(t, 2, stats.PendingCount)
	require.False(t, stats.OldestPendingAt.IsZero())

	require.NoError(t, repo.MarkSent(added.ID))
	require.NoError(t, repo.MarkFailed(cleared.ID))

	pending, err = repo.PullPending(10)
	require.NoError(t, err)
	require.Empty(t, pending)

	stats, err = repo.Stats()
	require.NoError(t, err)
	require.Zero(t, stats.PendingCount)
	require.True(t, stats.OldestPendingAt.IsZero())
}

func TestOutboxRepository_MarkMissingMessage(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOutboxRepository(store)

	require.ErrorIs(t, repo.MarkSent("missing-outbox"), domain.ErrOutboxPublish)
	require.ErrorIs(t, repo.MarkFailed("missing-outbox"), domain.ErrOutboxPublish)
}

func TestOutboxRepository_PurgeSentKeepsPendingAndFailed(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOutboxRepository(store)

	past := time.Now().UTC().Add(-48 * time.Hour)
	repo.now = func() time.Time { return past }

	old, err := repo.Enqueue(cartEvent("device-1", "cart.line_added"))
	require.NoError(t, err)
	require.NoError(t, repo.MarkSent(old.ID))

	failed, err := repo.Enqueue(cartEvent("device-1", "cart.quantity_set"))
	require.NoError(t, err)
	require.NoError(t, repo.MarkFailed(failed.ID))

	repo.now = func() time.Time { return time.Now().UTC() }
	fresh, err := repo.Enqueue(cartEvent("device-1", "cart.line_removed"))
	require.NoError(t, err)
	require.NoError(t, repo.MarkSent(fresh.ID))

	_, err = repo.Enqueue(cartEvent("device-2", "cart.cleared"))
	require.NoError(t, err)

	purged, err := repo.PurgeSent(time.Now().UTC().Add(-24 * time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, purged)

	var remaining int
	require.NoError(t, store.DB().QueryRow(`SELECT COUNT(*) FROM outbox_messages`).Scan(&remaining))
	require.Equal(t, 3, remaining)

	stats, err := repo.Stats()
	require.NoError(t, err)
	require.Equal(t, 1, stats.PendingCount)
}
