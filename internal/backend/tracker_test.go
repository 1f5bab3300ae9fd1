package backend

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTracker_Transitions(t *testing.T) {
	tr := NewTracker()
	require.Equal(t, StateIdle, tr.State())

	ctx := context.Background()
	err := tr.Do(ctx, func(context.Context) error {
		require.Equal(t, StateInFlight, tr.State())
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, StateSuccess, tr.State())

	boom := errors.New("boom")
	err = tr.Do(ctx, func(context.Context) error { return boom })
	require.ErrorIs(t, err, boom)

	snap := tr.Snapshot()
	require.Equal(t, StateError, snap.State)
	require.Equal(t, "boom", snap.Error)

	tr.Reset()
	require.Equal(t, StateIdle, tr.State())
	require.Empty(t, tr.Snapshot().Error)
}

func TestTracker_RejectsConcurrentRun(t *testing.T) {
	tr := NewTracker()
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- tr.Do(context.Background(), func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()

	<-started
	err := tr.Do(context.Background(), func(context.Context) error { return nil })
	require.ErrorIs(t, err, ErrInFlight)

	tr.Reset()
	require.Equal(t, StateInFlight, tr.State())

	close(release)
	require.NoError(t, <-done)
	require.Equal(t, StateSuccess, tr.State())
}
