package cart

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/spraynsniff/storefront/internal/domain"
	"github.com/spraynsniff/storefront/internal/notify"
)

type fakeSnapshotRepo struct {
	mu      sync.Mutex
	data    map[string][]byte
	loadErr error
	saveErr error
	saves   int
}

func newFakeSnapshotRepo() *fakeSnapshotRepo {
	return &fakeSnapshotRepo{data: make(map[string][]byte)}
}

func (r *fakeSnapshotRepo) Load(_ context.Context, cartID string) ([]domain.CartLine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loadErr != nil {
		return nil, r.loadErr
	}
	raw, ok := r.data[cartID]
	if !ok {
		return nil, domain.ErrSnapshotNotFound
	}
	return domain.UnmarshalLines(raw)
}

func (r *fakeSnapshotRepo) Save(_ context.Context, cartID string, lines []domain.CartLine) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves++
	if r.saveErr != nil {
		return r.saveErr
	}
	raw, err := domain.MarshalLines(lines)
	if err != nil {
		return err
	}
	r.data[cartID] = raw
	return nil
}

func (r *fakeSnapshotRepo) raw(cartID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return string(r.data[cartID])
}

func line(id, name, price string, qty int) domain.CartLine {
	return domain.CartLine{
		ProductID: id,
		Name:      name,
		Price:     decimal.RequireFromString(price),
		ImageURL:  "/img/" + id + ".jpg",
		Quantity:  qty,
	}
}

func TestStore_AddMergesAndTotals(t *testing.T) {
	ctx := context.Background()
	repo := newFakeSnapshotRepo()
	store := OpenStore(ctx, "device-1", repo)

	change, err := store.Add(ctx, line("p1", "Oud Wood", "25000", 1))
	require.NoError(t, err)
	require.False(t, change.Merged)

	change, err = store.Add(ctx, line("p1", "Oud Wood", "25000", 2))
	require.NoError(t, err)
	require.True(t, change.Merged)

	_, err = store.Add(ctx, line("p2", "Bleu", "10000", 1))
	require.NoError(t, err)

	lines := store.Lines()
	require.Len(t, lines, 2)
	require.Equal(t, "p1", lines[0].ProductID)
	require.Equal(t, 3, lines[0].Quantity)
	require.Equal(t, "p2", lines[1].ProductID)
	require.True(t, store.Total().Equal(decimal.NewFromInt(85000)))
	require.Equal(t, 4, store.Count())
}

func TestStore_RemoveMissingIsNoop(t *testing.T) {
	ctx := context.Background()
	repo := newFakeSnapshotRepo()
	store := OpenStore(ctx, "device-1", repo)
	_, err := store.Add(ctx, line("p1", "Oud Wood", "25000", 1))
	require.NoError(t, err)

	change, err := store.Remove(ctx, "missing")
	require.NoError(t, err)
	require.False(t, change.Changed)
	require.Len(t, store.Lines(), 1)
	require.Equal(t, 2, repo.saves)
}

func TestStore_SetQuantityKeepsValueAsIs(t *testing.T) {
	ctx := context.Background()
	store := OpenStore(ctx, "device-1", newFakeSnapshotRepo())
	_, err := store.Add(ctx, line("p1", "Oud Wood", "25000", 2))
	require.NoError(t, err)

	_, err = store.SetQuantity(ctx, "p1", 0)
	require.NoError(t, err)
	require.Len(t, store.Lines(), 1)
	require.Equal(t, 0, store.Lines()[0].Quantity)
	require.True(t, store.Total().IsZero())

	change, err := store.SetQuantity(ctx, "missing", 5)
	require.NoError(t, err)
	require.False(t, change.Changed)
}

func TestStore_ClearEmptiesCartAndSnapshot(t *testing.T) {
	ctx := context.Background()
	repo := newFakeSnapshotRepo()
	store := OpenStore(ctx, "device-1", repo)
	_, err := store.Add(ctx, line("p1", "Oud Wood", "25000", 2))
	require.NoError(t, err)

	_, err = store.Clear(ctx)
	require.NoError(t, err)
	require.Empty(t, store.Lines())
	require.True(t, store.Total().IsZero())
	require.Equal(t, "[]", repo.raw("device-1"))
}

func TestStore_RestoresFromSnapshot(t *testing.T) {
	ctx := context.Background()
	repo := newFakeSnapshotRepo()

	first := OpenStore(ctx, "device-1", repo)
	_, err := first.Add(ctx, line("p1", "Oud Wood", "25000", 2))
	require.NoError(t, err)
	_, err = first.Add(ctx, line("p2", "Bleu", "10000.50", 1))
	require.NoError(t, err)

	second := OpenStore(ctx, "device-1", repo)
	require.Len(t, second.Lines(), 2)
	require.True(t, second.Total().Equal(first.Total()))
}

func TestStore_CorruptSnapshotStartsEmpty(t *testing.T) {
	ctx := context.Background()
	repo := newFakeSnapshotRepo()
	repo.data["device-1"] = []byte("{not json")

	var failures []string
	store := OpenStore(ctx, "device-1", repo, WithFailureHook(func(op string, _ error) {
		failures = append(failures, op)
	}))

	require.Empty(t, store.Lines())
	require.Equal(t, []string{"load"}, failures)

	_, err := store.Add(ctx, line("p1", "Oud Wood", "25000", 1))
	require.NoError(t, err)
	require.Len(t, store.Lines(), 1)
}

func TestStore_SaveFailureKeepsInMemoryState(t *testing.T) {
	ctx := context.Background()
	repo := newFakeSnapshotRepo()
	repo.saveErr = errors.New("quota exceeded")
	store := OpenStore(ctx, "device-1", repo)

	_, err := store.Add(ctx, line("p1", "Oud Wood", "25000", 1))
	require.Error(t, err)
	require.ErrorIs(t, err, repo.saveErr)
	require.Len(t, store.Lines(), 1)
}

func TestStore_AddNotifiesOnlyNewLines(t *testing.T) {
	ctx := context.Background()
	rec := &notify.Recorder{}
	store := OpenStore(ctx, "device-1", nil, WithNotifier(rec))

	_, err := store.Add(ctx, line("p1", "Oud Wood", "25000", 1))
	require.NoError(t, err)
	change, err := store.Add(ctx, line("p1", "Oud Wood", "25000", 1))
	require.NoError(t, err)
	require.True(t, change.Merged)
	_, err = store.Add(ctx, line("p2", "Bleu", "10000", 1))
	require.NoError(t, err)
	_, err = store.Remove(ctx, "p1")
	require.NoError(t, err)

	all := rec.All()
	require.Len(t, all, 2)
	require.Equal(t, notify.LevelSuccess, all[0].Level)
	require.Equal(t, "Oud Wood added to cart", all[0].Message)
	require.Equal(t, "p2", all[1].ProductID)
}

func TestStore_SubscribeAndUnsubscribe(t *testing.T) {
	ctx := context.Background()
	store := OpenStore(ctx, "device-1", nil)

	var got []ActionType
	unsubscribe := store.Subscribe(func(c Change) {
		got = append(got, c.Action)
	})

	_, err := store.Add(ctx, line("p1", "Oud Wood", "25000", 1))
	require.NoError(t, err)
	_, err = store.Clear(ctx)
	require.NoError(t, err)

	unsubscribe()
	_, err = store.Add(ctx, line("p2", "Bleu", "10000", 1))
	require.NoError(t, err)

	require.Equal(t, []ActionType{ActionAdd, ActionClear}, got)
}

func TestStore_ReloadPicksUpExternalWrite(t *testing.T) {
	ctx := context.Background()
	repo := newFakeSnapshotRepo()
	store := OpenStore(ctx, "device-1", repo)

	var reloads int
	store.Subscribe(func(c Change) {
		if c.Action == ActionReload {
			reloads++
		}
	})

	other := OpenStore(ctx, "device-1", repo)
	_, err := other.Add(ctx, line("p1", "Oud Wood", "25000", 4))
	require.NoError(t, err)

	require.Empty(t, store.Lines())
	view, reloaded := store.Reload(ctx)
	require.True(t, reloaded)
	require.Len(t, view.Lines, 1)
	require.Equal(t, 4, view.Count)
	require.Equal(t, 1, reloads)
}

func TestStore_ReloadIgnoresOwnWrite(t *testing.T) {
	ctx := context.Background()
	repo := newFakeSnapshotRepo()
	store := OpenStore(ctx, "device-1", repo)

	var reloads int
	store.Subscribe(func(c Change) {
		if c.Action == ActionReload {
			reloads++
		}
	})

	_, err := store.Add(ctx, line("p1", "Oud Wood", "25000", 2))
	require.NoError(t, err)

	view, reloaded := store.Reload(ctx)
	require.False(t, reloaded)
	require.Equal(t, 2, view.Count)
	require.Zero(t, reloads)
}

func TestStore_ReloadKeepsStateWhenRepoUnavailable(t *testing.T) {
	ctx := context.Background()
	repo := newFakeSnapshotRepo()
	store := OpenStore(ctx, "device-1", repo)
	_, err := store.Add(ctx, line("p1", "Oud Wood", "25000", 2))
	require.NoError(t, err)

	repo.mu.Lock()
	repo.loadErr = errors.New("disk gone")
	repo.mu.Unlock()

	view, reloaded := store.Reload(ctx)
	require.False(t, reloaded)
	require.Len(t, view.Lines, 1)
}

// blockingLoadRepo останавливает Load, пока тест не откроет gate.
type blockingLoadRepo struct {
	*fakeSnapshotRepo
	entered chan struct{}
	gate    chan struct{}
	block   bool
}

func (r *blockingLoadRepo) Load(ctx context.Context, cartID string) ([]domain.CartLine, error) {
	if r.block {
		close(r.entered)
		<-r.gate
	}
	return r.fakeSnapshotRepo.Load(ctx, cartID)
}

func TestStore_ReloadDoesNotLoseConcurrentAdd(t *testing.T) {
	ctx := context.Background()
	repo := &blockingLoadRepo{
		fakeSnapshotRepo: newFakeSnapshotRepo(),
		entered:          make(chan struct{}),
		gate:             make(chan struct{}),
	}
	store := OpenStore(ctx, "device-1", repo)
	_, err := store.Add(ctx, line("a", "Oud Wood", "25000", 1))
	require.NoError(t, err)

	repo.block = true
	reloadDone := make(chan struct{})
	go func() {
		defer close(reloadDone)
		store.Reload(ctx)
	}()
	<-repo.entered

	addDone := make(chan error, 1)
	go func() {
		_, err := store.Add(ctx, line("b", "Bleu", "10000", 1))
		addDone <- err
	}()
	time.Sleep(20 * time.Millisecond)
	close(repo.gate)

	<-reloadDone
	require.NoError(t, <-addDone)
	repo.block = false

	_, err = store.Add(ctx, line("c", "Sauvage", "5000", 1))
	require.NoError(t, err)

	ids := func(lines []domain.CartLine) []string {
		out := make([]string, 0, len(lines))
		for _, l := range lines {
			out = append(out, l.ProductID)
		}
		return out
	}
	require.ElementsMatch(t, []string{"a", "b", "c"}, ids(store.Lines()))

	onDisk, err := repo.fakeSnapshotRepo.Load(ctx, "device-1")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a", "b", "c"}, ids(onDisk))
}

func TestStore_DispatchNilAction(t *testing.T) {
	store := OpenStore(context.Background(), "device-1", nil)
	_, err := store.Dispatch(context.Background(), nil)
	require.Error(t, err)
}

func TestStore_ConcurrentAdds(t *testing.T) {
	ctx := context.Background()
	store := OpenStore(ctx, "device-1", newFakeSnapshotRepo())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = store.Add(ctx, line("p1", "Oud Wood", "100", 1))
		}()
	}
	wg.Wait()

	require.Len(t, store.Lines(), 1)
	require.Equal(t, 50, store.Count())
	require.True(t, store.Total().Equal(decimal.NewFromInt(5000)))
}

func TestStore_ReloadOfCorruptSnapshotEmptiesCart(t *testing.T) {
	ctx := context.Background()
	repo := newFakeSnapshotRepo()
	var failures []string
	store := OpenStore(ctx, "device-1", repo, WithFailureHook(func(op string, _ error) {
		failures = append(failures, op)
	}))
	_, err := store.Add(ctx, line("p1", "Oud Wood", "25000", 2))
	require.NoError(t, err)

	repo.mu.Lock()
	repo.data["device-1"] = []byte("{oops")
	repo.mu.Unlock()

	view, reloaded := store.Reload(ctx)
	require.True(t, reloaded)
	require.Empty(t, view.Lines)
	require.Equal(t, []string{"load"}, failures)
}
