package file

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/spraynsniff/storefront/internal/domain"
)

type reloadRecorder struct {
	mu  sync.Mutex
	ids []string
}

func (r *reloadRecorder) reload(_ context.Context, cartID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, cartID)
}

func (r *reloadRecorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

func TestWatcher_ReportsSnapshotWrites(t *testing.T) {
	dir := t.TempDir()
	repo, err := NewCartSnapshotRepository(dir)
	require.NoError(t, err)

	rec := &reloadRecorder{}
	w, err := NewWatcher(dir, rec.reload, WithDebounce(20*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer func() { require.NoError(t, w.Close()) }()

	lines := []domain.CartLine{{ProductID: "p1", Name: "Musk", Price: decimal.NewFromInt(100), Quantity: 1}}
	require.NoError(t, repo.Save(ctx, "device-7", lines))

	require.Eventually(t, func() bool {
		for _, id := range rec.seen() {
			if id == "device-7" {
				return true
			}
		}
		return false
	}, 3*time.Second, 20*time.Millisecond)

	for _, id := range rec.seen() {
		require.Equal(t, "device-7", id)
	}
}

func TestWatcher_IgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	rec := &reloadRecorder{}
	w, err := NewWatcher(dir, rec.reload, WithDebounce(10*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".cart-123.tmp"), []byte("[]"), 0o600))

	time.Sleep(150 * time.Millisecond)
	require.NoError(t, w.Close())
	require.Empty(t, rec.seen())
}

func TestWatcher_RequiresCallback(t *testing.T) {
	_, err := NewWatcher(t.TempDir(), nil)
	require.Error(t, err)
}

func TestWatcher_StartFailsOnMissingDir(t *testing.T) {
	w, err := NewWatcher(filepath.Join(t.TempDir(), "missing"), func(context.Context, string) {})
	require.NoError(t, err)

	require.Error(t, w.Start(context.Background()))
	require.NoError(t, w.Close())
}

func TestCartIDFromPath(t *testing.T) {
	tests := []struct {
		path string
		id   string
		ok   bool
	}{
		{path: "/data/device-1.json", id: "device-1", ok: true},
		{path: "/data/a%2Fb.json", id: "a/b", ok: true},
		{path: "/data/.cart-1.tmp", ok: false},
		{path: "/data/readme.md", ok: false},
		{path: "/data/.json", ok: false},
	}

	for _, tt := range tests {
		id, ok := CartIDFromPath(tt.path)
		if ok != tt.ok || id != tt.id {
			t.Errorf("CartIDFromPath(%q) = (%q, %v), want (%q, %v)", tt.path, id, ok, tt.id, tt.ok)
		}
	}
}
