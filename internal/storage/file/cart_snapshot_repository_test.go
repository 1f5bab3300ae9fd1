package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/spraynsniff/storefront/internal/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestCartSnapshotRepository_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	repo, err := NewCartSnapshotRepository(t.TempDir())
	require.NoError(t, err)

	_, err = repo.Load(ctx, "device-1")
	require.ErrorIs(t, err, domain.ErrSnapshotNotFound)

	lines := []domain.CartLine{{
		ProductID: "p1",
		Name:      "Oud Wood",
		Price:     decimal.RequireFromString("25000.50"),
		ImageURL:  "/img/p1.jpg",
		Quantity:  2,
	}}
	require.NoError(t, repo.Save(ctx, "device-1", lines))

	got, err := repo.Load(ctx, "device-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "Oud Wood", got[0].Name)
	require.True(t, got[0].Price.Equal(lines[0].Price))

	require.NoError(t, repo.Save(ctx, "device-1", nil))
	raw, err := os.ReadFile(filepath.Join(repo.Dir(), "device-1.json"))
	require.NoError(t, err)
	require.Equal(t, "[]", string(raw))
}

func TestCartSnapshotRepository_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	repo, err := NewCartSnapshotRepository(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "device-1.json"), []byte("{oops"), 0o644))

	_, err = repo.Load(context.Background(), "device-1")
	require.ErrorIs(t, err, domain.ErrSnapshotCorrupt)
}

func TestCartSnapshotRepository_RequiresDir(t *testing.T) {
	_, err := NewCartSnapshotRepository("  ")
	require.Error(t, err)
}

func TestFileNameRoundTrip(t *testing.T) {
	for _, id := range []string{"device-1", "user/42", "session id"} {
		name := FileName(id)
		require.NotContains(t, name, "/")

		got, ok := CartIDFromPath(filepath.Join("/tmp/carts", name))
		require.True(t, ok)
		require.Equal(t, id, got)
	}

	_, ok := CartIDFromPath("/tmp/carts/.cart-123.tmp")
	require.False(t, ok)
	_, ok = CartIDFromPath("/tmp/carts/readme.txt")
	require.False(t, ok)
}
