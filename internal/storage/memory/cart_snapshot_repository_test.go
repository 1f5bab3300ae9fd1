package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/spraynsniff/storefront/internal/domain"
)

func TestCartSnapshotRepository_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	repo := NewCartSnapshotRepository()

	if _, err := repo.Load(ctx, "device-1"); !errors.Is(err, domain.ErrSnapshotNotFound) {
		t.Fatalf("expected ErrSnapshotNotFound, got %v", err)
	}

	lines := []domain.CartLine{{
		ProductID: "p1",
		Name:      "Oud Wood",
		Price:     decimal.RequireFromString("25000.50"),
		Quantity:  2,
	}}
	if err := repo.Save(ctx, "device-1", lines); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := repo.Load(ctx, "device-1")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(got) != 1 || got[0].Quantity != 2 || !got[0].Price.Equal(lines[0].Price) {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
}

func TestCartSnapshotRepository_CorruptSnapshot(t *testing.T) {
	repo := NewCartSnapshotRepository()
	repo.Put("device-1", []byte("not json"))

	if _, err := repo.Load(context.Background(), "device-1"); !errors.Is(err, domain.ErrSnapshotCorrupt) {
		t.Fatalf("expected ErrSnapshotCorrupt, got %v", err)
	}
}
