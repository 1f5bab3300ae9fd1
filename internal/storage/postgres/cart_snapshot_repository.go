package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/spraynsniff/storefront/internal/domain"
)

// CartSnapshotRepository хранит снапшоты корзин в таблице cart_snapshots (JSONB).
type CartSnapshotRepository struct {
	db *sql.DB
}

// NewCartSnapshotRepository создаёт PostgreSQL-реализацию CartSnapshotRepository.
func NewCartSnapshotRepository(store *Store) *CartSnapshotRepository {
	return &CartSnapshotRepository{db: store.DB()}
}

// Load возвращает позиции корзины или ErrSnapshotNotFound.
func (r *CartSnapshotRepository) Load(ctx context.Context, cartID string) ([]domain.CartLine, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var raw []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT lines FROM cart_snapshots WHERE cart_id = $1`, cartID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load cart snapshot: %w", err)
	}
	return domain.UnmarshalLines(raw)
}

// Save перезаписывает снапшот корзины (upsert).
func (r *CartSnapshotRepository) Save(ctx context.Context, cartID string, lines []domain.CartLine) error {
	raw, err := domain.MarshalLines(lines)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO cart_snapshots (cart_id, lines, line_count, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (cart_id) DO UPDATE
		SET lines = EXCLUDED.lines,
		    line_count = EXCLUDED.line_count,
		    updated_at = EXCLUDED.updated_at
	`, cartID, raw, len(lines), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save cart snapshot: %w", err)
	}
	return nil
}

var _ domain.CartSnapshotRepository = (*CartSnapshotRepository)(nil)
