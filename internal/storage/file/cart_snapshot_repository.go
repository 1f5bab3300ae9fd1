// Package file хранит снапшоты корзин в JSON-файлах на локальном диске:
// один файл на корзину, запись атомарная через временный файл.
package file

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spraynsniff/storefront/internal/domain"
)

const snapshotExt = ".json"

// CartSnapshotRepository реализует domain.CartSnapshotRepository поверх каталога.
type CartSnapshotRepository struct {
	dir string
}

// NewCartSnapshotRepository создаёт репозиторий и каталог dir при необходимости.
func NewCartSnapshotRepository(dir string) (*CartSnapshotRepository, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("snapshot directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}
	return &CartSnapshotRepository{dir: dir}, nil
}

// Dir возвращает каталог со снапшотами.
func (r *CartSnapshotRepository) Dir() string {
	return r.dir
}

// Load читает снапшот корзины.
func (r *CartSnapshotRepository) Load(ctx context.Context, cartID string) ([]domain.CartLine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(r.path(cartID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("read cart snapshot: %w", err)
	}
	return domain.UnmarshalLines(raw)
}

// Save атомарно перезаписывает снапшот корзины.
func (r *CartSnapshotRepository) Save(ctx context.Context, cartID string, lines []domain.CartLine) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := domain.MarshalLines(lines)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(r.dir, ".cart-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmpName, r.path(cartID)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace cart snapshot: %w", err)
	}
	return nil
}

func (r *CartSnapshotRepository) path(cartID string) string {
	return filepath.Join(r.dir, FileName(cartID))
}

// FileName возвращает имя файла снапшота для корзины.
func FileName(cartID string) string {
	return url.PathEscape(cartID) + snapshotExt
}

// CartIDFromPath восстанавливает идентификатор корзины из пути к файлу снапшота.
func CartIDFromPath(path string) (string, bool) {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, snapshotExt) {
		return "", false
	}
	id, err := url.PathUnescape(strings.TrimSuffix(name, snapshotExt))
	if err != nil || id == "" {
		return "", false
	}
	return id, true
}

var _ domain.CartSnapshotRepository = (*CartSnapshotRepository)(nil)
