// Package memory содержит in-memory реализации репозиториев для локальной разработки и тестов.
package memory

import (
	"context"
	"sync"

	"github.com/spraynsniff/storefront/internal/domain"
)

// CartSnapshotRepository хранит снапшоты корзин в памяти процесса.
// Снапшот хранится в сериализованном виде, как и в остальных драйверах.
type CartSnapshotRepository struct {
	mu    sync.RWMutex
	items map[string][]byte
}

// NewCartSnapshotRepository возвращает пустой in-memory репозиторий снапшотов.
func NewCartSnapshotRepository() *CartSnapshotRepository {
	return &CartSnapshotRepository{items: make(map[string][]byte)}
}

// Load возвращает позиции корзины или ErrSnapshotNotFound.
func (r *CartSnapshotRepository) Load(_ context.Context, cartID string) ([]domain.CartLine, error) {
	r.mu.RLock()
	raw, ok := r.items[cartID]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.ErrSnapshotNotFound
	}
	return domain.UnmarshalLines(raw)
}

// Save перезаписывает снапшот корзины.
func (r *CartSnapshotRepository) Save(_ context.Context, cartID string, lines []domain.CartLine) error {
	raw, err := domain.MarshalLines(lines)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.items[cartID] = raw
	r.mu.Unlock()
	return nil
}

// Put кладёт сырые байты снапшота как есть (удобно для проверки повреждённых данных).
func (r *CartSnapshotRepository) Put(cartID string, raw []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[cartID] = append([]byte(nil), raw...)
}

var _ domain.CartSnapshotRepository = (*CartSnapshotRepository)(nil)
