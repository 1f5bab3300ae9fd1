package domain

import "errors"

var (
	// ErrCartIDRequired возвращается, если идентификатор корзины пустой.
	ErrCartIDRequired = errors.New("cart_id is required")
	// ErrCartEmpty — попытка оформить заказ из пустой корзины.
	ErrCartEmpty = errors.New("cart is empty")
	// ErrSnapshotNotFound — снапшот корзины ещё ни разу не сохранялся.
	ErrSnapshotNotFound = errors.New("cart snapshot not found")
	// ErrSnapshotCorrupt — сохранённый снапшот не удалось разобрать.
	ErrSnapshotCorrupt = errors.New("cart snapshot is corrupt")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
	// ErrUnauthorized — внешний API ответил 401, сессия истекла или отсутствует.
	ErrUnauthorized = errors.New("unauthorized")
)

// IsSnapshotMissing проверяет, что снапшот отсутствует или повреждён.
// Оба случая трактуются как пустая корзина.
func IsSnapshotMissing(err error) bool {
	return errors.Is(err, ErrSnapshotNotFound) || errors.Is(err, ErrSnapshotCorrupt)
}
