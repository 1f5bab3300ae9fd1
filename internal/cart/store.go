// Package cart содержит хранилище корзины покупателя и сервис, который
// владеет корзинами по их идентификаторам.
package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/spraynsniff/storefront/internal/domain"
	"github.com/spraynsniff/storefront/internal/notify"
)

// View — согласованный срез состояния корзины.
type View struct {
	CartID string            `json:"cart_id"`
	Lines  []domain.CartLine `json:"lines"`
	Total  decimal.Decimal   `json:"total"`
	Count  int               `json:"count"`
}

// Change описывает результат одного действия над корзиной.
type Change struct {
	Action    ActionType
	ProductID string
	// Changed=false означает, что действие оказалось no-op (например, удаление отсутствующего товара).
	Changed bool
	// Merged=true, если AddLine увеличил количество существующей позиции.
	Merged bool
	View   View
}

// Listener получает изменения корзины после каждой мутации.
type Listener func(Change)

// StoreOption настраивает Store.
type StoreOption func(*Store)

// WithNotifier задаёт получателя пользовательских уведомлений.
func WithNotifier(n notify.Notifier) StoreOption {
	return func(s *Store) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithStoreLogger задаёт logger хранилища.
func WithStoreLogger(logger *log.Entry) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithFailureHook задаёт колбэк для ошибок чтения ("load") и записи ("save") снапшота.
func WithFailureHook(fn func(op string, err error)) StoreOption {
	return func(s *Store) {
		s.onFailure = fn
	}
}

// Store — авторитетное представление одной корзины. После каждой мутации
// полный снапшот записывается в репозиторий; при создании корзина
// восстанавливается из снапшота.
type Store struct {
	id       string
	repo     domain.CartSnapshotRepository
	notifier notify.Notifier
	logger   *log.Entry
	// onFailure может быть nil.
	onFailure func(op string, err error)

	mu   sync.Mutex
	cart *domain.Cart
	// persisted — позиции, совпадающие со снапшотом в репозитории после
	// последнего успешного чтения или записи.
	persisted []domain.CartLine

	listenersMu sync.RWMutex
	listeners   map[int]Listener
	nextID      int
}

// OpenStore создаёт хранилище и заполняет его из снапшота.
// Отсутствующий или повреждённый снапшот даёт пустую корзину без ошибки.
func OpenStore(ctx context.Context, id string, repo domain.CartSnapshotRepository, opts ...StoreOption) *Store {
	s := &Store{
		id:        id,
		repo:      repo,
		notifier:  notify.Discard{},
		logger:    log.WithField("component", "cart-store"),
		listeners: make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithField("cart_id", id)
	lines, _ := s.loadSnapshot(ctx)
	s.cart = domain.NewCart(lines)
	s.persisted = lines
	return s
}

// ID возвращает идентификатор корзины.
func (s *Store) ID() string {
	return s.id
}

// Dispatch применяет действие, сохраняет снапшот и уведомляет подписчиков.
// Ошибка сохранения не откатывает состояние в памяти.
func (s *Store) Dispatch(ctx context.Context, action Action) (Change, error) {
	if action == nil {
		return Change{}, errors.New("cart action is nil")
	}

	s.mu.Lock()
	changed, merged := action.apply(s.cart)
	view := s.viewLocked()
	saveErr := s.persistLocked(ctx, view.Lines)
	s.mu.Unlock()

	change := Change{
		Action:    action.Type(),
		ProductID: action.productID(),
		Changed:   changed,
		Merged:    merged,
		View:      view,
	}

	if add, ok := action.(AddLine); ok && !merged {
		n := notify.Success(fmt.Sprintf("%s added to cart", add.Line.Name))
		n.CartID = s.id
		n.ProductID = add.Line.ProductID
		s.notifier.Notify(n)
	}

	s.emit(change)
	return change, saveErr
}

// Add добавляет позицию в корзину.
func (s *Store) Add(ctx context.Context, line domain.CartLine) (Change, error) {
	return s.Dispatch(ctx, AddLine{Line: line})
}

// Remove удаляет позицию; отсутствие товара не ошибка.
func (s *Store) Remove(ctx context.Context, productID string) (Change, error) {
	return s.Dispatch(ctx, RemoveLine{ProductID: productID})
}

// SetQuantity перезаписывает количество без валидации.
func (s *Store) SetQuantity(ctx context.Context, productID string, quantity int) (Change, error) {
	return s.Dispatch(ctx, SetLineQuantity{ProductID: productID, Quantity: quantity})
}

// Clear очищает корзину.
func (s *Store) Clear(ctx context.Context) (Change, error) {
	return s.Dispatch(ctx, ClearCart{})
}

// Reload перечитывает снапшот из репозитория (например, после записи другим процессом).
// Чтение и замена состояния идут под блокировкой корзины. Снапшот, совпадающий
// с последним записанным, и недоступное хранилище оставляют корзину как есть:
// тогда reloaded=false и подписчики не вызываются.
func (s *Store) Reload(ctx context.Context) (view View, reloaded bool) {
	s.mu.Lock()
	lines, err := s.loadSnapshot(ctx)
	if err != nil || sameLines(lines, s.persisted) {
		view = s.viewLocked()
		s.mu.Unlock()
		return view, false
	}
	s.cart = domain.NewCart(lines)
	s.persisted = lines
	view = s.viewLocked()
	s.mu.Unlock()

	s.emit(Change{Action: ActionReload, Changed: true, View: view})
	return view, true
}

// View возвращает текущее состояние корзины.
func (s *Store) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// Lines возвращает копию позиций.
func (s *Store) Lines() []domain.CartLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.Lines()
}

// Total пересчитывает сумму корзины.
func (s *Store) Total() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.Total()
}

// Count возвращает общее количество единиц товара.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.Count()
}

// Subscribe регистрирует слушателя и возвращает функцию отписки.
// Слушатели вызываются синхронно, вне блокировки корзины.
func (s *Store) Subscribe(fn Listener) func() {
	if fn == nil {
		return func() {}
	}

	s.listenersMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.listenersMu.Unlock()

	return func() {
		s.listenersMu.Lock()
		delete(s.listeners, id)
		s.listenersMu.Unlock()
	}
}

func (s *Store) emit(change Change) {
	s.listenersMu.RLock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.listenersMu.RUnlock()

	for _, fn := range listeners {
		fn(change)
	}
}

func (s *Store) viewLocked() View {
	return View{
		CartID: s.id,
		Lines:  s.cart.Lines(),
		Total:  s.cart.Total(),
		Count:  s.cart.Count(),
	}
}

func (s *Store) persistLocked(ctx context.Context, lines []domain.CartLine) error {
	if s.repo == nil {
		return nil
	}
	if err := s.repo.Save(ctx, s.id, lines); err != nil {
		s.logger.WithError(err).Warn("failed to save cart snapshot")
		s.reportFailure("save", err)
		return fmt.Errorf("save cart %s snapshot: %w", s.id, err)
	}
	s.persisted = append([]domain.CartLine(nil), lines...)
	return nil
}

// loadSnapshot читает снапшот корзины. Отсутствующий или повреждённый снапшот
// даёт пустую корзину; ошибка возвращается только при недоступном хранилище.
func (s *Store) loadSnapshot(ctx context.Context) ([]domain.CartLine, error) {
	if s.repo == nil {
		return nil, nil
	}

	lines, err := s.repo.Load(ctx, s.id)
	switch {
	case err == nil:
		return lines, nil
	case errors.Is(err, domain.ErrSnapshotNotFound):
		return nil, nil
	case domain.IsSnapshotMissing(err):
		s.logger.WithError(err).Warn("cart snapshot is corrupt, starting with empty cart")
		s.reportFailure("load", err)
		return nil, nil
	default:
		s.logger.WithError(err).Warn("cart snapshot unreadable")
		s.reportFailure("load", err)
		return nil, err
	}
}

func sameLines(a, b []domain.CartLine) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		x, y := a[i], b[i]
		if x.ProductID != y.ProductID || x.Name != y.Name || x.ImageURL != y.ImageURL ||
			x.Quantity != y.Quantity || !x.Price.Equal(y.Price) {
			return false
		}
	}
	return true
}

func (s *Store) reportFailure(op string, err error) {
	if s.onFailure != nil {
		s.onFailure(op, err)
	}
}
