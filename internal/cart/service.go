package cart

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/spraynsniff/storefront/internal/domain"
	"github.com/spraynsniff/storefront/internal/metrics"
	"github.com/spraynsniff/storefront/internal/notify"
)

// AggregateType — тип агрегата в outbox-сообщениях корзины.
const AggregateType = "cart"

// Типы событий корзины в outbox.
const (
	EventLineAdded   = "cart.line_added"
	EventLineRemoved = "cart.line_removed"
	EventQuantitySet = "cart.quantity_set"
	EventCleared     = "cart.cleared"
)

// Event — полезная нагрузка outbox-сообщения корзины.
type Event struct {
	CartID     string    `json:"cart_id"`
	Action     string    `json:"action"`
	ProductID  string    `json:"product_id,omitempty"`
	Quantity   int       `json:"quantity"`
	Lines      int       `json:"lines"`
	Total      string    `json:"total"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ServiceOptions задаёт зависимости сервиса корзин.
type ServiceOptions struct {
	Logger   *log.Entry
	Notifier notify.Notifier
	Outbox   domain.OutboxRepository
	Metrics  *metrics.CartMetrics
}

// Option настраивает Service.
type Option func(*ServiceOptions)

// WithLogger задаёт logger сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(opts *ServiceOptions) {
		opts.Logger = logger
	}
}

// WithServiceNotifier задаёт получателя уведомлений для всех корзин.
func WithServiceNotifier(n notify.Notifier) Option {
	return func(opts *ServiceOptions) {
		opts.Notifier = n
	}
}

// WithOutbox включает запись событий корзины в transactional outbox.
func WithOutbox(repo domain.OutboxRepository) Option {
	return func(opts *ServiceOptions) {
		opts.Outbox = repo
	}
}

// WithMetrics задаёт метрики корзин.
func WithMetrics(m *metrics.CartMetrics) Option {
	return func(opts *ServiceOptions) {
		opts.Metrics = m
	}
}

// Service владеет корзинами по идентификатору (устройство или сессия)
// и лениво поднимает их из снапшотов.
type Service struct {
	repo     domain.CartSnapshotRepository
	outbox   domain.OutboxRepository
	notifier notify.Notifier
	metrics  *metrics.CartMetrics
	logger   *log.Entry

	mu     sync.Mutex
	stores map[string]*Store
}

// NewService создаёт сервис корзин поверх репозитория снапшотов.
func NewService(repo domain.CartSnapshotRepository, options ...Option) *Service {
	var opts ServiceOptions
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "cart-service")
	}
	var notifier notify.Notifier = notify.Discard{}
	if opts.Notifier != nil {
		notifier = opts.Notifier
	}

	return &Service{
		repo:     repo,
		outbox:   opts.Outbox,
		notifier: notifier,
		metrics:  opts.Metrics,
		logger:   logger,
		stores:   make(map[string]*Store),
	}
}

// Store возвращает хранилище корзины, при первом обращении восстанавливая его из снапшота.
func (s *Service) Store(ctx context.Context, cartID string) (*Store, error) {
	cartID = strings.TrimSpace(cartID)
	if cartID == "" {
		return nil, domain.ErrCartIDRequired
	}

	s.mu.Lock()
	store, ok := s.stores[cartID]
	s.mu.Unlock()
	if ok {
		return store, nil
	}

	opened := OpenStore(ctx, cartID, s.repo,
		WithNotifier(notify.Multi{s.notifier, notificationCounter{metrics: s.metrics}}),
		WithStoreLogger(s.logger),
		WithFailureHook(func(op string, _ error) { s.metrics.RecordSnapshotFailure(op) }),
	)

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.stores[cartID]; ok {
		return existing, nil
	}
	opened.Subscribe(s.onChange)
	s.stores[cartID] = opened
	s.metrics.SetLoadedCarts(len(s.stores))
	return opened, nil
}

// Add добавляет позицию в корзину cartID.
func (s *Service) Add(ctx context.Context, cartID string, line domain.CartLine) (Change, error) {
	return s.dispatch(ctx, cartID, AddLine{Line: line})
}

// Remove удаляет позицию из корзины cartID.
func (s *Service) Remove(ctx context.Context, cartID, productID string) (Change, error) {
	return s.dispatch(ctx, cartID, RemoveLine{ProductID: productID})
}

// SetQuantity перезаписывает количество позиции корзины cartID.
func (s *Service) SetQuantity(ctx context.Context, cartID, productID string, quantity int) (Change, error) {
	return s.dispatch(ctx, cartID, SetLineQuantity{ProductID: productID, Quantity: quantity})
}

// Clear очищает корзину cartID.
func (s *Service) Clear(ctx context.Context, cartID string) (Change, error) {
	return s.dispatch(ctx, cartID, ClearCart{})
}

// View возвращает состояние корзины cartID.
func (s *Service) View(ctx context.Context, cartID string) (View, error) {
	store, err := s.Store(ctx, cartID)
	if err != nil {
		return View{}, err
	}
	return store.View(), nil
}

// Reload перечитывает снапшот уже поднятой корзины и сообщает, изменилось ли
// её состояние. Незагруженные корзины пропускаются: они прочитают свежий
// снапшот при первом обращении. Собственная запись сервиса не считается изменением.
func (s *Service) Reload(ctx context.Context, cartID string) bool {
	s.mu.Lock()
	store, ok := s.stores[cartID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	_, reloaded := store.Reload(ctx)
	return reloaded
}

// Loaded возвращает отсортированный список корзин в памяти.
func (s *Service) Loaded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.stores))
	for id := range s.stores {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Service) dispatch(ctx context.Context, cartID string, action Action) (Change, error) {
	store, err := s.Store(ctx, cartID)
	if err != nil {
		return Change{}, err
	}
	return store.Dispatch(ctx, action)
}

func (s *Service) onChange(change Change) {
	if change.Action == ActionReload {
		return
	}
	s.metrics.RecordMutation(string(change.Action))

	if s.outbox == nil {
		return
	}

	event := Event{
		CartID:     change.View.CartID,
		Action:     string(change.Action),
		ProductID:  change.ProductID,
		Lines:      len(change.View.Lines),
		Total:      change.View.Total.String(),
		OccurredAt: time.Now().UTC(),
	}
	for _, line := range change.View.Lines {
		if line.ProductID == change.ProductID {
			event.Quantity = line.Quantity
			break
		}
	}

	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.WithError(err).Warn("failed to marshal cart event")
		return
	}

	if _, err := s.outbox.Enqueue(domain.OutboxMessage{
		AggregateType: AggregateType,
		AggregateID:   change.View.CartID,
		EventType:     eventTypeFor(change.Action),
		Payload:       payload,
	}); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"cart_id": change.View.CartID,
			"action":  change.Action,
		}).Warn("failed to enqueue cart event")
	}
}

func eventTypeFor(action ActionType) string {
	switch action {
	case ActionAdd:
		return EventLineAdded
	case ActionRemove:
		return EventLineRemoved
	case ActionSetQuantity:
		return EventQuantitySet
	case ActionClear:
		return EventCleared
	default:
		return "cart." + string(action)
	}
}

// notificationCounter считает уведомления в метриках.
type notificationCounter struct {
	metrics *metrics.CartMetrics
}

func (c notificationCounter) Notify(n notify.Notification) {
	c.metrics.RecordNotification(string(n.Level))
}
