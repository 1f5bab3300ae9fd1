// Package checkout оформляет заказ из локальной корзины через внешний API:
// синхронизация корзины, создание заказа и подтверждение оплаты.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/spraynsniff/storefront/internal/backend"
	"github.com/spraynsniff/storefront/internal/cart"
	"github.com/spraynsniff/storefront/internal/domain"
	"github.com/spraynsniff/storefront/internal/metrics"
)

// ErrCheckoutFailed возвращается, если API не объяснил причину отказа.
var ErrCheckoutFailed = errors.New("checkout failed")

// Carts — операции над корзинами, нужные оформлению заказа.
type Carts interface {
	View(ctx context.Context, cartID string) (cart.View, error)
	Clear(ctx context.Context, cartID string) (cart.Change, error)
}

// Request — данные формы оформления заказа.
type Request struct {
	CartID  string                  `json:"cart_id"`
	Address backend.DeliveryAddress `json:"delivery_address"`
	Phone   string                  `json:"phone"`
	// Session — cookie сессии внешнего API; без неё заказ оформить нельзя.
	Session string `json:"-"`
}

// Result — созданный заказ.
type Result struct {
	OrderID string          `json:"order_id"`
	Total   decimal.Decimal `json:"total"`
	// AuthorizationURL пуст, если оплата не требуется.
	AuthorizationURL string `json:"authorization_url,omitempty"`
	Reference        string `json:"reference,omitempty"`
}

// Service выполняет оформление и подтверждение заказа.
type Service struct {
	carts   Carts
	client  *backend.Client
	metrics *metrics.CartMetrics
	logger  *log.Entry

	mu       sync.Mutex
	trackers map[string]*backend.Tracker
}

// NewService создаёт сервис оформления заказа.
func NewService(carts Carts, client *backend.Client, m *metrics.CartMetrics, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "checkout")
	}
	return &Service{
		carts:    carts,
		client:   client,
		metrics:  m,
		logger:   logger,
		trackers: make(map[string]*backend.Tracker),
	}
}

// Checkout синхронизирует корзину с API, создаёт заказ и очищает корзину.
// Повторный вызов для той же корзины до завершения первого возвращает backend.ErrInFlight.
func (s *Service) Checkout(ctx context.Context, req Request) (Result, error) {
	cartID := strings.TrimSpace(req.CartID)
	if cartID == "" {
		return Result{}, domain.ErrCartIDRequired
	}
	if req.Session == "" {
		return Result{}, domain.ErrUnauthorized
	}

	var result Result
	err := s.tracker(cartID).Do(ctx, func(ctx context.Context) error {
		var err error
		result, err = s.checkout(ctx, cartID, req)
		return err
	})
	return result, err
}

func (s *Service) checkout(ctx context.Context, cartID string, req Request) (Result, error) {
	view, err := s.carts.View(ctx, cartID)
	if err != nil {
		return Result{}, err
	}
	if len(view.Lines) == 0 {
		return Result{}, domain.ErrCartEmpty
	}

	client := s.client.Session(req.Session)

	items := make([]backend.SyncItem, 0, len(view.Lines))
	for _, line := range view.Lines {
		items = append(items, backend.SyncItem{Product: line.ProductID, Quantity: line.Quantity})
	}
	if _, err := client.SyncCart(ctx, items); err != nil {
		return Result{}, checkoutError("sync cart", err)
	}

	created, err := client.Checkout(ctx, backend.CheckoutRequest{
		DeliveryAddress: req.Address,
		Phone:           req.Phone,
		SaveAddress:     true,
	})
	if err != nil {
		return Result{}, checkoutError("create order", err)
	}

	if _, err := s.carts.Clear(ctx, cartID); err != nil {
		// Заказ уже создан: ошибка записи снапшота не отменяет оформление.
		s.logger.WithError(err).WithField("cart_id", cartID).Warn("failed to persist cleared cart after checkout")
	}

	total, _ := view.Total.Float64()
	s.metrics.RecordCheckoutTotal(total)

	result := Result{OrderID: created.Order.ID, Total: view.Total}
	if created.Payment != nil {
		result.AuthorizationURL = created.Payment.AuthorizationURL
		result.Reference = created.Payment.Reference
	}

	s.logger.WithFields(log.Fields{
		"cart_id":  cartID,
		"order_id": result.OrderID,
		"lines":    len(items),
	}).Info("order created")
	return result, nil
}

// Finalize подтверждает оплату и очищает корзину, если API сообщил об успехе.
func (s *Service) Finalize(ctx context.Context, cartID, reference, session string) (backend.FinalizeResult, error) {
	cartID = strings.TrimSpace(cartID)
	if cartID == "" {
		return backend.FinalizeResult{}, domain.ErrCartIDRequired
	}
	if strings.TrimSpace(reference) == "" {
		return backend.FinalizeResult{}, errors.New("payment reference is required")
	}

	client := s.client
	if session != "" {
		client = client.Session(session)
	}

	res, err := client.FinalizeOrder(ctx, reference)
	if err != nil {
		return backend.FinalizeResult{}, fmt.Errorf("finalize order: %w", err)
	}
	if !res.Success {
		return res, nil
	}

	if _, err := s.carts.Clear(ctx, cartID); err != nil {
		s.logger.WithError(err).WithField("cart_id", cartID).Warn("failed to persist cleared cart after payment")
	}
	return res, nil
}

// State возвращает состояние последнего оформления заказа корзины.
func (s *Service) State(cartID string) backend.TrackerSnapshot {
	return s.tracker(strings.TrimSpace(cartID)).Snapshot()
}

func (s *Service) tracker(cartID string) *backend.Tracker {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.trackers[cartID]
	if !ok {
		t = backend.NewTracker()
		s.trackers[cartID] = t
	}
	return t
}

// checkoutError сохраняет сообщение API, если оно есть.
func checkoutError(step string, err error) error {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return fmt.Errorf("%s: %w", step, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%s: %w: %v", step, ErrCheckoutFailed, err)
}
