package backend

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"
)

// SyncItem — позиция корзины в запросе синхронизации.
type SyncItem struct {
	Product  string `json:"product"`
	Quantity int    `json:"quantity"`
}

// DeliveryAddress — адрес доставки заказа.
type DeliveryAddress struct {
	Street string `json:"street"`
	City   string `json:"city"`
	State  string `json:"state"`
}

// CheckoutRequest — тело POST /orders/checkout.
type CheckoutRequest struct {
	DeliveryAddress DeliveryAddress `json:"deliveryAddress"`
	Phone           string          `json:"phone"`
	SaveAddress     bool            `json:"saveAddress"`
}

// CheckoutResult — созданный заказ и данные платежа.
type CheckoutResult struct {
	Order   Order          `json:"order"`
	Payment *PaymentIntent `json:"payment,omitempty"`
}

// PaymentIntent — ссылка на оплату от платёжного шлюза.
type PaymentIntent struct {
	Reference        string `json:"reference,omitempty"`
	AuthorizationURL string `json:"authorization_url,omitempty"`
}

// OrderItem — позиция заказа.
type OrderItem struct {
	Product struct {
		Name     string          `json:"name"`
		ImageURL string          `json:"imageUrl"`
		Price    decimal.Decimal `json:"price"`
	} `json:"product"`
	Quantity int `json:"quantity"`
}

// Order — заказ в представлении API.
type Order struct {
	ID              string           `json:"_id"`
	Items           []OrderItem      `json:"items,omitempty"`
	Total           decimal.Decimal  `json:"total"`
	Status          string           `json:"status,omitempty"`
	CreatedAt       string           `json:"createdAt,omitempty"`
	DeliveryAddress *DeliveryAddress `json:"deliveryAddress,omitempty"`
	Payment         *PaymentIntent   `json:"payment,omitempty"`
}

// FinalizeResult — ответ подтверждения оплаты.
type FinalizeResult struct {
	Success bool
	Message string
}

// SyncCart заменяет серверную корзину пользователя переданными позициями.
func (c *Client) SyncCart(ctx context.Context, items []SyncItem) (*Envelope, error) {
	if items == nil {
		items = []SyncItem{}
	}
	return c.do(ctx, call{
		method:   http.MethodPost,
		path:     "/api/v1/cart/sync",
		endpoint: "POST /api/v1/cart/sync",
		body:     map[string]any{"items": items},
	})
}

// Checkout оформляет заказ из серверной корзины.
func (c *Client) Checkout(ctx context.Context, req CheckoutRequest) (CheckoutResult, error) {
	env, err := c.do(ctx, call{
		method:   http.MethodPost,
		path:     "/api/v1/orders/checkout",
		endpoint: "POST /api/v1/orders/checkout",
		body:     req,
	})
	if err != nil {
		return CheckoutResult{}, err
	}
	var result CheckoutResult
	if err := env.DecodeData(&result); err != nil {
		return CheckoutResult{}, err
	}
	return result, nil
}

// FinalizeOrder подтверждает оплату по reference платёжного шлюза.
func (c *Client) FinalizeOrder(ctx context.Context, reference string) (FinalizeResult, error) {
	env, err := c.do(ctx, call{
		method:   http.MethodPost,
		path:     "/api/v1/orders/finalize",
		endpoint: "POST /api/v1/orders/finalize",
		body:     map[string]string{"reference": reference},
	})
	if err != nil {
		return FinalizeResult{}, err
	}
	return FinalizeResult{Success: env.Success, Message: env.Message}, nil
}

// ListOrders возвращает все заказы (админка).
func (c *Client) ListOrders(ctx context.Context, page, limit int) ([]Order, *Pagination, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	env, err := c.do(ctx, call{
		method:   http.MethodGet,
		path:     "/api/v1/orders",
		endpoint: "GET /api/v1/orders",
		query:    q,
	})
	if err != nil {
		return nil, nil, err
	}
	orders, err := decodeList[Order](env)
	return orders, env.Pagination, err
}

// MyOrders возвращает заказы текущего пользователя.
func (c *Client) MyOrders(ctx context.Context) ([]Order, error) {
	env, err := c.do(ctx, call{
		method:   http.MethodGet,
		path:     "/api/v1/orders/user",
		endpoint: "GET /api/v1/orders/user",
	})
	if err != nil {
		return nil, err
	}
	return decodeList[Order](env)
}

// GetOrder возвращает заказ по идентификатору.
func (c *Client) GetOrder(ctx context.Context, id string) (Order, error) {
	env, err := c.do(ctx, call{
		method:   http.MethodGet,
		path:     "/api/v1/orders/" + url.PathEscape(id),
		endpoint: "GET /api/v1/orders/{id}",
	})
	if err != nil {
		return Order{}, err
	}
	var order Order
	if err := env.DecodeData(&order); err != nil {
		return Order{}, err
	}
	return order, nil
}

// UpdateOrderStatus меняет статус заказа (админка).
func (c *Client) UpdateOrderStatus(ctx context.Context, id, status string) (*Envelope, error) {
	return c.do(ctx, call{
		method:   http.MethodPatch,
		path:     "/api/v1/orders/" + url.PathEscape(id) + "/status",
		endpoint: "PATCH /api/v1/orders/{id}/status",
		body:     map[string]string{"status": status},
	})
}
