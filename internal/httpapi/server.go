// Package httpapi публикует корзины, оформление заказа, уведомления и
// прокси заявок по HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/spraynsniff/storefront/internal/backend"
	"github.com/spraynsniff/storefront/internal/cart"
	"github.com/spraynsniff/storefront/internal/checkout"
	"github.com/spraynsniff/storefront/internal/domain"
	"github.com/spraynsniff/storefront/internal/notify"
)

// RequestIDHeader — заголовок с идентификатором запроса.
const RequestIDHeader = "X-Request-ID"

// Carts — операции над корзинами.
type Carts interface {
	View(ctx context.Context, cartID string) (cart.View, error)
	Add(ctx context.Context, cartID string, line domain.CartLine) (cart.Change, error)
	Remove(ctx context.Context, cartID, productID string) (cart.Change, error)
	SetQuantity(ctx context.Context, cartID, productID string, quantity int) (cart.Change, error)
	Clear(ctx context.Context, cartID string) (cart.Change, error)
}

// Checkout — оформление и подтверждение заказа.
type Checkout interface {
	Checkout(ctx context.Context, req checkout.Request) (checkout.Result, error)
	Finalize(ctx context.Context, cartID, reference, session string) (backend.FinalizeResult, error)
	State(cartID string) backend.TrackerSnapshot
}

// Deps — зависимости HTTP API. Nil-зависимости отключают соответствующие маршруты.
type Deps struct {
	Carts         Carts
	Checkout      Checkout
	Notifications *notify.Broadcaster
	Submissions   http.Handler
	Logger        *log.Entry
}

// Server — обработчики HTTP API.
type Server struct {
	carts         Carts
	checkout      Checkout
	notifications *notify.Broadcaster
	logger        *log.Entry
}

// NewRouter собирает маршруты HTTP API.
func NewRouter(deps Deps) *mux.Router {
	logger := deps.Logger
	if logger == nil {
		logger = log.WithField("component", "http-api")
	}
	s := &Server{
		carts:         deps.Carts,
		checkout:      deps.Checkout,
		notifications: deps.Notifications,
		logger:        logger,
	}

	router := mux.NewRouter()
	router.Use(s.requestID, s.logRequests)

	api := router.PathPrefix("/api").Subrouter()
	if s.carts != nil {
		carts := api.PathPrefix("/cart/{cartID}").Subrouter()
		carts.HandleFunc("", s.getCart).Methods(http.MethodGet)
		carts.HandleFunc("", s.clearCart).Methods(http.MethodDelete)
		carts.HandleFunc("/items", s.addItem).Methods(http.MethodPost)
		carts.HandleFunc("/items/{productID}", s.setQuantity).Methods(http.MethodPut)
		carts.HandleFunc("/items/{productID}", s.removeItem).Methods(http.MethodDelete)
		if s.checkout != nil {
			carts.HandleFunc("/checkout", s.startCheckout).Methods(http.MethodPost)
			carts.HandleFunc("/checkout", s.checkoutState).Methods(http.MethodGet)
			carts.HandleFunc("/finalize", s.finalize).Methods(http.MethodPost)
		}
	}
	if s.notifications != nil {
		api.HandleFunc("/notifications", s.streamNotifications).Methods(http.MethodGet)
	}
	if deps.Submissions != nil {
		api.Handle("/submissions", deps.Submissions)
	}

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return router
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush нужен потоку уведомлений.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		entry := s.logger.WithFields(log.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     rec.status,
			"duration":   time.Since(start),
			"request_id": w.Header().Get(RequestIDHeader),
		})
		if rec.status >= http.StatusInternalServerError {
			entry.Warn("request failed")
			return
		}
		entry.Debug("request handled")
	})
}

type errorBody struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Status: "error", Error: message})
}
