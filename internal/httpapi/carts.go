package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/spraynsniff/storefront/internal/backend"
	"github.com/spraynsniff/storefront/internal/cart"
	"github.com/spraynsniff/storefront/internal/checkout"
	"github.com/spraynsniff/storefront/internal/domain"
)

const maxRequestBody = 1 << 20

// cartResponse — состояние корзины; Warning заполняется, если снапшот не записан.
type cartResponse struct {
	cart.View
	Warning string `json:"warning,omitempty"`
}

type addItemRequest struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	ImageURL  string          `json:"imageUrl"`
	Quantity  *int            `json:"quantity"`
}

type setQuantityRequest struct {
	Quantity *int `json:"quantity"`
}

type checkoutRequest struct {
	Street string `json:"street"`
	City   string `json:"city"`
	State  string `json:"state"`
	Phone  string `json:"phone"`
}

type finalizeRequest struct {
	Reference string `json:"reference"`
}

func (s *Server) getCart(w http.ResponseWriter, r *http.Request) {
	view, err := s.carts.View(r.Context(), mux.Vars(r)["cartID"])
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cartResponse{View: view})
}

func (s *Server) addItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ProductID == "" {
		writeError(w, http.StatusBadRequest, "productId is required")
		return
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	change, err := s.carts.Add(r.Context(), mux.Vars(r)["cartID"], domain.CartLine{
		ProductID: req.ProductID,
		Name:      req.Name,
		Price:     req.Price,
		ImageURL:  req.ImageURL,
		Quantity:  quantity,
	})
	s.writeChange(w, http.StatusCreated, change, err)
}

func (s *Server) setQuantity(w http.ResponseWriter, r *http.Request) {
	var req setQuantityRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Quantity == nil {
		writeError(w, http.StatusBadRequest, "quantity is required")
		return
	}
	vars := mux.Vars(r)
	change, err := s.carts.SetQuantity(r.Context(), vars["cartID"], vars["productID"], *req.Quantity)
	s.writeChange(w, http.StatusOK, change, err)
}

func (s *Server) removeItem(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	change, err := s.carts.Remove(r.Context(), vars["cartID"], vars["productID"])
	s.writeChange(w, http.StatusOK, change, err)
}

func (s *Server) clearCart(w http.ResponseWriter, r *http.Request) {
	change, err := s.carts.Clear(r.Context(), mux.Vars(r)["cartID"])
	s.writeChange(w, http.StatusOK, change, err)
}

func (s *Server) startCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := s.checkout.Checkout(r.Context(), checkout.Request{
		CartID:  mux.Vars(r)["cartID"],
		Address: backend.DeliveryAddress{Street: req.Street, City: req.City, State: req.State},
		Phone:   req.Phone,
		Session: sessionFrom(r),
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) checkoutState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.checkout.State(mux.Vars(r)["cartID"]))
}

func (s *Server) finalize(w http.ResponseWriter, r *http.Request) {
	var req finalizeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := s.checkout.Finalize(r.Context(), mux.Vars(r)["cartID"], req.Reference, sessionFrom(r))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	status := http.StatusOK
	if !res.Success {
		status = http.StatusPaymentRequired
	}
	writeJSON(w, status, map[string]any{"success": res.Success, "message": res.Message})
}

// writeChange отвечает состоянием корзины. Ошибка записи снапшота не отменяет
// изменение в памяти, поэтому возвращается как предупреждение.
func (s *Server) writeChange(w http.ResponseWriter, status int, change cart.Change, err error) {
	if err != nil && change.View.CartID == "" {
		s.writeDomainError(w, err)
		return
	}
	resp := cartResponse{View: change.View}
	if err != nil {
		resp.Warning = err.Error()
	}
	writeJSON(w, status, resp)
}

func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	var apiErr *backend.APIError
	switch {
	case errors.Is(err, domain.ErrCartIDRequired):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrCartEmpty):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, backend.ErrInFlight):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &apiErr) && apiErr.IsClientError():
		writeError(w, apiErr.Status, apiErr.Message)
	case errors.As(err, &apiErr), errors.Is(err, checkout.ErrCheckoutFailed):
		s.logger.WithError(err).Warn("external api request failed")
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		s.logger.WithError(err).Error("request failed")
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body: "+err.Error())
		return false
	}
	return true
}

// sessionFrom берёт сессию внешнего API из cookie или заголовка Authorization.
func sessionFrom(r *http.Request) string {
	if c, err := r.Cookie(backend.SessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	const prefix = "Bearer "
	if h := r.Header.Get("Authorization"); len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}
