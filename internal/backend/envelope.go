package backend

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spraynsniff/storefront/internal/domain"
)

// Envelope — стандартный ответ API: {success, message, data}.
type Envelope struct {
	Success    bool            `json:"success"`
	Message    string          `json:"message,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Pagination *Pagination     `json:"pagination,omitempty"`
	// User заполняется ответами /auth/*.
	User json.RawMessage `json:"user,omitempty"`
	// Users заполняется ответом GET /users.
	Users json.RawMessage `json:"users,omitempty"`

	// Cookies, выставленные ответом (сессия после входа).
	Cookies []*http.Cookie `json:"-"`
}

// Pagination — метаданные постраничной выдачи.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// DecodeData разбирает поле data в v.
func (e *Envelope) DecodeData(v any) error {
	if e == nil || len(e.Data) == 0 || string(e.Data) == "null" {
		return ErrNoData
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}

// SessionToken возвращает значение cookie сессии из ответа, если она была выставлена.
func (e *Envelope) SessionToken() (string, bool) {
	if e == nil {
		return "", false
	}
	for _, cookie := range e.Cookies {
		if cookie.Name == SessionCookie {
			return cookie.Value, true
		}
	}
	return "", false
}

// APIError — ответ API со статусом 4xx/5xx.
type APIError struct {
	Status   int
	Message  string
	Endpoint string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: status %d: %s", e.Endpoint, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: status %d", e.Endpoint, e.Status)
}

// Unwrap позволяет проверять 401 через errors.Is(err, domain.ErrUnauthorized).
func (e *APIError) Unwrap() error {
	if e.Status == http.StatusUnauthorized {
		return domain.ErrUnauthorized
	}
	return nil
}

// IsClientError сообщает, что запрос отклонён как некорректный (4xx).
func (e *APIError) IsClientError() bool {
	return e.Status >= http.StatusBadRequest && e.Status < http.StatusInternalServerError
}

