package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
)

// User — профиль пользователя из /auth/*.
type User struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	IsVerified bool   `json:"isVerified"`
}

// Address — сохранённый адрес пользователя.
type Address struct {
	ID        string `json:"_id,omitempty"`
	Street    string `json:"street"`
	City      string `json:"city"`
	State     string `json:"state"`
	Phone     string `json:"phone,omitempty"`
	IsDefault bool   `json:"isDefault,omitempty"`
}

// Login выполняет вход; cookie сессии возвращается в Envelope.SessionToken.
func (c *Client) Login(ctx context.Context, email, password string) (*Envelope, error) {
	return c.postJSON(ctx, "/api/v1/auth/login", map[string]string{
		"email":    email,
		"password": password,
	})
}

// Register регистрирует пользователя.
func (c *Client) Register(ctx context.Context, name, email, password string) (*Envelope, error) {
	return c.postJSON(ctx, "/api/v1/auth/register", map[string]string{
		"name":     name,
		"email":    email,
		"password": password,
	})
}

// VerifyEmail подтверждает почту одноразовым кодом.
func (c *Client) VerifyEmail(ctx context.Context, email, otp string) (*Envelope, error) {
	return c.postJSON(ctx, "/api/v1/auth/verify-email", map[string]string{
		"email": email,
		"otp":   otp,
	})
}

// ResendOTP повторно отправляет код подтверждения.
func (c *Client) ResendOTP(ctx context.Context, email string) (*Envelope, error) {
	return c.postJSON(ctx, "/api/v1/auth/resend-otp", map[string]string{"email": email})
}

// ForgotPassword запрашивает код сброса пароля.
func (c *Client) ForgotPassword(ctx context.Context, email string) (*Envelope, error) {
	return c.postJSON(ctx, "/api/v1/auth/forgot-password", map[string]string{"email": email})
}

// ResetPassword задаёт новый пароль по коду.
func (c *Client) ResetPassword(ctx context.Context, email, otp, newPassword string) (*Envelope, error) {
	return c.postJSON(ctx, "/api/v1/auth/reset-password", map[string]string{
		"email":       email,
		"otp":         otp,
		"newPassword": newPassword,
	})
}

// Me возвращает текущего пользователя; nil, если API не вернул пользователя.
func (c *Client) Me(ctx context.Context) (*User, error) {
	env, err := c.do(ctx, call{
		method:   http.MethodGet,
		path:     "/api/v1/auth/me",
		endpoint: "GET /api/v1/auth/me",
	})
	if err != nil {
		return nil, err
	}
	if len(env.User) == 0 || string(env.User) == "null" {
		return nil, nil
	}
	var user User
	if err := json.Unmarshal(env.User, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Logout завершает сессию.
func (c *Client) Logout(ctx context.Context) (*Envelope, error) {
	return c.do(ctx, call{
		method:   http.MethodGet,
		path:     "/api/v1/auth/logout",
		endpoint: "GET /api/v1/auth/logout",
	})
}

// ListUsers возвращает пользователей по фильтру (админка).
func (c *Client) ListUsers(ctx context.Context, filter url.Values) ([]User, error) {
	env, err := c.do(ctx, call{
		method:   http.MethodGet,
		path:     "/api/v1/users",
		endpoint: "GET /api/v1/users",
		query:    filter,
	})
	if err != nil {
		return nil, err
	}
	if len(env.Users) == 0 {
		return []User{}, nil
	}
	var users []User
	if err := json.Unmarshal(env.Users, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// Profile возвращает профиль текущего пользователя вместе с адресами.
func (c *Client) Profile(ctx context.Context) (*Envelope, error) {
	return c.do(ctx, call{
		method:   http.MethodGet,
		path:     "/api/v1/users/profile",
		endpoint: "GET /api/v1/users/profile",
	})
}

// DeleteUser удаляет пользователя (админка).
func (c *Client) DeleteUser(ctx context.Context, id string) (*Envelope, error) {
	return c.do(ctx, call{
		method:   http.MethodDelete,
		path:     "/api/v1/users/" + url.PathEscape(id),
		endpoint: "DELETE /api/v1/users/{id}",
	})
}

// AddAddress сохраняет новый адрес пользователя.
func (c *Client) AddAddress(ctx context.Context, addr Address) (*Envelope, error) {
	addr.ID = ""
	return c.postJSON(ctx, "/api/v1/users/addresses", addr)
}

// UpdateAddress изменяет сохранённый адрес.
func (c *Client) UpdateAddress(ctx context.Context, id string, addr Address) (*Envelope, error) {
	addr.ID = ""
	return c.do(ctx, call{
		method:   http.MethodPut,
		path:     "/api/v1/users/addresses/" + url.PathEscape(id),
		endpoint: "PUT /api/v1/users/addresses/{id}",
		body:     addr,
	})
}

// DeleteAddress удаляет сохранённый адрес.
func (c *Client) DeleteAddress(ctx context.Context, id string) (*Envelope, error) {
	return c.do(ctx, call{
		method:   http.MethodDelete,
		path:     "/api/v1/users/addresses/" + url.PathEscape(id),
		endpoint: "DELETE /api/v1/users/addresses/{id}",
	})
}

// ContactMessage — сообщение из формы обратной связи.
type ContactMessage struct {
	ID         string `json:"_id,omitempty"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Subject    string `json:"subject,omitempty"`
	Message    string `json:"message"`
	Status     string `json:"status,omitempty"`
	AdminReply string `json:"adminReply,omitempty"`
}

// ListContacts возвращает страницу сообщений (админка).
func (c *Client) ListContacts(ctx context.Context, page, limit int) ([]ContactMessage, *Pagination, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	env, err := c.do(ctx, call{
		method:   http.MethodGet,
		path:     "/api/v1/contacts",
		endpoint: "GET /api/v1/contacts",
		query:    q,
	})
	if err != nil {
		return nil, nil, err
	}
	messages, err := decodeList[ContactMessage](env)
	return messages, env.Pagination, err
}

// SubmitContact отправляет сообщение из формы обратной связи.
func (c *Client) SubmitContact(ctx context.Context, msg ContactMessage) (*Envelope, error) {
	msg.ID, msg.Status, msg.AdminReply = "", "", ""
	return c.postJSON(ctx, "/api/v1/contacts", msg)
}

// UpdateContactStatus меняет статус сообщения.
func (c *Client) UpdateContactStatus(ctx context.Context, id, status string) (*Envelope, error) {
	return c.do(ctx, call{
		method:   http.MethodPut,
		path:     "/api/v1/contacts/" + url.PathEscape(id) + "/status",
		endpoint: "PUT /api/v1/contacts/{id}/status",
		body:     map[string]string{"status": status},
	})
}

// ReplyContact отправляет ответ администратора.
func (c *Client) ReplyContact(ctx context.Context, id, reply string) (*Envelope, error) {
	return c.do(ctx, call{
		method:   http.MethodPost,
		path:     "/api/v1/contacts/" + url.PathEscape(id) + "/reply",
		endpoint: "POST /api/v1/contacts/{id}/reply",
		body:     map[string]string{"replyMessage": reply},
	})
}

// DeleteContact удаляет сообщение.
func (c *Client) DeleteContact(ctx context.Context, id string) (*Envelope, error) {
	return c.do(ctx, call{
		method:   http.MethodDelete,
		path:     "/api/v1/contacts/" + url.PathEscape(id),
		endpoint: "DELETE /api/v1/contacts/{id}",
	})
}

func (c *Client) postJSON(ctx context.Context, path string, body any) (*Envelope, error) {
	return c.do(ctx, call{
		method:   http.MethodPost,
		path:     path,
		endpoint: "POST " + path,
		body:     body,
	})
}
