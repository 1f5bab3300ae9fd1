// Package submissions проксирует заявки формы мероприятия в таблицу,
// которую обслуживает внешний скрипт. Скрипт принимает только GET и POST,
// поэтому изменение и удаление передаются как POST с параметром action.
package submissions

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/spraynsniff/storefront/internal/metrics"
)

const (
	StatusSuccess = "success"
	StatusAdded   = "added"
	StatusUpdated = "updated"
	StatusDeleted = "deleted"
	StatusError   = "error"

	defaultTimeout = 15 * time.Second
	maxBodyBytes   = 1 << 20
)

// ErrScriptURLRequired возвращается, если адрес скрипта не настроен.
var ErrScriptURLRequired = errors.New("submissions script url is required")

// Response — ответ скрипта; поля, которых нет в ответе, остаются пустыми.
type Response struct {
	Status    string          `json:"status,omitempty"`
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Client обращается к скрипту таблицы заявок.
type Client struct {
	scriptURL *url.URL
	http      *http.Client
	logger    *log.Entry
	metrics   *metrics.CartMetrics
}

// Option настраивает Client.
type Option func(*Client)

// WithHTTPClient задаёт HTTP-клиент.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics включает учёт запросов к скрипту.
func WithMetrics(m *metrics.CartMetrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient создаёт клиента скрипта по абсолютному URL.
func NewClient(scriptURL string, opts ...Option) (*Client, error) {
	scriptURL = strings.TrimSpace(scriptURL)
	if scriptURL == "" {
		return nil, ErrScriptURLRequired
	}
	u, err := url.Parse(scriptURL)
	if err != nil {
		return nil, fmt.Errorf("parse submissions script url: %w", err)
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("submissions script url %q must be absolute", scriptURL)
	}

	c := &Client{
		scriptURL: u,
		http:      &http.Client{Timeout: defaultTimeout},
		logger:    log.WithField("component", "submissions"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// List возвращает data из ответа скрипта; пустое или ложное значение даёт [].
func (c *Client) List(ctx context.Context) (json.RawMessage, error) {
	resp, err := c.send(ctx, http.MethodGet, nil, nil)
	if err != nil {
		return nil, err
	}
	if isFalsy(resp.Data) {
		return json.RawMessage("[]"), nil
	}
	return resp.Data, nil
}

// Add добавляет заявку и возвращает статус (по умолчанию "added") и timestamp записи.
func (c *Client) Add(ctx context.Context, submission json.RawMessage) (string, json.RawMessage, error) {
	resp, err := c.send(ctx, http.MethodPost, nil, submission)
	if err != nil {
		return "", nil, err
	}
	return statusOr(resp.Status, StatusAdded), resp.Timestamp, nil
}

// Update изменяет заявку; статус по умолчанию "updated".
func (c *Client) Update(ctx context.Context, submission json.RawMessage) (string, error) {
	resp, err := c.send(ctx, http.MethodPost, url.Values{"action": {"update"}}, submission)
	if err != nil {
		return "", err
	}
	return statusOr(resp.Status, StatusUpdated), nil
}

// Delete удаляет заявку по timestamp. Неожиданный статус скрипта
// только логируется; статус по умолчанию "deleted".
func (c *Client) Delete(ctx context.Context, timestamp string) (string, error) {
	resp, err := c.send(ctx, http.MethodPost, url.Values{
		"action":    {"delete"},
		"timestamp": {timestamp},
	}, nil)
	if err != nil {
		return "", err
	}
	if resp.Status != StatusDeleted {
		c.logger.WithFields(log.Fields{
			"status":    resp.Status,
			"timestamp": timestamp,
		}).Warn("submissions script returned unexpected status")
	}
	return statusOr(resp.Status, StatusDeleted), nil
}

func (c *Client) send(ctx context.Context, method string, query url.Values, body json.RawMessage) (Response, error) {
	endpoint := "submissions " + method
	if action := query.Get("action"); action != "" {
		endpoint += " " + action
	}

	target := *c.scriptURL
	if len(query) > 0 {
		q := target.Query()
		for k, v := range query {
			q[k] = v
		}
		target.RawQuery = q.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return Response{}, fmt.Errorf("%s: build request: %w", endpoint, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.RecordBackendRequest(endpoint, "transport_error", time.Since(start))
		return Response{}, fmt.Errorf("%s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	var out Response
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&out); err != nil {
		c.metrics.RecordBackendRequest(endpoint, "decode_error", time.Since(start))
		return Response{}, fmt.Errorf("%s: decode response (status %d): %w", endpoint, resp.StatusCode, err)
	}
	c.metrics.RecordBackendRequest(endpoint, "ok", time.Since(start))
	return out, nil
}

func isFalsy(raw json.RawMessage) bool {
	switch strings.TrimSpace(string(raw)) {
	case "", "null", "false", "0", `""`:
		return true
	}
	return false
}

func statusOr(status, fallback string) string {
	if status == "" {
		return fallback
	}
	return status
}
