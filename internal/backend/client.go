// Package backend — типизированный клиент внешнего REST API магазина (/api/v1).
//
// Клиент повторяет поведение веб-клиента: запросы уходят сразу, без
// повторов и дедупликации; 401 только логируется как предупреждение,
// остальные 4xx показываются пользователю уведомлением, 5xx и сетевые
// ошибки пишутся в лог как ошибки сервера.
package backend

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
	"github.com/spraynsniff/storefront/internal/notify"
	"github.com/spraynsniff/storefront/internal/version"
)

const (
	// DefaultBaseURL используется, если адрес API не задан.
	DefaultBaseURL = "http://localhost:5000"
	// SessionCookie — имя cookie, которую выставляет внешний API.
	SessionCookie = "token"

	defaultTimeout  = 15 * time.Second
	maxErrorBody    = 64 << 10
	fallbackMessage = "Request failed"
)

// Результаты запросов для метрик.
const (
	resultOK             = "ok"
	resultUnauthorized   = "unauthorized"
	resultClientError    = "client_error"
	resultServerError    = "server_error"
	resultTransportError = "transport_error"
)

// Option настраивает Client.
type Option func(*Client)

// WithHTTPClient задаёт http.Client (например, с собственным транспортом).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout задаёт таймаут одного запроса.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithNotifier задаёт получателя уведомлений об ошибках 4xx.
func WithNotifier(n notify.Notifier) Option {
	return func(c *Client) {
		if n != nil {
			c.notifier = n
		}
	}
}

// WithLogger задаёт logger клиента.
func WithLogger(logger *log.Entry) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics задаёт метрики запросов.
func WithMetrics(m *metrics.CartMetrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// Client выполняет запросы к внешнему API.
//
// Клиент, созданный New, — сессионный: он передаёт cookie сессии (если задана
// через Session) и применяет правила обработки ошибок. Public возвращает
// публичный клиент без учётных данных и без уведомлений.
type Client struct {
	baseURL  *url.URL
	http     *http.Client
	timeout  time.Duration
	notifier notify.Notifier
	logger   *log.Entry
	metrics  *metrics.CartMetrics

	session string
	public  bool
}

// New создаёт сессионный клиент для baseURL; пустой baseURL означает DefaultBaseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("api base url must be absolute: %q", baseURL)
	}

	c := &Client{
		baseURL:  parsed,
		http:     &http.Client{},
		timeout:  defaultTimeout,
		notifier: notify.Discard{},
		logger:   log.WithField("component", "backend-client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL возвращает адрес API.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Session возвращает копию клиента, которая передаёт cookie сессии.
func (c *Client) Session(token string) *Client {
	cp := *c
	cp.session = token
	cp.public = false
	return &cp
}

// Public возвращает копию клиента без учётных данных и без обработки ошибок уведомлениями.
func (c *Client) Public() *Client {
	cp := *c
	cp.session = ""
	cp.public = true
	return &cp
}

// call описывает один запрос к API.
type call struct {
	method   string
	path     string
	endpoint string
	query    url.Values
	body     any
	// contentType задаётся для заранее закодированного тела (multipart).
	contentType string
}

func (c *Client) do(ctx context.Context, req call) (*Envelope, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.metrics.RecordBackendRequest(req.endpoint, resultTransportError, time.Since(started))
		if !c.public {
			c.logger.WithError(err).WithField("endpoint", req.endpoint).Error("Server error")
		}
		return nil, fmt.Errorf("%s: %w", req.endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := readAPIError(resp, req.endpoint)
		c.metrics.RecordBackendRequest(req.endpoint, resultFor(resp.StatusCode), time.Since(started))
		c.handleError(apiErr)
		return nil, apiErr
	}

	env, err := decodeEnvelope(resp)
	c.metrics.RecordBackendRequest(req.endpoint, resultOK, time.Since(started))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", req.endpoint, err)
	}
	return env, nil
}

func (c *Client) newRequest(ctx context.Context, req call) (*http.Request, error) {
	target := *c.baseURL
	target.Path = c.baseURL.Path + req.path
	if len(req.query) > 0 {
		target.RawQuery = req.query.Encode()
	}

	var (
		body        io.Reader
		contentType = req.contentType
	)
	switch b := req.body.(type) {
	case nil:
	case *bytes.Buffer:
		body = b
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("%s: marshal request: %w", req.endpoint, err)
		}
		body = bytes.NewReader(raw)
		contentType = "application/json"
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", req.endpoint, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", version.UserAgent())
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if !c.public && c.session != "" {
		httpReq.AddCookie(&http.Cookie{Name: SessionCookie, Value: c.session})
	}
	return httpReq, nil
}

func (c *Client) handleError(apiErr *APIError) {
	if c.public {
		return
	}

	entry := c.logger.WithFields(log.Fields{
		"endpoint": apiErr.Endpoint,
		"status":   apiErr.Status,
	})
	switch {
	case apiErr.Status == http.StatusUnauthorized:
		entry.Warn("Unauthorized request - session expired?")
	case apiErr.Status < http.StatusInternalServerError:
		message := apiErr.Message
		if message == "" {
			message = fallbackMessage
		}
		c.notifier.Notify(notify.Error(message))
	default:
		entry.WithError(apiErr).Error("Server error")
	}
}

func resultFor(status int) string {
	switch {
	case status == http.StatusUnauthorized:
		return resultUnauthorized
	case status < http.StatusInternalServerError:
		return resultClientError
	default:
		return resultServerError
	}
}

func readAPIError(resp *http.Response, endpoint string) *APIError {
	apiErr := &APIError{Status: resp.StatusCode, Endpoint: endpoint}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(raw) == 0 {
		return apiErr
	}
	var body struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &body) == nil {
		apiErr.Message = body.Message
	}
	return apiErr
}

func decodeEnvelope(resp *http.Response) (*Envelope, error) {
	env := &Envelope{Cookies: resp.Cookies()}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return env, nil
	}
	if err := json.Unmarshal(raw, env); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return env, nil
}

// ErrNoData возвращается DecodeData, если в ответе нет поля data.
var ErrNoData = errors.New("response has no data")
