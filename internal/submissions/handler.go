package submissions

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Handler обслуживает /api/submissions и отвечает в формате
// {status, data|timestamp|error}.
type Handler struct {
	client *Client
	logger *log.Entry
}

// NewHandler создаёт HTTP-обработчик поверх клиента скрипта.
func NewHandler(client *Client, logger *log.Entry) *Handler {
	if logger == nil {
		logger = log.WithField("component", "submissions-handler")
	}
	return &Handler{client: client, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPost:
		h.add(w, r)
	case http.MethodPut:
		h.update(w, r)
	case http.MethodDelete:
		h.delete(w, r)
	default:
		w.Header().Set("Allow", "GET, POST, PUT, DELETE")
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"status": StatusError, "error": "method not allowed"})
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	data, err := h.client.List(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Error fetching submissions")
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"status": StatusError,
			"error":  "Failed to fetch submissions",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": StatusSuccess, "data": data})
}

func (h *Handler) add(w http.ResponseWriter, r *http.Request) {
	body, err := readJSONBody(r)
	if err != nil {
		h.fail(w, "Error adding submission", err)
		return
	}
	status, timestamp, err := h.client.Add(r.Context(), body)
	if err != nil {
		h.fail(w, "Error adding submission", err)
		return
	}
	resp := map[string]any{"status": status}
	if len(timestamp) > 0 {
		resp["timestamp"] = timestamp
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	body, err := readJSONBody(r)
	if err != nil {
		h.fail(w, "Error updating submission", err)
		return
	}
	status, err := h.client.Update(r.Context(), body)
	if err != nil {
		h.fail(w, "Error updating submission", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	body, err := readJSONBody(r)
	if err != nil {
		h.fail(w, "Error deleting submission", err)
		return
	}
	var req struct {
		Timestamp json.RawMessage `json:"timestamp"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		h.fail(w, "Error deleting submission", err)
		return
	}
	status, err := h.client.Delete(r.Context(), timestampParam(req.Timestamp))
	if err != nil {
		h.fail(w, "Error deleting submission", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (h *Handler) fail(w http.ResponseWriter, message string, err error) {
	h.logger.WithError(err).Error(message)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"status": StatusError})
}

// readJSONBody читает тело и проверяет, что это корректный JSON.
func readJSONBody(r *http.Request) (json.RawMessage, error) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)
	var probe any
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, err
	}
	return raw, nil
}

// timestampParam превращает timestamp из тела в строку запроса:
// строка передаётся без кавычек, остальные значения как есть.
func timestampParam(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
			return strconv.FormatInt(i, 10)
		}
		return n.String()
	}
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	return strings.TrimSpace(string(raw))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
