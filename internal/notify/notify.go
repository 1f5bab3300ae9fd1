// Package notify доставляет пользовательские уведомления (аналог toast в UI).
package notify

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Level описывает тон уведомления.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

// Notification — одно короткоживущее уведомление для пользователя.
type Notification struct {
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	CartID    string    `json:"cart_id,omitempty"`
	ProductID string    `json:"product_id,omitempty"`
	At        time.Time `json:"at"`
}

// Notifier принимает уведомления. Реализации не должны блокировать вызывающего.
type Notifier interface {
	Notify(n Notification)
}

// Success создаёт уведомление об успешном действии.
func Success(message string) Notification {
	return Notification{Level: LevelSuccess, Message: message, At: time.Now().UTC()}
}

// Error создаёт уведомление об ошибке.
func Error(message string) Notification {
	return Notification{Level: LevelError, Message: message, At: time.Now().UTC()}
}

// Discard игнорирует все уведомления.
type Discard struct{}

func (Discard) Notify(Notification) {}

// LogNotifier пишет уведомления в лог.
type LogNotifier struct {
	logger *log.Entry
}

// NewLogNotifier создаёт notifier поверх logrus.
func NewLogNotifier(logger *log.Entry) *LogNotifier {
	if logger == nil {
		logger = log.WithField("component", "notifier")
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(msg Notification) {
	entry := n.logger.WithFields(log.Fields{
		"level":      msg.Level,
		"cart_id":    msg.CartID,
		"product_id": msg.ProductID,
	})
	if msg.Level == LevelError {
		entry.Warn(msg.Message)
		return
	}
	entry.Info(msg.Message)
}

// Recorder запоминает уведомления (используется в тестах и CLI).
type Recorder struct {
	mu    sync.Mutex
	items []Notification
}

func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
}

// All возвращает копию накопленных уведомлений.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.items))
	copy(out, r.items)
	return out
}

// Multi рассылает уведомление нескольким получателям.
type Multi []Notifier

func (m Multi) Notify(n Notification) {
	for _, notifier := range m {
		if notifier != nil {
			notifier.Notify(n)
		}
	}
}
