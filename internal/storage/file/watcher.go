package file

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

const (
	defaultDebounce = 200 * time.Millisecond
	debounceTick    = 50 * time.Millisecond
)

// ReloadFunc вызывается, когда снапшот корзины изменился на диске.
type ReloadFunc func(ctx context.Context, cartID string)

// WatcherOption настраивает Watcher.
type WatcherOption func(*Watcher)

// WithDebounce задаёт паузу, после которой серия записей в файл считается завершённой.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithWatcherLogger задаёт logger.
func WithWatcherLogger(logger *log.Entry) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// Watcher следит за каталогом снапшотов и сообщает о внешних изменениях
// (другой процесс или ручная правка файла).
type Watcher struct {
	dir      string
	onChange ReloadFunc
	debounce time.Duration
	logger   *log.Entry

	watcher *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]time.Time
	running bool
	doneCh  chan struct{}
}

// NewWatcher создаёт наблюдатель за каталогом dir.
func NewWatcher(dir string, onChange ReloadFunc, opts ...WatcherOption) (*Watcher, error) {
	if onChange == nil {
		return nil, errors.New("reload callback is required")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		dir:      dir,
		onChange: onChange,
		debounce: defaultDebounce,
		logger:   log.WithField("component", "snapshot-watcher"),
		watcher:  fsw,
		pending:  make(map[string]time.Time),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start подписывается на каталог и запускает цикл обработки событий.
// Цикл завершается при отмене ctx или вызове Close.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(w.dir); err != nil {
		_ = w.watcher.Close()
		close(w.doneCh)
		return err
	}
	w.logger.WithField("dir", w.dir).Info("watching cart snapshots")

	go w.run(ctx)
	return nil
}

// Close останавливает наблюдение и дожидается завершения цикла.
func (w *Watcher) Close() error {
	w.mu.Lock()
	running := w.running
	w.mu.Unlock()

	err := w.watcher.Close()
	if running {
		<-w.doneCh
	}
	return err
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(debounceTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("snapshot watcher error")
		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	cartID, ok := CartIDFromPath(event.Name)
	if !ok {
		return
	}

	w.mu.Lock()
	w.pending[cartID] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) flush(ctx context.Context) {
	now := time.Now()

	w.mu.Lock()
	ready := make([]string, 0, len(w.pending))
	for cartID, at := range w.pending {
		if now.Sub(at) >= w.debounce {
			ready = append(ready, cartID)
			delete(w.pending, cartID)
		}
	}
	w.mu.Unlock()

	for _, cartID := range ready {
		w.logger.WithField("cart_id", cartID).Debug("cart snapshot changed on disk")
		w.onChange(ctx, cartID)
	}
}
