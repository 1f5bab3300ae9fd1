package backend

import (
	"context"
	"errors"
	"sync"
	"time"
)

// RequestState — состояние пользовательского действия, которое обращается к API.
type RequestState string

const (
	StateIdle     RequestState = "idle"
	StateInFlight RequestState = "in_flight"
	StateSuccess  RequestState = "success"
	StateError    RequestState = "error"
)

// ErrInFlight возвращается Tracker.Do, если предыдущий запрос ещё не завершён.
var ErrInFlight = errors.New("request already in flight")

// TrackerSnapshot — наблюдаемое состояние Tracker.
type TrackerSnapshot struct {
	State     RequestState `json:"state"`
	Error     string       `json:"error,omitempty"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Tracker — явный автомат состояний одного действия:
// idle → in_flight → success | error → in_flight → ...
// Повторный запуск во время in_flight отклоняется (аналог заблокированной кнопки).
type Tracker struct {
	mu        sync.Mutex
	state     RequestState
	err       error
	updatedAt time.Time
}

// NewTracker создаёт Tracker в состоянии idle.
func NewTracker() *Tracker {
	return &Tracker{state: StateIdle, updatedAt: time.Now().UTC()}
}

// Do выполняет fn, переводя автомат по состояниям.
func (t *Tracker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	t.mu.Lock()
	if t.state == StateInFlight {
		t.mu.Unlock()
		return ErrInFlight
	}
	t.set(StateInFlight, nil)
	t.mu.Unlock()

	err := fn(ctx)

	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		t.set(StateError, err)
		return err
	}
	t.set(StateSuccess, nil)
	return nil
}

// Snapshot возвращает текущее состояние.
func (t *Tracker) Snapshot() TrackerSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := TrackerSnapshot{State: t.state, UpdatedAt: t.updatedAt}
	if t.err != nil {
		snap.Error = t.err.Error()
	}
	return snap
}

// State возвращает текущее состояние.
func (t *Tracker) State() RequestState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Reset возвращает завершённый автомат в idle.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateInFlight {
		t.set(StateIdle, nil)
	}
}

func (t *Tracker) set(state RequestState, err error) {
	t.state = state
	t.err = err
	t.updatedAt = time.Now().UTC()
}
