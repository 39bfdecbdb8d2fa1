package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Task is a unit of deferred work. Payload is the JSON encoding of the
// arguments passed to Schedule.
type Task struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload"`
	RunAt   time.Time       `json:"run_at"`
}

// Scheduler runs a named task after a countdown unless it is canceled first.
//
// Cancel reports whether the task was still pending. Ids that already fired,
// were already canceled or never existed return false and no error.
type Scheduler interface {
	Schedule(ctx context.Context, name string, payload any, countdown time.Duration) (string, error)
	Cancel(ctx context.Context, id string) (bool, error)
}

// Handler executes a task's payload.
type Handler func(ctx context.Context, payload json.RawMessage) error

var ErrUnknownTask = errors.New("tasks: no handler registered")

// Mux dispatches tasks to handlers by name.
type Mux struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewMux() *Mux {
	return &Mux{handlers: map[string]Handler{}}
}

func (m *Mux) Handle(name string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[name] = h
}

func (m *Mux) Dispatch(ctx context.Context, t Task) error {
	m.mu.RLock()
	h, ok := m.handlers[t.Name]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTask, t.Name)
	}
	return h(ctx, t.Payload)
}

func newTask(id, name string, payload any, runAt time.Time) (Task, error) {
	if name == "" {
		return Task{}, errors.New("tasks: name is required")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Task{}, fmt.Errorf("tasks: encode payload: %w", err)
	}
	return Task{ID: id, Name: name, Payload: raw, RunAt: runAt}, nil
}
