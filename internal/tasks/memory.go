package tasks

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryScheduler fires tasks from in-process timers. Pending tasks are lost
// on restart, so it is meant for local runs and tests.
type MemoryScheduler struct {
	mux *Mux
	log *slog.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
	wg      sync.WaitGroup
}

func NewMemoryScheduler(mux *Mux, log *slog.Logger) *MemoryScheduler {
	if log == nil {
		log = slog.Default()
	}
	return &MemoryScheduler{mux: mux, log: log, pending: map[string]*time.Timer{}}
}

func (s *MemoryScheduler) Schedule(ctx context.Context, name string, payload any, countdown time.Duration) (string, error) {
	t, err := newTask(uuid.NewString(), name, payload, time.Now().Add(countdown))
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.wg.Add(1)
	s.pending[t.ID] = time.AfterFunc(countdown, func() { s.fire(t) })
	return t.ID, nil
}

func (s *MemoryScheduler) fire(t Task) {
	defer s.wg.Done()

	s.mu.Lock()
	_, ok := s.pending[t.ID]
	delete(s.pending, t.ID)
	s.mu.Unlock()
	if !ok {
		return
	}

	if err := s.mux.Dispatch(context.Background(), t); err != nil {
		s.log.Error("task failed", "task_id", t.ID, "task", t.Name, "err", err)
	}
}

func (s *MemoryScheduler) Cancel(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	timer, ok := s.pending[id]
	if !ok {
		return false, nil
	}
	delete(s.pending, id)
	if timer.Stop() {
		s.wg.Done()
	}
	return true, nil
}

// Pending reports how many tasks are still armed.
func (s *MemoryScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Wait blocks until every armed task has either run or been canceled.
func (s *MemoryScheduler) Wait() {
	s.wg.Wait()
}
