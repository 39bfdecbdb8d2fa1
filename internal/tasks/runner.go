package tasks

import (
	"context"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

const DefaultPollSpec = "@every 1s"

// Claimer hands out tasks that are due. RedisScheduler implements it.
type Claimer interface {
	ClaimDue(ctx context.Context, limit int) ([]Task, error)
}

// Runner polls a Claimer on a cron schedule and dispatches due tasks.
type Runner struct {
	claimer Claimer
	mux     *Mux
	log     *slog.Logger
	spec    string

	cron *cron.Cron

	// running guards against overlapping polls when a batch is slow.
	running sync.Mutex
}

func NewRunner(claimer Claimer, mux *Mux, log *slog.Logger, spec string) *Runner {
	if log == nil {
		log = slog.Default()
	}
	if spec == "" {
		spec = DefaultPollSpec
	}
	return &Runner{claimer: claimer, mux: mux, log: log, spec: spec}
}

// Start begins polling until ctx is done or Stop is called.
func (r *Runner) Start(ctx context.Context) error {
	r.cron = cron.New()
	if _, err := r.cron.AddFunc(r.spec, func() { r.RunOnce(ctx) }); err != nil {
		return err
	}
	r.cron.Start()
	r.log.Info("task runner started", "spec", r.spec)

	go func() {
		<-ctx.Done()
		r.Stop()
	}()
	return nil
}

// Stop halts the schedule and waits for an in-flight poll to finish.
func (r *Runner) Stop() {
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
}

// RunOnce claims and dispatches one batch. It returns the number of tasks dispatched.
func (r *Runner) RunOnce(ctx context.Context) int {
	if !r.running.TryLock() {
		return 0
	}
	defer r.running.Unlock()

	due, err := r.claimer.ClaimDue(ctx, defaultClaimBatch)
	if err != nil {
		r.log.Error("claim due tasks failed", "err", err)
		return 0
	}
	for _, t := range due {
		if err := r.mux.Dispatch(ctx, t); err != nil {
			r.log.Error("task failed", "task_id", t.ID, "task", t.Name, "err", err)
			continue
		}
		r.log.Debug("task done", "task_id", t.ID, "task", t.Name)
	}
	return len(due)
}
