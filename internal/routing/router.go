package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cafesys/internal/directory"
	"cafesys/internal/notify"
	"cafesys/internal/phone"
	"cafesys/internal/scheduling"
	"cafesys/internal/tasks"
	"cafesys/pkg/logger"
)

const (
	// TaskMissedCall is the delayed task that reports an unanswered call.
	TaskMissedCall = "phone.missed_call"

	DefaultTimeout       = 20 * time.Second
	DefaultTimeoutMargin = 10 * time.Second
)

// Router decides who the duty phone rings and keeps the team informed about
// calls nobody answered.
//
// Escalation order:
//  1. staff on call for the shift covering the current time
//  2. staff on call any shift this week
//  3. the fallback list
type Router struct {
	Schedule  scheduling.Service
	Directory directory.Store
	Tasks     tasks.Scheduler
	Sink      notify.Sink

	Windows  []DutyWindow
	Location *time.Location

	// Timeout is how long each number rings before the provider asks for the next one.
	Timeout time.Duration
	// TimeoutMargin is added before a missed-call notification fires, to absorb provider latency.
	TimeoutMargin time.Duration

	// BaseURL is the public origin the provider calls back on.
	BaseURL string

	Now func() time.Time
}

func NewRouter(schedule scheduling.Service, dir directory.Store, sched tasks.Scheduler, sink notify.Sink) *Router {
	return &Router{
		Schedule:      schedule,
		Directory:     dir,
		Tasks:         sched,
		Sink:          sink,
		Windows:       DefaultDutyWindows(),
		Location:      time.Local,
		Timeout:       DefaultTimeout,
		TimeoutMargin: DefaultTimeoutMargin,
		Now:           time.Now,
	}
}

// CompileNumberList returns the numbers to try, most relevant first.
// Scheduling failures only drop the staff part; the fallback list is always
// required.
func (r *Router) CompileNumberList(ctx context.Context) ([]string, error) {
	log := logger.From(ctx)
	now := r.now()
	list := phone.NewNumberList()

	if r.Schedule != nil {
		current, err := r.currentShiftStaff(ctx, now)
		if err != nil {
			log.Warn("current shift lookup failed", "err", err)
		}
		list.Append(dialable(ctx, directory.Phones(current)))

		week, err := r.Schedule.CurrentWeekOnCall(ctx, now)
		if err != nil {
			log.Warn("week on-call lookup failed", "err", err)
		}
		nested := make([][]string, 0, len(week))
		for _, staff := range week {
			nested = append(nested, dialable(ctx, directory.Phones(staff)))
		}
		list.AppendNested(nested)
	}

	if r.Directory == nil {
		return nil, errors.New("routing: directory not configured")
	}
	fallback, err := r.Directory.FallbackNumbers(ctx)
	if err != nil {
		return nil, fmt.Errorf("routing: fallback numbers: %w", err)
	}
	list.Append(dialable(ctx, fallback))

	return list.Numbers(), nil
}

func (r *Router) currentShiftStaff(ctx context.Context, now time.Time) ([]directory.Profile, error) {
	var shifts []scheduling.Shift
	loaded := false

	for _, w := range r.Windows {
		if !w.Contains(now) {
			continue
		}
		if !loaded {
			var err error
			shifts, err = r.Schedule.ShiftsOn(ctx, now)
			if err != nil {
				return nil, err
			}
			loaded = true
		}
		for _, sh := range shifts {
			if sh.Span == w.ShiftIndex {
				return r.Schedule.OnCallDuty(ctx, sh)
			}
		}
	}
	return nil, nil
}

// dialable drops empty numbers and logs malformed ones before dropping them.
func dialable(ctx context.Context, numbers []string) []string {
	out := make([]string, 0, len(numbers))
	for _, n := range numbers {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if !phone.IsValid(n) {
			logger.From(ctx).Warn("skipping malformed phone number", "number", n)
			continue
		}
		out = append(out, n)
	}
	return out
}

type missedCall struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// StartMissedCallTimer arms a notification that fires unless aborted before
// Timeout+TimeoutMargin has passed.
func (r *Router) StartMissedCallTimer(ctx context.Context, from, to string) (string, error) {
	if r.Tasks == nil {
		return "", errors.New("routing: task scheduler not configured")
	}
	return r.Tasks.Schedule(ctx, TaskMissedCall, missedCall{From: from, To: to}, r.Timeout+r.TimeoutMargin)
}

// AbortMissedCallTimer disarms a timer. Empty, unknown or already fired ids are ignored.
func (r *Router) AbortMissedCallTimer(ctx context.Context, taskID string) error {
	_, err := r.disarm(ctx, taskID)
	return err
}

// disarm reports whether the timer was still pending when it was canceled.
func (r *Router) disarm(ctx context.Context, taskID string) (bool, error) {
	if taskID == "" || r.Tasks == nil {
		return false, nil
	}
	return r.Tasks.Cancel(ctx, taskID)
}

// HandleMissedCall is the delayed callback behind StartMissedCallTimer.
func (r *Router) HandleMissedCall(ctx context.Context, payload json.RawMessage) error {
	var mc missedCall
	if err := json.Unmarshal(payload, &mc); err != nil {
		return fmt.Errorf("routing: decode missed call: %w", err)
	}
	return r.post(ctx, r.CompileNotification(ctx, mc.From, mc.To, StatusFailure))
}

// NotifyCallResult handles the provider's hang-up report. An answered call
// disarms its timer and is announced; anything else is left to the timer.
// The hang-up of a call that outlasted its timer arrives after the missed-call
// notice went out, so the announcement is posted as a correction.
func (r *Router) NotifyCallResult(ctx context.Context, from, to string, status CallStatus, taskID string) error {
	if status != StatusSuccess {
		return nil
	}
	pending, err := r.disarm(ctx, taskID)
	if err != nil {
		logger.From(ctx).Warn("abort missed call timer failed", "task_id", taskID, "err", err)
	}

	m := r.CompileNotification(ctx, from, to, StatusSuccess)
	if taskID != "" && err == nil && !pending {
		m = markCorrection(m)
	}
	return r.post(ctx, m)
}

// RegisterTasks binds the router's delayed callbacks to m.
func (r *Router) RegisterTasks(m *tasks.Mux) {
	m.Handle(TaskMissedCall, r.HandleMissedCall)
}

func (r *Router) post(ctx context.Context, m notify.Message) error {
	if r.Sink == nil {
		return errors.New("routing: notification sink not configured")
	}
	return r.Sink.Post(ctx, m)
}

func (r *Router) now() time.Time {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	loc := r.Location
	if loc == nil {
		loc = time.Local
	}
	return now().In(loc)
}
