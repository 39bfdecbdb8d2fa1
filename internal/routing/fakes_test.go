package routing

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"cafesys/internal/directory"
	"cafesys/internal/notify"
	"cafesys/internal/scheduling"
)

type fakeSchedule struct {
	shifts   []scheduling.Shift
	onCall   map[int64][]directory.Profile
	week     [][]directory.Profile
	shiftErr error
	weekErr  error
}

func (f *fakeSchedule) ShiftsOn(ctx context.Context, day time.Time) ([]scheduling.Shift, error) {
	return f.shifts, f.shiftErr
}

func (f *fakeSchedule) OnCallDuty(ctx context.Context, shift scheduling.Shift) ([]directory.Profile, error) {
	return f.onCall[shift.ID], nil
}

func (f *fakeSchedule) CurrentWeekOnCall(ctx context.Context, now time.Time) ([][]directory.Profile, error) {
	return f.week, f.weekErr
}

type fakeDirectory struct {
	fallback []string
	err      error
	byPhone  map[string]directory.Profile
}

func (f *fakeDirectory) FallbackNumbers(ctx context.Context) ([]string, error) {
	return f.fallback, f.err
}

func (f *fakeDirectory) ProfileByPhone(ctx context.Context, national string) (directory.Profile, bool, error) {
	p, ok := f.byPhone[national]
	return p, ok, nil
}

type scheduledTask struct {
	name      string
	payload   json.RawMessage
	countdown time.Duration
}

type fakeTasks struct {
	mu        sync.Mutex
	scheduled map[string]scheduledTask
	canceled  []string
	next      int
}

func (f *fakeTasks) Schedule(ctx context.Context, name string, payload any, countdown time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	if f.scheduled == nil {
		f.scheduled = map[string]scheduledTask{}
	}
	f.next++
	id := "task-" + string(rune('0'+f.next))
	f.scheduled[id] = scheduledTask{name: name, payload: raw, countdown: countdown}
	return id, nil
}

func (f *fakeTasks) Cancel(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled = append(f.canceled, id)
	_, pending := f.scheduled[id]
	delete(f.scheduled, id)
	return pending, nil
}

// fire drops a task as if it had run.
func (f *fakeTasks) fire(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.scheduled, id)
}

type fakeSink struct {
	posted []notify.Message
	err    error
}

func (f *fakeSink) Post(ctx context.Context, m notify.Message) error {
	if f.err != nil {
		return f.err
	}
	f.posted = append(f.posted, m)
	return nil
}

var errBoom = errors.New("boom")

func profile(id int64, first, last, mobile string, groups ...string) directory.Profile {
	return directory.Profile{UserID: id, FirstName: first, LastName: last, MobilePhone: mobile, Groups: groups}
}
