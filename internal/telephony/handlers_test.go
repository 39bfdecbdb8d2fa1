package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cafesys/internal/directory"
	"cafesys/internal/notify"
	"cafesys/internal/routing"
	"cafesys/internal/tasks"
)

type fakeRouter struct {
	list     []string
	listErr  error
	timerErr error

	compiled int
	started  [][2]string
	aborted  []string
	results  []routing.CallStatus
	taskIDs  []string
}

func (f *fakeRouter) CompileNumberList(ctx context.Context) ([]string, error) {
	f.compiled++
	return f.list, f.listErr
}

func (f *fakeRouter) CompileRedirect(candidates []string, taskID string) routing.Redirect {
	r := &routing.Router{Timeout: 20e9, BaseURL: "https://cafe.example.org"}
	return r.CompileRedirect(candidates, taskID)
}

func (f *fakeRouter) StartMissedCallTimer(ctx context.Context, from, to string) (string, error) {
	if f.timerErr != nil {
		return "", f.timerErr
	}
	f.started = append(f.started, [2]string{from, to})
	return "task-1", nil
}

func (f *fakeRouter) AbortMissedCallTimer(ctx context.Context, taskID string) error {
	f.aborted = append(f.aborted, taskID)
	return nil
}

func (f *fakeRouter) NotifyCallResult(ctx context.Context, from, to string, status routing.CallStatus, taskID string) error {
	f.results = append(f.results, status)
	f.taskIDs = append(f.taskIDs, taskID)
	return nil
}

func newTestEngine(fr *fakeRouter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := ElksWebhookHandler{Router: fr}
	r := gin.New()
	r.POST(routing.IncomingCallPath, h.HandleIncomingCall)
	r.POST(routing.CallStatusPath, h.HandleCallStatus)
	return r
}

func postForm(r *gin.Engine, target string, form url.Values) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.ServeHTTP(w, req)
	return w
}

func TestHandleIncomingCall_FirstAttempt(t *testing.T) {
	fr := &fakeRouter{list: []string{"+46701111111", "+46709999999"}}
	r := newTestEngine(fr)

	w := postForm(r, routing.IncomingCallPath, url.Values{
		"callid": {"c1"},
		"from":   {"+46701234567239927"},
		"to":     {"+4613239927"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var red routing.Redirect
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &red))
	assert.Equal(t, "+46701111111", red.Connect)
	assert.Equal(t, 20, red.Timeout)
	assert.Equal(t, 1, fr.compiled)
	assert.Equal(t, [][2]string{{"+46701234567", "+46701111111"}}, fr.started)
	assert.Contains(t, red.Next, "last_task_id=task-1")
}

func TestHandleIncomingCall_Retry(t *testing.T) {
	fr := &fakeRouter{}
	r := newTestEngine(fr)

	target := routing.IncomingCallPath + "?call_list=" + url.QueryEscape("+46709999999") + "&last=%2B46701111111&last_task_id=task-0"
	w := postForm(r, target, url.Values{"from": {"+46701234567"}, "to": {"+4613239927"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, fr.compiled, "retry must not recompile the list")
	assert.Equal(t, []string{"task-0"}, fr.aborted)

	var red routing.Redirect
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &red))
	assert.Equal(t, "+46709999999", red.Connect)
}

func TestHandleIncomingCall_ExhaustedListKeepsLastTimer(t *testing.T) {
	fr := &fakeRouter{}
	r := newTestEngine(fr)

	w := postForm(r, routing.IncomingCallPath+"?call_list=&last=%2B46709999999&last_task_id=task-9", url.Values{"from": {"+46701234567"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{}`, w.Body.String())
	assert.Empty(t, fr.started, "nobody is left to ring")
	assert.Empty(t, fr.aborted, "the last timer must fire")
}

type dirStub struct{ fallback []string }

func (d dirStub) FallbackNumbers(ctx context.Context) ([]string, error) { return d.fallback, nil }

func (d dirStub) ProfileByPhone(ctx context.Context, national string) (directory.Profile, bool, error) {
	return directory.Profile{}, false, nil
}

type recordingSink struct {
	mu     sync.Mutex
	posted []notify.Message
}

func (s *recordingSink) Post(ctx context.Context, m notify.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posted = append(s.posted, m)
	return nil
}

func TestHandleIncomingCall_UnansweredCallIsReported(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mux := tasks.NewMux()
	sched := tasks.NewMemoryScheduler(mux, nil)
	sink := &recordingSink{}

	router := routing.NewRouter(nil, dirStub{fallback: []string{"+46701111111"}}, sched, sink)
	router.Timeout = 20 * time.Millisecond
	router.TimeoutMargin = 10 * time.Millisecond
	router.BaseURL = "https://cafe.example.org"
	router.RegisterTasks(mux)

	h := ElksWebhookHandler{Router: router}
	r := gin.New()
	r.POST(routing.IncomingCallPath, h.HandleIncomingCall)

	form := url.Values{"callid": {"c1"}, "from": {"+46705555555"}, "to": {"+4613239927"}}
	w := postForm(r, routing.IncomingCallPath, form)
	require.Equal(t, http.StatusOK, w.Code)

	var red routing.Redirect
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &red))
	require.Equal(t, "+46701111111", red.Connect)
	next, err := url.Parse(red.Next)
	require.NoError(t, err)
	require.NotEmpty(t, next.Query().Get("last_task_id"))

	// The provider gives up on the only number and follows next.
	w = postForm(r, next.Path+"?"+next.RawQuery, form)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{}`, w.Body.String())

	sched.Wait()
	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.posted, 1)
	a := sink.posted[0].Attachments[0]
	assert.Equal(t, notify.ColorDanger, a.Color)
	assert.Equal(t, "+46701111111 har missat ett samtal från +46705555555.", a.Fallback)
}

func TestHandleIncomingCall_TimerFailureStillRedirects(t *testing.T) {
	fr := &fakeRouter{list: []string{"+46701111111"}, timerErr: errors.New("redis down")}
	r := newTestEngine(fr)

	w := postForm(r, routing.IncomingCallPath, url.Values{"from": {"+46701234567"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "last_task_id")
}

func TestHandleIncomingCall_CompileFailure(t *testing.T) {
	fr := &fakeRouter{listErr: errors.New("db down")}
	r := newTestEngine(fr)

	w := postForm(r, routing.IncomingCallPath, url.Values{"from": {"+46701234567"}})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHandleCallStatus(t *testing.T) {
	fr := &fakeRouter{}
	r := newTestEngine(fr)

	w := postForm(r, routing.CallStatusPath+"?task_id=task-1", url.Values{
		"from":   {"+46701234567"},
		"to":     {"+46701111111"},
		"result": {"success"},
	})
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []routing.CallStatus{routing.StatusSuccess}, fr.results)
	assert.Equal(t, []string{"task-1"}, fr.taskIDs)

	w = postForm(r, routing.CallStatusPath, url.Values{"result": {"busy"}})
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, routing.StatusFailure, fr.results[1])
}
