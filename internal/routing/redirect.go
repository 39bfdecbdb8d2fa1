package routing

import (
	"net/url"
	"strings"
)

const (
	IncomingCallPath = "/phone/incoming-call"
	CallStatusPath   = "/phone/call-status"
)

// Redirect tells the provider which number to connect next and where to
// ask when that number does not answer. The zero value means "give up".
type Redirect struct {
	Connect    string `json:"connect,omitempty"`
	Timeout    int    `json:"timeout,omitempty"`
	Next       string `json:"next,omitempty"`
	WhenHangup string `json:"whenhangup,omitempty"`
}

func (r Redirect) IsEmpty() bool { return r.Connect == "" }

// CallSession is the escalation state carried between provider callbacks.
type CallSession struct {
	From      string
	To        string
	Remaining []string
	TaskID    string
}

// CompileRedirect connects the first candidate and encodes the rest in the
// retry URI together with the number just tried and its timer id.
func (r *Router) CompileRedirect(candidates []string, taskID string) Redirect {
	if len(candidates) == 0 {
		return Redirect{}
	}
	current := candidates[0]
	base := strings.TrimRight(r.BaseURL, "/")

	next := base + IncomingCallPath +
		"?call_list=" + url.QueryEscape(strings.Join(candidates[1:], ",")) +
		"&last=" + url.QueryEscape(current)
	hangup := base + CallStatusPath
	if taskID != "" {
		next += "&last_task_id=" + url.QueryEscape(taskID)
		hangup += "?task_id=" + url.QueryEscape(taskID)
	}

	return Redirect{
		Connect:    current,
		Timeout:    int(r.Timeout.Seconds()),
		Next:       next,
		WhenHangup: hangup,
	}
}

// ParseCallList splits a comma-joined candidate list, dropping empty entries.
func ParseCallList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
