package telephony

import (
	"net/http"
	"strings"
)

// 46elks posts voice webhooks as application/x-www-form-urlencoded.
// Ref: https://46elks.com/docs/voice-receive-call

// IncomingCallForm is the subset of an incoming-call webhook the router needs.
type IncomingCallForm struct {
	CallID string
	From   string
	To     string
}

func ParseIncomingCall(r *http.Request) (IncomingCallForm, error) {
	if err := r.ParseForm(); err != nil {
		return IncomingCallForm{}, err
	}
	return IncomingCallForm{
		CallID: strings.TrimSpace(r.PostFormValue("callid")),
		From:   strings.TrimSpace(r.PostFormValue("from")),
		To:     strings.TrimSpace(r.PostFormValue("to")),
	}, nil
}

// CallStatusForm is posted to the whenhangup URL once a leg ends.
type CallStatusForm struct {
	CallID string
	From   string
	To     string
	Result string
}

func ParseCallStatus(r *http.Request) (CallStatusForm, error) {
	if err := r.ParseForm(); err != nil {
		return CallStatusForm{}, err
	}
	return CallStatusForm{
		CallID: strings.TrimSpace(r.PostFormValue("callid")),
		From:   strings.TrimSpace(r.PostFormValue("from")),
		To:     strings.TrimSpace(r.PostFormValue("to")),
		Result: strings.TrimSpace(r.PostFormValue("result")),
	}, nil
}
