package routing

import (
	"context"
	"fmt"
	"strings"

	"cafesys/internal/directory"
	"cafesys/internal/notify"
	"cafesys/internal/phone"
	"cafesys/pkg/logger"
)

// CallStatus is the outcome reported in a call notification.
type CallStatus string

const (
	StatusSuccess CallStatus = "success"
	StatusFailure CallStatus = "failure"
)

// ParseCallStatus maps provider results to a CallStatus. Only "success" is
// an answered call.
func ParseCallStatus(s string) CallStatus {
	if strings.EqualFold(strings.TrimSpace(s), string(StatusSuccess)) {
		return StatusSuccess
	}
	return StatusFailure
}

// CompileNotification builds the Slack message for a finished call.
// Unknown or ambiguous numbers are shown as plain numbers.
func (r *Router) CompileNotification(ctx context.Context, from, to string, status CallStatus) notify.Message {
	caller, callerKnown := r.lookup(ctx, from)
	callFrom := formatCaller(caller, callerKnown, from)

	callee, calleeKnown := r.lookup(ctx, to)
	callTo := formatCaller(callee, calleeKnown, to)

	answered := status == StatusSuccess
	verb, statusText, color := "missat", "Missat", notify.ColorDanger
	if answered {
		verb, statusText, color = "tagit", "Taget", notify.ColorGood
	}

	fallback := fmt.Sprintf("%s har %s ett samtal från %s.", callTo, verb, callFrom)
	fields := []notify.Field{
		{Title: "Status", Value: statusText, Short: true},
		{Title: "Av", Value: callTo, Short: false},
	}

	if callerKnown && len(caller.Groups) > 0 {
		names := make([]string, 0, len(caller.Groups))
		for _, g := range caller.Groups {
			names = append(names, directory.DisplayGroupName(g))
		}
		noun := "gruppen"
		if len(names) > 1 {
			noun = "grupperna"
		}
		groups := fmt.Sprintf("%s %s tillhör %s: %s.", caller.FirstName, caller.LastName, noun, strings.Join(names, ", "))

		fallback += "\n\n" + groups
		fields = append(fields, notify.Field{Title: "Grupper", Value: groups, Short: false})
	}

	return notify.Message{Attachments: []notify.Attachment{{
		Pretext:  "Nytt samtal från " + callFrom,
		Fallback: fallback,
		Color:    color,
		Fields:   fields,
	}}}
}

func (r *Router) lookup(ctx context.Context, number string) (directory.Profile, bool) {
	if r.Directory == nil || number == "" {
		return directory.Profile{}, false
	}
	p, ok, err := r.Directory.ProfileByPhone(ctx, phone.RemoveAreaCode(number))
	if err != nil {
		logger.From(ctx).Warn("caller lookup failed", "err", err)
		return directory.Profile{}, false
	}
	return p, ok
}

func formatCaller(p directory.Profile, known bool, number string) string {
	if !known {
		return number
	}
	return fmt.Sprintf("%s %s (%s)", p.FirstName, p.LastName, number)
}

// markCorrection rewrites an answered-call message so it reads as a
// correction of an earlier missed-call notice for the same call.
func markCorrection(m notify.Message) notify.Message {
	out := notify.Message{Attachments: make([]notify.Attachment, len(m.Attachments))}
	for i, a := range m.Attachments {
		a.Pretext = "Rättelse: " + a.Pretext
		a.Fallback = "Rättelse: " + a.Fallback
		a.Fields = append([]notify.Field{{Title: "Rättelse", Value: "Samtalet besvarades trots tidigare larm om missat samtal.", Short: false}}, a.Fields...)
		out.Attachments[i] = a
	}
	return out
}
