package telephony

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"cafesys/internal/phone"
	"cafesys/internal/routing"
	"cafesys/pkg/logger"
)

// CallRouter is what the webhook handlers need from routing.Router.
type CallRouter interface {
	CompileNumberList(ctx context.Context) ([]string, error)
	CompileRedirect(candidates []string, taskID string) routing.Redirect
	StartMissedCallTimer(ctx context.Context, from, to string) (string, error)
	AbortMissedCallTimer(ctx context.Context, taskID string) error
	NotifyCallResult(ctx context.Context, from, to string, status routing.CallStatus, taskID string) error
}

// ElksWebhookHandler turns 46elks callbacks into router calls and writes the
// JSON call actions 46elks expects back. No routing decisions are made here.
type ElksWebhookHandler struct {
	Router CallRouter

	// Extension and MaxLength strip the internal extension the switchboard
	// appends to forwarded callers.
	Extension string
	MaxLength int
}

func (h ElksWebhookHandler) HandleIncomingCall(c *gin.Context) {
	log := logger.FromGin(c)
	if h.Router == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "router not configured"})
		return
	}

	form, err := ParseIncomingCall(c.Request)
	if err != nil {
		log.Warn("elks webhook parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}
	from := phone.RemoveExtension(form.From, h.extension(), h.maxLength())
	ctx := logger.With(c.Request.Context(), log.With("callid", form.CallID))

	var candidates []string
	if callList, retry := c.GetQuery("call_list"); retry {
		candidates = routing.ParseCallList(callList)
		log.Debug("call not answered, moving on", "last", c.Query("last"), "remaining", len(candidates))
		if len(candidates) == 0 {
			// The last number's timer stays armed and reports the missed call.
			c.JSON(http.StatusOK, routing.Redirect{})
			return
		}
		if err := h.Router.AbortMissedCallTimer(ctx, c.Query("last_task_id")); err != nil {
			log.Warn("abort missed call timer failed", "task_id", c.Query("last_task_id"), "err", err)
		}
	} else {
		candidates, err = h.Router.CompileNumberList(ctx)
		if err != nil {
			log.Error("compile number list failed", "err", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "routing failed"})
			return
		}
	}

	if len(candidates) == 0 {
		c.JSON(http.StatusOK, routing.Redirect{})
		return
	}

	// A failed timer only costs the missed-call notification; keep ringing.
	taskID, err := h.Router.StartMissedCallTimer(ctx, from, candidates[0])
	if err != nil {
		log.Warn("start missed call timer failed", "err", err)
		taskID = ""
	}

	c.JSON(http.StatusOK, h.Router.CompileRedirect(candidates, taskID))
}

func (h ElksWebhookHandler) HandleCallStatus(c *gin.Context) {
	log := logger.FromGin(c)
	if h.Router == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "router not configured"})
		return
	}

	form, err := ParseCallStatus(c.Request)
	if err != nil {
		log.Warn("elks status parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}

	from := phone.RemoveExtension(form.From, h.extension(), h.maxLength())
	ctx := logger.With(c.Request.Context(), log.With("callid", form.CallID))
	status := routing.ParseCallStatus(form.Result)

	if err := h.Router.NotifyCallResult(ctx, from, form.To, status, c.Query("task_id")); err != nil {
		log.Error("call result notification failed", "status", status, "err", err)
	}
	c.Status(http.StatusNoContent)
}

func (h ElksWebhookHandler) extension() string {
	if h.Extension == "" {
		return phone.DefaultExtension
	}
	return h.Extension
}

func (h ElksWebhookHandler) maxLength() int {
	if h.MaxLength <= 0 {
		return phone.DefaultMaxLength
	}
	return h.MaxLength
}
