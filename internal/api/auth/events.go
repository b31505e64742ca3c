package auth

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"gallery-app/internal/api/respond"
	"gallery-app/internal/apperr"
	"gallery-app/internal/app/http/middleware"
	"gallery-app/internal/identity"
)

const heartbeatEvery = 25 * time.Second

// endsSession reports whether e revokes sessionID; an empty SessionID means
// every session of the user was revoked.
func endsSession(e identity.Event, sessionID string) bool {
	return e.Kind == identity.EventSignedOut && (e.SessionID == "" || e.SessionID == sessionID)
}

// GET /session/events streams the caller's own sign-in/sign-out events as
// server-sent events. The stream ends once this session is revoked.
func (h *Handler) Events(c *gin.Context) {
	if h.notifier == nil {
		respond.Error(c, apperr.Unavailable(nil))
		return
	}
	caller := middleware.CallerFrom(c)

	events := make(chan identity.Event, 8)
	unsubscribe := h.notifier.Subscribe(func(e identity.Event) {
		if e.UserID != caller.UserID {
			return
		}
		select {
		case events <- e:
		default:
		}
	})
	defer unsubscribe()

	heartbeat := time.NewTicker(heartbeatEvery)
	defer heartbeat.Stop()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case e := <-events:
			c.SSEvent(string(e.Kind), e)
			return !endsSession(e, caller.SessionID)
		case <-heartbeat.C:
			c.SSEvent("ping", gin.H{"at": time.Now().UTC()})
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
