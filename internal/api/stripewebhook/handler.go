package stripewebhooks

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	stripeinfra "gallery-app/internal/infra/stripe"
)

const maxPayloadBytes = 65536

type EventParser interface {
	ParseEvent(payload []byte, signature string) (*stripeinfra.Event, error)
}

type Settler interface {
	Settle(ctx context.Context, ev *stripeinfra.Event) error
}

type Handler struct {
	parser  EventParser
	settler Settler
	log     *slog.Logger
}

// NewHandler returns a handler that answers 503 while parser is nil, i.e.
// when Stripe is not configured.
func NewHandler(parser EventParser, settler Settler, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{parser: parser, settler: settler, log: log}
}

// POST /webhook
//
// 400 tells Stripe the delivery is bad and must not be retried; 500 asks for
// a retry.
func (h *Handler) StripeWebhook(c *gin.Context) {
	if h.parser == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "stripe is not configured", "code": "unavailable"})
		return
	}

	payload, err := readStripeBody(c, maxPayloadBytes)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large", "code": "validation_error"})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Error reading request body", "code": "unavailable"})
		return
	}

	ev, err := h.parser.ParseEvent(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, stripeinfra.ErrSignature) {
			h.log.Warn("stripe signature verification failed", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Signature verification failed", "code": "validation_error"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to parse event", "code": "validation_error"})
		return
	}

	if err := h.settler.Settle(c.Request.Context(), ev); err != nil {
		h.log.Error("stripe settlement failed", "event_id", ev.ID, "order_id", ev.OrderID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "settlement failed", "code": "internal"})
		return
	}

	if ev.Kind == stripeinfra.EventIgnored {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "received"})
}

func readStripeBody(c *gin.Context, maxBytes int64) ([]byte, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
	return io.ReadAll(c.Request.Body)
}
