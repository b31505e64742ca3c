package orders

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"gallery-app/internal/api/respond"
	"gallery-app/internal/apperr"
	"gallery-app/internal/app/http/middleware"
	"gallery-app/internal/domain/orders"
	"gallery-app/internal/ledger"
	"gallery-app/internal/payments"
	"gallery-app/internal/workflow"
)

type Handler struct {
	ledger   *ledger.Ledger
	payments *payments.Service
}

func NewHandler(l *ledger.Ledger, p *payments.Service) *Handler {
	return &Handler{ledger: l, payments: p}
}

// POST /orders
func (h *Handler) Create(c *gin.Context) {
	var in ledger.CheckoutRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		respond.BadRequest(c, err)
		return
	}
	caller := middleware.CallerFrom(c)
	o, err := h.ledger.Create(c.Request.Context(), caller, caller.UserID, in)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, o)
}

// GET /orders/:id
func (h *Handler) Get(c *gin.Context) {
	o, err := h.ledger.Get(c.Request.Context(), middleware.CallerFrom(c), c.Param("id"))
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

// GET /me/orders
func (h *Handler) Mine(c *gin.Context) {
	caller := middleware.CallerFrom(c)
	list, err := h.ledger.ListByUser(c.Request.Context(), caller, caller.UserID)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

type cancelInput struct {
	ExpectedVersion int `json:"expected_version"`
}

// POST /orders/:id/cancel; the body is optional.
func (h *Handler) Cancel(c *gin.Context) {
	var in cancelInput
	if err := c.ShouldBindJSON(&in); err != nil && !errors.Is(err, io.EOF) {
		respond.BadRequest(c, err)
		return
	}
	o, err := h.ledger.UpdateStatus(c.Request.Context(), middleware.CallerFrom(c), workflow.Request{
		OrderID:         c.Param("id"),
		To:              orders.StatusCancelled,
		ExpectedVersion: in.ExpectedVersion,
	})
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

// POST /orders/:id/pay
func (h *Handler) Pay(c *gin.Context) {
	co, err := h.payments.StartCheckout(c.Request.Context(), middleware.CallerFrom(c), c.Param("id"))
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, co)
}

// GET /admin/orders
func (h *Handler) List(c *gin.Context) {
	f := orders.Filter{Search: strings.TrimSpace(c.Query("search"))}
	if raw := c.Query("status"); raw != "" && raw != "all" {
		st := orders.Status(raw)
		if !st.Valid() {
			respond.Error(c, apperr.Validation("unknown order status %q", raw))
			return
		}
		f.Status = st
	}
	list, err := h.ledger.ListAll(c.Request.Context(), middleware.CallerFrom(c), f)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

type statusInput struct {
	Status          orders.Status `json:"status"`
	ExpectedVersion int           `json:"expected_version"`
	TransactionRef  string        `json:"transaction_ref"`
	PaymentMethod   string        `json:"payment_method"`
}

// PUT /admin/orders/:id/status
func (h *Handler) SetStatus(c *gin.Context) {
	var in statusInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respond.BadRequest(c, err)
		return
	}
	o, err := h.ledger.UpdateStatus(c.Request.Context(), middleware.CallerFrom(c), workflow.Request{
		OrderID:         c.Param("id"),
		To:              in.Status,
		ExpectedVersion: in.ExpectedVersion,
		TransactionRef:  in.TransactionRef,
		PaymentMethod:   in.PaymentMethod,
	})
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}
