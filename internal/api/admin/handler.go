package admin

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"gallery-app/internal/accounts"
	"gallery-app/internal/api/respond"
	"gallery-app/internal/apperr"
	"gallery-app/internal/app/http/middleware"
	"gallery-app/internal/dashboard"
	"gallery-app/internal/domain/users"
)

type Handler struct {
	dashboard *dashboard.Service
	accounts  *accounts.Service
}

func NewHandler(d *dashboard.Service, a *accounts.Service) *Handler {
	return &Handler{dashboard: d, accounts: a}
}

// GET /admin/dashboard
func (h *Handler) Dashboard(c *gin.Context) {
	stats, err := h.dashboard.Stats(c.Request.Context(), middleware.CallerFrom(c))
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GET /admin/users?search=&role=&status=
func (h *Handler) ListUsers(c *gin.Context) {
	f := accounts.Filter{Search: strings.TrimSpace(c.Query("search"))}
	if raw := c.Query("role"); raw != "" && raw != "all" {
		r := users.Role(raw)
		if !r.Valid() {
			respond.Error(c, apperr.Validation("unknown role %q", raw))
			return
		}
		f.Role = r
	}
	if raw := c.Query("status"); raw != "" && raw != "all" {
		s := users.Status(raw)
		if !s.Valid() {
			respond.Error(c, apperr.Validation("unknown user status %q", raw))
			return
		}
		f.Status = s
	}

	list, err := h.accounts.List(c.Request.Context(), middleware.CallerFrom(c), f)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// GET /admin/users/:id
func (h *Handler) GetUser(c *gin.Context) {
	d, err := h.accounts.Get(c.Request.Context(), middleware.CallerFrom(c), c.Param("id"))
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// PATCH /admin/users/:id
func (h *Handler) UpdateUser(c *gin.Context) {
	var ch accounts.Change
	if err := c.ShouldBindJSON(&ch); err != nil {
		respond.BadRequest(c, err)
		return
	}
	u, err := h.accounts.Update(c.Request.Context(), middleware.CallerFrom(c), c.Param("id"), ch)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}
