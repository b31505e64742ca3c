package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gallery-app/internal/api/respond"
	"gallery-app/internal/apperr"
	"gallery-app/internal/app/http/middleware"
	"gallery-app/internal/domain/access"
	"gallery-app/internal/identity"
)

type Handler struct {
	identity *identity.Service
	notifier *identity.Notifier
	gate     *access.Gate
	google   *identity.GoogleAuth
	// frontendRedirect receives ?token= after Google sign-in; empty means
	// the callback answers with JSON.
	frontendRedirect string
	secureCookies    bool
}

type Options struct {
	Notifier         *identity.Notifier
	Google           *identity.GoogleAuth
	FrontendRedirect string
	SecureCookies    bool
}

func NewHandler(svc *identity.Service, gate *access.Gate, opts Options) *Handler {
	return &Handler{
		identity:         svc,
		notifier:         opts.Notifier,
		gate:             gate,
		google:           opts.Google,
		frontendRedirect: opts.FrontendRedirect,
		secureCookies:    opts.SecureCookies,
	}
}

type sessionView struct {
	*identity.Session
	Capabilities []string `json:"capabilities"`
}

func (h *Handler) view(s *identity.Session) sessionView {
	return sessionView{Session: s, Capabilities: access.CapabilitiesFor(h.gate, s.Caller())}
}

// POST /signup
func (h *Handler) SignUp(c *gin.Context) {
	var in identity.SignUpInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respond.BadRequest(c, err)
		return
	}
	s, err := h.identity.SignUp(c.Request.Context(), in)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, h.view(s))
}

type loginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// POST /login
func (h *Handler) Login(c *gin.Context) {
	var in loginInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respond.BadRequest(c, err)
		return
	}
	s, err := h.identity.SignIn(c.Request.Context(), in.Email, in.Password)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, h.view(s))
}

// POST /logout
func (h *Handler) Logout(c *gin.Context) {
	s := middleware.SessionFrom(c)
	if s == nil {
		respond.Error(c, apperr.Unauthenticated("sign in required"))
		return
	}
	if err := h.identity.SignOut(c.Request.Context(), s.ID); err != nil {
		respond.Error(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /session returns the current session without re-issuing the token.
func (h *Handler) Session(c *gin.Context) {
	s := middleware.SessionFrom(c)
	if s == nil {
		respond.Error(c, apperr.Unauthenticated("sign in required"))
		return
	}
	c.JSON(http.StatusOK, h.view(s))
}
