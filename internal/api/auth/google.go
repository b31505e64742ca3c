package auth

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"gallery-app/internal/api/respond"
	"gallery-app/internal/apperr"
	"gallery-app/internal/identity"
)

const stateCookie = "oauth_state"

// GET /auth/google
func (h *Handler) GoogleStart(c *gin.Context) {
	if h.google == nil {
		respond.Error(c, apperr.Unavailable(nil))
		return
	}
	state, err := identity.RandomState()
	if err != nil {
		respond.Error(c, err)
		return
	}

	// 5 minutes, HttpOnly.
	c.SetCookie(stateCookie, state, 300, "/", "", h.secureCookies, true)
	c.Redirect(http.StatusFound, h.google.AuthCodeURL(state))
}

// GET /auth/google/callback
func (h *Handler) GoogleCallback(c *gin.Context) {
	if h.google == nil {
		respond.Error(c, apperr.Unavailable(nil))
		return
	}
	state := c.Query("state")
	code := c.Query("code")
	if code == "" || state == "" {
		respond.Error(c, apperr.Validation("missing code/state"))
		return
	}
	cookieState, err := c.Cookie(stateCookie)
	if err != nil || cookieState != state {
		respond.Error(c, apperr.Validation("invalid oauth state"))
		return
	}
	c.SetCookie(stateCookie, "", -1, "/", "", h.secureCookies, true)

	profile, err := h.google.Exchange(c.Request.Context(), code)
	if err != nil {
		respond.Error(c, err)
		return
	}
	s, err := h.identity.SignInWithGoogle(c.Request.Context(), *profile)
	if err != nil {
		respond.Error(c, err)
		return
	}

	if h.frontendRedirect == "" {
		c.JSON(http.StatusOK, h.view(s))
		return
	}
	c.Redirect(http.StatusFound, h.frontendRedirect+"?token="+url.QueryEscape(s.Token))
}
