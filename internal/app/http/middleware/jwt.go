package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"gallery-app/internal/api/respond"
	"gallery-app/internal/apperr"
	"gallery-app/internal/domain/access"
	"gallery-app/internal/domain/users"
	"gallery-app/internal/identity"
)

const (
	callerKey  = "caller"
	sessionKey = "session"
)

// SessionResolver turns a bearer token into a live session, or nil.
type SessionResolver interface {
	GetSession(ctx context.Context, token string) (*identity.Session, error)
}

// bearerToken reads the Authorization header. EventSource clients cannot
// set headers, so a "token" query parameter is accepted as well.
func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		tok := strings.TrimPrefix(h, "Bearer ")
		if tok == h {
			return ""
		}
		return strings.TrimSpace(tok)
	}
	return c.Query("token")
}

func resolve(c *gin.Context, sessions SessionResolver) (*identity.Session, error) {
	tok := bearerToken(c)
	if tok == "" {
		return nil, nil
	}
	return sessions.GetSession(c.Request.Context(), tok)
}

// AuthMiddleware requires a live session and stores the derived caller.
func AuthMiddleware(sessions SessionResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := resolve(c, sessions)
		if err != nil {
			respond.Error(c, err)
			return
		}
		if sess == nil {
			respond.Error(c, apperr.Unauthenticated("invalid or expired session"))
			return
		}
		c.Set(sessionKey, sess)
		c.Set(callerKey, sess.Caller())
		c.Next()
	}
}

// OptionalAuth stores the caller when a valid session is presented and
// treats the request as anonymous otherwise.
func OptionalAuth(sessions SessionResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := resolve(c, sessions)
		if err != nil {
			respond.Error(c, err)
			return
		}
		if sess != nil {
			c.Set(sessionKey, sess)
			c.Set(callerKey, sess.Caller())
		}
		c.Next()
	}
}

// CallerFrom returns the request's caller; anonymous when none was set.
func CallerFrom(c *gin.Context) access.Caller {
	if v, ok := c.Get(callerKey); ok {
		if caller, ok := v.(access.Caller); ok {
			return caller
		}
	}
	return access.Anonymous()
}

func SessionFrom(c *gin.Context) *identity.Session {
	if v, ok := c.Get(sessionKey); ok {
		if s, ok := v.(*identity.Session); ok {
			return s
		}
	}
	return nil
}

func RequireRole(role users.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := CallerFrom(c)
		if caller.IsAnonymous() {
			respond.Error(c, apperr.Unauthenticated("sign in required"))
			return
		}
		if caller.Role != role {
			respond.Error(c, apperr.Forbidden("access denied"))
			return
		}
		c.Next()
	}
}
