package auth

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"gallery-app/internal/app/http/middleware"
	"gallery-app/internal/domain/access"
	"gallery-app/internal/identity"
	"gallery-app/internal/logger"
	fixtures "gallery-app/internal/testutil"
)

type env struct {
	svc    *identity.Service
	engine *gin.Engine
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	notifier := identity.NewNotifier()
	svc := identity.NewService(fixtures.NewDB(t), identity.Options{
		Secret:   []byte("test-secret"),
		HashCost: bcrypt.MinCost,
		Notifier: notifier,
		Logger:   logger.Discard(),
	})
	h := NewHandler(svc, access.MustNewGate(), Options{Notifier: notifier})

	r := gin.New()
	r.POST("/signup", h.SignUp)
	r.POST("/login", h.Login)
	r.GET("/auth/google", h.GoogleStart)
	authed := r.Group("/", middleware.AuthMiddleware(svc))
	authed.POST("/logout", h.Logout)
	authed.GET("/session", h.Session)
	authed.GET("/session/events", h.Events)
	return &env{svc: svc, engine: r}
}

func (e *env) do(method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

func TestSignUpLoginSession(t *testing.T) {
	e := newEnv(t)

	w := e.do(http.MethodPost, "/signup", "", `{"email":"Bob@Example.com","password":"Passw0rd","name":"Bob"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = e.do(http.MethodPost, "/signup", "", `{"email":"bob@example.com","password":"Passw0rd","name":"Bob"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = e.do(http.MethodPost, "/login", "", `{"email":"bob@example.com","password":"wrong-pass1"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(http.MethodPost, "/login", "", `{"email":"bob@example.com","password":"Passw0rd"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var login struct {
		Token        string   `json:"token"`
		Capabilities []string `json:"capabilities"`
		User         struct {
			Email string `json:"email"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &login))
	assert.Equal(t, "bob@example.com", login.User.Email)
	assert.Contains(t, login.Capabilities, string(access.ActionCreateOrder))
	assert.NotContains(t, login.Capabilities, string(access.ActionManageCatalog))

	w = e.do(http.MethodGet, "/session", login.Token, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = e.do(http.MethodPost, "/logout", login.Token, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = e.do(http.MethodGet, "/session", login.Token, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSignUp_Validation(t *testing.T) {
	e := newEnv(t)
	w := e.do(http.MethodPost, "/signup", "", `{"email":"bob@example.com","password":"short","name":"Bob"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = e.do(http.MethodPost, "/signup", "", `{"email":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGoogleDisabled(t *testing.T) {
	e := newEnv(t)
	w := e.do(http.MethodGet, "/auth/google", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

type sseEvent struct {
	name string
	data string
}

func readEvent(t *testing.T, sc *bufio.Scanner) sseEvent {
	t.Helper()
	var ev sseEvent
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if ev.name != "" {
				return ev
			}
		case strings.HasPrefix(line, "event:"):
			ev.name = strings.TrimPrefix(line, "event:")
		case strings.HasPrefix(line, "data:"):
			ev.data = strings.TrimPrefix(line, "data:")
		}
	}
	t.Fatalf("stream ended before a complete event: %v", sc.Err())
	return ev
}

func TestSessionEvents(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	bob, err := e.svc.SignUp(ctx, identity.SignUpInput{Email: "bob@example.com", Password: "Passw0rd", Name: "Bob"})
	require.NoError(t, err)

	srv := httptest.NewServer(e.engine)
	defer srv.Close()

	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, srv.URL+"/session/events?token="+bob.Token, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	// Another user's activity is not delivered.
	_, err = e.svc.SignUp(ctx, identity.SignUpInput{Email: "eve@example.com", Password: "Passw0rd", Name: "Eve"})
	require.NoError(t, err)

	second, err := e.svc.SignIn(ctx, "bob@example.com", "Passw0rd")
	require.NoError(t, err)

	sc := bufio.NewScanner(resp.Body)
	ev := readEvent(t, sc)
	assert.Equal(t, string(identity.EventSignedIn), ev.name)
	var payload identity.Event
	require.NoError(t, json.Unmarshal([]byte(ev.data), &payload))
	assert.Equal(t, bob.User.ID, payload.UserID)
	assert.Equal(t, second.ID, payload.SessionID)

	require.NoError(t, e.svc.SignOut(ctx, bob.ID))
	ev = readEvent(t, sc)
	assert.Equal(t, string(identity.EventSignedOut), ev.name)
	assert.True(t, bytes.Contains([]byte(ev.data), []byte(bob.ID)))

	// Signing out this session ends the stream.
	for sc.Scan() {
	}
	assert.NoError(t, sc.Err())
}
