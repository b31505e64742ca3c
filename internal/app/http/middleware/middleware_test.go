package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gallery-app/internal/domain/users"
	"gallery-app/internal/identity"
	"gallery-app/internal/logger"
	"gallery-app/internal/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeSessions map[string]*identity.Session

func (f fakeSessions) GetSession(_ context.Context, token string) (*identity.Session, error) {
	if token == "broken" {
		return nil, errors.New("db down")
	}
	return f[token], nil
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	sessions := fakeSessions{
		"good": {ID: "s1", User: &users.User{ID: "u1", Email: "bob@example.com", Role: users.RoleUser}},
	}
	r := gin.New()
	r.GET("/me", AuthMiddleware(sessions), func(c *gin.Context) {
		caller := CallerFrom(c)
		c.JSON(http.StatusOK, gin.H{"user_id": caller.UserID, "session_id": caller.SessionID})
	})

	cases := map[string]struct {
		header string
		query  string
		want   int
	}{
		"no token":         {want: http.StatusUnauthorized},
		"not bearer":       {header: "Basic abc", want: http.StatusUnauthorized},
		"unknown token":    {header: "Bearer nope", want: http.StatusUnauthorized},
		"lookup failure":   {header: "Bearer broken", want: http.StatusInternalServerError},
		"valid header":     {header: "Bearer good", want: http.StatusOK},
		"valid query form": {query: "?token=good", want: http.StatusOK},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me"+tc.query, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := serve(r, req)
			assert.Equal(t, tc.want, w.Code, w.Body.String())
			if tc.want == http.StatusOK {
				assert.JSONEq(t, `{"user_id":"u1","session_id":"s1"}`, w.Body.String())
			}
		})
	}
}

func TestOptionalAuth(t *testing.T) {
	r := gin.New()
	r.GET("/", OptionalAuth(fakeSessions{}), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"anonymous": CallerFrom(c).IsAnonymous()})
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer expired")
	w := serve(r, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"anonymous":true}`, w.Body.String())
}

func TestRequireRole(t *testing.T) {
	sessions := fakeSessions{
		"user":  {ID: "s1", User: &users.User{ID: "u1", Role: users.RoleUser}},
		"admin": {ID: "s2", User: &users.User{ID: "u2", Role: users.RoleAdmin}},
	}
	r := gin.New()
	r.GET("/admin", OptionalAuth(sessions), RequireRole(users.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for token, want := range map[string]int{
		"":      http.StatusUnauthorized,
		"user":  http.StatusForbidden,
		"admin": http.StatusOK,
	} {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		assert.Equal(t, want, serve(r, req).Code, "token %q", token)
	}
}

func echoBody(c *gin.Context) {
	b, _ := io.ReadAll(c.Request.Body)
	c.Data(http.StatusOK, "application/json", b)
}

func TestSanitize(t *testing.T) {
	r := gin.New()
	r.POST("/", SanitizeAndCleanInputMiddleware(), echoBody)

	body := `{"title":"<script>alert(1)</script>O'Keeffe <b>Storm</b>","password":"<p>x</p>1a","nested":{"tags":["<i>a</i>"]},"price":12.50}`
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := serve(r, req)
	require.Equal(t, http.StatusOK, w.Code)

	var got map[string]any
	dec := json.NewDecoder(w.Body)
	dec.UseNumber()
	require.NoError(t, dec.Decode(&got))
	assert.Equal(t, "O'Keeffe Storm", got["title"])
	assert.Equal(t, "<p>x</p>1a", got["password"])
	assert.Equal(t, []any{"a"}, got["nested"].(map[string]any)["tags"])
	assert.Equal(t, json.Number("12.50"), got["price"])
}

func TestSanitize_EncodedMarkup(t *testing.T) {
	r := gin.New()
	r.POST("/", SanitizeAndCleanInputMiddleware(), echoBody)

	cases := map[string]struct {
		in   string
		want string
	}{
		"encoded script":        {in: `&lt;script&gt;alert(1)&lt;/script&gt;Dawn`, want: "Dawn"},
		"encoded tag":           {in: `&lt;img src=x onerror=alert(1)&gt;Dawn`, want: "Dawn"},
		"double encoded":        {in: `&amp;lt;b&amp;gt;Dawn`, want: "&lt;b&gt;Dawn"},
		"literal angle bracket": {in: `1 < 2`, want: "1 &lt; 2"},
		"plain punctuation":     {in: `Tom & "Jerry" O'Keeffe`, want: `Tom & "Jerry" O'Keeffe`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			body, err := json.Marshal(map[string]string{"title": tc.in})
			require.NoError(t, err)
			req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			w := serve(r, req)
			require.Equal(t, http.StatusOK, w.Code)

			var got map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
			assert.Equal(t, tc.want, got["title"])
			assert.NotContains(t, got["title"], "<")
		})
	}
}

func TestSanitize_PassThrough(t *testing.T) {
	r := gin.New()
	r.POST("/", SanitizeAndCleanInputMiddleware(), echoBody)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString("<b>raw</b>"))
	req.Header.Set("Content-Type", "text/plain")
	w := serve(r, req)
	assert.Equal(t, "<b>raw</b>", w.Body.String())

	req = httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString("{nope"))
	req.Header.Set("Content-Type", "application/json")
	assert.Equal(t, http.StatusBadRequest, serve(r, req).Code)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	r := gin.New()
	r.POST("/login", rl.Middleware(), func(c *gin.Context) { c.Status(http.StatusOK) })

	hit := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = ip + ":1234"
		return serve(r, req)
	}

	assert.Equal(t, http.StatusOK, hit("10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, hit("10.0.0.1").Code)
	w := hit("10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, hit("10.0.0.2").Code, "limits are per client")

	now = now.Add(31 * time.Second)
	assert.Equal(t, http.StatusOK, hit("10.0.0.1").Code, "one token refills after 30s")

	now = now.Add(time.Hour)
	hit("10.0.0.3")
	assert.Equal(t, 1, rl.Len(), "idle clients are dropped")
}

func TestRequestLogger(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewCollector(reg)

	r := gin.New()
	r.Use(RequestLogger(logger.Discard(), m))
	r.GET("/artworks/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	serve(r, httptest.NewRequest(http.MethodGet, "/artworks/a1", nil))
	serve(r, httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	families, err := reg.Gather()
	require.NoError(t, err)
	routes := map[string]float64{}
	for _, f := range families {
		if f.GetName() != "gallery_http_requests_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			var route, status string
			for _, lp := range metric.GetLabel() {
				switch lp.GetName() {
				case "route":
					route = lp.GetValue()
				case "status":
					status = lp.GetValue()
				}
			}
			routes[route+" "+status] = metric.GetCounter().GetValue()
		}
	}
	assert.Equal(t, map[string]float64{"/artworks/:id 404": 1, "unmatched 404": 1}, routes)
}
