package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"gallery-app/internal/metrics"
)

// RequestLogger logs one JSON line per request and records it in m.
func RequestLogger(log *slog.Logger, m *metrics.Collector) gin.HandlerFunc {
	if log == nil {
		log = slog.Default()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		d := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		m.RecordRequest(c.Request.Method, route, status, d)

		attrs := []slog.Attr{
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", status),
			slog.Float64("duration_ms", float64(d.Nanoseconds())/float64(time.Millisecond)),
		}
		if caller := CallerFrom(c); !caller.IsAnonymous() {
			attrs = append(attrs, slog.String("user_id", caller.UserID))
		}
		level := slog.LevelInfo
		if status >= 500 {
			level = slog.LevelError
		}
		log.LogAttrs(c.Request.Context(), level, "http request", attrs...)
	}
}
