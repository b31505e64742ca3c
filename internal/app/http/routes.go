package routes

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	adminapi "gallery-app/internal/api/admin"
	artworksapi "gallery-app/internal/api/artworks"
	authapi "gallery-app/internal/api/auth"
	ordersapi "gallery-app/internal/api/orders"
	stripewebhooks "gallery-app/internal/api/stripewebhook"
	"gallery-app/internal/app/http/middleware"
	"gallery-app/internal/domain/users"
	"gallery-app/internal/metrics"
)

// Deps carries the handlers and shared middleware state for RegisterRoutes.
type Deps struct {
	Auth     *authapi.Handler
	Artworks *artworksapi.Handler
	Orders   *ordersapi.Handler
	Admin    *adminapi.Handler
	Webhook  *stripewebhooks.Handler

	Sessions middleware.SessionResolver
	Limiter  *middleware.RateLimiter
	Metrics  *metrics.Collector
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger

	// MediaDir is served under MediaURL when both are set.
	MediaDir string
	MediaURL string
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	r.Use(middleware.RequestLogger(d.Logger, d.Metrics))

	// Raw body is needed for signature verification; no sanitizing here.
	r.POST("/webhook", d.Webhook.StripeWebhook)
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(metrics.Handler(d.Gatherer)))
	}
	if d.MediaDir != "" && d.MediaURL != "" {
		r.Static(d.MediaURL, d.MediaDir)
	}

	limited := d.Limiter.Middleware()

	public := r.Group("/")
	public.Use(middleware.OptionalAuth(d.Sessions), middleware.SanitizeAndCleanInputMiddleware())
	public.GET("/categories", d.Artworks.Categories)
	public.GET("/artworks", d.Artworks.ListAvailable)
	public.GET("/artworks/:id", d.Artworks.Get)
	public.POST("/signup", limited, d.Auth.SignUp)
	public.POST("/login", limited, d.Auth.Login)
	public.GET("/auth/google", d.Auth.GoogleStart)
	public.GET("/auth/google/callback", d.Auth.GoogleCallback)

	// Authenticated
	auth := r.Group("/")
	auth.Use(middleware.AuthMiddleware(d.Sessions), middleware.SanitizeAndCleanInputMiddleware())
	auth.POST("/logout", d.Auth.Logout)
	auth.GET("/session", d.Auth.Session)
	auth.GET("/session/events", d.Auth.Events)
	auth.GET("/me/orders", d.Orders.Mine)
	auth.POST("/orders", limited, d.Orders.Create)
	auth.GET("/orders/:id", d.Orders.Get)
	auth.POST("/orders/:id/cancel", d.Orders.Cancel)
	auth.POST("/orders/:id/pay", d.Orders.Pay)

	// Admin routes
	admin := r.Group("/admin")
	admin.Use(middleware.AuthMiddleware(d.Sessions), middleware.RequireRole(users.RoleAdmin), middleware.SanitizeAndCleanInputMiddleware())
	admin.GET("/dashboard", d.Admin.Dashboard)

	admin.GET("/artworks", d.Artworks.List)
	admin.POST("/artworks", d.Artworks.Create)
	admin.PUT("/artworks/:id", d.Artworks.Update)
	admin.PUT("/artworks/:id/status", d.Artworks.SetStatus)
	admin.DELETE("/artworks/:id", d.Artworks.Delete)
	admin.POST("/artworks/:id/image", d.Artworks.UploadImage)

	admin.GET("/orders", d.Orders.List)
	admin.PUT("/orders/:id/status", d.Orders.SetStatus)

	admin.GET("/users", d.Admin.ListUsers)
	admin.GET("/users/:id", d.Admin.GetUser)
	admin.PATCH("/users/:id", d.Admin.UpdateUser)
}
