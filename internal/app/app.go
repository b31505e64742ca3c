// Package app wires configuration, persistence and services into the HTTP
// engine.
package app

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"gallery-app/config"
	"gallery-app/internal/accounts"
	adminapi "gallery-app/internal/api/admin"
	artworksapi "gallery-app/internal/api/artworks"
	authapi "gallery-app/internal/api/auth"
	ordersapi "gallery-app/internal/api/orders"
	stripewebhooks "gallery-app/internal/api/stripewebhook"
	routes "gallery-app/internal/app/http"
	"gallery-app/internal/app/http/middleware"
	"gallery-app/internal/dashboard"
	"gallery-app/internal/domain/access"
	"gallery-app/internal/identity"
	"gallery-app/internal/infra/storage"
	stripeinfra "gallery-app/internal/infra/stripe"
	"gallery-app/internal/inventory"
	"gallery-app/internal/ledger"
	"gallery-app/internal/metrics"
	"gallery-app/internal/payments"
	"gallery-app/internal/workflow"
)

// Services exposes the wired services, mainly for tests.
type Services struct {
	Identity  *identity.Service
	Notifier  *identity.Notifier
	Inventory *inventory.Store
	Workflow  *workflow.Controller
	Ledger    *ledger.Ledger
	Accounts  *accounts.Service
	Dashboard *dashboard.Service
	Payments  *payments.Service
}

// New builds the engine with every route registered. reg receives the
// application metrics and backs /metrics.
func New(cfg *config.Config, db *gorm.DB, log *slog.Logger, reg *prometheus.Registry) (*gin.Engine, *Services, error) {
	gate, err := access.NewGate()
	if err != nil {
		return nil, nil, err
	}
	m := metrics.NewCollector(reg)

	files, err := storage.NewLocal(cfg.MediaDir, cfg.MediaBaseURL)
	if err != nil {
		return nil, nil, err
	}

	notifier := identity.NewNotifier()
	svc := &Services{Notifier: notifier}
	svc.Identity = identity.NewService(db, identity.Options{
		Secret:     []byte(cfg.JWTSecret),
		SessionTTL: cfg.SessionTTL,
		Timeout:    cfg.QueryTimeout,
		Notifier:   notifier,
		Logger:     log,
	})
	svc.Inventory = inventory.NewStore(db, gate, inventory.Options{
		Timeout: cfg.QueryTimeout,
		Files:   files,
		Logger:  log,
	})
	svc.Workflow = workflow.NewController(db, gate, workflow.Options{
		Timeout:      cfg.QueryTimeout,
		CancelWindow: cfg.OrderCancelWindow,
		Metrics:      m,
		Logger:       log,
	})
	svc.Ledger = ledger.New(db, gate, svc.Workflow, ledger.Options{
		Timeout: cfg.QueryTimeout,
		Metrics: m,
		Logger:  log,
	})
	svc.Accounts = accounts.NewService(db, gate, svc.Identity, cfg.QueryTimeout, log)
	svc.Dashboard = dashboard.NewService(db, gate, cfg.QueryTimeout)

	// Interfaces stay nil (not typed-nil) while Stripe is unconfigured.
	var (
		gateway payments.Gateway
		parser  stripewebhooks.EventParser
	)
	if cfg.StripeEnabled() {
		gw := stripeinfra.NewGateway(cfg.StripeSecretKey, cfg.StripeWebhookSecret, cfg.StripeCurrency, cfg.AppURL)
		gateway, parser = gw, gw
	} else {
		log.Info("stripe not configured, card checkout disabled")
	}
	svc.Payments = payments.NewService(svc.Ledger, gate, gateway, log)

	var google *identity.GoogleAuth
	if cfg.GoogleEnabled() {
		google = identity.NewGoogleAuth(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     splitOrigins(cfg.CORSOrigin),
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	routes.RegisterRoutes(r, routes.Deps{
		Auth: authapi.NewHandler(svc.Identity, gate, authapi.Options{
			Notifier:         notifier,
			Google:           google,
			FrontendRedirect: cfg.GoogleFrontendRedirect,
			SecureCookies:    strings.HasPrefix(cfg.AppURL, "https://"),
		}),
		Artworks: artworksapi.NewHandler(svc.Inventory, cfg.MediaMaxBytes),
		Orders:   ordersapi.NewHandler(svc.Ledger, svc.Payments),
		Admin:    adminapi.NewHandler(svc.Dashboard, svc.Accounts),
		Webhook:  stripewebhooks.NewHandler(parser, svc.Payments, log),
		Sessions: svc.Identity,
		Limiter:  middleware.NewRateLimiter(cfg.RateLimitPerMinute),
		Metrics:  m,
		Gatherer: reg,
		Logger:   log,
		MediaDir: files.Root(),
		MediaURL: mediaRoute(cfg.MediaBaseURL),
	})
	return r, svc, nil
}

func splitOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"http://localhost:3000"}
	}
	return out
}

// mediaRoute is the local path media is served under; absolute base URLs
// point at a CDN and get no local route.
func mediaRoute(base string) string {
	if !strings.HasPrefix(base, "/") {
		return ""
	}
	return fmt.Sprintf("/%s", strings.Trim(base, "/"))
}
