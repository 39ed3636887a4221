package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/lorrc/support-redistributor/internal/adapters/primary/http/middleware"
	"github.com/lorrc/support-redistributor/internal/auth"
)

// RouterConfig collects the handlers and middleware mounted by NewRouter.
// Nil handlers and limiters are skipped.
type RouterConfig struct {
	Logger       *slog.Logger
	TokenManager *auth.TokenManager

	Redistribute *RedistributeHandler
	Presence     *PresenceHandler
	WebSocket    *WebSocketHandler
	Health       *HealthHandler
	Metrics      http.Handler

	// Instrument wraps every request, typically with metrics collection.
	Instrument func(http.Handler) http.Handler

	GeneralLimiter   *mw.RateLimiter
	TriggerLimiter   *mw.RateLimiter
	HeartbeatLimiter *mw.RateLimitByKey
}

// NewRouter builds the chi router for the service.
func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.RequestLogger(cfg.Logger))
	r.Use(mw.RecoveryLogger(cfg.Logger))
	if cfg.Instrument != nil {
		r.Use(cfg.Instrument)
	}

	// Probes and scraping stay outside rate limiting.
	if cfg.Health != nil {
		cfg.Health.RegisterRoutes(r)
	}
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Group(func(r chi.Router) {
		if cfg.GeneralLimiter != nil {
			r.Use(cfg.GeneralLimiter.Middleware)
		}

		// Function endpoint, called from browsers with platform headers.
		if cfg.Redistribute != nil {
			r.Route("/functions/v1", func(r chi.Router) {
				r.Use(mw.FunctionCORS())

				protect := []func(http.Handler) http.Handler{mw.JWTMiddleware(cfg.TokenManager)}
				if cfg.TriggerLimiter != nil {
					protect = append(protect, cfg.TriggerLimiter.Middleware)
				}
				cfg.Redistribute.RegisterRoutes(r, protect...)
			})
		}

		r.Route("/api/v1", func(r chi.Router) {
			// WebSocket route (Authentication is handled inside the handler)
			if cfg.WebSocket != nil {
				r.Get("/ws", cfg.WebSocket.ServeHTTP)
			}

			// Protected REST routes
			r.Group(func(r chi.Router) {
				r.Use(mw.JWTMiddleware(cfg.TokenManager))
				if cfg.HeartbeatLimiter != nil {
					r.Use(cfg.HeartbeatLimiter.PerUser)
				}
				if cfg.Presence != nil {
					r.Route("/support/presence", cfg.Presence.RegisterRoutes)
				}
			})
		})
	})

	return r
}
