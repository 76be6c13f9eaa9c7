package httpserver

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/jw6ventures/bookings/internal/apps"
	"github.com/jw6ventures/bookings/internal/auth"
	"github.com/jw6ventures/bookings/internal/availability"
	"github.com/jw6ventures/bookings/internal/config"
	"github.com/jw6ventures/bookings/internal/http/csrf"
	"github.com/jw6ventures/bookings/internal/http/ratelimit"
	"github.com/jw6ventures/bookings/internal/metrics"
	"github.com/jw6ventures/bookings/internal/ui"
)

// HealthChecker reports whether the backing store is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Services are the handlers' collaborators.
type Services struct {
	Health       HealthChecker
	Auth         *auth.Service
	Availability *availability.Service
	Apps         *apps.Service
}

// Router is the HTTP handler plus the limiters that own background
// goroutines.
type Router struct {
	http.Handler
	limiters []*ratelimit.IPRateLimiter
}

// Stop releases the rate limiters' cleanup goroutines.
func (r *Router) Stop() {
	for _, l := range r.limiters {
		l.Stop()
	}
}

// NewRouter wires all HTTP routes for the UI, viewer API and admin API.
func NewRouter(cfg *config.Config, svc Services) *Router {
	r := chi.NewRouter()

	// Auth endpoints: 5 requests per second, burst of 10
	authRateLimiter := ratelimit.NewIPRateLimiter(rate.Limit(5), 10, 5*time.Minute, cfg.TrustedProxies)
	// Admin API: 10 requests per second, burst of 20
	adminRateLimiter := ratelimit.NewIPRateLimiter(rate.Limit(10), 20, 5*time.Minute, cfg.TrustedProxies)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(overrideMethod)
	r.Use(metrics.Middleware())

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := svc.Health.HealthCheck(ctx); err != nil {
			http.Error(w, "unready", http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if cfg.PrometheusEnabled {
		r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			metrics.Handler().ServeHTTP(w, r)
		})
	}

	r.Route("/auth", func(r chi.Router) {
		r.Use(authRateLimiter.Middleware())
		r.Get("/login", svc.Auth.BeginOAuth)
		r.Get("/callback", svc.Auth.HandleOAuthCallback)
	})

	r.With(svc.Auth.RequireSession, csrf.Middleware(cfg)).Post("/auth/logout", svc.Auth.Logout)

	uiHandler := ui.NewHandler(cfg, svc.Availability)
	r.Group(func(r chi.Router) {
		r.Use(svc.Auth.RequireSession)
		r.Use(csrf.Middleware(cfg))
		r.Get("/", uiHandler.Home)
		r.Get("/availability", uiHandler.Availability)
		r.Get("/availability/{schedule}", uiHandler.EditSchedule)
		r.Post("/availability/{schedule}", uiHandler.UpdateSchedule)
	})

	viewer := availability.NewHandler(svc.Availability)
	r.Route("/api/viewer", func(r chi.Router) {
		r.Use(svc.Auth.RequireSession)
		r.Use(csrf.Middleware(cfg))
		r.Route("/availability/schedule", viewer.ScheduleRoutes)
		r.Get("/eventTypes", viewer.EventTypes)
	})

	r.Route("/api/admin/apps", func(r chi.Router) {
		r.Use(adminRateLimiter.Middleware())
		r.Use(svc.Auth.RequireSession)
		r.Use(svc.Auth.RequireAdmin)
		r.Use(csrf.Middleware(cfg))
		apps.NewHandler(svc.Apps).Routes(r)
	})

	return &Router{Handler: r, limiters: []*ratelimit.IPRateLimiter{authRateLimiter, adminRateLimiter}}
}

func overrideMethod(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := r.Method
		if r.Method == http.MethodPost {
			if m := strings.TrimSpace(r.PostFormValue("_method")); m != "" {
				method = m
			} else if m := strings.TrimSpace(r.URL.Query().Get("_method")); m != "" {
				method = m
			}
		}
		switch strings.ToUpper(method) {
		case http.MethodPut, http.MethodDelete:
			r.Method = strings.ToUpper(method)
		}
		next.ServeHTTP(w, r)
	})
}
