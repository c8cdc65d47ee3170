package routes

import (
	"github.com/BradenHooton/staffgate/internal/auth"
	"github.com/BradenHooton/staffgate/internal/handlers"
	"github.com/BradenHooton/staffgate/internal/metrics"
	"github.com/BradenHooton/staffgate/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// Handlers groups the HTTP handlers mounted by RegisterRoutes
type Handlers struct {
	Auth          *handlers.AuthHandler
	ThrottleAdmin *handlers.ThrottleAdminHandler
	Health        *handlers.HealthHandler
}

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	h Handlers,
	tokenManager *auth.TokenManager,
	userRepo auth.UserRepository,
	rateLimitConfig middleware.RateLimitConfig,
) {
	router.Get("/health", h.Health.Health)
	router.Handle("/metrics", metrics.Handler())

	// Public routes - per-IP ceiling in front of the per-account throttle
	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(rateLimitConfig))
		r.Post("/auth/login", h.Auth.Login)
		r.Post("/auth/refresh", h.Auth.RefreshToken)
	})

	// Admin-only routes
	router.Group(func(r chi.Router) {
		r.Use(auth.AuthMiddleware(tokenManager))
		r.Use(auth.RequireRole(userRepo, "admin"))

		r.Get("/admin/login-throttles/{email}", h.ThrottleAdmin.GetStatus)
		r.Delete("/admin/login-throttles/{email}", h.ThrottleAdmin.Reset)
	})
}
