package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/signalix/accounts/internal/auth"
	"github.com/signalix/accounts/internal/http/handlers"
	"github.com/signalix/accounts/internal/metrics"
	"github.com/signalix/accounts/internal/middleware"
	"github.com/signalix/accounts/internal/model"
)

// Route is one entry of the route table.
type Route struct {
	Method  string
	Pattern string
	Policy  middleware.RoutePolicy
	// Limited routes share the per-IP rate limiter.
	Limited bool
	Handler http.HandlerFunc
}

// Deps are the collaborators the router wires into handlers.
type Deps struct {
	Auth     *handlers.AuthHandler
	Health   *handlers.HealthHandler
	Verifier auth.TokenVerifier
	Limiter  *middleware.RateLimiter
	Metrics  *metrics.Metrics
}

// Routes returns the route table. Each route's policy is evaluated by the
// gate when the route is dispatched.
func Routes(d Deps) []Route {
	return []Route{
		{http.MethodGet, "/health-check", middleware.Public, false, d.Health.HandleHealthCheck},
		{http.MethodGet, "/ready", middleware.Public, false, d.Health.HandleReady},
		{http.MethodPost, "/register", middleware.Public, true, d.Auth.HandleRegister},
		{http.MethodPost, "/login", middleware.Public, true, d.Auth.HandleLogin},
		{http.MethodGet, "/users/{id}", middleware.Authenticated(model.RoleUser, model.RoleAdmin), false, d.Auth.HandleGetProfile},
		{http.MethodDelete, "/users/{id}", middleware.Authenticated(model.RoleAdmin), false, d.Auth.HandleDeleteUser},
		{http.MethodPost, "/otp/request", middleware.Authenticated(model.RoleUser, model.RoleAdmin), false, d.Auth.HandleRequestOTP},
		{http.MethodPost, "/otp/verify", middleware.Authenticated(model.RoleUser, model.RoleAdmin), false, d.Auth.HandleVerifyOTP},
	}
}

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimw.Recoverer)
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	for _, route := range Routes(d) {
		chain := []func(http.Handler) http.Handler{middleware.Gate(d.Verifier, route.Policy)}
		if route.Limited && d.Limiter != nil {
			chain = append([]func(http.Handler) http.Handler{
				middleware.RateLimitMiddleware(d.Limiter, middleware.GetIPKey),
			}, chain...)
		}
		r.With(chain...).Method(route.Method, route.Pattern, route.Handler)
	}

	r.NotFound(handlers.NotFound)
	r.MethodNotAllowed(handlers.MethodNotAllowed)

	return r
}
