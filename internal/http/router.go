package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/example/cart-scheduler/internal/application"
)

// RouterConfig wires handlers and cross cutting middleware into the router.
// Nil handlers leave their routes unregistered.
type RouterConfig struct {
	Health        *HealthHandler
	Auth          *AuthHandler
	Registration  *RegistrationHandler
	Users         *UserHandler
	Carts         *CartHandler
	Bookings      *BookingHandler
	MeetingPoints *MeetingPointHandler
	Events        *EventHandler
	Authenticator Authenticator
	LoginLimiter  *RateLimiter
	Logger        *slog.Logger
	Middleware    []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := defaultLogger(cfg.Logger)
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	for _, mw := range cfg.Middleware {
		if mw != nil {
			r.Use(mw)
		}
	}

	adminOnly := RequireRole(application.Principal.IsAdmin, logger)
	plannerOnly := RequireRole(application.Principal.CanPlan, logger)

	if cfg.Health != nil {
		r.Get("/healthz", cfg.Health.Live)
		r.Get("/readyz", cfg.Health.Ready)
	}

	if cfg.Auth != nil {
		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				if cfg.LoginLimiter != nil {
					r.Use(cfg.LoginLimiter.Middleware(logger))
				}
				r.Post("/login", cfg.Auth.Login)
			})
			r.Post("/refresh", cfg.Auth.Refresh)
			r.Post("/logout", cfg.Auth.Logout)
		})
	}

	if cfg.Registration != nil {
		r.Get("/register/validate/{token}", cfg.Registration.Validate)
		r.Post("/register", cfg.Registration.Complete)
	}

	r.Group(func(r chi.Router) {
		r.Use(RequireAuth(cfg.Authenticator, logger))

		if cfg.Auth != nil {
			r.Get("/auth/me", cfg.Auth.Me)
		}

		if h := cfg.Carts; h != nil {
			r.Route("/carts", func(r chi.Router) {
				r.Get("/", h.List)
				r.Get("/availability", h.Availability)
				r.Get("/{cartID}", h.Get)
				if cfg.Bookings != nil {
					r.Get("/{cartID}/bookings", cfg.Bookings.ByCart)
				}
				r.Group(func(r chi.Router) {
					r.Use(adminOnly)
					r.Post("/", h.Create)
					r.Put("/{cartID}", h.Update)
					r.Post("/{cartID}/toggle", h.Toggle)
					r.Delete("/{cartID}", h.Delete)
				})
			})
		}

		if h := cfg.Bookings; h != nil {
			r.Route("/bookings", func(r chi.Router) {
				r.Get("/", h.List)
				r.Get("/mine", h.Mine)
				r.Post("/", h.Create)
				r.Delete("/{bookingID}", h.Delete)
			})
		}

		if h := cfg.MeetingPoints; h != nil {
			r.Route("/meeting-points", func(r chi.Router) {
				r.Get("/", h.List)
				r.Get("/export.pdf", h.Export(FormatPDF))
				r.Get("/export.ics", h.Export(FormatICS))
				r.Get("/export", h.Export(FormatPDF))
				r.Get("/{id}", h.Get)
				r.Group(func(r chi.Router) {
					r.Use(plannerOnly)
					r.Post("/", h.Create)
					r.Post("/series", h.CreateSeries)
					r.Patch("/{id}", h.Update)
					r.Put("/{id}", h.Update)
					r.Delete("/{id}", h.Delete)
					r.Delete("/series/{seriesID}", h.DeleteSeries)
					r.Get("/stats/conductors", h.ConductorStats)
					r.Get("/stats/monthly", h.MonthlyStats)
				})
			})
		}

		if h := cfg.Events; h != nil {
			r.Route("/events", func(r chi.Router) {
				r.Get("/", h.List)
				r.Group(func(r chi.Router) {
					r.Use(adminOnly)
					r.Post("/", h.Create)
					r.Put("/{eventID}", h.Update)
					r.Delete("/{eventID}", h.Delete)
				})
			})
		}

		if h := cfg.Users; h != nil {
			r.Route("/users", func(r chi.Router) {
				r.Get("/bookable", h.Bookable)
				r.Group(func(r chi.Router) {
					r.Use(adminOnly)
					r.Get("/", h.List)
					r.Post("/", h.Create)
					r.Get("/check-username", h.CheckUsername)
					r.Put("/{userID}", h.Update)
					r.Post("/{userID}/active", h.SetActive)
					r.Delete("/{userID}", h.Delete)
					r.Post("/{userID}/invite", h.Invite)
					r.Post("/{userID}/reset-password", h.ResetPassword)
				})
			})
		}
	})

	return r
}
