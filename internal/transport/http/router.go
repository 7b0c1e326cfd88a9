package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
)

type RouterConfig struct {
	AuthRateLimit       int
	AuthRateLimitWindow time.Duration
}

// NewRouter assembles the public HTTP surface. Booking, availability and
// sync mirror the schedule endpoints; profile routes sit behind the auth
// middleware; login and register are rate limited per client IP.
func NewRouter(
	schedule *ScheduleHandler,
	userHandler *UserHandler,
	auth *Authenticator,
	log *slog.Logger,
	cfg RouterConfig,
) chi.Router {
	if cfg.AuthRateLimit <= 0 {
		cfg.AuthRateLimit = 10
	}
	if cfg.AuthRateLimitWindow <= 0 {
		cfg.AuthRateLimitWindow = time.Minute
	}

	r := chi.NewRouter()
	r.Use(RequestLogger(log))

	r.Route("/schedule", func(r chi.Router) {
		r.Post("/book", schedule.Book)
		r.Get("/availability/{professionalID}", schedule.Availability)
		r.Post("/sync", schedule.Sync)
	})

	r.Route("/user", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(httprate.LimitByIP(cfg.AuthRateLimit, cfg.AuthRateLimitWindow))
			r.Post("/register", userHandler.Register)
			r.Post("/login", userHandler.Login)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware)
			r.Post("/logout", userHandler.Logout)
			r.Get("/profile", userHandler.GetProfile)
			r.Put("/profile", userHandler.UpdateProfile)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}
