package httpapi

import (
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"reelmint/internal/http/handlers"
	"reelmint/internal/middleware"
	"reelmint/internal/telemetry"
)

// Options configures the cross-cutting middleware.
type Options struct {
	JWTSecret       string
	RateLimitPerMin int
	AllowedOrigins  []string
}

func NewRouter(app *handlers.App, opts Options) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, chimw.RealIP, chimw.Recoverer)
	r.Use(middleware.Logger(app.Logger))
	if len(opts.AllowedOrigins) > 0 {
		r.Use(middleware.CORS(opts.AllowedOrigins))
	}
	if opts.RateLimitPerMin > 0 {
		r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))
	}

	r.Get("/v1/healthz", app.Health)
	r.Method(stdhttp.MethodGet, "/metrics", telemetry.Handler())

	// Provider callbacks authenticate with their own signature, not JWT.
	r.Post("/v1/webhooks/video/{provider}", app.VideoWebhook)

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthJWT(opts.JWTSecret))

		r.Route("/v1/videos", func(r chi.Router) {
			r.Post("/", app.VideosSubmit)
			r.Get("/", app.VideosList)
			r.Get("/{task_id}", app.VideoStatus)
			r.Post("/{task_id}/refresh", app.VideoRefresh)
			r.Post("/{task_id}/cancel", app.VideoCancel)
			r.Delete("/{task_id}", app.VideoDelete)
		})

		r.Route("/v1/credits", func(r chi.Router) {
			r.Get("/balance", app.CreditBalance)
			r.Get("/transactions", app.CreditTransactions)
			r.Post("/recharge", app.CreditRecharge)
		})

		r.Get("/v1/events", app.EventStream)
	})

	return r
}
