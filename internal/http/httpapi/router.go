package httpapi

import (
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"server/internal/http/handlers"
	"server/internal/middleware"
)

func NewRouter(app *handlers.App, lookup middleware.CountryLookup) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(app.Logger),
		middleware.CORS(app.Config.CORSAllowedOrigins),
		middleware.I18N(app.Config.DefaultLocale, lookup),
		middleware.RateLimit(app.Config.RateLimitPerMin, time.Minute),
	)

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/jobs", func(r chi.Router) {
		r.Post("/", app.SubmitJob)
		r.Get("/{job_id}", app.JobStatus)
	})

	r.Route("/v1/credits/{owner_id}", func(r chi.Router) {
		r.Get("/", app.CreditBalance)
		r.Post("/grant", app.CreditGrant)
		r.Get("/ledger", app.CreditLedger)
	})

	r.Get("/v1/stats/summary", app.Stats)

	return r
}
