package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router mounts all routes. maxInflight bounds concurrent requests at the
// edge so a saturated store degrades to fast 503s instead of unbounded
// goroutine queueing.
func Router(h *Handlers, maxInflight int) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(withConcurrencyLimit(maxInflight))

	r.Get("/healthz", h.Healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/accounts", h.OpenAccount)
		r.Get("/accounts/{id}/balance", h.GetBalance)
		r.Post("/accounts/{id}/close", h.CloseAccount)
		r.Post("/accounts/{id}/overdraft", h.SetOverdraft)

		r.Post("/commands/deposit", h.Deposit)
		r.Post("/commands/withdraw", h.Withdraw)
		r.Post("/commands/transfer", h.Transfer)
		r.Get("/commands/{id}", h.GetCommand)

		r.Get("/transfers/stuck", h.ListStuckTransfers)
		r.Get("/transfers/{id}", h.GetTransfer)
	})

	return r
}

func withConcurrencyLimit(max int) func(http.Handler) http.Handler {
	if max <= 0 {
		max = 64
	}
	sem := make(chan struct{}, max)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
				next.ServeHTTP(w, r)
			default:
				// Fast fail instead of queueing forever.
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"error":"server busy"}`))
			}
		})
	}
}
