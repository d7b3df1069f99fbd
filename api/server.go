/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:     Unique ID per request, picked up by the logger
  2. RealIP:        Client address behind a proxy
  3. RequestLogger: zap request logging
  4. Recoverer:     Panic recovery (500 instead of crash)
  5. Metrics:       Prometheus latency and status counters
  6. Secure:        Security headers (nosniff, frame deny, CSP)
  7. RateLimit:     Per-IP request budget (httprate), when configured
  8. CORS:          Cross-origin requests for a browser front end

ROUTE GROUPS:
  /api/clients/*   Client directory, debts, credit reallocation
  /api/debts/*     Debt details, payments, interest
  /api/reports/*   Monthly and all-time reports
  /api/scenarios/* Demo datasets
  /metrics         Prometheus scrape endpoint
  /                Endpoint index

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"
	"go.uber.org/zap"

	"github.com/warp/tab-ledger/observability"
)

// RouterConfig holds the HTTP settings that aren't handler dependencies.
type RouterConfig struct {
	// CORSOrigins lists allowed browser origins. Empty allows any origin.
	CORSOrigins []string
	// RequestsPerMinute caps requests per client IP. Zero disables the limit.
	RequestsPerMinute int
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.RequestLogger(h.logger))
	r.Use(middleware.Recoverer)
	r.Use(h.metrics.Middleware)
	r.Use(secureHeaders(h.logger))
	if cfg.RequestsPerMinute > 0 {
		r.Use(httprate.Limit(cfg.RequestsPerMinute, time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				writeError(w, http.StatusTooManyRequests, "Rate limit exceeded", nil)
			}),
		))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Client routes
		r.Route("/clients", func(r chi.Router) {
			r.Get("/", h.ListClients)
			r.Post("/", h.CreateClient)
			r.Get("/{id}", h.GetClient)
			r.Delete("/{id}", h.DeleteClient)
			r.Get("/{id}/debts", h.ListDebts)
			r.Post("/{id}/debts", h.OpenDebt)
			r.Post("/{id}/reallocate", h.Reallocate)
		})

		// Debt routes
		r.Route("/debts", func(r chi.Router) {
			r.Get("/{id}", h.GetDebt)
			r.Delete("/{id}", h.DeleteDebt)
			r.Get("/{id}/payments", h.ListPayments)
			r.Post("/{id}/payments", h.RecordPayment)
			r.Post("/{id}/interest", h.ApplyInterest)
		})

		// Report routes
		r.Route("/reports", func(r chi.Router) {
			r.Get("/months/{month}", h.GetMonthReport)
			r.Get("/revenue", h.GetRevenueHistory)
			r.Get("/top-debtors", h.GetTopDebtors)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetStore)
		})
	})

	r.Method(http.MethodGet, "/metrics", h.metrics.Handler())

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Tab Ledger</title></head>
<body style="font-family: system-ui; max-width: 800px; margin: 50px auto; padding: 20px;">
<h1>Tab Ledger API</h1>
<ul>
<li><a href="/api/clients">/api/clients</a> - Clients and balances</li>
<li><a href="/api/reports/top-debtors">/api/reports/top-debtors</a> - Top debtors</li>
<li><a href="/api/reports/revenue">/api/reports/revenue</a> - Revenue by month</li>
<li><a href="/api/scenarios">/api/scenarios</a> - Demo datasets</li>
<li><a href="/metrics">/metrics</a> - Prometheus metrics</li>
</ul>
</body>
</html>`))
	})

	return r
}

func secureHeaders(logger *zap.Logger) func(http.Handler) http.Handler {
	sm := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'self'; style-src 'self' 'unsafe-inline'",
	})
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := sm.Process(w, r); err != nil {
				logger.Warn("secure headers blocked request", zap.Error(err))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
