package handler

import (
	"context"
	"net/http"

	chathandler "github.com/boddenberg/vendas-bot-go/internal/chat/handler"
	"github.com/boddenberg/vendas-bot-go/internal/infra/observability"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// ReadinessCheck pings one dependency. A non-nil error marks it unhealthy.
type ReadinessCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

// Deps carries everything the router wires into handlers.
// Queue and Webhook are optional: without Queue the inbound webhook
// answers 503, without Webhook it is served unauthenticated.
type Deps struct {
	Engine  chathandler.Engine
	Queue   chathandler.Enqueuer
	Webhook TokenValidator
	Metrics *observability.Metrics
	Checks  []ReadinessCheck
	Logger  *zap.Logger
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler())
	r.Get("/readyz", readyzHandler(deps.Checks, logger))
	if deps.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Metrics.Registry, promhttp.HandlerOpts{}))
	} else {
		r.Handle("/metrics", promhttp.Handler())
	}

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {

		// =============================================
		// 1. Turnos
		// POST /v1/messages
		// POST /v1/webhook/inbound
		// =============================================
		if deps.Engine != nil {
			r.Post("/messages", chathandler.MessageHandler(deps.Engine, logger))
		}
		r.Group(func(r chi.Router) {
			if deps.Webhook != nil {
				r.Use(WebhookAuthMiddleware(deps.Webhook, logger))
			}
			r.Post("/webhook/inbound", chathandler.InboundWebhookHandler(deps.Queue, logger))
		})

		// =============================================
		// 2. Sessões e negociações
		// =============================================
		if deps.Engine != nil {
			r.Get("/sessions/{userId}", chathandler.SessionHandler(deps.Engine, logger))
			r.Post("/sessions/sweep", chathandler.SweepHandler(deps.Engine, logger))
			r.Get("/deals/{userId}", chathandler.ActiveDealHandler(deps.Engine, logger))
			r.Get("/deals/id/{dealId}", chathandler.DealByIDHandler(deps.Engine, logger))
		}

		// =============================================
		// 3. Métricas do motor
		// GET /v1/metrics/engine
		// =============================================
		if deps.Metrics != nil {
			r.Get("/metrics/engine", engineMetricsHandler(deps.Metrics))
		}
	})

	return r
}

func engineMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetEngineSnapshot())
	}
}
