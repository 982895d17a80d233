package rest

import (
	"log/slog"

	"github.com/go-chi/chi"

	"github.com/frahmantamala/caz-payments/internal/entrantpayment"
	"github.com/frahmantamala/caz-payments/internal/payment"
	"github.com/frahmantamala/caz-payments/internal/settlement"
	"github.com/frahmantamala/caz-payments/internal/transport/middleware"
)

type Handlers struct {
	Health         *HealthHandler
	Payment        *payment.Handler
	EntrantPayment *entrantpayment.Handler
	Settlement     *settlement.Handler
}

func RegisterAllRoutes(router chi.Router, h Handlers, logger *slog.Logger) {
	router.Use(middleware.RequestID)
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.RecoveryMiddleware(logger))

	router.Route("/api/v1", func(r chi.Router) {
		if h.Health != nil {
			r.Get("/health", h.Health.healthCheckHandler)
			r.Get("/ping", h.Health.pingHandler)
		}

		if h.Payment != nil {
			r.Route("/payments", func(pr chi.Router) {
				pr.Post("/", h.Payment.InitiatePayment)                // POST /payments
				pr.Post("/{id}/reconcile", h.Payment.ReconcilePayment) // POST /payments/:id/reconcile
			})
			r.Route("/mandates", func(mr chi.Router) {
				mr.Post("/", h.Payment.CreateMandate) // POST /mandates
				mr.Get("/{id}", h.Payment.GetMandate) // GET /mandates/:id
			})
		}

		if h.EntrantPayment != nil {
			r.Post("/vehicle-entrants", h.EntrantPayment.CaptureVehicleEntrant)
			r.Put("/entrant-payments/status", h.EntrantPayment.UpdateStatus)
		}

		if h.Settlement != nil {
			r.Get("/charge-settlements", h.Settlement.GetChargeSettlement)
		}
	})
}
