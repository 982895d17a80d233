package payment

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"

	"github.com/frahmantamala/caz-payments/internal"
	"github.com/frahmantamala/caz-payments/internal/core/datamodel/payment"
	"github.com/frahmantamala/caz-payments/internal/core/datamodel/paymentprovider"
	"github.com/frahmantamala/caz-payments/internal/transport"
)

type InitiatorAPI interface {
	InitiatePayment(ctx context.Context, req InitiatePaymentRequest) (*payment.Payment, error)
}

type ReconcilerAPI interface {
	ReconcilePaymentStatus(ctx context.Context, paymentID int64) (*payment.Payment, error)
}

type MandateAPI interface {
	CreateMandate(ctx context.Context, req CreateMandateRequest) (*paymentprovider.Mandate, error)
	GetMandate(ctx context.Context, cleanAirZoneID, mandateID string) (*paymentprovider.Mandate, error)
}

type Handler struct {
	transport.BaseHandler
	Initiator  InitiatorAPI
	Reconciler ReconcilerAPI
	Mandates   MandateAPI
}

func NewHandler(initiator InitiatorAPI, reconciler ReconcilerAPI, mandates MandateAPI, logger *slog.Logger) *Handler {
	return &Handler{
		BaseHandler: *transport.NewBaseHandler(logger),
		Initiator:   initiator,
		Reconciler:  reconciler,
		Mandates:    mandates,
	}
}

type initiatePaymentBody struct {
	CleanAirZoneID   string   `json:"clean_air_zone_id"`
	VRN              string   `json:"vrn"`
	TariffCode       string   `json:"tariff_code"`
	TravelDates      []string `json:"travel_dates"`
	Amount           int64    `json:"amount"`
	PaymentMethod    string   `json:"payment_method"`
	ReturnURL        string   `json:"return_url"`
	MandateID        string   `json:"mandate_id"`
	Email            string   `json:"email"`
	TelephonePayment bool     `json:"telephone_payment"`
}

type PaymentResponse struct {
	PaymentID         int64   `json:"payment_id"`
	ReferenceNumber   int64   `json:"reference_number"`
	ExternalID        string  `json:"external_id,omitempty"`
	Status            string  `json:"status"`
	PaymentMethod     string  `json:"payment_method"`
	TotalPaid         int64   `json:"total_paid"`
	NextURL           string  `json:"next_url,omitempty"`
	EntrantPaymentIDs []int64 `json:"entrant_payment_ids"`
	AuthorisedAt      *string `json:"authorised_at,omitempty"`
}

type MandateResponse struct {
	MandateID string `json:"mandate_id"`
	Status    string `json:"status"`
	NextURL   string `json:"next_url,omitempty"`
}

func toMandateResponse(m *paymentprovider.Mandate) MandateResponse {
	return MandateResponse{MandateID: m.ID, Status: m.Status, NextURL: m.NextURL}
}

func toPaymentResponse(p *payment.Payment) PaymentResponse {
	resp := PaymentResponse{
		PaymentID:         p.ID,
		ReferenceNumber:   p.ReferenceNumber,
		Status:            string(p.ExternalStatus),
		PaymentMethod:     string(p.PaymentMethod),
		TotalPaid:         p.TotalPaid,
		EntrantPaymentIDs: p.EntrantPaymentIDs(),
	}
	if p.HasExternalID() {
		resp.ExternalID = *p.ExternalID
	}
	if p.NextURL != nil {
		resp.NextURL = *p.NextURL
	}
	if p.AuthorisedTimestamp != nil {
		at := p.AuthorisedTimestamp.UTC().Format(time.RFC3339)
		resp.AuthorisedAt = &at
	}
	return resp
}

// InitiatePayment handles POST /api/v1/payments
func (h *Handler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	var body initiatePaymentBody
	if err := h.DecodeJSON(r, &body); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	dates := make([]time.Time, len(body.TravelDates))
	for i, raw := range body.TravelDates {
		d, err := transport.ParseDate("travel_dates", raw)
		if err != nil {
			h.HandleServiceError(w, err)
			return
		}
		dates[i] = d
	}

	p, err := h.Initiator.InitiatePayment(r.Context(), InitiatePaymentRequest{
		CleanAirZoneID:   body.CleanAirZoneID,
		VRN:              body.VRN,
		TariffCode:       body.TariffCode,
		TravelDates:      dates,
		Amount:           body.Amount,
		PaymentMethod:    payment.Method(body.PaymentMethod),
		ReturnURL:        body.ReturnURL,
		MandateID:        body.MandateID,
		Email:            body.Email,
		TelephonePayment: body.TelephonePayment,
	})
	if err != nil {
		h.Logger.Warn("InitiatePayment: service error", "error", err, "clean_air_zone_id", body.CleanAirZoneID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, toPaymentResponse(p))
}

// ReconcilePayment handles POST /api/v1/payments/{id}/reconcile
func (h *Handler) ReconcilePayment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.HandleError(w, internal.NewValidationError("invalid payment id", internal.ErrCodeValidationFailed))
		return
	}

	p, err := h.Reconciler.ReconcilePaymentStatus(r.Context(), id)
	if err != nil {
		h.Logger.Error("ReconcilePayment: service error", "error", err, "payment_id", id)
		h.HandleServiceError(w, err)
		return
	}
	if p == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.WriteJSON(w, http.StatusOK, toPaymentResponse(p))
}

// CreateMandate handles POST /api/v1/mandates
func (h *Handler) CreateMandate(w http.ResponseWriter, r *http.Request) {
	var req CreateMandateRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	m, err := h.Mandates.CreateMandate(r.Context(), req)
	if err != nil {
		h.Logger.Warn("CreateMandate: service error", "error", err, "clean_air_zone_id", req.CleanAirZoneID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, toMandateResponse(m))
}

// GetMandate handles GET /api/v1/mandates/{id}?clean_air_zone_id=
func (h *Handler) GetMandate(w http.ResponseWriter, r *http.Request) {
	mandateID := chi.URLParam(r, "id")
	zoneID := r.URL.Query().Get("clean_air_zone_id")

	m, err := h.Mandates.GetMandate(r.Context(), zoneID, mandateID)
	if err != nil {
		h.Logger.Warn("GetMandate: service error", "error", err, "mandate_id", mandateID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, toMandateResponse(m))
}
