package entrantpayment

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/caz-payments/internal/core/datamodel/entrantpayment"
	"github.com/frahmantamala/caz-payments/internal/transport"
)

type ServiceAPI interface {
	CaptureVehicleEntrant(ctx context.Context, capture VehicleEntrantCapture) (*entrantpayment.EntrantPayment, error)
	UpdateEntrantPaymentStatus(ctx context.Context, req UpdateEntrantPaymentStatusRequest) (*entrantpayment.EntrantPayment, error)
}

type Handler struct {
	transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(service ServiceAPI, logger *slog.Logger) *Handler {
	return &Handler{
		BaseHandler: *transport.NewBaseHandler(logger),
		Service:     service,
	}
}

type EntrantPaymentResponse struct {
	ID                     int64   `json:"id"`
	CleanAirZoneID         string  `json:"clean_air_zone_id"`
	VRN                    string  `json:"vrn"`
	TravelDate             string  `json:"travel_date"`
	TariffCode             string  `json:"tariff_code"`
	Charge                 int64   `json:"charge"`
	Status                 string  `json:"status"`
	CaseReference          *string `json:"case_reference,omitempty"`
	UpdateActor            string  `json:"update_actor"`
	VehicleEntrantCaptured bool    `json:"vehicle_entrant_captured"`
}

func toResponse(ep *entrantpayment.EntrantPayment) EntrantPaymentResponse {
	return EntrantPaymentResponse{
		ID:                     ep.ID,
		CleanAirZoneID:         ep.CleanAirZoneID,
		VRN:                    ep.VRN,
		TravelDate:             entrantpayment.DateKey(ep.TravelDate),
		TariffCode:             ep.TariffCode,
		Charge:                 ep.Charge,
		Status:                 string(ep.InternalStatus),
		CaseReference:          ep.CaseReference,
		UpdateActor:            string(ep.UpdateActor),
		VehicleEntrantCaptured: ep.VehicleEntrantCaptured,
	}
}

type captureBody struct {
	CleanAirZoneID string `json:"clean_air_zone_id"`
	VRN            string `json:"vrn"`
	TravelDate     string `json:"travel_date"`
	TariffCode     string `json:"tariff_code"`
	Charge         int64  `json:"charge"`
}

// CaptureVehicleEntrant handles POST /api/v1/vehicle-entrants
func (h *Handler) CaptureVehicleEntrant(w http.ResponseWriter, r *http.Request) {
	var body captureBody
	if err := h.DecodeJSON(r, &body); err != nil {
		h.HandleServiceError(w, err)
		return
	}
	date, err := transport.ParseDate("travel_date", body.TravelDate)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	ep, err := h.Service.CaptureVehicleEntrant(r.Context(), VehicleEntrantCapture{
		CleanAirZoneID: body.CleanAirZoneID,
		VRN:            body.VRN,
		TravelDate:     date,
		TariffCode:     body.TariffCode,
		Charge:         body.Charge,
	})
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, toResponse(ep))
}

type statusBody struct {
	CleanAirZoneID string `json:"clean_air_zone_id"`
	VRN            string `json:"vrn"`
	TravelDate     string `json:"travel_date"`
	Status         string `json:"status"`
	CaseReference  string `json:"case_reference"`
	Actor          string `json:"actor"`
}

// UpdateStatus handles PUT /api/v1/entrant-payments/status
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var body statusBody
	if err := h.DecodeJSON(r, &body); err != nil {
		h.HandleServiceError(w, err)
		return
	}
	date, err := transport.ParseDate("travel_date", body.TravelDate)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	ep, err := h.Service.UpdateEntrantPaymentStatus(r.Context(), UpdateEntrantPaymentStatusRequest{
		CleanAirZoneID: body.CleanAirZoneID,
		VRN:            body.VRN,
		TravelDate:     date,
		Status:         entrantpayment.InternalStatus(body.Status),
		CaseReference:  body.CaseReference,
		Actor:          entrantpayment.UpdateActor(body.Actor),
	})
	if err != nil {
		h.Logger.Warn("UpdateStatus: service error", "error", err, "clean_air_zone_id", body.CleanAirZoneID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, toResponse(ep))
}
