package settlement

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/frahmantamala/caz-payments/internal/transport"
)

type ServiceAPI interface {
	FindChargeSettlement(ctx context.Context, cleanAirZoneID, vrn string, travelDate time.Time) (*ChargeSettlement, error)
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

// GetChargeSettlement handles GET /api/v1/charge-settlements?clean_air_zone_id=&vrn=&date=
func (h *Handler) GetChargeSettlement(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date, err := transport.ParseDate("date", q.Get("date"))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	found, err := h.Service.FindChargeSettlement(r.Context(), q.Get("clean_air_zone_id"), q.Get("vrn"), date)
	if err != nil {
		h.Logger.Error("GetChargeSettlement: service error", "error", err)
		h.HandleServiceError(w, err)
		return
	}
	if found == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.WriteJSON(w, http.StatusOK, found)
}
