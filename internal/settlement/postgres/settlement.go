package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/frahmantamala/caz-payments/internal/core/datamodel/entrantpayment"
	"github.com/frahmantamala/caz-payments/internal/settlement"
)

const findCandidatesQuery = `
SELECT
	ep.id                  AS entrant_payment_id,
	ep.internal_status     AS status,
	ep.case_reference      AS case_reference,
	ep.tariff_code         AS tariff_code,
	ep.charge              AS charge,
	p.payment_method       AS payment_method,
	p.payment_provider_id  AS external_payment_id,
	p.reference_number     AS payment_reference
FROM entrant_payment ep
LEFT JOIN entrant_payment_match m
	ON m.entrant_payment_id = ep.id AND m.latest = ?
LEFT JOIN payment p
	ON p.id = m.payment_id
WHERE ep.clean_air_zone_id = ?
	AND ep.vrn = ?
	AND ep.travel_date = ?
	AND NOT (ep.internal_status = ? AND ep.vehicle_entrant_captured = ? AND ep.update_actor = ?)
ORDER BY ep.id
LIMIT ?`

type SettlementRepository struct {
	db *sqlx.DB
}

func NewSettlementRepository(db *sqlx.DB) *SettlementRepository {
	return &SettlementRepository{db: db}
}

func (r *SettlementRepository) FindCandidates(ctx context.Context, cleanAirZoneID, vrn string, travelDate time.Time, limit int) ([]settlement.ChargeSettlement, error) {
	var rows []settlement.ChargeSettlement
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(findCandidatesQuery),
		true,
		cleanAirZoneID,
		vrn,
		entrantpayment.TravelDate(travelDate),
		entrantpayment.StatusNotPaid,
		false,
		entrantpayment.ActorUser,
		limit,
	)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
