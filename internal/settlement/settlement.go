package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/frahmantamala/caz-payments/internal"
	"github.com/frahmantamala/caz-payments/internal/core/datamodel/entrantpayment"
	entrantpaymentpkg "github.com/frahmantamala/caz-payments/internal/entrantpayment"
)

// ErrNotUnique is returned when more than one obligation survives the filter.
var ErrNotUnique = entrantpaymentpkg.ErrNotUnique

// ChargeSettlement tells enforcement whether a vehicle's charge for a day is
// settled and which payment settled it.
type ChargeSettlement struct {
	EntrantPaymentID  int64                         `db:"entrant_payment_id" json:"entrant_payment_id"`
	Status            entrantpayment.InternalStatus `db:"status" json:"status"`
	CaseReference     *string                       `db:"case_reference" json:"case_reference,omitempty"`
	TariffCode        string                        `db:"tariff_code" json:"tariff_code"`
	Charge            int64                         `db:"charge" json:"charge"`
	PaymentMethod     *string                       `db:"payment_method" json:"payment_method,omitempty"`
	ExternalPaymentID *string                       `db:"external_payment_id" json:"external_payment_id,omitempty"`
	PaymentReference  *int64                        `db:"payment_reference" json:"payment_reference,omitempty"`
}

type Repository interface {
	// FindCandidates returns at most limit obligations for the natural key,
	// joined with their latest match and payment, excluding unpaid rows a
	// user created that were never observed in the zone.
	FindCandidates(ctx context.Context, cleanAirZoneID, vrn string, travelDate time.Time, limit int) ([]ChargeSettlement, error)
}

type ChargeSettlementQuery struct {
	CleanAirZoneID string    `validate:"required"`
	VRN            string    `validate:"required"`
	TravelDate     time.Time `validate:"required"`
}

type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

// FindChargeSettlement returns nil without an error when nothing settles the
// charge for the day.
func (s *Service) FindChargeSettlement(ctx context.Context, cleanAirZoneID, vrn string, travelDate time.Time) (*ChargeSettlement, error) {
	query := ChargeSettlementQuery{CleanAirZoneID: cleanAirZoneID, VRN: vrn, TravelDate: travelDate}
	if err := internal.ValidateStruct(query); err != nil {
		return nil, err
	}
	date := entrantpayment.TravelDate(travelDate)

	rows, err := s.repo.FindCandidates(ctx, cleanAirZoneID, vrn, date, 2)
	if err != nil {
		return nil, fmt.Errorf("find charge settlement: %w", err)
	}

	switch len(rows) {
	case 0:
		return nil, nil
	case 1:
		return &rows[0], nil
	default:
		s.logger.Error("more than one obligation for natural key",
			"clean_air_zone_id", cleanAirZoneID,
			"travel_date", entrantpayment.DateKey(date))
		return nil, fmt.Errorf("%w: zone %s date %s", ErrNotUnique, cleanAirZoneID, entrantpayment.DateKey(date))
	}
}
