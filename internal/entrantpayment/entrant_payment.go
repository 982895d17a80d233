package entrantpayment

import (
	"context"
	"time"

	"github.com/frahmantamala/caz-payments/internal"
	"github.com/frahmantamala/caz-payments/internal/core/datamodel/entrantpayment"
)

var (
	ErrEntrantPaymentNotFound = internal.NewNotFoundError("entrant payment not found", internal.ErrCodeEntrantPaymentNotFound)
	// ErrNotUnique is a consistency violation: more than one row for a key
	// that the schema and every reader treat as unique.
	ErrNotUnique = internal.NewConsistencyError("more than one record matched a unique key", internal.ErrCodeNotUnique)
)

// Repository persists obligations and their payment matches. Implementations
// must run fn inside a single store transaction and hand it a repository bound
// to that transaction.
type Repository interface {
	Transaction(ctx context.Context, fn func(repo Repository) error) error

	FindByNaturalKey(ctx context.Context, cleanAirZoneID, vrn string, travelDate time.Time) (*entrantpayment.EntrantPayment, error)
	FindByTravelDates(ctx context.Context, cleanAirZoneID, vrn string, travelDates []time.Time) ([]entrantpayment.EntrantPayment, error)
	Create(ctx context.Context, ep *entrantpayment.EntrantPayment) error
	Update(ctx context.Context, ep *entrantpayment.EntrantPayment) error

	CreateMatch(ctx context.Context, m *entrantpayment.Match) error
	// DemoteLatestMatch flips the current latest match of an obligation to
	// non-latest and reports how many rows changed (0 or 1).
	DemoteLatestMatch(ctx context.Context, entrantPaymentID int64) (int64, error)
	FindLatestMatch(ctx context.Context, entrantPaymentID int64) (*entrantpayment.Match, error)
	FindMatches(ctx context.Context, entrantPaymentID int64) ([]entrantpayment.Match, error)
}

type InitiateEntrantPaymentsRequest struct {
	PaymentID      int64       `validate:"required"`
	TotalAmount    int64       `validate:"gt=0"`
	TravelDates    []time.Time `validate:"required,min=1"`
	TariffCode     string      `validate:"required"`
	VRN            string      `validate:"required"`
	CleanAirZoneID string      `validate:"required"`
}

type VehicleEntrantCapture struct {
	CleanAirZoneID string    `validate:"required"`
	VRN            string    `validate:"required"`
	TravelDate     time.Time `validate:"required"`
	TariffCode     string
	Charge         int64 `validate:"min=0"`
}

type UpdateEntrantPaymentStatusRequest struct {
	CleanAirZoneID string                        `validate:"required"`
	VRN            string                        `validate:"required"`
	TravelDate     time.Time                     `validate:"required"`
	Status         entrantpayment.InternalStatus `validate:"required,oneof=NOT_PAID PAID REFUNDED CHARGEBACK"`
	CaseReference  string
	Actor          entrantpayment.UpdateActor `validate:"required,oneof=USER SYSTEM LA"`
}
