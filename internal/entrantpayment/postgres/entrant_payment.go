package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/frahmantamala/caz-payments/internal/core/database"
	"github.com/frahmantamala/caz-payments/internal/core/datamodel/entrantpayment"
	entrantpaymentpkg "github.com/frahmantamala/caz-payments/internal/entrantpayment"
	"gorm.io/gorm"
)

// EntrantPaymentRepository implements entrantpayment.Repository using GORM.
type EntrantPaymentRepository struct {
	db *gorm.DB
}

func NewEntrantPaymentRepository(db *gorm.DB) *EntrantPaymentRepository {
	return &EntrantPaymentRepository{db: db}
}

// Transaction joins a transaction already carried by ctx, so obligations can be
// written together with the payment they are matched to.
func (r *EntrantPaymentRepository) Transaction(ctx context.Context, fn func(repo entrantpaymentpkg.Repository) error) error {
	return database.Conn(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		return fn(&EntrantPaymentRepository{db: tx})
	})
}

// FindByNaturalKey loads the obligation for (zone, vrn, date). Two rows for the
// key is reported as entrantpayment.ErrNotUnique rather than picking one.
func (r *EntrantPaymentRepository) FindByNaturalKey(ctx context.Context, cleanAirZoneID, vrn string, travelDate time.Time) (*entrantpayment.EntrantPayment, error) {
	var found []entrantpayment.EntrantPayment
	err := database.Conn(ctx, r.db).
		Where("clean_air_zone_id = ? AND vrn = ? AND travel_date = ?", cleanAirZoneID, vrn, entrantpayment.TravelDate(travelDate)).
		Limit(2).
		Find(&found).Error
	if err != nil {
		return nil, err
	}

	switch len(found) {
	case 0:
		return nil, entrantpaymentpkg.ErrEntrantPaymentNotFound
	case 1:
		return &found[0], nil
	default:
		return nil, fmt.Errorf("%w: zone %s travel date %s", entrantpaymentpkg.ErrNotUnique,
			cleanAirZoneID, entrantpayment.DateKey(travelDate))
	}
}

func (r *EntrantPaymentRepository) FindByTravelDates(ctx context.Context, cleanAirZoneID, vrn string, travelDates []time.Time) ([]entrantpayment.EntrantPayment, error) {
	if len(travelDates) == 0 {
		return nil, nil
	}
	dates := make([]time.Time, len(travelDates))
	for i, d := range travelDates {
		dates[i] = entrantpayment.TravelDate(d)
	}

	var found []entrantpayment.EntrantPayment
	err := database.Conn(ctx, r.db).
		Where("clean_air_zone_id = ? AND vrn = ? AND travel_date IN ?", cleanAirZoneID, vrn, dates).
		Order("travel_date ASC").
		Find(&found).Error
	return found, err
}

func (r *EntrantPaymentRepository) Create(ctx context.Context, ep *entrantpayment.EntrantPayment) error {
	ep.TravelDate = entrantpayment.TravelDate(ep.TravelDate)
	return database.Conn(ctx, r.db).Create(ep).Error
}

func (r *EntrantPaymentRepository) Update(ctx context.Context, ep *entrantpayment.EntrantPayment) error {
	res := database.Conn(ctx, r.db).
		Model(&entrantpayment.EntrantPayment{}).
		Where("id = ?", ep.ID).
		Updates(map[string]interface{}{
			"tariff_code":              ep.TariffCode,
			"charge":                   ep.Charge,
			"internal_status":          ep.InternalStatus,
			"case_reference":           ep.CaseReference,
			"update_actor":             ep.UpdateActor,
			"vehicle_entrant_captured": ep.VehicleEntrantCaptured,
			"updated_at":               time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return entrantpaymentpkg.ErrEntrantPaymentNotFound
	}
	return nil
}

func (r *EntrantPaymentRepository) CreateMatch(ctx context.Context, m *entrantpayment.Match) error {
	return database.Conn(ctx, r.db).Create(m).Error
}

func (r *EntrantPaymentRepository) DemoteLatestMatch(ctx context.Context, entrantPaymentID int64) (int64, error) {
	res := database.Conn(ctx, r.db).
		Model(&entrantpayment.Match{}).
		Where("entrant_payment_id = ? AND latest = ?", entrantPaymentID, true).
		Update("latest", false)
	return res.RowsAffected, res.Error
}

func (r *EntrantPaymentRepository) FindLatestMatch(ctx context.Context, entrantPaymentID int64) (*entrantpayment.Match, error) {
	var matches []entrantpayment.Match
	err := database.Conn(ctx, r.db).
		Where("entrant_payment_id = ? AND latest = ?", entrantPaymentID, true).
		Limit(2).
		Find(&matches).Error
	if err != nil {
		return nil, err
	}

	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		return &matches[0], nil
	default:
		return nil, fmt.Errorf("%w: entrant payment %d has several latest matches", entrantpaymentpkg.ErrNotUnique, entrantPaymentID)
	}
}

func (r *EntrantPaymentRepository) FindMatches(ctx context.Context, entrantPaymentID int64) ([]entrantpayment.Match, error) {
	var matches []entrantpayment.Match
	err := database.Conn(ctx, r.db).
		Where("entrant_payment_id = ?", entrantPaymentID).
		Order("id ASC").
		Find(&matches).Error
	return matches, err
}
