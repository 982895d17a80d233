package entrantpayment

import "time"

type InternalStatus string

const (
	StatusNotPaid    InternalStatus = "NOT_PAID"
	StatusPaid       InternalStatus = "PAID"
	StatusRefunded   InternalStatus = "REFUNDED"
	StatusChargeback InternalStatus = "CHARGEBACK"
)

func (s InternalStatus) IsValid() bool {
	switch s {
	case StatusNotPaid, StatusPaid, StatusRefunded, StatusChargeback:
		return true
	}
	return false
}

type UpdateActor string

const (
	ActorUser   UpdateActor = "USER"
	ActorSystem UpdateActor = "SYSTEM"
	// ActorLA is a local authority caseworker correcting a record.
	ActorLA UpdateActor = "LA"
)

// EntrantPayment is the charge obligation of one vehicle, in one zone, on one day.
type EntrantPayment struct {
	ID                     int64          `gorm:"primaryKey"`
	CleanAirZoneID         string         `gorm:"column:clean_air_zone_id;not null;uniqueIndex:idx_entrant_payment_natural_key"`
	VRN                    string         `gorm:"column:vrn;not null;uniqueIndex:idx_entrant_payment_natural_key"`
	TravelDate             time.Time      `gorm:"column:travel_date;type:date;not null;uniqueIndex:idx_entrant_payment_natural_key"`
	TariffCode             string         `gorm:"column:tariff_code"`
	Charge                 int64          `gorm:"column:charge;not null"`
	InternalStatus         InternalStatus `gorm:"column:internal_status;not null"`
	CaseReference          *string        `gorm:"column:case_reference"`
	UpdateActor            UpdateActor    `gorm:"column:update_actor;not null"`
	VehicleEntrantCaptured bool           `gorm:"column:vehicle_entrant_captured;not null"`
	CreatedAt              time.Time      `gorm:"column:created_at"`
	UpdatedAt              time.Time      `gorm:"column:updated_at"`
}

func (EntrantPayment) TableName() string {
	return "entrant_payment"
}

// IsPaid reports whether the obligation counts as settled for enforcement.
func (e *EntrantPayment) IsPaid() bool {
	return e.InternalStatus == StatusPaid
}

// Match links one payment attempt to one obligation. Rows are append-only;
// only the Latest flag ever changes, and at most one row per obligation is latest.
type Match struct {
	ID               int64     `gorm:"primaryKey"`
	EntrantPaymentID int64     `gorm:"column:entrant_payment_id;not null;index;uniqueIndex:idx_entrant_payment_match_latest,where:latest = true"`
	PaymentID        int64     `gorm:"column:payment_id;not null;index"`
	Latest           bool      `gorm:"column:latest;not null"`
	CreatedAt        time.Time `gorm:"column:created_at"`
}

func (Match) TableName() string {
	return "entrant_payment_match"
}

// TravelDate normalises t to a calendar date at UTC midnight.
func TravelDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateKey formats a travel date for map lookups.
func DateKey(t time.Time) string {
	return t.Format(time.DateOnly)
}
