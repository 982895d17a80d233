package payment

import (
	"time"

	"github.com/frahmantamala/caz-payments/internal/core/datamodel/entrantpayment"
)

type Method string

const (
	MethodCard        Method = "CARD"
	MethodDirectDebit Method = "DIRECT_DEBIT"
)

// ExternalStatus is the provider-reported state of a payment. StatusInitiated
// is local only: the row exists but the provider has not been called yet.
type ExternalStatus string

const (
	StatusInitiated  ExternalStatus = "INITIATED"
	StatusCreated    ExternalStatus = "CREATED"
	StatusStarted    ExternalStatus = "STARTED"
	StatusSubmitted  ExternalStatus = "SUBMITTED"
	StatusCapturable ExternalStatus = "CAPTURABLE"
	StatusSuccess    ExternalStatus = "SUCCESS"
	StatusFailed     ExternalStatus = "FAILED"
	StatusCancelled  ExternalStatus = "CANCELLED"
	StatusError      ExternalStatus = "ERROR"
)

// NonTerminalStatuses are the provider states a payment can be left dangling in.
var NonTerminalStatuses = []ExternalStatus{StatusCreated, StatusStarted, StatusSubmitted, StatusCapturable}

func (s ExternalStatus) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusCancelled, StatusError:
		return true
	}
	return false
}

// ToInternal maps a provider status onto the obligation status it implies.
func (s ExternalStatus) ToInternal() entrantpayment.InternalStatus {
	if s == StatusSuccess {
		return entrantpayment.StatusPaid
	}
	return entrantpayment.StatusNotPaid
}

type Payment struct {
	ID                  int64          `gorm:"primaryKey"`
	ExternalID          *string        `gorm:"column:payment_provider_id;uniqueIndex"`
	PaymentMethod       Method         `gorm:"column:payment_method;not null"`
	TotalPaid           int64          `gorm:"column:total_paid;not null"`
	ExternalStatus      ExternalStatus `gorm:"column:external_status;not null;index"`
	SubmittedTimestamp  *time.Time     `gorm:"column:submitted_timestamp;index"`
	AuthorisedTimestamp *time.Time     `gorm:"column:authorised_timestamp"`
	EmailAddress        *string        `gorm:"column:email_address"`
	ReferenceNumber     int64          `gorm:"column:reference_number;index"`
	MandateID           *string        `gorm:"column:mandate_id"`
	TelephonePayment    bool           `gorm:"column:telephone_payment;not null"`
	CleanAirZoneID      string         `gorm:"column:clean_air_zone_id;not null"`
	NextURL             *string        `gorm:"column:next_url"`
	CreatedAt           time.Time      `gorm:"column:created_at"`
	UpdatedAt           time.Time      `gorm:"column:updated_at"`

	// EntrantPayments are the obligations matched to this payment. Loaded by
	// the repository, never persisted through this field.
	EntrantPayments []entrantpayment.EntrantPayment `gorm:"-"`
}

func (Payment) TableName() string {
	return "payment"
}

func (p *Payment) HasExternalID() bool {
	return p.ExternalID != nil && *p.ExternalID != ""
}

func (p *Payment) EntrantPaymentIDs() []int64 {
	ids := make([]int64, len(p.EntrantPayments))
	for i := range p.EntrantPayments {
		ids[i] = p.EntrantPayments[i].ID
	}
	return ids
}
