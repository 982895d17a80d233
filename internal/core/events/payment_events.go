package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypePaymentStatusChanged = "payment.status_changed"
)

// PaymentStatusChangedEvent is emitted after a payment's external status and
// the statuses of its obligations have been persisted.
type PaymentStatusChangedEvent struct {
	BaseEvent
	PaymentID      int64    `json:"payment_id"`
	ExternalID     string   `json:"external_id,omitempty"`
	CleanAirZoneID string   `json:"clean_air_zone_id"`
	PreviousStatus string   `json:"previous_status"`
	CurrentStatus  string   `json:"current_status"`
	InternalStatus string   `json:"internal_status"`
	EmailAddress   string   `json:"email_address,omitempty"`
	EntrantIDs     []int64  `json:"entrant_payment_ids"`
	TravelDates    []string `json:"travel_dates"`
}

func NewPaymentStatusChangedEvent(paymentID int64, cleanAirZoneID, previous, current, internalStatus string) *PaymentStatusChangedEvent {
	return &PaymentStatusChangedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentStatusChanged,
			Timestamp: time.Now().UTC(),
		},
		PaymentID:      paymentID,
		CleanAirZoneID: cleanAirZoneID,
		PreviousStatus: previous,
		CurrentStatus:  current,
		InternalStatus: internalStatus,
	}
}

// Payload returns the whole event so forwarders serialise the typed fields.
func (e *PaymentStatusChangedEvent) Payload() interface{} {
	return e
}
