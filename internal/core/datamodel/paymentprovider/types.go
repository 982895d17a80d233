package paymentprovider

import (
	"strings"

	"github.com/frahmantamala/caz-payments/internal"
	"github.com/frahmantamala/caz-payments/internal/core/datamodel/payment"
)

var (
	ErrNotFound    = internal.NewExternalError("payment provider has no such record", internal.ErrCodeProviderNotFound)
	ErrUnavailable = internal.NewExternalError("payment provider unavailable", internal.ErrCodeProviderUnavailable)
	ErrRejected    = internal.NewExternalError("payment provider rejected the request", internal.ErrCodeProviderRejected)
)

// Status is the lower-case state string used on the provider's wire format.
type Status string

// ToExternalStatus maps the wire status onto the stored status. Unknown values map to ERROR.
func (s Status) ToExternalStatus() payment.ExternalStatus {
	switch payment.ExternalStatus(strings.ToUpper(string(s))) {
	case payment.StatusCreated:
		return payment.StatusCreated
	case payment.StatusStarted:
		return payment.StatusStarted
	case payment.StatusSubmitted:
		return payment.StatusSubmitted
	case payment.StatusCapturable:
		return payment.StatusCapturable
	case payment.StatusSuccess:
		return payment.StatusSuccess
	case payment.StatusFailed:
		return payment.StatusFailed
	case payment.StatusCancelled:
		return payment.StatusCancelled
	default:
		return payment.StatusError
	}
}

// Payment is the provider's view of a payment.
type Payment struct {
	ID      string
	Status  Status
	Email   string
	NextURL string
}

type Mandate struct {
	ID      string
	Status  string
	NextURL string
}

// CanCollect reports whether payments may be collected against the mandate.
// A pending mandate has been set up by the payer but not yet confirmed by the
// bank; the provider accepts collections against it.
func (m *Mandate) CanCollect() bool {
	switch strings.ToLower(m.Status) {
	case "pending", "active":
		return true
	}
	return false
}

type CreateCardPaymentRequest struct {
	Amount         int64
	Reference      string
	Description    string
	ReturnURL      string
	Email          string
	CleanAirZoneID string
}

type CollectDirectDebitPaymentRequest struct {
	MandateID      string
	Amount         int64
	Reference      string
	Description    string
	CleanAirZoneID string
}

type CreateMandateRequest struct {
	ReturnURL      string
	Reference      string
	CleanAirZoneID string
}
