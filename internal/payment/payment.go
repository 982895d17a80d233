package payment

import (
	"context"
	"time"

	"github.com/frahmantamala/caz-payments/internal"
	"github.com/frahmantamala/caz-payments/internal/core/datamodel/payment"
	"github.com/frahmantamala/caz-payments/internal/core/datamodel/paymentprovider"
	"github.com/frahmantamala/caz-payments/internal/core/events"
)

var (
	ErrPaymentNotFound    = internal.NewNotFoundError("payment not found", internal.ErrCodePaymentNotFound)
	ErrStatusAlreadyEqual = internal.NewConflictError("payment already has this status", internal.ErrCodeStatusAlreadyEqual)
	// ErrProviderRecordMissing means a payment carries an external id the
	// provider does not know. The link between the systems is broken.
	ErrProviderRecordMissing = internal.NewConsistencyError("payment provider has no record for a known external id", internal.ErrCodeProviderRecordMissing)
	ErrUnsupportedMethod     = internal.NewValidationError("unsupported payment method", internal.ErrCodeInvalidPaymentMethod)
	// ErrStatusChangedConcurrently means another writer moved the payment on
	// between load and update. Nothing was written.
	ErrStatusChangedConcurrently = internal.NewConflictError("payment status changed concurrently", internal.ErrCodeConcurrentUpdate)
)

// Repository persists payments. Loaded payments carry the obligations whose
// latest match points at them.
type Repository interface {
	// Transaction runs fn in one store transaction carried by the ctx fn receives.
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
	Create(ctx context.Context, p *payment.Payment) error
	GetByID(ctx context.Context, id int64) (*payment.Payment, error)
	// UpdateProviderDetails stores what the provider returned on submission.
	UpdateProviderDetails(ctx context.Context, p *payment.Payment) error
	// UpdateWithEntrantPayments writes the payment status and the internal
	// status of every obligation in p.EntrantPayments in one transaction,
	// provided the stored status is still expected.
	UpdateWithEntrantPayments(ctx context.Context, p *payment.Payment, expected payment.ExternalStatus) error
	FindDangling(ctx context.Context, submittedBefore time.Time, limit int) ([]payment.Payment, error)
}

// ProviderClient is the part of the payment provider the payment services call.
type ProviderClient interface {
	CreateCardPayment(ctx context.Context, req paymentprovider.CreateCardPaymentRequest) (*paymentprovider.Payment, error)
	CollectDirectDebitPayment(ctx context.Context, req paymentprovider.CollectDirectDebitPaymentRequest) (*paymentprovider.Payment, error)
	FindByID(ctx context.Context, cleanAirZoneID, externalID string) (*paymentprovider.Payment, error)
	GetMandate(ctx context.Context, cleanAirZoneID, mandateID string) (*paymentprovider.Mandate, error)
}

type Publisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// ExternalPaymentDetails is the provider's view of a payment as used by reconciliation.
type ExternalPaymentDetails struct {
	ExternalStatus payment.ExternalStatus
	Email          string
}

// PublishHook may adjust a status-changed event before it is published.
type PublishHook func(event *events.PaymentStatusChangedEvent)
