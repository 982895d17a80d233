package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/caz-payments/internal/core/datamodel/payment"
	"github.com/frahmantamala/caz-payments/internal/core/datamodel/paymentprovider"
)

type ReconciliationService struct {
	repo     Repository
	provider ProviderClient
	updater  *StatusUpdater
	logger   *slog.Logger
}

func NewReconciliationService(repo Repository, provider ProviderClient, updater *StatusUpdater, logger *slog.Logger) *ReconciliationService {
	return &ReconciliationService{
		repo:     repo,
		provider: provider,
		updater:  updater,
		logger:   logger,
	}
}

// ReconcilePaymentStatus pulls the provider's view of a payment and applies it.
// A nil payment with a nil error means there was nothing to reconcile. When
// the provider reports the stored status the stored payment is returned and
// nothing is written or published.
func (s *ReconciliationService) ReconcilePaymentStatus(ctx context.Context, paymentID int64) (*payment.Payment, error) {
	p, err := s.repo.GetByID(ctx, paymentID)
	if errors.Is(err, ErrPaymentNotFound) {
		s.logger.Warn("nothing to reconcile, payment not found", "payment_id", paymentID)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load payment %d: %w", paymentID, err)
	}
	if !p.HasExternalID() {
		s.logger.Warn("nothing to reconcile, payment was never submitted to the provider",
			"payment_id", paymentID,
			"status", p.ExternalStatus)
		return nil, nil
	}

	view, err := s.provider.FindByID(ctx, p.CleanAirZoneID, *p.ExternalID)
	if errors.Is(err, paymentprovider.ErrNotFound) {
		s.logger.Error("provider has no record of submitted payment",
			"payment_id", p.ID,
			"external_id", *p.ExternalID,
			"clean_air_zone_id", p.CleanAirZoneID)
		return nil, fmt.Errorf("%w: payment %d external id %s", ErrProviderRecordMissing, p.ID, *p.ExternalID)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch provider payment %s: %w", *p.ExternalID, err)
	}

	status := view.Status.ToExternalStatus()
	if status == p.ExternalStatus {
		s.logger.Debug("payment status unchanged", "payment_id", p.ID, "status", status)
		return p, nil
	}

	details := ExternalPaymentDetails{ExternalStatus: status, Email: view.Email}
	email := view.Email
	if email == "" && p.EmailAddress != nil {
		email = *p.EmailAddress
	}
	updated, err := s.updater.UpdateWithExternalDetails(ctx, p, details, WithPayerEmail(email))
	if errors.Is(err, ErrStatusChangedConcurrently) {
		// A concurrent reconcile already applied a status; report what is stored.
		return s.repo.GetByID(ctx, p.ID)
	}
	return updated, err
}
