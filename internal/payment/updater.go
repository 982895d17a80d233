package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/frahmantamala/caz-payments/internal/core/datamodel/entrantpayment"
	"github.com/frahmantamala/caz-payments/internal/core/datamodel/payment"
	"github.com/frahmantamala/caz-payments/internal/core/events"
)

// StatusUpdater moves a payment to a new external status, persists it together
// with its obligations and announces the change.
type StatusUpdater struct {
	repo      Repository
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewStatusUpdater(repo Repository, publisher Publisher, logger *slog.Logger) *StatusUpdater {
	return &StatusUpdater{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (u *StatusUpdater) UpdateWithStatus(ctx context.Context, p *payment.Payment, status payment.ExternalStatus, hook PublishHook) (*payment.Payment, error) {
	next, err := BuildPaymentWithStatus(p, status, u.now())
	if err != nil {
		return nil, err
	}
	return u.persistAndPublish(ctx, p, next, hook)
}

func (u *StatusUpdater) UpdateWithExternalDetails(ctx context.Context, p *payment.Payment, details ExternalPaymentDetails, hook PublishHook) (*payment.Payment, error) {
	next, err := BuildWithExternalPaymentDetails(p, details, u.now())
	if err != nil {
		return nil, err
	}
	return u.persistAndPublish(ctx, p, next, hook)
}

// persistAndPublish writes next only if the stored status is still the one
// prev was loaded with. When another writer got there first nothing is
// published and ErrStatusChangedConcurrently is returned.
func (u *StatusUpdater) persistAndPublish(ctx context.Context, prev, next *payment.Payment, hook PublishHook) (*payment.Payment, error) {
	err := u.repo.UpdateWithEntrantPayments(ctx, next, prev.ExternalStatus)
	if errors.Is(err, ErrStatusChangedConcurrently) {
		u.logger.Info("payment status already updated by another writer",
			"payment_id", next.ID,
			"expected_status", prev.ExternalStatus,
			"status", next.ExternalStatus)
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("persist payment %d status %s: %w", next.ID, next.ExternalStatus, err)
	}

	u.logger.Info("payment status updated",
		"payment_id", next.ID,
		"previous_status", prev.ExternalStatus,
		"status", next.ExternalStatus,
		"entrant_payments", len(next.EntrantPayments))

	event := newStatusChangedEvent(prev.ExternalStatus, next)
	if hook != nil {
		hook(event)
	}
	// The state is committed; a lost notification is not worth failing the caller for.
	if err := u.publisher.Publish(ctx, event); err != nil {
		u.logger.Error("failed to publish payment status change",
			"error", err,
			"payment_id", next.ID,
			"event_id", event.EventID())
	}
	return next, nil
}

// WithPayerEmail returns a hook putting the payer email on the event, which is
// the only way an email reaches it. An empty email leaves the event untouched.
func WithPayerEmail(email string) PublishHook {
	return func(event *events.PaymentStatusChangedEvent) {
		if email != "" {
			event.EmailAddress = email
		}
	}
}

func newStatusChangedEvent(previous payment.ExternalStatus, p *payment.Payment) *events.PaymentStatusChangedEvent {
	event := events.NewPaymentStatusChangedEvent(
		p.ID,
		p.CleanAirZoneID,
		string(previous),
		string(p.ExternalStatus),
		string(p.ExternalStatus.ToInternal()),
	)
	if p.HasExternalID() {
		event.ExternalID = *p.ExternalID
	}
	event.EntrantIDs = p.EntrantPaymentIDs()
	event.TravelDates = make([]string, len(p.EntrantPayments))
	for i, ep := range p.EntrantPayments {
		event.TravelDates[i] = entrantpayment.DateKey(ep.TravelDate)
	}
	return event
}
