package payment

import (
	"fmt"
	"time"

	"github.com/frahmantamala/caz-payments/internal/core/datamodel/entrantpayment"
	"github.com/frahmantamala/caz-payments/internal/core/datamodel/payment"
)

// BuildPaymentWithStatus returns a copy of p moved to status. Every matched
// obligation takes the internal status the new external status maps to.
func BuildPaymentWithStatus(p *payment.Payment, status payment.ExternalStatus, now time.Time) (*payment.Payment, error) {
	next, err := withStatus(p, status, now)
	if err != nil {
		return nil, err
	}

	internalStatus := status.ToInternal()
	next.EntrantPayments = make([]entrantpayment.EntrantPayment, len(p.EntrantPayments))
	for i, ep := range p.EntrantPayments {
		ep.InternalStatus = internalStatus
		next.EntrantPayments[i] = ep
	}
	return next, nil
}

// BuildWithExternalPaymentDetails is BuildPaymentWithStatus plus the payer
// email. Only a status that maps to PAID rewrites obligations; any other
// status leaves them out so already paid obligations are never un-paid here.
func BuildWithExternalPaymentDetails(p *payment.Payment, details ExternalPaymentDetails, now time.Time) (*payment.Payment, error) {
	next, err := withStatus(p, details.ExternalStatus, now)
	if err != nil {
		return nil, err
	}

	if details.Email != "" {
		email := details.Email
		next.EmailAddress = &email
	}

	internalStatus := details.ExternalStatus.ToInternal()
	if internalStatus != entrantpayment.StatusPaid {
		next.EntrantPayments = []entrantpayment.EntrantPayment{}
		return next, nil
	}

	next.EntrantPayments = make([]entrantpayment.EntrantPayment, len(p.EntrantPayments))
	for i, ep := range p.EntrantPayments {
		ep.InternalStatus = internalStatus
		next.EntrantPayments[i] = ep
	}
	return next, nil
}

func withStatus(p *payment.Payment, status payment.ExternalStatus, now time.Time) (*payment.Payment, error) {
	if p.ExternalStatus == status {
		return nil, fmt.Errorf("%w: payment %d is already %s", ErrStatusAlreadyEqual, p.ID, status)
	}

	next := *p
	next.ExternalStatus = status
	if status == payment.StatusSuccess {
		authorised := now
		next.AuthorisedTimestamp = &authorised
	}
	return &next, nil
}
