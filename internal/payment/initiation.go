package payment

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/frahmantamala/caz-payments/internal"
	"github.com/frahmantamala/caz-payments/internal/charge"
	"github.com/frahmantamala/caz-payments/internal/core/datamodel/entrantpayment"
	"github.com/frahmantamala/caz-payments/internal/core/datamodel/payment"
	"github.com/frahmantamala/caz-payments/internal/core/datamodel/paymentprovider"
	entrantpaymentpkg "github.com/frahmantamala/caz-payments/internal/entrantpayment"
)

const paymentDescription = "Clean Air Zone charge"

type InitiatePaymentRequest struct {
	CleanAirZoneID   string         `json:"clean_air_zone_id" validate:"required"`
	VRN              string         `json:"vrn" validate:"required"`
	TariffCode       string         `json:"tariff_code" validate:"required"`
	TravelDates      []time.Time    `json:"travel_dates" validate:"required,min=1"`
	Amount           int64          `json:"amount" validate:"gt=0"`
	PaymentMethod    payment.Method `json:"payment_method" validate:"required,oneof=CARD DIRECT_DEBIT"`
	ReturnURL        string         `json:"return_url" validate:"required_if=PaymentMethod CARD,omitempty,url"`
	MandateID        string         `json:"mandate_id" validate:"required_if=PaymentMethod DIRECT_DEBIT"`
	Email            string         `json:"email" validate:"omitempty,email"`
	TelephonePayment bool           `json:"telephone_payment"`
}

type EntrantPaymentProcessor interface {
	ProcessEntrantPaymentsForPayment(ctx context.Context, req entrantpaymentpkg.InitiateEntrantPaymentsRequest) ([]entrantpayment.EntrantPayment, error)
}

// paymentMethod is how one payment method is checked and handed to the
// provider. verify runs before anything is written and may be nil.
type paymentMethod struct {
	verify func(ctx context.Context, req InitiatePaymentRequest) error
	submit func(ctx context.Context, p *payment.Payment, req InitiatePaymentRequest) (*paymentprovider.Payment, error)
}

// InitiationService creates a payment, matches it to its obligations and
// hands it to the provider for the chosen payment method.
type InitiationService struct {
	repo      Repository
	processor EntrantPaymentProcessor
	provider  ProviderClient
	methods   map[payment.Method]paymentMethod
	logger    *slog.Logger
	now       func() time.Time
}

func NewInitiationService(repo Repository, processor EntrantPaymentProcessor, provider ProviderClient, logger *slog.Logger) *InitiationService {
	s := &InitiationService{
		repo:      repo,
		processor: processor,
		provider:  provider,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	s.methods = map[payment.Method]paymentMethod{
		payment.MethodCard:        {submit: s.submitCard},
		payment.MethodDirectDebit: {verify: s.verifyMandate, submit: s.submitDirectDebit},
	}
	return s
}

// InitiatePayment rejects invalid input before writing anything. The payment
// and its matches are written in one transaction. When the provider call
// fails afterwards the payment stays INITIATED without an external id and the
// error is returned.
func (s *InitiationService) InitiatePayment(ctx context.Context, req InitiatePaymentRequest) (*payment.Payment, error) {
	if err := internal.ValidateStruct(req); err != nil {
		return nil, err
	}
	method, ok := s.methods[req.PaymentMethod]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMethod, req.PaymentMethod)
	}
	dates, err := entrantpaymentpkg.NormaliseTravelDates(req.TravelDates)
	if err != nil {
		return nil, err
	}
	if _, err := charge.CalculateCharge(req.Amount, len(dates)); err != nil {
		return nil, err
	}
	if method.verify != nil {
		if err := method.verify(ctx, req); err != nil {
			return nil, err
		}
	}

	p := &payment.Payment{
		PaymentMethod:    req.PaymentMethod,
		TotalPaid:        req.Amount,
		ExternalStatus:   payment.StatusInitiated,
		TelephonePayment: req.TelephonePayment,
		CleanAirZoneID:   req.CleanAirZoneID,
	}
	if req.MandateID != "" {
		mandateID := req.MandateID
		p.MandateID = &mandateID
	}

	var obligations []entrantpayment.EntrantPayment
	err = s.repo.Transaction(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, p); err != nil {
			return fmt.Errorf("create payment: %w", err)
		}
		matched, err := s.processor.ProcessEntrantPaymentsForPayment(ctx, entrantpaymentpkg.InitiateEntrantPaymentsRequest{
			PaymentID:      p.ID,
			TotalAmount:    req.Amount,
			TravelDates:    dates,
			TariffCode:     req.TariffCode,
			VRN:            req.VRN,
			CleanAirZoneID: req.CleanAirZoneID,
		})
		if err != nil {
			return fmt.Errorf("match payment %d to entrant payments: %w", p.ID, err)
		}
		obligations = matched
		return nil
	})
	if err != nil {
		return nil, err
	}
	p.EntrantPayments = obligations

	view, err := method.submit(ctx, p, req)
	if err != nil {
		s.logger.Error("payment provider did not accept payment",
			"error", err,
			"payment_id", p.ID,
			"payment_method", p.PaymentMethod,
			"clean_air_zone_id", p.CleanAirZoneID)
		return nil, fmt.Errorf("submit payment %d: %w", p.ID, err)
	}

	externalID := view.ID
	submitted := s.now()
	p.ExternalID = &externalID
	p.ExternalStatus = view.Status.ToExternalStatus()
	p.SubmittedTimestamp = &submitted
	if view.NextURL != "" {
		nextURL := view.NextURL
		p.NextURL = &nextURL
	}
	switch {
	case view.Email != "":
		email := view.Email
		p.EmailAddress = &email
	case req.Email != "":
		email := req.Email
		p.EmailAddress = &email
	}

	if err := s.repo.UpdateProviderDetails(ctx, p); err != nil {
		return nil, fmt.Errorf("store provider details of payment %d: %w", p.ID, err)
	}

	s.logger.Info("payment initiated",
		"payment_id", p.ID,
		"external_id", externalID,
		"payment_method", p.PaymentMethod,
		"status", p.ExternalStatus,
		"entrant_payments", len(obligations))
	return p, nil
}

func (s *InitiationService) submitCard(ctx context.Context, p *payment.Payment, req InitiatePaymentRequest) (*paymentprovider.Payment, error) {
	return s.provider.CreateCardPayment(ctx, paymentprovider.CreateCardPaymentRequest{
		Amount:         p.TotalPaid,
		Reference:      strconv.FormatInt(p.ReferenceNumber, 10),
		Description:    paymentDescription,
		ReturnURL:      req.ReturnURL,
		Email:          req.Email,
		CleanAirZoneID: p.CleanAirZoneID,
	})
}

func (s *InitiationService) verifyMandate(ctx context.Context, req InitiatePaymentRequest) error {
	return requireCollectable(ctx, s.provider, req.CleanAirZoneID, req.MandateID)
}

func (s *InitiationService) submitDirectDebit(ctx context.Context, p *payment.Payment, req InitiatePaymentRequest) (*paymentprovider.Payment, error) {
	return s.provider.CollectDirectDebitPayment(ctx, paymentprovider.CollectDirectDebitPaymentRequest{
		MandateID:      req.MandateID,
		Amount:         p.TotalPaid,
		Reference:      strconv.FormatInt(p.ReferenceNumber, 10),
		Description:    paymentDescription,
		CleanAirZoneID: p.CleanAirZoneID,
	})
}
