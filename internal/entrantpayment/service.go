package entrantpayment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/frahmantamala/caz-payments/internal"
	"github.com/frahmantamala/caz-payments/internal/charge"
	"github.com/frahmantamala/caz-payments/internal/core/datamodel/entrantpayment"
)

var (
	ErrDuplicateTravelDate = internal.NewValidationError("travel dates must not repeat", internal.ErrCodeInvalidTravelDates)
	ErrCaseReferenceNeeded = internal.NewValidationError("case reference is required for refunds and chargebacks", internal.ErrCodeMissingCaseReference)
)

// Service owns the lifecycle of obligations: materialising them for a payment,
// recording observed zone entries and applying caseworker corrections.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

// ProcessEntrantPaymentsForPayment creates or re-points one obligation per
// travel date at the given payment. Existing obligations take the new tariff
// and charge, their previous latest match is demoted, and a new latest match
// is inserted, all in one transaction.
func (s *Service) ProcessEntrantPaymentsForPayment(ctx context.Context, req InitiateEntrantPaymentsRequest) ([]entrantpayment.EntrantPayment, error) {
	if err := internal.ValidateStruct(req); err != nil {
		return nil, err
	}

	dates, err := NormaliseTravelDates(req.TravelDates)
	if err != nil {
		return nil, err
	}

	chargePerDay, err := charge.CalculateCharge(req.TotalAmount, len(dates))
	if err != nil {
		s.logger.Warn("rejecting payment with uneven charge split",
			"payment_id", req.PaymentID,
			"total", req.TotalAmount,
			"days", len(dates))
		return nil, err
	}

	var result []entrantpayment.EntrantPayment
	err = s.repo.Transaction(ctx, func(tx Repository) error {
		existing, err := tx.FindByTravelDates(ctx, req.CleanAirZoneID, req.VRN, dates)
		if err != nil {
			return fmt.Errorf("find existing entrant payments: %w", err)
		}

		byDate := make(map[string]entrantpayment.EntrantPayment, len(existing))
		for _, ep := range existing {
			key := entrantpayment.DateKey(ep.TravelDate)
			if _, dup := byDate[key]; dup {
				return fmt.Errorf("%w: zone %s date %s", ErrNotUnique, req.CleanAirZoneID, key)
			}
			byDate[key] = ep
		}

		result = make([]entrantpayment.EntrantPayment, 0, len(dates))
		for _, date := range dates {
			ep, found := byDate[entrantpayment.DateKey(date)]
			if found {
				if err := s.repointExisting(ctx, tx, &ep, req.TariffCode, chargePerDay); err != nil {
					return err
				}
			} else {
				ep = entrantpayment.EntrantPayment{
					CleanAirZoneID: req.CleanAirZoneID,
					VRN:            req.VRN,
					TravelDate:     date,
					TariffCode:     req.TariffCode,
					Charge:         chargePerDay,
					InternalStatus: entrantpayment.StatusNotPaid,
					UpdateActor:    entrantpayment.ActorUser,
				}
				if err := tx.Create(ctx, &ep); err != nil {
					return fmt.Errorf("create entrant payment for %s: %w", entrantpayment.DateKey(date), err)
				}
			}

			match := &entrantpayment.Match{
				EntrantPaymentID: ep.ID,
				PaymentID:        req.PaymentID,
				Latest:           true,
			}
			if err := tx.CreateMatch(ctx, match); err != nil {
				return fmt.Errorf("create match for entrant payment %d: %w", ep.ID, err)
			}
			result = append(result, ep)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("failed to process entrant payments",
			"error", err,
			"payment_id", req.PaymentID,
			"clean_air_zone_id", req.CleanAirZoneID)
		return nil, err
	}

	s.logger.Info("entrant payments matched to payment",
		"payment_id", req.PaymentID,
		"clean_air_zone_id", req.CleanAirZoneID,
		"entrant_payments", len(result),
		"charge_per_day", chargePerDay)

	return result, nil
}

func (s *Service) repointExisting(ctx context.Context, tx Repository, ep *entrantpayment.EntrantPayment, tariffCode string, chargePerDay int64) error {
	ep.TariffCode = tariffCode
	ep.Charge = chargePerDay
	ep.UpdateActor = entrantpayment.ActorUser
	if err := tx.Update(ctx, ep); err != nil {
		return fmt.Errorf("update entrant payment %d: %w", ep.ID, err)
	}

	demoted, err := tx.DemoteLatestMatch(ctx, ep.ID)
	if err != nil {
		return fmt.Errorf("demote latest match of entrant payment %d: %w", ep.ID, err)
	}
	if demoted > 1 {
		return fmt.Errorf("%w: entrant payment %d had %d latest matches", ErrNotUnique, ep.ID, demoted)
	}
	return nil
}

// CaptureVehicleEntrant records that a vehicle was observed in the zone on a
// day. Payment status and matches are left alone; when no obligation exists yet
// one is created unpaid.
func (s *Service) CaptureVehicleEntrant(ctx context.Context, capture VehicleEntrantCapture) (*entrantpayment.EntrantPayment, error) {
	if err := internal.ValidateStruct(capture); err != nil {
		return nil, err
	}
	date := entrantpayment.TravelDate(capture.TravelDate)

	var result *entrantpayment.EntrantPayment
	err := s.repo.Transaction(ctx, func(tx Repository) error {
		ep, err := tx.FindByNaturalKey(ctx, capture.CleanAirZoneID, capture.VRN, date)
		if errors.Is(err, ErrEntrantPaymentNotFound) {
			ep = &entrantpayment.EntrantPayment{
				CleanAirZoneID:         capture.CleanAirZoneID,
				VRN:                    capture.VRN,
				TravelDate:             date,
				TariffCode:             capture.TariffCode,
				Charge:                 capture.Charge,
				InternalStatus:         entrantpayment.StatusNotPaid,
				UpdateActor:            entrantpayment.ActorSystem,
				VehicleEntrantCaptured: true,
			}
			if err := tx.Create(ctx, ep); err != nil {
				return fmt.Errorf("create captured entrant payment: %w", err)
			}
			result = ep
			return nil
		}
		if err != nil {
			return err
		}

		if !ep.VehicleEntrantCaptured {
			ep.VehicleEntrantCaptured = true
			if err := tx.Update(ctx, ep); err != nil {
				return fmt.Errorf("mark entrant payment %d captured: %w", ep.ID, err)
			}
		}
		result = ep
		return nil
	})
	if err != nil {
		s.logger.Error("failed to capture vehicle entrant",
			"error", err,
			"clean_air_zone_id", capture.CleanAirZoneID,
			"travel_date", entrantpayment.DateKey(date))
		return nil, err
	}

	s.logger.Info("vehicle entrant captured",
		"entrant_payment_id", result.ID,
		"clean_air_zone_id", capture.CleanAirZoneID,
		"travel_date", entrantpayment.DateKey(date),
		"status", result.InternalStatus)
	return result, nil
}

// UpdateEntrantPaymentStatus applies a caseworker or system correction to one
// obligation. The latest match is kept as is: the correction does not name a
// new payer.
func (s *Service) UpdateEntrantPaymentStatus(ctx context.Context, req UpdateEntrantPaymentStatusRequest) (*entrantpayment.EntrantPayment, error) {
	if err := internal.ValidateStruct(req); err != nil {
		return nil, err
	}
	if (req.Status == entrantpayment.StatusRefunded || req.Status == entrantpayment.StatusChargeback) && req.CaseReference == "" {
		return nil, ErrCaseReferenceNeeded
	}
	date := entrantpayment.TravelDate(req.TravelDate)

	var result *entrantpayment.EntrantPayment
	err := s.repo.Transaction(ctx, func(tx Repository) error {
		ep, err := tx.FindByNaturalKey(ctx, req.CleanAirZoneID, req.VRN, date)
		if err != nil {
			return err
		}

		ep.InternalStatus = req.Status
		ep.UpdateActor = req.Actor
		if req.CaseReference != "" {
			caseRef := req.CaseReference
			ep.CaseReference = &caseRef
		}
		if err := tx.Update(ctx, ep); err != nil {
			return fmt.Errorf("update entrant payment %d status: %w", ep.ID, err)
		}
		result = ep
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("entrant payment status updated",
		"entrant_payment_id", result.ID,
		"status", result.InternalStatus,
		"actor", result.UpdateActor)
	return result, nil
}

// NormaliseTravelDates truncates every date to UTC midnight and rejects repeats.
func NormaliseTravelDates(dates []time.Time) ([]time.Time, error) {
	seen := make(map[string]struct{}, len(dates))
	out := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		date := entrantpayment.TravelDate(d)
		key := entrantpayment.DateKey(date)
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTravelDate, key)
		}
		seen[key] = struct{}{}
		out = append(out, date)
	}
	return out, nil
}
