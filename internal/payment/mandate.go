package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/frahmantamala/caz-payments/internal"
	"github.com/frahmantamala/caz-payments/internal/core/datamodel/paymentprovider"
)

var ErrMandateNotUsable = internal.NewValidationError("direct debit mandate cannot be collected against", internal.ErrCodeMandateNotUsable)

type MandateProvider interface {
	CreateMandate(ctx context.Context, req paymentprovider.CreateMandateRequest) (*paymentprovider.Mandate, error)
	GetMandate(ctx context.Context, cleanAirZoneID, mandateID string) (*paymentprovider.Mandate, error)
}

type mandateGetter interface {
	GetMandate(ctx context.Context, cleanAirZoneID, mandateID string) (*paymentprovider.Mandate, error)
}

type CreateMandateRequest struct {
	CleanAirZoneID string `json:"clean_air_zone_id" validate:"required"`
	ReturnURL      string `json:"return_url" validate:"required,url"`
	Reference      string `json:"reference" validate:"omitempty,max=255"`
}

// MandateService sets up direct debit mandates with the provider for a zone.
type MandateService struct {
	provider MandateProvider
	logger   *slog.Logger
}

func NewMandateService(provider MandateProvider, logger *slog.Logger) *MandateService {
	return &MandateService{
		provider: provider,
		logger:   logger,
	}
}

// CreateMandate starts a mandate. The payer completes it on the provider's
// pages behind the returned next url. Without a reference a random one is used.
func (s *MandateService) CreateMandate(ctx context.Context, req CreateMandateRequest) (*paymentprovider.Mandate, error) {
	if err := internal.ValidateStruct(req); err != nil {
		return nil, err
	}
	if req.Reference == "" {
		req.Reference = uuid.NewString()
	}

	m, err := s.provider.CreateMandate(ctx, paymentprovider.CreateMandateRequest{
		ReturnURL:      req.ReturnURL,
		Reference:      req.Reference,
		CleanAirZoneID: req.CleanAirZoneID,
	})
	if err != nil {
		return nil, fmt.Errorf("create mandate for zone %s: %w", req.CleanAirZoneID, err)
	}
	return m, nil
}

func (s *MandateService) GetMandate(ctx context.Context, cleanAirZoneID, mandateID string) (*paymentprovider.Mandate, error) {
	if cleanAirZoneID == "" || mandateID == "" {
		return nil, internal.NewValidationError("clean_air_zone_id and mandate id are required", internal.ErrCodeValidationFailed)
	}
	m, err := s.provider.GetMandate(ctx, cleanAirZoneID, mandateID)
	if err != nil {
		return nil, fmt.Errorf("get mandate %s: %w", mandateID, err)
	}
	return m, nil
}

// requireCollectable fails with ErrMandateNotUsable when the provider does not
// know the mandate or it is in a state payments cannot be taken against.
func requireCollectable(ctx context.Context, provider mandateGetter, cleanAirZoneID, mandateID string) error {
	m, err := provider.GetMandate(ctx, cleanAirZoneID, mandateID)
	if errors.Is(err, paymentprovider.ErrNotFound) {
		return fmt.Errorf("%w: mandate %s is unknown", ErrMandateNotUsable, mandateID)
	}
	if err != nil {
		return fmt.Errorf("check mandate %s: %w", mandateID, err)
	}
	if !m.CanCollect() {
		return fmt.Errorf("%w: mandate %s is %s", ErrMandateNotUsable, mandateID, m.Status)
	}
	return nil
}
