package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"github.com/frahmantamala/caz-payments/internal/core/datamodel/payment"
	"github.com/frahmantamala/caz-payments/internal/core/datamodel/paymentprovider"
)

const defaultRetryBackoff = 500 * time.Millisecond

type CleanupConfig struct {
	DanglingAfter time.Duration
	BatchSize     int
	Concurrency   int
	MaxRetries    uint64
	RetryBackoff  time.Duration
}

type CleanupReport struct {
	Found     int `json:"found"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Failed    int `json:"failed"`
}

type cleanupOutcome int

const (
	outcomeUpdated cleanupOutcome = iota
	outcomeUnchanged
)

// CleanupService settles payments left in a non-terminal provider state,
// typically because the payer never came back from the provider's pages.
type CleanupService struct {
	repo     Repository
	provider ProviderClient
	updater  *StatusUpdater
	cfg      CleanupConfig
	logger   *slog.Logger
	now      func() time.Time
}

func NewCleanupService(repo Repository, provider ProviderClient, updater *StatusUpdater, cfg CleanupConfig, logger *slog.Logger) *CleanupService {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}
	return &CleanupService{
		repo:     repo,
		provider: provider,
		updater:  updater,
		cfg:      cfg,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run processes one batch. A failing payment is logged and counted; it never
// stops the others. The returned error only reports that the batch could not
// be loaded.
func (s *CleanupService) Run(ctx context.Context) (CleanupReport, error) {
	var report CleanupReport

	cutoff := s.now().Add(-s.cfg.DanglingAfter)
	dangling, err := s.repo.FindDangling(ctx, cutoff, s.cfg.BatchSize)
	if err != nil {
		return report, fmt.Errorf("find dangling payments: %w", err)
	}
	report.Found = len(dangling)
	if report.Found == 0 {
		s.logger.Info("no dangling payments", "submitted_before", cutoff)
		return report, nil
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.cfg.Concurrency)

	for i := range dangling {
		p := &dangling[i]
		g.Go(func() error {
			outcome, err := s.cleanupOne(ctx, p)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				report.Failed++
				s.logger.Error("failed to clean up dangling payment",
					"error", err,
					"payment_id", p.ID,
					"clean_air_zone_id", p.CleanAirZoneID)
			case outcome == outcomeUpdated:
				report.Updated++
			default:
				report.Unchanged++
			}
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info("dangling payment cleanup finished",
		"found", report.Found,
		"updated", report.Updated,
		"unchanged", report.Unchanged,
		"failed", report.Failed)
	return report, nil
}

func (s *CleanupService) cleanupOne(ctx context.Context, p *payment.Payment) (cleanupOutcome, error) {
	if !p.HasExternalID() {
		return outcomeUnchanged, nil
	}

	view, err := s.fetchWithRetry(ctx, p)
	if errors.Is(err, paymentprovider.ErrNotFound) {
		return 0, fmt.Errorf("%w: payment %d external id %s", ErrProviderRecordMissing, p.ID, *p.ExternalID)
	}
	if err != nil {
		return 0, err
	}

	status := view.Status.ToExternalStatus()
	if status == p.ExternalStatus {
		return outcomeUnchanged, nil
	}

	var email string
	if p.EmailAddress != nil {
		email = *p.EmailAddress
	}
	_, err = s.updater.UpdateWithStatus(ctx, p, status, WithPayerEmail(email))
	if errors.Is(err, ErrStatusChangedConcurrently) {
		return outcomeUnchanged, nil
	}
	if err != nil {
		return 0, err
	}
	return outcomeUpdated, nil
}

// fetchWithRetry retries only when the provider is unavailable.
func (s *CleanupService) fetchWithRetry(ctx context.Context, p *payment.Payment) (*paymentprovider.Payment, error) {
	backoff := retry.WithMaxRetries(s.cfg.MaxRetries, retry.NewExponential(s.cfg.RetryBackoff))

	var view *paymentprovider.Payment
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		v, err := s.provider.FindByID(ctx, p.CleanAirZoneID, *p.ExternalID)
		if errors.Is(err, paymentprovider.ErrUnavailable) {
			s.logger.Warn("payment provider unavailable, retrying",
				"payment_id", p.ID,
				"error", err)
			return retry.RetryableError(err)
		}
		if err != nil {
			return err
		}
		view = v
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch provider payment %s: %w", *p.ExternalID, err)
	}
	return view, nil
}
