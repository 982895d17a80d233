package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/frahmantamala/caz-payments/internal/core/database"
	"github.com/frahmantamala/caz-payments/internal/core/datamodel/entrantpayment"
	"github.com/frahmantamala/caz-payments/internal/core/datamodel/payment"
	entrantpaymentpkg "github.com/frahmantamala/caz-payments/internal/entrantpayment"
	paymentpkg "github.com/frahmantamala/caz-payments/internal/payment"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{
		db: db,
	}
}

// Transaction runs fn in one store transaction carried by the context it
// receives. Any repository reading its connection from that context, the
// entrant payment repository included, writes inside it.
func (r *PaymentRepository) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return database.Transaction(ctx, r.db, fn)
}

// Create inserts the payment and uses its id as the payer-facing reference number.
func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	return database.Conn(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(p).Error; err != nil {
			return err
		}
		p.ReferenceNumber = p.ID
		return tx.Model(&payment.Payment{}).
			Where("id = ?", p.ID).
			Update("reference_number", p.ReferenceNumber).Error
	})
}

func (r *PaymentRepository) GetByID(ctx context.Context, id int64) (*payment.Payment, error) {
	var p payment.Payment
	err := database.Conn(ctx, r.db).First(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: id %d", paymentpkg.ErrPaymentNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadEntrantPayments(ctx, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) UpdateProviderDetails(ctx context.Context, p *payment.Payment) error {
	updates := map[string]interface{}{
		"payment_provider_id": p.ExternalID,
		"external_status":     p.ExternalStatus,
		"submitted_timestamp": p.SubmittedTimestamp,
		"next_url":            p.NextURL,
		"email_address":       p.EmailAddress,
		"updated_at":          time.Now().UTC(),
	}
	res := database.Conn(ctx, r.db).Model(&payment.Payment{}).Where("id = ?", p.ID).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: id %d", paymentpkg.ErrPaymentNotFound, p.ID)
	}
	return nil
}

// UpdateWithEntrantPayments only writes when the stored status still equals
// expected. Otherwise another writer got there first and
// ErrStatusChangedConcurrently is returned with nothing written.
func (r *PaymentRepository) UpdateWithEntrantPayments(ctx context.Context, p *payment.Payment, expected payment.ExternalStatus) error {
	now := time.Now().UTC()
	return database.Conn(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&payment.Payment{}).
			Where("id = ? AND external_status = ?", p.ID, expected).
			Updates(map[string]interface{}{
				"external_status":      p.ExternalStatus,
				"authorised_timestamp": p.AuthorisedTimestamp,
				"email_address":        p.EmailAddress,
				"updated_at":           now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&payment.Payment{}).Where("id = ?", p.ID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return fmt.Errorf("%w: id %d", paymentpkg.ErrPaymentNotFound, p.ID)
			}
			return fmt.Errorf("%w: payment %d is no longer %s", paymentpkg.ErrStatusChangedConcurrently, p.ID, expected)
		}

		for _, ep := range p.EntrantPayments {
			res := tx.Model(&entrantpayment.EntrantPayment{}).Where("id = ?", ep.ID).Updates(map[string]interface{}{
				"internal_status": ep.InternalStatus,
				"updated_at":      now,
			})
			if res.Error != nil {
				return fmt.Errorf("update entrant payment %d: %w", ep.ID, res.Error)
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("%w: id %d", entrantpaymentpkg.ErrEntrantPaymentNotFound, ep.ID)
			}
		}
		return nil
	})
}

func (r *PaymentRepository) FindDangling(ctx context.Context, submittedBefore time.Time, limit int) ([]payment.Payment, error) {
	var payments []payment.Payment
	err := database.Conn(ctx, r.db).
		Where("payment_provider_id IS NOT NULL").
		Where("external_status IN ?", payment.NonTerminalStatuses).
		Where("submitted_timestamp < ?", submittedBefore.UTC()).
		Order("submitted_timestamp").
		Limit(limit).
		Find(&payments).Error
	if err != nil {
		return nil, err
	}

	for i := range payments {
		if err := r.loadEntrantPayments(ctx, &payments[i]); err != nil {
			return nil, err
		}
	}
	return payments, nil
}

// loadEntrantPayments fills the obligations whose latest match points at p.
func (r *PaymentRepository) loadEntrantPayments(ctx context.Context, p *payment.Payment) error {
	var eps []entrantpayment.EntrantPayment
	err := database.Conn(ctx, r.db).
		Joins("JOIN entrant_payment_match ON entrant_payment_match.entrant_payment_id = entrant_payment.id").
		Where("entrant_payment_match.payment_id = ? AND entrant_payment_match.latest = ?", p.ID, true).
		Order("entrant_payment.travel_date").
		Find(&eps).Error
	if err != nil {
		return fmt.Errorf("load entrant payments of payment %d: %w", p.ID, err)
	}
	p.EntrantPayments = eps
	return nil
}
