package payment_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/caz-payments/internal"
	"github.com/frahmantamala/caz-payments/internal/charge"
	"github.com/frahmantamala/caz-payments/internal/core/datamodel/entrantpayment"
	"github.com/frahmantamala/caz-payments/internal/core/datamodel/payment"
	"github.com/frahmantamala/caz-payments/internal/core/datamodel/paymentprovider"
	entrantpaymentpkg "github.com/frahmantamala/caz-payments/internal/entrantpayment"
	paymentpkg "github.com/frahmantamala/caz-payments/internal/payment"
	"github.com/frahmantamala/caz-payments/internal/testutil"
	"github.com/frahmantamala/caz-payments/pkg/logger"
)

var _ = Describe("InitiationService", func() {
	var (
		f       *fixture
		service *paymentpkg.InitiationService
		req     paymentpkg.InitiatePaymentRequest
	)

	BeforeEach(func() {
		f = newFixture()
		service = paymentpkg.NewInitiationService(f.payments, f.matcher, f.provider, logger.Discard())
		req = paymentpkg.InitiatePaymentRequest{
			CleanAirZoneID: "Z1",
			VRN:            "AB12CDE",
			TariffCode:     "BCC01-PRIVATE_CAR",
			TravelDates: []time.Time{
				testutil.Date(2024, time.January, 5),
				testutil.Date(2024, time.January, 6),
				testutil.Date(2024, time.January, 7),
			},
			Amount:        2400,
			PaymentMethod: payment.MethodCard,
			ReturnURL:     "https://caz.test/payments/return",
			Email:         "payer@example.com",
		}
	})

	AfterEach(func() {
		f.close()
	})

	It("creates, matches and submits a card payment", func() {
		p, err := service.InitiatePayment(f.ctx, req)
		Expect(err).NotTo(HaveOccurred())

		Expect(*p.ExternalID).To(Equal("ext-new"))
		Expect(p.ExternalStatus).To(Equal(payment.StatusCreated))
		Expect(*p.NextURL).To(Equal("https://provider.test/pay/ext-new"))
		Expect(p.SubmittedTimestamp).NotTo(BeNil())
		Expect(p.EntrantPayments).To(HaveLen(3))

		Expect(f.provider.cardReqs).To(HaveLen(1))
		sent := f.provider.cardReqs[0]
		Expect(sent.Amount).To(Equal(int64(2400)))
		Expect(sent.ReturnURL).To(Equal(req.ReturnURL))
		Expect(sent.CleanAirZoneID).To(Equal("Z1"))

		stored, err := f.payments.GetByID(f.ctx, p.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(*stored.ExternalID).To(Equal("ext-new"))
		Expect(*stored.EmailAddress).To(Equal("payer@example.com"))
		Expect(stored.EntrantPayments).To(HaveLen(3))
		for _, ep := range stored.EntrantPayments {
			Expect(ep.Charge).To(Equal(int64(800)))
			Expect(ep.InternalStatus).To(Equal(entrantpayment.StatusNotPaid))
		}
	})

	It("collects a direct debit against a mandate", func() {
		req.PaymentMethod = payment.MethodDirectDebit
		req.ReturnURL = ""
		req.MandateID = "mandate-1"
		f.provider.setMandate("mandate-1", "active")
		f.provider.nextStatus = "submitted"

		p, err := service.InitiatePayment(f.ctx, req)
		Expect(err).NotTo(HaveOccurred())
		Expect(p.ExternalStatus).To(Equal(payment.StatusSubmitted))
		Expect(*p.MandateID).To(Equal("mandate-1"))
		Expect(f.provider.debitReqs).To(HaveLen(1))
		Expect(f.provider.debitReqs[0].MandateID).To(Equal("mandate-1"))
		Expect(f.provider.cardReqs).To(BeEmpty())
	})

	It("requires a mandate for direct debit", func() {
		req.PaymentMethod = payment.MethodDirectDebit
		req.MandateID = ""

		_, err := service.InitiatePayment(f.ctx, req)
		appErr, ok := internal.IsAppError(err)
		Expect(ok).To(BeTrue())
		Expect(appErr.Type).To(Equal(internal.ErrorTypeValidation))
	})

	It("rejects an uneven split before writing anything", func() {
		req.Amount = 1000

		_, err := service.InitiatePayment(f.ctx, req)
		Expect(errors.Is(err, charge.ErrInvalidChargeDistribution)).To(BeTrue())

		var count int64
		Expect(f.db.Model(&payment.Payment{}).Count(&count).Error).To(Succeed())
		Expect(count).To(BeZero())
	})

	It("leaves the payment initiated when the provider refuses it", func() {
		f.provider.createErr = paymentprovider.ErrUnavailable

		_, err := service.InitiatePayment(f.ctx, req)
		Expect(errors.Is(err, paymentprovider.ErrUnavailable)).To(BeTrue())

		var stored []payment.Payment
		Expect(f.db.Find(&stored).Error).To(Succeed())
		Expect(stored).To(HaveLen(1))
		Expect(stored[0].ExternalStatus).To(Equal(payment.StatusInitiated))
		Expect(stored[0].HasExternalID()).To(BeFalse())

		dangling, err := f.payments.FindDangling(f.ctx, time.Now().UTC().Add(time.Hour), 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(dangling).To(BeEmpty())
	})

	Context("rejected before anything is written", func() {
		countRows := func() (payments, obligations, matches int64) {
			Expect(f.db.Model(&payment.Payment{}).Count(&payments).Error).To(Succeed())
			Expect(f.db.Model(&entrantpayment.EntrantPayment{}).Count(&obligations).Error).To(Succeed())
			Expect(f.db.Model(&entrantpayment.Match{}).Count(&matches).Error).To(Succeed())
			return
		}

		It("rejects repeated travel dates", func() {
			req.TravelDates = []time.Time{
				testutil.Date(2024, time.January, 5),
				time.Date(2024, time.January, 5, 14, 30, 0, 0, time.UTC),
			}
			req.Amount = 1600

			_, err := service.InitiatePayment(f.ctx, req)
			Expect(errors.Is(err, entrantpaymentpkg.ErrDuplicateTravelDate)).To(BeTrue())

			payments, obligations, matches := countRows()
			Expect(payments).To(BeZero())
			Expect(obligations).To(BeZero())
			Expect(matches).To(BeZero())
			Expect(f.provider.cardReqs).To(BeEmpty())
		})

		It("rejects a direct debit against an unknown mandate", func() {
			req.PaymentMethod = payment.MethodDirectDebit
			req.MandateID = "mandate-missing"

			_, err := service.InitiatePayment(f.ctx, req)
			Expect(errors.Is(err, paymentpkg.ErrMandateNotUsable)).To(BeTrue())

			payments, _, _ := countRows()
			Expect(payments).To(BeZero())
			Expect(f.provider.debitReqs).To(BeEmpty())
		})

		It("rejects a direct debit against a cancelled mandate", func() {
			req.PaymentMethod = payment.MethodDirectDebit
			req.MandateID = "mandate-1"
			f.provider.setMandate("mandate-1", "cancelled")

			_, err := service.InitiatePayment(f.ctx, req)
			Expect(errors.Is(err, paymentpkg.ErrMandateNotUsable)).To(BeTrue())

			payments, _, _ := countRows()
			Expect(payments).To(BeZero())
			Expect(f.provider.debitReqs).To(BeEmpty())
		})

		It("rolls the payment back together with its matches when matching fails", func() {
			boom := errors.New("boom")
			service = paymentpkg.NewInitiationService(f.payments, &failingProcessor{next: f.matcher, err: boom}, f.provider, logger.Discard())

			_, err := service.InitiatePayment(f.ctx, req)
			Expect(errors.Is(err, boom)).To(BeTrue())

			payments, obligations, matches := countRows()
			Expect(payments).To(BeZero())
			Expect(obligations).To(BeZero())
			Expect(matches).To(BeZero())
			Expect(f.provider.cardReqs).To(BeEmpty())
		})
	})
})

// failingProcessor matches for real and then fails, so the writes it made
// must be undone by the surrounding transaction.
type failingProcessor struct {
	next paymentpkg.EntrantPaymentProcessor
	err  error
}

func (p *failingProcessor) ProcessEntrantPaymentsForPayment(ctx context.Context, req entrantpaymentpkg.InitiateEntrantPaymentsRequest) ([]entrantpayment.EntrantPayment, error) {
	if _, err := p.next.ProcessEntrantPaymentsForPayment(ctx, req); err != nil {
		return nil, err
	}
	return nil, p.err
}
