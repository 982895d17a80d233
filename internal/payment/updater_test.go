package payment_test

import (
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/caz-payments/internal/core/datamodel/entrantpayment"
	"github.com/frahmantamala/caz-payments/internal/core/datamodel/payment"
	paymentpkg "github.com/frahmantamala/caz-payments/internal/payment"
	"github.com/frahmantamala/caz-payments/pkg/logger"
)

var _ = Describe("StatusUpdater", func() {
	var (
		f       *fixture
		updater *paymentpkg.StatusUpdater
	)

	BeforeEach(func() {
		f = newFixture()
		updater = paymentpkg.NewStatusUpdater(f.payments, f.publisher, logger.Discard())
	})

	AfterEach(func() {
		f.close()
	})

	It("applies only the first of two updates racing from the same loaded status", func() {
		p := f.submittedPayment("ext-1", payment.StatusCreated, 2, time.Now().UTC())

		a, err := f.payments.GetByID(f.ctx, p.ID)
		Expect(err).NotTo(HaveOccurred())
		b, err := f.payments.GetByID(f.ctx, p.ID)
		Expect(err).NotTo(HaveOccurred())

		first, err := updater.UpdateWithStatus(f.ctx, a, payment.StatusSuccess, nil)
		Expect(err).NotTo(HaveOccurred())

		_, err = updater.UpdateWithStatus(f.ctx, b, payment.StatusSuccess, nil)
		Expect(errors.Is(err, paymentpkg.ErrStatusChangedConcurrently)).To(BeTrue())

		Expect(f.publisher.published()).To(HaveLen(1))

		stored, err := f.payments.GetByID(f.ctx, p.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.ExternalStatus).To(Equal(payment.StatusSuccess))
		Expect(stored.AuthorisedTimestamp.Equal(*first.AuthorisedTimestamp)).To(BeTrue())
		for _, ep := range stored.EntrantPayments {
			Expect(ep.InternalStatus).To(Equal(entrantpayment.StatusPaid))
		}
	})

	It("leaves the payer email off the event unless a hook puts it there", func() {
		p := f.submittedPayment("ext-1", payment.StatusCreated, 1, time.Now().UTC())

		_, err := updater.UpdateWithExternalDetails(f.ctx, p, paymentpkg.ExternalPaymentDetails{
			ExternalStatus: payment.StatusStarted,
			Email:          "payer@example.com",
		}, nil)
		Expect(err).NotTo(HaveOccurred())

		stored, err := f.payments.GetByID(f.ctx, p.ID)
		Expect(err).NotTo(HaveOccurred())
		_, err = updater.UpdateWithStatus(f.ctx, stored, payment.StatusSuccess, paymentpkg.WithPayerEmail(*stored.EmailAddress))
		Expect(err).NotTo(HaveOccurred())

		published := f.publisher.published()
		Expect(published).To(HaveLen(2))
		Expect(published[0].EmailAddress).To(BeEmpty())
		Expect(published[1].EmailAddress).To(Equal("payer@example.com"))
	})
})
