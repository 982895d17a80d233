package payment_test

import (
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/caz-payments/internal/core/datamodel/entrantpayment"
	"github.com/frahmantamala/caz-payments/internal/core/datamodel/payment"
	paymentpkg "github.com/frahmantamala/caz-payments/internal/payment"
)

var _ = Describe("Status builders", func() {
	var (
		now time.Time
		p   *payment.Payment
	)

	BeforeEach(func() {
		now = time.Date(2024, time.January, 5, 10, 30, 0, 0, time.UTC)
		p = &payment.Payment{
			ID:             1,
			ExternalStatus: payment.StatusSubmitted,
			EntrantPayments: []entrantpayment.EntrantPayment{
				{ID: 10, InternalStatus: entrantpayment.StatusNotPaid},
				{ID: 11, InternalStatus: entrantpayment.StatusPaid},
			},
		}
	})

	Describe("BuildPaymentWithStatus", func() {
		It("marks every obligation paid and stamps authorisation on SUCCESS", func() {
			next, err := paymentpkg.BuildPaymentWithStatus(p, payment.StatusSuccess, now)
			Expect(err).NotTo(HaveOccurred())
			Expect(next.ExternalStatus).To(Equal(payment.StatusSuccess))
			Expect(*next.AuthorisedTimestamp).To(Equal(now))
			for _, ep := range next.EntrantPayments {
				Expect(ep.InternalStatus).To(Equal(entrantpayment.StatusPaid))
			}
		})

		It("maps every other status to not paid and keeps the authorisation time", func() {
			earlier := now.Add(-time.Hour)
			p.AuthorisedTimestamp = &earlier

			next, err := paymentpkg.BuildPaymentWithStatus(p, payment.StatusFailed, now)
			Expect(err).NotTo(HaveOccurred())
			Expect(*next.AuthorisedTimestamp).To(Equal(earlier))
			for _, ep := range next.EntrantPayments {
				Expect(ep.InternalStatus).To(Equal(entrantpayment.StatusNotPaid))
			}
		})

		It("does not touch its input", func() {
			_, err := paymentpkg.BuildPaymentWithStatus(p, payment.StatusSuccess, now)
			Expect(err).NotTo(HaveOccurred())
			Expect(p.ExternalStatus).To(Equal(payment.StatusSubmitted))
			Expect(p.AuthorisedTimestamp).To(BeNil())
			Expect(p.EntrantPayments[0].InternalStatus).To(Equal(entrantpayment.StatusNotPaid))
		})

		It("rejects an unchanged status", func() {
			_, err := paymentpkg.BuildPaymentWithStatus(p, payment.StatusSubmitted, now)
			Expect(errors.Is(err, paymentpkg.ErrStatusAlreadyEqual)).To(BeTrue())
		})
	})

	Describe("BuildWithExternalPaymentDetails", func() {
		It("carries the payer email and pays the obligations on SUCCESS", func() {
			next, err := paymentpkg.BuildWithExternalPaymentDetails(p, paymentpkg.ExternalPaymentDetails{
				ExternalStatus: payment.StatusSuccess,
				Email:          "payer@example.com",
			}, now)
			Expect(err).NotTo(HaveOccurred())
			Expect(*next.EmailAddress).To(Equal("payer@example.com"))
			Expect(next.EntrantPayments).To(HaveLen(2))
			for _, ep := range next.EntrantPayments {
				Expect(ep.InternalStatus).To(Equal(entrantpayment.StatusPaid))
			}
		})

		DescribeTable("leaves obligations alone for statuses that are not paid",
			func(status payment.ExternalStatus) {
				next, err := paymentpkg.BuildWithExternalPaymentDetails(p, paymentpkg.ExternalPaymentDetails{ExternalStatus: status}, now)
				Expect(err).NotTo(HaveOccurred())
				Expect(next.EntrantPayments).NotTo(BeNil())
				Expect(next.EntrantPayments).To(BeEmpty())
				Expect(next.AuthorisedTimestamp).To(BeNil())
				Expect(p.EntrantPayments[1].InternalStatus).To(Equal(entrantpayment.StatusPaid))
			},
			Entry("failed", payment.StatusFailed),
			Entry("cancelled", payment.StatusCancelled),
			Entry("error", payment.StatusError),
			Entry("capturable", payment.StatusCapturable),
		)

		It("rejects an unchanged status", func() {
			_, err := paymentpkg.BuildWithExternalPaymentDetails(p, paymentpkg.ExternalPaymentDetails{ExternalStatus: payment.StatusSubmitted}, now)
			Expect(errors.Is(err, paymentpkg.ErrStatusAlreadyEqual)).To(BeTrue())
		})
	})
})
