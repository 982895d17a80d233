package postgres_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/frahmantamala/caz-payments/internal/core/datamodel/entrantpayment"
	"github.com/frahmantamala/caz-payments/internal/core/datamodel/payment"
	entrantpaymentpkg "github.com/frahmantamala/caz-payments/internal/entrantpayment"
	entrantpostgres "github.com/frahmantamala/caz-payments/internal/entrantpayment/postgres"
	paymentpkg "github.com/frahmantamala/caz-payments/internal/payment"
	"github.com/frahmantamala/caz-payments/internal/payment/postgres"
	"github.com/frahmantamala/caz-payments/internal/testutil"
)

func strPtr(s string) *string { return &s }

var _ = Describe("PaymentRepository", func() {
	var (
		ctx      context.Context
		db       *gorm.DB
		repo     *postgres.PaymentRepository
		entrants *entrantpostgres.EntrantPaymentRepository
	)

	newPayment := func(status payment.ExternalStatus) *payment.Payment {
		return &payment.Payment{
			PaymentMethod:  payment.MethodCard,
			TotalPaid:      1600,
			ExternalStatus: status,
			CleanAirZoneID: "Z1",
		}
	}

	obligation := func(day int) *entrantpayment.EntrantPayment {
		ep := &entrantpayment.EntrantPayment{
			CleanAirZoneID: "Z1",
			VRN:            "AB12CDE",
			TravelDate:     testutil.Date(2024, time.January, day),
			TariffCode:     "BCC01-PRIVATE_CAR",
			Charge:         800,
			InternalStatus: entrantpayment.StatusNotPaid,
			UpdateActor:    entrantpayment.ActorUser,
		}
		Expect(entrants.Create(ctx, ep)).To(Succeed())
		return ep
	}

	match := func(epID, paymentID int64, latest bool) {
		Expect(entrants.CreateMatch(ctx, &entrantpayment.Match{
			EntrantPaymentID: epID,
			PaymentID:        paymentID,
			Latest:           latest,
		})).To(Succeed())
	}

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		db, err = testutil.NewSQLiteDB()
		Expect(err).NotTo(HaveOccurred())
		repo = postgres.NewPaymentRepository(db)
		entrants = entrantpostgres.NewEntrantPaymentRepository(db)
	})

	AfterEach(func() {
		Expect(testutil.Close(db)).To(Succeed())
	})

	Describe("Create", func() {
		It("uses the id as reference number", func() {
			p := newPayment(payment.StatusInitiated)
			Expect(repo.Create(ctx, p)).To(Succeed())
			Expect(p.ID).NotTo(BeZero())
			Expect(p.ReferenceNumber).To(Equal(p.ID))

			stored, err := repo.GetByID(ctx, p.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.ReferenceNumber).To(Equal(p.ID))
			Expect(stored.HasExternalID()).To(BeFalse())
		})
	})

	Describe("GetByID", func() {
		It("reports a missing payment", func() {
			_, err := repo.GetByID(ctx, 99)
			Expect(errors.Is(err, paymentpkg.ErrPaymentNotFound)).To(BeTrue())
		})

		It("loads only the obligations whose latest match points at the payment", func() {
			first := newPayment(payment.StatusStarted)
			second := newPayment(payment.StatusStarted)
			Expect(repo.Create(ctx, first)).To(Succeed())
			Expect(repo.Create(ctx, second)).To(Succeed())

			day5, day6 := obligation(5), obligation(6)
			match(day5.ID, first.ID, false)
			match(day5.ID, second.ID, true)
			match(day6.ID, first.ID, true)

			loaded, err := repo.GetByID(ctx, first.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded.EntrantPaymentIDs()).To(Equal([]int64{day6.ID}))

			loaded, err = repo.GetByID(ctx, second.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded.EntrantPaymentIDs()).To(Equal([]int64{day5.ID}))
		})
	})

	Describe("UpdateProviderDetails", func() {
		It("stores what the provider returned", func() {
			p := newPayment(payment.StatusInitiated)
			Expect(repo.Create(ctx, p)).To(Succeed())

			submitted := time.Date(2024, time.January, 5, 10, 0, 0, 0, time.UTC)
			p.ExternalID = strPtr("ext-1")
			p.ExternalStatus = payment.StatusCreated
			p.SubmittedTimestamp = &submitted
			p.NextURL = strPtr("https://provider.test/pay/ext-1")
			Expect(repo.UpdateProviderDetails(ctx, p)).To(Succeed())

			stored, err := repo.GetByID(ctx, p.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(*stored.ExternalID).To(Equal("ext-1"))
			Expect(stored.ExternalStatus).To(Equal(payment.StatusCreated))
			Expect(*stored.NextURL).To(Equal("https://provider.test/pay/ext-1"))
			Expect(stored.SubmittedTimestamp.Equal(submitted)).To(BeTrue())
		})
	})

	Describe("UpdateWithEntrantPayments", func() {
		It("writes the payment and its obligations together", func() {
			p := newPayment(payment.StatusSubmitted)
			Expect(repo.Create(ctx, p)).To(Succeed())
			day5 := obligation(5)
			match(day5.ID, p.ID, true)

			loaded, err := repo.GetByID(ctx, p.ID)
			Expect(err).NotTo(HaveOccurred())
			next, err := paymentpkg.BuildPaymentWithStatus(loaded, payment.StatusSuccess, time.Now().UTC())
			Expect(err).NotTo(HaveOccurred())
			Expect(repo.UpdateWithEntrantPayments(ctx, next, loaded.ExternalStatus)).To(Succeed())

			stored, err := repo.GetByID(ctx, p.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.ExternalStatus).To(Equal(payment.StatusSuccess))
			Expect(stored.AuthorisedTimestamp).NotTo(BeNil())
			Expect(stored.EntrantPayments[0].InternalStatus).To(Equal(entrantpayment.StatusPaid))
		})

		It("rolls back the payment when an obligation is missing", func() {
			p := newPayment(payment.StatusSubmitted)
			Expect(repo.Create(ctx, p)).To(Succeed())

			next := *p
			next.ExternalStatus = payment.StatusSuccess
			next.EntrantPayments = []entrantpayment.EntrantPayment{{ID: 404, InternalStatus: entrantpayment.StatusPaid}}
			err := repo.UpdateWithEntrantPayments(ctx, &next, payment.StatusSubmitted)
			Expect(errors.Is(err, entrantpaymentpkg.ErrEntrantPaymentNotFound)).To(BeTrue())

			stored, err := repo.GetByID(ctx, p.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.ExternalStatus).To(Equal(payment.StatusSubmitted))
		})

		It("writes nothing when the stored status moved on since it was loaded", func() {
			p := newPayment(payment.StatusCreated)
			Expect(repo.Create(ctx, p)).To(Succeed())
			day5 := obligation(5)
			match(day5.ID, p.ID, true)

			first, err := repo.GetByID(ctx, p.ID)
			Expect(err).NotTo(HaveOccurred())
			second, err := repo.GetByID(ctx, p.ID)
			Expect(err).NotTo(HaveOccurred())

			success, err := paymentpkg.BuildPaymentWithStatus(first, payment.StatusSuccess, time.Now().UTC())
			Expect(err).NotTo(HaveOccurred())
			Expect(repo.UpdateWithEntrantPayments(ctx, success, first.ExternalStatus)).To(Succeed())
			authorised := *success.AuthorisedTimestamp

			failed, err := paymentpkg.BuildPaymentWithStatus(second, payment.StatusFailed, time.Now().UTC())
			Expect(err).NotTo(HaveOccurred())
			err = repo.UpdateWithEntrantPayments(ctx, failed, second.ExternalStatus)
			Expect(errors.Is(err, paymentpkg.ErrStatusChangedConcurrently)).To(BeTrue())

			stored, err := repo.GetByID(ctx, p.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.ExternalStatus).To(Equal(payment.StatusSuccess))
			Expect(stored.AuthorisedTimestamp.Equal(authorised)).To(BeTrue())
			Expect(stored.EntrantPayments[0].InternalStatus).To(Equal(entrantpayment.StatusPaid))
		})

		It("reports a missing payment", func() {
			next := newPayment(payment.StatusSuccess)
			next.ID = 99
			err := repo.UpdateWithEntrantPayments(ctx, next, payment.StatusCreated)
			Expect(errors.Is(err, paymentpkg.ErrPaymentNotFound)).To(BeTrue())
		})
	})

	Describe("Transaction", func() {
		It("rolls back the payment and obligations written through the shared context", func() {
			boom := errors.New("boom")
			err := repo.Transaction(ctx, func(ctx context.Context) error {
				p := newPayment(payment.StatusInitiated)
				Expect(repo.Create(ctx, p)).To(Succeed())
				Expect(entrants.Transaction(ctx, func(tx entrantpaymentpkg.Repository) error {
					ep := &entrantpayment.EntrantPayment{
						CleanAirZoneID: "Z1",
						VRN:            "AB12CDE",
						TravelDate:     testutil.Date(2024, time.January, 5),
						InternalStatus: entrantpayment.StatusNotPaid,
						UpdateActor:    entrantpayment.ActorUser,
					}
					if err := tx.Create(ctx, ep); err != nil {
						return err
					}
					return tx.CreateMatch(ctx, &entrantpayment.Match{EntrantPaymentID: ep.ID, PaymentID: p.ID, Latest: true})
				})).To(Succeed())
				return boom
			})
			Expect(errors.Is(err, boom)).To(BeTrue())

			var payments, obligations, matches int64
			Expect(db.Model(&payment.Payment{}).Count(&payments).Error).To(Succeed())
			Expect(db.Model(&entrantpayment.EntrantPayment{}).Count(&obligations).Error).To(Succeed())
			Expect(db.Model(&entrantpayment.Match{}).Count(&matches).Error).To(Succeed())
			Expect(payments).To(BeZero())
			Expect(obligations).To(BeZero())
			Expect(matches).To(BeZero())
		})
	})

	Describe("FindDangling", func() {
		submit := func(status payment.ExternalStatus, externalID string, at time.Time) *payment.Payment {
			p := newPayment(payment.StatusInitiated)
			Expect(repo.Create(ctx, p)).To(Succeed())
			p.ExternalID = strPtr(externalID)
			p.ExternalStatus = status
			p.SubmittedTimestamp = &at
			Expect(repo.UpdateProviderDetails(ctx, p)).To(Succeed())
			return p
		}

		It("returns old non-terminal submitted payments, oldest first, up to the limit", func() {
			cutoff := time.Date(2024, time.January, 5, 12, 0, 0, 0, time.UTC)
			older := submit(payment.StatusStarted, "a", cutoff.Add(-3*time.Hour))
			old := submit(payment.StatusCapturable, "b", cutoff.Add(-2*time.Hour))
			submit(payment.StatusSubmitted, "c", cutoff.Add(-1*time.Hour))
			submit(payment.StatusSuccess, "d", cutoff.Add(-4*time.Hour))
			submit(payment.StatusCreated, "e", cutoff.Add(time.Hour))

			never := newPayment(payment.StatusInitiated)
			Expect(repo.Create(ctx, never)).To(Succeed())

			found, err := repo.FindDangling(ctx, cutoff, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(HaveLen(2))
			Expect(found[0].ID).To(Equal(older.ID))
			Expect(found[1].ID).To(Equal(old.ID))
		})
	})
})
