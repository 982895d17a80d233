package postgres_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/frahmantamala/caz-payments/internal/core/datamodel/entrantpayment"
	entrantpaymentpkg "github.com/frahmantamala/caz-payments/internal/entrantpayment"
	"github.com/frahmantamala/caz-payments/internal/entrantpayment/postgres"
	"github.com/frahmantamala/caz-payments/internal/testutil"
)

var _ = Describe("EntrantPaymentRepository", func() {
	var (
		ctx  context.Context
		db   *gorm.DB
		repo *postgres.EntrantPaymentRepository
		day  time.Time
	)

	newEntrantPayment := func(date time.Time) *entrantpayment.EntrantPayment {
		return &entrantpayment.EntrantPayment{
			CleanAirZoneID: "Z1",
			VRN:            "AB12CDE",
			TravelDate:     date,
			TariffCode:     "BCC01-PRIVATE_CAR",
			Charge:         800,
			InternalStatus: entrantpayment.StatusNotPaid,
			UpdateActor:    entrantpayment.ActorUser,
		}
	}

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		db, err = testutil.NewSQLiteDB()
		Expect(err).NotTo(HaveOccurred())
		repo = postgres.NewEntrantPaymentRepository(db)
		day = testutil.Date(2024, time.January, 5)
	})

	AfterEach(func() {
		Expect(testutil.Close(db)).To(Succeed())
	})

	Describe("Create", func() {
		It("assigns an id", func() {
			ep := newEntrantPayment(day)
			Expect(repo.Create(ctx, ep)).To(Succeed())
			Expect(ep.ID).To(BeNumerically(">", 0))
		})

		It("rejects a second obligation for the same zone, vrn and date", func() {
			Expect(repo.Create(ctx, newEntrantPayment(day))).To(Succeed())
			Expect(repo.Create(ctx, newEntrantPayment(day))).NotTo(Succeed())
		})

		It("normalises the travel date to midnight", func() {
			ep := newEntrantPayment(day.Add(15 * time.Hour))
			Expect(repo.Create(ctx, ep)).To(Succeed())

			found, err := repo.FindByNaturalKey(ctx, "Z1", "AB12CDE", day)
			Expect(err).NotTo(HaveOccurred())
			Expect(found.ID).To(Equal(ep.ID))
		})
	})

	Describe("FindByNaturalKey", func() {
		It("returns not found when nothing matches", func() {
			found, err := repo.FindByNaturalKey(ctx, "Z1", "AB12CDE", day)
			Expect(found).To(BeNil())
			Expect(errors.Is(err, entrantpaymentpkg.ErrEntrantPaymentNotFound)).To(BeTrue())
		})

		It("does not mix zones", func() {
			Expect(repo.Create(ctx, newEntrantPayment(day))).To(Succeed())

			_, err := repo.FindByNaturalKey(ctx, "Z2", "AB12CDE", day)
			Expect(errors.Is(err, entrantpaymentpkg.ErrEntrantPaymentNotFound)).To(BeTrue())
		})
	})

	Describe("FindByTravelDates", func() {
		It("returns only the requested dates in date order", func() {
			for _, d := range []int{7, 5, 6} {
				Expect(repo.Create(ctx, newEntrantPayment(testutil.Date(2024, time.January, d)))).To(Succeed())
			}

			found, err := repo.FindByTravelDates(ctx, "Z1", "AB12CDE", []time.Time{
				testutil.Date(2024, time.January, 7),
				testutil.Date(2024, time.January, 5),
				testutil.Date(2024, time.January, 9),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(HaveLen(2))
			Expect(entrantpayment.DateKey(found[0].TravelDate)).To(Equal("2024-01-05"))
			Expect(entrantpayment.DateKey(found[1].TravelDate)).To(Equal("2024-01-07"))
		})

		It("returns nothing for an empty date list", func() {
			found, err := repo.FindByTravelDates(ctx, "Z1", "AB12CDE", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeEmpty())
		})
	})

	Describe("Update", func() {
		It("persists status, actor and case reference", func() {
			ep := newEntrantPayment(day)
			Expect(repo.Create(ctx, ep)).To(Succeed())

			caseRef := "CASE-42"
			ep.InternalStatus = entrantpayment.StatusRefunded
			ep.UpdateActor = entrantpayment.ActorLA
			ep.CaseReference = &caseRef
			Expect(repo.Update(ctx, ep)).To(Succeed())

			found, err := repo.FindByNaturalKey(ctx, "Z1", "AB12CDE", day)
			Expect(err).NotTo(HaveOccurred())
			Expect(found.InternalStatus).To(Equal(entrantpayment.StatusRefunded))
			Expect(found.UpdateActor).To(Equal(entrantpayment.ActorLA))
			Expect(*found.CaseReference).To(Equal("CASE-42"))
		})

		It("reports a missing row", func() {
			ep := newEntrantPayment(day)
			ep.ID = 999
			err := repo.Update(ctx, ep)
			Expect(errors.Is(err, entrantpaymentpkg.ErrEntrantPaymentNotFound)).To(BeTrue())
		})
	})

	Describe("matches", func() {
		var ep *entrantpayment.EntrantPayment

		BeforeEach(func() {
			ep = newEntrantPayment(day)
			Expect(repo.Create(ctx, ep)).To(Succeed())
		})

		It("refuses a second latest match for one obligation", func() {
			Expect(repo.CreateMatch(ctx, &entrantpayment.Match{EntrantPaymentID: ep.ID, PaymentID: 1, Latest: true})).To(Succeed())
			Expect(repo.CreateMatch(ctx, &entrantpayment.Match{EntrantPaymentID: ep.ID, PaymentID: 2, Latest: true})).NotTo(Succeed())
		})

		It("allows any number of historical matches", func() {
			Expect(repo.CreateMatch(ctx, &entrantpayment.Match{EntrantPaymentID: ep.ID, PaymentID: 1, Latest: false})).To(Succeed())
			Expect(repo.CreateMatch(ctx, &entrantpayment.Match{EntrantPaymentID: ep.ID, PaymentID: 2, Latest: false})).To(Succeed())
			Expect(repo.CreateMatch(ctx, &entrantpayment.Match{EntrantPaymentID: ep.ID, PaymentID: 3, Latest: true})).To(Succeed())

			matches, err := repo.FindMatches(ctx, ep.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(matches).To(HaveLen(3))
		})

		It("demotes the latest match and lets a new one in", func() {
			Expect(repo.CreateMatch(ctx, &entrantpayment.Match{EntrantPaymentID: ep.ID, PaymentID: 1, Latest: true})).To(Succeed())

			demoted, err := repo.DemoteLatestMatch(ctx, ep.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(demoted).To(Equal(int64(1)))

			Expect(repo.CreateMatch(ctx, &entrantpayment.Match{EntrantPaymentID: ep.ID, PaymentID: 2, Latest: true})).To(Succeed())

			latest, err := repo.FindLatestMatch(ctx, ep.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(latest.PaymentID).To(Equal(int64(2)))
		})

		It("demotes nothing when there is no latest match", func() {
			demoted, err := repo.DemoteLatestMatch(ctx, ep.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(demoted).To(BeZero())

			latest, err := repo.FindLatestMatch(ctx, ep.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(latest).To(BeNil())
		})
	})

	Describe("Transaction", func() {
		It("rolls back every write when fn fails", func() {
			boom := errors.New("boom")
			err := repo.Transaction(ctx, func(tx entrantpaymentpkg.Repository) error {
				Expect(tx.Create(ctx, newEntrantPayment(day))).To(Succeed())
				return boom
			})
			Expect(err).To(MatchError(boom))

			_, err = repo.FindByNaturalKey(ctx, "Z1", "AB12CDE", day)
			Expect(errors.Is(err, entrantpaymentpkg.ErrEntrantPaymentNotFound)).To(BeTrue())
		})
	})
})
