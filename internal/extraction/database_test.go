package extraction

import (
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/bill-amounts/internal/amount"
)

var _ = Describe("BoltDB", func() {
	var (
		tmpDir string
		dbPath string
		db     *BoltDB
	)

	newRecord := func(id string, createdAt time.Time) *Record {
		return &Record{
			ID:        id,
			CreatedAt: createdAt,
			Input:     InputText,
			Result: &amount.Result{
				Status:   amount.StatusOK,
				Currency: amount.CurrencyINR,
				Method:   amount.MethodText,
				Amounts: []amount.FinalAmount{{
					Category:   amount.CategoryTotalBill,
					Value:      amount.ValueFromFloat(1200),
					Currency:   amount.CurrencyINR,
					Source:     "text: 'Total: INR 1200'",
					Method:     amount.MethodText,
					Confidence: 0.85,
				}},
				Confidence: 0.85,
			},
		}
	}

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		dbPath = filepath.Join(tmpDir, "test.db")
		var err error
		db, err = NewBoltDB(dbPath)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	Describe("SaveRecord", func() {
		var (
			record *Record
			err    error
		)

		BeforeEach(func() {
			record = newRecord("test-id", time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC))
		})

		JustBeforeEach(func() {
			err = db.SaveRecord(record)
		})

		When("saving succeeds", func() {
			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should store the record", func() {
				stored, err := db.GetRecord("test-id")
				Expect(err).NotTo(HaveOccurred())
				Expect(stored.Input).To(Equal(InputText))
				Expect(stored.CreatedAt.Equal(record.CreatedAt)).To(BeTrue())
			})

			It("should keep the amounts exact", func() {
				stored, err := db.GetRecord("test-id")
				Expect(err).NotTo(HaveOccurred())
				Expect(stored.Result.Amounts).To(HaveLen(1))
				Expect(stored.Result.Amounts[0].Value.Key()).To(Equal("1200.00"))
				Expect(stored.Result.Amounts[0].Category).To(Equal(amount.CategoryTotalBill))
			})
		})
	})

	Describe("GetRecord", func() {
		When("the record does not exist", func() {
			It("returns ErrNotFound", func() {
				_, err := db.GetRecord("missing")
				Expect(err).To(MatchError(ErrNotFound))
			})
		})
	})

	Describe("ListRecords", func() {
		When("records exist", func() {
			BeforeEach(func() {
				Expect(db.SaveRecord(newRecord("b-newer", time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC)))).To(Succeed())
				Expect(db.SaveRecord(newRecord("a-older", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)))).To(Succeed())
			})

			It("should return them oldest first", func() {
				records, err := db.ListRecords()
				Expect(err).NotTo(HaveOccurred())
				Expect(records).To(HaveLen(2))
				Expect(records[0].ID).To(Equal("a-older"))
				Expect(records[1].ID).To(Equal("b-newer"))
			})
		})

		When("no records exist", func() {
			It("should return an empty slice", func() {
				records, err := db.ListRecords()
				Expect(err).NotTo(HaveOccurred())
				Expect(records).To(BeEmpty())
			})
		})
	})

	Describe("DeleteRecord", func() {
		BeforeEach(func() {
			Expect(db.SaveRecord(newRecord("test-id", time.Now()))).To(Succeed())
		})

		It("should remove the record", func() {
			Expect(db.DeleteRecord("test-id")).To(Succeed())
			_, err := db.GetRecord("test-id")
			Expect(err).To(MatchError(ErrNotFound))
		})
	})

	Describe("reopening the database", func() {
		It("should keep saved records", func() {
			Expect(db.SaveRecord(newRecord("test-id", time.Now()))).To(Succeed())
			Expect(db.Close()).To(Succeed())

			var err error
			db, err = NewBoltDB(dbPath)
			Expect(err).NotTo(HaveOccurred())
			_, err = db.GetRecord("test-id")
			Expect(err).NotTo(HaveOccurred())
		})
	})
})
