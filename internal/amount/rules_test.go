package amount

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// locate tokenizes and normalizes text the way the pipeline does
func locate(text string) []NormalizedAmount {
	ext, err := Tokenize(text)
	Expect(err).NotTo(HaveOccurred())
	return Normalize(ext.Tokens, ext.CurrencyHint).Amounts
}

var _ = Describe("RuleClassifier", func() {
	var classifier *RuleClassifier

	BeforeEach(func() {
		classifier = NewRuleClassifier()
	})

	It("should be named rules", func() {
		Expect(classifier.Name()).To(Equal("rules"))
	})

	When("classifying a clean bill", func() {
		var classified []ClassifiedAmount

		BeforeEach(func() {
			classified = classifier.ClassifyAll(sampleBill, locate(sampleBill))
		})

		It("should label each amount from its own field", func() {
			Expect(categories(classified)).To(Equal([]Category{CategoryTotalBill, CategoryPaid, CategoryDue}))
		})

		It("should use the rule confidences", func() {
			Expect(classified[0].ClassificationConfidence).To(Equal(0.85))
			Expect(classified[2].ClassificationConfidence).To(Equal(0.8))
		})
	})

	When("classifying itemised charges", func() {
		It("should recognise fees, medicines and tests", func() {
			text := "Consultation: 500 | Medicines: 300 | Lab tests: 700 | GST: 50"
			classified := classifier.ClassifyAll(text, locate(text))
			Expect(categories(classified)).To(Equal([]Category{
				CategoryConsultationFee,
				CategoryMedicineCost,
				CategoryTestCost,
				CategoryOther,
			}))
			Expect(classified[3].ClassificationConfidence).To(Equal(0.4))
		})
	})

	When("fields share a line", func() {
		It("should stop at neighbouring numbers", func() {
			text := "Paid 800 Balance 400"
			classified := classifier.ClassifyAll(text, locate(text))
			Expect(categories(classified)).To(Equal([]Category{CategoryPaid, CategoryDue}))
		})

		It("should prefer the label before each amount", func() {
			text := "Due 400 Paid 800"
			classified := classifier.ClassifyAll(text, locate(text))
			Expect(categories(classified)).To(Equal([]Category{CategoryDue, CategoryPaid}))
		})

		It("should fall back to a label after the amount", func() {
			text := "Amount 1200 total"
			classified := classifier.ClassifyAll(text, locate(text))
			Expect(categories(classified)).To(Equal([]Category{CategoryTotalBill}))
		})
	})

	DescribeTable("discounts",
		func(text string, want Category) {
			classified := classifier.ClassifyAll(text, locate(text))
			Expect(classified).To(HaveLen(1))
			Expect(classified[0].Category).To(Equal(want))
		},
		Entry("absolute discount", "Discount: Rs 50", CategoryDiscount),
		Entry("percent off", "10% off: 120", CategoryDiscount),
		Entry("off without a percent", "Get 120 off", CategoryOther),
	)

	When("the offset is unknown", func() {
		It("should fall back to other", func() {
			amounts := []NormalizedAmount{{Value: ValueFromFloat(99), SourceOffset: NoOffset}}
			classified := classifier.ClassifyAll("Total 99", amounts)
			Expect(classified[0].Category).To(Equal(CategoryOther))
		})
	})

	It("should never fail", func() {
		classified, err := classifier.Classify(context.Background(), sampleBill, locate(sampleBill))
		Expect(err).NotTo(HaveOccurred())
		Expect(classified).To(HaveLen(3))
	})
})
