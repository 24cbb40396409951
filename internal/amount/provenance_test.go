package amount

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Attribute", func() {
	final := func(offset int) []FinalAmount {
		return []FinalAmount{{
			Category:     CategoryTotalBill,
			Value:        ValueFromFloat(1200),
			Currency:     CurrencyINR,
			Confidence:   0.9,
			SourceOffset: offset,
		}}
	}

	It("should quote the text from the amount", func() {
		out := Attribute(final(strings.Index(sampleBill, "1200")), sampleBill, MethodText)
		Expect(out[0].Source).To(Equal("text: '1200 | Paid: 1000 | Due: 200 | Discount: 10%'"))
		Expect(out[0].Method).To(Equal(MethodText))
	})

	It("should prefix OCR sources", func() {
		out := Attribute(final(0), "1200 total", MethodOCR)
		Expect(out[0].Source).To(Equal("ocr: '1200 total'"))
	})

	It("should collapse whitespace", func() {
		out := Attribute(final(0), "1200\n\n   due   now", MethodText)
		Expect(out[0].Source).To(Equal("text: '1200 due now'"))
	})

	It("should mark cut excerpts", func() {
		text := "1200 " + strings.Repeat("x", 100)
		out := Attribute(final(0), text, MethodText)
		Expect(out[0].Source).To(HaveSuffix("...'"))
		Expect(len(out[0].Source)).To(BeNumerically("<", len(text)))
	})

	It("should quote from the start when the offset is unknown", func() {
		out := Attribute(final(NoOffset), "Bill total 1200", MethodText)
		Expect(out[0].Source).To(Equal("text: 'Bill total 1200'"))
	})

	It("should not split multibyte characters", func() {
		text := "1200" + strings.Repeat("₹", 30)
		out := Attribute(final(0), text, MethodText)
		Expect(strings.ToValidUTF8(out[0].Source, "?")).To(Equal(out[0].Source))
	})

	It("should leave the input untouched", func() {
		in := final(0)
		Attribute(in, "1200 total", MethodText)
		Expect(in[0].Source).To(BeEmpty())
	})
})
