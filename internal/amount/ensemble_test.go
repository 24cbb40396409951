package amount

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/bill-amounts/internal/scanning"
)

// mockClassifier labels every amount with one category
type mockClassifier struct {
	name     string
	category Category
	err      error
	delay    time.Duration
	short    bool
	calls    atomic.Int32
}

func (m *mockClassifier) Name() string {
	return m.name
}

func (m *mockClassifier) Classify(ctx context.Context, text string, amounts []NormalizedAmount) ([]ClassifiedAmount, error) {
	m.calls.Add(1)
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	out := make([]ClassifiedAmount, 0, len(amounts))
	for _, a := range amounts {
		out = append(out, ClassifiedAmount{Amount: a, Category: m.category, ClassificationConfidence: 0.9})
	}
	if m.short {
		out = out[:len(out)-1]
	}
	return out, nil
}

// mockBackend answers with a fixed classification response
type mockBackend struct {
	resp *scanning.ClassifyResponse
	err  error
	req  scanning.ClassifyRequest
}

func (m *mockBackend) Name() string {
	return "mock"
}

func (m *mockBackend) Classify(ctx context.Context, req scanning.ClassifyRequest) (*scanning.ClassifyResponse, error) {
	m.req = req
	return m.resp, m.err
}

func (m *mockBackend) Close() error {
	return nil
}

var _ = Describe("BackendClassifier", func() {
	var (
		backend    *mockBackend
		amounts    []NormalizedAmount
		classified []ClassifiedAmount
		err        error
	)

	BeforeEach(func() {
		amounts = locate(sampleBill)
		backend = &mockBackend{resp: &scanning.ClassifyResponse{Classifications: []scanning.Classification{
			{Value: 200, Category: "due", Confidence: 0.7},
			{Value: 1200, Category: "total_bill", Confidence: 0.95},
			{Value: 1000, Category: "paid", Confidence: 0.9},
		}}}
	})

	JustBeforeEach(func() {
		classified, err = NewBackendClassifier(backend).Classify(context.Background(), sampleBill, amounts)
	})

	When("the backend answers every amount", func() {
		It("should align the answer with the amounts", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(categories(classified)).To(Equal([]Category{CategoryTotalBill, CategoryPaid, CategoryDue}))
			Expect(classified[0].ClassificationConfidence).To(Equal(0.95))
		})

		It("should send the values and text", func() {
			Expect(backend.req.Amounts).To(Equal([]float64{1200, 1000, 200}))
			Expect(backend.req.Text).To(Equal(sampleBill))
		})
	})

	When("an amount is missing from the answer", func() {
		BeforeEach(func() {
			backend.resp.Classifications = backend.resp.Classifications[:2]
		})

		It("returns the error", func() {
			Expect(err).To(MatchError(ContainSubstring("no classification for amount 1000.00")))
		})
	})

	When("a category is not recognised", func() {
		BeforeEach(func() {
			backend.resp.Classifications[0].Category = "tax"
		})

		It("returns the error", func() {
			Expect(err).To(MatchError(ContainSubstring("unknown category")))
		})
	})

	When("a confidence is out of range", func() {
		BeforeEach(func() {
			backend.resp.Classifications[1].Confidence = 1.5
		})

		It("returns the error", func() {
			Expect(err).To(MatchError(ContainSubstring("out of range")))
		})
	})

	When("the backend fails", func() {
		BeforeEach(func() {
			backend.err = errors.New("quota exceeded")
		})

		It("returns the error", func() {
			Expect(err).To(MatchError("quota exceeded"))
		})
	})
})

var _ = Describe("Ensemble", func() {
	var (
		primary   *mockClassifier
		secondary *mockClassifier
		cfg       EnsembleConfig
		amounts   []NormalizedAmount
		result    *Classifications
	)

	BeforeEach(func() {
		primary = &mockClassifier{name: "gemini", category: CategoryOther}
		secondary = &mockClassifier{name: "ollama", category: CategoryOther}
		cfg = EnsembleConfig{Primary: primary, Secondary: secondary, Timeout: time.Second}
		amounts = locate(sampleBill)
	})

	JustBeforeEach(func() {
		result = NewEnsemble(cfg).Classify(context.Background(), sampleBill, amounts)
	})

	When("both backends answer", func() {
		It("should keep both answers", func() {
			Expect(result.PrimarySource).To(Equal("gemini"))
			Expect(result.SecondarySource).To(Equal("ollama"))
			Expect(result.Primary).To(HaveLen(3))
			Expect(result.Secondary).To(HaveLen(3))
		})
	})

	When("the primary backend fails", func() {
		BeforeEach(func() {
			primary.err = errors.New("quota exceeded")
		})

		It("should substitute rules for the primary only", func() {
			Expect(result.PrimarySource).To(Equal("rules"))
			Expect(categories(result.Primary)).To(Equal([]Category{CategoryTotalBill, CategoryPaid, CategoryDue}))
			Expect(result.SecondarySource).To(Equal("ollama"))
		})
	})

	When("a backend answers the wrong number of amounts", func() {
		BeforeEach(func() {
			secondary.short = true
		})

		It("should substitute rules", func() {
			Expect(result.SecondarySource).To(Equal("rules"))
			Expect(result.Secondary).To(HaveLen(3))
		})
	})

	When("a backend times out", func() {
		BeforeEach(func() {
			secondary.delay = time.Second
			cfg.Timeout = 20 * time.Millisecond
		})

		It("should substitute rules", func() {
			Expect(result.SecondarySource).To(Equal("rules"))
			Expect(result.PrimarySource).To(Equal("gemini"))
		})
	})

	When("no backends are configured", func() {
		BeforeEach(func() {
			cfg = EnsembleConfig{}
		})

		It("should use rules for both sets", func() {
			Expect(result.PrimarySource).To(Equal("rules"))
			Expect(result.SecondarySource).To(Equal("rules"))
			Expect(categories(result.Primary)).To(Equal(categories(result.Secondary)))
		})
	})

	When("there are no amounts", func() {
		BeforeEach(func() {
			amounts = nil
		})

		It("should not call the backends", func() {
			Expect(primary.calls.Load()).To(BeZero())
			Expect(secondary.calls.Load()).To(BeZero())
			Expect(result.Primary).To(BeEmpty())
		})
	})

	It("should report backend names", func() {
		p, s := NewEnsemble(EnsembleConfig{Primary: primary}).Backends()
		Expect(p).To(Equal("gemini"))
		Expect(s).To(Equal("rules"))
	})
})
