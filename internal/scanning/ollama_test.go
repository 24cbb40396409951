package scanning

import (
	"context"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("Ollama", func() {
	var (
		server  *ghttp.Server
		backend *Ollama
		ctx     context.Context
		req     ClassifyRequest
		resp    *ClassifyResponse
		err     error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		var newErr error
		backend, newErr = NewOllama(server.URL(), "llama3.1")
		Expect(newErr).NotTo(HaveOccurred())
		ctx = context.Background()
		req = ClassifyRequest{
			Text:    "Total: INR 1200 | Paid: 1000",
			Amounts: []float64{1200, 1000},
		}
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		resp, err = backend.Classify(ctx, req)
	})

	When("the model answers with valid JSON", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest("POST", "/api/chat"),
				ghttp.VerifyHeaderKV("Content-Type", "application/json"),
				ghttp.RespondWithJSONEncoded(http.StatusOK, ollamaChatResponse{
					Message: ollamaMessage{
						Role:    "assistant",
						Content: `{"classifications": [{"value": 1200, "category": "total_bill", "confidence": 0.9}, {"value": 1000, "category": "paid", "confidence": 0.85}]}`,
					},
					Done: true,
				}),
			))
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should return the classifications", func() {
			Expect(resp.Classifications).To(ConsistOf(
				Classification{Value: 1200, Category: "total_bill", Confidence: 0.9},
				Classification{Value: 1000, Category: "paid", Confidence: 0.85},
			))
		})

		It("should send the prompt to the configured model", func() {
			Expect(server.ReceivedRequests()).To(HaveLen(1))
		})
	})

	When("the API returns an error status", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusTooManyRequests, "rate limited"))
		})

		It("returns the error", func() {
			Expect(err).To(MatchError(ContainSubstring("status 429")))
		})
	})

	When("the model answers with prose", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, ollamaChatResponse{
				Message: ollamaMessage{Role: "assistant", Content: "I cannot read this bill."},
				Done:    true,
			}))
		})

		It("returns the error", func() {
			Expect(err).To(MatchError(ContainSubstring("parsing classification")))
		})
	})

	When("the context deadline passes", func() {
		var cancel context.CancelFunc

		BeforeEach(func() {
			server.AppendHandlers(func(w http.ResponseWriter, r *http.Request) {
				time.Sleep(200 * time.Millisecond)
				w.WriteHeader(http.StatusOK)
			})
			ctx, cancel = context.WithTimeout(context.Background(), 20*time.Millisecond)
		})

		AfterEach(func() {
			cancel()
		})

		It("returns the error", func() {
			Expect(err).To(MatchError(ContainSubstring("calling ollama API")))
		})
	})
})
