package amount

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/zombor/bill-amounts/internal/scanning"
)

// DefaultOCRTimeout bounds a single OCR call
const DefaultOCRTimeout = 60 * time.Second

// Input is a document submitted for amount detection: text, or an image to OCR
type Input struct {
	Text        string
	Image       []byte
	ContentType string
}

// Result is the reported outcome of a pipeline run
type Result struct {
	Status                  Status           `json:"status"`
	Reason                  string           `json:"reason,omitempty"`
	Currency                Currency         `json:"currency"`
	Method                  Method           `json:"method"`
	Amounts                 []FinalAmount    `json:"amounts"`
	Agreement               *AgreementReport `json:"agreement,omitempty"`
	PrimarySource           string           `json:"primary_source,omitempty"`
	SecondarySource         string           `json:"secondary_source,omitempty"`
	ExtractionConfidence    float64          `json:"extraction_confidence"`
	NormalizationConfidence float64          `json:"normalization_confidence"`
	Confidence              float64          `json:"confidence_score"`
}

func noAmounts(currency Currency, method Method, reason string) *Result {
	if currency == "" {
		currency = CurrencyUnknown
	}
	return &Result{
		Status:   StatusNoAmountsFound,
		Reason:   reason,
		Currency: currency,
		Method:   method,
		Amounts:  []FinalAmount{},
	}
}

// Pipeline runs extraction, normalization, classification and finalization.
// It holds no per-request state and is safe for concurrent use.
type Pipeline struct {
	ocr        scanning.TextExtractor
	ensemble   *Ensemble
	ocrTimeout time.Duration
}

// NewPipeline creates a Pipeline. ocr may be nil, in which case image input is rejected
// as an unavailable backend.
func NewPipeline(ocr scanning.TextExtractor, ensemble *Ensemble, ocrTimeout time.Duration) *Pipeline {
	if ensemble == nil {
		ensemble = NewEnsemble(EnsembleConfig{})
	}
	if ocrTimeout <= 0 {
		ocrTimeout = DefaultOCRTimeout
	}
	return &Pipeline{
		ocr:        ocr,
		ensemble:   ensemble,
		ocrTimeout: ocrTimeout,
	}
}

// Backends reports the primary and secondary classifier names
func (p *Pipeline) Backends() (string, string) {
	return p.ensemble.Backends()
}

// Extract obtains the document text, through OCR for images, and tokenizes it
func (p *Pipeline) Extract(ctx context.Context, in Input) (*Extraction, error) {
	if len(in.Image) == 0 {
		return Tokenize(in.Text)
	}

	if p.ocr == nil {
		return nil, &BackendError{Backend: "ocr", Err: errors.New("no OCR engine configured")}
	}

	ocrCtx, cancel := context.WithTimeout(ctx, p.ocrTimeout)
	defer cancel()

	ocr, err := p.ocr.ExtractText(ocrCtx, in.Image, in.ContentType)
	if err != nil {
		var unsupported *scanning.UnsupportedImageError
		if errors.As(err, &unsupported) {
			return nil, &InputError{Reason: unsupported.Error()}
		}
		return nil, &BackendError{Backend: "ocr", Err: err}
	}

	ext, err := Tokenize(ocr.Text)
	if err != nil {
		return nil, err
	}
	ext.Method = MethodOCR
	if len(ext.Tokens) > 0 {
		ext.Confidence = ocr.Confidence
	}
	return ext, nil
}

// Normalize converts the extracted tokens into amounts
func (p *Pipeline) Normalize(ext *Extraction) *Normalization {
	return Normalize(ext.Tokens, ext.CurrencyHint)
}

// Classify produces the primary and secondary classification sets
func (p *Pipeline) Classify(ctx context.Context, text string, amounts []NormalizedAmount) *Classifications {
	return p.ensemble.Classify(ctx, text, amounts)
}

// Finalize scores agreement between the classification sets and attaches provenance
func (p *Pipeline) Finalize(text string, method Method, currency Currency, c *Classifications) (*Result, error) {
	if c == nil || len(c.Primary) == 0 {
		return noAmounts(currency, method, "no numeric values detected"), nil
	}

	report, finals, err := Score(c.Primary, c.Secondary)
	if err != nil {
		return nil, fmt.Errorf("scoring agreement: %w", err)
	}

	if currency == "" || currency == CurrencyUnknown {
		currency = finals[0].Currency
	}
	if currency == "" {
		currency = CurrencyUnknown
	}
	if method == "" {
		method = MethodText
	}

	return &Result{
		Status:          StatusOK,
		Currency:        currency,
		Method:          method,
		Amounts:         Attribute(finals, text, method),
		Agreement:       report,
		PrimarySource:   c.PrimarySource,
		SecondarySource: c.SecondarySource,
		Confidence:      report.FinalConfidence,
	}, nil
}

// Process runs every stage in sequence
func (p *Pipeline) Process(ctx context.Context, in Input) (*Result, error) {
	ext, err := p.Extract(ctx, in)
	if err != nil {
		return nil, err
	}
	if len(ext.Tokens) == 0 {
		return noAmounts(ext.CurrencyHint, ext.Method, ext.Reason), nil
	}

	norm := p.Normalize(ext)
	if len(norm.Amounts) == 0 {
		reason := "no numeric values detected"
		if len(norm.Percentages) > 0 {
			reason = "only percentages found"
		}
		res := noAmounts(ext.CurrencyHint, ext.Method, reason)
		res.ExtractionConfidence = ext.Confidence
		return res, nil
	}

	classified := p.Classify(ctx, ext.Text, norm.Amounts)

	res, err := p.Finalize(ext.Text, ext.Method, ext.CurrencyHint, classified)
	if err != nil {
		return nil, err
	}
	res.ExtractionConfidence = ext.Confidence
	res.NormalizationConfidence = norm.Confidence

	slog.Info("Processed document",
		"status", res.Status,
		"method", res.Method,
		"amounts", len(res.Amounts),
		"agreement", res.Agreement.AgreementScore,
		"primary", res.PrimarySource,
		"secondary", res.SecondarySource,
	)
	return res, nil
}

// Locate turns bare values into amounts by finding them in text. Values that cannot
// be found keep NoOffset; later stages then fall back to document-level context.
func Locate(text string, values []Value, currency Currency) ([]NormalizedAmount, error) {
	ext, err := Tokenize(text)
	if err != nil {
		return nil, err
	}
	if currency == "" || currency == CurrencyUnknown {
		currency = ext.CurrencyHint
	}

	found := make(map[string]NormalizedAmount)
	for _, a := range Normalize(ext.Tokens, currency).Amounts {
		found[a.Value.Key()] = a
	}

	amounts := make([]NormalizedAmount, 0, len(values))
	seen := make(map[string]bool)
	for _, v := range values {
		v = NewValue(v.Decimal)
		if v.IsNegative() || seen[v.Key()] {
			continue
		}
		seen[v.Key()] = true
		if a, ok := found[v.Key()]; ok {
			amounts = append(amounts, a)
			continue
		}
		amounts = append(amounts, NormalizedAmount{
			Value:                   v,
			Currency:                currency,
			SourceOffset:            locateLiteral(text, v),
			NormalizationConfidence: cleanTokenConfidence,
		})
	}
	return amounts, nil
}

// locateLiteral finds the plain digits of v in text as a standalone number
func locateLiteral(text string, v Value) int {
	literal := v.Decimal.String()
	from := 0
	for {
		i := strings.Index(text[from:], literal)
		if i < 0 {
			return NoOffset
		}
		i += from
		end := i + len(literal)
		if (i == 0 || !isNumberByte(text[i-1])) && (end >= len(text) || !isDigit(text[end])) {
			return i
		}
		from = i + 1
	}
}
