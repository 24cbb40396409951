package amount

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/zombor/bill-amounts/internal/scanning"
)

// DefaultBackendTimeout bounds a single AI backend call
const DefaultBackendTimeout = 30 * time.Second

// Classifier produces one classification per amount, in input order
type Classifier interface {
	Name() string
	Classify(ctx context.Context, text string, amounts []NormalizedAmount) ([]ClassifiedAmount, error)
}

// BackendClassifier adapts an AI backend to the Classifier interface,
// treating any schema violation in its answer as a failure.
type BackendClassifier struct {
	backend scanning.Backend
}

// NewBackendClassifier wraps backend
func NewBackendClassifier(backend scanning.Backend) *BackendClassifier {
	return &BackendClassifier{backend: backend}
}

// Name returns the backend name
func (b *BackendClassifier) Name() string {
	return b.backend.Name()
}

// Classify sends the text and amount values to the backend and aligns its answer to amounts
func (b *BackendClassifier) Classify(ctx context.Context, text string, amounts []NormalizedAmount) ([]ClassifiedAmount, error) {
	req := scanning.ClassifyRequest{
		Text:    text,
		Amounts: make([]float64, len(amounts)),
	}
	for i, a := range amounts {
		req.Amounts[i] = a.Value.Float()
	}

	resp, err := b.backend.Classify(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("empty response")
	}

	byValue := make(map[string]scanning.Classification, len(resp.Classifications))
	for _, c := range resp.Classifications {
		if math.IsNaN(c.Value) || math.IsInf(c.Value, 0) {
			return nil, fmt.Errorf("non-finite value in response")
		}
		if !Category(c.Category).Valid() {
			return nil, fmt.Errorf("unknown category %q for %v", c.Category, c.Value)
		}
		if c.Confidence < 0 || c.Confidence > 1 {
			return nil, fmt.Errorf("confidence %v out of range for %v", c.Confidence, c.Value)
		}
		key := ValueFromFloat(c.Value).Key()
		if _, dup := byValue[key]; !dup {
			byValue[key] = c
		}
	}

	out := make([]ClassifiedAmount, 0, len(amounts))
	for _, a := range amounts {
		c, ok := byValue[a.Value.Key()]
		if !ok {
			return nil, fmt.Errorf("no classification for amount %s", a.Value.Key())
		}
		out = append(out, ClassifiedAmount{
			Amount:                   a,
			Category:                 Category(c.Category),
			ClassificationConfidence: c.Confidence,
		})
	}
	return out, nil
}

// EnsembleConfig configures the two classification paths.
// A nil backend is treated as unavailable and replaced by the rule classifier.
type EnsembleConfig struct {
	Primary   Classifier
	Secondary Classifier
	Timeout   time.Duration
}

// Classifications holds the two independent classification sets for one document
type Classifications struct {
	Primary         []ClassifiedAmount `json:"primary"`
	Secondary       []ClassifiedAmount `json:"secondary"`
	PrimarySource   string             `json:"primary_source"`
	SecondarySource string             `json:"secondary_source"`
}

// Ensemble runs the primary and secondary classifiers, falling back to rules for either one that fails
type Ensemble struct {
	primary   Classifier
	secondary Classifier
	rules     *RuleClassifier
	timeout   time.Duration
}

// NewEnsemble creates an Ensemble from cfg
func NewEnsemble(cfg EnsembleConfig) *Ensemble {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultBackendTimeout
	}
	return &Ensemble{
		primary:   cfg.Primary,
		secondary: cfg.Secondary,
		rules:     NewRuleClassifier(),
		timeout:   timeout,
	}
}

// Backends reports the configured backend names, "rules" where none is set
func (e *Ensemble) Backends() (string, string) {
	name := func(c Classifier) string {
		if c == nil {
			return e.rules.Name()
		}
		return c.Name()
	}
	return name(e.primary), name(e.secondary)
}

// Classify runs both backends concurrently. It never fails: a backend that errors,
// times out or answers malformed output is replaced by the rule classifier.
func (e *Ensemble) Classify(ctx context.Context, text string, amounts []NormalizedAmount) *Classifications {
	result := &Classifications{}
	if len(amounts) == 0 {
		primary, secondary := e.Backends()
		result.Primary, result.Secondary = []ClassifiedAmount{}, []ClassifiedAmount{}
		result.PrimarySource, result.SecondarySource = primary, secondary
		return result
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		result.Primary, result.PrimarySource = e.classifyWith(ctx, "primary", e.primary, text, amounts)
	}()
	go func() {
		defer wg.Done()
		result.Secondary, result.SecondarySource = e.classifyWith(ctx, "secondary", e.secondary, text, amounts)
	}()
	wg.Wait()

	return result
}

func (e *Ensemble) classifyWith(ctx context.Context, role string, c Classifier, text string, amounts []NormalizedAmount) ([]ClassifiedAmount, string) {
	if c == nil {
		return e.rules.ClassifyAll(text, amounts), e.rules.Name()
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	out, err := c.Classify(callCtx, text, amounts)
	if err == nil && len(out) != len(amounts) {
		err = fmt.Errorf("got %d classifications for %d amounts", len(out), len(amounts))
	}
	if err != nil {
		slog.Warn("Classification backend unavailable, using rules",
			"role", role,
			"backend", c.Name(),
			"error", err,
		)
		return e.rules.ClassifyAll(text, amounts), e.rules.Name()
	}
	return out, c.Name()
}
