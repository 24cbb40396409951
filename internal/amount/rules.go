package amount

import (
	"context"
	"regexp"
	"strings"
)

const (
	windowBefore = 40
	windowAfter  = 24

	unmatchedConfidence = 0.4
)

// rule maps keywords near an amount to a category
type rule struct {
	category     Category
	pattern      *regexp.Regexp
	needsPercent *regexp.Regexp
	confidence   float64
}

func keywords(words ...string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(words, "|") + `)\b`)
}

// rules are evaluated in priority order; the first match wins
var rules = []rule{
	{category: CategoryTotalBill, pattern: keywords(`grand\s+total`, `total`, `net\s+payable`, `amount\s+payable`, `bill\s+amount`), confidence: 0.85},
	{category: CategoryPaid, pattern: keywords(`paid`, `payment\s+received`, `payment`, `received`), confidence: 0.85},
	{category: CategoryDue, pattern: keywords(`due`, `balance`, `outstanding`, `pending`), confidence: 0.8},
	{category: CategoryDiscount, pattern: keywords(`discount`, `disc`), confidence: 0.8},
	{category: CategoryDiscount, pattern: keywords(`off`), needsPercent: regexp.MustCompile(`%`), confidence: 0.7},
	{category: CategoryConsultationFee, pattern: keywords(`consult\w*`, `doctor\s+fee`, `doctor`, `visit`), confidence: 0.75},
	{category: CategoryMedicineCost, pattern: keywords(`medicines?`, `pharmacy`, `drugs?`), confidence: 0.75},
	{category: CategoryTestCost, pattern: keywords(`tests?`, `lab`, `x-ray`, `scan`), confidence: 0.75},
}

// RuleClassifier assigns categories from keywords around each amount.
// It has no external dependency and never fails.
type RuleClassifier struct{}

// NewRuleClassifier creates a RuleClassifier
func NewRuleClassifier() *RuleClassifier {
	return &RuleClassifier{}
}

// Name identifies the classifier in reports
func (r *RuleClassifier) Name() string {
	return "rules"
}

// Classify returns one classification per amount, in input order
func (r *RuleClassifier) Classify(_ context.Context, text string, amounts []NormalizedAmount) ([]ClassifiedAmount, error) {
	return r.ClassifyAll(text, amounts), nil
}

// ClassifyAll is Classify without the error return
func (r *RuleClassifier) ClassifyAll(text string, amounts []NormalizedAmount) []ClassifiedAmount {
	out := make([]ClassifiedAmount, 0, len(amounts))
	for _, a := range amounts {
		category, confidence := CategoryOther, unmatchedConfidence
		if a.SourceOffset >= 0 && a.SourceOffset < len(text) {
			before, after := contextWindow(text, a.SourceOffset)
			ru, ok := matchRule(before, before+after)
			if !ok {
				ru, ok = matchRule(after, before+after)
			}
			if ok {
				category, confidence = ru.category, ru.confidence
			}
		}
		out = append(out, ClassifiedAmount{
			Amount:                   a,
			Category:                 category,
			ClassificationConfidence: confidence,
		})
	}
	return out
}

// matchRule returns the first rule whose keywords appear in part. Percent markers
// are looked up in the whole window.
func matchRule(part, window string) (rule, bool) {
	for _, ru := range rules {
		if !ru.pattern.MatchString(part) {
			continue
		}
		if ru.needsPercent != nil && !ru.needsPercent.MatchString(window) {
			continue
		}
		return ru, true
	}
	return rule{}, false
}

func isNumberByte(c byte) bool {
	if _, misread := misreads[c]; misread {
		return true
	}
	return isDigit(c) || c == ',' || c == '.'
}

func isFieldBreak(c byte) bool {
	return c == '\n' || c == '\r' || c == '|' || c == ';'
}

// contextWindow returns the text before and after the number at offset, stopping at
// field breaks and at neighbouring numbers so that each amount only sees its own label.
// Percent figures do not stop the window, so "10% off" stays visible.
// The label before a number takes precedence over the one after it.
func contextWindow(text string, offset int) (string, string) {
	end := offset
	for end < len(text) && isNumberByte(text[end]) {
		end++
	}

	start := offset
	for start > 0 && offset-start < windowBefore {
		c := text[start-1]
		if isFieldBreak(c) {
			break
		}
		if c == '%' {
			start--
			for start > 0 && (isDigit(text[start-1]) || text[start-1] == '.') {
				start--
			}
			continue
		}
		if isDigit(c) {
			break
		}
		start--
	}

	stop := end
	for stop < len(text) && stop-end < windowAfter {
		c := text[stop]
		if isFieldBreak(c) {
			break
		}
		if isDigit(c) {
			j := stop
			for j < len(text) && (isDigit(text[j]) || text[j] == '.') {
				j++
			}
			if j < len(text) && text[j] == '%' {
				stop = j + 1
				continue
			}
			break
		}
		stop++
	}

	return text[start:offset], text[end:stop]
}
