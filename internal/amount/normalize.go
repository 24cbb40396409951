package amount

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Per-amount normalization confidences
const (
	cleanTokenConfidence     = 0.95
	correctedTokenConfidence = 0.8
	splitTokenConfidence     = 0.75
)

// Batch confidence penalties, applied per share of tokens affected
const (
	correctionPenalty = 0.3
	failurePenalty    = 0.5
)

// Normalization is the normalizer output for one document
type Normalization struct {
	Amounts     []NormalizedAmount `json:"normalized_amounts"`
	Percentages []Percentage       `json:"percentages"`
	Confidence  float64            `json:"normalization_confidence"`
}

// segment is one candidate number carved out of a token
type segment struct {
	text   string
	offset int
}

// Normalize turns raw tokens into deduplicated amounts, keeping first-appearance order.
// Percent tokens are tracked separately and never become amounts.
func Normalize(tokens []RawToken, currency Currency) *Normalization {
	if currency == "" {
		currency = CurrencyUnknown
	}

	norm := &Normalization{
		Amounts:     []NormalizedAmount{},
		Percentages: []Percentage{},
	}
	seen := make(map[string]bool)

	var considered, corrected, failed int
	for _, token := range tokens {
		text := token.Text
		if text == "" {
			text, token.Corrected = correctMisreads(token.Raw)
		}

		if token.Percent || strings.HasSuffix(text, "%") {
			if v, ok := parseSegment(cleanNumber(strings.TrimSuffix(text, "%"))); ok {
				norm.Percentages = append(norm.Percentages, Percentage{Value: v, SourceOffset: token.Start})
			}
			continue
		}

		cleaned := cleanNumber(text)
		if !strings.ContainsAny(cleaned, "0123456789") {
			continue
		}
		considered++

		noisy := token.Corrected || len(cleaned) != len(text)
		if noisy {
			corrected++
		}

		segments := splitAmbiguous(cleaned)
		confidence := cleanTokenConfidence
		switch {
		case len(segments) > 1:
			confidence = splitTokenConfidence
		case noisy:
			confidence = correctedTokenConfidence
		}

		parsedAny := false
		for _, seg := range segments {
			v, ok := parseSegment(seg.text)
			if !ok {
				continue
			}
			parsedAny = true
			if v.IsZero() || seen[v.Key()] {
				continue
			}
			seen[v.Key()] = true

			offset := NoOffset
			if token.Start >= 0 {
				offset = token.Start + seg.offset
			}
			norm.Amounts = append(norm.Amounts, NormalizedAmount{
				Value:                   v,
				Currency:                currency,
				SourceOffset:            offset,
				NormalizationConfidence: confidence,
			})
		}
		if !parsedAny {
			failed++
		}
	}

	norm.Confidence = batchConfidence(len(norm.Amounts), considered, corrected, failed)
	return norm
}

func batchConfidence(amounts, considered, corrected, failed int) float64 {
	if amounts == 0 || considered == 0 {
		return 0
	}
	c := cleanTokenConfidence -
		correctionPenalty*float64(corrected)/float64(considered) -
		failurePenalty*float64(failed)/float64(considered)
	return clamp01(c)
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// cleanNumber drops everything but digits and separators, repairing misreads first
func cleanNumber(s string) string {
	s, _ = correctMisreads(s)
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isDigit(c) || c == ',' || c == '.' {
			b.WriteByte(c)
		}
	}
	return strings.Trim(b.String(), ",.")
}

// splitAmbiguous resolves comma groups: a comma followed by exactly three digits is a
// thousands separator, anything else separates two numbers.
func splitAmbiguous(s string) []segment {
	parts := strings.Split(s, ",")
	segments := make([]segment, 0, len(parts))

	cur := segment{text: parts[0], offset: 0}
	pos := len(parts[0]) + 1
	for _, p := range parts[1:] {
		if isThousandsGroup(p) && !strings.Contains(cur.text, ".") && cur.text != "" {
			cur.text += p
		} else {
			if cur.text != "" {
				segments = append(segments, cur)
			}
			cur = segment{text: p, offset: pos}
		}
		pos += len(p) + 1
	}
	if cur.text != "" {
		segments = append(segments, cur)
	}
	return segments
}

func isThousandsGroup(p string) bool {
	n := 0
	for n < len(p) && isDigit(p[n]) {
		n++
	}
	return n == 3 && (len(p) == 3 || p[3] == '.')
}

// parseSegment parses a single number with '.' as the decimal point
func parseSegment(s string) (Value, bool) {
	if s == "" || strings.Count(s, ".") > 1 {
		return Value{}, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return Value{}, false
	}
	return NewValue(d), true
}
