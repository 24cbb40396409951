package amount

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	textExtractionConfidence   = 0.95
	sparseExtractionConfidence = 0.7
	minUsefulTextLength        = 5
	sparseWordCount            = 3
)

// misreads maps characters OCR commonly produces in place of digits
var misreads = map[byte]byte{
	'l': '1',
	'I': '1',
	'O': '0',
	'o': '0',
}

// currencyPattern matches currency codes as whole words or currency symbols
var currencyPattern = regexp.MustCompile(`(?i)(?:^|[^a-z])(inr|rs|usd|eur)(?:[^a-z]|$)|([₹$€])`)

var currencyByMarker = map[string]Currency{
	"inr": CurrencyINR,
	"rs":  CurrencyINR,
	"₹":   CurrencyINR,
	"usd": CurrencyUSD,
	"$":   CurrencyUSD,
	"eur": CurrencyEUR,
	"€":   CurrencyEUR,
}

// Extraction is the tokenizer output for one document
type Extraction struct {
	Text         string     `json:"text"`
	Method       Method     `json:"method"`
	Tokens       []RawToken `json:"raw_tokens"`
	CurrencyHint Currency   `json:"currency_hint"`
	Confidence   float64    `json:"confidence"`
	Reason       string     `json:"reason,omitempty"`
}

// Tokenize scans text for numeric candidates, repairing OCR misreads next to digits.
// It fails only when text is not valid UTF-8.
func Tokenize(text string) (*Extraction, error) {
	if !utf8.ValidString(text) {
		return nil, &InputError{Reason: "text is not valid UTF-8"}
	}

	ext := &Extraction{
		Text:         text,
		Method:       MethodText,
		Tokens:       []RawToken{},
		CurrencyHint: CurrencyUnknown,
	}

	if len(strings.TrimSpace(text)) < minUsefulTextLength {
		ext.Reason = "document too noisy"
		return ext, nil
	}

	ext.Tokens = scanTokens(text)
	if len(ext.Tokens) == 0 {
		ext.Reason = "no numeric values detected"
		return ext, nil
	}

	ext.CurrencyHint = detectCurrency(text, ext.Tokens)
	ext.Confidence = textExtractionConfidence
	if len(strings.Fields(text)) < sparseWordCount {
		ext.Confidence = sparseExtractionConfidence
	}
	return ext, nil
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// runeBefore returns the rune ending right before byte i, or a space at the start of text
func runeBefore(text string, i int) rune {
	if i <= 0 {
		return ' '
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return r
}

// runeAt returns the rune starting at byte i, or a space past the end of text
func runeAt(text string, i int) rune {
	if i >= len(text) {
		return ' '
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return r
}

// numericMask marks each byte of text that belongs to a number once misreads are repaired.
// Misreads are repaired across a whole run of digits and misread characters, and only
// when the run holds a digit and no other letter touches either end of it.
func numericMask(text string) []bool {
	mask := make([]bool, len(text))
	for i := 0; i < len(text); {
		if !isRunByte(text, i) {
			i++
			continue
		}

		start := i
		hasDigit := false
		for i < len(text) && isRunByte(text, i) {
			hasDigit = hasDigit || isDigit(text[i])
			i++
		}
		if !hasDigit {
			continue
		}

		repair := !isPlainLetter(runeBefore(text, start)) && !isPlainLetter(runeAt(text, i))
		for j := start; j < i; j++ {
			if isDigit(text[j]) {
				mask[j] = true
				continue
			}
			if _, ok := misreads[text[j]]; ok && repair {
				mask[j] = true
			}
		}
	}
	return mask
}

func isMisread(c byte) bool {
	_, ok := misreads[c]
	return ok
}

// isRunByte reports whether byte i can sit inside a number: a digit, a misread, or a
// separator with number bytes on both sides
func isRunByte(text string, i int) bool {
	c := text[i]
	if isDigit(c) || isMisread(c) {
		return true
	}
	if (c == ',' || c == '.') && i > 0 && i+1 < len(text) {
		prev, next := text[i-1], text[i+1]
		return (isDigit(prev) || isMisread(prev)) && (isDigit(next) || isMisread(next))
	}
	return false
}

// isPlainLetter reports letters that are not misread candidates
func isPlainLetter(r rune) bool {
	if r < utf8.RuneSelf && isMisread(byte(r)) {
		return false
	}
	return unicode.IsLetter(r)
}

func scanTokens(text string) []RawToken {
	mask := numericMask(text)
	tokens := make([]RawToken, 0)

	i := 0
	for i < len(text) {
		if !mask[i] {
			i++
			continue
		}

		start := i
		for i < len(text) {
			if mask[i] {
				i++
				continue
			}
			// a separator only belongs to the number when digits follow it
			if (text[i] == ',' || text[i] == '.') && i+1 < len(text) && mask[i+1] {
				i++
				continue
			}
			break
		}
		end := i

		percent := false
		if i < len(text) && text[i] == '%' {
			percent = true
			i++
		}

		// digits glued inside a word, like "T0tal", are not amounts
		if unicode.IsLetter(runeBefore(text, start)) && unicode.IsLetter(runeAt(text, end)) {
			continue
		}

		raw := text[start:end]
		corrected, changed := correctMisreads(raw)
		if !strings.ContainsAny(corrected, "0123456789") {
			continue
		}

		token := RawToken{
			Raw:       text[start:i],
			Text:      corrected,
			Start:     start,
			End:       i,
			Percent:   percent,
			Corrected: changed,
		}
		if percent {
			token.Text += "%"
		}
		tokens = append(tokens, token)
	}
	return tokens
}

// correctMisreads substitutes digits for misread characters byte for byte
func correctMisreads(raw string) (string, bool) {
	var b strings.Builder
	b.Grow(len(raw))
	changed := false
	for i := 0; i < len(raw); i++ {
		if d, ok := misreads[raw[i]]; ok {
			b.WriteByte(d)
			changed = true
			continue
		}
		b.WriteByte(raw[i])
	}
	return b.String(), changed
}

// detectCurrency picks the currency marker closest to the first amount token
func detectCurrency(text string, tokens []RawToken) Currency {
	anchor := -1
	for _, t := range tokens {
		if !t.Percent {
			anchor = t.Start
			break
		}
	}
	if anchor < 0 {
		return CurrencyUnknown
	}

	best := CurrencyUnknown
	bestDistance := len(text) + 1
	for _, m := range currencyPattern.FindAllStringSubmatchIndex(text, -1) {
		var start, end int
		switch {
		case m[2] >= 0:
			start, end = m[2], m[3]
		case m[4] >= 0:
			start, end = m[4], m[5]
		default:
			continue
		}

		distance := anchor - end
		if start >= anchor {
			distance = start - anchor
		}
		if distance < 0 {
			distance = -distance
		}
		if distance < bestDistance {
			bestDistance = distance
			best = currencyByMarker[strings.ToLower(text[start:end])]
		}
	}
	return best
}
