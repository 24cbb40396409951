package amount

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Currency is the currency a bill is expressed in
type Currency string

const (
	CurrencyINR     Currency = "INR"
	CurrencyUSD     Currency = "USD"
	CurrencyEUR     Currency = "EUR"
	CurrencyUnknown Currency = "unknown"
)

// ParseCurrency reads a currency code case-insensitively. Empty means unknown.
func ParseCurrency(s string) (Currency, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "INR":
		return CurrencyINR, true
	case "USD":
		return CurrencyUSD, true
	case "EUR":
		return CurrencyEUR, true
	case "", "UNKNOWN":
		return CurrencyUnknown, true
	}
	return "", false
}

// Category is the financial role of an amount on a bill
type Category string

const (
	CategoryTotalBill       Category = "total_bill"
	CategoryPaid            Category = "paid"
	CategoryDue             Category = "due"
	CategoryDiscount        Category = "discount"
	CategoryConsultationFee Category = "consultation_fee"
	CategoryMedicineCost    Category = "medicine_cost"
	CategoryTestCost        Category = "test_cost"
	CategoryOther           Category = "other"
)

// Categories lists every category in rule priority order
var Categories = []Category{
	CategoryTotalBill,
	CategoryPaid,
	CategoryDue,
	CategoryDiscount,
	CategoryConsultationFee,
	CategoryMedicineCost,
	CategoryTestCost,
	CategoryOther,
}

// Valid reports whether c is one of the known categories
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Method is how the text an amount came from was obtained
type Method string

const (
	MethodText Method = "text"
	MethodOCR  Method = "ocr"
)

// Status is the outcome of a pipeline run
type Status string

const (
	StatusOK             Status = "ok"
	StatusNoAmountsFound Status = "no_amounts_found"
	StatusError          Status = "error"
)

// NoOffset marks an amount whose position in the source text is unknown
const NoOffset = -1

// Value is a non-negative money value rounded to two fractional digits.
// It is encoded in JSON as a bare number.
type Value struct {
	decimal.Decimal
}

// NewValue rounds d to cents
func NewValue(d decimal.Decimal) Value {
	return Value{d.Round(2)}
}

// ValueFromFloat converts a backend float into a Value
func ValueFromFloat(f float64) Value {
	return NewValue(decimal.NewFromFloat(f))
}

// MarshalJSON encodes the value as a JSON number
func (v Value) MarshalJSON() ([]byte, error) {
	return []byte(v.Decimal.String()), nil
}

// Key is a stable string form used for deduplication and alignment
func (v Value) Key() string {
	return v.Decimal.StringFixed(2)
}

// Float returns the value as a float64 for the backend wire format
func (v Value) Float() float64 {
	return v.Decimal.InexactFloat64()
}

// RawToken is a numeric-looking lexeme found in the source text
type RawToken struct {
	Raw       string `json:"raw"`
	Text      string `json:"text"` // after OCR character correction
	Start     int    `json:"start"`
	End       int    `json:"end"`
	Percent   bool   `json:"percent"`
	Corrected bool   `json:"corrected"`
}

// NormalizedAmount is a clean numeric value found in the text
type NormalizedAmount struct {
	Value                   Value    `json:"value"`
	Currency                Currency `json:"currency"`
	SourceOffset            int      `json:"source_offset"`
	NormalizationConfidence float64  `json:"normalization_confidence"`
}

// Percentage is a percent-suffixed token kept apart from currency amounts
type Percentage struct {
	Value        Value `json:"value"`
	SourceOffset int   `json:"source_offset"`
}

// ClassifiedAmount is a NormalizedAmount with a category assigned by one classifier
type ClassifiedAmount struct {
	Amount                   NormalizedAmount `json:"amount"`
	Category                 Category         `json:"category"`
	ClassificationConfidence float64          `json:"classification_confidence"`
}

// FinalAmount is the reported result for one amount
type FinalAmount struct {
	Category     Category `json:"type"`
	Value        Value    `json:"value"`
	Currency     Currency `json:"currency"`
	Source       string   `json:"source"`
	Method       Method   `json:"method"`
	Confidence   float64  `json:"confidence"`
	SourceOffset int      `json:"-"`
}

// Agreement is one amount both classifiers labelled the same way
type Agreement struct {
	Value    Value    `json:"value"`
	Category Category `json:"category"`
}

// Disagreement is one amount the classifiers labelled differently
type Disagreement struct {
	Value               Value    `json:"value"`
	PrimaryCategory     Category `json:"primary_category"`
	SecondaryCategory   Category `json:"secondary_category"`
	PrimaryConfidence   float64  `json:"primary_confidence"`
	SecondaryConfidence float64  `json:"secondary_confidence"`
}

// AgreementReport summarizes how well the two classifiers agreed on a batch
type AgreementReport struct {
	AgreementScore  float64        `json:"agreement_score"`
	MatchedAmounts  int            `json:"matched_amounts"`
	TotalAmounts    int            `json:"total_amounts"`
	Matches         []Agreement    `json:"matches"`
	Mismatches      []Disagreement `json:"mismatches"`
	FinalConfidence float64        `json:"final_confidence"`
}
