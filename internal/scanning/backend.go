package scanning

import "context"

// ClassifyRequest is the payload sent to an AI classification backend
type ClassifyRequest struct {
	Text    string    `json:"text"`
	Amounts []float64 `json:"amounts"`
}

// Classification is a backend's label for one amount
type Classification struct {
	Value      float64 `json:"value"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// ClassifyResponse is what a backend returns for one request
type ClassifyResponse struct {
	Classifications []Classification `json:"classifications"`
}

// Backend defines the interface for AI classification of bill amounts
type Backend interface {
	// Name identifies the backend in logs and reports
	Name() string
	// Classify labels each amount found in text with a category and confidence
	Classify(ctx context.Context, req ClassifyRequest) (*ClassifyResponse, error)
	// Close closes the backend and releases resources
	Close() error
}

// OCRResult is the text read from a bill image
type OCRResult struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// TextExtractor reads text out of bill images
type TextExtractor interface {
	ExtractText(ctx context.Context, imageData []byte, contentType string) (*OCRResult, error)
}
