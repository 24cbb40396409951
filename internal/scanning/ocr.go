package scanning

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// OCR confidence bounds, as a fraction of 1
const (
	minOCRConfidence = 0.5
	maxOCRConfidence = 0.95
)

// Tesseract implements the TextExtractor interface using Tesseract OCR
type Tesseract struct {
	dataPath string
	language string
}

// NewTesseract creates a Tesseract extractor. An empty dataPath uses TESSDATA_PREFIX.
func NewTesseract(dataPath string, language string) *Tesseract {
	if language == "" {
		language = "eng"
	}
	return &Tesseract{
		dataPath: dataPath,
		language: language,
	}
}

type ocrOutcome struct {
	result *OCRResult
	err    error
}

// ExtractText reads the text of a bill image. Tesseract itself cannot be interrupted,
// so a cancelled context abandons the running recognition.
func (t *Tesseract) ExtractText(ctx context.Context, imageData []byte, contentType string) (*OCRResult, error) {
	if len(imageData) == 0 {
		return nil, &UnsupportedImageError{ContentType: contentType, Err: fmt.Errorf("empty image")}
	}

	pngData, err := prepareForOCR(imageData, contentType)
	if err != nil {
		return nil, err
	}

	done := make(chan ocrOutcome, 1)
	go func() {
		res, err := t.recognize(pngData)
		done <- ocrOutcome{result: res, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("ocr: %w", ctx.Err())
	case out := <-done:
		return out.result, out.err
	}
}

func (t *Tesseract) recognize(pngData []byte) (*OCRResult, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if t.dataPath != "" {
		client.SetTessdataPrefix(t.dataPath)
	}
	if err := client.SetLanguage(t.language); err != nil {
		return nil, fmt.Errorf("setting language: %w", err)
	}
	if err := client.SetImageFromBytes(pngData); err != nil {
		return nil, fmt.Errorf("setting image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return nil, fmt.Errorf("extracting text: %w", err)
	}

	return &OCRResult{
		Text:       text,
		Confidence: wordConfidence(client, text),
	}, nil
}

// wordConfidence averages Tesseract word confidences into [minOCRConfidence, maxOCRConfidence]
func wordConfidence(client *gosseract.Client, text string) float64 {
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return lengthConfidence(text)
	}

	var total float64
	for _, box := range boxes {
		total += box.Confidence
	}
	return clampOCRConfidence(total / float64(len(boxes)) / 100)
}

// lengthConfidence estimates confidence from the amount of text read
func lengthConfidence(text string) float64 {
	return clampOCRConfidence(float64(len(strings.TrimSpace(text))) / 100)
}

func clampOCRConfidence(c float64) float64 {
	if c < minOCRConfidence {
		return minOCRConfidence
	}
	if c > maxOCRConfidence {
		return maxOCRConfidence
	}
	return c
}
