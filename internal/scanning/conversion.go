package scanning

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// minOCRHeight is the height small scans are upscaled to before OCR
const minOCRHeight = 1200

// UnsupportedImageError reports image data that cannot be decoded
type UnsupportedImageError struct {
	ContentType string
	Err         error
}

func (e *UnsupportedImageError) Error() string {
	return fmt.Sprintf("unsupported image (%s). Supported formats: JPEG, PNG, GIF, HEIC, HEIF, PDF: %v", e.ContentType, e.Err)
}

func (e *UnsupportedImageError) Unwrap() error {
	return e.Err
}

// pdfFirstPage renders the first page of a PDF bill
func pdfFirstPage(pdfData []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	if doc.NumPage() == 0 {
		return nil, fmt.Errorf("PDF has no pages")
	}
	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return img, nil
}

// isHEICFormat checks for the ftyp box of a HEIC/HEIF file
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heif", "mif1", "msf1":
		return true
	}
	return false
}

// isHEICMimeType checks if the MIME type indicates HEIC/HEIF format
func isHEICMimeType(mimeType string) bool {
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}

func isPDF(data []byte, mimeType string) bool {
	return mimeType == "application/pdf" || bytes.HasPrefix(data, []byte("%PDF-"))
}

// decodeDocument decodes a bill image or PDF into a single image
func decodeDocument(data []byte, contentType string) (image.Image, error) {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))

	var (
		img image.Image
		err error
	)
	switch {
	case isPDF(data, mimeType):
		img, err = pdfFirstPage(data)
	case isHEICFormat(data) || isHEICMimeType(mimeType):
		img, err = heic.Decode(bytes.NewReader(data))
	default:
		img, _, err = image.Decode(bytes.NewReader(data))
	}
	if err != nil {
		return nil, &UnsupportedImageError{ContentType: mimeType, Err: err}
	}
	return img, nil
}

// prepareForOCR converts a bill to a grayscale PNG, upscaling small scans
func prepareForOCR(data []byte, contentType string) ([]byte, error) {
	img, err := decodeDocument(data, contentType)
	if err != nil {
		return nil, err
	}

	gray := imaging.Grayscale(img)
	if gray.Bounds().Dy() < minOCRHeight {
		gray = imaging.Resize(gray, 0, minOCRHeight, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, gray, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}
