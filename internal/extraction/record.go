package extraction

import (
	"time"

	"github.com/zombor/bill-amounts/internal/amount"
)

// InputKind says how a document was submitted
type InputKind string

const (
	InputText  InputKind = "text"
	InputImage InputKind = "image"
)

// Record is one stored run of the complete pipeline
type Record struct {
	ID          string         `json:"id"`
	CreatedAt   time.Time      `json:"created_at"`
	Input       InputKind      `json:"input"`
	Filename    string         `json:"filename,omitempty"`     // stored bill image, if any
	ContentType string         `json:"content_type,omitempty"` // of the stored image
	Result      *amount.Result `json:"result"`
}
