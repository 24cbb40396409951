package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zombor/bill-amounts/internal/amount"
)

// ErrHistoryDisabled is returned by history operations when no database is configured
var ErrHistoryDisabled = errors.New("extraction history is disabled")

// IDGenerator generates unique IDs for extraction records
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service exposes the amount pipeline stage by stage and keeps an optional
// history of complete runs
type Service struct {
	pipeline    *amount.Pipeline
	db          DB
	storage     Storage
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service. A nil db disables history; a nil storage
// keeps history without the uploaded images.
func NewService(pipeline *amount.Pipeline, db DB, storage Storage) *Service {
	return NewServiceWithDeps(pipeline, db, storage, &uuidGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(pipeline *amount.Pipeline, db DB, storage Storage, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		pipeline:    pipeline,
		db:          db,
		storage:     storage,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// HistoryEnabled reports whether complete runs are recorded
func (s *Service) HistoryEnabled() bool {
	return s.db != nil
}

// Backends reports the primary and secondary classifier names
func (s *Service) Backends() (string, string) {
	return s.pipeline.Backends()
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	repeatedSpaces      = regexp.MustCompile(`\s+`)
)

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))

	base = unsafeFilenameChars.ReplaceAllString(base, "")
	base = repeatedSpaces.ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	maxLen := 50
	if len(base) > maxLen {
		base = base[:maxLen]
	}
	if base == "" {
		base = "bill"
	}
	if unsafeFilenameChars.MatchString(strings.TrimPrefix(ext, ".")) {
		ext = ""
	}

	return base + ext
}

// Extract runs the extraction stage
func (s *Service) Extract(ctx context.Context, in amount.Input) (*amount.Extraction, error) {
	return s.pipeline.Extract(ctx, in)
}

// Normalize runs the normalization stage on tokens produced by Extract or supplied by a caller
func (s *Service) Normalize(tokens []amount.RawToken, currency amount.Currency) *amount.Normalization {
	return amount.Normalize(tokens, currency)
}

// Classify runs the classification stage. The values are located in text again so
// that the rule classifier sees the words around each one.
func (s *Service) Classify(ctx context.Context, text string, values []amount.Value, currency amount.Currency) (*amount.Classifications, error) {
	amounts, err := amount.Locate(text, values, currency)
	if err != nil {
		return nil, err
	}
	return s.pipeline.Classify(ctx, text, amounts), nil
}

// Finalize runs the agreement and provenance stage on caller supplied classifications
func (s *Service) Finalize(text string, method amount.Method, currency amount.Currency, c *amount.Classifications) (*amount.Result, error) {
	if c == nil {
		return nil, &amount.InputError{Reason: "classifications are required"}
	}
	primary, err := checkClassified(c.Primary)
	if err != nil {
		return nil, err
	}
	secondary, err := checkClassified(c.Secondary)
	if err != nil {
		return nil, err
	}

	res, err := s.pipeline.Finalize(text, method, currency, &amount.Classifications{
		Primary:         primary,
		Secondary:       secondary,
		PrimarySource:   c.PrimarySource,
		SecondarySource: c.SecondarySource,
	})
	if err != nil {
		return nil, &amount.InputError{Reason: err.Error()}
	}
	return res, nil
}

// checkClassified validates client-supplied classifications and rounds their values to cents
func checkClassified(set []amount.ClassifiedAmount) ([]amount.ClassifiedAmount, error) {
	out := make([]amount.ClassifiedAmount, len(set))
	for i, ca := range set {
		if !ca.Category.Valid() {
			return nil, &amount.InputError{Reason: fmt.Sprintf("unknown category %q", ca.Category)}
		}
		if ca.ClassificationConfidence < 0 || ca.ClassificationConfidence > 1 {
			return nil, &amount.InputError{Reason: fmt.Sprintf("confidence %v out of range", ca.ClassificationConfidence)}
		}
		ca.Amount.Value = amount.NewValue(ca.Amount.Value.Decimal)
		if ca.Amount.Value.IsNegative() {
			return nil, &amount.InputError{Reason: fmt.Sprintf("negative amount %s", ca.Amount.Value.Key())}
		}
		out[i] = ca
	}
	return out, nil
}

// Process runs the complete pipeline and, with history enabled, records the run
// together with the uploaded image
func (s *Service) Process(ctx context.Context, in amount.Input, filename string) (*Record, error) {
	res, err := s.pipeline.Process(ctx, in)
	if err != nil {
		slog.Error("Failed to process document",
			"filename", filename,
			"content_type", in.ContentType,
			"file_size", len(in.Image),
			"error", err,
		)
		return nil, err
	}

	record := &Record{
		CreatedAt: s.timeSource.Now(),
		Input:     InputText,
		Result:    res,
	}
	if len(in.Image) > 0 {
		record.Input = InputImage
	}
	if s.db == nil {
		return record, nil
	}
	record.ID = s.idGenerator.Generate()

	if record.Input == InputImage && s.storage != nil {
		savedPath, err := s.storage.Save(fmt.Sprintf("%s_%s", record.ID, sanitizeFilename(filename)), in.Image)
		if err != nil {
			return nil, fmt.Errorf("saving file: %w", err)
		}
		record.Filename = savedPath
		record.ContentType = in.ContentType
	}

	if err := s.db.SaveRecord(record); err != nil {
		if record.Filename != "" {
			if delErr := s.storage.Delete(record.Filename); delErr != nil {
				slog.Warn("Failed to clean up file after database error", "filename", record.Filename, "error", delErr)
			}
		}
		return nil, fmt.Errorf("saving record to database: %w", err)
	}
	return record, nil
}

// GetRecord retrieves a recorded run by ID
func (s *Service) GetRecord(id string) (*Record, error) {
	if s.db == nil {
		return nil, ErrHistoryDisabled
	}
	record, err := s.db.GetRecord(id)
	if err != nil {
		return nil, fmt.Errorf("getting record: %w", err)
	}
	return record, nil
}

// ListRecords returns all recorded runs
func (s *Service) ListRecords() ([]*Record, error) {
	if s.db == nil {
		return nil, ErrHistoryDisabled
	}
	records, err := s.db.ListRecords()
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	return records, nil
}

// DeleteRecord removes a recorded run and its file
func (s *Service) DeleteRecord(id string) error {
	if s.db == nil {
		return ErrHistoryDisabled
	}
	record, err := s.db.GetRecord(id)
	if err != nil {
		return fmt.Errorf("getting record for deletion: %w", err)
	}

	if record.Filename != "" && s.storage != nil {
		if err := s.storage.Delete(record.Filename); err != nil {
			// the record still goes
			slog.Warn("Failed to delete file", "filename", record.Filename, "error", err)
		}
	}

	if err := s.db.DeleteRecord(id); err != nil {
		return fmt.Errorf("deleting record from database: %w", err)
	}
	return nil
}

// GetRecordFile retrieves the uploaded image of a recorded run
func (s *Service) GetRecordFile(id string) ([]byte, string, error) {
	record, err := s.GetRecord(id)
	if err != nil {
		return nil, "", err
	}
	if record.Filename == "" || s.storage == nil {
		return nil, "", fmt.Errorf("%w: no file stored for %s", ErrNotFound, id)
	}

	data, err := s.storage.Get(record.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("getting record file: %w", err)
	}
	return data, record.ContentType, nil
}
