package extraction

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/zombor/bill-amounts/internal/amount"
)

// maxUploadSize bounds request bodies; high-resolution phone photos run large
const maxUploadSize = int64(50 << 20)

type errorResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

// writeJSON writes v as a JSON response with CORS headers set
func writeJSON(w http.ResponseWriter, code int, v any) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func writeJSONError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, errorResponse{Status: "error", Error: message})
}

// writeError maps an error onto its HTTP status
func writeError(w http.ResponseWriter, err error) {
	var (
		inputErr   *amount.InputError
		backendErr *amount.BackendError
	)
	switch {
	case errors.As(err, &inputErr):
		writeJSONError(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &backendErr):
		writeJSONError(w, err.Error(), http.StatusBadGateway)
	case errors.Is(err, ErrHistoryDisabled), errors.Is(err, ErrNotFound):
		writeJSONError(w, err.Error(), http.StatusNotFound)
	default:
		slog.Error("Request failed", "error", err)
		writeJSONError(w, "Internal server error", http.StatusInternalServerError)
	}
}

// decodeJSON reads a bounded JSON request body into v
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &amount.InputError{Reason: fmt.Sprintf("invalid request body: %v", err)}
	}
	return nil
}

// documentRequest is a bill submitted as JSON: text, or a base64 encoded image
type documentRequest struct {
	Text        *string `json:"text"`
	Image       string  `json:"image"`
	ContentType string  `json:"content_type"`
	Filename    string  `json:"filename"`
}

func (d documentRequest) input() (amount.Input, error) {
	if d.Text == nil && d.Image == "" {
		return amount.Input{}, &amount.InputError{Reason: "either text or image is required"}
	}

	in := amount.Input{ContentType: strings.ToLower(strings.TrimSpace(d.ContentType))}
	if d.Text != nil {
		in.Text = *d.Text
	}
	if d.Image != "" {
		data, err := decodeImage(d.Image)
		if err != nil {
			return amount.Input{}, &amount.InputError{Reason: fmt.Sprintf("image is not valid base64: %v", err)}
		}
		in.Image = data
		if in.ContentType == "" {
			in.ContentType = http.DetectContentType(data)
		}
	}
	return in, nil
}

// decodeImage decodes plain base64 or a base64 data URL
func decodeImage(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			s = s[i+1:]
		}
	}
	return base64.StdEncoding.DecodeString(s)
}

// tokenList accepts tokens as objects, strings or bare numbers
type tokenList []amount.RawToken

func (t *tokenList) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return err
	}

	tokens := make([]amount.RawToken, 0, len(raws))
	for i, raw := range raws {
		token := amount.RawToken{Start: amount.NoOffset, End: amount.NoOffset}
		switch {
		case len(raw) > 0 && raw[0] == '{':
			if err := json.Unmarshal(raw, &token); err != nil {
				return fmt.Errorf("token %d: %w", i, err)
			}
		case len(raw) > 0 && raw[0] == '"':
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return fmt.Errorf("token %d: %w", i, err)
			}
			token.Raw = strings.TrimSpace(s)
		default:
			token.Raw = string(raw)
		}
		token.Percent = token.Percent || strings.HasSuffix(token.Raw, "%")
		tokens = append(tokens, token)
	}

	*t = tokens
	return nil
}

// valueList accepts amounts as objects with a value field, numbers or numeric strings
type valueList []amount.Value

func (v *valueList) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return err
	}

	values := make([]amount.Value, 0, len(raws))
	for i, raw := range raws {
		if len(raw) > 0 && raw[0] == '{' {
			var obj struct {
				Value *amount.Value `json:"value"`
			}
			if err := json.Unmarshal(raw, &obj); err != nil {
				return fmt.Errorf("amount %d: %w", i, err)
			}
			if obj.Value == nil {
				return fmt.Errorf("amount %d has no value", i)
			}
			values = append(values, *obj.Value)
			continue
		}

		var value amount.Value
		if err := json.Unmarshal(raw, &value); err != nil {
			return fmt.Errorf("amount %d: %w", i, err)
		}
		values = append(values, value)
	}

	*v = values
	return nil
}

func parseCurrency(s string) (amount.Currency, error) {
	c, ok := amount.ParseCurrency(s)
	if !ok {
		return "", &amount.InputError{Reason: fmt.Sprintf("unknown currency %q", s)}
	}
	return c, nil
}

func parseMethod(s string) (amount.Method, error) {
	switch amount.Method(strings.ToLower(strings.TrimSpace(s))) {
	case "", amount.MethodText:
		return amount.MethodText, nil
	case amount.MethodOCR:
		return amount.MethodOCR, nil
	}
	return "", &amount.InputError{Reason: fmt.Sprintf("unknown method %q", s)}
}

// uploadContentType determines the content type of an uploaded file
func uploadContentType(filename, header string) string {
	contentType := strings.ToLower(strings.TrimSpace(header))
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	}
	return "application/octet-stream"
}

// readUpload reads a multipart bill upload: a "file" field, a "text" field, or both
func readUpload(w http.ResponseWriter, r *http.Request) (amount.Input, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return amount.Input{}, "", &amount.InputError{Reason: "file is too large. Maximum size is 50MB"}
		}
		return amount.Input{}, "", &amount.InputError{Reason: "error parsing form"}
	}

	in := amount.Input{Text: r.FormValue("text")}
	f, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		if in.Text == "" {
			return amount.Input{}, "", &amount.InputError{Reason: "either a file or text is required"}
		}
		return in, "", nil
	}
	if err != nil {
		return amount.Input{}, "", &amount.InputError{Reason: fmt.Sprintf("reading upload: %v", err)}
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return amount.Input{}, "", fmt.Errorf("reading file data: %w", err)
	}
	in.Image = data
	in.ContentType = uploadContentType(header.Filename, header.Header.Get("Content-Type"))
	return in, header.Filename, nil
}

type healthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Primary   string `json:"primary"`
	Secondary string `json:"secondary"`
	History   bool   `json:"history"`
}

// handleHealth reports liveness and the configured backends
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	primary, secondary := s.service.Backends()
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "healthy",
		Service:   "medical-amount-detection",
		Primary:   primary,
		Secondary: secondary,
		History:   s.service.HistoryEnabled(),
	})
}

// handleExtract runs the extraction stage
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req documentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	in, err := req.input()
	if err != nil {
		writeError(w, err)
		return
	}

	ext, err := s.service.Extract(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ext)
}

// handleNormalize runs the normalization stage
func (s *Server) handleNormalize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tokens       tokenList `json:"raw_tokens"`
		CurrencyHint string    `json:"currency_hint"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	currency, err := parseCurrency(req.CurrencyHint)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, s.service.Normalize(req.Tokens, currency))
}

// handleClassify runs the classification stage
func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text     string    `json:"text"`
		Amounts  valueList `json:"normalized_amounts"`
		Currency string    `json:"currency"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	currency, err := parseCurrency(req.Currency)
	if err != nil {
		writeError(w, err)
		return
	}

	classified, err := s.service.Classify(r.Context(), req.Text, req.Amounts, currency)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, classified)
}

// handleFinalize runs the agreement and provenance stage
func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text            string                    `json:"text"`
		Method          string                    `json:"method"`
		Currency        string                    `json:"currency"`
		Primary         []amount.ClassifiedAmount `json:"primary"`
		Secondary       []amount.ClassifiedAmount `json:"secondary"`
		PrimarySource   string                    `json:"primary_source"`
		SecondarySource string                    `json:"secondary_source"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	method, err := parseMethod(req.Method)
	if err != nil {
		writeError(w, err)
		return
	}
	currency, err := parseCurrency(req.Currency)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := s.service.Finalize(req.Text, method, currency, &amount.Classifications{
		Primary:         req.Primary,
		Secondary:       req.Secondary,
		PrimarySource:   req.PrimarySource,
		SecondarySource: req.SecondarySource,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// completeResponse is a pipeline result with its history ID, when recorded
type completeResponse struct {
	ID string `json:"id,omitempty"`
	*amount.Result
}

// handleComplete runs every stage on a JSON document or a multipart upload
func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	var (
		in       amount.Input
		filename string
		err      error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		in, filename, err = readUpload(w, r)
	} else {
		var req documentRequest
		if err = decodeJSON(w, r, &req); err == nil {
			in, err = req.input()
			filename = req.Filename
		}
	}
	if err != nil {
		writeError(w, err)
		return
	}

	record, err := s.service.Process(r.Context(), in, filename)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, completeResponse{ID: record.ID, Result: record.Result})
}

// handleListRecords returns every recorded run
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	records, err := s.service.ListRecords()
	if err != nil {
		writeError(w, err)
		return
	}

	// Ensure we always return an array, not nil
	if records == nil {
		records = []*Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

// handleGetRecord returns a single recorded run
func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	record, err := s.service.GetRecord(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// handleGetRecordFile returns the uploaded image of a recorded run
func (s *Server) handleGetRecordFile(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetRecordFile(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	setCORSHeaders(w)
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleDeleteRecord deletes a recorded run
func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteRecord(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}

	setCORSHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}
