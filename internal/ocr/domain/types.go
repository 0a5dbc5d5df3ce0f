package domain

import (
	"strings"
	"time"
)

// OCRStatus is the outcome state reported for a single document
type OCRStatus string

const (
	StatusSuccess OCRStatus = "success"
	StatusError   OCRStatus = "error"
)

// AllowedMIMETypes lists the content types accepted for recognition
var AllowedMIMETypes = map[string]bool{
	"image/png":       true,
	"image/jpeg":      true,
	"image/jpg":       true,
	"image/tiff":      true,
	"application/pdf": true,
}

// extensionByMIME maps accepted content types to a canonical file extension
var extensionByMIME = map[string]string{
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
	"image/jpg":       ".jpg",
	"image/tiff":      ".tiff",
	"application/pdf": ".pdf",
}

// NormalizeMIME strips parameters and whitespace from a content type header
// value ("image/png; charset=binary" becomes "image/png")
func NormalizeMIME(contentType string) string {
	base, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(base))
}

// MIMEAllowed reports whether a declared content type is accepted
func MIMEAllowed(contentType string) bool {
	return AllowedMIMETypes[NormalizeMIME(contentType)]
}

// ExtensionForMIME resolves a content type to its canonical file extension.
// The second return is false for types outside the allow-list.
func ExtensionForMIME(contentType string) (string, bool) {
	ext, ok := extensionByMIME[NormalizeMIME(contentType)]
	return ext, ok
}

// DocumentRequest is one unit of work: a remote URL or uploaded bytes.
// Exactly one of the two source forms is populated.
type DocumentRequest struct {
	SourceURL   string
	Filename    string
	ContentType string
	Bytes       []byte
}

// IsUpload reports whether the request carries in-memory bytes
func (r DocumentRequest) IsUpload() bool {
	return r.SourceURL == ""
}

// Reference returns the identifier echoed back in results for this request
func (r DocumentRequest) Reference() string {
	if r.SourceURL != "" {
		return r.SourceURL
	}
	return r.Filename
}

// ValidatedPayload carries document bytes that passed size and type checks,
// together with the file extension handed to the recognition engine
type ValidatedPayload struct {
	Bytes       []byte
	Extension   string
	ContentType string
}

// OCRResult is the outcome of processing one document
type OCRResult struct {
	URL       string    `json:"url"`
	Status    OCRStatus `json:"status"`
	Text      *string   `json:"text,omitempty"`
	Error     *string   `json:"error,omitempty"`
	ErrorType *string   `json:"error_type,omitempty"`
	Pages     *int      `json:"pages,omitempty"`
}

// SuccessResult builds a success-shaped result for a document reference
func SuccessResult(ref, text string, pages int) OCRResult {
	return OCRResult{
		URL:    ref,
		Status: StatusSuccess,
		Text:   &text,
		Pages:  &pages,
	}
}

// ErrorResult builds an error-shaped result from a classified failure
func ErrorResult(ref string, err error) OCRResult {
	message := err.Error()
	category := string(CategoryOf(err))
	return OCRResult{
		URL:       ref,
		Status:    StatusError,
		Error:     &message,
		ErrorType: &category,
	}
}

// BatchResponse is the ordered outcome of a batch request. Result order
// matches input order.
type BatchResponse struct {
	Results        []OCRResult `json:"results"`
	TotalProcessed int         `json:"total_processed"`
	Successful     int         `json:"successful"`
	Failed         int         `json:"failed"`
}

// NewBatchResponse derives the counters from the results slice
func NewBatchResponse(results []OCRResult) BatchResponse {
	successful := 0
	for _, r := range results {
		if r.Status == StatusSuccess {
			successful++
		}
	}
	return BatchResponse{
		Results:        results,
		TotalProcessed: len(results),
		Successful:     successful,
		Failed:         len(results) - successful,
	}
}

// UploadResponse is the outcome reported for a directly uploaded document
type UploadResponse struct {
	Status    OCRStatus `json:"status"`
	Text      *string   `json:"text,omitempty"`
	Error     *string   `json:"error,omitempty"`
	ErrorType *string   `json:"error_type,omitempty"`
	Pages     *int      `json:"pages,omitempty"`
	Filename  string    `json:"filename"`
}

// UploadSuccess builds a success-shaped upload response
func UploadSuccess(filename, text string, pages int) UploadResponse {
	return UploadResponse{
		Status:   StatusSuccess,
		Text:     &text,
		Pages:    &pages,
		Filename: filename,
	}
}

// UploadError builds an error-shaped upload response
func UploadError(filename, message string, category Category) UploadResponse {
	cat := string(category)
	return UploadResponse{
		Status:    StatusError,
		Error:     &message,
		ErrorType: &cat,
		Filename:  filename,
	}
}

// AuditRecord is the persisted outcome of one processed document
type AuditRecord struct {
	ID            string    `json:"id" db:"id"`
	RequestID     string    `json:"request_id" db:"request_id"`
	Document      string    `json:"document" db:"document"`
	Status        string    `json:"status" db:"status"`
	ErrorCategory *string   `json:"error_category,omitempty" db:"error_category"`
	Pages         int       `json:"pages" db:"pages"`
	SizeBytes     int64     `json:"size_bytes" db:"size_bytes"`
	Engine        string    `json:"engine" db:"engine"`
	DurationMS    int64     `json:"duration_ms" db:"duration_ms"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}
