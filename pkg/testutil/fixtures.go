package testutil

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PNGSample returns a minimal valid 1x1 PNG image
func PNGSample() []byte {
	return []byte{
		0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A,
		0x00, 0x00, 0x00, 0x0D, 0x49, 0x48, 0x44, 0x52,
		0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
		0x08, 0x06, 0x00, 0x00, 0x00, 0x1F, 0x15, 0xC4,
		0x89, 0x00, 0x00, 0x00, 0x0D, 0x49, 0x44, 0x41,
		0x54, 0x78, 0x9C, 0x62, 0x00, 0x01, 0x00, 0x00,
		0x05, 0x00, 0x01, 0x0D, 0x0A, 0x2D, 0xB4, 0x00,
		0x00, 0x00, 0x00, 0x49, 0x45, 0x4E, 0x44, 0xAE,
		0x42, 0x60, 0x82,
	}
}

// JPEGSample returns bytes carrying a JPEG/JFIF header
func JPEGSample() []byte {
	return []byte{
		0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 0x4A, 0x46,
		0x49, 0x46, 0x00, 0x01, 0x01, 0x00, 0x00, 0x01,
		0x00, 0x01, 0x00, 0x00, 0xFF, 0xD9,
	}
}

// TIFFSample returns bytes carrying a little-endian TIFF header
func TIFFSample() []byte {
	return []byte{
		0x49, 0x49, 0x2A, 0x00, 0x08, 0x00, 0x00, 0x00,
		0x00, 0x00,
	}
}

// PDFSample returns bytes carrying a PDF header and trailer.
// Not a structurally valid document: useful for sniffing tests and for
// exercising parse-failure paths.
func PDFSample() []byte {
	return []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\n%%EOF\n")
}

// DocumentFixture represents a test document payload
type DocumentFixture struct {
	Filename    string
	ContentType string
	Data        []byte
}

// AuditRecordFixture represents a test audit record
type AuditRecordFixture struct {
	ID            string
	RequestID     string
	Document      string
	Status        string
	ErrorCategory *string
	Pages         int
	SizeBytes     int64
	Engine        string
	DurationMS    int64
	CreatedAt     time.Time
}

// FixtureFactory creates test fixtures with sensible defaults
type FixtureFactory struct {
	sequence int
}

// NewFixtureFactory creates a new fixture factory
func NewFixtureFactory() *FixtureFactory {
	return &FixtureFactory{sequence: 0}
}

// nextSeq returns the next sequence number for unique values
func (f *FixtureFactory) nextSeq() int {
	f.sequence++
	return f.sequence
}

// PNGDocument creates a PNG document fixture
func (f *FixtureFactory) PNGDocument() DocumentFixture {
	return DocumentFixture{
		Filename:    fmt.Sprintf("scan-%04d.png", f.nextSeq()),
		ContentType: "image/png",
		Data:        PNGSample(),
	}
}

// JPEGDocument creates a JPEG document fixture
func (f *FixtureFactory) JPEGDocument() DocumentFixture {
	return DocumentFixture{
		Filename:    fmt.Sprintf("scan-%04d.jpg", f.nextSeq()),
		ContentType: "image/jpeg",
		Data:        JPEGSample(),
	}
}

// TIFFDocument creates a TIFF document fixture
func (f *FixtureFactory) TIFFDocument() DocumentFixture {
	return DocumentFixture{
		Filename:    fmt.Sprintf("scan-%04d.tiff", f.nextSeq()),
		ContentType: "image/tiff",
		Data:        TIFFSample(),
	}
}

// PDFDocument creates a PDF document fixture
func (f *FixtureFactory) PDFDocument() DocumentFixture {
	return DocumentFixture{
		Filename:    fmt.Sprintf("invoice-%04d.pdf", f.nextSeq()),
		ContentType: "application/pdf",
		Data:        PDFSample(),
	}
}

// AuditRecord creates an audit record fixture with defaults
func (f *FixtureFactory) AuditRecord(opts ...func(*AuditRecordFixture)) AuditRecordFixture {
	seq := f.nextSeq()

	record := AuditRecordFixture{
		ID:         uuid.New().String(),
		RequestID:  uuid.New().String(),
		Document:   fmt.Sprintf("https://docs.example.com/doc-%04d.pdf", seq),
		Status:     "success",
		Pages:      1,
		SizeBytes:  2048,
		Engine:     "tesseract",
		DurationMS: 1200,
		CreatedAt:  time.Now(),
	}

	for _, opt := range opts {
		opt(&record)
	}

	return record
}

// WithDocument sets the audit record document reference
func WithDocument(doc string) func(*AuditRecordFixture) {
	return func(r *AuditRecordFixture) {
		r.Document = doc
	}
}

// WithStatus sets the audit record status
func WithStatus(status string) func(*AuditRecordFixture) {
	return func(r *AuditRecordFixture) {
		r.Status = status
	}
}

// WithErrorCategory sets the audit record error category
func WithErrorCategory(category string) func(*AuditRecordFixture) {
	return func(r *AuditRecordFixture) {
		r.ErrorCategory = &category
	}
}

// WithPages sets the audit record page count
func WithPages(pages int) func(*AuditRecordFixture) {
	return func(r *AuditRecordFixture) {
		r.Pages = pages
	}
}

// WithEngine sets the audit record engine name
func WithEngine(engine string) func(*AuditRecordFixture) {
	return func(r *AuditRecordFixture) {
		r.Engine = engine
	}
}
