package messaging

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types
const (
	// Document events
	EventDocumentProcessed = "document.processed"
	EventDocumentFailed    = "document.failed"

	// Batch events
	EventBatchCompleted = "batch.completed"
)

// Exchange names
const (
	ExchangeOCREvents = "ocr.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            GenerateEventID(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// Document Events

// DocumentProcessedEvent is published when a document finishes recognition
type DocumentProcessedEvent struct {
	RequestID  string `json:"request_id"`
	URL        string `json:"url,omitempty"`
	Filename   string `json:"filename,omitempty"`
	Status     string `json:"status"`
	Pages      int    `json:"pages"`
	SizeBytes  int64  `json:"size_bytes"`
	DurationMS int64  `json:"duration_ms"`
}

// DocumentFailedEvent is published when a document cannot be processed
type DocumentFailedEvent struct {
	RequestID     string `json:"request_id"`
	URL           string `json:"url,omitempty"`
	Filename      string `json:"filename,omitempty"`
	ErrorCategory string `json:"error_category"`
	Error         string `json:"error"`
}

// Batch Events

// BatchCompletedEvent is published when a batch request finishes
type BatchCompletedEvent struct {
	RequestID  string `json:"request_id"`
	Total      int    `json:"total"`
	Successful int    `json:"successful"`
	Failed     int    `json:"failed"`
	DurationMS int64  `json:"duration_ms"`
}

// GenerateEventID generates a unique event ID
func GenerateEventID() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), time.Now().Nanosecond()%10000)
}
