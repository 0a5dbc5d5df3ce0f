package events

import (
	"context"
	"time"

	"github.com/docuflow/ocr-service/internal/ocr/domain"
	"github.com/docuflow/ocr-service/pkg/httputil"
	"github.com/docuflow/ocr-service/pkg/logger"
	"github.com/docuflow/ocr-service/pkg/messaging"
)

// Sink is the transport events are handed to. *messaging.Publisher satisfies it.
type Sink interface {
	Publish(ctx context.Context, eventType string, data interface{}) error
}

// Publisher publishes document processing events. A nil *Publisher is a no-op
// so callers never branch on whether messaging is configured. Publish failures
// are logged and never surface to the request path.
type Publisher struct {
	sink   Sink
	logger *logger.Logger
}

// NewPublisher creates a publisher on the configured events exchange
func NewPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*Publisher, error) {
	sink, err := messaging.NewPublisher(rmq, rmq.Exchange(), "ocr-service", log)
	if err != nil {
		return nil, err
	}

	return &Publisher{sink: sink, logger: log.WithComponent("events")}, nil
}

// NewPublisherWithSink creates a publisher over a custom sink
func NewPublisherWithSink(sink Sink, log *logger.Logger) *Publisher {
	return &Publisher{sink: sink, logger: log.WithComponent("events")}
}

// DocumentProcessed publishes a document.processed event
func (p *Publisher) DocumentProcessed(ctx context.Context, req domain.DocumentRequest, pages int, sizeBytes int64, took time.Duration) {
	if p == nil || p.sink == nil {
		return
	}

	requestID := httputil.GetRequestID(ctx)
	ctx = messaging.WithCorrelationID(ctx, requestID)

	data := messaging.DocumentProcessedEvent{
		RequestID:  requestID,
		Status:     string(domain.StatusSuccess),
		Pages:      pages,
		SizeBytes:  sizeBytes,
		DurationMS: took.Milliseconds(),
	}
	if req.IsUpload() {
		data.Filename = req.Reference()
	} else {
		data.URL = req.SourceURL
	}

	if err := p.sink.Publish(ctx, messaging.EventDocumentProcessed, data); err != nil {
		p.logger.Error().Err(err).Str("document", req.Reference()).Msg("failed to publish document processed event")
	}
}

// DocumentFailed publishes a document.failed event
func (p *Publisher) DocumentFailed(ctx context.Context, req domain.DocumentRequest, docErr error) {
	if p == nil || p.sink == nil {
		return
	}

	requestID := httputil.GetRequestID(ctx)
	ctx = messaging.WithCorrelationID(ctx, requestID)

	data := messaging.DocumentFailedEvent{
		RequestID:     requestID,
		ErrorCategory: string(domain.CategoryOf(docErr)),
		Error:         docErr.Error(),
	}
	if req.IsUpload() {
		data.Filename = req.Reference()
	} else {
		data.URL = req.SourceURL
	}

	if err := p.sink.Publish(ctx, messaging.EventDocumentFailed, data); err != nil {
		p.logger.Error().Err(err).Str("document", req.Reference()).Msg("failed to publish document failed event")
	}
}

// BatchCompleted publishes a batch.completed event
func (p *Publisher) BatchCompleted(ctx context.Context, resp domain.BatchResponse, took time.Duration) {
	if p == nil || p.sink == nil {
		return
	}

	requestID := httputil.GetRequestID(ctx)
	ctx = messaging.WithCorrelationID(ctx, requestID)

	data := messaging.BatchCompletedEvent{
		RequestID:  requestID,
		Total:      resp.TotalProcessed,
		Successful: resp.Successful,
		Failed:     resp.Failed,
		DurationMS: took.Milliseconds(),
	}

	if err := p.sink.Publish(ctx, messaging.EventBatchCompleted, data); err != nil {
		p.logger.Error().Err(err).Int("total", resp.TotalProcessed).Msg("failed to publish batch completed event")
	}
}
