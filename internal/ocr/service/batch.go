package service

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/docuflow/ocr-service/internal/ocr/domain"
	"github.com/docuflow/ocr-service/pkg/errors"
	"github.com/docuflow/ocr-service/pkg/httputil"
)

// BatchRequest represents a batch recognition request
type BatchRequest struct {
	URLs []string `json:"urls" validate:"required,min=1,dive,required,url"`
}

// ProcessBatch validates the batch shape, then processes every URL
// independently and concurrently. Item failures are captured in that item's
// result slot; only a request that fails validation as a whole returns an
// error, and then no document work has started.
func (s *Service) ProcessBatch(ctx context.Context, req *BatchRequest) (domain.BatchResponse, error) {
	if err := s.validateBatch(req); err != nil {
		return domain.BatchResponse{}, err
	}

	started := time.Now()
	results := make([]domain.OCRResult, len(req.URLs))

	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(s.maxConcurrency)

	for i, rawURL := range req.URLs {
		i, rawURL := i, rawURL // per-iteration copies; required under go 1.21 loop semantics
		eg.Go(func() error {
			results[i] = s.processBatchItem(egctx, rawURL)
			// Item failures live in the result slot, never in the group.
			return nil
		})
	}
	_ = eg.Wait()

	resp := domain.NewBatchResponse(results)
	took := time.Since(started)

	s.logger.Info().
		Int("total", resp.TotalProcessed).
		Int("successful", resp.Successful).
		Int("failed", resp.Failed).
		Int64("duration_ms", took.Milliseconds()).
		Msg("batch completed")
	s.publisher.BatchCompleted(ctx, resp, took)

	return resp, nil
}

// validateBatch applies the all-or-nothing request gate: shape via struct
// tags, count against the configured maximum, and an allowed scheme on every
// URL.
func (s *Service) validateBatch(req *BatchRequest) error {
	if err := httputil.Validate(req); err != nil {
		return err
	}

	if len(req.URLs) > s.maxBatch {
		return errors.Validation(map[string]string{
			"urls": fmt.Sprintf("must contain at most %d items", s.maxBatch),
		})
	}

	details := make(map[string]string)
	for i, raw := range req.URLs {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			details[fmt.Sprintf("urls[%d]", i)] = "must use the http or https scheme"
		}
	}
	if len(details) > 0 {
		return errors.Validation(details)
	}

	return nil
}

func (s *Service) processBatchItem(ctx context.Context, rawURL string) domain.OCRResult {
	req := domain.DocumentRequest{SourceURL: rawURL}

	// Items that have not started when the batch dies resolve to error
	// results without touching scratch space or the gateway queue.
	if err := ctx.Err(); err != nil {
		return domain.ErrorResult(rawURL, domain.NewProcessingError("batch cancelled", err))
	}

	started := time.Now()
	text, pages, size, err := s.processDocument(ctx, req)
	took := time.Since(started)

	s.finishDocument(ctx, req, pages, size, took, err)

	if err != nil {
		s.logger.Warn().Err(err).Str("document", rawURL).Msg("document processing failed")
		return domain.ErrorResult(rawURL, err)
	}

	s.logger.Info().
		Str("document", rawURL).
		Int("pages", pages).
		Int64("duration_ms", took.Milliseconds()).
		Msg("document processed")
	return domain.SuccessResult(rawURL, text, pages)
}
