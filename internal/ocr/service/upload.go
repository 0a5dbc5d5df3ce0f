package service

import (
	"context"
	"errors"
	"time"

	"github.com/docuflow/ocr-service/internal/ocr/domain"
)

// DefaultUploadName stands in for uploads whose multipart part carries no
// filename.
const DefaultUploadName = "uploaded_file"

// ProcessUpload runs the per-document pipeline for one in-memory document.
// Document failures are part of the response, not an error: the caller always
// gets a well-formed outcome for the file it sent.
func (s *Service) ProcessUpload(ctx context.Context, req domain.DocumentRequest) domain.UploadResponse {
	if req.Filename == "" {
		req.Filename = DefaultUploadName
	}

	started := time.Now()
	text, pages, size, err := s.processDocument(ctx, req)
	took := time.Since(started)

	if err != nil {
		var emptyErr *domain.EmptyResultError
		if errors.As(err, &emptyErr) {
			err = domain.NewEmptyResultError("No text extracted from document")
		}

		s.finishDocument(ctx, req, pages, size, took, err)
		s.logger.Warn().Err(err).Str("document", req.Filename).Msg("upload processing failed")
		return domain.UploadError(req.Filename, err.Error(), domain.CategoryOf(err))
	}

	s.finishDocument(ctx, req, pages, size, took, nil)
	s.logger.Info().
		Str("document", req.Filename).
		Int("pages", pages).
		Int64("duration_ms", took.Milliseconds()).
		Msg("upload processed")
	return domain.UploadSuccess(req.Filename, text, pages)
}
