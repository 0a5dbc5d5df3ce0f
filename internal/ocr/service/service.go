// Package service orchestrates document recognition: intake, scratch space
// lifecycle, serialized engine access, text extraction, and outcome reporting.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/docuflow/ocr-service/internal/ocr/domain"
	"github.com/docuflow/ocr-service/internal/ocr/engine"
	"github.com/docuflow/ocr-service/internal/ocr/events"
	"github.com/docuflow/ocr-service/internal/ocr/extract"
	"github.com/docuflow/ocr-service/internal/ocr/fetch"
	"github.com/docuflow/ocr-service/internal/ocr/gateway"
	"github.com/docuflow/ocr-service/internal/ocr/scratch"
	"github.com/docuflow/ocr-service/pkg/config"
	"github.com/docuflow/ocr-service/pkg/httputil"
	"github.com/docuflow/ocr-service/pkg/logger"
)

// AuditStore records processing outcomes. *repository.AuditRepository
// satisfies it; a nil store disables auditing.
type AuditStore interface {
	Record(ctx context.Context, rec *domain.AuditRecord) error
	Recent(ctx context.Context, limit int) ([]*domain.AuditRecord, error)
	Ping(ctx context.Context) error
}

// Service handles OCR business logic
type Service struct {
	fetcher   *fetch.Fetcher
	gateway   *gateway.Gateway
	extractor *extract.Extractor
	engine    engine.Engine
	audit     AuditStore
	publisher *events.Publisher
	logger    *logger.Logger

	maxBatch       int
	maxConcurrency int
	languages      []string
	dpi            int
	recentLimit    int
}

// New creates a new OCR service
func New(
	cfg *config.Config,
	fetcher *fetch.Fetcher,
	gw *gateway.Gateway,
	extractor *extract.Extractor,
	eng engine.Engine,
	audit AuditStore,
	publisher *events.Publisher,
	log *logger.Logger,
) *Service {
	return &Service{
		fetcher:        fetcher,
		gateway:        gw,
		extractor:      extractor,
		engine:         eng,
		audit:          audit,
		publisher:      publisher,
		logger:         log.WithComponent("service"),
		maxBatch:       cfg.Limits.MaxBatchSize,
		maxConcurrency: cfg.Batch.MaxConcurrency,
		languages:      cfg.Engine.Languages,
		dpi:            cfg.Engine.DPI,
		recentLimit:    cfg.Audit.RecentLimit,
	}
}

// Accepting reports whether the recognition gateway takes new work. Cheap
// enough to gate every request.
func (s *Service) Accepting() bool {
	return s.gateway.Ready()
}

// Readiness describes how far the pipeline has come up
type Readiness struct {
	Ready               bool   `json:"-"`
	PipelineInitialized bool   `json:"pipeline_initialized"`
	ExecutorRunning     bool   `json:"executor_running"`
	Engine              string `json:"engine"`
}

// Readiness probes the engine, the gateway worker and, when auditing is
// enabled, the audit database.
func (s *Service) Readiness(ctx context.Context) Readiness {
	r := Readiness{
		ExecutorRunning: s.gateway.Ready(),
		Engine:          s.engine.Name(),
	}
	if err := s.engine.Ready(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("recognition engine not ready")
	} else {
		r.PipelineInitialized = true
	}

	r.Ready = r.PipelineInitialized && r.ExecutorRunning
	if r.Ready && s.audit != nil {
		if err := s.audit.Ping(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("audit store unreachable")
			r.Ready = false
		}
	}
	return r
}

// RecentActivity returns the latest audit records, newest first. Returns an
// empty list when auditing is disabled.
func (s *Service) RecentActivity(ctx context.Context, limit int) ([]*domain.AuditRecord, error) {
	if s.audit == nil {
		return []*domain.AuditRecord{}, nil
	}
	if limit <= 0 || limit > s.recentLimit {
		limit = s.recentLimit
	}
	return s.audit.Recent(ctx, limit)
}

// processDocument runs the per-document pipeline: fetch or validate the
// payload, stage it on disk, recognize through the gateway, extract text.
// Returns the payload size as soon as it is known so failures can be audited
// with it.
func (s *Service) processDocument(ctx context.Context, req domain.DocumentRequest) (string, int, int64, error) {
	payload, err := s.fetcher.Fetch(ctx, req)
	if err != nil {
		return "", 0, 0, err
	}
	size := int64(len(payload.Bytes))

	file, err := scratch.NewFile("", "ocr-*"+payload.Extension, payload.Bytes, s.logger)
	if err != nil {
		return "", 0, size, domain.NewProcessingError("scratch setup", err)
	}
	defer file.Release()

	outDir, err := scratch.NewDir("", "ocr-out-*", s.logger)
	if err != nil {
		return "", 0, size, domain.NewProcessingError("scratch setup", err)
	}
	defer outDir.Release()

	output, err := s.gateway.Recognize(ctx, engine.Input{
		Path:      file.Path(),
		Format:    payload.Extension,
		Languages: s.languages,
		DPI:       s.dpi,
		OutputDir: outDir.Path(),
	})
	if err != nil {
		return "", 0, size, stageError("recognition", err)
	}

	text, pages, err := s.extractor.Extract(output, outDir.Path())
	if err != nil {
		return "", 0, size, stageError("extraction", err)
	}

	return text, pages, size, nil
}

// stageError keeps typed document errors intact and labels everything else
// with the pipeline stage that failed.
func stageError(stage string, err error) error {
	var docErr domain.DocumentError
	if errors.As(err, &docErr) {
		return err
	}
	return domain.NewProcessingError(stage, err)
}

// finishDocument reports one completed document to the audit trail and the
// event bus. Both are best-effort side channels.
func (s *Service) finishDocument(ctx context.Context, req domain.DocumentRequest, pages int, size int64, took time.Duration, procErr error) {
	rec := &domain.AuditRecord{
		RequestID:  httputil.GetRequestID(ctx),
		Document:   req.Reference(),
		Status:     string(domain.StatusSuccess),
		Pages:      pages,
		SizeBytes:  size,
		Engine:     s.engine.Name(),
		DurationMS: took.Milliseconds(),
	}
	if procErr != nil {
		category := string(domain.CategoryOf(procErr))
		rec.Status = string(domain.StatusError)
		rec.ErrorCategory = &category
	}
	s.recordAudit(rec)

	if procErr != nil {
		s.publisher.DocumentFailed(ctx, req, procErr)
		return
	}
	s.publisher.DocumentProcessed(ctx, req, pages, size, took)
}

// recordAudit writes the audit row in the background so a slow database
// never holds up a response.
func (s *Service) recordAudit(rec *domain.AuditRecord) {
	if s.audit == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.audit.Record(ctx, rec); err != nil {
			s.logger.Error().Err(err).Str("document", rec.Document).Msg("failed to record audit entry")
		}
	}()
}
