package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/docuflow/ocr-service/internal/ocr/domain"
	"github.com/docuflow/ocr-service/internal/ocr/service"
	"github.com/docuflow/ocr-service/pkg/config"
	apperrors "github.com/docuflow/ocr-service/pkg/errors"
	"github.com/docuflow/ocr-service/pkg/httputil"
	"github.com/docuflow/ocr-service/pkg/logger"
)

// multipartOverhead leaves room for multipart boundaries and form fields on
// top of the file size limit when capping the request body.
const multipartOverhead = 1 << 20

// Handler exposes the recognition pipeline over HTTP
type Handler struct {
	service      *service.Service
	logger       *logger.Logger
	maxFileBytes int64
}

// NewHandler creates a new OCR handler
func NewHandler(svc *service.Service, cfg *config.Config, log *logger.Logger) *Handler {
	return &Handler{
		service:      svc,
		logger:       log.WithComponent("handler"),
		maxFileBytes: cfg.Limits.MaxFileBytes,
	}
}

// Register mounts the OCR routes on the given router. The health endpoints
// stay public; any given middleware (bearer auth) wraps the document routes.
func (h *Handler) Register(r chi.Router, protected ...func(http.Handler) http.Handler) {
	r.Get("/", h.Liveness)
	r.Get("/health/ready", h.Readiness)

	r.Group(func(r chi.Router) {
		r.Use(protected...)
		r.Post("/ocr", h.Batch)
		r.Post("/ocr_upload", h.Upload)
		r.Get("/ocr/recent", h.Recent)
	})
}

// Liveness handles GET /
func (h *Handler) Liveness(w http.ResponseWriter, r *http.Request) {
	httputil.RawJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "ocr-service",
	})
}

// readinessBody is the GET /health/ready response shape.
type readinessBody struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
	service.Readiness
}

// Readiness handles GET /health/ready
func (h *Handler) Readiness(w http.ResponseWriter, r *http.Request) {
	ready := h.service.Readiness(r.Context())
	if !ready.Ready {
		httputil.RawJSON(w, http.StatusServiceUnavailable, readinessBody{
			Status:    "not_ready",
			Reason:    "Service not ready: Pipeline not initialized",
			Readiness: ready,
		})
		return
	}

	httputil.RawJSON(w, http.StatusOK, readinessBody{
		Status:    "ready",
		Readiness: ready,
	})
}

// Batch handles POST /ocr
func (h *Handler) Batch(w http.ResponseWriter, r *http.Request) {
	if !h.service.Accepting() {
		httputil.Error(w, apperrors.ServiceUnavailable("OCR pipeline is not initialized"))
		return
	}

	var req service.BatchRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	resp, err := h.service.ProcessBatch(r.Context(), &req)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.RawJSON(w, http.StatusOK, resp)
}

// Upload handles POST /ocr_upload
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if !h.service.Accepting() {
		httputil.Error(w, apperrors.ServiceUnavailable("OCR pipeline is not initialized"))
		return
	}

	bodyCap := h.maxFileBytes + multipartOverhead
	if r.ContentLength > bodyCap {
		httputil.Error(w, apperrors.PayloadTooLarge("request body too large"))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, bodyCap)

	if err := r.ParseMultipartForm(bodyCap); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			httputil.Error(w, apperrors.PayloadTooLarge("request body too large"))
			return
		}
		httputil.Error(w, apperrors.BadRequest("invalid multipart form"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.Error(w, apperrors.BadRequest("missing file field"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		httputil.Error(w, apperrors.BadRequest("failed to read uploaded file"))
		return
	}

	resp := h.service.ProcessUpload(r.Context(), domain.DocumentRequest{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Bytes:       data,
	})

	httputil.RawJSON(w, http.StatusOK, resp)
}

// Recent handles GET /ocr/recent
func (h *Handler) Recent(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	records, err := h.service.RecentActivity(r.Context(), limit)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, records)
}
