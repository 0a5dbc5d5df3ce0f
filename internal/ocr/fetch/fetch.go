// Package fetch turns document requests into validated payloads: remote
// URLs are downloaded with bounded size, type checks, and retry on
// transient failures; uploaded bytes get the same checks with no network
// call.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strconv"

	"golang.org/x/time/rate"

	"github.com/docuflow/ocr-service/internal/ocr/domain"
	"github.com/docuflow/ocr-service/pkg/config"
	"github.com/docuflow/ocr-service/pkg/logger"
	"github.com/docuflow/ocr-service/pkg/retry"
)

// Fetcher downloads and validates documents
type Fetcher struct {
	client   *http.Client
	limiter  *rate.Limiter
	retrier  *retry.Retrier
	maxBytes int64
	logger   *logger.Logger
}

// New builds a Fetcher. A zero rate_per_second leaves fetches unlimited.
func New(cfg config.FetchConfig, limits config.LimitsConfig, retryCfg config.RetryConfig, log *logger.Logger) *Fetcher {
	componentLog := log.WithComponent("fetcher")

	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}

	return &Fetcher{
		client:   &http.Client{Timeout: cfg.Timeout},
		limiter:  limiter,
		retrier:  retry.New(retry.Policy{MaxAttempts: retryCfg.MaxAttempts, BaseDelay: retryCfg.BaseDelay}, componentLog),
		maxBytes: limits.MaxFileBytes,
		logger:   componentLog,
	}
}

// Fetch resolves a request into a validated payload. URL sources are
// downloaded; upload sources are checked in place.
func (f *Fetcher) Fetch(ctx context.Context, req domain.DocumentRequest) (domain.ValidatedPayload, error) {
	if req.IsUpload() {
		return f.validateUpload(req)
	}
	return f.fetchURL(ctx, req.SourceURL)
}

func (f *Fetcher) fetchURL(ctx context.Context, rawURL string) (domain.ValidatedPayload, error) {
	var payload domain.ValidatedPayload

	err := f.retrier.Do(ctx, "download", func(ctx context.Context) error {
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		p, err := f.download(ctx, rawURL)
		if err != nil {
			return err
		}
		payload = p
		return nil
	})
	if err != nil {
		return domain.ValidatedPayload{}, asDownloadError(err)
	}

	f.logger.Debug().
		Str("url", rawURL).
		Int("size_bytes", len(payload.Bytes)).
		Str("extension", payload.Extension).
		Msg("document downloaded")
	return payload, nil
}

// download performs one GET attempt. Transport errors are returned raw so
// the retrier can classify them; policy rejections come back as
// DownloadError and fail immediately.
func (f *Fetcher) download(ctx context.Context, rawURL string) (domain.ValidatedPayload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return domain.ValidatedPayload{}, domain.NewDownloadError("Request failed", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return domain.ValidatedPayload{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.ValidatedPayload{}, domain.NewDownloadError(fmt.Sprintf("HTTP %d", resp.StatusCode), nil)
	}

	// Header precheck before consuming the body; the header may be absent
	// or lie, so the actual length is re-checked after reading.
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if n, parseErr := strconv.ParseInt(cl, 10, 64); parseErr == nil && n > f.maxBytes {
			return domain.ValidatedPayload{}, domain.NewDownloadError(tooLargeMessage(n), nil)
		}
	}

	contentType := domain.NormalizeMIME(resp.Header.Get("Content-Type"))
	if contentType != "" && !domain.AllowedMIMETypes[contentType] {
		return domain.ValidatedPayload{}, domain.NewDownloadError("Unsupported content type: "+contentType, nil)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return domain.ValidatedPayload{}, err
	}
	if int64(len(data)) > f.maxBytes {
		return domain.ValidatedPayload{}, domain.NewDownloadError(tooLargeMessage(int64(len(data))), nil)
	}

	return domain.ValidatedPayload{
		Bytes:       data,
		Extension:   resolveExtension(urlPathExt(rawURL), contentType, data),
		ContentType: contentType,
	}, nil
}

// validateUpload applies the size and type checks to in-memory bytes
func (f *Fetcher) validateUpload(req domain.DocumentRequest) (domain.ValidatedPayload, error) {
	contentType := domain.NormalizeMIME(req.ContentType)
	if contentType != "" && !domain.AllowedMIMETypes[contentType] {
		return domain.ValidatedPayload{}, domain.NewValidationError("Unsupported content type: %s", contentType)
	}

	if int64(len(req.Bytes)) > f.maxBytes {
		return domain.ValidatedPayload{}, domain.NewValidationError(
			"File too large: %.1fMB (max: %dMB)",
			float64(len(req.Bytes))/1024/1024,
			f.maxBytes/(1024*1024),
		)
	}

	return domain.ValidatedPayload{
		Bytes:       req.Bytes,
		Extension:   resolveExtension(filepath.Ext(req.Filename), contentType, req.Bytes),
		ContentType: contentType,
	}, nil
}

// resolveExtension applies the resolution chain: explicit extension, then
// content type, then content sniffing, then the ".png" default
func resolveExtension(ext, contentType string, data []byte) string {
	if ext != "" {
		return ext
	}
	if e, ok := domain.ExtensionForMIME(contentType); ok {
		return e
	}
	if e := SniffExtension(data); e != "" {
		return e
	}
	return ".png"
}

func urlPathExt(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return path.Ext(parsed.Path)
}

// asDownloadError keeps policy rejections intact and folds transport
// failures into the download taxonomy
func asDownloadError(err error) error {
	var dlErr *domain.DownloadError
	if errors.As(err, &dlErr) {
		return dlErr
	}
	if errors.Is(err, retry.ErrTimeoutExhausted) || errors.Is(err, context.DeadlineExceeded) {
		return domain.NewDownloadError("Download timeout", err)
	}
	return domain.NewDownloadError("Request failed", err)
}

func tooLargeMessage(n int64) string {
	return fmt.Sprintf("File too large: %.1fMB", float64(n)/1024/1024)
}
