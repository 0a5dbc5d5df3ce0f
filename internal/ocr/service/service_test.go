package service_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuflow/ocr-service/internal/ocr/domain"
	"github.com/docuflow/ocr-service/internal/ocr/engine"
	"github.com/docuflow/ocr-service/internal/ocr/events"
	"github.com/docuflow/ocr-service/internal/ocr/extract"
	"github.com/docuflow/ocr-service/internal/ocr/fetch"
	"github.com/docuflow/ocr-service/internal/ocr/gateway"
	"github.com/docuflow/ocr-service/internal/ocr/service"
	"github.com/docuflow/ocr-service/pkg/config"
	"github.com/docuflow/ocr-service/pkg/httputil"
	"github.com/docuflow/ocr-service/pkg/logger"
	"github.com/docuflow/ocr-service/pkg/testutil"
)

// stubEngine is a controllable engine.Engine. With echoFile set it returns
// the staged file's content as the recognized text, which lets tests tie a
// result back to the exact document that produced it.
type stubEngine struct {
	text     string
	echoFile bool
	err      error
	readyErr error
	calls    atomic.Int32
}

func (e *stubEngine) Name() string { return "stub" }

func (e *stubEngine) Ready(ctx context.Context) error { return e.readyErr }

func (e *stubEngine) Close() error { return nil }

func (e *stubEngine) Recognize(ctx context.Context, in engine.Input) (engine.Output, error) {
	e.calls.Add(1)
	if e.err != nil {
		return engine.Output{}, e.err
	}

	text := e.text
	if e.echoFile {
		data, err := os.ReadFile(in.Path)
		if err != nil {
			return engine.Output{}, err
		}
		text = string(data)
	}
	return engine.Output{Pages: []engine.Page{{Index: 1, Markdown: text}}}, nil
}

// memAudit is an in-memory service.AuditStore.
type memAudit struct {
	mu        sync.Mutex
	records   []*domain.AuditRecord
	lastLimit int
	recordErr error
	pingErr   error
}

func (a *memAudit) Record(ctx context.Context, rec *domain.AuditRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.recordErr != nil {
		return a.recordErr
	}
	a.records = append(a.records, rec)
	return nil
}

func (a *memAudit) Recent(ctx context.Context, limit int) ([]*domain.AuditRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastLimit = limit
	out := make([]*domain.AuditRecord, len(a.records))
	copy(out, a.records)
	return out, nil
}

func (a *memAudit) Ping(ctx context.Context) error { return a.pingErr }

func (a *memAudit) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.records)
}

func (a *memAudit) byStatus(status string) []*domain.AuditRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []*domain.AuditRecord
	for _, rec := range a.records {
		if rec.Status == status {
			out = append(out, rec)
		}
	}
	return out
}

type harness struct {
	svc  *service.Service
	eng  *stubEngine
	gw   *gateway.Gateway
	sink *testutil.MockPublisher
}

func newHarness(t *testing.T, eng *stubEngine, audit service.AuditStore) *harness {
	h := newEngineHarness(t, eng, audit)
	h.eng = eng
	return h
}

// newEngineHarness wires the full service around any engine implementation.
func newEngineHarness(t *testing.T, eng engine.Engine, audit service.AuditStore) *harness {
	t.Helper()

	log := logger.New("test", "test")
	cfg := &config.Config{
		Limits: config.LimitsConfig{MaxFileBytes: 1 << 20, MaxBatchSize: 10},
		Fetch:  config.FetchConfig{Timeout: 5 * time.Second},
		Retry:  config.RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond},
		Engine: config.EngineConfig{Languages: []string{"eng"}, DPI: 300},
		Batch:  config.BatchConfig{MaxConcurrency: 4},
		Audit:  config.AuditConfig{RecentLimit: 50},
	}

	fetcher := fetch.New(cfg.Fetch, cfg.Limits, cfg.Retry, log)
	gw := gateway.New(eng, 8, log)
	gw.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		gw.Shutdown(ctx)
	})

	sink := testutil.NewMockPublisher()
	pub := events.NewPublisherWithSink(sink, log)
	svc := service.New(cfg, fetcher, gw, extract.New(log), eng, audit, pub, log)

	return &harness{svc: svc, gw: gw, sink: sink}
}

// documentServer serves PNG-typed bodies for any path and 404 for paths
// starting with /missing.
func documentServer(t *testing.T, bodyFor func(path string) []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/missing") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(bodyFor(r.URL.Path))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestService_Readiness(t *testing.T) {
	t.Run("ready when engine and gateway are up", func(t *testing.T) {
		h := newHarness(t, &stubEngine{text: "ok"}, nil)

		r := h.svc.Readiness(context.Background())
		assert.True(t, r.Ready)
		assert.True(t, r.PipelineInitialized)
		assert.True(t, r.ExecutorRunning)
		assert.Equal(t, "stub", r.Engine)
	})

	t.Run("engine failure flips pipeline flag", func(t *testing.T) {
		h := newHarness(t, &stubEngine{readyErr: assert.AnError}, nil)

		r := h.svc.Readiness(context.Background())
		assert.False(t, r.Ready)
		assert.False(t, r.PipelineInitialized)
		assert.True(t, r.ExecutorRunning)
	})

	t.Run("stopped gateway flips executor flag", func(t *testing.T) {
		h := newHarness(t, &stubEngine{text: "ok"}, nil)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		require.NoError(t, h.gw.Shutdown(ctx))

		r := h.svc.Readiness(context.Background())
		assert.False(t, r.Ready)
		assert.False(t, r.ExecutorRunning)
		assert.False(t, h.svc.Accepting())
	})

	t.Run("unreachable audit store blocks readiness", func(t *testing.T) {
		audit := &memAudit{pingErr: assert.AnError}
		h := newHarness(t, &stubEngine{text: "ok"}, audit)

		r := h.svc.Readiness(context.Background())
		assert.False(t, r.Ready)
		assert.True(t, r.PipelineInitialized)
	})
}

func TestService_AuditTrail(t *testing.T) {
	audit := &memAudit{}
	h := newHarness(t, &stubEngine{text: "recognized text"}, audit)
	srv := documentServer(t, func(string) []byte { return testutil.PNGSample() })

	ctx := context.WithValue(context.Background(), httputil.RequestIDKey, "req-audit")
	resp, err := h.svc.ProcessBatch(ctx, &service.BatchRequest{
		URLs: []string{srv.URL + "/ok.png", srv.URL + "/missing.png"},
	})
	require.NoError(t, err)
	require.Equal(t, 2, resp.TotalProcessed)

	testutil.RequireEventually(t, func() bool { return audit.count() == 2 },
		2*time.Second, 10*time.Millisecond, "audit records should land")

	succeeded := audit.byStatus("success")
	require.Len(t, succeeded, 1)
	assert.Equal(t, "req-audit", succeeded[0].RequestID)
	assert.Equal(t, srv.URL+"/ok.png", succeeded[0].Document)
	assert.Equal(t, 1, succeeded[0].Pages)
	assert.Equal(t, int64(len(testutil.PNGSample())), succeeded[0].SizeBytes)
	assert.Equal(t, "stub", succeeded[0].Engine)
	assert.Nil(t, succeeded[0].ErrorCategory)

	failed := audit.byStatus("error")
	require.Len(t, failed, 1)
	require.NotNil(t, failed[0].ErrorCategory)
	assert.Equal(t, "download_error", *failed[0].ErrorCategory)
	assert.Equal(t, srv.URL+"/missing.png", failed[0].Document)
}

func TestService_RecentActivity(t *testing.T) {
	t.Run("empty without an audit store", func(t *testing.T) {
		h := newHarness(t, &stubEngine{text: "ok"}, nil)

		records, err := h.svc.RecentActivity(context.Background(), 10)
		require.NoError(t, err)
		assert.NotNil(t, records)
		assert.Len(t, records, 0)
	})

	t.Run("clamps the limit to the configured maximum", func(t *testing.T) {
		audit := &memAudit{}
		h := newHarness(t, &stubEngine{text: "ok"}, audit)

		_, err := h.svc.RecentActivity(context.Background(), 500)
		require.NoError(t, err)
		assert.Equal(t, 50, audit.lastLimit)

		_, err = h.svc.RecentActivity(context.Background(), 0)
		require.NoError(t, err)
		assert.Equal(t, 50, audit.lastLimit)

		_, err = h.svc.RecentActivity(context.Background(), 5)
		require.NoError(t, err)
		assert.Equal(t, 5, audit.lastLimit)
	})
}
