package service_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuflow/ocr-service/internal/ocr/domain"
	"github.com/docuflow/ocr-service/internal/ocr/engine"
	"github.com/docuflow/ocr-service/internal/ocr/service"
	apperrors "github.com/docuflow/ocr-service/pkg/errors"
	"github.com/docuflow/ocr-service/pkg/messaging"
	"github.com/docuflow/ocr-service/pkg/testutil"
)

func TestProcessBatch_MixedResults(t *testing.T) {
	h := newHarness(t, &stubEngine{text: "Invoice #42\n\nTotal: 100 EUR"}, nil)
	srv := documentServer(t, func(string) []byte { return testutil.PNGSample() })

	okURL := srv.URL + "/scan.png"
	missingURL := srv.URL + "/missing/scan.png"

	resp, err := h.svc.ProcessBatch(context.Background(), &service.BatchRequest{
		URLs: []string{okURL, missingURL},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, resp.TotalProcessed)
	assert.Equal(t, 1, resp.Successful)
	assert.Equal(t, 1, resp.Failed)
	assert.Equal(t, resp.TotalProcessed, resp.Successful+resp.Failed)
	require.Len(t, resp.Results, 2)

	ok := resp.Results[0]
	assert.Equal(t, okURL, ok.URL)
	assert.Equal(t, domain.StatusSuccess, ok.Status)
	require.NotNil(t, ok.Text)
	assert.Equal(t, "Invoice #42\n\nTotal: 100 EUR", *ok.Text)
	require.NotNil(t, ok.Pages)
	assert.Equal(t, 1, *ok.Pages)
	assert.Nil(t, ok.Error)
	assert.Nil(t, ok.ErrorType)

	failed := resp.Results[1]
	assert.Equal(t, missingURL, failed.URL)
	assert.Equal(t, domain.StatusError, failed.Status)
	require.NotNil(t, failed.Error)
	assert.Equal(t, "HTTP 404", *failed.Error)
	require.NotNil(t, failed.ErrorType)
	assert.Equal(t, "download_error", *failed.ErrorType)
	assert.Nil(t, failed.Text)
	assert.Nil(t, failed.Pages)

	assert.Len(t, h.sink.EventsOfType(messaging.EventDocumentProcessed), 1)
	assert.Len(t, h.sink.EventsOfType(messaging.EventDocumentFailed), 1)

	batchEvents := h.sink.EventsOfType(messaging.EventBatchCompleted)
	require.Len(t, batchEvents, 1)
	completed := batchEvents[0].Payload.(messaging.BatchCompletedEvent)
	assert.Equal(t, 2, completed.Total)
	assert.Equal(t, 1, completed.Successful)
	assert.Equal(t, 1, completed.Failed)
}

func TestProcessBatch_PreservesInputOrder(t *testing.T) {
	h := newHarness(t, &stubEngine{echoFile: true}, nil)
	srv := documentServer(t, func(path string) []byte {
		return []byte("document at " + path)
	})

	urls := make([]string, 6)
	for i := range urls {
		urls[i] = fmt.Sprintf("%s/doc-%d.png", srv.URL, i)
	}

	resp, err := h.svc.ProcessBatch(context.Background(), &service.BatchRequest{URLs: urls})
	require.NoError(t, err)
	require.Len(t, resp.Results, 6)
	assert.Equal(t, 6, resp.Successful)

	for i, res := range resp.Results {
		assert.Equal(t, urls[i], res.URL)
		require.NotNil(t, res.Text)
		assert.Equal(t, fmt.Sprintf("document at /doc-%d.png", i), *res.Text)
	}
}

func TestProcessBatch_ValidationGate(t *testing.T) {
	h := newHarness(t, &stubEngine{text: "never reached"}, nil)

	tests := []struct {
		name      string
		req       *service.BatchRequest
		detailKey string
		detailMsg string
	}{
		{
			name:      "missing urls",
			req:       &service.BatchRequest{},
			detailKey: "URLs",
			detailMsg: "this field is required",
		},
		{
			name:      "empty urls",
			req:       &service.BatchRequest{URLs: []string{}},
			detailKey: "URLs",
			detailMsg: "must contain at least 1 items",
		},
		{
			name: "too many urls",
			req: &service.BatchRequest{URLs: []string{
				"https://docs.example.com/0.png", "https://docs.example.com/1.png",
				"https://docs.example.com/2.png", "https://docs.example.com/3.png",
				"https://docs.example.com/4.png", "https://docs.example.com/5.png",
				"https://docs.example.com/6.png", "https://docs.example.com/7.png",
				"https://docs.example.com/8.png", "https://docs.example.com/9.png",
				"https://docs.example.com/10.png",
			}},
			detailKey: "urls",
			detailMsg: "must contain at most 10 items",
		},
		{
			name: "disallowed scheme",
			req: &service.BatchRequest{URLs: []string{
				"ftp://archive.example.com/scan.pdf",
				"https://docs.example.com/ok.png",
			}},
			detailKey: "urls[0]",
			detailMsg: "must use the http or https scheme",
		},
		{
			name:      "not a url",
			req:       &service.BatchRequest{URLs: []string{"not-a-url"}},
			detailKey: "URLs[0]",
			detailMsg: "must be a valid URL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := h.svc.ProcessBatch(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, apperrors.Is(err, apperrors.ErrValidation))

			var appErr *apperrors.AppError
			require.True(t, apperrors.As(err, &appErr))
			assert.Equal(t, tt.detailMsg, appErr.Details[tt.detailKey])
			assert.Zero(t, resp.TotalProcessed)
		})
	}

	// A rejected batch starts no document work at all.
	assert.Zero(t, h.eng.calls.Load())
	h.sink.AssertNoEventsPublished(t)
}

func TestProcessBatch_RecognitionFailureIsolated(t *testing.T) {
	h := newHarness(t, &stubEngine{err: errors.New("model exploded")}, nil)
	srv := documentServer(t, func(string) []byte { return testutil.PNGSample() })

	resp, err := h.svc.ProcessBatch(context.Background(), &service.BatchRequest{
		URLs: []string{srv.URL + "/a.png", srv.URL + "/b.png"},
	})
	require.NoError(t, err)

	assert.Equal(t, 0, resp.Successful)
	assert.Equal(t, 2, resp.Failed)
	for _, res := range resp.Results {
		require.NotNil(t, res.Error)
		assert.Equal(t, "recognition: model exploded", *res.Error)
		require.NotNil(t, res.ErrorType)
		assert.Equal(t, "processing_error", *res.ErrorType)
	}

	completed := h.sink.EventsOfType(messaging.EventBatchCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, 2, completed[0].Payload.(messaging.BatchCompletedEvent).Failed)
}

func TestProcessBatch_EmptyRecognitionBecomesEmptyResult(t *testing.T) {
	h := newHarness(t, &stubEngine{text: "   \n\n  "}, nil)
	srv := documentServer(t, func(string) []byte { return testutil.PNGSample() })

	resp, err := h.svc.ProcessBatch(context.Background(), &service.BatchRequest{
		URLs: []string{srv.URL + "/blank.png"},
	})
	require.NoError(t, err)

	require.Len(t, resp.Results, 1)
	res := resp.Results[0]
	assert.Equal(t, domain.StatusError, res.Status)
	require.NotNil(t, res.Error)
	assert.Equal(t, "No text extracted", *res.Error)
	require.NotNil(t, res.ErrorType)
	assert.Equal(t, "empty_result", *res.ErrorType)
}

// recordingEngine remembers every scratch location it was handed.
type recordingEngine struct {
	stubEngine
	mu        sync.Mutex
	locations []string
}

func (e *recordingEngine) Recognize(ctx context.Context, in engine.Input) (engine.Output, error) {
	e.mu.Lock()
	e.locations = append(e.locations, in.Path, in.OutputDir)
	e.mu.Unlock()
	return e.stubEngine.Recognize(ctx, in)
}

func (e *recordingEngine) seen() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.locations))
	copy(out, e.locations)
	return out
}

func TestProcessBatch_ScratchSpaceIsGoneAfterwards(t *testing.T) {
	tests := []struct {
		name string
		eng  *recordingEngine
	}{
		{"after success", &recordingEngine{stubEngine: stubEngine{text: "recognized"}}},
		{"after engine failure", &recordingEngine{stubEngine: stubEngine{err: errors.New("model exploded")}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newEngineHarness(t, tt.eng, nil)
			srv := documentServer(t, func(string) []byte { return testutil.PNGSample() })

			_, err := h.svc.ProcessBatch(context.Background(), &service.BatchRequest{
				URLs: []string{srv.URL + "/a.png", srv.URL + "/b.png"},
			})
			require.NoError(t, err)

			seen := tt.eng.seen()
			require.Len(t, seen, 4, "both documents should reach the engine")
			for _, loc := range seen {
				_, statErr := os.Stat(loc)
				assert.True(t, os.IsNotExist(statErr), "scratch location %s should be deleted", loc)
			}
		})
	}
}

func TestProcessBatch_OversizeItemFailsAlone(t *testing.T) {
	h := newHarness(t, &stubEngine{text: "recognized"}, nil)
	srv := documentServer(t, func(path string) []byte {
		if path == "/huge.png" {
			return make([]byte, 1<<20+1)
		}
		return testutil.PNGSample()
	})

	resp, err := h.svc.ProcessBatch(context.Background(), &service.BatchRequest{
		URLs: []string{srv.URL + "/ok.png", srv.URL + "/huge.png"},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, resp.Successful)
	assert.Equal(t, 1, resp.Failed)

	assert.Equal(t, domain.StatusSuccess, resp.Results[0].Status)

	huge := resp.Results[1]
	assert.Equal(t, domain.StatusError, huge.Status)
	require.NotNil(t, huge.Error)
	assert.Contains(t, *huge.Error, "File too large")
	require.NotNil(t, huge.ErrorType)
	assert.Equal(t, "download_error", *huge.ErrorType)
}

func TestProcessBatch_CancelledContextYieldsErrorResults(t *testing.T) {
	h := newHarness(t, &stubEngine{text: "unused"}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp, err := h.svc.ProcessBatch(ctx, &service.BatchRequest{
		URLs: []string{"https://docs.example.com/a.png", "https://docs.example.com/b.png"},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, resp.TotalProcessed)
	assert.Equal(t, 2, resp.Failed)
	for _, res := range resp.Results {
		assert.Equal(t, domain.StatusError, res.Status)
		require.NotNil(t, res.Error)
		assert.Contains(t, *res.Error, "batch cancelled")
		require.NotNil(t, res.ErrorType)
		assert.Equal(t, "processing_error", *res.ErrorType)
	}

	assert.Zero(t, h.eng.calls.Load())

	completed := h.sink.EventsOfType(messaging.EventBatchCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, 2, completed[0].Payload.(messaging.BatchCompletedEvent).Failed)
}
