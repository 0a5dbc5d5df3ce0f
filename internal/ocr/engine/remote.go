package engine

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/docuflow/ocr-service/pkg/config"
	"github.com/docuflow/ocr-service/pkg/logger"
	"github.com/docuflow/ocr-service/pkg/retry"
)

// maxResponseBytes bounds how much of a remote response is read
const maxResponseBytes = 32 << 20

type remoteRequest struct {
	Images []string `json:"images"`
}

type remoteResult struct {
	URL    string   `json:"url"`
	Status string   `json:"status"`
	Text   *string  `json:"text"`
	Error  *string  `json:"error"`
	Pages  []string `json:"pages"`
}

type remoteResponse struct {
	Results []remoteResult `json:"results"`
}

// Remote forwards documents to a recognition HTTP service. The response
// contract is fixed: a results array whose entries are either
// status=success with text, or carry an error. Entries that fit neither
// shape fail explicitly instead of being guessed at.
type Remote struct {
	url     string
	client  *http.Client
	retrier *retry.Retrier
	logger  *logger.Logger
}

// NewRemote constructs a Remote engine for the given endpoint
func NewRemote(url string, timeout time.Duration, retryCfg config.RetryConfig, log *logger.Logger) *Remote {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	componentLog := log.WithComponent("remote-engine")
	return &Remote{
		url:     strings.TrimRight(url, "/"),
		client:  &http.Client{Timeout: timeout},
		retrier: retry.New(retry.Policy{MaxAttempts: retryCfg.MaxAttempts, BaseDelay: retryCfg.BaseDelay}, componentLog),
		logger:  componentLog,
	}
}

func (r *Remote) Name() string { return "remote" }

// Ready probes the endpoint for reachability. Any HTTP response counts;
// only a transport failure marks the engine unready.
func (r *Remote) Ready(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url+"/", nil)
	if err != nil {
		return err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("remote engine unreachable: %w", err)
	}
	resp.Body.Close()
	return nil
}

// Close drops pooled connections
func (r *Remote) Close() error {
	r.client.CloseIdleConnections()
	return nil
}

// Recognize posts the document and maps the first result entry to pages.
// Transient transport failures are retried; HTTP error statuses are not.
func (r *Remote) Recognize(ctx context.Context, in Input) (Output, error) {
	data, err := os.ReadFile(in.Path)
	if err != nil {
		return Output{}, fmt.Errorf("read document: %w", err)
	}

	payload, err := json.Marshal(remoteRequest{
		Images: []string{base64.StdEncoding.EncodeToString(data)},
	})
	if err != nil {
		return Output{}, fmt.Errorf("encode request: %w", err)
	}

	r.logger.Debug().Int("size_bytes", len(data)).Msg("dispatching document to remote engine")

	var parsed remoteResponse
	err = r.retrier.Do(ctx, "remote recognize", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := r.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("remote engine returned HTTP %d", resp.StatusCode)
		}
		if err := json.Unmarshal(body, &parsed); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	})
	if err != nil {
		return Output{}, err
	}

	return outputFromRemote(parsed)
}

// outputFromRemote validates the discriminated result shape. A result is
// success when status is "success", or when text is present and error
// absent; everything else is an explicit failure.
func outputFromRemote(resp remoteResponse) (Output, error) {
	if len(resp.Results) == 0 {
		return Output{}, fmt.Errorf("remote response missing results")
	}
	res := resp.Results[0]

	success := res.Status == "success" || (res.Text != nil && res.Error == nil)
	if !success {
		if res.Error != nil {
			return Output{}, fmt.Errorf("remote engine reported failure: %s", *res.Error)
		}
		return Output{}, fmt.Errorf("remote result has status %q with neither text nor error", res.Status)
	}

	if len(res.Pages) > 0 {
		pages := make([]Page, 0, len(res.Pages))
		for i, md := range res.Pages {
			pages = append(pages, Page{Index: i + 1, Markdown: md})
		}
		return Output{Pages: pages}, nil
	}

	var text string
	if res.Text != nil {
		text = *res.Text
	}
	return Output{Pages: []Page{{Index: 1, Markdown: text}}}, nil
}
