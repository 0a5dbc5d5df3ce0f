// Package engine defines the recognition engine contract and its
// implementations. An engine is an explicitly owned object: constructed at
// startup, injected into the gateway, closed exactly once at teardown.
package engine

import (
	"context"
	"fmt"

	"github.com/docuflow/ocr-service/pkg/config"
	"github.com/docuflow/ocr-service/pkg/logger"
)

// Input describes one validated document handed to an engine
type Input struct {
	// Path is the scratch file holding the document bytes
	Path string
	// Format is the resolved file extension (".pdf", ".png", ...)
	Format string
	// Languages holds trained-data hints (e.g. "eng", "deu")
	Languages []string
	// DPI is passed to engines that use it for scaling heuristics
	DPI int
	// OutputDir is the scratch directory for engine artifacts
	OutputDir string
}

// Page is one recognized page of a document
type Page struct {
	Index    int
	Markdown string
}

// Output is what an engine returns. Pages may be empty when the engine
// wrote markdown files into the output directory itself.
type Output struct {
	Pages []Page
}

// Engine recognizes text in documents
type Engine interface {
	Name() string
	Ready(ctx context.Context) error
	Recognize(ctx context.Context, in Input) (Output, error)
	Close() error
}

// New constructs the engine selected by cfg.Kind
func New(cfg config.EngineConfig, retryCfg config.RetryConfig, log *logger.Logger) (Engine, error) {
	switch cfg.Kind {
	case config.EngineTesseract:
		return NewTesseract(log), nil
	case config.EngineRemote:
		if cfg.RemoteURL == "" {
			return nil, fmt.Errorf("remote engine requires engine.remote_url")
		}
		return NewRemote(cfg.RemoteURL, cfg.RemoteTimeout, retryCfg, log), nil
	default:
		return nil, fmt.Errorf("unknown engine kind %q", cfg.Kind)
	}
}
