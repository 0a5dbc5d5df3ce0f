// Package extract normalizes engine output into the aggregate markdown
// text reported to callers.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/docuflow/ocr-service/internal/ocr/domain"
	"github.com/docuflow/ocr-service/internal/ocr/engine"
	"github.com/docuflow/ocr-service/pkg/logger"
)

// Extractor turns recognized pages into one markdown document
type Extractor struct {
	logger *logger.Logger
}

// New creates an Extractor
func New(log *logger.Logger) *Extractor {
	return &Extractor{logger: log.WithComponent("extract")}
}

// Extract serializes in-memory pages to markdown files in scratchDir
// (zero-padded index, so lexical order equals page order), then reads every
// .md file there in sorted filename order and concatenates them with a
// blank-line separator, trimming the final aggregate. Engines that write
// their own files into scratchDir are picked up the same way.
//
// An aggregate with no content at all is an EmptyResultError, distinct
// from engine failure. The page count is the number of page objects, or
// the number of markdown files when the engine wrote them directly.
func (e *Extractor) Extract(out engine.Output, scratchDir string) (string, int, error) {
	for _, page := range out.Pages {
		name := fmt.Sprintf("page_%04d.md", page.Index)
		if err := os.WriteFile(filepath.Join(scratchDir, name), []byte(page.Markdown), 0o644); err != nil {
			return "", 0, fmt.Errorf("write page file %s: %w", name, err)
		}
	}

	entries, err := os.ReadDir(scratchDir)
	if err != nil {
		return "", 0, fmt.Errorf("list scratch directory: %w", err)
	}

	var content strings.Builder
	files := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		files++

		data, err := os.ReadFile(filepath.Join(scratchDir, entry.Name()))
		if err != nil {
			e.logger.Error().Err(err).Str("file", entry.Name()).Msg("failed to read markdown file")
			continue
		}
		content.Write(data)
		content.WriteString("\n\n")
	}

	text := strings.TrimSpace(content.String())
	if text == "" {
		return "", 0, domain.NewEmptyResultError("No text extracted")
	}

	pages := len(out.Pages)
	if pages == 0 {
		pages = files
	}
	return text, pages, nil
}
