package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/docuflow/ocr-service/pkg/logger"
)

// Tesseract recognizes documents with a local Tesseract installation.
// Images go straight to gosseract; PDFs are optimized and split into
// single-page files with pdfcpu, and each page's embedded images are
// recognized in page order.
type Tesseract struct {
	clientFactory func() *gosseract.Client
	logger        *logger.Logger
}

// NewTesseract constructs a Tesseract-backed engine
func NewTesseract(log *logger.Logger) *Tesseract {
	return &Tesseract{
		clientFactory: gosseract.NewClient,
		logger:        log.WithComponent("tesseract"),
	}
}

func (t *Tesseract) Name() string { return "tesseract" }

// Ready probes the Tesseract library by constructing a client and asking
// for its version
func (t *Tesseract) Ready(ctx context.Context) error {
	c := t.clientFactory()
	defer c.Close()

	if v := c.Version(); v == "" {
		return fmt.Errorf("tesseract library reported no version")
	}
	return nil
}

// Close releases nothing; clients are created per call
func (t *Tesseract) Close() error { return nil }

// Recognize runs OCR on the document at in.Path
func (t *Tesseract) Recognize(ctx context.Context, in Input) (Output, error) {
	if strings.EqualFold(in.Format, ".pdf") {
		return t.recognizePDF(ctx, in)
	}

	data, err := os.ReadFile(in.Path)
	if err != nil {
		return Output{}, fmt.Errorf("read document: %w", err)
	}

	text, err := t.recognizeImage(ctx, data, in)
	if err != nil {
		return Output{}, err
	}
	return Output{Pages: []Page{{Index: 1, Markdown: text}}}, nil
}

// recognizePDF splits the document into single-page files, pulls each
// page's embedded images, and recognizes them in page order. A page
// without extractable images yields an empty page entry.
func (t *Tesseract) recognizePDF(ctx context.Context, in Input) (Output, error) {
	workDir := filepath.Join(in.OutputDir, "pages")
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return Output{}, fmt.Errorf("create page workspace: %w", err)
	}

	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed

	optimized := filepath.Join(workDir, "optimized.pdf")
	if err := api.OptimizeFile(in.Path, optimized, cfg); err != nil {
		return Output{}, fmt.Errorf("optimize pdf: %w", err)
	}

	pageCount, err := api.PageCountFile(optimized)
	if err != nil {
		return Output{}, fmt.Errorf("count pdf pages: %w", err)
	}
	t.logger.Debug().Int("pages", pageCount).Msg("splitting pdf for recognition")

	if err := api.SplitFile(optimized, workDir, 1, cfg); err != nil {
		return Output{}, fmt.Errorf("split pdf: %w", err)
	}

	splitBase := strings.TrimSuffix(optimized, filepath.Ext(optimized))
	pages := make([]Page, 0, pageCount)

	for i := 1; i <= pageCount; i++ {
		select {
		case <-ctx.Done():
			return Output{}, ctx.Err()
		default:
		}

		pagePath := fmt.Sprintf("%s_%d.pdf", splitBase, i)
		text, err := t.recognizePDFPage(ctx, pagePath, workDir, i, in)
		if err != nil {
			return Output{}, fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, Page{Index: i, Markdown: text})
	}

	return Output{Pages: pages}, nil
}

// recognizePDFPage extracts the embedded images of one single-page file
// and concatenates their recognized text
func (t *Tesseract) recognizePDFPage(ctx context.Context, pagePath, workDir string, pageNr int, in Input) (string, error) {
	imgDir := filepath.Join(workDir, fmt.Sprintf("img_%d", pageNr))
	if err := os.MkdirAll(imgDir, 0o755); err != nil {
		return "", fmt.Errorf("create image workspace: %w", err)
	}

	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	if err := api.ExtractImagesFile(pagePath, imgDir, nil, cfg); err != nil {
		return "", fmt.Errorf("extract images: %w", err)
	}

	entries, err := os.ReadDir(imgDir)
	if err != nil {
		return "", fmt.Errorf("list extracted images: %w", err)
	}

	var parts []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(imgDir, entry.Name()))
		if err != nil {
			return "", fmt.Errorf("read extracted image %s: %w", entry.Name(), err)
		}
		text, err := t.recognizeImage(ctx, data, in)
		if err != nil {
			return "", err
		}
		if text != "" {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, "\n\n"), nil
}

// recognizeImage runs one gosseract client over a single encoded image
func (t *Tesseract) recognizeImage(ctx context.Context, data []byte, in Input) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	c := t.clientFactory()
	defer c.Close()

	if err := c.SetImageFromBytes(data); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	if len(in.Languages) > 0 {
		if err := c.SetLanguage(in.Languages...); err != nil {
			return "", fmt.Errorf("set languages: %w", err)
		}
	}
	if in.DPI > 0 {
		if err := c.SetVariable(gosseract.SettableVariable("user_defined_dpi"), fmt.Sprint(in.DPI)); err != nil {
			return "", fmt.Errorf("set dpi: %w", err)
		}
	}

	text, err := c.Text()
	if err != nil {
		return "", fmt.Errorf("recognize text: %w", err)
	}
	return strings.TrimSpace(text), nil
}
