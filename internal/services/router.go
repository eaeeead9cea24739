package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Lllllllleong/tableflow/internal/models"
)

// StructuredExtractor recovers tables from a PDF's text layer.
type StructuredExtractor interface {
	ExtractTables(ctx context.Context, path string, pages models.PageRange) ([]models.RawTable, error)
}

// PageRasterizer turns PDF pages into images for OCR.
type PageRasterizer interface {
	RasterizePages(ctx context.Context, path string, pages models.PageRange) ([]models.PageImage, error)
}

// Recognizer is an OCR engine: one page image in, plain text out.
type Recognizer interface {
	Recognize(ctx context.Context, img models.PageImage) (string, error)
}

// Router runs the extraction path chosen by the classifier.
type Router struct {
	structured StructuredExtractor
	rasterizer PageRasterizer
	recognizer Recognizer
	cfg        PipelineConfig
	logger     *slog.Logger
}

// NewRouter wires the extraction capabilities together.
func NewRouter(structured StructuredExtractor, rasterizer PageRasterizer, recognizer Recognizer, cfg PipelineConfig, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		structured: structured,
		rasterizer: rasterizer,
		recognizer: recognizer,
		cfg:        cfg,
		logger:     logger,
	}
}

// Extract returns the raw tables of doc, indexed in page order. Every error or
// panic from a capability comes back as an *ExtractionError with no tables.
func (r *Router) Extract(ctx context.Context, doc *models.Document, verdict models.Verdict) ([]models.RawTable, error) {
	logCtx := r.logger.With("documentId", doc.ID, "strategy", verdict.Strategy)

	tables, err := r.dispatch(ctx, logCtx, doc, verdict)
	if err == nil && len(tables) == 0 {
		err = &ExtractionError{
			DocumentID: doc.ID,
			Strategy:   verdict.Strategy,
			Reason:     models.ReasonNoTables,
			Err:        errors.New("extractor returned no usable tables"),
		}
	}
	if err != nil {
		var extErr *ExtractionError
		if !errors.As(err, &extErr) {
			reason := models.ReasonExtractorError
			if ctx.Err() != nil {
				reason = models.ReasonCanceled
			}
			err = &ExtractionError{DocumentID: doc.ID, Strategy: verdict.Strategy, Reason: reason, Err: err}
		}
		logCtx.Error("Extraction failed.", "error", err)
		return nil, err
	}

	for i := range tables {
		tables[i].DocumentID = doc.ID
		tables[i].TableIndex = i
	}
	logCtx.Info("Extraction complete.", "tableCount", len(tables))
	return tables, nil
}

func (r *Router) dispatch(ctx context.Context, logCtx *slog.Logger, doc *models.Document, verdict models.Verdict) (tables []models.RawTable, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			tables = nil
			err = &ExtractionError{
				DocumentID: doc.ID,
				Strategy:   verdict.Strategy,
				Reason:     models.ReasonExtractorPanic,
				Err:        fmt.Errorf("capability panicked: %v", rec),
			}
		}
	}()

	switch verdict.Strategy {
	case models.StrategyStructured:
		return r.extractStructured(ctx, logCtx, doc)
	case models.StrategyOCR:
		return r.extractOCR(ctx, logCtx, doc)
	default:
		return nil, fmt.Errorf("unknown extraction strategy %q", verdict.Strategy)
	}
}

func (r *Router) extractStructured(ctx context.Context, logCtx *slog.Logger, doc *models.Document) ([]models.RawTable, error) {
	found, err := r.structured.ExtractTables(ctx, doc.LocalPath, models.PageRange{First: 1, Last: r.cfg.MaxPages})
	if err != nil {
		return nil, fmt.Errorf("structured extraction: %w", err)
	}

	tables := found[:0]
	for _, t := range found {
		if len(t.Rows) < r.cfg.MinStructuredRows {
			continue
		}
		tables = append(tables, t)
	}
	if dropped := len(found) - len(tables); dropped > 0 {
		logCtx.Info("Dropped degenerate tables.", "dropped", dropped, "minRows", r.cfg.MinStructuredRows)
	}
	return tables, nil
}

func (r *Router) extractOCR(ctx context.Context, logCtx *slog.Logger, doc *models.Document) ([]models.RawTable, error) {
	images, err := r.rasterizer.RasterizePages(ctx, doc.LocalPath, models.PageRange{First: 1, Last: r.cfg.OCRMaxPages})
	if err != nil {
		return nil, fmt.Errorf("rasterize pages: %w", err)
	}

	var tables []models.RawTable
	failedPages := 0
	for _, img := range images {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := r.recognizer.Recognize(ctx, img)
		if err != nil {
			failedPages++
			logCtx.Warn("Page recognition failed, skipping page.", "page", img.Page, "error", err)
			continue
		}
		rows := ParseOCRText(text, r.cfg.MinOCRTokens)
		if len(rows) < r.cfg.MinOCRLines {
			logCtx.Info("Page too sparse for a table.", "page", img.Page, "usableLines", len(rows), "minLines", r.cfg.MinOCRLines)
			continue
		}
		tables = append(tables, models.RawTable{Page: img.Page, Rows: rows})
	}

	if len(images) > 0 && failedPages == len(images) {
		return nil, fmt.Errorf("recognition failed on all %d pages", failedPages)
	}
	return tables, nil
}

// ParseOCRText splits recognized text into table rows: one row per line, one
// cell per whitespace-separated token. Lines with fewer than minTokens tokens
// are prose or noise and are skipped.
func ParseOCRText(text string, minTokens int) [][]string {
	var rows [][]string
	for _, line := range strings.FieldsFunc(text, func(r rune) bool { return r == '\n' || r == '\r' }) {
		tokens := strings.Fields(line)
		if len(tokens) < minTokens {
			continue
		}
		rows = append(rows, tokens)
	}
	return rows
}
