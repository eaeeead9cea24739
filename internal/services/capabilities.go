package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Lllllllleong/tableflow/internal/gcp"
	"github.com/Lllllllleong/tableflow/internal/ocr"
	"github.com/Lllllllleong/tableflow/internal/pdf"
)

// OCR engines selectable through OCR_ENGINE or the CLI.
const (
	EngineTesseract = "tesseract"
	EngineVertex    = "vertex"
)

// DefaultCapabilities wires the PDF text layer and rasterizer with the given
// recognizer.
func DefaultCapabilities(cfg PipelineConfig, recognizer Recognizer, logger *slog.Logger) Capabilities {
	text := pdf.NewTextLayer()
	return Capabilities{
		Prober:     text,
		Structured: text,
		Rasterizer: pdf.NewRasterizer(cfg.OCRMinWidth, logger),
		Recognizer: recognizer,
	}
}

// NewRecognizer builds the named OCR engine. The returned close function
// releases its clients and is never nil.
func NewRecognizer(ctx context.Context, engine string, cfg PipelineConfig, logger *slog.Logger) (Recognizer, func() error, error) {
	noop := func() error { return nil }
	if logger == nil {
		logger = slog.Default()
	}
	switch engine {
	case "", EngineTesseract:
		if !ocr.Enabled {
			logger.Warn("Tesseract support is not compiled in; scanned documents will fail extraction.")
		}
		return ocr.NewTesseract(cfg.OCRLanguages), noop, nil
	case EngineVertex:
		projectID := gcp.GetEnv("PROJECT_ID", "")
		if projectID == "" {
			return nil, noop, fmt.Errorf("PROJECT_ID environment variable must be set for the vertex OCR engine")
		}
		vertexClient, err := gcp.NewVertexClient(ctx, projectID, gcp.GetEnv("VERTEX_AI_REGION", "us-central1"))
		if err != nil {
			return nil, noop, fmt.Errorf("failed to create vertex client: %w", err)
		}
		return gcp.NewVertexRecognizer(vertexClient, logger), vertexClient.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown OCR engine %q (want %s or %s)", engine, EngineTesseract, EngineVertex)
	}
}
