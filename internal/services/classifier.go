package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Lllllllleong/tableflow/internal/models"
)

// TextProber reads the text layer of the first maxPages pages of a PDF,
// returning one string per sampled page.
type TextProber interface {
	ProbePages(ctx context.Context, path string, maxPages int) ([]string, error)
}

// PageCounter is implemented by probers that can also report how many pages
// a document has.
type PageCounter interface {
	PageCount(ctx context.Context, path string) (int, error)
}

// Classifier decides whether a document has an extractable text layer.
type Classifier struct {
	prober      TextProber
	samplePages int
	logger      *slog.Logger
}

// NewClassifier creates a Classifier that samples cfg.SamplePages pages.
func NewClassifier(prober TextProber, cfg PipelineConfig, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{prober: prober, samplePages: cfg.SamplePages, logger: logger}
}

// Classify never fails. A probe that errors or panics yields an
// indeterminate OCR verdict. When the prober can count pages, doc.PageCount
// is filled in as well.
func (c *Classifier) Classify(ctx context.Context, doc *models.Document) models.Verdict {
	logCtx := c.logger.With("documentId", doc.ID)

	if counter, ok := c.prober.(PageCounter); ok {
		if n, err := countPages(ctx, counter, doc.LocalPath); err != nil {
			logCtx.Warn("Could not count pages.", "error", err)
		} else {
			doc.PageCount = n
		}
	}

	pages, err := c.probe(ctx, doc.LocalPath)
	if err != nil {
		logCtx.Warn("Text probe failed, defaulting to OCR.", "error", err)
		return models.Verdict{Strategy: models.StrategyOCR, Confidence: 0, Indeterminate: true}
	}

	withText := 0
	for _, text := range pages {
		if strings.TrimSpace(text) != "" {
			withText++
		}
	}

	if withText == 0 {
		logCtx.Info("No text layer found.", "sampledPages", len(pages))
		return models.Verdict{Strategy: models.StrategyOCR, Confidence: 1, SampledPages: len(pages)}
	}

	verdict := models.Verdict{
		Strategy:     models.StrategyStructured,
		Confidence:   float64(withText) / float64(len(pages)),
		SampledPages: len(pages),
	}
	logCtx.Info("Text layer found.", "sampledPages", len(pages), "confidence", verdict.Confidence)
	return verdict
}

func (c *Classifier) probe(ctx context.Context, path string) (pages []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("text probe panicked: %v", r)
		}
	}()
	return c.prober.ProbePages(ctx, path, c.samplePages)
}

func countPages(ctx context.Context, counter PageCounter, path string) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			n, err = 0, fmt.Errorf("page count panicked: %v", r)
		}
	}()
	return counter.PageCount(ctx, path)
}
