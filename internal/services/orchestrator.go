package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Lllllllleong/tableflow/internal/models"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// StatusTracker persists document transitions and finished run reports.
type StatusTracker interface {
	RecordDocument(ctx context.Context, doc *models.Document) error
	RecordRun(ctx context.Context, report *models.RunReport) error
}

type noopTracker struct{}

func (noopTracker) RecordDocument(context.Context, *models.Document) error { return nil }
func (noopTracker) RecordRun(context.Context, *models.RunReport) error     { return nil }

// Capabilities are the external collaborators the pipeline calls into.
// Acquirer and Tracker are optional.
type Capabilities struct {
	Prober     TextProber
	Structured StructuredExtractor
	Rasterizer PageRasterizer
	Recognizer Recognizer
	Acquirer   Acquirer
	Tracker    StatusTracker
}

// Orchestrator drives a batch of documents through acquisition,
// classification, extraction and normalization, then aggregates the result.
type Orchestrator struct {
	cfg        PipelineConfig
	acquirer   Acquirer
	tracker    StatusTracker
	classifier *Classifier
	router     *Router
	normalizer *Normalizer
	aggregator *Aggregator
	logger     *slog.Logger
}

// NewOrchestrator validates cfg and assembles the pipeline components.
func NewOrchestrator(cfg PipelineConfig, caps Capabilities, logger *slog.Logger) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if caps.Prober == nil || caps.Structured == nil || caps.Rasterizer == nil || caps.Recognizer == nil {
		return nil, fmt.Errorf("prober, structured extractor, rasterizer and recognizer are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if caps.Acquirer == nil {
		caps.Acquirer = LocalAcquirer{}
	}
	if caps.Tracker == nil {
		caps.Tracker = noopTracker{}
	}
	return &Orchestrator{
		cfg:        cfg,
		acquirer:   caps.Acquirer,
		tracker:    caps.Tracker,
		classifier: NewClassifier(caps.Prober, cfg, logger),
		router:     NewRouter(caps.Structured, caps.Rasterizer, caps.Recognizer, cfg, logger),
		normalizer: NewNormalizer(cfg),
		aggregator: NewAggregator(cfg, logger),
		logger:     logger,
	}, nil
}

type docResult struct {
	stage     models.Status
	extracted int
	tables    []*models.NormalizedTable
}

// Run processes docs under a fresh run ID. See RunWithID.
func (o *Orchestrator) Run(ctx context.Context, docs []*models.Document) (*models.MasterDataset, *models.RunReport, error) {
	return o.RunWithID(ctx, uuid.NewString(), docs)
}

// RunWithID processes docs on a bounded worker pool. A document failure is
// recorded in the report and never stops the others. The error is non-nil
// only for an empty batch, a repeated document ID, a document that is
// neither PENDING nor FAILED, a worker crash, or cancellation of ctx. In the
// last two cases the report covers what finished but no dataset is returned.
func (o *Orchestrator) RunWithID(ctx context.Context, runID string, docs []*models.Document) (*models.MasterDataset, *models.RunReport, error) {
	if len(docs) == 0 {
		return nil, nil, ErrNoDocuments
	}
	ids := make(map[string]bool, len(docs))
	for _, doc := range docs {
		if ids[doc.ID] {
			return nil, nil, fmt.Errorf("document ID %s appears more than once in the batch", doc.ID)
		}
		ids[doc.ID] = true
		if doc.Status == "" {
			doc.Status = models.StatusPending
		}
		if doc.Status != models.StatusPending && doc.Status != models.StatusFailed {
			return nil, nil, fmt.Errorf("document %s has status %s, want %s", doc.ID, doc.Status, models.StatusPending)
		}
	}

	logCtx := o.logger.With("runId", runID)
	report := &models.RunReport{RunID: runID, StartedAt: time.Now().UTC()}
	logCtx.Info("Starting run.", "documentCount", len(docs), "concurrency", o.cfg.Concurrency)

	results := make([]docResult, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Concurrency)
	for i, doc := range docs {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("worker for document %s panicked: %v", doc.ID, r)
				}
			}()
			results[i] = o.process(gctx, runID, doc)
			return nil
		})
	}
	poolErr := g.Wait()

	var tables []*models.NormalizedTable
	for i, doc := range docs {
		report.Record(doc, results[i].stage)
		report.TablesExtracted += results[i].extracted
		report.TablesEmitted += len(results[i].tables)
		report.TablesDiscarded += results[i].extracted - len(results[i].tables)
		tables = append(tables, results[i].tables...)
	}

	var runErr error
	switch {
	case poolErr != nil:
		runErr = fmt.Errorf("run %s aborted: %w", runID, poolErr)
	case ctx.Err() != nil:
		runErr = fmt.Errorf("run %s canceled: %w", runID, ctx.Err())
	}
	if runErr != nil {
		report.FinishedAt = time.Now().UTC()
		logCtx.Error("Run did not complete, discarding dataset.", "error", runErr)
		o.recordRun(context.WithoutCancel(ctx), logCtx, report)
		return nil, report, runErr
	}

	dataset := o.aggregator.Aggregate(tables)
	report.Rows = dataset.Len()
	report.DataWidth = dataset.DataWidth
	report.FinishedAt = time.Now().UTC()
	o.recordRun(ctx, logCtx, report)

	logCtx.Info("Run complete.",
		"extracted", report.Extracted,
		"failed", report.Failed,
		"tablesEmitted", report.TablesEmitted,
		"rows", report.Rows,
	)
	return dataset, report, nil
}

// process moves one document as far along the pipeline as it can go. It only
// touches doc and its own result.
func (o *Orchestrator) process(ctx context.Context, runID string, doc *models.Document) docResult {
	logCtx := o.logger.With("documentId", doc.ID, "runId", runID)
	doc.RunID = runID
	res := docResult{stage: models.StatusPending}

	if doc.Status == models.StatusFailed {
		logCtx.Warn("Document failed before the run, recording as-is.", "reason", doc.FailureReason)
		o.track(ctx, logCtx, doc)
		return res
	}

	fail := func(err error) docResult {
		reason := reasonOf(err)
		if ctx.Err() != nil {
			reason = models.ReasonCanceled
		}
		if ferr := doc.Fail(reason, err.Error()); ferr != nil {
			logCtx.Error("Failed to mark document as failed.", "error", ferr)
		}
		logCtx.Warn("Document failed.", "stage", res.stage, "reason", reason, "error", err)
		o.track(ctx, logCtx, doc)
		return res
	}
	advance := func(to models.Status) error {
		if err := doc.Advance(to); err != nil {
			return err
		}
		res.stage = to
		o.track(ctx, logCtx, doc)
		return nil
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	if err := o.acquirer.Acquire(ctx, doc); err != nil {
		return fail(err)
	}
	if err := advance(models.StatusAcquired); err != nil {
		return fail(err)
	}

	verdict := o.classifier.Classify(ctx, doc)
	doc.Verdict = &verdict
	if err := advance(models.StatusClassified); err != nil {
		return fail(err)
	}

	raw, err := o.router.Extract(ctx, doc, verdict)
	if err != nil {
		return fail(err)
	}

	res.extracted = len(raw)
	for _, t := range raw {
		prov := models.Provenance{
			SourceDocumentID: doc.ID,
			TableIndex:       t.TableIndex,
			ExtractionMethod: verdict.Strategy,
			DocumentOrdinal:  doc.Ordinal,
		}
		if nt := o.normalizer.Normalize(t, prov); nt != nil {
			res.tables = append(res.tables, nt)
		}
	}
	if discarded := res.extracted - len(res.tables); discarded > 0 {
		logCtx.Info("Discarded tables left empty by normalization.", "discarded", discarded)
	}

	if err := advance(models.StatusExtracted); err != nil {
		res.tables = nil
		return fail(err)
	}
	return res
}

// track persists a transition. A tracker failure never changes the outcome of
// the document.
func (o *Orchestrator) track(ctx context.Context, logCtx *slog.Logger, doc *models.Document) {
	if err := o.tracker.RecordDocument(ctx, doc); err != nil {
		logCtx.Error("CRITICAL: Failed to record document status.", "status", doc.Status, "error", err)
	}
}

func (o *Orchestrator) recordRun(ctx context.Context, logCtx *slog.Logger, report *models.RunReport) {
	if err := o.tracker.RecordRun(ctx, report); err != nil {
		logCtx.Error("CRITICAL: Failed to record run report.", "error", err)
	}
}
