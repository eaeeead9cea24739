package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/tableflow/internal/export"
	"github.com/Lllllllleong/tableflow/internal/gcp"
	"github.com/Lllllllleong/tableflow/internal/models"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// BatchExtractorConfig holds configuration for the batch extraction service.
type BatchExtractorConfig struct {
	ProjectID        string
	DatasetBucket    string
	CollectionName   string
	RunsCollection   string
	WorkflowID       string
	WorkflowLocation string
	OCREngine        string
}

// BatchExtractorFunction runs every PDF under a bucket prefix through the
// pipeline and publishes one master dataset.
type BatchExtractorFunction struct {
	storageClient *storage.Client
	workflow      *gcp.WorkflowTrigger
	orchestrator  *Orchestrator
	closeOCR      func() error
	config        BatchExtractorConfig
}

// NewBatchExtractor creates a new BatchExtractorFunction instance.
func NewBatchExtractor(ctx context.Context) (*BatchExtractorFunction, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}

	config := BatchExtractorConfig{
		ProjectID:        projectID,
		DatasetBucket:    gcp.GetEnv("DATASET_BUCKET", ""),
		CollectionName:   gcp.GetEnv("FIRESTORE_COLLECTION", "documents"),
		RunsCollection:   gcp.GetEnv("RUNS_COLLECTION", "runs"),
		WorkflowLocation: gcp.GetEnv("WORKFLOW_LOCATION", "us-central1"),
		WorkflowID:       gcp.GetEnv("WORKFLOW_ID", ""),
		OCREngine:        gcp.GetEnv("OCR_ENGINE", EngineTesseract),
	}
	if config.DatasetBucket == "" {
		return nil, fmt.Errorf("DATASET_BUCKET environment variable must be set")
	}

	pipelineConfig, err := LoadPipelineConfig(gcp.GetEnv("TABLEFLOW_CONFIG", ""))
	if err != nil {
		return nil, fmt.Errorf("failed to load pipeline config: %w", err)
	}

	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	firestoreClient, err := gcp.NewFirestoreClient(ctx, config.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	var workflow *gcp.WorkflowTrigger
	if config.WorkflowID != "" {
		workflow, err = gcp.NewWorkflowTrigger(ctx, config.ProjectID, config.WorkflowLocation, config.WorkflowID)
		if err != nil {
			return nil, err
		}
	}

	recognizer, closeOCR, err := NewRecognizer(ctx, config.OCREngine, pipelineConfig, slog.Default())
	if err != nil {
		return nil, err
	}
	caps := DefaultCapabilities(pipelineConfig, recognizer, slog.Default())
	caps.Tracker = gcp.NewFirestoreTracker(firestoreClient, config.CollectionName, config.RunsCollection)
	orchestrator, err := NewOrchestrator(pipelineConfig, caps, slog.Default())
	if err != nil {
		return nil, err
	}

	return &BatchExtractorFunction{
		storageClient: storageClient,
		workflow:      workflow,
		orchestrator:  orchestrator,
		closeOCR:      closeOCR,
		config:        config,
	}, nil
}

// Process handles the core logic of extracting a bucket prefix into a dataset.
func (f *BatchExtractorFunction) Process(ctx context.Context, req *models.BatchExtractRequest) (*models.BatchExtractResponse, error) {
	if req.Bucket == "" {
		return nil, fmt.Errorf("bucket must be provided")
	}
	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	logCtx := slog.With("runId", runID, "gcsBucket", req.Bucket, "prefix", req.Prefix)
	logCtx.Info("Starting batch extraction.")

	// --- 1. List the PDFs under the prefix, sorted for a stable discovery order ---
	objectNames, err := gcp.ListObjects(ctx, f.storageClient, req.Bucket, req.Prefix, ".pdf")
	if err != nil {
		logCtx.Error("Failed to list objects in source bucket", "error", err)
		return nil, err
	}
	if len(objectNames) == 0 {
		logCtx.Warn("No PDFs found under prefix.")
		return nil, ErrNoDocuments
	}
	logCtx.Info("Found and sorted files for extraction.", "fileCount", len(objectNames))

	// --- 2. Download them concurrently; a failed download fails only its document ---
	tempDir, err := os.MkdirTemp("", "batch-extractor-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	docs := f.download(ctx, logCtx, req.Bucket, objectNames, tempDir)

	// --- 3. Run the pipeline ---
	dataset, report, err := f.orchestrator.RunWithID(ctx, runID, docs)
	if err != nil {
		logCtx.Error("Pipeline run aborted", "error", err)
		return nil, err
	}

	// --- 4. Publish the dataset and report ---
	datasetURI, reportURI, err := f.publish(ctx, runID, dataset, report)
	if err != nil {
		logCtx.Error("Failed to publish dataset", "error", err)
		return nil, err
	}
	logCtx.Info("Batch extraction complete.", "datasetGcsUri", datasetURI, "extracted", report.Extracted, "failed", report.Failed)

	if f.workflow != nil {
		event := models.DatasetPublishedEvent{RunID: runID, DatasetGCSUri: datasetURI, Rows: dataset.Len()}
		if _, err := f.workflow.Trigger(ctx, event); err != nil {
			logCtx.Error("Failed to trigger workflow", "error", err)
			return nil, err
		}
	}

	return &models.BatchExtractResponse{
		Status:        "success",
		RunID:         runID,
		DatasetGCSUri: datasetURI,
		ReportGCSUri:  reportURI,
		Extracted:     report.Extracted,
		Failed:        report.Failed,
		Rows:          dataset.Len(),
	}, nil
}

func (f *BatchExtractorFunction) download(ctx context.Context, logCtx *slog.Logger, bucket string, objectNames []string, dir string) []*models.Document {
	docs := make([]*models.Document, len(objectNames))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(10)
	for i, name := range objectNames {
		doc := models.NewDocument(gcp.URI(bucket, name), filepath.Join(dir, fmt.Sprintf("%05d.pdf", i)), i)
		docs[i] = doc
		eg.Go(func() error {
			if err := gcp.DownloadObject(gctx, f.storageClient, bucket, name, doc.LocalPath); err != nil {
				logCtx.Warn("Download failed.", "gcsObject", name, "error", err)
				_ = doc.Fail(models.ReasonUnreadable, err.Error())
			}
			return nil
		})
	}
	_ = eg.Wait()
	return docs
}

func (f *BatchExtractorFunction) publish(ctx context.Context, runID string, dataset *models.MasterDataset, report *models.RunReport) (string, string, error) {
	bucket := f.storageClient.Bucket(f.config.DatasetBucket)

	data, err := export.EncodeCSV(dataset)
	if err != nil {
		return "", "", err
	}
	datasetObject := runID + "/dataset.csv"
	if err := gcp.SaveToGCSAtomically(ctx, bucket, datasetObject, data); err != nil {
		return "", "", err
	}

	reportData, err := export.EncodeReport(report)
	if err != nil {
		return "", "", err
	}
	reportObject := runID + "/report.json"
	if err := gcp.SaveToGCSAtomically(ctx, bucket, reportObject, reportData); err != nil {
		return "", "", err
	}

	return gcp.URI(f.config.DatasetBucket, datasetObject), gcp.URI(f.config.DatasetBucket, reportObject), nil
}

// Close releases the OCR engine.
func (f *BatchExtractorFunction) Close() error {
	return f.closeOCR()
}
