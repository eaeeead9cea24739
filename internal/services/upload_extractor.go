package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/tableflow/internal/export"
	"github.com/Lllllllleong/tableflow/internal/gcp"
	"github.com/Lllllllleong/tableflow/internal/models"
)

// UploadExtractorConfig holds configuration for the upload-triggered
// extraction service.
type UploadExtractorConfig struct {
	ProjectID        string
	DatasetBucket    string
	CollectionName   string
	RunsCollection   string
	WorkflowID       string
	WorkflowLocation string
	OCREngine        string
}

// UploadExtractorFunction extracts the tables of a single PDF as soon as it
// lands in a bucket.
type UploadExtractorFunction struct {
	storageClient *storage.Client
	tracker       *gcp.FirestoreTracker
	workflow      *gcp.WorkflowTrigger
	orchestrator  *Orchestrator
	closeOCR      func() error
	config        UploadExtractorConfig
}

// GCSEvent is the payload of a storage object finalized CloudEvent.
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// NewUploadExtractor creates a new UploadExtractorFunction instance.
func NewUploadExtractor(ctx context.Context) (*UploadExtractorFunction, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}

	config := UploadExtractorConfig{
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

	firestoreClient, err := gcp.NewFirestoreClient(ctx, config.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
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
	tracker := gcp.NewFirestoreTracker(firestoreClient, config.CollectionName, config.RunsCollection)
	caps := DefaultCapabilities(pipelineConfig, recognizer, slog.Default())
	caps.Tracker = tracker
	orchestrator, err := NewOrchestrator(pipelineConfig, caps, slog.Default())
	if err != nil {
		return nil, err
	}

	f := &UploadExtractorFunction{
		storageClient: storageClient,
		tracker:       tracker,
		workflow:      workflow,
		orchestrator:  orchestrator,
		closeOCR:      closeOCR,
		config:        config,
	}
	slog.Info("Upload extractor initialized.", "ocrEngine", config.OCREngine, "workflowId", config.WorkflowID)
	return f, nil
}

// Process downloads the uploaded PDF, runs it through the pipeline and saves
// its tables as CSV. A document the pipeline rejects is recorded in Firestore
// and is not an invocation failure.
func (f *UploadExtractorFunction) Process(ctx context.Context, e GCSEvent) error {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)
	if !strings.EqualFold(path.Ext(e.Name), ".pdf") {
		logCtx.Info("Object is not a PDF. Skipping.")
		return nil
	}
	logCtx.Info("Processing new GCS object.")

	tempDir, err := os.MkdirTemp("", "upload-extractor-*")
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	localPath := filepath.Join(tempDir, "source.pdf")
	doc := models.NewDocument(gcp.URI(e.Bucket, e.Name), localPath, 0)
	logCtx = logCtx.With("documentId", doc.ID)

	if err := gcp.DownloadObject(ctx, f.storageClient, e.Bucket, e.Name, localPath); err != nil {
		logCtx.Error("Failed to download source PDF", "error", err)
		return err
	}

	fileHash, err := calculateFileHash(localPath)
	if err != nil {
		logCtx.Error("Failed to calculate file hash", "error", err)
		return fmt.Errorf("failed to calculate file hash: %w", err)
	}
	logCtx = logCtx.With("fileHash", fileHash)

	existingID, isDuplicate, err := f.tracker.FindByHash(ctx, fileHash)
	if err != nil {
		logCtx.Error("Failed to check for duplicate", "error", err)
		return err
	}
	if isDuplicate {
		logCtx.Info("Duplicate file detected. Skipping.", "existingDocId", existingID)
		return nil
	}

	dataset, report, err := f.orchestrator.Run(ctx, []*models.Document{doc})
	if err != nil {
		return f.handleError(ctx, logCtx, doc.ID, "pipeline run aborted", err)
	}
	logCtx = logCtx.With("runId", report.RunID)
	if doc.Status != models.StatusExtracted {
		logCtx.Warn("Document was not extracted.", "reason", doc.FailureReason, "details", doc.ErrorDetails)
		return nil
	}

	data, err := export.EncodeCSV(dataset)
	if err != nil {
		return f.handleError(ctx, logCtx, doc.ID, "failed to encode dataset", err)
	}
	objectName := uploadObjectName(doc.ID, fileHash)
	if err := gcp.SaveToGCSAtomically(ctx, f.storageClient.Bucket(f.config.DatasetBucket), objectName, data); err != nil {
		return f.handleError(ctx, logCtx, doc.ID, "failed to save dataset", err)
	}
	datasetURI := gcp.URI(f.config.DatasetBucket, objectName)
	logCtx.Info("Dataset saved.", "datasetGcsUri", datasetURI, "rows", dataset.Len())

	if f.workflow != nil {
		event := models.DatasetPublishedEvent{
			RunID:         report.RunID,
			DocumentID:    doc.ID,
			DatasetGCSUri: datasetURI,
			Rows:          dataset.Len(),
		}
		if _, err := f.workflow.Trigger(ctx, event); err != nil {
			return f.handleError(ctx, logCtx, doc.ID, "failed to trigger workflow execution", err)
		}
		logCtx.Info("Hand-off to workflow complete.")
	}
	return nil
}

func (f *UploadExtractorFunction) handleError(ctx context.Context, logCtx *slog.Logger, documentID, message string, originalErr error) error {
	fullError := fmt.Sprintf("%s: %v", message, originalErr)
	logCtx.Error(message, "error", originalErr)
	if err := f.tracker.MarkFailed(ctx, documentID, models.ReasonExtractorError, fullError); err != nil {
		logCtx.Error("CRITICAL: Failed to update Firestore status to FAILED after a processing error.", "updateError", err)
	}
	return fmt.Errorf("%s: %w", message, originalErr)
}

// Close releases the OCR engine.
func (f *UploadExtractorFunction) Close() error {
	return f.closeOCR()
}

// uploadObjectName keys the published CSV by document and content, so an
// existing object only ever holds the tables of identical bytes.
func uploadObjectName(documentID, fileHash string) string {
	return path.Join(documentID, fileHash[:min(12, len(fileHash))], export.PerDocumentName(documentID))
}

func calculateFileHash(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()
	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
