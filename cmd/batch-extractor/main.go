package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/tableflow/internal/models"
	"github.com/Lllllllleong/tableflow/internal/services"
	"github.com/google/uuid"
)

// batchProcessor is the part of services.BatchExtractorFunction the handler uses.
type batchProcessor interface {
	Process(ctx context.Context, req *models.BatchExtractRequest) (*models.BatchExtractResponse, error)
}

var (
	extractorInstance batchProcessor
	once              sync.Once
	initErr           error

	newExtractor = func(ctx context.Context) (batchProcessor, error) {
		return services.NewBatchExtractor(ctx)
	}
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("service", "batch-extractor")
	slog.SetDefault(logger)

	functions.HTTP("HandleBatchExtract", handleBatchExtract)
}

func main() {}

// handleBatchExtract extracts every PDF under the requested bucket prefix
// into one master dataset. Malformed requests are rejected before any cloud
// client is created.
func handleBatchExtract(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed: use POST", http.StatusMethodNotAllowed)
		return
	}

	var req models.BatchExtractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Rejected batch request with malformed JSON.", "error", err)
		http.Error(w, "Bad Request: could not parse JSON", http.StatusBadRequest)
		return
	}
	if req.Bucket == "" {
		slog.Warn("Rejected batch request without a source bucket.", "prefix", req.Prefix)
		http.Error(w, "Bad Request: bucket is required", http.StatusBadRequest)
		return
	}
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	logCtx := slog.With("runId", req.RunID, "gcsBucket", req.Bucket, "prefix", req.Prefix)

	once.Do(func() {
		extractorInstance, initErr = newExtractor(context.Background())
	})
	if initErr != nil {
		logCtx.Error("Critical: Batch extractor initialization failed.", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	res, err := extractorInstance.Process(r.Context(), &req)
	if err != nil {
		if errors.Is(err, services.ErrNoDocuments) {
			logCtx.Warn("Batch request matched no PDFs.")
			http.Error(w, "Not Found: no PDFs under prefix", http.StatusNotFound)
			return
		}
		// Process logs the failure with its own context.
		http.Error(w, "Internal Server Error: extraction run failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		logCtx.Error("Failed to write batch response.",
			"error", err,
			"datasetGcsUri", res.DatasetGCSUri,
			"documentsExtracted", res.Extracted,
			"documentsFailed", res.Failed,
		)
	}
}
