package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"time"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/tableflow/internal/catalog"
	"github.com/Lllllllleong/tableflow/internal/export"
	"github.com/Lllllllleong/tableflow/internal/gcp"
	"github.com/Lllllllleong/tableflow/internal/logging"
	"github.com/Lllllllleong/tableflow/internal/models"
	"github.com/Lllllllleong/tableflow/internal/services"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var runFlags struct {
	dir            string
	catalogURL     string
	cacheDir       string
	out            string
	report         string
	perDocumentDir string
	gcsBucket      string
	gcsPrefix      string
	ocrEngine      string
	runID          string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the extraction pipeline over a directory or a catalog page",
	Args:  cobra.NoArgs,
	RunE:  runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runFlags.dir, "dir", "", "Directory of PDFs to process")
	f.StringVar(&runFlags.catalogURL, "catalog", "", "Catalog page URL whose PDF links are downloaded and processed")
	f.StringVar(&runFlags.cacheDir, "cache-dir", "downloads", "Download cache for --catalog")
	f.StringVarP(&runFlags.out, "out", "o", "dataset.csv", "Master dataset CSV path")
	f.StringVar(&runFlags.report, "report", "report.json", "Run report JSON path")
	f.StringVar(&runFlags.perDocumentDir, "per-document-dir", "", "Also write one CSV per document into this directory")
	f.StringVar(&runFlags.gcsBucket, "gcs-bucket", "", "Upload the outputs to this GCS bucket")
	f.StringVar(&runFlags.gcsPrefix, "gcs-prefix", "runs", "Object prefix for uploads; the run ID is appended")
	f.StringVar(&runFlags.ocrEngine, "ocr-engine", gcp.GetEnv("OCR_ENGINE", services.EngineTesseract), "OCR engine: tesseract or vertex")
	f.StringVar(&runFlags.runID, "run-id", "", "Run ID (default: random UUID)")

	runCmd.MarkFlagsMutuallyExclusive("dir", "catalog")
	runCmd.MarkFlagsOneRequired("dir", "catalog")
}

func runRun(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	log := logging.New("run")

	cfg, err := services.LoadPipelineConfig(rootFlags.configPath)
	if err != nil {
		return err
	}

	docs, err := loadDocuments(ctx, log)
	if err != nil {
		return err
	}

	recognizer, closeOCR, err := services.NewRecognizer(ctx, runFlags.ocrEngine, cfg, logging.New("ocr"))
	if err != nil {
		return err
	}
	defer closeOCR()

	orchestrator, err := services.NewOrchestrator(cfg, services.DefaultCapabilities(cfg, recognizer, logging.New("pdf")), logging.New("pipeline"))
	if err != nil {
		return err
	}

	runID := runFlags.runID
	if runID == "" {
		runID = uuid.NewString()
	}
	dataset, report, runErr := orchestrator.RunWithID(ctx, runID, docs)
	if report != nil {
		if err := export.WriteReportFile(runFlags.report, report); err != nil {
			return errors.Join(runErr, err)
		}
	}
	if runErr != nil {
		return runErr
	}

	outputs := []string{runFlags.out, runFlags.report}
	if err := export.WriteCSVFile(runFlags.out, dataset); err != nil {
		return err
	}
	if runFlags.perDocumentDir != "" {
		paths, err := export.WritePerDocument(runFlags.perDocumentDir, dataset)
		if err != nil {
			return err
		}
		outputs = append(outputs, paths...)
	}

	if runFlags.gcsBucket != "" {
		if err := upload(ctx, runID, outputs); err != nil {
			return err
		}
	}

	printSummary(cmd, report)
	return nil
}

func loadDocuments(ctx context.Context, log *slog.Logger) ([]*models.Document, error) {
	if runFlags.dir != "" {
		docs, err := catalog.FromDir(runFlags.dir)
		if err != nil {
			return nil, err
		}
		log.Info("Loaded documents from directory.", "dir", runFlags.dir, "count", len(docs))
		return docs, nil
	}

	client := &http.Client{Timeout: 2 * time.Minute}
	urls, err := catalog.Discover(ctx, client, runFlags.catalogURL)
	if err != nil {
		return nil, err
	}
	log.Info("Discovered PDF links.", "catalog", runFlags.catalogURL, "count", len(urls))
	return catalog.NewFetcher(runFlags.cacheDir, client, logging.New("fetch")).Fetch(ctx, urls)
}

func upload(ctx context.Context, runID string, paths []string) error {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("failed to create storage client: %w", err)
	}
	defer client.Close()

	for _, p := range paths {
		object := path.Join(runFlags.gcsPrefix, runID, filepath.Base(p))
		if err := gcp.UploadFile(ctx, client, runFlags.gcsBucket, p, object); err != nil {
			return err
		}
		slog.Info("Uploaded output.", "gcsUri", gcp.URI(runFlags.gcsBucket, object))
	}
	return nil
}

func printSummary(cmd *cobra.Command, report *models.RunReport) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run:        %s\n", report.RunID)
	fmt.Fprintf(out, "Documents:  %d (extracted %d, failed %d)\n", report.Total, report.Extracted, report.Failed)
	fmt.Fprintf(out, "Strategies: structured %d, ocr %d, indeterminate %d\n", report.Structured, report.OCR, report.Indeterminate)
	fmt.Fprintf(out, "Tables:     %d extracted, %d emitted, %d discarded\n", report.TablesExtracted, report.TablesEmitted, report.TablesDiscarded)
	fmt.Fprintf(out, "Dataset:    %d rows x %d data columns -> %s\n", report.Rows, report.DataWidth, runFlags.out)
	for _, f := range report.Failures {
		fmt.Fprintf(out, "  FAILED %s [%s] %s\n", f.DocumentID, f.Reason, f.Detail)
	}
}
