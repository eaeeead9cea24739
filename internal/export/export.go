// Package export writes run output: the master dataset as CSV, per-document
// CSV files and the run report as JSON.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Lllllllleong/tableflow/internal/models"
)

// WriteCSV writes the dataset with a header row.
func WriteCSV(w io.Writer, ds *models.MasterDataset) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ds.Columns); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	if err := cw.WriteAll(ds.Rows); err != nil {
		return fmt.Errorf("failed to write CSV rows: %w", err)
	}
	return nil
}

// EncodeCSV renders the dataset as CSV bytes.
func EncodeCSV(ds *models.MasterDataset) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, ds); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteCSVFile writes the dataset to path, creating parent directories.
func WriteCSVFile(path string, ds *models.MasterDataset) error {
	data, err := EncodeCSV(ds)
	if err != nil {
		return err
	}
	return writeFile(path, data)
}

// WriteReport writes the run report as indented JSON.
func WriteReport(w io.Writer, report *models.RunReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to encode run report: %w", err)
	}
	return nil
}

// EncodeReport renders the run report as indented JSON bytes.
func EncodeReport(report *models.RunReport) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteReport(&buf, report); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteReportFile writes the run report to path, creating parent directories.
func WriteReportFile(path string, report *models.RunReport) error {
	data, err := EncodeReport(report)
	if err != nil {
		return err
	}
	return writeFile(path, data)
}

// SplitByDocument partitions the dataset into one dataset per source
// document, in first-seen order. Each keeps the full column set.
func SplitByDocument(ds *models.MasterDataset) ([]string, map[string]*models.MasterDataset) {
	idCol := ds.DataWidth
	var order []string
	parts := make(map[string]*models.MasterDataset)
	for _, row := range ds.Rows {
		id := row[idCol]
		part, ok := parts[id]
		if !ok {
			part = &models.MasterDataset{Columns: ds.Columns, DataWidth: ds.DataWidth}
			parts[id] = part
			order = append(order, id)
		}
		part.Rows = append(part.Rows, row)
	}
	return order, parts
}

// WritePerDocument writes <documentID>_tables.csv for every document with
// rows and returns the written paths.
func WritePerDocument(dir string, ds *models.MasterDataset) ([]string, error) {
	order, parts := SplitByDocument(ds)
	paths := make([]string, 0, len(order))
	for _, id := range order {
		path := filepath.Join(dir, PerDocumentName(id))
		if err := WriteCSVFile(path, parts[id]); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// PerDocumentName is the file name of a document's table export.
func PerDocumentName(documentID string) string {
	return documentID + "_tables.csv"
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
