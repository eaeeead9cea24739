package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/Lllllllleong/tableflow/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeProber returns canned page text per document path.
type fakeProber struct {
	pages map[string][]string
	err   error
	panic bool
}

func (f *fakeProber) ProbePages(_ context.Context, path string, maxPages int) ([]string, error) {
	if f.panic {
		panic("corrupt xref table")
	}
	if f.err != nil {
		return nil, f.err
	}
	pages := f.pages[filepath.Base(path)]
	if len(pages) > maxPages {
		pages = pages[:maxPages]
	}
	return pages, nil
}

// PageCount reports every canned page of the document.
func (f *fakeProber) PageCount(_ context.Context, path string) (int, error) {
	if f.panic {
		panic("corrupt xref table")
	}
	if f.err != nil {
		return 0, f.err
	}
	return len(f.pages[filepath.Base(path)]), nil
}

// fakeStructured returns canned tables per document path and counts calls.
type fakeStructured struct {
	mu     sync.Mutex
	calls  int
	tables map[string][]models.RawTable
	errs   map[string]error
	panics map[string]bool
}

func (f *fakeStructured) ExtractTables(_ context.Context, path string, _ models.PageRange) ([]models.RawTable, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	name := filepath.Base(path)
	if f.panics[name] {
		panic("malformed content stream")
	}
	if err := f.errs[name]; err != nil {
		return nil, err
	}
	return f.tables[name], nil
}

func (f *fakeStructured) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeRasterizer returns one empty image per page in range.
type fakeRasterizer struct {
	mu    sync.Mutex
	calls int
	pages int
	err   error
}

func (f *fakeRasterizer) RasterizePages(_ context.Context, _ string, pages models.PageRange) ([]models.PageImage, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var images []models.PageImage
	for p := pages.First; p <= min(pages.Last, f.pages); p++ {
		images = append(images, models.PageImage{Page: p, Format: "png"})
	}
	return images, nil
}

func (f *fakeRasterizer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeRecognizer returns canned text per page number.
type fakeRecognizer struct {
	text map[int]string
	errs map[int]error
}

func (f *fakeRecognizer) Recognize(_ context.Context, img models.PageImage) (string, error) {
	if err := f.errs[img.Page]; err != nil {
		return "", err
	}
	return f.text[img.Page], nil
}

// recordingTracker keeps every status it is handed.
type recordingTracker struct {
	mu       sync.Mutex
	statuses map[string][]models.Status
	runs     []*models.RunReport
	err      error
}

func (t *recordingTracker) RecordDocument(_ context.Context, doc *models.Document) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.statuses == nil {
		t.statuses = make(map[string][]models.Status)
	}
	t.statuses[doc.ID] = append(t.statuses[doc.ID], doc.Status)
	return t.err
}

func (t *recordingTracker) RecordRun(_ context.Context, report *models.RunReport) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.runs = append(t.runs, report)
	return t.err
}

var errBoom = errors.New("boom")

// writePDF creates a minimal file that passes the local acquisition check.
func writePDF(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("%PDF-1.7\n%%EOF\n"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
