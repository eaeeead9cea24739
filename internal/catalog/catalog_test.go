package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/Lllllllleong/tableflow/internal/models"
	"github.com/google/go-cmp/cmp"
)

const catalogPage = `<html><body>
<h1>Publications</h1>
<ul>
  <li><a href="/files/Annual%20Report%202020.pdf">Annual report</a></li>
  <li><a href="docs/census.PDF">Census</a></li>
  <li><a href="https://cdn.example.org/yearbook.pdf?v=2">Yearbook</a></li>
  <li><a href="/about.html">About</a></li>
  <li><a href="/files/Annual%20Report%202020.pdf">Annual report (again)</a></li>
  <li><a>No link</a></li>
</ul>
</body></html>`

func TestExtractPDFLinks(t *testing.T) {
	base, _ := url.Parse("https://stats.example.gov/publications/index.html")
	got, err := ExtractPDFLinks(strings.NewReader(catalogPage), base)
	if err != nil {
		t.Fatalf("ExtractPDFLinks() error = %v", err)
	}
	want := []string{
		"https://stats.example.gov/files/Annual%20Report%202020.pdf",
		"https://stats.example.gov/publications/docs/census.PDF",
		"https://cdn.example.org/yearbook.pdf?v=2",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ExtractPDFLinks() mismatch (-want +got):\n%s", diff)
	}
}

func TestDiscover(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/publications" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(catalogPage))
	}))
	defer srv.Close()

	got, err := Discover(context.Background(), srv.Client(), srv.URL+"/publications")
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(got) != 3 || got[0] != srv.URL+"/files/Annual%20Report%202020.pdf" {
		t.Errorf("Discover() = %v", got)
	}

	if _, err := Discover(context.Background(), srv.Client(), srv.URL+"/missing"); err == nil {
		t.Error("Discover() accepted a 404 catalog page")
	}
}

func TestLocalName(t *testing.T) {
	tests := map[string]string{
		"https://example.org/files/Annual%20Report%202020.pdf": "Annual_Report_2020.pdf",
		"https://example.org/yearbook.pdf?v=2":                 "yearbook.pdf",
		"census.pdf":                                           "census.pdf",
		"https://example.org/":                                 "document.pdf",
	}
	for in, want := range tests {
		if got := LocalName(in); got != want {
			t.Errorf("LocalName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFetchCachesAndIsolatesFailures(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		switch r.URL.Path {
		case "/ok.pdf", "/cached.pdf", "/other/ok.pdf":
			w.Write([]byte("%PDF-1.7 body"))
		default:
			http.Error(w, "gone", http.StatusNotFound)
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "cached.pdf"), []byte("%PDF-1.7 cached"), 0o644); err != nil {
		t.Fatal(err)
	}

	f := NewFetcher(dir, srv.Client(), nil)
	docs, err := f.Fetch(context.Background(), []string{
		srv.URL + "/ok.pdf",
		srv.URL + "/missing.pdf",
		srv.URL + "/cached.pdf",
		srv.URL + "/other/ok.pdf",
	})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if len(docs) != 4 {
		t.Fatalf("Fetch() returned %d documents, want one per URL", len(docs))
	}
	var statuses []models.Status
	for i, doc := range docs {
		if doc.Ordinal != i {
			t.Errorf("doc %s ordinal = %d, want %d", doc.ID, doc.Ordinal, i)
		}
		statuses = append(statuses, doc.Status)
	}
	want := []models.Status{models.StatusPending, models.StatusFailed, models.StatusPending, models.StatusPending}
	if diff := cmp.Diff(want, statuses); diff != "" {
		t.Errorf("statuses mismatch (-want +got):\n%s", diff)
	}
	if docs[1].FailureReason != models.ReasonUnreadable {
		t.Errorf("failed download reason = %s, want unreadable", docs[1].FailureReason)
	}

	cached, err := os.ReadFile(docs[2].LocalPath)
	if err != nil || string(cached) != "%PDF-1.7 cached" {
		t.Errorf("cached file was replaced: %q, %v", cached, err)
	}
	if n := requests.Load(); n != 3 {
		t.Errorf("server saw %d requests, want 3 (cache hit skips the request)", n)
	}

	if docs[0].LocalPath == docs[3].LocalPath {
		t.Errorf("URLs with the same file name share cache path %s", docs[0].LocalPath)
	}
	if docs[0].ID == docs[3].ID {
		t.Errorf("URLs with the same file name share document ID %s", docs[0].ID)
	}
	if _, err := os.Stat(docs[3].LocalPath); err != nil {
		t.Errorf("second ok.pdf was not cached: %v", err)
	}
}

func TestFromDir(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.pdf", "a.PDF", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("%PDF-"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.pdf"), 0o755); err != nil {
		t.Fatal(err)
	}

	docs, err := FromDir(dir)
	if err != nil {
		t.Fatalf("FromDir() error = %v", err)
	}
	var sources []string
	for _, d := range docs {
		sources = append(sources, d.SourceURI)
	}
	if diff := cmp.Diff([]string{"a.PDF", "b.pdf"}, sources); diff != "" {
		t.Errorf("FromDir() sources mismatch (-want +got):\n%s", diff)
	}
}

func TestFromDirGivesSimilarNamesDistinctIDs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"Report 2020.pdf", "report-2020.pdf", "REPORT_2020.pdf"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("%PDF-"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	docs, err := FromDir(dir)
	if err != nil {
		t.Fatalf("FromDir() error = %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("FromDir() returned %d documents, want 3", len(docs))
	}
	seen := make(map[string]string)
	for _, d := range docs {
		if prev, dup := seen[d.ID]; dup {
			t.Errorf("files %q and %q share document ID %q", prev, d.SourceURI, d.ID)
		}
		seen[d.ID] = d.SourceURI
		if !strings.HasPrefix(d.ID, "report_2020_") {
			t.Errorf("document ID %q lost its readable prefix", d.ID)
		}
	}
}
