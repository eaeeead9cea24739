package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/Lllllllleong/tableflow/internal/models"
	"golang.org/x/sync/errgroup"
)

// Fetcher downloads PDFs into a cache directory. A non-empty file already in
// the cache is reused without a request.
type Fetcher struct {
	Client      *http.Client
	Dir         string
	Concurrency int
	logger      *slog.Logger
}

// NewFetcher creates a Fetcher that caches into dir.
func NewFetcher(dir string, client *http.Client, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{Client: client, Dir: dir, Concurrency: 4, logger: logger}
}

// Fetch materializes every URL and returns one document per URL in input
// order. A URL that cannot be downloaded yields a FAILED document rather than
// an error, so one bad link never stops the batch. A URL whose file name is
// already taken by an earlier URL is cached under a qualified name.
func (f *Fetcher) Fetch(ctx context.Context, urls []string) ([]*models.Document, error) {
	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create download dir: %w", err)
	}

	docs := make([]*models.Document, 0, len(urls))
	seen := make(map[string]bool)
	for _, u := range urls {
		name := LocalName(u)
		if seen[strings.ToLower(name)] {
			unique := qualifiedName(name, u)
			f.logger.Warn("File name already used by another URL, caching under a qualified name.", "url", u, "fileName", name, "cacheName", unique)
			name = unique
		}
		seen[strings.ToLower(name)] = true
		docs = append(docs, models.NewDocument(u, filepath.Join(f.Dir, name), len(docs)))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(f.Concurrency, 1))
	for _, doc := range docs {
		g.Go(func() error {
			logCtx := f.logger.With("documentId", doc.ID, "url", doc.SourceURI)
			hit, err := f.download(gctx, doc.SourceURI, doc.LocalPath)
			if err != nil {
				logCtx.Warn("Download failed.", "error", err)
				_ = doc.Fail(models.ReasonUnreadable, err.Error())
				return nil
			}
			if hit {
				logCtx.Info("Using cached file.", "path", doc.LocalPath)
			} else {
				logCtx.Info("Downloaded file.", "path", doc.LocalPath)
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}

// download fetches rawURL into dest unless dest already holds data. The body
// goes to a temporary file first so an interrupted download never looks like
// a cache hit.
func (f *Fetcher) download(ctx context.Context, rawURL, dest string) (cached bool, err error) {
	if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
		return true, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return false, err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("unexpected status %s", resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return false, err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return false, fmt.Errorf("failed to read body: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return false, err
	}
	return false, os.Rename(tmp.Name(), dest)
}

// qualifiedName inserts a short hash of rawURL before the extension of name.
func qualifiedName(name, rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + "_" + hex.EncodeToString(sum[:4]) + ext
}

// LocalName is the cache file name for a URL: its last path segment with
// encoded spaces replaced by underscores.
func LocalName(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		p = u.EscapedPath()
	}
	base := path.Base(p)
	if base == "." || base == "/" {
		return "document.pdf"
	}
	name := strings.ReplaceAll(base, "%20", "_")
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	return strings.NewReplacer("/", "_", "\\", "_").Replace(name)
}
