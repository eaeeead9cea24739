// Package catalog finds and materializes the PDFs a run will process: links
// on a publication catalog page, downloads with a local cache, or a local
// directory.
package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// Discover fetches a catalog page and returns the absolute URLs of the PDFs
// it links to, in document order and without duplicates. It does not follow
// links to other pages.
func Discover(ctx context.Context, client *http.Client, pageURL string) ([]string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid catalog URL %q: %w", pageURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch catalog page: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch catalog page: %s", resp.Status)
	}

	return ExtractPDFLinks(resp.Body, base)
}

// ExtractPDFLinks parses HTML and returns every <a href> containing ".pdf"
// (case-insensitive), resolved against base.
func ExtractPDFLinks(r io.Reader, base *url.URL) ([]string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse catalog page: %w", err)
	}

	var links []string
	seen := make(map[string]bool)
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			if href := strings.TrimSpace(getAttr(n, "href")); strings.Contains(strings.ToLower(href), ".pdf") {
				if ref, err := url.Parse(href); err == nil {
					abs := base.ResolveReference(ref).String()
					if !seen[abs] {
						seen[abs] = true
						links = append(links, abs)
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return links, nil
}

// getAttr returns the value of an attribute on a node, or empty string if not found.
func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}
