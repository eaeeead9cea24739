package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Lllllllleong/tableflow/internal/models"
)

// FromDir returns a PENDING document for every .pdf file in dir, ordered by
// file name.
func FromDir(dir string) ([]*models.Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	docs := make([]*models.Document, len(names))
	for i, name := range names {
		docs[i] = models.NewDocument(name, filepath.Join(dir, name), i)
	}
	return docs, nil
}
