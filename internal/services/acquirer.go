package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Lllllllleong/tableflow/internal/models"
)

// Acquirer makes sure a document's local content is usable before it is
// classified.
type Acquirer interface {
	Acquire(ctx context.Context, doc *models.Document) error
}

var pdfMagic = []byte("%PDF-")

// LocalAcquirer checks that a document is a readable, non-empty PDF on local
// disk and records its sha256 hash.
type LocalAcquirer struct{}

// Acquire returns an *AcquisitionError when the file is missing, empty or not
// a PDF.
func (LocalAcquirer) Acquire(ctx context.Context, doc *models.Document) error {
	if err := ctx.Err(); err != nil {
		return &AcquisitionError{DocumentID: doc.ID, Reason: models.ReasonCanceled, Err: err}
	}
	if doc.LocalPath == "" {
		return &AcquisitionError{DocumentID: doc.ID, Reason: models.ReasonUnreadable, Err: errors.New("document has no local content")}
	}

	f, err := os.Open(doc.LocalPath)
	if err != nil {
		return &AcquisitionError{DocumentID: doc.ID, Reason: models.ReasonUnreadable, Err: err}
	}
	defer f.Close()

	header := make([]byte, len(pdfMagic))
	n, err := io.ReadFull(f, header)
	switch {
	case n == 0:
		return &AcquisitionError{DocumentID: doc.ID, Reason: models.ReasonUnreadable, Err: fmt.Errorf("%s is empty", doc.LocalPath)}
	case err != nil && !errors.Is(err, io.ErrUnexpectedEOF):
		return &AcquisitionError{DocumentID: doc.ID, Reason: models.ReasonUnreadable, Err: err}
	case !bytes.Equal(header[:n], pdfMagic):
		return &AcquisitionError{DocumentID: doc.ID, Reason: models.ReasonUnsupportedFormat, Err: fmt.Errorf("%s does not start with a PDF header", doc.LocalPath)}
	}

	hash := sha256.New()
	hash.Write(header)
	if _, err := io.Copy(hash, f); err != nil {
		return &AcquisitionError{DocumentID: doc.ID, Reason: models.ReasonUnreadable, Err: fmt.Errorf("failed to hash file: %w", err)}
	}
	doc.FileHash = hex.EncodeToString(hash.Sum(nil))
	return nil
}
