//go:build !ocr

package ocr

import (
	"context"

	"github.com/Lllllllleong/tableflow/internal/models"
)

// Enabled reports whether Tesseract support is compiled in.
const Enabled = false

// Recognize always returns ErrOCRNotEnabled.
func (t *Tesseract) Recognize(context.Context, models.PageImage) (string, error) {
	return "", ErrOCRNotEnabled
}
