//go:build ocr

package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/Lllllllleong/tableflow/internal/models"
	"github.com/otiai10/gosseract/v2"
)

// Enabled reports whether Tesseract support is compiled in.
const Enabled = true

// Recognize runs Tesseract over one page image.
func (t *Tesseract) Recognize(ctx context.Context, img models.PageImage) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(t.Languages...); err != nil {
		return "", fmt.Errorf("failed to set languages %v: %w", t.Languages, err)
	}
	// Treat the page as one block so table rows stay on their own lines.
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_BLOCK); err != nil {
		return "", fmt.Errorf("failed to set page segmentation mode: %w", err)
	}
	if err := client.SetImageFromBytes(img.Data); err != nil {
		return "", fmt.Errorf("failed to set image for page %d: %w", img.Page, err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("OCR failed on page %d: %w", img.Page, err)
	}
	return strings.TrimSpace(text), nil
}
