package pdf

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"os"

	"github.com/Lllllllleong/tableflow/internal/models"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
)

// Rasterizer turns scanned pages into images for OCR. A scanned page is a
// full-page image, so the largest image embedded on each page stands in for
// the page itself. Pages without images yield nothing.
type Rasterizer struct {
	// MinWidth is the pixel width narrower scans are upscaled to.
	MinWidth int
	logger   *slog.Logger
}

// NewRasterizer returns a Rasterizer that upscales scans to minWidth pixels.
func NewRasterizer(minWidth int, logger *slog.Logger) *Rasterizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Rasterizer{MinWidth: minWidth, logger: logger}
}

func relaxedConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// RasterizePages returns one normalized image per page in rng that carries
// an image, in page order.
func (r *Rasterizer) RasterizePages(ctx context.Context, path string, rng models.PageRange) (images []models.PageImage, err error) {
	defer recoverInto(&err, "rasterize "+path)

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	conf := relaxedConfig()
	pageCount, err := api.PageCount(f, conf)
	if err != nil {
		return nil, fmt.Errorf("failed to get page count: %w", err)
	}
	rng, ok := rng.Clamp(pageCount)
	if !ok {
		return nil, nil
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	largest := make(map[int]models.PageImage)
	digest := func(img model.Image, _ bool, _ int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := io.ReadAll(img)
		if err != nil {
			return fmt.Errorf("failed to read image on page %d: %w", img.PageNr, err)
		}
		if prev, seen := largest[img.PageNr]; !seen || len(data) > len(prev.Data) {
			largest[img.PageNr] = models.PageImage{Page: img.PageNr, Format: img.FileType, Data: data}
		}
		return nil
	}
	if err := api.ExtractImages(f, []string{rng.Selection()}, digest, conf); err != nil {
		return nil, fmt.Errorf("failed to extract page images: %w", err)
	}

	for page := rng.First; page <= rng.Last; page++ {
		img, ok := largest[page]
		if !ok {
			r.logger.Info("Page has no embedded image, skipping.", "page", page)
			continue
		}
		normalized, err := PrepareForOCR(img.Data, r.MinWidth)
		if err != nil {
			// Tesseract reads more formats than the image package decodes.
			r.logger.Warn("Could not normalize page image, passing it through.", "page", page, "format", img.Format, "error", err)
			images = append(images, img)
			continue
		}
		images = append(images, models.PageImage{Page: page, Format: "png", Data: normalized})
	}
	return images, nil
}

// PrepareForOCR decodes a scan, converts it to 8-bit grayscale, upscales it
// to at least minWidth pixels wide and encodes it as PNG.
func PrepareForOCR(data []byte, minWidth int) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("image has no pixels")
	}
	if w < minWidth {
		h = h * minWidth / w
		w = minWidth
	}

	dst := image.NewGray(image.Rect(0, 0, w, h))
	if w == bounds.Dx() {
		draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Src)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Src, nil)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}
