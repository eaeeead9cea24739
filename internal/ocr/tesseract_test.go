//go:build ocr

package ocr

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/Lllllllleong/tableflow/internal/models"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// renderLines draws text lines in the 7x13 bitmap font and upscales the
// result so Tesseract sees glyphs of a realistic size.
func renderLines(t *testing.T, lines ...string) []byte {
	t.Helper()
	small := image.NewGray(image.Rect(0, 0, 160, 20*len(lines)+10))
	draw.Draw(small, small.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	d := &font.Drawer{Dst: small, Src: image.NewUniform(color.Black), Face: basicfont.Face7x13}
	for i, line := range lines {
		d.Dot = fixed.P(8, 20*(i+1))
		d.DrawString(line)
	}

	const scale = 4
	big := image.NewGray(image.Rect(0, 0, small.Bounds().Dx()*scale, small.Bounds().Dy()*scale))
	draw.NearestNeighbor.Scale(big, big.Bounds(), small, small.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, big); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestRecognize(t *testing.T) {
	img := models.PageImage{Page: 1, Format: "png", Data: renderLines(t, "Year Value", "2020 100")}
	text, err := NewTesseract([]string{"eng"}).Recognize(context.Background(), img)
	if err != nil {
		t.Skipf("tesseract unavailable: %v", err)
	}
	if !strings.Contains(text, "2020") {
		t.Errorf("Recognize() = %q, want it to contain 2020", text)
	}
}

func TestRecognizeCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewTesseract(nil).Recognize(ctx, models.PageImage{}); err == nil {
		t.Error("Recognize() ignored a canceled context")
	}
}
