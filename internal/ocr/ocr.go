// Package ocr recognizes text on scanned page images.
//
// The Tesseract engine is wrapped via gosseract and is only compiled in with
// the "ocr" build tag, which requires Tesseract and its language data to be
// installed:
//
//	go build -tags ocr ./...
//
// Without the tag every recognition returns ErrOCRNotEnabled.
package ocr

import "errors"

// ErrOCRNotEnabled is returned when OCR support was not compiled in.
var ErrOCRNotEnabled = errors.New("OCR support not enabled; rebuild with -tags ocr")

// Tesseract recognizes page images. Tesseract clients are not safe for
// concurrent use, so every call creates and closes its own.
type Tesseract struct {
	Languages []string
}

// NewTesseract returns a recognizer for the given Tesseract language codes.
// No languages means English.
func NewTesseract(languages []string) *Tesseract {
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	return &Tesseract{Languages: languages}
}
