// Package ocr recognizes text in region crops with Tesseract.
//
// It requires Tesseract and its language data to be installed. On Ubuntu/Debian:
//
//	apt-get install tesseract-ocr libtesseract-dev
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// DefaultLanguage is used when Recognize is called without a language.
const DefaultLanguage = "eng"

// TesseractRecognizer runs each recognition on its own gosseract client, so
// it is safe for concurrent use.
type TesseractRecognizer struct {
	clientFactory func() *gosseract.Client
	pageSegMode   gosseract.PageSegMode
}

// NewTesseractRecognizer constructs a Tesseract-backed recognizer. Crops are
// treated as a single uniform block of text.
func NewTesseractRecognizer() *TesseractRecognizer {
	return &TesseractRecognizer{
		clientFactory: gosseract.NewClient,
		pageSegMode:   gosseract.PSM_SINGLE_BLOCK,
	}
}

// Recognize returns the text in img, trimmed of surrounding whitespace.
func (r *TesseractRecognizer) Recognize(ctx context.Context, img image.Image, language string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if language == "" {
		language = DefaultLanguage
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode crop: %w", err)
	}

	c := r.clientFactory()
	defer c.Close()

	if err := c.SetLanguage(language); err != nil {
		return "", fmt.Errorf("set language %q: %w", language, err)
	}
	if err := c.SetPageSegMode(r.pageSegMode); err != nil {
		return "", fmt.Errorf("set page segmentation mode: %w", err)
	}
	if err := c.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	text, err := c.Text()
	if err != nil {
		return "", fmt.Errorf("recognize text: %w", err)
	}
	return strings.TrimSpace(text), nil
}
