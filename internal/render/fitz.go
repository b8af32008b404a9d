// Package render provides the MuPDF rasterizer and the LibreOffice converter
// used by the document pipeline.
package render

import (
	"context"
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"
)

// FitzRasterizer renders PDF pages through MuPDF.
type FitzRasterizer struct{}

// NewFitzRasterizer returns a rasterizer backed by go-fitz.
func NewFitzRasterizer() *FitzRasterizer {
	return &FitzRasterizer{}
}

// Rasterize renders every page at dpi (a dpi/72 zoom of the page's point size)
// and hands each image to emit, in page order.
func (r *FitzRasterizer) Rasterize(ctx context.Context, pdfPath string, dpi int, emit func(index int, img image.Image) error) error {
	doc, err := fitz.New(pdfPath)
	if err != nil {
		return fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	numPages := doc.NumPage()
	if numPages == 0 {
		return fmt.Errorf("PDF has no pages")
	}
	for i := 0; i < numPages; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		img, err := doc.ImageDPI(i, float64(dpi))
		if err != nil {
			return fmt.Errorf("failed to rasterize page %d: %w", i+1, err)
		}
		if err := emit(i+1, img); err != nil {
			return err
		}
	}
	return nil
}
