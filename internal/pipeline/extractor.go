package pipeline

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"

	"github.com/Lllllllleong/layoutnarrator/internal/models"
)

// Recognizer is the text-recognition capability, configured per call for a
// single language.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image, language string) (string, error)
}

// visualLabels are persisted as image crops instead of being recognized.
var visualLabels = map[string]bool{
	models.LabelPicture: true,
	models.LabelTable:   true,
	models.LabelFormula: true,
}

// IsVisualLabel reports whether regions with this label are kept as crops.
func IsVisualLabel(label string) bool {
	return visualLabels[label]
}

// pageExtractor holds the state of one page's extraction. The per-label
// counters live here so crop names restart at 0 on every page.
type pageExtractor struct {
	page       int
	outputDir  string
	recognizer Recognizer
	language   string
	counts     map[string]int
}

func newPageExtractor(page int, outputDir string, rec Recognizer, language string) *pageExtractor {
	return &pageExtractor{
		page:       page,
		outputDir:  outputDir,
		recognizer: rec,
		language:   language,
		counts:     make(map[string]int),
	}
}

// extract produces the ContentItem for one region.
func (e *pageExtractor) extract(ctx context.Context, src image.Image, r models.Region) (models.ContentItem, error) {
	crop := cropRGBA(src, image.Rect(r.X1, r.Y1, r.X2, r.Y2))
	if crop == nil {
		return models.ContentItem{}, NewError(KindExtractionFailure, e.page, fmt.Sprintf("empty crop for %s region", r.Label), nil)
	}

	if IsVisualLabel(r.Label) {
		path, err := e.saveCrop(r.Label, crop)
		if err != nil {
			return models.ContentItem{}, NewError(KindExtractionFailure, e.page, fmt.Sprintf("failed to save %s crop", r.Label), err)
		}
		return models.ContentItem{Tag: r.Label, Content: path}, nil
	}

	if e.recognizer == nil {
		return models.ContentItem{}, NewError(KindExtractionFailure, e.page, "no text recognizer configured", nil)
	}
	text, err := e.recognizer.Recognize(ctx, crop, e.language)
	if err != nil {
		return models.ContentItem{}, NewError(KindExtractionFailure, e.page, fmt.Sprintf("text recognition failed for %s region", r.Label), err)
	}
	return models.ContentItem{Tag: r.Label, Content: strings.TrimSpace(text)}, nil
}

func (e *pageExtractor) saveCrop(label string, crop image.Image) (string, error) {
	n := e.counts[label]
	e.counts[label] = n + 1
	path := filepath.Join(e.outputDir, fmt.Sprintf("%s_%d.png", label, n))
	if err := writePNG(path, crop); err != nil {
		return "", err
	}
	return path, nil
}

// cropRGBA copies rect out of src into a fresh RGBA image, which is also the
// color layout the recognizer expects. It returns nil for an empty rectangle.
func cropRGBA(src image.Image, rect image.Rectangle) *image.RGBA {
	rect = rect.Intersect(src.Bounds())
	if rect.Empty() {
		return nil
	}
	dst := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(dst, dst.Bounds(), src, rect.Min, draw.Src)
	return dst
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode png: %w", err)
	}
	return f.Close()
}
