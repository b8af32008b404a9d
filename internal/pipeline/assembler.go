package pipeline

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/Lllllllleong/layoutnarrator/internal/models"
)

// OverlayFilename is the debug image written into every page's output dir.
const OverlayFilename = "boxed_layout.png"

var overlayColor = color.RGBA{R: 255, G: 0, B: 255, A: 255}

const overlayStroke = 3

// assembler orders a page's regions and extracts them one by one.
type assembler struct {
	recognizer Recognizer
	language   string
	logger     *slog.Logger
}

// SortRegions orders regions top to bottom by y1. Ties keep detection order.
// This is a single-column heuristic; multi-column pages are read row-wise.
func SortRegions(regions []models.Region) []models.Region {
	sorted := make([]models.Region, len(regions))
	copy(sorted, regions)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Y1 < sorted[j].Y1 })
	return sorted
}

// assemble builds the PageContent for one page. The overlay is written before
// extraction starts, so it exists even when extraction fails.
func (a *assembler) assemble(ctx context.Context, page int, img image.Image, regions []models.Region, outputDir string) (models.PageContent, error) {
	// Crops from an earlier upload with the same base name must not survive.
	if err := os.RemoveAll(outputDir); err != nil {
		return models.PageContent{}, NewError(KindExtractionFailure, page, "failed to clear page output dir", err)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return models.PageContent{}, NewError(KindExtractionFailure, page, "failed to create page output dir", err)
	}

	sorted := SortRegions(regions)

	overlayPath := filepath.Join(outputDir, OverlayFilename)
	if err := writePNG(overlayPath, drawOverlay(img, sorted)); err != nil {
		// Debug artifact only.
		a.logger.Warn("Failed to write layout overlay.", "path", overlayPath, "error", err)
	}

	ext := newPageExtractor(page, outputDir, a.recognizer, a.language)
	items := make([]models.ContentItem, 0, len(sorted))
	for _, r := range sorted {
		item, err := ext.extract(ctx, img, r)
		if err != nil {
			return models.PageContent{}, err
		}
		if item.Content == "" {
			a.logger.Warn("Recognized no text in region.", "label", r.Label, "y1", r.Y1)
		}
		a.logger.Debug("Extracted region.", "label", r.Label, "confidence", r.Confidence, "y1", r.Y1)
		items = append(items, item)
	}
	return models.PageContent{Page: page, Content: items}, nil
}

func drawOverlay(src image.Image, regions []models.Region) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)

	stroke := image.NewUniform(overlayColor)
	d := &font.Drawer{Dst: dst, Src: stroke, Face: basicfont.Face7x13}
	for _, r := range regions {
		rect := image.Rect(r.X1, r.Y1, r.X2, r.Y2)
		for _, edge := range []image.Rectangle{
			image.Rect(rect.Min.X, rect.Min.Y, rect.Max.X, rect.Min.Y+overlayStroke),
			image.Rect(rect.Min.X, rect.Max.Y-overlayStroke, rect.Max.X, rect.Max.Y),
			image.Rect(rect.Min.X, rect.Min.Y, rect.Min.X+overlayStroke, rect.Max.Y),
			image.Rect(rect.Max.X-overlayStroke, rect.Min.Y, rect.Max.X, rect.Max.Y),
		} {
			draw.Draw(dst, edge.Intersect(rect), stroke, image.Point{}, draw.Src)
		}

		y := r.Y1 - 10
		if y < basicfont.Face7x13.Ascent {
			y = r.Y1 + basicfont.Face7x13.Ascent + overlayStroke
		}
		d.Dot = fixed.P(r.X1, y)
		d.DrawString(fmt.Sprintf("%s %.2f", r.Label, r.Confidence))
	}
	return dst
}
