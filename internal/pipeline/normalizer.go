package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Lllllllleong/layoutnarrator/internal/models"
)

// Format is the detected input format of an uploaded document.
type Format int

const (
	FormatUnknown Format = iota
	// FormatPDF is the natively paged format; it is rasterized directly.
	FormatPDF
	// FormatOffice covers the formats that must be converted to PDF first.
	FormatOffice
)

func (f Format) String() string {
	switch f {
	case FormatPDF:
		return "pdf"
	case FormatOffice:
		return "office"
	default:
		return "unknown"
	}
}

var officeExtensions = map[string]bool{
	".docx": true,
	".doc":  true,
	".pptx": true,
	".ppt":  true,
	".xlsx": true,
	".xls":  true,
}

// DetectFormat determines the format from the filename extension.
func DetectFormat(filename string) Format {
	ext := strings.ToLower(filepath.Ext(filename))
	switch {
	case ext == ".pdf":
		return FormatPDF
	case officeExtensions[ext]:
		return FormatOffice
	default:
		return FormatUnknown
	}
}

// BaseName returns the original filename without directories or extension.
// Page image and section directory names are derived from it.
func BaseName(filename string) string {
	base := filepath.Base(filepath.Clean("/" + filename))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" || base == "." || base == "/" {
		return "document"
	}
	return base
}

// Document is one uploaded file for the duration of a pipeline run.
type Document struct {
	Path     string // temporary storage handle
	Filename string // original filename, as uploaded
	Format   Format
}

// Rasterizer renders every page of a PDF, in order, at the given resolution.
// emit is called once per page with a 1-based index.
type Rasterizer interface {
	Rasterize(ctx context.Context, pdfPath string, dpi int, emit func(index int, img image.Image) error) error
}

// Converter turns an office document into a PDF written under outDir and
// returns the produced file's path.
type Converter interface {
	Convert(ctx context.Context, srcPath, targetFormat, outDir string) (string, error)
}

// Normalizer converts supported documents into page images.
type Normalizer struct {
	PageImageDir string
	Rasterizer   Rasterizer
	Converter    Converter
	JPEGQuality  int
	// TempDir holds intermediate PDFs; empty means os.TempDir().
	TempDir string
	Logger  *slog.Logger
}

// Render writes one JPEG per page into PageImageDir and returns the pages in order.
func (n *Normalizer) Render(ctx context.Context, doc Document, dpi int) ([]models.Page, error) {
	switch doc.Format {
	case FormatPDF:
		return n.renderPDF(ctx, doc.Path, BaseName(doc.Filename), dpi)
	case FormatOffice:
		return n.renderOffice(ctx, doc, dpi)
	default:
		return nil, NewError(KindUnsupportedFormat, 0, fmt.Sprintf("unsupported file type: %q", filepath.Ext(doc.Filename)), nil)
	}
}

func (n *Normalizer) renderOffice(ctx context.Context, doc Document, dpi int) ([]models.Page, error) {
	if n.Converter == nil {
		return nil, NewError(KindConversionUnavailable, 0, "no document converter configured", nil)
	}
	tempDir, err := os.MkdirTemp(n.TempDir, "layoutnarrator-convert-*")
	if err != nil {
		return nil, NewError(KindConversionFailure, 0, "failed to create conversion dir", err)
	}
	defer os.RemoveAll(tempDir)

	pdfPath, err := n.Converter.Convert(ctx, doc.Path, "pdf", tempDir)
	if err != nil {
		var pe *Error
		if errors.As(err, &pe) {
			return nil, err
		}
		return nil, NewError(KindConversionFailure, 0, "document conversion failed", err)
	}
	n.logger().Info("Converted document to PDF.", "filename", doc.Filename, "intermediate", pdfPath)
	return n.renderPDF(ctx, pdfPath, BaseName(doc.Filename), dpi)
}

func (n *Normalizer) renderPDF(ctx context.Context, pdfPath, base string, dpi int) ([]models.Page, error) {
	if n.Rasterizer == nil {
		return nil, NewError(KindRenderFailure, 0, "no rasterizer configured", nil)
	}
	if err := os.MkdirAll(n.PageImageDir, 0o755); err != nil {
		return nil, NewError(KindRenderFailure, 0, "failed to create page image dir", err)
	}

	var pages []models.Page
	err := n.Rasterizer.Rasterize(ctx, pdfPath, dpi, func(index int, img image.Image) error {
		out := filepath.Join(n.PageImageDir, fmt.Sprintf("%s_page_%d.jpg", base, index))
		if err := n.writeJPEG(out, img); err != nil {
			return fmt.Errorf("page %d: %w", index, err)
		}
		n.logger().Debug("Rendered page.", "page", index, "path", out)
		pages = append(pages, models.Page{Index: index, ImagePath: out, DPI: dpi})
		return nil
	})
	if err != nil {
		var pe *Error
		if errors.As(err, &pe) {
			return nil, err
		}
		return nil, NewError(KindRenderFailure, 0, fmt.Sprintf("failed to render %s", filepath.Base(pdfPath)), err)
	}
	n.logger().Info("Rendered document pages.", "base", base, "pageCount", len(pages), "dpi", dpi)
	return pages, nil
}

func (n *Normalizer) writeJPEG(path string, img image.Image) error {
	quality := n.JPEGQuality
	if quality <= 0 {
		quality = 90
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: quality}); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode jpeg: %w", err)
	}
	return f.Close()
}

func (n *Normalizer) logger() *slog.Logger {
	if n.Logger != nil {
		return n.Logger
	}
	return slog.Default()
}
