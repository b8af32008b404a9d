// Package pipeline turns an uploaded office or PDF document into ordered,
// typed page content: pages are rasterized, regions are detected on each
// page, and every region is either cropped to an image or recognized as text.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/layoutnarrator/internal/models"
)

// Config holds the pipeline settings.
type Config struct {
	PageImageDir      string
	ParsedSectionsDir string
	DPI               int
	Language          string
	// PageWorkers > 1 processes pages of one document in parallel.
	PageWorkers int
	// TempDir is where uploads are staged; empty means os.TempDir().
	TempDir string
}

// Capabilities are the external collaborators the pipeline drives.
type Capabilities struct {
	Rasterizer Rasterizer
	Converter  Converter
	Detector   Detector
	Recognizer Recognizer
}

// Pipeline runs the full document-to-page-content process.
type Pipeline struct {
	config     Config
	normalizer *Normalizer
	detector   Detector
	assembler  *assembler
	logger     *slog.Logger
}

// New validates the configuration and wires the capabilities together.
func New(cfg Config, caps Capabilities, logger *slog.Logger) (*Pipeline, error) {
	if cfg.PageImageDir == "" || cfg.ParsedSectionsDir == "" {
		return nil, fmt.Errorf("page image dir and parsed sections dir must be set")
	}
	if caps.Detector == nil {
		return nil, fmt.Errorf("a region detector must be provided")
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	if cfg.PageWorkers <= 0 {
		cfg.PageWorkers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	for _, dir := range []string{cfg.PageImageDir, cfg.ParsedSectionsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	return &Pipeline{
		config: cfg,
		normalizer: &Normalizer{
			PageImageDir: cfg.PageImageDir,
			Rasterizer:   caps.Rasterizer,
			Converter:    caps.Converter,
			TempDir:      cfg.TempDir,
			Logger:       logger,
		},
		detector: caps.Detector,
		assembler: &assembler{
			recognizer: caps.Recognizer,
			language:   cfg.Language,
			logger:     logger,
		},
		logger: logger,
	}, nil
}

// ProcessDocument runs the pipeline over an in-memory upload.
func (p *Pipeline) ProcessDocument(ctx context.Context, data []byte, filename string) ([]models.PageContent, error) {
	return p.ProcessReader(ctx, bytes.NewReader(data), filename)
}

// ProcessReader stages r in a temporary file and runs the pipeline over it.
// The temporary file is removed on every return path. Either every page
// succeeds or the whole call fails.
func (p *Pipeline) ProcessReader(ctx context.Context, r io.Reader, filename string) ([]models.PageContent, error) {
	start := time.Now()
	logCtx := p.logger.With("filename", filename)

	format := DetectFormat(filename)
	if format == FormatUnknown {
		err := NewError(KindUnsupportedFormat, 0, fmt.Sprintf("unsupported file type: %q", filepath.Ext(filename)), nil)
		logCtx.Warn("Rejected upload.", "error", err)
		return nil, err
	}

	tempFile, err := os.CreateTemp(p.config.TempDir, "upload-*"+strings.ToLower(filepath.Ext(filename)))
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := tempFile.Name()
	defer os.Remove(tempPath)

	size, err := io.Copy(tempFile, r)
	if closeErr := tempFile.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stage upload: %w", err)
	}
	logCtx.Info("Staged upload.", "format", format.String(), "bytes", size)

	doc := Document{Path: tempPath, Filename: filename, Format: format}
	pages, err := p.normalizer.Render(ctx, doc, p.config.DPI)
	if err != nil {
		logCtx.Error("Failed to render document.", "error", err)
		return nil, err
	}

	contents, err := p.processPages(ctx, pages)
	if err != nil {
		logCtx.Error("Failed to parse document.", "error", err)
		return nil, err
	}
	logCtx.Info("Document parsed.", "pageCount", len(contents), "elapsed", time.Since(start).String())
	return contents, nil
}

func (p *Pipeline) processPages(ctx context.Context, pages []models.Page) ([]models.PageContent, error) {
	results := make([]models.PageContent, len(pages))
	if p.config.PageWorkers <= 1 {
		for i, page := range pages {
			pc, err := p.ProcessPage(ctx, page)
			if err != nil {
				return nil, err
			}
			results[i] = pc
		}
		return results, nil
	}

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(p.config.PageWorkers)
	for i, page := range pages {
		i, page := i, page
		eg.Go(func() error {
			pc, err := p.ProcessPage(gctx, page)
			if err != nil {
				return err
			}
			results[i] = pc
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// ProcessPage runs detection, extraction and assembly for one rendered page.
// Crops and the layout overlay are written to PageOutputDir(page).
func (p *Pipeline) ProcessPage(ctx context.Context, page models.Page) (models.PageContent, error) {
	if err := ctx.Err(); err != nil {
		return models.PageContent{}, err
	}
	logCtx := p.logger.With("page", page.Index, "image", page.ImagePath)

	img, err := loadImage(page.ImagePath)
	if err != nil {
		return models.PageContent{}, NewError(KindRenderFailure, page.Index, "failed to load page image", err)
	}

	regions, clamped, err := detectRegions(ctx, p.detector, page.Index, img)
	if err != nil {
		logCtx.Error("Region detection failed.", "error", err)
		return models.PageContent{}, err
	}
	if clamped > 0 {
		logCtx.Warn("Clamped detections to page bounds.", "count", clamped)
	}
	logCtx.Info("Detected regions.", "regionCount", len(regions))

	pc, err := p.assembler.assemble(ctx, page.Index, img, regions, p.PageOutputDir(page))
	if err != nil {
		logCtx.Error("Region extraction failed.", "error", err)
		return models.PageContent{}, err
	}
	return pc, nil
}

// PageOutputDir is the per-page directory under the parsed-sections root,
// named after the page image.
func (p *Pipeline) PageOutputDir(page models.Page) string {
	name := filepath.Base(page.ImagePath)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	return filepath.Join(p.config.ParsedSectionsDir, name)
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return img, nil
}
