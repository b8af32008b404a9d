package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/Lllllllleong/layoutnarrator/internal/pipeline"
)

// DefaultConverterBinary is looked up on PATH when no binary is configured.
const DefaultConverterBinary = "libreoffice"

// LibreOfficeConverter converts office documents by running LibreOffice headless.
type LibreOfficeConverter struct {
	Binary string
	Logger *slog.Logger
}

// NewLibreOfficeConverter returns a converter for the given binary name or path.
func NewLibreOfficeConverter(binary string, logger *slog.Logger) *LibreOfficeConverter {
	if binary == "" {
		binary = DefaultConverterBinary
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LibreOfficeConverter{Binary: binary, Logger: logger}
}

// Convert writes srcPath converted to targetFormat into outDir. A produced PDF
// is validated (relaxed mode) before it is returned.
func (c *LibreOfficeConverter) Convert(ctx context.Context, srcPath, targetFormat, outDir string) (string, error) {
	bin, err := exec.LookPath(c.Binary)
	if err != nil {
		return "", pipeline.NewError(pipeline.KindConversionUnavailable, 0,
			fmt.Sprintf("%s not found; please ensure it is installed", c.Binary), err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, "--headless", "--convert-to", targetFormat, "--outdir", outDir, srcPath)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	c.Logger.Info("Running document converter.", "binary", bin, "source", filepath.Base(srcPath), "targetFormat", targetFormat)
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", pipeline.NewError(pipeline.KindConversionFailure, 0,
				fmt.Sprintf("converter exited with status %d: %s", exitErr.ExitCode(), strings.TrimSpace(stderr.String())), err)
		}
		return "", pipeline.NewError(pipeline.KindConversionFailure, 0, "failed to run converter", err)
	}

	base := strings.TrimSuffix(filepath.Base(srcPath), filepath.Ext(srcPath))
	outPath := filepath.Join(outDir, base+"."+targetFormat)
	if _, err := os.Stat(outPath); err != nil {
		return "", pipeline.NewError(pipeline.KindConversionFailure, 0,
			fmt.Sprintf("converter did not create %s: %s", filepath.Base(outPath), strings.TrimSpace(stderr.String()+stdout.String())), err)
	}

	if targetFormat == "pdf" {
		if err := ValidatePDF(outPath); err != nil {
			return "", pipeline.NewError(pipeline.KindConversionFailure, 0, "converter produced an unreadable PDF", err)
		}
	}
	return outPath, nil
}

func relaxedConfig() *model.Configuration {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return cfg
}

// ValidatePDF checks that path parses as a PDF under relaxed validation.
func ValidatePDF(path string) error {
	return api.ValidateFile(path, relaxedConfig())
}

// PageCount returns the number of pages pdfcpu reads from path.
func PageCount(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return api.PageCount(f, relaxedConfig())
}
