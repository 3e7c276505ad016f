package render

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"

	"github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog"

	"github.com/deckforge/deckforge/internal/domain"
)

const (
	// DefaultDPI is the raster resolution used when none is configured.
	DefaultDPI = 300

	// DefaultFormat is the page render format used when none is configured.
	DefaultFormat = "jpg"

	// DefaultQuality is the JPEG encode quality for page renders.
	DefaultQuality = 85

	minDPI = 36
	maxDPI = 1200
)

// Rasterizer renders single pages of a PDF to image files under outDir and
// hands back a base64 data URI for the generation request. Each call opens
// its own document handle, so a Rasterizer is safe to share across workers.
type Rasterizer struct {
	pdfPath string
	outDir  string
	dpi     float64
	format  string
	quality int
	logger  zerolog.Logger
}

// NewRasterizer creates a rasterizer for one source document. format selects
// the render encoding, "jpg" or "png"; empty means jpg.
func NewRasterizer(pdfPath, outDir string, dpi float64, format string, logger zerolog.Logger) (*Rasterizer, error) {
	if dpi == 0 {
		dpi = DefaultDPI
	}
	if dpi < minDPI || dpi > maxDPI {
		return nil, domain.RenderError(fmt.Sprintf("dpi must be between %d and %d, got %g", minDPI, maxDPI, dpi), nil)
	}

	if format == "" {
		format = DefaultFormat
	}
	if format != "jpg" && format != "png" {
		return nil, domain.RenderError(fmt.Sprintf("unsupported render format %q", format), nil)
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, domain.IOError(fmt.Sprintf("failed to create render directory %s", outDir), err)
	}

	return &Rasterizer{
		pdfPath: pdfPath,
		outDir:  outDir,
		dpi:     dpi,
		format:  format,
		quality: DefaultQuality,
		logger:  logger.With().Str("component", "rasterizer").Logger(),
	}, nil
}

// RenderPage renders the 0-based page index to page_{index+1}.{format} in
// the output directory, overwriting any previous render, and returns the
// encoded bytes as a base64 data URI.
func (r *Rasterizer) RenderPage(ctx context.Context, index int) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	doc, err := fitz.New(r.pdfPath)
	if err != nil {
		return "", domain.RenderError(fmt.Sprintf("failed to open %s for rendering", r.pdfPath), err)
	}
	defer doc.Close()

	if index < 0 || index >= doc.NumPage() {
		return "", domain.RenderError(fmt.Sprintf("page index %d out of range [0,%d)", index, doc.NumPage()), nil)
	}

	img, err := doc.ImageDPI(index, r.dpi)
	if err != nil {
		return "", domain.RenderError(fmt.Sprintf("failed to render page %d", index), err)
	}

	var buf bytes.Buffer
	var mime string
	switch r.format {
	case "png":
		mime = "image/png"
		err = png.Encode(&buf, img)
	default:
		mime = "image/jpeg"
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: r.quality})
	}
	if err != nil {
		return "", domain.RenderError(fmt.Sprintf("failed to encode page %d as %s", index, r.format), err)
	}

	outputPath := filepath.Join(r.outDir, PageFileName(index, r.format))
	if err := os.WriteFile(outputPath, buf.Bytes(), 0o644); err != nil {
		return "", domain.IOError(fmt.Sprintf("failed to write render for page %d", index), err)
	}

	r.logger.Debug().Int("page", index).Str("path", outputPath).Msg("rendered page")

	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// PageFileName returns the deterministic render file name for a 0-based page
// index. Page numbers in file names are 1-based.
func PageFileName(index int, ext string) string {
	return fmt.Sprintf("page_%d.%s", index+1, ext)
}
