package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gen2brain/go-fitz"

	"github.com/deckforge/deckforge/internal/domain"
)

// RenderAllPages rasterizes every page of a PDF at the given DPI into outDir
// as zero-padded numbered PNGs (01.png, 02.png, ...) so the files sort
// correctly in a file listing. It returns the number of pages written.
func RenderAllPages(ctx context.Context, pdfPath, outDir string, dpi float64) (int, error) {
	if dpi == 0 {
		dpi = DefaultDPI
	}
	if dpi < minDPI || dpi > maxDPI {
		return 0, domain.RenderError(fmt.Sprintf("dpi must be between %d and %d, got %g", minDPI, maxDPI, dpi), nil)
	}

	doc, err := fitz.New(pdfPath)
	if err != nil {
		return 0, domain.SourceDocumentError(fmt.Sprintf("failed to open %s", pdfPath), err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	if pageCount == 0 {
		return 0, domain.SourceDocumentError("document has no pages", nil)
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return 0, domain.IOError(fmt.Sprintf("failed to create output directory %s", outDir), err)
	}

	width := len(fmt.Sprintf("%d", pageCount))

	for i := 0; i < pageCount; i++ {
		select {
		case <-ctx.Done():
			return i, ctx.Err()
		default:
		}

		data, err := doc.ImagePNG(i, dpi)
		if err != nil {
			return i, domain.RenderError(fmt.Sprintf("failed to render page %d", i), err)
		}

		name := fmt.Sprintf("%0*d.png", width, i+1)
		if err := os.WriteFile(filepath.Join(outDir, name), data, 0o644); err != nil {
			return i, domain.IOError(fmt.Sprintf("failed to write page %d", i), err)
		}
	}

	return pageCount, nil
}
