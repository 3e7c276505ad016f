package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tsawler/tabula/layout"
	"github.com/tsawler/tabula/pages"
	"github.com/tsawler/tabula/reader"

	"github.com/deckforge/deckforge/internal/domain"
)

// PageExtractor pulls positioned text blocks and embedded raster assets out
// of a PDF, one PageRecord per page. Extracted assets are materialized under
// imagesDir; records only carry references to them.
type PageExtractor struct {
	reader    *reader.Reader
	pageCount int
	imagesDir string
	detector  *layout.BlockDetector
	logger    zerolog.Logger
}

// Open opens the source document and prepares the image output directory.
// The caller owns the returned extractor and must Close it.
func Open(pdfPath, imagesDir string, logger zerolog.Logger) (*PageExtractor, error) {
	r, err := reader.Open(pdfPath)
	if err != nil {
		return nil, domain.SourceDocumentError(fmt.Sprintf("failed to open %s", pdfPath), err)
	}

	count, err := r.PageCount()
	if err != nil {
		r.Close()
		return nil, domain.SourceDocumentError("failed to read page count", err)
	}
	if count == 0 {
		r.Close()
		return nil, domain.SourceDocumentError("document has no pages", nil)
	}

	if err := os.MkdirAll(imagesDir, 0o755); err != nil {
		r.Close()
		return nil, domain.IOError(fmt.Sprintf("failed to create image directory %s", imagesDir), err)
	}

	return &PageExtractor{
		reader:    r,
		pageCount: count,
		imagesDir: imagesDir,
		detector:  layout.NewBlockDetector(),
		logger:    logger.With().Str("component", "extractor").Logger(),
	}, nil
}

// PageCount returns the number of pages in the source document.
func (e *PageExtractor) PageCount() int {
	return e.pageCount
}

// Close releases the underlying reader.
func (e *PageExtractor) Close() error {
	return e.reader.Close()
}

// ExtractDocument walks every page and returns one PageExtraction per page,
// in page order. A page that fails extraction carries its error in Err so the
// rest of the document is unaffected.
func (e *PageExtractor) ExtractDocument(ctx context.Context) ([]domain.PageExtraction, error) {
	results := make([]domain.PageExtraction, 0, e.pageCount)

	for idx := 0; idx < e.pageCount; idx++ {
		select {
		case <-ctx.Done():
			return results, ctx.Err()
		default:
		}

		record, err := e.extractPage(idx)
		results = append(results, domain.PageExtraction{Record: record, Err: err})
		if err != nil {
			e.logger.Warn().Int("page", idx).Err(err).Msg("page extraction failed")
		}
	}

	return results, nil
}

// extractPage builds the PageRecord for a single 0-based page index.
func (e *PageExtractor) extractPage(idx int) (domain.PageRecord, error) {
	record := domain.PageRecord{Index: idx}

	page, err := e.reader.GetPage(idx)
	if err != nil {
		return record, domain.SourceDocumentError(fmt.Sprintf("failed to load page %d", idx), err)
	}

	width, err := page.Width()
	if err != nil {
		return record, domain.MalformedPageError(fmt.Sprintf("page %d has no usable media box", idx), err)
	}
	height, err := page.Height()
	if err != nil {
		return record, domain.MalformedPageError(fmt.Sprintf("page %d has no usable media box", idx), err)
	}
	record.Width = width
	record.Height = height

	fragments, err := e.reader.ExtractTextFragments(page)
	if err != nil {
		return record, domain.MalformedPageError(fmt.Sprintf("failed to extract text from page %d", idx), err)
	}

	blockLayout := e.detector.Detect(fragments, width, height)
	if blockLayout != nil {
		for _, block := range blockLayout.Blocks {
			text := strings.TrimSpace(block.GetText())
			if text == "" {
				continue
			}

			x0 := block.BBox.X
			y0 := block.BBox.Y
			x1 := block.BBox.X + block.BBox.Width
			y1 := block.BBox.Y + block.BBox.Height

			x, y, w, err := NormalizeBox(x0, y0, x1, y1, width, height)
			if err != nil {
				return record, err
			}

			record.TextElements = append(record.TextElements, domain.TextElement{
				Text:  text,
				X:     x,
				Y:     y,
				Width: w,
			})
		}
	}

	record.ImageRefs = e.extractImages(page, idx)

	return record, nil
}

// extractImages writes each embedded image on the page to the image directory
// and returns their paths. An unreadable image is skipped with a warning; the
// page itself still succeeds.
func (e *PageExtractor) extractImages(page *pages.Page, idx int) []string {
	images, err := e.reader.ExtractPageImages(page)
	if err != nil {
		e.logger.Warn().Int("page", idx).Err(err).Msg("failed to enumerate embedded images")
		return nil
	}

	var refs []string
	for n, img := range images {
		data, ext, err := imageBytes(img)
		if err != nil {
			e.logger.Warn().Int("page", idx).Int("image", n).Err(err).Msg("skipping unreadable embedded image")
			continue
		}

		name := ImageFileName(idx, n, ext)
		path := filepath.Join(e.imagesDir, name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			e.logger.Warn().Int("page", idx).Int("image", n).Err(err).Msg("skipping unwritable embedded image")
			continue
		}

		refs = append(refs, path)
	}

	return refs
}

// ImageFileName returns the stable file name for the n-th embedded image of a
// 0-based page index. Page numbers in file names are 1-based.
func ImageFileName(pageIndex, imageIndex int, ext string) string {
	return fmt.Sprintf("page_%d_image_%d.%s", pageIndex+1, imageIndex, ext)
}

// imageBytes returns the bytes to persist for an extracted image together
// with its file extension. DCT and JPX streams are already in their native
// container format and are written as-is; everything else is raw pixel data
// and gets wrapped as PNG.
func imageBytes(img reader.PageImage) ([]byte, string, error) {
	switch img.Filter {
	case "DCTDecode":
		return img.Data, "jpg", nil
	case "JPXDecode":
		return img.Data, "jp2", nil
	default:
		data, err := img.ToPNG()
		if err != nil {
			return nil, "", err
		}
		return data, "png", nil
	}
}
