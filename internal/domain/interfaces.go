package domain

import "context"

// Extractor performs the document-wide structural pass: one PageExtraction
// per page, in page order. A malformed page is reported in its Err field
// rather than aborting the pass.
type Extractor interface {
	ExtractDocument(ctx context.Context) ([]PageExtraction, error)
	PageCount() int
	Close() error
}

// Rasterizer renders a single page to a raster file and returns the encoded
// bytes as a base64 data URI suitable for a multimodal generation request.
// Re-rendering the same page overwrites the previous file.
type Rasterizer interface {
	RenderPage(ctx context.Context, index int) (string, error)
}

// ContentGenerator is the external collaborator that turns a page record and
// its rendered raster into generated markup. It is the most expensive and
// least reliable step in the pipeline; implementations own their retry and
// timeout policy and must return GenerationError when attempts are exhausted.
type ContentGenerator interface {
	Generate(ctx context.Context, page PageRecord, imageDataURI string) (string, error)
}

// ArtifactStore persists per-page generated markup keyed by page index.
type ArtifactStore interface {
	// Write persists cleaned markup for the page. Writes are atomic: either
	// the full artifact is on disk or no file exists.
	Write(pageIndex int, markup string) error

	// HighestIndex returns the highest page index with a completed artifact,
	// or -1 when the store is empty.
	HighestIndex() (int, error)
}

// Assembler concatenates all persisted artifacts, in ascending page-index
// order, into the final document.
type Assembler interface {
	Assemble(outputPath string) error
}
