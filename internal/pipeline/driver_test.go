package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deckforge/deckforge/internal/artifact"
	"github.com/deckforge/deckforge/internal/domain"
)

type fakeExtractor struct {
	pages []domain.PageExtraction
}

func (f *fakeExtractor) ExtractDocument(ctx context.Context) ([]domain.PageExtraction, error) {
	return f.pages, nil
}

func (f *fakeExtractor) PageCount() int { return len(f.pages) }
func (f *fakeExtractor) Close() error   { return nil }

func pagesFor(count int) []domain.PageExtraction {
	pages := make([]domain.PageExtraction, count)
	for i := range pages {
		pages[i] = domain.PageExtraction{
			Record: domain.PageRecord{Index: i, Width: 612, Height: 792},
		}
	}
	return pages
}

type fakeRasterizer struct {
	mu       sync.Mutex
	attempts map[int]int
	failUpTo map[int]int // page index -> number of failing attempts
}

func (f *fakeRasterizer) RenderPage(ctx context.Context, index int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.attempts == nil {
		f.attempts = make(map[int]int)
	}
	f.attempts[index]++
	if f.failUpTo[index] >= f.attempts[index] {
		return "", domain.RenderError(fmt.Sprintf("render failed for page %d", index), nil)
	}
	return fmt.Sprintf("img-%d", index), nil
}

type fakeGenerator struct {
	mu       sync.Mutex
	failPage map[int]bool
	onCall   func(page domain.PageRecord)
}

func (f *fakeGenerator) Generate(ctx context.Context, page domain.PageRecord, imageURI string) (string, error) {
	f.mu.Lock()
	onCall := f.onCall
	fail := f.failPage[page.Index]
	f.mu.Unlock()

	if onCall != nil {
		onCall(page)
	}
	// The real client binds its HTTP request to this context.
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if fail {
		return "", domain.GenerationError(fmt.Sprintf("generation failed for page %d", page.Index), nil)
	}
	return fmt.Sprintf("```latex\n\\begin{frame}page %d\\end{frame}\n```", page.Index), nil
}

type harness struct {
	driver *Driver
	dir    string
	out    string
}

func newHarness(t *testing.T, pageCount int, rast *fakeRasterizer, gen *fakeGenerator, opts Options) *harness {
	t.Helper()
	dir := t.TempDir()
	out := filepath.Join(dir, "deck_full.tex")

	writer, err := artifact.NewWriter(dir, "deck", zerolog.Nop())
	require.NoError(t, err)

	if rast == nil {
		rast = &fakeRasterizer{}
	}
	if gen == nil {
		gen = &fakeGenerator{}
	}
	opts.OutputPath = out

	driver := NewDriver(Deps{
		Extractor:  &fakeExtractor{pages: pagesFor(pageCount)},
		Rasterizer: rast,
		Generator:  gen,
		Store:      writer,
		Assembler:  artifact.NewSequenceAssembler(dir, zerolog.Nop()),
	}, opts, zerolog.Nop())

	return &harness{driver: driver, dir: dir, out: out}
}

func (h *harness) finalDocument(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(h.out)
	require.NoError(t, err)
	return string(data)
}

func TestRunAllPagesSucceed(t *testing.T) {
	h := newHarness(t, 3, nil, nil, Options{StartIndex: -1, Concurrency: 2})

	report, err := h.driver.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 3, report.TotalPages)
	assert.Equal(t, 3, report.Succeeded)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, 0, report.StartIndex)

	doc := h.finalDocument(t)
	assert.True(t, strings.HasPrefix(doc, artifact.Preamble))
	assert.True(t, strings.HasSuffix(doc, artifact.Postamble))
	for i := 0; i < 3; i++ {
		assert.Contains(t, doc, fmt.Sprintf("page %d", i))
	}
	// Fences stripped by the writer.
	assert.NotContains(t, doc, "```")
}

func TestRunFailureIsolation(t *testing.T) {
	gen := &fakeGenerator{failPage: map[int]bool{5: true}}
	h := newHarness(t, 10, nil, gen, Options{StartIndex: -1, Concurrency: 3})

	report, err := h.driver.Run(context.Background(), nil)
	require.NoError(t, err, "a page failure must not fail the run")

	assert.Equal(t, 9, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, []int{5}, report.FailedPages)

	doc := h.finalDocument(t)
	for i := 0; i < 10; i++ {
		if i == 5 {
			assert.NotContains(t, doc, "page 5\\end")
			continue
		}
		assert.Contains(t, doc, fmt.Sprintf("page %d\\end", i))
	}

	// Order preserved across the gap.
	pos4 := strings.Index(doc, "page 4\\end")
	pos6 := strings.Index(doc, "page 6\\end")
	assert.Greater(t, pos6, pos4)
}

func TestResolveStartIndexAutoDetect(t *testing.T) {
	for _, k := range []int{0, 1, 4} {
		t.Run(fmt.Sprintf("artifacts_0_to_%d", k), func(t *testing.T) {
			h := newHarness(t, 10, nil, nil, Options{StartIndex: -1, Concurrency: 1})

			writer, err := artifact.NewWriter(h.dir, "deck", zerolog.Nop())
			require.NoError(t, err)
			for i := 0; i < k; i++ {
				require.NoError(t, writer.Write(i, "done"))
			}

			start, err := h.driver.ResolveStartIndex()
			require.NoError(t, err)
			assert.Equal(t, k, start)
		})
	}
}

func TestRunResumesFromStartIndex(t *testing.T) {
	var (
		mu        sync.Mutex
		generated []int
	)
	gen := &fakeGenerator{onCall: func(page domain.PageRecord) {
		mu.Lock()
		generated = append(generated, page.Index)
		mu.Unlock()
	}}
	h := newHarness(t, 5, nil, gen, Options{StartIndex: 3, Concurrency: 1})

	report, err := h.driver.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 3, report.StartIndex)
	assert.Equal(t, 2, report.Succeeded)
	assert.ElementsMatch(t, []int{3, 4}, generated, "pages before the start index must not be regenerated")
}

func TestRunRetriesFailedRender(t *testing.T) {
	rast := &fakeRasterizer{failUpTo: map[int]int{0: 1}}
	h := newHarness(t, 1, rast, nil, Options{StartIndex: -1, Concurrency: 1, RenderAttempts: 2})

	report, err := h.driver.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 2, rast.attempts[0])
}

func TestRunExhaustedRenderRetriesFailsPage(t *testing.T) {
	rast := &fakeRasterizer{failUpTo: map[int]int{0: 10}}
	h := newHarness(t, 2, rast, nil, Options{StartIndex: -1, Concurrency: 1, RenderAttempts: 2})

	report, err := h.driver.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, []int{0}, report.FailedPages)
}

func TestRunMalformedPageIsIsolated(t *testing.T) {
	pages := pagesFor(3)
	pages[1].Err = domain.MalformedPageError("page 1 has no usable media box", nil)

	dir := t.TempDir()
	out := filepath.Join(dir, "deck_full.tex")
	writer, err := artifact.NewWriter(dir, "deck", zerolog.Nop())
	require.NoError(t, err)

	driver := NewDriver(Deps{
		Extractor:  &fakeExtractor{pages: pages},
		Rasterizer: &fakeRasterizer{},
		Generator:  &fakeGenerator{},
		Store:      writer,
		Assembler:  artifact.NewSequenceAssembler(dir, zerolog.Nop()),
	}, Options{StartIndex: -1, Concurrency: 1, OutputPath: out}, zerolog.Nop())

	report, err := driver.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, []int{1}, report.FailedPages)
}

func TestRunGracefulCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	gen := &fakeGenerator{}
	gen.onCall = func(page domain.PageRecord) {
		if page.Index == 0 {
			cancel()
		}
	}
	h := newHarness(t, 5, nil, gen, Options{StartIndex: -1, Concurrency: 1})

	report, err := h.driver.Run(ctx, nil)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)

	// The in-flight page completed its generation and write despite the
	// cancelled run context; no new pages were started, assembly was
	// deferred, and skipped pages are not reported as failures.
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 0, report.Failed)
	assert.Empty(t, report.FailedPages)
	_, statErr := os.Stat(h.out)
	assert.True(t, os.IsNotExist(statErr), "final document must not be assembled after cancellation")

	writer, werr := artifact.NewWriter(h.dir, "deck", zerolog.Nop())
	require.NoError(t, werr)
	highest, herr := writer.HighestIndex()
	require.NoError(t, herr)
	assert.Equal(t, 0, highest, "the in-flight page's artifact must be on disk")
}

func TestRunCancelledEarlySkipsQueuedPages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h := newHarness(t, 5, nil, nil, Options{StartIndex: 0, Concurrency: 2})

	report, err := h.driver.Run(ctx, nil)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)

	assert.Equal(t, 0, report.Succeeded)
	assert.Equal(t, 0, report.Failed, "queued pages must be skipped, not failed")
	assert.Empty(t, report.FailedPages)
}

func TestRunEmitsEvents(t *testing.T) {
	h := newHarness(t, 2, nil, nil, Options{StartIndex: -1, Concurrency: 1})

	eventCh := make(chan domain.Event, 100)
	_, err := h.driver.Run(context.Background(), eventCh)
	require.NoError(t, err)
	close(eventCh)

	var types []domain.EventType
	for event := range eventCh {
		types = append(types, event.Type)
	}

	assert.Contains(t, types, domain.EventStart)
	assert.Contains(t, types, domain.EventPageDone)
	assert.Contains(t, types, domain.EventAssembled)
	assert.Contains(t, types, domain.EventComplete)
}
