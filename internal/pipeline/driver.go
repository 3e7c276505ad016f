// Package pipeline coordinates the per-page decomposition/reassembly run:
// one document-wide extraction pass, a bounded worker pool running
// rasterize -> generate -> write for each page, and a single assembly pass at
// the end. Progress is reported through an event channel.
package pipeline

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/deckforge/deckforge/internal/domain"
)

// Deps are the collaborators the driver coordinates. All of them are
// interfaces so the expensive or unreliable ones can be substituted in tests.
type Deps struct {
	Extractor  domain.Extractor
	Rasterizer domain.Rasterizer
	Generator  domain.ContentGenerator
	Store      domain.ArtifactStore
	Assembler  domain.Assembler
}

// Options tune a run.
type Options struct {
	// StartIndex is the first page index to process. -1 auto-detects the
	// resume point by scanning for the highest existing artifact index.
	StartIndex int

	// Concurrency bounds the worker pool. The generation service is the one
	// shared external resource needing backpressure, so this is effectively
	// its rate limit.
	Concurrency int

	// RenderAttempts bounds retries of a failed page render.
	RenderAttempts int

	// OutputPath is where the assembled final document is written.
	OutputPath string
}

// Driver owns the run state for one conversion. Progress beyond the current
// offset is never persisted separately: which artifact files exist on disk is
// the resume state.
type Driver struct {
	deps   Deps
	opts   Options
	logger zerolog.Logger
}

// NewDriver creates a pipeline driver.
func NewDriver(deps Deps, opts Options, logger zerolog.Logger) *Driver {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 2
	}
	if opts.RenderAttempts <= 0 {
		opts.RenderAttempts = 2
	}
	return &Driver{
		deps:   deps,
		opts:   opts,
		logger: logger.With().Str("component", "pipeline").Logger(),
	}
}

// ResolveStartIndex returns the first page index the run will process:
// the configured value, or highest existing artifact index + 1 when
// auto-detection is requested.
func (d *Driver) ResolveStartIndex() (int, error) {
	if d.opts.StartIndex >= 0 {
		return d.opts.StartIndex, nil
	}
	highest, err := d.deps.Store.HighestIndex()
	if err != nil {
		return 0, err
	}
	return highest + 1, nil
}

// Run drives the whole pipeline. Page-level failures are isolated: the page
// is reported in the run report and left absent from the final document while
// the rest of the run proceeds. A cancelled context stops the run after the
// in-flight pages complete, leaving the artifact directory resumable.
func (d *Driver) Run(ctx context.Context, eventCh chan<- domain.Event) (*domain.RunReport, error) {
	startTime := time.Now()

	start, err := d.ResolveStartIndex()
	if err != nil {
		return nil, err
	}

	pageCount := d.deps.Extractor.PageCount()
	d.emit(eventCh, domain.Event{
		Type:    domain.EventStart,
		Message: "starting extraction pass",
	})

	d.logger.Info().Int("pages", pageCount).Int("start", start).Msg("starting run")

	extractions, err := d.deps.Extractor.ExtractDocument(ctx)
	if err != nil {
		d.emit(eventCh, domain.Event{Type: domain.EventPageFailed, Err: err})
		return nil, err
	}

	results := d.processPages(ctx, extractions[min(start, len(extractions)):], eventCh)

	report := &domain.RunReport{
		TotalPages: pageCount,
		StartIndex: start,
		Duration:   time.Since(startTime),
	}
	for _, res := range results {
		if res.State == domain.StateDone {
			report.Succeeded++
		} else {
			report.Failed++
			report.FailedPages = append(report.FailedPages, res.Index)
		}
	}
	sort.Ints(report.FailedPages)

	if ctx.Err() != nil {
		// Shutdown requested: the artifact directory stays valid for resume
		// and assembly is deferred to the next run.
		d.logger.Warn().Msg("run cancelled before assembly")
		report.Duration = time.Since(startTime)
		return report, ctx.Err()
	}

	if err := d.deps.Assembler.Assemble(d.opts.OutputPath); err != nil {
		return report, err
	}
	report.OutputPath = d.opts.OutputPath

	d.emit(eventCh, domain.Event{
		Type:    domain.EventAssembled,
		Message: d.opts.OutputPath,
	})
	d.emit(eventCh, domain.Event{Type: domain.EventComplete})

	report.Duration = time.Since(startTime)
	d.logger.Info().
		Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).
		Dur("duration", report.Duration).
		Msg("run complete")

	return report, nil
}

// processPages runs the worker pool over the page range. Cancellation only
// gates the pickup of new pages: a page already handed to a worker runs to
// completion, and pages still queued are skipped entirely and picked up on
// resume.
func (d *Driver) processPages(ctx context.Context, extractions []domain.PageExtraction, eventCh chan<- domain.Event) []domain.PageResult {
	workCh := make(chan domain.PageExtraction, len(extractions))
	for _, ex := range extractions {
		workCh <- ex
	}
	close(workCh)

	var (
		mu      sync.Mutex
		results []domain.PageResult
		wg      sync.WaitGroup
	)

	workers := d.opts.Concurrency
	if workers > len(extractions) {
		workers = len(extractions)
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ex := range workCh {
				if ctx.Err() != nil {
					return
				}

				// Collaborator calls run detached from the run context, so
				// a started page always finishes. Only the generator's own
				// timeout bounds it.
				res := d.processPage(context.WithoutCancel(ctx), ex, eventCh)

				mu.Lock()
				results = append(results, res)
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	return results
}

// processPage walks one page through the state machine:
// Pending -> Rasterized -> Generated -> Written -> Done, or Failed at any
// transition.
func (d *Driver) processPage(ctx context.Context, ex domain.PageExtraction, eventCh chan<- domain.Event) domain.PageResult {
	idx := ex.Record.Index
	res := domain.PageResult{Index: idx, State: domain.StatePending}

	d.emit(eventCh, domain.Event{Type: domain.EventPageStarted, PageIndex: idx})

	fail := func(err error) domain.PageResult {
		res.State = domain.StateFailed
		res.Err = err
		d.logger.Error().Int("page", idx).Err(err).Msg("page failed")
		d.emit(eventCh, domain.Event{Type: domain.EventPageFailed, PageIndex: idx, Err: err})
		return res
	}

	if ex.Err != nil {
		return fail(ex.Err)
	}

	imageURI, err := d.renderWithRetry(ctx, idx)
	if err != nil {
		return fail(err)
	}
	res.State = domain.StateRasterized

	markup, err := d.deps.Generator.Generate(ctx, ex.Record, imageURI)
	if err != nil {
		return fail(err)
	}
	res.State = domain.StateGenerated

	if err := d.deps.Store.Write(idx, markup); err != nil {
		return fail(err)
	}
	res.State = domain.StateWritten

	res.State = domain.StateDone
	d.emit(eventCh, domain.Event{Type: domain.EventPageDone, PageIndex: idx})
	return res
}

// renderWithRetry retries a failed render a bounded number of times; renders
// are local work, so no backoff between attempts.
func (d *Driver) renderWithRetry(ctx context.Context, idx int) (string, error) {
	var lastErr error
	for attempt := 0; attempt < d.opts.RenderAttempts; attempt++ {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		img, err := d.deps.Rasterizer.RenderPage(ctx, idx)
		if err == nil {
			return img, nil
		}
		lastErr = err
		d.logger.Warn().Int("page", idx).Int("attempt", attempt+1).Err(err).Msg("render failed")
	}
	return "", lastErr
}

// emit sends an event without ever blocking the pipeline on a slow consumer.
func (d *Driver) emit(eventCh chan<- domain.Event, event domain.Event) {
	if eventCh == nil {
		return
	}
	event.Timestamp = time.Now()
	select {
	case eventCh <- event:
	default:
		d.logger.Warn().Str("type", string(event.Type)).Msg("event channel full, dropping event")
	}
}
