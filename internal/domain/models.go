package domain

import "time"

// TextElement is one text block with coordinates normalized to the page's own
// dimensions. x, y and width are dimensionless fractions in [0,1]; y=0 is the
// visual top edge of the page regardless of the source coordinate convention.
type TextElement struct {
	Text  string  `json:"text"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Width float64 `json:"width"`
}

// PageRecord is the normalized structural representation of one source page.
// Index is the 0-based page identity and never changes after extraction.
type PageRecord struct {
	Index        int           `json:"index"`
	TextElements []TextElement `json:"text"`
	ImageRefs    []string      `json:"images"`
	Width        float64       `json:"width"`
	Height       float64       `json:"height"`
}

// PageExtraction pairs a page record with its extraction outcome so one
// malformed page does not abort the document-wide pass.
type PageExtraction struct {
	Record PageRecord
	Err    error
}

// PageState tracks a page through the pipeline
type PageState string

const (
	StatePending    PageState = "pending"
	StateRasterized PageState = "rasterized"
	StateGenerated  PageState = "generated"
	StateWritten    PageState = "written"
	StateDone       PageState = "done"
	StateFailed     PageState = "failed"
)

// PageResult is the terminal outcome for a single page in a run.
type PageResult struct {
	Index int
	State PageState
	Err   error
}

// RunReport summarizes a completed pipeline run.
type RunReport struct {
	TotalPages  int
	StartIndex  int
	Succeeded   int
	Failed      int
	FailedPages []int
	OutputPath  string
	Duration    time.Duration
}

// EventType represents the type of pipeline progress event
type EventType string

const (
	EventStart       EventType = "start"
	EventPageStarted EventType = "page_started"
	EventPageDone    EventType = "page_done"
	EventPageFailed  EventType = "page_failed"
	EventAssembled   EventType = "assembled"
	EventComplete    EventType = "complete"
)

// Event is emitted by the pipeline driver as pages move through the run.
type Event struct {
	Type      EventType
	PageIndex int
	Message   string
	Err       error
	Timestamp time.Time
}
