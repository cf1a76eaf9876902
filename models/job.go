package models

import "time"

// ExtractionMode selects how much of the catalog a job pulls.
type ExtractionMode string

const (
	ModeFull        ExtractionMode = "full"
	ModeIncremental ExtractionMode = "incremental"
	ModePriceOnly   ExtractionMode = "price-only"
)

// Valid reports whether the mode is one of the recognized values.
func (m ExtractionMode) Valid() bool {
	switch m {
	case ModeFull, ModeIncremental, ModePriceOnly:
		return true
	}
	return false
}

// JobState is the position of an ExtractionJob in its lifecycle.
type JobState int

const (
	JobPending JobState = iota
	JobAuthenticating
	JobListing
	JobNormalizing
	JobAggregating
	JobExporting
	JobCompleted
	JobFailed
)

// String returns the lowercase state name.
func (s JobState) String() string {
	switch s {
	case JobPending:
		return "pending"
	case JobAuthenticating:
		return "authenticating"
	case JobListing:
		return "listing"
	case JobNormalizing:
		return "normalizing"
	case JobAggregating:
		return "aggregating"
	case JobExporting:
		return "exporting"
	case JobCompleted:
		return "completed"
	case JobFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state is final. Terminal jobs are immutable.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// ExtractionJob tracks one catalog extraction end to end. Only the
// orchestrator mutates it.
type ExtractionJob struct {
	ID          string         `json:"id"`
	Distributor string         `json:"distributor"`
	Mode        ExtractionMode `json:"mode"`
	Filters     Filters        `json:"filters"`
	BatchSize   int            `json:"batch_size"`
	State       JobState       `json:"state"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at"`

	// Result and Err are set exactly once, when the job reaches a
	// terminal state.
	Result *ExtractionResult `json:"-"`
	Err    error             `json:"-"`
}

// PaginationState is the convergence detector's working memory for one
// listing loop. Reset per listing call, discarded after convergence.
type PaginationState struct {
	SeenCount        int
	PreviousCount    int
	StableIterations int
	Attempts         int
}

// PriceStats summarizes prices over the records with amount > 0.
type PriceStats struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Avg    float64 `json:"avg"`
	Median float64 `json:"median"`
}

// ExtractionResult is the final, immutable artifact of one job.
type ExtractionResult struct {
	Distributor    string           `json:"distributor"`
	TotalProducts  int              `json:"total_products"`
	Products       []*ProductRecord `json:"products"`
	CategoryCounts map[string]int   `json:"category_counts"`
	PriceStats     PriceStats       `json:"price_stats"`
	DurationMs     int64            `json:"duration_ms"`
	Timestamp      time.Time        `json:"timestamp"`
	Partial        bool             `json:"partial,omitempty"`
}
