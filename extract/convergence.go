// Package extract drives one extraction job end to end: convergence-bounded
// listing, streaming normalization, first-seen-wins aggregation, and export.
package extract

import "github.com/aluiziolira/go-extract-catalog/models"

// Detector decides when repeated listing reads have fully enumerated a
// catalog. It never runs unbounded: the iteration cap is a mandatory safety
// bound on top of the stability criterion.
type Detector struct {
	// StableThreshold is how many consecutive iterations the distinct item
	// count must hold before the listing counts as converged. 1 suits
	// paged portals; infinite-scroll portals need more because late-loading
	// content makes single stable reads unreliable.
	StableThreshold int

	// MaxIterations is the hard ceiling on listing reads.
	MaxIterations int

	state     models.PaginationState
	exhausted bool
}

// NewDetector builds a detector with the given stability threshold and cap.
func NewDetector(stableThreshold, maxIterations int) *Detector {
	if stableThreshold <= 0 {
		stableThreshold = 1
	}
	if maxIterations <= 0 {
		maxIterations = 50
	}
	return &Detector{
		StableThreshold: stableThreshold,
		MaxIterations:   maxIterations,
	}
}

// Observe records the distinct item total after one listing read and reports
// whether the loop should stop. moreContent is the adapter's own signal that
// further content is reachable; when it reports false the loop stops
// regardless of count stability.
func (d *Detector) Observe(totalSeen int, moreContent bool) (converged bool) {
	d.state.Attempts++
	d.state.PreviousCount = d.state.SeenCount
	d.state.SeenCount = totalSeen

	if totalSeen == d.state.PreviousCount {
		d.state.StableIterations++
	} else {
		d.state.StableIterations = 0
	}

	if !moreContent {
		return true
	}
	if d.state.StableIterations >= d.StableThreshold {
		return true
	}
	if d.state.Attempts >= d.MaxIterations {
		d.exhausted = true
		return true
	}
	return false
}

// Exhausted reports whether the detector stopped on its iteration cap rather
// than on a convergence signal.
func (d *Detector) Exhausted() bool {
	return d.exhausted
}

// State returns a copy of the pagination state for progress reporting.
func (d *Detector) State() models.PaginationState {
	return d.state
}
