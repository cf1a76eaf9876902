package extract

import (
	"sort"
	"sync"
	"time"

	"github.com/aluiziolira/go-extract-catalog/models"
)

// Aggregator accumulates product records keyed by (distributor, SKU) with
// first-seen-wins semantics. Pagination overlap is expected: re-reading
// rows that were already seen must not inflate counts.
type Aggregator struct {
	distributor string

	mu    sync.Mutex
	byKey map[string]*models.ProductRecord
	order []string
}

// NewAggregator builds an empty aggregator for one distributor run.
func NewAggregator(distributor string) *Aggregator {
	return &Aggregator{
		distributor: distributor,
		byKey:       make(map[string]*models.ProductRecord),
	}
}

// Add inserts a record unless its key was already seen. Returns whether the
// record was kept.
func (a *Aggregator) Add(record *models.ProductRecord) bool {
	if record == nil || record.SKU == "" {
		return false
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	key := record.Key()
	if _, seen := a.byKey[key]; seen {
		return false
	}
	a.byKey[key] = record
	a.order = append(a.order, key)
	return true
}

// Count returns the number of distinct records accumulated so far.
func (a *Aggregator) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.byKey)
}

// Result snapshots the accumulated set into a final artifact with category
// counts and price statistics. Records keep first-seen order.
func (a *Aggregator) Result(duration time.Duration, partial bool) *models.ExtractionResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	products := make([]*models.ProductRecord, 0, len(a.order))
	categoryCounts := make(map[string]int)
	var positive []float64

	for _, key := range a.order {
		record := a.byKey[key]
		products = append(products, record)
		categoryCounts[record.Category]++
		// Zero amounts are unparsed prices; including them would skew
		// every statistic downward.
		if record.Price.Amount > 0 {
			positive = append(positive, record.Price.Amount)
		}
	}

	return &models.ExtractionResult{
		Distributor:    a.distributor,
		TotalProducts:  len(products),
		Products:       products,
		CategoryCounts: categoryCounts,
		PriceStats:     computePriceStats(positive),
		DurationMs:     duration.Milliseconds(),
		Timestamp:      time.Now(),
		Partial:        partial,
	}
}

func computePriceStats(amounts []float64) models.PriceStats {
	if len(amounts) == 0 {
		return models.PriceStats{}
	}

	sorted := make([]float64, len(amounts))
	copy(sorted, amounts)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}

	mid := len(sorted) / 2
	median := sorted[mid]
	if len(sorted)%2 == 0 {
		median = (sorted[mid-1] + sorted[mid]) / 2
	}

	return models.PriceStats{
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Avg:    sum / float64(len(sorted)),
		Median: median,
	}
}
