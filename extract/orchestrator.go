package extract

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aluiziolira/go-extract-catalog/config"
	"github.com/aluiziolira/go-extract-catalog/distributor"
	"github.com/aluiziolira/go-extract-catalog/export"
	"github.com/aluiziolira/go-extract-catalog/models"
	"github.com/aluiziolira/go-extract-catalog/normalize"
	"github.com/aluiziolira/go-extract-catalog/session"
	"github.com/aluiziolira/go-extract-catalog/workqueue"
	"github.com/google/uuid"
)

// Orchestrator drives extraction jobs for one distributor: session, bounded
// listing loop, streaming normalization into the aggregator, and export.
type Orchestrator struct {
	profile    *config.DistributorProfile
	adapter    distributor.Adapter
	sessions   *session.Manager
	queue      *workqueue.Queue
	normalizer *normalize.Normalizer
	sink       *export.Sink
	metrics    *workqueue.Metrics

	// PartialExports controls whether a job that fails mid-listing in a
	// non-full mode still exports what it aggregated.
	PartialExports bool
}

// New wires an orchestrator for one distributor profile.
func New(profile *config.DistributorProfile, adapter distributor.Adapter, sink *export.Sink, metrics *workqueue.Metrics) *Orchestrator {
	return &Orchestrator{
		profile:    profile,
		adapter:    adapter,
		sessions:   session.NewManager(),
		queue:      workqueue.New(profile.Concurrency, profile.Timeout, profile.MaxRetries, profile.RetryBackoff, profile.RetryBackoffMax, metrics),
		normalizer: normalize.New(profile.PriceValidity),
		sink:       sink,
		metrics:    metrics,

		PartialExports: true,
	}
}

// NewJob creates a pending extraction job for this orchestrator's
// distributor.
func (o *Orchestrator) NewJob(mode models.ExtractionMode, filters models.Filters, batchSize int) (*models.ExtractionJob, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("unknown extraction mode %q", mode)
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &models.ExtractionJob{
		ID:          uuid.NewString(),
		Distributor: o.profile.Identifier,
		Mode:        mode,
		Filters:     filters,
		BatchSize:   batchSize,
		State:       models.JobPending,
	}, nil
}

// Run executes the job state machine to a terminal state. On a fatal listing
// failure in a non-full mode, the partial result is exported and returned
// alongside the error; the job still reports Failed.
func (o *Orchestrator) Run(ctx context.Context, job *models.ExtractionJob, creds session.Credentials) (*models.ExtractionResult, error) {
	if job.State != models.JobPending {
		return nil, fmt.Errorf("job %s already started (state %s)", job.ID, job.State)
	}
	job.StartedAt = time.Now()
	start := job.StartedAt

	o.transition(job, models.JobAuthenticating)
	if _, err := o.sessions.EnsureSession(ctx, o.profile, creds, o.adapter, o.queue); err != nil {
		return nil, o.fail(job, nil, err)
	}

	o.transition(job, models.JobListing)
	agg := NewAggregator(o.profile.Identifier)
	detector := NewDetector(o.profile.StableIterations, o.profile.ConvergenceCap)

	if err := o.runListing(ctx, job, agg, detector); err != nil {
		var partial *models.ExtractionResult
		if o.PartialExports && job.Mode != models.ModeFull && agg.Count() > 0 {
			partial = agg.Result(time.Since(start), true)
			if exportErr := o.sink.Write(job.ID, partial); exportErr != nil {
				slog.Error("partial export failed",
					slog.String("job", job.ID),
					slog.Any("error", exportErr),
				)
				partial = nil
			} else {
				slog.Warn("exported partial result after fatal listing error",
					slog.String("job", job.ID),
					slog.Int("products", partial.TotalProducts),
				)
			}
		}
		return partial, o.fail(job, partial, err)
	}

	// Streaming already normalized and aggregated every page; these states
	// mark the flush and stats passes.
	o.transition(job, models.JobNormalizing)
	o.transition(job, models.JobAggregating)
	result := agg.Result(time.Since(start), false)

	o.transition(job, models.JobExporting)
	if err := o.sink.Write(job.ID, result); err != nil {
		return nil, o.fail(job, nil, err)
	}

	o.transition(job, models.JobCompleted)
	job.Result = result
	job.FinishedAt = time.Now()
	slog.Info("extraction completed",
		slog.String("job", job.ID),
		slog.String("distributor", job.Distributor),
		slog.Int("products", result.TotalProducts),
		slog.Int64("duration_ms", result.DurationMs),
	)
	return result, nil
}

// runListing alternates listing reads and convergence checks, feeding every
// raw item through the normalizer into the aggregator as it arrives, so
// partial results exist even if the job later fails.
func (o *Orchestrator) runListing(ctx context.Context, job *models.ExtractionJob, agg *Aggregator, detector *Detector) error {
	cursor := &distributor.Cursor{}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var items []*models.RawListingItem
		var more bool
		err := o.queue.Do(ctx, "list_page", func(ctx context.Context) error {
			var err error
			items, more, err = o.adapter.ListPage(ctx, cursor, job.Filters)
			return err
		})
		if err != nil {
			return err
		}
		o.metrics.IncPages()
		o.metrics.AddItems(len(items))

		for _, raw := range items {
			record := o.normalizer.Normalize(o.profile.Identifier, raw)
			if record == nil {
				continue
			}
			o.applyMode(job.Mode, record)
			agg.Add(record)
		}

		state := detector.State()
		slog.Info("listing progress",
			slog.String("job", job.ID),
			slog.Int("iteration", state.Attempts+1),
			slog.Int("distinct_items", agg.Count()),
			slog.Bool("more", more),
		)

		if detector.Observe(agg.Count(), more) {
			if detector.Exhausted() {
				slog.Warn("listing stopped at iteration cap before converging",
					slog.String("job", job.ID),
					slog.Int("cap", detector.MaxIterations),
				)
			}
			return nil
		}
	}
}

// applyMode trims record fields for the slimmer extraction modes.
func (o *Orchestrator) applyMode(mode models.ExtractionMode, record *models.ProductRecord) {
	if mode == models.ModePriceOnly {
		record.ImageURLs = nil
		record.Model = ""
	}
}

func (o *Orchestrator) transition(job *models.ExtractionJob, next models.JobState) {
	slog.Debug("job state",
		slog.String("job", job.ID),
		slog.String("from", job.State.String()),
		slog.String("to", next.String()),
	)
	job.State = next
}

func (o *Orchestrator) fail(job *models.ExtractionJob, partial *models.ExtractionResult, err error) error {
	job.State = models.JobFailed
	job.Err = err
	job.Result = partial
	job.FinishedAt = time.Now()
	slog.Error("extraction failed",
		slog.String("job", job.ID),
		slog.String("distributor", job.Distributor),
		slog.String("class", distributor.ClassLabel(err)),
		slog.Bool("partial_exported", partial != nil),
		slog.Any("error", err),
	)
	return err
}

// ListProducts enumerates the catalog to convergence without exporting.
func (o *Orchestrator) ListProducts(ctx context.Context, creds session.Credentials, filters models.Filters) ([]*models.ProductRecord, error) {
	if _, err := o.sessions.EnsureSession(ctx, o.profile, creds, o.adapter, o.queue); err != nil {
		return nil, err
	}

	job := &models.ExtractionJob{
		ID:          uuid.NewString(),
		Distributor: o.profile.Identifier,
		Mode:        models.ModeIncremental,
		Filters:     filters,
		State:       models.JobListing,
	}
	agg := NewAggregator(o.profile.Identifier)
	detector := NewDetector(o.profile.StableIterations, o.profile.ConvergenceCap)
	if err := o.runListing(ctx, job, agg, detector); err != nil {
		return nil, err
	}
	return agg.Result(0, false).Products, nil
}

// GetProduct fetches and normalizes one product by SKU. Returns nil when the
// portal has no such product.
func (o *Orchestrator) GetProduct(ctx context.Context, creds session.Credentials, sku string) (*models.ProductRecord, error) {
	if _, err := o.sessions.EnsureSession(ctx, o.profile, creds, o.adapter, o.queue); err != nil {
		return nil, err
	}

	var raw *models.RawListingItem
	err := o.queue.Do(ctx, "fetch_detail", func(ctx context.Context) error {
		var err error
		raw, err = o.adapter.FetchDetail(ctx, sku)
		return err
	})
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	return o.normalizer.Normalize(o.profile.Identifier, raw), nil
}

// StockUnknown marks a SKU whose quantity the portal does not expose.
const StockUnknown = -1

// CheckStock fetches details for a batch of SKUs under the politeness limit
// and reports quantities. SKUs that fail or are missing report StockUnknown
// rather than failing the batch.
func (o *Orchestrator) CheckStock(ctx context.Context, creds session.Credentials, skus []string) (map[string]int, error) {
	if _, err := o.sessions.EnsureSession(ctx, o.profile, creds, o.adapter, o.queue); err != nil {
		return nil, err
	}

	out := make(map[string]int, len(skus))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, sku := range skus {
		wg.Add(1)
		go func(sku string) {
			defer wg.Done()

			var raw *models.RawListingItem
			err := o.queue.Do(ctx, "fetch_detail", func(ctx context.Context) error {
				var err error
				raw, err = o.adapter.FetchDetail(ctx, sku)
				return err
			})

			quantity := StockUnknown
			if err == nil && raw != nil {
				record := o.normalizer.Normalize(o.profile.Identifier, raw)
				if record.Availability.Quantity != nil {
					quantity = *record.Availability.Quantity
				} else if !record.Availability.InStock {
					quantity = 0
				}
			} else if err != nil {
				slog.Warn("stock check failed for sku",
					slog.String("sku", sku),
					slog.Any("error", err),
				)
			}

			mu.Lock()
			out[sku] = quantity
			mu.Unlock()
		}(sku)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Authenticate exposes session establishment directly for the protocol
// surface.
func (o *Orchestrator) Authenticate(ctx context.Context, creds session.Credentials) (*models.AuthSession, error) {
	return o.sessions.EnsureSession(ctx, o.profile, creds, o.adapter, o.queue)
}

// Queue exposes retry counters for run summaries.
func (o *Orchestrator) Queue() *workqueue.Queue {
	return o.queue
}

// Close tears down the adapter's browser or HTTP resources.
func (o *Orchestrator) Close() error {
	o.sessions.Invalidate(o.profile.Identifier)
	return o.adapter.Close()
}
