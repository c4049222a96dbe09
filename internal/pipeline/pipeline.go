package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/couchcryptid/storm-mosaic-etl/internal/domain"
	"github.com/couchcryptid/storm-mosaic-etl/internal/mosaic"
	"github.com/couchcryptid/storm-mosaic-etl/internal/observability"
)

// BatchExtractor reads up to batchSize raw events from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawEvent, error)
}

// Transformer converts a raw mosaic message into a product summary.
type Transformer interface {
	Transform(ctx context.Context, raw domain.RawEvent) (domain.MosaicProduct, error)
}

// BatchLoader writes multiple products to the destination.
type BatchLoader interface {
	LoadBatch(ctx context.Context, products []domain.MosaicProduct) error
}

// Deduper filters out products that were already loaded and records the ones
// that have been. Record is only called after a successful load so that a
// redelivered batch is not dropped.
type Deduper interface {
	Unseen(ctx context.Context, products []domain.MosaicProduct) ([]domain.MosaicProduct, error)
	Record(ctx context.Context, products []domain.MosaicProduct) error
}

// Notifier publishes an alert for an intense product.
type Notifier interface {
	Notify(ctx context.Context, product domain.MosaicProduct) error
}

// Option configures optional pipeline stages.
type Option func(*Pipeline)

// WithDeduper drops products the deduper has already seen before loading.
func WithDeduper(d Deduper) Option {
	return func(p *Pipeline) { p.deduper = d }
}

// WithNotifier publishes alerts for heavy and extreme products after loading.
func WithNotifier(n Notifier) Option {
	return func(p *Pipeline) { p.notifier = n }
}

// Pipeline orchestrates the extract-transform-load loop.
type Pipeline struct {
	extractor   BatchExtractor
	transformer Transformer
	loader      BatchLoader
	deduper     Deduper
	notifier    Notifier
	logger      *slog.Logger
	metrics     *observability.Metrics
	ready       atomic.Bool
	latest      atomic.Pointer[domain.MosaicProduct]
	batchSize   int
}

// New creates a Pipeline with the given stages and observability.
func New(e BatchExtractor, t Transformer, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, batchSize int, opts ...Option) *Pipeline {
	p := &Pipeline{
		extractor:   e,
		transformer: t,
		loader:      l,
		logger:      logger,
		metrics:     metrics,
		batchSize:   batchSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CheckReadiness returns nil if the pipeline has processed at least one message,
// or an error describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not processed any messages yet")
	}
	return nil
}

// LatestProduct returns the most recently loaded product.
func (p *Pipeline) LatestProduct(_ context.Context) (domain.MosaicProduct, bool, error) {
	latest := p.latest.Load()
	if latest == nil {
		return domain.MosaicProduct{}, false, nil
	}
	return *latest, true, nil
}

// Run executes the batch ETL loop until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.batchSize,
		"dedupe", p.deduper != nil, "alerts", p.notifier != nil)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	// Exponential backoff: start at 200ms, double each retry, cap at 5s.
	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if !p.processBatch(ctx, &backoff, maxBackoff) {
			return nil
		}
	}
}

// processBatch runs one extract-transform-load cycle. Returns false if the pipeline should stop.
func (p *Pipeline) processBatch(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	start := time.Now()

	rawBatch, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("extract batch failed", "error", err)
		return p.backoffOrStop(ctx, backoff, maxBackoff)
	}

	if len(rawBatch) == 0 {
		return ctx.Err() == nil
	}

	p.metrics.MessagesConsumed.Add(float64(len(rawBatch)))
	p.metrics.BatchSize.Observe(float64(len(rawBatch)))
	*backoff = 200 * time.Millisecond

	loaded, ok := p.transformAndLoad(ctx, rawBatch, backoff, maxBackoff)
	if !ok {
		return false
	}
	*backoff = 200 * time.Millisecond

	if loaded > 0 {
		p.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())
		p.ready.Store(true)
	}
	return true
}

// transformAndLoad decodes each message in the batch, drops duplicates and
// loads the rest, retrying the load with backoff until it succeeds. Undecodable
// files are poison pills: they are counted by error class and skipped. Offsets
// are committed in fetch order only after the load succeeds, so a committed
// poison pill never covers an earlier message that was not loaded. Returns the
// number of loaded products and false if the pipeline should stop.
func (p *Pipeline) transformAndLoad(ctx context.Context, rawBatch []domain.RawEvent, backoff *time.Duration, maxBackoff time.Duration) (int, bool) {
	products := make([]domain.MosaicProduct, 0, len(rawBatch))

	for _, raw := range rawBatch {
		product, err := p.transformer.Transform(ctx, raw)
		if err != nil {
			class := mosaic.ErrorClass(err)
			p.logger.Warn("transform failed, skipping message",
				"error", err,
				"class", class,
				"topic", raw.Topic,
				"partition", raw.Partition,
				"offset", raw.Offset,
			)
			p.metrics.TransformErrors.WithLabelValues(class).Inc()
			continue
		}
		products = append(products, product)
	}

	products = p.dedupe(ctx, products)

	if len(products) > 0 {
		if !p.loadWithRetry(ctx, products, backoff, maxBackoff) {
			return 0, false
		}
		p.metrics.MessagesProduced.Add(float64(len(products)))
		p.record(ctx, products)
		last := products[len(products)-1]
		p.latest.Store(&last)
		p.notify(ctx, products)
	}

	for _, raw := range rawBatch {
		p.commitOffset(ctx, raw)
	}

	return len(products), true
}

// loadWithRetry loads products until the loader accepts them. Returns false
// if the context ends first, leaving the batch uncommitted for redelivery.
func (p *Pipeline) loadWithRetry(ctx context.Context, products []domain.MosaicProduct, backoff *time.Duration, maxBackoff time.Duration) bool {
	for {
		err := p.loader.LoadBatch(ctx, products)
		if err == nil {
			return true
		}
		p.logger.Error("load batch failed, retrying", "error", err, "batch_size", len(products), "backoff", *backoff)
		if !p.backoffOrStop(ctx, backoff, maxBackoff) {
			return false
		}
	}
}

// dedupe filters out products the catalog already holds. A catalog failure
// lets the whole batch through; downstream consumers key on the product ID.
func (p *Pipeline) dedupe(ctx context.Context, products []domain.MosaicProduct) []domain.MosaicProduct {
	if p.deduper == nil || len(products) == 0 {
		return products
	}
	fresh, err := p.deduper.Unseen(ctx, products)
	if err != nil {
		p.logger.Warn("catalog dedupe failed, loading batch as-is", "error", err, "batch_size", len(products))
		return products
	}
	if dup := len(products) - len(fresh); dup > 0 {
		p.logger.Debug("dropped duplicate products", "count", dup)
		p.metrics.CatalogDuplicates.Add(float64(dup))
	}
	return fresh
}

func (p *Pipeline) record(ctx context.Context, products []domain.MosaicProduct) {
	if p.deduper == nil {
		return
	}
	if err := p.deduper.Record(ctx, products); err != nil {
		p.logger.Warn("catalog record failed", "error", err, "batch_size", len(products))
	}
}

func (p *Pipeline) notify(ctx context.Context, products []domain.MosaicProduct) {
	if p.notifier == nil {
		return
	}
	for _, product := range products {
		if !domain.IsAlert(product) {
			continue
		}
		if err := p.notifier.Notify(ctx, product); err != nil {
			p.logger.Warn("publish alert failed", "error", err, "product_id", product.ID)
			p.metrics.AlertsPublished.WithLabelValues("error").Inc()
			continue
		}
		p.metrics.AlertsPublished.WithLabelValues("success").Inc()
	}
}

// backoffOrStop checks for context cancellation, sleeps with the current backoff,
// and advances the backoff. Returns false if the pipeline should stop.
func (p *Pipeline) backoffOrStop(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !retry.SleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = retry.NextBackoff(*backoff, maxBackoff)
	return true
}

// commitOffset commits the message offset if a commit function is available.
func (p *Pipeline) commitOffset(ctx context.Context, raw domain.RawEvent) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}
