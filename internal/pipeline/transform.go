package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/couchcryptid/storm-mosaic-etl/internal/domain"
	"github.com/couchcryptid/storm-mosaic-etl/internal/observability"
)

// MosaicTransformer implements Transformer using the domain decode and
// enrichment functions with optional geocoding.
type MosaicTransformer struct {
	geocoder domain.Geocoder
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewTransformer creates a MosaicTransformer. Pass a nil geocoder to disable
// geocoding enrichment.
func NewTransformer(geocoder domain.Geocoder, logger *slog.Logger, metrics *observability.Metrics) *MosaicTransformer {
	return &MosaicTransformer{
		geocoder: geocoder,
		logger:   logger,
		metrics:  metrics,
	}
}

func (t *MosaicTransformer) Transform(ctx context.Context, raw domain.RawEvent) (domain.MosaicProduct, error) {
	start := time.Now()
	product, err := domain.ParseRawEvent(raw)
	if err != nil {
		return domain.MosaicProduct{}, err
	}
	t.metrics.DecodeDuration.Observe(time.Since(start).Seconds())
	t.metrics.GridCoverage.Observe(product.Coverage)
	t.metrics.ObserveGridMax(product.RegionID, product.VarName, product.MaxValue)

	product = domain.EnrichProduct(product)
	product = domain.EnrichWithGeocoding(ctx, product, t.geocoder, t.logger)

	t.logger.Debug("mosaic decoded",
		"product_id", product.ID,
		"var", product.VarName,
		"region", product.RegionID,
		"nx", product.NX,
		"ny", product.NY,
		"valid_cells", product.ValidCells,
		"max", product.MaxValue,
	)
	return product, nil
}
