package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "mosaic_etl"

// Region and variable names come from file bytes. GridMaxValue reports
// malformed names, and any pair beyond the first maxGridLabelSets, as "other".
const (
	maxGridLabelSets = 64
	maxGridLabelLen  = 16
	otherLabel       = "other"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the ETL pipeline.
type Metrics struct {
	MessagesConsumed prometheus.Counter
	MessagesProduced prometheus.Counter
	TransformErrors  *prometheus.CounterVec // labels: class={format,unsupported,io,other}
	PipelineRunning  prometheus.Gauge

	// Batch processing metrics.
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram

	// Decoder metrics.
	DecodeDuration prometheus.Histogram
	GridCoverage   prometheus.Histogram
	GridMaxValue   *prometheus.GaugeVec // labels: region, var; set via ObserveGridMax

	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec   // labels: method={reverse}, outcome={success,error,empty}
	GeocodeCache       *prometheus.CounterVec   // labels: method={reverse}, result={hit,miss}
	GeocodeAPIDuration *prometheus.HistogramVec // labels: method={reverse}
	GeocodeEnabled     prometheus.Gauge

	// Catalog and alerting metrics.
	CatalogDuplicates prometheus.Counter
	AlertsPublished   *prometheus.CounterVec // labels: outcome={success,error}

	gridLabelsMu sync.Mutex
	gridLabels   map[[2]string]struct{}
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics that are not registered anywhere, so
// tests can build as many as they like.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		gridLabels: make(map[[2]string]struct{}),
		MessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_consumed_total",
			Help:      "Total mosaic files read from the source topic.",
		}),
		MessagesProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_produced_total",
			Help:      "Total product summaries written to the sink topic.",
		}),
		TransformErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transform_errors_total",
			Help:      "Mosaic files that failed to decode, by error class.",
		}, []string{"class"}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the pipeline is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of messages per batch extracted from Kafka.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of a complete batch extract-transform-load cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		DecodeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decode_duration_seconds",
			Help:      "Time to decode one mosaic file into a grid.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		GridCoverage: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "grid_coverage_ratio",
			Help:      "Fraction of grid cells above the no-data threshold.",
			Buckets:   []float64{0, 0.01, 0.05, 0.1, 0.2, 0.4, 0.6, 0.8, 1},
		}),
		GridMaxValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "grid_max_value",
			Help:      "Maximum unmasked value of the latest product per region and variable.",
		}, []string{"region", "var"}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Geocoding API requests by method and outcome.",
		}, []string{"method", "outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by method and result.",
		}, []string{"method", "result"}),
		GeocodeAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_api_duration_seconds",
			Help:      "Mapbox API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method"}),
		GeocodeEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "geocode_enabled",
			Help:      "1 when geocoding enrichment is enabled, 0 otherwise.",
		}),
		CatalogDuplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_duplicates_total",
			Help:      "Products dropped because the catalog had already seen them.",
		}),
		AlertsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_published_total",
			Help:      "Intensity alerts published to MQTT by outcome.",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.MessagesConsumed,
		m.MessagesProduced,
		m.TransformErrors,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
		m.DecodeDuration,
		m.GridCoverage,
		m.GridMaxValue,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
		m.GeocodeEnabled,
		m.CatalogDuplicates,
		m.AlertsPublished,
	}
}

// ObserveGridMax records the maximum value of a decoded grid under bounded
// region and var labels.
func (m *Metrics) ObserveGridMax(region, varName string, v float64) {
	region, varName = m.gridLabelSet(region, varName)
	m.GridMaxValue.WithLabelValues(region, varName).Set(v)
}

func (m *Metrics) gridLabelSet(region, varName string) (string, string) {
	if !validLabel(region) || !validLabel(varName) {
		return otherLabel, otherLabel
	}
	key := [2]string{region, varName}

	m.gridLabelsMu.Lock()
	defer m.gridLabelsMu.Unlock()
	if _, ok := m.gridLabels[key]; ok {
		return region, varName
	}
	if len(m.gridLabels) >= maxGridLabelSets {
		return otherLabel, otherLabel
	}
	m.gridLabels[key] = struct{}{}
	return region, varName
}

func validLabel(s string) bool {
	if s == "" || len(s) > maxGridLabelLen {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}
