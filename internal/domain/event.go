package domain

import (
	"context"
	"time"
)

// RawEvent represents an unprocessed message from the source topic. Value
// holds a complete mosaic file.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// Geo represents a WGS-84 latitude/longitude coordinate pair.
type Geo struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// BoundingBox is the geographic extent of a grid in degrees.
type BoundingBox struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

// MosaicProduct is the summary of one decoded mosaic, published downstream in
// place of the multi-megabyte grid.
type MosaicProduct struct {
	ID          string     `json:"id"`
	VarName     string     `json:"var"`
	Description string     `json:"description,omitempty"`
	RegionID    string     `json:"region,omitempty"`
	Units       string     `json:"units,omitempty"`
	ObservedAt  time.Time  `json:"observed_at"`
	GeneratedAt *time.Time `json:"generated_at,omitempty"`
	SourceFile  string     `json:"source_file,omitempty"`

	// Grid geometry.
	BBox        BoundingBox `json:"bbox"`
	Center      Geo         `json:"center"`
	NX          int         `json:"nx"`
	NY          int         `json:"ny"`
	DX          float64     `json:"dx"`
	DY          float64     `json:"dy"`
	Compression string      `json:"compression"`
	NumRadars   int         `json:"num_radars"`

	// Statistics over unmasked cells.
	Cells      int     `json:"cells"`
	ValidCells int     `json:"valid_cells"`
	Coverage   float64 `json:"coverage"`
	MaxValue   float64 `json:"max_value"`
	MeanValue  float64 `json:"mean_value"`
	StdDev     float64 `json:"stddev"`
	MaxAt      *Geo    `json:"max_at,omitempty"`

	Intensity  *string `json:"intensity,omitempty"`
	TimeBucket string  `json:"time_bucket,omitempty"`

	// Geocoding enrichment fields.
	FormattedAddress string  `json:"formatted_address,omitempty"`
	PlaceName        string  `json:"place_name,omitempty"`
	GeoConfidence    float64 `json:"geo_confidence,omitempty"`
	GeoSource        string  `json:"geo_source,omitempty"` // "reverse", "original", "failed"

	ProcessedAt time.Time `json:"processed_at"`
}

// OutputEvent is the serialized form destined for the sink topic.
type OutputEvent struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}
