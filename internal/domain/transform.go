package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/couchcryptid/storm-mosaic-etl/internal/mosaic"
)

// Intensity labels for reflectivity products.
const (
	IntensityLight    = "light"
	IntensityModerate = "moderate"
	IntensityHeavy    = "heavy"
	IntensityExtreme  = "extreme"
)

// ParseRawEvent decodes the mosaic file carried by raw into a product summary.
// Decoder errors are wrapped, so callers can still classify them with
// mosaic.ErrorClass.
func ParseRawEvent(raw RawEvent) (MosaicProduct, error) {
	g, err := mosaic.DecodeBytes(raw.Value)
	if err != nil {
		return MosaicProduct{}, fmt.Errorf("parse raw event: %w", err)
	}
	p := NewProduct(g)
	p.SourceFile = raw.Headers["filename"]
	return p, nil
}

// NewProduct summarises a decoded grid.
func NewProduct(g *mosaic.Grid) MosaicProduct {
	h := g.Header
	s := g.Summarize()

	bbox := BoundingBox{South: h.EdgeSouth, West: h.EdgeWest, North: h.EdgeNorth, East: h.EdgeEast}
	center := Geo{Lat: h.CenterY, Lon: h.CenterX}
	if center.Lat == 0 && center.Lon == 0 {
		center = Geo{Lat: (bbox.South + bbox.North) / 2, Lon: (bbox.West + bbox.East) / 2}
	}

	p := MosaicProduct{
		ID:          generateID(h.VarName, h.RegionID, h.ObservedAt(), bbox, h.NX, h.NY),
		VarName:     h.VarName,
		Description: h.Description,
		RegionID:    h.RegionID,
		Units:       h.Units,
		ObservedAt:  h.ObservedAt(),
		BBox:        bbox,
		Center:      center,
		NX:          h.NX,
		NY:          h.NY,
		DX:          h.DX,
		DY:          h.DY,
		Compression: h.Compression.String(),
		NumRadars:   int(h.NumRadars),
		Cells:       s.Cells,
		ValidCells:  s.ValidCells,
		Coverage:    s.Coverage,
		MaxValue:    s.Max,
		MeanValue:   s.Mean,
		StdDev:      s.StdDev,
	}
	if gen := h.GeneratedAt(); !gen.IsZero() {
		p.GeneratedAt = &gen
	}
	if s.ValidCells > 0 {
		p.MaxAt = &Geo{Lat: s.MaxLat, Lon: s.MaxLon}
	}
	return p
}

// generateID produces a deterministic ID from the product's identifying fields.
// The same file decoded twice, or a redelivered message, yields the same ID.
func generateID(varName, region string, observed time.Time, bbox BoundingBox, nx, ny int) string {
	input := fmt.Sprintf("%s|%s|%s|%.3f|%.3f|%.3f|%.3f|%d|%d",
		varName, region, observed.UTC().Format(time.RFC3339),
		bbox.South, bbox.West, bbox.North, bbox.East, nx, ny)
	hash := sha256.Sum256([]byte(input))
	short := hex.EncodeToString(hash[:8])
	if varName == "" {
		return short
	}
	return strings.ToLower(varName) + "-" + short
}

// EnrichProduct classifies intensity, assigns the hourly time bucket and
// stamps the processing time.
func EnrichProduct(p MosaicProduct) MosaicProduct {
	p.Intensity = deriveIntensity(p.Units, p.ValidCells, p.MaxValue)
	p.TimeBucket = deriveTimeBucket(p.ObservedAt)
	p.ProcessedAt = clock.Now()
	return p
}

// deriveIntensity maps the maximum reflectivity to a label using the usual
// precipitation bands: <35 dBZ light, <45 moderate, <55 heavy (convective),
// else extreme (hail likely). Returns nil for non-reflectivity products and
// products without valid cells.
func deriveIntensity(units string, validCells int, maxValue float64) *string {
	if validCells == 0 || !strings.EqualFold(strings.TrimSpace(units), "dBZ") {
		return nil
	}

	var s string
	switch {
	case maxValue < 35:
		s = IntensityLight
	case maxValue < 45:
		s = IntensityModerate
	case maxValue < 55:
		s = IntensityHeavy
	default:
		s = IntensityExtreme
	}
	return &s
}

// deriveTimeBucket truncates the observation time to the hour in UTC.
// Returns "" if the input is zero.
func deriveTimeBucket(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Truncate(time.Hour).Format(time.RFC3339)
}

// IsAlert reports whether a product is intense enough to publish an alert.
func IsAlert(p MosaicProduct) bool {
	if p.Intensity == nil {
		return false
	}
	return *p.Intensity == IntensityHeavy || *p.Intensity == IntensityExtreme
}

// SerializeProduct marshals a product into its sink representation.
func SerializeProduct(p MosaicProduct) (OutputEvent, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return OutputEvent{}, fmt.Errorf("serialize mosaic product: %w", err)
	}
	return OutputEvent{
		Key:   []byte(p.ID),
		Value: data,
		Headers: map[string]string{
			"var":          p.VarName,
			"region":       p.RegionID,
			"processed_at": p.ProcessedAt.Format(time.RFC3339),
		},
	}, nil
}
