package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/couchcryptid/storm-mosaic-etl/internal/mosaic"
	"github.com/couchcryptid/storm-mosaic-etl/internal/mosaic/mosaictest"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTimeBucket = "2024-04-26T15:00:00Z"

func compositeRaw(f mosaictest.Fixture) RawEvent {
	return RawEvent{
		Value:   f.Bytes(),
		Headers: map[string]string{"filename": "ACHN_CR_20240426_150600.moc"},
	}
}

func TestParseRawEvent(t *testing.T) {
	t.Run("uncompressed composite", func(t *testing.T) {
		raw := compositeRaw(mosaictest.Composite())
		p, err := ParseRawEvent(raw)

		require.NoError(t, err)
		assert.Equal(t, "CR", p.VarName)
		assert.Equal(t, "ACHN", p.RegionID)
		assert.Equal(t, "dBZ", p.Units)
		assert.Equal(t, "Composite Reflectivity mosaic", p.Description)
		assert.Equal(t, "ACHN_CR_20240426_150600.moc", p.SourceFile)
		assert.Equal(t, time.Date(2024, 4, 26, 15, 6, 0, 0, time.UTC), p.ObservedAt)
		assert.Nil(t, p.GeneratedAt)
		assert.Equal(t, BoundingBox{South: 29, West: 100, North: 30, East: 101}, p.BBox)
		assert.Equal(t, Geo{Lat: 29.5, Lon: 100.5}, p.Center)
		assert.Equal(t, 2, p.NX)
		assert.Equal(t, 2, p.NY)
		assert.Equal(t, "none", p.Compression)
		assert.Equal(t, 3, p.NumRadars)
		assert.Equal(t, 4, p.Cells)
		assert.Equal(t, 3, p.ValidCells)
		assert.InDelta(t, 0.75, p.Coverage, 1e-12)
		assert.InDelta(t, 10.0, p.MaxValue, 1e-12)
		assert.InDelta(t, 7.0, p.MeanValue, 1e-12)
		require.NotNil(t, p.MaxAt)
		assert.InDelta(t, 29.25, p.MaxAt.Lat, 1e-9)
		assert.InDelta(t, 100.75, p.MaxAt.Lon, 1e-9)
		assert.True(t, strings.HasPrefix(p.ID, "cr-"))
		assert.True(t, p.ProcessedAt.IsZero())
	})

	t.Run("generation time", func(t *testing.T) {
		f := mosaictest.Composite()
		f.GenDates, f.GenSeconds = 19839, 55000

		p, err := ParseRawEvent(compositeRaw(f))
		require.NoError(t, err)
		require.NotNil(t, p.GeneratedAt)
		assert.Equal(t, time.Date(2024, 4, 26, 15, 16, 40, 0, time.UTC), *p.GeneratedAt)
	})

	t.Run("centre falls back to box midpoint", func(t *testing.T) {
		f := mosaictest.Composite()
		f.CX, f.CY = 0, 0

		p, err := ParseRawEvent(compositeRaw(f))
		require.NoError(t, err)
		assert.InDelta(t, 29.5, p.Center.Lat, 1e-9)
		assert.InDelta(t, 100.5, p.Center.Lon, 1e-9)
	})

	t.Run("all cells masked", func(t *testing.T) {
		f := mosaictest.Composite()
		f.Raw = []int16{0, 0, 0, 0}

		p, err := ParseRawEvent(compositeRaw(f))
		require.NoError(t, err)
		assert.Zero(t, p.ValidCells)
		assert.Nil(t, p.MaxAt)
	})

	t.Run("malformed file keeps error class", func(t *testing.T) {
		f := mosaictest.Composite()
		f.Compression = 2

		_, err := ParseRawEvent(compositeRaw(f))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse raw event")
		assert.Equal(t, "unsupported", mosaic.ErrorClass(err))
	})

	t.Run("not a mosaic", func(t *testing.T) {
		_, err := ParseRawEvent(RawEvent{Value: []byte(`{"Type":"hail"}`)})
		require.Error(t, err)
		assert.ErrorIs(t, err, mosaic.ErrTruncated)
	})

	t.Run("short message value is a format error", func(t *testing.T) {
		b := mosaictest.Composite().Bytes()
		_, err := ParseRawEvent(RawEvent{Value: b[:len(b)-1]})
		require.ErrorIs(t, err, mosaic.ErrTruncated)
		assert.Equal(t, "format", mosaic.ErrorClass(err))
		assert.False(t, mosaic.Retryable(err))
	})

	t.Run("deterministic ID", func(t *testing.T) {
		raw := compositeRaw(mosaictest.Composite())

		p1, err := ParseRawEvent(raw)
		require.NoError(t, err)
		p2, err := ParseRawEvent(raw)
		require.NoError(t, err)

		assert.Equal(t, p1.ID, p2.ID)
	})
}

func TestGenerateID(t *testing.T) {
	observed := time.Date(2024, 4, 26, 15, 6, 0, 0, time.UTC)
	bbox := BoundingBox{South: 29, West: 100, North: 30, East: 101}

	t.Run("includes variable prefix", func(t *testing.T) {
		id := generateID("CR", "ACHN", observed, bbox, 2, 2)
		assert.True(t, strings.HasPrefix(id, "cr-"))
		assert.Len(t, id, len("cr-")+16)
	})

	t.Run("deterministic", func(t *testing.T) {
		assert.Equal(t,
			generateID("CR", "ACHN", observed, bbox, 2, 2),
			generateID("CR", "ACHN", observed, bbox, 2, 2))
	})

	t.Run("same instant in another zone", func(t *testing.T) {
		beijing := observed.In(time.FixedZone("", 8*3600))
		assert.Equal(t,
			generateID("CR", "ACHN", observed, bbox, 2, 2),
			generateID("CR", "ACHN", beijing, bbox, 2, 2))
	})

	t.Run("different inputs produce different IDs", func(t *testing.T) {
		base := generateID("CR", "ACHN", observed, bbox, 2, 2)
		assert.NotEqual(t, base, generateID("CR", "ACHN", observed.Add(6*time.Minute), bbox, 2, 2))
		assert.NotEqual(t, base, generateID("CR", "ASCN", observed, bbox, 2, 2))
		assert.NotEqual(t, base, generateID("CR", "ACHN", observed, bbox, 4, 2))
	})

	t.Run("empty variable", func(t *testing.T) {
		id := generateID("", "ACHN", observed, bbox, 2, 2)
		assert.Len(t, id, 16)
	})
}

func TestDeriveIntensity(t *testing.T) {
	tests := []struct {
		name     string
		units    string
		valid    int
		max      float64
		expected string
	}{
		{"light", "dBZ", 5, 20, IntensityLight},
		{"moderate lower bound", "dBZ", 5, 35, IntensityModerate},
		{"heavy", "dBZ", 5, 50.5, IntensityHeavy},
		{"extreme lower bound", "dBZ", 5, 55, IntensityExtreme},
		{"extreme", "DBZ", 5, 68, IntensityExtreme},
		{"no valid cells", "dBZ", 0, 0, ""},
		{"not reflectivity", "mm", 5, 80, ""},
		{"no units", "", 5, 80, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := deriveIntensity(tt.units, tt.valid, tt.max)
			if tt.expected == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.expected, *got)
		})
	}
}

func TestDeriveTimeBucket(t *testing.T) {
	assert.Equal(t, testTimeBucket, deriveTimeBucket(time.Date(2024, 4, 26, 15, 59, 59, 0, time.UTC)))
	assert.Equal(t, "2024-04-26T07:00:00Z",
		deriveTimeBucket(time.Date(2024, 4, 26, 15, 6, 0, 0, time.FixedZone("", 8*3600))))
	assert.Empty(t, deriveTimeBucket(time.Time{}))
}

func TestEnrichProduct(t *testing.T) {
	fixedTime := time.Date(2024, 4, 26, 15, 10, 0, 0, time.UTC)
	SetClock(clockwork.NewFakeClockAt(fixedTime))
	t.Cleanup(func() { SetClock(nil) })

	f := mosaictest.Composite()
	f.Raw = []int16{500, 600, 0, 100}
	p, err := ParseRawEvent(compositeRaw(f))
	require.NoError(t, err)

	p = EnrichProduct(p)

	require.NotNil(t, p.Intensity)
	assert.Equal(t, IntensityExtreme, *p.Intensity)
	assert.Equal(t, testTimeBucket, p.TimeBucket)
	assert.Equal(t, fixedTime, p.ProcessedAt)
	assert.True(t, IsAlert(p))
}

func TestIsAlert(t *testing.T) {
	label := func(s string) *string { return &s }

	assert.False(t, IsAlert(MosaicProduct{}))
	assert.False(t, IsAlert(MosaicProduct{Intensity: label(IntensityLight)}))
	assert.False(t, IsAlert(MosaicProduct{Intensity: label(IntensityModerate)}))
	assert.True(t, IsAlert(MosaicProduct{Intensity: label(IntensityHeavy)}))
	assert.True(t, IsAlert(MosaicProduct{Intensity: label(IntensityExtreme)}))
}

func TestSerializeProduct(t *testing.T) {
	now := time.Date(2024, 4, 26, 15, 10, 0, 0, time.UTC)
	intensity := IntensityHeavy
	p := MosaicProduct{
		ID:          "cr-0123456789abcdef",
		VarName:     "CR",
		RegionID:    "ACHN",
		Units:       "dBZ",
		Center:      Geo{Lat: 29.5, Lon: 100.5},
		MaxValue:    52.5,
		Intensity:   &intensity,
		ProcessedAt: now,
	}

	out, err := SerializeProduct(p)
	require.NoError(t, err)

	assert.Equal(t, []byte("cr-0123456789abcdef"), out.Key)
	assert.Equal(t, "CR", out.Headers["var"])
	assert.Equal(t, "ACHN", out.Headers["region"])
	assert.Equal(t, now.Format(time.RFC3339), out.Headers["processed_at"])

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out.Value, &decoded))
	assert.Equal(t, "CR", decoded["var"])
	assert.Equal(t, "heavy", decoded["intensity"])
	assert.InDelta(t, 52.5, decoded["max_value"], 1e-12)
	assert.NotContains(t, decoded, "generated_at")
	assert.NotContains(t, decoded, "max_at")
}
