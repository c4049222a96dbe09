package mosaic

import (
	"math"
	"testing"

	"github.com/couchcryptid/storm-mosaic-etl/internal/mosaic/mosaictest"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func buildFixture(t *testing.T, f mosaictest.Fixture) *Grid {
	t.Helper()
	b := f.Bytes()
	h, err := ParseHeader(b)
	require.NoError(t, err)
	g, err := BuildGrid(f.Block(), h)
	require.NoError(t, err)
	return g
}

func TestBuildGrid_Composite(t *testing.T) {
	g := buildFixture(t, mosaictest.Composite())

	want := mat.NewDense(2, 2, []float64{5.0, 6.0, 0.4, 10.0})
	assert.True(t, mat.EqualApprox(want, g.Values, 1e-12), "values\n%v", mat.Formatted(g.Values))
	assert.Equal(t, []bool{false, false, true, false}, g.Mask)

	approx := cmpopts.EquateApprox(0, 1e-9)
	assert.Empty(t, cmp.Diff([]float64{100, 100.5, 101}, g.LonEdges, approx))
	assert.Empty(t, cmp.Diff([]float64{30, 29.5, 29}, g.LatEdges, approx))
	assert.Equal(t, 2, g.Rows())
	assert.Equal(t, 2, g.Cols())
}

func TestBuildGrid_DoesNotModifyHeader(t *testing.T) {
	f := mosaictest.Composite()
	h, err := ParseHeader(f.Bytes())
	require.NoError(t, err)
	before := *h

	g, err := BuildGrid(f.Block(), h)
	require.NoError(t, err)
	assert.Equal(t, before, *h)
	assert.Same(t, h, g.Header)
}

func TestBuildGrid_EdgeProperties(t *testing.T) {
	tests := []struct {
		name       string
		nx, ny     int32
		w, e, s, n int32
	}{
		{"square", 2, 2, 100000, 101000, 29000, 30000},
		{"wide", 7, 3, 73000, 135000, 12200, 54200},
		{"single cell", 1, 1, -1000, 1000, -500, 500},
		{"western hemisphere", 5, 4, -130000, -60000, 20000, 55000},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := mosaictest.Composite()
			f.NX, f.NY = tc.nx, tc.ny
			f.EdgeW, f.EdgeE, f.EdgeS, f.EdgeN = tc.w, tc.e, tc.s, tc.n
			f.Raw = make([]int16, tc.nx*tc.ny)

			g := buildFixture(t, f)
			require.Len(t, g.LonEdges, int(tc.nx)+1)
			require.Len(t, g.LatEdges, int(tc.ny)+1)

			assert.InDelta(t, float64(tc.w)/1000, g.LonEdges[0], 1e-9)
			assert.InDelta(t, float64(tc.e)/1000, g.LonEdges[tc.nx], 1e-9)
			assert.InDelta(t, float64(tc.n)/1000, g.LatEdges[0], 1e-9)
			assert.InDelta(t, float64(tc.s)/1000, g.LatEdges[tc.ny], 1e-9)

			for i := 1; i < len(g.LonEdges); i++ {
				assert.Greater(t, g.LonEdges[i], g.LonEdges[i-1], "lon edges ascend")
			}
			for i := 1; i < len(g.LatEdges); i++ {
				assert.Less(t, g.LatEdges[i], g.LatEdges[i-1], "lat edges descend")
			}
		})
	}
}

func TestBuildGrid_MaskThreshold(t *testing.T) {
	for _, scale := range []int16{1, 10, 100} {
		f := mosaictest.Composite()
		f.Scale = scale
		threshold := int16(5) * scale
		f.Raw = []int16{threshold - 1, threshold, threshold + 1, -threshold}

		g := buildFixture(t, f)
		assert.Equal(t, []bool{true, false, false, true}, g.Mask, "scale %d", scale)
	}
}

func TestBuildGrid_ValueRoundTrip(t *testing.T) {
	f := mosaictest.Composite()
	f.Scale = 10
	f.Raw = []int16{-32768, -1, 0, 32767}

	g := buildFixture(t, f)
	for i, raw := range f.Raw {
		r, c := i/2, i%2
		assert.InDelta(t, float64(raw)/10, g.Values.At(r, c), 1.0/10, "cell %d", i)
		assert.Equal(t, raw, int16(math.Round(g.Values.At(r, c)*10)), "cell %d", i)
	}
}

func TestBuildGrid_SizeMismatch(t *testing.T) {
	f := mosaictest.Composite()
	h, err := ParseHeader(f.Bytes())
	require.NoError(t, err)

	for _, n := range []int{0, 6, 7, 9, 16} {
		g, err := BuildGrid(make([]byte, n), h)
		assert.Nil(t, g)
		require.ErrorIs(t, err, ErrSizeMismatch, "len %d", n)

		var fe *FormatError
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, "payload", fe.Field)
		assert.Equal(t, int64(8), fe.Expected)
		assert.Equal(t, int64(n), fe.Actual)
	}
}

func TestBuildGrid_RejectsInvalidHeader(t *testing.T) {
	h, err := ParseHeader(mosaictest.Composite().Bytes())
	require.NoError(t, err)

	h.NX = 0
	g, err := BuildGrid(nil, h)
	assert.Nil(t, g)
	require.ErrorIs(t, err, ErrInvalidField)
}

func TestGrid_At(t *testing.T) {
	g := buildFixture(t, mosaictest.Composite())

	v, ok := g.At(0, 1)
	assert.True(t, ok)
	assert.InDelta(t, 6.0, v, 1e-12)

	_, ok = g.At(1, 0)
	assert.False(t, ok)
	assert.True(t, g.Masked(1, 0))
}

func TestGrid_CellCenter(t *testing.T) {
	g := buildFixture(t, mosaictest.Composite())

	lat, lon := g.CellCenter(0, 0)
	assert.InDelta(t, 29.75, lat, 1e-9)
	assert.InDelta(t, 100.25, lon, 1e-9)

	lat, lon = g.CellCenter(1, 1)
	assert.InDelta(t, 29.25, lat, 1e-9)
	assert.InDelta(t, 100.75, lon, 1e-9)
}

func TestGrid_Lookup(t *testing.T) {
	g := buildFixture(t, mosaictest.Composite())

	tests := []struct {
		name     string
		lat, lon float64
		want     float64
		ok       bool
	}{
		{"north west", 29.9, 100.1, 5.0, true},
		{"north east", 29.9, 100.9, 6.0, true},
		{"south east", 29.1, 100.9, 10.0, true},
		{"south west masked", 29.1, 100.1, 0, false},
		{"far corner belongs to last cell", 29.0, 101.0, 10.0, true},
		{"near corner", 30.0, 100.0, 5.0, true},
		{"north of box", 30.01, 100.5, 0, false},
		{"east of box", 29.5, 101.01, 0, false},
		{"NaN", math.NaN(), 100.5, 0, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := g.Lookup(tc.lat, tc.lon)
			assert.Equal(t, tc.ok, ok)
			assert.InDelta(t, tc.want, got, 1e-12)
		})
	}
}
