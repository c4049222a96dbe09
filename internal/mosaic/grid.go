package mosaic

import (
	"encoding/binary"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// NoDataThreshold is the smallest meaningful physical value. Cells below it
// are masked.
const NoDataThreshold = 5.0

// Grid is a decoded mosaic product. Row 0 is the northernmost row.
// Values at masked cells carry no meaning; check Mask (or use At) first.
type Grid struct {
	Header   *Header
	Values   *mat.Dense // NY rows × NX columns, physical units
	Mask     []bool     // row-major NY×NX, true below NoDataThreshold
	LonEdges []float64  // NX+1 longitudes, west to east
	LatEdges []float64  // NY+1 latitudes, north to south
}

// BuildGrid reinterprets a decoded payload as NY rows of NX little-endian
// int16 cells, scales them to physical units and derives the mask and the
// coordinate edges. It does not modify h.
func BuildGrid(payload []byte, h *Header) (*Grid, error) {
	if err := h.validate(); err != nil {
		return nil, err
	}
	if int64(len(payload)) != h.PayloadSize() {
		return nil, sizeMismatch("payload", h.PayloadSize(), int64(len(payload)))
	}

	n := h.NX * h.NY
	scale := float64(h.Scale)
	data := make([]float64, n)
	mask := make([]bool, n)
	for i := range n {
		raw := int16(binary.LittleEndian.Uint16(payload[2*i:]))
		v := float64(raw) / scale
		data[i] = v
		mask[i] = v < NoDataThreshold
	}

	return &Grid{
		Header:   h,
		Values:   mat.NewDense(h.NY, h.NX, data),
		Mask:     mask,
		LonEdges: floats.Span(make([]float64, h.NX+1), h.EdgeWest, h.EdgeEast),
		LatEdges: floats.Span(make([]float64, h.NY+1), h.EdgeNorth, h.EdgeSouth),
	}, nil
}

// Rows returns NY.
func (g *Grid) Rows() int { return len(g.LatEdges) - 1 }

// Cols returns NX.
func (g *Grid) Cols() int { return len(g.LonEdges) - 1 }

// Masked reports whether the cell at (row, col) is below the no-data threshold.
func (g *Grid) Masked(row, col int) bool {
	return g.Mask[row*g.Cols()+col]
}

// At returns the physical value at (row, col) and false if the cell is masked.
func (g *Grid) At(row, col int) (float64, bool) {
	if g.Masked(row, col) {
		return 0, false
	}
	return g.Values.At(row, col), true
}

// CellCenter returns the latitude and longitude of the centre of a cell.
func (g *Grid) CellCenter(row, col int) (lat, lon float64) {
	lat = (g.LatEdges[row] + g.LatEdges[row+1]) / 2
	lon = (g.LonEdges[col] + g.LonEdges[col+1]) / 2
	return lat, lon
}

// Lookup returns the value of the cell containing (lat, lon). It reports false
// outside the bounding box or when the cell is masked.
func (g *Grid) Lookup(lat, lon float64) (float64, bool) {
	row, ok := edgeIndex(g.LatEdges, lat)
	if !ok {
		return 0, false
	}
	col, ok := edgeIndex(g.LonEdges, lon)
	if !ok {
		return 0, false
	}
	return g.At(row, col)
}

// edgeIndex finds the cell index of x among evenly spaced edges, which may be
// ascending or descending. The far edge belongs to the last cell.
func edgeIndex(edges []float64, x float64) (int, bool) {
	n := len(edges) - 1
	first, last := edges[0], edges[n]
	if first == last || math.IsNaN(x) {
		return 0, false
	}
	f := (x - first) / (last - first)
	if f < 0 || f > 1 {
		return 0, false
	}
	i := int(f * float64(n))
	if i == n {
		i = n - 1
	}
	return i, true
}
