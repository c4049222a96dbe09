package mosaic

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary condenses the unmasked cells of a grid.
type Summary struct {
	Cells      int     // NX*NY
	ValidCells int     // cells at or above NoDataThreshold
	Coverage   float64 // ValidCells / Cells
	Max        float64
	Mean       float64
	StdDev     float64
	MaxLat     float64 // centre of the cell holding Max
	MaxLon     float64
}

// Summarize computes statistics over the unmasked cells. The value fields are
// zero when every cell is masked.
func (g *Grid) Summarize() Summary {
	raw := g.Values.RawMatrix()
	cols := g.Cols()

	valid := make([]float64, 0, len(g.Mask))
	maxIdx := -1
	maxVal := math.Inf(-1)
	for r := 0; r < g.Rows(); r++ {
		row := raw.Data[r*raw.Stride : r*raw.Stride+cols]
		for c, v := range row {
			if g.Mask[r*cols+c] {
				continue
			}
			valid = append(valid, v)
			if v > maxVal {
				maxVal = v
				maxIdx = r*cols + c
			}
		}
	}

	s := Summary{Cells: len(g.Mask), ValidCells: len(valid)}
	if s.Cells > 0 {
		s.Coverage = float64(s.ValidCells) / float64(s.Cells)
	}
	if len(valid) == 0 {
		return s
	}

	s.Max = floats.Max(valid)
	s.Mean, s.StdDev = stat.MeanStdDev(valid, nil)
	if len(valid) == 1 {
		s.StdDev = 0
	}
	s.MaxLat, s.MaxLon = g.CellCenter(maxIdx/cols, maxIdx%cols)
	return s
}
