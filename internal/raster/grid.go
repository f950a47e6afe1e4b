package raster

import (
	"context"
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/exposure-cli/internal/geometry"
)

// Grid is a north-up raster in geographic coordinates. Values are stored
// row-major starting at the northernmost row.
type Grid struct {
	NCols    int
	NRows    int
	XLL      float64 // west edge
	YLL      float64 // south edge
	CellSize float64
	NoData   *float64
	Values   []float64
}

// NewGrid validates dimensions and returns a grid.
func NewGrid(ncols, nrows int, xll, yll, cellSize float64, noData *float64, values []float64) (*Grid, error) {
	if ncols <= 0 || nrows <= 0 {
		return nil, eris.Errorf("raster: invalid dimensions %dx%d", ncols, nrows)
	}
	if cellSize <= 0 || math.IsNaN(cellSize) {
		return nil, eris.Errorf("raster: invalid cell size %v", cellSize)
	}
	if len(values) != ncols*nrows {
		return nil, eris.Errorf("raster: expected %d values, got %d", ncols*nrows, len(values))
	}
	return &Grid{NCols: ncols, NRows: nrows, XLL: xll, YLL: yll, CellSize: cellSize, NoData: noData, Values: values}, nil
}

// Bounds returns the raster extent.
func (g *Grid) Bounds() geometry.BBox {
	return geometry.BBox{
		MinLng: g.XLL,
		MinLat: g.YLL,
		MaxLng: g.XLL + float64(g.NCols)*g.CellSize,
		MaxLat: g.YLL + float64(g.NRows)*g.CellSize,
	}
}

// At returns the reading of the cell containing p. Points outside the
// extent, NaN cells and cells equal to the nodata marker are nodata.
func (g *Grid) At(p geometry.Point) Reading {
	col := int(math.Floor((p.Lon - g.XLL) / g.CellSize))
	fromBottom := int(math.Floor((p.Lat - g.YLL) / g.CellSize))
	if col < 0 || col >= g.NCols || fromBottom < 0 || fromBottom >= g.NRows {
		return NoData()
	}
	v := g.Values[(g.NRows-1-fromBottom)*g.NCols+col]
	if g.NoData != nil && v == *g.NoData {
		return NoData()
	}
	return Value(v)
}

// Sample reads every point, checking ctx between chunks.
func (g *Grid) Sample(ctx context.Context, points []geometry.Point) ([]Reading, error) {
	out := make([]Reading, len(points))
	for i, p := range points {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		out[i] = g.At(p)
	}
	return out, nil
}
