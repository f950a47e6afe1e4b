// Package raster resolves hazard values for sample locations. Callers see a
// hazard surface only through Gateway.
package raster

import (
	"context"
	"math"

	"github.com/sells-group/exposure-cli/internal/fault"
	"github.com/sells-group/exposure-cli/internal/geometry"
)

// Reading is the resolved value at one point.
type Reading struct {
	Value  float64 `json:"value"`
	NoData bool    `json:"nodata"`
}

// Value returns a valid reading. NaN is reported as nodata.
func Value(v float64) Reading {
	if math.IsNaN(v) {
		return NoData()
	}
	return Reading{Value: v}
}

// NoData returns a nodata reading.
func NoData() Reading {
	return Reading{NoData: true}
}

// Gateway resolves a hazard layer at many points. Results are in input
// order. A layer that cannot be read at all fails with a
// fault.KindGatewayUnavailable error; points outside the layer extent are
// nodata.
type Gateway interface {
	BatchQuery(ctx context.Context, layer string, points []geometry.Point) ([]Reading, error)
}

// GatewayFunc adapts a function to Gateway.
type GatewayFunc func(ctx context.Context, layer string, points []geometry.Point) ([]Reading, error)

// BatchQuery calls f.
func (f GatewayFunc) BatchQuery(ctx context.Context, layer string, points []geometry.Point) ([]Reading, error) {
	return f(ctx, layer, points)
}

// Memory serves layers from in-memory grids.
type Memory struct {
	layers map[string]*Grid
}

// NewMemory creates a gateway over the given layers.
func NewMemory(layers map[string]*Grid) *Memory {
	m := &Memory{layers: make(map[string]*Grid, len(layers))}
	for name, g := range layers {
		m.layers[name] = g
	}
	return m
}

// BatchQuery samples the named grid.
func (m *Memory) BatchQuery(ctx context.Context, layer string, points []geometry.Point) ([]Reading, error) {
	g, ok := m.layers[layer]
	if !ok {
		return nil, fault.Unavailable(layer, nil)
	}
	return g.Sample(ctx, points)
}
