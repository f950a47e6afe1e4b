package raster

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/exposure-cli/internal/fault"
	"github.com/sells-group/exposure-cli/internal/geometry"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// 3x2 grid over lon [0,3), lat [0,2); top row first.
const sampleASC = `ncols 3
nrows 2
xllcorner 0
yllcorner 0
cellsize 1
NODATA_value -9999
1.0 2.0 -9999
4.0 5.0 6.0
`

func TestParseASCII(t *testing.T) {
	g, err := ParseASCII(strings.NewReader(sampleASC))
	require.NoError(t, err)
	assert.Equal(t, 3, g.NCols)
	assert.Equal(t, 2, g.NRows)
	require.NotNil(t, g.NoData)
	assert.Equal(t, -9999.0, *g.NoData)
	assert.Equal(t, geometry.BBox{MinLng: 0, MinLat: 0, MaxLng: 3, MaxLat: 2}, g.Bounds())
}

func TestParseASCII_CenterOrigin(t *testing.T) {
	g, err := ParseASCII(strings.NewReader("NCOLS 1\nNROWS 1\nXLLCENTER 10.5\nYLLCENTER 20.5\nCELLSIZE 1\n7\n"))
	require.NoError(t, err)
	assert.Equal(t, 10.0, g.XLL)
	assert.Equal(t, 20.0, g.YLL)
	assert.Nil(t, g.NoData)
	assert.Equal(t, Value(7), g.At(geometry.Point{Lon: 10.2, Lat: 20.9}))
}

func TestParseASCII_Errors(t *testing.T) {
	tests := map[string]string{
		"missing cellsize": "ncols 1\nnrows 1\nxllcorner 0\nyllcorner 0\n1\n",
		"missing origin":   "ncols 1\nnrows 1\ncellsize 1\n1\n",
		"short data":       "ncols 2\nnrows 2\nxllcorner 0\nyllcorner 0\ncellsize 1\n1 2 3\n",
		"bad value":        "ncols 2\nnrows 1\nxllcorner 0\nyllcorner 0\ncellsize 1\n1 x\n",
		"bad header":       "ncols many\n",
		"zero columns":     "ncols 0\nnrows 1\nxllcorner 0\nyllcorner 0\ncellsize 1\n",
		"fractional rows":  "ncols 1\nnrows 1.5\nxllcorner 0\nyllcorner 0\ncellsize 1\n1\n",
		"oversized":        "ncols 4000000000\nnrows 4000000000\nxllcorner 0\nyllcorner 0\ncellsize 1\n1\n",
		"too many cells":   "ncols 100000\nnrows 100000\nxllcorner 0\nyllcorner 0\ncellsize 1\n1\n",
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseASCII(strings.NewReader(in))
			assert.Error(t, err)
		})
	}
}

func TestGrid_At(t *testing.T) {
	g, err := ParseASCII(strings.NewReader(sampleASC))
	require.NoError(t, err)

	tests := []struct {
		name string
		p    geometry.Point
		want Reading
	}{
		{"north west", geometry.Point{Lon: 0.5, Lat: 1.5}, Value(1)},
		{"south east", geometry.Point{Lon: 2.5, Lat: 0.5}, Value(6)},
		{"south middle", geometry.Point{Lon: 1.5, Lat: 0.2}, Value(5)},
		{"nodata marker", geometry.Point{Lon: 2.5, Lat: 1.5}, NoData()},
		{"west of extent", geometry.Point{Lon: -0.1, Lat: 1}, NoData()},
		{"north of extent", geometry.Point{Lon: 1, Lat: 2.0}, NoData()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, g.At(tt.p))
		})
	}
}

func TestGrid_NaNIsNoData(t *testing.T) {
	g, err := NewGrid(1, 1, 0, 0, 1, nil, []float64{math.NaN()})
	require.NoError(t, err)
	assert.True(t, g.At(geometry.Point{Lon: 0.5, Lat: 0.5}).NoData)
}

func TestNewGrid_Invalid(t *testing.T) {
	_, err := NewGrid(0, 1, 0, 0, 1, nil, nil)
	assert.Error(t, err)
	_, err = NewGrid(1, 1, 0, 0, 0, nil, []float64{1})
	assert.Error(t, err)
	_, err = NewGrid(2, 1, 0, 0, 1, nil, []float64{1})
	assert.Error(t, err)
}

func TestMemory_UnknownLayerUnavailable(t *testing.T) {
	m := NewMemory(nil)
	_, err := m.BatchQuery(context.Background(), "flood", []geometry.Point{{Lon: 0, Lat: 0}})
	assert.True(t, fault.Is(err, fault.KindGatewayUnavailable))
}

func TestFileGateway(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "flood.asc"), []byte(sampleASC), 0o644))

	gw := NewFileGateway(dir, map[string]string{
		"flood":   "flood.asc",
		"missing": "nope.asc",
	})

	pts := []geometry.Point{{Lon: 0.5, Lat: 1.5}, {Lon: 9, Lat: 9}, {Lon: 1.5, Lat: 0.5}}
	got, err := gw.BatchQuery(context.Background(), "flood", pts)
	require.NoError(t, err)
	assert.Equal(t, []Reading{Value(1), NoData(), Value(5)}, got)

	// Second call is served from memory even if the file disappears.
	require.NoError(t, os.Remove(filepath.Join(dir, "flood.asc")))
	_, err = gw.BatchQuery(context.Background(), "flood", pts)
	require.NoError(t, err)

	_, err = gw.BatchQuery(context.Background(), "missing", pts)
	assert.True(t, fault.Is(err, fault.KindGatewayUnavailable))

	_, err = gw.BatchQuery(context.Background(), "unconfigured", pts)
	assert.True(t, fault.Is(err, fault.KindGatewayUnavailable))
}

func TestFileGateway_RetriesFailedLoad(t *testing.T) {
	dir := t.TempDir()
	gw := NewFileGateway(dir, map[string]string{"heat": "heat.asc"})
	pts := []geometry.Point{{Lon: 0.5, Lat: 0.5}}

	_, err := gw.BatchQuery(context.Background(), "heat", pts)
	require.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "heat.asc"), []byte(sampleASC), 0o644))
	got, err := gw.BatchQuery(context.Background(), "heat", pts)
	require.NoError(t, err)
	assert.Equal(t, []Reading{Value(4)}, got)
}

func TestFileGateway_Path(t *testing.T) {
	gw := NewFileGateway("/data", map[string]string{"flood": "flood.asc", "heat": "/abs/heat.asc"})

	p, ok := gw.Path("flood")
	assert.True(t, ok)
	assert.Equal(t, filepath.Join("/data", "flood.asc"), p)

	p, ok = gw.Path("heat")
	assert.True(t, ok)
	assert.Equal(t, "/abs/heat.asc", p)

	_, ok = gw.Path("surge")
	assert.False(t, ok)
}
