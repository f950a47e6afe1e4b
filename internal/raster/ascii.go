package raster

import (
	"bufio"
	"context"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/exposure-cli/internal/fault"
	"github.com/sells-group/exposure-cli/internal/geometry"
)

// ParseASCII reads an ESRI ASCII grid. Both corner and center origins are
// accepted; NODATA_value is optional.
func ParseASCII(r io.Reader) (*Grid, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	sc.Split(bufio.ScanWords)

	header := make(map[string]float64, 6)
	var first string
	for sc.Scan() {
		key := strings.ToLower(sc.Text())
		if _, err := strconv.ParseFloat(key, 64); err == nil {
			first = sc.Text()
			break
		}
		if !sc.Scan() {
			return nil, eris.Errorf("raster: header %q has no value", key)
		}
		v, err := strconv.ParseFloat(sc.Text(), 64)
		if err != nil {
			return nil, eris.Wrapf(err, "raster: header %s", key)
		}
		header[key] = v
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "raster: read header")
	}

	for _, k := range []string{"ncols", "nrows", "cellsize"} {
		if _, ok := header[k]; !ok {
			return nil, eris.Errorf("raster: missing header %s", k)
		}
	}
	if err := checkDims(header["ncols"], header["nrows"]); err != nil {
		return nil, err
	}
	ncols, nrows, cs := int(header["ncols"]), int(header["nrows"]), header["cellsize"]

	xll, okx := header["xllcorner"]
	if c, ok := header["xllcenter"]; ok && !okx {
		xll, okx = c-cs/2, true
	}
	yll, oky := header["yllcorner"]
	if c, ok := header["yllcenter"]; ok && !oky {
		yll, oky = c-cs/2, true
	}
	if !okx || !oky {
		return nil, eris.New("raster: missing origin header")
	}

	var noData *float64
	if v, ok := header["nodata_value"]; ok {
		noData = &v
	}

	values := make([]float64, 0, min(ncols*nrows, preallocCells))
	if first != "" {
		v, err := strconv.ParseFloat(first, 64)
		if err != nil {
			return nil, eris.Wrap(err, "raster: parse value")
		}
		values = append(values, v)
	}
	for sc.Scan() {
		v, err := strconv.ParseFloat(sc.Text(), 64)
		if err != nil {
			return nil, eris.Wrapf(err, "raster: parse value %d", len(values))
		}
		values = append(values, v)
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "raster: read values")
	}

	return NewGrid(ncols, nrows, xll, yll, cs, noData, values)
}

const (
	// maxCells bounds the dimensions a header may declare.
	maxCells = 1 << 28
	// preallocCells caps the value buffer reserved up front.
	preallocCells = 1 << 20
)

func checkDims(ncols, nrows float64) error {
	if ncols < 1 || nrows < 1 || ncols != math.Trunc(ncols) || nrows != math.Trunc(nrows) {
		return eris.Errorf("raster: invalid dimensions %vx%v", ncols, nrows)
	}
	if ncols*nrows > maxCells {
		return eris.Errorf("raster: %vx%v exceeds %d cells", ncols, nrows, maxCells)
	}
	return nil
}

// FileGateway serves layers from ESRI ASCII grid files. Each layer is
// loaded on first use and kept in memory; failed loads are retried on the
// next call.
type FileGateway struct {
	dir     string
	sources map[string]string

	group singleflight.Group
	mu    sync.RWMutex
	grids map[string]*Grid
}

// NewFileGateway maps layer names to file paths. Relative paths resolve
// against dir.
func NewFileGateway(dir string, sources map[string]string) *FileGateway {
	src := make(map[string]string, len(sources))
	for name, path := range sources {
		src[name] = path
	}
	return &FileGateway{dir: dir, sources: src, grids: make(map[string]*Grid)}
}

// BatchQuery samples the layer's grid.
func (g *FileGateway) BatchQuery(ctx context.Context, layer string, points []geometry.Point) ([]Reading, error) {
	grid, err := g.load(layer)
	if err != nil {
		return nil, fault.Unavailable(layer, err)
	}
	return grid.Sample(ctx, points)
}

// Path returns the file backing layer.
func (g *FileGateway) Path(layer string) (string, bool) {
	path, ok := g.sources[layer]
	if !ok {
		return "", false
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(g.dir, path)
	}
	return path, true
}

func (g *FileGateway) load(layer string) (*Grid, error) {
	g.mu.RLock()
	grid, ok := g.grids[layer]
	g.mu.RUnlock()
	if ok {
		return grid, nil
	}

	v, err, _ := g.group.Do(layer, func() (any, error) {
		path, ok := g.Path(layer)
		if !ok {
			return nil, eris.Errorf("raster: no source configured for layer %s", layer)
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "raster: open %s", path)
		}
		defer f.Close() //nolint:errcheck

		grid, err := ParseASCII(f)
		if err != nil {
			return nil, eris.Wrapf(err, "raster: load %s", path)
		}
		g.mu.Lock()
		g.grids[layer] = grid
		g.mu.Unlock()
		zap.L().Debug("raster: layer loaded",
			zap.String("layer", layer),
			zap.String("path", path),
			zap.Int("cols", grid.NCols),
			zap.Int("rows", grid.NRows),
		)
		return grid, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Grid), nil
}
