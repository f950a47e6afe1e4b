// Package export writes assets and resolved sample points as ESRI
// shapefiles for desktop GIS.
package export

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/exposure-cli/internal/asset"
	"github.com/sells-group/exposure-cli/internal/profile"
)

// wgs84 is the .prj definition for EPSG:4326.
const wgs84 = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`

// NoDataValue and NoDataBand mark samples without a valid reading.
const (
	NoDataValue = -9999.0
	NoDataBand  = "No Data"
)

// Extensions written for every shapefile, in archive order.
var Extensions = []string{".shp", ".shx", ".dbf", ".prj"}

var boundaryFields = []shp.Field{
	shp.StringField("ASSET_ID", 36),
	shp.StringField("NAME", 80),
	shp.StringField("ARCHETYPE", 80),
	shp.FloatField("AREA_KM2", 18, 6),
	shp.FloatField("LAT", 12, 6),
	shp.FloatField("LON", 12, 6),
}

var sampleFields = []shp.Field{
	shp.StringField("ASSET_ID", 36),
	shp.StringField("HAZARD", 40),
	shp.FloatField("VALUE", 18, 6),
	shp.StringField("BAND", 20),
}

// WriteBoundaries writes one polygon per asset to dir/name.shp and returns
// the .shp path. Rings are written clockwise as the format requires.
func WriteBoundaries(dir, name string, assets []*asset.PolygonAsset) (string, error) {
	base := filepath.Join(dir, name)
	w, err := shp.Create(base+".shp", shp.POLYGON)
	if err != nil {
		return "", eris.Wrapf(err, "export: create %s.shp", base)
	}
	if err := w.SetFields(boundaryFields); err != nil {
		w.Close()
		return "", eris.Wrap(err, "export: set boundary fields")
	}

	for _, a := range assets {
		ring := a.Ring()
		if ring.SignedArea() > 0 {
			for i, j := 0, len(ring)-1; i < j; i, j = i+1, j-1 {
				ring[i], ring[j] = ring[j], ring[i]
			}
		}
		pts := make([]shp.Point, len(ring))
		for i, p := range ring {
			pts[i] = shp.Point{X: p.Lon, Y: p.Lat}
		}
		poly := shp.Polygon(*shp.NewPolyLine([][]shp.Point{pts}))
		row := int(w.Write(&poly))

		c := a.Centroid()
		for field, v := range []any{a.ID(), truncate(a.Name(), 80), truncate(a.Archetype(), 80), a.AreaKm2(), c.Lat, c.Lon} {
			if err := w.WriteAttribute(row, field, v); err != nil {
				w.Close()
				return "", eris.Wrapf(err, "export: write attributes for %s", a.ID())
			}
		}
	}

	if err := finish(w, base); err != nil {
		return "", err
	}
	zap.L().Debug("export: wrote boundaries", zap.String("path", base+".shp"), zap.Int("assets", len(assets)))
	return base + ".shp", nil
}

// WriteSamples writes every resolved sample of each report to dir/name.shp,
// one point per sample and hazard. Nodata samples carry NoDataValue and
// NoDataBand.
func WriteSamples(dir, name string, reports []*profile.Report) (string, error) {
	base := filepath.Join(dir, name)
	w, err := shp.Create(base+".shp", shp.POINT)
	if err != nil {
		return "", eris.Wrapf(err, "export: create %s.shp", base)
	}
	if err := w.SetFields(sampleFields); err != nil {
		w.Close()
		return "", eris.Wrap(err, "export: set sample fields")
	}

	var n int
	for _, rep := range reports {
		for _, p := range rep.Profiles {
			for _, s := range rep.Samples[p.Hazard] {
				row := int(w.Write(&shp.Point{X: s.Lon, Y: s.Lat}))
				value, band := NoDataValue, NoDataBand
				if s.RawValue != nil {
					value, band = *s.RawValue, s.Band
				}
				for field, v := range []any{rep.AssetID, truncate(p.Hazard, 40), value, truncate(band, 20)} {
					if err := w.WriteAttribute(row, field, v); err != nil {
						w.Close()
						return "", eris.Wrapf(err, "export: write sample %d", row)
					}
				}
				n++
			}
		}
	}

	if err := finish(w, base); err != nil {
		return "", err
	}
	zap.L().Debug("export: wrote samples", zap.String("path", base+".shp"), zap.Int("points", n))
	return base + ".shp", nil
}

// finish closes w and writes the projection file. go-shp names the
// attribute table base+"dbf" without the dot; it is renamed into place.
func finish(w *shp.Writer, base string) error {
	w.Close()
	if _, err := os.Stat(base + "dbf"); err == nil {
		if err := os.Rename(base+"dbf", base+".dbf"); err != nil {
			return eris.Wrap(err, "export: rename dbf")
		}
	}
	if err := os.WriteFile(base+".prj", []byte(wgs84), 0o644); err != nil {
		return eris.Wrap(err, "export: write prj")
	}
	return nil
}

// ZipShapefile streams dir/name.{shp,shx,dbf,prj} into a zip archive on out.
func ZipShapefile(dir, name string, out io.Writer) error {
	zw := zip.NewWriter(out)
	for _, ext := range Extensions {
		path := filepath.Join(dir, name+ext)
		if err := addFile(zw, path, name+ext); err != nil {
			_ = zw.Close()
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return eris.Wrap(err, "export: close zip")
	}
	return nil
}

func addFile(zw *zip.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return eris.Wrapf(err, "export: open %s", path)
	}
	defer func() { _ = f.Close() }()

	dst, err := zw.Create(name)
	if err != nil {
		return eris.Wrapf(err, "export: add %s", name)
	}
	if _, err := io.Copy(dst, f); err != nil {
		return eris.Wrapf(err, "export: copy %s", name)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	for len(string(r)) > n {
		r = r[:len(r)-1]
	}
	return string(r)
}
