package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/exposure-cli/internal/risk"
)

// LayerCatalog is the on-disk hazard layer catalog.
type LayerCatalog struct {
	Layers []risk.HazardLayerRef `yaml:"layers"`
}

func severityBands(bounds ...float64) []risk.Threshold {
	labels := []string{risk.BandLow, risk.BandMedium, risk.BandHigh}
	out := make([]risk.Threshold, len(bounds))
	for i, b := range bounds {
		out[i] = risk.Threshold{UpperBound: b, Label: labels[i]}
	}
	return out
}

// DefaultLayers returns the built-in hazard catalog. Reversed layers list
// their thresholds in ascending order like every other layer; the comparison
// flips, not the list.
func DefaultLayers() []risk.HazardLayerRef {
	layer := func(name, title, unit, source string, reversed bool, bounds ...float64) risk.HazardLayerRef {
		return risk.HazardLayerRef{
			Name:          name,
			Title:         title,
			Unit:          unit,
			Source:        source,
			Thresholds:    severityBands(bounds...),
			OverflowLabel: risk.BandVeryHigh,
			Reversed:      reversed,
		}
	}
	return []risk.HazardLayerRef{
		layer("flood_baseline", "Flood (100-year return period)", "meters", "flood_100yr.asc", false, 0.5, 1.5, 2.5),
		layer("heat_baseline", "Heat Stress (Days >35°C)", "days", "heat_days_over_35c.asc", false, 10, 45, 90),
		layer("heat_ssp245_2030", "Heat Stress SSP2-4.5 (2026-2030)", "days", "heat_days_over_35c_ssp245_2030.asc", false, 10, 45, 90),
		layer("heat_ssp585_2050", "Heat Stress SSP5-8.5 (2041-2050)", "days", "heat_days_over_35c_ssp585_2050.asc", false, 10, 45, 90),
		layer("storm_surge_baseline", "Storm Surge (Advisory 4)", "meters", "storm_surge_adv4.asc", false, 0.5, 1.5, 2.5),
		layer("storm_surge_future", "Storm Surge Future Scenario", "meters", "storm_surge_adv4_future.asc", false, 0.5, 1.5, 2.5),
		layer("landslide_baseline", "Landslide Hazard (Baseline)", "factor of safety", "landslide.asc", true, 0.5, 1.0, 1.5),
		layer("landslide_rcp26", "Landslide Hazard RCP2.6", "factor of safety", "landslide_rcp26.asc", true, 0.5, 1.0, 1.5),
		layer("landslide_rcp85", "Landslide Hazard RCP8.5", "factor of safety", "landslide_rcp85.asc", true, 0.5, 1.0, 1.5),
		layer("sea_level_rise", "Low Elevation Coastal Zone", "meters above sea level", "lecz_elevation.asc", true, 2, 5, 10),
		layer("water_stress", "Water Stress", "percent", "water_stress.asc", false, 10, 40, 80),
		layer("tropical_cyclone", "Tropical Cyclone Wind Speed", "km/h", "tc_wind_speed.asc", false, 60, 120, 180),
	}
}

// LoadLayerCatalog reads a YAML catalog file and validates every layer.
func LoadLayerCatalog(path string) ([]risk.HazardLayerRef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read layer catalog %s", path)
	}
	var cat LayerCatalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, eris.Wrapf(err, "config: parse layer catalog %s", path)
	}
	if len(cat.Layers) == 0 {
		return nil, eris.Errorf("config: layer catalog %s defines no layers", path)
	}
	if err := validateLayers(cat.Layers); err != nil {
		return nil, err
	}
	return cat.Layers, nil
}

// LayerRefs resolves the hazard catalog: the catalog file when configured,
// then inline layers, then the built-in defaults.
func (c *Config) LayerRefs() ([]risk.HazardLayerRef, error) {
	if c.LayerCatalog != "" {
		return LoadLayerCatalog(c.LayerCatalog)
	}
	if len(c.Layers) > 0 {
		if err := validateLayers(c.Layers); err != nil {
			return nil, err
		}
		return c.Layers, nil
	}
	return DefaultLayers(), nil
}

// SelectLayers returns the named layers in the order given. An empty name
// list selects every layer.
func SelectLayers(refs []risk.HazardLayerRef, names []string) ([]risk.HazardLayerRef, error) {
	if len(names) == 0 {
		return refs, nil
	}
	byName := make(map[string]risk.HazardLayerRef, len(refs))
	for _, r := range refs {
		byName[r.Name] = r
	}
	out := make([]risk.HazardLayerRef, 0, len(names))
	var unknown []string
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		r, ok := byName[n]
		if !ok {
			unknown = append(unknown, n)
			continue
		}
		out = append(out, r)
	}
	if len(unknown) > 0 {
		return nil, eris.Errorf("config: unknown hazard layer(s): %s", strings.Join(unknown, ", "))
	}
	return out, nil
}

// LayerSources maps layer names to their configured sources.
func LayerSources(refs []risk.HazardLayerRef) map[string]string {
	out := make(map[string]string, len(refs))
	for _, r := range refs {
		if r.Source != "" {
			out[r.Name] = r.Source
		}
	}
	return out
}

// PostGISTables maps layer names to schema.table raster tables. The table
// is the layer source's base name without extension, lower-cased.
func PostGISTables(refs []risk.HazardLayerRef, schema string) map[string]string {
	out := make(map[string]string, len(refs))
	for _, r := range refs {
		src := r.Source
		if src == "" {
			src = r.Name
		}
		base := filepath.Base(src)
		table := strings.ToLower(strings.TrimSuffix(base, filepath.Ext(base)))
		out[r.Name] = schema + "." + table
	}
	return out
}

func validateLayers(refs []risk.HazardLayerRef) error {
	seen := make(map[string]bool, len(refs))
	for _, r := range refs {
		if err := r.Validate(); err != nil {
			return err
		}
		if seen[r.Name] {
			return eris.Errorf("config: duplicate hazard layer %q", r.Name)
		}
		seen[r.Name] = true
	}
	return nil
}
