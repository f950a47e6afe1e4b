package risk

import (
	"go.uber.org/zap"

	"github.com/sells-group/exposure-cli/internal/fault"
	"github.com/sells-group/exposure-cli/internal/sampling"
)

// BandShare is the portion of an asset that falls in one band. AreaKm2 is
// apportioned by sample share, not by geometric intersection.
type BandShare struct {
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
	AreaKm2    float64 `json:"area_km2"`
}

// RiskProfile is the exposure of one asset to one hazard. Profiles are
// derived on demand and never stored.
type RiskProfile struct {
	AssetID            string               `json:"asset_id"`
	Hazard             string               `json:"hazard"`
	Unit               string               `json:"unit,omitempty"`
	SampleCount        int                  `json:"sample_count"`
	ExcludedCount      int                  `json:"excluded_count"`
	InsufficientData   bool                 `json:"insufficient_data"`
	AreaKm2            float64              `json:"area_km2"`
	GridSpacingMeters  float64              `json:"grid_spacing_meters"`
	Statistics         *Statistics          `json:"statistics,omitempty"`
	Distribution       map[string]BandShare `json:"distribution,omitempty"`
	DominantBand       string               `json:"dominant_band,omitempty"`
	SpatialVariability string               `json:"spatial_variability,omitempty"`
	Priority           string               `json:"priority,omitempty"`
	Recommendation     string               `json:"recommendation"`
	Clusters           []Cluster            `json:"clusters,omitempty"`
}

// Err returns an insufficient_data fault when no sample resolved to a value,
// and nil otherwise. The profile stays valid either way.
func (p *RiskProfile) Err() error {
	if !p.InsufficientData {
		return nil
	}
	return fault.Newf(fault.KindInsufficientData, p.AssetID+"/"+p.Hazard,
		"all %d samples are nodata", p.SampleCount)
}

// Aggregate classifies the resolved samples of grid and summarizes them into
// a profile. Each sample's Band is set in place, so grid must be owned by the
// caller. Samples whose RawValue is nil or matches the layer's nodata marker
// are excluded and their RawValue is cleared.
func Aggregate(grid *sampling.SampleGrid, areaKm2 float64, ref HazardLayerRef) *RiskProfile {
	p := &RiskProfile{
		AssetID:           grid.AssetID,
		Hazard:            ref.Name,
		Unit:              ref.Unit,
		SampleCount:       len(grid.Points),
		AreaKm2:           areaKm2,
		GridSpacingMeters: grid.SpacingMeters,
	}

	bands := ref.Bands()
	counts := make([]int, len(bands))
	values := make([]float64, 0, len(grid.Points))
	for i := range grid.Points {
		pt := &grid.Points[i]
		pt.Band = ""
		if pt.RawValue == nil || ref.IsNoData(*pt.RawValue) {
			pt.RawValue = nil
			p.ExcludedCount++
			continue
		}
		idx, label := ref.Classify(*pt.RawValue)
		pt.Band = label
		counts[idx]++
		values = append(values, *pt.RawValue)
	}

	if len(values) == 0 {
		p.InsufficientData = true
		p.Recommendation = RecommendInsufficientData
		return p
	}

	p.Statistics = Summarize(values)
	p.Distribution = make(map[string]BandShare, len(bands))
	valid := float64(len(values))
	dominant := 0
	for i, label := range bands {
		pct := float64(counts[i]) / valid * 100
		p.Distribution[label] = BandShare{
			Count:      counts[i],
			Percentage: pct,
			AreaKm2:    pct / 100 * areaKm2,
		}
		// >= resolves ties toward the later, more severe band.
		if counts[i] >= counts[dominant] {
			dominant = i
		}
	}

	worst := bands[len(bands)-1]
	p.DominantBand = bands[dominant]
	p.SpatialVariability = p.Statistics.Variability()
	p.Priority = Priority(p.DominantBand, p.SpatialVariability)
	p.Recommendation = Recommend(p.DominantBand, p.Priority, p.Distribution[worst].Percentage)
	p.Clusters = ref.Consolidate(grid.Points, grid.SpacingMeters)

	zap.L().Debug("risk: aggregated",
		zap.String("asset_id", p.AssetID),
		zap.String("hazard", p.Hazard),
		zap.Int("valid", len(values)),
		zap.String("dominant_band", p.DominantBand),
		zap.String("priority", p.Priority),
	)
	return p
}
