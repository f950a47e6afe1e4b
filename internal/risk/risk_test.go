package risk

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/exposure-cli/internal/fault"
	"github.com/sells-group/exposure-cli/internal/sampling"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func f64(v float64) *float64 { return &v }

func depthLayer() HazardLayerRef {
	return HazardLayerRef{
		Name: "flood",
		Unit: "m",
		Thresholds: []Threshold{
			{UpperBound: 1.0, Label: "Low"},
			{UpperBound: 2.0, Label: "Medium"},
			{UpperBound: 3.0, Label: "High"},
		},
		OverflowLabel: "Very High",
	}
}

func seaLevelLayer() HazardLayerRef {
	return HazardLayerRef{
		Name: "sea_level_rise",
		Unit: "m",
		Thresholds: []Threshold{
			{UpperBound: 2, Label: "Low"},
			{UpperBound: 5, Label: "Medium"},
			{UpperBound: 10, Label: "High"},
		},
		OverflowLabel: "Very High",
		Reversed:      true,
	}
}

// gridOf lays values out on a 100 m east-west line; nil entries are nodata.
func gridOf(values ...*float64) *sampling.SampleGrid {
	g := &sampling.SampleGrid{AssetID: "asset-1", SpacingMeters: 100}
	for i, v := range values {
		g.Points = append(g.Points, sampling.SamplePoint{
			Lon:      121 + float64(i)*100/111320,
			Lat:      0,
			RawValue: v,
		})
	}
	return g
}

func TestClassify(t *testing.T) {
	layer := depthLayer()
	tests := []struct {
		value float64
		want  string
	}{
		{0.5, "Low"},
		{1.0, "Medium"},
		{1.99, "Medium"},
		{2.0, "High"},
		{3.0, "Very High"},
		{3.5, "Very High"},
		{-4, "Low"},
	}
	for _, tt := range tests {
		_, got := layer.Classify(tt.value)
		assert.Equal(t, tt.want, got, "value %v", tt.value)
	}
}

func TestClassify_Reversed(t *testing.T) {
	layer := seaLevelLayer()
	tests := []struct {
		value float64
		want  string
	}{
		{12, "Low"},
		{10, "Medium"},
		{7, "Medium"},
		{3, "High"},
		{2, "Very High"},
		{0.5, "Very High"},
	}
	for _, tt := range tests {
		_, got := layer.Classify(tt.value)
		assert.Equal(t, tt.want, got, "value %v", tt.value)
	}
}

func TestClassify_Monotonic(t *testing.T) {
	for _, layer := range []HazardLayerRef{depthLayer(), seaLevelLayer()} {
		prev := -1
		if layer.Reversed {
			prev = len(layer.Bands())
		}
		for v := -1.0; v <= 15; v += 0.25 {
			idx, _ := layer.Classify(v)
			if layer.Reversed {
				assert.LessOrEqual(t, idx, prev, "%s at %v", layer.Name, v)
			} else {
				assert.GreaterOrEqual(t, idx, prev, "%s at %v", layer.Name, v)
			}
			prev = idx
		}
	}
}

func TestBands_DefaultOverflow(t *testing.T) {
	layer := depthLayer()
	layer.OverflowLabel = ""
	assert.Equal(t, []string{"Low", "Medium", "High", "Very High"}, layer.Bands())
	assert.Equal(t, 3, layer.Severity("Very High"))
	assert.Equal(t, -1, layer.Severity("Extreme"))
}

func TestValidate(t *testing.T) {
	require.NoError(t, depthLayer().Validate())

	bad := depthLayer()
	bad.Thresholds[2].UpperBound = 1.5
	err := bad.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be greater than")

	dup := depthLayer()
	dup.OverflowLabel = "High"
	require.Error(t, dup.Validate())

	assert.Error(t, HazardLayerRef{Name: "empty"}.Validate())
}

func TestIsNoData(t *testing.T) {
	layer := depthLayer()
	layer.NoData = f64(-9999)
	assert.True(t, layer.IsNoData(-9999))
	assert.True(t, layer.IsNoData(math.NaN()))
	assert.True(t, layer.IsNoData(math.Inf(-1)))
	assert.False(t, layer.IsNoData(0))
}

func TestSummarize(t *testing.T) {
	s := Summarize([]float64{4, 1, 3, 2})
	require.NotNil(t, s)
	assert.Equal(t, 4, s.Count)
	assert.InDelta(t, 2.5, s.Mean, 1e-12)
	assert.InDelta(t, 2.5, s.Median, 1e-12)
	assert.Equal(t, 1.0, s.Min)
	assert.Equal(t, 4.0, s.Max)
	assert.InDelta(t, math.Sqrt(1.25), s.Std, 1e-12)

	odd := Summarize([]float64{5, 1, 3})
	assert.Equal(t, 3.0, odd.Median)

	assert.Nil(t, Summarize(nil))
}

func TestVariability(t *testing.T) {
	tests := []struct {
		name string
		mean float64
		std  float64
		want string
	}{
		{"uniform", 0.85, 0, VariabilityLow},
		{"just below low", 1, 0.149, VariabilityLow},
		{"low boundary", 1, 0.15, VariabilityMedium},
		{"medium boundary", 1, 0.35, VariabilityMedium},
		{"high", 1, 0.5, VariabilityHigh},
		{"negative mean", -2, 0.2, VariabilityLow},
		{"zero mean uses std", 0, 0.2, VariabilityMedium},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Statistics{Mean: tt.mean, Std: tt.std}
			assert.Equal(t, tt.want, s.Variability())
		})
	}
}

func TestPriority(t *testing.T) {
	tests := []struct {
		band        string
		variability string
		want        string
	}{
		{"Very High", VariabilityHigh, PriorityCritical},
		{"High", VariabilityMedium, PriorityCritical},
		{"very high", VariabilityLow, PriorityHigh},
		{"HIGH", VariabilityLow, PriorityHigh},
		{"Medium", VariabilityHigh, PriorityMedium},
		{"Low", VariabilityHigh, PriorityLow},
		{"Negligible", VariabilityLow, PriorityLow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Priority(tt.band, tt.variability), "%s/%s", tt.band, tt.variability)
	}
}

func TestRecommend(t *testing.T) {
	for _, p := range []string{PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow} {
		assert.NotEmpty(t, Recommend("Low", p, 0), p)
	}

	// Worst-band share changes the rule within a priority.
	assert.NotEqual(t, Recommend("Low", PriorityLow, 0), Recommend("Low", PriorityLow, 20))
	assert.NotEqual(t, Recommend("Very High", PriorityHigh, 80), Recommend("High", PriorityHigh, 80))
	assert.Equal(t, Recommend("very high", PriorityHigh, 80), Recommend("Very High", PriorityHigh, 80))

	// Deterministic.
	assert.Equal(t, Recommend("Medium", PriorityMedium, 12), Recommend("Medium", PriorityMedium, 12))
}

func TestAggregate_Distribution(t *testing.T) {
	g := gridOf(f64(0.5), f64(0.7), f64(1.5), f64(2.5), f64(3.5), f64(0.2))
	p := Aggregate(g, 4.0, depthLayer())

	assert.Equal(t, 6, p.SampleCount)
	assert.Equal(t, 0, p.ExcludedCount)
	assert.False(t, p.InsufficientData)
	assert.NoError(t, p.Err())
	require.Len(t, p.Distribution, 4)

	var pct, area float64
	for _, share := range p.Distribution {
		pct += share.Percentage
		area += share.AreaKm2
	}
	assert.InDelta(t, 100, pct, 0.01)
	assert.InDelta(t, 4.0, area, 1e-9)

	low := p.Distribution["Low"]
	assert.Equal(t, 3, low.Count)
	assert.InDelta(t, 50, low.Percentage, 1e-9)
	assert.InDelta(t, 2.0, low.AreaKm2, 1e-9)
	assert.Equal(t, "Low", p.DominantBand)

	// Bands are written back onto the samples.
	assert.Equal(t, "Very High", g.Points[4].Band)
	assert.Equal(t, "Medium", g.Points[2].Band)
}

func TestAggregate_ExcludesNoData(t *testing.T) {
	layer := depthLayer()
	layer.NoData = f64(-9999)
	g := gridOf(f64(2.5), nil, f64(-9999), f64(2.2))

	p := Aggregate(g, 1, layer)
	assert.Equal(t, 4, p.SampleCount)
	assert.Equal(t, 2, p.ExcludedCount)
	assert.Equal(t, 2, p.Statistics.Count)
	assert.InDelta(t, 2.35, p.Statistics.Mean, 1e-12)
	assert.Equal(t, "High", p.DominantBand)
	assert.Nil(t, g.Points[2].RawValue)
	assert.Empty(t, g.Points[2].Band)
}

func TestAggregate_InsufficientData(t *testing.T) {
	layer := depthLayer()
	layer.NoData = f64(-9999)
	p := Aggregate(gridOf(nil, f64(-9999), nil), 2, layer)

	assert.True(t, p.InsufficientData)
	assert.Equal(t, p.SampleCount, p.ExcludedCount)
	assert.Empty(t, p.Distribution)
	assert.Nil(t, p.Statistics)
	assert.Empty(t, p.DominantBand)
	assert.Empty(t, p.Priority)
	assert.Equal(t, RecommendInsufficientData, p.Recommendation)

	err := p.Err()
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.KindInsufficientData))
	assert.Contains(t, err.Error(), "all 3 samples are nodata")
}

func TestAggregate_TieGoesToMoreSevereBand(t *testing.T) {
	p := Aggregate(gridOf(f64(0.1), f64(0.2), f64(2.1), f64(2.2)), 1, depthLayer())
	assert.Equal(t, "High", p.DominantBand)
}

func TestAggregate_UniformCritical(t *testing.T) {
	p := Aggregate(gridOf(f64(1), f64(5), f64(5), f64(5)), 1, depthLayer())
	assert.Equal(t, "Very High", p.DominantBand)
	assert.Equal(t, VariabilityHigh, p.SpatialVariability)
	assert.Equal(t, PriorityCritical, p.Priority)
	assert.NotEmpty(t, p.Recommendation)
}

func TestAggregate_Reversed(t *testing.T) {
	p := Aggregate(gridOf(f64(1), f64(1.5), f64(20)), 1, seaLevelLayer())
	assert.Equal(t, "Very High", p.DominantBand)
	assert.Equal(t, 1, p.Distribution["Low"].Count)
	assert.Equal(t, 2, p.Distribution["Very High"].Count)
}

func TestConsolidate(t *testing.T) {
	// Two Low runs separated by a gap wider than twice the spacing, plus one
	// High sample.
	g := gridOf(f64(0.1), f64(0.2), f64(0.3), nil, nil, nil, f64(0.4), f64(0.5), f64(2.5))
	layer := depthLayer()
	p := Aggregate(g, 1, layer)

	require.Len(t, p.Clusters, 3)
	assert.Equal(t, "High", p.Clusters[0].Band)
	assert.Equal(t, 1, p.Clusters[0].Count)

	first, second := p.Clusters[1], p.Clusters[2]
	assert.Equal(t, "Low", first.Band)
	assert.Equal(t, 3, first.Count)
	assert.InDelta(t, 0.2, first.MeanValue, 1e-12)
	assert.Equal(t, 0.1, first.MinValue)
	assert.Equal(t, 0.3, first.MaxValue)
	assert.InDelta(t, g.Points[1].Lon, first.Lon, 1e-12)

	assert.Equal(t, 2, second.Count)
	assert.InDelta(t, 0.45, second.MeanValue, 1e-12)
}

func TestConsolidate_Deterministic(t *testing.T) {
	layer := depthLayer()
	g := gridOf(f64(0.1), f64(2.5), f64(0.2), f64(3.5), f64(1.5))
	for i := range g.Points {
		_, g.Points[i].Band = layer.Classify(*g.Points[i].RawValue)
	}
	a := layer.Consolidate(g.Points, 100)
	b := layer.Consolidate(g.Points, 100)
	assert.Equal(t, a, b)
}

func TestCanonicalBand(t *testing.T) {
	assert.Equal(t, BandVeryHigh, canonicalBand("very  high"))
	assert.Equal(t, BandHigh, canonicalBand("HIGH"))
}
