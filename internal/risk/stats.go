package risk

import (
	"math"
	"slices"
)

// Statistics summarizes the valid raw values of a profile.
type Statistics struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Std    float64 `json:"std"`
}

// Summarize computes statistics over values. The standard deviation is the
// population form. It returns nil for an empty input.
func Summarize(values []float64) *Statistics {
	n := len(values)
	if n == 0 {
		return nil
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	mean := sum / float64(n)

	var sq float64
	for _, v := range sorted {
		d := v - mean
		sq += d * d
	}

	median := sorted[n/2]
	if n%2 == 0 {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	}

	return &Statistics{
		Count:  n,
		Mean:   mean,
		Median: median,
		Min:    sorted[0],
		Max:    sorted[n-1],
		Std:    math.Sqrt(sq / float64(n)),
	}
}

// Variability levels.
const (
	VariabilityLow    = "Low"
	VariabilityMedium = "Medium"
	VariabilityHigh   = "High"
)

// meanEpsilon is the magnitude below which the mean is treated as zero and the
// coefficient of variation falls back to the standard deviation.
const meanEpsilon = 1e-9

// CoefficientOfVariation returns std/|mean|, or std when the mean is ~0.
func (s *Statistics) CoefficientOfVariation() float64 {
	if math.Abs(s.Mean) < meanEpsilon {
		return s.Std
	}
	return s.Std / math.Abs(s.Mean)
}

// Variability classifies dispersion: CV < 0.15 is Low, CV <= 0.35 is Medium
// and anything above is High.
func (s *Statistics) Variability() string {
	cv := s.CoefficientOfVariation()
	switch {
	case cv < 0.15:
		return VariabilityLow
	case cv <= 0.35:
		return VariabilityMedium
	default:
		return VariabilityHigh
	}
}
