// Package risk classifies resolved hazard samples into severity bands and
// aggregates them into a per-asset RiskProfile.
package risk

import (
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Canonical band labels used by the priority rules.
const (
	BandLow      = "Low"
	BandMedium   = "Medium"
	BandHigh     = "High"
	BandVeryHigh = "Very High"
)

// Threshold is one band boundary. Labels are listed in severity order.
type Threshold struct {
	UpperBound float64 `json:"upper_bound" yaml:"upper_bound" mapstructure:"upper_bound"`
	Label      string  `json:"label" yaml:"label" mapstructure:"label"`
}

// HazardLayerRef describes how raw values of one hazard layer are read and
// classified. It is supplied by the caller for every profile. Reversed marks
// layers where a higher raw value means lower risk.
type HazardLayerRef struct {
	Name          string      `json:"name" yaml:"name" mapstructure:"name"`
	Title         string      `json:"title,omitempty" yaml:"title" mapstructure:"title"`
	Unit          string      `json:"unit" yaml:"unit" mapstructure:"unit"`
	Source        string      `json:"source,omitempty" yaml:"source" mapstructure:"source"`
	Thresholds    []Threshold `json:"thresholds" yaml:"thresholds" mapstructure:"thresholds"`
	OverflowLabel string      `json:"overflow_label" yaml:"overflow_label" mapstructure:"overflow_label"`
	Reversed      bool        `json:"reversed" yaml:"reversed" mapstructure:"reversed"`
	NoData        *float64    `json:"nodata,omitempty" yaml:"nodata" mapstructure:"nodata"`
}

// Bands returns the band labels from least to most severe. The overflow
// label is last.
func (r HazardLayerRef) Bands() []string {
	out := make([]string, 0, len(r.Thresholds)+1)
	for _, t := range r.Thresholds {
		out = append(out, t.Label)
	}
	return append(out, r.overflow())
}

func (r HazardLayerRef) overflow() string {
	if r.OverflowLabel != "" {
		return r.OverflowLabel
	}
	return BandVeryHigh
}

// Validate checks that the thresholds are usable for classification.
func (r HazardLayerRef) Validate() error {
	var errs []string
	if strings.TrimSpace(r.Name) == "" {
		errs = append(errs, "name is required")
	}
	if len(r.Thresholds) == 0 {
		errs = append(errs, "at least one threshold is required")
	}
	seen := make(map[string]bool, len(r.Thresholds)+1)
	for i, t := range r.Thresholds {
		if math.IsNaN(t.UpperBound) || math.IsInf(t.UpperBound, 0) {
			errs = append(errs, fmt.Sprintf("threshold %d is not finite", i))
		}
		if i > 0 && t.UpperBound <= r.Thresholds[i-1].UpperBound {
			errs = append(errs, fmt.Sprintf("threshold %d (%g) must be greater than threshold %d", i, t.UpperBound, i-1))
		}
		if t.Label == "" {
			errs = append(errs, fmt.Sprintf("threshold %d has no label", i))
		}
	}
	for _, b := range r.Bands() {
		if b != "" && seen[b] {
			errs = append(errs, fmt.Sprintf("duplicate band label %q", b))
		}
		seen[b] = true
	}
	if len(errs) > 0 {
		return eris.Errorf("risk: layer %q invalid: %s", r.Name, strings.Join(errs, "; "))
	}
	return nil
}

// IsNoData reports whether v is the layer's nodata marker or not a finite
// number.
func (r HazardLayerRef) IsNoData(v float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return true
	}
	return r.NoData != nil && v == *r.NoData
}

// Classify returns the band index and label for v.
//
// Non-reversed layers: value < t1 is band 0, t1 <= value < t2 is band 1, and
// value >= t_last is the overflow band. Reversed layers flip the comparison:
// value > t_last is band 0 and value <= t1 is the overflow band.
func (r HazardLayerRef) Classify(v float64) (int, string) {
	idx := 0
	for _, t := range r.Thresholds {
		if r.Reversed {
			if v <= t.UpperBound {
				idx++
			}
		} else if v >= t.UpperBound {
			idx++
		}
	}
	return idx, r.Bands()[idx]
}

// Severity returns the index of label in Bands, or -1.
func (r HazardLayerRef) Severity(label string) int {
	for i, b := range r.Bands() {
		if b == label {
			return i
		}
	}
	return -1
}

// canonicalBand normalizes label casing and spacing so "very high" and
// "VERY HIGH" both read as BandVeryHigh. Casers are stateful, so each call
// gets its own.
func canonicalBand(label string) string {
	return cases.Title(language.English).String(strings.Join(strings.Fields(label), " "))
}
