package risk

// Priority levels.
const (
	PriorityCritical = "Critical"
	PriorityHigh     = "High"
	PriorityMedium   = "Medium"
	PriorityLow      = "Low"
)

// Priority combines the dominant band and spatial variability. Band labels
// are compared case-insensitively.
func Priority(dominantBand, variability string) string {
	switch canonicalBand(dominantBand) {
	case BandHigh, BandVeryHigh:
		if variability == VariabilityMedium || variability == VariabilityHigh {
			return PriorityCritical
		}
		return PriorityHigh
	case BandMedium:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// RecommendInsufficientData is returned for profiles without valid samples.
const RecommendInsufficientData = "No valid hazard values were found inside the asset. Confirm the layer covers this location before relying on the result."

// rule is one row of the recommendation table. Empty Dominant matches any
// band; MinWorstPct is the share of samples in the layer's most severe band
// required to match.
type rule struct {
	Priority    string
	Dominant    string
	MinWorstPct float64
	Text        string
}

// recommendations is evaluated top to bottom; the first match wins. The last
// row for each priority has no conditions, so every priority resolves.
var recommendations = []rule{
	{PriorityCritical, BandVeryHigh, 50, "Severe exposure across most of the asset with uneven intensity. Commission a site-specific engineering assessment and prioritize mitigation at the worst-affected zones."},
	{PriorityCritical, "", 0, "High exposure with significant variation across the asset. Map the hotspot zones and target mitigation and siting decisions at them first."},
	{PriorityHigh, BandVeryHigh, 50, "Severe, uniform exposure across the asset. Plan asset-wide hardening and include the hazard in insurance and continuity planning."},
	{PriorityHigh, "", 0, "High, uniform exposure across the asset. Apply standard protective measures throughout and review them at the next capital planning cycle."},
	{PriorityMedium, "", 10, "Moderate exposure with pockets of the most severe band. Verify conditions at the flagged locations and protect critical equipment there."},
	{PriorityMedium, "", 0, "Moderate exposure. Monitor the hazard and incorporate it into routine maintenance and emergency planning."},
	{PriorityLow, "", 5, "Low overall exposure with isolated severe readings. Confirm the flagged locations on site before dismissing the hazard."},
	{PriorityLow, "", 0, "Low exposure. No specific action is required beyond periodic review."},
}

// Recommend returns the fixed recommendation for a (dominant band, priority,
// worst-band percentage) combination.
func Recommend(dominantBand, priority string, worstPct float64) string {
	dominant := canonicalBand(dominantBand)
	for _, r := range recommendations {
		if r.Priority != priority {
			continue
		}
		if r.Dominant != "" && r.Dominant != dominant {
			continue
		}
		if worstPct < r.MinWorstPct {
			continue
		}
		return r.Text
	}
	return recommendations[len(recommendations)-1].Text
}
