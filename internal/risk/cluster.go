package risk

import (
	"sort"

	"github.com/sells-group/exposure-cli/internal/geometry"
	"github.com/sells-group/exposure-cli/internal/sampling"
)

// clusterReach is the linkage distance in grid spacings.
const clusterReach = 2.0

// Cluster is a spatially connected group of samples in the same band.
type Cluster struct {
	Band      string  `json:"band"`
	Count     int     `json:"count"`
	Lon       float64 `json:"lon"`
	Lat       float64 `json:"lat"`
	MeanValue float64 `json:"mean_value"`
	MinValue  float64 `json:"min_value"`
	MaxValue  float64 `json:"max_value"`
	first     int
}

// Consolidate groups classified samples into clusters. Two samples of the
// same band are linked when they lie within twice the grid spacing of each
// other; clusters are the connected components of that relation. The
// representative position is the member mean. Clusters are ordered from the
// most severe band down, then by the grid index of their first member.
// Samples without a value or band are skipped.
func (r HazardLayerRef) Consolidate(samples []sampling.SamplePoint, spacingMeters float64) []Cluster {
	reach := clusterReach * spacingMeters

	byBand := make(map[string][]int)
	for i, s := range samples {
		if s.RawValue == nil || s.Band == "" {
			continue
		}
		byBand[s.Band] = append(byBand[s.Band], i)
	}

	var out []Cluster
	for band, idx := range byBand {
		uf := newUnionFind(len(idx))
		for a := 0; a < len(idx); a++ {
			pa := samples[idx[a]].Position()
			for b := a + 1; b < len(idx); b++ {
				if geometry.EdgeMeters(pa, samples[idx[b]].Position()) <= reach {
					uf.union(a, b)
				}
			}
		}

		groups := make(map[int][]int)
		var roots []int
		for a := range idx {
			root := uf.find(a)
			if _, ok := groups[root]; !ok {
				roots = append(roots, root)
			}
			groups[root] = append(groups[root], idx[a])
		}
		for _, root := range roots {
			out = append(out, summarizeCluster(band, samples, groups[root]))
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		si, sj := r.Severity(out[i].Band), r.Severity(out[j].Band)
		if si != sj {
			return si > sj
		}
		return out[i].first < out[j].first
	})
	return out
}

func summarizeCluster(band string, samples []sampling.SamplePoint, members []int) Cluster {
	c := Cluster{Band: band, Count: len(members), first: members[0]}
	c.MinValue = *samples[members[0]].RawValue
	c.MaxValue = c.MinValue
	var sum float64
	for _, m := range members {
		s := samples[m]
		v := *s.RawValue
		c.Lon += s.Lon
		c.Lat += s.Lat
		sum += v
		if v < c.MinValue {
			c.MinValue = v
		}
		if v > c.MaxValue {
			c.MaxValue = v
		}
		if m < c.first {
			c.first = m
		}
	}
	n := float64(len(members))
	c.Lon /= n
	c.Lat /= n
	c.MeanValue = sum / n
	return c
}

type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	return &unionFind{parent: p}
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u.parent[rb] = ra
	}
}
