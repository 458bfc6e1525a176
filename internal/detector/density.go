package detector

import (
	"math"

	"github.com/pratik-mahalle/costlens/internal/domain/anomaly"
)

const noiseLabel = -1

// detectDensity clusters standardized (cost, day offset) points with DBSCAN.
// Points that end up in no cluster are anomalies with a flat score of 1.
func detectDensity(s *Series, threshold float64, cfg Config) ([]Candidate, error) {
	n := s.Len()
	if n < 2 {
		return nil, ErrTooFewPoints
	}
	costs := s.Costs()
	if !allFinite(costs) {
		return nil, ErrNonFinite
	}

	x := standardize(costs)
	y := standardize(s.Offsets())
	eps := 0.5 * threshold
	minPts := cfg.DensityMinNeighbors
	if byRatio := int(cfg.DensityNeighborRatio * float64(n)); byRatio > minPts {
		minPts = byRatio
	}

	labels := dbscan(x, y, eps, minPts)

	var flagged []int
	clustered := false
	for i, l := range labels {
		if l == noiseLabel {
			flagged = append(flagged, i)
		} else {
			clustered = true
		}
	}
	if !clustered {
		return nil, ErrNoDenseRegion
	}
	if len(flagged) == 0 {
		return nil, nil
	}

	baseline := medianExcluding(costs, flaggedSet(flagged))
	return candidatesFor(s, anomaly.MethodDensity, flagged,
		func(int) float64 { return 1 },
		func(int) float64 { return baseline },
	), nil
}

// standardize returns (v-mean)/std with the population std; a constant column maps to zeros
func standardize(v []float64) []float64 {
	mu := mean(v)
	sigma := popStdDev(v)
	if sigma == 0 {
		sigma = 1
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = (x - mu) / sigma
	}
	return out
}

// dbscan labels each point with a cluster id or noiseLabel. A point is core
// when at least minPts points (itself included) lie within eps.
func dbscan(x, y []float64, eps float64, minPts int) []int {
	n := len(x)
	neighbors := func(i int) []int {
		var out []int
		for j := 0; j < n; j++ {
			if math.Hypot(x[i]-x[j], y[i]-y[j]) <= eps {
				out = append(out, j)
			}
		}
		return out
	}

	const unvisited = -2
	labels := make([]int, n)
	for i := range labels {
		labels[i] = unvisited
	}

	cluster := 0
	for i := 0; i < n; i++ {
		if labels[i] != unvisited {
			continue
		}
		seeds := neighbors(i)
		if len(seeds) < minPts {
			labels[i] = noiseLabel
			continue
		}
		labels[i] = cluster
		for q := 0; q < len(seeds); q++ {
			j := seeds[q]
			if labels[j] == noiseLabel {
				labels[j] = cluster
			}
			if labels[j] != unvisited {
				continue
			}
			labels[j] = cluster
			if more := neighbors(j); len(more) >= minPts {
				seeds = append(seeds, more...)
			}
		}
		cluster++
	}
	return labels
}
