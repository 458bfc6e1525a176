package detector

import (
	"math"

	"github.com/pratik-mahalle/costlens/internal/domain/anomaly"
)

// detectZScore flags points whose standardized deviation from the mean
// exceeds the threshold. A series with zero variance has no anomalies.
func detectZScore(s *Series, threshold float64, _ Config) ([]Candidate, error) {
	costs := s.Costs()
	if len(costs) < 2 {
		return nil, ErrTooFewPoints
	}
	if !allFinite(costs) {
		return nil, ErrNonFinite
	}

	mu := mean(costs)
	sigma := popStdDev(costs)
	if sigma == 0 || math.IsNaN(sigma) {
		return nil, nil
	}

	z := make([]float64, len(costs))
	var flagged []int
	for i, c := range costs {
		z[i] = math.Abs(c-mu) / sigma
		if z[i] > threshold {
			flagged = append(flagged, i)
		}
	}
	if len(flagged) == 0 {
		return nil, nil
	}

	baseline := medianExcluding(costs, flaggedSet(flagged))
	return candidatesFor(s, anomaly.MethodZScore, flagged,
		func(i int) float64 { return z[i] },
		func(int) float64 { return baseline },
	), nil
}
