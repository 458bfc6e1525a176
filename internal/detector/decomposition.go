package detector

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/pratik-mahalle/costlens/internal/domain/anomaly"
)

// detectDecomposition splits the series into trend, seasonal and residual
// components and flags points whose residual exceeds threshold standard
// deviations. The period is the candidate lag with the strongest
// autocorrelation; ErrNoSeasonality is returned when none qualifies.
func detectDecomposition(s *Series, threshold float64, cfg Config) ([]Candidate, error) {
	costs := s.Costs()
	if !allFinite(costs) {
		return nil, ErrNonFinite
	}

	period, ok := dominantPeriod(costs, cfg.SeasonalPeriods, cfg.SeasonalityThreshold)
	if !ok {
		return nil, ErrNoSeasonality
	}

	trend, _, resid := decompose(costs, period)

	var valid []float64
	for _, r := range resid {
		if !math.IsNaN(r) {
			valid = append(valid, r)
		}
	}
	sigma := sampleStdDev(valid)
	if sigma == 0 || math.IsNaN(sigma) {
		return nil, nil
	}

	var flagged []int
	for i, r := range resid {
		if !math.IsNaN(r) && math.Abs(r) > threshold*sigma {
			flagged = append(flagged, i)
		}
	}
	if len(flagged) == 0 {
		return nil, nil
	}

	fallback := median(costs)
	return candidatesFor(s, anomaly.MethodDecomposition, flagged,
		func(i int) float64 { return math.Abs(resid[i]) / sigma },
		func(i int) float64 {
			if math.IsNaN(trend[i]) {
				return fallback
			}
			return trend[i]
		},
	), nil
}

// dominantPeriod returns the candidate lag with the highest autocorrelation
// above minCorr. A lag needs at least two full cycles of data.
func dominantPeriod(x []float64, candidates []int, minCorr float64) (int, bool) {
	best, bestCorr := 0, math.Inf(-1)
	for _, lag := range candidates {
		if lag < 2 || len(x) < 2*lag {
			continue
		}
		c := autocorrelation(x, lag)
		if math.IsNaN(c) {
			continue
		}
		if c > bestCorr {
			best, bestCorr = lag, c
		}
	}
	if best == 0 || bestCorr <= minCorr {
		return 0, false
	}
	return best, true
}

// autocorrelation is the Pearson correlation of the series with itself shifted by lag
func autocorrelation(x []float64, lag int) float64 {
	if lag <= 0 || lag >= len(x)-1 {
		return math.NaN()
	}
	return stat.Correlation(x[:len(x)-lag], x[lag:], nil)
}

// decompose performs a classical additive decomposition. Trend is a centered
// moving average (2xMA for even periods) and is NaN where the window does
// not fit; residual is NaN there too.
func decompose(x []float64, period int) (trend, seasonal, resid []float64) {
	n := len(x)
	trend = centeredMovingAverage(x, period)

	sums := make([]float64, period)
	counts := make([]int, period)
	for i := 0; i < n; i++ {
		if math.IsNaN(trend[i]) {
			continue
		}
		sums[i%period] += x[i] - trend[i]
		counts[i%period]++
	}
	index := make([]float64, period)
	for p := range index {
		if counts[p] > 0 {
			index[p] = sums[p] / float64(counts[p])
		}
	}
	center := mean(index)
	for p := range index {
		index[p] -= center
	}

	seasonal = make([]float64, n)
	resid = make([]float64, n)
	for i := 0; i < n; i++ {
		seasonal[i] = index[i%period]
		resid[i] = x[i] - trend[i] - seasonal[i]
	}
	return trend, seasonal, resid
}

func centeredMovingAverage(x []float64, period int) []float64 {
	n := len(x)
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	half := period / 2

	weights := make([]float64, 0, period+1)
	if period%2 == 1 {
		for i := 0; i < period; i++ {
			weights = append(weights, 1/float64(period))
		}
	} else {
		weights = append(weights, 0.5/float64(period))
		for i := 1; i < period; i++ {
			weights = append(weights, 1/float64(period))
		}
		weights = append(weights, 0.5/float64(period))
	}

	for i := half; i < n-half; i++ {
		sum := 0.0
		for k, w := range weights {
			sum += w * x[i-half+k]
		}
		out[i] = sum
	}
	return out
}
