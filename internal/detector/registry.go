package detector

import (
	"errors"
	"fmt"
	"time"

	"github.com/pratik-mahalle/costlens/internal/domain/anomaly"
)

var (
	ErrTooFewPoints  = errors.New("not enough data points")
	ErrNonFinite     = errors.New("series contains non-finite costs")
	ErrNoSeasonality = errors.New("no seasonal period found")
	ErrNoDenseRegion = errors.New("no dense region in series")
	ErrNoDateAxis    = errors.New("series has a single date")
)

// Candidate is a point flagged by a single method
type Candidate struct {
	Index        int
	Date         time.Time
	Service      string
	Provider     string
	ResourceID   string
	Cost         float64
	BaselineCost float64
	Score        float64
	Method       anomaly.Method
}

// MethodResult is the outcome of one method slot
type MethodResult struct {
	Method     anomaly.Method
	Candidates []Candidate
	Status     string
	Fallback   *anomaly.MethodFallback
	Err        error
}

// Succeeded reports whether the slot produced a usable candidate list
func (r MethodResult) Succeeded() bool {
	return r.Status == anomaly.MethodStatusOK || r.Status == anomaly.MethodStatusFallback
}

type detectFunc func(s *Series, threshold float64, cfg Config) ([]Candidate, error)

type methodSpec struct {
	minPoints func(Config) int
	needsDate bool
	detect    detectFunc
}

var registry = map[anomaly.Method]methodSpec{
	anomaly.MethodZScore: {
		minPoints: func(Config) int { return 2 },
		detect:    detectZScore,
	},
	anomaly.MethodIsolation: {
		minPoints: func(c Config) int { return c.IsolationMinPoints },
		detect:    detectIsolation,
	},
	anomaly.MethodDensity: {
		minPoints: func(c Config) int { return c.DensityMinPoints },
		detect:    detectDensity,
	},
	anomaly.MethodDecomposition: {
		minPoints: func(c Config) int { return c.DecompositionMinPoints },
		needsDate: true,
		detect:    detectDecomposition,
	},
}

// ensembleOrder fixes slot order so merged records are reproducible
var ensembleOrder = []anomaly.Method{
	anomaly.MethodZScore,
	anomaly.MethodIsolation,
	anomaly.MethodDensity,
	anomaly.MethodDecomposition,
}

// applicable reports whether a method can run on the series
func applicable(m anomaly.Method, s *Series, cfg Config) error {
	entry, ok := registry[m]
	if !ok {
		return fmt.Errorf("unsupported detection method: %s", m)
	}
	if need := entry.minPoints(cfg); s.Len() < need {
		return fmt.Errorf("%w: %s needs %d, have %d", ErrTooFewPoints, m, need, s.Len())
	}
	if entry.needsDate && s.DistinctDates() < 2 {
		return ErrNoDateAxis
	}
	return nil
}

// run executes one method, converting panics into errors
func run(m anomaly.Method, s *Series, threshold float64, cfg Config) (cands []Candidate, err error) {
	defer func() {
		if r := recover(); r != nil {
			cands = nil
			err = fmt.Errorf("%s panicked: %v", m, r)
		}
	}()
	if err := applicable(m, s, cfg); err != nil {
		return nil, err
	}
	return registry[m].detect(s, threshold, cfg)
}

// candidatesFor builds the candidate list for the flagged indices in index order
func candidatesFor(s *Series, m anomaly.Method, flagged []int, score func(i int) float64, baseline func(i int) float64) []Candidate {
	out := make([]Candidate, 0, len(flagged))
	for _, i := range flagged {
		p := s.At(i)
		out = append(out, Candidate{
			Index:        i,
			Date:         p.Date,
			Service:      p.Service,
			Provider:     p.Provider,
			ResourceID:   p.ResourceID,
			Cost:         p.Cost,
			BaselineCost: baseline(i),
			Score:        score(i),
			Method:       m,
		})
	}
	return out
}

func flaggedSet(idx []int) map[int]bool {
	set := make(map[int]bool, len(idx))
	for _, i := range idx {
		set[i] = true
	}
	return set
}
