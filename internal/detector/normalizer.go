package detector

import (
	"sort"
	"strings"
	"time"

	"github.com/pratik-mahalle/costlens/internal/domain/anomaly"
)

const dateLayout = "2006-01-02"

// Point is one normalized cost observation
type Point struct {
	Date       time.Time
	Cost       float64
	Service    string
	Provider   string
	ResourceID string
	// DayOffset is the number of days since the first date in the series
	DayOffset float64
	Imputed   bool
}

// EntityKey identifies a (provider, service) cost stream
type EntityKey struct {
	Provider string
	Service  string
}

// DailyCost is the summed cost of an entity on one date
type DailyCost struct {
	Date time.Time
	Cost float64
}

// Series is a normalized, date-ordered cost series
type Series struct {
	points  []Point
	entity  map[EntityKey][]int
	dropped int
	imputed int
}

// Normalize turns raw observations into a Series. Observations without a
// date are dropped, missing costs are filled with the median of the known
// costs and empty labels become "Unknown". Points are ordered by date, then
// provider, service and resource id.
func Normalize(observations []anomaly.CostObservation) *Series {
	s := &Series{entity: make(map[EntityKey][]int)}

	known := make([]float64, 0, len(observations))
	for _, o := range observations {
		if o.Date.IsZero() {
			continue
		}
		if o.Cost.Valid {
			known = append(known, o.Cost.Decimal.InexactFloat64())
		}
	}
	fill := median(known)

	for _, o := range observations {
		if o.Date.IsZero() {
			s.dropped++
			continue
		}
		p := Point{
			Date:       truncateDay(o.Date),
			Service:    labelOrUnknown(o.Service),
			Provider:   labelOrUnknown(o.Provider),
			ResourceID: strings.TrimSpace(o.ResourceID),
		}
		if o.Cost.Valid {
			p.Cost = o.Cost.Decimal.InexactFloat64()
		} else {
			p.Cost = fill
			p.Imputed = true
			s.imputed++
		}
		s.points = append(s.points, p)
	}

	sort.SliceStable(s.points, func(i, j int) bool {
		a, b := s.points[i], s.points[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.Provider != b.Provider {
			return a.Provider < b.Provider
		}
		if a.Service != b.Service {
			return a.Service < b.Service
		}
		return a.ResourceID < b.ResourceID
	})

	if len(s.points) > 0 {
		first := s.points[0].Date
		for i := range s.points {
			s.points[i].DayOffset = s.points[i].Date.Sub(first).Hours() / 24
			key := EntityKey{Provider: s.points[i].Provider, Service: s.points[i].Service}
			s.entity[key] = append(s.entity[key], i)
		}
	}
	return s
}

// Len returns the number of usable points
func (s *Series) Len() int { return len(s.points) }

// Sufficient reports whether the series has at least n points
func (s *Series) Sufficient(n int) bool { return len(s.points) >= n }

// Dropped returns how many observations were discarded for lacking a date
func (s *Series) Dropped() int { return s.dropped }

// Imputed returns how many costs were filled with the median
func (s *Series) Imputed() int { return s.imputed }

// At returns the i-th point
func (s *Series) At(i int) Point { return s.points[i] }

// Costs returns a copy of the cost column
func (s *Series) Costs() []float64 {
	out := make([]float64, len(s.points))
	for i, p := range s.points {
		out[i] = p.Cost
	}
	return out
}

// Offsets returns a copy of the day offset column
func (s *Series) Offsets() []float64 {
	out := make([]float64, len(s.points))
	for i, p := range s.points {
		out[i] = p.DayOffset
	}
	return out
}

// DistinctDates returns the number of different dates in the series
func (s *Series) DistinctDates() int {
	n := 0
	for i, p := range s.points {
		if i == 0 || !p.Date.Equal(s.points[i-1].Date) {
			n++
		}
	}
	return n
}

// Entities returns every (provider, service) pair in sorted order
func (s *Series) Entities() []EntityKey {
	keys := make([]EntityKey, 0, len(s.entity))
	for k := range s.entity {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Provider != keys[j].Provider {
			return keys[i].Provider < keys[j].Provider
		}
		return keys[i].Service < keys[j].Service
	})
	return keys
}

// Daily returns the date-ordered daily totals of one entity
func (s *Series) Daily(key EntityKey) []DailyCost {
	var out []DailyCost
	for _, i := range s.entity[key] {
		p := s.points[i]
		if n := len(out); n > 0 && out[n-1].Date.Equal(p.Date) {
			out[n-1].Cost += p.Cost
			continue
		}
		out = append(out, DailyCost{Date: p.Date, Cost: p.Cost})
	}
	return out
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func labelOrUnknown(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return anomaly.UnknownLabel
	}
	return v
}

func dateKey(t time.Time) string {
	return t.Format(dateLayout)
}
