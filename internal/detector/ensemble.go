package detector

import (
	"math"
	"sort"

	"github.com/pratik-mahalle/costlens/internal/domain/anomaly"
)

type groupKey struct {
	date    string
	service string
}

// Aggregate merges per-method candidates into confirmed records. Candidates
// are grouped by (date, service); a group is confirmed when at least
// ceil(total/2) of the successful slots flagged it. Ensemble records are
// labelled "ensemble"; otherwise the label is the method that produced the
// candidate, which differs from the requested one after a fallback.
func Aggregate(results []MethodResult, requested anomaly.Method) []anomaly.AnomalyRecord {
	var ok []MethodResult
	for _, r := range results {
		if r.Succeeded() {
			ok = append(ok, r)
		}
	}
	total := len(ok)
	if total == 0 {
		return []anomaly.AnomalyRecord{}
	}
	required := int(math.Ceil(float64(total) / 2))

	groups := make(map[groupKey][]Candidate)
	var order []groupKey
	for _, r := range ok {
		for _, c := range dedupe(r.Candidates) {
			k := groupKey{date: dateKey(c.Date), service: c.Service}
			if _, seen := groups[k]; !seen {
				order = append(order, k)
			}
			groups[k] = append(groups[k], c)
		}
	}

	records := make([]anomaly.AnomalyRecord, 0, len(order))
	for _, k := range order {
		members := groups[k]
		if len(members) < required {
			continue
		}
		label := string(anomaly.MethodEnsemble)
		if requested != anomaly.MethodEnsemble {
			label = string(members[0].Method)
		}
		records = append(records, merge(members, label, total))
	}

	SortRecords(records)
	return records
}

// dedupe keeps one candidate per (date, service) within a single method,
// preferring the highest score and then the earliest index
func dedupe(cands []Candidate) []Candidate {
	best := make(map[groupKey]int)
	var out []Candidate
	for _, c := range cands {
		k := groupKey{date: dateKey(c.Date), service: c.Service}
		if at, seen := best[k]; seen {
			if c.Score > out[at].Score {
				out[at] = c
			}
			continue
		}
		best[k] = len(out)
		out = append(out, c)
	}
	return out
}

// merge averages score and baseline over the group. Difference and
// percentage are derived from the averaged baseline so they stay consistent
// with cost and baseline_cost after rounding.
func merge(members []Candidate, label string, total int) anomaly.AnomalyRecord {
	rep := members[0]
	var score, baseline float64
	for _, m := range members {
		score += m.Score
		baseline += m.BaselineCost
	}
	score /= float64(len(members))
	baseline /= float64(len(members))

	return newRecord(rep, round2(baseline), round2(score), label, len(members), total)
}

func newRecord(rep Candidate, baseline, score float64, label string, agreement, total int) anomaly.AnomalyRecord {
	cost := rep.Cost
	diff := round2(cost - baseline)
	pct := 0.0
	if baseline != 0 {
		pct = round2(diff / baseline * 100)
	}

	anomalyType := anomaly.TypeCostSpike
	if diff < 0 {
		anomalyType = anomaly.TypeCostDrop
	}

	return anomaly.AnomalyRecord{
		Date:               rep.Date,
		Service:            rep.Service,
		Provider:           rep.Provider,
		ResourceID:         rep.ResourceID,
		Cost:               cost,
		BaselineCost:       baseline,
		CostDifference:     diff,
		PercentageIncrease: pct,
		Score:              score,
		DetectionMethod:    label,
		MethodsAgreement:   agreement,
		MethodsTotal:       total,
		Confidence:         float64(agreement) / float64(total),
		Severity:           severityFromDeviation(math.Abs(pct)),
		AnomalyType:        anomalyType,
	}
}

// severityFromDeviation maps the absolute percentage deviation to a severity level
func severityFromDeviation(deviation float64) string {
	switch {
	case deviation > 100:
		return anomaly.SeverityCritical
	case deviation > 50:
		return anomaly.SeverityHigh
	case deviation > 25:
		return anomaly.SeverityMedium
	default:
		return anomaly.SeverityLow
	}
}

// SortRecords orders records by confidence, then absolute percentage change
// (both descending), then date and service
func SortRecords(records []anomaly.AnomalyRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if pa, pb := math.Abs(a.PercentageIncrease), math.Abs(b.PercentageIncrease); pa != pb {
			return pa > pb
		}
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		return a.Service < b.Service
	})
}
