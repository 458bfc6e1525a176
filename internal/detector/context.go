package detector

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/pratik-mahalle/costlens/internal/domain/anomaly"
	"github.com/pratik-mahalle/costlens/internal/pkg/logger"
)

const (
	// relatedChangePercent is the minimum move for another service to count as related
	relatedChangePercent = 20.0
	// strongChangePercent marks a related service as strongly correlated
	strongChangePercent = 50.0
)

const day = 24 * time.Hour

// ContextInput is the side data available to the analyzer
type ContextInput struct {
	Series       *Series
	Utilization  []anomaly.UtilizationObservation
	CustomEvents []anomaly.CustomEvent
}

// Analyzer explains confirmed anomalies using the event taxonomy,
// utilization data and caller supplied events
type Analyzer struct {
	cfg    Config
	logger *logger.Logger
}

// NewAnalyzer creates a new cloud context analyzer
func NewAnalyzer(cfg Config, log *logger.Logger) *Analyzer {
	if log == nil {
		log = logger.Nop()
	}
	return &Analyzer{cfg: cfg.withDefaults(), logger: log}
}

// Enrich returns a copy of rec with its cloud context and root cause set
func (a *Analyzer) Enrich(rec anomaly.AnomalyRecord, in ContextInput) anomaly.AnomalyRecord {
	ctx := a.Analyze(rec, in)
	rec.CloudContext = ctx
	rec.RootCause = ""
	if len(ctx.ProbableCauses) > 0 {
		rec.RootCause = ctx.ProbableCauses[0].Cause
	}
	return rec
}

// Analyze builds the cloud context for one record. Any failure yields an empty context.
func (a *Analyzer) Analyze(rec anomaly.AnomalyRecord, in ContextInput) (ctx *anomaly.CloudContext) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.WithFields(map[string]interface{}{
				"service": rec.Service,
				"date":    dateKey(rec.Date),
				"panic":   fmt.Sprint(r),
			}).Warn("Cloud context analysis failed")
			ctx = anomaly.EmptyCloudContext()
		}
	}()

	ctx = anomaly.EmptyCloudContext()
	key := EntityKey{Provider: rec.Provider, Service: rec.Service}
	ctx.PatternType = a.classifyPattern(in.Series.Daily(key), rec.Date)

	var causes []anomaly.ProbableCause
	causes = append(causes, matchCustomEvents(rec, in.CustomEvents)...)
	causes = append(causes, matchTaxonomy(rec, ctx.PatternType)...)

	utilCauses, resources := correlateUtilization(rec, in.Utilization)
	causes = append(causes, utilCauses...)
	ctx.AffectedResources = append(ctx.AffectedResources, resources...)

	sort.SliceStable(causes, func(i, j int) bool {
		return confidenceRank(causes[i].Confidence) < confidenceRank(causes[j].Confidence)
	})
	ctx.ProbableCauses = append(ctx.ProbableCauses, causes...)
	ctx.RelatedServices = append(ctx.RelatedServices, relatedServices(rec, in.Series)...)
	ctx.MitigationSuggestions = append(ctx.MitigationSuggestions, mitigations(rec.Service, causes)...)
	return ctx
}

// classifyPattern compares the anomaly day against the entity's neighbouring days
func (a *Analyzer) classifyPattern(daily []DailyCost, date time.Time) anomaly.PatternType {
	idx := -1
	for i, d := range daily {
		if d.Date.Equal(date) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ""
	}

	cost := daily[idx].Cost
	change := 0.0
	if idx > 0 {
		change = percentChange(cost, daily[idx-1].Cost)
	}

	w := a.cfg.PatternWindow
	pre := windowMean(daily[max(0, idx-w):idx])
	post := windowMean(daily[idx+1 : min(len(daily), idx+1+w)])
	havePrePost := !math.IsNaN(pre) && !math.IsNaN(post) && pre > 0

	switch {
	case change > 20 && havePrePost && post/pre >= 1.10:
		return anomaly.PatternStepIncrease
	case change > 40 && havePrePost && math.Abs(post/pre-1) <= 0.2:
		return anomaly.PatternTemporarySpike
	case change > 50:
		return anomaly.PatternSuddenIncrease
	case isCyclical(daily, idx):
		return anomaly.PatternCyclicalSpike
	}
	return ""
}

// isCyclical reports whether the same weekday or day of month runs more
// than 10% above the entity's overall average, ignoring the anomaly itself
func isCyclical(daily []DailyCost, idx int) bool {
	overall := make([]float64, 0, len(daily))
	for _, d := range daily {
		overall = append(overall, d.Cost)
	}
	avg := mean(overall)
	if avg <= 0 {
		return false
	}

	target := daily[idx].Date
	var weekday, monthday []float64
	for i, d := range daily {
		if i == idx {
			continue
		}
		if d.Date.Weekday() == target.Weekday() {
			weekday = append(weekday, d.Cost)
		}
		if d.Date.Day() == target.Day() {
			monthday = append(monthday, d.Cost)
		}
	}
	if len(weekday) > 0 && mean(weekday) > 1.1*avg {
		return true
	}
	return len(monthday) > 0 && mean(monthday) > 1.1*avg
}

func windowMean(w []DailyCost) float64 {
	if len(w) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for _, d := range w {
		sum += d.Cost
	}
	return sum / float64(len(w))
}

// matchTaxonomy returns the provider events whose pattern type and services fit the anomaly
func matchTaxonomy(rec anomaly.AnomalyRecord, pattern anomaly.PatternType) []anomaly.ProbableCause {
	if pattern == "" {
		return nil
	}
	var out []anomaly.ProbableCause
	for _, ev := range cloudEvents[normalizeProvider(rec.Provider)] {
		if ev.PatternType != pattern {
			continue
		}
		confidence := ""
		for _, svc := range ev.ApplicableServices {
			if strings.EqualFold(svc, rec.Service) {
				confidence = anomaly.ConfidenceHigh
				break
			}
			if svc == allServices {
				confidence = anomaly.ConfidenceMedium
			}
		}
		if confidence == "" {
			continue
		}
		out = append(out, anomaly.ProbableCause{
			Cause:       ev.EventName,
			Description: ev.Description,
			Confidence:  confidence,
			Source:      anomaly.SourceCloudEvent,
			Timeline:    ev.Timeline,
		})
	}
	return out
}

// correlateUtilization checks every known metric for a peak within a day of
// the anomaly that exceeds its overall mean by the metric multiplier
func correlateUtilization(rec anomaly.AnomalyRecord, rows []anomaly.UtilizationObservation) ([]anomaly.ProbableCause, []string) {
	type metricRows struct {
		pattern utilizationPattern
		rows    []anomaly.UtilizationObservation
	}
	byMetric := make(map[string]*metricRows)
	var order []string
	for _, r := range rows {
		if r.Service != "" && !strings.EqualFold(r.Service, rec.Service) {
			continue
		}
		if r.Provider != "" && normalizeProvider(r.Provider) != normalizeProvider(rec.Provider) {
			continue
		}
		p, ok := lookupUtilizationPattern(r.Metric)
		if !ok {
			continue
		}
		m, seen := byMetric[p.metric]
		if !seen {
			m = &metricRows{pattern: p}
			byMetric[p.metric] = m
			order = append(order, p.metric)
		}
		m.rows = append(m.rows, r)
	}

	type tripped struct {
		pattern utilizationPattern
		peak    float64
		avg     float64
	}
	var hits []tripped
	var resources []string
	seenResource := make(map[string]bool)
	for _, name := range order {
		m := byMetric[name]
		values := make([]float64, len(m.rows))
		for i, r := range m.rows {
			values[i] = r.Value
		}
		avg := mean(values)
		limit := avg * m.pattern.multiplier

		peak := math.Inf(-1)
		for _, r := range m.rows {
			if !withinOneDay(r.Date, rec.Date) {
				continue
			}
			peak = math.Max(peak, r.Value)
			if r.Value > limit && r.ResourceID != "" && !seenResource[r.ResourceID] {
				seenResource[r.ResourceID] = true
				resources = append(resources, r.ResourceID)
			}
		}
		if avg > 0 && peak > limit {
			hits = append(hits, tripped{pattern: m.pattern, peak: peak, avg: avg})
		}
	}

	confidence := anomaly.ConfidenceMedium
	if len(hits) >= 2 {
		confidence = anomaly.ConfidenceHigh
	}
	causes := make([]anomaly.ProbableCause, 0, len(hits))
	for _, h := range hits {
		causes = append(causes, anomaly.ProbableCause{
			Cause:       h.pattern.cause,
			Description: fmt.Sprintf("%s (peak %.2f vs average %.2f)", h.pattern.description, h.peak, h.avg),
			Confidence:  confidence,
			Source:      anomaly.SourceResourcePattern,
			Metrics:     []string{h.pattern.metric},
		})
	}
	return causes, resources
}

// matchCustomEvents returns caller events within a day of the anomaly that cover its service
func matchCustomEvents(rec anomaly.AnomalyRecord, events []anomaly.CustomEvent) []anomaly.ProbableCause {
	var out []anomaly.ProbableCause
	for _, ev := range events {
		if !withinOneDay(ev.Date, rec.Date) {
			continue
		}
		if len(ev.Services) > 0 && !containsFold(ev.Services, rec.Service) {
			continue
		}
		out = append(out, anomaly.ProbableCause{
			Cause:       ev.Name,
			Description: ev.Description,
			Confidence:  anomaly.ConfidenceVeryHigh,
			Source:      anomaly.SourceCustomEvent,
		})
	}
	return out
}

// relatedServices finds other entities whose cost on the anomaly date moved
// at least 20% against their prior average
func relatedServices(rec anomaly.AnomalyRecord, s *Series) []anomaly.RelatedService {
	var out []anomaly.RelatedService
	for _, key := range s.Entities() {
		if key.Provider == rec.Provider && key.Service == rec.Service {
			continue
		}
		var prior []float64
		current, found := 0.0, false
		for _, d := range s.Daily(key) {
			if d.Date.Before(rec.Date) {
				prior = append(prior, d.Cost)
			} else if d.Date.Equal(rec.Date) {
				current, found = d.Cost, true
			}
		}
		if !found || len(prior) == 0 {
			continue
		}
		avg := mean(prior)
		if avg == 0 {
			continue
		}
		change := percentChange(current, avg)
		if math.Abs(change) < relatedChangePercent {
			continue
		}
		correlation := anomaly.CorrelationModerate
		if math.Abs(change) > strongChangePercent {
			correlation = anomaly.CorrelationStrong
		}
		out = append(out, anomaly.RelatedService{
			Service:       key.Service,
			Provider:      key.Provider,
			Cost:          round2(current),
			PriorAverage:  round2(avg),
			ChangePercent: round2(change),
			Correlation:   correlation,
		})
	}
	return out
}

// mitigations combines the category suggestions for the service with the
// keyword suggestions triggered by the causes, keeping first-seen order
func mitigations(service string, causes []anomaly.ProbableCause) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(items []string) {
		for _, s := range items {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}

	add(categoryMitigations[serviceCategory(service)])
	for _, c := range causes {
		text := strings.ToLower(c.Cause + " " + c.Description)
		for _, km := range keywordMitigations {
			for _, k := range km.keywords {
				if strings.Contains(text, k) {
					add(km.suggestions)
					break
				}
			}
		}
	}
	return out
}

func confidenceRank(c string) int {
	switch c {
	case anomaly.ConfidenceVeryHigh:
		return 0
	case anomaly.ConfidenceHigh:
		return 1
	case anomaly.ConfidenceMedium:
		return 2
	case anomaly.ConfidenceLow:
		return 3
	default:
		return 4
	}
}

func withinOneDay(a, b time.Time) bool {
	diff := truncateDay(a).Sub(truncateDay(b))
	if diff < 0 {
		diff = -diff
	}
	return diff <= day
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(strings.TrimSpace(s), v) {
			return true
		}
	}
	return false
}
