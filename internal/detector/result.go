package detector

import (
	"time"

	"github.com/pratik-mahalle/costlens/internal/domain/anomaly"
)

// Notes attached to successful runs that found nothing to report
const (
	NoteInsufficientData = "insufficient data for anomaly detection"
	NoteAllMethodsFailed = "no detection method produced a result"
	NoteContextSkipped   = "insufficient data for root cause analysis"
)

type envelope struct {
	runID     string
	method    anomaly.Method
	threshold float64
	points    int
	at        time.Time
}

func (e envelope) success(records []anomaly.AnomalyRecord, results []MethodResult, note string) anomaly.DetectionResult {
	if records == nil {
		records = []anomaly.AnomalyRecord{}
	}
	res := anomaly.DetectionResult{
		Success:            true,
		RunID:              e.runID,
		Anomalies:          records,
		DetectionMethod:    e.method,
		MethodsUsed:        []anomaly.Method{},
		Threshold:          e.threshold,
		DataPoints:         e.points,
		AnomalyCount:       len(records),
		DetectionTimestamp: e.at,
		Note:               note,
	}
	for _, r := range results {
		res.MethodStats = append(res.MethodStats, anomaly.MethodStat{
			Method:     r.Method,
			Status:     r.Status,
			Candidates: len(r.Candidates),
		})
		if r.Succeeded() {
			res.MethodsUsed = append(res.MethodsUsed, r.Method)
		}
		if r.Fallback != nil {
			res.Fallbacks = append(res.Fallbacks, *r.Fallback)
		}
	}
	return res
}

func (e envelope) failure(err error) anomaly.DetectionResult {
	return anomaly.DetectionResult{
		Success:            false,
		RunID:              e.runID,
		Anomalies:          []anomaly.AnomalyRecord{},
		DetectionMethod:    e.method,
		MethodsUsed:        []anomaly.Method{},
		Threshold:          e.threshold,
		DataPoints:         e.points,
		AnomalyCount:       0,
		DetectionTimestamp: e.at,
		Error:              err.Error(),
	}
}
