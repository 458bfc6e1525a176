package detector

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pratik-mahalle/costlens/internal/domain/anomaly"
	"github.com/pratik-mahalle/costlens/internal/pkg/logger"
)

// Request is one detection run over a batch of cost observations
type Request struct {
	Observations     []anomaly.CostObservation
	Method           anomaly.Method
	Threshold        float64
	AnalyzeRootCause bool
	Utilization      []anomaly.UtilizationObservation
	CustomEvents     []anomaly.CustomEvent
}

// Detector runs detection methods over a cost series, reconciles their
// results and attaches cloud context. It holds no state between calls.
type Detector struct {
	cfg      Config
	logger   *logger.Logger
	analyzer *Analyzer
	now      func() time.Time
	newID    func() string
}

// Option customizes a Detector
type Option func(*Detector)

// WithClock overrides the clock used for detection timestamps
func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

// WithIDGenerator overrides the run id generator
func WithIDGenerator(gen func() string) Option {
	return func(d *Detector) { d.newID = gen }
}

// New creates a new detector
func New(cfg Config, log *logger.Logger, opts ...Option) *Detector {
	if log == nil {
		log = logger.Nop()
	}
	cfg = cfg.withDefaults()
	d := &Detector{
		cfg:      cfg,
		logger:   log,
		analyzer: NewAnalyzer(cfg, log),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Config returns the effective configuration
func (d *Detector) Config() Config {
	return d.cfg
}

// Detect runs a detection request. It never returns an error: every failure
// is reported through the result envelope.
func (d *Detector) Detect(ctx context.Context, req Request) (result anomaly.DetectionResult) {
	env := envelope{
		runID:     d.newID(),
		method:    req.Method,
		threshold: req.Threshold,
		at:        d.now(),
	}
	if env.method == "" {
		env.method = d.cfg.DefaultMethod
	}
	if env.threshold <= 0 {
		env.threshold = d.cfg.DefaultThreshold
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.WithFields(map[string]interface{}{
				"run_id": env.runID,
				"panic":  fmt.Sprint(r),
			}).Error("Anomaly detection aborted")
			result = env.failure(fmt.Errorf("detection aborted: %v", r))
		}
	}()

	if !env.method.IsValid() {
		return env.failure(fmt.Errorf("unsupported detection method: %s", env.method))
	}
	if err := ctx.Err(); err != nil {
		return env.failure(err)
	}

	series := Normalize(req.Observations)
	env.points = series.Len()
	log := d.logger.WithFields(map[string]interface{}{
		"run_id":      env.runID,
		"method":      env.method,
		"data_points": env.points,
	})
	if series.Dropped() > 0 || series.Imputed() > 0 {
		log.WithFields(map[string]interface{}{
			"dropped": series.Dropped(),
			"imputed": series.Imputed(),
		}).Debug("Normalized cost series")
	}

	if !series.Sufficient(d.cfg.MinPoints) {
		log.Info("Not enough data points for anomaly detection")
		return env.success(nil, nil, NoteInsufficientData)
	}

	var results []MethodResult
	if env.method == anomaly.MethodEnsemble {
		results = d.runEnsemble(ctx, series, env.threshold, log)
	} else {
		results = []MethodResult{d.runSlot(env.method, series, env.threshold, log)}
		if !results[0].Succeeded() {
			return env.failure(results[0].Err)
		}
	}

	records := Aggregate(results, env.method)

	note := ""
	if !anySucceeded(results) {
		note = NoteAllMethodsFailed
	}

	if req.AnalyzeRootCause && len(records) > 0 {
		if series.Sufficient(d.cfg.ContextMinPoints) {
			in := ContextInput{Series: series, Utilization: req.Utilization, CustomEvents: req.CustomEvents}
			for i := range records {
				records[i] = d.analyzer.Enrich(records[i], in)
			}
		} else {
			note = NoteContextSkipped
		}
	}

	log.WithFields(map[string]interface{}{
		"anomalies": len(records),
	}).Info("Anomaly detection completed")
	return env.success(records, results, note)
}

// runEnsemble runs every applicable method concurrently. Each slot writes
// only its own result index.
func (d *Detector) runEnsemble(ctx context.Context, s *Series, threshold float64, log *logger.Logger) []MethodResult {
	var methods []anomaly.Method
	for _, m := range ensembleOrder {
		if applicable(m, s, d.cfg) == nil {
			methods = append(methods, m)
		}
	}

	results := make([]MethodResult, len(methods))
	if !d.cfg.Parallel {
		for i, m := range methods {
			results[i] = d.runSlot(m, s, threshold, log)
		}
		return results
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, m := range methods {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i] = MethodResult{Method: m, Status: anomaly.MethodStatusSkipped, Err: err}
				return nil
			}
			results[i] = d.runSlot(m, s, threshold, log)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// runSlot runs one method and falls back to z-score when it cannot produce a result
func (d *Detector) runSlot(m anomaly.Method, s *Series, threshold float64, log *logger.Logger) MethodResult {
	cands, err := run(m, s, threshold, d.cfg)
	if err == nil {
		return MethodResult{Method: m, Candidates: cands, Status: anomaly.MethodStatusOK}
	}

	log.WithFields(map[string]interface{}{
		"slot":  m,
		"error": err.Error(),
	}).Warn("Detection method failed")

	if m == anomaly.MethodZScore {
		return MethodResult{Method: m, Status: anomaly.MethodStatusFailed, Err: err}
	}

	fallback := &anomaly.MethodFallback{Method: m, Fallback: anomaly.MethodZScore, Reason: err.Error()}
	cands, zerr := run(anomaly.MethodZScore, s, threshold, d.cfg)
	if zerr != nil {
		fallback.Fallback = ""
		return MethodResult{
			Method:   m,
			Status:   anomaly.MethodStatusFailed,
			Fallback: fallback,
			Err:      fmt.Errorf("%s failed: %v; zscore fallback failed: %w", m, err, zerr),
		}
	}
	return MethodResult{Method: m, Candidates: cands, Status: anomaly.MethodStatusFallback, Fallback: fallback}
}

func anySucceeded(results []MethodResult) bool {
	for _, r := range results {
		if r.Succeeded() {
			return true
		}
	}
	return false
}
