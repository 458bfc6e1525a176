package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pratik-mahalle/costlens/internal/config"
	"github.com/pratik-mahalle/costlens/internal/domain/anomaly"
	"github.com/pratik-mahalle/costlens/internal/domain/cost"
	"github.com/pratik-mahalle/costlens/internal/pkg/logger"
	"github.com/pratik-mahalle/costlens/internal/pkg/metrics"
	"github.com/robfig/cron/v3"
)

var severities = []string{
	anomaly.SeverityCritical,
	anomaly.SeverityHigh,
	anomaly.SeverityMedium,
	anomaly.SeverityLow,
}

// ScanReport summarizes one scheduled scan
type ScanReport struct {
	Users     int
	Synced    int
	Anomalies int
	Notified  int
	Failures  int
}

// AnomalyScanner runs provider sync and anomaly detection on a cron schedule
type AnomalyScanner struct {
	anomalies anomaly.Service
	costs     cost.Service
	cfg       config.ScannerConfig
	logger    *logger.Logger

	notifier  Notifier
	now       func() time.Time

	scheduler *cron.Cron
	mu        sync.Mutex
}

// Notifier receives the anomalies found by a scheduled scan
type Notifier interface {
	Notify(ctx context.Context, userID int64, records []anomaly.AnomalyRecord) (int, error)
}

// notifyWindow limits alerts to anomalies on recent days; older ones were reported by earlier scans
const notifyWindow = 48 * time.Hour

// ScannerOption customizes an AnomalyScanner
type ScannerOption func(*AnomalyScanner)

// WithNotifier sends fresh anomalies to n after each user scan
func WithNotifier(n Notifier) ScannerOption {
	return func(s *AnomalyScanner) { s.notifier = n }
}

// NewAnomalyScanner creates a scanner. costs may be nil when provider sync is disabled.
func NewAnomalyScanner(anomalies anomaly.Service, costs cost.Service, cfg config.ScannerConfig, log *logger.Logger, opts ...ScannerOption) (*AnomalyScanner, error) {
	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		return nil, fmt.Errorf("invalid cron schedule: %w", err)
	}
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = 30
	}
	s := &AnomalyScanner{
		anomalies: anomalies,
		costs:     costs,
		cfg:       cfg,
		logger:    log.Component("anomaly_scanner"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start schedules scans until Stop is called or ctx is done
func (s *AnomalyScanner) Start(ctx context.Context) error {
	cl := cronLogger{s.logger}
	s.scheduler = cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	if _, err := s.scheduler.AddFunc(s.cfg.Schedule, func() { s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule anomaly scan: %w", err)
	}
	s.scheduler.Start()

	s.logger.WithFields(map[string]interface{}{
		"schedule": s.cfg.Schedule,
		"users":    len(s.cfg.UserIDs),
	}).Info("Anomaly scanner started")

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop halts the scheduler and waits for a running scan to finish
func (s *AnomalyScanner) Stop() {
	if s.scheduler == nil {
		return
	}
	<-s.scheduler.Stop().Done()
	s.logger.Info("Anomaly scanner stopped")
}

// RunOnce scans every configured user. A failing user does not stop the others.
func (s *AnomalyScanner) RunOnce(ctx context.Context) ScanReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	began := time.Now()
	var report ScanReport
	for _, userID := range s.cfg.UserIDs {
		if ctx.Err() != nil {
			break
		}
		report.Users++
		s.scanUser(ctx, userID, &report)
	}

	s.refreshOpenGauge(ctx)

	s.logger.WithFields(map[string]interface{}{
		"users":     report.Users,
		"synced":    report.Synced,
		"anomalies": report.Anomalies,
		"notified":  report.Notified,
		"failures":  report.Failures,
		"duration":  time.Since(began).Milliseconds(),
	}).Info("Anomaly scan completed")
	return report
}

func (s *AnomalyScanner) scanUser(ctx context.Context, userID int64, report *ScanReport) {
	log := s.logger.With("user_id", userID)

	if s.cfg.SyncBeforeDetect && s.costs != nil {
		results, err := s.costs.SyncAllProviders(ctx, userID, s.cfg.LookbackDays)
		if err != nil {
			log.ErrorWithErr(err, "Provider sync failed, detecting over stored costs")
		}
		report.Synced += len(results)
	}

	result, err := s.anomalies.Detect(ctx, userID, anomaly.DetectRequest{
		Days:             s.cfg.LookbackDays,
		AnalyzeRootCause: true,
	})
	if err != nil {
		report.Failures++
		log.ErrorWithErr(err, "Scheduled anomaly detection failed")
		return
	}
	report.Anomalies += result.AnomalyCount

	if s.notifier == nil {
		return
	}
	cutoff := s.now().Add(-notifyWindow)
	var fresh []anomaly.AnomalyRecord
	for _, rec := range result.Anomalies {
		if !rec.Date.Before(cutoff) {
			fresh = append(fresh, rec)
		}
	}
	if len(fresh) == 0 {
		return
	}
	sent, err := s.notifier.Notify(ctx, userID, fresh)
	if err != nil {
		log.ErrorWithErr(err, "Failed to send anomaly notification")
		return
	}
	report.Notified += sent
}

// refreshOpenGauge publishes unresolved anomaly counts per severity across scanned users
func (s *AnomalyScanner) refreshOpenGauge(ctx context.Context) {
	for _, severity := range severities {
		var open int64
		for _, userID := range s.cfg.UserIDs {
			_, total, err := s.anomalies.List(ctx, userID, anomaly.Filter{
				Severity: severity,
				Status:   anomaly.StatusDetected,
			}, 1, 0)
			if err != nil {
				s.logger.ErrorWithErr(err, "Failed to count open anomalies")
				return
			}
			open += total
		}
		metrics.SetOpenAnomalies(severity, float64(open))
	}
}

// cronLogger adapts the application logger to cron.Logger
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(kvFields(keysAndValues)).Debug("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.WithFields(kvFields(keysAndValues)).ErrorWithErr(err, "cron: "+msg)
}

func kvFields(kv []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return fields
}
