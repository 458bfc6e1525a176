package services

import (
	"context"
	"time"

	"github.com/pratik-mahalle/costlens/internal/domain/cost"
	"github.com/pratik-mahalle/costlens/internal/pkg/errors"
	"github.com/pratik-mahalle/costlens/internal/pkg/logger"
	"github.com/pratik-mahalle/costlens/internal/pkg/metrics"
	"github.com/pratik-mahalle/costlens/internal/providers"
)

// CostServiceImpl implements cost.Service
type CostServiceImpl struct {
	repo     cost.Repository
	fetchers map[string]providers.CostFetcher
	logger   *logger.Logger
	now      func() time.Time
}

// NewCostService creates a new cost service
func NewCostService(repo cost.Repository, fetchers map[string]providers.CostFetcher, log *logger.Logger) *CostServiceImpl {
	if fetchers == nil {
		fetchers = map[string]providers.CostFetcher{}
	}
	return &CostServiceImpl{
		repo:     repo,
		fetchers: fetchers,
		logger:   log.Component("cost_service"),
		now:      time.Now,
	}
}

// Ingest stores caller-supplied rows for the user
func (s *CostServiceImpl) Ingest(ctx context.Context, userID int64, costs []*cost.Cost) (int, error) {
	if len(costs) == 0 {
		return 0, errors.BadRequest("No cost rows supplied")
	}
	for i, c := range costs {
		if c.CostDate.IsZero() {
			return 0, errors.ValidationError("Invalid cost row", map[string]interface{}{"index": i, "field": "cost_date"})
		}
		if c.ServiceName == "" && c.Provider == "" {
			return 0, errors.ValidationError("Invalid cost row", map[string]interface{}{"index": i, "field": "service_name"})
		}
		c.UserID = userID
	}

	n, err := s.repo.UpsertCosts(ctx, costs)
	if err != nil {
		return 0, err
	}

	s.logger.WithFields(map[string]interface{}{
		"user_id": userID,
		"rows":    n,
	}).Info("Cost rows ingested")
	return n, nil
}

// SyncCosts syncs the last days of billing data for a specific provider
func (s *CostServiceImpl) SyncCosts(ctx context.Context, userID int64, provider string, days int) (*cost.SyncResult, error) {
	if !cost.IsValidProvider(provider) {
		return nil, errors.BadRequest("Unsupported provider: " + provider)
	}
	fetcher, ok := s.fetchers[provider]
	if !ok {
		return nil, errors.BadRequest("Provider is not configured: " + provider)
	}
	if days <= 0 {
		days = 30
	}

	now := s.now().UTC()
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	start := end.AddDate(0, 0, -days)

	log := s.logger.WithFields(map[string]interface{}{
		"user_id":  userID,
		"provider": provider,
		"days":     days,
	})
	log.Info("Syncing costs from provider")

	began := time.Now()
	rows, err := fetcher.FetchCosts(ctx, start, end)
	if err != nil {
		metrics.RecordCostSync(provider, "error", time.Since(began))
		log.ErrorWithErr(err, "Failed to fetch provider costs")
		if appErr, ok := err.(*errors.AppError); ok {
			return nil, appErr
		}
		return nil, errors.ProviderAPIError(provider, err)
	}

	batch := make([]*cost.Cost, 0, len(rows))
	for i := range rows {
		rows[i].UserID = userID
		batch = append(batch, &rows[i])
	}

	stored, err := s.repo.UpsertCosts(ctx, batch)
	if err != nil {
		metrics.RecordCostSync(provider, "error", time.Since(began))
		return nil, err
	}
	metrics.RecordCostSync(provider, "success", time.Since(began))

	log.WithFields(map[string]interface{}{
		"fetched": len(rows),
		"stored":  stored,
	}).Info("Provider costs synced")

	return &cost.SyncResult{
		Provider: provider,
		Fetched:  len(rows),
		Stored:   stored,
		From:     start,
		To:       end,
	}, nil
}

// SyncAllProviders syncs costs from all configured providers
func (s *CostServiceImpl) SyncAllProviders(ctx context.Context, userID int64, days int) ([]*cost.SyncResult, error) {
	var results []*cost.SyncResult
	var firstErr error
	for _, provider := range providers.Names(s.fetchers) {
		res, err := s.SyncCosts(ctx, userID, provider, days)
		if err != nil {
			// Continue with other providers
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		results = append(results, res)
	}
	if len(results) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}

// GetCosts returns stored rows
func (s *CostServiceImpl) GetCosts(ctx context.Context, userID int64, filter cost.Filter, startDate, endDate time.Time) ([]*cost.Cost, error) {
	return s.repo.GetCostsByDateRange(ctx, userID, filter, startDate, endDate)
}

// GetSummary returns aggregated stored rows
func (s *CostServiceImpl) GetSummary(ctx context.Context, userID int64, filter cost.Filter, startDate, endDate time.Time) (*cost.CostSummary, error) {
	return s.repo.GetCostSummary(ctx, userID, filter, startDate, endDate)
}

// ConfiguredProviders lists providers that can be synced
func (s *CostServiceImpl) ConfiguredProviders() []string {
	return providers.Names(s.fetchers)
}
