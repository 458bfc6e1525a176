package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pratik-mahalle/costlens/internal/domain/anomaly"
	"github.com/pratik-mahalle/costlens/internal/domain/cost"
	"github.com/pratik-mahalle/costlens/internal/pkg/errors"
)

// MockAnomalyRepository is an in-memory anomaly.Repository
type MockAnomalyRepository struct {
	mu          sync.Mutex
	Anomalies   map[string]*anomaly.Anomaly
	UpsertError error
	GetError    error
}

func NewMockAnomalyRepository() *MockAnomalyRepository {
	return &MockAnomalyRepository{
		Anomalies: make(map[string]*anomaly.Anomaly),
	}
}

func anomalyKey(a *anomaly.Anomaly) string {
	return fmt.Sprintf("%d|%s|%s|%s", a.UserID, a.Provider, a.Service, a.CostDate.Format("2006-01-02"))
}

func (m *MockAnomalyRepository) Upsert(ctx context.Context, a *anomaly.Anomaly) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.UpsertError != nil {
		return false, m.UpsertError
	}
	key := anomalyKey(a)
	for _, existing := range m.Anomalies {
		if anomalyKey(existing) == key {
			a.ID = existing.ID
			a.Status = existing.Status
			a.CreatedAt = existing.CreatedAt
			cp := *a
			m.Anomalies[a.ID] = &cp
			return false, nil
		}
	}
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.Status == "" {
		a.Status = anomaly.StatusDetected
	}
	a.CreatedAt = time.Now()
	cp := *a
	m.Anomalies[a.ID] = &cp
	return true, nil
}

func (m *MockAnomalyRepository) GetByID(ctx context.Context, userID int64, id string) (*anomaly.Anomaly, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.GetError != nil {
		return nil, m.GetError
	}
	a, ok := m.Anomalies[id]
	if !ok || a.UserID != userID {
		return nil, errors.NotFound("Anomaly")
	}
	cp := *a
	return &cp, nil
}

func (m *MockAnomalyRepository) UpdateStatus(ctx context.Context, userID int64, id string, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.Anomalies[id]
	if !ok || a.UserID != userID {
		return errors.NotFound("Anomaly")
	}
	a.Status = status
	return nil
}

func (m *MockAnomalyRepository) Delete(ctx context.Context, userID int64, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.Anomalies[id]
	if !ok || a.UserID != userID {
		return errors.NotFound("Anomaly")
	}
	delete(m.Anomalies, id)
	return nil
}

func (m *MockAnomalyRepository) ListWithPagination(ctx context.Context, userID int64, filter anomaly.Filter, limit, offset int) ([]*anomaly.Anomaly, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []*anomaly.Anomaly
	for _, a := range m.Anomalies {
		if a.UserID != userID {
			continue
		}
		if filter.Provider != "" && a.Provider != filter.Provider {
			continue
		}
		if filter.Service != "" && a.Service != filter.Service {
			continue
		}
		if filter.Severity != "" && a.Severity != filter.Severity {
			continue
		}
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		cp := *a
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CostDate.Equal(matched[j].CostDate) {
			return matched[i].CostDate.After(matched[j].CostDate)
		}
		return matched[i].Service < matched[j].Service
	})

	total := int64(len(matched))
	if offset >= len(matched) {
		return []*anomaly.Anomaly{}, total, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

func (m *MockAnomalyRepository) CountBy(ctx context.Context, userID int64, column string) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[string]int)
	for _, a := range m.Anomalies {
		if a.UserID != userID {
			continue
		}
		switch column {
		case "severity":
			counts[a.Severity]++
		case "status":
			counts[a.Status]++
		default:
			return nil, errors.BadRequest("Unsupported grouping column: " + column)
		}
	}
	return counts, nil
}

// MockCostRepository is an in-memory cost.Repository
type MockCostRepository struct {
	mu          sync.Mutex
	Costs       []*cost.Cost
	UpsertError error
	QueryError  error
}

func NewMockCostRepository() *MockCostRepository {
	return &MockCostRepository{}
}

func (m *MockCostRepository) UpsertCosts(ctx context.Context, costs []*cost.Cost) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.UpsertError != nil {
		return 0, m.UpsertError
	}
	for _, c := range costs {
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		m.Costs = append(m.Costs, c)
	}
	return len(costs), nil
}

func (m *MockCostRepository) GetCostsByDateRange(ctx context.Context, userID int64, filter cost.Filter, startDate, endDate time.Time) ([]*cost.Cost, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.QueryError != nil {
		return nil, m.QueryError
	}
	var out []*cost.Cost
	for _, c := range m.Costs {
		if c.UserID != userID || c.CostDate.Before(truncate(startDate)) || c.CostDate.After(endDate) {
			continue
		}
		if filter.Provider != "" && c.Provider != filter.Provider {
			continue
		}
		if filter.ServiceName != "" && c.ServiceName != filter.ServiceName {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (m *MockCostRepository) GetCostSummary(ctx context.Context, userID int64, filter cost.Filter, startDate, endDate time.Time) (*cost.CostSummary, error) {
	costs, err := m.GetCostsByDateRange(ctx, userID, filter, startDate, endDate)
	if err != nil {
		return nil, err
	}
	summary := &cost.CostSummary{
		Provider:   filter.Provider,
		Currency:   "USD",
		StartDate:  startDate,
		EndDate:    endDate,
		ByService:  make(map[string]float64),
		ByProvider: make(map[string]float64),
	}
	for _, c := range costs {
		if c.DailyCost == nil {
			continue
		}
		summary.TotalCost += *c.DailyCost
		summary.ByService[c.ServiceName] += *c.DailyCost
		summary.ByProvider[c.Provider] += *c.DailyCost
	}
	return summary, nil
}

func (m *MockCostRepository) DeleteCostsByDate(ctx context.Context, userID int64, beforeDate time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.Costs[:0]
	var removed int64
	for _, c := range m.Costs {
		if c.UserID == userID && c.CostDate.Before(beforeDate) {
			removed++
			continue
		}
		kept = append(kept, c)
	}
	m.Costs = kept
	return removed, nil
}

// MockCostFetcher returns canned rows for one provider
type MockCostFetcher struct {
	Name  string
	Rows  []cost.Cost
	Err   error
	Calls int
}

func (m *MockCostFetcher) Provider() string { return m.Name }

func (m *MockCostFetcher) FetchCosts(ctx context.Context, start, end time.Time) ([]cost.Cost, error) {
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Rows, nil
}

func truncate(t time.Time) time.Time {
	y, mo, d := t.UTC().Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}
