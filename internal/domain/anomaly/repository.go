package anomaly

import "context"

// Repository defines the interface for anomaly data access
type Repository interface {
	// Upsert stores an anomaly keyed by (user, provider, service, cost date).
	// It reports whether a new row was created.
	Upsert(ctx context.Context, anomaly *Anomaly) (bool, error)

	// GetByID retrieves an anomaly by ID
	GetByID(ctx context.Context, userID int64, id string) (*Anomaly, error)

	// UpdateStatus changes the workflow status of an anomaly
	UpdateStatus(ctx context.Context, userID int64, id string, status string) error

	// Delete deletes an anomaly record
	Delete(ctx context.Context, userID int64, id string) error

	// ListWithPagination retrieves anomalies with filters and pagination
	ListWithPagination(ctx context.Context, userID int64, filter Filter, limit, offset int) ([]*Anomaly, int64, error)

	// CountBy counts anomalies grouped by the given column (severity or status)
	CountBy(ctx context.Context, userID int64, column string) (map[string]int, error)
}
