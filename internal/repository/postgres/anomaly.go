package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pratik-mahalle/costlens/internal/domain/anomaly"
	"github.com/pratik-mahalle/costlens/internal/pkg/errors"
	"github.com/pratik-mahalle/costlens/internal/pkg/metrics"
)

const anomalyColumns = `id, user_id, provider, service, resource_id, cost_date, cost, baseline_cost, cost_difference,
	percentage_increase, detection_method, methods_agreement, methods_total, confidence, anomaly_type,
	severity, root_cause, cloud_context, status, detected_at, created_at, updated_at`

type AnomalyRepository struct {
	db  *DB
	now func() time.Time
}

func NewAnomalyRepository(db *DB) anomaly.Repository {
	return &AnomalyRepository{db: db, now: time.Now}
}

// Upsert inserts a new anomaly or refreshes the detection fields of the row with the same
// (user, provider, service, cost date). The workflow status of an existing row is kept.
func (r *AnomalyRepository) Upsert(ctx context.Context, a *anomaly.Anomaly) (bool, error) {
	defer r.observe("upsert", time.Now())

	now := r.now().UTC()
	a.CostDate = dayUTC(a.CostDate)
	if a.DetectedAt.IsZero() {
		a.DetectedAt = now
	}
	if a.Status == "" {
		a.Status = anomaly.StatusDetected
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, errors.DatabaseError("Failed to start transaction", err)
	}
	defer tx.Rollback()

	var existingID, existingStatus string
	var createdAt time.Time
	err = tx.QueryRowContext(ctx,
		r.db.Rebind(`SELECT id, status, created_at FROM cost_anomalies WHERE user_id = ? AND provider = ? AND service = ? AND cost_date = ?`),
		a.UserID, a.Provider, a.Service, a.CostDate,
	).Scan(&existingID, &existingStatus, &createdAt)

	created := false
	switch {
	case err == sql.ErrNoRows:
		if a.ID == "" {
			a.ID = uuid.New().String()
		}
		a.CreatedAt = now
		a.UpdatedAt = now
		_, err = tx.ExecContext(ctx, r.db.Rebind(`INSERT INTO cost_anomalies (`+anomalyColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			a.ID, a.UserID, a.Provider, a.Service, a.ResourceID, a.CostDate, a.Cost, a.BaselineCost,
			a.CostDifference, a.PercentageIncrease, a.DetectionMethod, a.MethodsAgreement, a.MethodsTotal,
			a.Confidence, a.AnomalyType, a.Severity, a.RootCause, nullableJSON(a.CloudContext), a.Status,
			a.DetectedAt, a.CreatedAt, a.UpdatedAt,
		)
		if err != nil {
			return false, errors.DatabaseError("Failed to create anomaly", err)
		}
		created = true
	case err != nil:
		return false, errors.DatabaseError("Failed to look up anomaly", err)
	default:
		a.ID = existingID
		a.Status = existingStatus
		a.CreatedAt = createdAt
		a.UpdatedAt = now
		_, err = tx.ExecContext(ctx, r.db.Rebind(`UPDATE cost_anomalies SET resource_id = ?, cost = ?, baseline_cost = ?,
			cost_difference = ?, percentage_increase = ?, detection_method = ?, methods_agreement = ?, methods_total = ?,
			confidence = ?, anomaly_type = ?, severity = ?, root_cause = ?, cloud_context = ?, detected_at = ?, updated_at = ?
			WHERE id = ?`),
			a.ResourceID, a.Cost, a.BaselineCost, a.CostDifference, a.PercentageIncrease, a.DetectionMethod,
			a.MethodsAgreement, a.MethodsTotal, a.Confidence, a.AnomalyType, a.Severity, a.RootCause,
			nullableJSON(a.CloudContext), a.DetectedAt, a.UpdatedAt, a.ID,
		)
		if err != nil {
			return false, errors.DatabaseError("Failed to update anomaly", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, errors.DatabaseError("Failed to commit anomaly", err)
	}
	return created, nil
}

func (r *AnomalyRepository) GetByID(ctx context.Context, userID int64, id string) (*anomaly.Anomaly, error) {
	defer r.observe("get", time.Now())

	query := r.db.Rebind(`SELECT ` + anomalyColumns + ` FROM cost_anomalies WHERE user_id = ? AND id = ?`)
	a, err := scanAnomaly(r.db.QueryRowContext(ctx, query, userID, id))
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("Anomaly")
	}
	if err != nil {
		return nil, errors.DatabaseError("Failed to get anomaly", err)
	}
	return a, nil
}

func (r *AnomalyRepository) UpdateStatus(ctx context.Context, userID int64, id string, status string) error {
	defer r.observe("update", time.Now())

	result, err := r.db.ExecContext(ctx,
		r.db.Rebind(`UPDATE cost_anomalies SET status = ?, updated_at = ? WHERE user_id = ? AND id = ?`),
		status, r.now().UTC(), userID, id,
	)
	if err != nil {
		return errors.DatabaseError("Failed to update anomaly", err)
	}

	rows, err := result.RowsAffected()
	if err != nil || rows == 0 {
		return errors.NotFound("Anomaly")
	}
	return nil
}

func (r *AnomalyRepository) Delete(ctx context.Context, userID int64, id string) error {
	defer r.observe("delete", time.Now())

	result, err := r.db.ExecContext(ctx, r.db.Rebind("DELETE FROM cost_anomalies WHERE user_id = ? AND id = ?"), userID, id)
	if err != nil {
		return errors.DatabaseError("Failed to delete anomaly", err)
	}

	rows, err := result.RowsAffected()
	if err != nil || rows == 0 {
		return errors.NotFound("Anomaly")
	}
	return nil
}

func (r *AnomalyRepository) ListWithPagination(ctx context.Context, userID int64, filter anomaly.Filter, limit, offset int) ([]*anomaly.Anomaly, int64, error) {
	defer r.observe("list", time.Now())

	where := []string{"user_id = ?"}
	args := []interface{}{userID}

	if filter.Provider != "" {
		where = append(where, "provider = ?")
		args = append(args, filter.Provider)
	}
	if filter.Service != "" {
		where = append(where, "service = ?")
		args = append(args, filter.Service)
	}
	if filter.Severity != "" {
		where = append(where, "severity = ?")
		args = append(args, filter.Severity)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.StartDate != nil {
		where = append(where, "cost_date >= ?")
		args = append(args, dayUTC(*filter.StartDate))
	}
	if filter.EndDate != nil {
		where = append(where, "cost_date <= ?")
		args = append(args, dayUTC(*filter.EndDate))
	}

	whereClause := strings.Join(where, " AND ")

	var total int64
	err := r.db.QueryRowContext(ctx, r.db.Rebind(fmt.Sprintf("SELECT COUNT(*) FROM cost_anomalies WHERE %s", whereClause)), args...).Scan(&total)
	if err != nil {
		return nil, 0, errors.DatabaseError("Failed to count anomalies", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM cost_anomalies WHERE %s ORDER BY cost_date DESC, confidence DESC, service ASC LIMIT ? OFFSET ?`, anomalyColumns, whereClause)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, 0, errors.DatabaseError("Failed to list anomalies", err)
	}
	defer rows.Close()

	anomalies := make([]*anomaly.Anomaly, 0, limit)
	for rows.Next() {
		a, err := scanAnomaly(rows)
		if err != nil {
			return nil, 0, errors.DatabaseError("Failed to scan anomaly", err)
		}
		anomalies = append(anomalies, a)
	}

	return anomalies, total, rows.Err()
}

func (r *AnomalyRepository) CountBy(ctx context.Context, userID int64, column string) (map[string]int, error) {
	defer r.observe("count", time.Now())

	switch column {
	case "severity", "status":
	default:
		return nil, errors.BadRequest("Unsupported grouping column: " + column)
	}

	query := r.db.Rebind(fmt.Sprintf(`SELECT %s, COUNT(*) FROM cost_anomalies WHERE user_id = ? GROUP BY %s`, column, column))
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, errors.DatabaseError("Failed to count anomalies", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return nil, errors.DatabaseError("Failed to scan count", err)
		}
		counts[key] = count
	}

	return counts, rows.Err()
}

func (r *AnomalyRepository) observe(op string, start time.Time) {
	metrics.RecordDBQuery(op, "cost_anomalies", time.Since(start))
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAnomaly(row rowScanner) (*anomaly.Anomaly, error) {
	var a anomaly.Anomaly
	var cloudContext sql.NullString
	err := row.Scan(
		&a.ID, &a.UserID, &a.Provider, &a.Service, &a.ResourceID, &a.CostDate, &a.Cost, &a.BaselineCost,
		&a.CostDifference, &a.PercentageIncrease, &a.DetectionMethod, &a.MethodsAgreement, &a.MethodsTotal,
		&a.Confidence, &a.AnomalyType, &a.Severity, &a.RootCause, &cloudContext, &a.Status,
		&a.DetectedAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if cloudContext.Valid && cloudContext.String != "" {
		a.CloudContext = []byte(cloudContext.String)
	}
	a.CostDate = a.CostDate.UTC()
	return &a, nil
}

func nullableJSON(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
