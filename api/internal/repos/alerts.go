package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"equipment-inspection-diagnostics-system/api/internal/models"
)

type AlertsRepo struct {
	pool *pgxpool.Pool
}

func NewAlertsRepo(pool *pgxpool.Pool) *AlertsRepo {
	return &AlertsRepo{pool: pool}
}

// CreateIfAbsent records at most one alert per equipment, bucket and
// calendar day. Returns true when a new alert row was written.
func (r *AlertsRepo) CreateIfAbsent(ctx context.Context, alert models.VerificationAlert) (bool, error) {
	if alert.AlertID == uuid.Nil {
		alert.AlertID = uuid.New()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}
	if alert.AlertDate.IsZero() {
		alert.AlertDate = alert.CreatedAt.Truncate(24 * time.Hour)
	}

	tag, err := r.pool.Exec(ctx, `
		INSERT INTO verification_alerts (alert_id, equipment_id, bucket, days_left, alert_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (equipment_id, bucket, alert_date) DO NOTHING
	`, alert.AlertID, alert.EquipmentID, alert.Bucket, alert.DaysLeft, alert.AlertDate, alert.CreatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *AlertsRepo) ListRecent(ctx context.Context, since time.Time, limit int) ([]models.VerificationAlert, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `
		SELECT alert_id, equipment_id, bucket, days_left, alert_date, created_at
		FROM verification_alerts
		WHERE created_at >= $1
		ORDER BY created_at DESC
		LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.VerificationAlert
	for rows.Next() {
		var a models.VerificationAlert
		if err := rows.Scan(&a.AlertID, &a.EquipmentID, &a.Bucket, &a.DaysLeft, &a.AlertDate, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *AlertsRepo) CountByBucket(ctx context.Context, since time.Time) (map[string]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT bucket, COUNT(*)
		FROM verification_alerts
		WHERE created_at >= $1
		GROUP BY bucket
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var bucket string
		var n int
		if err := rows.Scan(&bucket, &n); err != nil {
			return nil, err
		}
		counts[bucket] = n
	}
	return counts, rows.Err()
}
