package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"equipment-inspection-diagnostics-system/api/internal/models"
)

var ErrEquipmentNotFound = errors.New("verification equipment not found")

const (
	HistoryActionCreated     = "created"
	HistoryActionUpdated     = "updated"
	HistoryActionDeactivated = "deactivated"
	HistoryActionScanUpload  = "scan_uploaded"
)

type VerificationRepo struct {
	pool   *pgxpool.Pool
	outbox *OutboxRepo
}

func NewVerificationRepo(pool *pgxpool.Pool, outbox *OutboxRepo) *VerificationRepo {
	return &VerificationRepo{pool: pool, outbox: outbox}
}

const equipmentColumns = `
	equipment_id, name, equipment_type, serial_number,
	verification_date, next_verification_date, is_active,
	scan_file_name, scan_content_type, scan_size_bytes, notes,
	created_at, updated_at
`

func scanEquipment(row pgx.Row) (models.VerificationEquipment, error) {
	var eq models.VerificationEquipment
	err := row.Scan(
		&eq.EquipmentID, &eq.Name, &eq.EquipmentType, &eq.SerialNumber,
		&eq.VerificationDate, &eq.NextVerificationDate, &eq.IsActive,
		&eq.ScanFileName, &eq.ScanContentType, &eq.ScanSizeBytes, &eq.Notes,
		&eq.CreatedAt, &eq.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return eq, ErrEquipmentNotFound
	}
	return eq, err
}

// Create inserts the equipment row, the initial history entry and the outbox
// event in one transaction so downstream consumers never see a row without
// its audit trail.
func (r *VerificationRepo) Create(ctx context.Context, eq models.VerificationEquipment, performer string, outboxEvent models.OutboxEvent) (models.VerificationEquipment, error) {
	if eq.EquipmentID == uuid.Nil {
		eq.EquipmentID = uuid.New()
	}
	now := time.Now().UTC()
	eq.CreatedAt = now
	eq.UpdatedAt = now

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.VerificationEquipment{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	_, err = tx.Exec(ctx, `
		INSERT INTO verification_equipment (
			equipment_id, name, equipment_type, serial_number,
			verification_date, next_verification_date, is_active,
			scan_file_name, scan_content_type, scan_size_bytes, notes,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, eq.EquipmentID, eq.Name, eq.EquipmentType, eq.SerialNumber,
		eq.VerificationDate, eq.NextVerificationDate, eq.IsActive,
		eq.ScanFileName, eq.ScanContentType, eq.ScanSizeBytes, eq.Notes,
		eq.CreatedAt, eq.UpdatedAt)
	if err != nil {
		return models.VerificationEquipment{}, err
	}

	if err = appendHistory(ctx, tx, models.VerificationHistory{
		EquipmentID: eq.EquipmentID,
		Action:      HistoryActionCreated,
		Performer:   performer,
		OccurredAt:  now,
	}); err != nil {
		return models.VerificationEquipment{}, err
	}

	if r.outbox != nil {
		if _, err = r.outbox.Insert(ctx, tx, outboxEvent); err != nil {
			return models.VerificationEquipment{}, err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return models.VerificationEquipment{}, err
	}
	return eq, nil
}

// Update replaces the mutable fields wholesale. The caller supplies the full
// desired state; partial merges happen at the handler layer.
func (r *VerificationRepo) Update(ctx context.Context, eq models.VerificationEquipment, performer string, details []byte, outboxEvent models.OutboxEvent) (models.VerificationEquipment, error) {
	now := time.Now().UTC()

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.VerificationEquipment{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	row := tx.QueryRow(ctx, `
		UPDATE verification_equipment
		SET name = $2, equipment_type = $3, serial_number = $4,
			verification_date = $5, next_verification_date = $6,
			scan_file_name = COALESCE($7, scan_file_name),
			scan_content_type = COALESCE($8, scan_content_type),
			scan_size_bytes = COALESCE($9, scan_size_bytes),
			notes = $10, updated_at = $11
		WHERE equipment_id = $1 AND is_active
		RETURNING `+equipmentColumns, eq.EquipmentID, eq.Name, eq.EquipmentType, eq.SerialNumber,
		eq.VerificationDate, eq.NextVerificationDate,
		eq.ScanFileName, eq.ScanContentType, eq.ScanSizeBytes,
		eq.Notes, now)
	updated, err := scanEquipment(row)
	if err != nil {
		return models.VerificationEquipment{}, err
	}

	if err = appendHistory(ctx, tx, models.VerificationHistory{
		EquipmentID: eq.EquipmentID,
		Action:      HistoryActionUpdated,
		Performer:   performer,
		OccurredAt:  now,
		Details:     details,
	}); err != nil {
		return models.VerificationEquipment{}, err
	}

	if r.outbox != nil {
		if _, err = r.outbox.Insert(ctx, tx, outboxEvent); err != nil {
			return models.VerificationEquipment{}, err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return models.VerificationEquipment{}, err
	}
	return updated, nil
}

// Deactivate soft-deletes: the row stays for history and statistics but
// drops out of listings and expiry scans.
func (r *VerificationRepo) Deactivate(ctx context.Context, equipmentID uuid.UUID, performer string, outboxEvent models.OutboxEvent) error {
	now := time.Now().UTC()

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	tag, err := tx.Exec(ctx, `
		UPDATE verification_equipment
		SET is_active = FALSE, updated_at = $2
		WHERE equipment_id = $1 AND is_active
	`, equipmentID, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		err = ErrEquipmentNotFound
		return err
	}

	if err = appendHistory(ctx, tx, models.VerificationHistory{
		EquipmentID: equipmentID,
		Action:      HistoryActionDeactivated,
		Performer:   performer,
		OccurredAt:  now,
	}); err != nil {
		return err
	}

	if r.outbox != nil {
		if _, err = r.outbox.Insert(ctx, tx, outboxEvent); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *VerificationRepo) GetByID(ctx context.Context, equipmentID uuid.UUID) (models.VerificationEquipment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+equipmentColumns+`
		FROM verification_equipment
		WHERE equipment_id = $1
	`, equipmentID)
	return scanEquipment(row)
}

func (r *VerificationRepo) List(ctx context.Context, activeOnly bool) ([]models.VerificationEquipment, error) {
	query := `
		SELECT ` + equipmentColumns + `
		FROM verification_equipment
	`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY name ASC, equipment_id ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.VerificationEquipment
	for rows.Next() {
		eq, err := scanEquipment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, eq)
	}
	return out, rows.Err()
}

func appendHistory(ctx context.Context, db DBTX, entry models.VerificationHistory) error {
	if entry.HistoryID == uuid.Nil {
		entry.HistoryID = uuid.New()
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now().UTC()
	}
	_, err := db.Exec(ctx, `
		INSERT INTO verification_history (
			history_id, equipment_id, action, performer, occurred_at, details
		) VALUES ($1, $2, $3, $4, $5, $6)
	`, entry.HistoryID, entry.EquipmentID, entry.Action, nullIfEmpty(entry.Performer), entry.OccurredAt, entry.Details)
	return err
}

func (r *VerificationRepo) AppendHistory(ctx context.Context, entry models.VerificationHistory) error {
	return appendHistory(ctx, r.pool, entry)
}

// ListHistory returns newest-first. An unknown equipment id yields an empty
// slice, not an error.
func (r *VerificationRepo) ListHistory(ctx context.Context, equipmentID uuid.UUID, limit int) ([]models.VerificationHistory, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT history_id, equipment_id, action, COALESCE(performer, ''), occurred_at, details
		FROM verification_history
		WHERE equipment_id = $1
		ORDER BY occurred_at DESC, history_id DESC
		LIMIT $2
	`, equipmentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]models.VerificationHistory, 0, limit)
	for rows.Next() {
		var entry models.VerificationHistory
		if err := rows.Scan(&entry.HistoryID, &entry.EquipmentID, &entry.Action, &entry.Performer, &entry.OccurredAt, &entry.Details); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// CountHistoryActions aggregates history entries by action since the given
// time, feeding the usage statistics endpoint.
func (r *VerificationRepo) CountHistoryActions(ctx context.Context, since time.Time) (map[string]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT action, COUNT(*)
		FROM verification_history
		WHERE occurred_at >= $1
		GROUP BY action
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var action string
		var n int
		if err := rows.Scan(&action, &n); err != nil {
			return nil, err
		}
		counts[action] = n
	}
	return counts, rows.Err()
}

type TypeCount struct {
	EquipmentType string
	Count         int
}

func (r *VerificationRepo) CountByType(ctx context.Context) ([]TypeCount, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT equipment_type, COUNT(*)
		FROM verification_equipment
		WHERE is_active
		GROUP BY equipment_type
		ORDER BY equipment_type ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TypeCount
	for rows.Next() {
		var tc TypeCount
		if err := rows.Scan(&tc.EquipmentType, &tc.Count); err != nil {
			return nil, err
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

// SaveScan stores the uploaded verification certificate and mirrors the file
// metadata onto the equipment row.
func (r *VerificationRepo) SaveScan(ctx context.Context, equipmentID uuid.UUID, fileName, contentType string, data []byte, performer string) error {
	now := time.Now().UTC()
	size := int64(len(data))

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	_, err = tx.Exec(ctx, `
		INSERT INTO verification_scans (equipment_id, file_name, content_type, size_bytes, data, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (equipment_id) DO UPDATE
		SET file_name = EXCLUDED.file_name, content_type = EXCLUDED.content_type,
			size_bytes = EXCLUDED.size_bytes, data = EXCLUDED.data, uploaded_at = EXCLUDED.uploaded_at
	`, equipmentID, fileName, contentType, size, data, now)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE verification_equipment
		SET scan_file_name = $2, scan_content_type = $3, scan_size_bytes = $4, updated_at = $5
		WHERE equipment_id = $1
	`, equipmentID, fileName, contentType, size, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		err = ErrEquipmentNotFound
		return err
	}

	if err = appendHistory(ctx, tx, models.VerificationHistory{
		EquipmentID: equipmentID,
		Action:      HistoryActionScanUpload,
		Performer:   performer,
		OccurredAt:  now,
	}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *VerificationRepo) GetScan(ctx context.Context, equipmentID uuid.UUID) (fileName string, contentType string, data []byte, err error) {
	err = r.pool.QueryRow(ctx, `
		SELECT file_name, content_type, data
		FROM verification_scans
		WHERE equipment_id = $1
	`, equipmentID).Scan(&fileName, &contentType, &data)
	if errors.Is(err, pgx.ErrNoRows) {
		err = ErrEquipmentNotFound
	}
	return fileName, contentType, data, err
}
