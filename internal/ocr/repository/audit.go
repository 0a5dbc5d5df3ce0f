package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/docuflow/ocr-service/internal/ocr/domain"
	"github.com/docuflow/ocr-service/pkg/database"
)

// AuditRepository handles persistence of per-document processing outcomes
type AuditRepository struct {
	db *database.DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *database.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Ping reports whether the backing database is reachable
func (r *AuditRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

// Record inserts one processing outcome. The ID is generated when empty and
// CreatedAt is populated from the database.
func (r *AuditRepository) Record(ctx context.Context, rec *domain.AuditRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}

	query := `
		INSERT INTO ocr_audit (id, request_id, document, status, error_category,
		                       pages, size_bytes, engine, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		rec.ID,
		rec.RequestID,
		rec.Document,
		rec.Status,
		rec.ErrorCategory,
		rec.Pages,
		rec.SizeBytes,
		rec.Engine,
		rec.DurationMS,
	).Scan(&rec.CreatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}

	return nil
}

// Recent returns the latest records, newest first.
func (r *AuditRepository) Recent(ctx context.Context, limit int) ([]*domain.AuditRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, request_id, document, status, error_category,
		       pages, size_bytes, engine, duration_ms, created_at
		FROM ocr_audit
		ORDER BY created_at DESC
		LIMIT $1
	`

	records := []*domain.AuditRecord{}
	if err := r.db.SelectContext(ctx, &records, query, limit); err != nil {
		return nil, err
	}

	return records, nil
}

// CountByStatus returns how many records exist per outcome status.
func (r *AuditRepository) CountByStatus(ctx context.Context) (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM ocr_audit GROUP BY status`

	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}

	return counts, rows.Err()
}
