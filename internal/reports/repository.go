package reports

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meritrack/backend/internal/models"
	"github.com/meritrack/backend/pkg/apperr"
	"github.com/meritrack/backend/pkg/database"
)

const reportColumns = `id, requested_by, kind, status, COALESCE(s3_key, ''), COALESCE(error, ''), created_at, updated_at`

// Repository handles reports persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a reports repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanReport(row interface{ Scan(...any) error }) (*models.Report, error) {
	var r models.Report
	if err := row.Scan(&r.ID, &r.RequestedBy, &r.Kind, &r.Status, &r.S3Key, &r.Error, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

// Create inserts a pending report.
func (r *Repository) Create(ctx context.Context, kind string, requestedBy *uuid.UUID) (*models.Report, error) {
	q := `INSERT INTO reports (kind, requested_by) VALUES ($1, $2) RETURNING ` + reportColumns
	rep, err := scanReport(r.pool.QueryRow(ctx, q, kind, requestedBy))
	if err != nil {
		return nil, database.MapError(err)
	}
	return rep, nil
}

// GetByID returns a report.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Report, error) {
	q := `SELECT ` + reportColumns + ` FROM reports WHERE id = $1`
	rep, err := scanReport(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if err = database.MapError(err); errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.Wrap(apperr.ErrNotFound, "Report not found", err)
		}
		return nil, err
	}
	return rep, nil
}

// SetStatus moves a report to status, recording the object key or failure text.
func (r *Repository) SetStatus(ctx context.Context, id uuid.UUID, status, s3Key, errMsg string) error {
	const q = `UPDATE reports
		SET status = $2, s3_key = NULLIF($3, ''), error = NULLIF($4, ''), updated_at = NOW()
		WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, id, status, s3Key, errMsg)
	if err != nil {
		return database.MapError(err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.ErrNotFound, "Report not found")
	}
	return nil
}
