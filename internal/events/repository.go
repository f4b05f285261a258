package events

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meritrack/backend/internal/models"
	"github.com/meritrack/backend/pkg/apperr"
	"github.com/meritrack/backend/pkg/database"
)

// Columns selects an event aliased as e, in ScanTargets order.
const Columns = `e.id, e.title, e.description, e.date, e.time, e.location, e.organizer, e.category,
	e.points, e.capacity, e.status, e.registered_count, e.image_url, e.image_key, e.created_at, e.updated_at`

// ScanTargets returns the scan destinations matching Columns.
func ScanTargets(ev *models.Event) []any {
	return []any{
		&ev.ID, &ev.Title, &ev.Description, &ev.Date, &ev.Time, &ev.Location, &ev.Organizer, &ev.Category,
		&ev.Points, &ev.Capacity, &ev.Status, &ev.RegisteredCount, &ev.ImageURL, &ev.ImageKey, &ev.CreatedAt, &ev.UpdatedAt,
	}
}

// ListFilter narrows an event listing.
type ListFilter struct {
	Category models.Category
	Status   models.EventStatus
	Search   string
	Page     int
	Limit    int
}

// Repository handles event persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an event repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new event with no registrations.
func (r *Repository) Create(ctx context.Context, ev *models.Event) error {
	const q = `INSERT INTO events (title, description, date, time, location, organizer, category, points, capacity, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, registered_count, created_at, updated_at`
	err := r.pool.QueryRow(ctx, q, ev.Title, ev.Description, ev.Date, ev.Time, ev.Location, ev.Organizer,
		ev.Category, ev.Points, ev.Capacity, ev.Status).
		Scan(&ev.ID, &ev.RegisteredCount, &ev.CreatedAt, &ev.UpdatedAt)
	return database.MapError(err)
}

// GetByID returns an event by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	q := `SELECT ` + Columns + ` FROM events e WHERE e.id = $1`
	var ev models.Event
	if err := r.pool.QueryRow(ctx, q, id).Scan(ScanTargets(&ev)...); err != nil {
		return nil, notFound(database.MapError(err))
	}
	return &ev, nil
}

// List returns one page of events ordered by date, plus the total match count.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]models.Event, int, error) {
	var where []string
	var args []interface{}
	if f.Category != "" {
		args = append(args, f.Category)
		where = append(where, fmt.Sprintf("e.category = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("e.status = $%d", len(args)))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		args = append(args, "%"+s+"%")
		n := len(args)
		where = append(where, fmt.Sprintf("(e.title ILIKE $%d OR e.description ILIKE $%d OR e.location ILIKE $%d)", n, n, n))
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM events e`+cond, args...).Scan(&total); err != nil {
		return nil, 0, database.MapError(err)
	}

	q := `SELECT ` + Columns + ` FROM events e` + cond + ` ORDER BY e.date ASC, e.created_at ASC`
	if f.Limit > 0 {
		args = append(args, f.Limit, (max(f.Page, 1)-1)*f.Limit)
		q += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, database.MapError(err)
	}
	defer rows.Close()

	list := []models.Event{}
	for rows.Next() {
		var ev models.Event
		if err := rows.Scan(ScanTargets(&ev)...); err != nil {
			return nil, 0, err
		}
		list = append(list, ev)
	}
	return list, total, rows.Err()
}

// Update writes the descriptive fields of an event. Capacity goes through the
// admission service so waitlist promotion happens under the event lock.
func (r *Repository) Update(ctx context.Context, ev *models.Event) error {
	return UpdateDetails(ctx, r.pool, ev)
}

// RowQuerier is satisfied by both a pool and a transaction.
type RowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UpdateDetails writes every event column except capacity, registered_count and the image.
func UpdateDetails(ctx context.Context, q RowQuerier, ev *models.Event) error {
	const stmt = `UPDATE events
		SET title = $2, description = $3, date = $4, time = $5, location = $6, organizer = $7,
			category = $8, points = $9, status = $10, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`
	err := q.QueryRow(ctx, stmt, ev.ID, ev.Title, ev.Description, ev.Date, ev.Time, ev.Location,
		ev.Organizer, ev.Category, ev.Points, ev.Status).Scan(&ev.UpdatedAt)
	return notFound(database.MapError(err))
}

// SetImage stores the S3 location of the event's image.
func (r *Repository) SetImage(ctx context.Context, id uuid.UUID, url, key string) error {
	const q = `UPDATE events SET image_url = $2, image_key = $3, updated_at = NOW() WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, id, url, key)
	if err != nil {
		return database.MapError(err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.ErrNotFound, "Event not found")
	}
	return nil
}

// Delete removes an event. Registrations cascade; merit records keep their points.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return database.MapError(err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.ErrNotFound, "Event not found")
	}
	return nil
}

func notFound(err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) && ae.Kind == apperr.ErrNotFound {
		return apperr.Wrap(apperr.ErrNotFound, "Event not found", err)
	}
	return err
}
