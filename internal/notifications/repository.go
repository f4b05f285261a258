package notifications

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meritrack/backend/internal/models"
	"github.com/meritrack/backend/pkg/apperr"
	"github.com/meritrack/backend/pkg/database"
)

// Repository handles notifications persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a notifications repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts n and fills its id and creation time.
func (r *Repository) Create(ctx context.Context, n *models.Notification) error {
	const q = `INSERT INTO notifications (user_id, kind, title, body, payload)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`
	return database.MapError(r.pool.QueryRow(ctx, q, n.UserID, n.Kind, n.Title, n.Body, n.Payload).Scan(&n.ID, &n.CreatedAt))
}

// ListByUser returns a page of the user's notifications, newest first, with
// the total and unread counts.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit, offset int) ([]models.Notification, int, int, error) {
	var total, unread int
	const countQ = `SELECT COUNT(*), COUNT(*) FILTER (WHERE read_at IS NULL) FROM notifications WHERE user_id = $1`
	if err := r.pool.QueryRow(ctx, countQ, userID).Scan(&total, &unread); err != nil {
		return nil, 0, 0, database.MapError(err)
	}
	if unreadOnly {
		total = unread
	}

	const q = `SELECT id, user_id, kind, title, body, payload, read_at, created_at
		FROM notifications
		WHERE user_id = $1 AND ($2::boolean = false OR read_at IS NULL)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`
	rows, err := r.pool.Query(ctx, q, userID, unreadOnly, limit, offset)
	if err != nil {
		return nil, 0, 0, database.MapError(err)
	}
	defer rows.Close()
	list := make([]models.Notification, 0, limit)
	for rows.Next() {
		var n models.Notification
		var payload []byte
		if err := rows.Scan(&n.ID, &n.UserID, &n.Kind, &n.Title, &n.Body, &payload, &n.ReadAt, &n.CreatedAt); err != nil {
			return nil, 0, 0, err
		}
		if len(payload) > 0 {
			n.Payload = payload
		}
		list = append(list, n)
	}
	return list, total, unread, rows.Err()
}

// MarkRead sets read_at on one of the user's notifications. Marking twice keeps the first time.
func (r *Repository) MarkRead(ctx context.Context, id, userID uuid.UUID) (*models.Notification, error) {
	const q = `UPDATE notifications SET read_at = COALESCE(read_at, NOW())
		WHERE id = $1 AND user_id = $2
		RETURNING id, user_id, kind, title, body, payload, read_at, created_at`
	var n models.Notification
	var payload []byte
	err := r.pool.QueryRow(ctx, q, id, userID).Scan(&n.ID, &n.UserID, &n.Kind, &n.Title, &n.Body, &payload, &n.ReadAt, &n.CreatedAt)
	if err != nil {
		return nil, notFound(database.MapError(err))
	}
	if len(payload) > 0 {
		n.Payload = payload
	}
	return &n, nil
}

// MarkAllRead marks every unread notification of the user and returns how many changed.
func (r *Repository) MarkAllRead(ctx context.Context, userID uuid.UUID) (int, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE notifications SET read_at = NOW() WHERE user_id = $1 AND read_at IS NULL`, userID)
	if err != nil {
		return 0, database.MapError(err)
	}
	return int(tag.RowsAffected()), nil
}

func notFound(err error) error {
	if errors.Is(err, apperr.ErrNotFound) {
		return apperr.Wrap(apperr.ErrNotFound, "Notification not found", err)
	}
	return err
}
