package registrations

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meritrack/backend/internal/events"
	"github.com/meritrack/backend/internal/merits"
	"github.com/meritrack/backend/internal/models"
	"github.com/meritrack/backend/pkg/apperr"
	"github.com/meritrack/backend/pkg/database"
)

const registrationColumns = `r.id, r.seq, r.event_id, r.student_id, r.status, r.registration_date,
	r.attendance_marked, r.points_awarded, r.cancelled_at, r.updated_at`

func registrationTargets(reg *models.Registration) []any {
	return []any{
		&reg.ID, &reg.Seq, &reg.EventID, &reg.StudentID, &reg.Status, &reg.RegistrationDate,
		&reg.AttendanceMarked, &reg.PointsAwarded, &reg.CancelledAt, &reg.UpdatedAt,
	}
}

// Repository is the PostgreSQL registration store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a registrations repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// conflictAttempts allows one retry after a serialization failure or deadlock.
const conflictAttempts = 2

// WithEventLock locks the event row FOR UPDATE and runs fn in the same transaction.
func (r *Repository) WithEventLock(ctx context.Context, eventID uuid.UUID, fn func(tx Tx) error) error {
	return database.Retry(ctx, conflictAttempts, func() error {
		return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
			q := `SELECT ` + events.Columns + ` FROM events e WHERE e.id = $1 FOR UPDATE`
			var ev models.Event
			if err := tx.QueryRow(ctx, q, eventID).Scan(events.ScanTargets(&ev)...); err != nil {
				return database.MapError(err)
			}
			return fn(&pgTx{tx: tx, event: ev})
		})
	})
}

// List returns registrations joined with their event and student, newest first.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]models.RegistrationDetail, int, error) {
	var where []string
	var args []any
	if f.StudentID != nil {
		args = append(args, *f.StudentID)
		where = append(where, fmt.Sprintf("r.student_id = $%d", len(args)))
	}
	if f.EventID != nil {
		args = append(args, *f.EventID)
		where = append(where, fmt.Sprintf("r.event_id = $%d", len(args)))
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	countQ := `SELECT COUNT(*) FROM event_registrations r` + cond
	if err := r.pool.QueryRow(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, database.MapError(err)
	}

	q := `SELECT ` + registrationColumns + `, ` + events.Columns + `,
			u.name, COALESCE(u.student_id, ''), COALESCE(u.faculty, '')
		FROM event_registrations r
		JOIN events e ON e.id = r.event_id
		JOIN users u ON u.id = r.student_id` + cond +
		` ORDER BY r.registration_date DESC, r.seq DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit, (max(f.Page, 1)-1)*f.Limit)
		q += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, database.MapError(err)
	}
	defer rows.Close()

	list := []models.RegistrationDetail{}
	for rows.Next() {
		var reg models.Registration
		var ev models.Event
		var st models.StudentBrief
		targets := append(registrationTargets(&reg), events.ScanTargets(&ev)...)
		targets = append(targets, &st.Name, &st.StudentID, &st.Faculty)
		if err := rows.Scan(targets...); err != nil {
			return nil, 0, err
		}
		st.ID = reg.StudentID
		view := ev.View()
		list = append(list, models.RegistrationDetail{RegistrationView: reg.View(), Event: &view, Student: &st})
	}
	return list, total, rows.Err()
}

// pgTx implements Tx over a pgx transaction holding the event lock.
type pgTx struct {
	tx    pgx.Tx
	event models.Event
}

func (t *pgTx) Event() models.Event { return t.event }

func (t *pgTx) Student(ctx context.Context, studentID uuid.UUID) (*models.User, error) {
	const q = `SELECT id, email, name, role FROM users WHERE id = $1 AND role = 'STUDENT'`
	var u models.User
	if err := t.tx.QueryRow(ctx, q, studentID).Scan(&u.ID, &u.Email, &u.Name, &u.Role); err != nil {
		return nil, database.MapError(err)
	}
	return &u, nil
}

func (t *pgTx) Get(ctx context.Context, studentID uuid.UUID) (*models.Registration, error) {
	q := `SELECT ` + registrationColumns + ` FROM event_registrations r WHERE r.event_id = $1 AND r.student_id = $2`
	var reg models.Registration
	if err := t.tx.QueryRow(ctx, q, t.event.ID, studentID).Scan(registrationTargets(&reg)...); err != nil {
		return nil, database.MapError(err)
	}
	return &reg, nil
}

func (t *pgTx) CountByStatus(ctx context.Context, status models.RegistrationStatus) (int, error) {
	const q = `SELECT COUNT(*) FROM event_registrations WHERE event_id = $1 AND status = $2`
	var n int
	err := t.tx.QueryRow(ctx, q, t.event.ID, status).Scan(&n)
	return n, database.MapError(err)
}

func (t *pgTx) Insert(ctx context.Context, reg *models.Registration) error {
	const q = `INSERT INTO event_registrations (event_id, student_id, status, registration_date)
		VALUES ($1, $2, $3, $4)
		RETURNING id, seq, attendance_marked, points_awarded, updated_at`
	err := t.tx.QueryRow(ctx, q, reg.EventID, reg.StudentID, reg.Status, reg.RegistrationDate).
		Scan(&reg.ID, &reg.Seq, &reg.AttendanceMarked, &reg.PointsAwarded, &reg.UpdatedAt)
	return database.MapError(err)
}

func (t *pgTx) Reactivate(ctx context.Context, reg *models.Registration) error {
	const q = `UPDATE event_registrations
		SET status = $2, registration_date = $3, attendance_marked = FALSE, points_awarded = 0,
			cancelled_at = NULL, seq = nextval(pg_get_serial_sequence('event_registrations', 'seq')),
			updated_at = NOW()
		WHERE id = $1
		RETURNING seq, updated_at`
	err := t.tx.QueryRow(ctx, q, reg.ID, reg.Status, reg.RegistrationDate).Scan(&reg.Seq, &reg.UpdatedAt)
	return database.MapError(err)
}

func (t *pgTx) SetStatus(ctx context.Context, id uuid.UUID, status models.RegistrationStatus, at time.Time) error {
	const q = `UPDATE event_registrations
		SET status = $2,
			cancelled_at = CASE WHEN $2 = 'CANCELLED' THEN $3::timestamptz ELSE NULL END,
			updated_at = NOW()
		WHERE id = $1`
	tag, err := t.tx.Exec(ctx, q, id, status, at)
	if err != nil {
		return database.MapError(err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.ErrNotFound, "Registration not found")
	}
	return nil
}

func (t *pgTx) OldestWaitlisted(ctx context.Context) (*models.Registration, error) {
	q := `SELECT ` + registrationColumns + ` FROM event_registrations r
		WHERE r.event_id = $1 AND r.status = 'WAITLISTED'
		ORDER BY r.registration_date ASC, r.seq ASC
		LIMIT 1`
	var reg models.Registration
	err := t.tx.QueryRow(ctx, q, t.event.ID).Scan(registrationTargets(&reg)...)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, database.MapError(err)
	}
	return &reg, nil
}

func (t *pgTx) MarkAttended(ctx context.Context, id uuid.UUID, points int) error {
	const q = `UPDATE event_registrations
		SET status = 'ATTENDED', attendance_marked = TRUE, points_awarded = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'REGISTERED'`
	_, err := t.tx.Exec(ctx, q, id, points)
	return database.MapError(err)
}

func (t *pgTx) AppendMerit(ctx context.Context, rec *models.MeritRecord) error {
	return merits.AppendRecord(ctx, t.tx, rec)
}

func (t *pgTx) UpdateDetails(ctx context.Context, ev *models.Event) error {
	ev.ID = t.event.ID
	if err := events.UpdateDetails(ctx, t.tx, ev); err != nil {
		return err
	}
	ev.Capacity, ev.RegisteredCount = t.event.Capacity, t.event.RegisteredCount
	t.event = *ev
	return nil
}

func (t *pgTx) UpdateCapacity(ctx context.Context, capacity int) error {
	const q = `UPDATE events SET capacity = $2, updated_at = NOW() WHERE id = $1`
	if _, err := t.tx.Exec(ctx, q, t.event.ID, capacity); err != nil {
		return database.MapError(err)
	}
	t.event.Capacity = capacity
	return nil
}

func (t *pgTx) SyncRegisteredCount(ctx context.Context) (int, error) {
	const q = `UPDATE events
		SET registered_count = (
			SELECT COUNT(*) FROM event_registrations WHERE event_id = $1 AND status = 'REGISTERED'
		)
		WHERE id = $1
		RETURNING registered_count`
	var n int
	if err := t.tx.QueryRow(ctx, q, t.event.ID).Scan(&n); err != nil {
		return 0, database.MapError(err)
	}
	t.event.RegisteredCount = n
	return n, nil
}
