package merits

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meritrack/backend/internal/events"
	"github.com/meritrack/backend/internal/models"
	"github.com/meritrack/backend/pkg/apperr"
	"github.com/meritrack/backend/pkg/database"
)

const recordColumns = `id, student_id, event_id, category, points, description, date, is_verified, merit_type, created_by, created_at`

func recordTargets(m *models.MeritRecord) []any {
	return []any{&m.ID, &m.StudentID, &m.EventID, &m.Category, &m.Points, &m.Description, &m.Date,
		&m.IsVerified, &m.MeritType, &m.CreatedBy, &m.CreatedAt}
}

// Repository is the PostgreSQL merit ledger.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a merits repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// AppendRecord inserts rec and adds its points to the student's running total.
// It must run inside the caller's transaction.
func AppendRecord(ctx context.Context, tx pgx.Tx, rec *models.MeritRecord) error {
	const q = `INSERT INTO merit_records (student_id, event_id, category, points, description, date, is_verified, merit_type, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`
	err := tx.QueryRow(ctx, q, rec.StudentID, rec.EventID, rec.Category, rec.Points, rec.Description,
		rec.Date, rec.IsVerified, rec.MeritType, rec.CreatedBy).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return database.MapError(err)
	}
	tag, err := tx.Exec(ctx,
		`UPDATE users SET total_merit_points = total_merit_points + $2, updated_at = NOW() WHERE id = $1`,
		rec.StudentID, rec.Points)
	if err != nil {
		return database.MapError(err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.ErrNotFound, "Student not found")
	}
	return nil
}

// Append writes all records in one transaction.
func (r *Repository) Append(ctx context.Context, recs []models.MeritRecord) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for i := range recs {
			if err := AppendRecord(ctx, tx, &recs[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// Student returns a user holding the STUDENT role.
func (r *Repository) Student(ctx context.Context, id uuid.UUID) (*models.User, error) {
	const q = `SELECT id, email, name, role, total_merit_points FROM users WHERE id = $1 AND role = 'STUDENT'`
	var u models.User
	if err := r.pool.QueryRow(ctx, q, id).Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.TotalMeritPoints); err != nil {
		return nil, database.MapError(err)
	}
	return &u, nil
}

// Event returns an event by ID.
func (r *Repository) Event(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	q := `SELECT ` + events.Columns + ` FROM events e WHERE e.id = $1`
	var ev models.Event
	if err := r.pool.QueryRow(ctx, q, id).Scan(events.ScanTargets(&ev)...); err != nil {
		return nil, database.MapError(err)
	}
	return &ev, nil
}

// StudentRecords returns all records of a student, newest first.
func (r *Repository) StudentRecords(ctx context.Context, studentID uuid.UUID) ([]models.MeritRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM merit_records WHERE student_id = $1 ORDER BY date DESC, created_at DESC`,
		studentID)
	if err != nil {
		return nil, database.MapError(err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// ListRecords returns one page of a student's records, newest first.
func (r *Repository) ListRecords(ctx context.Context, studentID uuid.UUID, page, limit int) ([]models.MeritRecord, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM merit_records WHERE student_id = $1`, studentID).Scan(&total); err != nil {
		return nil, 0, database.MapError(err)
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM merit_records WHERE student_id = $1
		ORDER BY date DESC, created_at DESC LIMIT $2 OFFSET $3`,
		studentID, limit, (max(page, 1)-1)*limit)
	if err != nil {
		return nil, 0, database.MapError(err)
	}
	defer rows.Close()
	list, err := scanRecords(rows)
	return list, total, err
}

// Standings sums the ledger per student and category. Students without records get zeros.
func (r *Repository) Standings(ctx context.Context) ([]models.LeaderboardEntry, error) {
	const q = `SELECT u.id, COALESCE(u.student_id, ''), u.name, COALESCE(u.faculty, ''), COALESCE(u.year, 0),
			COALESCE(SUM(m.points), 0),
			COALESCE(SUM(m.points) FILTER (WHERE m.category = 'UNIVERSITY'), 0),
			COALESCE(SUM(m.points) FILTER (WHERE m.category = 'FACULTY'), 0),
			COALESCE(SUM(m.points) FILTER (WHERE m.category = 'COLLEGE'), 0),
			COALESCE(SUM(m.points) FILTER (WHERE m.category = 'CLUB'), 0)
		FROM users u
		LEFT JOIN merit_records m ON m.student_id = u.id
		WHERE u.role = 'STUDENT'
		GROUP BY u.id`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, database.MapError(err)
	}
	defer rows.Close()

	list := []models.LeaderboardEntry{}
	for rows.Next() {
		var e models.LeaderboardEntry
		if err := rows.Scan(&e.ID, &e.StudentID, &e.Name, &e.Faculty, &e.Year, &e.TotalPoints,
			&e.UniversityMerit, &e.FacultyMerit, &e.CollegeMerit, &e.ClubMerit); err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

func scanRecords(rows pgx.Rows) ([]models.MeritRecord, error) {
	list := []models.MeritRecord{}
	for rows.Next() {
		var m models.MeritRecord
		if err := rows.Scan(recordTargets(&m)...); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}
