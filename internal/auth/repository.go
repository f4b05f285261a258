package auth

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meritrack/backend/internal/models"
	"github.com/meritrack/backend/pkg/database"
)

const userColumns = `id, email, name, image, email_verified, role, password_hash, student_id, faculty, year,
	program, enrollment_date, total_merit_points, created_at, updated_at`

func userTargets(u *models.User) []any {
	return []any{&u.ID, &u.Email, &u.Name, &u.Image, &u.EmailVerified, &u.Role, &u.PasswordHash, &u.StudentID,
		&u.Faculty, &u.Year, &u.Program, &u.EnrollmentDate, &u.TotalMeritPoints, &u.CreatedAt, &u.UpdatedAt}
}

// Repository handles user persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an auth repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) getBy(ctx context.Context, column string, value any) (*models.User, error) {
	var u models.User
	err := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+column+` = $1`, value).Scan(userTargets(&u)...)
	if err != nil {
		return nil, database.MapError(err)
	}
	return &u, nil
}

// GetByID returns a user by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.getBy(ctx, "id", id)
}

// GetByEmail returns a user by email (case-insensitive).
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getBy(ctx, "email", strings.ToLower(strings.TrimSpace(email)))
}

// GetByStudentID returns a user by university student ID.
func (r *Repository) GetByStudentID(ctx context.Context, studentID string) (*models.User, error) {
	return r.getBy(ctx, "student_id", studentID)
}

// UpsertByEmail returns the user with this email, creating a student account on first sign-in.
func (r *Repository) UpsertByEmail(ctx context.Context, email, name string) (*models.User, error) {
	const q = `INSERT INTO users (email, name, email_verified, role)
		VALUES ($1, $2, TRUE, 'STUDENT')
		ON CONFLICT (email) DO UPDATE SET updated_at = NOW()
		RETURNING ` + userColumns
	var u models.User
	if err := r.pool.QueryRow(ctx, q, strings.ToLower(strings.TrimSpace(email)), name).Scan(userTargets(&u)...); err != nil {
		return nil, database.MapError(err)
	}
	return &u, nil
}

// Create inserts a user with all profile fields as given.
func (r *Repository) Create(ctx context.Context, u *models.User) error {
	const q = `INSERT INTO users (email, name, image, email_verified, role, password_hash, student_id, faculty, year, program, enrollment_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, total_merit_points, created_at, updated_at`
	err := r.pool.QueryRow(ctx, q, strings.ToLower(u.Email), u.Name, u.Image, u.EmailVerified, u.Role, u.PasswordHash,
		u.StudentID, u.Faculty, u.Year, u.Program, u.EnrollmentDate).
		Scan(&u.ID, &u.TotalMeritPoints, &u.CreatedAt, &u.UpdatedAt)
	return database.MapError(err)
}

// ListStudents returns all student profiles ordered by student ID.
func (r *Repository) ListStudents(ctx context.Context) ([]models.User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE role = 'STUDENT' ORDER BY student_id NULLS LAST, id`)
	if err != nil {
		return nil, database.MapError(err)
	}
	defer rows.Close()
	list := []models.User{}
	for rows.Next() {
		var u models.User
		if err := rows.Scan(userTargets(&u)...); err != nil {
			return nil, err
		}
		list = append(list, u)
	}
	return list, rows.Err()
}
