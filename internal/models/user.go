package models

import (
	"time"

	"github.com/google/uuid"
)

// Role represents a user's role on the platform.
type Role string

const (
	RoleStudent Role = "STUDENT"
	RoleAdmin   Role = "ADMIN"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool { return r == RoleStudent || r == RoleAdmin }

// User is an account. Students carry the optional academic profile fields.
type User struct {
	ID               uuid.UUID  `json:"id"`
	Email            string     `json:"email"`
	Name             string     `json:"name"`
	Image            *string    `json:"image,omitempty"`
	EmailVerified    bool       `json:"emailVerified"`
	Role             Role       `json:"role"`
	PasswordHash     *string    `json:"-"`
	StudentID        *string    `json:"studentId,omitempty"`
	Faculty          *string    `json:"faculty,omitempty"`
	Year             *int       `json:"year,omitempty"`
	Program          *string    `json:"program,omitempty"`
	EnrollmentDate   *time.Time `json:"enrollmentDate,omitempty"`
	TotalMeritPoints int        `json:"totalMeritPoints"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// IsStudentProfile reports whether the academic fields are filled in.
func (u *User) IsStudentProfile() bool {
	return u.Role == RoleStudent && u.StudentID != nil && u.Faculty != nil && u.Year != nil && u.Program != nil
}

// StudentProfile is the student view returned by the students endpoints.
type StudentProfile struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	Image            *string   `json:"image,omitempty"`
	StudentID        string    `json:"studentId"`
	Faculty          string    `json:"faculty"`
	Year             int       `json:"year"`
	Program          string    `json:"program"`
	EnrollmentDate   string    `json:"enrollmentDate,omitempty"`
	TotalMeritPoints int       `json:"totalMeritPoints"`
}

// ToStudentProfile converts a student user to its profile. ok is false for non-students.
func (u *User) ToStudentProfile() (StudentProfile, bool) {
	if !u.IsStudentProfile() {
		return StudentProfile{}, false
	}
	p := StudentProfile{
		ID:               u.ID,
		Name:             u.Name,
		Email:            u.Email,
		Image:            u.Image,
		StudentID:        *u.StudentID,
		Faculty:          *u.Faculty,
		Year:             *u.Year,
		Program:          *u.Program,
		TotalMeritPoints: u.TotalMeritPoints,
	}
	if u.EnrollmentDate != nil {
		p.EnrollmentDate = u.EnrollmentDate.Format(DateLayout)
	}
	return p, true
}
