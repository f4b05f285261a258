package models

import (
	"time"

	"github.com/google/uuid"
)

// RegistrationStatus is the state of a student's registration for an event.
type RegistrationStatus string

const (
	RegistrationRegistered RegistrationStatus = "REGISTERED"
	RegistrationWaitlisted RegistrationStatus = "WAITLISTED"
	RegistrationAttended   RegistrationStatus = "ATTENDED"
	RegistrationCancelled  RegistrationStatus = "CANCELLED"
)

// Label is the title-cased status returned by the register endpoint.
func (s RegistrationStatus) Label() string {
	switch s {
	case RegistrationRegistered:
		return "Registered"
	case RegistrationWaitlisted:
		return "Waitlisted"
	case RegistrationAttended:
		return "Attended"
	case RegistrationCancelled:
		return "Cancelled"
	}
	return string(s)
}

// Registration links a student to an event. Seq preserves insertion order
// and breaks ties between equal registration dates in the waitlist.
type Registration struct {
	ID               uuid.UUID          `json:"id"`
	Seq              int64              `json:"-"`
	EventID          uuid.UUID          `json:"eventId"`
	StudentID        uuid.UUID          `json:"studentId"`
	Status           RegistrationStatus `json:"status"`
	RegistrationDate time.Time          `json:"-"`
	AttendanceMarked bool               `json:"attendanceMarked"`
	PointsAwarded    int                `json:"pointsAwarded"`
	CancelledAt      *time.Time         `json:"-"`
	UpdatedAt        time.Time          `json:"-"`
}

// RegistrationView is the wire shape of a registration.
type RegistrationView struct {
	ID               uuid.UUID `json:"id"`
	EventID          uuid.UUID `json:"eventId"`
	StudentID        uuid.UUID `json:"studentId"`
	RegistrationDate string    `json:"registrationDate"`
	Status           string    `json:"status"`
	AttendanceMarked bool      `json:"attendanceMarked"`
	PointsAwarded    int       `json:"pointsAwarded"`
}

// View renders r with the raw status.
func (r Registration) View() RegistrationView {
	return RegistrationView{
		ID:               r.ID,
		EventID:          r.EventID,
		StudentID:        r.StudentID,
		RegistrationDate: r.RegistrationDate.Format(DateLayout),
		Status:           string(r.Status),
		AttendanceMarked: r.AttendanceMarked,
		PointsAwarded:    r.PointsAwarded,
	}
}

// RegistrationDetail is a registration joined with its event and student.
type RegistrationDetail struct {
	RegistrationView
	Event   *EventView    `json:"event,omitempty"`
	Student *StudentBrief `json:"student,omitempty"`
}

// StudentBrief identifies a student inside another resource.
type StudentBrief struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	StudentID string    `json:"studentId"`
	Faculty   string    `json:"faculty"`
}
