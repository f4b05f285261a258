package models

import (
	"time"

	"github.com/google/uuid"
)

// MeritType is the role a student played when earning a merit.
type MeritType string

const (
	MeritParticipant MeritType = "Participant"
	MeritOrganizer   MeritType = "Organizer"
)

// Valid reports whether t is a known merit type.
func (t MeritType) Valid() bool {
	return t == MeritParticipant || t == MeritOrganizer
}

// MeritRecord is one append-only ledger entry of points earned by a student.
type MeritRecord struct {
	ID          uuid.UUID  `json:"id"`
	StudentID   uuid.UUID  `json:"studentId"`
	EventID     *uuid.UUID `json:"eventId,omitempty"`
	Category    Category   `json:"category"`
	Points      int        `json:"points"`
	Description string     `json:"description"`
	Date        time.Time  `json:"date"`
	IsVerified  bool       `json:"isVerified"`
	MeritType   MeritType  `json:"meritType"`
	CreatedBy   *uuid.UUID `json:"createdBy,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// CategoryTotals holds points per category.
type CategoryTotals struct {
	University int `json:"university"`
	Faculty    int `json:"faculty"`
	College    int `json:"college"`
	Club       int `json:"club"`
}

// Add credits points to the bucket for c.
func (t *CategoryTotals) Add(c Category, points int) {
	switch c {
	case CategoryUniversity:
		t.University += points
	case CategoryFaculty:
		t.Faculty += points
	case CategoryCollege:
		t.College += points
	case CategoryClub:
		t.Club += points
	}
}

// Total is the sum across categories.
func (t CategoryTotals) Total() int {
	return t.University + t.Faculty + t.College + t.Club
}

// MeritSummary is a student's merit standing. RecentActivities counts ledger
// entries inside the recent window; RecentRecords lists them newest first.
type MeritSummary struct {
	TotalPoints        int           `json:"totalPoints"`
	UniversityMerit    int           `json:"universityMerit"`
	FacultyMerit       int           `json:"facultyMerit"`
	CollegeMerit       int           `json:"collegeMerit"`
	ClubMerit          int           `json:"clubMerit"`
	RecentActivities   int           `json:"recentActivities"`
	RecentRecords      []MeritRecord `json:"recentRecords"`
	TargetPoints       int           `json:"targetPoints"`
	ProgressPercentage int           `json:"progressPercentage"`
	TargetAchieved     bool          `json:"targetAchieved"`
	RemainingPoints    int           `json:"remainingPoints"`
	ExceededPoints     int           `json:"exceededPoints"`
	Rank               int           `json:"rank"`
	TotalStudents      int           `json:"totalStudents"`
}

// LeaderboardEntry is one student's row on the leaderboard.
type LeaderboardEntry struct {
	ID              uuid.UUID `json:"id"`
	StudentID       string    `json:"studentId"`
	Name            string    `json:"name"`
	Faculty         string    `json:"faculty"`
	Year            int       `json:"year"`
	TotalPoints     int       `json:"totalPoints"`
	UniversityMerit int       `json:"universityMerit"`
	FacultyMerit    int       `json:"facultyMerit"`
	CollegeMerit    int       `json:"collegeMerit"`
	ClubMerit       int       `json:"clubMerit"`
}

// MeritRecordView is the wire shape of a ledger entry in record listings.
type MeritRecordView struct {
	ID          uuid.UUID  `json:"id"`
	StudentID   uuid.UUID  `json:"studentId"`
	EventID     *uuid.UUID `json:"eventId,omitempty"`
	Category    Category   `json:"category"`
	Points      int        `json:"points"`
	Description string     `json:"description"`
	Date        string     `json:"date"`
	IsVerified  bool       `json:"isVerified"`
	MeritType   MeritType  `json:"meritType,omitempty"`
}

// View renders r with its date as YYYY-MM-DD.
func (r MeritRecord) View() MeritRecordView {
	return MeritRecordView{
		ID:          r.ID,
		StudentID:   r.StudentID,
		EventID:     r.EventID,
		Category:    r.Category,
		Points:      r.Points,
		Description: r.Description,
		Date:        r.Date.Format(DateLayout),
		IsVerified:  r.IsVerified,
		MeritType:   r.MeritType,
	}
}
