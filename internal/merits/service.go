package merits

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meritrack/backend/internal/models"
	"github.com/meritrack/backend/pkg/apperr"
	"github.com/meritrack/backend/pkg/cache"
)

// Store reads the merit ledger and appends to it.
type Store interface {
	// Student returns a user with the STUDENT role or apperr.ErrNotFound.
	Student(ctx context.Context, id uuid.UUID) (*models.User, error)
	Event(ctx context.Context, id uuid.UUID) (*models.Event, error)
	// StudentRecords returns every record of a student, newest first.
	StudentRecords(ctx context.Context, studentID uuid.UUID) ([]models.MeritRecord, error)
	ListRecords(ctx context.Context, studentID uuid.UUID, page, limit int) ([]models.MeritRecord, int, error)
	// Standings returns per-category sums for every student, in no particular order.
	Standings(ctx context.Context) ([]models.LeaderboardEntry, error)
	// Append inserts records and credits each student's running total in one transaction.
	Append(ctx context.Context, recs []models.MeritRecord) error
}

// Notifier is told about awarded merits.
type Notifier interface {
	MeritAwarded(ctx context.Context, rec models.MeritRecord)
}

// SortKey selects the leaderboard ordering.
type SortKey string

const (
	SortTotal      SortKey = "total"
	SortUniversity SortKey = "university"
	SortFaculty    SortKey = "faculty"
	SortCollege    SortKey = "college"
	SortClub       SortKey = "club"
)

// sortKeys lists every leaderboard ordering; each is cached under its own key.
var sortKeys = []string{string(SortTotal), string(SortUniversity), string(SortFaculty), string(SortCollege), string(SortClub)}

// ParseSortKey maps a query value to a SortKey. Unknown values sort by total.
func ParseSortKey(s string) SortKey {
	switch k := SortKey(strings.ToLower(strings.TrimSpace(s))); k {
	case SortUniversity, SortFaculty, SortCollege, SortClub:
		return k
	}
	return SortTotal
}

func (k SortKey) points(e models.LeaderboardEntry) int {
	switch k {
	case SortUniversity:
		return e.UniversityMerit
	case SortFaculty:
		return e.FacultyMerit
	case SortCollege:
		return e.CollegeMerit
	case SortClub:
		return e.ClubMerit
	}
	return e.TotalPoints
}

// SortEntries orders entries by the selected points descending, then by
// student ID and finally user ID so equal scores always rank the same way.
func SortEntries(entries []models.LeaderboardEntry, key SortKey) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if pa, pb := key.points(a), key.points(b); pa != pb {
			return pa > pb
		}
		if a.StudentID != b.StudentID {
			return a.StudentID < b.StudentID
		}
		return a.ID.String() < b.ID.String()
	})
}

// Rank returns the 1-based position of id in entries sorted by total, or 1 when absent.
func Rank(entries []models.LeaderboardEntry, id uuid.UUID) int {
	for i, e := range entries {
		if e.ID == id {
			return i + 1
		}
	}
	return 1
}

// Progress compares a total against the target.
func Progress(total, target int) (percent int, achieved bool, remaining, exceeded int) {
	if target <= 0 {
		return 100, true, 0, total
	}
	percent = int(math.Round(float64(total) / float64(target) * 100))
	if percent > 100 {
		percent = 100
	}
	achieved = total >= target
	if achieved {
		return percent, true, 0, total - target
	}
	return percent, false, target - total, 0
}

// maxPoints caps a single award per category.
var maxPoints = map[models.Category]int{
	models.CategoryUniversity: 25,
	models.CategoryFaculty:    20,
	models.CategoryCollege:    15,
	models.CategoryClub:       10,
}

// MaxPoints returns the largest single award allowed in c.
func MaxPoints(c models.Category) int { return maxPoints[c] }

// defaultPoints is the bulk award weightage per category and merit type.
var defaultPoints = map[models.Category]map[models.MeritType]int{
	models.CategoryUniversity: {models.MeritParticipant: 8, models.MeritOrganizer: 12},
	models.CategoryFaculty:    {models.MeritParticipant: 6, models.MeritOrganizer: 10},
	models.CategoryCollege:    {models.MeritParticipant: 4, models.MeritOrganizer: 7},
	models.CategoryClub:       {models.MeritParticipant: 3, models.MeritOrganizer: 5},
}

// DefaultPoints returns the weightage for a merit type in category c.
func DefaultPoints(c models.Category, t models.MeritType) int {
	return defaultPoints[c][t]
}

// Options tunes aggregation.
type Options struct {
	TargetPoints   int
	DefaultLimit   int
	RecentWindow   time.Duration
	LeaderboardTTL time.Duration
}

// Service computes merit summaries and leaderboards and records awards.
type Service struct {
	store    Store
	cache    *cache.Cache
	notifier Notifier
	opts     Options
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates the merit service. c and notifier may be nil.
func NewService(store Store, c *cache.Cache, notifier Notifier, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.TargetPoints <= 0 {
		opts.TargetPoints = 50
	}
	if opts.RecentWindow <= 0 {
		opts.RecentWindow = 30 * 24 * time.Hour
	}
	if opts.LeaderboardTTL <= 0 {
		opts.LeaderboardTTL = 5 * time.Minute
	}
	return &Service{store: store, cache: c, notifier: notifier, opts: opts, logger: logger, now: time.Now}
}

// DefaultLimit is the leaderboard size used when the client sends none.
func (s *Service) DefaultLimit() int { return s.opts.DefaultLimit }

// Summarize builds a student's merit standing from the ledger.
func (s *Service) Summarize(ctx context.Context, studentID uuid.UUID) (*models.MeritSummary, error) {
	if _, err := s.store.Student(ctx, studentID); err != nil {
		return nil, studentNotFound(err)
	}
	records, err := s.store.StudentRecords(ctx, studentID)
	if err != nil {
		return nil, err
	}

	var totals models.CategoryTotals
	cutoff := s.now().Add(-s.opts.RecentWindow)
	recent := []models.MeritRecord{}
	for _, r := range records {
		totals.Add(r.Category, r.Points)
		if r.Date.After(cutoff) {
			recent = append(recent, r)
		}
	}
	sort.SliceStable(recent, func(i, j int) bool { return recent[i].Date.After(recent[j].Date) })

	standings, err := s.standings(ctx, SortTotal)
	if err != nil {
		return nil, err
	}

	total := totals.Total()
	percent, achieved, remaining, exceeded := Progress(total, s.opts.TargetPoints)
	return &models.MeritSummary{
		TotalPoints:        total,
		UniversityMerit:    totals.University,
		FacultyMerit:       totals.Faculty,
		CollegeMerit:       totals.College,
		ClubMerit:          totals.Club,
		RecentActivities:   len(recent),
		RecentRecords:      recent,
		TargetPoints:       s.opts.TargetPoints,
		ProgressPercentage: percent,
		TargetAchieved:     achieved,
		RemainingPoints:    remaining,
		ExceededPoints:     exceeded,
		Rank:               Rank(standings, studentID),
		TotalStudents:      len(standings),
	}, nil
}

// Leaderboard returns students ordered by key. limit 0 returns everyone.
func (s *Service) Leaderboard(ctx context.Context, key SortKey, limit int) ([]models.LeaderboardEntry, error) {
	if limit < 0 {
		return nil, apperr.New(apperr.ErrValidation, "limit must not be negative")
	}
	entries, err := s.standings(ctx, key)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Records returns one page of a student's ledger, newest first.
func (s *Service) Records(ctx context.Context, studentID uuid.UUID, page, limit int) ([]models.MeritRecord, int, error) {
	if _, err := s.store.Student(ctx, studentID); err != nil {
		return nil, 0, studentNotFound(err)
	}
	return s.store.ListRecords(ctx, studentID, page, limit)
}

// AwardInput describes a manual merit award.
type AwardInput struct {
	StudentID   uuid.UUID
	EventID     *uuid.UUID
	Category    models.Category
	Points      int
	Description string
	Date        *time.Time
	MeritType   models.MeritType
	CreatedBy   uuid.UUID
}

// Award appends one verified record to a student's ledger.
func (s *Service) Award(ctx context.Context, in AwardInput) (*models.MeritRecord, error) {
	if in.MeritType == "" {
		in.MeritType = models.MeritParticipant
	}
	if err := validateAward(in.Category, in.MeritType, in.Points); err != nil {
		return nil, err
	}
	if _, err := s.store.Student(ctx, in.StudentID); err != nil {
		return nil, studentNotFound(err)
	}
	if in.EventID != nil {
		if _, err := s.store.Event(ctx, *in.EventID); err != nil {
			return nil, eventNotFound(err)
		}
	}
	date := s.now()
	if in.Date != nil {
		date = *in.Date
	}
	by := in.CreatedBy
	rec := models.MeritRecord{
		StudentID:   in.StudentID,
		EventID:     in.EventID,
		Category:    in.Category,
		Points:      in.Points,
		Description: strings.TrimSpace(in.Description),
		Date:        date,
		IsVerified:  true,
		MeritType:   in.MeritType,
		CreatedBy:   &by,
	}
	recs := []models.MeritRecord{rec}
	if err := s.store.Append(ctx, recs); err != nil {
		return nil, err
	}
	s.afterAppend(ctx, recs)
	return &recs[0], nil
}

// BulkEntry is one student in a bulk award. Points nil uses the category weightage.
type BulkEntry struct {
	StudentID uuid.UUID
	MeritType models.MeritType
	Points    *int
}

// BulkAward credits several students for one event in a single transaction.
func (s *Service) BulkAward(ctx context.Context, eventID uuid.UUID, entries []BulkEntry, createdBy uuid.UUID) ([]models.MeritRecord, error) {
	if len(entries) == 0 {
		return nil, apperr.New(apperr.ErrValidation, "at least one student is required")
	}
	ev, err := s.store.Event(ctx, eventID)
	if err != nil {
		return nil, eventNotFound(err)
	}
	now := s.now()
	seen := make(map[uuid.UUID]bool, len(entries))
	recs := make([]models.MeritRecord, 0, len(entries))
	for _, e := range entries {
		if seen[e.StudentID] {
			return nil, apperr.New(apperr.ErrValidation, fmt.Sprintf("student %s listed twice", e.StudentID))
		}
		seen[e.StudentID] = true
		if e.MeritType == "" {
			e.MeritType = models.MeritParticipant
		}
		points := DefaultPoints(ev.Category, e.MeritType)
		if e.Points != nil {
			points = *e.Points
		}
		if err := validateAward(ev.Category, e.MeritType, points); err != nil {
			return nil, err
		}
		if _, err := s.store.Student(ctx, e.StudentID); err != nil {
			return nil, studentNotFound(err)
		}
		id, by := ev.ID, createdBy
		recs = append(recs, models.MeritRecord{
			StudentID:   e.StudentID,
			EventID:     &id,
			Category:    ev.Category,
			Points:      points,
			Description: fmt.Sprintf("%s (%s)", ev.Title, e.MeritType),
			Date:        now,
			IsVerified:  true,
			MeritType:   e.MeritType,
			CreatedBy:   &by,
		})
	}
	if err := s.store.Append(ctx, recs); err != nil {
		return nil, err
	}
	s.afterAppend(ctx, recs)
	return recs, nil
}

// Invalidate drops cached leaderboards.
func (s *Service) Invalidate(ctx context.Context) {
	if err := s.cache.Delete(ctx, sortKeys...); err != nil {
		s.logger.Warn("leaderboard cache invalidation failed", zap.Error(err))
	}
}

func (s *Service) afterAppend(ctx context.Context, recs []models.MeritRecord) {
	s.Invalidate(ctx)
	for _, rec := range recs {
		s.logger.Info("merit awarded",
			zap.String("student_id", rec.StudentID.String()),
			zap.String("category", string(rec.Category)),
			zap.Int("points", rec.Points),
		)
		if s.notifier != nil {
			s.notifier.MeritAwarded(ctx, rec)
		}
	}
}

// standings returns every student sorted by key, from cache when possible.
func (s *Service) standings(ctx context.Context, key SortKey) ([]models.LeaderboardEntry, error) {
	var entries []models.LeaderboardEntry
	err := s.cache.Get(ctx, string(key), &entries)
	if err == nil {
		return entries, nil
	}
	if !errors.Is(err, cache.ErrMiss) && !errors.Is(err, cache.ErrUnavailable) {
		s.logger.Warn("leaderboard cache read failed", zap.Error(err))
	}

	entries, err = s.store.Standings(ctx)
	if err != nil {
		return nil, err
	}
	SortEntries(entries, key)
	if err := s.cache.Set(ctx, string(key), entries, s.opts.LeaderboardTTL); err != nil {
		s.logger.Warn("leaderboard cache write failed", zap.Error(err))
	}
	return entries, nil
}

func validateAward(c models.Category, t models.MeritType, points int) error {
	if !c.Valid() {
		return apperr.New(apperr.ErrValidation, "invalid merit category")
	}
	if !t.Valid() {
		return apperr.New(apperr.ErrValidation, "invalid merit type")
	}
	if points <= 0 {
		return apperr.New(apperr.ErrValidation, "points must be positive")
	}
	if limit := MaxPoints(c); points > limit {
		return apperr.New(apperr.ErrValidation, fmt.Sprintf("points exceed the %d point limit for %s merits", limit, strings.ToLower(string(c))))
	}
	return nil
}

func studentNotFound(err error) error {
	if errors.Is(err, apperr.ErrNotFound) {
		return apperr.Wrap(apperr.ErrNotFound, "Student not found", err)
	}
	return err
}

func eventNotFound(err error) error {
	if errors.Is(err, apperr.ErrNotFound) {
		return apperr.Wrap(apperr.ErrNotFound, "Event not found", err)
	}
	return err
}
