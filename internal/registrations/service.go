package registrations

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meritrack/backend/internal/models"
	"github.com/meritrack/backend/pkg/apperr"
)

// Store opens per-event transactions and serves registration listings.
type Store interface {
	// WithEventLock runs fn in one transaction that holds the event's row lock.
	// It returns apperr.ErrNotFound when the event does not exist.
	WithEventLock(ctx context.Context, eventID uuid.UUID, fn func(tx Tx) error) error
	List(ctx context.Context, f ListFilter) ([]models.RegistrationDetail, int, error)
}

// Tx is the set of reads and writes allowed while an event is locked.
type Tx interface {
	Event() models.Event
	Student(ctx context.Context, studentID uuid.UUID) (*models.User, error)
	// Get returns the student's registration for the locked event or apperr.ErrNotFound.
	Get(ctx context.Context, studentID uuid.UUID) (*models.Registration, error)
	CountByStatus(ctx context.Context, status models.RegistrationStatus) (int, error)
	Insert(ctx context.Context, reg *models.Registration) error
	// Reactivate rewrites a cancelled row as a new signup at the back of the queue.
	Reactivate(ctx context.Context, reg *models.Registration) error
	SetStatus(ctx context.Context, id uuid.UUID, status models.RegistrationStatus, at time.Time) error
	// OldestWaitlisted returns the head of the waitlist or nil when it is empty.
	OldestWaitlisted(ctx context.Context) (*models.Registration, error)
	MarkAttended(ctx context.Context, id uuid.UUID, points int) error
	// AppendMerit inserts a ledger entry and credits the student's running total.
	AppendMerit(ctx context.Context, rec *models.MeritRecord) error
	// UpdateDetails writes the event's descriptive fields, leaving capacity and counts alone.
	UpdateDetails(ctx context.Context, ev *models.Event) error
	UpdateCapacity(ctx context.Context, capacity int) error
	// SyncRegisteredCount stores the current REGISTERED count on the event row.
	SyncRegisteredCount(ctx context.Context) (int, error)
}

// ListFilter narrows a registration listing.
type ListFilter struct {
	StudentID *uuid.UUID
	EventID   *uuid.UUID
	Page      int
	Limit     int
}

// Notifier is told about state changes students should hear about.
type Notifier interface {
	RegistrationPromoted(ctx context.Context, reg models.Registration, event models.Event)
	MeritAwarded(ctx context.Context, rec models.MeritRecord)
}

// Invalidator drops cached views derived from registrations or merits.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// Service applies admission, cancellation and attendance rules.
type Service struct {
	store        Store
	notifier     Notifier
	invalidators []Invalidator
	logger       *zap.Logger
	now          func() time.Time
}

// NewService creates the admission service. notifier may be nil.
func NewService(store Store, notifier Notifier, logger *zap.Logger, invalidators ...Invalidator) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:        store,
		notifier:     notifier,
		invalidators: invalidators,
		logger:       logger,
		now:          time.Now,
	}
}

// Admit decides the status of a new signup given the confirmed seat count.
func Admit(registered, capacity int) models.RegistrationStatus {
	if registered < capacity {
		return models.RegistrationRegistered
	}
	return models.RegistrationWaitlisted
}

// Register signs a student up for an event, confirming a seat when one is free
// and waitlisting otherwise.
func (s *Service) Register(ctx context.Context, eventID, studentID uuid.UUID) (*models.Registration, error) {
	var reg *models.Registration
	err := s.store.WithEventLock(ctx, eventID, func(tx Tx) error {
		reg = nil
		if _, err := tx.Student(ctx, studentID); err != nil {
			return notFoundAs(err, "Student not found")
		}
		ev := tx.Event()
		if !ev.Status.AcceptsRegistrations() {
			return apperr.New(apperr.ErrInvalidTransition, "Event is not open for registration")
		}

		existing, err := tx.Get(ctx, studentID)
		switch {
		case err == nil && existing.Status != models.RegistrationCancelled:
			return apperr.New(apperr.ErrDuplicateRegistration, "Already registered for this event")
		case err != nil && !errors.Is(err, apperr.ErrNotFound):
			return err
		}

		registered, err := tx.CountByStatus(ctx, models.RegistrationRegistered)
		if err != nil {
			return err
		}
		status := Admit(registered, ev.Capacity)

		if existing != nil {
			existing.Status = status
			existing.RegistrationDate = s.now()
			existing.AttendanceMarked = false
			existing.PointsAwarded = 0
			existing.CancelledAt = nil
			if err := tx.Reactivate(ctx, existing); err != nil {
				return err
			}
			reg = existing
		} else {
			reg = &models.Registration{
				EventID:          eventID,
				StudentID:        studentID,
				Status:           status,
				RegistrationDate: s.now(),
			}
			if err := tx.Insert(ctx, reg); err != nil {
				if errors.Is(err, apperr.ErrDuplicate) {
					return apperr.Wrap(apperr.ErrDuplicateRegistration, "Already registered for this event", err)
				}
				return err
			}
		}
		if status == models.RegistrationRegistered {
			_, err = tx.SyncRegisteredCount(ctx)
		}
		return err
	})
	if err != nil {
		return nil, notFoundAs(err, "Event not found")
	}
	s.logger.Info("registration created",
		zap.String("event_id", eventID.String()),
		zap.String("student_id", studentID.String()),
		zap.String("status", string(reg.Status)),
	)
	s.invalidate(ctx)
	return reg, nil
}

// CancelResult reports the cancelled registration and any waitlisted one promoted in its place.
type CancelResult struct {
	Cancelled models.Registration
	Promoted  *models.Registration
}

// Cancel withdraws a student's registration. Freeing a confirmed seat promotes
// the earliest waitlisted registration.
func (s *Service) Cancel(ctx context.Context, eventID, studentID uuid.UUID) (*CancelResult, error) {
	var res *CancelResult
	var ev models.Event
	err := s.store.WithEventLock(ctx, eventID, func(tx Tx) error {
		res = nil
		ev = tx.Event()
		reg, err := tx.Get(ctx, studentID)
		if err != nil {
			return notFoundAs(err, "Registration not found")
		}
		switch reg.Status {
		case models.RegistrationCancelled:
			return apperr.New(apperr.ErrNotFound, "Registration not found")
		case models.RegistrationAttended:
			return apperr.New(apperr.ErrInvalidTransition, "Cannot cancel registration after attendance has been marked")
		}

		prior := reg.Status
		now := s.now()
		if err := tx.SetStatus(ctx, reg.ID, models.RegistrationCancelled, now); err != nil {
			return err
		}
		reg.Status = models.RegistrationCancelled
		reg.CancelledAt = &now
		res = &CancelResult{Cancelled: *reg}

		if prior == models.RegistrationRegistered {
			registered, err := tx.CountByStatus(ctx, models.RegistrationRegistered)
			if err != nil {
				return err
			}
			if registered < ev.Capacity {
				next, err := tx.OldestWaitlisted(ctx)
				if err != nil {
					return err
				}
				if next != nil {
					if err := tx.SetStatus(ctx, next.ID, models.RegistrationRegistered, now); err != nil {
						return err
					}
					next.Status = models.RegistrationRegistered
					res.Promoted = next
				}
			}
		}
		_, err = tx.SyncRegisteredCount(ctx)
		return err
	})
	if err != nil {
		return nil, notFoundAs(err, "Event not found")
	}

	s.logger.Info("registration cancelled",
		zap.String("event_id", eventID.String()),
		zap.String("student_id", studentID.String()),
	)
	if res.Promoted != nil {
		s.logger.Info("waitlisted registration promoted",
			zap.String("event_id", eventID.String()),
			zap.String("student_id", res.Promoted.StudentID.String()),
		)
		if s.notifier != nil {
			s.notifier.RegistrationPromoted(ctx, *res.Promoted, ev)
		}
	}
	s.invalidate(ctx)
	return res, nil
}

// SetCapacity changes an event's capacity. Growing it promotes waitlisted
// registrations in FIFO order; shrinking below the confirmed count is rejected.
func (s *Service) SetCapacity(ctx context.Context, eventID uuid.UUID, capacity int) ([]models.Registration, error) {
	_, promoted, err := s.UpdateEvent(ctx, eventID, nil, &capacity)
	return promoted, err
}

// UpdateEvent applies edit to the event and, when capacity is non-nil, resizes it,
// all in one locked transaction. Nothing is written if either step fails.
func (s *Service) UpdateEvent(ctx context.Context, eventID uuid.UUID, edit func(ev *models.Event), capacity *int) (*models.Event, []models.Registration, error) {
	if capacity != nil && *capacity < 0 {
		return nil, nil, apperr.New(apperr.ErrValidation, "capacity must not be negative")
	}
	var promoted []models.Registration
	var ev models.Event
	err := s.store.WithEventLock(ctx, eventID, func(tx Tx) error {
		promoted = nil
		if edit != nil {
			ev = tx.Event()
			edit(&ev)
			if err := tx.UpdateDetails(ctx, &ev); err != nil {
				return err
			}
		}
		if capacity != nil {
			var err error
			if promoted, err = s.resize(ctx, tx, *capacity); err != nil {
				return err
			}
		}
		ev = tx.Event()
		return nil
	})
	if err != nil {
		return nil, nil, notFoundAs(err, "Event not found")
	}
	if s.notifier != nil {
		for _, reg := range promoted {
			s.notifier.RegistrationPromoted(ctx, reg, ev)
		}
	}
	s.invalidate(ctx)
	return &ev, promoted, nil
}

// resize sets the locked event's capacity and fills new seats from the waitlist.
func (s *Service) resize(ctx context.Context, tx Tx, capacity int) ([]models.Registration, error) {
	registered, err := tx.CountByStatus(ctx, models.RegistrationRegistered)
	if err != nil {
		return nil, err
	}
	if capacity < registered {
		return nil, apperr.New(apperr.ErrValidation, "capacity is below the number of confirmed registrations")
	}
	if err := tx.UpdateCapacity(ctx, capacity); err != nil {
		return nil, err
	}
	var promoted []models.Registration
	now := s.now()
	for ; registered < capacity; registered++ {
		next, err := tx.OldestWaitlisted(ctx)
		if err != nil {
			return nil, err
		}
		if next == nil {
			break
		}
		if err := tx.SetStatus(ctx, next.ID, models.RegistrationRegistered, now); err != nil {
			return nil, err
		}
		next.Status = models.RegistrationRegistered
		promoted = append(promoted, *next)
	}
	if _, err := tx.SyncRegisteredCount(ctx); err != nil {
		return nil, err
	}
	return promoted, nil
}

// SkippedStudent explains why attendance was not recorded for a student.
type SkippedStudent struct {
	StudentID uuid.UUID `json:"studentId"`
	Reason    string    `json:"reason"`
}

// AttendanceResult lists who was marked and who was skipped.
type AttendanceResult struct {
	Marked  []uuid.UUID      `json:"marked"`
	Skipped []SkippedStudent `json:"skipped"`
	Points  int              `json:"pointsPerStudent"`
}

// MarkAttendance records attendance for confirmed registrations and credits
// the event's points to each attendee, all in one transaction.
func (s *Service) MarkAttendance(ctx context.Context, eventID uuid.UUID, studentIDs []uuid.UUID, markedBy uuid.UUID) (*AttendanceResult, error) {
	var res *AttendanceResult
	var awarded []models.MeritRecord
	err := s.store.WithEventLock(ctx, eventID, func(tx Tx) error {
		ev := tx.Event()
		res = &AttendanceResult{Marked: []uuid.UUID{}, Skipped: []SkippedStudent{}, Points: ev.Points}
		awarded = nil
		if ev.Status == models.EventStatusCancelled {
			return apperr.New(apperr.ErrInvalidTransition, "Cannot mark attendance for a cancelled event")
		}
		now := s.now()
		seen := make(map[uuid.UUID]bool, len(studentIDs))
		for _, studentID := range studentIDs {
			if seen[studentID] {
				continue
			}
			seen[studentID] = true

			reg, err := tx.Get(ctx, studentID)
			if errors.Is(err, apperr.ErrNotFound) {
				res.Skipped = append(res.Skipped, SkippedStudent{StudentID: studentID, Reason: "not registered"})
				continue
			}
			if err != nil {
				return err
			}
			if reg.Status != models.RegistrationRegistered {
				res.Skipped = append(res.Skipped, SkippedStudent{StudentID: studentID, Reason: "registration is " + string(reg.Status)})
				continue
			}
			if err := tx.MarkAttended(ctx, reg.ID, ev.Points); err != nil {
				return err
			}
			res.Marked = append(res.Marked, studentID)
			if ev.Points <= 0 {
				continue
			}
			eventID := ev.ID
			by := markedBy
			rec := models.MeritRecord{
				StudentID:   studentID,
				EventID:     &eventID,
				Category:    ev.Category,
				Points:      ev.Points,
				Description: ev.Title,
				Date:        now,
				IsVerified:  true,
				MeritType:   models.MeritParticipant,
				CreatedBy:   &by,
			}
			if err := tx.AppendMerit(ctx, &rec); err != nil {
				return err
			}
			awarded = append(awarded, rec)
		}
		_, err := tx.SyncRegisteredCount(ctx)
		return err
	})
	if err != nil {
		return nil, notFoundAs(err, "Event not found")
	}
	s.logger.Info("attendance marked",
		zap.String("event_id", eventID.String()),
		zap.Int("marked", len(res.Marked)),
		zap.Int("skipped", len(res.Skipped)),
	)
	if s.notifier != nil {
		for _, rec := range awarded {
			s.notifier.MeritAwarded(ctx, rec)
		}
	}
	s.invalidate(ctx)
	return res, nil
}

// List returns registrations matching f.
func (s *Service) List(ctx context.Context, f ListFilter) ([]models.RegistrationDetail, int, error) {
	return s.store.List(ctx, f)
}

func (s *Service) invalidate(ctx context.Context) {
	for _, inv := range s.invalidators {
		inv.Invalidate(ctx)
	}
}

// notFoundAs gives a bare not-found error a client-facing message.
func notFoundAs(err error, message string) error {
	var ae *apperr.Error
	if errors.Is(err, apperr.ErrNotFound) && (!errors.As(err, &ae) || ae.Message == "not found") {
		return apperr.Wrap(apperr.ErrNotFound, message, err)
	}
	return err
}
