package registrations

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/meritrack/backend/internal/models"
	"github.com/meritrack/backend/pkg/apperr"
)

type recordingNotifier struct {
	mu       sync.Mutex
	promoted []models.Registration
	awarded  []models.MeritRecord
}

func (n *recordingNotifier) RegistrationPromoted(_ context.Context, reg models.Registration, _ models.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.promoted = append(n.promoted, reg)
}

func (n *recordingNotifier) MeritAwarded(_ context.Context, rec models.MeritRecord) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.awarded = append(n.awarded, rec)
}

type countingInvalidator struct{ n int }

func (c *countingInvalidator) Invalidate(context.Context) { c.n++ }

// newTestService returns a service whose clock advances one second per call.
func newTestService(t *testing.T) (*Service, *memStore, *recordingNotifier) {
	t.Helper()
	store := newMemStore()
	notifier := &recordingNotifier{}
	svc := NewService(store, notifier, nil)
	var mu sync.Mutex
	clock := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	}
	return svc, store, notifier
}

func TestAdmit(t *testing.T) {
	tests := []struct {
		registered, capacity int
		want                 models.RegistrationStatus
	}{
		{0, 1, models.RegistrationRegistered},
		{4, 5, models.RegistrationRegistered},
		{5, 5, models.RegistrationWaitlisted},
		{0, 0, models.RegistrationWaitlisted},
	}
	for _, tt := range tests {
		if got := Admit(tt.registered, tt.capacity); got != tt.want {
			t.Errorf("Admit(%d, %d) = %s, want %s", tt.registered, tt.capacity, got, tt.want)
		}
	}
}

func TestRegisterAdmitsUntilFullThenWaitlists(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	ev := store.addEvent(2)

	want := []models.RegistrationStatus{
		models.RegistrationRegistered,
		models.RegistrationRegistered,
		models.RegistrationWaitlisted,
		models.RegistrationWaitlisted,
	}
	for i, w := range want {
		reg, err := svc.Register(ctx, ev, store.addStudent())
		if err != nil {
			t.Fatalf("register %d: %v", i, err)
		}
		if reg.Status != w {
			t.Errorf("register %d: status = %s, want %s", i, reg.Status, w)
		}
		if reg.AttendanceMarked || reg.PointsAwarded != 0 {
			t.Errorf("register %d: fresh registration carries attendance", i)
		}
	}
	if got := store.event(ev).RegisteredCount; got != 2 {
		t.Errorf("registered_count = %d, want 2", got)
	}
}

func TestRegisterZeroCapacityWaitlists(t *testing.T) {
	svc, store, _ := newTestService(t)
	reg, err := svc.Register(context.Background(), store.addEvent(0), store.addStudent())
	if err != nil {
		t.Fatal(err)
	}
	if reg.Status != models.RegistrationWaitlisted {
		t.Errorf("status = %s", reg.Status)
	}
}

func TestRegisterErrors(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	ev := store.addEvent(1)
	student := store.addStudent()
	if _, err := svc.Register(ctx, ev, student); err != nil {
		t.Fatal(err)
	}

	_, err := svc.Register(ctx, ev, student)
	if !errors.Is(err, apperr.ErrDuplicateRegistration) || apperr.Message(err) != "Already registered for this event" {
		t.Errorf("duplicate: %v", err)
	}
	if store.count(ev, models.RegistrationRegistered) != 1 {
		t.Error("duplicate must not change the registration set")
	}

	_, err = svc.Register(ctx, uuid.New(), student)
	if !errors.Is(err, apperr.ErrNotFound) || apperr.Message(err) != "Event not found" {
		t.Errorf("missing event: %v", err)
	}

	_, err = svc.Register(ctx, ev, uuid.New())
	if !errors.Is(err, apperr.ErrNotFound) || apperr.Message(err) != "Student not found" {
		t.Errorf("missing student: %v", err)
	}
}

func TestRegisterClosedEvent(t *testing.T) {
	svc, store, _ := newTestService(t)
	ev := store.addEvent(5)
	store.mu.Lock()
	e := store.events[ev]
	e.Status = models.EventStatusCancelled
	store.events[ev] = e
	store.mu.Unlock()

	_, err := svc.Register(context.Background(), ev, store.addStudent())
	if !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("err = %v", err)
	}
}

func TestCancelPromotesOldestWaitlisted(t *testing.T) {
	svc, store, notifier := newTestService(t)
	ctx := context.Background()
	ev := store.addEvent(1)
	s1, s2, s3 := store.addStudent(), store.addStudent(), store.addStudent()
	for _, s := range []uuid.UUID{s1, s2, s3} {
		if _, err := svc.Register(ctx, ev, s); err != nil {
			t.Fatal(err)
		}
	}

	res, err := svc.Cancel(ctx, ev, s1)
	if err != nil {
		t.Fatal(err)
	}
	if res.Cancelled.Status != models.RegistrationCancelled || res.Cancelled.CancelledAt == nil {
		t.Errorf("cancelled = %+v", res.Cancelled)
	}
	if res.Promoted == nil || res.Promoted.StudentID != s2 {
		t.Fatalf("promoted = %+v, want student s2", res.Promoted)
	}
	if got := store.registration(ev, s2).Status; got != models.RegistrationRegistered {
		t.Errorf("s2 status = %s", got)
	}
	if got := store.registration(ev, s3).Status; got != models.RegistrationWaitlisted {
		t.Errorf("s3 status = %s", got)
	}
	if len(notifier.promoted) != 1 || notifier.promoted[0].StudentID != s2 {
		t.Errorf("notifications = %+v", notifier.promoted)
	}
	if store.event(ev).RegisteredCount != 1 {
		t.Errorf("registered_count = %d", store.event(ev).RegisteredCount)
	}
}

func TestCancelWaitlistedDoesNotPromote(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	ev := store.addEvent(1)
	s1, s2, s3 := store.addStudent(), store.addStudent(), store.addStudent()
	for _, s := range []uuid.UUID{s1, s2, s3} {
		if _, err := svc.Register(ctx, ev, s); err != nil {
			t.Fatal(err)
		}
	}
	res, err := svc.Cancel(ctx, ev, s2)
	if err != nil {
		t.Fatal(err)
	}
	if res.Promoted != nil {
		t.Errorf("unexpected promotion of %s", res.Promoted.StudentID)
	}
	if store.count(ev, models.RegistrationRegistered) != 1 {
		t.Error("confirmed set changed")
	}
}

func TestCancelErrors(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	ev := store.addEvent(3)
	student := store.addStudent()

	_, err := svc.Cancel(ctx, ev, student)
	if !errors.Is(err, apperr.ErrNotFound) || apperr.Message(err) != "Registration not found" {
		t.Errorf("not registered: %v", err)
	}

	if _, err := svc.Register(ctx, ev, student); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Cancel(ctx, ev, student); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Cancel(ctx, ev, student); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("cancel twice: %v", err)
	}

	attendee := store.addStudent()
	if _, err := svc.Register(ctx, ev, attendee); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.MarkAttendance(ctx, ev, []uuid.UUID{attendee}, uuid.New()); err != nil {
		t.Fatal(err)
	}
	_, err = svc.Cancel(ctx, ev, attendee)
	if !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Errorf("cancel attended: %v", err)
	}
	if got := store.registration(ev, attendee).Status; got != models.RegistrationAttended {
		t.Errorf("attended registration changed to %s", got)
	}
}

func TestReRegisterAfterCancelJoinsBackOfQueue(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	ev := store.addEvent(1)
	s1, s2, s3 := store.addStudent(), store.addStudent(), store.addStudent()
	for _, s := range []uuid.UUID{s1, s2, s3} {
		if _, err := svc.Register(ctx, ev, s); err != nil {
			t.Fatal(err)
		}
	}
	// s2 leaves the waitlist and rejoins behind s3.
	if _, err := svc.Cancel(ctx, ev, s2); err != nil {
		t.Fatal(err)
	}
	reg, err := svc.Register(ctx, ev, s2)
	if err != nil {
		t.Fatal(err)
	}
	if reg.Status != models.RegistrationWaitlisted {
		t.Fatalf("status = %s", reg.Status)
	}

	res, err := svc.Cancel(ctx, ev, s1)
	if err != nil {
		t.Fatal(err)
	}
	if res.Promoted == nil || res.Promoted.StudentID != s3 {
		t.Fatalf("promoted %+v, want s3", res.Promoted)
	}
}

func TestSetCapacity(t *testing.T) {
	svc, store, notifier := newTestService(t)
	ctx := context.Background()
	ev := store.addEvent(1)
	students := []uuid.UUID{store.addStudent(), store.addStudent(), store.addStudent(), store.addStudent()}
	for _, s := range students {
		if _, err := svc.Register(ctx, ev, s); err != nil {
			t.Fatal(err)
		}
	}

	promoted, err := svc.SetCapacity(ctx, ev, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(promoted) != 2 || promoted[0].StudentID != students[1] || promoted[1].StudentID != students[2] {
		t.Fatalf("promoted = %+v", promoted)
	}
	if len(notifier.promoted) != 2 {
		t.Errorf("notifications = %d", len(notifier.promoted))
	}
	if e := store.event(ev); e.Capacity != 3 || e.RegisteredCount != 3 {
		t.Errorf("event = capacity %d registered %d", e.Capacity, e.RegisteredCount)
	}

	if _, err := svc.SetCapacity(ctx, ev, 2); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("shrink below confirmed: %v", err)
	}
	if _, err := svc.SetCapacity(ctx, ev, -1); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("negative: %v", err)
	}
}

func TestUpdateEventAppliesDetailsAndCapacityTogether(t *testing.T) {
	svc, store, notifier := newTestService(t)
	ctx := context.Background()
	ev := store.addEvent(1)
	students := []uuid.UUID{store.addStudent(), store.addStudent(), store.addStudent()}
	for _, s := range students {
		if _, err := svc.Register(ctx, ev, s); err != nil {
			t.Fatal(err)
		}
	}
	rename := func(title string) func(*models.Event) {
		return func(e *models.Event) { e.Title = title }
	}
	capacity := func(n int) *int { return &n }

	updated, promoted, err := svc.UpdateEvent(ctx, ev, rename("Renamed"), capacity(2))
	if err != nil {
		t.Fatal(err)
	}
	if len(promoted) != 1 || promoted[0].StudentID != students[1] {
		t.Fatalf("promoted = %+v", promoted)
	}
	if updated.Title != "Renamed" || updated.Capacity != 2 || updated.RegisteredCount != 2 {
		t.Errorf("returned event = %+v", updated)
	}
	if e := store.event(ev); e.Title != "Renamed" || e.Capacity != 2 || e.RegisteredCount != 2 {
		t.Errorf("stored event = %+v", e)
	}
	if len(notifier.promoted) != 1 {
		t.Errorf("notifications = %d", len(notifier.promoted))
	}

	if _, _, err := svc.UpdateEvent(ctx, ev, rename("Shrunk"), capacity(1)); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("shrink below confirmed: %v", err)
	}
	if e := store.event(ev); e.Title != "Renamed" || e.Capacity != 2 {
		t.Errorf("rejected capacity kept other fields: %+v", e)
	}

	store.failDetails = true
	if _, _, err := svc.UpdateEvent(ctx, ev, rename("Lost"), capacity(3)); !errors.Is(err, apperr.ErrUnavailable) {
		t.Fatalf("failed detail write: %v", err)
	}
	store.failDetails = false
	if e := store.event(ev); e.Title != "Renamed" || e.Capacity != 2 || e.RegisteredCount != 2 {
		t.Errorf("failed detail write kept the resize: %+v", e)
	}
	if store.count(ev, models.RegistrationWaitlisted) != 1 || len(notifier.promoted) != 1 {
		t.Error("failed detail write promoted from the waitlist")
	}

	updated, promoted, err = svc.UpdateEvent(ctx, ev, rename("Details only"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(promoted) != 0 || updated.Capacity != 2 || updated.Title != "Details only" {
		t.Errorf("details-only update = %+v, promoted %d", updated, len(promoted))
	}
}

func TestMarkAttendance(t *testing.T) {
	svc, store, notifier := newTestService(t)
	ctx := context.Background()
	ev := store.addEvent(1)
	confirmed, waiting, stranger := store.addStudent(), store.addStudent(), store.addStudent()
	for _, s := range []uuid.UUID{confirmed, waiting} {
		if _, err := svc.Register(ctx, ev, s); err != nil {
			t.Fatal(err)
		}
	}

	res, err := svc.MarkAttendance(ctx, ev, []uuid.UUID{confirmed, waiting, stranger, confirmed}, uuid.New())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Marked) != 1 || res.Marked[0] != confirmed {
		t.Errorf("marked = %v", res.Marked)
	}
	if len(res.Skipped) != 2 {
		t.Errorf("skipped = %+v", res.Skipped)
	}
	reg := store.registration(ev, confirmed)
	if reg.Status != models.RegistrationAttended || !reg.AttendanceMarked || reg.PointsAwarded != 6 {
		t.Errorf("registration = %+v", reg)
	}
	if len(store.merits) != 1 || store.merits[0].Points != 6 || store.merits[0].Category != models.CategoryFaculty {
		t.Errorf("merits = %+v", store.merits)
	}
	if store.students[confirmed].TotalMeritPoints != 6 {
		t.Errorf("total = %d", store.students[confirmed].TotalMeritPoints)
	}
	if len(notifier.awarded) != 1 {
		t.Errorf("awards notified = %d", len(notifier.awarded))
	}
	// Attendance frees the confirmed seat count.
	if store.event(ev).RegisteredCount != 0 {
		t.Errorf("registered_count = %d", store.event(ev).RegisteredCount)
	}

	again, err := svc.MarkAttendance(ctx, ev, []uuid.UUID{confirmed}, uuid.New())
	if err != nil {
		t.Fatal(err)
	}
	if len(again.Marked) != 0 || len(store.merits) != 1 {
		t.Error("second attendance mark must not award again")
	}
}

func TestWriteInvalidatesCaches(t *testing.T) {
	store := newMemStore()
	inv := &countingInvalidator{}
	svc := NewService(store, nil, nil, inv)
	ctx := context.Background()
	ev := store.addEvent(1)
	s := store.addStudent()
	if _, err := svc.Register(ctx, ev, s); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Cancel(ctx, ev, s); err != nil {
		t.Fatal(err)
	}
	if inv.n != 2 {
		t.Errorf("invalidations = %d, want 2", inv.n)
	}
	if _, err := svc.Cancel(ctx, ev, s); err == nil || inv.n != 2 {
		t.Error("failed writes must not invalidate")
	}
}

func TestConcurrentRegistrationsNeverOverfill(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	const capacity, students = 5, 40
	ev := store.addEvent(capacity)

	ids := make([]uuid.UUID, students)
	for i := range ids {
		ids[i] = store.addStudent()
	}
	var wg sync.WaitGroup
	errs := make(chan error, students)
	for _, id := range ids {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			if _, err := svc.Register(ctx, ev, id); err != nil {
				errs <- err
			}
		}(id)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("register: %v", err)
	}

	if got := store.count(ev, models.RegistrationRegistered); got != capacity {
		t.Errorf("registered = %d, want %d", got, capacity)
	}
	if got := store.count(ev, models.RegistrationWaitlisted); got != students-capacity {
		t.Errorf("waitlisted = %d, want %d", got, students-capacity)
	}

	// Cancelling everyone confirmed drains the waitlist in order.
	var confirmed []uuid.UUID
	for _, id := range ids {
		if store.registration(ev, id).Status == models.RegistrationRegistered {
			confirmed = append(confirmed, id)
		}
	}
	for _, id := range confirmed {
		if _, err := svc.Cancel(ctx, ev, id); err != nil {
			t.Fatal(err)
		}
	}
	if got := store.count(ev, models.RegistrationRegistered); got != capacity {
		t.Errorf("after cancellations registered = %d, want %d", got, capacity)
	}
}

func TestListFilters(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	ev1, ev2 := store.addEvent(5), store.addEvent(5)
	s := store.addStudent()
	for _, ev := range []uuid.UUID{ev1, ev2} {
		if _, err := svc.Register(ctx, ev, s); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := svc.Register(ctx, ev1, store.addStudent()); err != nil {
		t.Fatal(err)
	}

	items, total, err := svc.List(ctx, ListFilter{StudentID: &s, Page: 1, Limit: 50})
	if err != nil || total != 2 || len(items) != 2 {
		t.Fatalf("by student: %d %d %v", total, len(items), err)
	}
	if items[0].EventID != ev2 {
		t.Error("newest registration should come first")
	}
	if _, total, _ := svc.List(ctx, ListFilter{EventID: &ev1, Page: 1, Limit: 1}); total != 2 {
		t.Errorf("by event total = %d", total)
	}
}
