package registrations

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meritrack/backend/internal/models"
	"github.com/meritrack/backend/pkg/apperr"
)

// memStore is an in-memory Store. One mutex stands in for the event row lock
// and every transaction works on copies that are committed only on success.
type memStore struct {
	mu       sync.Mutex
	events   map[uuid.UUID]models.Event
	students map[uuid.UUID]models.User
	regs     []models.Registration
	merits   []models.MeritRecord
	seq      int64

	// failDetails makes UpdateDetails fail like a dropped connection.
	failDetails bool
}

func newMemStore() *memStore {
	return &memStore{events: map[uuid.UUID]models.Event{}, students: map[uuid.UUID]models.User{}}
}

func (m *memStore) addEvent(capacity int) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev := models.Event{
		ID: uuid.New(), Title: "Tech Talk", Category: models.CategoryFaculty,
		Points: 6, Capacity: capacity, Status: models.EventStatusUpcoming,
	}
	m.events[ev.ID] = ev
	return ev.ID
}

func (m *memStore) addStudent() uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := models.User{ID: uuid.New(), Role: models.RoleStudent}
	m.students[u.ID] = u
	return u.ID
}

func (m *memStore) registration(eventID, studentID uuid.UUID) *models.Registration {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.regs {
		if r.EventID == eventID && r.StudentID == studentID {
			r := r
			return &r
		}
	}
	return nil
}

func (m *memStore) count(eventID uuid.UUID, status models.RegistrationStatus) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.regs {
		if r.EventID == eventID && r.Status == status {
			n++
		}
	}
	return n
}

func (m *memStore) event(id uuid.UUID) models.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events[id]
}

func (m *memStore) WithEventLock(_ context.Context, eventID uuid.UUID, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[eventID]
	if !ok {
		return apperr.ErrNotFound
	}
	tx := &memTx{
		store:    m,
		event:    ev,
		regs:     append([]models.Registration(nil), m.regs...),
		merits:   append([]models.MeritRecord(nil), m.merits...),
		students: make(map[uuid.UUID]models.User, len(m.students)),
		seq:      m.seq,
	}
	for id, u := range m.students {
		tx.students[id] = u
	}
	if err := fn(tx); err != nil {
		return err
	}
	m.events[eventID] = tx.event
	m.regs = tx.regs
	m.merits = tx.merits
	m.students = tx.students
	m.seq = tx.seq
	return nil
}

func (m *memStore) List(_ context.Context, f ListFilter) ([]models.RegistrationDetail, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []models.Registration
	for _, r := range m.regs {
		if f.StudentID != nil && r.StudentID != *f.StudentID {
			continue
		}
		if f.EventID != nil && r.EventID != *f.EventID {
			continue
		}
		matched = append(matched, r)
	}
	sort.SliceStable(matched, func(i, j int) bool { return queuedBefore(&matched[j], &matched[i]) })
	total := len(matched)
	if f.Limit > 0 {
		start := min((max(f.Page, 1)-1)*f.Limit, total)
		matched = matched[start:min(start+f.Limit, total)]
	}
	out := make([]models.RegistrationDetail, 0, len(matched))
	for _, r := range matched {
		view := m.events[r.EventID].View()
		out = append(out, models.RegistrationDetail{RegistrationView: r.View(), Event: &view})
	}
	return out, total, nil
}

type memTx struct {
	store    *memStore
	event    models.Event
	regs     []models.Registration
	merits   []models.MeritRecord
	students map[uuid.UUID]models.User
	seq      int64
}

func (t *memTx) Event() models.Event { return t.event }

func (t *memTx) Student(_ context.Context, id uuid.UUID) (*models.User, error) {
	u, ok := t.students[id]
	if !ok || u.Role != models.RoleStudent {
		return nil, apperr.ErrNotFound
	}
	return &u, nil
}

func (t *memTx) find(pred func(r *models.Registration) bool) *models.Registration {
	for i := range t.regs {
		if t.regs[i].EventID == t.event.ID && pred(&t.regs[i]) {
			return &t.regs[i]
		}
	}
	return nil
}

func (t *memTx) Get(_ context.Context, studentID uuid.UUID) (*models.Registration, error) {
	r := t.find(func(r *models.Registration) bool { return r.StudentID == studentID })
	if r == nil {
		return nil, apperr.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (t *memTx) CountByStatus(_ context.Context, status models.RegistrationStatus) (int, error) {
	n := 0
	for _, r := range t.regs {
		if r.EventID == t.event.ID && r.Status == status {
			n++
		}
	}
	return n, nil
}

func (t *memTx) Insert(_ context.Context, reg *models.Registration) error {
	if t.find(func(r *models.Registration) bool { return r.StudentID == reg.StudentID }) != nil {
		return apperr.ErrDuplicate
	}
	t.seq++
	reg.ID = uuid.New()
	reg.Seq = t.seq
	reg.UpdatedAt = reg.RegistrationDate
	t.regs = append(t.regs, *reg)
	return nil
}

func (t *memTx) Reactivate(_ context.Context, reg *models.Registration) error {
	r := t.find(func(r *models.Registration) bool { return r.ID == reg.ID })
	if r == nil {
		return apperr.ErrNotFound
	}
	t.seq++
	reg.Seq = t.seq
	*r = *reg
	return nil
}

func (t *memTx) SetStatus(_ context.Context, id uuid.UUID, status models.RegistrationStatus, at time.Time) error {
	r := t.find(func(r *models.Registration) bool { return r.ID == id })
	if r == nil {
		return apperr.ErrNotFound
	}
	r.Status = status
	r.CancelledAt = nil
	if status == models.RegistrationCancelled {
		r.CancelledAt = &at
	}
	return nil
}

// queuedBefore mirrors the ORDER BY registration_date, seq of the waitlist query.
func queuedBefore(a, b *models.Registration) bool {
	if !a.RegistrationDate.Equal(b.RegistrationDate) {
		return a.RegistrationDate.Before(b.RegistrationDate)
	}
	return a.Seq < b.Seq
}

func (t *memTx) OldestWaitlisted(_ context.Context) (*models.Registration, error) {
	var head *models.Registration
	for i := range t.regs {
		r := &t.regs[i]
		if r.EventID != t.event.ID || r.Status != models.RegistrationWaitlisted {
			continue
		}
		if head == nil || queuedBefore(r, head) {
			head = r
		}
	}
	if head == nil {
		return nil, nil
	}
	cp := *head
	return &cp, nil
}

func (t *memTx) MarkAttended(_ context.Context, id uuid.UUID, points int) error {
	r := t.find(func(r *models.Registration) bool { return r.ID == id })
	if r == nil || r.Status != models.RegistrationRegistered {
		return nil
	}
	r.Status = models.RegistrationAttended
	r.AttendanceMarked = true
	r.PointsAwarded = points
	return nil
}

func (t *memTx) AppendMerit(_ context.Context, rec *models.MeritRecord) error {
	u, ok := t.students[rec.StudentID]
	if !ok {
		return apperr.ErrNotFound
	}
	rec.ID = uuid.New()
	t.merits = append(t.merits, *rec)
	u.TotalMeritPoints += rec.Points
	t.students[rec.StudentID] = u
	return nil
}

func (t *memTx) UpdateDetails(_ context.Context, ev *models.Event) error {
	if t.store.failDetails {
		return apperr.New(apperr.ErrUnavailable, "database unavailable")
	}
	ev.ID = t.event.ID
	ev.Capacity, ev.RegisteredCount = t.event.Capacity, t.event.RegisteredCount
	t.event = *ev
	return nil
}

func (t *memTx) UpdateCapacity(_ context.Context, capacity int) error {
	t.event.Capacity = capacity
	return nil
}

func (t *memTx) SyncRegisteredCount(ctx context.Context) (int, error) {
	n, _ := t.CountByStatus(ctx, models.RegistrationRegistered)
	t.event.RegisteredCount = n
	return n, nil
}
