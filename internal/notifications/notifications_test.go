package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/meritrack/backend/internal/middleware"
	"github.com/meritrack/backend/internal/models"
	"github.com/meritrack/backend/pkg/apperr"
)

type memStore struct {
	mu    sync.Mutex
	rows  []models.Notification
	clock time.Time
	fail  error
}

func (m *memStore) Create(ctx context.Context, n *models.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.clock = m.clock.Add(time.Second)
	n.ID, n.CreatedAt = uuid.New(), m.clock
	m.rows = append(m.rows, *n)
	return nil
}

func (m *memStore) ListByUser(_ context.Context, userID uuid.UUID, unreadOnly bool, limit, offset int) ([]models.Notification, int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var mine []models.Notification
	unread := 0
	for _, n := range m.rows {
		if n.UserID != userID {
			continue
		}
		if n.ReadAt == nil {
			unread++
		} else if unreadOnly {
			continue
		}
		mine = append(mine, n)
	}
	sort.Slice(mine, func(i, j int) bool { return mine[i].CreatedAt.After(mine[j].CreatedAt) })
	total := len(mine)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return mine[offset:end], total, unread, nil
}

func (m *memStore) MarkRead(_ context.Context, id, userID uuid.UUID) (*models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].ID == id && m.rows[i].UserID == userID {
			if m.rows[i].ReadAt == nil {
				at := m.clock
				m.rows[i].ReadAt = &at
			}
			n := m.rows[i]
			return &n, nil
		}
	}
	return nil, apperr.New(apperr.ErrNotFound, "Notification not found")
}

func (m *memStore) MarkAllRead(_ context.Context, userID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	changed := 0
	for i := range m.rows {
		if m.rows[i].UserID == userID && m.rows[i].ReadAt == nil {
			at := m.clock
			m.rows[i].ReadAt = &at
			changed++
		}
	}
	return changed, nil
}

type pushed struct {
	userID uuid.UUID
	event  string
	n      models.Notification
}

type recordingPusher struct {
	mu   sync.Mutex
	sent []pushed
}

func (p *recordingPusher) SendToUser(userID uuid.UUID, event string, payload interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, pushed{userID: userID, event: event, n: payload.(models.Notification)})
}

func TestPromotionIsPersistedAndPushed(t *testing.T) {
	store := &memStore{clock: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	pusher := &recordingPusher{}
	svc := NewService(store, pusher, nil)

	student := uuid.New()
	event := models.Event{ID: uuid.New(), Title: "Career Fair", Date: time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC)}
	reg := models.Registration{ID: uuid.New(), EventID: event.ID, StudentID: student}

	// A cancelled request context must not stop the row from being written.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc.RegistrationPromoted(ctx, reg, event)

	if len(store.rows) != 1 {
		t.Fatalf("rows = %d", len(store.rows))
	}
	row := store.rows[0]
	if row.Kind != models.NotificationWaitlistPromoted || row.UserID != student {
		t.Errorf("row = %+v", row)
	}
	var payload map[string]string
	if err := json.Unmarshal(row.Payload, &payload); err != nil || payload["eventId"] != event.ID.String() {
		t.Errorf("payload = %s", row.Payload)
	}
	if len(pusher.sent) != 1 || pusher.sent[0].event != models.NotificationWaitlistPromoted || pusher.sent[0].n.ID != row.ID {
		t.Errorf("pushed = %+v", pusher.sent)
	}
}

func TestPushStillHappensWhenPersistFails(t *testing.T) {
	store := &memStore{fail: errors.New("db down")}
	pusher := &recordingPusher{}
	svc := NewService(store, pusher, nil)

	eventID := uuid.New()
	svc.MeritAwarded(context.Background(), models.MeritRecord{
		ID: uuid.New(), StudentID: uuid.New(), EventID: &eventID,
		Category: models.CategoryClub, Points: 3, Description: "Volunteering",
	})
	if len(pusher.sent) != 1 {
		t.Fatalf("pushed = %d", len(pusher.sent))
	}
	if got := pusher.sent[0].n.Body; got != "3 club points: Volunteering" {
		t.Errorf("body = %q", got)
	}
}

func TestReportReadyTargetsRequester(t *testing.T) {
	store := &memStore{}
	svc := NewService(store, nil, nil)

	svc.ReportReady(context.Background(), models.Report{ID: uuid.New(), Status: models.ReportStatusCompleted})
	if len(store.rows) != 0 {
		t.Fatalf("report without requester notified %d rows", len(store.rows))
	}
	admin := uuid.New()
	svc.ReportReady(context.Background(), models.Report{ID: uuid.New(), RequestedBy: &admin, Status: models.ReportStatusFailed})
	if len(store.rows) != 1 || store.rows[0].UserID != admin || store.rows[0].Title != "Report failed" {
		t.Errorf("rows = %+v", store.rows)
	}
}

func TestHandlers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := &memStore{clock: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	svc := NewService(store, nil, nil)
	me, other := uuid.New(), uuid.New()
	for i := 0; i < 3; i++ {
		svc.MeritAwarded(context.Background(), models.MeritRecord{StudentID: me, Category: models.CategoryCollege, Points: i + 1, Description: "x"})
	}
	svc.MeritAwarded(context.Background(), models.MeritRecord{StudentID: other, Category: models.CategoryCollege, Points: 1, Description: "x"})

	h := NewHandler(svc, nil)
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set(middleware.ContextUserID, me) })
	r.GET("/notifications", h.List)
	r.POST("/notifications/:id/read", h.MarkRead)
	r.POST("/notifications/read-all", h.MarkAllRead)

	do := func(method, path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(method, path, nil))
		return w
	}
	type listBody struct {
		Data       ListResult `json:"data"`
		Pagination struct {
			TotalItems int `json:"totalItems"`
		} `json:"pagination"`
	}
	list := func(query string) listBody {
		t.Helper()
		w := do(http.MethodGet, "/notifications"+query)
		if w.Code != http.StatusOK {
			t.Fatalf("list status = %d", w.Code)
		}
		var body listBody
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatal(err)
		}
		return body
	}

	body := list("?limit=2")
	if body.Pagination.TotalItems != 3 || len(body.Data.Notifications) != 2 || body.Data.Unread != 3 {
		t.Fatalf("list = %+v", body)
	}
	newest := body.Data.Notifications[0]
	if newest.Body != "3 college points: x" {
		t.Errorf("newest = %+v", newest)
	}

	if w := do(http.MethodPost, "/notifications/"+newest.ID.String()+"/read"); w.Code != http.StatusOK {
		t.Errorf("mark read status = %d", w.Code)
	}
	if body := list("?unread=true"); body.Pagination.TotalItems != 2 || body.Data.Unread != 2 {
		t.Errorf("unread list = %+v", body)
	}

	var theirs uuid.UUID
	for _, n := range store.rows {
		if n.UserID == other {
			theirs = n.ID
		}
	}
	if w := do(http.MethodPost, "/notifications/"+theirs.String()+"/read"); w.Code != http.StatusNotFound {
		t.Errorf("other user's notification: %d", w.Code)
	}
	if w := do(http.MethodPost, "/notifications/nope/read"); w.Code != http.StatusBadRequest {
		t.Errorf("bad id: %d", w.Code)
	}

	if w := do(http.MethodPost, "/notifications/read-all"); w.Code != http.StatusOK {
		t.Errorf("read-all status = %d", w.Code)
	}
	if body := list(""); body.Data.Unread != 0 {
		t.Errorf("unread after read-all = %d", body.Data.Unread)
	}
}
