package merits

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/meritrack/backend/internal/middleware"
	"github.com/meritrack/backend/internal/models"
	"github.com/meritrack/backend/pkg/validation"
)

func newMeritRouter(t *testing.T, svc *Service, user uuid.UUID) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if err := validation.RegisterGin(); err != nil {
		t.Fatal(err)
	}
	h := NewHandler(svc, nil)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ContextUserID, user)
		c.Set(middleware.ContextUserRole, string(models.RoleAdmin))
	})
	r.GET("/merits/summary", h.Summary)
	r.GET("/merits/records", h.Records)
	r.POST("/merits/records", h.Award)
	r.POST("/events/:id/merits", h.BulkAward)
	r.GET("/leaderboard", h.Leaderboard)
	return r
}

func call(t *testing.T, r http.Handler, method, path string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if out != nil {
		env := struct {
			Data any `json:"data"`
		}{Data: out}
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode: %v (%s)", err, w.Body)
		}
	}
	return w.Code
}

func TestSummaryEndpointDefaultsToCaller(t *testing.T) {
	svc, store, _ := newTestService(t, nil)
	me := store.addStudent("A1")
	store.record(me, models.CategoryUniversity, 20, testNow.AddDate(0, 0, -1))
	r := newMeritRouter(t, svc, me)

	var summary models.MeritSummary
	if code := call(t, r, http.MethodGet, "/merits/summary", nil, &summary); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if summary.TotalPoints != 20 || summary.RecentActivities != 1 || summary.ProgressPercentage != 40 || summary.Rank != 1 {
		t.Errorf("summary = %+v", summary)
	}
	if code := call(t, r, http.MethodGet, "/merits/summary?studentId="+uuid.NewString(), nil, nil); code != http.StatusNotFound {
		t.Errorf("unknown student: %d", code)
	}
	if code := call(t, r, http.MethodGet, "/merits/summary?studentId=abc", nil, nil); code != http.StatusBadRequest {
		t.Errorf("bad id: %d", code)
	}
}

func TestRecordsEndpoint(t *testing.T) {
	svc, store, _ := newTestService(t, nil)
	me := store.addStudent("A1")
	for i := 0; i < 3; i++ {
		store.record(me, models.CategoryClub, 2, testNow.AddDate(0, 0, -i))
	}
	r := newMeritRouter(t, svc, me)

	var page RecordsPage
	if code := call(t, r, http.MethodGet, "/merits/records?limit=2", nil, &page); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if page.Total != 3 || len(page.Records) != 2 || page.Pagination.TotalPages != 2 {
		t.Errorf("page = %+v", page)
	}
	if page.Records[0].Date != "2024-06-15" {
		t.Errorf("newest record date = %s", page.Records[0].Date)
	}
}

func TestAwardEndpoint(t *testing.T) {
	svc, store, notifier := newTestService(t, nil)
	student := store.addStudent("A1")
	r := newMeritRouter(t, svc, uuid.New())

	tests := []struct {
		name   string
		body   map[string]any
		status int
	}{
		{"valid", map[string]any{"studentId": student, "category": "CLUB", "points": 5, "description": "Volunteering", "date": "2024-06-01"}, http.StatusCreated},
		{"over category limit", map[string]any{"studentId": student, "category": "CLUB", "points": 11, "description": "x"}, http.StatusBadRequest},
		{"unknown category", map[string]any{"studentId": student, "category": "SPORTS", "points": 5, "description": "x"}, http.StatusBadRequest},
		{"zero points", map[string]any{"studentId": student, "category": "CLUB", "points": 0, "description": "x"}, http.StatusBadRequest},
		{"unknown student", map[string]any{"studentId": uuid.New(), "category": "CLUB", "points": 5, "description": "x"}, http.StatusNotFound},
		{"unknown event", map[string]any{"studentId": student, "eventId": uuid.New(), "category": "CLUB", "points": 5, "description": "x"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code := call(t, r, http.MethodPost, "/merits/records", tt.body, nil); code != tt.status {
				t.Errorf("status = %d, want %d", code, tt.status)
			}
		})
	}
	if len(notifier.awarded) != 1 || notifier.awarded[0].Date.Format(models.DateLayout) != "2024-06-01" {
		t.Errorf("awarded = %+v", notifier.awarded)
	}
}

func TestBulkAwardEndpoint(t *testing.T) {
	svc, store, _ := newTestService(t, nil)
	ev := models.Event{ID: uuid.New(), Title: "Open Day", Category: models.CategoryFaculty}
	store.events[ev.ID] = ev
	a, b := store.addStudent("A1"), store.addStudent("B2")
	r := newMeritRouter(t, svc, uuid.New())

	body := BulkAwardRequest{Entries: []BulkAwardEntry{
		{StudentID: a, MeritType: models.MeritOrganizer},
		{StudentID: b},
	}}
	var recs []models.MeritRecordView
	if code := call(t, r, http.MethodPost, "/events/"+ev.ID.String()+"/merits", body, &recs); code != http.StatusCreated {
		t.Fatalf("status = %d", code)
	}
	if len(recs) != 2 || recs[0].Points != 10 || recs[1].Points != 6 {
		t.Errorf("records = %+v", recs)
	}
	if code := call(t, r, http.MethodPost, "/events/"+ev.ID.String()+"/merits", BulkAwardRequest{}, nil); code != http.StatusBadRequest {
		t.Errorf("empty entries: %d", code)
	}
}

func TestLeaderboardEndpoint(t *testing.T) {
	svc, store, _ := newTestService(t, nil)
	for i, sid := range []string{"S1", "S2", "S3"} {
		store.record(store.addStudent(sid), models.CategoryUniversity, 10-i, testNow)
	}
	r := newMeritRouter(t, svc, uuid.New())

	var entries []models.LeaderboardEntry
	if code := call(t, r, http.MethodGet, "/leaderboard?limit=2", nil, &entries); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(entries) != 2 || entries[0].StudentID != "S1" {
		t.Errorf("entries = %+v", entries)
	}
	entries = nil
	call(t, r, http.MethodGet, "/leaderboard?limit=0&sortBy=club", nil, &entries)
	if len(entries) != 3 {
		t.Errorf("limit=0 returned %d entries", len(entries))
	}
	if code := call(t, r, http.MethodGet, "/leaderboard?limit=-1", nil, nil); code != http.StatusBadRequest {
		t.Errorf("negative limit: %d", code)
	}
}
