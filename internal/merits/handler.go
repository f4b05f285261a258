package merits

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meritrack/backend/internal/middleware"
	"github.com/meritrack/backend/internal/models"
	"github.com/meritrack/backend/pkg/response"
	"github.com/meritrack/backend/pkg/utils"
	"github.com/meritrack/backend/pkg/validation"
)

const (
	defaultRecordsLimit = 50
	maxRecordsLimit     = 200
)

// Aggregator is the part of Service the HTTP layer drives.
type Aggregator interface {
	Summarize(ctx context.Context, studentID uuid.UUID) (*models.MeritSummary, error)
	Leaderboard(ctx context.Context, key SortKey, limit int) ([]models.LeaderboardEntry, error)
	Records(ctx context.Context, studentID uuid.UUID, page, limit int) ([]models.MeritRecord, int, error)
	Award(ctx context.Context, in AwardInput) (*models.MeritRecord, error)
	BulkAward(ctx context.Context, eventID uuid.UUID, entries []BulkEntry, createdBy uuid.UUID) ([]models.MeritRecord, error)
	DefaultLimit() int
}

// AwardRequest is the body for POST /merits/records.
type AwardRequest struct {
	StudentID   uuid.UUID        `json:"studentId" binding:"required"`
	EventID     *uuid.UUID       `json:"eventId"`
	Category    models.Category  `json:"category" binding:"required,merit_category"`
	Points      int              `json:"points" binding:"required,min=1"`
	Description string           `json:"description" binding:"required,max=500"`
	Date        string           `json:"date" binding:"omitempty,date_only"`
	MeritType   models.MeritType `json:"meritType" binding:"omitempty,merit_type"`
}

// BulkAwardRequest is the body for POST /events/:id/merits.
type BulkAwardRequest struct {
	Entries []BulkAwardEntry `json:"entries" binding:"required,min=1,max=500,dive"`
}

// BulkAwardEntry is one student in a bulk award. Points defaults to the
// category weightage for the merit type.
type BulkAwardEntry struct {
	StudentID uuid.UUID        `json:"studentId" binding:"required"`
	MeritType models.MeritType `json:"meritType" binding:"omitempty,merit_type"`
	Points    *int             `json:"points" binding:"omitempty,min=1"`
}

// RecordsPage is the data of GET /merits/records.
type RecordsPage struct {
	Records    []models.MeritRecordView `json:"records"`
	Total      int                      `json:"total"`
	Pagination *response.Pagination     `json:"pagination"`
}

// Handler handles merit HTTP endpoints.
type Handler struct {
	svc    Aggregator
	logger *zap.Logger
}

// NewHandler creates a merits handler.
func NewHandler(svc Aggregator, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// studentParam returns ?studentId= or the caller's own id.
func studentParam(c *gin.Context) (uuid.UUID, bool) {
	s := c.Query("studentId")
	if s == "" {
		return middleware.UserID(c), true
	}
	id, err := uuid.Parse(s)
	if err != nil {
		response.BadRequest(c, "invalid student id")
		return uuid.Nil, false
	}
	return id, true
}

// Summary handles GET /merits/summary?studentId=.
func (h *Handler) Summary(c *gin.Context) {
	studentID, ok := studentParam(c)
	if !ok {
		return
	}
	summary, err := h.svc.Summarize(c.Request.Context(), studentID)
	if err != nil {
		h.logger.Warn("merit summary failed", zap.Error(err), zap.String("student_id", studentID.String()))
		response.Error(c, err)
		return
	}
	response.OK(c, summary)
}

// Records handles GET /merits/records?studentId=&page=&limit=.
func (h *Handler) Records(c *gin.Context) {
	studentID, ok := studentParam(c)
	if !ok {
		return
	}
	page, limit := utils.ParsePaging(c.Query("page"), c.Query("limit"), defaultRecordsLimit, maxRecordsLimit)
	recs, total, err := h.svc.Records(c.Request.Context(), studentID, page, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	views := make([]models.MeritRecordView, 0, len(recs))
	for _, r := range recs {
		views = append(views, r.View())
	}
	response.OK(c, RecordsPage{Records: views, Total: total, Pagination: response.NewPagination(total, page, limit)})
}

// Award handles POST /merits/records (admin).
func (h *Handler) Award(c *gin.Context) {
	var req AwardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+validation.Describe(err))
		return
	}
	in := AwardInput{
		StudentID:   req.StudentID,
		EventID:     req.EventID,
		Category:    req.Category,
		Points:      req.Points,
		Description: req.Description,
		MeritType:   req.MeritType,
		CreatedBy:   middleware.UserID(c),
	}
	if req.Date != "" {
		d, _ := time.Parse(models.DateLayout, req.Date)
		in.Date = &d
	}
	rec, err := h.svc.Award(c.Request.Context(), in)
	if err != nil {
		h.logger.Warn("award merit failed", zap.Error(err), zap.String("student_id", req.StudentID.String()))
		response.Error(c, err)
		return
	}
	response.Created(c, rec.View())
}

// BulkAward handles POST /events/:id/merits (admin).
func (h *Handler) BulkAward(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	var req BulkAwardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+validation.Describe(err))
		return
	}
	entries := make([]BulkEntry, 0, len(req.Entries))
	for _, e := range req.Entries {
		entries = append(entries, BulkEntry{StudentID: e.StudentID, MeritType: e.MeritType, Points: e.Points})
	}
	recs, err := h.svc.BulkAward(c.Request.Context(), eventID, entries, middleware.UserID(c))
	if err != nil {
		h.logger.Warn("bulk award failed", zap.Error(err), zap.String("event_id", eventID.String()))
		response.Error(c, err)
		return
	}
	views := make([]models.MeritRecordView, 0, len(recs))
	for _, r := range recs {
		views = append(views, r.View())
	}
	response.Created(c, views)
}

// Leaderboard handles GET /leaderboard?sortBy=&limit=. limit=0 returns every student.
func (h *Handler) Leaderboard(c *gin.Context) {
	limit := h.svc.DefaultLimit()
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			response.BadRequest(c, "invalid limit")
			return
		}
		limit = n
	}
	entries, err := h.svc.Leaderboard(c.Request.Context(), ParseSortKey(c.Query("sortBy")), limit)
	if err != nil {
		h.logger.Error("leaderboard failed", zap.Error(err))
		response.Error(c, err)
		return
	}
	response.OK(c, entries)
}
