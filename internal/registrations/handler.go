package registrations

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meritrack/backend/internal/middleware"
	"github.com/meritrack/backend/internal/models"
	"github.com/meritrack/backend/pkg/response"
	"github.com/meritrack/backend/pkg/utils"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Admission is the part of Service the HTTP layer drives.
type Admission interface {
	Register(ctx context.Context, eventID, studentID uuid.UUID) (*models.Registration, error)
	Cancel(ctx context.Context, eventID, studentID uuid.UUID) (*CancelResult, error)
	MarkAttendance(ctx context.Context, eventID uuid.UUID, studentIDs []uuid.UUID, markedBy uuid.UUID) (*AttendanceResult, error)
	List(ctx context.Context, f ListFilter) ([]models.RegistrationDetail, int, error)
}

// AttendanceRequest is the body for POST /events/:id/attendance.
type AttendanceRequest struct {
	StudentIDs []uuid.UUID `json:"studentIds" binding:"required,min=1,max=500"`
}

// Handler handles registration HTTP endpoints.
type Handler struct {
	svc    Admission
	logger *zap.Logger
}

// NewHandler creates a registrations handler.
func NewHandler(svc Admission, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Register handles POST /events/:id/register for the signed-in student.
func (h *Handler) Register(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	studentID := middleware.UserID(c)
	reg, err := h.svc.Register(c.Request.Context(), eventID, studentID)
	if err != nil {
		h.logger.Warn("register failed", zap.Error(err),
			zap.String("event_id", eventID.String()), zap.String("student_id", studentID.String()))
		response.Error(c, err)
		return
	}

	view := reg.View()
	view.Status = reg.Status.Label()
	message := "Successfully registered for the event"
	if reg.Status == models.RegistrationWaitlisted {
		message = "Added to the waitlist for the event"
	}
	response.OKMessage(c, message, view)
}

// Cancel handles POST /events/:id/cancel. Administrators may cancel on behalf
// of a student with ?studentId=.
func (h *Handler) Cancel(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	studentID := middleware.UserID(c)
	if s := c.Query("studentId"); s != "" && middleware.IsAdmin(c) {
		if studentID, err = uuid.Parse(s); err != nil {
			response.BadRequest(c, "invalid student id")
			return
		}
	}

	res, err := h.svc.Cancel(c.Request.Context(), eventID, studentID)
	if err != nil {
		h.logger.Warn("cancel failed", zap.Error(err),
			zap.String("event_id", eventID.String()), zap.String("student_id", studentID.String()))
		response.Error(c, err)
		return
	}
	data := gin.H{"registration": res.Cancelled.View()}
	if res.Promoted != nil {
		data["promoted"] = res.Promoted.View()
	}
	response.OKMessage(c, "Registration cancelled successfully", data)
}

// MarkAttendance handles POST /events/:id/attendance (admin).
func (h *Handler) MarkAttendance(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	var req AttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	res, err := h.svc.MarkAttendance(c.Request.Context(), eventID, req.StudentIDs, middleware.UserID(c))
	if err != nil {
		h.logger.Error("mark attendance failed", zap.Error(err), zap.String("event_id", eventID.String()))
		response.Error(c, err)
		return
	}
	response.OK(c, res)
}

// List handles GET /registrations. With eventId alone every registration of
// the event is returned; otherwise results are filtered by studentId, which
// defaults to the caller.
func (h *Handler) List(c *gin.Context) {
	var f ListFilter
	f.Page, f.Limit = utils.ParsePaging(c.Query("page"), c.Query("limit"), defaultListLimit, maxListLimit)

	var studentID *uuid.UUID
	if s := c.Query("studentId"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			response.BadRequest(c, "invalid student id")
			return
		}
		studentID = &id
	}
	if s := c.Query("eventId"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			response.BadRequest(c, "invalid event id")
			return
		}
		f.EventID = &id
		f.StudentID = studentID
	} else {
		if studentID == nil {
			me := middleware.UserID(c)
			studentID = &me
		}
		f.StudentID = studentID
	}

	items, total, err := h.svc.List(c.Request.Context(), f)
	if err != nil {
		h.logger.Error("list registrations failed", zap.Error(err))
		response.Error(c, err)
		return
	}
	response.Page(c, items, response.NewPagination(total, f.Page, f.Limit))
}
