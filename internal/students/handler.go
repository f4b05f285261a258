// Package students serves student profile lookups.
package students

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meritrack/backend/internal/middleware"
	"github.com/meritrack/backend/internal/models"
	"github.com/meritrack/backend/pkg/apperr"
	"github.com/meritrack/backend/pkg/response"
)

// Users looks up accounts.
type Users interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByStudentID(ctx context.Context, studentID string) (*models.User, error)
}

// Handler handles student HTTP endpoints.
type Handler struct {
	users  Users
	logger *zap.Logger
}

// NewHandler creates a students handler.
func NewHandler(users Users, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{users: users, logger: logger}
}

// Me handles GET /students/me.
func (h *Handler) Me(c *gin.Context) {
	user, err := h.users.GetByID(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		h.fail(c, err, "User not found")
		return
	}
	response.OK(c, user)
}

// ByStudentID handles GET /students/:studentId, keyed by the university student number.
func (h *Handler) ByStudentID(c *gin.Context) {
	sid := strings.TrimSpace(c.Param("studentId"))
	if sid == "" {
		response.BadRequest(c, "student id is required")
		return
	}
	user, err := h.users.GetByStudentID(c.Request.Context(), sid)
	if err != nil {
		h.fail(c, err, "Student not found")
		return
	}
	response.OK(c, user)
}

// ByID handles GET /students/by-id/:id. Accounts without a complete academic
// profile are rejected.
func (h *Handler) ByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return
	}
	user, err := h.users.GetByID(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err, "Student not found")
		return
	}
	profile, ok := user.ToStudentProfile()
	if !ok {
		response.BadRequest(c, "User is not a student")
		return
	}
	response.OK(c, profile)
}

func (h *Handler) fail(c *gin.Context, err error, notFound string) {
	if errors.Is(err, apperr.ErrNotFound) {
		response.NotFound(c, notFound)
		return
	}
	h.logger.Error("student lookup failed", zap.Error(err))
	response.Error(c, err)
}
