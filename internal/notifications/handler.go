package notifications

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meritrack/backend/internal/middleware"
	"github.com/meritrack/backend/pkg/response"
	"github.com/meritrack/backend/pkg/utils"
)

// Handler handles notification HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a notifications handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// List handles GET /notifications?unread=true&page=&limit=.
func (h *Handler) List(c *gin.Context) {
	page, limit := utils.ParsePaging(c.Query("page"), c.Query("limit"), 20, 100)
	unreadOnly := c.Query("unread") == "true" || c.Query("unread") == "1"
	res, err := h.svc.List(c.Request.Context(), middleware.UserID(c), unreadOnly, page, limit)
	if err != nil {
		h.logger.Error("list notifications failed", zap.Error(err))
		response.Error(c, err)
		return
	}
	response.Page(c, res, response.NewPagination(res.Total, page, limit))
}

// MarkRead handles POST /notifications/:id/read.
func (h *Handler) MarkRead(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid notification id")
		return
	}
	n, err := h.svc.MarkRead(c.Request.Context(), id, middleware.UserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, n)
}

// MarkAllRead handles POST /notifications/read-all.
func (h *Handler) MarkAllRead(c *gin.Context) {
	n, err := h.svc.MarkAllRead(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		h.logger.Error("mark all notifications read failed", zap.Error(err))
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"updated": n})
}
