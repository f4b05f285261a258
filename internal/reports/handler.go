package reports

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meritrack/backend/internal/middleware"
	"github.com/meritrack/backend/pkg/response"
)

// Handler handles report HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a reports handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// RequestMerits handles POST /reports/merits. The export runs in the worker.
func (h *Handler) RequestMerits(c *gin.Context) {
	rep, err := h.svc.RequestMerits(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, rep)
}

// Get handles GET /reports/:id.
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid report id")
		return
	}
	rep, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		h.logger.Debug("get report failed", zap.Error(err), zap.String("report_id", id.String()))
		response.Error(c, err)
		return
	}
	response.OK(c, rep)
}
