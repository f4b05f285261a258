package events

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meritrack/backend/internal/models"
	"github.com/meritrack/backend/pkg/response"
	"github.com/meritrack/backend/pkg/storage"
	"github.com/meritrack/backend/pkg/utils"
	"github.com/meritrack/backend/pkg/validation"
)

const (
	defaultListLimit = 10
	maxListLimit     = 100
)

// Store is the event persistence the handler needs.
type Store interface {
	Create(ctx context.Context, ev *models.Event) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
	List(ctx context.Context, f ListFilter) ([]models.Event, int, error)
	SetImage(ctx context.Context, id uuid.UUID, url, key string) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// Editor applies an edit and an optional capacity change under the event lock,
// promoting waitlisted students in the same transaction.
type Editor interface {
	UpdateEvent(ctx context.Context, eventID uuid.UUID, edit func(ev *models.Event), capacity *int) (*models.Event, []models.Registration, error)
}

// ImageStore uploads event images.
type ImageStore interface {
	UploadEventImage(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error)
	DeleteEventImage(ctx context.Context, key string) error
}

// CreateRequest is the body for POST /events.
type CreateRequest struct {
	Title       string             `json:"title" binding:"required,max=200"`
	Description string             `json:"description" binding:"max=5000"`
	Date        string             `json:"date" binding:"required,date_only"`
	Time        string             `json:"time" binding:"max=50"`
	Location    string             `json:"location" binding:"required,max=200"`
	Organizer   string             `json:"organizer" binding:"max=200"`
	Category    models.Category    `json:"category" binding:"required,merit_category"`
	Points      int                `json:"points" binding:"min=0,max=100"`
	Capacity    int                `json:"capacity" binding:"min=0"`
	Status      models.EventStatus `json:"status" binding:"omitempty,event_status"`
}

// UpdateRequest is the body for PATCH /events/:id. Absent fields are left unchanged.
type UpdateRequest struct {
	Title       *string             `json:"title" binding:"omitempty,max=200"`
	Description *string             `json:"description" binding:"omitempty,max=5000"`
	Date        *string             `json:"date" binding:"omitempty,date_only"`
	Time        *string             `json:"time" binding:"omitempty,max=50"`
	Location    *string             `json:"location" binding:"omitempty,max=200"`
	Organizer   *string             `json:"organizer" binding:"omitempty,max=200"`
	Category    *models.Category    `json:"category" binding:"omitempty,merit_category"`
	Points      *int                `json:"points" binding:"omitempty,min=0,max=100"`
	Capacity    *int                `json:"capacity" binding:"omitempty,min=0"`
	Status      *models.EventStatus `json:"status" binding:"omitempty,event_status"`
}

// Handler handles event HTTP endpoints.
type Handler struct {
	store  Store
	editor Editor
	cache  *ListCache
	images ImageStore
	logger *zap.Logger
	now    func() time.Time
}

// NewHandler creates an events handler. images may be nil when S3 is not configured.
func NewHandler(store Store, editor Editor, cache *ListCache, images ImageStore, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, editor: editor, cache: cache, images: images, logger: logger, now: time.Now}
}

// List handles GET /events. refresh=1 bypasses the listing cache.
func (h *Handler) List(c *gin.Context) {
	var f ListFilter
	f.Page, f.Limit = utils.ParsePaging(c.Query("page"), c.Query("limit"), defaultListLimit, maxListLimit)
	if s := c.Query("category"); s != "" {
		f.Category = models.Category(strings.ToUpper(s))
		if !f.Category.Valid() {
			response.BadRequest(c, "invalid category")
			return
		}
	}
	if s := c.Query("status"); s != "" {
		f.Status = models.EventStatus(strings.ToUpper(s))
		if !f.Status.Valid() {
			response.BadRequest(c, "invalid status")
			return
		}
	}
	f.Search = strings.TrimSpace(c.Query("search"))
	refresh := c.Query("refresh") == "1" || c.Query("refresh") == "true"

	page, fromCache, err := h.cache.Fetch(c.Request.Context(), Key(f), refresh, func(ctx context.Context) (*Page, error) {
		list, total, err := h.store.List(ctx, f)
		if err != nil {
			return nil, err
		}
		views := make([]models.EventView, 0, len(list))
		for _, ev := range list {
			views = append(views, ev.View())
		}
		return &Page{Events: views, Total: total}, nil
	})
	if err != nil {
		h.logger.Error("list events failed", zap.Error(err))
		response.Error(c, err)
		return
	}
	if fromCache {
		c.Header("X-Cache", "HIT")
	} else {
		c.Header("X-Cache", "MISS")
	}
	response.Page(c, page.Events, response.NewPagination(page.Total, f.Page, f.Limit))
}

// GetByID handles GET /events/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	ev, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, ev.View())
}

// Create handles POST /events (admin).
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+validation.Describe(err))
		return
	}
	date, _ := time.Parse(models.DateLayout, req.Date)
	status := req.Status
	if status == "" {
		status = models.EventStatusUpcoming
	}
	ev := &models.Event{
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Date:        date,
		Time:        req.Time,
		Location:    req.Location,
		Organizer:   req.Organizer,
		Category:    req.Category,
		Points:      req.Points,
		Capacity:    req.Capacity,
		Status:      status,
	}
	if err := h.store.Create(c.Request.Context(), ev); err != nil {
		h.logger.Error("create event failed", zap.Error(err))
		response.Error(c, err)
		return
	}
	h.cache.Invalidate(c.Request.Context())
	h.logger.Info("event created", zap.String("event_id", ev.ID.String()))
	response.Created(c, ev.View())
}

// Update handles PATCH /events/:id (admin). Field changes and a capacity change
// commit together; freed seats are filled from the waitlist.
func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+validation.Describe(err))
		return
	}
	ctx := c.Request.Context()
	updated, promoted, err := h.editor.UpdateEvent(ctx, id, req.apply, req.Capacity)
	if err != nil {
		h.logger.Error("update event failed", zap.Error(err), zap.String("event_id", id.String()))
		response.Error(c, err)
		return
	}
	h.cache.Invalidate(ctx)
	h.logger.Info("event updated", zap.String("event_id", id.String()), zap.Int("promoted", len(promoted)))
	response.OK(c, updated.View())
}

func (req *UpdateRequest) apply(ev *models.Event) {
	if req.Title != nil {
		ev.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		ev.Description = *req.Description
	}
	if req.Date != nil {
		ev.Date, _ = time.Parse(models.DateLayout, *req.Date)
	}
	if req.Time != nil {
		ev.Time = *req.Time
	}
	if req.Location != nil {
		ev.Location = *req.Location
	}
	if req.Organizer != nil {
		ev.Organizer = *req.Organizer
	}
	if req.Category != nil {
		ev.Category = *req.Category
	}
	if req.Points != nil {
		ev.Points = *req.Points
	}
	if req.Status != nil {
		ev.Status = *req.Status
	}
}

// Delete handles DELETE /events/:id (admin).
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	ctx := c.Request.Context()
	ev, err := h.store.GetByID(ctx, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.store.Delete(ctx, id); err != nil {
		h.logger.Error("delete event failed", zap.Error(err), zap.String("event_id", id.String()))
		response.Error(c, err)
		return
	}
	if ev.ImageKey != nil && h.images != nil {
		if err := h.images.DeleteEventImage(ctx, *ev.ImageKey); err != nil {
			h.logger.Warn("delete event image failed", zap.Error(err), zap.String("event_id", id.String()))
		}
	}
	h.cache.Invalidate(ctx)
	response.NoContent(c)
}

// UploadImage handles POST /events/:id/image (admin, multipart field "image").
func (h *Handler) UploadImage(c *gin.Context) {
	if h.images == nil {
		response.ServiceUnavailable(c, "image storage is not configured")
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	file, err := c.FormFile("image")
	if err != nil {
		response.BadRequest(c, "image file is required")
		return
	}
	if file.Size > storage.MaxImageSize {
		response.BadRequest(c, "image exceeds 5MB")
		return
	}
	contentType := file.Header.Get("Content-Type")
	if !storage.ValidateImageType(contentType, file.Filename) {
		response.BadRequest(c, "image must be JPEG, PNG or WebP")
		return
	}
	if _, ok := storage.AllowedImageTypes[strings.ToLower(contentType)]; !ok {
		contentType = storage.ContentTypeForFilename(file.Filename)
	}

	ctx := c.Request.Context()
	ev, err := h.store.GetByID(ctx, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	f, err := file.Open()
	if err != nil {
		response.BadRequest(c, "cannot read image")
		return
	}
	defer f.Close()

	key := storage.EventImageKey(id.String(), file.Filename, h.now())
	url, err := h.images.UploadEventImage(ctx, key, contentType, f, file.Size)
	if err != nil {
		h.logger.Error("upload event image failed", zap.Error(err), zap.String("event_id", id.String()))
		response.ServiceUnavailable(c, "failed to upload image")
		return
	}
	if err := h.store.SetImage(ctx, id, url, key); err != nil {
		response.Error(c, err)
		return
	}
	if ev.ImageKey != nil && *ev.ImageKey != key {
		if err := h.images.DeleteEventImage(ctx, *ev.ImageKey); err != nil {
			h.logger.Warn("delete replaced image failed", zap.Error(err), zap.String("event_id", id.String()))
		}
	}
	h.cache.Invalidate(ctx)
	ev.ImageURL, ev.ImageKey = &url, &key
	response.OK(c, ev.View())
}
