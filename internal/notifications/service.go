// Package notifications stores per-user notifications and pushes them to open websockets.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meritrack/backend/internal/models"
)

const persistTimeout = 5 * time.Second

// Store persists notifications.
type Store interface {
	Create(ctx context.Context, n *models.Notification) error
	ListByUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit, offset int) ([]models.Notification, int, int, error)
	MarkRead(ctx context.Context, id, userID uuid.UUID) (*models.Notification, error)
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int, error)
}

// Pusher delivers an event to a user's live connections.
type Pusher interface {
	SendToUser(userID uuid.UUID, event string, payload interface{})
}

// Service records notifications and pushes them. Delivery problems are
// logged and never fail the operation that triggered them.
type Service struct {
	store  Store
	pusher Pusher
	logger *zap.Logger
}

// NewService creates a notification service. pusher may be nil.
func NewService(store Store, pusher Pusher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, pusher: pusher, logger: logger}
}

// RegistrationPromoted tells a student they moved off the waitlist.
func (s *Service) RegistrationPromoted(ctx context.Context, reg models.Registration, event models.Event) {
	s.notify(ctx, reg.StudentID, models.NotificationWaitlistPromoted,
		"You're off the waitlist",
		fmt.Sprintf("A seat opened up and you are now registered for %s on %s.", event.Title, event.Date.Format(models.DateLayout)),
		map[string]any{"registrationId": reg.ID, "eventId": event.ID})
}

// MeritAwarded tells a student about points added to their record.
func (s *Service) MeritAwarded(ctx context.Context, rec models.MeritRecord) {
	payload := map[string]any{"recordId": rec.ID, "points": rec.Points, "category": rec.Category}
	if rec.EventID != nil {
		payload["eventId"] = *rec.EventID
	}
	s.notify(ctx, rec.StudentID, models.NotificationMeritAwarded,
		"Merit points awarded",
		fmt.Sprintf("%d %s points: %s", rec.Points, strings.ToLower(string(rec.Category)), rec.Description),
		payload)
}

// ReportReady tells the requesting admin a report can be downloaded.
func (s *Service) ReportReady(ctx context.Context, report models.Report) {
	if report.RequestedBy == nil {
		return
	}
	title, body := "Report ready", "Your merit report is ready to download."
	if report.Status == models.ReportStatusFailed {
		title, body = "Report failed", "Your merit report could not be generated."
	}
	s.notify(ctx, *report.RequestedBy, models.NotificationReportReady, title, body,
		map[string]any{"reportId": report.ID, "status": report.Status})
}

func (s *Service) notify(ctx context.Context, userID uuid.UUID, kind, title, body string, payload map[string]any) {
	n := models.Notification{UserID: userID, Kind: kind, Title: title, Body: body}
	if raw, err := json.Marshal(payload); err == nil {
		n.Payload = raw
	}

	// The triggering request may already be finishing; the row should still land.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := s.store.Create(pctx, &n); err != nil {
		s.logger.Warn("persist notification failed", zap.Error(err), zap.String("user_id", userID.String()), zap.String("kind", kind))
		n.CreatedAt = time.Now()
	}
	if s.pusher != nil {
		s.pusher.SendToUser(userID, kind, n)
	}
}

// ListResult is one page of a user's notifications.
type ListResult struct {
	Notifications []models.Notification `json:"notifications"`
	Total         int                   `json:"-"`
	Unread        int                   `json:"unread"`
}

// List returns the user's notifications, newest first.
func (s *Service) List(ctx context.Context, userID uuid.UUID, unreadOnly bool, page, limit int) (*ListResult, error) {
	list, total, unread, err := s.store.ListByUser(ctx, userID, unreadOnly, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	return &ListResult{Notifications: list, Total: total, Unread: unread}, nil
}

// MarkRead marks one of the user's notifications as read.
func (s *Service) MarkRead(ctx context.Context, id, userID uuid.UUID) (*models.Notification, error) {
	return s.store.MarkRead(ctx, id, userID)
}

// MarkAllRead marks all of the user's notifications as read.
func (s *Service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.store.MarkAllRead(ctx, userID)
}
