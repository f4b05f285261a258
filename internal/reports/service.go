// Package reports queues merit standings exports and serves their download links.
package reports

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meritrack/backend/internal/models"
	"github.com/meritrack/backend/pkg/apperr"
	"github.com/meritrack/backend/pkg/queue"
)

// Store persists report rows.
type Store interface {
	Create(ctx context.Context, kind string, requestedBy *uuid.UUID) (*models.Report, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Report, error)
	SetStatus(ctx context.Context, id uuid.UUID, status, s3Key, errMsg string) error
}

// Enqueuer hands report jobs to the worker.
type Enqueuer interface {
	EnqueueReport(ctx context.Context, payload queue.ReportPayload) (string, error)
}

// Linker signs download URLs for finished reports.
type Linker interface {
	ReportDownloadURL(ctx context.Context, key string) (string, error)
}

// Service creates report requests and resolves their status.
type Service struct {
	store  Store
	jobs   Enqueuer
	links  Linker
	logger *zap.Logger
}

// NewService creates the report service. links may be nil when S3 is not configured.
func NewService(store Store, jobs Enqueuer, links Linker, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, jobs: jobs, links: links, logger: logger}
}

// RequestMerits records a pending merit export and queues it.
func (s *Service) RequestMerits(ctx context.Context, requestedBy uuid.UUID) (*models.Report, error) {
	if s.links == nil {
		return nil, apperr.New(apperr.ErrUnavailable, "Report storage is not configured")
	}
	rep, err := s.store.Create(ctx, models.ReportKindMerits, &requestedBy)
	if err != nil {
		return nil, err
	}
	if _, err := s.jobs.EnqueueReport(ctx, queue.ReportPayload{ReportID: rep.ID}); err != nil {
		s.logger.Error("enqueue report failed", zap.Error(err), zap.String("report_id", rep.ID.String()))
		if serr := s.store.SetStatus(ctx, rep.ID, models.ReportStatusFailed, "", "could not queue report"); serr != nil {
			s.logger.Warn("mark report failed", zap.Error(serr))
		}
		return nil, apperr.Wrap(apperr.ErrUnavailable, "Report queue unavailable", err)
	}
	return rep, nil
}

// Get returns a report with a fresh download URL once it is completed.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Report, error) {
	rep, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rep.Status == models.ReportStatusCompleted && rep.S3Key != "" && s.links != nil {
		url, err := s.links.ReportDownloadURL(ctx, rep.S3Key)
		if err != nil {
			return nil, apperr.Wrap(apperr.ErrUnavailable, "Could not sign download link", err)
		}
		rep.DownloadURL = url
	}
	return rep, nil
}
