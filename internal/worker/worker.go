package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meritrack/backend/internal/merits"
	"github.com/meritrack/backend/internal/models"
	"github.com/meritrack/backend/internal/reports"
	"github.com/meritrack/backend/pkg/queue"
	"github.com/meritrack/backend/pkg/storage"
)

// Jobs is the queue the processor drains.
type Jobs interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job, cause error) (deadLettered bool, err error)
	Requeue(ctx context.Context, job *queue.Job) error
}

// settleTimeout bounds the queue and status writes made after a job stops,
// which run even when the worker is shutting down.
const settleTimeout = 5 * time.Second

// Standings supplies the ranked leaderboard for an export.
type Standings interface {
	Leaderboard(ctx context.Context, key merits.SortKey, limit int) ([]models.LeaderboardEntry, error)
}

// Uploader stores a finished workbook.
type Uploader interface {
	UploadReport(ctx context.Context, key string, body io.Reader, size int64) error
}

// Notifier tells the requester that a report finished or failed.
type Notifier interface {
	ReportReady(ctx context.Context, report models.Report)
}

// ReportProcessor processes report jobs: build the workbook, upload to S3, update the row.
type ReportProcessor struct {
	reports   reports.Store
	standings Standings
	uploader  Uploader
	jobs      Jobs
	notifier  Notifier
	logger    *zap.Logger

	pollTimeout time.Duration
	backoff     time.Duration
	now         func() time.Time
}

// NewReportProcessor creates a report processor. notifier may be nil.
func NewReportProcessor(store reports.Store, standings Standings, uploader Uploader, jobs Jobs, notifier Notifier, logger *zap.Logger) *ReportProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportProcessor{
		reports:     store,
		standings:   standings,
		uploader:    uploader,
		jobs:        jobs,
		notifier:    notifier,
		logger:      logger,
		pollTimeout: queue.PollTimeout,
		backoff:     queue.RetryBackoff,
		now:         time.Now,
	}
}

// SetPollTimeout overrides how long one dequeue waits.
func (p *ReportProcessor) SetPollTimeout(d time.Duration) {
	if d > 0 {
		p.pollTimeout = d
	}
}

// errPermanent marks failures that retrying cannot fix.
var errPermanent = errors.New("permanent")

// Process executes one report job.
func (p *ReportProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeMeritReport {
		return fmt.Errorf("%w: unknown job type %s", errPermanent, job.Type)
	}
	var payload queue.ReportPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("%w: unmarshal payload: %v", errPermanent, err)
	}

	rep, err := p.reports.GetByID(ctx, payload.ReportID)
	if err != nil {
		return fmt.Errorf("load report %s: %w", payload.ReportID, err)
	}
	if rep.Status == models.ReportStatusCompleted {
		p.logger.Info("report already completed", zap.String("report_id", rep.ID.String()))
		return nil
	}
	if err := p.reports.SetStatus(ctx, rep.ID, models.ReportStatusProcessing, "", ""); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	entries, err := p.standings.Leaderboard(ctx, merits.SortTotal, 0)
	if err != nil {
		return fmt.Errorf("standings: %w", err)
	}
	buf, err := reports.BuildWorkbook(entries, p.now())
	if err != nil {
		return fmt.Errorf("build workbook: %w", err)
	}

	key := storage.ReportKey(rep.Kind, rep.ID.String())
	size := int64(buf.Len())
	if err := p.uploader.UploadReport(ctx, key, buf, size); err != nil {
		return fmt.Errorf("s3 upload: %w", err)
	}
	if err := p.reports.SetStatus(ctx, rep.ID, models.ReportStatusCompleted, key, ""); err != nil {
		p.logger.Error("update report result failed", zap.Error(err), zap.String("report_id", rep.ID.String()))
		return fmt.Errorf("update db: %w", err)
	}

	rep.Status, rep.S3Key = models.ReportStatusCompleted, key
	p.notify(ctx, *rep)
	p.logger.Info("report completed", zap.String("report_id", rep.ID.String()), zap.String("s3_key", key),
		zap.Int("students", len(entries)), zap.Int64("bytes", size))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *ReportProcessor) Run(ctx context.Context) {
	p.logger.Info("report worker started")
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("report worker stopping")
			return
		default:
		}

		job, err := p.jobs.Dequeue(ctx, p.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)), zap.Int("attempt", job.Attempt))
		if err := p.Process(ctx, job); err != nil {
			if ctx.Err() != nil && !errors.Is(err, errPermanent) {
				p.requeue(ctx, job)
				continue
			}
			p.fail(ctx, job, err)
			p.sleep(ctx)
		}
	}
}

// fail retries job or, once retries are used up or the error is permanent,
// parks it in the DLQ and marks the report failed.
func (p *ReportProcessor) fail(ctx context.Context, job *queue.Job, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()
	p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(cause))
	if errors.Is(cause, errPermanent) {
		job.Attempt = queue.MaxRetries
	}
	dead, err := p.jobs.Retry(ctx, job, cause)
	if err != nil {
		p.logger.Error("retry enqueue failed", zap.Error(err), zap.String("job_id", job.ID))
	}
	if !dead {
		return
	}

	var payload queue.ReportPayload
	if json.Unmarshal(job.Payload, &payload) != nil || payload.ReportID == uuid.Nil {
		return
	}
	if err := p.reports.SetStatus(ctx, payload.ReportID, models.ReportStatusFailed, "", cause.Error()); err != nil {
		p.logger.Warn("mark report failed", zap.Error(err), zap.String("report_id", payload.ReportID.String()))
		return
	}
	if rep, err := p.reports.GetByID(ctx, payload.ReportID); err == nil {
		p.notify(ctx, *rep)
	}
}

// requeue returns a job interrupted by shutdown to the queue and resets its
// report to pending so the next worker starts it over.
func (p *ReportProcessor) requeue(ctx context.Context, job *queue.Job) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()
	if err := p.jobs.Requeue(ctx, job); err != nil {
		p.logger.Error("requeue interrupted job failed", zap.Error(err), zap.String("job_id", job.ID))
		return
	}
	var payload queue.ReportPayload
	if json.Unmarshal(job.Payload, &payload) != nil || payload.ReportID == uuid.Nil {
		return
	}
	if err := p.reports.SetStatus(ctx, payload.ReportID, models.ReportStatusPending, "", ""); err != nil {
		p.logger.Warn("reset interrupted report", zap.Error(err), zap.String("report_id", payload.ReportID.String()))
	}
	p.logger.Info("interrupted job requeued", zap.String("job_id", job.ID), zap.String("report_id", payload.ReportID.String()))
}

func (p *ReportProcessor) notify(ctx context.Context, rep models.Report) {
	if p.notifier != nil {
		p.notifier.ReportReady(ctx, rep)
	}
}

func (p *ReportProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
