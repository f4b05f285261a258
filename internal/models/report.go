package models

import (
	"time"

	"github.com/google/uuid"
)

// Report statuses.
const (
	ReportStatusPending    = "pending"
	ReportStatusProcessing = "processing"
	ReportStatusCompleted  = "completed"
	ReportStatusFailed     = "failed"
)

// ReportKindMerits is the merit standings export.
const ReportKindMerits = "merits"

// Report is an asynchronously generated export stored in S3.
type Report struct {
	ID          uuid.UUID  `json:"id"`
	RequestedBy *uuid.UUID `json:"requestedBy,omitempty"`
	Kind        string     `json:"kind"`
	Status      string     `json:"status"`
	S3Key       string     `json:"-"`
	Error       string     `json:"error,omitempty"`
	DownloadURL string     `json:"downloadUrl,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}
