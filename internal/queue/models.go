package queue

import (
	"fmt"
	"strings"
	"time"
)

// Kind names the work a job performs.
type Kind string

const (
	// KindProcess runs Submit (or Resume) for an asset: the status transition,
	// compression, and finalization.
	KindProcess Kind = "process"
	// KindThumbnail runs the thumbnailing stage.
	KindThumbnail Kind = "thumbnail"
	// KindMetadata runs the metadata extraction stage.
	KindMetadata Kind = "metadata"
)

// ParseKind converts a user-supplied string into a Kind.
func ParseKind(value string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(value))); k {
	case KindProcess, KindThumbnail, KindMetadata:
		return k, nil
	}
	return "", fmt.Errorf("unknown job kind %q", value)
}

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Job is one unit of queued stage work.
type Job struct {
	ID          int64
	AssetID     int64
	Kind        Kind
	Status      Status
	Attempts    int
	MaxAttempts int
	LastError   string
	AvailableAt time.Time
	HeartbeatAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AttemptsLeft reports whether another attempt is allowed after the current one.
func (j *Job) AttemptsLeft() bool {
	return j != nil && j.Attempts < j.MaxAttempts
}

// HealthSummary aggregates job counts by lifecycle bucket.
type HealthSummary struct {
	Total   int
	Pending int
	Running int
	Done    int
	Failed  int
}
