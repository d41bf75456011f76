package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/backoffice/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAttachmentUnlink removes a client-record file orphaned by a committed sync.
	TaskAttachmentUnlink = "ledger:attachment.unlink"
	// TaskAttachmentSweep re-enqueues unlinks for files of soft-deleted headers.
	TaskAttachmentSweep = "ledger:attachment.sweep"
)

// AttachmentUnlinkPayload names the stored file to remove.
type AttachmentUnlinkPayload struct {
	Path string `json:"path"`
}

// NewAttachmentUnlinkTask constructs an Asynq task.
func NewAttachmentUnlinkTask(path string) (*asynq.Task, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("jobs: attachment path required")
	}
	data, err := json.Marshal(AttachmentUnlinkPayload{Path: path})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAttachmentUnlink, data, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}

// FileRemover deletes one stored file.
type FileRemover interface {
	Remove(ctx context.Context, path string) error
}

// AttachmentUnlinkJob processes TaskAttachmentUnlink tasks.
type AttachmentUnlinkJob struct {
	Remover FileRemover
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewAttachmentUnlinkJob constructs the job handler.
func NewAttachmentUnlinkJob(remover FileRemover, logger *slog.Logger, metrics *jobmetrics.Metrics) *AttachmentUnlinkJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &AttachmentUnlinkJob{Remover: remover, Logger: logger, Metrics: metrics}
}

// Handle removes the file. Malformed payloads are not retried.
func (j *AttachmentUnlinkJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Remover == nil {
		return fmt.Errorf("%w: attachment job not configured", asynq.SkipRetry)
	}
	var payload AttachmentUnlinkPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.Path == "" {
		return fmt.Errorf("%w: invalid attachment payload", asynq.SkipRetry)
	}
	tracker := j.Metrics.Track(TaskAttachmentUnlink)
	err := j.Remover.Remove(ctx, payload.Path)
	if err != nil {
		j.Logger.Warn("attachment unlink failed", slog.String("path", payload.Path), slog.Any("error", err))
	} else {
		j.Logger.Info("attachment unlinked", slog.String("path", payload.Path))
		j.Metrics.AddRemoved(1)
	}
	return tracker.End(err)
}

// AttachmentSweepPayload bounds how far back the sweep looks for deletions.
type AttachmentSweepPayload struct {
	Lookback time.Duration `json:"lookback"`
}

// NewAttachmentSweepTask constructs the periodic sweep task.
func NewAttachmentSweepTask(lookback time.Duration) (*asynq.Task, error) {
	if lookback <= 0 {
		return nil, errors.New("jobs: sweep lookback must be positive")
	}
	data, err := json.Marshal(AttachmentSweepPayload{Lookback: lookback})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAttachmentSweep, data, asynq.Queue(QueueDefault), asynq.MaxRetry(1)), nil
}

// DeletedAttachmentFinder lists attachments of headers deleted since a point in time.
type DeletedAttachmentFinder interface {
	DeletedSince(ctx context.Context, since time.Time) ([]string, error)
}

// FileChecker reports whether a stored file is still present.
type FileChecker interface {
	Exists(path string) (bool, error)
}

// UnlinkEnqueuer schedules one unlink task.
type UnlinkEnqueuer interface {
	EnqueueAttachmentUnlink(ctx context.Context, path string) (*asynq.TaskInfo, error)
}

// AttachmentSweepJob processes TaskAttachmentSweep tasks.
type AttachmentSweepJob struct {
	Finder  DeletedAttachmentFinder
	Files   FileChecker
	Queue   UnlinkEnqueuer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	Now     func() time.Time
}

// NewAttachmentSweepJob constructs the sweep handler.
func NewAttachmentSweepJob(finder DeletedAttachmentFinder, files FileChecker, queue UnlinkEnqueuer, logger *slog.Logger, metrics *jobmetrics.Metrics) *AttachmentSweepJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &AttachmentSweepJob{Finder: finder, Files: files, Queue: queue, Logger: logger, Metrics: metrics, Now: time.Now}
}

// Handle enqueues an unlink for every file that outlived its deleted header.
// Paths that fail are reported together; the rest are still enqueued.
func (j *AttachmentSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Finder == nil || j.Files == nil || j.Queue == nil {
		return fmt.Errorf("%w: attachment sweep not configured", asynq.SkipRetry)
	}
	var payload AttachmentSweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.Lookback <= 0 {
		return fmt.Errorf("%w: invalid sweep payload", asynq.SkipRetry)
	}
	now := time.Now
	if j.Now != nil {
		now = j.Now
	}
	tracker := j.Metrics.Track(TaskAttachmentSweep)
	paths, err := j.Finder.DeletedSince(ctx, now().Add(-payload.Lookback))
	if err != nil {
		return tracker.End(fmt.Errorf("list deleted attachments: %w", err))
	}
	var errs []error
	enqueued := 0
	for _, path := range paths {
		exists, err := j.Files.Exists(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("check %s: %w", path, err))
			continue
		}
		if !exists {
			continue
		}
		if _, err := j.Queue.EnqueueAttachmentUnlink(ctx, path); err != nil {
			errs = append(errs, fmt.Errorf("enqueue %s: %w", path, err))
			continue
		}
		enqueued++
	}
	j.Logger.Info("attachment sweep finished",
		slog.Int("candidates", len(paths)),
		slog.Int("enqueued", enqueued),
		slog.Int("failed", len(errs)))
	return tracker.End(errors.Join(errs...))
}
