// Package jobs is a durable deferred scheduler. Jobs are rows in a due-time
// table polled by Runner, so a scheduled callback survives process restarts.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"crane-availability-backend/config"
	"crane-availability-backend/internal/model"
)

// ErrJobNotFound is returned by Cancel when no pending job matches the
// handle: it already fired, was cancelled, or never existed.
var ErrJobNotFound = errors.New("job not found or no longer pending")

const maxAttempts = 3

// Job names the callback to run when the job is due.
type Job struct {
	Kind      string
	SubjectID int64
}

// Scheduler is the deferred execution port used by the state machine.
type Scheduler interface {
	Schedule(ctx context.Context, at time.Time, job Job) (string, error)
	Cancel(ctx context.Context, handle string) error
}

// HandlerFunc runs a due job. handle identifies the firing job.
type HandlerFunc func(ctx context.Context, job Job, handle string) error

// Runner persists jobs and executes them once due.
type Runner struct {
	db  *gorm.DB
	cfg config.JobsConfig
	log *zap.Logger
	now func() time.Time

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewRunner creates a runner backed by the scheduled_jobs table.
func NewRunner(db *gorm.DB, cfg config.JobsConfig, log *zap.Logger) *Runner {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 15 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.StaleAfterMinutes <= 0 {
		cfg.StaleAfterMinutes = 10
	}
	return &Runner{
		db:       db,
		cfg:      cfg,
		log:      log.Named("jobs"),
		now:      func() time.Time { return time.Now().UTC() },
		handlers: make(map[string]HandlerFunc),
	}
}

// Register binds a handler to a job kind. Registering a kind twice replaces
// the earlier handler.
func (r *Runner) Register(kind string, h HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = h
}

func (r *Runner) handler(kind string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[kind]
	return h, ok
}

// Schedule stores a pending job due at the given time and returns its handle.
func (r *Runner) Schedule(ctx context.Context, at time.Time, job Job) (string, error) {
	row := model.ScheduledJob{
		Handle:    uuid.NewString(),
		Kind:      job.Kind,
		SubjectID: job.SubjectID,
		DueAt:     at.UTC(),
		Status:    model.JobPending,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", fmt.Errorf("failed to schedule %s job for %d: %w", job.Kind, job.SubjectID, err)
	}
	r.log.Debug("job scheduled",
		zap.String("handle", row.Handle),
		zap.String("kind", job.Kind),
		zap.Int64("subject_id", job.SubjectID),
		zap.Time("due_at", row.DueAt))
	return row.Handle, nil
}

// Cancel withdraws a pending job.
func (r *Runner) Cancel(ctx context.Context, handle string) error {
	res := r.db.WithContext(ctx).Model(&model.ScheduledJob{}).
		Where("handle = ? AND status = ?", handle, model.JobPending).
		Update("status", model.JobCancelled)
	if res.Error != nil {
		return fmt.Errorf("failed to cancel job %s: %w", handle, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrJobNotFound
	}
	r.log.Debug("job cancelled", zap.String("handle", handle))
	return nil
}

// Run polls for due jobs until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) {
	r.log.Info("starting job runner", zap.Duration("interval", r.cfg.PollInterval))

	if n, err := r.RequeueStale(ctx); err != nil {
		r.log.Error("failed to requeue stale jobs", zap.Error(err))
	} else if n > 0 {
		r.log.Warn("requeued stale jobs", zap.Int64("count", n))
	}

	r.runOnceLogged(ctx)

	timer := time.NewTimer(r.cfg.PollInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("job runner shutting down")
			return
		case <-timer.C:
			r.runOnceLogged(ctx)
			timer.Reset(r.cfg.PollInterval)
		}
	}
}

func (r *Runner) runOnceLogged(ctx context.Context) {
	n, err := r.RunOnce(ctx)
	if err != nil {
		r.log.Error("job poll failed", zap.Error(err))
		return
	}
	if n > 0 {
		r.log.Info("job poll finished", zap.Int("executed", n))
	}
}

// RunOnce executes every job due now, up to the batch size, and returns how
// many it claimed.
func (r *Runner) RunOnce(ctx context.Context) (int, error) {
	now := r.now()

	var due []model.ScheduledJob
	if err := r.db.WithContext(ctx).
		Where("status = ? AND due_at <= ?", model.JobPending, now).
		Order("due_at").
		Limit(r.cfg.BatchSize).
		Find(&due).Error; err != nil {
		return 0, fmt.Errorf("failed to fetch due jobs: %w", err)
	}

	executed := 0
	for _, row := range due {
		claimed, err := r.claim(ctx, row.Handle, now)
		if err != nil {
			return executed, err
		}
		if !claimed {
			// Another runner took it, or it was cancelled in between.
			continue
		}
		executed++
		r.execute(ctx, row)
	}
	return executed, nil
}

// claim moves a job from pending to running. Only one caller can win.
func (r *Runner) claim(ctx context.Context, handle string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.ScheduledJob{}).
		Where("handle = ? AND status = ?", handle, model.JobPending).
		Updates(map[string]any{
			"status":     model.JobRunning,
			"claimed_at": now,
			"attempts":   gorm.Expr("attempts + 1"),
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to claim job %s: %w", handle, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *Runner) execute(ctx context.Context, row model.ScheduledJob) {
	log := r.log.With(zap.String("handle", row.Handle), zap.String("kind", row.Kind), zap.Int64("subject_id", row.SubjectID))

	h, ok := r.handler(row.Kind)
	if !ok {
		log.Error("no handler registered for job kind")
		r.finish(ctx, row, model.JobFailed, "no handler registered")
		return
	}

	err := safeCall(ctx, h, Job{Kind: row.Kind, SubjectID: row.SubjectID}, row.Handle)
	if err == nil {
		r.finish(ctx, row, model.JobDone, "")
		return
	}

	attempts := row.Attempts + 1
	if attempts >= maxAttempts {
		log.Error("job failed permanently", zap.Int("attempts", attempts), zap.Error(err))
		r.finish(ctx, row, model.JobFailed, err.Error())
		return
	}

	log.Warn("job failed, will retry", zap.Int("attempts", attempts), zap.Error(err))
	if uerr := r.db.WithContext(ctx).Model(&model.ScheduledJob{}).
		Where("handle = ?", row.Handle).
		Updates(map[string]any{
			"status":     model.JobPending,
			"due_at":     r.now().Add(r.cfg.PollInterval),
			"last_error": err.Error(),
			"claimed_at": nil,
		}).Error; uerr != nil {
		log.Error("failed to reschedule job", zap.Error(uerr))
	}
}

func (r *Runner) finish(ctx context.Context, row model.ScheduledJob, status model.JobStatus, lastError string) {
	if err := r.db.WithContext(ctx).Model(&model.ScheduledJob{}).
		Where("handle = ?", row.Handle).
		Updates(map[string]any{"status": status, "last_error": lastError}).Error; err != nil {
		r.log.Error("failed to record job outcome", zap.String("handle", row.Handle), zap.Error(err))
	}
}

func safeCall(ctx context.Context, h HandlerFunc, job Job, handle string) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job handler panicked: %v", p)
		}
	}()
	return h(ctx, job, handle)
}

// RequeueStale returns jobs stuck in running (a runner died mid-job) to pending.
func (r *Runner) RequeueStale(ctx context.Context) (int64, error) {
	cutoff := r.now().Add(-time.Duration(r.cfg.StaleAfterMinutes) * time.Minute)
	res := r.db.WithContext(ctx).Model(&model.ScheduledJob{}).
		Where("status = ? AND claimed_at < ?", model.JobRunning, cutoff).
		Updates(map[string]any{"status": model.JobPending, "claimed_at": nil})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to requeue stale jobs: %w", res.Error)
	}
	return res.RowsAffected, nil
}
