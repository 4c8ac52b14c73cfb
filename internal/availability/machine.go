// Package availability owns the Available/Maintenance state of cranes. It
// opens and closes breakdowns and drives the deferred automatic recovery.
package availability

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"crane-availability-backend/internal/apperr"
	"crane-availability-backend/internal/jobs"
	"crane-availability-backend/internal/keylock"
	"crane-availability-backend/internal/model"
	"crane-availability-backend/internal/notification"
	"crane-availability-backend/internal/store"
)

// JobKindAutoRecover names the deferred callback that ends a maintenance window.
const JobKindAutoRecover = "auto_recover"

var validate = validator.New()

// StartMaintenanceRequest opens a maintenance window. A zero StartTime means now.
type StartMaintenanceRequest struct {
	CraneID   int64     `json:"-" validate:"required"`
	Reasons   string    `json:"reasons" validate:"required"`
	Days      int       `json:"days" validate:"min=0,max=3650"`
	Hours     int       `json:"hours" validate:"min=0,max=87600"`
	StartTime time.Time `json:"startTime"`
}

// Machine applies crane state transitions. Transitions of the same crane are
// serialized in-process; closing a breakdown is a compare-and-swap in the store
// so concurrent processes cannot both close it.
type Machine struct {
	store     store.Store
	scheduler jobs.Scheduler
	publisher notification.Publisher
	log       *zap.Logger
	now       func() time.Time
	locks     keylock.Map
	onChange  func()
}

// NewMachine creates a state machine. publisher may be nil.
func NewMachine(st store.Store, scheduler jobs.Scheduler, publisher notification.Publisher, log *zap.Logger) *Machine {
	return &Machine{
		store:     st,
		scheduler: scheduler,
		publisher: publisher,
		log:       log.Named("availability"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// OnChange registers fn to run after every committed transition.
func (m *Machine) OnChange(fn func()) {
	m.onChange = fn
}

// Register binds the auto recovery callback to the job runner.
func (m *Machine) Register(r *jobs.Runner) {
	r.Register(JobKindAutoRecover, m.autoRecoverJob)
}

// StartMaintenance moves a crane into maintenance and schedules its automatic
// recovery at StartTime + Days + Hours.
func (m *Machine) StartMaintenance(ctx context.Context, req StartMaintenanceRequest) (*model.Breakdown, error) {
	req.Reasons = strings.TrimSpace(req.Reasons)
	if err := validate.Struct(req); err != nil {
		return nil, apperr.FromValidation(err)
	}
	if req.Days == 0 && req.Hours == 0 {
		return nil, apperr.Validation("days", "days or hours must be greater than zero")
	}

	start := req.StartTime
	if start.IsZero() {
		start = m.now()
	}
	start = start.UTC()
	end := start.Add(time.Duration(req.Days)*24*time.Hour + time.Duration(req.Hours)*time.Hour)
	if !end.After(start) {
		return nil, apperr.Validation("days", "maintenance window must end after %s", start.Format(time.RFC3339))
	}

	unlock := m.locks.Lock(req.CraneID)
	defer unlock()

	crane, err := m.store.GetCrane(ctx, req.CraneID)
	if err != nil {
		return nil, err
	}
	open, err := m.store.OpenBreakdown(ctx, crane.ID)
	if err != nil {
		return nil, err
	}
	if open != nil {
		return nil, apperr.Validation("craneId", "crane %d already has an open breakdown until %s",
			crane.ID, open.UrgentEndTime.Format(time.RFC3339))
	}

	handle, err := m.scheduler.Schedule(ctx, end, jobs.Job{Kind: JobKindAutoRecover, SubjectID: crane.ID})
	if err != nil {
		return nil, fmt.Errorf("failed to schedule auto recovery of crane %d: %w", crane.ID, err)
	}

	breakdown := &model.Breakdown{
		CraneID:         crane.ID,
		UrgentStartTime: start,
		EstimatedDays:   req.Days,
		EstimatedHours:  req.Hours,
		UrgentEndTime:   end,
		Reasons:         req.Reasons,
		JobHandle:       &handle,
	}
	err = m.store.Transaction(ctx, func(tx store.Store) error {
		if err := tx.CreateBreakdown(ctx, breakdown); err != nil {
			return err
		}
		return tx.SetCraneStatus(ctx, crane.ID, model.CraneStatusMaintenance)
	})
	if err != nil {
		m.cancelJob(ctx, crane.ID, handle)
		return nil, err
	}

	m.log.Info("maintenance started",
		zap.Int64("crane_id", crane.ID),
		zap.Int64("breakdown_id", breakdown.ID),
		zap.Time("start", start),
		zap.Time("end", end))

	m.publish(ctx, notification.Event{
		Kind:      notification.EventMaintenanceStarted,
		CraneID:   crane.ID,
		StartTime: start,
		EndTime:   end,
		Reasons:   breakdown.Reasons,
	})
	m.changed()
	return breakdown, nil
}

// AutoRecover ends the crane's most recent breakdown if it is still open. It
// is safe to call at any time and never fails; a missing crane or an already
// closed breakdown is a no-op.
func (m *Machine) AutoRecover(ctx context.Context, craneID int64) {
	if err := m.autoRecover(ctx, craneID, nil); err != nil {
		m.log.Error("auto recovery failed", zap.Int64("crane_id", craneID), zap.Error(err))
	}
}

// autoRecoverJob is the job runner callback. Errors are returned so the
// runner retries transient store failures.
func (m *Machine) autoRecoverJob(ctx context.Context, job jobs.Job, handle string) error {
	return m.autoRecover(ctx, job.SubjectID, &handle)
}

// autoRecover closes the latest breakdown. With a non-nil handle only the
// breakdown that scheduled that job is closed.
func (m *Machine) autoRecover(ctx context.Context, craneID int64, handle *string) error {
	unlock := m.locks.Lock(craneID)
	defer unlock()

	log := m.log.With(zap.Int64("crane_id", craneID))

	if _, err := m.store.GetCrane(ctx, craneID); err != nil {
		if apperr.IsNotFound(err) {
			log.Debug("auto recovery for deleted crane ignored")
			return nil
		}
		return err
	}

	latest, err := m.store.LatestBreakdown(ctx, craneID)
	if err != nil {
		return err
	}
	if latest == nil || !latest.IsOpen() {
		log.Debug("auto recovery found no open breakdown")
		return nil
	}
	if handle != nil && (latest.JobHandle == nil || *latest.JobHandle != *handle) {
		log.Info("stale auto recovery job ignored", zap.String("handle", *handle), zap.Int64("breakdown_id", latest.ID))
		return nil
	}

	now := m.now().UTC()
	closed, err := m.close(ctx, craneID, latest.ID, now)
	if err != nil {
		return err
	}
	if !closed {
		log.Debug("breakdown closed concurrently", zap.Int64("breakdown_id", latest.ID))
		return nil
	}

	log.Info("maintenance ended automatically", zap.Int64("breakdown_id", latest.ID), zap.Time("at", now))
	m.publish(ctx, notification.Event{
		Kind:      notification.EventMaintenanceEnded,
		CraneID:   craneID,
		StartTime: latest.UrgentStartTime,
		EndTime:   now,
		Reasons:   latest.Reasons,
	})
	m.changed()
	return nil
}

// ManualRecover ends a maintenance window early at now (the current time when
// zero) and cancels the pending automatic recovery.
func (m *Machine) ManualRecover(ctx context.Context, craneID int64, now time.Time) (*model.Breakdown, error) {
	if now.IsZero() {
		now = m.now()
	}
	now = now.UTC()

	unlock := m.locks.Lock(craneID)
	defer unlock()

	crane, err := m.store.GetCrane(ctx, craneID)
	if err != nil {
		return nil, err
	}
	if crane.Status != model.CraneStatusMaintenance {
		return nil, apperr.Validation("status", "crane %d is not under maintenance", craneID)
	}

	open, err := m.store.OpenBreakdown(ctx, craneID)
	if err != nil {
		return nil, err
	}
	if open == nil {
		// Status and breakdowns disagree; bring the status back in line.
		m.log.Warn("crane in maintenance without open breakdown", zap.Int64("crane_id", craneID))
		if err := m.store.SetCraneStatus(ctx, craneID, model.CraneStatusAvailable); err != nil {
			return nil, err
		}
		m.changed()
		return nil, nil
	}

	closed, err := m.close(ctx, craneID, open.ID, now)
	if err != nil {
		return nil, err
	}
	if !closed {
		return nil, apperr.Conflict("breakdown %d of crane %d was closed concurrently", open.ID, craneID)
	}

	if open.JobHandle != nil {
		m.cancelJob(ctx, craneID, *open.JobHandle)
	}

	m.log.Info("maintenance ended manually", zap.Int64("crane_id", craneID), zap.Int64("breakdown_id", open.ID), zap.Time("at", now))
	m.publish(ctx, notification.Event{
		Kind:      notification.EventMaintenanceEnded,
		CraneID:   craneID,
		StartTime: open.UrgentStartTime,
		EndTime:   now,
		Reasons:   open.Reasons,
		Manual:    true,
	})
	m.changed()

	open.ActualUrgentEndTime = &now
	open.JobHandle = nil
	open.Version++
	return open, nil
}

// DeleteCrane cancels every pending recovery job of the crane, then removes
// its breakdowns and the crane itself.
func (m *Machine) DeleteCrane(ctx context.Context, craneID int64) error {
	unlock := m.locks.Lock(craneID)
	defer unlock()

	if _, err := m.store.GetCrane(ctx, craneID); err != nil {
		return err
	}

	scheduled, err := m.store.BreakdownsWithJobHandle(ctx, craneID)
	if err != nil {
		return err
	}
	for _, b := range scheduled {
		m.cancelJob(ctx, craneID, *b.JobHandle)
	}

	err = m.store.Transaction(ctx, func(tx store.Store) error {
		if err := tx.DeleteBreakdowns(ctx, craneID); err != nil {
			return err
		}
		return tx.DeleteCrane(ctx, craneID)
	})
	if err != nil {
		return err
	}

	m.log.Info("crane deleted", zap.Int64("crane_id", craneID), zap.Int("cancelled_jobs", len(scheduled)))
	m.changed()
	return nil
}

// close ends a breakdown and marks the crane available in one transaction.
// It reports false when the breakdown had already been closed.
func (m *Machine) close(ctx context.Context, craneID, breakdownID int64, at time.Time) (bool, error) {
	var closed bool
	err := m.store.Transaction(ctx, func(tx store.Store) error {
		ok, err := tx.CloseBreakdown(ctx, breakdownID, at)
		if err != nil || !ok {
			return err
		}
		closed = true
		return tx.SetCraneStatus(ctx, craneID, model.CraneStatusAvailable)
	})
	if err != nil {
		return false, err
	}
	return closed, nil
}

// cancelJob asks the scheduler to drop a pending job. Failures are logged only.
func (m *Machine) cancelJob(ctx context.Context, craneID int64, handle string) {
	err := m.scheduler.Cancel(ctx, handle)
	switch {
	case err == nil:
		m.log.Debug("auto recovery cancelled", zap.Int64("crane_id", craneID), zap.String("handle", handle))
	case errors.Is(err, jobs.ErrJobNotFound):
		m.log.Info("auto recovery already gone", zap.Int64("crane_id", craneID), zap.String("handle", handle))
	default:
		m.log.Warn("failed to cancel auto recovery", zap.Int64("crane_id", craneID), zap.String("handle", handle), zap.Error(err))
	}
}

func (m *Machine) publish(ctx context.Context, ev notification.Event) {
	if m.publisher != nil {
		m.publisher.Publish(ctx, ev)
	}
}

func (m *Machine) changed() {
	if m.onChange != nil {
		m.onChange()
	}
}
