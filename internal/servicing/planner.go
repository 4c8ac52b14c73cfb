// Package servicing plans recurring crane servicing. A recurrence rule is
// expanded into dated maintenance shifts that count as planned service time.
package servicing

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/teambition/rrule-go"
	"go.uber.org/zap"

	"crane-availability-backend/internal/apperr"
	"crane-availability-backend/internal/model"
	"crane-availability-backend/internal/shiftcalc"
	"crane-availability-backend/internal/store"
)

// maxOccurrences bounds the shifts a single plan may create.
const maxOccurrences = 366

// maxRuleSteps bounds how many rule instances are walked to reach the range.
const maxRuleSteps = 50000

var validate = validator.New()

// PlanRequest describes a recurring servicing plan, e.g. RRule
// "FREQ=WEEKLY;BYDAY=MO" between From and To (inclusive YYYY-MM-DD dates).
// StartTime and EndTime optionally override the shift's own times.
type PlanRequest struct {
	CraneID           int64  `json:"craneId" validate:"required"`
	Title             string `json:"title" validate:"required,max=256"`
	RRule             string `json:"rrule" validate:"required"`
	From              string `json:"from" validate:"required"`
	To                string `json:"to" validate:"required"`
	ShiftDefinitionID int64  `json:"shiftDefinitionId" validate:"required"`
	StartTime         string `json:"startTime" validate:"required_with=EndTime"`
	EndTime           string `json:"endTime" validate:"required_with=StartTime"`
}

type Planner struct {
	store store.Store
	log   *zap.Logger
}

func NewPlanner(st store.Store, log *zap.Logger) *Planner {
	return &Planner{store: st, log: log.Named("servicing")}
}

// Plan stores the schedule with one maintenance shift per occurrence.
func (p *Planner) Plan(ctx context.Context, req PlanRequest) (*model.MaintenanceSchedule, error) {
	req.Title = strings.TrimSpace(req.Title)
	req.RRule = strings.TrimPrefix(strings.TrimSpace(req.RRule), "RRULE:")
	if err := validate.Struct(req); err != nil {
		return nil, apperr.FromValidation(err)
	}

	from, err := shiftcalc.ParseDate(req.From)
	if err != nil {
		return nil, apperr.Validation("from", "%v", err)
	}
	to, err := shiftcalc.ParseDate(req.To)
	if err != nil {
		return nil, apperr.Validation("to", "%v", err)
	}
	if to.Before(from) {
		return nil, apperr.Validation("to", "must not be before from")
	}
	if req.StartTime != "" {
		if _, err := shiftcalc.ParseTimeOfDay(req.StartTime); err != nil {
			return nil, apperr.Validation("startTime", "%v", err)
		}
		if _, err := shiftcalc.ParseTimeOfDay(req.EndTime); err != nil {
			return nil, apperr.Validation("endTime", "%v", err)
		}
	}

	dates, err := occurrences(req.RRule, from, to)
	if err != nil {
		return nil, err
	}

	if _, err := p.store.GetCrane(ctx, req.CraneID); err != nil {
		return nil, err
	}
	shifts, err := p.store.ShiftDefinitions(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := shifts[req.ShiftDefinitionID]; !ok {
		return nil, apperr.Validation("shiftDefinitionId", "unknown shift %d", req.ShiftDefinitionID)
	}

	schedule := &model.MaintenanceSchedule{
		CraneID: req.CraneID,
		Title:   req.Title,
		RRule:   req.RRule,
	}
	for _, d := range dates {
		schedule.Shifts = append(schedule.Shifts, model.MaintenanceScheduleShift{
			Date:              d,
			ShiftDefinitionID: req.ShiftDefinitionID,
			StartTime:         req.StartTime,
			EndTime:           req.EndTime,
		})
	}
	if err := p.store.CreateMaintenanceSchedule(ctx, schedule); err != nil {
		return nil, err
	}

	p.log.Info("service plan created",
		zap.Int64("schedule_id", schedule.ID),
		zap.Int64("crane_id", schedule.CraneID),
		zap.Int("shifts", len(schedule.Shifts)))
	return schedule, nil
}

// occurrences expands rule into the distinct dates between from and to inclusive.
func occurrences(rule string, from, to time.Time) ([]time.Time, error) {
	opt, err := rrule.StrToROption(rule)
	if err != nil {
		return nil, apperr.Validation("rrule", "%v", err)
	}
	if opt.Freq > rrule.DAILY {
		return nil, apperr.Validation("rrule", "frequency %s is finer than daily", opt.Freq)
	}
	if opt.Dtstart.IsZero() {
		opt.Dtstart = from
	}
	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, apperr.Validation("rrule", "%v", err)
	}

	_, end := shiftcalc.RangeBounds(from, to)
	var dates []time.Time
	seen := make(map[time.Time]struct{})
	next := r.Iterator()
	for steps := 0; ; steps++ {
		occ, ok := next()
		if !ok || !occ.Before(end) {
			break
		}
		if steps >= maxRuleSteps {
			return nil, apperr.Validation("rrule", "rule does not reach %s within %d steps", to.Format(shiftcalc.DateLayout), maxRuleSteps)
		}
		if occ.Before(from) {
			continue
		}
		d := shiftcalc.DateOf(occ)
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		dates = append(dates, d)
		if len(dates) > maxOccurrences {
			return nil, apperr.Validation("rrule", "more than %d occurrences", maxOccurrences)
		}
	}
	if len(dates) == 0 {
		return nil, apperr.Validation("rrule", "no occurrences between %s and %s",
			from.Format(shiftcalc.DateLayout), to.Format(shiftcalc.DateLayout))
	}
	return dates, nil
}
