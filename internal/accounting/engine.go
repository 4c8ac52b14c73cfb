// Package accounting turns breakdowns, planned servicing, booked shifts and
// usage records into availability and utilisation figures over a date range.
package accounting

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"crane-availability-backend/internal/apperr"
	"crane-availability-backend/internal/model"
	"crane-availability-backend/internal/shiftcalc"
	"crane-availability-backend/internal/store"
)

// CraneMetrics is the hours breakdown of one crane over the report range.
type CraneMetrics struct {
	CraneID          int64             `json:"craneId"`
	CraneName        string            `json:"craneName"`
	Status           model.CraneStatus `json:"status"`
	CalendarHours    float64           `json:"calendarHours"`
	BreakdownHours   float64           `json:"breakdownHours"`
	ServiceHours     float64           `json:"serviceHours"`
	MaintenanceHours float64           `json:"maintenanceHours"`
	BookedHours      float64           `json:"bookedHours"`
	OperatingHours   float64           `json:"operatingHours"`
	DelayHours       float64           `json:"delayHours"`
	StandbyHours     float64           `json:"standbyHours"`
	UtilizedHours    float64           `json:"utilizedHours"`
	AvailableHours   float64           `json:"availableHours"`
	AvailabilityPct  float64           `json:"availabilityPct"`
	UtilisationPct   float64           `json:"utilisationPct"`
	UsagePct         float64           `json:"usagePct"`
}

// Overall averages the percentages of all selected cranes and counts them by
// their current status.
type Overall struct {
	AvailabilityPct   float64 `json:"availabilityPct"`
	UtilisationPct    float64 `json:"utilisationPct"`
	UsagePct          float64 `json:"usagePct"`
	TotalCranes       int     `json:"totalCranes"`
	AvailableCranes   int     `json:"availableCranes"`
	MaintenanceCranes int     `json:"maintenanceCranes"`
}

// Report is the result of ComputeMetrics.
type Report struct {
	StartDate string         `json:"startDate"`
	EndDate   string         `json:"endDate"`
	PerCrane  []CraneMetrics `json:"perCrane"`
	Overall   Overall        `json:"overall"`
}

// Engine computes reports. It only reads from the store.
type Engine struct {
	store store.Store
	log   *zap.Logger
}

func NewEngine(st store.Store, log *zap.Logger) *Engine {
	return &Engine{store: st, log: log.Named("accounting")}
}

// totals accumulates the raw hours of one crane before derivation.
type totals struct {
	breakdown, service, booked         float64
	operating, delay, standbyFromUsage float64
}

// ComputeMetrics reports every crane, or only craneID when given, over the
// inclusive date range [start, end].
func (e *Engine) ComputeMetrics(ctx context.Context, start, end time.Time, craneID *int64) (*Report, error) {
	start, end = shiftcalc.DateOf(start), shiftcalc.DateOf(end)
	if end.Before(start) {
		return nil, apperr.Validation("end", "end date %s is before start date %s",
			end.Format(shiftcalc.DateLayout), start.Format(shiftcalc.DateLayout))
	}

	cranes, err := e.store.ListCranes(ctx, craneID)
	if err != nil {
		return nil, err
	}
	if craneID != nil && len(cranes) == 0 {
		return nil, apperr.NotFound("crane", *craneID)
	}

	report := &Report{
		StartDate: start.Format(shiftcalc.DateLayout),
		EndDate:   end.Format(shiftcalc.DateLayout),
		PerCrane:  make([]CraneMetrics, 0, len(cranes)),
	}
	if len(cranes) == 0 {
		return report, nil
	}

	ids := make([]int64, len(cranes))
	for i, c := range cranes {
		ids[i] = c.ID
	}

	byCrane, err := e.collect(ctx, ids, start, end)
	if err != nil {
		return nil, err
	}

	calendarHours := float64(shiftcalc.DaysInclusive(start, end) * 24)
	for _, c := range cranes {
		m := derive(calendarHours, byCrane[c.ID])
		m.CraneID = c.ID
		m.CraneName = c.Name
		m.Status = c.Status
		report.PerCrane = append(report.PerCrane, m)
	}
	report.Overall = summarize(report.PerCrane)

	e.log.Debug("metrics computed",
		zap.String("start", report.StartDate),
		zap.String("end", report.EndDate),
		zap.Int("cranes", len(cranes)))
	return report, nil
}

// collect loads every input row of the range and sums raw hours per crane.
func (e *Engine) collect(ctx context.Context, craneIDs []int64, start, end time.Time) (map[int64]*totals, error) {
	from, to := shiftcalc.RangeBounds(start, end)

	byCrane := make(map[int64]*totals, len(craneIDs))
	for _, id := range craneIDs {
		byCrane[id] = &totals{}
	}

	breakdowns, err := e.store.BreakdownsInRange(ctx, craneIDs, from, to)
	if err != nil {
		return nil, err
	}
	for _, b := range breakdowns {
		byCrane[b.CraneID].breakdown += shiftcalc.OverlapHours(b.UrgentStartTime, b.EffectiveEnd(), from, to)
	}

	maintenance, err := e.store.MaintenanceShiftsInRange(ctx, craneIDs, from, to)
	if err != nil {
		return nil, err
	}
	for _, ms := range maintenance {
		startTime, endTime := ms.Times()
		hours, err := shiftcalc.ShiftHours(startTime, endTime)
		if err != nil {
			return nil, fmt.Errorf("maintenance shift %d: %w", ms.ID, err)
		}
		byCrane[ms.CraneID].service += hours
	}

	booked, err := e.store.BookingShiftsInRange(ctx, craneIDs, from, to)
	if err != nil {
		return nil, err
	}
	if len(booked) > 0 {
		durations, err := e.shiftDurations(ctx)
		if err != nil {
			return nil, err
		}
		for _, bs := range booked {
			hours, ok := durations[bs.ShiftDefinitionID]
			if !ok {
				return nil, fmt.Errorf("booking shift %d references unknown shift definition %d", bs.ID, bs.ShiftDefinitionID)
			}
			byCrane[bs.CraneID].booked += hours
		}
	}

	records, err := e.store.UsageRecordsInRange(ctx, craneIDs, from, to)
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		t := byCrane[r.CraneID]
		switch r.Category {
		case model.UsageOperating:
			t.operating += r.Hours()
		case model.UsageDelay:
			t.delay += r.Hours()
		case model.UsageStandby:
			t.standbyFromUsage += r.Hours()
		case model.UsageService:
			t.service += r.Hours()
		case model.UsageBreakdown:
			t.breakdown += r.Hours()
		default:
			e.log.Warn("usage record with unknown category ignored", zap.Int64("record_id", r.ID), zap.String("category", string(r.Category)))
		}
	}
	return byCrane, nil
}

// shiftDurations returns the length in hours of every shift definition.
func (e *Engine) shiftDurations(ctx context.Context) (map[int64]float64, error) {
	defs, err := e.store.ShiftDefinitions(ctx)
	if err != nil {
		return nil, err
	}
	durations := make(map[int64]float64, len(defs))
	for id, sd := range defs {
		hours, err := shiftcalc.ShiftHours(sd.StartTime, sd.EndTime)
		if err != nil {
			return nil, fmt.Errorf("shift definition %q: %w", sd.Name, err)
		}
		durations[id] = hours
	}
	return durations, nil
}

// derive applies the accounting formulas to one crane's raw hours.
func derive(calendarHours float64, t *totals) CraneMetrics {
	utilized := t.operating + t.delay
	standby := math.Max(0, t.booked-utilized) + t.standbyFromUsage
	maintenance := t.service + t.breakdown
	available := math.Max(0, calendarHours-maintenance)

	return CraneMetrics{
		CalendarHours:    calendarHours,
		BreakdownHours:   round2(t.breakdown),
		ServiceHours:     round2(t.service),
		MaintenanceHours: round2(maintenance),
		BookedHours:      round2(t.booked),
		OperatingHours:   round2(t.operating),
		DelayHours:       round2(t.delay),
		StandbyHours:     round2(standby),
		UtilizedHours:    round2(utilized),
		AvailableHours:   round2(available),
		AvailabilityPct:  percent(available, calendarHours),
		UtilisationPct:   ratio(t.operating, calendarHours),
		UsagePct:         percent(utilized, available),
	}
}

func summarize(perCrane []CraneMetrics) Overall {
	var o Overall
	var availability, utilisation, usage float64
	for _, m := range perCrane {
		availability += m.AvailabilityPct
		utilisation += m.UtilisationPct
		usage += m.UsagePct
		switch m.Status {
		case model.CraneStatusMaintenance:
			o.MaintenanceCranes++
		default:
			o.AvailableCranes++
		}
	}
	o.TotalCranes = len(perCrane)
	if o.TotalCranes > 0 {
		n := float64(o.TotalCranes)
		o.AvailabilityPct = round2(availability / n)
		o.UtilisationPct = round2(utilisation / n)
		o.UsagePct = round2(usage / n)
	}
	return o
}

// percent is part/whole*100 rounded to two decimals and kept within [0, 100].
// A zero whole yields 0.
// percent is ratio clamped to [0, 100].
func percent(part, whole float64) float64 {
	return math.Min(100, math.Max(0, ratio(part, whole)))
}

// ratio is part/whole as a percentage, zero when whole is not positive.
func ratio(part, whole float64) float64 {
	if whole <= 0 {
		return 0
	}
	return round2(part / whole * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
