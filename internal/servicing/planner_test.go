package servicing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"crane-availability-backend/internal/apperr"
	"crane-availability-backend/internal/shiftcalc"
	"crane-availability-backend/internal/store/storetest"
)

func TestPlanner_Plan(t *testing.T) {
	gormDB, s := storetest.NewStore(t)
	ctx := context.Background()
	day, _ := storetest.Shifts(t, gormDB)
	crane := storetest.CreateCrane(t, s, "Tower 8")
	planner := NewPlanner(s, zap.NewNop())

	// April 2025 starts on a Tuesday; its Mondays are the 7th, 14th, 21st and 28th.
	schedule, err := planner.Plan(ctx, PlanRequest{
		CraneID:           crane.ID,
		Title:             "Weekly greasing",
		RRule:             "RRULE:FREQ=WEEKLY;BYDAY=MO",
		From:              "2025-04-01",
		To:                "2025-04-30",
		ShiftDefinitionID: day.ID,
		StartTime:         "07:00",
		EndTime:           "09:00",
	})
	require.NoError(t, err)
	assert.NotZero(t, schedule.ID)
	assert.Equal(t, "FREQ=WEEKLY;BYDAY=MO", schedule.RRule)

	var dates []string
	for _, sh := range schedule.Shifts {
		dates = append(dates, sh.Date.Format(shiftcalc.DateLayout))
		assert.Equal(t, "07:00", sh.StartTime)
	}
	assert.Equal(t, []string{"2025-04-07", "2025-04-14", "2025-04-21", "2025-04-28"}, dates)

	from, to := shiftcalc.RangeBounds(storetest.Date(2025, 4, 1), storetest.Date(2025, 4, 30))
	rows, err := s.MaintenanceShiftsInRange(ctx, []int64{crane.ID}, from, to)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	start, end := rows[0].Times()
	assert.Equal(t, "07:00", start)
	assert.Equal(t, "09:00", end)
}

func TestPlanner_PlanDailyUsesShiftTimes(t *testing.T) {
	gormDB, s := storetest.NewStore(t)
	ctx := context.Background()
	_, night := storetest.Shifts(t, gormDB)
	crane := storetest.CreateCrane(t, s, "Tower 9")

	schedule, err := NewPlanner(s, zap.NewNop()).Plan(ctx, PlanRequest{
		CraneID: crane.ID, Title: "Night checks", RRule: "FREQ=DAILY",
		From: "2025-04-01", To: "2025-04-03", ShiftDefinitionID: night.ID,
	})
	require.NoError(t, err)
	require.Len(t, schedule.Shifts, 3)
	assert.Empty(t, schedule.Shifts[0].StartTime)
}

func TestPlanner_Validation(t *testing.T) {
	gormDB, s := storetest.NewStore(t)
	ctx := context.Background()
	day, _ := storetest.Shifts(t, gormDB)
	crane := storetest.CreateCrane(t, s, "Tower 10")
	planner := NewPlanner(s, zap.NewNop())

	base := PlanRequest{
		CraneID: crane.ID, Title: "Plan", RRule: "FREQ=DAILY",
		From: "2025-04-01", To: "2025-04-10", ShiftDefinitionID: day.ID,
	}

	testCases := []struct {
		name    string
		mutate  func(r *PlanRequest)
		checkFn func(error) bool
	}{
		{name: "bad rule", mutate: func(r *PlanRequest) { r.RRule = "FREQ=SOMETIMES" }, checkFn: apperr.IsValidation},
		{name: "no occurrences", mutate: func(r *PlanRequest) { r.RRule = "FREQ=YEARLY;BYMONTH=12" }, checkFn: apperr.IsValidation},
		{name: "inverted range", mutate: func(r *PlanRequest) { r.To = "2025-03-01" }, checkFn: apperr.IsValidation},
		{name: "half override", mutate: func(r *PlanRequest) { r.StartTime = "08:00" }, checkFn: apperr.IsValidation},
		{name: "bad override", mutate: func(r *PlanRequest) { r.StartTime, r.EndTime = "8am", "10:00" }, checkFn: apperr.IsValidation},
		{name: "unknown shift", mutate: func(r *PlanRequest) { r.ShiftDefinitionID = 99 }, checkFn: apperr.IsValidation},
		{name: "missing title", mutate: func(r *PlanRequest) { r.Title = " " }, checkFn: apperr.IsValidation},
		{name: "unknown crane", mutate: func(r *PlanRequest) { r.CraneID = 404 }, checkFn: apperr.IsNotFound},
		{name: "too many occurrences", mutate: func(r *PlanRequest) { r.RRule = "FREQ=DAILY"; r.To = "2026-06-01" }, checkFn: apperr.IsValidation},
		{name: "secondly rule", mutate: func(r *PlanRequest) { r.RRule = "FREQ=SECONDLY"; r.From, r.To = "2025-01-01", "2025-12-31" }, checkFn: apperr.IsValidation},
		{name: "minutely rule", mutate: func(r *PlanRequest) { r.RRule = "FREQ=MINUTELY;INTERVAL=30" }, checkFn: apperr.IsValidation},
		{name: "hourly rule", mutate: func(r *PlanRequest) { r.RRule = "FREQ=HOURLY" }, checkFn: apperr.IsValidation},
		{name: "rule starting centuries early", mutate: func(r *PlanRequest) { r.RRule = "FREQ=DAILY;DTSTART=18000101T000000Z" }, checkFn: apperr.IsValidation},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := base
			tc.mutate(&req)
			_, err := planner.Plan(ctx, req)
			require.Error(t, err)
			assert.True(t, tc.checkFn(err), "unexpected error kind: %v", err)
		})
	}
}
