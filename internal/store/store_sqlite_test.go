package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crane-availability-backend/internal/apperr"
	"crane-availability-backend/internal/model"
	"crane-availability-backend/internal/store"
	"crane-availability-backend/internal/store/storetest"
)

func TestOccupiedSlots(t *testing.T) {
	gormDB, s := storetest.NewStore(t)
	ctx := context.Background()
	day, night := storetest.Shifts(t, gormDB)
	crane := storetest.CreateCrane(t, s, "Tower 1")
	other := storetest.CreateCrane(t, s, "Tower 2")

	apr1 := storetest.Date(2025, 4, 1)
	apr2 := storetest.Date(2025, 4, 2)
	booking := storetest.CreateBooking(t, s, crane.ID, []time.Time{apr1, apr2}, day.ID)
	storetest.CreateBooking(t, s, other.ID, []time.Time{apr1}, night.ID)

	slots, err := s.OccupiedSlots(ctx, crane.ID, apr1, nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{day.ID}, slots)

	slots, err = s.OccupiedSlots(ctx, crane.ID, apr1, &booking.ID)
	require.NoError(t, err)
	assert.Empty(t, slots)

	slots, err = s.OccupiedSlots(ctx, crane.ID, storetest.Date(2025, 4, 3), nil)
	require.NoError(t, err)
	assert.Empty(t, slots)

	require.NoError(t, s.SetBookingStatus(ctx, booking.ID, model.BookingStatusCancelled))
	slots, err = s.OccupiedSlots(ctx, crane.ID, apr2, nil)
	require.NoError(t, err)
	assert.Empty(t, slots, "cancelled bookings release their slots")
}

func TestBreakdownLifecycle(t *testing.T) {
	_, s := storetest.NewStore(t)
	ctx := context.Background()
	crane := storetest.CreateCrane(t, s, "Crawler 7")
	start := time.Date(2025, 4, 1, 6, 0, 0, 0, time.UTC)

	handle := "job-abc"
	b := model.Breakdown{
		CraneID:         crane.ID,
		UrgentStartTime: start,
		EstimatedDays:   1,
		UrgentEndTime:   start.Add(24 * time.Hour),
		Reasons:         "slew ring inspection",
		JobHandle:       &handle,
	}
	require.NoError(t, s.CreateBreakdown(ctx, &b))

	open, err := s.OpenBreakdown(ctx, crane.ID)
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, b.ID, open.ID)

	withHandle, err := s.BreakdownsWithJobHandle(ctx, crane.ID)
	require.NoError(t, err)
	assert.Len(t, withHandle, 1)

	closedAt := start.Add(5 * time.Hour)
	closed, err := s.CloseBreakdown(ctx, b.ID, closedAt)
	require.NoError(t, err)
	assert.True(t, closed)

	closed, err = s.CloseBreakdown(ctx, b.ID, closedAt.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, closed, "second close must lose the compare-and-swap")

	latest, err := s.LatestBreakdown(ctx, crane.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	require.NotNil(t, latest.ActualUrgentEndTime)
	assert.True(t, closedAt.Equal(*latest.ActualUrgentEndTime))
	assert.Nil(t, latest.JobHandle)
	assert.Equal(t, 1, latest.Version)

	open, err = s.OpenBreakdown(ctx, crane.ID)
	require.NoError(t, err)
	assert.Nil(t, open)
}

func TestBreakdownsInRange_UsesEffectiveEnd(t *testing.T) {
	_, s := storetest.NewStore(t)
	ctx := context.Background()
	crane := storetest.CreateCrane(t, s, "Mobile 3")

	// Estimated to run into April 2 but closed early on March 31.
	early := model.Breakdown{
		CraneID:         crane.ID,
		UrgentStartTime: time.Date(2025, 3, 30, 0, 0, 0, 0, time.UTC),
		EstimatedDays:   3,
		UrgentEndTime:   time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC),
		Reasons:         "brake pads",
	}
	require.NoError(t, s.CreateBreakdown(ctx, &early))
	_, err := s.CloseBreakdown(ctx, early.ID, time.Date(2025, 3, 31, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	// Still open, estimated end inside the range.
	current := model.Breakdown{
		CraneID:         crane.ID,
		UrgentStartTime: time.Date(2025, 4, 1, 18, 0, 0, 0, time.UTC),
		EstimatedHours:  12,
		UrgentEndTime:   time.Date(2025, 4, 2, 6, 0, 0, 0, time.UTC),
		Reasons:         "hydraulic leak",
	}
	require.NoError(t, s.CreateBreakdown(ctx, &current))

	from, to := storetest.Date(2025, 4, 1), storetest.Date(2025, 4, 2)
	rows, err := s.BreakdownsInRange(ctx, []int64{crane.ID}, from, to)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, current.ID, rows[0].ID)
}

func TestRangeJoins(t *testing.T) {
	gormDB, s := storetest.NewStore(t)
	ctx := context.Background()
	day, night := storetest.Shifts(t, gormDB)
	crane := storetest.CreateCrane(t, s, "Tower 9")
	apr1 := storetest.Date(2025, 4, 1)

	booking := storetest.CreateBooking(t, s, crane.ID, []time.Time{apr1}, day.ID, night.ID)
	require.NoError(t, s.CreateUsageRecord(ctx, &model.UsageRecord{
		BookingID: booking.ID, Date: apr1, Category: model.UsageOperating, DurationMinutes: 90,
	}))

	schedule := model.MaintenanceSchedule{
		CraneID: crane.ID,
		Title:   "Monthly greasing",
		Shifts: []model.MaintenanceScheduleShift{
			{Date: apr1, ShiftDefinitionID: day.ID},
			{Date: apr1, ShiftDefinitionID: night.ID, StartTime: "20:00", EndTime: "22:00"},
		},
	}
	require.NoError(t, s.CreateMaintenanceSchedule(ctx, &schedule))

	from, to := apr1, apr1.AddDate(0, 0, 1)

	shifts, err := s.BookingShiftsInRange(ctx, []int64{crane.ID}, from, to)
	require.NoError(t, err)
	require.Len(t, shifts, 2)
	assert.Equal(t, crane.ID, shifts[0].CraneID)
	assert.True(t, apr1.Equal(shifts[0].Date))

	usage, err := s.UsageRecordsInRange(ctx, []int64{crane.ID}, from, to)
	require.NoError(t, err)
	require.Len(t, usage, 1)
	assert.Equal(t, model.UsageOperating, usage[0].Category)
	assert.InDelta(t, 1.5, usage[0].Hours(), 1e-9)

	maint, err := s.MaintenanceShiftsInRange(ctx, []int64{crane.ID}, from, to)
	require.NoError(t, err)
	require.Len(t, maint, 2)
	start, end := maint[0].Times()
	assert.Equal(t, "07:00", start)
	assert.Equal(t, "19:00", end)
	start, end = maint[1].Times()
	assert.Equal(t, "20:00", start)
	assert.Equal(t, "22:00", end)

	// Outside the range nothing comes back.
	shifts, err = s.BookingShiftsInRange(ctx, []int64{crane.ID}, to, to.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Empty(t, shifts)
}

func TestReplaceBooking(t *testing.T) {
	gormDB, s := storetest.NewStore(t)
	ctx := context.Background()
	day, night := storetest.Shifts(t, gormDB)
	crane := storetest.CreateCrane(t, s, "Tower 4")
	apr1 := storetest.Date(2025, 4, 1)

	booking := storetest.CreateBooking(t, s, crane.ID, []time.Time{apr1}, day.ID)
	booking.Purpose = "steel erection"
	booking.Shifts = []model.BookingShift{{Date: apr1, ShiftDefinitionID: night.ID}}
	require.NoError(t, s.ReplaceBooking(ctx, &booking))

	reloaded, err := s.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, "steel erection", reloaded.Purpose)
	require.Len(t, reloaded.Shifts, 1)
	assert.Equal(t, night.ID, reloaded.Shifts[0].ShiftDefinitionID)

	missing := model.Booking{ID: 999, CraneID: crane.ID, StartDate: apr1, EndDate: apr1, Requester: "x"}
	assert.True(t, apperr.IsNotFound(s.ReplaceBooking(ctx, &missing)))
}

func TestTransactionRollsBack(t *testing.T) {
	_, s := storetest.NewStore(t)
	ctx := context.Background()
	crane := storetest.CreateCrane(t, s, "Derrick 1")

	err := s.Transaction(ctx, func(tx store.Store) error {
		if err := tx.SetCraneStatus(ctx, crane.ID, model.CraneStatusMaintenance); err != nil {
			return err
		}
		return tx.SetCraneStatus(ctx, 12345, model.CraneStatusMaintenance)
	})
	assert.True(t, apperr.IsNotFound(err))

	reloaded, err := s.GetCrane(ctx, crane.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CraneStatusAvailable, reloaded.Status)
}

func TestSubcategories(t *testing.T) {
	gormDB, s := storetest.NewStore(t)
	ctx := context.Background()

	subs := []model.UsageSubcategory{
		{Category: model.UsageDelay, Name: "Weather", Active: true},
		{Category: model.UsageDelay, Name: "Waiting for rigger", Active: true},
		{Category: model.UsageOperating, Name: "Lifting", Active: true},
	}
	require.NoError(t, gormDB.Create(&subs).Error)
	require.NoError(t, s.SetSubcategoryActive(ctx, subs[0].ID, false))

	delay := model.UsageDelay
	active, err := s.ListSubcategories(ctx, &delay, false)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "Waiting for rigger", active[0].Name)

	all, err := s.ListSubcategories(ctx, nil, true)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = s.GetSubcategory(ctx, 777)
	assert.True(t, apperr.IsNotFound(err))
}

func TestDeleteCrane(t *testing.T) {
	_, s := storetest.NewStore(t)
	ctx := context.Background()
	crane := storetest.CreateCrane(t, s, "Gantry 2")

	require.NoError(t, s.DeleteCrane(ctx, crane.ID))
	_, err := s.GetCrane(ctx, crane.ID)
	assert.True(t, apperr.IsNotFound(err))
	assert.True(t, apperr.IsNotFound(s.DeleteCrane(ctx, crane.ID)))
}
