package internal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"crane-availability-backend/config"
	"crane-availability-backend/internal/accounting"
	"crane-availability-backend/internal/availability"
	"crane-availability-backend/internal/booking"
	"crane-availability-backend/internal/jobs"
	"crane-availability-backend/internal/model"
	"crane-availability-backend/internal/notification"
	"crane-availability-backend/internal/shiftcalc"
	"crane-availability-backend/internal/store/storetest"
	"crane-availability-backend/internal/usage"
)

// TestMaintenanceLifecycle books a crane, logs its use, takes it down for
// maintenance and lets the job runner bring it back, then checks the
// resulting metrics and the published events.
func TestMaintenanceLifecycle(t *testing.T) {
	ctx := context.Background()
	log := zap.NewNop()

	// --- Test Setup ---
	gormDB, s := storetest.NewStore(t)
	day, _ := storetest.Shifts(t, gormDB)

	runner := jobs.NewRunner(gormDB, config.JobsConfig{PollInterval: time.Second, BatchSize: 10, StaleAfterMinutes: 5}, log)
	pool := notification.NewWorkerPool(1, 8, gormDB, nil, log)

	machine := availability.NewMachine(s, runner, pool, log)
	machine.Register(runner)
	purged := 0
	machine.OnChange(func() { purged++ })

	bookings := booking.NewService(s, log)
	usageSvc := usage.NewService(s, log)
	engine := accounting.NewEngine(s, log)

	crane := storetest.CreateCrane(t, s, "Tower 1")

	// Two days ago, so the maintenance window below is already over.
	d0 := shiftcalc.DateOf(time.Now()).AddDate(0, 0, -2)
	date := d0.Format(shiftcalc.DateLayout)

	// 1. Book the day shift and log eight operating hours.
	b, err := bookings.Create(ctx, booking.Request{
		CraneID:   crane.ID,
		StartDate: date,
		EndDate:   date,
		Slots:     map[string][]int64{date: {day.ID}},
		Requester: "site office",
	})
	require.NoError(t, err)

	_, err = usageSvc.Log(ctx, usage.LogRequest{
		BookingID: b.ID,
		Date:      date,
		Category:  string(model.UsageOperating),
		Duration:  "8:00",
	})
	require.NoError(t, err)

	// 2. Take the crane down after the shift for ten hours.
	breakdown, err := machine.StartMaintenance(ctx, availability.StartMaintenanceRequest{
		CraneID:   crane.ID,
		Reasons:   "hoist brake",
		Hours:     10,
		StartTime: d0.Add(19 * time.Hour),
	})
	require.NoError(t, err)
	require.NotNil(t, breakdown.JobHandle)

	reloaded, err := s.GetCrane(ctx, crane.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CraneStatusMaintenance, reloaded.Status)

	// 3. The runner finds the overdue recovery and fires it once.
	n, err := runner.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = runner.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	reloaded, err = s.GetCrane(ctx, crane.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CraneStatusAvailable, reloaded.Status)

	latest, err := s.LatestBreakdown(ctx, crane.ID)
	require.NoError(t, err)
	require.NotNil(t, latest.ActualUrgentEndTime)
	assert.Nil(t, latest.JobHandle)
	assert.Equal(t, 2, purged)

	// 4. Both transitions were published.
	require.Len(t, pool.Jobs(), 2)
	started := <-pool.Jobs()
	ended := <-pool.Jobs()
	assert.Equal(t, notification.EventMaintenanceStarted, started.Kind)
	assert.Equal(t, notification.EventMaintenanceEnded, ended.Kind)
	assert.False(t, ended.Manual)
	assert.Equal(t, crane.ID, ended.CraneID)

	// 5. Metrics for the booked day: five breakdown hours after 19:00.
	report, err := engine.ComputeMetrics(ctx, d0, d0, nil)
	require.NoError(t, err)
	require.Len(t, report.PerCrane, 1)

	m := report.PerCrane[0]
	assert.Equal(t, 24.0, m.CalendarHours)
	assert.Equal(t, 5.0, m.BreakdownHours)
	assert.Equal(t, 12.0, m.BookedHours)
	assert.Equal(t, 8.0, m.OperatingHours)
	assert.Equal(t, 4.0, m.StandbyHours)
	assert.Equal(t, 19.0, m.AvailableHours)
	assert.Equal(t, 79.17, m.AvailabilityPct)
	assert.Equal(t, 33.33, m.UtilisationPct)
	assert.Equal(t, 42.11, m.UsagePct)
	assert.Equal(t, 1, report.Overall.AvailableCranes)
}
