package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"crane-availability-backend/config"
	"crane-availability-backend/internal/accounting"
	"crane-availability-backend/internal/availability"
	"crane-availability-backend/internal/booking"
	"crane-availability-backend/internal/jobs"
	"crane-availability-backend/internal/model"
	"crane-availability-backend/internal/mw"
	"crane-availability-backend/internal/servicing"
	"crane-availability-backend/internal/store/storetest"
	"crane-availability-backend/internal/usage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router     *gin.Engine
	cache      *mw.ResponseCache
	day, night model.ShiftDefinition
}

func newTestServer(t *testing.T) *testServer {
	gormDB, s := storetest.NewStore(t)
	log := zap.NewNop()
	day, night := storetest.Shifts(t, gormDB)

	runner := jobs.NewRunner(gormDB, config.JobsConfig{PollInterval: time.Second, BatchSize: 10, StaleAfterMinutes: 5}, log)
	machine := availability.NewMachine(s, runner, nil, log)
	machine.Register(runner)

	cache := mw.NewResponseCache(time.Minute)
	machine.OnChange(cache.Purge)

	h := NewHandler(Deps{
		Store:    s,
		Machine:  machine,
		Bookings: booking.NewService(s, log),
		Usage:    usage.NewService(s, log),
		Engine:   accounting.NewEngine(s, log),
		Planner:  servicing.NewPlanner(s, log),
		Log:      log,
	})
	cfg := config.ServerConfig{RateLimitPerSec: 1000, RateLimitBurst: 1000, CacheTTLSeconds: 60}
	router := NewRouter(h, cfg, cache, mw.NewIPRateLimiter(rate.Limit(1000), 1000))
	return &testServer{router: router, cache: cache, day: day, night: night}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func (ts *testServer) createCrane(t *testing.T, name string) model.Crane {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/api/cranes", gin.H{"name": name, "capacityTonnes": 80})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var crane model.Crane
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &crane))
	return crane
}

func TestCraneMaintenanceEndpoints(t *testing.T) {
	ts := newTestServer(t)
	crane := ts.createCrane(t, "Tower 1")
	base := fmt.Sprintf("/api/cranes/%d", crane.ID)

	w := ts.do(t, http.MethodPost, base+"/maintenance", gin.H{"reasons": "", "days": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPost, base+"/maintenance", gin.H{
		"reasons": "wire rope", "days": 2, "startTime": "2025-04-01T00:00:00Z",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var breakdown model.Breakdown
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &breakdown))
	assert.True(t, time.Date(2025, 4, 3, 0, 0, 0, 0, time.UTC).Equal(breakdown.UrgentEndTime))

	w = ts.do(t, http.MethodPost, base+"/maintenance", gin.H{"reasons": "again", "hours": 3})
	assert.Equal(t, http.StatusBadRequest, w.Code, "second open breakdown is rejected")

	w = ts.do(t, http.MethodGet, "/api/cranes", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var cranes []CraneResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cranes))
	require.Len(t, cranes, 1)
	assert.Equal(t, model.CraneStatusMaintenance, cranes[0].Status)
	require.NotNil(t, cranes[0].MaintenanceUntil)
	assert.Equal(t, "wire rope", cranes[0].Reasons)

	// Bookings are refused while the crane is down.
	w = ts.do(t, http.MethodPost, "/api/bookings", gin.H{
		"craneId": crane.ID, "startDate": "2025-04-01", "endDate": "2025-04-01",
		"slots": gin.H{"2025-04-01": []int64{ts.day.ID}}, "requester": "site",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ts.do(t, http.MethodPost, base+"/recover", gin.H{"at": "2025-04-02T08:00:00Z"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &breakdown))
	require.NotNil(t, breakdown.ActualUrgentEndTime)
	assert.True(t, time.Date(2025, 4, 2, 8, 0, 0, 0, time.UTC).Equal(*breakdown.ActualUrgentEndTime))

	w = ts.do(t, http.MethodPost, base+"/recover", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "crane is no longer in maintenance")

	// The cached crane list was purged by the transitions.
	w = ts.do(t, http.MethodGet, "/api/cranes", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cranes))
	assert.Equal(t, model.CraneStatusAvailable, cranes[0].Status)

	w = ts.do(t, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = ts.do(t, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodPost, "/api/cranes/abc/recover", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBookingAndConflictEndpoints(t *testing.T) {
	ts := newTestServer(t)
	crane := ts.createCrane(t, "Tower 2")

	w := ts.do(t, http.MethodPost, "/api/bookings", gin.H{
		"craneId": crane.ID, "startDate": "2025-04-01", "endDate": "2025-04-01",
		"slots": gin.H{"2025-04-01": []int64{ts.day.ID}}, "requester": "site",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var b model.Booking
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b))

	conflicts := func(query string) map[string]any {
		w := ts.do(t, http.MethodGet, fmt.Sprintf("/api/cranes/%d/conflicts?%s", crane.ID, query), nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var out map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
		return out
	}

	got := conflicts(fmt.Sprintf("date=2025-04-01&slots=%d", ts.day.ID))
	assert.Equal(t, true, got["conflict"])
	assert.Equal(t, []any{float64(ts.day.ID)}, got["slots"])
	assert.Equal(t, false, conflicts(fmt.Sprintf("date=2025-04-01&slots=%d", ts.night.ID))["conflict"])
	assert.Equal(t, false, conflicts(fmt.Sprintf("date=2025-04-01&slots=%d&exclude_booking_id=%d", ts.day.ID, b.ID))["conflict"])

	w = ts.do(t, http.MethodGet, fmt.Sprintf("/api/cranes/%d/conflicts?date=April&slots=1", crane.ID), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = ts.do(t, http.MethodGet, fmt.Sprintf("/api/cranes/%d/conflicts?date=2025-04-01", crane.ID), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Duplicate slot on create is a conflict.
	w = ts.do(t, http.MethodPost, "/api/bookings", gin.H{
		"craneId": crane.ID, "startDate": "2025-04-01", "endDate": "2025-04-01",
		"slots": gin.H{"2025-04-01": []int64{ts.day.ID}}, "requester": "other site",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ts.do(t, http.MethodPut, fmt.Sprintf("/api/bookings/%d", b.ID), gin.H{
		"craneId": crane.ID, "startDate": "2025-04-01", "endDate": "2025-04-01",
		"slots": gin.H{"2025-04-01": []int64{ts.night.ID}}, "requester": "site",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, false, conflicts(fmt.Sprintf("date=2025-04-01&slots=%d", ts.day.ID))["conflict"])

	w = ts.do(t, http.MethodPost, fmt.Sprintf("/api/bookings/%d/cancel", b.ID), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, false, conflicts(fmt.Sprintf("date=2025-04-01&slots=%d", ts.night.ID))["conflict"])

	w = ts.do(t, http.MethodPost, "/api/bookings/999/cancel", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = ts.do(t, http.MethodPost, "/api/bookings", gin.H{"craneId": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	crane := ts.createCrane(t, "Crane A")

	w := ts.do(t, http.MethodPost, "/api/bookings", gin.H{
		"craneId": crane.ID, "startDate": "2025-04-01", "endDate": "2025-04-01",
		"slots": gin.H{"2025-04-01": []int64{ts.day.ID}}, "requester": "site",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var b model.Booking
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b))

	metricsURL := "/api/metrics?" + url.Values{"start": {"2025-04-01"}, "end": {"2025-04-01"}}.Encode()
	readReport := func() accounting.Report {
		w := ts.do(t, http.MethodGet, metricsURL, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var report accounting.Report
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
		return report
	}

	report := readReport()
	require.Len(t, report.PerCrane, 1)
	assert.Equal(t, 12.0, report.PerCrane[0].StandbyHours)
	assert.Equal(t, 1, ts.cache.Len())

	w = ts.do(t, http.MethodPost, "/api/usage", gin.H{
		"bookingId": b.ID, "date": "2025-04-01", "category": "Operating", "duration": "8:00",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	report = readReport()
	m := report.PerCrane[0]
	assert.Equal(t, 4.0, m.StandbyHours)
	assert.Equal(t, 100.0, m.AvailabilityPct)
	assert.Equal(t, 33.33, m.UtilisationPct)
	assert.Equal(t, 33.33, m.UsagePct)

	w = ts.do(t, http.MethodGet, "/api/metrics?start=2025-04-02&end=2025-04-01", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = ts.do(t, http.MethodGet, "/api/metrics?start=2025-04-01", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = ts.do(t, http.MethodGet, "/api/metrics?start=2025-04-01&end=2025-04-01&crane_id=404", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUsageAndServicePlanEndpoints(t *testing.T) {
	ts := newTestServer(t)
	crane := ts.createCrane(t, "Tower 5")

	w := ts.do(t, http.MethodPost, "/api/usage/subcategories", gin.H{"category": "Delay", "name": "Weather"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var sub model.UsageSubcategory
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sub))

	w = ts.do(t, http.MethodGet, "/api/usage/subcategories?category=Delay", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var subs []model.UsageSubcategory
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &subs))
	assert.Len(t, subs, 1)

	w = ts.do(t, http.MethodDelete, fmt.Sprintf("/api/usage/subcategories/%d", sub.ID), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = ts.do(t, http.MethodPost, "/api/usage", gin.H{
		"bookingId": 42, "date": "2025-04-01", "category": "Sleeping", "duration": "1:00",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPost, "/api/service-plans", gin.H{
		"craneId": crane.ID, "title": "Weekly greasing", "rrule": "FREQ=WEEKLY;BYDAY=MO",
		"from": "2025-04-01", "to": "2025-04-30", "shiftDefinitionId": ts.day.ID,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var schedule model.MaintenanceSchedule
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &schedule))
	assert.Len(t, schedule.Shifts, 4)

	w = ts.do(t, http.MethodPost, "/api/service-plans", gin.H{
		"craneId": crane.ID, "title": "Bad", "rrule": "FREQ=NEVER",
		"from": "2025-04-01", "to": "2025-04-30", "shiftDefinitionId": ts.day.ID,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubscriptionEndpoints(t *testing.T) {
	ts := newTestServer(t)
	a := ts.createCrane(t, "Tower A")
	b := ts.createCrane(t, "Tower B")
	endpoint := "https://push.example/sub-1"

	w := ts.do(t, http.MethodPut, "/api/subscriptions", gin.H{
		"endpoint": endpoint, "p256dh": "key", "auth": "secret", "subscribed_cranes": []int64{a.ID, b.ID},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// Re-subscribing replaces the crane set.
	w = ts.do(t, http.MethodPut, "/api/subscriptions", gin.H{
		"endpoint": endpoint, "p256dh": "key2", "auth": "secret2", "subscribed_cranes": []int64{b.ID},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = ts.do(t, http.MethodGet, "/api/subscriptions?endpoint="+endpoint, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, fmt.Sprintf(`{"subscribed_cranes":[%d]}`, b.ID), w.Body.String())

	w = ts.do(t, http.MethodDelete, "/api/subscriptions", gin.H{"endpoint": endpoint})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = ts.do(t, http.MethodGet, "/api/subscriptions?endpoint="+endpoint, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
