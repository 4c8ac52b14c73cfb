package store

import (
	"time"

	"crane-availability-backend/internal/model"
)

// CraneBookingShift is a booked slot joined with the crane of its booking.
type CraneBookingShift struct {
	ID                int64
	BookingID         int64
	CraneID           int64
	Date              time.Time
	ShiftDefinitionID int64
}

// CraneMaintenanceShift is a planned servicing slot joined with its crane and
// the default times of its shift definition.
type CraneMaintenanceShift struct {
	ID                int64
	CraneID           int64
	Date              time.Time
	ShiftDefinitionID int64
	StartTime         string // captured override, may be empty
	EndTime           string // captured override, may be empty
	ShiftStartTime    string
	ShiftEndTime      string
}

// Times returns the captured start/end when both are present, otherwise the
// shift definition's times.
func (m CraneMaintenanceShift) Times() (string, string) {
	if m.StartTime != "" && m.EndTime != "" {
		return m.StartTime, m.EndTime
	}
	return m.ShiftStartTime, m.ShiftEndTime
}

// CraneUsageRecord is a usage record joined with the crane of its booking.
type CraneUsageRecord struct {
	ID              int64
	BookingID       int64
	CraneID         int64
	Date            time.Time
	Category        model.UsageCategory
	DurationMinutes int
}

// Hours returns the logged duration in hours.
func (u CraneUsageRecord) Hours() float64 {
	return float64(u.DurationMinutes) / 60
}
