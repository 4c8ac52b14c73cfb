// Package storetest opens migrated in-memory sqlite databases for tests.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"crane-availability-backend/internal/db"
	"crane-availability-backend/internal/model"
	"crane-availability-backend/internal/store"
)

// NewDB returns a migrated private in-memory database with the default shifts
// seeded. A single connection keeps every query on the same memory database.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	gormDB, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.Migrate(gormDB))
	_, err = db.SeedDefaultShifts(gormDB)
	require.NoError(t, err)
	return gormDB
}

// NewStore wraps NewDB in a gorm-backed store.
func NewStore(t *testing.T) (*gorm.DB, store.Store) {
	t.Helper()
	gormDB := NewDB(t)
	return gormDB, store.NewGormStore(gormDB)
}

// Shifts returns the seeded day and night shift definitions.
func Shifts(t *testing.T, gormDB *gorm.DB) (day, night model.ShiftDefinition) {
	t.Helper()
	require.NoError(t, gormDB.Where("name = ?", "Day Shift").First(&day).Error)
	require.NoError(t, gormDB.Where("name = ?", "Night Shift").First(&night).Error)
	return day, night
}

// Date is a shorthand for midnight UTC.
func Date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// CreateCrane inserts an available crane.
func CreateCrane(t *testing.T, s store.Store, name string) model.Crane {
	t.Helper()
	crane := model.Crane{Name: name, CapacityTn: 50}
	require.NoError(t, s.CreateCrane(context.Background(), &crane))
	return crane
}

// CreateBooking inserts an active booking holding the given slots on each date.
func CreateBooking(t *testing.T, s store.Store, craneID int64, dates []time.Time, slots ...int64) model.Booking {
	t.Helper()
	booking := model.Booking{
		CraneID:   craneID,
		StartDate: dates[0],
		EndDate:   dates[len(dates)-1],
		Requester: "site-office",
	}
	for _, d := range dates {
		for _, slot := range slots {
			booking.Shifts = append(booking.Shifts, model.BookingShift{Date: d, ShiftDefinitionID: slot})
		}
	}
	require.NoError(t, s.CreateBooking(context.Background(), &booking))
	return booking
}
