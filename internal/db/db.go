package db

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"crane-availability-backend/config"
	"crane-availability-backend/internal/model"
)

// DefaultShifts are seeded on first start when no shift definitions exist.
var DefaultShifts = []model.ShiftDefinition{
	{Name: "Day Shift", StartTime: "07:00", EndTime: "19:00"},
	{Name: "Night Shift", StartTime: "19:00", EndTime: "07:00"},
}

// Init opens the configured database, applies pool settings and runs migrations.
func Init(cfg *config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		dialector = postgres.Open(cfg.DSN)
	}

	logLevel := logger.Warn
	if cfg.LogSQL {
		logLevel = logger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetimeMinutes > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	}

	log.Info("running database migrations", zap.String("driver", cfg.Driver))
	if err := Migrate(db); err != nil {
		return nil, err
	}

	if cfg.SeedDefaultShifts {
		seeded, err := SeedDefaultShifts(db)
		if err != nil {
			return nil, err
		}
		if seeded > 0 {
			log.Info("seeded default shift definitions", zap.Int("count", seeded))
		}
	}

	log.Info("database initialization complete")
	return db, nil
}

// Migrate creates or updates every table the service uses.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.Crane{},
		&model.Breakdown{},
		&model.ShiftDefinition{},
		&model.Booking{},
		&model.BookingShift{},
		&model.MaintenanceSchedule{},
		&model.MaintenanceScheduleShift{},
		&model.UsageSubcategory{},
		&model.UsageRecord{},
		&model.ScheduledJob{},
		&model.PushSubscription{},
	); err != nil {
		return fmt.Errorf("automigrate failed: %w", err)
	}
	return nil
}

// SeedDefaultShifts inserts DefaultShifts when the shift table is empty and
// returns how many rows were written.
func SeedDefaultShifts(db *gorm.DB) (int, error) {
	var count int64
	if err := db.Model(&model.ShiftDefinition{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count shift definitions: %w", err)
	}
	if count > 0 {
		return 0, nil
	}

	shifts := make([]model.ShiftDefinition, len(DefaultShifts))
	copy(shifts, DefaultShifts)
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&shifts).Error; err != nil {
		return 0, fmt.Errorf("failed to seed shift definitions: %w", err)
	}
	return len(shifts), nil
}
