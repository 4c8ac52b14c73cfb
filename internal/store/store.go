package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"crane-availability-backend/internal/apperr"
	"crane-availability-backend/internal/model"
)

// Store defines the interface for all database operations.
type Store interface {
	DB() *gorm.DB
	// Transaction runs fn against a Store bound to a single database transaction.
	Transaction(ctx context.Context, fn func(tx Store) error) error

	CreateCrane(ctx context.Context, crane *model.Crane) error
	GetCrane(ctx context.Context, id int64) (*model.Crane, error)
	ListCranes(ctx context.Context, craneID *int64) ([]model.Crane, error)
	SetCraneStatus(ctx context.Context, id int64, status model.CraneStatus) error
	DeleteCrane(ctx context.Context, id int64) error

	CreateBreakdown(ctx context.Context, breakdown *model.Breakdown) error
	OpenBreakdown(ctx context.Context, craneID int64) (*model.Breakdown, error)
	LatestBreakdown(ctx context.Context, craneID int64) (*model.Breakdown, error)
	CloseBreakdown(ctx context.Context, id int64, at time.Time) (bool, error)
	SetBreakdownJobHandle(ctx context.Context, id int64, handle *string) error
	BreakdownsWithJobHandle(ctx context.Context, craneID int64) ([]model.Breakdown, error)
	DeleteBreakdowns(ctx context.Context, craneID int64) error
	BreakdownsInRange(ctx context.Context, craneIDs []int64, from, to time.Time) ([]model.Breakdown, error)

	ShiftDefinitions(ctx context.Context) (map[int64]model.ShiftDefinition, error)

	CreateBooking(ctx context.Context, booking *model.Booking) error
	GetBooking(ctx context.Context, id int64) (*model.Booking, error)
	ReplaceBooking(ctx context.Context, booking *model.Booking) error
	SetBookingStatus(ctx context.Context, id int64, status model.BookingStatus) error
	OccupiedSlots(ctx context.Context, craneID int64, date time.Time, excludeBookingID *int64) ([]int64, error)
	BookingShiftsInRange(ctx context.Context, craneIDs []int64, from, to time.Time) ([]CraneBookingShift, error)

	CreateMaintenanceSchedule(ctx context.Context, schedule *model.MaintenanceSchedule) error
	MaintenanceShiftsInRange(ctx context.Context, craneIDs []int64, from, to time.Time) ([]CraneMaintenanceShift, error)

	CreateUsageRecord(ctx context.Context, record *model.UsageRecord) error
	UsageRecordsInRange(ctx context.Context, craneIDs []int64, from, to time.Time) ([]CraneUsageRecord, error)
	CreateSubcategory(ctx context.Context, sub *model.UsageSubcategory) error
	GetSubcategory(ctx context.Context, id int64) (*model.UsageSubcategory, error)
	ListSubcategories(ctx context.Context, category *model.UsageCategory, includeInactive bool) ([]model.UsageSubcategory, error)
	SetSubcategoryActive(ctx context.Context, id int64, active bool) error
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

func (s *gormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
}

// --- Cranes ---

func (s *gormStore) CreateCrane(ctx context.Context, crane *model.Crane) error {
	if crane.Status == "" {
		crane.Status = model.CraneStatusAvailable
	}
	if err := s.db.WithContext(ctx).Create(crane).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperr.Conflict("crane %q already exists", crane.Name)
		}
		return fmt.Errorf("failed to create crane %q: %w", crane.Name, err)
	}
	return nil
}

func (s *gormStore) GetCrane(ctx context.Context, id int64) (*model.Crane, error) {
	var crane model.Crane
	if err := s.db.WithContext(ctx).First(&crane, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("crane", id)
		}
		return nil, fmt.Errorf("failed to load crane %d: %w", id, err)
	}
	return &crane, nil
}

// ListCranes returns every crane ordered by id, or only craneID when given.
func (s *gormStore) ListCranes(ctx context.Context, craneID *int64) ([]model.Crane, error) {
	q := s.db.WithContext(ctx).Order("id")
	if craneID != nil {
		q = q.Where("id = ?", *craneID)
	}
	var cranes []model.Crane
	if err := q.Find(&cranes).Error; err != nil {
		return nil, fmt.Errorf("failed to list cranes: %w", err)
	}
	return cranes, nil
}

func (s *gormStore) SetCraneStatus(ctx context.Context, id int64, status model.CraneStatus) error {
	res := s.db.WithContext(ctx).Model(&model.Crane{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return fmt.Errorf("failed to set status of crane %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("crane", id)
	}
	return nil
}

func (s *gormStore) DeleteCrane(ctx context.Context, id int64) error {
	if err := s.db.WithContext(ctx).Exec("DELETE FROM subscription_crane_mapping WHERE crane_id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to unlink subscriptions of crane %d: %w", id, err)
	}
	res := s.db.WithContext(ctx).Delete(&model.Crane{}, id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete crane %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("crane", id)
	}
	return nil
}

// --- Breakdowns ---

func (s *gormStore) CreateBreakdown(ctx context.Context, breakdown *model.Breakdown) error {
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(breakdown).Error; err != nil {
		return fmt.Errorf("failed to create breakdown for crane %d: %w", breakdown.CraneID, err)
	}
	return nil
}

// OpenBreakdown returns the newest breakdown without an actual end, or nil.
func (s *gormStore) OpenBreakdown(ctx context.Context, craneID int64) (*model.Breakdown, error) {
	var rows []model.Breakdown
	if err := s.db.WithContext(ctx).
		Where("crane_id = ? AND actual_urgent_end_time IS NULL", craneID).
		Order("id DESC").Limit(1).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load open breakdown of crane %d: %w", craneID, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// LatestBreakdown returns the most recently created breakdown, or nil.
func (s *gormStore) LatestBreakdown(ctx context.Context, craneID int64) (*model.Breakdown, error) {
	var rows []model.Breakdown
	if err := s.db.WithContext(ctx).
		Where("crane_id = ?", craneID).
		Order("id DESC").Limit(1).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load latest breakdown of crane %d: %w", craneID, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// CloseBreakdown sets the actual end of a still-open breakdown and clears its
// job handle. It reports false when the breakdown was already closed.
func (s *gormStore) CloseBreakdown(ctx context.Context, id int64, at time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&model.Breakdown{}).
		Where("id = ? AND actual_urgent_end_time IS NULL", id).
		Updates(map[string]any{
			"actual_urgent_end_time": at.UTC(),
			"job_handle":             nil,
			"version":                gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to close breakdown %d: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *gormStore) SetBreakdownJobHandle(ctx context.Context, id int64, handle *string) error {
	if err := s.db.WithContext(ctx).Model(&model.Breakdown{}).
		Where("id = ?", id).
		Update("job_handle", handle).Error; err != nil {
		return fmt.Errorf("failed to store job handle on breakdown %d: %w", id, err)
	}
	return nil
}

func (s *gormStore) BreakdownsWithJobHandle(ctx context.Context, craneID int64) ([]model.Breakdown, error) {
	var rows []model.Breakdown
	if err := s.db.WithContext(ctx).
		Where("crane_id = ? AND job_handle IS NOT NULL", craneID).
		Order("id").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load scheduled breakdowns of crane %d: %w", craneID, err)
	}
	return rows, nil
}

func (s *gormStore) DeleteBreakdowns(ctx context.Context, craneID int64) error {
	if err := s.db.WithContext(ctx).Where("crane_id = ?", craneID).Delete(&model.Breakdown{}).Error; err != nil {
		return fmt.Errorf("failed to delete breakdowns of crane %d: %w", craneID, err)
	}
	return nil
}

// BreakdownsInRange returns breakdowns whose effective interval intersects [from, to).
func (s *gormStore) BreakdownsInRange(ctx context.Context, craneIDs []int64, from, to time.Time) ([]model.Breakdown, error) {
	if len(craneIDs) == 0 {
		return nil, nil
	}
	var rows []model.Breakdown
	if err := s.db.WithContext(ctx).
		Where("crane_id IN ?", craneIDs).
		Where("urgent_start_time < ?", to.UTC()).
		Where("COALESCE(actual_urgent_end_time, urgent_end_time) > ?", from.UTC()).
		Order("crane_id, urgent_start_time").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load breakdowns in range: %w", err)
	}
	return rows, nil
}

// --- Shift definitions ---

func (s *gormStore) ShiftDefinitions(ctx context.Context) (map[int64]model.ShiftDefinition, error) {
	var shifts []model.ShiftDefinition
	if err := s.db.WithContext(ctx).Find(&shifts).Error; err != nil {
		return nil, fmt.Errorf("failed to load shift definitions: %w", err)
	}
	shiftMap := make(map[int64]model.ShiftDefinition, len(shifts))
	for _, sd := range shifts {
		shiftMap[sd.ID] = sd
	}
	return shiftMap, nil
}

// --- Bookings ---

func (s *gormStore) CreateBooking(ctx context.Context, booking *model.Booking) error {
	if booking.Status == "" {
		booking.Status = model.BookingStatusActive
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		shifts := booking.Shifts
		if err := tx.Omit(clause.Associations).Create(booking).Error; err != nil {
			return fmt.Errorf("failed to create booking for crane %d: %w", booking.CraneID, err)
		}
		if err := insertBookingShifts(tx, booking.ID, shifts); err != nil {
			return err
		}
		booking.Shifts = shifts
		return nil
	})
}

func (s *gormStore) GetBooking(ctx context.Context, id int64) (*model.Booking, error) {
	var booking model.Booking
	if err := s.db.WithContext(ctx).Preload("Shifts").First(&booking, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("booking", id)
		}
		return nil, fmt.Errorf("failed to load booking %d: %w", id, err)
	}
	return &booking, nil
}

// ReplaceBooking updates the booking's own columns and swaps its shift rows
// for booking.Shifts.
func (s *gormStore) ReplaceBooking(ctx context.Context, booking *model.Booking) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Booking{}).Where("id = ?", booking.ID).Updates(map[string]any{
			"crane_id":   booking.CraneID,
			"start_date": booking.StartDate,
			"end_date":   booking.EndDate,
			"requester":  booking.Requester,
			"purpose":    booking.Purpose,
		})
		if res.Error != nil {
			return fmt.Errorf("failed to update booking %d: %w", booking.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.NotFound("booking", booking.ID)
		}
		if err := tx.Where("booking_id = ?", booking.ID).Delete(&model.BookingShift{}).Error; err != nil {
			return fmt.Errorf("failed to clear shifts of booking %d: %w", booking.ID, err)
		}
		return insertBookingShifts(tx, booking.ID, booking.Shifts)
	})
}

func insertBookingShifts(tx *gorm.DB, bookingID int64, shifts []model.BookingShift) error {
	if len(shifts) == 0 {
		return nil
	}
	for i := range shifts {
		shifts[i].ID = 0
		shifts[i].BookingID = bookingID
	}
	if err := tx.Omit(clause.Associations).Create(&shifts).Error; err != nil {
		return fmt.Errorf("failed to insert shifts of booking %d: %w", bookingID, err)
	}
	return nil
}

func (s *gormStore) SetBookingStatus(ctx context.Context, id int64, status model.BookingStatus) error {
	res := s.db.WithContext(ctx).Model(&model.Booking{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return fmt.Errorf("failed to set status of booking %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("booking", id)
	}
	return nil
}

// OccupiedSlots returns the shift definition ids held on date by active
// bookings of the crane, skipping excludeBookingID when given.
func (s *gormStore) OccupiedSlots(ctx context.Context, craneID int64, date time.Time, excludeBookingID *int64) ([]int64, error) {
	dayStart := date.UTC()
	dayEnd := dayStart.AddDate(0, 0, 1)

	q := s.db.WithContext(ctx).Table("booking_shifts").
		Joins("JOIN bookings ON bookings.id = booking_shifts.booking_id").
		Where("bookings.crane_id = ? AND bookings.status <> ?", craneID, model.BookingStatusCancelled).
		Where("booking_shifts.date >= ? AND booking_shifts.date < ?", dayStart, dayEnd)
	if excludeBookingID != nil {
		q = q.Where("booking_shifts.booking_id <> ?", *excludeBookingID)
	}

	var slots []int64
	if err := q.Distinct().Pluck("booking_shifts.shift_definition_id", &slots).Error; err != nil {
		return nil, fmt.Errorf("failed to load occupied slots of crane %d: %w", craneID, err)
	}
	return slots, nil
}

func (s *gormStore) BookingShiftsInRange(ctx context.Context, craneIDs []int64, from, to time.Time) ([]CraneBookingShift, error) {
	if len(craneIDs) == 0 {
		return nil, nil
	}
	var rows []CraneBookingShift
	if err := s.db.WithContext(ctx).Table("booking_shifts").
		Select("booking_shifts.id, booking_shifts.booking_id, bookings.crane_id, booking_shifts.date, booking_shifts.shift_definition_id").
		Joins("JOIN bookings ON bookings.id = booking_shifts.booking_id").
		Where("bookings.crane_id IN ? AND bookings.status <> ?", craneIDs, model.BookingStatusCancelled).
		Where("booking_shifts.date >= ? AND booking_shifts.date < ?", from.UTC(), to.UTC()).
		Order("booking_shifts.id").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load booking shifts in range: %w", err)
	}
	return rows, nil
}

// --- Maintenance schedules ---

func (s *gormStore) CreateMaintenanceSchedule(ctx context.Context, schedule *model.MaintenanceSchedule) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		shifts := schedule.Shifts
		if err := tx.Omit(clause.Associations).Create(schedule).Error; err != nil {
			return fmt.Errorf("failed to create maintenance schedule for crane %d: %w", schedule.CraneID, err)
		}
		if len(shifts) > 0 {
			for i := range shifts {
				shifts[i].MaintenanceScheduleID = schedule.ID
			}
			if err := tx.Omit(clause.Associations).Create(&shifts).Error; err != nil {
				return fmt.Errorf("failed to insert shifts of maintenance schedule %d: %w", schedule.ID, err)
			}
		}
		schedule.Shifts = shifts
		return nil
	})
}

func (s *gormStore) MaintenanceShiftsInRange(ctx context.Context, craneIDs []int64, from, to time.Time) ([]CraneMaintenanceShift, error) {
	if len(craneIDs) == 0 {
		return nil, nil
	}
	var rows []CraneMaintenanceShift
	if err := s.db.WithContext(ctx).Table("maintenance_schedule_shifts").
		Select("maintenance_schedule_shifts.id, maintenance_schedules.crane_id, maintenance_schedule_shifts.date, " +
			"maintenance_schedule_shifts.shift_definition_id, maintenance_schedule_shifts.start_time, maintenance_schedule_shifts.end_time, " +
			"shift_definitions.start_time AS shift_start_time, shift_definitions.end_time AS shift_end_time").
		Joins("JOIN maintenance_schedules ON maintenance_schedules.id = maintenance_schedule_shifts.maintenance_schedule_id").
		Joins("LEFT JOIN shift_definitions ON shift_definitions.id = maintenance_schedule_shifts.shift_definition_id").
		Where("maintenance_schedules.crane_id IN ?", craneIDs).
		Where("maintenance_schedule_shifts.date >= ? AND maintenance_schedule_shifts.date < ?", from.UTC(), to.UTC()).
		Order("maintenance_schedule_shifts.id").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load maintenance shifts in range: %w", err)
	}
	return rows, nil
}

// --- Usage ---

func (s *gormStore) CreateUsageRecord(ctx context.Context, record *model.UsageRecord) error {
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(record).Error; err != nil {
		return fmt.Errorf("failed to create usage record for booking %d: %w", record.BookingID, err)
	}
	return nil
}

func (s *gormStore) UsageRecordsInRange(ctx context.Context, craneIDs []int64, from, to time.Time) ([]CraneUsageRecord, error) {
	if len(craneIDs) == 0 {
		return nil, nil
	}
	var rows []CraneUsageRecord
	if err := s.db.WithContext(ctx).Table("usage_records").
		Select("usage_records.id, usage_records.booking_id, bookings.crane_id, usage_records.date, usage_records.category, usage_records.duration_minutes").
		Joins("JOIN bookings ON bookings.id = usage_records.booking_id").
		Where("bookings.crane_id IN ?", craneIDs).
		Where("usage_records.date >= ? AND usage_records.date < ?", from.UTC(), to.UTC()).
		Order("usage_records.id").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load usage records in range: %w", err)
	}
	return rows, nil
}

func (s *gormStore) CreateSubcategory(ctx context.Context, sub *model.UsageSubcategory) error {
	if err := s.db.WithContext(ctx).Create(sub).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperr.Conflict("usage subcategory %q already exists in %s", sub.Name, sub.Category)
		}
		return fmt.Errorf("failed to create usage subcategory %q: %w", sub.Name, err)
	}
	return nil
}

func (s *gormStore) GetSubcategory(ctx context.Context, id int64) (*model.UsageSubcategory, error) {
	var sub model.UsageSubcategory
	if err := s.db.WithContext(ctx).First(&sub, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("usage subcategory", id)
		}
		return nil, fmt.Errorf("failed to load usage subcategory %d: %w", id, err)
	}
	return &sub, nil
}

func (s *gormStore) ListSubcategories(ctx context.Context, category *model.UsageCategory, includeInactive bool) ([]model.UsageSubcategory, error) {
	q := s.db.WithContext(ctx).Order("category, name")
	if category != nil {
		q = q.Where("category = ?", *category)
	}
	if !includeInactive {
		q = q.Where("active = ?", true)
	}
	var subs []model.UsageSubcategory
	if err := q.Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to list usage subcategories: %w", err)
	}
	return subs, nil
}

func (s *gormStore) SetSubcategoryActive(ctx context.Context, id int64, active bool) error {
	res := s.db.WithContext(ctx).Model(&model.UsageSubcategory{}).Where("id = ?", id).Update("active", active)
	if res.Error != nil {
		return fmt.Errorf("failed to update usage subcategory %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("usage subcategory", id)
	}
	return nil
}
