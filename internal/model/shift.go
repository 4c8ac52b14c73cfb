package model

import "time"

// ShiftDefinition is a named time-of-day interval a crane can be booked
// against. EndTime earlier than StartTime means the shift crosses midnight.
type ShiftDefinition struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"uniqueIndex;size:64;not null" json:"name"`
	StartTime string    `gorm:"size:8;not null" json:"startTime"` // "07:00"
	EndTime   string    `gorm:"size:8;not null" json:"endTime"`   // "19:00"
	CreatedAt time.Time `gorm:"not null" json:"createdAt"`
	UpdatedAt time.Time `gorm:"not null" json:"updatedAt"`
}

// MaintenanceSchedule is a planned servicing programme for a crane.
type MaintenanceSchedule struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	CraneID   int64     `gorm:"not null;index" json:"craneId"`
	Title     string    `gorm:"size:256;not null" json:"title"`
	RRule     string    `gorm:"size:512" json:"rrule"`
	CreatedAt time.Time `gorm:"not null" json:"createdAt"`
	UpdatedAt time.Time `gorm:"not null" json:"updatedAt"`

	// Associations
	Crane  Crane                      `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Shifts []MaintenanceScheduleShift `gorm:"foreignKey:MaintenanceScheduleID" json:"shifts,omitempty"`
}

// MaintenanceScheduleShift is one planned servicing slot. StartTime and
// EndTime are captured overrides; when empty the shift definition's times apply.
type MaintenanceScheduleShift struct {
	ID                    int64     `gorm:"primaryKey" json:"id"`
	MaintenanceScheduleID int64     `gorm:"not null;index" json:"maintenanceScheduleId"`
	Date                  time.Time `gorm:"not null;index" json:"date"`
	ShiftDefinitionID     int64     `gorm:"not null" json:"shiftDefinitionId"`
	StartTime             string    `gorm:"size:8" json:"startTime,omitempty"`
	EndTime               string    `gorm:"size:8" json:"endTime,omitempty"`

	// Associations
	MaintenanceSchedule MaintenanceSchedule `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	ShiftDefinition     ShiftDefinition     `json:"-"`
}
