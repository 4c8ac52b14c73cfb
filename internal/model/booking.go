package model

import "time"

// BookingStatus tracks whether a booking still holds its shift slots.
type BookingStatus string

const (
	BookingStatusActive    BookingStatus = "active"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// Booking reserves a crane over an inclusive date range.
type Booking struct {
	ID        int64         `gorm:"primaryKey" json:"id"`
	CraneID   int64         `gorm:"not null;index" json:"craneId"`
	StartDate time.Time     `gorm:"not null" json:"startDate"`
	EndDate   time.Time     `gorm:"not null" json:"endDate"`
	Requester string        `gorm:"size:128;not null" json:"requester"`
	Purpose   string        `gorm:"type:text" json:"purpose"`
	Status    BookingStatus `gorm:"size:16;not null;default:active;index" json:"status"`
	CreatedAt time.Time     `gorm:"not null" json:"createdAt"`
	UpdatedAt time.Time     `gorm:"not null" json:"updatedAt"`

	// Associations
	Crane  Crane          `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Shifts []BookingShift `gorm:"foreignKey:BookingID" json:"shifts,omitempty"`
}

// BookingShift is one booked shift slot of a booking on a date.
type BookingShift struct {
	ID                int64     `gorm:"primaryKey" json:"id"`
	BookingID         int64     `gorm:"not null;index" json:"bookingId"`
	Date              time.Time `gorm:"not null;index" json:"date"`
	ShiftDefinitionID int64     `gorm:"not null" json:"shiftDefinitionId"`

	// Associations
	Booking         Booking         `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	ShiftDefinition ShiftDefinition `json:"-"`
}
