package model

import (
	"fmt"
	"time"
)

// UsageCategory is the closed set of usage record categories.
type UsageCategory string

const (
	UsageOperating UsageCategory = "Operating"
	UsageDelay     UsageCategory = "Delay"
	UsageStandby   UsageCategory = "Standby"
	UsageService   UsageCategory = "Service"
	UsageBreakdown UsageCategory = "Breakdown"
)

// UsageCategories lists every category in display order.
var UsageCategories = []UsageCategory{UsageOperating, UsageDelay, UsageStandby, UsageService, UsageBreakdown}

// ParseUsageCategory validates a raw category name.
func ParseUsageCategory(s string) (UsageCategory, error) {
	for _, c := range UsageCategories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown usage category %q", s)
}

// UsageSubcategory is reference data under a category. Subcategories are
// deactivated rather than deleted so historic records keep their reference.
type UsageSubcategory struct {
	ID        int64         `gorm:"primaryKey" json:"id"`
	Category  UsageCategory `gorm:"size:16;not null;uniqueIndex:idx_usage_subcategory" json:"category"`
	Name      string        `gorm:"size:128;not null;uniqueIndex:idx_usage_subcategory" json:"name"`
	Active    bool          `gorm:"not null;default:true" json:"active"`
	CreatedAt time.Time     `gorm:"not null" json:"createdAt"`
	UpdatedAt time.Time     `gorm:"not null" json:"updatedAt"`
}

// UsageRecord is a manually logged duration of crane use for a booking.
type UsageRecord struct {
	ID              int64         `gorm:"primaryKey" json:"id"`
	BookingID       int64         `gorm:"not null;index" json:"bookingId"`
	Date            time.Time     `gorm:"not null;index" json:"date"`
	Category        UsageCategory `gorm:"size:16;not null" json:"category"`
	SubcategoryID   *int64        `json:"subcategoryId"`
	DurationMinutes int           `gorm:"not null" json:"durationMinutes"`
	Notes           string        `gorm:"type:text" json:"notes"`
	CreatedAt       time.Time     `gorm:"not null" json:"createdAt"`

	// Associations
	Booking     Booking           `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Subcategory *UsageSubcategory `json:"-"`
}

// Hours returns the logged duration in hours.
func (u UsageRecord) Hours() float64 {
	return float64(u.DurationMinutes) / 60
}
