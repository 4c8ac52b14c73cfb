package model

import "time"

// CraneStatus is the availability state of a crane. It is derived state and
// only changes through the availability state machine.
type CraneStatus string

const (
	CraneStatusAvailable   CraneStatus = "Available"
	CraneStatusMaintenance CraneStatus = "Maintenance"
)

// Crane is a bookable crane.
type Crane struct {
	ID         int64       `gorm:"primaryKey" json:"id"`
	Name       string      `gorm:"uniqueIndex;size:128;not null" json:"name"`
	CapacityTn float64     `gorm:"not null;default:0" json:"capacityTonnes"`
	Location   string      `gorm:"size:128" json:"location"`
	Status     CraneStatus `gorm:"size:16;not null;default:Available;index" json:"status"`
	CreatedAt  time.Time   `gorm:"not null" json:"createdAt"`
	UpdatedAt  time.Time   `gorm:"not null" json:"updatedAt"`
}

// Breakdown is one maintenance episode of a crane. UrgentEndTime is fixed at
// creation; ActualUrgentEndTime stays nil while the episode is open.
type Breakdown struct {
	ID                  int64      `gorm:"primaryKey" json:"id"`
	CraneID             int64      `gorm:"not null;index" json:"craneId"`
	UrgentStartTime     time.Time  `gorm:"not null;index" json:"urgentStartTime"`
	EstimatedDays       int        `gorm:"not null;default:0" json:"estimatedDays"`
	EstimatedHours      int        `gorm:"not null;default:0" json:"estimatedHours"`
	UrgentEndTime       time.Time  `gorm:"not null" json:"urgentEndTime"`
	ActualUrgentEndTime *time.Time `gorm:"index" json:"actualUrgentEndTime"`
	JobHandle           *string    `gorm:"size:64" json:"-"`
	Reasons             string     `gorm:"type:text;not null" json:"reasons"`
	Version             int        `gorm:"not null;default:0" json:"-"`
	CreatedAt           time.Time  `gorm:"not null" json:"createdAt"`
	UpdatedAt           time.Time  `gorm:"not null" json:"updatedAt"`

	// Associations
	Crane Crane `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// IsOpen reports whether the episode has not been closed yet.
func (b Breakdown) IsOpen() bool {
	return b.ActualUrgentEndTime == nil
}

// EffectiveEnd is the actual end when known, otherwise the estimated end.
func (b Breakdown) EffectiveEnd() time.Time {
	if b.ActualUrgentEndTime != nil {
		return *b.ActualUrgentEndTime
	}
	return b.UrgentEndTime
}
