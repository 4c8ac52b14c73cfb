package notification

import (
	"context"
	"fmt"
	"time"
)

// EventKind distinguishes maintenance notifications.
type EventKind string

const (
	EventMaintenanceStarted EventKind = "maintenance_started"
	EventMaintenanceEnded   EventKind = "maintenance_ended"
)

// Event is a maintenance state change of a crane. Started events carry the
// planned window and reasons so the booking side can relocate affected work.
type Event struct {
	Kind      EventKind `json:"kind"`
	CraneID   int64     `json:"craneId"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Reasons   string    `json:"reasons,omitempty"`
	Manual    bool      `json:"manual,omitempty"`
}

// Publisher delivers events fire-and-forget. Implementations must not block
// the caller on delivery.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

// Message renders the human-readable notification body.
func (ev Event) Message(craneLabel string) string {
	switch ev.Kind {
	case EventMaintenanceStarted:
		return fmt.Sprintf("Crane %s is under maintenance until %s: %s",
			craneLabel, ev.EndTime.UTC().Format("2006-01-02 15:04 MST"), ev.Reasons)
	case EventMaintenanceEnded:
		if ev.Manual {
			return fmt.Sprintf("Crane %s was returned to service early", craneLabel)
		}
		return fmt.Sprintf("Crane %s is available again", craneLabel)
	default:
		return fmt.Sprintf("Crane %s changed state", craneLabel)
	}
}
