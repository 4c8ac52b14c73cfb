// Package booking guards the shift schedule: a (crane, date, shift slot) is
// held by at most one active booking.
package booking

import (
	"context"
	"sort"
	"time"

	"crane-availability-backend/internal/shiftcalc"
	"crane-availability-backend/internal/store"
)

// Detector answers whether requested shift slots are already taken.
type Detector struct {
	store store.Store
}

// NewDetector creates a conflict detector reading from st.
func NewDetector(st store.Store) *Detector {
	return &Detector{store: st}
}

// ConflictingSlots returns the requested slots already held on date by another
// active booking of the crane, in ascending order.
func (d *Detector) ConflictingSlots(ctx context.Context, craneID int64, date time.Time, requested []int64, excludeBookingID *int64) ([]int64, error) {
	occupied, err := d.store.OccupiedSlots(ctx, craneID, shiftcalc.DateOf(date), excludeBookingID)
	if err != nil {
		return nil, err
	}
	if len(occupied) == 0 {
		return nil, nil
	}

	taken := make(map[int64]struct{}, len(occupied))
	for _, slot := range occupied {
		taken[slot] = struct{}{}
	}

	var conflicts []int64
	seen := make(map[int64]struct{}, len(requested))
	for _, slot := range requested {
		if _, dup := seen[slot]; dup {
			continue
		}
		seen[slot] = struct{}{}
		if _, ok := taken[slot]; ok {
			conflicts = append(conflicts, slot)
		}
	}
	sort.Slice(conflicts, func(i, j int) bool { return conflicts[i] < conflicts[j] })
	return conflicts, nil
}

// HasConflict reports whether any requested slot is already booked.
func (d *Detector) HasConflict(ctx context.Context, craneID int64, date time.Time, requested []int64, excludeBookingID *int64) (bool, error) {
	conflicts, err := d.ConflictingSlots(ctx, craneID, date, requested, excludeBookingID)
	if err != nil {
		return false, err
	}
	return len(conflicts) > 0, nil
}
