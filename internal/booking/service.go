package booking

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"crane-availability-backend/internal/apperr"
	"crane-availability-backend/internal/keylock"
	"crane-availability-backend/internal/model"
	"crane-availability-backend/internal/shiftcalc"
	"crane-availability-backend/internal/store"
)

// maxBookingDays bounds the date range of a single booking.
const maxBookingDays = 366

var validate = validator.New()

// Request creates or replaces a booking. Slots maps each date (YYYY-MM-DD) of
// the inclusive range to the shift definition ids booked on it.
type Request struct {
	CraneID   int64              `json:"craneId" validate:"required"`
	StartDate string             `json:"startDate" validate:"required"`
	EndDate   string             `json:"endDate" validate:"required"`
	Slots     map[string][]int64 `json:"slots" validate:"required"`
	Requester string             `json:"requester" validate:"required,max=128"`
	Purpose   string             `json:"purpose"`
}

// Service creates, updates and cancels bookings. Every date of a booking is
// checked before anything is written; one bad date rejects the whole booking.
type Service struct {
	store store.Store
	log   *zap.Logger
	locks keylock.Map
}

// NewService creates a booking service.
func NewService(st store.Store, log *zap.Logger) *Service {
	return &Service{
		store: st,
		log:   log.Named("booking"),
	}
}

// Create validates and stores a new booking.
func (s *Service) Create(ctx context.Context, req Request) (*model.Booking, error) {
	booking, err := s.build(ctx, req)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(booking.CraneID)
	defer unlock()

	err = s.store.Transaction(ctx, func(tx store.Store) error {
		crane, err := tx.GetCrane(ctx, booking.CraneID)
		if err != nil {
			return err
		}
		if crane.Status == model.CraneStatusMaintenance {
			return apperr.Conflict("crane %d is under maintenance", crane.ID)
		}
		if err := checkConflicts(ctx, NewDetector(tx), booking, nil); err != nil {
			return err
		}
		return tx.CreateBooking(ctx, booking)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("booking created",
		zap.Int64("booking_id", booking.ID),
		zap.Int64("crane_id", booking.CraneID),
		zap.Int("shifts", len(booking.Shifts)))
	return booking, nil
}

// Update replaces the range and shift selection of an active booking. The
// booking's own slots do not count as conflicts.
func (s *Service) Update(ctx context.Context, bookingID int64, req Request) (*model.Booking, error) {
	booking, err := s.build(ctx, req)
	if err != nil {
		return nil, err
	}
	booking.ID = bookingID

	unlock := s.locks.Lock(booking.CraneID)
	defer unlock()

	err = s.store.Transaction(ctx, func(tx store.Store) error {
		existing, err := tx.GetBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if existing.Status == model.BookingStatusCancelled {
			return apperr.Validation("status", "booking %d is cancelled", bookingID)
		}
		if _, err := tx.GetCrane(ctx, booking.CraneID); err != nil {
			return err
		}
		if err := checkConflicts(ctx, NewDetector(tx), booking, &bookingID); err != nil {
			return err
		}
		booking.Status = existing.Status
		booking.CreatedAt = existing.CreatedAt
		return tx.ReplaceBooking(ctx, booking)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("booking updated", zap.Int64("booking_id", bookingID), zap.Int("shifts", len(booking.Shifts)))
	return booking, nil
}

// Cancel releases every slot held by the booking.
func (s *Service) Cancel(ctx context.Context, bookingID int64) error {
	if err := s.store.SetBookingStatus(ctx, bookingID, model.BookingStatusCancelled); err != nil {
		return err
	}
	s.log.Info("booking cancelled", zap.Int64("booking_id", bookingID))
	return nil
}

// build validates the request shape and returns an unsaved booking.
func (s *Service) build(ctx context.Context, req Request) (*model.Booking, error) {
	req.Requester = strings.TrimSpace(req.Requester)
	if err := validate.Struct(req); err != nil {
		return nil, apperr.FromValidation(err)
	}

	start, err := shiftcalc.ParseDate(req.StartDate)
	if err != nil {
		return nil, apperr.Validation("startDate", "%v", err)
	}
	end, err := shiftcalc.ParseDate(req.EndDate)
	if err != nil {
		return nil, apperr.Validation("endDate", "%v", err)
	}
	if end.Before(start) {
		return nil, apperr.Validation("endDate", "must not be before startDate")
	}
	if days := shiftcalc.DaysInclusive(start, end); days > maxBookingDays {
		return nil, apperr.Validation("endDate", "booking spans %d days, at most %d allowed", days, maxBookingDays)
	}

	slots := make(map[time.Time][]int64, len(req.Slots))
	for raw, ids := range req.Slots {
		date, err := shiftcalc.ParseDate(raw)
		if err != nil {
			return nil, apperr.Validation("slots", "%v", err)
		}
		if date.Before(start) || date.After(end) {
			return nil, apperr.Validation("slots", "date %s is outside the booking range", raw)
		}
		slots[date] = append(slots[date], ids...)
	}

	shiftDefs, err := s.store.ShiftDefinitions(ctx)
	if err != nil {
		return nil, err
	}

	booking := &model.Booking{
		CraneID:   req.CraneID,
		StartDate: start,
		EndDate:   end,
		Requester: req.Requester,
		Purpose:   req.Purpose,
		Status:    model.BookingStatusActive,
	}
	for _, date := range shiftcalc.EachDate(start, end) {
		ids := dedupe(slots[date])
		if len(ids) == 0 {
			return nil, apperr.Validation("slots", "no shift selected for %s", date.Format(shiftcalc.DateLayout))
		}
		for _, id := range ids {
			if _, ok := shiftDefs[id]; !ok {
				return nil, apperr.Validation("slots", "unknown shift %d on %s", id, date.Format(shiftcalc.DateLayout))
			}
			booking.Shifts = append(booking.Shifts, model.BookingShift{Date: date, ShiftDefinitionID: id})
		}
	}
	return booking, nil
}

// checkConflicts runs the detector for every booked date and fails on the first hit.
func checkConflicts(ctx context.Context, d *Detector, booking *model.Booking, excludeBookingID *int64) error {
	byDate := make(map[time.Time][]int64)
	var dates []time.Time
	for _, sh := range booking.Shifts {
		if _, ok := byDate[sh.Date]; !ok {
			dates = append(dates, sh.Date)
		}
		byDate[sh.Date] = append(byDate[sh.Date], sh.ShiftDefinitionID)
	}

	for _, date := range dates {
		conflicts, err := d.ConflictingSlots(ctx, booking.CraneID, date, byDate[date], excludeBookingID)
		if err != nil {
			return fmt.Errorf("failed to check conflicts on %s: %w", date.Format(shiftcalc.DateLayout), err)
		}
		if len(conflicts) > 0 {
			return apperr.Conflict("crane %d shift %d on %s is already booked",
				booking.CraneID, conflicts[0], date.Format(shiftcalc.DateLayout))
		}
	}
	return nil
}

func dedupe(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	out := append([]int64(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	n := 1
	for i := 1; i < len(out); i++ {
		if out[i] != out[n-1] {
			out[n] = out[i]
			n++
		}
	}
	return out[:n]
}
