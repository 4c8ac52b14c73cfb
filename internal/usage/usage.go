// Package usage records manually logged crane use against bookings and keeps
// the usage subcategories as editable reference data.
package usage

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"crane-availability-backend/internal/apperr"
	"crane-availability-backend/internal/model"
	"crane-availability-backend/internal/shiftcalc"
	"crane-availability-backend/internal/store"
)

var validate = validator.New()

// LogRequest logs one duration ("H:MM") of a category on a booked date.
type LogRequest struct {
	BookingID     int64  `json:"bookingId" validate:"required"`
	Date          string `json:"date" validate:"required"`
	Category      string `json:"category" validate:"required"`
	SubcategoryID *int64 `json:"subcategoryId"`
	Duration      string `json:"duration" validate:"required"`
	Notes         string `json:"notes" validate:"max=2000"`
}

// SubcategoryRequest adds a subcategory under a category.
type SubcategoryRequest struct {
	Category string `json:"category" validate:"required"`
	Name     string `json:"name" validate:"required,max=128"`
}

type Service struct {
	store store.Store
	log   *zap.Logger
}

func NewService(st store.Store, log *zap.Logger) *Service {
	return &Service{store: st, log: log.Named("usage")}
}

// Log validates and stores a usage record.
func (s *Service) Log(ctx context.Context, req LogRequest) (*model.UsageRecord, error) {
	if err := validate.Struct(req); err != nil {
		return nil, apperr.FromValidation(err)
	}

	category, err := model.ParseUsageCategory(req.Category)
	if err != nil {
		return nil, apperr.Validation("category", "%v", err)
	}
	minutes, err := shiftcalc.ParseDuration(req.Duration)
	if err != nil {
		return nil, apperr.Validation("duration", "%v", err)
	}
	date, err := shiftcalc.ParseDate(req.Date)
	if err != nil {
		return nil, apperr.Validation("date", "%v", err)
	}

	booking, err := s.store.GetBooking(ctx, req.BookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status == model.BookingStatusCancelled {
		return nil, apperr.Validation("bookingId", "booking %d is cancelled", booking.ID)
	}
	if date.Before(shiftcalc.DateOf(booking.StartDate)) || date.After(shiftcalc.DateOf(booking.EndDate)) {
		return nil, apperr.Validation("date", "%s is outside booking %d", req.Date, booking.ID)
	}

	if req.SubcategoryID != nil {
		sub, err := s.store.GetSubcategory(ctx, *req.SubcategoryID)
		if err != nil {
			return nil, err
		}
		if sub.Category != category {
			return nil, apperr.Validation("subcategoryId", "subcategory %q belongs to %s, not %s", sub.Name, sub.Category, category)
		}
		if !sub.Active {
			return nil, apperr.Validation("subcategoryId", "subcategory %q is inactive", sub.Name)
		}
	}

	record := &model.UsageRecord{
		BookingID:       booking.ID,
		Date:            date,
		Category:        category,
		SubcategoryID:   req.SubcategoryID,
		DurationMinutes: minutes,
		Notes:           strings.TrimSpace(req.Notes),
	}
	if err := s.store.CreateUsageRecord(ctx, record); err != nil {
		return nil, err
	}

	s.log.Info("usage logged",
		zap.Int64("booking_id", booking.ID),
		zap.String("category", string(category)),
		zap.Int("minutes", minutes))
	return record, nil
}

// Subcategories lists subcategories, optionally of one category only.
func (s *Service) Subcategories(ctx context.Context, category string, includeInactive bool) ([]model.UsageSubcategory, error) {
	var filter *model.UsageCategory
	if category != "" {
		c, err := model.ParseUsageCategory(category)
		if err != nil {
			return nil, apperr.Validation("category", "%v", err)
		}
		filter = &c
	}
	return s.store.ListSubcategories(ctx, filter, includeInactive)
}

// AddSubcategory creates an active subcategory.
func (s *Service) AddSubcategory(ctx context.Context, req SubcategoryRequest) (*model.UsageSubcategory, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := validate.Struct(req); err != nil {
		return nil, apperr.FromValidation(err)
	}
	category, err := model.ParseUsageCategory(req.Category)
	if err != nil {
		return nil, apperr.Validation("category", "%v", err)
	}

	sub := &model.UsageSubcategory{Category: category, Name: req.Name, Active: true}
	if err := s.store.CreateSubcategory(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// Deactivate hides a subcategory from new records. Existing records keep it.
func (s *Service) Deactivate(ctx context.Context, id int64) error {
	if err := s.store.SetSubcategoryActive(ctx, id, false); err != nil {
		return err
	}
	s.log.Info("usage subcategory deactivated", zap.Int64("subcategory_id", id))
	return nil
}
