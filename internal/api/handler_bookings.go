package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"crane-availability-backend/internal/booking"
	"crane-availability-backend/internal/shiftcalc"
)

// CreateBooking handles POST /api/bookings.
func (h *Handler) CreateBooking(c *gin.Context) {
	var req booking.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}

	b, err := h.bookings.Create(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

// UpdateBooking handles PUT /api/bookings/:id.
func (h *Handler) UpdateBooking(c *gin.Context) {
	bookingID, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req booking.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}

	b, err := h.bookings.Update(c.Request.Context(), bookingID, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// CancelBooking handles POST /api/bookings/:id/cancel.
func (h *Handler) CancelBooking(c *gin.Context) {
	bookingID, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.bookings.Cancel(c.Request.Context(), bookingID); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetConflicts handles GET /api/cranes/:id/conflicts?date=&slots=1,2[&exclude_booking_id=].
func (h *Handler) GetConflicts(c *gin.Context) {
	craneID, ok := idParam(c, "id")
	if !ok {
		return
	}

	date, err := shiftcalc.ParseDate(c.Query("date"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	var slots []int64
	for _, raw := range strings.Split(c.Query("slots"), ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		slot, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			badRequest(c, "invalid slots")
			return
		}
		slots = append(slots, slot)
	}
	if len(slots) == 0 {
		badRequest(c, "slots is required")
		return
	}

	var exclude *int64
	if raw := c.Query("exclude_booking_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			badRequest(c, "invalid exclude_booking_id")
			return
		}
		exclude = &id
	}

	conflicts, err := h.detector.ConflictingSlots(c.Request.Context(), craneID, date, slots, exclude)
	if err != nil {
		h.fail(c, err)
		return
	}
	if conflicts == nil {
		conflicts = []int64{}
	}
	c.JSON(http.StatusOK, gin.H{
		"conflict": len(conflicts) > 0,
		"slots":    conflicts,
	})
}
