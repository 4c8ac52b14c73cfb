package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"crane-availability-backend/internal/availability"
	"crane-availability-backend/internal/model"
)

// CraneResponse is a crane with its open maintenance window, if any.
type CraneResponse struct {
	model.Crane
	MaintenanceUntil *time.Time `json:"maintenanceUntil,omitempty"`
	Reasons          string     `json:"reasons,omitempty"`
}

// ListCranes handles GET /api/cranes.
func (h *Handler) ListCranes(c *gin.Context) {
	cranes, err := h.store.ListCranes(c.Request.Context(), nil)
	if err != nil {
		h.fail(c, err)
		return
	}

	resp := make([]CraneResponse, 0, len(cranes))
	for _, crane := range cranes {
		item := CraneResponse{Crane: crane}
		if crane.Status == model.CraneStatusMaintenance {
			open, err := h.store.OpenBreakdown(c.Request.Context(), crane.ID)
			if err != nil {
				h.fail(c, err)
				return
			}
			if open != nil {
				end := open.UrgentEndTime
				item.MaintenanceUntil = &end
				item.Reasons = open.Reasons
			}
		}
		resp = append(resp, item)
	}
	c.JSON(http.StatusOK, resp)
}

type createCraneRequest struct {
	Name       string  `json:"name" binding:"required,max=128"`
	CapacityTn float64 `json:"capacityTonnes" binding:"gte=0"`
	Location   string  `json:"location" binding:"max=128"`
}

// CreateCrane handles POST /api/cranes. New cranes start Available.
func (h *Handler) CreateCrane(c *gin.Context) {
	var req createCraneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}

	crane := model.Crane{
		Name:       strings.TrimSpace(req.Name),
		CapacityTn: req.CapacityTn,
		Location:   req.Location,
	}
	if err := h.store.CreateCrane(c.Request.Context(), &crane); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, crane)
}

// StartMaintenance handles POST /api/cranes/:id/maintenance.
func (h *Handler) StartMaintenance(c *gin.Context) {
	craneID, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req availability.StartMaintenanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	req.CraneID = craneID

	breakdown, err := h.machine.StartMaintenance(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, breakdown)
}

type recoverRequest struct {
	At *time.Time `json:"at"`
}

// ManualRecover handles POST /api/cranes/:id/recover. The body is optional.
func (h *Handler) ManualRecover(c *gin.Context) {
	craneID, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req recoverRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request")
			return
		}
	}
	var at time.Time
	if req.At != nil {
		at = *req.At
	}

	breakdown, err := h.machine.ManualRecover(c.Request.Context(), craneID, at)
	if err != nil {
		h.fail(c, err)
		return
	}
	if breakdown == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, breakdown)
}

// DeleteCrane handles DELETE /api/cranes/:id.
func (h *Handler) DeleteCrane(c *gin.Context) {
	craneID, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.machine.DeleteCrane(c.Request.Context(), craneID); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
