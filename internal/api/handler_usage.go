package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"crane-availability-backend/internal/servicing"
	"crane-availability-backend/internal/usage"
)

// LogUsage handles POST /api/usage.
func (h *Handler) LogUsage(c *gin.Context) {
	var req usage.LogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}

	record, err := h.usage.Log(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, record)
}

// ListSubcategories handles GET /api/usage/subcategories[?category=&include_inactive=true].
func (h *Handler) ListSubcategories(c *gin.Context) {
	subs, err := h.usage.Subcategories(c.Request.Context(), c.Query("category"), c.Query("include_inactive") == "true")
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, subs)
}

// CreateSubcategory handles POST /api/usage/subcategories.
func (h *Handler) CreateSubcategory(c *gin.Context) {
	var req usage.SubcategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}

	sub, err := h.usage.AddSubcategory(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, sub)
}

// DeactivateSubcategory handles DELETE /api/usage/subcategories/:id.
func (h *Handler) DeactivateSubcategory(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.usage.Deactivate(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// CreateServicePlan handles POST /api/service-plans.
func (h *Handler) CreateServicePlan(c *gin.Context) {
	var req servicing.PlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}

	schedule, err := h.planner.Plan(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, schedule)
}
