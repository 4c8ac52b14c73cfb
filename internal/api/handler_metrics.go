package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"crane-availability-backend/internal/shiftcalc"
)

// GetMetrics handles GET /api/metrics?start=YYYY-MM-DD&end=YYYY-MM-DD[&crane_id=N].
func (h *Handler) GetMetrics(c *gin.Context) {
	start, err := shiftcalc.ParseDate(c.Query("start"))
	if err != nil {
		badRequest(c, "invalid start: "+err.Error())
		return
	}
	end, err := shiftcalc.ParseDate(c.Query("end"))
	if err != nil {
		badRequest(c, "invalid end: "+err.Error())
		return
	}

	var craneID *int64
	if raw := c.Query("crane_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			badRequest(c, "invalid crane_id")
			return
		}
		craneID = &id
	}

	report, err := h.engine.ComputeMetrics(c.Request.Context(), start, end, craneID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
