package api

import (
	"net/http"
	"strconv"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"crane-availability-backend/internal/accounting"
	"crane-availability-backend/internal/apperr"
	"crane-availability-backend/internal/availability"
	"crane-availability-backend/internal/booking"
	"crane-availability-backend/internal/servicing"
	"crane-availability-backend/internal/store"
	"crane-availability-backend/internal/usage"
)

// Deps are the services the handlers call into.
type Deps struct {
	Store    store.Store
	Machine  *availability.Machine
	Bookings *booking.Service
	Usage    *usage.Service
	Engine   *accounting.Engine
	Planner  *servicing.Planner
	WebPush  *webpush.Options
	Log      *zap.Logger
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store    store.Store
	machine  *availability.Machine
	bookings *booking.Service
	detector *booking.Detector
	usage    *usage.Service
	engine   *accounting.Engine
	planner  *servicing.Planner
	webpush  *webpush.Options
	log      *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	h := &Handler{
		store:    d.Store,
		machine:  d.Machine,
		bookings: d.Bookings,
		usage:    d.Usage,
		engine:   d.Engine,
		planner:  d.Planner,
		webpush:  d.WebPush,
		log:      log.Named("api"),
	}
	if d.Store != nil {
		h.detector = booking.NewDetector(d.Store)
	}
	return h
}

// fail writes err with the status code of its kind.
func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case apperr.IsValidation(err):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case apperr.IsNotFound(err):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case apperr.IsConflict(err):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.log.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

// badRequest rejects a malformed request body or parameter.
func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}

// idParam parses a positive integer path parameter.
func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}
