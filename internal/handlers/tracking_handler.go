package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/smarttransit/live-tracking-backend/internal/database"
	"github.com/smarttransit/live-tracking-backend/internal/middleware"
	"github.com/smarttransit/live-tracking-backend/internal/models"
	"github.com/smarttransit/live-tracking-backend/internal/services"
)

// requestTimeout bounds every durable-store and cache operation a request
// performs.
const requestTimeout = 5 * time.Second

// TrackingHandler handles the live tracking HTTP requests
type TrackingHandler struct {
	trackingService   *services.TrackingService
	logger            *logrus.Logger
	deviceAuthEnabled bool
}

// NewTrackingHandler creates a new TrackingHandler
func NewTrackingHandler(trackingService *services.TrackingService, logger *logrus.Logger, deviceAuthEnabled bool) *TrackingHandler {
	return &TrackingHandler{
		trackingService:   trackingService,
		logger:            logger,
		deviceAuthEnabled: deviceAuthEnabled,
	}
}

// UpdateLocation ingests one vehicle location report
// POST /api/bus/update-location
func (h *TrackingHandler) UpdateLocation(c *gin.Context) {
	var req models.UpdateLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": err.Error(),
		})
		return
	}

	if h.deviceAuthEnabled {
		vehicleCtx, ok := middleware.GetVehicleContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Device identity missing",
			})
			return
		}
		if vehicleCtx.VehicleID != req.BusID {
			c.JSON(http.StatusForbidden, gin.H{
				"error":   "vehicle_mismatch",
				"message": "Device token does not match reported busId",
			})
			return
		}
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	_, payload, err := h.trackingService.IngestReport(ctx, &req, time.Now())
	if err != nil {
		h.respondTrackingError(c, req.BusID, err)
		return
	}

	c.Data(http.StatusOK, "application/json; charset=utf-8", payload)
}

// LiveStatus returns the current composite snapshot for a vehicle
// GET /api/bus/:id/live
func (h *TrackingHandler) LiveStatus(c *gin.Context) {
	busID := c.Param("id")

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	_, payload, err := h.trackingService.LiveSnapshot(ctx, busID, time.Now())
	if err != nil {
		h.respondTrackingError(c, busID, err)
		return
	}

	c.Data(http.StatusOK, "application/json; charset=utf-8", payload)
}

func (h *TrackingHandler) respondTrackingError(c *gin.Context, busID string, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidCoordinates):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": err.Error(),
		})
	case errors.Is(err, database.ErrVehicleNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "vehicle_not_found",
			"message": "Unknown busId: " + busID,
		})
	case errors.Is(err, database.ErrRouteNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "route_not_found",
			"message": "No route bound for busId: " + busID,
		})
	default:
		h.logger.WithError(err).WithField("bus_id", busID).Error("Tracking request failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "transient_error",
			"message": "Temporarily unable to process the request, retry with backoff",
		})
	}
}
