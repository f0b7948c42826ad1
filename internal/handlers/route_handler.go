package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/smarttransit/live-tracking-backend/internal/cache"
	"github.com/smarttransit/live-tracking-backend/internal/database"
)

// RouteHandler handles read-only route geometry requests
type RouteHandler struct {
	routes    *database.RouteRepository
	polylines *database.PolylineRepository
	geometry  *cache.GeometryCache
	logger    *logrus.Logger
}

// NewRouteHandler creates a new RouteHandler
func NewRouteHandler(routes *database.RouteRepository, polylines *database.PolylineRepository, geometry *cache.GeometryCache, logger *logrus.Logger) *RouteHandler {
	return &RouteHandler{
		routes:    routes,
		polylines: polylines,
		geometry:  geometry,
		logger:    logger,
	}
}

// GetRouteWithPolyline returns the stored polyline for a route by name
// GET /api/routes-with-polyline?routeName=<name>
func (h *RouteHandler) GetRouteWithPolyline(c *gin.Context) {
	routeName := c.Query("routeName")
	if routeName == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "routeName query parameter is required",
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	polyline, err := h.polylines.GetByRouteName(ctx, routeName)
	if err != nil {
		if errors.Is(err, database.ErrPolylineNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "polyline_not_found",
				"message": "No polyline stored for route: " + routeName,
			})
			return
		}
		h.logger.WithError(err).WithField("route_name", routeName).Error("Polyline lookup failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "transient_error",
			"message": "Temporarily unable to load the polyline",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"_id":       polyline.RouteID,
		"routeName": polyline.RouteName,
		"geometry":  polyline.Geometry,
		"distance":  polyline.DistanceKm,
		"duration":  polyline.DurationMinutes,
	})
}

// GetRouteStops returns the route's ordered stop list
// GET /api/routes/:id/stops
func (h *RouteHandler) GetRouteStops(c *gin.Context) {
	routeID := c.Param("id")

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	route, err := h.routes.GetByID(ctx, routeID)
	if err != nil {
		if errors.Is(err, database.ErrRouteNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "route_not_found",
				"message": "Unknown route: " + routeID,
			})
			return
		}
		h.logger.WithError(err).WithField("route_id", routeID).Error("Route lookup failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "transient_error",
			"message": "Temporarily unable to load the route",
		})
		return
	}

	stops, err := h.routes.GetStops(ctx, routeID)
	if err != nil {
		h.logger.WithError(err).WithField("route_id", routeID).Error("Stop lookup failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "transient_error",
			"message": "Temporarily unable to load the stops",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"routeId":   route.ID,
		"routeName": route.RouteName,
		"stops":     stops,
	})
}

// InvalidateGeometry drops the cached geometry for a route. Called by the
// admin backend after it replaces a route's polyline.
// POST /api/routes/:id/invalidate-geometry
func (h *RouteHandler) InvalidateGeometry(c *gin.Context) {
	routeID := c.Param("id")

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	if err := h.geometry.Invalidate(ctx, routeID); err != nil {
		h.logger.WithError(err).WithField("route_id", routeID).Error("Geometry invalidation failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "transient_error",
			"message": "Temporarily unable to invalidate the geometry cache",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Geometry cache invalidated",
		"routeId": routeID,
	})
}
