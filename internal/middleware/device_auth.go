package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smarttransit/live-tracking-backend/pkg/devicetoken"
)

// VehicleContextKey is the key used to store vehicle identity in Gin context
const VehicleContextKey = "vehicle"

// VehicleContext represents the authenticated device's vehicle identity
type VehicleContext struct {
	VehicleID string `json:"vehicle_id"`
	RouteID   string `json:"route_id"`
}

// DeviceAuthMiddleware creates a middleware that validates device tokens on
// the ingest path. The token identifies the reporting vehicle; handlers must
// still check it matches the busId in the payload.
func DeviceAuthMiddleware(tokenService *devicetoken.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Authorization header is required",
			})
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Invalid authorization header format. Expected: Bearer <token>",
			})
			c.Abort()
			return
		}

		claims, err := tokenService.ValidateToken(strings.TrimSpace(parts[1]))
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "invalid_token",
				"message": "Invalid device token",
			})
			c.Abort()
			return
		}

		c.Set(VehicleContextKey, VehicleContext{
			VehicleID: claims.VehicleID,
			RouteID:   claims.RouteID,
		})
		c.Next()
	}
}

// GetVehicleContext retrieves the vehicle identity from Gin context
func GetVehicleContext(c *gin.Context) (VehicleContext, bool) {
	value, exists := c.Get(VehicleContextKey)
	if !exists {
		return VehicleContext{}, false
	}
	vehicleCtx, ok := value.(VehicleContext)
	return vehicleCtx, ok
}
