package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/smarttransit/live-tracking-backend/internal/database"
	"github.com/smarttransit/live-tracking-backend/pkg/devicetoken"
)

// TokenHandler exchanges a provisioned vehicle API key for a device token
type TokenHandler struct {
	vehicles    *database.VehicleRepository
	tokens      *devicetoken.Service
	tokenExpiry int64
	logger      *logrus.Logger
}

// NewTokenHandler creates a new TokenHandler
func NewTokenHandler(vehicles *database.VehicleRepository, tokens *devicetoken.Service, tokenExpirySeconds int64, logger *logrus.Logger) *TokenHandler {
	return &TokenHandler{
		vehicles:    vehicles,
		tokens:      tokens,
		tokenExpiry: tokenExpirySeconds,
		logger:      logger,
	}
}

// IssueTokenRequest represents the request body for a token exchange
type IssueTokenRequest struct {
	BusID  string `json:"busId" binding:"required"`
	APIKey string `json:"apiKey" binding:"required"`
}

// IssueToken exchanges a vehicle API key for a device token
// POST /api/bus/token
func (h *TokenHandler) IssueToken(c *gin.Context) {
	var req IssueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": err.Error(),
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	vehicle, err := h.vehicles.GetByID(ctx, req.BusID)
	if err != nil {
		if errors.Is(err, database.ErrVehicleNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "invalid_credentials",
				"message": "Unknown vehicle or bad API key",
			})
			return
		}
		h.logger.WithError(err).WithField("bus_id", req.BusID).Error("Vehicle lookup failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "transient_error",
			"message": "Temporarily unable to issue a token",
		})
		return
	}

	if !vehicle.HasAPIKey() {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "invalid_credentials",
			"message": "Unknown vehicle or bad API key",
		})
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*vehicle.APIKeyHash), []byte(req.APIKey)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "invalid_credentials",
			"message": "Unknown vehicle or bad API key",
		})
		return
	}

	token, err := h.tokens.GenerateToken(vehicle.ID, vehicle.RouteID)
	if err != nil {
		h.logger.WithError(err).WithField("bus_id", vehicle.ID).Error("Token generation failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "token_generation_failed",
			"message": "Unable to issue a device token",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_in": h.tokenExpiry,
		"busId":      vehicle.ID,
		"routeId":    vehicle.RouteID,
	})
}
