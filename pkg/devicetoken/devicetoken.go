package devicetoken

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims represents the device token claims structure. A device token
// identifies one reporting vehicle; it carries no user identity.
type Claims struct {
	VehicleID string `json:"vehicle_id"`
	RouteID   string `json:"route_id"`
	jwt.RegisteredClaims
}

// Service handles device token operations
type Service struct {
	secret string
	expiry time.Duration
}

// NewService creates a new device token service
func NewService(secret string, expiry time.Duration) *Service {
	return &Service{
		secret: secret,
		expiry: expiry,
	}
}

// GenerateToken generates a signed token for a vehicle
func (s *Service) GenerateToken(vehicleID, routeID string) (string, error) {
	now := time.Now()
	claims := Claims{
		VehicleID: vehicleID,
		RouteID:   routeID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "smarttransit-live-tracking",
			Subject:   vehicleID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.secret))
}

// ValidateToken validates a token and returns its claims
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims.VehicleID == "" {
		return nil, fmt.Errorf("token missing vehicle identity")
	}
	return claims, nil
}
