package database

import (
	"context"
	"database/sql"
	"errors"

	"github.com/smarttransit/live-tracking-backend/internal/models"
)

// ErrPolylineNotFound is returned when no polyline has been synthesized for
// the route yet
var ErrPolylineNotFound = errors.New("polyline not found")

// PolylineRepository handles database reads for stored route polylines
type PolylineRepository struct {
	db DB
}

// NewPolylineRepository creates a new PolylineRepository
func NewPolylineRepository(db DB) *PolylineRepository {
	return &PolylineRepository{db: db}
}

// GetByRouteID retrieves the polyline for a route
func (r *PolylineRepository) GetByRouteID(ctx context.Context, routeID string) (*models.Polyline, error) {
	query := `
		SELECT route_id, route_name, geometry, distance_km, duration_minutes, created_at
		FROM polylines
		WHERE route_id = $1
	`

	var p models.Polyline
	if err := r.db.GetContext(ctx, &p, query, routeID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPolylineNotFound
		}
		return nil, err
	}
	return &p, nil
}

// GetByRouteName retrieves the polyline for a route by display name
func (r *PolylineRepository) GetByRouteName(ctx context.Context, routeName string) (*models.Polyline, error) {
	query := `
		SELECT route_id, route_name, geometry, distance_km, duration_minutes, created_at
		FROM polylines
		WHERE route_name = $1
	`

	var p models.Polyline
	if err := r.db.GetContext(ctx, &p, query, routeName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPolylineNotFound
		}
		return nil, err
	}
	return &p, nil
}
