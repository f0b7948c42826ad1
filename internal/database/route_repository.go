package database

import (
	"context"
	"database/sql"
	"errors"

	"github.com/smarttransit/live-tracking-backend/internal/models"
)

// ErrRouteNotFound is returned when no route matches the lookup
var ErrRouteNotFound = errors.New("route not found")

// RouteRepository handles database reads for routes and their stops.
// The live subsystem never writes these tables; the admin backend owns them.
type RouteRepository struct {
	db DB
}

// NewRouteRepository creates a new RouteRepository
func NewRouteRepository(db DB) *RouteRepository {
	return &RouteRepository{db: db}
}

// GetByID retrieves a route by ID
func (r *RouteRepository) GetByID(ctx context.Context, routeID string) (*models.Route, error) {
	query := `
		SELECT id, route_name, is_active, created_at, updated_at
		FROM routes
		WHERE id = $1
	`

	var route models.Route
	if err := r.db.GetContext(ctx, &route, query, routeID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRouteNotFound
		}
		return nil, err
	}
	return &route, nil
}

// GetByName retrieves a route by its unique display name
func (r *RouteRepository) GetByName(ctx context.Context, routeName string) (*models.Route, error) {
	query := `
		SELECT id, route_name, is_active, created_at, updated_at
		FROM routes
		WHERE route_name = $1
	`

	var route models.Route
	if err := r.db.GetContext(ctx, &route, query, routeName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRouteNotFound
		}
		return nil, err
	}
	return &route, nil
}

// GetStops retrieves the route's stops in traversal order
func (r *RouteRepository) GetStops(ctx context.Context, routeID string) ([]models.RouteStop, error) {
	query := `
		SELECT id, route_id, stop_name, stop_order, latitude, longitude, created_at
		FROM route_stops
		WHERE route_id = $1
		ORDER BY stop_order ASC
	`

	var stops []models.RouteStop
	if err := r.db.SelectContext(ctx, &stops, query, routeID); err != nil {
		return nil, err
	}
	return stops, nil
}
