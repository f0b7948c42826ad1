package database

import (
	"context"
	"database/sql"
	"errors"

	"github.com/smarttransit/live-tracking-backend/internal/models"
)

// ErrVehicleNotFound is returned when no vehicle matches the lookup
var ErrVehicleNotFound = errors.New("vehicle not found")

// VehicleRepository handles database reads for vehicles. The live subsystem
// only resolves the vehicle and its route binding; registration is owned by
// the admin backend.
type VehicleRepository struct {
	db DB
}

// NewVehicleRepository creates a new VehicleRepository
func NewVehicleRepository(db DB) *VehicleRepository {
	return &VehicleRepository{db: db}
}

// GetByID retrieves a vehicle by ID
func (r *VehicleRepository) GetByID(ctx context.Context, vehicleID string) (*models.Vehicle, error) {
	query := `
		SELECT id, route_id, plate_no, api_key_hash, is_active, created_at, updated_at
		FROM vehicles
		WHERE id = $1
	`

	var vehicle models.Vehicle
	if err := r.db.GetContext(ctx, &vehicle, query, vehicleID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrVehicleNotFound
		}
		return nil, err
	}
	return &vehicle, nil
}

// GetActiveByRouteID retrieves the active vehicles bound to a route
func (r *VehicleRepository) GetActiveByRouteID(ctx context.Context, routeID string) ([]models.Vehicle, error) {
	query := `
		SELECT id, route_id, plate_no, api_key_hash, is_active, created_at, updated_at
		FROM vehicles
		WHERE route_id = $1 AND is_active = true
		ORDER BY id ASC
	`

	var vehicles []models.Vehicle
	if err := r.db.SelectContext(ctx, &vehicles, query, routeID); err != nil {
		return nil, err
	}
	return vehicles, nil
}
