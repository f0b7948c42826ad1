package services

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smarttransit/live-tracking-backend/internal/cache"
	"github.com/smarttransit/live-tracking-backend/internal/config"
	"github.com/smarttransit/live-tracking-backend/internal/database"
	"github.com/smarttransit/live-tracking-backend/internal/geo"
	"github.com/smarttransit/live-tracking-backend/internal/models"
)

// ErrInvalidCoordinates is returned when a report carries non-finite lat/lng
var ErrInvalidCoordinates = errors.New("latitude and longitude must be finite numbers")

// VehicleResolver resolves a reported vehicle to its durable record.
type VehicleResolver interface {
	GetByID(ctx context.Context, vehicleID string) (*models.Vehicle, error)
}

// GeometryProvider supplies the decoded route geometry.
type GeometryProvider interface {
	GetGeometry(ctx context.Context, routeID string) (*models.RouteGeometry, error)
}

// StateStore is the per-vehicle hot state contract.
type StateStore interface {
	RecordReport(ctx context.Context, vehicleID, routeID string, lat, lng, speed float64, now time.Time) (*models.VehicleLiveState, error)
	ReadState(ctx context.Context, vehicleID string) (*models.VehicleLiveState, error)
}

// Broadcaster delivers a serialized VehicleUpdate to the route's room.
type Broadcaster interface {
	EmitVehicleUpdate(routeID string, payload []byte)
}

// TrackingMetrics receives ingest counters. Implementations must be safe for
// concurrent use.
type TrackingMetrics interface {
	ReportIngested()
	ReportRejected(reason string)
	IngestObserve(d time.Duration)
}

// TrackingService handles the live tracking flows: vehicle ingest and
// on-demand live snapshots.
type TrackingService struct {
	vehicles    VehicleResolver
	geometry    GeometryProvider
	states      StateStore
	broadcaster Broadcaster
	tracking    config.TrackingConfig
	logger      *logrus.Logger
	metrics     TrackingMetrics
}

// NewTrackingService creates a new TrackingService. broadcaster and metrics
// may be nil.
func NewTrackingService(
	vehicles VehicleResolver,
	geometry GeometryProvider,
	states StateStore,
	broadcaster Broadcaster,
	tracking config.TrackingConfig,
	logger *logrus.Logger,
	metrics TrackingMetrics,
) *TrackingService {
	return &TrackingService{
		vehicles:    vehicles,
		geometry:    geometry,
		states:      states,
		broadcaster: broadcaster,
		tracking:    tracking,
		logger:      logger,
		metrics:     metrics,
	}
}

// IngestReport processes one location report: hot state write, map-match,
// ETA computation, broadcast. Returns the composite update and the exact
// bytes broadcast to the route room.
func (s *TrackingService) IngestReport(ctx context.Context, req *models.UpdateLocationRequest, now time.Time) (*models.VehicleUpdate, []byte, error) {
	start := time.Now()

	if !isFinite(req.Lat) || !isFinite(req.Lng) {
		s.reject("invalid_coordinates")
		return nil, nil, ErrInvalidCoordinates
	}

	vehicle, err := s.vehicles.GetByID(ctx, req.BusID)
	if err != nil {
		s.reject("vehicle_not_found")
		return nil, nil, err
	}
	if vehicle.RouteID == "" {
		s.reject("no_route_bound")
		return nil, nil, database.ErrRouteNotFound
	}

	state, err := s.states.RecordReport(ctx, vehicle.ID, vehicle.RouteID, req.Lat, req.Lng, req.Speed, now)
	if err != nil {
		s.reject("state_write_failed")
		return nil, nil, err
	}

	update := s.composeUpdate(ctx, vehicle.RouteID, state)
	// The report just happened, so the vehicle is trivially online.
	update.Status = models.VehicleStatusOnline

	payload, err := json.Marshal(update)
	if err != nil {
		return nil, nil, err
	}

	if s.broadcaster != nil {
		s.broadcaster.EmitVehicleUpdate(vehicle.RouteID, payload)
	}

	if s.metrics != nil {
		s.metrics.ReportIngested()
		s.metrics.IngestObserve(time.Since(start))
	}

	return update, payload, nil
}

// LiveSnapshot returns the current composite for a vehicle. A known vehicle
// with no reports yet is not an error: the composite carries a null location
// and offline status.
func (s *TrackingService) LiveSnapshot(ctx context.Context, vehicleID string, now time.Time) (*models.VehicleUpdate, []byte, error) {
	vehicle, err := s.vehicles.GetByID(ctx, vehicleID)
	if err != nil {
		return nil, nil, err
	}

	state, err := s.states.ReadState(ctx, vehicle.ID)
	if err != nil {
		if errors.Is(err, cache.ErrNoLiveState) {
			update := &models.VehicleUpdate{
				Success:  true,
				BusID:    vehicle.ID,
				RouteID:  vehicle.RouteID,
				AvgSpeed: 0,
				ETAStops: []models.ETAStop{},
				Status:   models.VehicleStatusOffline,
			}
			payload, merr := json.Marshal(update)
			return update, payload, merr
		}
		return nil, nil, err
	}

	update := s.composeUpdate(ctx, vehicle.RouteID, state)
	update.Status = LivenessStatus(state.LastUpdated, now, s.tracking.StalenessThreshold)

	payload, err := json.Marshal(update)
	if err != nil {
		return nil, nil, err
	}
	return update, payload, nil
}

// composeUpdate builds the composite from hot state and route geometry.
// Geometry failures degrade to the raw coordinate with no ETAs rather than
// failing the request: the hot state is already written and clients still see
// a fresh position.
func (s *TrackingService) composeUpdate(ctx context.Context, routeID string, state *models.VehicleLiveState) *models.VehicleUpdate {
	lastUpdated := models.FormatTimestamp(state.LastUpdated)
	update := &models.VehicleUpdate{
		Success:         true,
		BusID:           state.VehicleID,
		RouteID:         routeID,
		SnappedLocation: &models.SnappedLocation{Lat: state.LastLat, Lng: state.LastLng},
		AvgSpeed:        state.AvgSpeed(),
		LastUpdated:     &lastUpdated,
		ETAStops:        []models.ETAStop{},
	}

	geom, err := s.geometry.GetGeometry(ctx, routeID)
	if err != nil {
		if !errors.Is(err, database.ErrPolylineNotFound) {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"vehicle_id": state.VehicleID,
				"route_id":   routeID,
			}).Warn("Geometry unavailable, serving degraded update")
		}
		return update
	}

	match, err := geo.SnapToPolyline(geom.Coords, state.LastLng, state.LastLat)
	if err != nil {
		s.logger.WithError(err).WithField("route_id", routeID).Warn("Map matching failed, serving degraded update")
		return update
	}

	update.SnappedLocation = &models.SnappedLocation{Lat: match.Lat, Lng: match.Lng}
	if len(geom.StopOffsetsKm) == len(geom.Stops) {
		update.ETAStops = ComputeETAs(match.OffsetKm, geom.Stops, geom.StopOffsetsKm, update.AvgSpeed, s.tracking.MinSpeedFloorKmh)
	}
	return update
}

func (s *TrackingService) reject(reason string) {
	if s.metrics != nil {
		s.metrics.ReportRejected(reason)
	}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
