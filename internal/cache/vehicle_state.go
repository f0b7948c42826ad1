package cache

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smarttransit/live-tracking-backend/internal/models"
)

// ErrNoLiveState is returned when a vehicle has never reported
var ErrNoLiveState = errors.New("no live state for vehicle")

// VehicleStateStore persists per-vehicle hot state across reports and
// queries: last position, last update time, bound route, and a bounded ring
// of the most recent raw speeds (newest first).
type VehicleStateStore struct {
	rdb      *redis.Client
	ringSize int
}

// NewVehicleStateStore creates a new VehicleStateStore
func NewVehicleStateStore(rdb *redis.Client, ringSize int) *VehicleStateStore {
	if ringSize <= 0 {
		ringSize = 3
	}
	return &VehicleStateStore{rdb: rdb, ringSize: ringSize}
}

func busKey(vehicleID string) string {
	return "bus:" + vehicleID
}

func speedsKey(vehicleID string) string {
	return "bus:" + vehicleID + ":speeds"
}

// RecordReport atomically updates the vehicle record to the new position and
// pushes the speed onto the ring. A speed that is not finite and non-negative
// is omitted from the ring; position and timestamp are still written.
func (s *VehicleStateStore) RecordReport(ctx context.Context, vehicleID, routeID string, lat, lng, speed float64, now time.Time) (*models.VehicleLiveState, error) {
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, busKey(vehicleID), map[string]interface{}{
		"lastLat":     strconv.FormatFloat(lat, 'f', -1, 64),
		"lastLng":     strconv.FormatFloat(lng, 'f', -1, 64),
		"lastUpdated": models.FormatTimestamp(now),
		"routeId":     routeID,
	})

	if isValidSpeed(speed) {
		pipe.LPush(ctx, speedsKey(vehicleID), strconv.FormatFloat(speed, 'f', -1, 64))
		pipe.LTrim(ctx, speedsKey(vehicleID), 0, int64(s.ringSize-1))
	}
	ring := pipe.LRange(ctx, speedsKey(vehicleID), 0, int64(s.ringSize-1))

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	speeds, err := parseSpeeds(ring.Val())
	if err != nil {
		return nil, err
	}

	return &models.VehicleLiveState{
		VehicleID:   vehicleID,
		RouteID:     routeID,
		LastLat:     lat,
		LastLng:     lng,
		LastUpdated: now,
		Speeds:      speeds,
	}, nil
}

// ReadState returns the current record including the speed ring in
// newest-first order, or ErrNoLiveState when the vehicle has never reported.
func (s *VehicleStateStore) ReadState(ctx context.Context, vehicleID string) (*models.VehicleLiveState, error) {
	pipe := s.rdb.TxPipeline()
	record := pipe.HGetAll(ctx, busKey(vehicleID))
	ring := pipe.LRange(ctx, speedsKey(vehicleID), 0, int64(s.ringSize-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	fields := record.Val()
	if len(fields) == 0 {
		return nil, ErrNoLiveState
	}

	lat, err := strconv.ParseFloat(fields["lastLat"], 64)
	if err != nil {
		return nil, err
	}
	lng, err := strconv.ParseFloat(fields["lastLng"], 64)
	if err != nil {
		return nil, err
	}
	lastUpdated, err := time.Parse(models.TimestampLayout, fields["lastUpdated"])
	if err != nil {
		return nil, err
	}
	speeds, err := parseSpeeds(ring.Val())
	if err != nil {
		return nil, err
	}

	return &models.VehicleLiveState{
		VehicleID:   vehicleID,
		RouteID:     fields["routeId"],
		LastLat:     lat,
		LastLng:     lng,
		LastUpdated: lastUpdated,
		Speeds:      speeds,
	}, nil
}

func isValidSpeed(speed float64) bool {
	return !math.IsNaN(speed) && !math.IsInf(speed, 0) && speed >= 0
}

func parseSpeeds(raw []string) ([]float64, error) {
	speeds := make([]float64, 0, len(raw))
	for _, v := range raw {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, err
		}
		speeds = append(speeds, f)
	}
	return speeds, nil
}
