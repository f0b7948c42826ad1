package models

import (
	"math"
	"time"
)

// TimestampLayout is the wire format for timestamps: ISO-8601 with
// millisecond precision in UTC.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// FormatTimestamp renders t in the wire format.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// VehicleStatus classifies a vehicle as reporting or stale
type VehicleStatus string

const (
	VehicleStatusOnline  VehicleStatus = "online"
	VehicleStatusOffline VehicleStatus = "offline"
)

// UpdateLocationRequest represents the ingest payload sent by a vehicle
type UpdateLocationRequest struct {
	BusID string  `json:"busId" binding:"required"`
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
	Speed float64 `json:"speed"`
}

// VehicleLiveState is the hot per-vehicle record kept in the cache.
// Speeds is newest-first and bounded by the configured ring size.
type VehicleLiveState struct {
	VehicleID   string
	RouteID     string
	LastLat     float64
	LastLng     float64
	LastUpdated time.Time
	Speeds      []float64
}

// AvgSpeed returns the arithmetic mean of the speed ring rounded to one
// decimal, or 0 when the ring is empty.
func (s *VehicleLiveState) AvgSpeed() float64 {
	if len(s.Speeds) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range s.Speeds {
		sum += v
	}
	return math.Round(sum/float64(len(s.Speeds))*10) / 10
}

// SnappedLocation is the vehicle position projected onto the route polyline
type SnappedLocation struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// ETAStop carries the estimated minutes to one stop on the route
type ETAStop struct {
	StopID     string `json:"stopId"`
	Name       string `json:"name"`
	ETAMinutes int    `json:"etaMinutes"`
}

// VehicleUpdate is the composite payload returned from the live endpoints and
// broadcast to subscribers. The HTTP response body and the pushed event carry
// the same serialized bytes.
type VehicleUpdate struct {
	Success         bool             `json:"success"`
	BusID           string           `json:"busId"`
	RouteID         string           `json:"routeId"`
	SnappedLocation *SnappedLocation `json:"snappedLocation"`
	AvgSpeed        float64          `json:"avgSpeed"`
	LastUpdated     *string          `json:"lastUpdated"`
	ETAStops        []ETAStop        `json:"etaStops"`
	Status          VehicleStatus    `json:"status"`
}
