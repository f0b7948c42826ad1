package models

import (
	"time"
)

// Route represents a bus route as stored by the admin backend
type Route struct {
	ID        string    `json:"id" db:"id"`
	RouteName string    `json:"route_name" db:"route_name"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// RouteStop represents a stop on a route, ordered from origin to terminus
type RouteStop struct {
	ID        string    `json:"id" db:"id"`
	RouteID   string    `json:"route_id" db:"route_id"`
	StopName  string    `json:"stop_name" db:"stop_name"`
	StopOrder int       `json:"stop_order" db:"stop_order"`
	Latitude  float64   `json:"latitude" db:"latitude"`
	Longitude float64   `json:"longitude" db:"longitude"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Polyline represents the drivable path for a route, produced once by the
// external router and stored verbatim as an encoded polyline string
type Polyline struct {
	RouteID         string    `json:"routeId" db:"route_id"`
	RouteName       string    `json:"routeName" db:"route_name"`
	Geometry        string    `json:"geometry" db:"geometry"`
	DistanceKm      float64   `json:"distance" db:"distance_km"`
	DurationMinutes float64   `json:"duration" db:"duration_minutes"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// HasGeometry checks if the polyline has an encoded geometry string
func (p *Polyline) HasGeometry() bool {
	return p.Geometry != ""
}

// GeometryStop is the stop view cached alongside the decoded polyline
type GeometryStop struct {
	StopID    string  `json:"stopId"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// RouteGeometry is the hot view of a route served by the geometry cache.
// Coords are (lng,lat) pairs to match the matcher convention.
type RouteGeometry struct {
	RouteID       string
	Coords        [][]float64
	Stops         []GeometryStop
	StopOffsetsKm []float64
}
