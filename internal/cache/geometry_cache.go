package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/smarttransit/live-tracking-backend/internal/geo"
	"github.com/smarttransit/live-tracking-backend/internal/models"
)

// decodedCacheSize bounds the in-process memo of decoded geometries.
const decodedCacheSize = 256

// RouteReader is the slice of the route repository the cache needs.
type RouteReader interface {
	GetStops(ctx context.Context, routeID string) ([]models.RouteStop, error)
}

// PolylineReader is the slice of the polyline repository the cache needs.
type PolylineReader interface {
	GetByRouteID(ctx context.Context, routeID string) (*models.Polyline, error)
}

// GeometryMetrics receives cache hit/miss counts. Implementations must be
// safe for concurrent use.
type GeometryMetrics interface {
	GeometryCacheHit()
	GeometryCacheMiss()
}

// GeometryCache serves the decoded polyline and ordered stop list for a
// route. Reads check an in-process memo of decoded entries, then Redis;
// misses load from the durable store, decode, and write the entry back. Entries are immutable after write; Invalidate is
// the only mutator.
type GeometryCache struct {
	rdb       *redis.Client
	routes    RouteReader
	polylines PolylineReader
	ttl       time.Duration
	logger    *logrus.Logger
	metrics   GeometryMetrics

	group   singleflight.Group
	decoded *lru.Cache[string, *models.RouteGeometry]
}

// NewGeometryCache creates a new GeometryCache. ttl of zero means entries
// live until invalidated. metrics may be nil.
func NewGeometryCache(rdb *redis.Client, routes RouteReader, polylines PolylineReader, ttl time.Duration, logger *logrus.Logger, metrics GeometryMetrics) *GeometryCache {
	decoded, _ := lru.New[string, *models.RouteGeometry](decodedCacheSize)
	return &GeometryCache{
		rdb:       rdb,
		routes:    routes,
		polylines: polylines,
		ttl:       ttl,
		logger:    logger,
		metrics:   metrics,
		decoded:   decoded,
	}
}

func routeKey(routeID string) string {
	return "route:" + routeID
}

// GetGeometry returns the route's decoded polyline (lng,lat) and stop list.
// Returns database.ErrPolylineNotFound when no polyline has been synthesized
// for the route.
func (g *GeometryCache) GetGeometry(ctx context.Context, routeID string) (*models.RouteGeometry, error) {
	if geom, ok := g.decoded.Get(routeID); ok {
		if g.metrics != nil {
			g.metrics.GeometryCacheHit()
		}
		return geom, nil
	}

	fields, err := g.rdb.HGetAll(ctx, routeKey(routeID)).Result()
	if err == nil && fields["polyline"] != "" && fields["stops"] != "" {
		geom, perr := parseGeometryEntry(routeID, fields)
		if perr == nil {
			if g.metrics != nil {
				g.metrics.GeometryCacheHit()
			}
			g.decoded.Add(routeID, geom)
			return geom, nil
		}
		g.logger.WithError(perr).WithField("route_id", routeID).Warn("Corrupt geometry cache entry, reloading")
	} else if err != nil {
		// Redis being down is not fatal for reads; fall through to the store.
		g.logger.WithError(err).WithField("route_id", routeID).Warn("Geometry cache read failed")
	}

	if g.metrics != nil {
		g.metrics.GeometryCacheMiss()
	}

	// Coalesce concurrent reloads of the same route.
	v, err, _ := g.group.Do(routeID, func() (interface{}, error) {
		return g.loadAndCache(ctx, routeID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.RouteGeometry), nil
}

// Invalidate removes the cache entry for a route. Used when an admin action
// replaces the route's polyline.
func (g *GeometryCache) Invalidate(ctx context.Context, routeID string) error {
	g.decoded.Remove(routeID)
	return g.rdb.Del(ctx, routeKey(routeID)).Err()
}

// loadAndCache reads the durable Polyline and Route, decodes the geometry,
// computes per-stop arc offsets, and writes the entry back best-effort.
func (g *GeometryCache) loadAndCache(ctx context.Context, routeID string) (*models.RouteGeometry, error) {
	polyline, err := g.polylines.GetByRouteID(ctx, routeID)
	if err != nil {
		return nil, err
	}

	coords, err := geo.DecodeGeometry(polyline.Geometry)
	if err != nil {
		return nil, fmt.Errorf("route %s: %w", routeID, err)
	}

	stops, err := g.routes.GetStops(ctx, routeID)
	if err != nil {
		return nil, err
	}

	geom := &models.RouteGeometry{
		RouteID: routeID,
		Coords:  coords,
		Stops:   make([]models.GeometryStop, 0, len(stops)),
	}
	for _, s := range stops {
		geom.Stops = append(geom.Stops, models.GeometryStop{
			StopID:    s.ID,
			Name:      s.StopName,
			Latitude:  s.Latitude,
			Longitude: s.Longitude,
		})
	}

	// Stop offsets are stable for the life of the route; compute once here.
	if len(coords) >= 2 {
		geom.StopOffsetsKm = make([]float64, len(geom.Stops))
		for i, s := range geom.Stops {
			m, merr := geo.SnapToPolyline(coords, s.Longitude, s.Latitude)
			if merr != nil {
				return nil, merr
			}
			geom.StopOffsetsKm[i] = m.OffsetKm
		}
	}

	g.writeEntry(ctx, geom)
	g.decoded.Add(routeID, geom)
	return geom, nil
}

// writeEntry stores the geometry in Redis. Failures are logged, not
// returned: the computed geometry is still served to the caller.
func (g *GeometryCache) writeEntry(ctx context.Context, geom *models.RouteGeometry) {
	polylineJSON, err := json.Marshal(geom.Coords)
	if err != nil {
		g.logger.WithError(err).Warn("Failed to marshal polyline for cache")
		return
	}
	stopsJSON, err := json.Marshal(geom.Stops)
	if err != nil {
		g.logger.WithError(err).Warn("Failed to marshal stops for cache")
		return
	}

	fields := map[string]interface{}{
		"polyline": string(polylineJSON),
		"stops":    string(stopsJSON),
	}
	if geom.StopOffsetsKm != nil {
		offsetsJSON, err := json.Marshal(geom.StopOffsetsKm)
		if err == nil {
			fields["stopOffsetsKm"] = string(offsetsJSON)
		}
	}

	key := routeKey(geom.RouteID)
	pipe := g.rdb.TxPipeline()
	pipe.HSet(ctx, key, fields)
	if g.ttl > 0 {
		pipe.Expire(ctx, key, g.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		g.logger.WithError(err).WithField("route_id", geom.RouteID).Warn("Failed to write geometry cache entry")
	}
}

func parseGeometryEntry(routeID string, fields map[string]string) (*models.RouteGeometry, error) {
	geom := &models.RouteGeometry{RouteID: routeID}
	if err := json.Unmarshal([]byte(fields["polyline"]), &geom.Coords); err != nil {
		return nil, fmt.Errorf("bad polyline field: %w", err)
	}
	if err := json.Unmarshal([]byte(fields["stops"]), &geom.Stops); err != nil {
		return nil, fmt.Errorf("bad stops field: %w", err)
	}
	if raw := fields["stopOffsetsKm"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &geom.StopOffsetsKm); err != nil {
			return nil, fmt.Errorf("bad stopOffsetsKm field: %w", err)
		}
	}
	return geom, nil
}
