package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smarttransit/live-tracking-backend/internal/cache"
	"github.com/smarttransit/live-tracking-backend/internal/config"
	"github.com/smarttransit/live-tracking-backend/internal/database"
	"github.com/smarttransit/live-tracking-backend/internal/geo"
	"github.com/smarttransit/live-tracking-backend/internal/middleware"
	"github.com/smarttransit/live-tracking-backend/internal/models"
	"github.com/smarttransit/live-tracking-backend/internal/services"
	"github.com/smarttransit/live-tracking-backend/pkg/devicetoken"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeVehicles struct {
	byID map[string]*models.Vehicle
}

func (f *fakeVehicles) GetByID(ctx context.Context, vehicleID string) (*models.Vehicle, error) {
	if v, ok := f.byID[vehicleID]; ok {
		return v, nil
	}
	return nil, database.ErrVehicleNotFound
}

type fakeGeometry struct {
	geom *models.RouteGeometry
	err  error
}

func (f *fakeGeometry) GetGeometry(ctx context.Context, routeID string) (*models.RouteGeometry, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.geom, nil
}

type fakeStates struct {
	states map[string]*models.VehicleLiveState
}

func (f *fakeStates) RecordReport(ctx context.Context, vehicleID, routeID string, lat, lng, speed float64, now time.Time) (*models.VehicleLiveState, error) {
	prev := f.states[vehicleID]
	speeds := []float64{}
	if prev != nil {
		speeds = append(speeds, prev.Speeds...)
	}
	if speed >= 0 {
		speeds = append([]float64{speed}, speeds...)
	}
	if len(speeds) > 3 {
		speeds = speeds[:3]
	}
	state := &models.VehicleLiveState{
		VehicleID:   vehicleID,
		RouteID:     routeID,
		LastLat:     lat,
		LastLng:     lng,
		LastUpdated: now,
		Speeds:      speeds,
	}
	f.states[vehicleID] = state
	return state, nil
}

func (f *fakeStates) ReadState(ctx context.Context, vehicleID string) (*models.VehicleLiveState, error) {
	if s, ok := f.states[vehicleID]; ok {
		return s, nil
	}
	return nil, cache.ErrNoLiveState
}

type capturingBroadcaster struct {
	rooms    []string
	payloads [][]byte
}

func (b *capturingBroadcaster) EmitVehicleUpdate(routeID string, payload []byte) {
	b.rooms = append(b.rooms, routeID)
	b.payloads = append(b.payloads, payload)
}

func testGeometry() *models.RouteGeometry {
	coords := [][]float64{
		{77.2197, 28.6328},
		{77.3649, 28.6280},
	}
	return &models.RouteGeometry{
		RouteID: "R1",
		Coords:  coords,
		Stops: []models.GeometryStop{
			{StopID: "S1", Name: "Connaught Place", Latitude: 28.6328, Longitude: 77.2197},
			{StopID: "S2", Name: "Anand Vihar", Latitude: 28.6280, Longitude: 77.3649},
		},
		StopOffsetsKm: []float64{0, geo.PolylineLengthKm(coords)},
	}
}

type trackingFixture struct {
	router      *gin.Engine
	broadcaster *capturingBroadcaster
	states      *fakeStates
}

func newTrackingFixture(t *testing.T, deviceAuth bool, tokens *devicetoken.Service) *trackingFixture {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	broadcaster := &capturingBroadcaster{}
	states := &fakeStates{states: make(map[string]*models.VehicleLiveState)}
	svc := services.NewTrackingService(
		&fakeVehicles{byID: map[string]*models.Vehicle{
			"V1": {ID: "V1", RouteID: "R1", IsActive: true},
		}},
		&fakeGeometry{geom: testGeometry()},
		states,
		broadcaster,
		config.TrackingConfig{
			StalenessThreshold: 90 * time.Second,
			SpeedRingSize:      3,
			MinSpeedFloorKmh:   1.0,
		},
		logger,
		nil,
	)
	handler := NewTrackingHandler(svc, logger, deviceAuth)

	router := gin.New()
	api := router.Group("/api")
	busGroup := api.Group("/bus")
	if deviceAuth {
		busGroup.POST("/update-location", middleware.DeviceAuthMiddleware(tokens), handler.UpdateLocation)
	} else {
		busGroup.POST("/update-location", handler.UpdateLocation)
	}
	busGroup.GET("/:id/live", handler.LiveStatus)

	return &trackingFixture{router: router, broadcaster: broadcaster, states: states}
}

func postJSON(router *gin.Engine, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestUpdateLocation_Success(t *testing.T) {
	fx := newTrackingFixture(t, false, nil)

	w := postJSON(fx.router, "/api/bus/update-location", gin.H{
		"busId": "V1", "lat": 28.6300, "lng": 77.2923, "speed": 40,
	}, nil)

	require.Equal(t, http.StatusOK, w.Code)

	var update models.VehicleUpdate
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &update))
	assert.True(t, update.Success)
	assert.Equal(t, "V1", update.BusID)
	assert.Equal(t, "R1", update.RouteID)
	assert.Equal(t, models.VehicleStatusOnline, update.Status)
	assert.Equal(t, 40.0, update.AvgSpeed)
	require.NotNil(t, update.SnappedLocation)
	require.Len(t, update.ETAStops, 2)
	assert.Equal(t, 0, update.ETAStops[0].ETAMinutes)
	assert.Greater(t, update.ETAStops[1].ETAMinutes, 0)

	// Exactly one broadcast, byte-equal to the HTTP response body.
	require.Len(t, fx.broadcaster.payloads, 1)
	assert.Equal(t, "R1", fx.broadcaster.rooms[0])
	assert.Equal(t, w.Body.Bytes(), fx.broadcaster.payloads[0])
}

func TestUpdateLocation_RingAcrossReports(t *testing.T) {
	fx := newTrackingFixture(t, false, nil)

	for _, speed := range []float64{30, 60, 90, 0} {
		w := postJSON(fx.router, "/api/bus/update-location", gin.H{
			"busId": "V1", "lat": 28.6300, "lng": 77.2923, "speed": speed,
		}, nil)
		require.Equal(t, http.StatusOK, w.Code)
	}

	var update models.VehicleUpdate
	w := postJSON(fx.router, "/api/bus/update-location", gin.H{
		"busId": "V1", "lat": 28.6300, "lng": 77.2923, "speed": 50,
	}, nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &update))

	// Ring held [0,90,60] before this report; now [50,0,90].
	assert.Equal(t, 46.7, update.AvgSpeed)
}

func TestUpdateLocation_MissingBusID(t *testing.T) {
	fx := newTrackingFixture(t, false, nil)

	w := postJSON(fx.router, "/api/bus/update-location", gin.H{
		"lat": 28.63, "lng": 77.29, "speed": 40,
	}, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, fx.broadcaster.payloads)
}

func TestUpdateLocation_UnknownVehicle(t *testing.T) {
	fx := newTrackingFixture(t, false, nil)

	w := postJSON(fx.router, "/api/bus/update-location", gin.H{
		"busId": "UNKNOWN", "lat": 0, "lng": 0, "speed": 0,
	}, nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, fx.broadcaster.payloads)
	assert.Empty(t, fx.states.states)
}

func TestUpdateLocation_DeviceAuth(t *testing.T) {
	tokens := devicetoken.NewService("test-secret", time.Hour)
	fx := newTrackingFixture(t, true, tokens)

	body := gin.H{"busId": "V1", "lat": 28.63, "lng": 77.29, "speed": 40}

	// No token.
	w := postJSON(fx.router, "/api/bus/update-location", body, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Token for a different vehicle.
	otherToken, err := tokens.GenerateToken("V2", "R2")
	require.NoError(t, err)
	w = postJSON(fx.router, "/api/bus/update-location", body, map[string]string{
		"Authorization": "Bearer " + otherToken,
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Matching token.
	token, err := tokens.GenerateToken("V1", "R1")
	require.NoError(t, err)
	w = postJSON(fx.router, "/api/bus/update-location", body, map[string]string{
		"Authorization": "Bearer " + token,
	})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLiveStatus_NeverReported(t *testing.T) {
	fx := newTrackingFixture(t, false, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/bus/V1/live", nil)
	w := httptest.NewRecorder()
	fx.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	assert.Equal(t, true, decoded["success"])
	assert.Nil(t, decoded["snappedLocation"])
	assert.Nil(t, decoded["lastUpdated"])
	assert.Equal(t, "offline", decoded["status"])
	assert.Equal(t, 0.0, decoded["avgSpeed"])
}

func TestLiveStatus_AfterReport(t *testing.T) {
	fx := newTrackingFixture(t, false, nil)

	w := postJSON(fx.router, "/api/bus/update-location", gin.H{
		"busId": "V1", "lat": 28.6300, "lng": 77.2923, "speed": 40,
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/bus/V1/live", nil)
	lw := httptest.NewRecorder()
	fx.router.ServeHTTP(lw, req)

	require.Equal(t, http.StatusOK, lw.Code)

	var update models.VehicleUpdate
	require.NoError(t, json.Unmarshal(lw.Body.Bytes(), &update))
	assert.Equal(t, models.VehicleStatusOnline, update.Status)
	require.NotNil(t, update.SnappedLocation)
	assert.Equal(t, 40.0, update.AvgSpeed)
}

func TestLiveStatus_UnknownVehicle(t *testing.T) {
	fx := newTrackingFixture(t, false, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/bus/NOPE/live", nil)
	w := httptest.NewRecorder()
	fx.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
