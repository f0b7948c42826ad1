package services

import (
	"math"

	"github.com/smarttransit/live-tracking-backend/internal/models"
)

// ComputeETAs converts the vehicle's arc offset, the per-stop arc offsets and
// the smoothed speed into per-stop remaining minutes. Stops whose offset is at
// or behind the vehicle report zero. The speed floor guards against division
// by zero and unbounded ETAs while the vehicle is stationary.
func ComputeETAs(vehicleOffsetKm float64, stops []models.GeometryStop, stopOffsetsKm []float64, avgSpeedKmh, minSpeedFloorKmh float64) []models.ETAStop {
	effectiveSpeed := avgSpeedKmh
	if effectiveSpeed < minSpeedFloorKmh {
		effectiveSpeed = minSpeedFloorKmh
	}

	etas := make([]models.ETAStop, 0, len(stops))
	for i, stop := range stops {
		if i >= len(stopOffsetsKm) {
			break
		}
		remainingKm := stopOffsetsKm[i] - vehicleOffsetKm
		if remainingKm < 0 {
			remainingKm = 0
		}
		etas = append(etas, models.ETAStop{
			StopID:     stop.StopID,
			Name:       stop.Name,
			ETAMinutes: int(math.Round(remainingKm / effectiveSpeed * 60)),
		})
	}
	return etas
}
