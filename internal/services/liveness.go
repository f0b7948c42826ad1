package services

import (
	"time"

	"github.com/smarttransit/live-tracking-backend/internal/models"
)

// LivenessStatus classifies a vehicle by the age of its last report. A zero
// lastUpdated means the vehicle has never reported. The rule is applied at
// the moment of observation; there is no background sweeper.
func LivenessStatus(lastUpdated time.Time, now time.Time, stalenessThreshold time.Duration) models.VehicleStatus {
	if lastUpdated.IsZero() {
		return models.VehicleStatusOffline
	}
	if now.Sub(lastUpdated) <= stalenessThreshold {
		return models.VehicleStatusOnline
	}
	return models.VehicleStatusOffline
}
