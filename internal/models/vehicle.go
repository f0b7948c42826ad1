package models

import (
	"time"
)

// Vehicle represents a tracked bus, bound to exactly one route at a time
type Vehicle struct {
	ID         string    `json:"id" db:"id"`
	RouteID    string    `json:"route_id" db:"route_id"`
	PlateNo    *string   `json:"plate_no,omitempty" db:"plate_no"`
	APIKeyHash *string   `json:"-" db:"api_key_hash"`
	IsActive   bool      `json:"is_active" db:"is_active"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// HasAPIKey checks whether a device key has been provisioned for the vehicle
func (v *Vehicle) HasAPIKey() bool {
	return v.APIKeyHash != nil && *v.APIKeyHash != ""
}
