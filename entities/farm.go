package entities

import "time"

// Farm is the caller-owned farm context a calendar is planted on.
type Farm struct {
	FarmID         uint      `gorm:"primaryKey" json:"farm_id"`
	UserID         string    `json:"user_id" gorm:"index"`
	Name           string    `json:"name"`
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	LocationHash   string    `json:"location_hash" gorm:"index"`
	TotalFarmSize  float64   `json:"total_farm_size"` // hectares
	SoilType       string    `json:"soil_type"`       // sand|loam|clay
	SoilPH         *float64  `json:"soil_ph,omitempty"`
	IrrigationType string    `json:"irrigation_type"` // drip|sprinkler|flood|rainfed

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
