package entities

import "time"

// Feature indices of a Reading's feature vector.
const (
	FeatureTemperature = iota
	FeatureHumidity
	FeatureSoilMoisture

	NumFeatures
)

// Reading is one persisted sensor sample. Timestamp is assigned by the
// server when the row is written.
type Reading struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Temperature  float64   `gorm:"not null" json:"temperature"`
	Humidity     float64   `gorm:"not null" json:"humidity"`
	SoilMoisture float64   `gorm:"not null;default:0" json:"soil_moisture"`
	Timestamp    time.Time `gorm:"not null;index" json:"timestamp"`
}

func (Reading) TableName() string {
	return "sensor_data_sensordata"
}

// Features returns the reading as (temperature, humidity, soil_moisture).
func (r Reading) Features() []float64 {
	return []float64{r.Temperature, r.Humidity, r.SoilMoisture}
}
