package entities

import "time"

// IrrigationSession is an interval during which irrigation is considered
// active. EndTime stays nil until the session is closed.
type IrrigationSession struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	SensorDataID *uint      `gorm:"column:sensor_data_id;index" json:"sensor_data_id"`
	SensorData   *Reading   `gorm:"foreignKey:SensorDataID;constraint:OnDelete:CASCADE" json:"sensor_data,omitempty"`
	StartTime    time.Time  `gorm:"not null" json:"start_time"`
	EndTime      *time.Time `json:"end_time"`
	WaterUsed    float64    `gorm:"not null;default:0" json:"water_used"`
}

func (IrrigationSession) TableName() string {
	return "sensor_data_irrigation"
}

func (s *IrrigationSession) IsOpen() bool {
	return s.EndTime == nil
}

// Close ends the session at now, never earlier than StartTime. Closing a
// closed session records the new end time and water usage.
func (s *IrrigationSession) Close(now time.Time, waterUsed float64) {
	end := now
	if end.Before(s.StartTime) {
		end = s.StartTime
	}
	s.EndTime = &end
	s.WaterUsed = waterUsed
}
