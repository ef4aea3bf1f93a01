package ponds

import (
	"time"
)

type Pond struct {
	ID        uint      `gorm:"primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Name     string `gorm:"index"`
	Location string

	Actuators []Actuator `gorm:"foreignKey:PondID;constraint:OnDelete:CASCADE"`
}

type Actuator struct {
	ID        uint `gorm:"primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	PondID uint `gorm:"index"`
	Name   string
	Kind   string
	IsOn   bool
	Mode   string `gorm:"default:OFF"`
}

type SensorReading struct {
	ID        uint      `gorm:"primarykey"`
	Timestamp time.Time `gorm:"index"`
	PondID    uint      `gorm:"index"`

	Temperature     float64
	PH              float64
	DissolvedOxygen float64
	Turbidity       float64
	Ammonia         float64
	Salinity        float64
}

type CameraLog struct {
	ID        uint      `gorm:"primarykey"`
	Timestamp time.Time `gorm:"index"`
	PondID    uint      `gorm:"index"`

	URL         string `gorm:"type:text"`
	Description string
}
