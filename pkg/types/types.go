package types

import (
	"time"
)

type Pond struct {
	ID        uint       `json:"id"`
	Name      string     `json:"name"`
	Location  string     `json:"location"`
	Actuators []Actuator `json:"actuators"`
}

type ActuatorMode string

const (
	ActuatorModeOn   ActuatorMode = "ON"
	ActuatorModeAuto ActuatorMode = "AUTO"
	ActuatorModeOff  ActuatorMode = "OFF"
)

func (m ActuatorMode) Valid() bool {
	return m == ActuatorModeOn || m == ActuatorModeAuto || m == ActuatorModeOff
}

const (
	ActuatorKindAerator = "aerator"
	ActuatorKindPump    = "pump"
)

type Actuator struct {
	ID     uint         `json:"id"`
	Name   string       `json:"name"`
	Kind   string       `json:"kind"`
	IsOn   bool         `json:"isOn"`
	Mode   ActuatorMode `json:"mode"`
	PondID uint         `json:"pondId"`
}

type SensorReading struct {
	ID              uint      `json:"id"`
	Timestamp       time.Time `json:"timestamp"`
	PondID          uint      `json:"pondId"`
	Temperature     float64   `json:"temperature"`
	PH              float64   `json:"ph"`
	DissolvedOxygen float64   `json:"dissolvedOxygen"`
	Turbidity       float64   `json:"turbidity"`
	Ammonia         float64   `json:"ammonia"`
	Salinity        float64   `json:"salinity"`
}

// EstimatedReading is a reading where missing dissolved oxygen and ammonia
// values have been replaced by soft sensor estimates.
type EstimatedReading struct {
	SensorReading
	Time                     string `json:"time"`
	EstimatedDissolvedOxygen bool   `json:"estimatedDissolvedOxygen"`
	EstimatedAmmonia         bool   `json:"estimatedAmmonia"`
}

type CameraLog struct {
	ID          uint      `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	PondID      uint      `json:"pondId"`
	URL         string    `json:"url"`
	Description string    `json:"description"`
}

type RiskAssessment struct {
	Level    string `json:"level"`
	Severity string `json:"severity"`
	Note     string `json:"note"`
}

type HealthScan struct {
	ID         string          `json:"id"`
	Time       string          `json:"time"`
	Date       string          `json:"date"`
	Researcher string          `json:"researcher"`
	PondID     uint            `json:"pondId"`
	Condition  string          `json:"condition"`
	Status     string          `json:"status"`
	Confidence float64         `json:"confidence"`
	Advice     string          `json:"advice"`
	Behaviors  []string        `json:"behaviors"`
	Img        string          `json:"img,omitempty"`
	Risk       *RiskAssessment `json:"risk,omitempty"`
	Plan       []string        `json:"plan,omitempty"`
	Revision   uint64          `json:"revision"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

type HealthSession struct {
	Logs []HealthScan `json:"logs"`
}

const (
	AlarmSeverityUnknown  = 0
	AlarmSeverityWarning  = 1
	AlarmSeverityCritical = 2
)

type Alarm struct {
	ID          string    `json:"id"`
	PondID      uint      `json:"pondId"`
	Type        string    `json:"type"`
	Metric      string    `json:"metric,omitempty"`
	Severity    int       `json:"severity"`
	Description string    `json:"description"`
	Value       float64   `json:"value"`
	Active      bool      `json:"active"`
	ObservedAt  time.Time `json:"observedAt"`
}

type User struct {
	ID     uint   `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Avatar string `json:"avatar"`
}

// Prediction uses the feature names of the external water quality model.
type Prediction struct {
	DO        float64 `json:"do"`
	PH        float64 `json:"ph"`
	Temp      float64 `json:"temp"`
	Turbidity float64 `json:"turbidity"`
	Ammonia   float64 `json:"ammonia"`
	Salinity  float64 `json:"salinity"`
}

type ForecastPoint struct {
	Timestamp time.Time `json:"timestamp"`
	TimeLabel string    `json:"timeLabel"`
	Type      string    `json:"type"`
	Value     float64   `json:"value"`
}

type Weather struct {
	Temp       int     `json:"temp"`
	Condition  string  `json:"condition"`
	RainChance float64 `json:"rainChance"`
	Wind       int     `json:"wind"`
	Humidity   float64 `json:"humidity"`
}

type MetricStatistics struct {
	Metric string  `json:"metric"`
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stdDev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}
