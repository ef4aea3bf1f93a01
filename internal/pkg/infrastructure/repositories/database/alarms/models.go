package alarms

import (
	"time"

	"gorm.io/gorm"
)

const (
	TypeThresholdBreach = "ThresholdBreach"
	TypePondNotObserved = "PondNotObserved"
)

type Alarm struct {
	ID        string         `gorm:"primarykey"`
	CreatedAt time.Time      `json:"-"`
	UpdatedAt time.Time      `json:"-"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	PondID uint `gorm:"index"`

	Type        string
	Metric      string
	Severity    int
	Description string
	Value       float64
	Active      bool `gorm:"index"`
	ObservedAt  time.Time
}
