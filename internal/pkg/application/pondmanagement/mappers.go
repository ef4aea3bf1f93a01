package pondmanagement

import (
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/repositories/database/ponds"
	"github.com/aquasmart/pond-monitoring/pkg/types"
	"github.com/samber/lo"
)

func MapPond(p ponds.Pond) types.Pond {
	return types.Pond{
		ID:        p.ID,
		Name:      p.Name,
		Location:  p.Location,
		Actuators: lo.Map(p.Actuators, func(a ponds.Actuator, _ int) types.Actuator { return MapActuator(a) }),
	}
}

func MapActuator(a ponds.Actuator) types.Actuator {
	mode := types.ActuatorMode(a.Mode)
	if !mode.Valid() {
		mode = types.ActuatorModeOff
	}

	return types.Actuator{
		ID:     a.ID,
		Name:   a.Name,
		Kind:   a.Kind,
		IsOn:   a.IsOn,
		Mode:   mode,
		PondID: a.PondID,
	}
}

func MapReading(r ponds.SensorReading) types.SensorReading {
	return types.SensorReading{
		ID:              r.ID,
		Timestamp:       r.Timestamp,
		PondID:          r.PondID,
		Temperature:     r.Temperature,
		PH:              r.PH,
		DissolvedOxygen: r.DissolvedOxygen,
		Turbidity:       r.Turbidity,
		Ammonia:         r.Ammonia,
		Salinity:        r.Salinity,
	}
}

func MapCameraLog(c ponds.CameraLog) types.CameraLog {
	return types.CameraLog{
		ID:          c.ID,
		Timestamp:   c.Timestamp,
		PondID:      c.PondID,
		URL:         c.URL,
		Description: c.Description,
	}
}
