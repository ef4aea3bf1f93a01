package alarms

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aquasmart/pond-monitoring/internal/pkg/application/softsensor"
	"github.com/aquasmart/pond-monitoring/internal/pkg/application/thresholds"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/messagebus"
	db "github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/repositories/database/alarms"
	"github.com/aquasmart/pond-monitoring/pkg/types"
	"github.com/samber/lo"
)

const (
	AlarmThresholdBreach = db.TypeThresholdBreach
	AlarmPondNotObserved = db.TypePondNotObserved
)

var ErrAlarmNotFound = fmt.Errorf("alarm not found")

//go:generate moq -rm -out alarmservice_mock.go . AlarmService
type AlarmService interface {
	Get(ctx context.Context, onlyActive bool, pondID uint) ([]types.Alarm, error)
	GetByID(ctx context.Context, alarmID string) (types.Alarm, error)
	Add(ctx context.Context, alarm types.Alarm) (types.Alarm, error)
	Close(ctx context.Context, alarmID string) (types.Alarm, error)
	CloseMatching(ctx context.Context, pondID uint, alarmType, metric string) error
}

type alarmSvc struct {
	storage db.AlarmRepository
	bus     messagebus.Bus
}

// New creates the alarm service and registers its handlers for incoming
// readings and watchdog messages on the bus.
func New(storage db.AlarmRepository, bus messagebus.Bus, settings thresholds.Service, estimator softsensor.Estimator) AlarmService {
	svc := &alarmSvc{
		storage: storage,
		bus:     bus,
	}

	bus.RegisterTopicMessageHandler("pond.readingReceived", NewReadingReceivedHandler(svc, settings, estimator))
	bus.RegisterTopicMessageHandler("watchdog.pondNotObserved", NewPondNotObservedHandler(svc))

	return svc
}

func (svc *alarmSvc) Get(ctx context.Context, onlyActive bool, pondID uint) ([]types.Alarm, error) {
	alarms, err := svc.storage.GetAll(ctx, onlyActive, pondID)
	if err != nil {
		return nil, err
	}

	return lo.Map(alarms, func(a db.Alarm, _ int) types.Alarm { return mapAlarm(a) }), nil
}

func (svc *alarmSvc) GetByID(ctx context.Context, alarmID string) (types.Alarm, error) {
	alarm, err := svc.storage.GetByID(ctx, alarmID)
	if err != nil {
		if errors.Is(err, db.ErrAlarmNotFound) {
			return types.Alarm{}, ErrAlarmNotFound
		}
		return types.Alarm{}, err
	}

	return mapAlarm(alarm), nil
}

// Add raises an alarm. If an active alarm of the same type and metric already
// exists for the pond it is refreshed instead, and no AlarmCreated message is sent.
func (svc *alarmSvc) Add(ctx context.Context, alarm types.Alarm) (types.Alarm, error) {
	if alarm.PondID == 0 {
		return types.Alarm{}, fmt.Errorf("no pond is set on alarm")
	}
	if alarm.ObservedAt.IsZero() {
		alarm.ObservedAt = time.Now().UTC()
	}

	stored, created, err := svc.storage.Add(ctx, db.Alarm{
		ID:          alarm.ID,
		PondID:      alarm.PondID,
		Type:        alarm.Type,
		Metric:      alarm.Metric,
		Severity:    alarm.Severity,
		Description: alarm.Description,
		Value:       alarm.Value,
		ObservedAt:  alarm.ObservedAt,
	})
	if err != nil {
		return types.Alarm{}, err
	}

	result := mapAlarm(stored)

	if !created {
		return result, nil
	}

	return result, svc.bus.PublishOnTopic(ctx, &types.AlarmCreated{
		Alarm:     result,
		Timestamp: result.ObservedAt,
	})
}

func (svc *alarmSvc) Close(ctx context.Context, alarmID string) (types.Alarm, error) {
	existing, err := svc.storage.GetByID(ctx, alarmID)
	if err != nil {
		if errors.Is(err, db.ErrAlarmNotFound) {
			return types.Alarm{}, ErrAlarmNotFound
		}
		return types.Alarm{}, err
	}

	if !existing.Active {
		return mapAlarm(existing), nil
	}

	closed, err := svc.storage.Close(ctx, alarmID)
	if err != nil {
		return types.Alarm{}, err
	}

	err = svc.bus.PublishOnTopic(ctx, &types.AlarmClosed{
		ID:        closed.ID,
		PondID:    closed.PondID,
		Timestamp: time.Now().UTC(),
	})

	return mapAlarm(closed), err
}

// CloseMatching closes the active alarm of the given type and metric for a
// pond, if there is one.
func (svc *alarmSvc) CloseMatching(ctx context.Context, pondID uint, alarmType, metric string) error {
	active, err := svc.storage.GetActive(ctx, pondID, alarmType, metric)
	if err != nil {
		if errors.Is(err, db.ErrAlarmNotFound) {
			return nil
		}
		return err
	}

	_, err = svc.Close(ctx, active.ID)
	return err
}

func mapAlarm(a db.Alarm) types.Alarm {
	return types.Alarm{
		ID:          a.ID,
		PondID:      a.PondID,
		Type:        a.Type,
		Metric:      a.Metric,
		Severity:    a.Severity,
		Description: a.Description,
		Value:       a.Value,
		Active:      a.Active,
		ObservedAt:  a.ObservedAt,
	}
}
