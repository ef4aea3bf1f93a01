package alarms

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/logging"
	. "github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/repositories/database"
)

//go:generate moq -rm -out alarmrepository_mock.go . AlarmRepository

var ErrAlarmNotFound = fmt.Errorf("alarm not found")

type AlarmRepository interface {
	GetAll(ctx context.Context, onlyActive bool, pondID uint) ([]Alarm, error)
	GetByID(ctx context.Context, alarmID string) (Alarm, error)
	GetActive(ctx context.Context, pondID uint, alarmType, metric string) (Alarm, error)
	Add(ctx context.Context, alarm Alarm) (Alarm, bool, error)
	Close(ctx context.Context, alarmID string) (Alarm, error)
}

type alarmRepository struct {
	db *gorm.DB
}

func NewAlarmRepository(connect ConnectorFunc) (AlarmRepository, error) {
	impl, _, err := connect()
	if err != nil {
		return nil, err
	}

	err = impl.AutoMigrate(&Alarm{})
	if err != nil {
		return nil, err
	}

	return &alarmRepository{
		db: impl,
	}, nil
}

func (d *alarmRepository) Close(ctx context.Context, alarmID string) (Alarm, error) {
	a, err := d.GetByID(ctx, alarmID)
	if err != nil {
		return Alarm{}, err
	}

	a.Active = false
	err = d.db.WithContext(ctx).
		Save(&a).
		Error

	return a, err
}

// Add stores a new alarm, unless an active alarm of the same type and metric
// already exists for the pond. In that case the existing alarm is refreshed
// and returned, and the boolean result is false.
func (d *alarmRepository) Add(ctx context.Context, alarm Alarm) (Alarm, bool, error) {
	logger := logging.GetFromContext(ctx)

	existing, err := d.GetActive(ctx, alarm.PondID, alarm.Type, alarm.Metric)
	if err == nil {
		logger.Debug().Msgf("found an active alarm to update time on")
		existing.ObservedAt = alarm.ObservedAt
		existing.Value = alarm.Value
		existing.Description = alarm.Description
		if alarm.Severity > existing.Severity {
			existing.Severity = alarm.Severity
		}
		err = d.db.WithContext(ctx).
			Save(&existing).
			Error
		return existing, false, err
	}

	if !errors.Is(err, ErrAlarmNotFound) {
		return Alarm{}, false, err
	}

	logger.Debug().Msg("adding new alarm")

	if alarm.ID == "" {
		alarm.ID = uuid.NewString()
	}
	alarm.Active = true

	err = d.db.WithContext(ctx).
		Create(&alarm).
		Error

	return alarm, err == nil, err
}

func (d *alarmRepository) GetActive(ctx context.Context, pondID uint, alarmType, metric string) (Alarm, error) {
	a := Alarm{}

	err := d.db.WithContext(ctx).
		Where("pond_id = ? AND type = ? AND metric = ? AND active = ?", pondID, alarmType, metric, true).
		First(&a).
		Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Alarm{}, ErrAlarmNotFound
		}
		return Alarm{}, err
	}

	return a, nil
}

func (d *alarmRepository) GetByID(ctx context.Context, alarmID string) (Alarm, error) {
	alarm := Alarm{}

	err := d.db.WithContext(ctx).
		Where(&Alarm{ID: alarmID}).
		First(&alarm).
		Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Alarm{}, ErrAlarmNotFound
		}
		return Alarm{}, err
	}

	return alarm, nil
}

// GetAll returns alarms newest first. A zero pondID matches all ponds.
func (d *alarmRepository) GetAll(ctx context.Context, onlyActive bool, pondID uint) ([]Alarm, error) {
	var alarms []Alarm

	query := d.db.WithContext(ctx)

	if onlyActive {
		query = query.Where("active = ?", true)
	}
	if pondID != 0 {
		query = query.Where("pond_id = ?", pondID)
	}

	err := query.Order("observed_at desc").Find(&alarms).Error
	if err != nil {
		return []Alarm{}, err
	}

	return alarms, nil
}
