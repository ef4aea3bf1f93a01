package ponds

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"gorm.io/gorm"

	. "github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/repositories/database"
)

//go:generate moq -rm -out pondrepository_mock.go . PondRepository

type PondRepository interface {
	GetPonds(ctx context.Context) ([]Pond, error)
	GetPond(ctx context.Context, pondID uint) (Pond, error)
	CountPonds(ctx context.Context) (int64, error)
	CreatePond(ctx context.Context, pond *Pond) error

	GetActuator(ctx context.Context, actuatorID uint) (Actuator, error)
	SaveActuator(ctx context.Context, actuator *Actuator) error

	AddReading(ctx context.Context, reading *SensorReading) error
	GetReadings(ctx context.Context, pondID uint, limit int) ([]SensorReading, error)
	GetLatestReading(ctx context.Context, pondID uint) (SensorReading, error)
	GetRecentReadings(ctx context.Context, limit int) ([]SensorReading, error)

	AddCameraLog(ctx context.Context, log *CameraLog) error
	GetCameraLogs(ctx context.Context, pondID uint, limit int) ([]CameraLog, error)

	Seed(ctx context.Context, reader io.Reader) error
}

var ErrPondNotFound = fmt.Errorf("pond not found")
var ErrActuatorNotFound = fmt.Errorf("actuator not found")
var ErrNoReadings = fmt.Errorf("no readings found")

type pondRepository struct {
	db *gorm.DB
}

func NewPondRepository(connect ConnectorFunc) (PondRepository, error) {
	impl, _, err := connect()
	if err != nil {
		return nil, err
	}

	err = impl.AutoMigrate(&Pond{}, &Actuator{}, &SensorReading{}, &CameraLog{})
	if err != nil {
		return nil, err
	}

	return &pondRepository{
		db: impl,
	}, nil
}

func (r *pondRepository) GetPonds(ctx context.Context) ([]Pond, error) {
	var ponds []Pond

	err := r.db.WithContext(ctx).
		Preload("Actuators", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Order("id").
		Find(&ponds).
		Error

	if err != nil {
		return []Pond{}, fmt.Errorf("%w: %s", ErrRepositoryError, err.Error())
	}

	return ponds, nil
}

func (r *pondRepository) GetPond(ctx context.Context, pondID uint) (Pond, error) {
	pond := Pond{}

	err := r.db.WithContext(ctx).
		Preload("Actuators").
		Where(&Pond{ID: pondID}).
		First(&pond).
		Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Pond{}, ErrPondNotFound
		}
		return Pond{}, fmt.Errorf("%w: %s", ErrRepositoryError, err.Error())
	}

	return pond, nil
}

func (r *pondRepository) CountPonds(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&Pond{}).Count(&count).Error
	return count, err
}

func (r *pondRepository) CreatePond(ctx context.Context, pond *Pond) error {
	return r.db.WithContext(ctx).Create(pond).Error
}

func (r *pondRepository) GetActuator(ctx context.Context, actuatorID uint) (Actuator, error) {
	a := Actuator{}

	err := r.db.WithContext(ctx).
		Where(&Actuator{ID: actuatorID}).
		First(&a).
		Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Actuator{}, ErrActuatorNotFound
		}
		return Actuator{}, fmt.Errorf("%w: %s", ErrRepositoryError, err.Error())
	}

	return a, nil
}

func (r *pondRepository) SaveActuator(ctx context.Context, actuator *Actuator) error {
	return r.db.WithContext(ctx).Save(actuator).Error
}

func (r *pondRepository) AddReading(ctx context.Context, reading *SensorReading) error {
	if reading.Timestamp.IsZero() {
		reading.Timestamp = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(reading).Error
}

// GetReadings returns at most limit readings for the pond, newest first.
func (r *pondRepository) GetReadings(ctx context.Context, pondID uint, limit int) ([]SensorReading, error) {
	var readings []SensorReading

	err := r.db.WithContext(ctx).
		Where(&SensorReading{PondID: pondID}).
		Order("timestamp desc, id desc").
		Limit(limit).
		Find(&readings).
		Error

	if err != nil {
		return []SensorReading{}, fmt.Errorf("%w: %s", ErrRepositoryError, err.Error())
	}

	return readings, nil
}

func (r *pondRepository) GetLatestReading(ctx context.Context, pondID uint) (SensorReading, error) {
	readings, err := r.GetReadings(ctx, pondID, 1)
	if err != nil {
		return SensorReading{}, err
	}
	if len(readings) == 0 {
		return SensorReading{}, ErrNoReadings
	}
	return readings[0], nil
}

func (r *pondRepository) GetRecentReadings(ctx context.Context, limit int) ([]SensorReading, error) {
	var readings []SensorReading

	err := r.db.WithContext(ctx).
		Order("timestamp desc, id desc").
		Limit(limit).
		Find(&readings).
		Error

	return readings, err
}

func (r *pondRepository) AddCameraLog(ctx context.Context, log *CameraLog) error {
	if log.Timestamp.IsZero() {
		log.Timestamp = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(log).Error
}

// GetCameraLogs returns camera logs newest first. A zero pondID matches all ponds.
func (r *pondRepository) GetCameraLogs(ctx context.Context, pondID uint, limit int) ([]CameraLog, error) {
	var logs []CameraLog

	query := r.db.WithContext(ctx)
	if pondID != 0 {
		query = query.Where(&CameraLog{PondID: pondID})
	}

	err := query.
		Order("timestamp desc, id desc").
		Limit(limit).
		Find(&logs).
		Error

	if err != nil {
		return []CameraLog{}, fmt.Errorf("%w: %s", ErrRepositoryError, err.Error())
	}

	return logs, nil
}
