package settings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	. "github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/repositories/database"
)

// PondSettings stores the settings document of a pond as serialized JSON.
type PondSettings struct {
	PondID    uint `gorm:"primarykey;autoIncrement:false"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Document string `gorm:"type:text"`
}

//go:generate moq -rm -out settingsrepository_mock.go . SettingsRepository

type SettingsRepository interface {
	Get(ctx context.Context, pondID uint) (PondSettings, error)
	Save(ctx context.Context, s *PondSettings) error
}

var ErrSettingsNotFound = fmt.Errorf("settings not found")

type settingsRepository struct {
	db *gorm.DB
}

func NewSettingsRepository(connect ConnectorFunc) (SettingsRepository, error) {
	impl, _, err := connect()
	if err != nil {
		return nil, err
	}

	err = impl.AutoMigrate(&PondSettings{})
	if err != nil {
		return nil, err
	}

	return &settingsRepository{db: impl}, nil
}

func (r *settingsRepository) Get(ctx context.Context, pondID uint) (PondSettings, error) {
	s := PondSettings{}

	err := r.db.WithContext(ctx).Where(&PondSettings{PondID: pondID}).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return PondSettings{}, ErrSettingsNotFound
		}
		return PondSettings{}, fmt.Errorf("%w: %s", ErrRepositoryError, err.Error())
	}

	return s, nil
}

func (r *settingsRepository) Save(ctx context.Context, s *PondSettings) error {
	if s.PondID == 0 {
		return fmt.Errorf("settings must belong to a pond")
	}
	return r.db.WithContext(ctx).Save(s).Error
}
