package thresholds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/repositories/database/settings"
)

//go:generate moq -rm -out service_mock.go . Service

type Service interface {
	Get(ctx context.Context, pondID uint) (Settings, error)
	Save(ctx context.Context, s Settings) (Settings, error)
}

type service struct {
	repo     settings.SettingsRepository
	defaults Settings
}

// NewService returns a settings service that falls back to defaults for
// ponds that have never been configured.
func NewService(repo settings.SettingsRepository, defaults *Settings) Service {
	d := DefaultSettings(0)
	if defaults != nil {
		d = *defaults
	}
	return &service{repo: repo, defaults: d}
}

func (s *service) Get(ctx context.Context, pondID uint) (Settings, error) {
	stored, err := s.repo.Get(ctx, pondID)
	if errors.Is(err, settings.ErrSettingsNotFound) {
		d := s.defaults
		d.PondID = pondID
		return d, nil
	}
	if err != nil {
		return Settings{}, err
	}

	result := Settings{}
	err = json.Unmarshal([]byte(stored.Document), &result)
	if err != nil {
		return Settings{}, fmt.Errorf("corrupt settings for pond %d: %w", pondID, err)
	}
	result.PondID = pondID

	return result, nil
}

func (s *service) Save(ctx context.Context, st Settings) (Settings, error) {
	if err := st.Thresholds.Validate(); err != nil {
		return Settings{}, err
	}

	b, err := json.Marshal(st)
	if err != nil {
		return Settings{}, err
	}

	err = s.repo.Save(ctx, &settings.PondSettings{PondID: st.PondID, Document: string(b)})
	if err != nil {
		return Settings{}, err
	}

	return st, nil
}
