package thresholds

import (
	"context"
	"errors"
	"testing"

	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/repositories/database"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/repositories/database/settings"
	"github.com/matryer/is"
	"github.com/rs/zerolog"
)

func TestUnconfiguredPondGetsDefaults(t *testing.T) {
	is, ctx, svc := testSetupService(t)

	s, err := svc.Get(ctx, 3)
	is.NoErr(err)
	is.Equal(s.PondID, uint(3))
	is.Equal(s.Thresholds, Defaults())
	is.True(s.Automation.AeratorEnabled)
	is.True(!s.Automation.PumpEnabled)
}

func TestSavedSettingsAreReturned(t *testing.T) {
	is, ctx, svc := testSetupService(t)

	s := DefaultSettings(1)
	s.Thresholds.DO = Range{5, 9}
	s.Automation.SimulationMode = true

	_, err := svc.Save(ctx, s)
	is.NoErr(err)

	stored, err := svc.Get(ctx, 1)
	is.NoErr(err)
	is.Equal(stored.Thresholds.DO, Range{5, 9})
	is.True(stored.Automation.SimulationMode)
}

func TestInvalidSettingsAreNotSaved(t *testing.T) {
	is, ctx, svc := testSetupService(t)

	s := DefaultSettings(1)
	s.Thresholds.PH = Range{9, 15}

	_, err := svc.Save(ctx, s)
	is.True(errors.Is(err, ErrInvalidThreshold))
}

func testSetupService(t *testing.T) (*is.I, context.Context, Service) {
	is := is.New(t)

	repo, err := settings.NewSettingsRepository(database.NewSQLiteConnector(zerolog.Logger{}, database.InMemoryDSN(t.Name())))
	is.NoErr(err)

	return is, context.Background(), NewService(repo, nil)
}
