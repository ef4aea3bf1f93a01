package alarms

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/repositories/database"
	"github.com/matryer/is"
	"github.com/rs/zerolog"
)

func TestAddAlarms(t *testing.T) {
	is, ctx, r := testSetupAlarmRepository(t)

	a, created, err := r.Add(ctx, Alarm{
		PondID:      1,
		Type:        TypeThresholdBreach,
		Metric:      "do",
		Severity:    2,
		Description: "desc",
		ObservedAt:  time.Now(),
	})

	is.NoErr(err)
	is.True(created)
	is.True(a.ID != "")
	is.True(a.Active)
}

func TestAddSameAlarmTwiceUpdatesExisting(t *testing.T) {
	is, ctx, r := testSetupAlarmRepository(t)

	first, _, err := r.Add(ctx, Alarm{PondID: 1, Type: TypeThresholdBreach, Metric: "temp", Severity: 1, Value: 33, ObservedAt: time.Now()})
	is.NoErr(err)

	later := time.Now().Add(time.Minute)
	second, created, err := r.Add(ctx, Alarm{PondID: 1, Type: TypeThresholdBreach, Metric: "temp", Severity: 1, Value: 34, ObservedAt: later})
	is.NoErr(err)
	is.True(!created)
	is.Equal(first.ID, second.ID)
	is.Equal(second.Value, 34.0)

	_, created, err = r.Add(ctx, Alarm{PondID: 2, Type: TypeThresholdBreach, Metric: "temp", Severity: 1, ObservedAt: later})
	is.NoErr(err)
	is.True(created)

	alarms, err := r.GetAll(ctx, false, 0)
	is.NoErr(err)
	is.Equal(len(alarms), 2)
}

func TestCloseAlarm(t *testing.T) {
	is, ctx, r := testSetupAlarmRepository(t)

	a, _, err := r.Add(ctx, Alarm{PondID: 3, Type: TypePondNotObserved, ObservedAt: time.Now()})
	is.NoErr(err)

	closed, err := r.Close(ctx, a.ID)
	is.NoErr(err)
	is.True(!closed.Active)

	active, err := r.GetAll(ctx, true, 3)
	is.NoErr(err)
	is.Equal(len(active), 0)

	_, err = r.GetActive(ctx, 3, TypePondNotObserved, "")
	is.True(errors.Is(err, ErrAlarmNotFound))

	_, err = r.Close(ctx, "no-such-alarm")
	is.True(errors.Is(err, ErrAlarmNotFound))
}

func testSetupAlarmRepository(t *testing.T) (*is.I, context.Context, AlarmRepository) {
	is := is.New(t)

	conn := NewSQLiteConnector(zerolog.Logger{}, InMemoryDSN(t.Name()))

	r, err := NewAlarmRepository(conn)
	is.NoErr(err)

	return is, context.Background(), r
}
