package healthscans

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/repositories/database"
	"github.com/matryer/is"
	"github.com/rs/zerolog"
)

func TestSaveReplacesExistingScan(t *testing.T) {
	is, ctx, r := testSetup(t)

	scan := &HealthScan{ID: "scan-1", Condition: "Healthy", Status: "healthy", Confidence: 97, Behaviors: []string{"Clear shell"}, Revision: 1}
	is.NoErr(r.Save(ctx, scan))

	scan.Condition = "White Spot Syndrome"
	scan.Revision = 2
	is.NoErr(r.Save(ctx, scan))

	stored, err := r.Get(ctx, "scan-1")
	is.NoErr(err)
	is.Equal(stored.Condition, "White Spot Syndrome")
	is.Equal(stored.Revision, uint64(2))
	is.Equal(stored.Behaviors, []string{"Clear shell"})
}

func TestListNewestFirst(t *testing.T) {
	is, ctx, r := testSetup(t)

	now := time.Now().UTC()
	is.NoErr(r.Save(ctx, &HealthScan{ID: "a", PondID: 1, ScannedAt: now.Add(-2 * time.Minute)}))
	is.NoErr(r.Save(ctx, &HealthScan{ID: "b", PondID: 1, ScannedAt: now}))
	is.NoErr(r.Save(ctx, &HealthScan{ID: "c", PondID: 2, ScannedAt: now.Add(-time.Minute)}))

	all, err := r.List(ctx, 0, 10)
	is.NoErr(err)
	is.Equal(len(all), 3)
	is.Equal(all[0].ID, "b")
	is.Equal(all[1].ID, "c")

	pond1, err := r.List(ctx, 1, 10)
	is.NoErr(err)
	is.Equal(len(pond1), 2)
}

func TestGetUnknownScan(t *testing.T) {
	is, ctx, r := testSetup(t)

	_, err := r.Get(ctx, "nope")
	is.True(errors.Is(err, ErrScanNotFound))
}

func testSetup(t *testing.T) (*is.I, context.Context, HealthScanRepository) {
	is := is.New(t)

	r, err := NewHealthScanRepository(NewSQLiteConnector(zerolog.Logger{}, InMemoryDSN(t.Name())))
	is.NoErr(err)

	return is, context.Background(), r
}
