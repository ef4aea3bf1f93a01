package healthsessions

import (
	"testing"
	"time"

	"github.com/aquasmart/pond-monitoring/pkg/types"
	"github.com/matryer/is"
)

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func scan(id string, rev uint64, minutes int, condition string) types.HealthScan {
	return types.HealthScan{ID: id, Revision: rev, UpdatedAt: t0.Add(time.Duration(minutes) * time.Minute), Condition: condition}
}

func TestHigherRevisionWins(t *testing.T) {
	is := is.New(t)

	local := []types.HealthScan{scan("a", 2, 1, "Healthy")}
	remote := []types.HealthScan{scan("a", 1, 5, "White Spot Syndrome")}

	merged := Reconcile(local, remote, 10)
	is.Equal(len(merged), 1)
	is.Equal(merged[0].Condition, "Healthy")
}

func TestLaterUpdateWinsOnEqualRevision(t *testing.T) {
	is := is.New(t)

	local := []types.HealthScan{scan("a", 1, 1, "Healthy")}
	remote := []types.HealthScan{scan("a", 1, 5, "Black Gill Disease")}

	merged := Reconcile(local, remote, 10)
	is.Equal(merged[0].Condition, "Black Gill Disease")
}

func TestUnionIsSortedAndCapped(t *testing.T) {
	is := is.New(t)

	local := []types.HealthScan{scan("a", 1, 1, ""), scan("b", 1, 3, "")}
	remote := []types.HealthScan{scan("c", 1, 2, ""), scan("d", 1, 4, "")}

	merged := Reconcile(local, remote, 3)
	is.Equal(len(merged), 3)
	is.Equal(merged[0].ID, "d")
	is.Equal(merged[1].ID, "b")
	is.Equal(merged[2].ID, "c")
}

func TestReconcileIsCommutativeAndIdempotent(t *testing.T) {
	is := is.New(t)

	local := []types.HealthScan{scan("a", 1, 1, "x"), scan("b", 3, 2, "y"), scan("e", 1, 9, "p")}
	remote := []types.HealthScan{scan("a", 1, 1, "z"), scan("b", 2, 8, "w"), scan("c", 1, 4, "q")}

	ab := Reconcile(local, remote, 10)
	ba := Reconcile(remote, local, 10)
	is.Equal(ab, ba)

	again := Reconcile(ab, remote, 10)
	is.Equal(again, ab)

	is.Equal(Reconcile(ab, ab, 10), ab)
}

func TestUnionIsOrderedByScanTime(t *testing.T) {
	is := is.New(t)

	old := types.HealthScan{ID: "old", Date: "2020-01-01", Time: "08:00:00", Revision: 3, UpdatedAt: t0.Add(time.Hour)}
	fresh := types.HealthScan{ID: "fresh", Date: "2025-01-01", Time: "08:00:00", Revision: 1, UpdatedAt: t0}

	merged := Reconcile([]types.HealthScan{old}, []types.HealthScan{fresh}, 10)
	is.Equal(merged[0].ID, "fresh")
	is.Equal(merged[1].ID, "old")
}
