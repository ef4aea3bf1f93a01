package healthsessions

import (
	"sort"

	"github.com/aquasmart/pond-monitoring/pkg/types"
)

// Reconcile merges two copies of a scan history. Scans are matched by id and
// when both sides hold the same scan the one with the higher revision wins,
// or the one updated last if the revisions are equal. The result is sorted
// newest scan first and capped at limit entries. A limit of zero or less
// keeps every scan.
func Reconcile(local, remote []types.HealthScan, limit int) []types.HealthScan {
	merged := make(map[string]types.HealthScan, len(local)+len(remote))

	for _, side := range [][]types.HealthScan{local, remote} {
		for _, s := range side {
			existing, ok := merged[s.ID]
			if !ok || newer(s, existing) {
				merged[s.ID] = s
			}
		}
	}

	result := make([]types.HealthScan, 0, len(merged))
	for _, s := range merged {
		result = append(result, s)
	}

	sort.Slice(result, func(i, j int) bool {
		a, b := scannedAt(result[i]), scannedAt(result[j])
		if !a.Equal(b) {
			return a.After(b)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result
}

// newer reports whether a should replace b. Full ties are broken on content so
// that the outcome does not depend on argument order.
func newer(a, b types.HealthScan) bool {
	if a.Revision != b.Revision {
		return a.Revision > b.Revision
	}
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	return tiebreak(a) > tiebreak(b)
}

func tiebreak(s types.HealthScan) string {
	return s.Condition + "|" + s.Status + "|" + s.Advice + "|" + s.Researcher
}
