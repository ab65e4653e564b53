package timing

import "github.com/mpapenbr/timing-service-go/pkg/model"

// LatestBy reduces entries to one entry per key. An entry replaces the current
// one for its key only if isNewer(entry, current) holds, so ties keep the entry
// seen first.
//
//nolint:whitespace // editor/linter issue
func LatestBy[K comparable, T any](
	entries []T,
	key func(T) K,
	isNewer func(next, current T) bool,
) map[K]T {
	ret := make(map[K]T)
	for _, entry := range entries {
		k := key(entry)
		if current, ok := ret[k]; !ok || isNewer(entry, current) {
			ret[k] = entry
		}
	}
	return ret
}

func LatestLaps(laps []model.LapRecord) map[int]model.LapRecord {
	return LatestBy(laps,
		func(l model.LapRecord) int { return l.DriverNumber },
		func(next, current model.LapRecord) bool { return next.LapNumber > current.LapNumber })
}

func LatestPositions(positions []model.PositionRecord) map[int]model.PositionRecord {
	return LatestBy(positions,
		func(p model.PositionRecord) int { return p.DriverNumber },
		func(next, current model.PositionRecord) bool { return next.Date.After(current.Date) })
}

func LatestStints(stints []model.StintRecord) map[int]model.StintRecord {
	return LatestBy(stints,
		func(s model.StintRecord) int { return s.DriverNumber },
		func(next, current model.StintRecord) bool {
			return next.StintNumber > current.StintNumber
		})
}
