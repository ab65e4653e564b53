package timing

import (
	"cmp"
	"slices"
	"strconv"
	"time"

	"github.com/samber/lo"

	"github.com/mpapenbr/timing-service-go/pkg/model"
)

const (
	DefaultRaceControlLimit = 8
	defaultTeamColor        = "#888888"
)

// fusionInput is the resolved state of every stream at one instant. Both the
// live builder and the replay engine produce one of these and hand it to fuse.
type fusionInput struct {
	sessionType string
	updatedAt   time.Time
	drivers     []model.Driver
	laps        map[int]model.LapRecord
	positions   map[int]model.PositionRecord
	stints      map[int]model.StintRecord
	pitCounts   map[int]int
	raceControl []model.RaceControlMessage
}

type baseRow struct {
	row         model.TimingRow
	lapDuration *float64
}

func fuse(in *fusionInput, raceControlLimit int) *model.TimingSnapshot {
	ranked := lo.Filter(roster(in.drivers, in.positions), func(d model.Driver, _ int) bool {
		_, ok := in.positions[d.DriverNumber]
		return ok
	})

	base := lo.Map(ranked, func(d model.Driver, _ int) baseRow {
		return in.baseRow(d)
	})
	slices.SortStableFunc(base, func(a, b baseRow) int {
		return cmp.Compare(a.row.Position, b.row.Position)
	})

	rows := make([]model.TimingRow, len(base))
	for i := range base {
		row := base[i].row
		if i == 0 {
			row.Interval = Placeholder
			row.GapToLeader = LeaderLabel
		} else {
			row.Interval = FormatDelta(base[i].lapDuration, base[i-1].lapDuration)
			row.GapToLeader = FormatDelta(base[i].lapDuration, base[0].lapDuration)
		}
		rows[i] = row
	}

	return &model.TimingSnapshot{
		Rows:        rows,
		RaceControl: recentRaceControl(in.raceControl, raceControlLimit),
		UpdatedAt:   in.updatedAt,
		SessionType: in.sessionType,
	}
}

func (in *fusionInput) baseRow(d model.Driver) baseRow {
	ret := baseRow{
		row: model.TimingRow{
			DriverNumber:  d.DriverNumber,
			Code:          driverCode(d),
			BroadcastName: d.BroadcastName,
			TeamName:      d.TeamName,
			TeamColor:     teamColor(d),
			Position:      in.positions[d.DriverNumber].Position,
			LastLap:       Placeholder,
			Sector1:       Placeholder,
			Sector2:       Placeholder,
			Sector3:       Placeholder,
			PitStops:      in.pitCounts[d.DriverNumber],
			Tyre:          Placeholder,
		},
	}
	if lap, ok := in.laps[d.DriverNumber]; ok {
		ret.lapDuration = lap.LapDuration
		ret.row.LastLap = FormatLapSeconds(lap.LapDuration)
		ret.row.Sector1 = FormatSector(lap.DurationSector1)
		ret.row.Sector2 = FormatSector(lap.DurationSector2)
		ret.row.Sector3 = FormatSector(lap.DurationSector3)
	}
	if stint, ok := in.stints[d.DriverNumber]; ok && stint.Compound != "" {
		ret.row.Tyre = stint.Compound
	}
	return ret
}

// roster returns the drivers deduplicated by number followed by drivers that
// only appear in positions (ascending by number). The latter keep a minimal
// identity so a missing drivers stream still yields ranked rows.
//
//nolint:whitespace // editor/linter issue
func roster(
	drivers []model.Driver,
	positions map[int]model.PositionRecord,
) []model.Driver {
	ret := lo.UniqBy(drivers, func(d model.Driver) int { return d.DriverNumber })
	known := lo.SliceToMap(ret, func(d model.Driver) (int, struct{}) {
		return d.DriverNumber, struct{}{}
	})
	unknown := lo.Filter(lo.Keys(positions), func(num int, _ int) bool {
		_, ok := known[num]
		return !ok
	})
	slices.Sort(unknown)
	for _, num := range unknown {
		ret = append(ret, model.Driver{DriverNumber: num})
	}
	return ret
}

func pitCounts(pits []model.PitStopRecord) map[int]int {
	return lo.CountValuesBy(pits, func(p model.PitStopRecord) int { return p.DriverNumber })
}

//nolint:whitespace // editor/linter issue
func recentRaceControl(
	msgs []model.RaceControlMessage, limit int,
) []model.RaceControlMessage {
	sorted := append(make([]model.RaceControlMessage, 0, len(msgs)), msgs...)
	slices.SortStableFunc(sorted, func(a, b model.RaceControlMessage) int {
		return a.Date.Compare(b.Date)
	})
	if limit >= 0 && len(sorted) > limit {
		sorted = sorted[len(sorted)-limit:]
	}
	return lo.Reverse(sorted)
}

func driverCode(d model.Driver) string {
	if d.NameAcronym != "" {
		return d.NameAcronym
	}
	if d.BroadcastName != "" {
		r := []rune(d.BroadcastName)
		return string(r[:min(3, len(r))])
	}
	return strconv.Itoa(d.DriverNumber)
}

func teamColor(d model.Driver) string {
	if d.TeamColour == "" {
		return defaultTeamColor
	}
	return "#" + d.TeamColour
}
