package timing

import (
	"time"

	"github.com/samber/lo"

	"github.com/mpapenbr/timing-service-go/pkg/model"
)

// DefaultPositionPad is added to the lap cutoff when bounding positions and
// race control messages. Position updates trail the lap completion they belong
// to, the value is a heuristic.
const DefaultPositionPad = 120 * time.Second

// StintPolicy resolves the active stint of every driver at lap N.
type StintPolicy interface {
	ActiveStints(stints []model.StintRecord, pits []model.PitStopRecord, lap int) map[int]model.StintRecord
}

// PitCountStintPolicy treats pit count + 1 as the active stint number. Drivers
// without a matching stint fall back to their highest stint.
type PitCountStintPolicy struct{}

//nolint:whitespace // editor/linter issue
func (PitCountStintPolicy) ActiveStints(
	stints []model.StintRecord,
	pits []model.PitStopRecord,
	lap int,
) map[int]model.StintRecord {
	counts := pitCounts(lo.Filter(pits, func(p model.PitStopRecord, _ int) bool {
		return p.LapNumber <= lap
	}))
	ret := map[int]model.StintRecord{}
	for driver, driverStints := range lo.GroupBy(stints,
		func(s model.StintRecord) int { return s.DriverNumber }) {

		if s, ok := lo.Find(driverStints, func(s model.StintRecord) bool {
			return s.StintNumber == counts[driver]+1
		}); ok {
			ret[driver] = s
			continue
		}
		ret[driver] = lo.MaxBy(driverStints, func(a, b model.StintRecord) bool {
			return a.StintNumber > b.StintNumber
		})
	}
	return ret
}

type ReplayPolicy struct {
	PositionPad time.Duration
	Stints      StintPolicy
}

func DefaultReplayPolicy() ReplayPolicy {
	return ReplayPolicy{PositionPad: DefaultPositionPad, Stints: PitCountStintPolicy{}}
}

// Window is the part of a replay history that was known at the end of a lap.
type Window struct {
	Lap int
	// Cutoff is the latest lap start within the window. Zero means unbounded.
	Cutoff  time.Time
	Streams model.Streams
}

type (
	ReplayOption func(*ReplayEngine)
	// ReplayEngine reconstructs snapshots from a replay history for a virtual
	// lap. It is a pure function of (history, lap).
	ReplayEngine struct {
		policy           ReplayPolicy
		raceControlLimit int
	}
)

func NewReplayEngine(opts ...ReplayOption) *ReplayEngine {
	ret := &ReplayEngine{
		policy:           DefaultReplayPolicy(),
		raceControlLimit: DefaultRaceControlLimit,
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

func WithPositionPad(pad time.Duration) ReplayOption {
	return func(e *ReplayEngine) {
		e.policy.PositionPad = pad
	}
}

func WithStintPolicy(p StintPolicy) ReplayOption {
	return func(e *ReplayEngine) {
		if p != nil {
			e.policy.Stints = p
		}
	}
}

func WithReplayRaceControlLimit(limit int) ReplayOption {
	return func(e *ReplayEngine) {
		e.raceControlLimit = limit
	}
}

// Window bounds the history to what was known at the end of lap.
// A lap <= 0 or a history without matching laps leaves the time based
// streams unbounded.
func (e *ReplayEngine) Window(history *model.ReplayData, lap int) *Window {
	if history == nil {
		return &Window{Lap: lap}
	}
	validLaps := lo.Filter(history.Laps, func(l model.LapRecord, _ int) bool {
		return lap <= 0 || l.LapNumber <= lap
	})
	var cutoff time.Time
	if lap > 0 {
		for i := range validLaps {
			if validLaps[i].DateStart.After(cutoff) {
				cutoff = validLaps[i].DateStart
			}
		}
	}
	ret := &Window{Lap: lap, Cutoff: cutoff}
	ret.Streams = model.Streams{
		Drivers: history.Drivers,
		Laps:    validLaps,
		Stints:  history.Stints,
		PitStops: lo.Filter(history.PitStops, func(p model.PitStopRecord, _ int) bool {
			return lap <= 0 || p.LapNumber <= lap
		}),
	}
	if cutoff.IsZero() {
		ret.Streams.Positions = history.Positions
		ret.Streams.RaceControl = history.RaceControl
		return ret
	}
	limit := cutoff.Add(e.policy.PositionPad)
	ret.Streams.Positions = lo.Filter(history.Positions,
		func(p model.PositionRecord, _ int) bool { return !p.Date.After(limit) })
	ret.Streams.RaceControl = lo.Filter(history.RaceControl,
		func(m model.RaceControlMessage, _ int) bool { return !m.Date.After(limit) })
	return ret
}

// Snapshot returns the snapshot as it would have been built at the end of lap.
func (e *ReplayEngine) Snapshot(history *model.ReplayData, lap int) *model.TimingSnapshot {
	w := e.Window(history, lap)
	sessionType := model.SessionNameRace
	if history != nil && history.Session != nil && history.Session.SessionType != "" {
		sessionType = history.Session.SessionType
	}
	stintLap := lap
	if lap <= 0 {
		stintLap = MaxLap(history)
	}
	return fuse(&fusionInput{
		sessionType: sessionType,
		updatedAt:   w.Cutoff,
		drivers:     w.Streams.Drivers,
		laps:        LatestLaps(w.Streams.Laps),
		positions:   LatestPositions(w.Streams.Positions),
		stints:      e.policy.Stints.ActiveStints(w.Streams.Stints, w.Streams.PitStops, stintLap),
		pitCounts:   pitCounts(w.Streams.PitStops),
		raceControl: w.Streams.RaceControl,
	}, e.raceControlLimit)
}

// MaxLap returns the highest lap number of the history, at least 1.
func MaxLap(history *model.ReplayData) int {
	if history == nil {
		return 1
	}
	return max(1, lo.Max(lo.Map(history.Laps, func(l model.LapRecord, _ int) int {
		return l.LapNumber
	})))
}
