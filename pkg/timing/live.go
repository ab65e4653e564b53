package timing

import (
	"time"

	"github.com/mpapenbr/timing-service-go/pkg/model"
)

type (
	BuilderOption func(*Builder)
	// Builder fuses the current state of all streams of a session into a
	// TimingSnapshot. It holds no state between builds.
	Builder struct {
		clock            func() time.Time
		raceControlLimit int
	}
)

func NewBuilder(opts ...BuilderOption) *Builder {
	ret := &Builder{
		clock:            time.Now,
		raceControlLimit: DefaultRaceControlLimit,
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

func WithClock(clock func() time.Time) BuilderOption {
	return func(b *Builder) {
		b.clock = clock
	}
}

func WithRaceControlLimit(limit int) BuilderOption {
	return func(b *Builder) {
		b.raceControlLimit = limit
	}
}

// Build creates the snapshot from the full (unbounded) streams.
// A nil streams value yields an empty but valid snapshot.
func (b *Builder) Build(sessionType string, streams *model.Streams) *model.TimingSnapshot {
	if streams == nil {
		streams = &model.Streams{}
	}
	return fuse(&fusionInput{
		sessionType: sessionType,
		updatedAt:   b.clock(),
		drivers:     streams.Drivers,
		laps:        LatestLaps(streams.Laps),
		positions:   LatestPositions(streams.Positions),
		stints:      LatestStints(streams.Stints),
		pitCounts:   pitCounts(streams.PitStops),
		raceControl: streams.RaceControl,
	}, b.raceControlLimit)
}
