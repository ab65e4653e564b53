package service

import (
	"context"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mpapenbr/timing-service-go/log"
	"github.com/mpapenbr/timing-service-go/pkg/model"
)

// FetchStreams loads the six collections of a session concurrently. A failed
// collection is replaced by an empty one.
func (s *TimingService) FetchStreams(ctx context.Context, sessionKey int) *model.Streams {
	ret, _ := s.fetchStreams(ctx, sessionKey)
	return ret
}

// fetchStreams returns the streams and the names of the failed ones
//
//nolint:whitespace // editor/linter issue
func (s *TimingService) fetchStreams(
	ctx context.Context,
	sessionKey int,
) (streams *model.Streams, failed []string) {
	ret := &model.Streams{}
	var mu sync.Mutex
	onFailure := func(stream string) {
		mu.Lock()
		defer mu.Unlock()
		failed = append(failed, stream)
	}
	start := time.Now()

	g := errgroup.Group{}
	if s.maxConcurrent > 0 {
		g.SetLimit(s.maxConcurrent)
	}
	g.Go(func() error {
		ret.Drivers = load(ctx, s, "drivers", sessionKey, s.upstream.Drivers, onFailure)
		return nil
	})
	g.Go(func() error {
		ret.Laps = load(ctx, s, "laps", sessionKey,
			func(ctx context.Context, key int) ([]model.LapRecord, error) {
				return s.upstream.Laps(ctx, key)
			}, onFailure)
		return nil
	})
	g.Go(func() error {
		ret.Positions = load(ctx, s, "positions", sessionKey, s.upstream.Positions, onFailure)
		return nil
	})
	g.Go(func() error {
		ret.Stints = load(ctx, s, "stints", sessionKey, s.upstream.Stints, onFailure)
		return nil
	})
	g.Go(func() error {
		ret.PitStops = load(ctx, s, "pitStops", sessionKey, s.upstream.PitStops, onFailure)
		return nil
	})
	g.Go(func() error {
		ret.RaceControl = load(ctx, s, "raceControl", sessionKey,
			s.upstream.RaceControl, onFailure)
		return nil
	})
	_ = g.Wait()

	slices.Sort(failed)
	s.l.Debug("streams fetched",
		log.Int("sessionKey", sessionKey),
		log.Duration("duration", time.Since(start)),
		log.Strings("failed", failed))
	return ret, failed
}

//nolint:whitespace // editor/linter issue
func load[T any](
	ctx context.Context,
	s *TimingService,
	stream string,
	sessionKey int,
	fetch func(context.Context, int) ([]T, error),
	onFailure func(string),
) []T {
	ret, err := fetch(ctx, sessionKey)
	if err != nil {
		s.l.Warn("stream unavailable, using empty collection",
			log.String("stream", stream),
			log.Int("sessionKey", sessionKey),
			log.ErrorField(err))
		onFailure(stream)
		return []T{}
	}
	if ret == nil {
		return []T{}
	}
	return ret
}
