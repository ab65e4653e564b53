package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mpapenbr/timing-service-go/log"
	"github.com/mpapenbr/timing-service-go/pkg/model"
	"github.com/mpapenbr/timing-service-go/pkg/repository/replaydata"
	"github.com/mpapenbr/timing-service-go/pkg/session"
	"github.com/mpapenbr/timing-service-go/pkg/timing"
	"github.com/mpapenbr/timing-service-go/pkg/utils/cache"
	"github.com/mpapenbr/timing-service-go/pkg/utils/cache/loadercache"
)

// Upstream provides the collections of the timing provider
type Upstream interface {
	session.Source
	Drivers(ctx context.Context, sessionKey int) ([]model.Driver, error)
	Laps(ctx context.Context, sessionKey int, driverNumber ...int) ([]model.LapRecord, error)
	Positions(ctx context.Context, sessionKey int) ([]model.PositionRecord, error)
	Stints(ctx context.Context, sessionKey int) ([]model.StintRecord, error)
	PitStops(ctx context.Context, sessionKey int) ([]model.PitStopRecord, error)
	RaceControl(ctx context.Context, sessionKey int) ([]model.RaceControlMessage, error)
}

// Archive stores the replay data of completed sessions.
// Load returns replaydata.ErrNotFound if the session is not archived.
type Archive interface {
	Load(ctx context.Context, sessionKey int) (*model.ReplayData, error)
	Store(ctx context.Context, data *model.ReplayData) error
}

type (
	Option        func(*TimingService)
	TimingService struct {
		upstream      Upstream
		orchestrator  *session.Orchestrator
		builder       *timing.Builder
		replay        *timing.ReplayEngine
		archive       Archive
		histories     cache.Cache[int, history]
		historyTTL    time.Duration
		historySize   int
		maxConcurrent int
		clock         func() time.Time
		tracer        trace.Tracer
		l             *log.Logger
	}
	// history is the replay data of a session. Final histories no longer change.
	history struct {
		data  *model.ReplayData
		final bool
	}
)

func WithArchive(arg Archive) Option {
	return func(s *TimingService) {
		s.archive = arg
	}
}

func WithBuilder(arg *timing.Builder) Option {
	return func(s *TimingService) {
		s.builder = arg
	}
}

func WithReplayEngine(arg *timing.ReplayEngine) Option {
	return func(s *TimingService) {
		s.replay = arg
	}
}

// WithMaxConcurrentFetches limits the number of parallel stream requests
func WithMaxConcurrentFetches(arg int) Option {
	return func(s *TimingService) {
		s.maxConcurrent = arg
	}
}

// WithHistoryCache configures the cache of session histories. Histories of
// sessions not yet completed expire after ttl.
func WithHistoryCache(ttl time.Duration, size int) Option {
	return func(s *TimingService) {
		s.historyTTL = ttl
		s.historySize = size
	}
}

func WithClock(arg func() time.Time) Option {
	return func(s *TimingService) {
		s.clock = arg
	}
}

func WithLogger(arg *log.Logger) Option {
	return func(s *TimingService) {
		s.l = arg
	}
}

func NewTimingService(upstream Upstream, opts ...Option) *TimingService {
	ret := &TimingService{
		upstream:      upstream,
		maxConcurrent: 3,
		historyTTL:    30 * time.Second,
		historySize:   8,
		clock:         time.Now,
		l:             log.Default().Named("service"),
		tracer:        otel.Tracer("tsm"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.builder == nil {
		ret.builder = timing.NewBuilder(timing.WithClock(ret.clock))
	}
	if ret.replay == nil {
		ret.replay = timing.NewReplayEngine()
	}
	ret.histories = loadercache.New(
		loadercache.WithClock[int, history](ret.clock),
		loadercache.WithMaxEntries[int, history](ret.historySize),
		loadercache.WithLogger[int, history](ret.l.Named("histories")),
		loadercache.WithLifetime(func(_ int, h *history) time.Duration {
			if h.final {
				return -1
			}
			return ret.historyTTL
		}),
		loadercache.WithLoader(ret.loadHistory),
	)
	ret.orchestrator = session.New(upstream,
		session.WithClock(ret.clock),
		session.WithLogger(ret.l.Named("session")))
	return ret
}

// Bootstrap resolves the session to present and assembles the snapshot for it.
// An error is only returned if ctx is done. Upstream failures degrade the
// result instead.
//
//nolint:whitespace // editor/linter issue
func (s *TimingService) Bootstrap(
	ctx context.Context,
	preferredKey int,
) (*model.TimingBootstrap, error) {
	ctx, span := s.tracer.Start(ctx, "timing.bootstrap",
		trace.WithAttributes(attribute.Int("preferred_key", preferredKey)))
	defer span.End()

	res := s.orchestrator.Resolve(ctx, preferredKey)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("resolve session: %w", err)
	}
	ret := &model.TimingBootstrap{
		Mode:            res.Selection.Mode(),
		LiveSession:     res.LiveSession,
		ReplaySession:   res.ReplaySession,
		SelectedSession: res.Selection.Session(),
		WeekendSessions: res.WeekendSessions,
		NextSession:     res.NextSession,
	}

	switch sel := res.Selection.(type) {
	case session.Live:
		streams, _ := s.fetchStreams(ctx, sel.S.SessionKey)
		ret.Snapshot = s.builder.Build(sel.S.SessionType, streams)
	case session.Replay:
		ret.ReplayData = s.replayData(ctx, sel.S)
		ret.Snapshot = s.builder.Build(sel.S.SessionType, &ret.ReplayData.Streams)
	case session.Unavailable:
		s.l.Info("no session available")
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("assemble snapshot: %w", err)
	}
	span.SetAttributes(attribute.String("mode", string(ret.Mode)))
	return ret, nil
}

// History returns the unbounded history of a session. Histories are cached
// per session key, so moving the lap cursor does not load them again.
//
//nolint:whitespace // editor/linter issue
func (s *TimingService) History(
	ctx context.Context,
	sessionKey int,
) (*model.ReplayData, error) {
	h, err := s.histories.Get(ctx, sessionKey)
	if err != nil {
		return nil, err
	}
	return h.data, nil
}

// ReplaySnapshot returns the snapshot of a session as of the end of lap
//
//nolint:whitespace // editor/linter issue
func (s *TimingService) ReplaySnapshot(
	ctx context.Context,
	sessionKey, lap int,
) (*model.TimingSnapshot, error) {
	data, err := s.History(ctx, sessionKey)
	if err != nil {
		return nil, err
	}
	return s.replay.Snapshot(data, lap), nil
}

// ReplayEngine returns the engine used for replay snapshots
func (s *TimingService) ReplayEngine() *timing.ReplayEngine {
	return s.replay
}

// replayData returns the cached history of sess. If it cannot be loaded
// through the cache the history is assembled from what upstream delivers.
func (s *TimingService) replayData(ctx context.Context, sess *model.Session) *model.ReplayData {
	h, err := s.histories.Get(ctx, sess.SessionKey)
	if err == nil {
		return h.data
	}
	s.l.Warn("could not load history",
		log.Int("sessionKey", sess.SessionKey), log.ErrorField(err))
	return s.fetchHistory(ctx, sess).data
}

func (s *TimingService) loadHistory(ctx context.Context, sessionKey int) (*history, error) {
	sess, err := s.upstream.SessionByKey(ctx, sessionKey)
	if err != nil {
		return nil, err
	}
	ret := s.fetchHistory(ctx, sess)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &ret, nil
}

// fetchHistory loads the replay data from the archive if possible. Completed
// sessions fetched from upstream are archived if every stream was loaded.
func (s *TimingService) fetchHistory(ctx context.Context, sess *model.Session) history {
	l := s.l.With(log.Int("sessionKey", sess.SessionKey))
	if s.archive != nil {
		data, err := s.archive.Load(ctx, sess.SessionKey)
		switch {
		case err == nil:
			l.Debug("replay data loaded from archive")
			if data.Session == nil {
				data.Session = sess
			}
			return history{data: data, final: true}
		case errors.Is(err, replaydata.ErrNotFound):
		default:
			l.Warn("could not read archive", log.ErrorField(err))
		}
	}

	streams, failed := s.fetchStreams(ctx, sess.SessionKey)
	ret := history{data: &model.ReplayData{Session: sess, Streams: *streams}}
	if !sess.IsCompleted(s.clock()) {
		return ret
	}
	if len(failed) > 0 || ctx.Err() != nil {
		l.Info("replay data incomplete", log.Strings("failed", failed))
		return ret
	}
	ret.final = true
	if s.archive == nil {
		return ret
	}
	if err := s.archive.Store(ctx, ret.data); err != nil {
		l.Warn("could not archive replay data", log.ErrorField(err))
	}
	return ret
}
