package session

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/samber/lo"

	"github.com/mpapenbr/timing-service-go/log"
	"github.com/mpapenbr/timing-service-go/pkg/model"
	"github.com/mpapenbr/timing-service-go/pkg/openf1"
)

// Source provides session lookups
type Source interface {
	Sessions(ctx context.Context, q openf1.SessionQuery) ([]model.Session, error)
	SessionByKey(ctx context.Context, sessionKey int) (*model.Session, error)
}

type (
	// Selection is the decision of the orchestrator. It is one of Live, Replay
	// or Unavailable.
	Selection interface {
		Mode() model.Mode
		Session() *model.Session
		isSelection()
	}
	Live        struct{ S *model.Session }
	Replay      struct{ S *model.Session }
	Unavailable struct{}
)

func (Live) Mode() model.Mode          { return model.ModeLive }
func (s Live) Session() *model.Session { return s.S }
func (Live) isSelection()              {}

func (Replay) Mode() model.Mode          { return model.ModeReplay }
func (s Replay) Session() *model.Session { return s.S }
func (Replay) isSelection()              {}

// Unavailable reports replay mode, that is the mode shown when nothing is live
func (Unavailable) Mode() model.Mode        { return model.ModeReplay }
func (Unavailable) Session() *model.Session { return nil }
func (Unavailable) isSelection()            {}

// Resolution holds the selection and the derived read-only views
type Resolution struct {
	Selection       Selection
	LiveSession     *model.Session
	ReplaySession   *model.Session
	NextSession     *model.Session
	WeekendSessions []model.Session
}

type (
	Option       func(*Orchestrator)
	Orchestrator struct {
		source Source
		clock  func() time.Time
		l      *log.Logger
	}
)

func WithClock(clock func() time.Time) Option {
	return func(o *Orchestrator) {
		o.clock = clock
	}
}

func WithLogger(l *log.Logger) Option {
	return func(o *Orchestrator) {
		o.l = l
	}
}

func New(source Source, opts ...Option) *Orchestrator {
	ret := &Orchestrator{
		source: source,
		clock:  time.Now,
		l:      log.Default().Named("session"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Resolve selects the session to present. A preferredKey > 0 selects that
// session if it exists; its mode is derived from its own time bounds.
// Lookup failures are logged and treated as "no sessions".
func (o *Orchestrator) Resolve(ctx context.Context, preferredKey int) *Resolution {
	now := o.clock()
	ret := &Resolution{WeekendSessions: []model.Session{}}

	ret.LiveSession, ret.NextSession = o.liveAndNext(ctx, now)
	ret.ReplaySession = o.latestCompletedRace(ctx, now)

	var selected *model.Session
	mode := model.ModeReplay
	if ret.LiveSession != nil {
		mode = model.ModeLive
	}
	if preferredKey > 0 {
		if s := o.sessionByKey(ctx, preferredKey); s != nil {
			selected = s
			mode = lo.Ternary(s.IsLive(now), model.ModeLive, model.ModeReplay)
		}
	}
	if selected == nil {
		selected = lo.Ternary(ret.LiveSession != nil, ret.LiveSession, ret.ReplaySession)
	}

	switch {
	case selected == nil:
		ret.Selection = Unavailable{}
	case mode == model.ModeLive:
		ret.Selection = Live{S: selected}
	default:
		ret.Selection = Replay{S: selected}
	}

	if selected != nil && selected.MeetingKey != 0 {
		ret.WeekendSessions = sortByStart(
			o.sessions(ctx, openf1.SessionQuery{MeetingKey: selected.MeetingKey}))
	}
	return ret
}

// liveAndNext returns the last live session of the current year and the first
// session starting after now.
//
//nolint:whitespace // editor/linter issue
func (o *Orchestrator) liveAndNext(
	ctx context.Context, now time.Time,
) (live, next *model.Session) {
	sessions := sortByStart(o.sessions(ctx, openf1.SessionQuery{Year: now.Year()}))
	for i := range sessions {
		if sessions[i].IsLive(now) {
			live = &sessions[i]
		}
	}
	if s, ok := lo.Find(sessions, func(s model.Session) bool {
		return s.DateStart.After(now)
	}); ok {
		next = &s
	}
	return live, next
}

// latestCompletedRace searches the current and previous year for the race
// (not sprint) that ended most recently.
func (o *Orchestrator) latestCompletedRace(ctx context.Context, now time.Time) *model.Session {
	var races []model.Session
	for _, year := range []int{now.Year(), now.Year() - 1} {
		races = append(races, o.sessions(ctx, openf1.SessionQuery{
			Year:        year,
			SessionType: string(model.SessionTypeRace),
		})...)
	}
	races = lo.Filter(races, func(s model.Session, _ int) bool {
		return s.SessionName == model.SessionNameRace && s.IsCompleted(now)
	})
	if len(races) == 0 {
		return nil
	}
	ret := lo.MaxBy(races, func(a, b model.Session) bool {
		return a.DateEnd.After(b.DateEnd)
	})
	return &ret
}

func (o *Orchestrator) sessions(ctx context.Context, q openf1.SessionQuery) []model.Session {
	ret, err := o.source.Sessions(ctx, q)
	if err != nil {
		o.l.Warn("session lookup failed",
			log.Any("query", q),
			log.ErrorField(err))
		return nil
	}
	return ret
}

func (o *Orchestrator) sessionByKey(ctx context.Context, key int) *model.Session {
	ret, err := o.source.SessionByKey(ctx, key)
	if err != nil {
		if errors.Is(err, openf1.ErrNotFound) {
			o.l.Info("preferred session not found", log.Int("sessionKey", key))
		} else {
			o.l.Warn("session lookup failed",
				log.Int("sessionKey", key),
				log.ErrorField(err))
		}
		return nil
	}
	return ret
}

func sortByStart(sessions []model.Session) []model.Session {
	ret := slices.Clone(sessions)
	slices.SortStableFunc(ret, func(a, b model.Session) int {
		return a.DateStart.Compare(b.DateStart)
	})
	if ret == nil {
		return []model.Session{}
	}
	return ret
}
