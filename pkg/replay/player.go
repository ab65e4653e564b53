package replay

import (
	"context"
	"sync"
	"time"

	"github.com/mpapenbr/timing-service-go/log"
	"github.com/mpapenbr/timing-service-go/pkg/model"
	"github.com/mpapenbr/timing-service-go/pkg/timing"
)

const DefaultLapInterval = 1500 * time.Millisecond

// Frame is the snapshot emitted for one cursor position
type Frame struct {
	Cursor   Cursor                `json:"cursor"`
	Snapshot *model.TimingSnapshot `json:"snapshot"`
}

type (
	PlayerOption func(*Player)
	// Player advances a cursor over a fixed history and emits the replay
	// snapshot for every lap. It performs no network I/O.
	Player struct {
		engine    *timing.ReplayEngine
		history   *model.ReplayData
		interval  time.Duration
		stopAtEnd bool
		l         *log.Logger

		mu     sync.Mutex
		cursor Cursor
		seek   chan struct{}
	}
)

func WithLapInterval(arg time.Duration) PlayerOption {
	return func(p *Player) {
		p.interval = arg
	}
}

func WithStartLap(arg int) PlayerOption {
	return func(p *Player) {
		p.cursor = p.cursor.Seek(arg)
	}
}

// WithStopAtEnd makes Run return after the last lap instead of wrapping
func WithStopAtEnd() PlayerOption {
	return func(p *Player) {
		p.stopAtEnd = true
	}
}

func WithEngine(arg *timing.ReplayEngine) PlayerOption {
	return func(p *Player) {
		p.engine = arg
	}
}

func WithLogger(arg *log.Logger) PlayerOption {
	return func(p *Player) {
		p.l = arg
	}
}

func NewPlayer(history *model.ReplayData, opts ...PlayerOption) *Player {
	ret := &Player{
		engine:   timing.NewReplayEngine(),
		history:  history,
		interval: DefaultLapInterval,
		cursor:   NewCursor(timing.MaxLap(history)),
		l:        log.Default().Named("replay"),
		seek:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

func (p *Player) Cursor() Cursor {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

// Seek moves the cursor. The running player emits the new lap right away and
// continues from there.
func (p *Player) Seek(lap int) {
	p.mu.Lock()
	p.cursor = p.cursor.Seek(lap)
	p.mu.Unlock()
	select {
	case p.seek <- struct{}{}:
	default:
	}
}

// Frame returns the frame at the current cursor
func (p *Player) Frame() Frame {
	c := p.Cursor()
	return Frame{Cursor: c, Snapshot: p.engine.Snapshot(p.history, c.Lap)}
}

// Run emits the current frame, then advances and emits every lap interval
// until ctx is done. With WithStopAtEnd it returns nil after the last lap.
func (p *Player) Run(ctx context.Context, emit func(Frame)) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	emit(p.Frame())
	for {
		if p.stopAtEnd && p.Cursor().AtEnd() {
			p.l.Debug("replay finished", log.Int("lap", p.Cursor().Lap))
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.seek:
			ticker.Reset(p.interval)
		case <-ticker.C:
			p.mu.Lock()
			p.cursor = p.cursor.Next()
			p.mu.Unlock()
		}
		emit(p.Frame())
	}
}
