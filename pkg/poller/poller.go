// Package poller drives the periodic bootstrap passes of the timing service.
// A new pass supersedes the one in flight: its context is cancelled and a late
// result is dropped.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mpapenbr/timing-service-go/log"
	"github.com/mpapenbr/timing-service-go/pkg/model"
)

const (
	DefaultLiveInterval   = 7 * time.Second
	DefaultReplayInterval = 15 * time.Second
)

type Bootstrapper interface {
	Bootstrap(ctx context.Context, preferredKey int) (*model.TimingBootstrap, error)
}

// Result is an accepted pass
type Result struct {
	BuildID    uuid.UUID
	Generation uint64
	Bootstrap  *model.TimingBootstrap
	Started    time.Time
	Finished   time.Time
}

type (
	Sink   func(res *Result)
	Option func(*Poller)
	Poller struct {
		source         Bootstrapper
		sink           Sink
		liveInterval   time.Duration
		replayInterval time.Duration
		l              *log.Logger

		mu           sync.Mutex
		generation   uint64
		cancel       context.CancelFunc
		preferredKey int
		latest       *Result
		trigger      chan struct{}

		emitMu sync.Mutex
		wg     sync.WaitGroup
	}
)

func WithSink(arg Sink) Option {
	return func(p *Poller) {
		p.sink = arg
	}
}

func WithLiveInterval(arg time.Duration) Option {
	return func(p *Poller) {
		p.liveInterval = arg
	}
}

func WithReplayInterval(arg time.Duration) Option {
	return func(p *Poller) {
		p.replayInterval = arg
	}
}

// WithPreferredKey sets the session key passed to the first passes
func WithPreferredKey(arg int) Option {
	return func(p *Poller) {
		p.preferredKey = arg
	}
}

func WithLogger(arg *log.Logger) Option {
	return func(p *Poller) {
		p.l = arg
	}
}

func New(source Bootstrapper, opts ...Option) *Poller {
	ret := &Poller{
		source:         source,
		sink:           func(*Result) {},
		liveInterval:   DefaultLiveInterval,
		replayInterval: DefaultReplayInterval,
		l:              log.Default().Named("poller"),
		trigger:        make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Run starts a pass immediately and then after every interval until ctx is
// done. The interval depends on the mode of the last accepted result.
func (p *Poller) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()
	defer p.wg.Wait()
	defer p.cancelInflight()

	for {
		select {
		case <-ctx.Done():
			p.l.Debug("poller stopped")
			return ctx.Err()
		case <-timer.C:
		case <-p.trigger:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}
		p.startPass(ctx)
		timer.Reset(p.Interval())
	}
}

// Select changes the preferred session key. A pass for the new key is started
// right away, the pass in flight is superseded.
func (p *Poller) Select(sessionKey int) {
	p.mu.Lock()
	p.preferredKey = sessionKey
	p.mu.Unlock()
	p.Trigger()
}

// Trigger requests a pass without waiting for the interval
func (p *Poller) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// Latest returns the last accepted result, nil if none yet
func (p *Poller) Latest() *Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest
}

// Interval returns the delay until the next regular pass
func (p *Poller) Interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.latest != nil && p.latest.Bootstrap != nil &&
		p.latest.Bootstrap.Mode == model.ModeLive {

		return p.liveInterval
	}
	return p.replayInterval
}

func (p *Poller) cancelInflight() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

// startPass supersedes the pass in flight and runs a new one in background.
// The returned channel is closed when the new pass has finished.
func (p *Poller) startPass(ctx context.Context) <-chan struct{} {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.generation++
	gen := p.generation
	passCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	key := p.preferredKey
	p.mu.Unlock()

	buildID := uuid.New()
	l := p.l.With(log.String("buildId", buildID.String()), log.Uint64("generation", gen))
	l.Debug("starting pass", log.Int("preferredKey", key))

	done := make(chan struct{})
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer close(done)
		defer cancel()
		started := time.Now()
		res, err := p.source.Bootstrap(passCtx, key)
		if err != nil {
			if passCtx.Err() != nil {
				l.Debug("pass cancelled", log.ErrorField(err))
			} else {
				l.Warn("pass failed", log.ErrorField(err))
			}
			return
		}
		p.emit(l, &Result{
			BuildID:    buildID,
			Generation: gen,
			Bootstrap:  res,
			Started:    started,
			Finished:   time.Now(),
		})
	}()
	return done
}

func (p *Poller) emit(l *log.Logger, res *Result) {
	p.emitMu.Lock()
	defer p.emitMu.Unlock()

	p.mu.Lock()
	if res.Generation != p.generation {
		p.mu.Unlock()
		l.Debug("dropping superseded result")
		return
	}
	p.latest = res
	p.mu.Unlock()

	l.Debug("pass accepted",
		log.String("mode", string(res.Bootstrap.Mode)),
		log.Duration("duration", res.Finished.Sub(res.Started)))
	p.sink(res)
}
