package poller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/timing-service-go/pkg/model"
)

// scriptedSource answers each call with the next step. A step with a release
// channel blocks until the channel is closed.
type scriptedSource struct {
	mu    sync.Mutex
	steps []step
	calls []call
}

type step struct {
	mode    model.Mode
	err     error
	release chan struct{}
}

type call struct {
	key int
	ctx context.Context
}

//nolint:whitespace // editor/linter issue
func (s *scriptedSource) Bootstrap(
	ctx context.Context,
	preferredKey int,
) (*model.TimingBootstrap, error) {
	s.mu.Lock()
	s.calls = append(s.calls, call{key: preferredKey, ctx: ctx})
	st := step{mode: model.ModeReplay}
	if len(s.steps) > 0 {
		st = s.steps[0]
		s.steps = s.steps[1:]
	}
	s.mu.Unlock()
	if st.release != nil {
		<-st.release
	}
	if st.err != nil {
		return nil, st.err
	}
	return &model.TimingBootstrap{Mode: st.mode}, nil
}

func (s *scriptedSource) keys() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	ret := make([]int, len(s.calls))
	for i, c := range s.calls {
		ret[i] = c.key
	}
	return ret
}

type collector struct {
	mu      sync.Mutex
	results []*Result
	ch      chan *Result
}

func newCollector() *collector {
	return &collector{ch: make(chan *Result, 100)}
}

func (c *collector) sink(res *Result) {
	c.mu.Lock()
	c.results = append(c.results, res)
	c.mu.Unlock()
	select {
	case c.ch <- res:
	default:
	}
}

func (c *collector) all() []*Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Result{}, c.results...)
}

func TestSupersededPassIsDropped(t *testing.T) {
	release := make(chan struct{})
	src := &scriptedSource{steps: []step{
		{mode: model.ModeReplay, release: release},
		{mode: model.ModeLive},
	}}
	c := newCollector()
	p := New(src, WithSink(c.sink))

	first := p.startPass(context.Background())
	second := p.startPass(context.Background())
	<-second
	close(release)
	<-first

	got := c.all()
	require.Len(t, got, 1)
	assert.Equal(t, uint64(2), got[0].Generation)
	assert.Equal(t, model.ModeLive, got[0].Bootstrap.Mode)
	assert.Equal(t, got[0], p.Latest())

	src.mu.Lock()
	defer src.mu.Unlock()
	assert.ErrorIs(t, src.calls[0].ctx.Err(), context.Canceled,
		"superseded pass is cancelled")
}

func TestFailedPassKeepsLatest(t *testing.T) {
	src := &scriptedSource{steps: []step{
		{mode: model.ModeLive},
		{err: context.DeadlineExceeded},
	}}
	c := newCollector()
	p := New(src, WithSink(c.sink))

	<-p.startPass(context.Background())
	<-p.startPass(context.Background())

	require.Len(t, c.all(), 1)
	require.NotNil(t, p.Latest())
	assert.Equal(t, uint64(1), p.Latest().Generation)
}

func TestInterval(t *testing.T) {
	tests := []struct {
		name  string
		steps []step
		want  time.Duration
	}{
		{name: "no result yet", want: 15 * time.Second},
		{name: "live", steps: []step{{mode: model.ModeLive}}, want: 7 * time.Second},
		{name: "replay", steps: []step{{mode: model.ModeReplay}}, want: 15 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(&scriptedSource{steps: tt.steps})
			if len(tt.steps) > 0 {
				<-p.startPass(context.Background())
			}
			assert.Equal(t, tt.want, p.Interval())
		})
	}
}

func TestRun(t *testing.T) {
	src := &scriptedSource{}
	c := newCollector()
	p := New(src,
		WithSink(c.sink),
		WithPreferredKey(9507),
		WithReplayInterval(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(ctx) }()

	for range 3 {
		select {
		case <-c.ch:
		case <-time.After(2 * time.Second):
			t.Fatal("no result received")
		}
	}
	p.Select(42)
	assert.Eventually(t, func() bool {
		keys := src.keys()
		return keys[len(keys)-1] == 42
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop")
	}
	assert.Equal(t, 9507, src.keys()[0])

	gens := make([]uint64, 0)
	for _, r := range c.all() {
		gens = append(gens, r.Generation)
	}
	assert.IsIncreasing(t, gens)
}
