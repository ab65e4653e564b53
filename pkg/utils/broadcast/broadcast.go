// Package broadcast fans out values to any number of subscribers. A new
// subscriber first receives the most recent value.
package broadcast

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/mpapenbr/timing-service-go/log"
)

const defaultBufferSize = 4

type Server[T any] interface {
	// Subscribe returns a channel receiving the latest value (if any) followed
	// by every published value. The channel is closed on cancel or Close.
	Subscribe() <-chan T
	CancelSubscription(<-chan T)
	Publish(msg T)
	Latest() (T, bool)
	Close()
}

type (
	Option[T any] func(*server[T])
	server[T any] struct {
		name       string
		bufferSize int
		l          *log.Logger

		mu        sync.Mutex
		listeners map[<-chan T]chan T
		latest    T
		hasLatest bool
		closed    bool

		numRcv  int64
		numSnd  int64
		numSkip int64
	}
)

// WithBufferSize sets the number of values buffered per subscriber. A slow
// subscriber with a full buffer misses values.
func WithBufferSize[T any](size int) Option[T] {
	return func(s *server[T]) {
		s.bufferSize = size
	}
}

func WithLogger[T any](l *log.Logger) Option[T] {
	return func(s *server[T]) {
		s.l = l
	}
}

func NewServer[T any](name string, opts ...Option[T]) Server[T] {
	ret := &server[T]{
		name:       name,
		bufferSize: defaultBufferSize,
		l:          log.Default().Named("broadcast"),
		listeners:  map[<-chan T]chan T{},
	}
	for _, opt := range opts {
		opt(ret)
	}
	ret.l = ret.l.With(log.String("name", name))
	ret.setupMetrics()
	return ret
}

func (s *server[T]) Subscribe() <-chan T {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan T, max(1, s.bufferSize))
	if s.closed {
		close(ch)
		return ch
	}
	if s.hasLatest {
		ch <- s.latest
		s.numSnd++
	}
	s.listeners[ch] = ch
	s.l.Debug("listener added", log.Int("listeners", len(s.listeners)))
	return ch
}

func (s *server[T]) CancelSubscription(ch <-chan T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if listener, ok := s.listeners[ch]; ok {
		delete(s.listeners, ch)
		close(listener)
		s.l.Debug("listener removed", log.Int("listeners", len(s.listeners)))
	}
}

func (s *server[T]) Publish(msg T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.numRcv++
	s.latest = msg
	s.hasLatest = true
	for _, listener := range s.listeners {
		select {
		case listener <- msg:
			s.numSnd++
		default:
			s.numSkip++
		}
	}
}

func (s *server[T]) Latest() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.hasLatest
}

func (s *server[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.l.Info("closing broadcast server",
		log.Int64("rcv", s.numRcv), log.Int64("snd", s.numSnd), log.Int64("skip", s.numSkip))
	for ch, listener := range s.listeners {
		delete(s.listeners, ch)
		close(listener)
	}
}

func (s *server[T]) setupMetrics() {
	meter := otel.GetMeterProvider().Meter("tsm.broadcast")
	register := func(metricName, desc string, valueProvider func() int64) {
		if _, err := meter.Int64ObservableGauge(
			metricName,
			metric.WithDescription(desc),
			metric.WithUnit("{count}"),
			metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
				o.Observe(valueProvider(),
					metric.WithAttributes(attribute.String("name", s.name)))
				return nil
			})); err != nil {
			s.l.Error("failed to register metric",
				log.String("metric", metricName),
				log.ErrorField(err))
		}
	}
	locked := func(f func() int64) func() int64 {
		return func() int64 {
			s.mu.Lock()
			defer s.mu.Unlock()
			return f()
		}
	}
	for _, d := range []struct {
		name  string
		desc  string
		value func() int64
	}{
		{"tsm.broadcast.rcv", "Number of published values", func() int64 { return s.numRcv }},
		{"tsm.broadcast.snd", "Number of delivered values", func() int64 { return s.numSnd }},
		{"tsm.broadcast.skip", "Number of values missed by slow listeners",
			func() int64 { return s.numSkip }},
		{"tsm.broadcast.listener", "Number of listeners",
			func() int64 { return int64(len(s.listeners)) }},
	} {
		register(d.name, d.desc, locked(d.value))
	}
}
