// Package nats distributes accepted timing snapshots to other instances. Each
// snapshot is published on a subject per session and the latest one is kept
// in a JetStream key value bucket.
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/mpapenbr/timing-service-go/log"
	"github.com/mpapenbr/timing-service-go/pkg/model"
)

const (
	DefaultBucket = "timing"
	subjectPrefix = "timing.snapshot."
	keyPrefix     = "snapshot."
)

var ErrNotFound = errors.New("no snapshot stored")

// Conn is the part of *nats.Conn used for plain publishing
type Conn interface {
	Publish(subj string, data []byte) error
}

type (
	Option    func(*Publisher)
	Publisher struct {
		conn   Conn
		kv     jetstream.KeyValue
		bucket string
		ttl    time.Duration
		l      *log.Logger
	}
)

func WithBucket(arg string) Option {
	return func(p *Publisher) {
		p.bucket = arg
	}
}

// WithTTL sets the max age of the bucket entries
func WithTTL(arg time.Duration) Option {
	return func(p *Publisher) {
		p.ttl = arg
	}
}

func WithLogger(arg *log.Logger) Option {
	return func(p *Publisher) {
		p.l = arg
	}
}

// WithKeyValue uses kv instead of creating the bucket
func WithKeyValue(arg jetstream.KeyValue) Option {
	return func(p *Publisher) {
		p.kv = arg
	}
}

// Connect opens a connection that keeps reconnecting
func Connect(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("tsm"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", log.ErrorField(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", log.String("url", c.ConnectedUrl()))
		}),
	)
}

// NewPublisher creates the bucket on conn unless WithKeyValue is given
//
//nolint:whitespace // editor/linter issue
func NewPublisher(
	ctx context.Context,
	conn *nats.Conn,
	opts ...Option,
) (*Publisher, error) {
	ret := newPublisher(conn, opts...)
	if ret.kv != nil {
		return ret, nil
	}
	js, err := jetstream.New(conn)
	if err != nil {
		return nil, err
	}
	ret.kv, err = js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      ret.bucket,
		Description: "latest timing snapshot per session",
		TTL:         ret.ttl,
	})
	if err != nil {
		return nil, fmt.Errorf("setup bucket %s: %w", ret.bucket, err)
	}
	return ret, nil
}

func newPublisher(conn Conn, opts ...Option) *Publisher {
	ret := &Publisher{
		conn:   conn,
		bucket: DefaultBucket,
		ttl:    24 * time.Hour,
		l:      log.Default().Named("nats"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

func Subject(sessionKey int) string {
	return fmt.Sprintf("%s%d", subjectPrefix, sessionKey)
}

func Key(sessionKey int) string {
	return fmt.Sprintf("%s%d", keyPrefix, sessionKey)
}

// Publish sends the snapshot of b and stores it as latest of the selected
// session. A bootstrap without selected session or snapshot is ignored.
func (p *Publisher) Publish(ctx context.Context, b *model.TimingBootstrap) error {
	if b == nil || b.SelectedSession == nil || b.Snapshot == nil {
		return nil
	}
	key := b.SelectedSession.SessionKey
	data, err := json.Marshal(b.Snapshot)
	if err != nil {
		return err
	}
	if err := p.conn.Publish(Subject(key), data); err != nil {
		return fmt.Errorf("publish %s: %w", Subject(key), err)
	}
	rev, err := p.kv.Put(ctx, Key(key), data)
	if err != nil {
		return fmt.Errorf("put %s: %w", Key(key), err)
	}
	p.l.Debug("snapshot published",
		log.Int("sessionKey", key),
		log.Uint64("revision", rev),
		log.Int("bytes", len(data)))
	return nil
}

// Latest returns the stored snapshot of a session
//
//nolint:whitespace // editor/linter issue
func (p *Publisher) Latest(
	ctx context.Context,
	sessionKey int,
) (*model.TimingSnapshot, error) {
	entry, err := p.kv.Get(ctx, Key(sessionKey))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	ret := &model.TimingSnapshot{}
	if err := json.Unmarshal(entry.Value(), ret); err != nil {
		return nil, err
	}
	return ret, nil
}
