package openf1

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/mpapenbr/timing-service-go/log"
	"github.com/mpapenbr/timing-service-go/pkg/model"
	"github.com/mpapenbr/timing-service-go/pkg/utils/cache"
	"github.com/mpapenbr/timing-service-go/pkg/utils/cache/loadercache"
)

const (
	DefaultBaseURL = "https://api.openf1.org/v1"

	endpointSessions    = "/sessions"
	endpointDrivers     = "/drivers"
	endpointLaps        = "/laps"
	endpointPosition    = "/position"
	endpointStints      = "/stints"
	endpointPit         = "/pit"
	endpointRaceControl = "/race_control"
)

var (
	ErrNotFound = errors.New("not found")
	meter       = otel.Meter("tsm.openf1")
)

// StatusError is returned for non-2xx responses
type StatusError struct {
	Endpoint string
	Code     int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("openf1 %s: unexpected status %d", e.Endpoint, e.Code)
}

// Transient reports whether a retry may succeed
func (e *StatusError) Transient() bool {
	return e.Code >= http.StatusInternalServerError || e.Code == http.StatusTooManyRequests
}

type (
	Option func(*Client)
	Client struct {
		baseURL      string
		httpClient   *http.Client
		timeout      time.Duration
		retries      uint64
		cacheTTL     time.Duration
		sessionCache cache.Cache[SessionQuery, []model.Session]
		tracer       trace.Tracer
		requests     metric.Int64Counter
		failures     metric.Int64Counter
		l            *log.Logger
	}
)

func WithBaseURL(arg string) Option {
	return func(c *Client) {
		c.baseURL = arg
	}
}

func WithHTTPClient(arg *http.Client) Option {
	return func(c *Client) {
		c.httpClient = arg
	}
}

// WithTimeout bounds every single request attempt
func WithTimeout(arg time.Duration) Option {
	return func(c *Client) {
		c.timeout = arg
	}
}

func WithRetries(arg uint64) Option {
	return func(c *Client) {
		c.retries = arg
	}
}

// WithSessionCache enables caching of session queries. A ttl <= 0 disables it.
func WithSessionCache(ttl time.Duration) Option {
	return func(c *Client) {
		c.cacheTTL = ttl
	}
}

func WithLogger(arg *log.Logger) Option {
	return func(c *Client) {
		c.l = arg
	}
}

func New(opts ...Option) *Client {
	ret := &Client{
		baseURL: DefaultBaseURL,
		timeout: 8 * time.Second,
		retries: 3,
		l:       log.Default().Named("openf1"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.httpClient == nil {
		ret.httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	if ret.tracer == nil {
		ret.tracer = otel.Tracer("tsm.openf1")
	}
	if ret.cacheTTL > 0 {
		ret.sessionCache = loadercache.New(
			loadercache.WithExpiration[SessionQuery, []model.Session](ret.cacheTTL),
			loadercache.WithLogger[SessionQuery, []model.Session](ret.l.Named("cache")),
			loadercache.WithLoader(ret.loadSessions),
		)
	}
	ret.setupMetrics()
	return ret
}

func (c *Client) setupMetrics() {
	var err error
	if c.requests, err = meter.Int64Counter("tsm.openf1.requests",
		metric.WithDescription("Number of upstream collection requests"),
		metric.WithUnit("{count}")); err != nil {
		c.l.Error("failed to register metric", log.ErrorField(err))
	}
	if c.failures, err = meter.Int64Counter("tsm.openf1.failures",
		metric.WithDescription("Number of failed upstream collection requests"),
		metric.WithUnit("{count}")); err != nil {
		c.l.Error("failed to register metric", log.ErrorField(err))
	}
}

// fetch loads one collection. Transient failures are retried with exponential
// backoff, a 404 is reported as an empty collection.
//
//nolint:whitespace // editor/linter issue
func fetch[T any](
	ctx context.Context,
	c *Client,
	endpoint string,
	params url.Values,
) ([]T, error) {
	ctx, span := c.tracer.Start(ctx, "openf1"+endpoint,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("openf1.endpoint", endpoint),
			attribute.String("openf1.query", params.Encode())))
	defer span.End()
	attrs := metric.WithAttributes(attribute.String("endpoint", endpoint))
	if c.requests != nil {
		c.requests.Add(ctx, 1, attrs)
	}

	var ret []T
	op := func() error {
		data, err := c.get(ctx, endpoint, params)
		if err != nil {
			var se *StatusError
			if errors.As(err, &se) && !se.Transient() {
				return backoff.Permanent(err)
			}
			return err
		}
		if data == nil {
			ret = []T{}
			return nil
		}
		var items []T
		if err := json.Unmarshal(data, &items); err != nil {
			return backoff.Permanent(fmt.Errorf("openf1 %s: decode: %w", endpoint, err))
		}
		ret = items
		return nil
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = 0
	err := backoff.RetryNotify(op,
		backoff.WithContext(backoff.WithMaxRetries(b, c.retries), ctx),
		func(err error, d time.Duration) {
			c.l.Debug("retrying request",
				log.String("endpoint", endpoint),
				log.Duration("wait", d),
				log.ErrorField(err))
		})
	if err != nil {
		if c.failures != nil {
			c.failures.Add(ctx, 1, attrs)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("openf1.items", len(ret)))
	return ret, nil
}

// get executes one request attempt. It returns nil data for a 404.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	u := c.baseURL + endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openf1 %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	c.l.Debug("response",
		log.String("url", u),
		log.Int("status", resp.StatusCode),
		log.Duration("duration", time.Since(start)))

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil //nolint:nilnil // no results
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Endpoint: endpoint, Code: resp.StatusCode}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openf1 %s: read body: %w", endpoint, err)
	}
	return data, nil
}

func sessionParam(sessionKey int) url.Values {
	return url.Values{"session_key": []string{strconv.Itoa(sessionKey)}}
}
