package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// this holds the resolved configuration values from CLI
//
//nolint:lll // readablity
var (
	DB                   string        // connection string for the replay archive (empty: no archive)
	NatsURL              string        // url of the NATS server (empty: no publishing)
	WaitForServices      string        // duration to wait for other services to be ready
	LogLevel             string        // sets the log level (zap log level values)
	SQLLogLevel          string        // sets the log level for sql subsystem
	LogFormat            string        // text vs json
	LogConfig            string        // path to log config file
	EnableTelemetry      bool          // enable telemetry
	TelemetryEndpoint    string        // endpoint for telemetry ("stdout" for console export)
	ProfilingPort        int           // port for profiling
	ServerAddr           string        // listen addr for http server (insecure)
	TLSServerAddr        string        // listen addr for http server (tls)
	TLSCertFile          string        // path to TLS certificate
	TLSKeyFile           string        // path to TLS key
	TLSCAFile            string        // path to TLS CA
	TraefikCerts         string        // path to traefik certs file
	TraefikCertDomain    string        // the domain to lookup within the traefik certs
	OpenF1URL            string        // base url of the timing provider
	FetchTimeout         time.Duration // timeout per upstream request
	FetchRetries         int           // retries of transient upstream failures
	MaxConcurrentFetches int           // parallel stream requests per pass
	SessionCacheTTL      time.Duration // expiration of cached session queries
	HistoryCacheTTL      time.Duration // expiration of cached histories of running sessions
	HistoryCacheSize     int           // number of cached session histories
	LivePollInterval     time.Duration // poll interval while a session is live
	ReplayPollInterval   time.Duration // poll interval otherwise
	ReplayLapInterval    time.Duration // auto advance of the replay player
	PositionPad          time.Duration // replay: positions trailing the lap cutoff
	RaceControlLimit     int           // number of race control messages in a snapshot
)

// Timing holds the validated values used by the timing components
type Timing struct {
	OpenF1URL            string        `validate:"required,url"`
	FetchTimeout         time.Duration `validate:"gt=0"`
	FetchRetries         int           `validate:"gte=0,lte=10"`
	MaxConcurrentFetches int           `validate:"gte=1,lte=6"`
	SessionCacheTTL      time.Duration `validate:"gte=0"`
	HistoryCacheTTL      time.Duration `validate:"gte=0"`
	HistoryCacheSize     int           `validate:"gte=1"`
	LivePollInterval     time.Duration `validate:"gte=1s"`
	ReplayPollInterval   time.Duration `validate:"gte=1s"`
	ReplayLapInterval    time.Duration `validate:"gte=100ms"`
	PositionPad          time.Duration `validate:"gte=0"`
	RaceControlLimit     int           `validate:"gte=0"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// TimingConfig collects the package values into a validated Timing
func TimingConfig() (*Timing, error) {
	ret := &Timing{
		OpenF1URL:            OpenF1URL,
		FetchTimeout:         FetchTimeout,
		FetchRetries:         FetchRetries,
		MaxConcurrentFetches: MaxConcurrentFetches,
		SessionCacheTTL:      SessionCacheTTL,
		HistoryCacheTTL:      HistoryCacheTTL,
		HistoryCacheSize:     HistoryCacheSize,
		LivePollInterval:     LivePollInterval,
		ReplayPollInterval:   ReplayPollInterval,
		ReplayLapInterval:    ReplayLapInterval,
		PositionPad:          PositionPad,
		RaceControlLimit:     RaceControlLimit,
	}
	if err := ret.Validate(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (t *Timing) Validate() error {
	if err := validate.Struct(t); err != nil {
		return fmt.Errorf("invalid timing configuration: %w", err)
	}
	return nil
}

// ParseWaitForServices returns the configured wait duration, 60s if invalid
func ParseWaitForServices() time.Duration {
	d, err := time.ParseDuration(WaitForServices)
	if err != nil {
		return 60 * time.Second
	}
	return d
}
