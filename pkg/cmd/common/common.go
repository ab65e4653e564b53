// Package common holds the setup steps shared by the subcommands
package common

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/mpapenbr/timing-service-go/log"
	"github.com/mpapenbr/timing-service-go/pkg/config"
	"github.com/mpapenbr/timing-service-go/pkg/openf1"
	"github.com/mpapenbr/timing-service-go/pkg/service"
	"github.com/mpapenbr/timing-service-go/pkg/timing"
	"github.com/mpapenbr/timing-service-go/pkg/utils"
)

func ParseLogLevel(l string, defaultVal log.Level) log.Level {
	level, err := log.ParseLevel(l)
	if err != nil {
		return defaultVal
	}
	return level
}

// SetupLogger creates the logger from the log flags (or the log config file)
// and installs it as default
func SetupLogger() (*log.Logger, error) {
	logger, err := newLogger(config.LogLevel)
	if err != nil {
		return nil, err
	}
	log.ResetDefault(logger)
	return logger, nil
}

// NewSQLLogger creates the logger used by the query tracer
func NewSQLLogger() *log.Logger {
	l, err := newLogger(config.SQLLogLevel)
	if err != nil {
		return log.Default().Named("sql")
	}
	return l.Named("sql")
}

func newLogger(level string) (*log.Logger, error) {
	if config.LogConfig != "" {
		cfg, err := log.LoadConfig(config.LogConfig)
		if err != nil {
			return nil, fmt.Errorf("load log config: %w", err)
		}
		return cfg.NewLogger(os.Stderr, log.WithCaller(true), log.AddCallerSkip(1))
	}
	switch config.LogFormat {
	case "json":
		return log.New(
			os.Stderr,
			ParseLogLevel(level, log.InfoLevel),
			log.WithCaller(true),
			log.AddCallerSkip(1)), nil
	default:
		return log.DevLogger(
			os.Stderr,
			ParseLogLevel(level, log.DebugLevel),
			log.WithCaller(true),
			log.AddCallerSkip(1)), nil
	}
}

// NewOpenF1Client creates the upstream client from the timing configuration
func NewOpenF1Client(cfg *config.Timing) *openf1.Client {
	return openf1.New(
		openf1.WithBaseURL(cfg.OpenF1URL),
		openf1.WithTimeout(cfg.FetchTimeout),
		openf1.WithRetries(uint64(cfg.FetchRetries)),
		openf1.WithSessionCache(cfg.SessionCacheTTL),
		openf1.WithLogger(log.Default().Named("openf1")))
}

// NewTimingService wires the upstream client and the fusion engines
//
//nolint:whitespace // editor/linter issue
func NewTimingService(
	cfg *config.Timing,
	opts ...service.Option,
) *service.TimingService {
	all := append([]service.Option{
		service.WithBuilder(timing.NewBuilder(
			timing.WithRaceControlLimit(cfg.RaceControlLimit))),
		service.WithReplayEngine(timing.NewReplayEngine(
			timing.WithPositionPad(cfg.PositionPad),
			timing.WithReplayRaceControlLimit(cfg.RaceControlLimit))),
		service.WithMaxConcurrentFetches(cfg.MaxConcurrentFetches),
		service.WithHistoryCache(cfg.HistoryCacheTTL, cfg.HistoryCacheSize),
		service.WithLogger(log.Default().Named("service")),
	}, opts...)
	return service.NewTimingService(NewOpenF1Client(cfg), all...)
}

// WaitForRequiredServices waits until the configured database and NATS server
// accept connections
func WaitForRequiredServices(ctx context.Context) error {
	timeout := config.ParseWaitForServices()
	g, ctx := errgroup.WithContext(ctx)
	check := func(addr string) {
		if addr == "" {
			return
		}
		g.Go(func() error {
			return utils.WaitForTCP(ctx, addr, timeout)
		})
	}
	check(utils.ExtractFromDBURL(config.DB))
	check(utils.ExtractAddr(config.NatsURL))
	log.Debug("Waiting for connection checks to return")
	if err := g.Wait(); err != nil {
		return fmt.Errorf("required services not ready: %w", err)
	}
	log.Debug("Required services are available")
	return nil
}
