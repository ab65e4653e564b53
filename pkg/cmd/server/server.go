package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // by design
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"connectrpc.com/grpchealth"
	"github.com/pgx-contrib/pgxtrace"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	otlpruntime "go.opentelemetry.io/contrib/instrumentation/runtime"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"github.com/mpapenbr/timing-service-go/log"
	"github.com/mpapenbr/timing-service-go/pkg/cmd/common"
	"github.com/mpapenbr/timing-service-go/pkg/config"
	dbmigrate "github.com/mpapenbr/timing-service-go/pkg/db/migrate"
	"github.com/mpapenbr/timing-service-go/pkg/db/postgres"
	timingEndpoint "github.com/mpapenbr/timing-service-go/pkg/endpoints/timing"
	"github.com/mpapenbr/timing-service-go/pkg/model"
	"github.com/mpapenbr/timing-service-go/pkg/poller"
	natsPublish "github.com/mpapenbr/timing-service-go/pkg/publish/nats"
	"github.com/mpapenbr/timing-service-go/pkg/repository/replaydata"
	"github.com/mpapenbr/timing-service-go/pkg/service"
	"github.com/mpapenbr/timing-service-go/pkg/utils/broadcast"
)

var preferredKey int

func NewServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "starts the timing server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return startServer()
		},
	}
	cmd.Flags().StringVarP(&config.ServerAddr,
		"addr",
		"a",
		"localhost:8080",
		"http server listen address")
	cmd.Flags().StringVar(&config.TLSServerAddr,
		"tls-addr",
		"",
		"https server listen address (requires a certificate)")
	cmd.Flags().StringVar(&config.TLSCertFile,
		"tls-cert",
		"",
		"file containing the TLS certificate")
	cmd.Flags().StringVar(&config.TLSKeyFile,
		"tls-key",
		"",
		"file containing the TLS key")
	cmd.Flags().StringVar(&config.TLSCAFile,
		"tls-ca",
		"",
		"file containing the CA for client certificates")
	cmd.Flags().StringVar(&config.TraefikCerts,
		"traefik-certs",
		"",
		"traefik acme.json to take the certificate from")
	cmd.Flags().StringVar(&config.TraefikCertDomain,
		"traefik-cert-domain",
		"",
		"domain to look up in the traefik certs")
	cmd.Flags().IntVar(&config.ProfilingPort,
		"profiling-port",
		0,
		"port to use for providing profiling data")
	cmd.Flags().IntVar(&preferredKey,
		"session-key",
		0,
		"session presented by the background poller (0: automatic selection)")
	return cmd
}

// snapshotPublisher forwards accepted snapshots to other instances
type snapshotPublisher interface {
	Publish(ctx context.Context, b *model.TimingBootstrap) error
}

//nolint:funlen,cyclop // by design
func startServer() error {
	logger, err := common.SetupLogger()
	if err != nil {
		return err
	}
	cfg, err := config.TimingConfig()
	if err != nil {
		log.Error("invalid configuration", log.ErrorField(err))
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = log.AddToContext(ctx, logger)

	log.Debug("Config:",
		log.String("openf1", cfg.OpenF1URL),
		log.Bool("archive", config.DB != ""),
		log.String("nats", config.NatsURL),
		log.Duration("livePoll", cfg.LivePollInterval),
		log.Duration("replayPoll", cfg.ReplayPollInterval))

	if config.ProfilingPort > 0 {
		startProfiling()
	}
	if err := common.WaitForRequiredServices(ctx); err != nil {
		log.Error("required services not ready", log.ErrorField(err))
		return err
	}

	pgTracer := pgxtrace.CompositeQueryTracer{
		postgres.NewMyTracer(common.NewSQLLogger(), log.DebugLevel),
	}
	if config.EnableTelemetry {
		log.Info("Enabling telemetry")
		if telemetry, err := config.SetupTelemetry(ctx); err == nil {
			defer telemetry.Shutdown()
			pgTracer = append(pgTracer, postgres.NewOtlpTracer())
		} else {
			log.Warn("Could not setup telemetry", log.ErrorField(err))
		}
		err = otlpruntime.Start(otlpruntime.WithMinimumReadMemStatsInterval(time.Second))
		if err != nil {
			log.Warn("Could not start runtime metrics", log.ErrorField(err))
		}
	}

	var svcOpts []service.Option
	if config.DB != "" {
		if err := dbmigrate.MigrateDb(config.DB); err != nil {
			log.Error("could not migrate database", log.ErrorField(err))
			return err
		}
		pool, err := postgres.InitWithURL(ctx, config.DB, postgres.WithTracer(pgTracer))
		if err != nil {
			log.Error("could not connect to database", log.ErrorField(err))
			return err
		}
		defer pool.Close()
		svcOpts = append(svcOpts, service.WithArchive(replaydata.NewArchive(pool)))
	}
	svc := common.NewTimingService(cfg, svcOpts...)

	var publisher snapshotPublisher
	if config.NatsURL != "" {
		conn, err := natsPublish.Connect(config.NatsURL)
		if err != nil {
			log.Error("could not connect to nats", log.ErrorField(err))
			return err
		}
		defer conn.Drain() //nolint:errcheck // shutdown
		if publisher, err = natsPublish.NewPublisher(ctx, conn); err != nil {
			log.Error("could not setup nats publisher", log.ErrorField(err))
			return err
		}
	}

	live := broadcast.NewServer[*model.TimingBootstrap]("timing")
	defer live.Close()
	checker := newHealthChecker()
	p := poller.New(svc,
		poller.WithLiveInterval(cfg.LivePollInterval),
		poller.WithReplayInterval(cfg.ReplayPollInterval),
		poller.WithPreferredKey(preferredKey),
		poller.WithSink(newSink(ctx, live, publisher, checker)),
		poller.WithLogger(logger.Named("poller")))

	handler := newHandler(svc, live, checker)
	secure, err := newSecureServer(ctx, handler)
	if err != nil {
		log.Error("could not setup tls", log.ErrorField(err))
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := p.Run(gctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	servers := []*http.Server{}
	//nolint:gosec // by design
	plain := &http.Server{
		Addr:    config.ServerAddr,
		Handler: h2c.NewHandler(handler, &http2.Server{}),
	}
	servers = append(servers, plain)
	g.Go(func() error {
		log.Info("Starting http server", log.String("addr", plain.Addr))
		return ignoreClosed(plain.ListenAndServe())
	})
	if secure != nil {
		servers = append(servers, secure)
		g.Go(func() error {
			log.Info("Starting https server", log.String("addr", secure.Addr))
			return ignoreClosed(secure.ListenAndServeTLS("", ""))
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Debug("shutting down servers")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		var errs []error
		for _, s := range servers {
			errs = append(errs, s.Shutdown(shutdownCtx))
		}
		return errors.Join(errs...)
	})
	setupGoRoutinesDump()
	log.Info("Server started")

	err = g.Wait()
	if err != nil {
		log.Error("server stopped", log.ErrorField(err))
	}
	log.Info("Server terminated")
	return err
}

// newSecureServer returns nil if no TLS address is configured
func newSecureServer(ctx context.Context, handler http.Handler) (*http.Server, error) {
	if config.TLSServerAddr == "" {
		return nil, nil
	}
	src := certSourceFromConfig()
	if !src.configured() {
		return nil, fmt.Errorf("tls server %s: %w", config.TLSServerAddr, errNoCertificate)
	}
	tlsConfig, err := newTLSConfig(ctx, src)
	if err != nil {
		return nil, err
	}
	//nolint:gosec // by design
	return &http.Server{
		Addr:      config.TLSServerAddr,
		Handler:   handler,
		TLSConfig: tlsConfig,
	}, nil
}

// newHandler combines the timing routes and the health services
//
//nolint:whitespace // editor/linter issue
func newHandler(
	svc timingEndpoint.Service,
	live broadcast.Server[*model.TimingBootstrap],
	checker *grpchealth.StaticChecker,
) http.Handler {
	mux := http.NewServeMux()
	timingEndpoint.NewHandler(svc,
		timingEndpoint.WithLive(live),
		timingEndpoint.WithLogger(log.Default().Named("endpoints.timing")),
	).Register(mux)
	registerHealthServices(mux, checker)
	return newCORS().Handler(mux)
}

// newSink distributes accepted poll results. The timing health status turns
// to SERVING with the first result.
//
//nolint:whitespace // editor/linter issue
func newSink(
	ctx context.Context,
	live broadcast.Server[*model.TimingBootstrap],
	publisher snapshotPublisher,
	checker *grpchealth.StaticChecker,
) poller.Sink {
	return func(res *poller.Result) {
		live.Publish(res.Bootstrap)
		checker.SetStatus(timingServiceName, grpchealth.StatusServing)
		if publisher == nil {
			return
		}
		if err := publisher.Publish(ctx, res.Bootstrap); err != nil {
			log.Warn("could not publish snapshot",
				log.String("buildId", res.BuildID.String()),
				log.ErrorField(err))
		}
	}
}

func ignoreClosed(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func startProfiling() {
	log.Info("Starting profiling server on port", log.Int("port", config.ProfilingPort))
	go func() {
		//nolint:gosec // by design
		err := http.ListenAndServe(
			fmt.Sprintf("localhost:%d", config.ProfilingPort),
			nil)
		if err != nil {
			log.Error("Profiling server stopped", log.ErrorField(err))
		}
	}()
}

func setupGoRoutinesDump() {
	go func() {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGQUIT)
		buf := make([]byte, 1<<20)
		for {
			<-sigs
			stacklen := runtime.Stack(buf, true)
			fmt.Printf("=== received SIGQUIT ===\n*** goroutine dump...\n%s\n*** end\n",
				buf[:stacklen])
		}
	}()
}

func newCORS() *cors.Cors {
	// browsers embedding the timing board may live on any origin
	return cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowOriginFunc: func(origin string) bool {
			return true
		},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{
			"Accept",
			"Accept-Encoding",
			"Connect-Accept-Encoding",
			"Connect-Content-Encoding",
			"Content-Encoding",
			"Grpc-Accept-Encoding",
			"Grpc-Encoding",
			"Grpc-Message",
			"Grpc-Status",
			"Grpc-Status-Details-Bin",
		},
		MaxAge: int(2 * time.Hour / time.Second),
	})
}
