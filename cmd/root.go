package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	migrateCmd "github.com/mpapenbr/timing-service-go/pkg/cmd/migrate"
	replayCmd "github.com/mpapenbr/timing-service-go/pkg/cmd/replay"
	serverCmd "github.com/mpapenbr/timing-service-go/pkg/cmd/server"
	snapshotCmd "github.com/mpapenbr/timing-service-go/pkg/cmd/snapshot"
	"github.com/mpapenbr/timing-service-go/pkg/config"
	"github.com/mpapenbr/timing-service-go/pkg/timing"
	"github.com/mpapenbr/timing-service-go/version"
)

const envPrefix = "TSM"

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "tsm",
	Short:   "Timing snapshots for F1 sessions, live and replay",
	Long:    ``,
	Version: version.FullVersion,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:funlen // flag definitions
func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "",
		"config file (default is $HOME/.tsm.yml)")

	pf.StringVar(&config.DB, "db", "",
		"Connection string for the replay archive database (empty: no archive)")
	pf.StringVar(&config.NatsURL, "nats-url", "",
		"URL of the NATS server (empty: no publishing)")
	pf.StringVar(&config.WaitForServices, "wait-for-services", "15s",
		"Duration to wait for other services to be ready")

	pf.StringVar(&config.OpenF1URL, "openf1-url", "https://api.openf1.org/v1",
		"Base URL of the timing provider")
	pf.DurationVar(&config.FetchTimeout, "fetch-timeout", 8*time.Second,
		"Timeout per upstream request")
	pf.IntVar(&config.FetchRetries, "fetch-retries", 3,
		"Retries of transient upstream failures")
	pf.IntVar(&config.MaxConcurrentFetches, "max-concurrent-fetches", 3,
		"Number of streams fetched in parallel")
	pf.DurationVar(&config.SessionCacheTTL, "session-cache-ttl", 30*time.Second,
		"Expiration of cached session queries (0 disables the cache)")
	pf.DurationVar(&config.HistoryCacheTTL, "history-cache-ttl", 30*time.Second,
		"Expiration of cached histories of sessions not yet completed")
	pf.IntVar(&config.HistoryCacheSize, "history-cache-size", 8,
		"Number of session histories kept in memory")
	pf.DurationVar(&config.LivePollInterval, "live-poll-interval", 7*time.Second,
		"Poll interval while a session is live")
	pf.DurationVar(&config.ReplayPollInterval, "replay-poll-interval", 15*time.Second,
		"Poll interval while no session is live")
	pf.DurationVar(&config.ReplayLapInterval, "replay-lap-interval", 1500*time.Millisecond,
		"Auto advance interval of the replay player")
	pf.DurationVar(&config.PositionPad, "position-pad", timing.DefaultPositionPad,
		"Replay: positions recorded this long after the lap cutoff are included")
	pf.IntVar(&config.RaceControlLimit, "race-control-limit", 8,
		"Number of race control messages in a snapshot")

	pf.StringVar(&config.LogLevel, "log-level", "info",
		"controls the log level (debug, info, warn, error, fatal)")
	pf.StringVar(&config.SQLLogLevel, "sql-log-level", "debug",
		"controls the log level for sql methods")
	pf.StringVar(&config.LogFormat, "log-format", "json",
		"controls the log output format (json, text)")
	pf.StringVar(&config.LogConfig, "log-config", "",
		"path to a log config file (overrides log-level and log-format)")
	pf.BoolVar(&config.EnableTelemetry, "enable-telemetry", false,
		"enables telemetry")
	pf.StringVar(&config.TelemetryEndpoint, "telemetry-endpoint", "localhost:4317",
		"Endpoint that receives open telemetry data (stdout for console output)")

	// add commands here
	rootCmd.AddCommand(migrateCmd.NewMigrateCmd())
	rootCmd.AddCommand(serverCmd.NewServerCmd())
	rootCmd.AddCommand(snapshotCmd.NewSnapshotCmd())
	rootCmd.AddCommand(replayCmd.NewReplayCmd())
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".tsm" (without extension).
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".tsm")
	}

	viper.SetEnvPrefix(envPrefix)
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	bindFlags(rootCmd, viper.GetViper())
	for _, cmd := range rootCmd.Commands() {
		bindFlags(cmd, viper.GetViper())
	}
}

// Bind each cobra flag to its associated viper configuration
// (config file and environment variable)
func bindFlags(cmd *cobra.Command, v *viper.Viper) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		// Environment variables can't have dashes in them, so bind them to their
		// equivalent keys with underscores, e.g. --fetch-timeout to TSM_FETCH_TIMEOUT
		if strings.Contains(f.Name, "-") {
			envVarSuffix := strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
			if err := v.BindEnv(f.Name,
				fmt.Sprintf("%s_%s", envPrefix, envVarSuffix)); err != nil {
				fmt.Fprintf(os.Stderr, "Could not bind env var %s: %v", f.Name, err)
			}
		}
		// Apply the viper config value to the flag when the flag is not set and viper
		// has a value
		if !f.Changed && v.IsSet(f.Name) {
			val := v.Get(f.Name)
			if err := cmd.Flags().Set(f.Name, fmt.Sprintf("%v", val)); err != nil {
				fmt.Fprintf(os.Stderr, "Could set flag value for %s: %v", f.Name, err)
			}
		}
	})
}
