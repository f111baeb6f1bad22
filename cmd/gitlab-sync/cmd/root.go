package cmd

import (
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/syncforge/gitlab-sync-client/pkg/client"
	"github.com/syncforge/gitlab-sync-client/pkg/logging"
	"github.com/syncforge/gitlab-sync-client/pkg/syncer"
)

// Version information (set via ldflags at build time)
var (
	Version = "0.1.0-dev"
	Commit  = "unknown"
)

// CLI flags that override config file values
var (
	cfgFile     string
	logLevel    string
	pretty      bool
	concurrency int
	pageSize    int
	metricsAddr string
)

var rootCmd = &cobra.Command{
	Use:   "gitlab-sync",
	Short: "GitLab catalog synchronizer",
	Long: `Streams GitLab projects, groups, and group resources as NDJSON,
merging nested paginated collections (labels) into their parent records.

Requests are rate-limit aware, retried with backoff, and optionally cached
in redis with ETag revalidation.`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "gitlab-sync.yaml",
		"Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&pretty, "pretty", false,
		"Human-readable log output instead of JSON")
	rootCmd.PersistentFlags().IntVar(&concurrency, "concurrency", 0,
		"Override max concurrent nested page fetches")
	rootCmd.PersistentFlags().IntVar(&pageSize, "page-size", 0,
		"Override REST page size")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "",
		"Expose prometheus metrics on this address (e.g. :9090)")
}

// loadRunConfig loads the config file and applies CLI flag overrides.
func loadRunConfig() (*Config, error) {
	cfg, err := LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}

	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if pretty {
		cfg.Pretty = true
	}
	if concurrency > 0 {
		cfg.Concurrency = concurrency
	}
	if pageSize > 0 {
		cfg.PageSize = pageSize
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildSyncer wires logging, redis, the transport client, and the syncer
// from the run configuration. The returned closer releases the client and
// the redis connection.
func buildSyncer(cfg *Config) (*syncer.Syncer, func(), error) {
	logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.LogLevel),
		Pretty: cfg.Pretty,
	})
	logger := logging.NewLogger("cli")

	clientCfg := client.DefaultConfig(cfg.BaseURL, cfg.Token)

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		clientCfg.Redis = redisClient
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("Redis cache and shared rate-limit state enabled")
	}

	c, err := client.New(clientCfg)
	if err != nil {
		if redisClient != nil {
			redisClient.Close()
		}
		return nil, nil, fmt.Errorf("create client: %w", err)
	}

	if metricsAddr != "" {
		startMetricsServer(metricsAddr)
		logger.Info().Str("addr", metricsAddr).Msg("Metrics listener started")
	}

	s := syncer.New(c, syncer.Config{
		MaxConcurrency: cfg.Concurrency,
		PageSize:       cfg.PageSize,
	})

	closer := func() {
		c.Close()
		if redisClient != nil {
			redisClient.Close()
		}
	}
	return s, closer, nil
}

// startMetricsServer exposes /metrics on addr. Errors are logged, not
// fatal: a sync run is still useful without the listener.
func startMetricsServer(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		logger := logging.NewLogger("metrics")
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error().Err(err).Str("addr", addr).Msg("Metrics listener failed")
		}
	}()
}
