package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/newthinker/brokerhub/internal/adapter"
	"github.com/newthinker/brokerhub/internal/adapter/alpaca"
	"github.com/newthinker/brokerhub/internal/adapter/etrade"
	"github.com/newthinker/brokerhub/internal/api"
	"github.com/newthinker/brokerhub/internal/cache"
	"github.com/newthinker/brokerhub/internal/config"
	"github.com/newthinker/brokerhub/internal/connection"
	"github.com/newthinker/brokerhub/internal/credentials"
	"github.com/newthinker/brokerhub/internal/logger"
	"github.com/newthinker/brokerhub/internal/metrics"
	"github.com/newthinker/brokerhub/internal/portfolio"
	"github.com/newthinker/brokerhub/internal/store"
	"github.com/newthinker/brokerhub/internal/trading"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the BrokerHub server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// Initialize logger
	log := logger.Must(debug)
	defer log.Sync()

	// Load config
	var cfg *config.Config
	var err error

	if cfgFile != "" {
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
	} else {
		cfg = config.Defaults()
		log.Warn("no config file specified, using defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	ctx := context.Background()

	// Token/state cache
	var c cache.Cache
	if cfg.Redis.Addr != "" {
		c = cache.NewRedis(ctx, &redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, log)
	} else {
		c = cache.Unconfigured{}
		log.Warn("no redis configured, token cache unavailable")
	}

	// Persistence
	var st store.Store
	if cfg.Postgres.DSN != "" {
		pool, err := pgxpool.New(ctx, cfg.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer pool.Close()
		st = store.NewPostgresStore(pool)
	} else {
		st = store.NewMemoryStore()
		log.Warn("no postgres configured, connections will not survive restarts")
	}

	// Vendor adapters
	registry := adapter.NewRegistry()
	if b, ok := cfg.Brokers["alpaca"]; ok && b.Enabled {
		registry.Register(alpaca.New(b.ClientKey, b.ClientSecret, b.Sandbox))
	}
	if b, ok := cfg.Brokers["etrade"]; ok && b.Enabled {
		registry.Register(etrade.New(b.ClientKey, b.ClientSecret, b.Sandbox))
	}
	if len(registry.GetAll()) == 0 {
		log.Warn("no broker adapters enabled")
	}

	reg := metrics.NewRegistry()

	// Token bundles are sealed at rest when an encryption key is configured.
	var codec *credentials.Codec
	if cfg.Encryption.Key != "" {
		codec, err = credentials.NewCodec(cfg.Encryption.Key)
		if err != nil {
			return fmt.Errorf("loading encryption key: %w", err)
		}
	} else {
		log.Warn("no encryption key configured, token bundles cached in plaintext")
	}

	manager := connection.NewManager(registry, st, c, reg, codec, log)
	aggregator := portfolio.NewAggregator(manager, registry, c, reg, log, cfg.Server.BrokerTimeout)
	tradingSvc := trading.NewService(manager, registry, reg, log)

	log.Info("starting BrokerHub server",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.Int("adapters", len(registry.GetAll())),
	)

	server := api.NewServer(api.Config{
		Host:        cfg.Server.Host,
		Port:        cfg.Server.Port,
		APIKey:      cfg.Server.APIKey,
		MetricsPath: metricsPath(cfg),
	}, api.Deps{
		Manager:    manager,
		Aggregator: aggregator,
		Trading:    tradingSvc,
		Metrics:    reg,
	}, log)

	// Start server in goroutine
	go func() {
		if err := server.Start(); err != nil {
			log.Error("server error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down BrokerHub server")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return server.Shutdown(shutdownCtx)
}

func metricsPath(cfg *config.Config) string {
	if !cfg.Metrics.Enabled {
		return ""
	}
	if cfg.Metrics.Path == "" {
		return "/metrics"
	}
	return cfg.Metrics.Path
}
