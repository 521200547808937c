package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"condition-engine/config"
	"condition-engine/internal/api"
	"condition-engine/internal/auth"
	"condition-engine/internal/database"
	"condition-engine/internal/events"
	"condition-engine/internal/market"
	"condition-engine/internal/runner"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	logger := newLogger(cfg.LoggingConfig)
	logger.Info().Msg("condition engine starting")

	// Event bus wiring the runner to the WebSocket stream
	eventBus := events.NewEventBus()

	// PostgreSQL
	db, err := database.NewDB(database.Config{
		Host:     cfg.DatabaseConfig.Host,
		Port:     cfg.DatabaseConfig.Port,
		User:     cfg.DatabaseConfig.User,
		Password: cfg.DatabaseConfig.Password,
		Database: cfg.DatabaseConfig.Database,
		SSLMode:  cfg.DatabaseConfig.SSLMode,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := db.Migrate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}
	logger.Info().Msg("database ready")

	// Redis for crossover state persistence, optional
	var redisClient *redis.Client
	if cfg.RedisConfig.Enabled {
		redisClient, err = database.NewRedisClient(cfg.RedisConfig.Addr, cfg.RedisConfig.Password, cfg.RedisConfig.DB)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, crossover state will not survive restarts")
			redisClient = nil
		} else {
			logger.Info().Str("addr", cfg.RedisConfig.Addr).Msg("redis connected")
		}
	}

	// Market data provider
	marketClient := market.NewClient(cfg.MarketConfig.BaseURL)
	provider := market.NewProvider(marketClient, time.Duration(cfg.MarketConfig.CacheTTLSecs)*time.Second)

	// Auth, optional
	var authService *auth.Service
	if cfg.AuthConfig.Enabled {
		if cfg.AuthConfig.JWTSecret == "" || cfg.AuthConfig.AdminPassword == "" {
			logger.Fatal().Msg("auth enabled but JWT_SECRET or ADMIN_PASSWORD not set")
		}
		authService, err = auth.NewService(auth.Config{
			Secret:        cfg.AuthConfig.JWTSecret,
			TokenDuration: time.Duration(cfg.AuthConfig.TokenHours) * time.Hour,
			AdminUser:     cfg.AuthConfig.AdminUser,
			AdminPassword: cfg.AuthConfig.AdminPassword,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize auth")
		}
		logger.Info().Msg("authentication enabled")
	}

	// Evaluation runner
	if cfg.RunnerConfig.Enabled {
		evalRunner := runner.New(
			db,
			provider,
			redisClient,
			eventBus,
			logger,
			time.Duration(cfg.RunnerConfig.IntervalSeconds)*time.Second,
		)
		go evalRunner.Run(ctx)
	}

	// HTTP API
	server := api.NewServer(api.ServerConfig{
		Host:           cfg.ServerConfig.Host,
		Port:           cfg.ServerConfig.Port,
		ProductionMode: cfg.ServerConfig.ProductionMode,
		AllowedOrigins: cfg.ServerConfig.AllowedOrigins,
	}, db, eventBus, provider, authService, logger)

	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info().Str("signal", sig.String()).Msg("shutting down")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown error")
	}

	logger.Info().Msg("shutdown complete")
}

func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.JSONFormat {
		logger = zerolog.New(os.Stdout)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	return logger.Level(level).With().Timestamp().Logger()
}
