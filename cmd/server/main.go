package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/npezzotti/go-watchparty/internal/api"
	"github.com/npezzotti/go-watchparty/internal/config"
	"github.com/npezzotti/go-watchparty/internal/database"
	"github.com/npezzotti/go-watchparty/internal/events"
	"github.com/npezzotti/go-watchparty/internal/pubsub"
	"github.com/npezzotti/go-watchparty/internal/server"
	"github.com/npezzotti/go-watchparty/internal/stats"
	"github.com/npezzotti/go-watchparty/internal/voice"
)

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.LogFormat == config.LogFormatJSON {
		logger = zerolog.New(os.Stderr)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	return logger.Level(level).With().Timestamp().Str("service", "watchparty").Logger()
}

type closableRepository interface {
	database.PartyRepository
	Close() error
}

func openRepository(cfg *config.Config, logger zerolog.Logger) (closableRepository, error) {
	if cfg.Store == config.StoreMemory {
		logger.Warn().Msg("using in-memory party store, state is lost on restart")
		return database.NewMemoryPartyRepository(), nil
	}

	repo, err := database.NewPgPartyRepository(cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}

	if cfg.Migrate {
		if err := repo.Migrate(); err != nil {
			repo.Close()
			return nil, err
		}
		logger.Info().Msg("database migrations applied")
	}

	return repo, nil
}

func openFabric(cfg *config.Config, logger zerolog.Logger) (pubsub.Fabric, error) {
	if cfg.RedisURL == "" {
		return pubsub.NewLocalFabric(), nil
	}

	rdb, err := pubsub.NewRedisClient(cfg.RedisURL)
	if err != nil {
		return nil, err
	}

	return pubsub.NewRedisFabric(rdb, logger), nil
}

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		l := zerolog.New(os.Stderr)
		l.Fatal().Err(err).Msg("config")
	}

	logger := newLogger(cfg)

	repo, err := openRepository(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("db open")
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logger.Error().Err(err).Msg("db close")
		}
	}()

	fabric, err := openFabric(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("pubsub open")
	}
	defer fabric.Close()

	publisher := events.NewPublisher(cfg.AmqpURL, cfg.AmqpExchange, logger)
	defer publisher.Close()
	logger.Info().Str("mode", events.Mode(publisher)).Msg("lifecycle events")

	statsUpdater := stats.NewStatsUpdater()
	statsUpdater.Run()
	defer statsUpdater.Stop()

	voiceService := voice.NewService(voice.Config{
		Url:       cfg.Voice.Url,
		ApiKey:    cfg.Voice.ApiKey,
		ApiSecret: cfg.Voice.ApiSecret,
		TokenTTL:  cfg.Voice.TokenTTL,
		Timeout:   cfg.Voice.Timeout,
	}, repo, logger)
	if !cfg.Voice.Enabled() {
		logger.Warn().Msg("voice provider not configured, voice join will be unavailable")
	}

	cs := server.NewCoordinator(server.Options{
		Log:          logger,
		Repo:         repo,
		Fabric:       fabric,
		Voice:        voiceService,
		Events:       publisher,
		Stats:        statsUpdater,
		HistoryLimit: cfg.Chat.HistoryLimit,
	})
	if err := cs.Start(); err != nil {
		logger.Fatal().Err(err).Msg("coordinator start")
	}

	srv := api.NewApp(logger, cs, repo, statsUpdater.Handler(), cfg)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Info().Str("signal", sig.String()).Msg("received signal")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server")
		}
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown")
	}

	logger.Info().Msg("shutting down coordinator")
	cs.Shutdown()

	logger.Info().Msg("shutdown complete")
}
