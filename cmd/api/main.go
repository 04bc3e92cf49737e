package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"reelmint/internal/adapter/repo"
	"reelmint/internal/events"
	"reelmint/internal/http/handlers"
	"reelmint/internal/http/httpapi"
	"reelmint/internal/infra"
	"reelmint/internal/ledger"
	"reelmint/internal/providers/video"
	"reelmint/internal/task"
	"reelmint/internal/webhook"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := infra.LoadConfig(ctx)
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	store := repo.NewStore(dbpool)
	if err := store.RunMigrations(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	providers := video.Registry{}
	if cfg.KlingAPIKey != "" {
		providers["kling"] = video.NewKling(cfg.KlingBaseURL, cfg.KlingAPIKey, nil)
	}
	if cfg.ViduAPIKey != "" {
		providers["vidu"] = video.NewVidu(cfg.ViduBaseURL, cfg.ViduAPIKey, nil)
	}
	if len(providers) == 0 {
		logger.Fatal().Msg("no video provider configured")
	}

	hub := events.NewHub()
	verifier := webhook.NewVerifier(cfg.WebhookSecret, cfg.WebhookMaxSkew)
	ldg := ledger.New(store, logger)
	tasks := task.NewService(store, ldg, providers, hub, verifier, cfg.PublicBaseURL, logger)

	app := handlers.NewApp(tasks, ldg, hub, verifier, logger)
	app.AdminToken = cfg.AdminToken
	app.Heartbeat = cfg.EventHeartbeat

	router := httpapi.NewRouter(app, httpapi.Options{
		JWTSecret:       cfg.JWTSecret,
		RateLimitPerMin: cfg.RateLimitPerMin,
		AllowedOrigins:  cfg.AllowedOrigins,
	})
	server := infra.NewHTTPServer(cfg, router)
	sweeper := task.NewSweeper(tasks, cfg.SweepInterval, cfg.SweepPollAfter, cfg.SweepGiveUpAfter, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		err := sweeper.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		return
	}
	logger.Info().Msg("server stopped")
}
