package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pagetrail/internal/cache"
	"github.com/pagetrail/internal/config"
	"github.com/pagetrail/internal/db"
	"github.com/pagetrail/internal/detect"
	"github.com/pagetrail/internal/handler"
	"github.com/pagetrail/internal/ident"
	applog "github.com/pagetrail/internal/logger"
	"github.com/pagetrail/internal/queue"
	"github.com/pagetrail/internal/router"
	"github.com/pagetrail/internal/service"
	"github.com/pagetrail/internal/store"
	"github.com/pagetrail/internal/token"
	"github.com/spf13/cobra"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP collector",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()
	logger := applog.Init(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	gin.SetMode(cfg.GinMode)
	gin.DefaultWriter = io.Discard

	// 初始化数据库
	if err := db.Init(cfg.DatabaseDriver, cfg.DatabaseURL); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close(db.DB)

	if err := db.EnsureUser(db.DB, cfg.SuperRootUserName, cfg.SuperRootPassword); err != nil {
		return fmt.Errorf("failed to ensure super root user: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st := store.New(db.DB)

	var lookup cache.LookupCache
	if cfg.CacheEnabled() {
		client, err := cache.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to connect redis: %w", err)
		}
		defer client.Close()
		lookup = cache.NewRedisCache(client, st, applog.WithComponent("cache"))
		logger.Info("lookup cache enabled")
	}

	var sink *queue.KafkaSink
	if cfg.ColumnarEnabled {
		var err error
		sink, err = queue.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic, applog.WithComponent("kafka"))
		if err != nil {
			return fmt.Errorf("failed to create kafka sink: %w", err)
		}
		defer sink.Close()
		logger.Info("columnar backend enabled", "topic", cfg.KafkaTopic)
	}

	detector, err := detect.NewDetector(cfg.GeoIPDatabase)
	if err != nil {
		return fmt.Errorf("failed to open geo database: %w", err)
	}
	defer detector.Close()

	secret := ident.Secret(cfg.AppSecret, cfg.DatabaseURL)
	codec := token.NewCodec(secret, cfg.CacheTokenTTL)
	salter := ident.NewSalter(secret, cfg.SaltRotation == config.SaltRotationMonthly)

	sessions := service.NewSessionService(st, lookup, codec, detector, service.SessionOptions{
		CacheEnabled:    cfg.CacheEnabled(),
		ColumnarEnabled: cfg.ColumnarEnabled,
		Salt:            salter.Salt,
	}, applog.WithComponent("session"))

	var events *service.EventService
	if sink != nil {
		events = service.NewEventService(db.DB, sink, true)
	} else {
		events = service.NewEventService(db.DB, nil, false)
	}

	api := handler.NewAPI(
		sessions,
		events,
		codec,
		service.NewTeamService(db.DB),
		service.NewUserService(db.DB),
		applog.WithComponent("handler"),
	).WithBotCheck(!cfg.DisableBotCheck)

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router.SetupRouter(api, cfg.SessionSecret, applog.WithComponent("http")),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return serve(ctx, srv, logger)
}

func serve(ctx context.Context, srv *http.Server, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to run server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}
