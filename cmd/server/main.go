// Command server runs the LINE CRM backend: the webhook ingestion endpoint
// and the dashboard API, backed by SQLite.
//
// Startup order:
//  1. .env (best effort) and environment configuration
//  2. zerolog global level / console writer
//  3. OpenTelemetry tracing (optional, OTLP/gRPC)
//  4. SQLite open + schema migration + GORM tracing plugin
//  5. Gin router with the full middleware stack
//  6. http.Server with graceful shutdown; detached enrichment tasks are
//     drained before exit so no profile write is lost
//
// @title           LINE CRM API
// @version         1.0
// @description     Webhook ingestion and dashboard API for the LINE contact CRM.
// @license.name    MIT
// @BasePath        /api/v1
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/go-line-crm/internal/config"
	httpapi "github.com/tbourn/go-line-crm/internal/http"
	"github.com/tbourn/go-line-crm/internal/line"
	"github.com/tbourn/go-line-crm/internal/observability"
	"github.com/tbourn/go-line-crm/internal/repo"
	"github.com/tbourn/go-line-crm/internal/sysutil"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// .env is a dev convenience; absence is not an error.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	ctx := context.Background()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("db_path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("schema migration failed")
	}
	if cfg.OTEL.Enabled {
		if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
			log.Fatal().Err(err).Msg("gorm tracing plugin failed")
		}
	}

	// Profile client is optional: without an access token enrichment and
	// refresh are disabled, ingestion still works.
	var profiles line.ProfileClient
	if cfg.LINE.ChannelAccessToken != "" {
		profiles = line.NewClient(cfg.LINE.APIEndpoint, cfg.LINE.ChannelAccessToken, nil)
	} else {
		log.Warn().Msg("LINE_CHANNEL_ACCESS_TOKEN not set; profile enrichment disabled")
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	ingestSvc := httpapi.RegisterRoutes(r, httpapi.Deps{DB: db, Profiles: profiles}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}

	// Drain detached profile-enrichment tasks before closing the DB.
	ingestSvc.Wait()

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown failed")
	}
	log.Info().Msg("server stopped")
}
