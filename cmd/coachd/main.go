// Copyright (c) 2024-2026 CoachlyAI
//
// Licensed under GPL-2.0 with Coachly Additional Terms.
// See LICENSE.md or contact sales@coachly.ai for commercial usage.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	internal_capture "github.com/coachlyai/api/coach-api/internal/capture"
	internal_entity "github.com/coachlyai/api/coach-api/internal/entity"
	internal_media "github.com/coachlyai/api/coach-api/internal/media"
	internal_netprobe "github.com/coachlyai/api/coach-api/internal/netprobe"
	internal_realtime "github.com/coachlyai/api/coach-api/internal/realtime"
	internal_store "github.com/coachlyai/api/coach-api/internal/store"
	internal_uplink "github.com/coachlyai/api/coach-api/internal/uplink"
	coach_routers "github.com/coachlyai/api/coach-api/router"
	"github.com/coachlyai/config"
	"github.com/coachlyai/pkg/commons"
	"github.com/coachlyai/pkg/connectors"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func main() {
	v, err := config.InitConfig()
	if err != nil {
		log.Fatalf("unable to initialize config: %v", err)
	}
	cfg, err := config.GetApplicationConfig(v)
	if err != nil {
		log.Fatalf("unable to load application config: %v", err)
	}

	logger, err := commons.NewApplicationLogger(
		commons.Name(cfg.Name),
		commons.Path(cfg.LogPath),
		commons.Level(cfg.LogLevel),
	)
	if err != nil {
		log.Fatalf("unable to create logger: %v", err)
	}
	defer logger.Sync()

	postgres := connectors.NewPostgresConnector(cfg, logger)
	redis := connectors.NewRedisConnector(cfg, logger)
	defer postgres.Close()
	defer redis.Close()

	if err := postgres.AutoMigrate(
		&internal_entity.CoachingSession{},
		&internal_entity.ConnectivitySummary{},
		&internal_entity.CoachingMessage{},
	); err != nil {
		logger.Fatalf("migration failed: %v", err)
	}

	store := internal_store.NewStore(postgres, logger)
	cache := internal_store.NewMessageCache(redis.Client(), logger)
	hub := internal_realtime.NewHub(logger)

	// Every realtime row is persisted, cached for the messages endpoint and
	// pushed to any UI stream subscriber.
	manager := internal_realtime.NewManager(cfg.RealtimeConfig, logger,
		func(message *internal_entity.CoachingMessage) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := store.SaveMessage(ctx, message); err != nil {
				logger.Errorf("persisting coaching message failed: %v", err)
			}
			if err := cache.Push(ctx, message); err != nil {
				logger.Warnf("caching coaching message failed: %v", err)
			}
			hub.Broadcast(message)
		})

	source := internal_media.NewFFmpegSource(cfg.CaptureConfig, logger)
	broker := internal_media.NewBroker(source, logger)
	uplink := internal_uplink.NewUplink(cfg.UplinkConfig, logger)
	probe := internal_netprobe.NewSampler(cfg.ProbeConfig, logger)

	pipeline := internal_capture.NewPipeline(cfg.CaptureConfig, logger,
		broker, uplink, manager, probe, store)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.UiOrigin},
		AllowMethods:     []string{"GET", "POST"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		AllowCredentials: true,
	}))
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": cfg.Version})
	})

	coach_routers.CaptureApiRoute(cfg, engine, logger, pipeline, broker, store, cache, hub)

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: engine,
	}

	go func() {
		logger.Infof("%s %s listening on %s", cfg.Name, cfg.Version, server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Infof("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if pipeline.Recording() {
		if err := pipeline.StopSession(shutdownCtx); err != nil {
			logger.Errorf("finalizing session on shutdown: %v", err)
		}
	}
	broker.Release()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
}
