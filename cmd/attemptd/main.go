package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/edupath/attempt-engine/internal/cache"
	"github.com/edupath/attempt-engine/internal/config"
	"github.com/edupath/attempt-engine/internal/events"
	"github.com/edupath/attempt-engine/internal/gateway"
	"github.com/edupath/attempt-engine/internal/handlers"
	"github.com/edupath/attempt-engine/internal/journal"
	"github.com/edupath/attempt-engine/internal/services"
	"github.com/edupath/attempt-engine/internal/utils"
	"github.com/edupath/attempt-engine/pkg"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	var logger utils.Logger
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
		logger = utils.NewDefaultLogger()
	} else {
		logger = utils.NewDevelopmentLogger()
	}

	// Upstream LMS client
	upstream := gateway.NewHTTPClient(cfg.UpstreamBaseURL, cfg.UpstreamToken, logger)

	// Quiz-meta cache; the engine runs without it.
	var metaCache cache.CacheService
	if cfg.RedisURL != "" {
		redisClient, err := pkg.NewRedisClient(cfg)
		if err != nil {
			logger.Warn("Redis unavailable, quiz-meta caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			metaCache = cache.NewRedisCache(redisClient, logger)
		}
	}

	// Attempt journal; lifecycle rows only, optional.
	recorder := journal.NewNoopRecorder()
	if cfg.DatabaseURL != "" {
		db, err := pkg.InitDatabase(cfg)
		if err != nil {
			logger.Warn("Database unavailable, attempt journal disabled", "error", err)
		} else if r, err := journal.NewGormRecorder(db, logger); err != nil {
			logger.Warn("Journal migration failed, attempt journal disabled", "error", err)
		} else {
			recorder = r
		}
	}

	// Lifecycle events (kafka or mock, per config).
	publisher, err := cfg.Events.CreateEventPublisher(utils.ToSlogLogger(logger))
	if err != nil {
		log.Fatal("Failed to create event publisher:", err)
	}
	defer publisher.Close()

	// Fire-and-forget answer persistence channel.
	answerQueue := events.NewAnswerQueue(upstream, utils.ToSlogLogger(logger))
	if err := answerQueue.Run(); err != nil {
		log.Fatal("Failed to start answer queue:", err)
	}
	defer answerQueue.Close()

	validator := utils.NewValidator()

	sessions := services.NewSessionService(services.SessionServiceDeps{
		Gateway:   upstream,
		Saver:     answerQueue,
		Events:    publisher,
		Journal:   recorder,
		Cache:     metaCache,
		Logger:    logger,
		Validator: validator,
	})
	defer sessions.Shutdown()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(utils.RequestLogger(logger))

	handlerManager := handlers.NewHandlerManager(sessions, validator, logger)
	handlerManager.SetupRoutes(router)

	go func() {
		logger.Info("Attempt engine listening", "port", cfg.Port, "environment", cfg.Environment)
		if err := router.Run(":" + cfg.Port); err != nil {
			log.Fatal("Failed to start server:", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down")
}
