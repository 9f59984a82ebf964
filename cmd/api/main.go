package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/ulule/limiter/v3"

	"github.com/chachabrian/quickmatch-backend/internal/config"
	"github.com/chachabrian/quickmatch-backend/internal/database"
	"github.com/chachabrian/quickmatch-backend/internal/logging"
	"github.com/chachabrian/quickmatch-backend/internal/middleware"
	"github.com/chachabrian/quickmatch-backend/internal/quickmatch"
	"github.com/chachabrian/quickmatch-backend/internal/repository"
	"github.com/chachabrian/quickmatch-backend/internal/router"
	"github.com/chachabrian/quickmatch-backend/internal/services"
)

const uploadsDir = "/app/uploads"

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	logger := logging.New(cfg.LogLevel, cfg.IsProduction())
	log := logging.Component(logger, "main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(cfg)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize database")
	}

	var redisClient *redis.Client
	if cfg.Notify.RedisRelay || cfg.RateLimit.Storage == "redis" {
		redisClient, err = services.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.WithError(err).Fatal("Failed to initialize Redis")
		}
		defer redisClient.Close()
	}

	// Initialize WebSocket hub
	hub := services.NewHub(logging.Component(logger, "websocket"))
	go hub.Run(ctx)

	var sinks []services.Sink
	if cfg.Notify.RedisRelay {
		// Every instance's hub receives events through the relay, including this one.
		relay := services.NewRedisRelay(redisClient, hub, logging.Component(logger, "relay"))
		go func() {
			if err := relay.Run(ctx); err != nil {
				log.WithError(err).Error("Redis relay stopped")
			}
		}()
		sinks = append(sinks, services.NewRedisPublisher(redisClient))
	} else {
		sinks = append(sinks, hub)
	}

	if cfg.Notify.FirebaseCredFile != "" {
		fcm, err := services.NewFCMPublisher(ctx, cfg.Notify.FirebaseCredFile)
		if err != nil {
			log.WithError(err).Warn("Firebase initialization failed, push notifications disabled")
		} else {
			sinks = append(sinks, fcm)
		}
	}

	if cfg.Notify.AMQPURL != "" {
		pub, err := services.NewAMQPPublisher(cfg.Notify.AMQPURL, cfg.Notify.AMQPExchange)
		if err != nil {
			log.WithError(err).Warn("RabbitMQ unavailable, event export disabled")
		} else {
			defer pub.Close()
			sinks = append(sinks, pub)
		}
	}

	gateway := services.NewFanout(cfg.Notify.PublishTimeout, logging.Component(logger, "notify"), sinks...)
	log.WithField("sinks", gateway.Sinks()).Info("Notification gateway ready")

	logos := services.NewLocalLogoResolver(cfg.Storage.BaseURL)
	served := uploadsDir
	if cfg.Storage.UseS3() {
		logos, err = services.NewS3LogoResolver(services.S3Options{
			Region:    cfg.Storage.AWSRegion,
			AccessKey: cfg.Storage.AWSAccessKey,
			SecretKey: cfg.Storage.AWSSecretKey,
			Bucket:    cfg.Storage.Bucket,
			TTL:       cfg.Storage.PresignTTL,
		}, logging.Component(logger, "storage"))
		if err != nil {
			log.WithError(err).Fatal("Failed to initialize storage")
		}
		served = ""
	}

	engine := quickmatch.New(store, gateway, quickmatch.Options{
		RequestTTL:     cfg.QuickMatch.RequestTTL,
		CandidateLimit: cfg.QuickMatch.CandidateLimit,
		MaxDistanceKm:  cfg.QuickMatch.MaxDistanceKm,
		SweepInterval:  cfg.QuickMatch.SweepInterval,
		SweepBatch:     cfg.QuickMatch.SweepBatch,
		Logos:          logos,
		Logger:         logging.Component(logger, "quickmatch"),
	})
	go engine.Sweeper.Run(ctx)

	var limitStore limiter.Store
	if cfg.RateLimit.Enabled {
		limitStore = middleware.NewMemoryStore()
		if cfg.RateLimit.Storage == "redis" {
			if limitStore, err = middleware.NewRedisStore(redisClient); err != nil {
				log.WithError(err).Warn("Failed to create Redis store for rate limiting, falling back to memory")
				limitStore = middleware.NewMemoryStore()
			}
		}
	}

	r, err := router.New(router.Deps{
		Config:         cfg,
		Engine:         engine,
		Directory:      store,
		Hub:            hub,
		RateLimitStore: limitStore,
		UploadsDir:     served,
		Log:            logging.Component(logger, "http"),
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to build router")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.WithField("port", cfg.Port).Info("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Graceful shutdown failed")
	}
	if err := engine.Flush(shutdownCtx); err != nil {
		log.WithError(err).Warn("Pending notifications not delivered")
	}
}

func openStore(cfg *config.Config) (repository.Store, error) {
	if cfg.Database.Driver == "memory" {
		return repository.NewMemoryStore(), nil
	}
	db, err := database.InitDB(cfg.Database, !cfg.IsProduction() && cfg.LogLevel == "debug")
	if err != nil {
		return nil, err
	}
	return repository.NewGormStore(db), nil
}
