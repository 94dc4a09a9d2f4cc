package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ecom-agent/config"
	"ecom-agent/internal/api"
	"ecom-agent/internal/broker"
	"ecom-agent/internal/catalog"
	"ecom-agent/internal/intent"
	"ecom-agent/internal/llm"
	"ecom-agent/internal/redisclient"
	"ecom-agent/internal/service"
	"ecom-agent/internal/store"
	"ecom-agent/internal/stream"
	"ecom-agent/internal/util"
	"ecom-agent/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting e-commerce query service")

	if cfg.Observ.TracingEnabled {
		tp, err := util.InitTracer("ecom-agent", cfg.Observ.JaegerEndpoint)
		if err != nil {
			log.Fatalf("Failed to initialize tracer: %v", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				logger.Error("Error shutting down tracer", zap.Error(err))
			}
		}()
	}

	db, err := store.NewStore(cfg.Database.Driver, cfg.Database.URL, cfg.Query.MaxRows)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connected",
		zap.String("driver", cfg.Database.Driver),
		zap.Int("max_rows", db.MaxRows()),
	)

	cat := catalog.Default()
	resolver := intent.NewResolver(intent.DefaultRules())
	logger.Info("Intent rules loaded", zap.Strings("rules", resolver.Rules()))
	queryService := service.NewQueryService(resolver, db, cfg.Query.MaxQuestionLength)

	if cfg.LLM.Mode == config.LLMModeAssist {
		generator := llm.NewOllamaGenerator(cfg.LLM.BaseURL, cfg.LLM.Model)
		gateway := llm.NewGateway(generator, cat, time.Duration(cfg.LLM.TimeoutSeconds)*time.Second)
		queryService.WithTranslator(gateway)
		logger.Info("Model assist enabled",
			zap.String("url", cfg.LLM.BaseURL),
			zap.String("model", cfg.LLM.Model),
		)
	}

	if cfg.Redis.Enabled {
		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			time.Duration(cfg.Redis.CacheTTLSeconds)*time.Second)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		queryService.WithCache(redisClient)
		logger.Info("Redis result cache enabled", zap.String("addr", cfg.Redis.Addr))
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var auditWorker *worker.AuditWorker
	if cfg.Kafka.Enabled {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicQuery)
		defer producer.Close()
		queryService.WithPublisher(broker.NewEventPublisher(producer))
		logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicQuery))

		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicQuery, cfg.Kafka.ConsumerGroup)
		auditWorker = worker.NewAuditWorker(consumer)
		go func() {
			if err := auditWorker.Start(workerCtx); err != nil && workerCtx.Err() == nil {
				logger.Error("Audit worker error", zap.Error(err))
			}
		}()
	}

	emitter := stream.NewEmitter(queryService, time.Duration(cfg.Stream.CharDelayMillis)*time.Millisecond)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(queryService, emitter, db, cat, cfg.Server.CORSAllowOrigin)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if auditWorker != nil {
		if err := auditWorker.Stop(); err != nil {
			logger.Error("Error stopping audit worker", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}
