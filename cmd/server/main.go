package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"

	"plot-server/internal/clients"
	"plot-server/internal/config"
	"plot-server/internal/handler"
	"plot-server/internal/lock"
	"plot-server/internal/messaging"
	"plot-server/internal/repository"
	"plot-server/internal/service"
	"plot-server/migrations"
	"plot-server/pkg/database"
	"plot-server/pkg/logger"
	"plot-server/pkg/migration"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{Level: cfg.LogLevel})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()
	zapLogger.Info("Logger initialized", zap.String("logLevel", cfg.LogLevel))

	db, err := database.New(database.Config{DSN: cfg.GetDSN(), MaxConns: cfg.DBMaxConns})
	if err != nil {
		zapLogger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer db.Close()
	zapLogger.Info("Connected to PostgreSQL")

	migrator := migration.NewMigrator(migration.Config{
		MigrationsPath: ".",
		MigrationsFS:   migrations.FS,
	}, db.Pool)
	if err := migrator.Up(context.Background()); err != nil {
		zapLogger.Fatal("Failed to apply migrations", zap.Error(err))
	}

	// Per-project snapshot serialization: redis when configured, otherwise
	// an in-process lock (sufficient for a single instance).
	var locker lock.Locker
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			zapLogger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		locker = lock.NewRedisLocker(redisClient, cfg.SnapshotTTL, zapLogger)
		zapLogger.Info("Using redis snapshot lock", zap.String("addr", cfg.RedisAddr))
	} else {
		locker = lock.NewKeyedMutex()
		zapLogger.Info("Using in-process snapshot lock")
	}

	var publisher messaging.UpdatePublisher = messaging.NopPublisher{}
	if cfg.RabbitMQURL != "" {
		rabbitConn, err := amqp.Dial(cfg.RabbitMQURL)
		if err != nil {
			zapLogger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
		}
		defer rabbitConn.Close()
		rabbitPublisher, err := messaging.NewRabbitMQUpdatePublisher(rabbitConn, zapLogger)
		if err != nil {
			zapLogger.Fatal("Failed to create update publisher", zap.Error(err))
		}
		defer rabbitPublisher.Close()
		publisher = rabbitPublisher
		zapLogger.Info("Connected to RabbitMQ")
	} else {
		zapLogger.Info("RabbitMQ not configured, update events disabled")
	}

	var generator clients.TextGenerator
	if cfg.TextGenAPIKey != "" {
		generator, err = clients.NewOpenAIGenerator(clients.Config{
			APIKey:     cfg.TextGenAPIKey,
			BaseURL:    cfg.TextGenBaseURL,
			Model:      cfg.TextGenModel,
			Timeout:    cfg.TextGenTimeout,
			MaxRetries: cfg.TextGenMaxRetries,
		}, zapLogger)
		if err != nil {
			zapLogger.Fatal("Failed to create text generator", zap.Error(err))
		}
	} else {
		generator = clients.UnavailableGenerator{}
		zapLogger.Warn("Text generation API key not set, /generate is disabled")
	}

	plotRepo := repository.NewPgPlotRepository(db.Pool, zapLogger)
	versionRepo := repository.NewPgVersionRepository(db.Pool, zapLogger)
	stateRepo := repository.NewPgProjectStateRepository(db.Pool, zapLogger)

	plotService := service.NewPlotService(plotRepo, generator, publisher, zapLogger)
	versionService := service.NewVersionService(versionRepo, stateRepo, locker, publisher, zapLogger)
	plotHandler := handler.NewPlotHandler(plotService, versionService, zapLogger)

	gin.SetMode(gin.ReleaseMode)
	if cfg.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	p := ginprometheus.NewPrometheus("gin")
	p.Use(router)

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.AllowedOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	corsConfig.AllowCredentials = true
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	plotHandler.RegisterRoutes(router)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		zapLogger.Info("Plot service listening", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Forced shutdown", zap.Error(err))
	}
	zapLogger.Info("Server stopped")
}
