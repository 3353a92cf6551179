package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	apperrors "github.com/RemoteKing-Interns/allremotes-sub000/common/errors"
	"github.com/RemoteKing-Interns/allremotes-sub000/common/logger"
	"github.com/RemoteKing-Interns/allremotes-sub000/common/middleware"
	"github.com/RemoteKing-Interns/allremotes-sub000/config"
	"github.com/RemoteKing-Interns/allremotes-sub000/controllers"
	"github.com/RemoteKing-Interns/allremotes-sub000/database"
	awspkg "github.com/RemoteKing-Interns/allremotes-sub000/pkg/aws"
	"github.com/RemoteKing-Interns/allremotes-sub000/routes"
	"github.com/RemoteKing-Interns/allremotes-sub000/services"
	"github.com/RemoteKing-Interns/allremotes-sub000/upload"
)

const serviceName = "catalog-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	// --- 1. AWS and logging ---
	ctx := context.Background()
	var awsCfg *sdkaws.Config
	if loaded, err := awspkg.LoadAWSConfig(ctx, cfg.AWSRegion, cfg.AWSEndpoint); err == nil {
		awsCfg = &loaded
	}

	var logSink io.Writer
	if cfg.CloudWatch && awsCfg != nil {
		if cw, err := awspkg.NewCloudWatchLogsClient(ctx, *awsCfg, cfg.LogGroup, serviceName, true); err == nil && cw.IsEnabled() {
			logSink = cw
		}
	}

	log, err := logger.Initialize(cfg.AppEnv, logSink)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer log.Sync()

	log.Info("Starting catalog service",
		zap.String("backend", cfg.Backend),
		zap.String("aws_region", cfg.AWSRegion),
		zap.String("aws_endpoint", cfg.AWSEndpoint),
		zap.Bool("cloudwatch", logSink != nil),
	)

	// --- 2. Stores ---
	catalog, err := database.OpenCatalog(ctx, cfg, awsCfg)
	if err != nil {
		log.Fatal("Failed to open catalog store", zap.Error(err))
	}
	log.Info("Catalog store ready", zap.String("backend", catalog.Store.Backend()))

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb = connectRedis(ctx, cfg.RedisURL)
	}

	// --- 3. Dependency injection ---
	deps := services.ImportDeps{
		Store: catalog.Store,
		Upload: upload.Options{
			Dir:      cfg.UploadDir,
			MaxBytes: cfg.MaxUploadBytes,
		},
		LockWait: cfg.UploadLockWait,
	}
	if rdb != nil {
		deps.Lock = services.NewRedisUploadLock(rdb)
		deps.Reports = services.NewRedisReportStore(rdb)
	}

	var metrics awspkg.MetricsRecorder
	if awsCfg != nil {
		metricsClient := awspkg.NewMetricsClient(*awsCfg, cfg.MetricsSpace, cfg.CloudWatch)
		metrics = metricsClient
		deps.Metrics = metricsClient
		if cfg.S3Bucket != "" {
			deps.Archiver = awspkg.NewS3Archiver(*awsCfg, cfg.S3Bucket, cfg.S3Prefix)
		}
		if cfg.EventsTopic != "" {
			deps.Events = services.NewSNSEventPublisher(awspkg.NewSNSClient(*awsCfg), cfg.EventsTopic)
		}
	}

	importService := services.NewImportService(deps)
	productService := services.NewProductService(catalog.Store)

	validator := controllers.NewRequestValidator()
	uploadController := controllers.NewUploadController(importService, validator, cfg.MaxUploadBytes, cfg.TemplatePath)
	productController := controllers.NewProductController(productService, validator)

	// --- 4. HTTP server and middleware ---
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.RequestID())
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.SecurityHeaders())
	r.Use(cors.New(corsConfig(cfg.AllowedOrigins)))
	r.Use(middleware.MetricsMiddleware(metrics, serviceName, catalog.Store.Backend()))
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(apperrors.ErrorMiddleware())

	uploadLimiter := middleware.NewRateLimiter(rate.Every(2*time.Second), 5, 10*time.Minute)
	routes.RegisterRoutes(r, uploadController, productController, routes.Guards{
		Admin:  middleware.AdminAuth(cfg.AdminJWTSecret),
		Upload: middleware.RateLimitMiddleware(uploadLimiter),
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK", "backend": catalog.Store.Backend()})
	})

	// --- 5. Graceful shutdown ---
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		log.Info("Catalog service starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down catalog service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	if err := catalog.Close(); err != nil {
		log.Error("Failed to close catalog store", zap.Error(err))
	}
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			log.Error("Failed to close Redis", zap.Error(err))
		}
	}

	log.Info("Catalog service stopped gracefully")
}

// corsConfig allows the admin UI origins. "*" allows any origin; entries without an
// http(s) scheme are dropped.
func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	for _, o := range origins {
		o = strings.TrimSuffix(strings.TrimSpace(o), "/")
		if o == "*" {
			cfg.AllowAllOrigins = true
			cfg.AllowOrigins = nil
			cfg.AllowCredentials = false
			return cfg
		}
		if strings.HasPrefix(o, "http://") || strings.HasPrefix(o, "https://") {
			cfg.AllowOrigins = append(cfg.AllowOrigins, o)
		}
	}
	if len(cfg.AllowOrigins) == 0 {
		cfg.AllowOrigins = []string{"http://localhost:3000"}
	}
	return cfg
}

// connectRedis returns a client for url, or nil when the URL is invalid or the server
// does not answer. Uploads then fall back to the in-process lock and report store.
func connectRedis(ctx context.Context, url string) *redis.Client {
	opts, err := redis.ParseURL(url)
	if err != nil {
		zap.L().Warn("Failed to parse REDIS_URL, using in-process upload lock", zap.Error(err))
		return nil
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		zap.L().Warn("Redis unavailable, using in-process upload lock", zap.Error(err))
		_ = rdb.Close()
		return nil
	}
	return rdb
}
