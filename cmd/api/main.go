package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chefscart/backend/config"
	"github.com/chefscart/backend/internal/api"
	"github.com/chefscart/backend/internal/database"
	"github.com/chefscart/backend/internal/limiter"
	"github.com/chefscart/backend/internal/middleware"
	"github.com/chefscart/backend/internal/server"
	"github.com/chefscart/backend/internal/service"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.New(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if config.GetEnvironment() == config.Development {
		if err := database.AutoMigrate(db); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}
	}

	healthChecks := map[string]api.HealthCheck{
		"database": database.HealthCheck(db),
	}

	deps := service.ImageServiceDeps{Store: service.NewImageStore(db)}
	var rateLimiter *middleware.RateLimiter

	redisClient, err := database.NewRedisClient(cfg)
	if err != nil {
		// continue without the prompt cache and per-user limits
		log.Printf("Warning: Failed to connect to Redis: %v", err)
	} else {
		defer redisClient.Close()
		deps.Cache = service.NewImageCache(redisClient, cfg.ImageCacheTTL)
		rateLimiter = middleware.NewImageGenerationRateLimiter(redisClient, cfg.UserImageLimit, cfg.UserImageWindow)
		healthChecks["redis"] = database.RedisHealthCheck(redisClient)
	}

	s3Config, err := config.NewS3Config(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to configure S3: %v", err)
	}
	if s3Config != nil {
		deps.Uploader = s3Config
	} else {
		log.Printf("Warning: S3_BUCKET_NAME not set, serving provider image URLs")
	}

	// one queue per process; every images API call goes through it
	openAI := service.NewOpenAIImageClient(cfg.OpenAIAPIKey, cfg.OpenAIImagesURL)
	deps.Queue = limiter.New[service.ImageRequest, string](openAI.Generate, limiter.Config{
		MaxRequestsPerMinute: cfg.ImageMaxPerMinute,
		MaxBurstRequests:     cfg.ImageMaxBurst,
		Window:               limiter.DefaultWindow,
		AdmissionBuffer:      limiter.DefaultAdmissionBuffer,
		InterRequestDelay:    cfg.ImageInterRequestDelay,
		DispatchTimeout:      cfg.ImageDispatchTimeout,
	}, limiter.WithName("openai-images"))

	srv := server.New(cfg, server.Deps{
		ImageService: service.NewImageService(deps),
		Validator:    service.NewAuthService(cfg.JWTSecret),
		RateLimiter:  rateLimiter,
		HealthChecks: healthChecks,
	})

	errChan := make(chan error, 1)
	go func() {
		log.Println("Starting server...")
		errChan <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		if err != nil {
			log.Fatalf("Server error: %v", err)
		}
	case sig := <-quit:
		log.Printf("Received signal: %v", sig)
	}

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	log.Println("Server stopped")
}
