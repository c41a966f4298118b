//	@title			Media Upload API
//	@version		1.0
//	@description	Uploads images and videos to local disk, an image host or Cloudflare R2.
//
//	@host		localhost:3001
//	@BasePath	/api/v1
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT Bearer token. Format: **Bearer {token}**

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/xiaoshiliu/mediaservice/internal/baseurl"
	"github.com/xiaoshiliu/mediaservice/internal/config"
	"github.com/xiaoshiliu/mediaservice/internal/db"
	"github.com/xiaoshiliu/mediaservice/internal/health"
	"github.com/xiaoshiliu/mediaservice/internal/logging"
	"github.com/xiaoshiliu/mediaservice/internal/metrics"
	appMiddleware "github.com/xiaoshiliu/mediaservice/internal/middleware"
	"github.com/xiaoshiliu/mediaservice/internal/storage"
	"github.com/xiaoshiliu/mediaservice/internal/upload"

	_ "github.com/xiaoshiliu/mediaservice/docs/swagger"
)

func main() {
	cfg := config.Load()
	logging.Init(cfg.LogLevel)

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		fatal("database connection failed", err)
	}
	defer pool.Close()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		fatal("database migration failed", err)
	}

	localImages := storage.NewLocal(".", cfg.Image.LocalDir)
	localVideos := storage.NewLocal(".", cfg.Video.LocalDir)
	r2, err := storage.NewR2(cfg.R2)
	if err != nil {
		fatal("r2 client init failed", err)
	}

	uploads, err := metrics.NewUploads(nil)
	if err != nil {
		fatal("metrics registration failed", err)
	}

	// Wire dependencies: backends → service → handler
	svc := upload.NewService(cfg, upload.Backends{
		LocalImages: localImages,
		LocalVideos: localVideos,
		ImageHost:   storage.NewImageHost(cfg.Image.ImageHost),
		R2:          r2,
	}, baseurl.New(cfg.LocalBaseURL, nil), uploads)
	uploadHandler := upload.NewHandler(svc, upload.NewRepository(pool), cfg)

	checks := map[string]health.Pinger{
		"database":     health.PingFunc(pool.Ping),
		"local_images": localImages,
		"local_videos": localVideos,
	}
	if svc.StrategyFor(storage.Image) == storage.R2 || svc.StrategyFor(storage.Video) == storage.R2 {
		checks["r2"] = r2
	}
	healthHandler := health.NewHandler(checks)

	// Router
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(appMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", healthHandler.Check)
	r.Handle("/metrics", promhttp.Handler())

	// Swagger UI at /swagger/
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	// Locally stored files are public.
	upload.ServeLocal(r, localImages, localVideos)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/upload", func(r chi.Router) {
			r.Use(appMiddleware.RequireAuth(cfg.JWTSecret))
			uploadHandler.Routes(r)
		})
	})

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     r,
		ReadTimeout: 2 * time.Minute,
		// Remote uploads run inside the request; leave room for the image host timeout.
		WriteTimeout: 3 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server listening",
			"port", cfg.Port,
			"env", cfg.AppEnv,
			"image_strategy", svc.StrategyFor(storage.Image).String(),
			"video_strategy", svc.StrategyFor(storage.Video).String(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("server error", err)
		}
	}()

	<-quit
	slog.Info("shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		fatal("forced shutdown", err)
	}

	slog.Info("server stopped")
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}
