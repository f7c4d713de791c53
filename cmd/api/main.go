package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/your-org/whome/internal/api"
	"github.com/your-org/whome/internal/api/handlers"
	"github.com/your-org/whome/internal/api/ws"
	"github.com/your-org/whome/internal/auth"
	"github.com/your-org/whome/internal/camera"
	"github.com/your-org/whome/internal/config"
	"github.com/your-org/whome/internal/observability"
	"github.com/your-org/whome/internal/orders"
	"github.com/your-org/whome/internal/queue"
	"github.com/your-org/whome/internal/registration"
	"github.com/your-org/whome/internal/scan"
	"github.com/your-org/whome/internal/storage"
	"github.com/your-org/whome/internal/vision"
	"github.com/your-org/whome/internal/visits"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting WhoMe API service", "port", cfg.Server.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to Postgres
	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Connect to MinIO
	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}
	if err := minioStore.EnsureBucket(ctx); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}

	// Face model. A load failure is fatal to scanning and registration; with
	// require_model it is fatal to the process.
	loader := vision.NewLoader(vision.NewONNXModel(cfg.Vision))
	defer loader.Close()
	detector := vision.NewDetector(loader)
	if cfg.Vision.RequireModel {
		if err := detector.Ensure(ctx); err != nil {
			slog.Error("load face model", "error", err)
			os.Exit(1)
		}
	}

	// WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	recorder := visits.NewRecorder(db, hub)

	// NATS is optional: without it state changes are recorded in-process.
	var (
		producer  *queue.Producer
		forwarder *visits.Forwarder
		bus       handlers.BusPinger
		regOpts   = []registration.Option{registration.WithDuplicateWarnings(cfg.Registration.WarnDuplicates)}
	)
	if cfg.NATS.URL != "" {
		producer, err = queue.NewProducer(cfg.NATS.URL)
		if err != nil {
			slog.Error("connect to nats", "error", err)
			os.Exit(1)
		}
		defer producer.Close()

		if err := producer.EnsureStreams(ctx); err != nil {
			slog.Warn("ensure nats streams", "error", err)
		}

		consumer, err := queue.NewConsumer(cfg.NATS.URL)
		if err != nil {
			slog.Error("create event consumer", "error", err)
			os.Exit(1)
		}
		defer consumer.Close()

		if err := consumer.ConsumeEvents(ctx, "whome-api-events", queue.SinkHandler(recorder)); err != nil {
			slog.Warn("start event consumer", "error", err)
		}

		forwarder = visits.NewForwarder(producer, recorder)
		bus = producer
		regOpts = append(regOpts, registration.WithPublisher(producer))
	} else {
		slog.Warn("nats url not set; scan events are recorded in-process")
		forwarder = visits.NewForwarder(nil, recorder)
	}

	gallery, err := scan.NewGallery(db, cfg.Scan.GalleryCacheSize)
	if err != nil {
		slog.Error("create gallery", "error", err)
		os.Exit(1)
	}

	surfaces := make(map[string]scan.Config, len(cfg.Scan.Surfaces))
	for name, s := range cfg.Scan.Surfaces {
		surfaces[name] = scan.ConfigFromSurface(s)
	}
	scans := scan.NewManager(surfaces, camera.NewFFmpegSource(cfg.Camera), detector, gallery,
		scan.WithListener(forwarder.Listen))
	defer scans.StopAll()

	regSvc := registration.NewService(detector, db, minioStore, regOpts...)

	// Setup router
	router := api.NewRouter(api.RouterConfig{
		Keys:         auth.Keys{Admin: cfg.Server.APIKey, Kiosk: cfg.Server.KioskKey},
		DB:           db,
		Blobs:        minioStore,
		Bucket:       minioStore.Bucket(),
		Bus:          bus,
		Hub:          hub,
		Model:        loader,
		Gate:         detector,
		Scans:        scans,
		Registration: regSvc,
		Orders:       orders.NewService(db),
		Invalidate:   gallery.Invalidate,
	})

	// Start HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")
	scans.StopAll()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("API server stopped")
}
