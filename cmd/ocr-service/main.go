package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/docuflow/ocr-service/internal/ocr/engine"
	"github.com/docuflow/ocr-service/internal/ocr/events"
	"github.com/docuflow/ocr-service/internal/ocr/extract"
	"github.com/docuflow/ocr-service/internal/ocr/fetch"
	"github.com/docuflow/ocr-service/internal/ocr/gateway"
	"github.com/docuflow/ocr-service/internal/ocr/handler"
	"github.com/docuflow/ocr-service/internal/ocr/repository"
	"github.com/docuflow/ocr-service/internal/ocr/service"
	"github.com/docuflow/ocr-service/pkg/config"
	"github.com/docuflow/ocr-service/pkg/database"
	"github.com/docuflow/ocr-service/pkg/httputil"
	"github.com/docuflow/ocr-service/pkg/logger"
	"github.com/docuflow/ocr-service/pkg/messaging"
)

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("ocr-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("ocr-service", cfg.Server.Environment)
	log.Info().Str("engine", cfg.Engine.Kind).Msg("starting OCR Service")

	// Recognition engine and its single-worker gateway
	eng, err := engine.New(cfg.Engine, cfg.Retry, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create recognition engine")
	}
	defer eng.Close()

	gw := gateway.New(eng, cfg.Gateway.QueueSize, log)
	gw.Start()

	// Optional audit trail
	var audit service.AuditStore
	if cfg.Audit.Enabled {
		db, err := database.New(&cfg.Database, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()

		audit = repository.NewAuditRepository(db)
	}

	// Optional event publishing
	var publisher *events.Publisher
	if cfg.RabbitMQ.Enabled {
		rmq, err := messaging.New(&cfg.RabbitMQ, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
		}
		defer rmq.Close()

		publisher, err = events.NewPublisher(rmq, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create event publisher")
		}
	}

	// Assemble the pipeline
	fetcher := fetch.New(cfg.Fetch, cfg.Limits, cfg.Retry, log)
	svc := service.New(cfg, fetcher, gw, extract.New(log), eng, audit, publisher, log)
	ocrHandler := handler.NewHandler(svc, cfg, log)

	// Create router
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	if cfg.JWT.Enabled {
		ocrHandler.Register(r, httputil.BearerAuth(cfg.JWT.Secret, log))
	} else {
		ocrHandler.Register(r)
	}

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Stop intake first, then drain recognitions already queued.
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	if err := gw.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("gateway forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
