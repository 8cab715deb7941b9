package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	"github.com/invoiceflow/invoiceflow-backend/internal/invoice/handler"
	invrepo "github.com/invoiceflow/invoiceflow-backend/internal/invoice/repository"
	"github.com/invoiceflow/invoiceflow-backend/internal/invoice/service"
	"github.com/invoiceflow/invoiceflow-backend/internal/ocr"
	"github.com/invoiceflow/invoiceflow-backend/internal/quality"
	"github.com/invoiceflow/invoiceflow-backend/internal/raster"
	vrepo "github.com/invoiceflow/invoiceflow-backend/internal/vendors/repository"
	"github.com/invoiceflow/invoiceflow-backend/internal/vendors/store"
	"github.com/invoiceflow/invoiceflow-backend/internal/vendors/synthesis"
	"github.com/invoiceflow/invoiceflow-backend/pkg/config"
	"github.com/invoiceflow/invoiceflow-backend/pkg/database"
	"github.com/invoiceflow/invoiceflow-backend/pkg/httputil"
	"github.com/invoiceflow/invoiceflow-backend/pkg/logger"
	"github.com/invoiceflow/invoiceflow-backend/pkg/messaging"
)

func main() {
	_ = godotenv.Load()

	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("extraction-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("extraction-service", cfg.Server.Environment)
	log.Info().Msg("starting Extraction Service")

	// Connect to database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Connect to RabbitMQ
	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	// Initialize event publisher
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeInvoiceEvents, "extraction-service", log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event publisher")
	}

	// Initialize repositories and the vendor index
	vendorRepo := vrepo.NewVendorRepository(db)
	invoiceRepo := invrepo.NewInvoiceRepository(db)

	vendors := store.New(vendorRepo, log)
	if err := vendors.Load(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("failed to load vendor index")
	}

	// OCR engines and quality-based routing
	thresholds := quality.Thresholds{
		SharpnessMin:  cfg.OCR.SharpnessMin,
		ContrastMin:   cfg.OCR.ContrastMin,
		BrightnessMin: cfg.OCR.BrightnessMin,
		BrightnessMax: cfg.OCR.BrightnessMax,
	}
	fast := ocr.NewTesseractEngine()
	accurate := ocr.NewVisionEngine(cfg.OCR.VisionServiceURL, cfg.OCR.VisionTimeout)
	gateway := ocr.NewGateway(fast, accurate, thresholds, cfg.OCR.MinTextLength, cfg.OCR.TesseractLanguages, log)

	// Template synthesis client
	synth := synthesis.NewClient(cfg.Synthesis.ServiceURL, cfg.Synthesis.Timeout, cfg.Synthesis.MaxRetries, log)

	// Initialize service and handler
	invoiceService := service.NewInvoiceService(
		raster.NewImageRenderer(), gateway, vendors, synth, invoiceRepo, publisher, log,
	)
	invoiceHandler := handler.NewHandler(invoiceService, log)

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(middleware.Timeout(2 * time.Minute))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  "extraction-service",
			"database": db.Health(r.Context()),
			"rabbitmq": rmq.Health(),
		})
	})

	// API routes
	invoiceHandler.RegisterRoutes(r)

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

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
