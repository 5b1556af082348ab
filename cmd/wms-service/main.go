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

	"github.com/stockbridge/stockbridge-backend/internal/erp"
	labelshandler "github.com/stockbridge/stockbridge-backend/internal/labels/handler"
	lookuphandler "github.com/stockbridge/stockbridge-backend/internal/lookup/handler"
	"github.com/stockbridge/stockbridge-backend/internal/numbering"
	receiptevents "github.com/stockbridge/stockbridge-backend/internal/receipt/events"
	receipthandler "github.com/stockbridge/stockbridge-backend/internal/receipt/handler"
	receiptrepo "github.com/stockbridge/stockbridge-backend/internal/receipt/repository"
	receiptsvc "github.com/stockbridge/stockbridge-backend/internal/receipt/service"
	transferevents "github.com/stockbridge/stockbridge-backend/internal/transfer/events"
	transferhandler "github.com/stockbridge/stockbridge-backend/internal/transfer/handler"
	transferrepo "github.com/stockbridge/stockbridge-backend/internal/transfer/repository"
	transfersvc "github.com/stockbridge/stockbridge-backend/internal/transfer/service"
	userhandler "github.com/stockbridge/stockbridge-backend/internal/user/handler"
	userrepo "github.com/stockbridge/stockbridge-backend/internal/user/repository"
	usersvc "github.com/stockbridge/stockbridge-backend/internal/user/service"
	"github.com/stockbridge/stockbridge-backend/pkg/auth"
	"github.com/stockbridge/stockbridge-backend/pkg/config"
	"github.com/stockbridge/stockbridge-backend/pkg/database"
	"github.com/stockbridge/stockbridge-backend/pkg/httputil"
	"github.com/stockbridge/stockbridge-backend/pkg/logger"
	"github.com/stockbridge/stockbridge-backend/pkg/messaging"
)

func main() {
	cfg, err := config.LoadWithValidation("wms-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New("wms-service", cfg.Server.Environment)
	log.Info().Msg("starting WMS Service")

	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeDocumentEvents, "wms-service", log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event publisher")
	}

	erpClient := erp.NewClient(&cfg.ERP, log)
	if erpClient.Offline() {
		log.Warn().Msg("no ERP base URL configured, serving fixture data")
	}
	builder := erp.NewBuilder(erpClient, log)

	jwtManager := auth.NewManager(&cfg.JWT)

	numberRepo := numbering.NewRepository(db)
	receiptRepo := receiptrepo.NewRepository(db)
	transferRepo := transferrepo.NewRepository(db)
	userRepo := userrepo.NewRepository(db)

	receiptService := receiptsvc.NewService(
		receiptRepo, erpClient, builder, numberRepo,
		receiptevents.NewPublisher(publisher, log), log)
	transferService := transfersvc.NewService(
		transferRepo, erpClient, builder, numberRepo,
		transferevents.NewPublisher(publisher, log), log)
	authService := usersvc.NewAuthService(userRepo, jwtManager, log)

	receiptHandler := receipthandler.NewHandler(receiptService, log)
	transferHandler := transferhandler.NewHandler(transferService, log)
	authHandler := userhandler.NewHandler(authService, log)
	lookupHandler := lookuphandler.NewHandler(erpClient, log)
	labelsHandler := labelshandler.NewHandler(receiptService, transferService, log)

	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  "wms-service",
			"database": db.Health(r.Context()),
			"rabbitmq": rmq.Health(),
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		authHandler.RegisterPublicRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(httputil.Authenticate(jwtManager))

			authHandler.RegisterProtectedRoutes(r)
			receiptHandler.RegisterRoutes(r)
			transferHandler.RegisterRoutes(r)
			lookupHandler.RegisterRoutes(r)
			labelsHandler.RegisterRoutes(r)
		})
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
