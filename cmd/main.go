package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"shop_orders/config"
	"shop_orders/internal/delivery"
	grpcHandler "shop_orders/internal/delivery/grpc"
	"shop_orders/internal/domain"
	"shop_orders/internal/metrics"
	"shop_orders/internal/middleware"
	"shop_orders/internal/repository/memory"
	"shop_orders/internal/repository/postgres"
	"shop_orders/internal/usecase"
	"shop_orders/internal/workflow"
	"shop_orders/pkg/db"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
)

func main() {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.LoadConfig(logger)
	if err != nil {
		logger.Fatalf("FATAL: %v", err)
	}
	logLevel, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logLevel = logrus.InfoLevel
		logger.Warnf("Invalid LOG_LEVEL '%s', using default: %s", cfg.LogLevel, logLevel.String())
	}
	logger.SetLevel(logLevel)
	logger.Info("Starting Order Service...")

	repo, closeStore := openStore(cfg, logger)
	defer closeStore()

	// --- Dependency Injection ---
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	orderUseCase := usecase.NewOrderUseCase(repo, workflow.NewEngine(), m, cfg.MaxPageSize, logger)
	logger.Info("Use cases initialized.")

	orderHandler := delivery.NewOrderHandler(orderUseCase, cfg.DefaultPageSize, logger)
	healthHandler := delivery.NewHealthHandler(repo, logger)

	if logLevel < logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.RedirectTrailingSlash = false
	router.Use(gin.Recovery(), middleware.RequestLogger(logger), middleware.Instrument(m))

	healthHandler.RegisterRoutes(router)
	router.GET("/metrics", gin.WrapH(m.Handler()))
	api := router.Group("/", middleware.AuthMiddleware([]byte(cfg.JWTSecret), logger))
	orderHandler.RegisterRoutes(api)
	logger.Info("Routes registered.")

	// --- Start Servers ---
	httpServer := &http.Server{Addr: cfg.HTTPPort, Handler: router}
	go func() {
		logger.Infof("Starting HTTP server on port %s", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start HTTP server on port %s: %v", cfg.HTTPPort, err)
		}
	}()

	lis, err := net.Listen("tcp", cfg.GrpcPort)
	if err != nil {
		logger.Fatalf("Failed to listen on port %s: %v", cfg.GrpcPort, err)
	}
	grpcServer := grpcHandler.NewServer(repo, logger)
	go func() {
		logger.Infof("gRPC server listening on %s", cfg.GrpcPort)
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			logger.Fatalf("Failed to serve gRPC: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Warn("Shutdown signal received...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Errorf("HTTP server forced to shut down: %v", err)
	}
	grpcServer.GracefulStop()
	logger.Info("Order Service shut down gracefully.")
}

func openStore(cfg *config.Config, logger *logrus.Logger) (domain.OrderRepository, func()) {
	if cfg.StoreDriver == config.DriverMemory {
		store := memory.NewStore(logger)
		if cfg.CatalogFile != "" {
			n, err := store.LoadProducts(cfg.CatalogFile)
			if err != nil {
				logger.Fatalf("FATAL: Failed to load catalog: %v", err)
			}
			logger.Infof("Loaded %d catalog products from %s", n, cfg.CatalogFile)
		}
		logger.Warn("Using in-memory order store; data is lost on restart.")
		return store, func() {}
	}

	database, err := db.Connect(cfg.DatabaseURL, db.Options{
		MaxOpenConns:   cfg.DBMaxOpenConns,
		ConnectTimeout: cfg.DBConnectTimeout,
	})
	if err != nil {
		logger.Fatalf("FATAL: Failed to connect to database: %v", err)
	}
	logger.Info("Database connection established.")
	return postgres.NewPostgresOrderRepository(database, logger), func() { closeDB(database, logger) }
}

func closeDB(database *sql.DB, logger *logrus.Logger) {
	if err := database.Close(); err != nil {
		logger.Errorf("Error closing database connection: %v", err)
		return
	}
	logger.Info("Database connection closed.")
}
