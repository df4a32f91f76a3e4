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
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/rl1809/stock-transfer/internal/adapter/backend"
	"github.com/rl1809/stock-transfer/internal/adapter/handler"
	"github.com/rl1809/stock-transfer/internal/adapter/storage"
	"github.com/rl1809/stock-transfer/internal/config"
	"github.com/rl1809/stock-transfer/internal/core/service"
	"github.com/rl1809/stock-transfer/internal/logging"
	"github.com/rl1809/stock-transfer/internal/metrics"
	"github.com/rl1809/stock-transfer/internal/port"
)

const sessionSweepInterval = time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Initialize clinic backend client
	client, err := backend.NewHTTPClient(backend.Config{
		BaseURL:            cfg.BackendBaseURL,
		Token:              cfg.BackendToken,
		Timeout:            cfg.BackendTimeout,
		ClinicsPath:        cfg.ClinicsPath,
		InventoryPath:      cfg.InventoryPath,
		SerialsPath:        cfg.SerialsPath,
		TransferPath:       cfg.TransferPath,
		BreakerMaxFailures: cfg.BreakerMaxFailures,
		BreakerOpenTimeout: cfg.BreakerOpenTimeout,
	}, logger)
	if err != nil {
		logger.Fatal("invalid backend config", zap.Error(err))
	}

	// Initialize Redis
	var cache port.CacheRepository
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal("failed to connect redis", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		cache = storage.NewRedisAdapter(rdb, cfg.DraftTTL)
		logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))
	}

	// Initialize MySQL
	var history port.DatabaseRepository
	var db *sql.DB
	if cfg.MySQLDSN != "" {
		db, err = sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			logger.Fatal("failed to open mysql", zap.Error(err))
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.PingContext(ctx); err != nil {
			logger.Fatal("failed to ping mysql", zap.Error(err))
		}
		mysqlAdapter := storage.NewMySQLAdapter(db)
		if err := mysqlAdapter.EnsureSchema(ctx); err != nil {
			logger.Fatal("failed to prepare schema", zap.Error(err))
		}
		history = mysqlAdapter
		logger.Info("connected to mysql")
	}

	// Initialize services
	grpcHandler := handler.NewGRPCHandler(logger)
	loader := service.NewReferenceLoader(client, logger, m)
	loader.OnLoad(grpcHandler.Update)
	if _, err := loader.Load(ctx); err != nil {
		logger.Warn("starting with incomplete reference data", zap.Error(err))
	}

	transfers := service.NewTransferService(client, loader, cache, history, logger, m)
	transfers.SetSubmitTimeout(cfg.BackendTimeout)
	sessions := service.NewSessionService(loader, transfers, client, cache, logger, m)
	go sessions.RunEviction(ctx, sessionSweepInterval, cfg.DraftTTL)

	// Start gRPC server
	grpcServer := grpc.NewServer()
	grpcHandler.Register(grpcServer)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatal("failed to listen", zap.String("addr", cfg.GRPCAddr), zap.Error(err))
	}

	go func() {
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server error", zap.Error(err))
		}
	}()

	// Start HTTP server
	httpHandler := handler.NewHTTPHandler(sessions, loader, transfers, logger)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpHandler.Routes(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown", zap.Error(err))
	}
	logger.Info("HTTP server stopped")

	grpcHandler.Shutdown()
	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped")

	// stops the session sweeper
	cancel()

	if rdb != nil {
		rdb.Close()
	}
	if db != nil {
		db.Close()
	}
	logger.Info("connections closed")
}
