package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/rl1809/checkout/internal/adapter/handler"
	"github.com/rl1809/checkout/internal/adapter/handler/pb"
	"github.com/rl1809/checkout/internal/adapter/storage"
	"github.com/rl1809/checkout/internal/config"
	"github.com/rl1809/checkout/internal/core/domain"
	"github.com/rl1809/checkout/internal/core/service"
	"github.com/rl1809/checkout/internal/logger"
	"github.com/rl1809/checkout/internal/port"
)

const shutdownTimeout = 10 * time.Second

type backend interface {
	port.CustomerDirectory
	port.Transactor
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer zl.Sync()

	if err := run(cfg, zl); err != nil {
		zl.Fatal("server stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, zl *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openBackend(ctx, cfg, zl)
	if err != nil {
		return err
	}
	defer closeStore()

	var idempotency port.IdempotencyStore
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		zl.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))
		idempotency = storage.NewRedisIdempotencyStore(rdb, cfg.Redis.IdempotencyTTL)
	}

	orders := service.NewIdempotentOrderService(
		service.NewOrderService(store, store, zl.Named("orders")),
		idempotency,
		zl.Named("idempotency"),
	)

	grpcServer := grpc.NewServer()
	pb.RegisterOrderServiceServer(grpcServer, handler.NewGRPCHandler(orders, zl.Named("grpc")))

	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      handler.NewHTTPHandler(orders, zl.Named("http")).Routes(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zl.Info("gRPC server listening", zap.String("addr", cfg.GRPC.Addr))
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		zl.Info("HTTP server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		zl.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		grpcServer.GracefulStop()
		return err
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	zl.Info("server stopped")
	return nil
}

func openBackend(ctx context.Context, cfg *config.Config, zl *zap.Logger) (backend, func(), error) {
	switch cfg.Store.Backend {
	case config.BackendMemory:
		store := storage.NewMemoryStore(cfg.Ledger.LockWait)
		if err := seedDemoCatalog(store); err != nil {
			return nil, nil, err
		}
		zl.Warn("using in-memory store, data is lost on exit")
		return store, func() {}, nil
	default:
		dsn := cfg.MySQL.DSN()
		if cfg.MySQL.AutoMigrate {
			if err := storage.Migrate(dsn, zl.Named("migrate")); err != nil {
				return nil, nil, err
			}
		}

		db, err := sql.Open("mysql", dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("open mysql: %w", err)
		}
		db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("ping mysql: %w", err)
		}
		zl.Info("connected to mysql",
			zap.String("host", cfg.MySQL.Host),
			zap.String("database", cfg.MySQL.DBName),
		)
		return storage.NewMySQLStore(db), func() { db.Close() }, nil
	}
}

func seedDemoCatalog(store *storage.MemoryStore) error {
	store.PutCustomer(domain.Customer{ID: "demo-customer"})
	products := []domain.Product{
		{ID: "sku-keyboard", Name: "Mechanical keyboard", Price: decimal.RequireFromString("89.00"), Quantity: 50},
		{ID: "sku-mouse", Name: "Wireless mouse", Price: decimal.RequireFromString("24.50"), Quantity: 120},
		{ID: "sku-monitor", Name: "27in monitor", Price: decimal.RequireFromString("229.99"), Quantity: 10},
	}
	for _, p := range products {
		if err := store.PutProduct(p); err != nil {
			return err
		}
	}
	return nil
}
