package main

import (
	"context"
	"database/sql"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ldhieu/seckill/internal/adapter/handler"
	"github.com/ldhieu/seckill/internal/adapter/storage"
	"github.com/ldhieu/seckill/internal/cache"
	"github.com/ldhieu/seckill/internal/config"
	"github.com/ldhieu/seckill/internal/core/domain"
	"github.com/ldhieu/seckill/internal/core/service"
	"github.com/ldhieu/seckill/internal/idgen"
	"github.com/ldhieu/seckill/internal/lock"
)

func main() {
	configPath := flag.String("config", "config.yml", "path to config file")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// MySQL
	db, err := sql.Open("mysql", cfg.MySQL.DSN())
	if err != nil {
		logger.Fatal("open mysql", zap.Error(err))
	}
	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.MySQL.ConnMaxLifetime) * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		logger.Fatal("ping mysql", zap.Error(err))
	}
	logger.Info("connected to mysql")

	// Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("ping redis", zap.Error(err))
	}
	logger.Info("connected to redis")

	// Adapters and primitives
	redisAdapter := storage.NewRedisAdapter(rdb)
	mysqlAdapter := storage.NewMySQLAdapter(db)
	locker := lock.NewClient(rdb)
	generator := idgen.NewGenerator(rdb)

	rebuildPool := cache.NewPool(cfg.Cache.RebuildWorkers, cfg.Cache.RebuildQueue)
	shopCache := cache.NewClient[domain.Shop](rdb, locker, rebuildPool, logger,
		"cache:shop:", "shop:", cache.Options{
			TTL:     time.Duration(cfg.Cache.TTLMinutes) * time.Minute,
			NullTTL: time.Duration(cfg.Cache.NullTTLMinutes) * time.Minute,
		})

	// Services
	seckillService := service.NewSeckillService(redisAdapter, mysqlAdapter, generator, logger)
	shopService := service.NewShopService(shopCache, mysqlAdapter)

	if cfg.Seckill.DemoVoucherID != 0 {
		now := time.Now()
		voucher := domain.Voucher{
			ID:        cfg.Seckill.DemoVoucherID,
			Title:     "demo voucher",
			Stock:     cfg.Seckill.DemoStock,
			BeginTime: now,
			EndTime:   now.Add(24 * time.Hour),
		}
		if err := seckillService.CreateVoucher(ctx, voucher); err != nil {
			logger.Fatal("seed demo voucher", zap.Error(err))
		}
		logger.Info("seeded demo voucher",
			zap.Int64("voucher_id", voucher.ID), zap.Int64("stock", voucher.Stock))
	}

	// Background order worker
	worker := service.NewOrderWorker(redisAdapter, mysqlAdapter, locker, logger)
	workerCtx, stopWorker := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(workerCtx)
	}()
	logger.Info("order worker started")

	// HTTP server
	httpHandler := handler.NewHTTPHandler(seckillService, shopService, handler.ContextPrincipal{})
	mux := http.NewServeMux()
	mux.HandleFunc("/health", httpHandler.HealthCheck)
	mux.Handle("/api/seckill", handler.WithUser(http.HandlerFunc(httpHandler.Seckill)))
	mux.HandleFunc("/api/shop", httpHandler.Shop)

	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: mux,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("http server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	logger.Info("http server stopped")

	stopWorker()
	wg.Wait()
	logger.Info("order worker stopped")

	rebuildPool.Close()
	rdb.Close()
	db.Close()
	logger.Info("connections closed")
}
