package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailsync/backend/internal/config"
	"mailsync/backend/internal/health"
	"mailsync/backend/internal/imapfetch"
	"mailsync/backend/internal/logger"
	"mailsync/backend/internal/monitoring"
	"mailsync/backend/internal/service"
	"mailsync/backend/internal/smtpout"
	"mailsync/backend/internal/storage"
	"mailsync/backend/internal/storage/hybrid"
	"mailsync/backend/internal/storage/memory"
	"mailsync/backend/internal/storage/redis"
	sqlstore "mailsync/backend/internal/storage/sql"
	httptransport "mailsync/backend/internal/transport/http"
)

// main 是邮件同步 API 服务的程序入口。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 设置 Gin 模式（基于开发环境标志）
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// 初始化日志系统
	log, err := logger.NewLogger(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()
	log.Info("starting mailsync API server",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
	)

	// 初始化存储层：账户库与结果缓存可独立选择后端
	store, err := buildStore(cfg, log)
	if err != nil {
		log.Fatal("failed to initialize storage", zap.Error(err))
	}
	defer store.Close()

	// 初始化监控与健康检查
	metrics := monitoring.NewMetrics()
	healthChecker := health.NewHealthChecker(store, log)

	// 初始化邮件管道
	fetcher := imapfetch.NewFetcher(store, cfg.IMAP, log)
	sender := smtpout.NewSender(log)

	// 初始化服务层
	fetchService := service.NewFetchService(fetcher, store, store, cfg.Sync.CacheTTL, metrics, log)
	messageService := service.NewMessageService(fetcher, sender, store, store, fetchService, metrics, log)
	accountService := service.NewAccountService(store, store, log)

	// 信号处理
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 后台同步循环
	if cfg.Sync.Interval > 0 {
		syncer := service.NewSyncer(fetcher, store, store, service.SyncerConfig{
			Interval:   cfg.Sync.Interval,
			Workers:    cfg.Sync.Workers,
			RatePerMin: cfg.Sync.RatePerMin,
			CacheTTL:   cfg.Sync.CacheTTL,
		}, metrics, log)
		go syncer.Run(ctx)
		log.Info("background syncer started",
			zap.Duration("interval", cfg.Sync.Interval),
			zap.Int("workers", cfg.Sync.Workers),
		)
	}

	// 创建 HTTP 路由
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:         cfg,
		AccountService: accountService,
		FetchService:   fetchService,
		MessageService: messageService,
		Store:          store,
		Metrics:        metrics,
		Health:         healthChecker,
		Logger:         log,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// 启动 HTTP 服务器
	go func() {
		log.Info("API server listening", zap.String("address", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received, gracefully shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", zap.Error(err))
	} else {
		log.Info("server stopped cleanly")
	}
}

// buildStore 按配置组装存储后端。
//
// 账户库：database.type 为空时用内存，否则走 SQL；
// 结果缓存与限流计数：redis.enabled 时走 Redis，否则用内存。
// 两个后端任一非内存时用 hybrid 组合。
func buildStore(cfg *config.Config, log *zap.Logger) (storage.Store, error) {
	mem := memory.NewStore()

	var accounts hybrid.AccountBackend = mem
	if cfg.Database.Type != "" {
		sqlStore, err := sqlstore.NewStore(
			cfg.Database.Type,
			cfg.Database.DSN,
			cfg.Database.MaxOpenConns,
			cfg.Database.MaxIdleConns,
			cfg.Database.ConnMaxLifetime,
		)
		if err != nil {
			return nil, fmt.Errorf("open %s account store: %w", cfg.Database.Type, err)
		}
		accounts = sqlStore
		log.Info("using SQL account store", zap.String("type", cfg.Database.Type))
	}

	var cache hybrid.CacheBackend = mem
	if cfg.Redis.Enabled {
		client, err := redis.New(&cfg.Redis, log)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		cache = redis.NewCache(client)
		log.Info("using redis result cache", zap.String("address", cfg.Redis.Address))
	}

	if cfg.Database.Type == "" && !cfg.Redis.Enabled {
		log.Info("using memory storage")
		return mem, nil
	}
	return hybrid.New(accounts, cache), nil
}
