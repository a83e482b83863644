package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"mailsync/backend/internal/monitoring"
	"mailsync/backend/internal/pool"
	"mailsync/backend/internal/storage"
)

// SyncerConfig 后台同步参数。
type SyncerConfig struct {
	Interval   time.Duration
	Workers    int
	RatePerMin int
	CacheTTL   time.Duration
}

// Syncer 后台同步器：按固定间隔为所有启用同步的账户预热缓存。
//
// 每轮把账户逐个投入协程池并发拉取，全局限速器约束对上游
// IMAP 服务器的会话建立频率。单个账户失败不影响本轮其他账户。
type Syncer struct {
	fetcher  MailboxFetcher
	accounts storage.AccountRepository
	cache    storage.ResultCache
	cfg      SyncerConfig
	limiter  *rate.Limiter
	metrics  *monitoring.Metrics
	log      *zap.Logger
}

// NewSyncer 创建后台同步器。metrics 可以为 nil。
func NewSyncer(fetcher MailboxFetcher, accounts storage.AccountRepository, cache storage.ResultCache, cfg SyncerConfig, metrics *monitoring.Metrics, log *zap.Logger) *Syncer {
	if cfg.Workers < 1 {
		cfg.Workers = 2
	}
	if cfg.RatePerMin < 1 {
		cfg.RatePerMin = 30
	}

	return &Syncer{
		fetcher:  fetcher,
		accounts: accounts,
		cache:    cache,
		cfg:      cfg,
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RatePerMin)), 1),
		metrics:  metrics,
		log:      log,
	}
}

// Run 阻塞运行同步循环，直到 ctx 取消。
func (s *Syncer) Run(ctx context.Context) {
	workers := pool.NewWorkerPool(s.cfg.Workers, s.cfg.Workers*2, s.log)
	workers.Start(ctx)
	defer workers.Stop()

	s.log.Info("background syncer started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Int("workers", s.cfg.Workers),
		zap.Int("rate_per_min", s.cfg.RatePerMin),
	)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	// 启动后先跑一轮，不等第一个 tick
	s.syncAll(ctx, workers)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("background syncer stopped")
			return
		case <-ticker.C:
			s.syncAll(ctx, workers)
		}
	}
}

// syncAll 同步所有启用同步的账户，等待本轮全部完成。
func (s *Syncer) syncAll(ctx context.Context, workers *pool.WorkerPool) {
	accounts, err := s.accounts.ListSyncEnabledAccounts()
	if err != nil {
		s.log.Error("list sync-enabled accounts failed", zap.Error(err))
		return
	}
	if s.metrics != nil {
		s.metrics.UpdateSyncAccounts(len(accounts))
	}
	if len(accounts) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, account := range accounts {
		account := account
		wg.Add(1)
		workers.Submit(func() {
			defer wg.Done()
			s.syncAccount(ctx, account.ID, account.Email)
		})
	}
	wg.Wait()
}

// syncAccount 拉取单个账户并回填缓存。
func (s *Syncer) syncAccount(ctx context.Context, accountID, email string) {
	if err := s.limiter.Wait(ctx); err != nil {
		return
	}

	start := time.Now()
	messages, err := s.fetcher.FetchAll(ctx, accountID)
	if err != nil {
		s.log.Warn("sync account failed",
			zap.String("account_id", accountID),
			zap.String("email", email),
			zap.Error(err),
		)
		if s.metrics != nil {
			s.metrics.RecordSyncRun("error")
			s.metrics.RecordFetch("syncer", "error", 0, time.Since(start))
		}
		return
	}

	if err := s.cache.SetMessages(ctx, accountID, messages, s.cfg.CacheTTL); err != nil {
		s.log.Warn("write fetch cache failed",
			zap.String("account_id", accountID),
			zap.Error(err),
		)
	}
	if err := s.accounts.MarkSynced(accountID, time.Now().UTC()); err != nil {
		s.log.Warn("mark account synced failed",
			zap.String("account_id", accountID),
			zap.Error(err),
		)
	}

	if s.metrics != nil {
		s.metrics.RecordSyncRun("ok")
		s.metrics.RecordFetch("syncer", "ok", len(messages), time.Since(start))
	}

	s.log.Debug("account synced",
		zap.String("account_id", accountID),
		zap.Int("messages", len(messages)),
		zap.Duration("took", time.Since(start)),
	)
}
