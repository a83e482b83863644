package hybrid

import (
	"context"
	"time"

	"mailsync/backend/internal/domain"
	"mailsync/backend/internal/storage"
)

// AccountBackend 账户持久化后端。
type AccountBackend interface {
	storage.AccountRepository
	Close() error
	Health() error
}

// CacheBackend 拉取结果缓存与限流计数后端。
type CacheBackend interface {
	storage.ResultCache
	storage.RateLimitRepository
	Close() error
	Health() error
}

// Store 组合式存储：账户走持久化后端，缓存与限流走缓存后端。
//
// 两个后端可以是同一个实例（纯内存部署），也可以分别是
// SQL 数据库与 Redis（生产部署）。
type Store struct {
	accounts AccountBackend
	cache    CacheBackend
}

// New 创建组合式存储
func New(accounts AccountBackend, cache CacheBackend) *Store {
	return &Store{accounts: accounts, cache: cache}
}

func (s *Store) SaveAccount(account *domain.Account) error {
	return s.accounts.SaveAccount(account)
}

func (s *Store) GetAccount(id string) (*domain.Account, error) {
	return s.accounts.GetAccount(id)
}

func (s *Store) GetAccountByEmail(email string) (*domain.Account, error) {
	return s.accounts.GetAccountByEmail(email)
}

func (s *Store) ListAccounts() ([]domain.Account, error) {
	return s.accounts.ListAccounts()
}

func (s *Store) ListSyncEnabledAccounts() ([]domain.Account, error) {
	return s.accounts.ListSyncEnabledAccounts()
}

func (s *Store) UpdateAccount(account *domain.Account) error {
	return s.accounts.UpdateAccount(account)
}

func (s *Store) DeleteAccount(id string) error {
	return s.accounts.DeleteAccount(id)
}

func (s *Store) MarkSynced(id string, at time.Time) error {
	return s.accounts.MarkSynced(id, at)
}

func (s *Store) GetMessages(ctx context.Context, accountID string) ([]domain.Message, bool, error) {
	return s.cache.GetMessages(ctx, accountID)
}

func (s *Store) SetMessages(ctx context.Context, accountID string, messages []domain.Message, ttl time.Duration) error {
	return s.cache.SetMessages(ctx, accountID, messages, ttl)
}

func (s *Store) InvalidateMessages(ctx context.Context, accountID string) error {
	return s.cache.InvalidateMessages(ctx, accountID)
}

func (s *Store) IncrementRateLimit(key string, window time.Duration) (int64, error) {
	return s.cache.IncrementRateLimit(key, window)
}

func (s *Store) GetRateLimit(key string) (int64, error) {
	return s.cache.GetRateLimit(key)
}

// Close 依次关闭两个后端，返回首个错误。
func (s *Store) Close() error {
	err := s.accounts.Close()
	if cerr := s.cache.Close(); err == nil {
		err = cerr
	}
	return err
}

// Health 两个后端都健康才算健康。
func (s *Store) Health() error {
	if err := s.accounts.Health(); err != nil {
		return err
	}
	return s.cache.Health()
}
