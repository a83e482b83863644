package memory

import (
	"context"
	"sync"
	"time"

	"mailsync/backend/internal/domain"
	"mailsync/backend/internal/storage"
)

// Store 使用内存保存账户与缓存数据，主要用于开发验证与测试。
type Store struct {
	mu        sync.RWMutex
	accounts  map[string]*domain.Account // accountID -> account
	byEmail   map[string]string          // email -> accountID
	results   map[string]*resultEntry    // accountID -> 缓存的拉取结果
	rateLimit map[string]*rateLimitEntry // key -> 计数

	nextCleanup time.Time // 下次清理过期限流计数的时间
}

// resultEntry 拉取结果缓存条目
type resultEntry struct {
	Messages  []domain.Message
	ExpiresAt time.Time
}

// rateLimitEntry 限流计数条目
type rateLimitEntry struct {
	Count     int64
	ExpiresAt time.Time
}

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		accounts:    make(map[string]*domain.Account),
		byEmail:     make(map[string]string),
		results:     make(map[string]*resultEntry),
		rateLimit:   make(map[string]*rateLimitEntry),
		nextCleanup: time.Now().Add(time.Minute),
	}
}

// SaveAccount 保存新账户，邮箱地址冲突时返回 ErrAccountExists。
func (s *Store) SaveAccount(account *domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[account.Email]; ok {
		return storage.ErrAccountExists
	}

	clone := *account
	s.accounts[account.ID] = &clone
	s.byEmail[account.Email] = account.ID
	return nil
}

// GetAccount 按 ID 获取账户。
func (s *Store) GetAccount(id string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[id]
	if !ok {
		return nil, storage.ErrAccountNotFound
	}
	clone := *account
	return &clone, nil
}

// GetAccountByEmail 按邮箱地址获取账户。
func (s *Store) GetAccountByEmail(email string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, storage.ErrAccountNotFound
	}
	clone := *s.accounts[id]
	return &clone, nil
}

// ListAccounts 列出全部账户。
func (s *Store) ListAccounts() ([]domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Account, 0, len(s.accounts))
	for _, account := range s.accounts {
		out = append(out, *account)
	}
	return out, nil
}

// ListSyncEnabledAccounts 列出启用后台同步的账户。
func (s *Store) ListSyncEnabledAccounts() ([]domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Account, 0, len(s.accounts))
	for _, account := range s.accounts {
		if account.SyncEnabled {
			out = append(out, *account)
		}
	}
	return out, nil
}

// UpdateAccount 更新账户，不存在时返回 ErrAccountNotFound。
func (s *Store) UpdateAccount(account *domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.accounts[account.ID]
	if !ok {
		return storage.ErrAccountNotFound
	}

	// 邮箱地址变更时维护反向索引
	if existing.Email != account.Email {
		if _, taken := s.byEmail[account.Email]; taken {
			return storage.ErrAccountExists
		}
		delete(s.byEmail, existing.Email)
		s.byEmail[account.Email] = account.ID
	}

	clone := *account
	s.accounts[account.ID] = &clone
	return nil
}

// DeleteAccount 删除账户及其缓存结果。
func (s *Store) DeleteAccount(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[id]
	if !ok {
		return storage.ErrAccountNotFound
	}

	delete(s.byEmail, account.Email)
	delete(s.accounts, id)
	delete(s.results, id)
	return nil
}

// MarkSynced 更新账户的最近同步时间。
func (s *Store) MarkSynced(id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[id]
	if !ok {
		return storage.ErrAccountNotFound
	}
	account.LastSyncAt = &at
	account.UpdatedAt = at
	return nil
}

// GetMessages 获取账户的缓存拉取结果；过期视为未命中。
func (s *Store) GetMessages(_ context.Context, accountID string) ([]domain.Message, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.results[accountID]
	if !ok || time.Now().After(entry.ExpiresAt) {
		return nil, false, nil
	}

	out := make([]domain.Message, len(entry.Messages))
	copy(out, entry.Messages)
	return out, true, nil
}

// SetMessages 缓存账户的拉取结果。
func (s *Store) SetMessages(_ context.Context, accountID string, messages []domain.Message, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := make([]domain.Message, len(messages))
	copy(clone, messages)
	s.results[accountID] = &resultEntry{
		Messages:  clone,
		ExpiresAt: time.Now().Add(ttl),
	}
	return nil
}

// InvalidateMessages 使账户的缓存结果失效。
func (s *Store) InvalidateMessages(_ context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.results, accountID)
	return nil
}

// IncrementRateLimit 自增限流计数，窗口过期后重新计数。
func (s *Store) IncrementRateLimit(key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.cleanupRateLimitsLocked(now)

	entry, ok := s.rateLimit[key]
	if !ok || now.After(entry.ExpiresAt) {
		entry = &rateLimitEntry{ExpiresAt: now.Add(window)}
		s.rateLimit[key] = entry
	}
	entry.Count++
	return entry.Count, nil
}

// GetRateLimit 获取限流计数。
func (s *Store) GetRateLimit(key string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.rateLimit[key]
	if !ok || time.Now().After(entry.ExpiresAt) {
		return 0, nil
	}
	return entry.Count, nil
}

// cleanupRateLimitsLocked 定期清理过期的限流计数，调用方需持有写锁。
func (s *Store) cleanupRateLimitsLocked(now time.Time) {
	if now.Before(s.nextCleanup) {
		return
	}
	for key, entry := range s.rateLimit {
		if now.After(entry.ExpiresAt) {
			delete(s.rateLimit, key)
		}
	}
	s.nextCleanup = now.Add(time.Minute)
}

// Close 关闭存储（内存实现为空操作）。
func (s *Store) Close() error { return nil }

// Health 健康检查（内存实现永远健康）。
func (s *Store) Health() error { return nil }
