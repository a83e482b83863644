package storage

import (
	"context"
	"errors"
	"time"

	"mailsync/backend/internal/domain"
)

var (
	// ErrAccountNotFound 账户未找到错误
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountExists 账户邮箱地址已存在错误
	ErrAccountExists = errors.New("account already exists")
)

// AccountRepository 定义账户数据存取操作。
type AccountRepository interface {
	SaveAccount(account *domain.Account) error
	GetAccount(id string) (*domain.Account, error)
	GetAccountByEmail(email string) (*domain.Account, error)
	ListAccounts() ([]domain.Account, error)
	ListSyncEnabledAccounts() ([]domain.Account, error)
	UpdateAccount(account *domain.Account) error
	DeleteAccount(id string) error
	MarkSynced(id string, at time.Time) error
}

// ResultCache 定义拉取结果的短期缓存操作。
//
// 缓存的是一个账户的完整归一化邮件列表（未分页），
// 过期或失效后回源到 IMAP 全量拉取。
type ResultCache interface {
	GetMessages(ctx context.Context, accountID string) ([]domain.Message, bool, error)
	SetMessages(ctx context.Context, accountID string, messages []domain.Message, ttl time.Duration) error
	InvalidateMessages(ctx context.Context, accountID string) error
}

// RateLimitRepository 定义限流计数操作。
type RateLimitRepository interface {
	IncrementRateLimit(key string, window time.Duration) (int64, error)
	GetRateLimit(key string) (int64, error)
}

// Store 定义完整的存储接口。
type Store interface {
	AccountRepository
	ResultCache
	RateLimitRepository

	Close() error
	Health() error
}
