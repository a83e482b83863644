package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mailsync/backend/internal/domain"
	"mailsync/backend/internal/storage"
)

// AccountService 账户管理服务
type AccountService struct {
	accounts storage.AccountRepository
	cache    storage.ResultCache
	log      *zap.Logger
}

// NewAccountService 创建账户管理服务
func NewAccountService(accounts storage.AccountRepository, cache storage.ResultCache, log *zap.Logger) *AccountService {
	return &AccountService{
		accounts: accounts,
		cache:    cache,
		log:      log,
	}
}

// CreateAccount 校验并创建邮箱账户。
func (s *AccountService) CreateAccount(account *domain.Account) (*domain.Account, error) {
	if err := domain.ValidateAccount(account); err != nil {
		return nil, err
	}

	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now

	if err := s.accounts.SaveAccount(account); err != nil {
		return nil, fmt.Errorf("save account: %w", err)
	}

	s.log.Info("account created",
		zap.String("id", account.ID),
		zap.String("email", account.Email),
	)

	return account, nil
}

// GetAccount 按 ID 获取账户。
func (s *AccountService) GetAccount(id string) (*domain.Account, error) {
	return s.accounts.GetAccount(id)
}

// ListAccounts 列出全部账户。
func (s *AccountService) ListAccounts() ([]domain.Account, error) {
	return s.accounts.ListAccounts()
}

// UpdateAccount 更新账户配置。
//
// 请求中密码为空时保留原密码，避免客户端必须回传明文凭据。
func (s *AccountService) UpdateAccount(account *domain.Account) (*domain.Account, error) {
	existing, err := s.accounts.GetAccount(account.ID)
	if err != nil {
		return nil, err
	}

	if account.Password == "" {
		account.Password = existing.Password
	}
	account.CreatedAt = existing.CreatedAt
	account.UpdatedAt = time.Now().UTC()
	account.LastSyncAt = existing.LastSyncAt

	if err := domain.ValidateAccount(account); err != nil {
		return nil, err
	}

	if err := s.accounts.UpdateAccount(account); err != nil {
		return nil, fmt.Errorf("update account: %w", err)
	}

	return account, nil
}

// DeleteAccount 删除账户并清掉它的拉取缓存。
func (s *AccountService) DeleteAccount(ctx context.Context, id string) error {
	if err := s.accounts.DeleteAccount(id); err != nil {
		return err
	}

	if err := s.cache.InvalidateMessages(ctx, id); err != nil {
		s.log.Warn("invalidate cache after account delete failed",
			zap.String("account_id", id),
			zap.Error(err),
		)
	}

	s.log.Info("account deleted", zap.String("id", id))
	return nil
}
