package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mailsync/backend/internal/domain"
	"mailsync/backend/internal/storage"
	"mailsync/backend/internal/storage/memory"
)

func validAccount() *domain.Account {
	return &domain.Account{
		Email:      "alice@example.com",
		Password:   "secret",
		IMAPHost:   "imap.example.com",
		IMAPPort:   993,
		IMAPSecure: true,
	}
}

func TestAccountServiceCreate(t *testing.T) {
	newService := func() (*AccountService, *memory.Store) {
		store := memory.NewStore()
		return NewAccountService(store, store, zap.NewNop()), store
	}

	t.Run("创建账户自动分配ID和时间戳", func(t *testing.T) {
		svc, _ := newService()

		created, err := svc.CreateAccount(validAccount())
		require.NoError(t, err)

		assert.NotEmpty(t, created.ID)
		assert.False(t, created.CreatedAt.IsZero())
	})

	t.Run("非法邮箱地址被拒绝", func(t *testing.T) {
		svc, _ := newService()

		account := validAccount()
		account.Email = "not-an-email"
		_, err := svc.CreateAccount(account)
		assert.ErrorIs(t, err, domain.ErrInvalidEmail)
	})

	t.Run("缺少密码被拒绝", func(t *testing.T) {
		svc, _ := newService()

		account := validAccount()
		account.Password = ""
		_, err := svc.CreateAccount(account)
		assert.ErrorIs(t, err, domain.ErrMissingPassword)
	})

	t.Run("重复邮箱地址被拒绝", func(t *testing.T) {
		svc, _ := newService()

		_, err := svc.CreateAccount(validAccount())
		require.NoError(t, err)
		_, err = svc.CreateAccount(validAccount())
		assert.ErrorIs(t, err, storage.ErrAccountExists)
	})
}

func TestAccountServiceUpdate(t *testing.T) {
	t.Run("更新时空密码保留原密码", func(t *testing.T) {
		store := memory.NewStore()
		svc := NewAccountService(store, store, zap.NewNop())

		created, err := svc.CreateAccount(validAccount())
		require.NoError(t, err)

		update := *created
		update.Password = ""
		update.IMAPHost = "imap2.example.com"

		updated, err := svc.UpdateAccount(&update)
		require.NoError(t, err)
		assert.Equal(t, "imap2.example.com", updated.IMAPHost)
		assert.Equal(t, "secret", updated.Password)
	})

	t.Run("更新不存在的账户返回未找到", func(t *testing.T) {
		store := memory.NewStore()
		svc := NewAccountService(store, store, zap.NewNop())

		account := validAccount()
		account.ID = "missing"
		_, err := svc.UpdateAccount(account)
		assert.ErrorIs(t, err, storage.ErrAccountNotFound)
	})
}

func TestAccountServiceDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("删除账户连带清掉拉取缓存", func(t *testing.T) {
		store := memory.NewStore()
		svc := NewAccountService(store, store, zap.NewNop())

		created, err := svc.CreateAccount(validAccount())
		require.NoError(t, err)
		require.NoError(t, store.SetMessages(ctx, created.ID, []domain.Message{{UID: 1}}, time.Minute))

		require.NoError(t, svc.DeleteAccount(ctx, created.ID))

		_, err = svc.GetAccount(created.ID)
		assert.ErrorIs(t, err, storage.ErrAccountNotFound)

		_, ok, err := store.GetMessages(ctx, created.ID)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
