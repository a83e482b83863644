package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mailsync/backend/internal/domain"
	"mailsync/backend/internal/storage"
	"mailsync/backend/internal/storage/memory"
)

// fakeFetcher 可编程的拉取实现，记录调用次数
type fakeFetcher struct {
	messages []domain.Message
	err      error
	calls    int32
}

func (f *fakeFetcher) FetchAll(_ context.Context, _ string) ([]domain.Message, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.Message, len(f.messages))
	copy(out, f.messages)
	return out, nil
}

func testAccount(t *testing.T, store *memory.Store) *domain.Account {
	t.Helper()
	account := &domain.Account{
		ID:       "acc-1",
		Email:    "alice@example.com",
		Password: "secret",
		IMAPHost: "imap.example.com",
		IMAPPort: 993,
	}
	require.NoError(t, store.SaveAccount(account))
	return account
}

func sampleMessages(base time.Time) []domain.Message {
	return []domain.Message{
		{UID: 3, Mailbox: domain.MailboxInbox, From: "bob@example.com", Subject: "newest", Text: "hello world", Date: base.Add(2 * time.Hour)},
		{UID: 2, Mailbox: domain.MailboxSent, From: "alice@example.com", Subject: "middle", Text: "sent mail", Date: base.Add(time.Hour), IsRead: true},
		{UID: 1, Mailbox: domain.MailboxInbox, From: "carol@example.com", Subject: "oldest", Text: "archive", Date: base},
	}
}

func TestFetchServiceListMessages(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	newService := func(fetcher *fakeFetcher) (*FetchService, *memory.Store) {
		store := memory.NewStore()
		svc := NewFetchService(fetcher, store, store, time.Minute, nil, zap.NewNop())
		return svc, store
	}

	t.Run("未命中缓存时回源并按日期降序返回", func(t *testing.T) {
		fetcher := &fakeFetcher{messages: sampleMessages(base)}
		svc, store := newService(fetcher)
		testAccount(t, store)

		page, err := svc.ListMessages(ctx, "acc-1", 1, 50, "")
		require.NoError(t, err)

		require.Len(t, page.Messages, 3)
		assert.Equal(t, uint32(3), page.Messages[0].UID)
		assert.Equal(t, uint32(2), page.Messages[1].UID)
		assert.Equal(t, uint32(1), page.Messages[2].UID)
		assert.False(t, page.HasMore)
		assert.Equal(t, int32(1), fetcher.calls)
	})

	t.Run("命中缓存时不再触发拉取", func(t *testing.T) {
		fetcher := &fakeFetcher{messages: sampleMessages(base)}
		svc, store := newService(fetcher)
		testAccount(t, store)

		_, err := svc.ListMessages(ctx, "acc-1", 1, 50, "")
		require.NoError(t, err)
		_, err = svc.ListMessages(ctx, "acc-1", 1, 50, "")
		require.NoError(t, err)

		assert.Equal(t, int32(1), fetcher.calls)
	})

	t.Run("回源成功后更新最近同步时间", func(t *testing.T) {
		fetcher := &fakeFetcher{messages: sampleMessages(base)}
		svc, store := newService(fetcher)
		testAccount(t, store)

		_, err := svc.ListMessages(ctx, "acc-1", 1, 50, "")
		require.NoError(t, err)

		account, err := store.GetAccount("acc-1")
		require.NoError(t, err)
		require.NotNil(t, account.LastSyncAt)
	})

	t.Run("分页和hasMore按过滤后的列表计算", func(t *testing.T) {
		fetcher := &fakeFetcher{messages: sampleMessages(base)}
		svc, store := newService(fetcher)
		testAccount(t, store)

		first, err := svc.ListMessages(ctx, "acc-1", 1, 2, "")
		require.NoError(t, err)
		assert.Len(t, first.Messages, 2)
		assert.True(t, first.HasMore)

		second, err := svc.ListMessages(ctx, "acc-1", 2, 2, "")
		require.NoError(t, err)
		assert.Len(t, second.Messages, 1)
		assert.False(t, second.HasMore)
	})

	t.Run("超出范围的页码返回空列表", func(t *testing.T) {
		fetcher := &fakeFetcher{messages: sampleMessages(base)}
		svc, store := newService(fetcher)
		testAccount(t, store)

		page, err := svc.ListMessages(ctx, "acc-1", 10, 50, "")
		require.NoError(t, err)
		assert.Empty(t, page.Messages)
		assert.False(t, page.HasMore)
	})

	t.Run("搜索对发件人主题和正文大小写不敏感", func(t *testing.T) {
		fetcher := &fakeFetcher{messages: sampleMessages(base)}
		svc, store := newService(fetcher)
		testAccount(t, store)

		page, err := svc.ListMessages(ctx, "acc-1", 1, 50, "HELLO")
		require.NoError(t, err)
		require.Len(t, page.Messages, 1)
		assert.Equal(t, uint32(3), page.Messages[0].UID)

		page, err = svc.ListMessages(ctx, "acc-1", 1, 50, "carol")
		require.NoError(t, err)
		require.Len(t, page.Messages, 1)
		assert.Equal(t, uint32(1), page.Messages[0].UID)
	})

	t.Run("非法分页参数回退到默认值", func(t *testing.T) {
		fetcher := &fakeFetcher{messages: sampleMessages(base)}
		svc, store := newService(fetcher)
		testAccount(t, store)

		page, err := svc.ListMessages(ctx, "acc-1", 0, -5, "")
		require.NoError(t, err)
		assert.Len(t, page.Messages, 3)
	})

	t.Run("账户不存在时拉取错误原样上抛", func(t *testing.T) {
		fetcher := &fakeFetcher{err: storage.ErrAccountNotFound}
		svc, _ := newService(fetcher)

		_, err := svc.ListMessages(ctx, "missing", 1, 50, "")
		assert.ErrorIs(t, err, storage.ErrAccountNotFound)
	})
}

func TestFetchServiceRefresh(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	t.Run("强制刷新绕过缓存", func(t *testing.T) {
		fetcher := &fakeFetcher{messages: sampleMessages(base)}
		store := memory.NewStore()
		svc := NewFetchService(fetcher, store, store, time.Minute, nil, zap.NewNop())
		testAccount(t, store)

		_, err := svc.ListMessages(ctx, "acc-1", 1, 50, "")
		require.NoError(t, err)

		_, err = svc.Refresh(ctx, "acc-1")
		require.NoError(t, err)

		assert.Equal(t, int32(2), fetcher.calls)
	})

	t.Run("拉取失败时错误上抛且不写缓存", func(t *testing.T) {
		fetcher := &fakeFetcher{err: errors.New("imap down")}
		store := memory.NewStore()
		svc := NewFetchService(fetcher, store, store, time.Minute, nil, zap.NewNop())
		testAccount(t, store)

		_, err := svc.Refresh(ctx, "acc-1")
		assert.Error(t, err)

		_, ok, err := store.GetMessages(ctx, "acc-1")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
