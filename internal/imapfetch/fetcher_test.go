package imapfetch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mailsync/backend/internal/config"
	"mailsync/backend/internal/domain"
	"mailsync/backend/internal/storage"
	"mailsync/backend/internal/storage/memory"
)

// fakeSession 以内存数据模拟一次 IMAP 会话
type fakeSession struct {
	folders   map[string][]*imap.Message
	fetchErr  map[string]error
	selected  string
	selects   []string
	stored    []interface{}
	expunged  bool
	loggedOut bool
}

func (s *fakeSession) Select(name string, _ bool) (*imap.MailboxStatus, error) {
	s.selects = append(s.selects, name)
	messages, ok := s.folders[name]
	if !ok {
		return nil, errors.New("no such mailbox")
	}
	s.selected = name
	return &imap.MailboxStatus{Name: name, Messages: uint32(len(messages))}, nil
}

func (s *fakeSession) Fetch(_ *imap.SeqSet, _ []imap.FetchItem, ch chan *imap.Message) error {
	defer close(ch)
	if err := s.fetchErr[s.selected]; err != nil {
		return err
	}
	for _, msg := range s.folders[s.selected] {
		ch <- msg
	}
	return nil
}

func (s *fakeSession) UidFetch(_ *imap.SeqSet, _ []imap.FetchItem, ch chan *imap.Message) error {
	close(ch)
	return nil
}

func (s *fakeSession) UidStore(_ *imap.SeqSet, _ imap.StoreItem, value interface{}, _ chan *imap.Message) error {
	s.stored = append(s.stored, value)
	return nil
}

func (s *fakeSession) Expunge(_ chan uint32) error {
	s.expunged = true
	return nil
}

func (s *fakeSession) Logout() error {
	s.loggedOut = true
	return nil
}

// newTestFetcher 构建指向 fakeSession 的拉取器并统计拨号次数。
func newTestFetcher(t *testing.T, fake *fakeSession) (*Fetcher, *int) {
	t.Helper()

	store := memory.NewStore()
	require.NoError(t, store.SaveAccount(&domain.Account{
		ID:         "acc-1",
		Email:      "a@example.com",
		Password:   "secret",
		IMAPHost:   "imap.example.com",
		IMAPPort:   993,
		IMAPSecure: true,
	}))

	cfg := config.IMAPConfig{
		DialTimeout:    time.Second,
		SentCandidates: []string{"Sent", "Sent Items", "INBOX.Sent", "INBOX.Sent Items"},
	}
	f := NewFetcher(store, cfg, zap.NewNop())

	dials := 0
	f.dial = func(_ *domain.Account) (session, error) {
		dials++
		return fake, nil
	}
	return f, &dials
}

func imapMsg(uid uint32, date time.Time, subject string, flags ...string) *imap.Message {
	return &imap.Message{
		Uid:   uid,
		Flags: flags,
		Envelope: &imap.Envelope{
			Subject: subject,
			Date:    date,
			From: []*imap.Address{
				{MailboxName: "alice", HostName: "example.com"},
			},
		},
	}
}

func TestFetchAll(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("账户不存在时在任何网络IO之前失败", func(t *testing.T) {
		fetcher, dials := newTestFetcher(t, &fakeSession{})

		_, err := fetcher.FetchAll(ctx, "missing")
		assert.ErrorIs(t, err, storage.ErrAccountNotFound)
		assert.Equal(t, 0, *dials)
	})

	t.Run("没有可用的Sent候选时结果等于收件箱", func(t *testing.T) {
		fake := &fakeSession{
			folders: map[string][]*imap.Message{
				"INBOX": {
					imapMsg(2, base.Add(time.Hour), "second"),
					imapMsg(1, base, "first", imap.SeenFlag),
				},
			},
		}
		fetcher, _ := newTestFetcher(t, fake)

		messages, err := fetcher.FetchAll(ctx, "acc-1")
		require.NoError(t, err)
		require.Len(t, messages, 2)
		for _, m := range messages {
			assert.Equal(t, domain.MailboxInbox, m.Mailbox)
		}

		// 每个候选都被探测过，全部失败不是错误
		assert.Subset(t, fake.selects, []string{"Sent", "Sent Items", "INBOX.Sent", "INBOX.Sent Items"})
		assert.True(t, fake.loggedOut)
	})

	t.Run("第一个可选中的Sent候选生效且邮件一律已读", func(t *testing.T) {
		fake := &fakeSession{
			folders: map[string][]*imap.Message{
				"INBOX":      {imapMsg(1, base, "in")},
				"INBOX.Sent": {imapMsg(10, base.Add(time.Hour), "out")},
			},
		}
		fetcher, _ := newTestFetcher(t, fake)

		messages, err := fetcher.FetchAll(ctx, "acc-1")
		require.NoError(t, err)
		require.Len(t, messages, 2)

		assert.Equal(t, domain.MailboxSent, messages[0].Mailbox)
		// 外发邮件没有 Seen 标志也视为已读
		assert.True(t, messages[0].IsRead)
		assert.False(t, messages[1].IsRead)
	})

	t.Run("合并列表按日期降序交错排列", func(t *testing.T) {
		jan := func(day, hour int) time.Time {
			return time.Date(2026, 1, day, hour, 0, 0, 0, time.UTC)
		}
		fake := &fakeSession{
			folders: map[string][]*imap.Message{
				"INBOX": {
					imapMsg(3, jan(3, 0), "in-3"),
					imapMsg(2, jan(2, 0), "in-2"),
					imapMsg(1, jan(1, 0), "in-1"),
				},
				"Sent": {
					imapMsg(20, jan(2, 12), "out-2"),
					imapMsg(10, jan(1, 12), "out-1"),
				},
			},
		}
		fetcher, _ := newTestFetcher(t, fake)

		messages, err := fetcher.FetchAll(ctx, "acc-1")
		require.NoError(t, err)
		require.Len(t, messages, 5)

		wantSubjects := []string{"in-3", "out-2", "in-2", "out-1", "in-1"}
		for i, m := range messages {
			assert.Equal(t, wantSubjects[i], m.Subject)
		}
	})

	t.Run("INBOX拉取失败时仍然登出会话", func(t *testing.T) {
		fake := &fakeSession{
			folders: map[string][]*imap.Message{
				"INBOX": {imapMsg(1, base, "in")},
			},
			fetchErr: map[string]error{"INBOX": errors.New("connection reset")},
		}
		fetcher, _ := newTestFetcher(t, fake)

		_, err := fetcher.FetchAll(ctx, "acc-1")
		assert.Error(t, err)
		assert.True(t, fake.loggedOut)
	})

	t.Run("Sent拉取失败只回退到收件箱结果", func(t *testing.T) {
		fake := &fakeSession{
			folders: map[string][]*imap.Message{
				"INBOX": {imapMsg(1, base, "in")},
				"Sent":  {imapMsg(10, base, "out")},
			},
			fetchErr: map[string]error{"Sent": errors.New("connection reset")},
		}
		fetcher, _ := newTestFetcher(t, fake)

		messages, err := fetcher.FetchAll(ctx, "acc-1")
		require.NoError(t, err)
		require.Len(t, messages, 1)
		assert.Equal(t, domain.MailboxInbox, messages[0].Mailbox)
	})
}

func TestMutations(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("标记已读走UID存储命令并登出", func(t *testing.T) {
		fake := &fakeSession{
			folders: map[string][]*imap.Message{
				"INBOX": {imapMsg(1, base, "in")},
			},
		}
		fetcher, _ := newTestFetcher(t, fake)

		require.NoError(t, fetcher.MarkSeen(ctx, "acc-1", domain.MailboxInbox, 1))
		require.Len(t, fake.stored, 1)
		assert.Equal(t, []interface{}{imap.SeenFlag}, fake.stored[0])
		assert.True(t, fake.loggedOut)
	})

	t.Run("删除后立即执行expunge", func(t *testing.T) {
		fake := &fakeSession{
			folders: map[string][]*imap.Message{
				"INBOX": {imapMsg(1, base, "in")},
			},
		}
		fetcher, _ := newTestFetcher(t, fake)

		require.NoError(t, fetcher.Delete(ctx, "acc-1", domain.MailboxInbox, 1))
		require.Len(t, fake.stored, 1)
		assert.Equal(t, []interface{}{imap.DeletedFlag}, fake.stored[0])
		assert.True(t, fake.expunged)
	})

	t.Run("无效的文件夹标签不发起连接", func(t *testing.T) {
		fetcher, dials := newTestFetcher(t, &fakeSession{})

		err := fetcher.MarkSeen(ctx, "acc-1", domain.Mailbox("junk"), 1)
		assert.Error(t, err)
		assert.Equal(t, 0, *dials)
	})

	t.Run("Sent文件夹不存在时返回未找到错误", func(t *testing.T) {
		fake := &fakeSession{
			folders: map[string][]*imap.Message{
				"INBOX": {imapMsg(1, base, "in")},
			},
		}
		fetcher, _ := newTestFetcher(t, fake)

		err := fetcher.MarkSeen(ctx, "acc-1", domain.MailboxSent, 10)
		assert.ErrorIs(t, err, ErrFolderNotFound)
	})
}
