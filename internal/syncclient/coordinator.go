package syncclient

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mailsync/backend/internal/domain"
)

// defaultPageSize 每页默认拉取的邮件数
const defaultPageSize = 50

// API 协调器消费的服务端接口，由 Client 实现。
type API interface {
	ListMessages(ctx context.Context, accountID string, page, limit int, search string) ([]domain.Message, bool, error)
	MarkRead(ctx context.Context, accountID string, ref MessageRef) error
	Delete(ctx context.Context, accountID string, refs []MessageRef) error
	Reply(ctx context.Context, accountID string, ref MessageRef, body string) error
	Send(ctx context.Context, accountID string, mail OutgoingMail) error
}

// Notifier 接收视图变化与同步失败的回调。
type Notifier interface {
	EmailsUpdated(accountID string, messages []domain.Message)
	SyncFailed(accountID string, err error)
}

// Coordinator 客户端同步协调器。
//
// 维护"当前账户的邮件视图"这一份状态。并发拉取用请求纪元做
// 取舍：每次 FetchEmails 递增纪元并取消在途请求，迟到的旧结果
// 即使先于取消返回也会因纪元不匹配被丢弃，保证视图只反映
// 最近一次请求。
//
// 变更操作（已读、删除）采取乐观更新：本地视图立即生效，远端
// 失败不回滚，由下一次全量拉取校正。
type Coordinator struct {
	api      API
	notifier Notifier
	pageSize int
	log      *zap.Logger

	mu       sync.Mutex
	epoch    uint64
	cancel   context.CancelFunc
	account  string
	messages []domain.Message
	pages    map[string]int
	hasMore  map[string]bool
}

// NewCoordinator 创建同步协调器。
func NewCoordinator(api API, notifier Notifier, log *zap.Logger) *Coordinator {
	return &Coordinator{
		api:      api,
		notifier: notifier,
		pageSize: defaultPageSize,
		log:      log,
		pages:    make(map[string]int),
		hasMore:  make(map[string]bool),
	}
}

// FetchEmails 拉取账户第一页邮件并整页替换当前视图。
//
// 再次调用会取消上一次在途拉取；被取代的请求返回 nil，
// 其结果被静默丢弃。
func (c *Coordinator) FetchEmails(ctx context.Context, accountID, search string) error {
	c.mu.Lock()
	c.epoch++
	myEpoch := c.epoch
	if c.cancel != nil {
		c.cancel()
	}
	fetchCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	messages, hasMore, err := c.api.ListMessages(fetchCtx, accountID, 1, c.pageSize, search)

	c.mu.Lock()
	if c.epoch != myEpoch {
		// 已被更新的请求取代，结果作废
		c.mu.Unlock()
		return nil
	}
	if err != nil {
		c.mu.Unlock()
		c.log.Warn("fetch emails failed", zap.String("account_id", accountID), zap.Error(err))
		c.notifier.SyncFailed(accountID, err)
		return err
	}

	// 防御性重排：不信任服务端的排序不漂移
	domain.SortMessagesByDateDesc(messages)

	c.account = accountID
	c.messages = messages
	c.pages[accountID] = 1
	c.hasMore[accountID] = hasMore
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	c.notifier.EmailsUpdated(accountID, snapshot)
	return nil
}

// LoadMore 拉取当前账户的下一页并追加到视图。
//
// 同样参与请求纪元：重叠的加载互相取代，迟到的结果被丢弃，
// 同一页不会被追加两次。
func (c *Coordinator) LoadMore(ctx context.Context, accountID, search string) error {
	c.mu.Lock()
	if c.account != accountID {
		c.mu.Unlock()
		return nil
	}
	c.epoch++
	myEpoch := c.epoch
	if c.cancel != nil {
		c.cancel()
	}
	loadCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	nextPage := c.pages[accountID] + 1
	c.mu.Unlock()

	messages, hasMore, err := c.api.ListMessages(loadCtx, accountID, nextPage, c.pageSize, search)

	c.mu.Lock()
	if c.epoch != myEpoch || c.account != accountID {
		// 已被更新的请求取代，结果作废
		c.mu.Unlock()
		return nil
	}
	if err != nil {
		c.mu.Unlock()
		c.notifier.SyncFailed(accountID, err)
		return err
	}
	c.messages = append(c.messages, messages...)
	domain.SortMessagesByDateDesc(c.messages)
	c.pages[accountID] = nextPage
	c.hasMore[accountID] = hasMore
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	c.notifier.EmailsUpdated(accountID, snapshot)
	return nil
}

// MarkAsRead 乐观标记已读：本地视图立即更新，远端失败只记录。
//
// 视图中已是已读的邮件直接跳过，不发起远端调用，重复标记无副作用。
func (c *Coordinator) MarkAsRead(ctx context.Context, accountID string, ref MessageRef) {
	c.mu.Lock()
	if c.account == accountID {
		for i := range c.messages {
			if c.messages[i].Mailbox == ref.Mailbox && c.messages[i].UID == ref.UID {
				if c.messages[i].IsRead {
					// 已读邮件不需要任何本地或远端动作
					c.mu.Unlock()
					return
				}
				c.messages[i].IsRead = true
				break
			}
		}
	}
	snapshot := c.snapshotLocked()
	active := c.account == accountID
	c.mu.Unlock()

	if active {
		c.notifier.EmailsUpdated(accountID, snapshot)
	}

	if err := c.api.MarkRead(ctx, accountID, ref); err != nil {
		c.log.Warn("mark read failed, local view kept",
			zap.String("account_id", accountID),
			zap.Uint32("uid", ref.UID),
			zap.Error(err),
		)
	}
}

// Delete 乐观删除：立即从本地视图移除，远端失败不回滚，
// 下一次全量拉取校正视图。
func (c *Coordinator) Delete(ctx context.Context, accountID string, refs ...MessageRef) {
	if len(refs) == 0 {
		return
	}

	drop := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		drop[refKey(ref)] = struct{}{}
	}

	c.mu.Lock()
	if c.account == accountID {
		kept := c.messages[:0]
		for _, m := range c.messages {
			if _, gone := drop[refKey(MessageRef{Mailbox: m.Mailbox, UID: m.UID})]; !gone {
				kept = append(kept, m)
			}
		}
		c.messages = kept
	}
	snapshot := c.snapshotLocked()
	active := c.account == accountID
	c.mu.Unlock()

	if active {
		c.notifier.EmailsUpdated(accountID, snapshot)
	}

	if err := c.api.Delete(ctx, accountID, refs); err != nil {
		c.log.Warn("delete failed, local view kept",
			zap.String("account_id", accountID),
			zap.Int("count", len(refs)),
			zap.Error(err),
		)
		c.notifier.SyncFailed(accountID, err)
	}
}

// Reply 回复邮件，成功后在原信下追加一条本地回复记录。
func (c *Coordinator) Reply(ctx context.Context, accountID string, ref MessageRef, body string) error {
	if err := c.api.Reply(ctx, accountID, ref, body); err != nil {
		return err
	}

	reply := domain.Reply{
		ID:        uuid.New().String(),
		Body:      body,
		CreatedAt: time.Now(),
	}

	c.mu.Lock()
	if c.account == accountID {
		for i := range c.messages {
			if c.messages[i].Mailbox == ref.Mailbox && c.messages[i].UID == ref.UID {
				c.messages[i].Replies = append(c.messages[i].Replies, reply)
				break
			}
		}
	}
	snapshot := c.snapshotLocked()
	active := c.account == accountID
	c.mu.Unlock()

	if active {
		c.notifier.EmailsUpdated(accountID, snapshot)
	}
	return nil
}

// Send 以账户身份发送新邮件。
func (c *Coordinator) Send(ctx context.Context, accountID string, mail OutgoingMail) error {
	return c.api.Send(ctx, accountID, mail)
}

// Messages 返回当前视图的快照。
func (c *Coordinator) Messages() []domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// ActiveAccount 返回当前视图对应的账户。
func (c *Coordinator) ActiveAccount() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.account
}

// HasMore 返回指定账户是否还有后续页。分页游标按账户隔离，
// 切换账户不会互相污染。
func (c *Coordinator) HasMore(accountID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasMore[accountID]
}

func (c *Coordinator) snapshotLocked() []domain.Message {
	out := make([]domain.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

func refKey(ref MessageRef) string {
	return string(ref.Mailbox) + "/" + strconv.FormatUint(uint64(ref.UID), 10)
}
