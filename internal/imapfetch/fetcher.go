package imapfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"go.uber.org/zap"

	"mailsync/backend/internal/config"
	"mailsync/backend/internal/domain"
	"mailsync/backend/internal/mailparse"
	"mailsync/backend/internal/storage"
)

var (
	// ErrFolderNotFound 目标文件夹在服务器上不存在
	ErrFolderNotFound = errors.New("mail folder not found")
	// ErrMessageNotFound 指定 UID 的邮件不存在
	ErrMessageNotFound = errors.New("message not found")
	// ErrAttachmentNotFound 指定部分的附件不存在
	ErrAttachmentNotFound = errors.New("attachment not found")
)

// session 是一次已认证 IMAP 会话上用到的命令子集，
// 由 *client.Client 满足。
type session interface {
	Select(name string, readOnly bool) (*imap.MailboxStatus, error)
	Fetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error
	UidFetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error
	UidStore(seqset *imap.SeqSet, item imap.StoreItem, value interface{}, ch chan *imap.Message) error
	Expunge(ch chan uint32) error
	Logout() error
}

// Fetcher 负责 IMAP 会话与邮件归一化。
//
// 每次调用建立并完整销毁一个会话：不做会话池化，也不跨调用
// 复用连接。账户仓库通过构造函数注入，Fetcher 自身无全局状态。
type Fetcher struct {
	accounts       storage.AccountRepository
	cfg            config.IMAPConfig
	sentCandidates []string
	dial           func(account *domain.Account) (session, error)
	log            *zap.Logger
}

// NewFetcher 创建邮箱拉取器。
func NewFetcher(accounts storage.AccountRepository, cfg config.IMAPConfig, log *zap.Logger) *Fetcher {
	f := &Fetcher{
		accounts:       accounts,
		cfg:            cfg,
		sentCandidates: cfg.SentCandidates,
		log:            log,
	}
	f.dial = f.connect
	return f
}

// FetchAll 拉取账户 INBOX 与 Sent 文件夹的全部邮件，
// 归一化后按时间降序返回单一合并列表。
//
// 账户解析失败是致命错误，发生在任何网络 I/O 之前；
// Sent 文件夹探测失败只跳过 Sent，不影响 INBOX 结果。
func (f *Fetcher) FetchAll(ctx context.Context, accountID string) ([]domain.Message, error) {
	account, err := f.accounts.GetAccount(accountID)
	if err != nil {
		return nil, fmt.Errorf("resolve account %q: %w", accountID, err)
	}

	conn, err := f.dial(account)
	if err != nil {
		return nil, err
	}
	// 无论处理了几个文件夹、中途是否出错，都保证会话登出
	defer f.logout(conn, account.Email)

	inbox, err := f.fetchFolder(ctx, conn, "INBOX", domain.MailboxInbox, false)
	if err != nil {
		return nil, fmt.Errorf("fetch INBOX: %w", err)
	}

	messages := inbox

	// Sent 文件夹命名没有统一约定，逐个候选探测，全部失败不算错误
	if sentFolder, ok := f.probeSentFolder(conn); ok {
		// 外发邮件按约定一律视为已读
		sent, err := f.fetchFolder(ctx, conn, sentFolder, domain.MailboxSent, true)
		if err != nil {
			f.log.Warn("fetch sent folder failed, continuing with inbox only",
				zap.String("account", account.Email),
				zap.String("folder", sentFolder),
				zap.Error(err),
			)
		} else {
			messages = append(messages, sent...)
		}
	}

	domain.SortMessagesByDateDesc(messages)
	return messages, nil
}

// MarkSeen 为指定邮件添加已读标志。
func (f *Fetcher) MarkSeen(ctx context.Context, accountID string, mailbox domain.Mailbox, uid uint32) error {
	return f.withFolder(ctx, accountID, mailbox, func(conn session) error {
		seqset := new(imap.SeqSet)
		seqset.AddNum(uid)
		item := imap.FormatFlagsOp(imap.AddFlags, true)
		return conn.UidStore(seqset, item, []interface{}{imap.SeenFlag}, nil)
	})
}

// Delete 从远端文件夹删除指定邮件（打删除标志后立即 expunge）。
func (f *Fetcher) Delete(ctx context.Context, accountID string, mailbox domain.Mailbox, uid uint32) error {
	return f.withFolder(ctx, accountID, mailbox, func(conn session) error {
		seqset := new(imap.SeqSet)
		seqset.AddNum(uid)
		item := imap.FormatFlagsOp(imap.AddFlags, true)
		if err := conn.UidStore(seqset, item, []interface{}{imap.DeletedFlag}, nil); err != nil {
			return fmt.Errorf("flag deleted: %w", err)
		}
		if err := conn.Expunge(nil); err != nil {
			return fmt.Errorf("expunge: %w", err)
		}
		return nil
	})
}

// FetchAttachment 重新拉取原始邮件并提取指定部分的附件内容。
func (f *Fetcher) FetchAttachment(ctx context.Context, accountID string, mailbox domain.Mailbox, uid uint32, part string) (*domain.Attachment, error) {
	var attachment *domain.Attachment

	err := f.withFolder(ctx, accountID, mailbox, func(conn session) error {
		raw, err := f.fetchRaw(conn, uid)
		if err != nil {
			return err
		}

		parsed, err := mailparse.Parse(raw)
		if err != nil {
			return fmt.Errorf("parse message: %w", err)
		}

		for i := range parsed.Attachments {
			if parsed.Attachments[i].Part == part {
				attachment = &parsed.Attachments[i]
				return nil
			}
		}
		return ErrAttachmentNotFound
	})
	if err != nil {
		return nil, err
	}
	return attachment, nil
}

// connect 建立认证会话，按账户配置选择 TLS 或明文连接。
func (f *Fetcher) connect(account *domain.Account) (session, error) {
	dialer := &net.Dialer{Timeout: f.cfg.DialTimeout}

	var conn *client.Client
	var err error
	if account.IMAPSecure {
		conn, err = client.DialWithDialerTLS(dialer, account.IMAPAddr(), nil)
	} else {
		conn, err = client.DialWithDialer(dialer, account.IMAPAddr())
	}
	if err != nil {
		return nil, fmt.Errorf("dial imap %s: %w", account.IMAPAddr(), err)
	}

	// 命令级超时，挂死的服务器不会无限阻塞整个拉取
	conn.Timeout = f.cfg.DialTimeout

	if err := conn.Login(account.Email, account.Password); err != nil {
		_ = conn.Logout()
		return nil, fmt.Errorf("imap login %s: %w", account.Email, err)
	}

	return conn, nil
}

// logout 结束会话，失败只记录日志。
func (f *Fetcher) logout(conn session, email string) {
	if err := conn.Logout(); err != nil {
		f.log.Debug("imap logout failed", zap.String("account", email), zap.Error(err))
	}
}

// probeSentFolder 按候选列表探测 Sent 文件夹，返回第一个能打开的名字。
func (f *Fetcher) probeSentFolder(conn session) (string, bool) {
	for _, candidate := range f.sentCandidates {
		if _, err := conn.Select(candidate, false); err == nil {
			return candidate, true
		}
	}
	return "", false
}

// fetchFolder 拉取单个文件夹的全部邮件并归一化。
//
// forceRead 为 true 时忽略服务器标志、一律标记已读（用于 Sent）。
func (f *Fetcher) fetchFolder(ctx context.Context, conn session, folder string, mailbox domain.Mailbox, forceRead bool) ([]domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	status, err := conn.Select(folder, false)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", folder, err)
	}
	if status.Messages == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddRange(1, status.Messages)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchFlags, imap.FetchUid, section.FetchItem()}

	ch := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- conn.Fetch(seqset, items, ch)
	}()

	messages := make([]domain.Message, 0, status.Messages)
	for msg := range ch {
		messages = append(messages, f.normalize(msg, section, mailbox, forceRead))
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("fetch %s: %w", folder, err)
	}

	return messages, nil
}

// normalize 将一条 IMAP 消息转换为归一化的 Message。
//
// 正文字段来自原始报文解析；解析失败时退化为仅使用 envelope
// 提供的头部信息，不让单封坏信中断整个文件夹。
func (f *Fetcher) normalize(msg *imap.Message, section *imap.BodySectionName, mailbox domain.Mailbox, forceRead bool) domain.Message {
	out := domain.Message{
		UID:     msg.Uid,
		Mailbox: mailbox,
		IsRead:  forceRead || NormalizeFlags(msg.Flags).Seen(),
	}

	if envelope := msg.Envelope; envelope != nil {
		out.Subject = envelope.Subject
		out.Date = envelope.Date
		if len(envelope.From) > 0 {
			out.From = formatAddress(envelope.From[0])
		}
	}

	body := msg.GetBody(section)
	if body == nil {
		return out
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		f.log.Warn("read message body failed", zap.Uint32("uid", msg.Uid), zap.Error(err))
		return out
	}

	parsed, err := mailparse.Parse(raw)
	if err != nil {
		f.log.Warn("parse message failed, keeping envelope fields", zap.Uint32("uid", msg.Uid), zap.Error(err))
		return out
	}

	out.Text = parsed.Text
	out.HTML = parsed.HTML
	out.Attachments = parsed.Attachments
	// 头部字段优先用解析结果，缺失时保留 envelope 的值
	if parsed.From != "" {
		out.From = parsed.From
	}
	if parsed.Subject != "" {
		out.Subject = parsed.Subject
	}
	if !parsed.Date.IsZero() {
		out.Date = parsed.Date
	}

	return out
}

// withFolder 建立会话并定位到目标文件夹后执行 fn，保证登出。
func (f *Fetcher) withFolder(ctx context.Context, accountID string, mailbox domain.Mailbox, fn func(conn session) error) error {
	if !mailbox.Valid() {
		return fmt.Errorf("invalid mailbox %q", mailbox)
	}

	account, err := f.accounts.GetAccount(accountID)
	if err != nil {
		return fmt.Errorf("resolve account %q: %w", accountID, err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	conn, err := f.dial(account)
	if err != nil {
		return err
	}
	defer f.logout(conn, account.Email)

	folder := "INBOX"
	if mailbox == domain.MailboxSent {
		sentFolder, ok := f.probeSentFolder(conn)
		if !ok {
			return ErrFolderNotFound
		}
		folder = sentFolder
	} else {
		if _, err := conn.Select(folder, false); err != nil {
			return fmt.Errorf("select %s: %w", folder, err)
		}
	}

	return fn(conn)
}

// fetchRaw 按 UID 拉取单封邮件的原始报文。
func (f *Fetcher) fetchRaw(conn session, uid uint32) ([]byte, error) {
	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{section.FetchItem()}

	ch := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- conn.UidFetch(seqset, items, ch)
	}()

	var raw []byte
	for msg := range ch {
		if body := msg.GetBody(section); body != nil {
			data, err := io.ReadAll(body)
			if err != nil {
				return nil, fmt.Errorf("read message body: %w", err)
			}
			raw = data
		}
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("uid fetch: %w", err)
	}
	if raw == nil {
		return nil, ErrMessageNotFound
	}
	return raw, nil
}

// formatAddress 将 envelope 地址渲染为显示字符串。
func formatAddress(addr *imap.Address) string {
	email := addr.Address()
	name := strings.TrimSpace(addr.PersonalName)
	if name == "" {
		return email
	}
	return fmt.Sprintf("%s <%s>", name, email)
}
