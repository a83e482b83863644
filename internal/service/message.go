package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mailsync/backend/internal/domain"
	"mailsync/backend/internal/monitoring"
	"mailsync/backend/internal/smtpout"
	"mailsync/backend/internal/storage"
)

// ErrMessageNotFound 指定邮件在账户列表中不存在
var ErrMessageNotFound = errors.New("message not found")

// bulkDeleteConcurrency 批量删除的最大并发会话数
const bulkDeleteConcurrency = 4

// MessageMutator 远端邮件变更接口，由 IMAP 实现提供。
type MessageMutator interface {
	MarkSeen(ctx context.Context, accountID string, mailbox domain.Mailbox, uid uint32) error
	Delete(ctx context.Context, accountID string, mailbox domain.Mailbox, uid uint32) error
	FetchAttachment(ctx context.Context, accountID string, mailbox domain.Mailbox, uid uint32, part string) (*domain.Attachment, error)
}

// MailSender 邮件发送接口，由 SMTP 实现提供。
type MailSender interface {
	Send(ctx context.Context, account *domain.Account, out *smtpout.Outgoing) error
}

// MessageRef 定位账户内一封邮件。
type MessageRef struct {
	Mailbox domain.Mailbox `json:"mailbox" binding:"required"`
	UID     uint32         `json:"uid" binding:"required"`
}

// MessageService 邮件变更服务：已读、删除、回复、发送、附件下载。
//
// 所有变更直接作用于远端服务器，成功后使该账户的拉取缓存失效，
// 下一次列表请求会看到变更后的状态。
type MessageService struct {
	mutator  MessageMutator
	sender   MailSender
	accounts storage.AccountRepository
	cache    storage.ResultCache
	fetch    *FetchService
	metrics  *monitoring.Metrics
	log      *zap.Logger
}

// NewMessageService 创建邮件变更服务。metrics 可以为 nil。
func NewMessageService(mutator MessageMutator, sender MailSender, accounts storage.AccountRepository, cache storage.ResultCache, fetch *FetchService, metrics *monitoring.Metrics, log *zap.Logger) *MessageService {
	return &MessageService{
		mutator:  mutator,
		sender:   sender,
		accounts: accounts,
		cache:    cache,
		fetch:    fetch,
		metrics:  metrics,
		log:      log,
	}
}

// MarkRead 标记邮件为已读。
func (s *MessageService) MarkRead(ctx context.Context, accountID string, ref MessageRef) error {
	if err := s.mutator.MarkSeen(ctx, accountID, ref.Mailbox, ref.UID); err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}
	if s.metrics != nil {
		s.metrics.RecordMessageRead()
	}
	s.invalidate(ctx, accountID)
	return nil
}

// Delete 删除单封邮件。
func (s *MessageService) Delete(ctx context.Context, accountID string, ref MessageRef) error {
	if err := s.mutator.Delete(ctx, accountID, ref.Mailbox, ref.UID); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if s.metrics != nil {
		s.metrics.RecordMessageDeleted()
	}
	s.invalidate(ctx, accountID)
	return nil
}

// BulkDelete 并发删除多封邮件，返回首个失败。
//
// 部分成功是可能的：失败不回滚已删除的邮件，调用方通过
// 下一次拉取得到真实状态。
func (s *MessageService) BulkDelete(ctx context.Context, accountID string, refs []MessageRef) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bulkDeleteConcurrency)

	for _, ref := range refs {
		ref := ref
		g.Go(func() error {
			if err := s.mutator.Delete(gctx, accountID, ref.Mailbox, ref.UID); err != nil {
				return fmt.Errorf("delete uid %d in %s: %w", ref.UID, ref.Mailbox, err)
			}
			if s.metrics != nil {
				s.metrics.RecordMessageDeleted()
			}
			return nil
		})
	}

	err := g.Wait()
	s.invalidate(ctx, accountID)
	return err
}

// Reply 回复一封邮件：收件人和主题取自原信，正文由调用方提供。
func (s *MessageService) Reply(ctx context.Context, accountID string, ref MessageRef, body string) error {
	account, err := s.accounts.GetAccount(accountID)
	if err != nil {
		return fmt.Errorf("resolve account %q: %w", accountID, err)
	}

	original, err := s.findMessage(ctx, accountID, ref)
	if err != nil {
		return err
	}

	out := &smtpout.Outgoing{
		To:      extractAddress(original.From),
		Subject: replySubject(original.Subject),
		Text:    body,
	}
	if err := s.sender.Send(ctx, account, out); err != nil {
		return fmt.Errorf("send reply: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordReplySent()
	}
	s.invalidate(ctx, accountID)
	return nil
}

// Send 以账户身份发送新邮件。
func (s *MessageService) Send(ctx context.Context, accountID, to, subject, body string, attachments []domain.Attachment) error {
	account, err := s.accounts.GetAccount(accountID)
	if err != nil {
		return fmt.Errorf("resolve account %q: %w", accountID, err)
	}

	out := &smtpout.Outgoing{
		To:          to,
		Subject:     subject,
		Text:        body,
		Attachments: attachments,
	}
	if err := s.sender.Send(ctx, account, out); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordMessageSent()
	}
	s.invalidate(ctx, accountID)
	return nil
}

// Attachment 下载指定邮件的一个附件。
func (s *MessageService) Attachment(ctx context.Context, accountID string, ref MessageRef, part string) (*domain.Attachment, error) {
	attachment, err := s.mutator.FetchAttachment(ctx, accountID, ref.Mailbox, ref.UID, part)
	if err != nil {
		return nil, fmt.Errorf("fetch attachment: %w", err)
	}
	return attachment, nil
}

// findMessage 在账户邮件列表（缓存或回源）中定位一封邮件。
func (s *MessageService) findMessage(ctx context.Context, accountID string, ref MessageRef) (*domain.Message, error) {
	messages, err := s.fetch.loadMessages(ctx, accountID)
	if err != nil {
		return nil, err
	}
	for i := range messages {
		if messages[i].Mailbox == ref.Mailbox && messages[i].UID == ref.UID {
			return &messages[i], nil
		}
	}
	return nil, ErrMessageNotFound
}

// invalidate 使账户缓存失效，失败只记录日志。
func (s *MessageService) invalidate(ctx context.Context, accountID string) {
	if err := s.cache.InvalidateMessages(ctx, accountID); err != nil {
		s.log.Warn("invalidate fetch cache failed",
			zap.String("account_id", accountID),
			zap.Error(err),
		)
	}
}

// extractAddress 从 "Name <addr>" 形式的显示字符串中提取纯地址。
func extractAddress(display string) string {
	if addr, err := mail.ParseAddress(display); err == nil {
		return addr.Address
	}
	return strings.TrimSpace(display)
}

// replySubject 为回复主题加 Re: 前缀，已有前缀不重复加。
func replySubject(subject string) string {
	if strings.HasPrefix(strings.ToLower(subject), "re:") {
		return subject
	}
	return "Re: " + subject
}
