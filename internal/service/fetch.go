package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"mailsync/backend/internal/domain"
	"mailsync/backend/internal/monitoring"
	"mailsync/backend/internal/storage"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// MailboxFetcher 邮箱拉取接口，由 IMAP 实现提供。
type MailboxFetcher interface {
	FetchAll(ctx context.Context, accountID string) ([]domain.Message, error)
}

// Page 一页邮件列表及分页信息。
type Page struct {
	Messages []domain.Message
	HasMore  bool
}

// FetchService 邮件列表服务：缓存优先，未命中回源 IMAP 全量拉取。
type FetchService struct {
	fetcher  MailboxFetcher
	accounts storage.AccountRepository
	cache    storage.ResultCache
	cacheTTL time.Duration
	metrics  *monitoring.Metrics
	log      *zap.Logger
}

// NewFetchService 创建邮件列表服务。metrics 可以为 nil。
func NewFetchService(fetcher MailboxFetcher, accounts storage.AccountRepository, cache storage.ResultCache, cacheTTL time.Duration, metrics *monitoring.Metrics, log *zap.Logger) *FetchService {
	return &FetchService{
		fetcher:  fetcher,
		accounts: accounts,
		cache:    cache,
		cacheTTL: cacheTTL,
		metrics:  metrics,
		log:      log,
	}
}

// ListMessages 返回账户的一页邮件。
//
// 完整列表（缓存或回源）在内存中过滤、排序后再分页，
// page 从 1 开始计数，HasMore 表示其后还有内容。
func (s *FetchService) ListMessages(ctx context.Context, accountID string, page, limit int, search string) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	messages, err := s.loadMessages(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if search != "" {
		messages = filterMessages(messages, search)
	}

	// 缓存中的顺序不可信，分页前统一重排
	domain.SortMessagesByDateDesc(messages)

	start := (page - 1) * limit
	if start >= len(messages) {
		return &Page{Messages: []domain.Message{}, HasMore: false}, nil
	}
	end := start + limit
	if end > len(messages) {
		end = len(messages)
	}

	return &Page{
		Messages: messages[start:end],
		HasMore:  end < len(messages),
	}, nil
}

// Refresh 绕过缓存强制回源拉取并回填缓存。
func (s *FetchService) Refresh(ctx context.Context, accountID string) ([]domain.Message, error) {
	return s.fetchAndCache(ctx, accountID)
}

// loadMessages 先查缓存，未命中回源。缓存读失败按未命中处理。
func (s *FetchService) loadMessages(ctx context.Context, accountID string) ([]domain.Message, error) {
	cached, ok, err := s.cache.GetMessages(ctx, accountID)
	if err != nil {
		s.log.Warn("read fetch cache failed, falling back to imap",
			zap.String("account_id", accountID),
			zap.Error(err),
		)
	}
	if ok {
		if s.metrics != nil {
			s.metrics.RecordCacheHit()
		}
		return cached, nil
	}
	if s.metrics != nil {
		s.metrics.RecordCacheMiss()
	}

	return s.fetchAndCache(ctx, accountID)
}

func (s *FetchService) fetchAndCache(ctx context.Context, accountID string) ([]domain.Message, error) {
	start := time.Now()
	messages, err := s.fetcher.FetchAll(ctx, accountID)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordFetch("api", "error", 0, time.Since(start))
		}
		return nil, fmt.Errorf("fetch mailbox: %w", err)
	}
	if s.metrics != nil {
		s.metrics.RecordFetch("api", "ok", len(messages), time.Since(start))
	}

	if err := s.cache.SetMessages(ctx, accountID, messages, s.cacheTTL); err != nil {
		s.log.Warn("write fetch cache failed",
			zap.String("account_id", accountID),
			zap.Error(err),
		)
	}
	if err := s.accounts.MarkSynced(accountID, time.Now().UTC()); err != nil {
		s.log.Warn("mark account synced failed",
			zap.String("account_id", accountID),
			zap.Error(err),
		)
	}

	return messages, nil
}

// filterMessages 对发件人、主题和正文做大小写不敏感的包含匹配。
func filterMessages(messages []domain.Message, search string) []domain.Message {
	needle := strings.ToLower(search)
	out := make([]domain.Message, 0, len(messages))
	for _, m := range messages {
		if strings.Contains(strings.ToLower(m.From), needle) ||
			strings.Contains(strings.ToLower(m.Subject), needle) ||
			strings.Contains(strings.ToLower(m.Text), needle) {
			out = append(out, m)
		}
	}
	return out
}
